package course

import (
	"fmt"
	"time"
)

// CommentAuthor 评论作者
type CommentAuthor struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Role string `json:"role"`
}

// Comment 课程或课时评论，Replies 由 CommentTree 填充
type Comment struct {
	ID        string        `json:"id"`
	CourseID  string        `json:"courseId"`
	LessonID  string        `json:"lessonId,omitempty"`
	ParentID  string        `json:"parentId,omitempty"`
	Author    CommentAuthor `json:"user"`
	Content   string        `json:"content"`
	CreatedAt time.Time     `json:"createdAt"`
	Replies   []*Comment    `json:"replies,omitempty"`
}

// ParseCommentList 规范化 GET /comments/{courseId} 响应
// 作者信息可能位于 user 或已展开的 userId 对象中
func ParseCommentList(p map[string]any) ([]Comment, error) {
	rawList, ok := p["comments"].([]any)
	if !ok {
		return nil, &ParseError{Payload: "comment list", Field: "comments", Reason: "missing array"}
	}
	out := make([]Comment, 0, len(rawList))
	for i, r := range rawList {
		m, ok := r.(map[string]any)
		if !ok {
			return nil, &ParseError{Payload: "comment list", Field: fmt.Sprintf("comments[%d]", i), Reason: "not an object"}
		}
		c, err := ParseComment(m)
		if err != nil {
			if pe, ok := err.(*ParseError); ok {
				pe.Field = fmt.Sprintf("comments[%d].%s", i, pe.Field)
			}
			return nil, err
		}
		out = append(out, *c)
	}
	return out, nil
}

// ParseComment 规范化单条评论
func ParseComment(raw map[string]any) (*Comment, error) {
	id := firstID(raw, "_id", "id")
	if id == "" {
		return nil, &ParseError{Payload: "comment", Field: "_id", Reason: "missing"}
	}
	c := &Comment{
		ID:       id,
		CourseID: objectID(raw["courseId"]),
		LessonID: objectID(raw["lessonId"]),
		ParentID: objectID(raw["parentId"]),
		Content:  str(raw, "content"),
	}
	author, ok := raw["user"].(map[string]any)
	if !ok {
		author, _ = raw["userId"].(map[string]any)
	}
	if author != nil {
		c.Author = CommentAuthor{ID: firstID(author, "_id", "id"), Name: str(author, "name"), Role: str(author, "role")}
	}
	if c.Author.Role == "" {
		c.Author.Role = "user"
	}
	if ts := str(raw, "createdAt"); ts != "" {
		if t, err := time.Parse(time.RFC3339, ts); err == nil {
			c.CreatedAt = t
		}
	}
	return c, nil
}

// CommentTree 按 parentId 组装回复树，保持原有顺序
// 父评论不在列表中的回复作为顶层评论展示
func CommentTree(list []Comment) []*Comment {
	nodes := make(map[string]*Comment, len(list))
	ordered := make([]*Comment, 0, len(list))
	for i := range list {
		n := list[i]
		n.Replies = nil
		nodes[n.ID] = &n
		ordered = append(ordered, &n)
	}
	roots := make([]*Comment, 0)
	for _, n := range ordered {
		if parent, ok := nodes[n.ParentID]; ok && n.ParentID != "" && parent != n {
			parent.Replies = append(parent.Replies, n)
			continue
		}
		roots = append(roots, n)
	}
	return roots
}
