package api

import (
	"net/http"
	"strings"
	"unicode/utf8"

	"learnhub/internal/catalog"

	"github.com/gin-gonic/gin"
)

// maxCommentLength 单条评论最多字符数
const maxCommentLength = 2000

// listComments 课程评论列表
// 查询参数 lessonId 为空时返回整门课程的评论（含各课时）
// 响应: {"comments": [commentObject, ...]}，按发表时间排序，回复通过 parentId 关联
func (h *Handler) listComments(c *gin.Context) {
	doc, ok := h.catalog.GetCourse(strings.TrimSpace(c.Param("courseId")))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "Course not found"})
		return
	}
	list, err := h.ledger.Comments(c.Request.Context(), doc.ID, strings.TrimSpace(c.Query("lessonId")))
	if err != nil {
		h.internalError(c, "查询评论失败", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"comments": list})
}

type commentRequest struct {
	CourseID string `json:"courseId"`
	LessonID string `json:"lessonId"`
	ParentID string `json:"parentId"`
	Content  string `json:"content"`
}

// postComment 发表评论或回复
// 作者取自令牌，忽略请求体中的 user 字段
// 响应:
//
//	201: {"message": "Comment added", "comment": commentObject}
//	400: 内容为空或过长、课时不属于课程、回复的评论不在同一课程
//	404: 课程不存在
func (h *Handler) postComment(c *gin.Context) {
	claims, _ := currentClaims(c)

	var req commentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid comment payload"})
		return
	}
	content := strings.TrimSpace(req.Content)
	if content == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Comment content is required"})
		return
	}
	if utf8.RuneCountInString(content) > maxCommentLength {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Comment is too long"})
		return
	}

	doc, ok := h.catalog.GetCourse(strings.TrimSpace(req.CourseID))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "Course not found"})
		return
	}
	lessonID := strings.TrimSpace(req.LessonID)
	if lessonID != "" {
		if _, _, found := doc.FindLesson(lessonID); !found {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Lesson does not belong to course"})
			return
		}
	}

	ctx := c.Request.Context()
	parentID := strings.TrimSpace(req.ParentID)
	if parentID != "" {
		parent, found, err := h.ledger.Comment(ctx, parentID)
		if err != nil {
			h.internalError(c, "查询评论失败", err)
			return
		}
		if !found || parent.CourseID != doc.ID {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Parent comment not found in this course"})
			return
		}
	}

	role := claims.Role
	if role == "" {
		role = "user"
	}
	rec, err := h.ledger.AddComment(ctx, catalog.CommentRecord{
		CourseID: doc.ID,
		LessonID: lessonID,
		ParentID: parentID,
		User:     catalog.CommentAuthor{ID: claims.Subject, Name: claims.Name, Role: role},
		Content:  content,
	})
	if err != nil {
		h.internalError(c, "保存评论失败", err)
		return
	}
	h.logger.Info("用户 %s 评论课程 %s", claims.Subject, doc.ID)
	c.JSON(http.StatusCreated, gin.H{"message": "Comment added", "comment": rec})
}

// deleteComment 删除评论及其回复，仅作者或管理员
// 响应:
//
//	200: {"message": "Comment deleted", "deleted": n}
//	403: 非作者且非管理员
//	404: 评论不存在
func (h *Handler) deleteComment(c *gin.Context) {
	claims, _ := currentClaims(c)
	ctx := c.Request.Context()

	rec, found, err := h.ledger.Comment(ctx, c.Param("id"))
	if err != nil {
		h.internalError(c, "查询评论失败", err)
		return
	}
	if !found {
		c.JSON(http.StatusNotFound, gin.H{"error": "Comment not found"})
		return
	}
	if rec.User.ID != claims.Subject && claims.Role != "admin" {
		c.JSON(http.StatusForbidden, gin.H{"error": "Not allowed to delete this comment"})
		return
	}
	n, err := h.ledger.DeleteComment(ctx, rec.ID)
	if err != nil {
		h.internalError(c, "删除评论失败", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Comment deleted", "deleted": n})
}
