package course

import (
	"errors"
	"testing"
)

func TestParseCommentList(t *testing.T) {
	p := map[string]any{"comments": []any{
		map[string]any{
			"_id": "c1", "courseId": "go", "content": "hi",
			"user":      map[string]any{"_id": "u1", "name": "Ann", "role": "admin"},
			"createdAt": "2024-05-01T10:00:00Z",
		},
		map[string]any{
			"id": "c2", "courseId": "go", "parentId": "c1", "content": "reply",
			"userId": map[string]any{"_id": "u2", "name": "Bob"},
		},
	}}

	list, err := ParseCommentList(p)
	if err != nil {
		t.Fatalf("ParseCommentList() error: %v", err)
	}
	if len(list) != 2 {
		t.Fatalf("len = %d, want 2", len(list))
	}
	if list[0].Author.Role != "admin" || list[0].CreatedAt.Year() != 2024 {
		t.Errorf("first = %+v", list[0])
	}
	if list[1].Author.Name != "Bob" || list[1].Author.Role != "user" || list[1].ParentID != "c1" {
		t.Errorf("second = %+v, want populated userId author with default role", list[1])
	}
}

func TestParseCommentList_Errors(t *testing.T) {
	var pe *ParseError
	if _, err := ParseCommentList(map[string]any{}); !errors.As(err, &pe) || pe.Field != "comments" {
		t.Errorf("missing array error = %v", err)
	}
	_, err := ParseCommentList(map[string]any{"comments": []any{map[string]any{"content": "no id"}}})
	if !errors.As(err, &pe) || pe.Field != "comments[0]._id" {
		t.Errorf("missing id error = %v", err)
	}
}

func TestCommentTree(t *testing.T) {
	list := []Comment{
		{ID: "a"},
		{ID: "b", ParentID: "a"},
		{ID: "c", ParentID: "gone"},
		{ID: "d", ParentID: "b"},
		{ID: "e", ParentID: "a"},
	}
	roots := CommentTree(list)
	if len(roots) != 2 || roots[0].ID != "a" || roots[1].ID != "c" {
		t.Fatalf("roots = %v", roots)
	}
	a := roots[0]
	if len(a.Replies) != 2 || a.Replies[0].ID != "b" || a.Replies[1].ID != "e" {
		t.Errorf("replies of a = %v", a.Replies)
	}
	if len(a.Replies[0].Replies) != 1 || a.Replies[0].Replies[0].ID != "d" {
		t.Errorf("replies of b = %v", a.Replies[0].Replies)
	}
	if list[0].Replies != nil {
		t.Error("CommentTree() modified its input")
	}
}
