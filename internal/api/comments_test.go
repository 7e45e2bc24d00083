package api

import (
	"net/http"
	"strings"
	"testing"
	"time"

	"learnhub/internal/course"
	"learnhub/internal/session"
)

func (e *testEnv) tokenFor(t *testing.T, u session.User) string {
	t.Helper()
	tok, err := session.IssueToken(e.cfg.Auth.JWTSecret, u, time.Hour)
	if err != nil {
		t.Fatal(err)
	}
	return tok
}

func TestComments_PostListAndReply(t *testing.T) {
	env := newTestEnv(t)
	tok := env.tokenFor(t, session.User{ID: "u1", Name: "Ann", Email: "ann@example.com"})

	w, _ := env.do(t, http.MethodPost, "/api/comments", "", map[string]any{"courseId": "free-go", "content": "hi"})
	if w.Code != http.StatusUnauthorized {
		t.Errorf("anonymous post status = %d, want 401", w.Code)
	}

	w, body := env.do(t, http.MethodPost, "/api/comments", tok, map[string]any{"courseId": "free-go", "content": "  Why is 2+2 four?  "})
	if w.Code != http.StatusCreated {
		t.Fatalf("post status = %d: %s", w.Code, w.Body.String())
	}
	root, err := course.ParseComment(body["comment"].(map[string]any))
	if err != nil {
		t.Fatalf("ParseComment() error: %v", err)
	}
	if root.Content != "Why is 2+2 four?" || root.Author.Name != "Ann" || root.Author.Role != "user" {
		t.Errorf("comment = %+v", root)
	}

	w, _ = env.do(t, http.MethodPost, "/api/comments", tok, map[string]any{
		"courseId": "free-go", "lessonId": "free-2", "parentId": root.ID, "content": "Because.",
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("reply status = %d: %s", w.Code, w.Body.String())
	}

	w, body = env.do(t, http.MethodGet, "/api/comments/free-go", "", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("list status = %d", w.Code)
	}
	list, err := course.ParseCommentList(body)
	if err != nil || len(list) != 2 {
		t.Fatalf("ParseCommentList() = %v, %v", list, err)
	}
	tree := course.CommentTree(list)
	if len(tree) != 1 || len(tree[0].Replies) != 1 || tree[0].Replies[0].Content != "Because." {
		t.Errorf("comment tree = %+v", tree)
	}

	_, body = env.do(t, http.MethodGet, "/api/comments/free-go?lessonId=free-2", "", nil)
	if list, _ := course.ParseCommentList(body); len(list) != 1 || list[0].LessonID != "free-2" {
		t.Errorf("lesson filter = %+v", list)
	}
}

func TestComments_PostValidation(t *testing.T) {
	env := newTestEnv(t)
	tok := env.token(t)

	_, body := env.do(t, http.MethodPost, "/api/comments", tok, map[string]any{"courseId": "paid-go", "content": "paid"})
	paidComment := body["comment"].(map[string]any)["_id"].(string)

	tests := []struct {
		name string
		body map[string]any
		code int
	}{
		{"empty content", map[string]any{"courseId": "free-go", "content": "   "}, http.StatusBadRequest},
		{"too long", map[string]any{"courseId": "free-go", "content": strings.Repeat("字", maxCommentLength+1)}, http.StatusBadRequest},
		{"unknown course", map[string]any{"courseId": "missing", "content": "x"}, http.StatusNotFound},
		{"lesson of other course", map[string]any{"courseId": "free-go", "lessonId": "paid-1", "content": "x"}, http.StatusBadRequest},
		{"parent in other course", map[string]any{"courseId": "free-go", "parentId": paidComment, "content": "x"}, http.StatusBadRequest},
		{"missing parent", map[string]any{"courseId": "free-go", "parentId": "nope", "content": "x"}, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w, _ := env.do(t, http.MethodPost, "/api/comments", tok, tt.body)
			if w.Code != tt.code {
				t.Errorf("status = %d, want %d: %s", w.Code, tt.code, w.Body.String())
			}
		})
	}

	w, _ := env.do(t, http.MethodGet, "/api/comments/missing", "", nil)
	if w.Code != http.StatusNotFound {
		t.Errorf("list unknown course status = %d, want 404", w.Code)
	}
}

func TestComments_DeleteOwnerOrAdmin(t *testing.T) {
	env := newTestEnv(t)
	ann := env.tokenFor(t, session.User{ID: "u1", Name: "Ann"})
	bob := env.tokenFor(t, session.User{ID: "u2", Name: "Bob"})
	admin := env.tokenFor(t, session.User{ID: "a1", Name: "Root", Role: "admin"})

	_, body := env.do(t, http.MethodPost, "/api/comments", ann, map[string]any{"courseId": "free-go", "content": "first"})
	first := body["comment"].(map[string]any)["_id"].(string)
	env.do(t, http.MethodPost, "/api/comments", bob, map[string]any{"courseId": "free-go", "parentId": first, "content": "reply"})
	_, body = env.do(t, http.MethodPost, "/api/comments", ann, map[string]any{"courseId": "free-go", "content": "second"})
	second := body["comment"].(map[string]any)["_id"].(string)

	w, _ := env.do(t, http.MethodDelete, "/api/comments/"+first, bob, nil)
	if w.Code != http.StatusForbidden {
		t.Errorf("non-owner delete status = %d, want 403", w.Code)
	}

	w, body = env.do(t, http.MethodDelete, "/api/comments/"+first, ann, nil)
	if w.Code != http.StatusOK || body["deleted"].(float64) != 2 {
		t.Errorf("owner delete = %d %v, want thread of 2 removed", w.Code, body)
	}

	w, _ = env.do(t, http.MethodDelete, "/api/comments/"+second, admin, nil)
	if w.Code != http.StatusOK {
		t.Errorf("admin delete status = %d, want 200", w.Code)
	}
	w, _ = env.do(t, http.MethodDelete, "/api/comments/"+second, admin, nil)
	if w.Code != http.StatusNotFound {
		t.Errorf("repeat delete status = %d, want 404", w.Code)
	}

	_, body = env.do(t, http.MethodGet, "/api/comments/free-go", "", nil)
	if list := body["comments"].([]any); len(list) != 0 {
		t.Errorf("comments left = %v", list)
	}
}
