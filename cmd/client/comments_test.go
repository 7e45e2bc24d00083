package client

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
)

// fakeCommentsAPI 提供登录、评论与课程编辑接口
func fakeCommentsAPI(t *testing.T) (*httptest.Server, func() []map[string]any) {
	t.Helper()
	var (
		mu     sync.Mutex
		bodies []map[string]any
	)
	writeJSON := func(w http.ResponseWriter, status int, v any) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(v)
	}
	record := func(r *http.Request) {
		var body map[string]any
		_ = json.NewDecoder(r.Body).Decode(&body)
		mu.Lock()
		bodies = append(bodies, body)
		mu.Unlock()
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/api/auth/login", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"token": "tok", "user": map[string]any{"id": "a1", "email": "root@example.com", "name": "Root", "role": "admin"}})
	})
	mux.HandleFunc("/api/comments/go-101", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("lessonId") == "l9" {
			writeJSON(w, http.StatusOK, map[string]any{"comments": []any{}})
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"comments": []any{
			map[string]any{"_id": "c1", "courseId": "go-101", "content": "Question?", "createdAt": "2024-05-01T10:00:00Z",
				"user": map[string]any{"_id": "u1", "name": "Ann"}},
			map[string]any{"_id": "c2", "courseId": "go-101", "parentId": "c1", "content": "Answer.",
				"user": map[string]any{"_id": "a1", "name": "Root", "role": "admin"}},
		}})
	})
	mux.HandleFunc("/api/comments", func(w http.ResponseWriter, r *http.Request) {
		record(r)
		writeJSON(w, http.StatusCreated, map[string]any{"message": "Comment added", "comment": map[string]any{"_id": "c3", "courseId": "go-101"}})
	})
	mux.HandleFunc("/api/comments/c1", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodDelete {
			t.Errorf("method = %s, want DELETE", r.Method)
		}
		writeJSON(w, http.StatusOK, map[string]any{"message": "Comment deleted", "deleted": 2})
	})
	mux.HandleFunc("/api/courses", func(w http.ResponseWriter, r *http.Request) {
		record(r)
		writeJSON(w, http.StatusCreated, map[string]any{"course": map[string]any{"_id": "go-201", "title": "Go 201", "price": 10, "units": []any{}}})
	})
	mux.HandleFunc("/api/courses/go-201/unit/u1/lesson", func(w http.ResponseWriter, r *http.Request) {
		record(r)
		writeJSON(w, http.StatusCreated, map[string]any{"course": map[string]any{"_id": "go-201", "title": "Go 201", "units": []any{
			map[string]any{"unitId": "u1", "title": "Start", "lessons": []any{
				map[string]any{"lessonId": "q1", "title": "Check", "type": "quiz", "isPreview": true},
			}},
		}}})
	})
	mux.HandleFunc("/api/courses/go-201", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"message": "Course deleted"})
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv, func() []map[string]any {
		mu.Lock()
		defer mu.Unlock()
		return bodies
	}
}

func TestCommentsCommand(t *testing.T) {
	srv, bodies := fakeCommentsAPI(t)
	setupEnv(t, srv)

	out, err := run(t, "comments", "list", "go-101")
	if err != nil {
		t.Fatalf("comments list error: %v", err)
	}
	if !strings.Contains(out, "[c1] Ann") || !strings.Contains(out, "\n  [c2] Root (admin)\n    Answer.") {
		t.Errorf("comment tree output:\n%s", out)
	}
	if out, _ := run(t, "comments", "list", "go-101", "--lesson", "l9"); !strings.Contains(out, "No comments yet.") {
		t.Errorf("empty list output = %q", out)
	}

	if _, err := run(t, "comments", "add", "go-101", "--text", "hi"); err == nil || !strings.Contains(err.Error(), "log in") {
		t.Errorf("add without session error = %v", err)
	}
	if _, err := run(t, "login", "--email", "root@example.com", "--password", "pw"); err != nil {
		t.Fatal(err)
	}
	if _, err := run(t, "comments", "add", "go-101", "--text", "  "); err == nil {
		t.Error("blank comment accepted")
	}
	out, err = run(t, "comments", "add", "go-101", "--lesson", "l1", "--reply-to", "c1", "--text", "Thanks")
	if err != nil || !strings.Contains(out, "Comment posted: c3") {
		t.Fatalf("comments add = %q, %v", out, err)
	}
	sent := bodies()
	if len(sent) != 1 || sent[0]["parentId"] != "c1" || sent[0]["lessonId"] != "l1" || sent[0]["content"] != "Thanks" {
		t.Errorf("posted bodies = %v", sent)
	}

	out, err = run(t, "comments", "delete", "c1")
	if err != nil || !strings.Contains(out, "Deleted 2 comment(s)") {
		t.Errorf("comments delete = %q, %v", out, err)
	}
}

func TestAdminCommand(t *testing.T) {
	srv, bodies := fakeCommentsAPI(t)
	setupEnv(t, srv)

	if _, err := run(t, "admin", "course", "create", "--title", "Go 201"); err == nil {
		t.Error("admin command without session succeeded")
	}
	if _, err := run(t, "login", "--email", "root@example.com", "--password", "pw"); err != nil {
		t.Fatal(err)
	}

	out, err := run(t, "admin", "course", "create", "--title", "Go 201", "--price", "10")
	if err != nil || !strings.Contains(out, "go-201  Go 201  (10.00)") {
		t.Fatalf("course create = %q, %v", out, err)
	}

	contentFile := filepath.Join(t.TempDir(), "quiz.yaml")
	quiz := "quiz:\n  - question: \"2+2?\"\n    options: [\"3\", \"4\"]\n    answer: \"4\"\n"
	if err := os.WriteFile(contentFile, []byte(quiz), 0o644); err != nil {
		t.Fatal(err)
	}
	out, err = run(t, "admin", "lesson", "add", "go-201", "u1", "--id", "q1", "--title", "Check", "--type", "quiz", "--preview", "--content-file", contentFile)
	if err != nil || !strings.Contains(out, "- q1  Check  (quiz)  preview") {
		t.Fatalf("lesson add = %q, %v", out, err)
	}

	sent := bodies()
	if len(sent) != 2 {
		t.Fatalf("bodies = %v", sent)
	}
	if sent[0]["title"] != "Go 201" || sent[0]["price"] != 10.0 {
		t.Errorf("create body = %v", sent[0])
	}
	if _, ok := sent[0]["description"]; ok {
		t.Errorf("unset flag sent: %v", sent[0])
	}
	lesson := sent[1]
	if lesson["lessonId"] != "q1" || lesson["type"] != "quiz" || lesson["isPreview"] != true {
		t.Errorf("lesson body = %v", lesson)
	}
	content, _ := lesson["content"].(map[string]any)
	if items, _ := content["quiz"].([]any); len(items) != 1 {
		t.Errorf("lesson content = %v", lesson["content"])
	}

	out, err = run(t, "admin", "course", "delete", "go-201")
	if err != nil || !strings.Contains(out, "Course deleted") {
		t.Errorf("course delete = %q, %v", out, err)
	}
}
