package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"testing/fstest"
	"time"

	"learnhub/internal/catalog"
	"learnhub/internal/config"
	"learnhub/internal/course"
	"learnhub/internal/logger"
	"learnhub/internal/remote"
	"learnhub/internal/session"

	"github.com/gin-gonic/gin"
)

const freeCourseYAML = `
title: Free Go
units:
  - unitId: fu1
    title: Basics
    lessons:
      - lessonId: free-1
        title: Hello
        isPreview: true
        duration: 5
        content:
          explanation: ["hello"]
      - lessonId: free-2
        title: Quiz
        type: quiz
        duration: 10
        content:
          quiz:
            - question: "2+2?"
              options: ["3", "4"]
              answer: "4"
`

const paidCourseYAML = `
title: Paid Go
price: 20
units:
  - unitId: pu1
    title: Advanced
    lessons:
      - lessonId: paid-1
        title: Preview
        isPreview: true
        content:
          explanation: ["free part"]
      - lessonId: paid-2
        title: Locked
        content:
          explanation: ["paid part"]
`

type testEnv struct {
	router *gin.Engine
	cfg    *config.Config
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)
	quiet := logger.NewLogger(logger.ERROR)

	svc := catalog.NewServiceFromFS(fstest.MapFS{
		"courses/free-go/index.yaml": {Data: []byte(freeCourseYAML)},
		"courses/paid-go/index.yaml": {Data: []byte(paidCourseYAML)},
	}, "courses")
	svc.SetLogger(quiet)
	if err := svc.LoadCourses(); err != nil {
		t.Fatalf("LoadCourses() error: %v", err)
	}

	hash, err := catalog.HashPassword("secret")
	if err != nil {
		t.Fatal(err)
	}
	users := catalog.NewUsers([]catalog.Account{{ID: "u1", Name: "Ann", Email: "ann@example.com", PasswordHash: hash}}, quiet)
	ledger := catalog.NewFileLedger(filepath.Join(t.TempDir(), "ledger.json"), quiet)

	cfg := &config.Config{Auth: config.AuthConfig{JWTSecret: "test-secret", TokenTTL: time.Hour}}
	h := NewHandler(svc, ledger, users, quiet, cfg)
	r := gin.New()
	h.SetupRoutes(r)
	return &testEnv{router: r, cfg: cfg}
}

func (e *testEnv) token(t *testing.T) string {
	t.Helper()
	tok, err := session.IssueToken(e.cfg.Auth.JWTSecret, session.User{ID: "u1", Email: "ann@example.com"}, time.Hour)
	if err != nil {
		t.Fatal(err)
	}
	return tok
}

func (e *testEnv) do(t *testing.T, method, path, token string, body any) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		data, _ := json.Marshal(body)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)

	var out map[string]any
	if strings.HasPrefix(w.Header().Get("Content-Type"), "application/json") {
		if err := json.Unmarshal(w.Body.Bytes(), &out); err != nil {
			t.Fatalf("decode %s %s: %v", method, path, err)
		}
	}
	return w, out
}

func TestHealthCheck(t *testing.T) {
	env := newTestEnv(t)
	w, body := env.do(t, http.MethodGet, "/health", "", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	if body["status"] != "ok" || !strings.Contains(body["message"].(string), "LearnHub") {
		t.Errorf("body = %v", body)
	}
}

func TestLogin(t *testing.T) {
	env := newTestEnv(t)

	w, body := env.do(t, http.MethodPost, "/api/auth/login", "", map[string]string{"email": "ANN@example.com", "password": "secret"})
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", w.Code, w.Body.String())
	}
	tok, _ := body["token"].(string)
	claims, err := session.VerifyToken(env.cfg.Auth.JWTSecret, tok)
	if err != nil || claims.Subject != "u1" {
		t.Errorf("token claims = %v, %v", claims, err)
	}

	w, _ = env.do(t, http.MethodPost, "/api/auth/login", "", map[string]string{"email": "ann@example.com", "password": "nope"})
	if w.Code != http.StatusUnauthorized {
		t.Errorf("wrong password status = %d, want 401", w.Code)
	}
	w, _ = env.do(t, http.MethodPost, "/api/auth/login", "", map[string]string{"email": "ann@example.com"})
	if w.Code != http.StatusBadRequest {
		t.Errorf("missing password status = %d, want 400", w.Code)
	}

	w, body = env.do(t, http.MethodGet, "/api/auth/me", tok, nil)
	if w.Code != http.StatusOK || body["user"].(map[string]any)["id"] != "u1" {
		t.Errorf("me = %d %v", w.Code, body)
	}
}

func TestAuthRequired(t *testing.T) {
	env := newTestEnv(t)

	w, body := env.do(t, http.MethodGet, "/api/enrollments/my/enrollments", "", nil)
	if w.Code != http.StatusUnauthorized || body["error"] != "Not authorized, no token" {
		t.Errorf("no token = %d %v", w.Code, body)
	}
	w, body = env.do(t, http.MethodGet, "/api/enrollments/my/enrollments", "bogus", nil)
	if w.Code != http.StatusUnauthorized || body["error"] != "Not authorized, token failed" {
		t.Errorf("bad token = %d %v", w.Code, body)
	}
}

func TestGetCourses_LocksNonPreviewContent(t *testing.T) {
	env := newTestEnv(t)
	w, body := env.do(t, http.MethodGet, "/api/courses", "", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	list := body["courses"].([]any)
	if len(list) != 2 {
		t.Fatalf("courses = %d, want 2", len(list))
	}
	for _, raw := range list {
		c, err := course.ParseCourse(raw.(map[string]any))
		if err != nil {
			t.Fatalf("ParseCourse() error: %v", err)
		}
		for _, u := range c.Units {
			for _, l := range u.Lessons {
				if !l.IsPreview && l.Content != nil {
					t.Errorf("lesson %s content exposed in list", l.LessonID)
				}
			}
		}
	}
}

func TestGetCourse(t *testing.T) {
	env := newTestEnv(t)
	tok := env.token(t)

	w, _ := env.do(t, http.MethodGet, "/api/courses/missing", "", nil)
	if w.Code != http.StatusNotFound {
		t.Errorf("missing course status = %d, want 404", w.Code)
	}

	_, body := env.do(t, http.MethodGet, "/api/courses/free-go", tok, nil)
	if _, ok := body["enrollment"]; ok {
		t.Error("enrollment returned before enrolling")
	}

	env.do(t, http.MethodPost, "/api/enrollments/free-go/enroll", tok, nil)
	env.do(t, http.MethodPost, "/api/progress/lesson/free-1", tok, map[string]any{"status": "completed", "timeSpent": 30})

	w, body = env.do(t, http.MethodGet, "/api/courses/free-go", tok, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	resp, err := course.ParseCourseResponse(body)
	if err != nil {
		t.Fatalf("ParseCourseResponse() error: %v", err)
	}
	if resp.Enrollment == nil || resp.Enrollment.AccessLevel != course.AccessFull {
		t.Fatalf("enrollment = %+v, want full", resp.Enrollment)
	}
	if resp.Progress == nil || resp.Progress.CompletedLessons != 1 || resp.Progress.OverallPercentage != 50 {
		t.Errorf("progress = %+v, want 1/2 (50%%)", resp.Progress)
	}
	if l, ok := course.FindLesson(resp.Course, "free-2"); !ok || l.Content == nil {
		t.Error("full access should include non-preview content")
	}
}

func TestEnroll(t *testing.T) {
	env := newTestEnv(t)
	tok := env.token(t)

	w, body := env.do(t, http.MethodPost, "/api/enrollments/free-go/enroll", tok, nil)
	if w.Code != http.StatusCreated {
		t.Fatalf("first enroll status = %d, want 201: %s", w.Code, w.Body.String())
	}
	e, err := course.ParseEnrollment(body["enrollment"].(map[string]any))
	if err != nil || e.CourseID != "free-go" || e.AccessLevel != course.AccessFull {
		t.Errorf("enrollment = %+v, %v", e, err)
	}

	w, body = env.do(t, http.MethodPost, "/api/enrollments/free-go/enroll", tok, nil)
	if w.Code != http.StatusOK || body["message"] != "Already enrolled" {
		t.Errorf("second enroll = %d %v", w.Code, body)
	}

	w, _ = env.do(t, http.MethodPost, "/api/enrollments/missing/enroll", tok, nil)
	if w.Code != http.StatusNotFound {
		t.Errorf("unknown course status = %d, want 404", w.Code)
	}

	_, body = env.do(t, http.MethodGet, "/api/enrollments/my/enrollments", tok, nil)
	list, err := course.ParseEnrollmentList(body)
	if err != nil || len(list) != 1 {
		t.Errorf("enrollments = %v, %v", list, err)
	}
}

func TestEnroll_PaidCourse(t *testing.T) {
	env := newTestEnv(t)
	tok := env.token(t)

	_, body := env.do(t, http.MethodPost, "/api/enrollments/paid-go/enroll", tok, nil)
	e, _ := course.ParseEnrollment(body["enrollment"].(map[string]any))
	if e == nil || e.AccessLevel != course.AccessPreview {
		t.Fatalf("enrollment without payment = %+v, want preview", e)
	}

	w, _ := env.do(t, http.MethodPost, "/api/progress/lesson/paid-2", tok, map[string]any{"status": "in_progress"})
	if w.Code != http.StatusForbidden {
		t.Errorf("locked lesson progress status = %d, want 403", w.Code)
	}
	w, _ = env.do(t, http.MethodPost, "/api/progress/lesson/paid-1", tok, map[string]any{"status": "in_progress"})
	if w.Code != http.StatusOK {
		t.Errorf("preview lesson progress status = %d, want 200", w.Code)
	}

	_, body = env.do(t, http.MethodPost, "/api/enrollments/paid-go/enroll", tok, map[string]any{"paymentId": "pay_1", "amount": 20})
	e, _ = course.ParseEnrollment(body["enrollment"].(map[string]any))
	if e == nil || e.AccessLevel != course.AccessFull {
		t.Errorf("enrollment with payment = %+v, want full", e)
	}
}

func TestUpdateLessonProgress(t *testing.T) {
	env := newTestEnv(t)
	tok := env.token(t)

	w, _ := env.do(t, http.MethodPost, "/api/progress/lesson/free-1", tok, map[string]any{"status": "completed"})
	if w.Code != http.StatusForbidden {
		t.Errorf("not enrolled status = %d, want 403", w.Code)
	}

	env.do(t, http.MethodPost, "/api/enrollments/free-go/enroll", tok, nil)

	w, _ = env.do(t, http.MethodPost, "/api/progress/lesson/unknown", tok, map[string]any{"status": "completed"})
	if w.Code != http.StatusNotFound {
		t.Errorf("unknown lesson status = %d, want 404", w.Code)
	}
	w, _ = env.do(t, http.MethodPost, "/api/progress/lesson/free-1", tok, map[string]any{"courseId": "paid-go", "status": "completed"})
	if w.Code != http.StatusBadRequest {
		t.Errorf("mismatched course status = %d, want 400", w.Code)
	}
	w, _ = env.do(t, http.MethodPost, "/api/progress/lesson/free-1", tok, map[string]any{"status": "done"})
	if w.Code != http.StatusBadRequest {
		t.Errorf("invalid status = %d, want 400", w.Code)
	}

	w, body := env.do(t, http.MethodPost, "/api/progress/lesson/free-2", tok, map[string]any{"courseId": "free-go", "status": "completed", "score": 100})
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", w.Code, w.Body.String())
	}
	cp := body["courseProgress"].(map[string]any)
	if cp["completedLessons"].(float64) != 1 || cp["currentLesson"] != "free-1" {
		t.Errorf("courseProgress = %v", cp)
	}

	_, body = env.do(t, http.MethodGet, "/api/progress/course/free-go", tok, nil)
	p, err := course.ParseProgress(body["progress"].(map[string]any), body["detailedProgress"].([]any), nil)
	if err != nil {
		t.Fatalf("ParseProgress() error: %v", err)
	}
	if p.TotalLessons != 2 || len(p.DetailedProgress) != 1 || *p.DetailedProgress[0].Score != 100 {
		t.Errorf("progress = %+v", p)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	env := newTestEnv(t)
	tok := env.token(t)
	env.do(t, http.MethodPost, "/api/enrollments/free-go/enroll", tok, nil)

	w, _ := env.do(t, http.MethodGet, "/metrics", "", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	out := w.Body.String()
	if !strings.Contains(out, `learnhub_enrollments_total{access_level="full",created="true"} 1`) {
		t.Errorf("enrollment counter missing:\n%s", out)
	}
	if !strings.Contains(out, `endpoint="/api/enrollments/:courseId/enroll"`) {
		t.Error("request counter missing route label")
	}
}

func TestEnvCheck(t *testing.T) {
	env := newTestEnv(t)
	w, body := env.do(t, http.MethodGet, "/api/check", "", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	if body["ok"] != true {
		t.Errorf("summary = %v", body)
	}
}

// TestStoreAgainstSandbox 客户端状态容器与沙箱服务的端到端流程
func TestStoreAgainstSandbox(t *testing.T) {
	env := newTestEnv(t)
	srv := httptest.NewServer(env.router)
	defer srv.Close()

	quiet := logger.NewLogger(logger.ERROR)
	ctx := context.Background()
	client := remote.NewClient(srv.URL+"/api", remote.Options{Timeout: 2 * time.Second}, quiet)
	sessions := session.NewManager("", quiet)
	store := course.NewStore(client, sessions, course.NewEnrolledSet(), quiet)
	defer store.Close()

	if r := store.EnrollInCourse(ctx, "free-go", nil); r.Success {
		t.Fatal("EnrollInCourse() succeeded without session")
	}

	payload, err := client.Login(ctx, "ann@example.com", "secret")
	if err != nil {
		t.Fatalf("Login() error: %v", err)
	}
	if err := sessions.Login(session.User{ID: "u1", Email: "ann@example.com"}, payload["token"].(string)); err != nil {
		t.Fatal(err)
	}

	store.LoadCourse(ctx, "free-go")
	st := store.Snapshot()
	if st.Course == nil || st.Course.ID != "free-go" || st.Enrollment != nil {
		t.Fatalf("state after load = %+v", st)
	}
	if store.HasFullAccess() {
		t.Error("HasFullAccess() before enrolling")
	}

	if r := store.EnrollInCourse(ctx, "free-go", nil); !r.Success {
		t.Fatalf("EnrollInCourse() = %+v", r)
	}
	if !store.HasFullAccess() || !store.Snapshot().EnrollmentsLoaded {
		t.Error("enrollment not reflected in store")
	}

	done := 45
	if r := store.UpdateLessonProgress(ctx, "free-1", course.ProgressDelta{Status: course.StatusCompleted, TimeSpent: &done}); !r.Success {
		t.Fatalf("UpdateLessonProgress() = %+v", r)
	}

	store.LoadCourse(ctx, "free-go")
	st = store.Snapshot()
	if st.Progress == nil || st.Progress.CompletedLessons != 1 || st.Progress.OverallPercentage != 50 {
		t.Fatalf("reloaded progress = %+v", st.Progress)
	}
	if st.ProgressSyncFailed {
		t.Error("ProgressSyncFailed after successful sync")
	}
	next, ok := course.NextLesson(st.Course, st.Progress)
	if !ok || next.LessonID != "free-2" {
		t.Errorf("NextLesson() = %v, %v", next.LessonID, ok)
	}
}
