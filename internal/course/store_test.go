package course

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"testing"
	"time"

	"learnhub/internal/logger"
	"learnhub/internal/session"
)

type fakeStatusErr struct {
	status  int
	message string
}

func (e *fakeStatusErr) Error() string         { return e.message }
func (e *fakeStatusErr) HTTPStatus() int       { return e.status }
func (e *fakeStatusErr) ServerMessage() string { return e.message }

type fakeSessions struct {
	mu     sync.Mutex
	sess   session.Session
	active bool
}

func (f *fakeSessions) Current() (session.Session, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.sess, f.active
}

func loggedIn() *fakeSessions {
	return &fakeSessions{
		sess:   session.Session{User: session.User{ID: "u1", Name: "Ada"}, Token: "tok"},
		active: true,
	}
}

type progressCall struct {
	lessonID string
	body     map[string]any
}

// fakeService 可控的远程服务，gates 中的通道关闭前对应课程的请求一直阻塞
type fakeService struct {
	mu sync.Mutex

	courses     map[string]map[string]any
	courseErr   map[string]error
	gates       map[string]chan struct{}
	started     chan string
	listGate    chan struct{}
	listStarted chan struct{}
	enrollments []any
	enrollResp  map[string]any
	enrollErr   error
	progressErr error

	courseCalls   int
	enrollCalls   int
	listCalls     int
	progressCalls []progressCall
}

func newFakeService() *fakeService {
	return &fakeService{
		courses:     make(map[string]map[string]any),
		courseErr:   make(map[string]error),
		gates:       make(map[string]chan struct{}),
		started:     make(chan string, 16),
		listStarted: make(chan struct{}, 16),
	}
}

func (f *fakeService) GetCourse(ctx context.Context, courseID, token string) (map[string]any, error) {
	f.mu.Lock()
	f.courseCalls++
	gate := f.gates[courseID]
	payload := f.courses[courseID]
	err := f.courseErr[courseID]
	f.mu.Unlock()

	f.started <- courseID
	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if err != nil {
		return nil, err
	}
	if payload == nil {
		return nil, &fakeStatusErr{status: http.StatusNotFound, message: "Course not found"}
	}
	return payload, nil
}

func (f *fakeService) ListEnrollments(ctx context.Context, token string) (map[string]any, error) {
	f.mu.Lock()
	f.listCalls++
	gate := f.listGate
	f.mu.Unlock()

	if gate != nil {
		f.listStarted <- struct{}{}
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return map[string]any{"enrollments": append([]any(nil), f.enrollments...)}, nil
}

func (f *fakeService) Enroll(ctx context.Context, courseID, token string, payment map[string]any) (map[string]any, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.enrollCalls++
	if f.enrollErr != nil {
		return nil, f.enrollErr
	}
	return f.enrollResp, nil
}

func (f *fakeService) UpdateLessonProgress(ctx context.Context, lessonID, token string, body map[string]any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.progressCalls = append(f.progressCalls, progressCall{lessonID: lessonID, body: body})
	return f.progressErr
}

// sampleCourse 两个单元共四个课时，l1 为试看课时
func sampleCourse(id string) map[string]any {
	return map[string]any{
		"_id":   id,
		"title": "Course " + id,
		"price": 0.0,
		"units": []any{
			map[string]any{
				"unitId": "u1",
				"title":  "Basics",
				"lessons": []any{
					map[string]any{"_id": "l1", "title": "Intro", "type": "text", "isPreview": true},
					map[string]any{"lessonId": "l2", "title": "Examples", "type": "examples"},
				},
			},
			map[string]any{
				"unitId": "u2",
				"title":  "Practice",
				"lessons": []any{
					map[string]any{"_id": "l3", "title": "Quiz", "type": "quiz"},
					map[string]any{"_id": "l4", "title": "Coding", "type": "coding"},
				},
			},
		},
	}
}

func courseResponse(id string) map[string]any {
	return map[string]any{"course": sampleCourse(id)}
}

func newTestStore(svc Service, sessions session.Provider) *Store {
	return NewStore(svc, sessions, NewEnrolledSet(), logger.NewLogger(logger.ERROR))
}

func waitStarted(t *testing.T, f *fakeService, want string) {
	t.Helper()
	select {
	case got := <-f.started:
		if got != want {
			t.Fatalf("started request = %q, want %q", got, want)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("request for %q never started", want)
	}
}

func TestStore_LoadCourseLaterCallWins(t *testing.T) {
	svc := newFakeService()
	svc.courses["A"] = courseResponse("A")
	svc.courses["B"] = courseResponse("B")
	gateA := make(chan struct{})
	svc.gates["A"] = gateA

	store := newTestStore(svc, loggedIn())
	ctx := context.Background()

	done := make(chan struct{})
	go func() {
		store.LoadCourse(ctx, "A")
		close(done)
	}()
	waitStarted(t, svc, "A")

	store.LoadCourse(ctx, "B")
	waitStarted(t, svc, "B")
	close(gateA)
	<-done

	st := store.Snapshot()
	if st.Course == nil || st.Course.ID != "B" {
		t.Fatalf("course = %+v, want B", st.Course)
	}
	if st.Loading {
		t.Errorf("Loading = true after all requests finished")
	}
}

func TestStore_LoadCourseSwitchClearsPreviousState(t *testing.T) {
	svc := newFakeService()
	svc.courses["A"] = courseResponse("A")
	svc.courses["B"] = courseResponse("B")
	store := newTestStore(svc, loggedIn())
	ctx := context.Background()

	store.LoadCourse(ctx, "A")
	waitStarted(t, svc, "A")

	gateB := make(chan struct{})
	svc.mu.Lock()
	svc.gates["B"] = gateB
	svc.mu.Unlock()

	done := make(chan struct{})
	go func() {
		store.LoadCourse(ctx, "B")
		close(done)
	}()
	waitStarted(t, svc, "B")

	st := store.Snapshot()
	if st.Course != nil {
		t.Errorf("course = %s while switching, want nil", st.Course.ID)
	}
	if !st.Loading {
		t.Errorf("Loading = false while request in flight")
	}
	close(gateB)
	<-done
}

func TestStore_LoadCourseFailureLeavesEmptyState(t *testing.T) {
	svc := newFakeService()
	store := newTestStore(svc, loggedIn())

	store.LoadCourse(context.Background(), "missing")
	waitStarted(t, svc, "missing")

	st := store.Snapshot()
	if st.Course != nil || st.Enrollment != nil || st.Progress != nil {
		t.Fatalf("state = %+v, want empty", st)
	}
	if !st.Loaded || st.Loading {
		t.Errorf("Loaded = %v, Loading = %v, want true, false", st.Loaded, st.Loading)
	}
}

func TestStore_LoadCourseMalformedPayload(t *testing.T) {
	svc := newFakeService()
	svc.courses["bad"] = map[string]any{"course": map[string]any{"title": "no id"}}
	store := newTestStore(svc, loggedIn())

	store.LoadCourse(context.Background(), "bad")
	<-svc.started

	if st := store.Snapshot(); st.Course != nil || !st.Loaded {
		t.Fatalf("state = %+v, want empty loaded state", st)
	}
}

func TestStore_LoadCourseWithEnrollmentAndProgress(t *testing.T) {
	svc := newFakeService()
	svc.courses["A"] = map[string]any{
		"course":     sampleCourse("A"),
		"enrollment": map[string]any{"_id": "e1", "courseId": map[string]any{"_id": "A"}, "accessLevel": "full"},
		"progress":   map[string]any{"courseId": "A", "completedLessons": 9.0, "totalLessons": 9.0},
		"detailedProgress": []any{
			map[string]any{"lessonId": "l1", "status": "completed"},
			map[string]any{"lessonId": "l2", "status": "in_progress"},
		},
	}
	store := newTestStore(svc, loggedIn())
	store.LoadCourse(context.Background(), "A")
	<-svc.started

	st := store.Snapshot()
	if st.Enrollment == nil || st.Enrollment.AccessLevel != AccessFull {
		t.Fatalf("enrollment = %+v, want full", st.Enrollment)
	}
	if st.Progress == nil {
		t.Fatal("progress = nil")
	}
	if st.Progress.TotalLessons != 4 || st.Progress.CompletedLessons != 1 || st.Progress.OverallPercentage != 25 {
		t.Errorf("progress = %d/%d %d%%, want 1/4 25%%",
			st.Progress.CompletedLessons, st.Progress.TotalLessons, st.Progress.OverallPercentage)
	}
	if !store.HasFullAccess() || !store.IsEnrolled() {
		t.Errorf("HasFullAccess = %v, IsEnrolled = %v, want true", store.HasFullAccess(), store.IsEnrolled())
	}
	if len(st.EnrolledCourseIDs) != 1 || st.EnrolledCourseIDs[0] != "A" {
		t.Errorf("EnrolledCourseIDs = %v, want [A]", st.EnrolledCourseIDs)
	}
}

func TestStore_EnrollWithoutSession(t *testing.T) {
	svc := newFakeService()
	store := newTestStore(svc, &fakeSessions{})

	res := store.EnrollInCourse(context.Background(), "A", nil)
	if res.Success {
		t.Fatal("Success = true without session")
	}
	if res.Message != "Please log in to enroll." {
		t.Errorf("Message = %q", res.Message)
	}
	if svc.enrollCalls != 0 {
		t.Errorf("enroll calls = %d, want 0", svc.enrollCalls)
	}
}

func TestStore_EnrollGrantsAccessAndRefreshesSet(t *testing.T) {
	svc := newFakeService()
	svc.courses["A"] = courseResponse("A")
	svc.enrollResp = map[string]any{
		"enrollment": map[string]any{"_id": "e1", "courseId": "A", "accessLevel": "full"},
	}
	svc.enrollments = []any{map[string]any{"courseId": "A", "accessLevel": "full"}}
	store := newTestStore(svc, loggedIn())
	ctx := context.Background()

	store.LoadCourse(ctx, "A")
	<-svc.started
	if store.HasFullAccess() {
		t.Fatal("HasFullAccess = true before enrolling")
	}

	res := store.EnrollInCourse(ctx, "A", map[string]any{"paymentId": "p1"})
	if !res.Success || res.Enrollment == nil {
		t.Fatalf("result = %+v, want success with enrollment", res)
	}
	if !store.HasFullAccess() {
		t.Error("HasFullAccess = false after enrolling")
	}
	if svc.listCalls != 1 {
		t.Errorf("list calls = %d, want 1", svc.listCalls)
	}
	if ids := store.Snapshot().EnrolledCourseIDs; len(ids) != 1 || ids[0] != "A" {
		t.Errorf("EnrolledCourseIDs = %v, want [A]", ids)
	}
}

func TestStore_EnrollTwiceIsIdempotent(t *testing.T) {
	svc := newFakeService()
	svc.enrollErr = &fakeStatusErr{status: http.StatusBadRequest, message: "Already enrolled in this course"}
	store := newTestStore(svc, loggedIn())

	res := store.EnrollInCourse(context.Background(), "A", nil)
	if !res.Success {
		t.Fatalf("Success = false for already-enrolled course: %s", res.Message)
	}
	ids := store.Snapshot().EnrolledCourseIDs
	if len(ids) != 1 || ids[0] != "A" {
		t.Errorf("EnrolledCourseIDs = %v, want [A]", ids)
	}
}

func TestStore_EnrollKeepsIDWhenServerListLags(t *testing.T) {
	svc := newFakeService()
	svc.enrollments = []any{map[string]any{"courseId": "B", "accessLevel": "full"}}
	svc.enrollResp = map[string]any{
		"enrollment": map[string]any{"courseId": "A", "accessLevel": "full"},
	}
	store := newTestStore(svc, loggedIn())
	ctx := context.Background()

	store.LoadEnrollments(ctx)
	if res := store.EnrollInCourse(ctx, "A", nil); !res.Success {
		t.Fatalf("enroll failed: %s", res.Message)
	}

	// 服务端列表尚未包含 A
	ids := store.Snapshot().EnrolledCourseIDs
	if len(ids) != 2 || ids[0] != "B" || ids[1] != "A" {
		t.Errorf("EnrolledCourseIDs = %v, want [B A]", ids)
	}
	if svc.listCalls != 2 {
		t.Errorf("list calls = %d, want 2", svc.listCalls)
	}
}

func TestStore_EnrollFailureReportsServerMessage(t *testing.T) {
	svc := newFakeService()
	svc.enrollErr = &fakeStatusErr{status: http.StatusPaymentRequired, message: "Payment required"}
	store := newTestStore(svc, loggedIn())

	res := store.EnrollInCourse(context.Background(), "A", nil)
	if res.Success || res.Message != "Payment required" {
		t.Fatalf("result = %+v, want failure with server message", res)
	}
	if store.Snapshot().Loading {
		t.Error("Loading = true after failed enroll")
	}

	svc.enrollErr = errors.New("connection refused")
	res = store.EnrollInCourse(context.Background(), "A", nil)
	if res.Message != "Enrollment failed" {
		t.Errorf("Message = %q, want generic failure", res.Message)
	}
}

func TestStore_EnrollDuringLoadSurvivesLoadCommit(t *testing.T) {
	svc := newFakeService()
	svc.courses["A"] = courseResponse("A")
	gate := make(chan struct{})
	svc.gates["A"] = gate
	svc.enrollResp = map[string]any{
		"enrollment": map[string]any{"courseId": "A", "accessLevel": "full"},
	}
	store := newTestStore(svc, loggedIn())
	ctx := context.Background()

	done := make(chan struct{})
	go func() {
		store.LoadCourse(ctx, "A")
		close(done)
	}()
	waitStarted(t, svc, "A")

	if res := store.EnrollInCourse(ctx, "A", nil); !res.Success {
		t.Fatalf("enroll failed: %s", res.Message)
	}
	close(gate)
	<-done

	st := store.Snapshot()
	if st.Enrollment == nil || st.Enrollment.AccessLevel != AccessFull {
		t.Fatalf("enrollment = %+v, want full enrollment kept", st.Enrollment)
	}
	if !store.HasFullAccess() {
		t.Error("HasFullAccess = false")
	}
}

func TestStore_UpdateProgressRequiresSessionAndCourse(t *testing.T) {
	svc := newFakeService()
	store := newTestStore(svc, loggedIn())

	res := store.UpdateLessonProgress(context.Background(), "l1", ProgressDelta{Status: StatusCompleted})
	if res.Success || res.Message != "Not authorized" {
		t.Fatalf("result = %+v, want Not authorized", res)
	}

	svc.courses["A"] = courseResponse("A")
	anon := newTestStore(svc, &fakeSessions{})
	anon.LoadCourse(context.Background(), "A")
	<-svc.started
	res = anon.UpdateLessonProgress(context.Background(), "l1", ProgressDelta{Status: StatusCompleted})
	if res.Success {
		t.Fatal("Success = true without session")
	}
	if len(svc.progressCalls) != 0 {
		t.Errorf("progress calls = %d, want 0", len(svc.progressCalls))
	}
}

func TestStore_UpdateProgressOptimistic(t *testing.T) {
	svc := newFakeService()
	svc.courses["A"] = courseResponse("A")
	store := newTestStore(svc, loggedIn())
	ctx := context.Background()
	store.LoadCourse(ctx, "A")
	<-svc.started

	var states []State
	store.Subscribe(func(s State) { states = append(states, s) })

	spent := 120
	res := store.UpdateLessonProgress(ctx, "l1", ProgressDelta{Status: StatusCompleted, TimeSpent: &spent})
	if !res.Success {
		t.Fatalf("update failed: %s", res.Message)
	}
	if len(states) == 0 || states[0].Progress == nil {
		t.Fatal("no optimistic state published before sync")
	}

	p := store.Snapshot().Progress
	if p.CompletedLessons != 1 || p.TotalLessons != 4 || p.OverallPercentage != 25 {
		t.Errorf("progress = %d/%d %d%%, want 1/4 25%%", p.CompletedLessons, p.TotalLessons, p.OverallPercentage)
	}
	if len(svc.progressCalls) != 1 {
		t.Fatalf("progress calls = %d, want 1", len(svc.progressCalls))
	}
	call := svc.progressCalls[0]
	if call.lessonID != "l1" || call.body["courseId"] != "A" || call.body["status"] != "completed" || call.body["timeSpent"] != 120 {
		t.Errorf("call = %+v", call)
	}
}

func TestStore_UpdateProgressMergesEntry(t *testing.T) {
	svc := newFakeService()
	svc.courses["A"] = courseResponse("A")
	store := newTestStore(svc, loggedIn())
	ctx := context.Background()
	store.LoadCourse(ctx, "A")
	<-svc.started

	spent := 30
	store.UpdateLessonProgress(ctx, "l2", ProgressDelta{Status: StatusInProgress, TimeSpent: &spent})
	score := 80.0
	store.UpdateLessonProgress(ctx, "l2", ProgressDelta{Score: &score})

	p := store.Snapshot().Progress
	if len(p.DetailedProgress) != 1 {
		t.Fatalf("entries = %d, want 1", len(p.DetailedProgress))
	}
	e := p.DetailedProgress[0]
	if e.Status != StatusInProgress || e.TimeSpent == nil || *e.TimeSpent != 30 || e.Score == nil || *e.Score != 80 {
		t.Errorf("entry = %+v, want in_progress/30/80", e)
	}

	store.UpdateLessonProgress(ctx, "l3", ProgressDelta{})
	p = store.Snapshot().Progress
	if got := p.DetailedProgress[1].Status; got != StatusNotStarted {
		t.Errorf("new entry status = %s, want not_started", got)
	}
}

func TestStore_UpdateProgressFailureKeepsOptimisticValue(t *testing.T) {
	svc := newFakeService()
	svc.courses["A"] = courseResponse("A")
	svc.progressErr = &fakeStatusErr{status: http.StatusInternalServerError, message: "db down"}
	store := newTestStore(svc, loggedIn())
	ctx := context.Background()
	store.LoadCourse(ctx, "A")
	<-svc.started

	res := store.UpdateLessonProgress(ctx, "l1", ProgressDelta{Status: StatusCompleted})
	if res.Success {
		t.Fatal("Success = true on server failure")
	}
	st := store.Snapshot()
	if !st.ProgressSyncFailed {
		t.Error("ProgressSyncFailed = false")
	}
	if st.Progress.CompletedLessons != 1 {
		t.Errorf("CompletedLessons = %d, want optimistic value 1", st.Progress.CompletedLessons)
	}

	svc.mu.Lock()
	svc.progressErr = nil
	svc.mu.Unlock()
	store.UpdateLessonProgress(ctx, "l2", ProgressDelta{Status: StatusCompleted})
	if store.Snapshot().ProgressSyncFailed {
		t.Error("ProgressSyncFailed not cleared after successful sync")
	}
}

func TestStore_CanViewLesson(t *testing.T) {
	svc := newFakeService()
	svc.courses["A"] = map[string]any{
		"course":     sampleCourse("A"),
		"enrollment": map[string]any{"courseId": "A", "accessLevel": "preview"},
	}
	store := newTestStore(svc, loggedIn())
	store.LoadCourse(context.Background(), "A")
	<-svc.started

	st := store.Snapshot()
	preview := st.Course.Units[0].Lessons[0]
	locked := st.Course.Units[1].Lessons[0]

	if !store.CanViewLesson(preview) {
		t.Error("preview lesson not viewable")
	}
	if !store.IsEnrolled() {
		t.Error("IsEnrolled = false with preview enrollment")
	}

	// 已报名集合同样授予完整访问
	if store.CanViewLesson(locked) != store.HasFullAccess() {
		t.Error("CanViewLesson disagrees with HasFullAccess")
	}
	if !store.CanViewLesson(locked) {
		t.Error("enrolled course lesson not viewable")
	}
}

func TestStore_PreviewOnlyWithoutEnrollment(t *testing.T) {
	svc := newFakeService()
	svc.courses["A"] = courseResponse("A")
	store := newTestStore(svc, &fakeSessions{})
	store.LoadCourse(context.Background(), "A")
	<-svc.started

	c := store.Snapshot().Course
	if !store.CanViewLesson(c.Units[0].Lessons[0]) {
		t.Error("preview lesson not viewable anonymously")
	}
	if store.CanViewLesson(c.Units[0].Lessons[1]) {
		t.Error("locked lesson viewable without enrollment")
	}
}

func TestStore_LoadEnrollmentsWithoutSession(t *testing.T) {
	svc := newFakeService()
	store := newTestStore(svc, &fakeSessions{})
	store.enrolled.Add("stale")

	store.LoadEnrollments(context.Background())
	st := store.Snapshot()
	if len(st.EnrolledCourseIDs) != 0 || !st.EnrollmentsLoaded {
		t.Errorf("ids = %v, loaded = %v, want empty and loaded", st.EnrolledCourseIDs, st.EnrollmentsLoaded)
	}
	if svc.listCalls != 0 {
		t.Errorf("list calls = %d, want 0", svc.listCalls)
	}
}

func TestStore_HandleSessionLogout(t *testing.T) {
	svc := newFakeService()
	svc.courses["A"] = map[string]any{
		"course":     sampleCourse("A"),
		"enrollment": map[string]any{"courseId": "A", "accessLevel": "full"},
	}
	store := newTestStore(svc, loggedIn())
	ctx := context.Background()
	store.LoadCourse(ctx, "A")
	<-svc.started

	store.HandleSessionChange(ctx, false)
	st := store.Snapshot()
	if st.Course != nil || st.Enrollment != nil || len(st.EnrolledCourseIDs) != 0 {
		t.Fatalf("state after logout = %+v", st)
	}
	if st.EnrollmentsLoaded {
		t.Error("EnrollmentsLoaded = true after logout")
	}
}

func TestStore_LogoutDiscardsInFlightEnrollmentList(t *testing.T) {
	svc := newFakeService()
	svc.enrollments = []any{map[string]any{"courseId": "A", "accessLevel": "full"}}
	gate := make(chan struct{})
	svc.listGate = gate
	sessions := loggedIn()
	store := newTestStore(svc, sessions)
	ctx := context.Background()

	done := make(chan struct{})
	go func() {
		store.LoadEnrollments(ctx)
		close(done)
	}()
	select {
	case <-svc.listStarted:
	case <-time.After(2 * time.Second):
		t.Fatal("enrollment list request never started")
	}

	sessions.mu.Lock()
	sessions.active = false
	sessions.mu.Unlock()
	store.HandleSessionChange(ctx, false)
	close(gate)
	<-done

	st := store.Snapshot()
	if len(st.EnrolledCourseIDs) != 0 || st.EnrollmentsLoaded {
		t.Errorf("after logout: ids = %v, enrollmentsLoaded = %v, want empty and not loaded",
			st.EnrolledCourseIDs, st.EnrollmentsLoaded)
	}
	if store.enrolled.Contains("A") {
		t.Error("previous account's enrollment restored after logout")
	}
}

func TestStore_LoginDiscardsCourseLoadFromPreviousAccount(t *testing.T) {
	svc := newFakeService()
	svc.courses["A"] = map[string]any{
		"course":     sampleCourse("A"),
		"enrollment": map[string]any{"courseId": "A", "accessLevel": "full"},
	}
	gate := make(chan struct{})
	svc.gates["A"] = gate
	store := newTestStore(svc, loggedIn())
	ctx := context.Background()

	first := make(chan struct{})
	go func() {
		store.LoadCourse(ctx, "A")
		close(first)
	}()
	waitStarted(t, svc, "A")

	// 新账号在该课程下没有报名
	svc.mu.Lock()
	svc.courses["A"] = courseResponse("A")
	svc.mu.Unlock()

	second := make(chan struct{})
	go func() {
		store.HandleSessionChange(ctx, true)
		close(second)
	}()
	waitStarted(t, svc, "A")
	close(gate)
	<-first
	<-second

	st := store.Snapshot()
	if st.Course == nil || st.Course.ID != "A" {
		t.Fatalf("course = %+v, want A reloaded", st.Course)
	}
	if st.Enrollment != nil {
		t.Errorf("enrollment = %+v, want nil for the new account", st.Enrollment)
	}
	if store.HasFullAccess() {
		t.Error("HasFullAccess = true from previous account's response")
	}
}

func TestStore_CloseDiscardsInFlightResponse(t *testing.T) {
	svc := newFakeService()
	svc.courses["A"] = courseResponse("A")
	gate := make(chan struct{})
	svc.gates["A"] = gate
	store := newTestStore(svc, loggedIn())

	done := make(chan struct{})
	go func() {
		store.LoadCourse(context.Background(), "A")
		close(done)
	}()
	waitStarted(t, svc, "A")
	store.Close()
	close(gate)
	<-done

	if st := store.Snapshot(); st.Course != nil {
		t.Errorf("course = %s after Close, want nil", st.Course.ID)
	}
}
