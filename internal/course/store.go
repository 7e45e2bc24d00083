package course

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"sync"

	"learnhub/internal/logger"
	"learnhub/internal/session"
)

// Service 远程课程服务，*remote.Client 实现了该接口
type Service interface {
	GetCourse(ctx context.Context, courseID, token string) (map[string]any, error)
	ListEnrollments(ctx context.Context, token string) (map[string]any, error)
	Enroll(ctx context.Context, courseID, token string, payment map[string]any) (map[string]any, error)
	UpdateLessonProgress(ctx context.Context, lessonID, token string, body map[string]any) error
}

// statusError 带 HTTP 状态与服务端说明的错误
type statusError interface {
	HTTPStatus() int
	ServerMessage() string
}

// State 某一时刻的课程状态快照
type State struct {
	Course             *Course     `json:"course,omitempty"`
	Enrollment         *Enrollment `json:"enrollment,omitempty"`
	Progress           *Progress   `json:"progress,omitempty"`
	EnrolledCourseIDs  []string    `json:"enrolledCourseIds"`
	Loading            bool        `json:"loading"`
	Loaded             bool        `json:"loaded"`
	EnrollmentsLoaded  bool        `json:"enrollmentsLoaded"`
	ProgressSyncFailed bool        `json:"progressSyncFailed"`
}

// localEdit 课程加载期间产生的乐观进度修改
type localEdit struct {
	entry LessonProgress
	seq   uint64
}

// Store 当前查看课程的状态容器
// 保存课程结构、报名记录与进度，协调远程请求并丢弃过期响应
type Store struct {
	mu       sync.Mutex
	svc      Service
	sessions session.Provider
	enrolled *EnrolledSet
	logger   *logger.Logger

	course     *Course
	enrollment *Enrollment
	progress   *Progress
	loaded     bool
	syncFailed bool
	pending    int
	closed     bool

	requestedID string
	loadGen     uint64 // 每次 LoadCourse 递增，提交时不一致即丢弃
	enrollSeq   uint64 // 每次本地报名成功递增
	editSeq     uint64 // 每次乐观进度修改递增
	edits       map[string]localEdit
	listGen     uint64
	listDone    uint64
	sessionGen  uint64 // 登录或登出时递增，之前发起的列表请求作废

	listeners []func(State)
}

// NewStore 创建课程状态容器
// 参数:
//
//	svc: 远程课程服务
//	sessions: 会话提供者，用于获取令牌
//	enrolled: 全局已报名课程集合，多个 Store 可共享
//	loggerInstance: 日志记录器实例
func NewStore(svc Service, sessions session.Provider, enrolled *EnrolledSet, loggerInstance *logger.Logger) *Store {
	if enrolled == nil {
		enrolled = NewEnrolledSet()
	}
	return &Store{
		svc:      svc,
		sessions: sessions,
		enrolled: enrolled,
		logger:   loggerInstance,
		edits:    make(map[string]localEdit),
	}
}

// Subscribe 注册状态变更回调，回调在锁外执行
func (s *Store) Subscribe(fn func(State)) {
	s.mu.Lock()
	s.listeners = append(s.listeners, fn)
	s.mu.Unlock()
}

func (s *Store) notify() {
	s.mu.Lock()
	listeners := append([]func(State){}, s.listeners...)
	s.mu.Unlock()
	if len(listeners) == 0 {
		return
	}
	st := s.Snapshot()
	for _, fn := range listeners {
		fn(st)
	}
}

// Snapshot 返回当前状态副本
func (s *Store) Snapshot() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := State{
		Course:             s.course,
		Progress:           s.progress.clone(),
		EnrolledCourseIDs:  s.enrolled.IDs(),
		Loading:            s.pending > 0,
		Loaded:             s.loaded,
		EnrollmentsLoaded:  s.enrolled.Ready(),
		ProgressSyncFailed: s.syncFailed,
	}
	if s.enrollment != nil {
		e := *s.enrollment
		st.Enrollment = &e
	}
	return st
}

// token 返回当前会话令牌，未登录时为空
func (s *Store) token() (string, bool) {
	if s.sessions == nil {
		return "", false
	}
	sess, ok := s.sessions.Current()
	if !ok || sess.Token == "" {
		return "", false
	}
	return sess.Token, true
}

// LoadCourse 加载课程结构及（登录时）报名与进度
// 切换到不同课程时先清空旧状态；较晚发起的加载总是胜出
// 失败时课程状态置空并标记为已加载，不返回错误
func (s *Store) LoadCourse(ctx context.Context, courseID string) {
	courseID = strings.TrimSpace(courseID)
	if courseID == "" {
		return
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.loadGen++
	gen := s.loadGen
	s.requestedID = courseID
	if s.course != nil && s.course.ID != courseID {
		s.clearCourseLocked()
	}
	enrollMark := s.enrollSeq
	editMark := s.editSeq
	s.pending++
	s.mu.Unlock()
	s.notify()

	token, _ := s.token()
	var resp *CourseResponse
	payload, err := s.svc.GetCourse(ctx, courseID, token)
	if err == nil {
		resp, err = ParseCourseResponse(payload)
	}

	s.mu.Lock()
	s.pending--
	if s.closed || gen != s.loadGen || s.requestedID != courseID {
		s.mu.Unlock()
		s.logger.Debug("discard stale course response: %s", courseID)
		s.notify()
		return
	}
	if err != nil {
		s.clearCourseLocked()
		s.loaded = true
		s.mu.Unlock()
		s.logger.Warn("加载课程失败 %s: %v", courseID, err)
		s.notify()
		return
	}

	c := resp.Course
	s.course = c
	s.loaded = true

	// 加载期间本地报名成功的记录比响应更新
	keepLocal := s.enrollSeq != enrollMark && s.enrollment != nil && s.enrollment.CourseID == c.ID
	switch {
	case keepLocal:
	case resp.Enrollment != nil && resp.Enrollment.CourseID == c.ID:
		s.enrollment = resp.Enrollment
	default:
		s.enrollment = nil
	}

	if resp.Progress != nil {
		s.progress = resp.Progress
	} else if s.editSeq == editMark {
		s.progress = nil
	}
	s.reapplyEditsLocked(editMark)
	s.syncFailed = false
	if s.enrollment != nil {
		s.enrolled.Add(s.enrollment.CourseID)
	}
	s.mu.Unlock()

	s.logger.Debug("course loaded: %s (%d units)", c.ID, len(c.Units))
	s.notify()
}

// reapplyEditsLocked 把加载期间产生的乐观修改合并回新进度
func (s *Store) reapplyEditsLocked(since uint64) {
	for id, e := range s.edits {
		if e.seq <= since {
			delete(s.edits, id)
			continue
		}
		if s.progress == nil {
			s.progress = s.skeletonLocked()
		}
		s.progress.DetailedProgress = upsertEntry(s.progress.DetailedProgress, e.entry)
	}
	recount(s.progress, s.course)
}

func (s *Store) clearCourseLocked() {
	s.course = nil
	s.enrollment = nil
	s.progress = nil
	s.loaded = false
	s.syncFailed = false
	s.edits = make(map[string]localEdit)
}

// skeletonLocked 为尚无进度记录的课程创建空进度
func (s *Store) skeletonLocked() *Progress {
	p := &Progress{DetailedProgress: []LessonProgress{}}
	if s.course != nil {
		p.CourseID = s.course.ID
		p.CourseName = s.course.Title
		p.TotalLessons = len(s.course.lessonIDs())
	}
	return p
}

// LoadEnrollments 从服务端重建已报名课程集合
// 未登录时集合为空；请求失败时保留原有集合
func (s *Store) LoadEnrollments(ctx context.Context) {
	s.loadEnrollments(ctx, s.enrolled.Epoch())
}

// loadEnrollments since 之后本地追加的 ID 在整体重建时保留
// 会话在请求期间发生变化时丢弃响应
func (s *Store) loadEnrollments(ctx context.Context, since Epoch) {
	token, ok := s.token()
	if !ok {
		s.enrolled.Replace(nil, s.enrolled.Epoch())
		s.enrolled.MarkReady()
		s.notify()
		return
	}

	s.mu.Lock()
	s.listGen++
	gen := s.listGen
	sessionGen := s.sessionGen
	s.mu.Unlock()

	var list []Enrollment
	payload, err := s.svc.ListEnrollments(ctx, token)
	if err == nil {
		list, err = ParseEnrollmentList(payload)
	}

	// 集合的重建与会话重置都在 s.mu 内完成
	s.mu.Lock()
	if gen < s.listDone || sessionGen != s.sessionGen {
		s.mu.Unlock()
		s.logger.Debug("discard stale enrollment list")
		return
	}
	s.listDone = gen
	if err != nil {
		s.enrolled.MarkReady()
		s.mu.Unlock()
		s.logger.Warn("加载报名列表失败: %v", err)
		s.notify()
		return
	}

	ids := make([]string, 0, len(list))
	for _, e := range list {
		ids = append(ids, e.CourseID)
	}
	s.enrolled.Replace(ids, since)
	s.enrolled.MarkReady()
	s.mu.Unlock()
	s.notify()
}

// EnrollInCourse 报名课程
// 成功后更新当前课程的报名记录、追加到已报名集合并刷新集合
// 对已报名课程重复报名视为成功
func (s *Store) EnrollInCourse(ctx context.Context, courseID string, payment map[string]any) Result {
	token, ok := s.token()
	if !ok {
		return Result{Success: false, Message: "Please log in to enroll."}
	}
	courseID = strings.TrimSpace(courseID)
	if courseID == "" {
		return Result{Success: false, Message: "course id is required"}
	}

	s.mu.Lock()
	s.pending++
	sessionGen := s.sessionGen
	s.mu.Unlock()
	s.notify()

	payload, err := s.svc.Enroll(ctx, courseID, token, payment)
	var e *Enrollment
	if err == nil {
		raw, ok := payload["enrollment"].(map[string]any)
		if !ok {
			err = &ParseError{Payload: "enroll response", Field: "enrollment", Reason: "missing object"}
		} else {
			e, err = ParseEnrollment(raw)
		}
	}

	if err != nil {
		already := alreadyEnrolled(err)
		s.mu.Lock()
		s.pending--
		if already && s.enrollment != nil && s.enrollment.CourseID == courseID {
			cp := *s.enrollment
			e = &cp
		}
		since := s.enrolled.Epoch()
		if already && sessionGen == s.sessionGen {
			s.enrolled.Add(courseID)
		}
		s.mu.Unlock()
		if !already {
			s.logger.Warn("报名失败 %s: %v", courseID, err)
			s.notify()
			return Result{Success: false, Message: failureMessage(err, "Enrollment failed")}
		}
		s.logger.Info("already enrolled in %s", courseID)
		s.notify()
		s.loadEnrollments(ctx, since)
		return Result{Success: true, Message: "Already enrolled", Enrollment: e}
	}

	s.mu.Lock()
	s.pending--
	current := sessionGen == s.sessionGen
	if current && !s.closed && (s.requestedID == e.CourseID || s.requestedID == courseID ||
		(s.course != nil && s.course.ID == e.CourseID)) {
		s.enrollment = e
		s.enrollSeq++
	}
	// 报名前的序号，随后的列表刷新据此保留刚追加的 ID
	since := s.enrolled.Epoch()
	if current {
		s.enrolled.Add(e.CourseID)
	}
	s.mu.Unlock()

	s.logger.Info("enrolled in %s (%s)", e.CourseID, e.AccessLevel)
	s.notify()

	s.loadEnrollments(ctx, since)
	cp := *e
	return Result{Success: true, Enrollment: &cp}
}

// UpdateLessonProgress 更新课时进度
// 先在本地乐观合并再上报服务端；上报失败时保留本地值并标记同步失败
func (s *Store) UpdateLessonProgress(ctx context.Context, lessonID string, delta ProgressDelta) Result {
	token, ok := s.token()
	lessonID = strings.TrimSpace(lessonID)

	s.mu.Lock()
	if !ok || s.course == nil {
		s.mu.Unlock()
		return Result{Success: false, Message: "Not authorized"}
	}
	if lessonID == "" {
		s.mu.Unlock()
		return Result{Success: false, Message: "lesson id is required"}
	}
	courseID := s.course.ID
	if s.progress == nil {
		s.progress = s.skeletonLocked()
	}
	entry := mergeDelta(s.progress.DetailedProgress, lessonID, delta)
	s.progress.DetailedProgress = upsertEntry(s.progress.DetailedProgress, entry)
	recount(s.progress, s.course)
	s.editSeq++
	s.edits[lessonID] = localEdit{entry: entry, seq: s.editSeq}
	s.mu.Unlock()
	s.notify()

	err := s.svc.UpdateLessonProgress(ctx, lessonID, token, progressBody(courseID, delta))

	s.mu.Lock()
	sameCourse := s.course != nil && s.course.ID == courseID
	if sameCourse {
		s.syncFailed = err != nil
	}
	s.mu.Unlock()
	s.notify()

	if err != nil {
		s.logger.Warn("进度同步失败 %s/%s: %v", courseID, lessonID, err)
		return Result{Success: false, Message: failureMessage(err, "Failed to update progress")}
	}
	return Result{Success: true}
}

// mergeDelta 将增量合并到已有条目；缺省字段沿用旧值，新条目状态默认为 not_started
func mergeDelta(list []LessonProgress, lessonID string, delta ProgressDelta) LessonProgress {
	entry := LessonProgress{LessonID: lessonID, Status: StatusNotStarted}
	for _, lp := range list {
		if lp.LessonID == lessonID {
			entry = lp
			break
		}
	}
	if delta.Status != "" {
		entry.Status = delta.Status
	}
	if delta.TimeSpent != nil {
		t := *delta.TimeSpent
		entry.TimeSpent = &t
	}
	if delta.Score != nil {
		v := *delta.Score
		entry.Score = &v
	}
	return entry
}

// progressBody 构造 POST /progress/lesson/{id} 请求体
func progressBody(courseID string, delta ProgressDelta) map[string]any {
	body := map[string]any{"courseId": courseID}
	if delta.Status != "" {
		body["status"] = string(delta.Status)
	}
	if delta.TimeSpent != nil {
		body["timeSpent"] = *delta.TimeSpent
	}
	if delta.Score != nil {
		body["score"] = *delta.Score
	}
	if delta.QuizAnswers != nil {
		body["quizAnswers"] = delta.QuizAnswers
	}
	if delta.CodingSubmission != nil {
		body["codingSubmission"] = delta.CodingSubmission
	}
	if delta.SubmissionID != "" {
		body["submissionId"] = delta.SubmissionID
	}
	return body
}

// SetProgress 直接替换进度（例如单独拉取进度汇总后）
func (s *Store) SetProgress(p *Progress) {
	s.mu.Lock()
	s.progress = p.clone()
	recount(s.progress, s.course)
	s.mu.Unlock()
	s.notify()
}

// IsEnrolled 当前课程是否已报名（任意访问级别）
func (s *Store) IsEnrolled() bool {
	s.mu.Lock()
	c, e := s.course, s.enrollment
	s.mu.Unlock()
	if c == nil {
		return false
	}
	return (e != nil && e.CourseID == c.ID) || s.enrolled.Contains(c.ID)
}

// HasFullAccess 当前课程是否可访问全部内容
// 报名记录为 full，或课程 ID 出现在已报名集合中
func (s *Store) HasFullAccess() bool {
	s.mu.Lock()
	c, e := s.course, s.enrollment
	s.mu.Unlock()
	if c == nil {
		return false
	}
	if e != nil && e.CourseID == c.ID && e.AccessLevel == AccessFull {
		return true
	}
	return s.enrolled.Contains(c.ID)
}

// CanViewLesson 课时是否可查看：拥有完整访问权限或课时为试看
func (s *Store) CanViewLesson(l Lesson) bool {
	return l.IsPreview || s.HasFullAccess()
}

// Summary 当前课程的完成情况
func (s *Store) Summary() Summary {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Summarize(s.course, s.progress)
}

// HandleSessionChange 会话变化时调用
// 登出时清空课程状态与已报名集合，登录时重新加载报名列表与当前课程
// 两种情况下在途的课程与列表请求都会作废，避免上一个账号的数据落到当前会话
func (s *Store) HandleSessionChange(ctx context.Context, active bool) {
	if active {
		s.mu.Lock()
		s.sessionGen++
		s.loadGen++
		courseID := s.requestedID
		closed := s.closed
		s.mu.Unlock()
		s.LoadEnrollments(ctx)
		if courseID != "" && !closed {
			s.LoadCourse(ctx, courseID)
		}
		return
	}
	s.mu.Lock()
	s.sessionGen++
	s.loadGen++
	s.clearCourseLocked()
	s.requestedID = ""
	s.enrolled.Reset()
	s.mu.Unlock()
	s.notify()
}

// Close 停止接收任何在途请求的结果
func (s *Store) Close() {
	s.mu.Lock()
	s.closed = true
	s.loadGen++
	s.mu.Unlock()
}

// alreadyEnrolled 判断报名失败是否因为已经报名
func alreadyEnrolled(err error) bool {
	var se statusError
	if !errors.As(err, &se) {
		return false
	}
	if se.HTTPStatus() == http.StatusConflict {
		return true
	}
	return se.HTTPStatus() == http.StatusBadRequest &&
		strings.Contains(strings.ToLower(se.ServerMessage()), "already enrolled")
}

// failureMessage 优先使用服务端给出的说明
func failureMessage(err error, fallback string) string {
	var se statusError
	if errors.As(err, &se) && se.ServerMessage() != "" {
		return se.ServerMessage()
	}
	return fallback
}
