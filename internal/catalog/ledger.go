package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"learnhub/internal/logger"

	"github.com/google/uuid"
)

// ErrInvalidStatus 课时状态取值非法
var ErrInvalidStatus = errors.New("invalid lesson status")

// Ledger 报名与课时进度的持久化存储
type Ledger interface {
	// Enroll 报名课程，对同一用户同一课程幂等
	// created 为 false 表示记录已存在（可能被升级为完整访问）
	Enroll(ctx context.Context, userID string, c *CourseDoc, payment map[string]string) (rec EnrollmentRecord, created bool, err error)
	// Enrollment 查询单条报名记录
	Enrollment(ctx context.Context, userID, courseID string) (EnrollmentRecord, bool, error)
	// Enrollments 查询用户全部报名记录，按报名时间排序
	Enrollments(ctx context.Context, userID string) ([]EnrollmentRecord, error)
	// SaveLesson 合并课时进度增量
	SaveLesson(ctx context.Context, userID, courseID, lessonID string, u LessonUpdate) (LessonRecord, error)
	// Lessons 查询用户在课程中的全部课时进度
	Lessons(ctx context.Context, userID, courseID string) ([]LessonRecord, error)
	// AddComment 保存评论，ID 与创建时间由存储生成
	AddComment(ctx context.Context, rec CommentRecord) (CommentRecord, error)
	// Comment 查询单条评论
	Comment(ctx context.Context, id string) (CommentRecord, bool, error)
	// Comments 查询课程评论，lessonID 为空时返回整门课程的评论，按发表时间排序
	Comments(ctx context.Context, courseID, lessonID string) ([]CommentRecord, error)
	// DeleteComment 删除评论及其全部回复，返回删除条数
	DeleteComment(ctx context.Context, id string) (int, error)
	Close()
}

// Grant 根据课程价格与支付信息决定访问级别
// 免费课程直接完整访问；付费课程需携带支付信息，否则仅可试看
func Grant(c *CourseDoc, payment map[string]string) (accessLevel, paymentStatus string) {
	if c.Price <= 0 {
		return "full", "free"
	}
	if len(payment) > 0 {
		return "full", "completed"
	}
	return "preview", "pending"
}

// validStatus 校验课时状态
func validStatus(s string) bool {
	switch s {
	case "not_started", "in_progress", "completed":
		return true
	}
	return false
}

// mergeLesson 将增量合并到已有记录；首次记录状态默认为 not_started
func mergeLesson(existing *LessonRecord, userID, courseID, lessonID string, u LessonUpdate, now time.Time) (LessonRecord, error) {
	if u.Status != "" && !validStatus(u.Status) {
		return LessonRecord{}, fmt.Errorf("%w: %q", ErrInvalidStatus, u.Status)
	}
	rec := LessonRecord{
		UserID:    userID,
		CourseID:  courseID,
		LessonID:  lessonID,
		Status:    "not_started",
		StartedAt: now,
	}
	if existing != nil {
		rec = *existing
	}
	if u.Status != "" {
		rec.Status = u.Status
	}
	if u.TimeSpent != nil {
		rec.TimeSpent = *u.TimeSpent
	}
	if u.Score != nil {
		v := *u.Score
		rec.Score = &v
	}
	switch {
	case rec.Status == "completed" && rec.CompletedAt == nil:
		rec.CompletedAt = &now
	case rec.Status != "completed":
		rec.CompletedAt = nil
	}
	rec.UpdatedAt = now
	return rec, nil
}

// FileLedger 基于 JSON 文件的账本
// 使用文件存储和 sync.Mutex 确保并发安全
type FileLedger struct {
	filePath string
	mu       sync.Mutex
	logger   *logger.Logger
}

// ledgerFile 账本文件结构
type ledgerFile struct {
	Version     string                      `json:"version"`
	UpdatedAt   time.Time                   `json:"updated_at"`
	Enrollments map[string]EnrollmentRecord `json:"enrollments"` // key: "userID:courseID"
	Lessons     map[string]LessonRecord     `json:"lessons"`     // key: "userID:courseID:lessonID"
	Comments    map[string]CommentRecord    `json:"comments"`    // key: commentID
}

// NewFileLedger 创建文件账本
// 参数:
//
//	filePath: 账本文件路径 (例如 "data/ledger.json")
//	loggerInstance: 日志记录器实例
func NewFileLedger(filePath string, loggerInstance *logger.Logger) *FileLedger {
	return &FileLedger{
		filePath: filePath,
		logger:   loggerInstance,
	}
}

// Enroll 报名课程
func (fl *FileLedger) Enroll(ctx context.Context, userID string, c *CourseDoc, payment map[string]string) (EnrollmentRecord, bool, error) {
	fl.mu.Lock()
	defer fl.mu.Unlock()

	store, err := fl.readLedgerFile()
	if err != nil {
		return EnrollmentRecord{}, false, err
	}

	now := time.Now()
	key := enrollmentKey(userID, c.ID)
	level, paymentStatus := Grant(c, payment)

	if existing, ok := store.Enrollments[key]; ok {
		// 已有试看记录且本次满足完整访问条件时升级
		if existing.AccessLevel == "full" || level != "full" {
			return existing, false, nil
		}
		existing.AccessLevel = level
		existing.PaymentStatus = paymentStatus
		existing.Payment = payment
		existing.UpdatedAt = now
		store.Enrollments[key] = existing
		if err := fl.writeLedgerFile(store); err != nil {
			return EnrollmentRecord{}, false, err
		}
		fl.logger.Debug("升级报名记录: userID=%s, courseID=%s", userID, c.ID)
		return existing, false, nil
	}

	rec := EnrollmentRecord{
		ID:            uuid.NewString(),
		UserID:        userID,
		CourseID:      c.ID,
		AccessLevel:   level,
		PaymentStatus: paymentStatus,
		Status:        "active",
		Payment:       payment,
		EnrolledAt:    now,
		UpdatedAt:     now,
	}
	store.Enrollments[key] = rec
	if err := fl.writeLedgerFile(store); err != nil {
		return EnrollmentRecord{}, false, err
	}
	fl.logger.Debug("保存报名记录成功: userID=%s, courseID=%s, accessLevel=%s", userID, c.ID, level)
	return rec, true, nil
}

// Enrollment 查询单条报名记录
func (fl *FileLedger) Enrollment(ctx context.Context, userID, courseID string) (EnrollmentRecord, bool, error) {
	fl.mu.Lock()
	defer fl.mu.Unlock()

	store, err := fl.readLedgerFile()
	if err != nil {
		return EnrollmentRecord{}, false, err
	}
	rec, ok := store.Enrollments[enrollmentKey(userID, courseID)]
	return rec, ok, nil
}

// Enrollments 查询用户全部报名记录
func (fl *FileLedger) Enrollments(ctx context.Context, userID string) ([]EnrollmentRecord, error) {
	fl.mu.Lock()
	defer fl.mu.Unlock()

	store, err := fl.readLedgerFile()
	if err != nil {
		return nil, err
	}
	out := make([]EnrollmentRecord, 0)
	for _, rec := range store.Enrollments {
		if rec.UserID == userID {
			out = append(out, rec)
		}
	}
	sortEnrollments(out)
	return out, nil
}

// SaveLesson 合并课时进度
func (fl *FileLedger) SaveLesson(ctx context.Context, userID, courseID, lessonID string, u LessonUpdate) (LessonRecord, error) {
	fl.mu.Lock()
	defer fl.mu.Unlock()

	store, err := fl.readLedgerFile()
	if err != nil {
		return LessonRecord{}, err
	}

	key := lessonKey(userID, courseID, lessonID)
	var existing *LessonRecord
	if rec, ok := store.Lessons[key]; ok {
		existing = &rec
	}
	rec, err := mergeLesson(existing, userID, courseID, lessonID, u, time.Now())
	if err != nil {
		return LessonRecord{}, err
	}
	store.Lessons[key] = rec
	if err := fl.writeLedgerFile(store); err != nil {
		return LessonRecord{}, err
	}

	fl.logger.Debug("保存课时进度成功: userID=%s, lessonID=%s, status=%s", userID, lessonID, rec.Status)
	return rec, nil
}

// Lessons 查询课程内全部课时进度
func (fl *FileLedger) Lessons(ctx context.Context, userID, courseID string) ([]LessonRecord, error) {
	fl.mu.Lock()
	defer fl.mu.Unlock()

	store, err := fl.readLedgerFile()
	if err != nil {
		return nil, err
	}
	out := make([]LessonRecord, 0)
	for _, rec := range store.Lessons {
		if rec.UserID == userID && rec.CourseID == courseID {
			out = append(out, rec)
		}
	}
	return out, nil
}

// AddComment 保存评论
func (fl *FileLedger) AddComment(ctx context.Context, rec CommentRecord) (CommentRecord, error) {
	fl.mu.Lock()
	defer fl.mu.Unlock()

	store, err := fl.readLedgerFile()
	if err != nil {
		return CommentRecord{}, err
	}
	rec.ID = uuid.NewString()
	rec.CreatedAt = time.Now()
	store.Comments[rec.ID] = rec
	if err := fl.writeLedgerFile(store); err != nil {
		return CommentRecord{}, err
	}
	fl.logger.Debug("保存评论成功: courseID=%s, commentID=%s", rec.CourseID, rec.ID)
	return rec, nil
}

// Comment 查询单条评论
func (fl *FileLedger) Comment(ctx context.Context, id string) (CommentRecord, bool, error) {
	fl.mu.Lock()
	defer fl.mu.Unlock()

	store, err := fl.readLedgerFile()
	if err != nil {
		return CommentRecord{}, false, err
	}
	rec, ok := store.Comments[id]
	return rec, ok, nil
}

// Comments 查询课程评论
func (fl *FileLedger) Comments(ctx context.Context, courseID, lessonID string) ([]CommentRecord, error) {
	fl.mu.Lock()
	defer fl.mu.Unlock()

	store, err := fl.readLedgerFile()
	if err != nil {
		return nil, err
	}
	out := make([]CommentRecord, 0)
	for _, rec := range store.Comments {
		if rec.CourseID != courseID || (lessonID != "" && rec.LessonID != lessonID) {
			continue
		}
		out = append(out, rec)
	}
	sortComments(out)
	return out, nil
}

// DeleteComment 删除评论及其回复
func (fl *FileLedger) DeleteComment(ctx context.Context, id string) (int, error) {
	fl.mu.Lock()
	defer fl.mu.Unlock()

	store, err := fl.readLedgerFile()
	if err != nil {
		return 0, err
	}
	if _, ok := store.Comments[id]; !ok {
		return 0, nil
	}
	// 逐层收集回复，直到没有新的子评论
	doomed := map[string]bool{id: true}
	for grew := true; grew; {
		grew = false
		for cid, rec := range store.Comments {
			if !doomed[cid] && doomed[rec.ParentID] {
				doomed[cid] = true
				grew = true
			}
		}
	}
	for cid := range doomed {
		delete(store.Comments, cid)
	}
	if err := fl.writeLedgerFile(store); err != nil {
		return 0, err
	}
	return len(doomed), nil
}

// Close 文件账本无需释放资源
func (fl *FileLedger) Close() {}

// readLedgerFile 读取账本文件
// 文件不存在或格式错误时返回空账本
func (fl *FileLedger) readLedgerFile() (*ledgerFile, error) {
	empty := &ledgerFile{
		Version:     "1.0",
		UpdatedAt:   time.Now(),
		Enrollments: make(map[string]EnrollmentRecord),
		Lessons:     make(map[string]LessonRecord),
		Comments:    make(map[string]CommentRecord),
	}
	if _, err := os.Stat(fl.filePath); os.IsNotExist(err) {
		return empty, nil
	}

	data, err := os.ReadFile(fl.filePath)
	if err != nil {
		return nil, fmt.Errorf("读取账本文件失败: %w", err)
	}

	var store ledgerFile
	if err := json.Unmarshal(data, &store); err != nil {
		fl.logger.Warn("账本文件格式错误，将重新初始化: %v", err)
		return empty, nil
	}
	if store.Enrollments == nil {
		store.Enrollments = make(map[string]EnrollmentRecord)
	}
	if store.Lessons == nil {
		store.Lessons = make(map[string]LessonRecord)
	}
	if store.Comments == nil {
		store.Comments = make(map[string]CommentRecord)
	}
	return &store, nil
}

// writeLedgerFile 写入账本文件
func (fl *FileLedger) writeLedgerFile(store *ledgerFile) error {
	store.UpdatedAt = time.Now()
	data, err := json.MarshalIndent(store, "", "  ")
	if err != nil {
		return fmt.Errorf("序列化账本数据失败: %w", err)
	}
	if dir := filepath.Dir(fl.filePath); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("创建账本目录失败: %w", err)
		}
	}
	if err := os.WriteFile(fl.filePath, data, 0o644); err != nil {
		return fmt.Errorf("写入账本文件失败: %w", err)
	}
	return nil
}

func enrollmentKey(userID, courseID string) string {
	return fmt.Sprintf("%s:%s", userID, courseID)
}

func lessonKey(userID, courseID, lessonID string) string {
	return fmt.Sprintf("%s:%s:%s", userID, courseID, lessonID)
}
