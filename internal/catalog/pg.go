package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"learnhub/internal/logger"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const pgSchema = `
CREATE TABLE IF NOT EXISTS enrollments (
	id             TEXT PRIMARY KEY,
	user_id        TEXT NOT NULL,
	course_id      TEXT NOT NULL,
	access_level   TEXT NOT NULL,
	payment_status TEXT NOT NULL,
	status         TEXT NOT NULL,
	payment        JSONB,
	enrolled_at    TIMESTAMPTZ NOT NULL,
	updated_at     TIMESTAMPTZ NOT NULL,
	UNIQUE (user_id, course_id)
);
CREATE TABLE IF NOT EXISTS lesson_progress (
	user_id      TEXT NOT NULL,
	course_id    TEXT NOT NULL,
	lesson_id    TEXT NOT NULL,
	status       TEXT NOT NULL,
	time_spent   INTEGER NOT NULL DEFAULT 0,
	score        DOUBLE PRECISION,
	started_at   TIMESTAMPTZ NOT NULL,
	completed_at TIMESTAMPTZ,
	updated_at   TIMESTAMPTZ NOT NULL,
	PRIMARY KEY (user_id, course_id, lesson_id)
);
CREATE TABLE IF NOT EXISTS comments (
	id         TEXT PRIMARY KEY,
	course_id  TEXT NOT NULL,
	lesson_id  TEXT NOT NULL DEFAULT '',
	parent_id  TEXT NOT NULL DEFAULT '',
	user_id    TEXT NOT NULL,
	user_name  TEXT NOT NULL,
	user_role  TEXT NOT NULL,
	content    TEXT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS comments_course_idx ON comments (course_id, lesson_id);`

// PGLedger 基于 PostgreSQL 的账本
type PGLedger struct {
	pool   *pgxpool.Pool
	logger *logger.Logger
}

// OpenPGLedger 连接数据库并初始化表结构
// 采用短时快速探测：1 秒内最多尝试 3 次，失败立即返回，由调用方回退到文件账本
func OpenPGLedger(ctx context.Context, dsn string, loggerInstance *logger.Logger) (*PGLedger, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse dsn failed: %w", err)
	}
	cfg.MaxConns = 4

	attempts := 3
	interval := 300 * time.Millisecond
	deadline := time.Now().Add(1 * time.Second)

	var lastErr error
	for i := 0; i < attempts && time.Now().Before(deadline); i++ {
		attemptCtx, cancel := context.WithTimeout(ctx, 500*time.Millisecond)
		pool, err := pgxpool.NewWithConfig(attemptCtx, cfg)
		if err == nil {
			var one int
			err = pool.QueryRow(attemptCtx, "SELECT 1").Scan(&one)
			if err == nil && one == 1 {
				cancel()
				l := &PGLedger{pool: pool, logger: loggerInstance}
				if err := l.migrate(ctx); err != nil {
					pool.Close()
					return nil, err
				}
				return l, nil
			}
			pool.Close()
		}
		lastErr = err
		cancel()
		time.Sleep(interval)
	}
	return nil, fmt.Errorf("database not ready (quick connectivity check failed): %w", lastErr)
}

func (l *PGLedger) migrate(ctx context.Context) error {
	if _, err := l.pool.Exec(ctx, pgSchema); err != nil {
		return fmt.Errorf("初始化账本表失败: %w", err)
	}
	return nil
}

const enrollmentColumns = `id, user_id, course_id, access_level, payment_status, status, payment, enrolled_at, updated_at`

func scanEnrollment(row pgx.Row) (EnrollmentRecord, error) {
	var rec EnrollmentRecord
	var payment []byte
	err := row.Scan(&rec.ID, &rec.UserID, &rec.CourseID, &rec.AccessLevel, &rec.PaymentStatus,
		&rec.Status, &payment, &rec.EnrolledAt, &rec.UpdatedAt)
	if err != nil {
		return rec, err
	}
	if len(payment) > 0 {
		if err := json.Unmarshal(payment, &rec.Payment); err != nil {
			return rec, fmt.Errorf("decode payment: %w", err)
		}
	}
	return rec, nil
}

// Enroll 报名课程
func (l *PGLedger) Enroll(ctx context.Context, userID string, c *CourseDoc, payment map[string]string) (EnrollmentRecord, bool, error) {
	existing, ok, err := l.Enrollment(ctx, userID, c.ID)
	if err != nil {
		return EnrollmentRecord{}, false, err
	}
	level, paymentStatus := Grant(c, payment)
	paymentJSON, err := json.Marshal(payment)
	if err != nil {
		return EnrollmentRecord{}, false, err
	}
	now := time.Now()

	if ok {
		if existing.AccessLevel == "full" || level != "full" {
			return existing, false, nil
		}
		row := l.pool.QueryRow(ctx, `
			UPDATE enrollments SET access_level = $1, payment_status = $2, payment = $3, updated_at = $4
			WHERE user_id = $5 AND course_id = $6
			RETURNING `+enrollmentColumns,
			level, paymentStatus, paymentJSON, now, userID, c.ID)
		rec, err := scanEnrollment(row)
		return rec, false, err
	}

	row := l.pool.QueryRow(ctx, `
		INSERT INTO enrollments (`+enrollmentColumns+`)
		VALUES ($1, $2, $3, $4, $5, 'active', $6, $7, $7)
		ON CONFLICT (user_id, course_id) DO UPDATE SET updated_at = enrollments.updated_at
		RETURNING `+enrollmentColumns,
		uuid.NewString(), userID, c.ID, level, paymentStatus, paymentJSON, now)
	rec, err := scanEnrollment(row)
	if err != nil {
		return EnrollmentRecord{}, false, fmt.Errorf("保存报名记录失败: %w", err)
	}
	l.logger.Debug("保存报名记录成功: userID=%s, courseID=%s, accessLevel=%s", userID, c.ID, rec.AccessLevel)
	return rec, true, nil
}

// Enrollment 查询单条报名记录
func (l *PGLedger) Enrollment(ctx context.Context, userID, courseID string) (EnrollmentRecord, bool, error) {
	row := l.pool.QueryRow(ctx,
		`SELECT `+enrollmentColumns+` FROM enrollments WHERE user_id = $1 AND course_id = $2`, userID, courseID)
	rec, err := scanEnrollment(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return EnrollmentRecord{}, false, nil
	}
	if err != nil {
		return EnrollmentRecord{}, false, fmt.Errorf("查询报名记录失败: %w", err)
	}
	return rec, true, nil
}

// Enrollments 查询用户全部报名记录
func (l *PGLedger) Enrollments(ctx context.Context, userID string) ([]EnrollmentRecord, error) {
	rows, err := l.pool.Query(ctx,
		`SELECT `+enrollmentColumns+` FROM enrollments WHERE user_id = $1 ORDER BY enrolled_at, course_id`, userID)
	if err != nil {
		return nil, fmt.Errorf("查询报名列表失败: %w", err)
	}
	defer rows.Close()

	out := make([]EnrollmentRecord, 0)
	for rows.Next() {
		rec, err := scanEnrollment(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

const lessonColumns = `user_id, course_id, lesson_id, status, time_spent, score, started_at, completed_at, updated_at`

func scanLesson(row pgx.Row) (LessonRecord, error) {
	var rec LessonRecord
	err := row.Scan(&rec.UserID, &rec.CourseID, &rec.LessonID, &rec.Status, &rec.TimeSpent,
		&rec.Score, &rec.StartedAt, &rec.CompletedAt, &rec.UpdatedAt)
	return rec, err
}

// SaveLesson 合并课时进度，读取与写入在同一事务内完成
func (l *PGLedger) SaveLesson(ctx context.Context, userID, courseID, lessonID string, u LessonUpdate) (LessonRecord, error) {
	tx, err := l.pool.Begin(ctx)
	if err != nil {
		return LessonRecord{}, err
	}
	defer tx.Rollback(ctx)

	var existing *LessonRecord
	row := tx.QueryRow(ctx, `SELECT `+lessonColumns+` FROM lesson_progress
		WHERE user_id = $1 AND course_id = $2 AND lesson_id = $3 FOR UPDATE`, userID, courseID, lessonID)
	if rec, err := scanLesson(row); err == nil {
		existing = &rec
	} else if !errors.Is(err, pgx.ErrNoRows) {
		return LessonRecord{}, fmt.Errorf("查询课时进度失败: %w", err)
	}

	rec, err := mergeLesson(existing, userID, courseID, lessonID, u, time.Now())
	if err != nil {
		return LessonRecord{}, err
	}
	_, err = tx.Exec(ctx, `
		INSERT INTO lesson_progress (`+lessonColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (user_id, course_id, lesson_id) DO UPDATE SET
			status = EXCLUDED.status, time_spent = EXCLUDED.time_spent, score = EXCLUDED.score,
			completed_at = EXCLUDED.completed_at, updated_at = EXCLUDED.updated_at`,
		rec.UserID, rec.CourseID, rec.LessonID, rec.Status, rec.TimeSpent, rec.Score,
		rec.StartedAt, rec.CompletedAt, rec.UpdatedAt)
	if err != nil {
		return LessonRecord{}, fmt.Errorf("保存课时进度失败: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return LessonRecord{}, err
	}
	return rec, nil
}

// Lessons 查询课程内全部课时进度
func (l *PGLedger) Lessons(ctx context.Context, userID, courseID string) ([]LessonRecord, error) {
	rows, err := l.pool.Query(ctx, `SELECT `+lessonColumns+` FROM lesson_progress
		WHERE user_id = $1 AND course_id = $2`, userID, courseID)
	if err != nil {
		return nil, fmt.Errorf("查询课时进度失败: %w", err)
	}
	defer rows.Close()

	out := make([]LessonRecord, 0)
	for rows.Next() {
		rec, err := scanLesson(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

const commentColumns = `id, course_id, lesson_id, parent_id, user_id, user_name, user_role, content, created_at`

func scanComment(row pgx.Row) (CommentRecord, error) {
	var rec CommentRecord
	err := row.Scan(&rec.ID, &rec.CourseID, &rec.LessonID, &rec.ParentID, &rec.User.ID,
		&rec.User.Name, &rec.User.Role, &rec.Content, &rec.CreatedAt)
	return rec, err
}

// AddComment 保存评论
func (l *PGLedger) AddComment(ctx context.Context, rec CommentRecord) (CommentRecord, error) {
	rec.ID = uuid.NewString()
	rec.CreatedAt = time.Now()
	_, err := l.pool.Exec(ctx, `INSERT INTO comments (`+commentColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		rec.ID, rec.CourseID, rec.LessonID, rec.ParentID, rec.User.ID, rec.User.Name, rec.User.Role,
		rec.Content, rec.CreatedAt)
	if err != nil {
		return CommentRecord{}, fmt.Errorf("保存评论失败: %w", err)
	}
	return rec, nil
}

// Comment 查询单条评论
func (l *PGLedger) Comment(ctx context.Context, id string) (CommentRecord, bool, error) {
	rec, err := scanComment(l.pool.QueryRow(ctx, `SELECT `+commentColumns+` FROM comments WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return CommentRecord{}, false, nil
	}
	if err != nil {
		return CommentRecord{}, false, fmt.Errorf("查询评论失败: %w", err)
	}
	return rec, true, nil
}

// Comments 查询课程评论，lessonID 为空时不按课时过滤
func (l *PGLedger) Comments(ctx context.Context, courseID, lessonID string) ([]CommentRecord, error) {
	rows, err := l.pool.Query(ctx, `SELECT `+commentColumns+` FROM comments
		WHERE course_id = $1 AND ($2 = '' OR lesson_id = $2)
		ORDER BY created_at, id`, courseID, lessonID)
	if err != nil {
		return nil, fmt.Errorf("查询评论失败: %w", err)
	}
	defer rows.Close()

	out := make([]CommentRecord, 0)
	for rows.Next() {
		rec, err := scanComment(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// DeleteComment 递归删除评论及其回复
func (l *PGLedger) DeleteComment(ctx context.Context, id string) (int, error) {
	tag, err := l.pool.Exec(ctx, `
		WITH RECURSIVE thread AS (
			SELECT id FROM comments WHERE id = $1
			UNION ALL
			SELECT c.id FROM comments c JOIN thread t ON c.parent_id = t.id
		)
		DELETE FROM comments WHERE id IN (SELECT id FROM thread)`, id)
	if err != nil {
		return 0, fmt.Errorf("删除评论失败: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

// Ping 检查数据库连通性
func (l *PGLedger) Ping(ctx context.Context) error {
	return l.pool.Ping(ctx)
}

// Close 关闭连接池
func (l *PGLedger) Close() {
	if l.pool != nil {
		l.pool.Close()
	}
}
