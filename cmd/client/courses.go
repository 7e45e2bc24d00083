package client

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
	"text/tabwriter"

	"learnhub/internal/content"
	"learnhub/internal/course"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

func newCoursesCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "courses",
		Short: "列出全部课程，登录时标记已报名课程",
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := newEnv()
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			store := e.newStore(ctx)
			defer store.Close()

			// 课程列表与报名列表互不依赖，并发加载
			var list []*course.Course
			g, gctx := errgroup.WithContext(ctx)
			g.Go(func() error {
				payload, err := e.api.ListCourses(gctx, e.token())
				if err != nil {
					return fmt.Errorf("获取课程列表失败: %w", err)
				}
				list, err = parseCourseList(payload)
				return err
			})
			g.Go(func() error {
				store.LoadEnrollments(gctx)
				return nil
			})
			if err := g.Wait(); err != nil {
				return err
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tTITLE\tPRICE\tLESSONS\tENROLLED")
			for _, c := range list {
				enrolled := ""
				if e.enrolled.Contains(c.ID) {
					enrolled = "yes"
				}
				fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%s\n", c.ID, c.Title, formatPrice(c.Price), len(course.FlattenLessons(c)), enrolled)
			}
			return w.Flush()
		},
	}
}

// parseCourseList 规范化 GET /courses 响应，跳过无法解析的课程
func parseCourseList(payload map[string]any) ([]*course.Course, error) {
	raw, ok := payload["courses"].([]any)
	if !ok {
		raw, ok = payload["data"].([]any)
	}
	if !ok {
		return nil, &course.ParseError{Payload: "course list", Field: "courses", Reason: "missing array"}
	}
	out := make([]*course.Course, 0, len(raw))
	for _, r := range raw {
		m, ok := r.(map[string]any)
		if !ok {
			continue
		}
		c, err := course.ParseCourse(m)
		if err != nil {
			continue
		}
		out = append(out, c)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Title < out[j].Title })
	return out, nil
}

func newCourseCommand() *cobra.Command {
	var lessonID string
	cmd := &cobra.Command{
		Use:   "course <courseId>",
		Short: "显示课程结构、访问权限与学习进度",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := newEnv()
			if err != nil {
				return err
			}
			store, err := loadCourse(cmd.Context(), e, args[0])
			if err != nil {
				return err
			}
			defer store.Close()

			out := cmd.OutOrStdout()
			if lessonID != "" {
				st := store.Snapshot()
				l, ok := course.FindLesson(st.Course, lessonID)
				if !ok {
					return fmt.Errorf("lesson %s not found in course %s", lessonID, st.Course.ID)
				}
				if !store.CanViewLesson(l) {
					return fmt.Errorf("lesson %s is locked, enroll in %s to view it", lessonID, st.Course.ID)
				}
				renderLesson(out, l)
				return nil
			}
			renderCourse(out, store)
			return nil
		},
	}
	cmd.Flags().StringVar(&lessonID, "lesson", "", "显示指定课时的内容")
	return cmd
}

// loadCourse 并发加载课程与报名列表
// 课程加载失败时 Store 置为空状态，这里转换为错误返回
func loadCourse(ctx context.Context, e *env, courseID string) (*course.Store, error) {
	store := e.newStore(ctx)
	var g errgroup.Group
	g.Go(func() error {
		store.LoadCourse(ctx, courseID)
		return nil
	})
	if _, ok := e.sessions.Current(); ok {
		g.Go(func() error {
			store.LoadEnrollments(ctx)
			return nil
		})
	}
	_ = g.Wait()

	if store.Snapshot().Course == nil {
		store.Close()
		return nil, fmt.Errorf("course %s not found or failed to load", courseID)
	}
	return store, nil
}

func renderCourse(w io.Writer, store *course.Store) {
	st := store.Snapshot()
	c := st.Course
	fmt.Fprintf(w, "%s (%s)\n", c.Title, c.ID)
	if c.Description != "" {
		fmt.Fprintf(w, "%s\n", c.Description)
	}
	fmt.Fprintf(w, "Price: %s  Access: %s\n", formatPrice(c.Price), accessLabel(st, store))

	summary := store.Summary()
	fmt.Fprintf(w, "Progress: %d/%d lessons (%d%%)\n", summary.CompletedLessons, summary.TotalLessons, summary.OverallPercentage)
	if st.ProgressSyncFailed {
		fmt.Fprintln(w, "Warning: last progress update was not saved on the server")
	}

	status := lessonStatuses(st.Progress)
	for i, u := range c.Units {
		mark := " "
		if summary.Units[i].Complete {
			mark = "x"
		}
		fmt.Fprintf(w, "\n[%s] %s  %d/%d\n", mark, u.Title, summary.Units[i].CompletedLessons, summary.Units[i].TotalLessons)
		for _, l := range u.Lessons {
			fmt.Fprintf(w, "    %s %-24s %-11s %s\n", lessonMarker(status[l.LessonID], store.CanViewLesson(l)), l.LessonID, l.Type, lessonTitle(l))
		}
	}
	if next, ok := course.NextLesson(c, st.Progress); ok && store.IsEnrolled() {
		fmt.Fprintf(w, "\nNext: %s (%s)\n", next.Title, next.LessonID)
	}
}

func accessLabel(st course.State, store *course.Store) string {
	switch {
	case store.HasFullAccess():
		return "full"
	case st.Enrollment != nil:
		return string(st.Enrollment.AccessLevel)
	case st.Course.Price <= 0:
		return "free (not enrolled)"
	default:
		return "preview only"
	}
}

func lessonStatuses(p *course.Progress) map[string]course.LessonStatus {
	out := make(map[string]course.LessonStatus)
	if p == nil {
		return out
	}
	for _, lp := range p.DetailedProgress {
		out[lp.LessonID] = lp.Status
	}
	return out
}

func lessonMarker(s course.LessonStatus, viewable bool) string {
	switch {
	case !viewable:
		return "🔒"
	case s == course.StatusCompleted:
		return "✓ "
	case s == course.StatusInProgress:
		return "▶ "
	default:
		return "· "
	}
}

func lessonTitle(l course.Lesson) string {
	title := l.Title
	if l.IsPreview {
		title += " [preview]"
	}
	if l.Duration != nil {
		title += fmt.Sprintf(" (%d min)", *l.Duration)
	}
	return title
}

// renderLesson 按课时类型输出对应标签页的内容
func renderLesson(w io.Writer, l course.Lesson) {
	fmt.Fprintf(w, "%s (%s)\n\n", l.Title, l.LessonID)
	if l.Content == nil {
		fmt.Fprintln(w, "This lesson has no content yet.")
		return
	}
	switch content.TabFor(l.Type) {
	case content.TabExamples:
		for i, ex := range content.Examples(l.Content) {
			fmt.Fprintf(w, "Example %d (%s):\n%s\n\n", i+1, ex.Language, ex.Code)
		}
	case content.TabQuiz:
		for i, q := range content.Questions(l.LessonID, l.Content) {
			fmt.Fprintf(w, "%d. %s (%d pt)\n", i+1, q.Question, q.Points)
			for _, opt := range q.Options {
				fmt.Fprintf(w, "   - %s\n", opt)
			}
		}
	case content.TabCoding:
		for _, p := range content.Problems(l.LessonID, l.Content) {
			fmt.Fprintf(w, "%s\n%s\n", p.Title, p.Description)
			if p.StarterCode != "" {
				fmt.Fprintf(w, "\nStarter code:\n%s\n", p.StarterCode)
			}
			for i, tc := range p.TestCases {
				fmt.Fprintf(w, "  case %d: %q -> %q (%d pt)\n", i+1, tc.Input, tc.Expected, tc.Points)
			}
		}
	default:
		for _, para := range l.Content.Explanation {
			fmt.Fprintln(w, strings.TrimSpace(para))
			fmt.Fprintln(w)
		}
	}
}

func newEnrollCommand() *cobra.Command {
	var payment map[string]string
	cmd := &cobra.Command{
		Use:   "enroll <courseId>",
		Short: "报名课程",
		Long:  "报名课程。付费课程可通过 --payment key=value 透传支付或校验信息。",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := newEnv()
			if err != nil {
				return err
			}
			store := e.newStore(cmd.Context())
			defer store.Close()

			var body map[string]any
			if len(payment) > 0 {
				body = make(map[string]any, len(payment))
				for k, v := range payment {
					body[k] = v
				}
			}
			res := store.EnrollInCourse(cmd.Context(), args[0], body)
			if !res.Success {
				return errors.New(res.Message)
			}
			out := cmd.OutOrStdout()
			switch {
			case res.Enrollment != nil:
				fmt.Fprintf(out, "Enrolled in %s (%s access)\n", res.Enrollment.CourseID, res.Enrollment.AccessLevel)
			case res.Message != "":
				fmt.Fprintln(out, res.Message)
			default:
				fmt.Fprintf(out, "Enrolled in %s\n", args[0])
			}
			return nil
		},
	}
	cmd.Flags().StringToStringVar(&payment, "payment", nil, "支付信息，例如 --payment paymentId=pi_123")
	return cmd
}

func newProgressCommand() *cobra.Command {
	var (
		status    string
		timeSpent int
		score     float64
	)
	cmd := &cobra.Command{
		Use:   "progress <courseId> <lessonId>",
		Short: "上报课时进度",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			delta := course.ProgressDelta{Status: course.LessonStatus(status)}
			switch delta.Status {
			case "", course.StatusNotStarted, course.StatusInProgress, course.StatusCompleted:
			default:
				return fmt.Errorf("invalid --status %q (not_started, in_progress, completed)", status)
			}
			if cmd.Flags().Changed("time") {
				delta.TimeSpent = &timeSpent
			}
			if cmd.Flags().Changed("score") {
				delta.Score = &score
			}

			e, err := newEnv()
			if err != nil {
				return err
			}
			store, err := loadCourse(cmd.Context(), e, args[0])
			if err != nil {
				return err
			}
			defer store.Close()
			return reportProgress(cmd.Context(), cmd.OutOrStdout(), store, args[1], delta)
		},
	}
	cmd.Flags().StringVar(&status, "status", "", "课时状态：not_started、in_progress 或 completed")
	cmd.Flags().IntVar(&timeSpent, "time", 0, "学习时长（秒）")
	cmd.Flags().Float64Var(&score, "score", 0, "得分")
	return cmd
}

// reportProgress 上报进度并输出最新完成情况
func reportProgress(ctx context.Context, w io.Writer, store *course.Store, lessonID string, delta course.ProgressDelta) error {
	c := store.Snapshot().Course
	l, ok := course.FindLesson(c, lessonID)
	if !ok {
		return fmt.Errorf("lesson %s not found in course %s", lessonID, c.ID)
	}
	if !store.CanViewLesson(l) {
		return fmt.Errorf("lesson %s is locked, enroll in %s first", lessonID, c.ID)
	}
	res := store.UpdateLessonProgress(ctx, lessonID, delta)
	if !res.Success {
		return errors.New(res.Message)
	}
	s := store.Summary()
	fmt.Fprintf(w, "Progress saved: %d/%d lessons (%d%%)\n", s.CompletedLessons, s.TotalLessons, s.OverallPercentage)
	return nil
}

func newQuizCommand() *cobra.Command {
	var (
		answers      map[string]string
		passingScore int
	)
	cmd := &cobra.Command{
		Use:   "quiz <courseId> <lessonId>",
		Short: "提交测验答案并上报成绩",
		Long:  "按题号提交答案，例如 --answer 1=4 --answer 2=B。\n未提供答案时仅列出题目。",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := newEnv()
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			out := cmd.OutOrStdout()

			store, err := loadCourse(ctx, e, args[0])
			if err != nil {
				return err
			}
			defer store.Close()
			l, ok := course.FindLesson(store.Snapshot().Course, args[1])
			if !ok {
				return fmt.Errorf("lesson %s not found in course %s", args[1], args[0])
			}
			questions := content.Questions(l.LessonID, l.Content)
			if len(questions) == 0 {
				return fmt.Errorf("lesson %s has no quiz questions", l.LessonID)
			}
			if len(answers) == 0 {
				renderLesson(out, l)
				return nil
			}

			byID, err := answersByQuestion(questions, answers)
			if err != nil {
				return err
			}
			res := content.Grade(questions, byID, passingScore)
			for i, d := range res.Details {
				mark := "✗"
				if d.IsCorrect {
					mark = "✓"
				}
				fmt.Fprintf(out, "%s %d. %s  your answer: %q\n", mark, i+1, d.Question, d.UserAnswer)
			}
			verdict := "not passed"
			if res.Passed {
				verdict = "passed"
			}
			fmt.Fprintf(out, "Score: %d%% (%d/%d correct, %d/%d points), %s\n",
				res.Score, res.CorrectAnswers, res.TotalQuestions, res.EarnedPoints, res.TotalPoints, verdict)

			scoreValue := float64(res.Score)
			delta := course.ProgressDelta{Status: course.StatusInProgress, Score: &scoreValue, QuizAnswers: byID}
			if res.Passed {
				delta.Status = course.StatusCompleted
			}
			return reportProgress(ctx, out, store, l.LessonID, delta)
		},
	}
	cmd.Flags().StringToStringVar(&answers, "answer", nil, "答案，按题号指定，例如 1=4")
	cmd.Flags().IntVar(&passingScore, "passing-score", content.DefaultPassingScore, "及格分数（百分比）")
	return cmd
}

// answersByQuestion 把题号（从 1 开始）映射为题目 ID
func answersByQuestion(questions []content.Question, answers map[string]string) (map[string]string, error) {
	out := make(map[string]string, len(answers))
	for k, v := range answers {
		n, err := strconv.Atoi(strings.TrimSpace(k))
		if err != nil || n < 1 || n > len(questions) {
			return nil, fmt.Errorf("invalid question number %q (1-%d)", k, len(questions))
		}
		out[questions[n-1].QuestionID] = v
	}
	return out, nil
}

func newEnrollmentsCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "enrollments",
		Short: "列出当前用户的报名记录",
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := newEnv()
			if err != nil {
				return err
			}
			token := e.token()
			if token == "" {
				return errors.New("please log in to view your enrollments")
			}
			payload, err := e.api.ListEnrollments(cmd.Context(), token)
			if err != nil {
				return fmt.Errorf("获取报名列表失败: %w", err)
			}
			list, err := course.ParseEnrollmentList(payload)
			if err != nil {
				return err
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "COURSE\tACCESS\tPAYMENT\tPROGRESS\tCURRENT LESSON")
			for _, en := range list {
				progress, current := "-", "-"
				if en.Progress != nil {
					progress = fmt.Sprintf("%.0f%%", en.Progress.TotalProgress)
					if en.Progress.CurrentLesson != "" {
						current = en.Progress.CurrentLesson
					}
				}
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", en.CourseID, en.AccessLevel, en.PaymentStatus, progress, current)
			}
			return w.Flush()
		},
	}
}

func formatPrice(p float64) string {
	if p <= 0 {
		return "free"
	}
	return strconv.FormatFloat(p, 'f', 2, 64)
}
