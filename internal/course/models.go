package course

// LessonType 课时类型
type LessonType string

const (
	LessonExplanation LessonType = "explanation"
	LessonExamples    LessonType = "examples"
	LessonQuiz        LessonType = "quiz"
	LessonCoding      LessonType = "coding"
	LessonVideo       LessonType = "video"
)

// AccessLevel 报名后的内容可见范围
type AccessLevel string

const (
	AccessPreview AccessLevel = "preview"
	AccessFull    AccessLevel = "full"
)

// LessonStatus 单个课时的学习状态
type LessonStatus string

const (
	StatusNotStarted LessonStatus = "not_started"
	StatusInProgress LessonStatus = "in_progress"
	StatusCompleted  LessonStatus = "completed"
)

// Course 课程结构
// 加载后只读，只有重新加载才会替换
type Course struct {
	ID          string  `json:"id"`
	Title       string  `json:"title"`
	Description string  `json:"description,omitempty"`
	Price       float64 `json:"price"`
	Category    string  `json:"category,omitempty"`
	Level       string  `json:"level,omitempty"`
	Thumbnail   string  `json:"thumbnail,omitempty"`
	Units       []Unit  `json:"units"`
}

// Unit 课程单元
type Unit struct {
	UnitID      string   `json:"unitId"`
	Title       string   `json:"title"`
	Description string   `json:"description,omitempty"`
	Order       int      `json:"order,omitempty"`
	Lessons     []Lesson `json:"lessons"`
}

// Lesson 课时
// ID 与 LessonID 在规范化后始终相同
type Lesson struct {
	ID        string         `json:"id"`
	LessonID  string         `json:"lessonId"`
	CourseID  string         `json:"courseId"`
	Title     string         `json:"title"`
	Type      LessonType     `json:"type"`
	Duration  *int           `json:"duration,omitempty"` // 分钟
	IsPreview bool           `json:"isPreview"`
	Content   *LessonContent `json:"content,omitempty"` // 可能延迟加载
}

// LessonContent 课时内容，按标签页划分
type LessonContent struct {
	Explanation []string     `json:"explanation,omitempty"`
	Examples    []string     `json:"examples,omitempty"`
	Quiz        []QuizItem   `json:"quiz,omitempty"`
	Coding      []CodingItem `json:"coding,omitempty"`
}

// QuizItem 原始测验题
type QuizItem struct {
	Question string   `json:"question"`
	Options  []string `json:"options"`
	Answer   string   `json:"answer"`
}

// CodingItem 原始编程题
type CodingItem struct {
	Problem     string     `json:"problem"`
	StarterCode string     `json:"starterCode,omitempty"`
	Solution    string     `json:"solution,omitempty"`
	TestCases   []TestCase `json:"testCases,omitempty"`
}

// TestCase 编程题测试用例
type TestCase struct {
	Input          string `json:"input"`
	ExpectedOutput string `json:"expectedOutput"`
	Points         *int   `json:"points,omitempty"`
}

// Enrollment 用户与课程的报名关系
type Enrollment struct {
	ID            string              `json:"id,omitempty"`
	CourseID      string              `json:"courseId"`
	AccessLevel   AccessLevel         `json:"accessLevel"`
	PaymentStatus string              `json:"paymentStatus,omitempty"`
	Status        string              `json:"status,omitempty"`
	Progress      *EnrollmentProgress `json:"progress,omitempty"`
}

// EnrollmentProgress 报名记录中内嵌的进度摘要
type EnrollmentProgress struct {
	CompletedLessons []string `json:"completedLessons"`
	CurrentLesson    string   `json:"currentLesson,omitempty"`
	CurrentUnit      string   `json:"currentUnit,omitempty"`
	TotalProgress    float64  `json:"totalProgress,omitempty"`
	TimeSpent        int      `json:"timeSpent,omitempty"`
	LastAccessed     string   `json:"lastAccessed,omitempty"`
}

// Progress 课程进度汇总
type Progress struct {
	CourseID               string           `json:"courseId"`
	CourseName             string           `json:"courseName,omitempty"`
	TotalLessons           int              `json:"totalLessons"`
	CompletedLessons       int              `json:"completedLessons"`
	OverallPercentage      int              `json:"overallPercentage"`
	TotalTimeSpent         int              `json:"totalTimeSpent"`
	EstimatedTimeRemaining int              `json:"estimatedTimeRemaining"`
	CurrentUnit            string           `json:"currentUnit,omitempty"`
	CurrentLesson          string           `json:"currentLesson,omitempty"`
	LastAccessed           string           `json:"lastAccessed,omitempty"`
	DetailedProgress       []LessonProgress `json:"detailedProgress"`
}

// LessonProgress 单个课时的详细进度
type LessonProgress struct {
	LessonID  string       `json:"lessonId"`
	Status    LessonStatus `json:"status"`
	TimeSpent *int         `json:"timeSpent,omitempty"`
	Score     *float64     `json:"score,omitempty"`
}

// ProgressDelta 课时进度的增量更新，所有字段可选
type ProgressDelta struct {
	Status           LessonStatus `json:"status,omitempty"`
	TimeSpent        *int         `json:"timeSpent,omitempty"`
	Score            *float64     `json:"score,omitempty"`
	QuizAnswers      any          `json:"quizAnswers,omitempty"`
	CodingSubmission any          `json:"codingSubmission,omitempty"`
	SubmissionID     string       `json:"submissionId,omitempty"`
}

// Result 变更操作的统一结果，失败时不抛出错误
type Result struct {
	Success    bool        `json:"success"`
	Message    string      `json:"message,omitempty"`
	Enrollment *Enrollment `json:"enrollment,omitempty"`
}

// clone 深拷贝进度，避免快照被后续合并修改
func (p *Progress) clone() *Progress {
	if p == nil {
		return nil
	}
	cp := *p
	cp.DetailedProgress = append([]LessonProgress(nil), p.DetailedProgress...)
	return &cp
}

// lessonIDs 按课程顺序返回所有课时 ID
func (c *Course) lessonIDs() []string {
	if c == nil {
		return nil
	}
	ids := make([]string, 0)
	for _, u := range c.Units {
		for _, l := range u.Lessons {
			ids = append(ids, l.ID)
		}
	}
	return ids
}
