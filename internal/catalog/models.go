package catalog

import "time"

// CourseDoc 课程配置，对应 courses/<id>/index.yaml
type CourseDoc struct {
	ID          string    `json:"_id" yaml:"id"`
	Title       string    `json:"title" yaml:"title"`
	Description string    `json:"description" yaml:"description"`
	Price       float64   `json:"price" yaml:"price"`
	Category    string    `json:"category,omitempty" yaml:"category"`
	Level       string    `json:"level,omitempty" yaml:"level"`
	Thumbnail   string    `json:"thumbnail,omitempty" yaml:"thumbnail"`
	Tags        []string  `json:"tags,omitempty" yaml:"tags"`
	Units       []UnitDoc `json:"units" yaml:"units"`
}

// UnitDoc 课程单元
type UnitDoc struct {
	UnitID      string      `json:"unitId" yaml:"unitId"`
	Title       string      `json:"title" yaml:"title"`
	Description string      `json:"description,omitempty" yaml:"description"`
	Order       int         `json:"order" yaml:"order"`
	Lessons     []LessonDoc `json:"lessons" yaml:"lessons"`
}

// LessonDoc 课时
// Text 指向课程目录下的 Markdown 文件，加载后并入 Content.Explanation
type LessonDoc struct {
	LessonID  string      `json:"lessonId" yaml:"lessonId"`
	Title     string      `json:"title" yaml:"title"`
	Type      string      `json:"type" yaml:"type"`
	Duration  int         `json:"duration,omitempty" yaml:"duration"`
	IsPreview bool        `json:"isPreview" yaml:"isPreview"`
	Text      string      `json:"-" yaml:"text"`
	Content   *ContentDoc `json:"content,omitempty" yaml:"content"`

	textContent string // 从 Text 文件读入的讲解，写回配置时剔除
}

// ContentDoc 课时内容
type ContentDoc struct {
	Explanation []string    `json:"explanation,omitempty" yaml:"explanation"`
	Examples    []string    `json:"examples,omitempty" yaml:"examples"`
	Quiz        []QuizDoc   `json:"quiz,omitempty" yaml:"quiz"`
	Coding      []CodingDoc `json:"coding,omitempty" yaml:"coding"`
}

// QuizDoc 测验题
type QuizDoc struct {
	Question string   `json:"question" yaml:"question"`
	Options  []string `json:"options" yaml:"options"`
	Answer   string   `json:"answer" yaml:"answer"`
}

// CodingDoc 编程题
type CodingDoc struct {
	Problem     string        `json:"problem" yaml:"problem"`
	StarterCode string        `json:"starterCode,omitempty" yaml:"starterCode"`
	Solution    string        `json:"solution,omitempty" yaml:"solution"`
	TestCases   []TestCaseDoc `json:"testCases,omitempty" yaml:"testCases"`
}

// TestCaseDoc 编程题测试用例
type TestCaseDoc struct {
	Input          string `json:"input" yaml:"input"`
	ExpectedOutput string `json:"expectedOutput" yaml:"expectedOutput"`
	Points         *int   `json:"points,omitempty" yaml:"points"`
}

// EnrollmentRecord 报名记录
type EnrollmentRecord struct {
	ID            string            `json:"_id"`
	UserID        string            `json:"userId"`
	CourseID      string            `json:"courseId"`
	AccessLevel   string            `json:"accessLevel"`
	PaymentStatus string            `json:"paymentStatus"`
	Status        string            `json:"status"`
	Payment       map[string]string `json:"payment,omitempty"`
	EnrolledAt    time.Time         `json:"enrolledAt"`
	UpdatedAt     time.Time         `json:"updatedAt"`
}

// LessonRecord 用户在单个课时上的进度
type LessonRecord struct {
	UserID      string     `json:"userId"`
	CourseID    string     `json:"courseId"`
	LessonID    string     `json:"lessonId"`
	Status      string     `json:"status"`
	TimeSpent   int        `json:"timeSpent"`
	Score       *float64   `json:"score,omitempty"`
	StartedAt   time.Time  `json:"startedAt"`
	CompletedAt *time.Time `json:"completedAt,omitempty"`
	UpdatedAt   time.Time  `json:"updatedAt"`
}

// LessonUpdate 课时进度增量，空字段不覆盖已有值
type LessonUpdate struct {
	Status    string
	TimeSpent *int
	Score     *float64
}

// CommentAuthor 评论作者，发表时从令牌中取得
type CommentAuthor struct {
	ID   string `json:"_id"`
	Name string `json:"name"`
	Role string `json:"role"`
}

// CommentRecord 课程或课时下的评论，ParentID 非空时为回复
type CommentRecord struct {
	ID        string        `json:"_id"`
	CourseID  string        `json:"courseId"`
	LessonID  string        `json:"lessonId,omitempty"`
	ParentID  string        `json:"parentId,omitempty"`
	User      CommentAuthor `json:"user"`
	Content   string        `json:"content"`
	CreatedAt time.Time     `json:"createdAt"`
}
