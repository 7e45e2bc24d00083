// Package content 把课时原始内容转换为各标签页使用的结构，并负责测验评分
package content

import (
	"math"
	"strconv"
	"strings"

	"learnhub/internal/course"

	"github.com/google/uuid"
)

// DefaultPassingScore 测验默认及格线（百分比）
const DefaultPassingScore = 70

// contentNamespace 生成题目 ID 的命名空间，同一课时同一位置的题目 ID 稳定
var contentNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("learnhub/lesson-content"))

// Tab 课时页面的标签页
type Tab string

const (
	TabExplanation Tab = "explanation"
	TabExamples    Tab = "examples"
	TabQuiz        Tab = "quiz"
	TabCoding      Tab = "coding"
)

// Question 测验题
type Question struct {
	QuestionID    string   `json:"questionId"`
	Question      string   `json:"question"`
	Options       []string `json:"options"`
	CorrectAnswer string   `json:"correctAnswer"`
	Points        int      `json:"points"`
}

// Problem 编程题
type Problem struct {
	ProblemID   string     `json:"problemId"`
	Title       string     `json:"title"`
	Description string     `json:"description"`
	StarterCode string     `json:"starterCode,omitempty"`
	Solution    string     `json:"solution,omitempty"`
	TestCases   []TestCase `json:"testCases"`
}

// TestCase 编程题测试用例，Points 缺省为 1
type TestCase struct {
	Input    string `json:"input"`
	Expected string `json:"expected"`
	Points   int    `json:"points"`
}

// Example 代码示例
type Example struct {
	Title    string `json:"title,omitempty"`
	Code     string `json:"code"`
	Language string `json:"language"`
}

// ResultDetail 单题评分结果
type ResultDetail struct {
	QuestionID    string `json:"questionId"`
	Question      string `json:"question"`
	UserAnswer    string `json:"userAnswer,omitempty"`
	CorrectAnswer string `json:"correctAnswer"`
	IsCorrect     bool   `json:"isCorrect"`
	Points        int    `json:"points"`
}

// QuizResults 测验评分汇总
type QuizResults struct {
	Score          int            `json:"score"`
	CorrectAnswers int            `json:"correctAnswers"`
	TotalQuestions int            `json:"totalQuestions"`
	EarnedPoints   int            `json:"earnedPoints"`
	TotalPoints    int            `json:"totalPoints"`
	Passed         bool           `json:"passed"`
	Details        []ResultDetail `json:"details"`
}

func itemID(lessonID, kind string, idx int) string {
	return uuid.NewSHA1(contentNamespace, []byte(lessonID+"/"+kind+"/"+strconv.Itoa(idx))).String()
}

// TabFor 返回课时类型默认打开的标签页
func TabFor(t course.LessonType) Tab {
	switch t {
	case course.LessonExamples:
		return TabExamples
	case course.LessonQuiz:
		return TabQuiz
	case course.LessonCoding:
		return TabCoding
	default:
		return TabExplanation
	}
}

// Questions 转换测验题
func Questions(lessonID string, c *course.LessonContent) []Question {
	if c == nil {
		return nil
	}
	out := make([]Question, 0, len(c.Quiz))
	for i, q := range c.Quiz {
		out = append(out, Question{
			QuestionID:    itemID(lessonID, "q", i),
			Question:      q.Question,
			Options:       append([]string(nil), q.Options...),
			CorrectAnswer: q.Answer,
			Points:        1,
		})
	}
	return out
}

// Problems 转换编程题
func Problems(lessonID string, c *course.LessonContent) []Problem {
	if c == nil {
		return nil
	}
	out := make([]Problem, 0, len(c.Coding))
	for i, item := range c.Coding {
		p := Problem{
			ProblemID:   itemID(lessonID, "p", i),
			Title:       "Coding Problem",
			Description: item.Problem,
			StarterCode: item.StarterCode,
			Solution:    item.Solution,
			TestCases:   make([]TestCase, 0, len(item.TestCases)),
		}
		for _, tc := range item.TestCases {
			points := 1
			if tc.Points != nil {
				points = *tc.Points
			}
			p.TestCases = append(p.TestCases, TestCase{Input: tc.Input, Expected: tc.ExpectedOutput, Points: points})
		}
		out = append(out, p)
	}
	return out
}

// Examples 转换代码示例，支持 ```lang 围栏格式
func Examples(c *course.LessonContent) []Example {
	if c == nil {
		return nil
	}
	out := make([]Example, 0, len(c.Examples))
	for _, raw := range c.Examples {
		out = append(out, parseExample(raw))
	}
	return out
}

func parseExample(raw string) Example {
	s := strings.TrimSpace(raw)
	if !strings.HasPrefix(s, "```") {
		return Example{Code: raw, Language: "code"}
	}
	body := strings.TrimPrefix(s, "```")
	lang, code, _ := strings.Cut(body, "\n")
	code = strings.TrimSuffix(strings.TrimRight(code, "\n"), "```")
	lang = strings.TrimSpace(lang)
	if lang == "" {
		lang = "code"
	}
	return Example{Code: strings.TrimRight(code, "\n"), Language: lang}
}

// Grade 按用户作答为测验评分
// answers 以 QuestionID 为键；passingScore 小于等于 0 时使用默认及格线
func Grade(questions []Question, answers map[string]string, passingScore int) QuizResults {
	if passingScore <= 0 {
		passingScore = DefaultPassingScore
	}
	res := QuizResults{TotalQuestions: len(questions), Details: make([]ResultDetail, 0, len(questions))}
	for _, q := range questions {
		points := q.Points
		if points <= 0 {
			points = 1
		}
		answer := answers[q.QuestionID]
		ok := answer != "" && answer == q.CorrectAnswer
		res.TotalPoints += points
		if ok {
			res.CorrectAnswers++
			res.EarnedPoints += points
		}
		res.Details = append(res.Details, ResultDetail{
			QuestionID:    q.QuestionID,
			Question:      q.Question,
			UserAnswer:    answer,
			CorrectAnswer: q.CorrectAnswer,
			IsCorrect:     ok,
			Points:        points,
		})
	}
	if res.TotalQuestions > 0 {
		res.Score = int(math.Round(float64(res.CorrectAnswers) / float64(res.TotalQuestions) * 100))
	}
	res.Passed = res.TotalQuestions > 0 && res.Score >= passingScore
	return res
}
