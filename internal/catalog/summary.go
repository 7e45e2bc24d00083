package catalog

import (
	"sort"
	"time"

	"learnhub/internal/course"
)

// LessonProgressView 详细进度条目
type LessonProgressView struct {
	LessonID  string   `json:"lessonId"`
	Status    string   `json:"status"`
	TimeSpent int      `json:"timeSpent"`
	Score     *float64 `json:"score,omitempty"`
}

// ProgressSummary GET /progress/course/{id} 与课程详情中返回的进度汇总
type ProgressSummary struct {
	CourseID               string               `json:"courseId"`
	CourseName             string               `json:"courseName"`
	TotalLessons           int                  `json:"totalLessons"`
	CompletedLessons       int                  `json:"completedLessons"`
	OverallPercentage      int                  `json:"overallPercentage"`
	TotalTimeSpent         int                  `json:"totalTimeSpent"`
	EstimatedTimeRemaining int                  `json:"estimatedTimeRemaining"`
	CurrentUnit            string               `json:"currentUnit,omitempty"`
	CurrentLesson          string               `json:"currentLesson,omitempty"`
	LastAccessed           string               `json:"lastAccessed,omitempty"`
	DetailedProgress       []LessonProgressView `json:"detailedProgress"`
}

// EnrollmentProgressView 报名记录内嵌的进度摘要
type EnrollmentProgressView struct {
	CompletedLessons []string `json:"completedLessons"`
	CurrentLesson    string   `json:"currentLesson,omitempty"`
	CurrentUnit      string   `json:"currentUnit,omitempty"`
	TotalProgress    int      `json:"totalProgress"`
	TimeSpent        int      `json:"timeSpent"`
	LastAccessed     string   `json:"lastAccessed,omitempty"`
}

// EnrollmentView 返回给客户端的报名记录
type EnrollmentView struct {
	EnrollmentRecord
	Progress *EnrollmentProgressView `json:"progress,omitempty"`
}

// BuildProgress 根据课程结构与课时记录汇总进度
// 已从课程中移除的课时不计入；详细进度按课程顺序排列
func BuildProgress(c *CourseDoc, records []LessonRecord) ProgressSummary {
	byLesson := make(map[string]LessonRecord, len(records))
	for _, r := range records {
		byLesson[r.LessonID] = r
	}

	s := ProgressSummary{
		CourseID:         c.ID,
		CourseName:       c.Title,
		DetailedProgress: make([]LessonProgressView, 0, len(records)),
	}
	var last time.Time
	for _, u := range c.Units {
		for _, l := range u.Lessons {
			s.TotalLessons++
			r, ok := byLesson[l.LessonID]
			if ok {
				s.DetailedProgress = append(s.DetailedProgress, LessonProgressView{
					LessonID:  r.LessonID,
					Status:    r.Status,
					TimeSpent: r.TimeSpent,
					Score:     r.Score,
				})
				s.TotalTimeSpent += r.TimeSpent
				if r.UpdatedAt.After(last) {
					last = r.UpdatedAt
				}
			}
			if ok && r.Status == "completed" {
				s.CompletedLessons++
				continue
			}
			s.EstimatedTimeRemaining += l.Duration
			if s.CurrentLesson == "" {
				s.CurrentLesson = l.LessonID
				s.CurrentUnit = u.UnitID
			}
		}
	}
	s.OverallPercentage = course.Percentage(s.CompletedLessons, s.TotalLessons)
	if !last.IsZero() {
		s.LastAccessed = last.UTC().Format(time.RFC3339)
	}
	return s
}

// BuildEnrollmentView 组装带进度摘要的报名记录
func BuildEnrollmentView(rec EnrollmentRecord, c *CourseDoc, records []LessonRecord) EnrollmentView {
	view := EnrollmentView{EnrollmentRecord: rec}
	if c == nil {
		return view
	}
	p := BuildProgress(c, records)
	ep := &EnrollmentProgressView{
		CompletedLessons: make([]string, 0, p.CompletedLessons),
		CurrentLesson:    p.CurrentLesson,
		CurrentUnit:      p.CurrentUnit,
		TotalProgress:    p.OverallPercentage,
		TimeSpent:        p.TotalTimeSpent,
		LastAccessed:     p.LastAccessed,
	}
	for _, d := range p.DetailedProgress {
		if d.Status == "completed" {
			ep.CompletedLessons = append(ep.CompletedLessons, d.LessonID)
		}
	}
	view.Progress = ep
	return view
}

func sortEnrollments(list []EnrollmentRecord) {
	sort.Slice(list, func(i, j int) bool {
		if list[i].EnrolledAt.Equal(list[j].EnrolledAt) {
			return list[i].CourseID < list[j].CourseID
		}
		return list[i].EnrolledAt.Before(list[j].EnrolledAt)
	})
}

func sortComments(list []CommentRecord) {
	sort.Slice(list, func(i, j int) bool {
		if list[i].CreatedAt.Equal(list[j].CreatedAt) {
			return list[i].ID < list[j].ID
		}
		return list[i].CreatedAt.Before(list[j].CreatedAt)
	})
}
