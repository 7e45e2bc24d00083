package course

import "math"

// UnitCompletion 单元完成情况
type UnitCompletion struct {
	UnitID           string `json:"unitId"`
	Title            string `json:"title"`
	TotalLessons     int    `json:"totalLessons"`
	CompletedLessons int    `json:"completedLessons"`
	Complete         bool   `json:"complete"`
}

// Summary 由课程结构与详细进度推导出的完成情况
type Summary struct {
	TotalLessons      int              `json:"totalLessons"`
	CompletedLessons  int              `json:"completedLessons"`
	OverallPercentage int              `json:"overallPercentage"`
	Units             []UnitCompletion `json:"units"`
}

// FlatLesson 带单元信息的课时
type FlatLesson struct {
	Lesson
	UnitID    string
	UnitTitle string
}

// Percentage 计算完成百分比，总数为 0 时返回 0
func Percentage(completed, total int) int {
	if total <= 0 {
		return 0
	}
	return int(math.Round(float64(completed) / float64(total) * 100))
}

// CompletedSet 返回详细进度中状态为 completed 的课时 ID 集合
func CompletedSet(p *Progress) map[string]bool {
	done := make(map[string]bool)
	if p == nil {
		return done
	}
	for _, lp := range p.DetailedProgress {
		if lp.Status == StatusCompleted {
			done[lp.LessonID] = true
		}
	}
	return done
}

// Summarize 计算每个单元与整体的完成情况
// 单元仅当其中每个课时都有 completed 记录时才算完成，空单元不算完成
// 无副作用，可在每次渲染时重新计算
func Summarize(c *Course, p *Progress) Summary {
	var s Summary
	if c == nil {
		return s
	}
	done := CompletedSet(p)

	s.Units = make([]UnitCompletion, 0, len(c.Units))
	for _, u := range c.Units {
		uc := UnitCompletion{UnitID: u.UnitID, Title: u.Title, TotalLessons: len(u.Lessons)}
		for _, l := range u.Lessons {
			if done[l.ID] {
				uc.CompletedLessons++
			}
		}
		uc.Complete = uc.TotalLessons > 0 && uc.CompletedLessons == uc.TotalLessons
		s.TotalLessons += uc.TotalLessons
		s.CompletedLessons += uc.CompletedLessons
		s.Units = append(s.Units, uc)
	}
	s.OverallPercentage = Percentage(s.CompletedLessons, s.TotalLessons)
	return s
}

// FlattenLessons 将课程展开为按顺序排列的课时列表
func FlattenLessons(c *Course) []FlatLesson {
	if c == nil {
		return nil
	}
	out := make([]FlatLesson, 0)
	for _, u := range c.Units {
		for _, l := range u.Lessons {
			out = append(out, FlatLesson{Lesson: l, UnitID: u.UnitID, UnitTitle: u.Title})
		}
	}
	return out
}

// NextLesson 返回第一个未完成的课时，用于“继续学习”
// 全部完成或课程为空时返回 false
func NextLesson(c *Course, p *Progress) (FlatLesson, bool) {
	done := CompletedSet(p)
	for _, fl := range FlattenLessons(c) {
		if !done[fl.ID] {
			return fl, true
		}
	}
	return FlatLesson{}, false
}

// FindLesson 按 ID 查找课时
func FindLesson(c *Course, lessonID string) (Lesson, bool) {
	for _, fl := range FlattenLessons(c) {
		if fl.ID == lessonID {
			return fl.Lesson, true
		}
	}
	return Lesson{}, false
}

// recount 根据课程结构与详细进度重新计算汇总字段，保持百分比不变式
func recount(p *Progress, c *Course) {
	if p == nil || c == nil {
		return
	}
	ids := c.lessonIDs()
	if len(ids) > 0 {
		p.TotalLessons = len(ids)
	}
	if len(p.DetailedProgress) > 0 {
		done := CompletedSet(p)
		completed := 0
		for _, id := range ids {
			if done[id] {
				completed++
			}
		}
		p.CompletedLessons = completed
	}
	p.OverallPercentage = Percentage(p.CompletedLessons, p.TotalLessons)
}
