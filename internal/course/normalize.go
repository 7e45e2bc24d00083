package course

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// ParseError 远程响应缺少必需字段或字段取值非法
type ParseError struct {
	Payload string // 响应类型，例如 course、enrollment
	Field   string // 出错字段路径，例如 units[0].lessons[2].id
	Reason  string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse %s: field %s: %s", e.Payload, e.Field, e.Reason)
}

// CourseResponse GET /courses/{id} 的规范化结果
// 携带令牌请求时 Enrollment 与 Progress 可能非空
type CourseResponse struct {
	Course     *Course
	Enrollment *Enrollment
	Progress   *Progress
}

// ParseCourseResponse 规范化课程详情响应
func ParseCourseResponse(p map[string]any) (*CourseResponse, error) {
	rawCourse, ok := p["course"].(map[string]any)
	if !ok {
		return nil, &ParseError{Payload: "course response", Field: "course", Reason: "missing object"}
	}
	c, err := ParseCourse(rawCourse)
	if err != nil {
		return nil, err
	}
	resp := &CourseResponse{Course: c}

	if rawEnrollment, ok := p["enrollment"].(map[string]any); ok {
		e, err := ParseEnrollment(rawEnrollment)
		if err != nil {
			return nil, err
		}
		resp.Enrollment = e
	}

	if rawProgress, ok := p["progress"].(map[string]any); ok {
		// detailedProgress 可能与 progress 同级，也可能嵌在 progress 内
		detailed, _ := p["detailedProgress"].([]any)
		if detailed == nil {
			detailed, _ = rawProgress["detailedProgress"].([]any)
		}
		pr, err := ParseProgress(rawProgress, detailed, c)
		if err != nil {
			return nil, err
		}
		resp.Progress = pr
	}
	return resp, nil
}

// ParseCourse 规范化课程结构，并统一每个课时的 ID 对
func ParseCourse(raw map[string]any) (*Course, error) {
	id := firstID(raw, "_id", "id")
	if id == "" {
		return nil, &ParseError{Payload: "course", Field: "_id", Reason: "missing identifier"}
	}
	title := str(raw, "title")
	if title == "" {
		return nil, &ParseError{Payload: "course", Field: "title", Reason: "missing"}
	}

	c := &Course{
		ID:          id,
		Title:       title,
		Description: str(raw, "description"),
		Category:    str(raw, "category"),
		Level:       str(raw, "level"),
		Thumbnail:   str(raw, "thumbnail"),
	}
	if price, ok := num(raw["price"]); ok {
		c.Price = price
	}

	rawUnits, _ := raw["units"].([]any)
	c.Units = make([]Unit, 0, len(rawUnits))
	for i, ru := range rawUnits {
		um, ok := ru.(map[string]any)
		if !ok {
			return nil, &ParseError{Payload: "course", Field: fmt.Sprintf("units[%d]", i), Reason: "not an object"}
		}
		u, err := parseUnit(um, id, i)
		if err != nil {
			return nil, err
		}
		c.Units = append(c.Units, *u)
	}
	return c, nil
}

func parseUnit(raw map[string]any, courseID string, idx int) (*Unit, error) {
	field := fmt.Sprintf("units[%d]", idx)
	unitID := firstID(raw, "unitId", "_id", "id")
	if unitID == "" {
		return nil, &ParseError{Payload: "course", Field: field + ".unitId", Reason: "missing identifier"}
	}
	u := &Unit{
		UnitID:      unitID,
		Title:       str(raw, "title"),
		Description: str(raw, "description"),
	}
	if order, ok := num(raw["order"]); ok {
		u.Order = int(order)
	}

	rawLessons, _ := raw["lessons"].([]any)
	u.Lessons = make([]Lesson, 0, len(rawLessons))
	for j, rl := range rawLessons {
		lm, ok := rl.(map[string]any)
		if !ok {
			return nil, &ParseError{Payload: "course", Field: fmt.Sprintf("%s.lessons[%d]", field, j), Reason: "not an object"}
		}
		l, err := ParseLesson(lm, courseID)
		if err != nil {
			if pe, ok := err.(*ParseError); ok {
				pe.Field = fmt.Sprintf("%s.lessons[%d].%s", field, j, pe.Field)
			}
			return nil, err
		}
		u.Lessons = append(u.Lessons, *l)
	}
	return u, nil
}

// ParseLesson 规范化单个课时
// _id 与 lessonId 任取其一补齐另一个，两者都缺失或取值不一致时报错
func ParseLesson(raw map[string]any, courseID string) (*Lesson, error) {
	docID, lessonID := objectID(raw["_id"]), objectID(raw["lessonId"])
	if docID != "" && lessonID != "" && docID != lessonID {
		return nil, &ParseError{Payload: "lesson", Field: "id",
			Reason: fmt.Sprintf("_id %q and lessonId %q differ", docID, lessonID)}
	}
	id := firstID(raw, "lessonId", "_id", "id")
	if id == "" {
		return nil, &ParseError{Payload: "lesson", Field: "id", Reason: "missing both _id and lessonId"}
	}

	lt, err := parseLessonType(str(raw, "type"))
	if err != nil {
		return nil, err
	}

	l := &Lesson{
		ID:        id,
		LessonID:  id,
		CourseID:  courseID,
		Title:     str(raw, "title"),
		Type:      lt,
		IsPreview: boolean(raw["isPreview"]),
	}
	if d, ok := num(raw["duration"]); ok {
		v := int(d)
		l.Duration = &v
	}
	if rc, ok := raw["content"].(map[string]any); ok {
		content, err := ParseLessonContent(rc)
		if err != nil {
			return nil, err
		}
		l.Content = content
	}
	return l, nil
}

func parseLessonType(s string) (LessonType, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "text", "explanation":
		return LessonExplanation, nil
	case "examples":
		return LessonExamples, nil
	case "quiz":
		return LessonQuiz, nil
	case "coding":
		return LessonCoding, nil
	case "video":
		return LessonVideo, nil
	default:
		return "", &ParseError{Payload: "lesson", Field: "type", Reason: fmt.Sprintf("unknown lesson type %q", s)}
	}
}

// ParseLessonContent 规范化课时内容
// 结构固定，借助 JSON 往返完成字段映射
func ParseLessonContent(raw map[string]any) (*LessonContent, error) {
	data, err := json.Marshal(raw)
	if err != nil {
		return nil, &ParseError{Payload: "lesson", Field: "content", Reason: err.Error()}
	}
	var content LessonContent
	if err := json.Unmarshal(data, &content); err != nil {
		return nil, &ParseError{Payload: "lesson", Field: "content", Reason: err.Error()}
	}
	return &content, nil
}

// ParseEnrollment 规范化报名记录
// courseId 可能是字符串，也可能是展开后的课程对象
func ParseEnrollment(raw map[string]any) (*Enrollment, error) {
	courseID := objectID(raw["courseId"])
	if courseID == "" {
		return nil, &ParseError{Payload: "enrollment", Field: "courseId", Reason: "missing"}
	}
	level := AccessLevel(str(raw, "accessLevel"))
	if level != AccessPreview && level != AccessFull {
		return nil, &ParseError{Payload: "enrollment", Field: "accessLevel", Reason: fmt.Sprintf("invalid value %q", level)}
	}

	e := &Enrollment{
		ID:            firstID(raw, "_id", "id"),
		CourseID:      courseID,
		AccessLevel:   level,
		PaymentStatus: str(raw, "paymentStatus"),
		Status:        str(raw, "status"),
	}
	if rp, ok := raw["progress"].(map[string]any); ok {
		ep := &EnrollmentProgress{
			CurrentLesson: objectID(rp["currentLesson"]),
			CurrentUnit:   objectID(rp["currentUnit"]),
			LastAccessed:  str(rp, "lastAccessed"),
		}
		if v, ok := num(rp["totalProgress"]); ok {
			ep.TotalProgress = v
		}
		if v, ok := num(rp["timeSpent"]); ok {
			ep.TimeSpent = int(v)
		}
		completed, _ := rp["completedLessons"].([]any)
		ep.CompletedLessons = make([]string, 0, len(completed))
		for _, c := range completed {
			if id := objectID(c); id != "" {
				ep.CompletedLessons = append(ep.CompletedLessons, id)
			}
		}
		e.Progress = ep
	}
	return e, nil
}

// ParseEnrollmentList 规范化 GET /enrollments/my/enrollments 响应
func ParseEnrollmentList(p map[string]any) ([]Enrollment, error) {
	rawList, ok := p["enrollments"].([]any)
	if !ok {
		// 部分服务端版本使用 data 字段
		rawList, ok = p["data"].([]any)
	}
	if !ok {
		return nil, &ParseError{Payload: "enrollment list", Field: "enrollments", Reason: "missing array"}
	}
	out := make([]Enrollment, 0, len(rawList))
	for i, r := range rawList {
		m, ok := r.(map[string]any)
		if !ok {
			return nil, &ParseError{Payload: "enrollment list", Field: fmt.Sprintf("enrollments[%d]", i), Reason: "not an object"}
		}
		e, err := ParseEnrollment(m)
		if err != nil {
			if pe, ok := err.(*ParseError); ok {
				pe.Field = fmt.Sprintf("enrollments[%d].%s", i, pe.Field)
			}
			return nil, err
		}
		out = append(out, *e)
	}
	return out, nil
}

// ParseProgress 规范化进度汇总，详细进度按课时 ID 去重（后出现者覆盖）
// course 非空时用于补齐 courseId 与课时总数
func ParseProgress(raw map[string]any, detailed []any, c *Course) (*Progress, error) {
	p := &Progress{
		CourseID:      objectID(raw["courseId"]),
		CourseName:    str(raw, "courseName"),
		CurrentUnit:   objectID(raw["currentUnit"]),
		CurrentLesson: objectID(raw["currentLesson"]),
		LastAccessed:  str(raw, "lastAccessed"),
	}
	if v, ok := num(raw["totalLessons"]); ok {
		p.TotalLessons = int(v)
	}
	if v, ok := num(raw["completedLessons"]); ok {
		p.CompletedLessons = int(v)
	}
	if v, ok := num(raw["overallPercentage"]); ok {
		p.OverallPercentage = int(v)
	}
	if v, ok := num(raw["totalTimeSpent"]); ok {
		p.TotalTimeSpent = int(v)
	}
	if v, ok := num(raw["estimatedTimeRemaining"]); ok {
		p.EstimatedTimeRemaining = int(v)
	}
	if c != nil {
		if p.CourseID == "" {
			p.CourseID = c.ID
		}
		if p.CourseName == "" {
			p.CourseName = c.Title
		}
	}

	p.DetailedProgress = make([]LessonProgress, 0, len(detailed))
	for i, rd := range detailed {
		m, ok := rd.(map[string]any)
		if !ok {
			return nil, &ParseError{Payload: "progress", Field: fmt.Sprintf("detailedProgress[%d]", i), Reason: "not an object"}
		}
		lp, err := parseLessonProgress(m)
		if err != nil {
			if pe, ok := err.(*ParseError); ok {
				pe.Field = fmt.Sprintf("detailedProgress[%d].%s", i, pe.Field)
			}
			return nil, err
		}
		p.DetailedProgress = upsertEntry(p.DetailedProgress, *lp)
	}

	if c != nil {
		recount(p, c)
	}
	return p, nil
}

func parseLessonProgress(raw map[string]any) (*LessonProgress, error) {
	lessonID := objectID(raw["lessonId"])
	if lessonID == "" {
		return nil, &ParseError{Payload: "progress", Field: "lessonId", Reason: "missing"}
	}
	status := LessonStatus(str(raw, "status"))
	switch status {
	case StatusNotStarted, StatusInProgress, StatusCompleted:
	default:
		return nil, &ParseError{Payload: "progress", Field: "status", Reason: fmt.Sprintf("invalid value %q", status)}
	}
	lp := &LessonProgress{LessonID: lessonID, Status: status}
	if v, ok := num(raw["timeSpent"]); ok {
		t := int(v)
		lp.TimeSpent = &t
	}
	if v, ok := num(raw["score"]); ok {
		lp.Score = &v
	}
	return lp, nil
}

// upsertEntry 按课时 ID 插入或整体替换详细进度条目
func upsertEntry(list []LessonProgress, entry LessonProgress) []LessonProgress {
	for i := range list {
		if list[i].LessonID == entry.LessonID {
			list[i] = entry
			return list
		}
	}
	return append(list, entry)
}

func str(m map[string]any, key string) string {
	switch v := m[key].(type) {
	case string:
		return v
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	default:
		return ""
	}
}

// firstID 返回第一个非空的标识字段
func firstID(m map[string]any, keys ...string) string {
	for _, k := range keys {
		if id := objectID(m[k]); id != "" {
			return id
		}
	}
	return ""
}

// objectID 读取标识符，兼容字符串、数字与 {_id} 对象三种形式
func objectID(v any) string {
	switch t := v.(type) {
	case string:
		return strings.TrimSpace(t)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case json.Number:
		return t.String()
	case map[string]any:
		return firstID(t, "_id", "id")
	default:
		return ""
	}
}

func num(v any) (float64, bool) {
	switch t := v.(type) {
	case float64:
		return t, true
	case int:
		return float64(t), true
	case int64:
		return float64(t), true
	case json.Number:
		f, err := t.Float64()
		return f, err == nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(t), 64)
		return f, err == nil
	default:
		return 0, false
	}
}

func boolean(v any) bool {
	switch t := v.(type) {
	case bool:
		return t
	case string:
		b, _ := strconv.ParseBool(t)
		return b
	default:
		return false
	}
}
