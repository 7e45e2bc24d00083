package catalog

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"
)

// 课程编辑错误，API 层据此映射状态码
var (
	ErrCourseNotFound = errors.New("course not found")
	ErrCourseExists   = errors.New("course already exists")
	ErrUnitNotFound   = errors.New("unit not found")
	ErrLessonNotFound = errors.New("lesson not found")
	ErrInvalidCourse  = errors.New("invalid course")
)

var courseIDPattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9_-]*$`)

// CoursePatch 创建或修改课程的字段，nil 表示不修改
type CoursePatch struct {
	ID          string   `json:"id"` // 仅创建时使用，缺省由标题生成
	Title       *string  `json:"title"`
	Description *string  `json:"description"`
	Price       *float64 `json:"price"`
	Category    *string  `json:"category"`
	Level       *string  `json:"level"`
	Thumbnail   *string  `json:"thumbnail"`
}

// UnitPatch 创建或修改单元的字段
type UnitPatch struct {
	UnitID      string  `json:"unitId"`
	Title       *string `json:"title"`
	Description *string `json:"description"`
	Order       *int    `json:"order"`
}

// LessonPatch 创建或修改课时的字段
type LessonPatch struct {
	LessonID  string      `json:"lessonId"`
	Title     *string     `json:"title"`
	Type      *string     `json:"type"`
	Duration  *int        `json:"duration"`
	IsPreview *bool       `json:"isPreview"`
	Content   *ContentDoc `json:"content"`
}

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidCourse, fmt.Sprintf(format, args...))
}

// CreateCourse 新建课程
func (s *Service) CreateCourse(p CoursePatch) (*CourseDoc, error) {
	if p.Title == nil || strings.TrimSpace(*p.Title) == "" {
		return nil, invalid("title is required")
	}
	id := strings.TrimSpace(p.ID)
	if id == "" {
		id = slugify(*p.Title)
	}
	if !courseIDPattern.MatchString(id) {
		return nil, invalid("course id %q must be letters, digits, '-' or '_'", id)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.courses[id]; exists {
		return nil, fmt.Errorf("%w: %s", ErrCourseExists, id)
	}
	c := &CourseDoc{ID: id, Units: []UnitDoc{}}
	applyCoursePatch(c, p)
	if err := s.commitLocked(c); err != nil {
		return nil, err
	}
	s.logger.Info("课程已创建: %s", id)
	return c, nil
}

// UpdateCourse 修改课程基本信息
func (s *Service) UpdateCourse(id string, p CoursePatch) (*CourseDoc, error) {
	if p.Title != nil && strings.TrimSpace(*p.Title) == "" {
		return nil, invalid("title must not be empty")
	}
	return s.edit(id, func(c *CourseDoc) error {
		applyCoursePatch(c, p)
		return nil
	})
}

// DeleteCourse 删除课程，磁盘模式下同时删除课程目录
func (s *Service) DeleteCourse(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.courses[id]; !ok {
		return ErrCourseNotFound
	}
	if s.dir != "" && courseIDPattern.MatchString(id) {
		if err := os.RemoveAll(filepath.Join(s.dir, id)); err != nil {
			return fmt.Errorf("删除课程目录失败: %w", err)
		}
	}
	delete(s.courses, id)
	for lessonID, owner := range s.lessons {
		if owner == id {
			delete(s.lessons, lessonID)
		}
	}
	s.logger.Info("课程已删除: %s", id)
	return nil
}

// AddUnit 追加单元，缺省 order 排在最后
func (s *Service) AddUnit(courseID string, p UnitPatch) (*CourseDoc, error) {
	if p.Title == nil || strings.TrimSpace(*p.Title) == "" {
		return nil, invalid("unit title is required")
	}
	return s.edit(courseID, func(c *CourseDoc) error {
		u := UnitDoc{UnitID: strings.TrimSpace(p.UnitID), Order: len(c.Units) + 1, Lessons: []LessonDoc{}}
		if u.UnitID == "" {
			u.UnitID = nextID(len(c.Units)+1, "unit-%d", func(id string) bool { return c.unit(id) != nil })
		}
		applyUnitPatch(&u, p)
		c.Units = append(c.Units, u)
		return nil
	})
}

// UpdateUnit 修改单元
func (s *Service) UpdateUnit(courseID, unitID string, p UnitPatch) (*CourseDoc, error) {
	return s.edit(courseID, func(c *CourseDoc) error {
		u := c.unit(unitID)
		if u == nil {
			return ErrUnitNotFound
		}
		if p.Title != nil && strings.TrimSpace(*p.Title) == "" {
			return invalid("unit title must not be empty")
		}
		applyUnitPatch(u, p)
		return nil
	})
}

// DeleteUnit 删除单元及其全部课时
func (s *Service) DeleteUnit(courseID, unitID string) (*CourseDoc, error) {
	return s.edit(courseID, func(c *CourseDoc) error {
		for i := range c.Units {
			if c.Units[i].UnitID == unitID {
				c.Units = append(c.Units[:i], c.Units[i+1:]...)
				return nil
			}
		}
		return ErrUnitNotFound
	})
}

// AddLesson 在单元末尾追加课时
func (s *Service) AddLesson(courseID, unitID string, p LessonPatch) (*CourseDoc, error) {
	if p.Title == nil || strings.TrimSpace(*p.Title) == "" {
		return nil, invalid("lesson title is required")
	}
	return s.edit(courseID, func(c *CourseDoc) error {
		u := c.unit(unitID)
		if u == nil {
			return ErrUnitNotFound
		}
		l := LessonDoc{LessonID: strings.TrimSpace(p.LessonID), Type: "explanation"}
		if l.LessonID == "" {
			l.LessonID = nextID(len(u.Lessons)+1, c.ID+"-"+u.UnitID+"-%d", func(id string) bool {
				_, _, ok := c.FindLesson(id)
				return ok || s.lessonTakenLocked(id, c.ID)
			})
		}
		applyLessonPatch(&l, p)
		u.Lessons = append(u.Lessons, l)
		return nil
	})
}

// UpdateLesson 修改课时
func (s *Service) UpdateLesson(courseID, unitID, lessonID string, p LessonPatch) (*CourseDoc, error) {
	return s.edit(courseID, func(c *CourseDoc) error {
		u := c.unit(unitID)
		if u == nil {
			return ErrUnitNotFound
		}
		for i := range u.Lessons {
			if u.Lessons[i].LessonID == lessonID {
				if p.Title != nil && strings.TrimSpace(*p.Title) == "" {
					return invalid("lesson title must not be empty")
				}
				applyLessonPatch(&u.Lessons[i], p)
				return nil
			}
		}
		return ErrLessonNotFound
	})
}

// DeleteLesson 删除课时，已有的学习记录保留但不再计入进度
func (s *Service) DeleteLesson(courseID, unitID, lessonID string) (*CourseDoc, error) {
	return s.edit(courseID, func(c *CourseDoc) error {
		u := c.unit(unitID)
		if u == nil {
			return ErrUnitNotFound
		}
		for i := range u.Lessons {
			if u.Lessons[i].LessonID == lessonID {
				u.Lessons = append(u.Lessons[:i], u.Lessons[i+1:]...)
				return nil
			}
		}
		return ErrLessonNotFound
	})
}

// edit 在副本上修改课程，校验通过后替换缓存
// 缓存中的 *CourseDoc 从不原地修改，读取方无需加锁
func (s *Service) edit(courseID string, fn func(c *CourseDoc) error) (*CourseDoc, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cur, ok := s.courses[courseID]
	if !ok {
		return nil, ErrCourseNotFound
	}
	next := cur.clone()
	if err := fn(next); err != nil {
		return nil, err
	}
	if err := s.commitLocked(next); err != nil {
		return nil, err
	}
	s.logger.Debug("课程已更新: %s", courseID)
	return next, nil
}

// commitLocked 校验课程、写回磁盘并替换缓存与课时索引
func (s *Service) commitLocked(c *CourseDoc) error {
	if c.Price < 0 {
		return invalid("negative price %.2f", c.Price)
	}
	units := make(map[string]bool)
	lessons := make(map[string]bool)
	for i := range c.Units {
		u := &c.Units[i]
		if units[u.UnitID] {
			return invalid("duplicate unit id %s", u.UnitID)
		}
		units[u.UnitID] = true
		for j := range u.Lessons {
			l := &u.Lessons[j]
			if s.lessonTakenLocked(l.LessonID, c.ID) {
				return invalid("lesson id %s already used by course %s", l.LessonID, s.lessons[l.LessonID])
			}
			if lessons[l.LessonID] {
				return invalid("duplicate lesson id %s", l.LessonID)
			}
			lessons[l.LessonID] = true
			if !lessonTypes[l.Type] {
				return invalid("lesson %s: unknown type %q", l.LessonID, l.Type)
			}
		}
	}
	sort.SliceStable(c.Units, func(a, b int) bool { return c.Units[a].Order < c.Units[b].Order })

	if err := s.persistLocked(c); err != nil {
		return err
	}
	for lessonID, owner := range s.lessons {
		if owner == c.ID {
			delete(s.lessons, lessonID)
		}
	}
	for _, id := range c.LessonIDs() {
		s.lessons[id] = c.ID
	}
	s.courses[c.ID] = c
	return nil
}

// lessonTakenLocked 课时 ID 是否已被其他课程占用
func (s *Service) lessonTakenLocked(lessonID, courseID string) bool {
	owner, ok := s.lessons[lessonID]
	return ok && owner != courseID
}

// persistLocked 磁盘模式下把课程写回 <dir>/<id>/index.yaml
// 从 Markdown 文件读入的讲解不写入配置，仍由 text 字段引用
func (s *Service) persistLocked(c *CourseDoc) error {
	if s.dir == "" {
		return nil
	}
	out := c.clone()
	for i := range out.Units {
		for j := range out.Units[i].Lessons {
			l := &out.Units[i].Lessons[j]
			if l.Text == "" || l.textContent == "" || l.Content == nil {
				continue
			}
			kept := make([]string, 0, len(l.Content.Explanation))
			dropped := false
			for _, e := range l.Content.Explanation {
				if !dropped && e == l.textContent {
					dropped = true
					continue
				}
				kept = append(kept, e)
			}
			l.Content.Explanation = kept
		}
	}
	data, err := yaml.Marshal(out)
	if err != nil {
		return fmt.Errorf("序列化课程失败: %w", err)
	}
	courseDir := filepath.Join(s.dir, c.ID)
	if err := os.MkdirAll(courseDir, 0o755); err != nil {
		return fmt.Errorf("创建课程目录失败: %w", err)
	}
	if err := os.WriteFile(filepath.Join(courseDir, "index.yaml"), data, 0o644); err != nil {
		return fmt.Errorf("写入课程配置失败: %w", err)
	}
	return nil
}

func applyCoursePatch(c *CourseDoc, p CoursePatch) {
	if p.Title != nil {
		c.Title = strings.TrimSpace(*p.Title)
	}
	if p.Description != nil {
		c.Description = *p.Description
	}
	if p.Price != nil {
		c.Price = *p.Price
	}
	if p.Category != nil {
		c.Category = *p.Category
	}
	if p.Level != nil {
		c.Level = *p.Level
	}
	if p.Thumbnail != nil {
		c.Thumbnail = *p.Thumbnail
	}
}

func applyUnitPatch(u *UnitDoc, p UnitPatch) {
	if p.Title != nil {
		u.Title = strings.TrimSpace(*p.Title)
	}
	if p.Description != nil {
		u.Description = *p.Description
	}
	if p.Order != nil {
		u.Order = *p.Order
	}
}

func applyLessonPatch(l *LessonDoc, p LessonPatch) {
	if p.Title != nil {
		l.Title = strings.TrimSpace(*p.Title)
	}
	if p.Type != nil {
		l.Type = normalizeLessonType(*p.Type)
	}
	if p.Duration != nil {
		l.Duration = *p.Duration
	}
	if p.IsPreview != nil {
		l.IsPreview = *p.IsPreview
	}
	if p.Content != nil {
		cp := *p.Content
		l.Content = &cp
		l.textContent = ""
	}
}

// normalizeLessonType 统一课时类型写法，text 与缺省都视为 explanation
func normalizeLessonType(t string) string {
	t = strings.ToLower(strings.TrimSpace(t))
	switch t {
	case "", "text":
		return "explanation"
	case "example":
		return "examples"
	}
	return t
}

// nextID 按 format 从 start 开始生成第一个未被占用的 ID
func nextID(start int, format string, taken func(string) bool) string {
	for i := start; ; i++ {
		id := fmt.Sprintf(format, i)
		if !taken(id) {
			return id
		}
	}
}

// slugify 由标题生成课程 ID，无可用字符时使用随机 ID
func slugify(title string) string {
	var b strings.Builder
	dash := false
	for _, r := range strings.ToLower(title) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
			dash = false
		case b.Len() > 0 && !dash:
			b.WriteByte('-')
			dash = true
		}
	}
	slug := strings.TrimRight(b.String(), "-")
	if slug == "" {
		return "course-" + uuid.NewString()[:8]
	}
	return slug
}

func (c *CourseDoc) unit(unitID string) *UnitDoc {
	for i := range c.Units {
		if c.Units[i].UnitID == unitID {
			return &c.Units[i]
		}
	}
	return nil
}

// clone 深拷贝单元与课时切片，课时内容按值复制
func (c *CourseDoc) clone() *CourseDoc {
	cp := *c
	cp.Tags = append([]string(nil), c.Tags...)
	cp.Units = make([]UnitDoc, len(c.Units))
	for i, u := range c.Units {
		cu := u
		cu.Lessons = make([]LessonDoc, len(u.Lessons))
		for j, l := range u.Lessons {
			if l.Content != nil {
				content := *l.Content
				content.Explanation = append([]string(nil), l.Content.Explanation...)
				l.Content = &content
			}
			cu.Lessons[j] = l
		}
		cp.Units[i] = cu
	}
	return &cp
}
