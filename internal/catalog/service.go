// Package catalog 提供本地沙箱课程服务的数据层
// 包括课程加载、报名与进度账本、用户账号
//
// 主要功能:
//   - 从磁盘目录或嵌入式文件系统加载 YAML 课程配置与 Markdown 讲解
//   - 报名与课时进度的持久化（JSON 文件或 PostgreSQL）
//   - 基于 bcrypt 的用户校验
//
// 使用示例:
//
//	service := catalog.NewService("./courses")
//	service.LoadCourses()
//	courses := service.GetCourses()
package catalog

import (
	"fmt"
	"io/fs"
	"os"
	"path"
	"sort"
	"strings"
	"sync"

	"learnhub/internal/logger"

	"gopkg.in/yaml.v3"
)

// lessonTypes 允许出现在课程配置中的课时类型
var lessonTypes = map[string]bool{
	"explanation": true,
	"examples":    true,
	"quiz":        true,
	"coding":      true,
	"video":       true,
}

// Service 课程服务，负责管理所有课程的加载和访问
// 线程安全，支持并发访问
type Service struct {
	coursesFS       fs.FS                 // 课程文件系统，磁盘模式下为 os.DirFS
	coursesBasePath string                // 课程在FS中的根路径
	dir             string                // 磁盘模式下的课程目录，编辑结果写回此处；嵌入模式为空
	courses         map[string]*CourseDoc // 课程缓存，key为课程ID
	lessons         map[string]string     // lessonID -> courseID
	mu              sync.RWMutex
	logger          *logger.Logger
}

// NewService 创建基于磁盘目录的课程服务
func NewService(coursesDir string) *Service {
	loggerInstance := logger.NewLogger(logger.INFO)
	loggerInstance.Debug("Creating new course service with directory: %s", coursesDir)
	if _, err := os.Stat(coursesDir); err != nil {
		loggerInstance.Warn("courses directory unavailable: %v", err)
	}
	return &Service{
		coursesFS:       os.DirFS(coursesDir),
		coursesBasePath: ".",
		dir:             coursesDir,
		courses:         make(map[string]*CourseDoc),
		lessons:         make(map[string]string),
		logger:          loggerInstance,
	}
}

// NewServiceFromFS 基于嵌入式文件系统创建课程服务（发布模式）
// 参数:
//
//	coursesFS: 提供课程内容的文件系统，通常为 embed.FS
//	basePath: 课程在FS中的根路径，例如 "courses"
func NewServiceFromFS(coursesFS fs.FS, basePath string) *Service {
	loggerInstance := logger.NewLogger(logger.INFO)
	loggerInstance.Debug("Creating new course service from FS with base path: %s", basePath)
	return &Service{
		coursesFS:       coursesFS,
		coursesBasePath: basePath,
		courses:         make(map[string]*CourseDoc),
		lessons:         make(map[string]string),
		logger:          loggerInstance,
	}
}

// SetLogger 设置日志记录器实例
func (s *Service) SetLogger(loggerInstance *logger.Logger) {
	s.logger = loggerInstance
}

// LoadCourses 加载所有课程
// 扫描课程根目录下的每个子目录，单个课程加载失败只记录日志
// 会清空现有课程缓存并重新加载
func (s *Service) LoadCourses() error {
	s.logger.Debug("Loading courses from: %s", s.coursesBasePath)

	entries, err := fs.ReadDir(s.coursesFS, s.coursesBasePath)
	if err != nil {
		return fmt.Errorf("failed to read courses directory: %w", err)
	}

	courses := make(map[string]*CourseDoc)
	lessons := make(map[string]string)
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		courseID := entry.Name()
		s.logger.Debug("Loading course: %s", courseID)

		c, err := s.loadCourse(courseID, path.Join(s.coursesBasePath, courseID))
		if err != nil {
			s.logger.Error("Failed to load course %s: %v", courseID, err)
			continue
		}
		if dup := duplicateLesson(c, lessons); dup != "" {
			s.logger.Error("Failed to load course %s: lesson id %s already used by course %s", courseID, dup, lessons[dup])
			continue
		}
		for _, u := range c.Units {
			for _, l := range u.Lessons {
				lessons[l.LessonID] = c.ID
			}
		}
		courses[c.ID] = c
	}

	s.mu.Lock()
	s.courses = courses
	s.lessons = lessons
	s.mu.Unlock()

	s.logger.Info("Successfully loaded %d courses", len(courses))
	return nil
}

func duplicateLesson(c *CourseDoc, known map[string]string) string {
	for _, u := range c.Units {
		for _, l := range u.Lessons {
			if _, ok := known[l.LessonID]; ok {
				return l.LessonID
			}
		}
	}
	return ""
}

// loadCourse 加载单个课程的配置和内容
func (s *Service) loadCourse(courseID, coursePath string) (*CourseDoc, error) {
	configPath := path.Join(coursePath, "index.yaml")

	configData, err := fs.ReadFile(s.coursesFS, configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read course config: %w", err)
	}
	if len(configData) == 0 {
		return nil, fmt.Errorf("course config file is empty: %s", configPath)
	}

	var c CourseDoc
	if err := yaml.Unmarshal(configData, &c); err != nil {
		return nil, fmt.Errorf("failed to parse course config: %w", err)
	}

	// 课程ID始终取目录名
	c.ID = courseID
	if c.Title == "" {
		c.Title = courseID
	}
	if c.Price < 0 {
		return nil, fmt.Errorf("negative price %.2f", c.Price)
	}

	if err := s.normalizeUnits(&c, coursePath); err != nil {
		return nil, err
	}
	return &c, nil
}

// normalizeUnits 补齐单元与课时的默认值并加载 Markdown 讲解
func (s *Service) normalizeUnits(c *CourseDoc, coursePath string) error {
	seen := make(map[string]bool)
	for i := range c.Units {
		u := &c.Units[i]
		if u.UnitID == "" {
			u.UnitID = fmt.Sprintf("unit-%d", i+1)
		}
		if u.Order == 0 {
			u.Order = i + 1
		}
		for j := range u.Lessons {
			l := &u.Lessons[j]
			if l.LessonID == "" {
				l.LessonID = fmt.Sprintf("%s-%s-%d", c.ID, u.UnitID, j+1)
			}
			if seen[l.LessonID] {
				return fmt.Errorf("duplicate lesson id %s", l.LessonID)
			}
			seen[l.LessonID] = true

			l.Type = strings.ToLower(strings.TrimSpace(l.Type))
			if l.Type == "" || l.Type == "text" {
				l.Type = "explanation"
			}
			if !lessonTypes[l.Type] {
				return fmt.Errorf("lesson %s: unknown type %q", l.LessonID, l.Type)
			}
			if l.Text != "" {
				s.loadLessonText(c.ID, l, coursePath)
			}
		}
	}
	sort.SliceStable(c.Units, func(a, b int) bool { return c.Units[a].Order < c.Units[b].Order })
	return nil
}

// loadLessonText 读取课时 Markdown 文件；示例类课时同时提取其中的代码块
// 文件缺失只记录告警，课时保留空讲解
func (s *Service) loadLessonText(courseID string, l *LessonDoc, coursePath string) {
	content, err := s.loadMarkdownFile(path.Join(coursePath, l.Text))
	if err != nil {
		s.logger.Warn("Failed to load lesson file %s for course %s: %v", l.Text, courseID, err)
		return
	}
	if l.Content == nil {
		l.Content = &ContentDoc{}
	}
	l.Content.Explanation = append(l.Content.Explanation, content)
	l.textContent = content
	if l.Type == "examples" && len(l.Content.Examples) == 0 {
		l.Content.Examples = extractCodeBlocks(content)
	}
	s.logger.Debug("Loaded lesson file %s for course: %s", l.Text, courseID)
}

// loadMarkdownFile 读取并返回Markdown文件的内容
func (s *Service) loadMarkdownFile(filePath string) (string, error) {
	content, err := fs.ReadFile(s.coursesFS, filePath)
	if err != nil {
		return "", fmt.Errorf("failed to read markdown file %s: %w", filePath, err)
	}
	if len(content) == 0 {
		return "", fmt.Errorf("markdown file is empty: %s", filePath)
	}
	return string(content), nil
}

// GetCourses 获取所有课程，按标题排序
func (s *Service) GetCourses() []*CourseDoc {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*CourseDoc, 0, len(s.courses))
	for _, c := range s.courses {
		result = append(result, c)
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].Title == result[j].Title {
			return result[i].ID < result[j].ID
		}
		return result[i].Title < result[j].Title
	})
	return result
}

// GetCourse 根据ID获取特定课程
func (s *Service) GetCourse(id string) (*CourseDoc, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, exists := s.courses[id]
	return c, exists
}

// CourseOfLesson 返回课时所属的课程
func (s *Service) CourseOfLesson(lessonID string) (*CourseDoc, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	courseID, ok := s.lessons[lessonID]
	if !ok {
		return nil, false
	}
	c, ok := s.courses[courseID]
	return c, ok
}

// LessonIDs 按课程顺序返回所有课时 ID
func (c *CourseDoc) LessonIDs() []string {
	ids := make([]string, 0)
	for _, u := range c.Units {
		for _, l := range u.Lessons {
			ids = append(ids, l.LessonID)
		}
	}
	return ids
}

// FindLesson 按 ID 查找课时及其所在单元
func (c *CourseDoc) FindLesson(lessonID string) (*LessonDoc, *UnitDoc, bool) {
	for i := range c.Units {
		u := &c.Units[i]
		for j := range u.Lessons {
			if u.Lessons[j].LessonID == lessonID {
				return &u.Lessons[j], u, true
			}
		}
	}
	return nil, nil, false
}

// Locked 返回隐藏非试看课时内容的副本，供未获得完整访问权限的用户查看
func (c *CourseDoc) Locked() *CourseDoc {
	cp := *c
	cp.Units = make([]UnitDoc, len(c.Units))
	for i, u := range c.Units {
		cu := u
		cu.Lessons = make([]LessonDoc, len(u.Lessons))
		for j, l := range u.Lessons {
			if !l.IsPreview {
				l.Content = nil
			}
			cu.Lessons[j] = l
		}
		cp.Units[i] = cu
	}
	return &cp
}

// extractCodeBlocks 从Markdown文本中提取围栏代码块，保留语言标记
func extractCodeBlocks(text string) []string {
	var blocks []string
	lines := strings.Split(text, "\n")
	inCodeBlock := false
	var current []string

	for _, line := range lines {
		if strings.HasPrefix(strings.TrimSpace(line), "```") {
			if inCodeBlock {
				current = append(current, "```")
				blocks = append(blocks, strings.Join(current, "\n"))
				current = nil
			} else {
				current = []string{strings.TrimSpace(line)}
			}
			inCodeBlock = !inCodeBlock
			continue
		}
		if inCodeBlock {
			current = append(current, line)
		}
	}
	return blocks
}
