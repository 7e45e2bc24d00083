package catalog

import (
	"os"
	"path/filepath"
	"testing"
	"testing/fstest"

	"learnhub/internal/logger"
)

const goBasicsYAML = `
title: Go Basics
description: First steps
price: 0
units:
  - unitId: u2
    title: Practice
    order: 2
    lessons:
      - lessonId: go-quiz
        title: Quiz
        type: quiz
        content:
          quiz:
            - question: "2+2?"
              options: ["3", "4"]
              answer: "4"
  - title: Intro
    order: 1
    lessons:
      - lessonId: go-hello
        title: Hello
        type: text
        isPreview: true
        text: hello.md
      - title: Examples
        type: examples
        text: examples.md
`

const examplesMD = "# Examples\n\n```go\nfmt.Println(\"hi\")\n```\n\ntext\n\n```bash\n$ go run .\n```\n"

func testFS() fstest.MapFS {
	return fstest.MapFS{
		"courses/go-basics/index.yaml":  {Data: []byte(goBasicsYAML)},
		"courses/go-basics/hello.md":    {Data: []byte("# Hello\n")},
		"courses/go-basics/examples.md": {Data: []byte(examplesMD)},
		"courses/broken/index.yaml":     {Data: []byte("units:\n  - lessons:\n      - type: podcast\n")},
		"courses/empty/index.yaml":      {Data: []byte("")},
		"courses/README.md":             {Data: []byte("not a course")},
	}
}

func loadTestService(t *testing.T) *Service {
	t.Helper()
	svc := NewServiceFromFS(testFS(), "courses")
	svc.SetLogger(logger.NewLogger(logger.ERROR))
	if err := svc.LoadCourses(); err != nil {
		t.Fatalf("LoadCourses() error: %v", err)
	}
	return svc
}

func TestLoadCourses_FromFS(t *testing.T) {
	svc := loadTestService(t)

	courses := svc.GetCourses()
	if len(courses) != 1 {
		t.Fatalf("GetCourses() len = %d, want 1 (broken courses skipped)", len(courses))
	}
	c := courses[0]
	if c.ID != "go-basics" || c.Title != "Go Basics" {
		t.Errorf("course = %s %q", c.ID, c.Title)
	}
	if c.Units[0].Title != "Intro" || c.Units[0].UnitID != "unit-2" {
		t.Errorf("first unit = %+v, want Intro sorted by order with default id", c.Units[0])
	}

	hello := c.Units[0].Lessons[0]
	if hello.Type != "explanation" {
		t.Errorf("hello.Type = %s, want explanation", hello.Type)
	}
	if hello.Content == nil || hello.Content.Explanation[0] != "# Hello\n" {
		t.Errorf("hello content = %+v", hello.Content)
	}

	ex := c.Units[0].Lessons[1]
	if ex.LessonID != "go-basics-unit-2-2" {
		t.Errorf("generated lesson id = %s", ex.LessonID)
	}
	if len(ex.Content.Examples) != 2 || ex.Content.Examples[0] != "```go\nfmt.Println(\"hi\")\n```" {
		t.Errorf("examples = %q", ex.Content.Examples)
	}
}

func TestLoadCourses_FromDisk(t *testing.T) {
	tmpDir := t.TempDir()
	courseDir := filepath.Join(tmpDir, "disk-course")
	if err := os.MkdirAll(courseDir, 0o755); err != nil {
		t.Fatalf("MkdirAll() error: %v", err)
	}
	yamlData := "title: Disk\nprice: 19.9\nunits:\n  - unitId: u1\n    lessons:\n      - lessonId: d1\n"
	if err := os.WriteFile(filepath.Join(courseDir, "index.yaml"), []byte(yamlData), 0o644); err != nil {
		t.Fatalf("WriteFile() error: %v", err)
	}

	svc := NewService(tmpDir)
	svc.SetLogger(logger.NewLogger(logger.ERROR))
	if err := svc.LoadCourses(); err != nil {
		t.Fatalf("LoadCourses() error: %v", err)
	}
	c, ok := svc.GetCourse("disk-course")
	if !ok {
		t.Fatal("GetCourse() not found")
	}
	if c.Price != 19.9 {
		t.Errorf("Price = %v, want 19.9", c.Price)
	}
	if owner, ok := svc.CourseOfLesson("d1"); !ok || owner.ID != "disk-course" {
		t.Errorf("CourseOfLesson(d1) = %v, %v", owner, ok)
	}
}

func TestLoadCourses_MissingDirectory(t *testing.T) {
	svc := NewService(filepath.Join(t.TempDir(), "nope"))
	svc.SetLogger(logger.NewLogger(logger.ERROR))
	if err := svc.LoadCourses(); err == nil {
		t.Error("LoadCourses() should fail for missing directory")
	}
}

func TestLoadCourses_DuplicateLessonAcrossCourses(t *testing.T) {
	memFS := fstest.MapFS{
		"courses/a/index.yaml": {Data: []byte("title: A\nunits:\n  - lessons:\n      - lessonId: same\n")},
		"courses/b/index.yaml": {Data: []byte("title: B\nunits:\n  - lessons:\n      - lessonId: same\n")},
	}
	svc := NewServiceFromFS(memFS, "courses")
	svc.SetLogger(logger.NewLogger(logger.ERROR))
	if err := svc.LoadCourses(); err != nil {
		t.Fatalf("LoadCourses() error: %v", err)
	}
	if n := len(svc.GetCourses()); n != 1 {
		t.Errorf("courses = %d, want 1", n)
	}
}

func TestCourseDoc_Locked(t *testing.T) {
	svc := loadTestService(t)
	c, _ := svc.GetCourse("go-basics")

	locked := c.Locked()
	if locked.Units[0].Lessons[0].Content == nil {
		t.Error("preview lesson content removed")
	}
	if locked.Units[0].Lessons[1].Content != nil {
		t.Error("locked lesson content kept")
	}
	if c.Units[0].Lessons[1].Content == nil {
		t.Error("Locked() modified the cached course")
	}
}

func TestExtractCodeBlocks(t *testing.T) {
	blocks := extractCodeBlocks(examplesMD)
	if len(blocks) != 2 {
		t.Fatalf("blocks = %d, want 2", len(blocks))
	}
	if blocks[1] != "```bash\n$ go run .\n```" {
		t.Errorf("blocks[1] = %q", blocks[1])
	}
	if got := extractCodeBlocks("no code"); len(got) != 0 {
		t.Errorf("extractCodeBlocks(no code) = %v", got)
	}
}
