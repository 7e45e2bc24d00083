package api

import (
	"errors"
	"net/http"
	"strings"

	"learnhub/internal/catalog"

	"github.com/gin-gonic/gin"
)

// 课程编辑接口，请求体字段缺省表示不修改
// 成功时统一返回 {"course": courseObject}，删除课程返回 {"message": "Course deleted"}

func (h *Handler) createCourse(c *gin.Context) {
	var p catalog.CoursePatch
	if err := c.ShouldBindJSON(&p); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid course payload"})
		return
	}
	doc, err := h.catalog.CreateCourse(p)
	h.courseResult(c, http.StatusCreated, doc, err)
}

func (h *Handler) updateCourse(c *gin.Context) {
	var p catalog.CoursePatch
	if err := c.ShouldBindJSON(&p); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid course payload"})
		return
	}
	doc, err := h.catalog.UpdateCourse(c.Param("id"), p)
	h.courseResult(c, http.StatusOK, doc, err)
}

func (h *Handler) deleteCourse(c *gin.Context) {
	if err := h.catalog.DeleteCourse(c.Param("id")); err != nil {
		h.editError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Course deleted"})
}

func (h *Handler) addUnit(c *gin.Context) {
	var p catalog.UnitPatch
	if err := c.ShouldBindJSON(&p); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid unit payload"})
		return
	}
	doc, err := h.catalog.AddUnit(c.Param("id"), p)
	h.courseResult(c, http.StatusCreated, doc, err)
}

func (h *Handler) updateUnit(c *gin.Context) {
	var p catalog.UnitPatch
	if err := c.ShouldBindJSON(&p); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid unit payload"})
		return
	}
	doc, err := h.catalog.UpdateUnit(c.Param("id"), c.Param("unitId"), p)
	h.courseResult(c, http.StatusOK, doc, err)
}

func (h *Handler) deleteUnit(c *gin.Context) {
	doc, err := h.catalog.DeleteUnit(c.Param("id"), c.Param("unitId"))
	h.courseResult(c, http.StatusOK, doc, err)
}

func (h *Handler) addLesson(c *gin.Context) {
	var p catalog.LessonPatch
	if err := c.ShouldBindJSON(&p); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid lesson payload"})
		return
	}
	doc, err := h.catalog.AddLesson(c.Param("id"), c.Param("unitId"), p)
	h.courseResult(c, http.StatusCreated, doc, err)
}

func (h *Handler) updateLesson(c *gin.Context) {
	var p catalog.LessonPatch
	if err := c.ShouldBindJSON(&p); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid lesson payload"})
		return
	}
	doc, err := h.catalog.UpdateLesson(c.Param("id"), c.Param("unitId"), c.Param("lessonId"), p)
	h.courseResult(c, http.StatusOK, doc, err)
}

func (h *Handler) deleteLesson(c *gin.Context) {
	doc, err := h.catalog.DeleteLesson(c.Param("id"), c.Param("unitId"), c.Param("lessonId"))
	h.courseResult(c, http.StatusOK, doc, err)
}

// courseResult 写出编辑后的完整课程
func (h *Handler) courseResult(c *gin.Context, status int, doc *catalog.CourseDoc, err error) {
	if err != nil {
		h.editError(c, err)
		return
	}
	userID, _ := currentUser(c)
	h.logger.Info("管理员 %s 修改课程 %s (%s %s)", userID, doc.ID, c.Request.Method, c.FullPath())
	c.JSON(status, gin.H{"course": doc})
}

// editError 编辑错误到状态码的映射
func (h *Handler) editError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, catalog.ErrCourseNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "Course not found"})
	case errors.Is(err, catalog.ErrUnitNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "Unit not found"})
	case errors.Is(err, catalog.ErrLessonNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "Lesson not found"})
	case errors.Is(err, catalog.ErrCourseExists):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.Is(err, catalog.ErrInvalidCourse):
		c.JSON(http.StatusBadRequest, gin.H{"error": strings.TrimPrefix(err.Error(), catalog.ErrInvalidCourse.Error()+": ")})
	default:
		h.internalError(c, "保存课程失败", err)
	}
}
