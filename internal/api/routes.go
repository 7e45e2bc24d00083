package api

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"learnhub/internal/catalog"
	"learnhub/internal/check"
	"learnhub/internal/config"
	"learnhub/internal/logger"
	"learnhub/internal/session"

	"github.com/gin-gonic/gin"
)

// Handler API处理器
// 本地沙箱服务，按远程课程服务的接口约定提供课程、报名与进度接口
type Handler struct {
	// catalog 课程目录，课程结构的唯一来源
	catalog *catalog.Service
	// ledger 报名与课时进度存储
	ledger catalog.Ledger
	// users 可登录的沙箱用户
	users *catalog.Users
	// logger 日志记录器实例，用于统一日志管理
	logger *logger.Logger

	// cfg 全局配置，用于令牌签发与环境检查
	cfg *config.Config

	metrics *Metrics
}

// NewHandler 创建新的API处理器
// 参数:
//
//	catalogService: 已加载的课程目录
//	ledger: 报名与进度存储（文件或 PostgreSQL）
//	users: 沙箱用户目录
//	logger: 日志记录器实例（从main函数传入，确保使用统一配置）
//	cfg: 全局配置
//
// 返回: 初始化的API处理器
func NewHandler(
	catalogService *catalog.Service,
	ledger catalog.Ledger,
	users *catalog.Users,
	logger *logger.Logger,
	cfg *config.Config,
) *Handler {
	return &Handler{
		catalog: catalogService,
		ledger:  ledger,
		users:   users,
		logger:  logger,
		cfg:     cfg,
		metrics: NewMetrics(),
	}
}

// SetupRoutes 设置路由
// 配置健康检查、指标、登录、课程、报名与进度接口
// 参数:
//
//	r: Gin引擎实例
func (h *Handler) SetupRoutes(r *gin.Engine) {
	r.Use(h.metrics.Middleware())

	// 健康检查与指标（根级别）
	r.GET("/health", h.healthCheck)
	r.GET("/metrics", h.metrics.Handler())

	api := r.Group("/api")
	{
		// 环境检测
		api.GET("/check", h.envCheck)

		auth := api.Group("/auth")
		{
			auth.POST("/login", h.login)
			auth.GET("/me", h.authRequired(), h.me)
		}

		// 课程相关路由，携带令牌时返回报名与进度
		courses := api.Group("/courses")
		{
			courses.GET("", h.getCourses)
			courses.GET("/:id", h.authOptional(), h.getCourse)
		}

		// 课程编辑，仅管理员
		admin := api.Group("/courses", h.authRequired(), h.adminRequired())
		{
			admin.POST("", h.createCourse)
			admin.PUT("/:id", h.updateCourse)
			admin.DELETE("/:id", h.deleteCourse)
			admin.POST("/:id/unit", h.addUnit)
			admin.PUT("/:id/unit/:unitId", h.updateUnit)
			admin.DELETE("/:id/unit/:unitId", h.deleteUnit)
			admin.POST("/:id/unit/:unitId/lesson", h.addLesson)
			admin.PUT("/:id/unit/:unitId/lesson/:lessonId", h.updateLesson)
			admin.DELETE("/:id/unit/:unitId/lesson/:lessonId", h.deleteLesson)
		}

		comments := api.Group("/comments")
		{
			comments.GET("/:courseId", h.authOptional(), h.listComments)
			comments.POST("", h.authRequired(), h.postComment)
			comments.DELETE("/:id", h.authRequired(), h.deleteComment)
		}

		enrollments := api.Group("/enrollments", h.authRequired())
		{
			enrollments.GET("/my/enrollments", h.myEnrollments)
			enrollments.POST("/:courseId/enroll", h.enroll)
		}

		progress := api.Group("/progress", h.authRequired())
		{
			progress.POST("/lesson/:lessonId", h.updateLessonProgress)
			progress.GET("/course/:courseId", h.getCourseProgress)
		}
	}
}

// healthCheck 健康检查
// 响应: {"status": "ok", "message": "LearnHub sandbox is running"}
func (h *Handler) healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "ok",
		"message": "LearnHub sandbox is running",
	})
}

// envCheck 环境检测，与 cmd/check 共用检查逻辑但以 JSON 返回
func (h *Handler) envCheck(c *gin.Context) {
	h.logger.Info("Handling /api/check request")
	items := make([]check.Item, 0, 3)

	// 课程完整性（使用已加载的服务）
	coursesOK, coursesMsg := check.CatalogIntegrity(h.catalog)
	items = append(items, check.Item{Name: "课程加载与完整性", OK: coursesOK, Message: coursesMsg})

	// 存储
	items = append(items, h.ledgerItem(c.Request.Context()))

	items = append(items, check.Item{
		Name:    "沙箱用户",
		OK:      h.users.Len() > 0,
		Message: fmt.Sprintf("共 %d 个可登录用户", h.users.Len()),
	})

	c.JSON(http.StatusOK, check.NewSummary(items))
}

// ledgerItem 检查学习记录存储，PostgreSQL 存储额外探测连通性
func (h *Handler) ledgerItem(ctx context.Context) check.Item {
	pinger, ok := h.ledger.(interface{ Ping(context.Context) error })
	if !ok {
		return check.Item{Name: "学习记录存储", OK: true, Message: "使用本地文件存储"}
	}
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := pinger.Ping(ctx); err != nil {
		return check.Item{Name: "学习记录存储", OK: false, Message: fmt.Sprintf("数据库不可用：%v", err)}
	}
	return check.Item{Name: "学习记录存储", OK: true, Message: "PostgreSQL 连接正常"}
}

type loginRequest struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// login 邮箱密码登录
// 响应:
//
//	200: {"token": "...", "user": {...}}
//	400: 请求体缺少 email 或 password
//	401: {"error": "Invalid email or password"}
func (h *Handler) login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Please provide email and password"})
		return
	}
	user, err := h.users.Authenticate(req.Email, req.Password)
	if err != nil {
		h.logger.Debug("登录失败 %s: %v", req.Email, err)
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid email or password"})
		return
	}
	token, err := session.IssueToken(h.cfg.Auth.JWTSecret, user, h.cfg.Auth.TokenTTL)
	if err != nil {
		h.logger.Error("签发令牌失败: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to issue token"})
		return
	}
	h.logger.Info("用户登录: %s", user.Email)
	c.JSON(http.StatusOK, gin.H{"token": token, "user": user})
}

// me 返回令牌中的用户信息
func (h *Handler) me(c *gin.Context) {
	v, _ := c.Get(claimsKey)
	claims := v.(*session.Claims)
	c.JSON(http.StatusOK, gin.H{"user": session.User{
		ID:    claims.Subject,
		Name:  claims.Name,
		Email: claims.Email,
		Role:  claims.Role,
	}})
}

// getCourses 获取所有课程
// 列表中非试看课时不返回内容
// 响应: {"courses": [courseObject, ...]}
func (h *Handler) getCourses(c *gin.Context) {
	all := h.catalog.GetCourses()
	list := make([]*catalog.CourseDoc, 0, len(all))
	for _, doc := range all {
		list = append(list, doc.Locked())
	}
	c.JSON(http.StatusOK, gin.H{
		"courses": list,
	})
}

// getCourse 获取指定课程
// 路径参数:
//
//	id: 课程ID
//
// 响应:
//
//	200: {"course": courseObject, "enrollment"?: ..., "progress"?: ..., "detailedProgress"?: [...]}
//	404: {"error": "Course not found"}
//
// 未报名或仅试看时，非试看课时的内容被移除
func (h *Handler) getCourse(c *gin.Context) {
	id := strings.TrimSpace(c.Param("id"))
	doc, ok := h.catalog.GetCourse(id)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "Course not found"})
		return
	}

	userID, authed := currentUser(c)
	if !authed {
		c.JSON(http.StatusOK, gin.H{"course": doc.Locked()})
		return
	}

	ctx := c.Request.Context()
	rec, enrolled, err := h.ledger.Enrollment(ctx, userID, doc.ID)
	if err != nil {
		h.internalError(c, "查询报名记录失败", err)
		return
	}
	if !enrolled {
		c.JSON(http.StatusOK, gin.H{"course": doc.Locked()})
		return
	}

	records, err := h.ledger.Lessons(ctx, userID, doc.ID)
	if err != nil {
		h.internalError(c, "查询课时进度失败", err)
		return
	}
	served := doc
	if rec.AccessLevel != "full" {
		served = doc.Locked()
	}
	summary := catalog.BuildProgress(doc, records)
	c.JSON(http.StatusOK, gin.H{
		"course":           served,
		"enrollment":       catalog.BuildEnrollmentView(rec, doc, records),
		"progress":         summary,
		"detailedProgress": summary.DetailedProgress,
	})
}

// myEnrollments 当前用户的全部报名记录
// 响应: {"enrollments": [enrollmentObject, ...]}
func (h *Handler) myEnrollments(c *gin.Context) {
	userID, _ := currentUser(c)
	ctx := c.Request.Context()

	list, err := h.ledger.Enrollments(ctx, userID)
	if err != nil {
		h.internalError(c, "查询报名列表失败", err)
		return
	}
	views := make([]catalog.EnrollmentView, 0, len(list))
	for _, rec := range list {
		doc, ok := h.catalog.GetCourse(rec.CourseID)
		if !ok {
			// 课程已从目录中移除，仍返回报名记录本身
			views = append(views, catalog.BuildEnrollmentView(rec, nil, nil))
			continue
		}
		records, err := h.ledger.Lessons(ctx, userID, rec.CourseID)
		if err != nil {
			h.internalError(c, "查询课时进度失败", err)
			return
		}
		views = append(views, catalog.BuildEnrollmentView(rec, doc, records))
	}
	c.JSON(http.StatusOK, gin.H{"enrollments": views})
}

// enroll 报名课程
// 请求体为可选的支付信息，付费课程携带支付信息时授予完整访问
// 响应:
//
//	201: {"message": "Enrolled successfully", "enrollment": {...}}
//	200: {"message": "Already enrolled", "enrollment": {...}}
//	404: {"error": "Course not found"}
func (h *Handler) enroll(c *gin.Context) {
	userID, _ := currentUser(c)
	doc, ok := h.catalog.GetCourse(strings.TrimSpace(c.Param("courseId")))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "Course not found"})
		return
	}

	var raw map[string]any
	if err := c.ShouldBindJSON(&raw); err != nil && !errors.Is(err, io.EOF) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid payment payload"})
		return
	}
	payment := make(map[string]string, len(raw))
	for k, v := range raw {
		if v == nil {
			continue
		}
		payment[k] = fmt.Sprint(v)
	}

	rec, created, err := h.ledger.Enroll(c.Request.Context(), userID, doc, payment)
	if err != nil {
		h.internalError(c, "报名失败", err)
		return
	}
	h.metrics.enrollments.WithLabelValues(rec.AccessLevel, strconv.FormatBool(created)).Inc()

	view := catalog.BuildEnrollmentView(rec, doc, nil)
	if !created {
		c.JSON(http.StatusOK, gin.H{"message": "Already enrolled", "enrollment": view})
		return
	}
	h.logger.Info("用户 %s 报名课程 %s (%s)", userID, doc.ID, rec.AccessLevel)
	c.JSON(http.StatusCreated, gin.H{"message": "Enrolled successfully", "enrollment": view})
}

type progressRequest struct {
	CourseID  string   `json:"courseId"`
	Status    string   `json:"status"`
	TimeSpent *int     `json:"timeSpent"`
	Score     *float64 `json:"score"`
	// 以下字段仅记录，不参与进度计算
	QuizAnswers      any    `json:"quizAnswers"`
	CodingSubmission any    `json:"codingSubmission"`
	SubmissionID     string `json:"submissionId"`
}

// updateLessonProgress 上报课时进度
// courseId 可省略，省略时按课时反查所属课程
// 响应:
//
//	200: {"message": "Progress updated", "progress": lessonRecord, "courseProgress": summary}
//	400: 状态非法或 courseId 与课时不匹配
//	403: 未报名，或仅试看时访问非试看课时
//	404: 课时不存在
func (h *Handler) updateLessonProgress(c *gin.Context) {
	userID, _ := currentUser(c)
	lessonID := strings.TrimSpace(c.Param("lessonId"))

	var req progressRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid progress payload"})
		return
	}

	doc, ok := h.catalog.CourseOfLesson(lessonID)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "Lesson not found"})
		return
	}
	if req.CourseID != "" && req.CourseID != doc.ID {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Lesson does not belong to course"})
		return
	}
	lesson, _, _ := doc.FindLesson(lessonID)

	ctx := c.Request.Context()
	rec, enrolled, err := h.ledger.Enrollment(ctx, userID, doc.ID)
	if err != nil {
		h.internalError(c, "查询报名记录失败", err)
		return
	}
	if !enrolled {
		c.JSON(http.StatusForbidden, gin.H{"error": "Not enrolled in this course"})
		return
	}
	if rec.AccessLevel != "full" && !lesson.IsPreview {
		c.JSON(http.StatusForbidden, gin.H{"error": "Full access required for this lesson"})
		return
	}

	if req.SubmissionID != "" || req.QuizAnswers != nil || req.CodingSubmission != nil {
		h.logger.Debug("lesson %s submission received (submissionId=%q)", lessonID, req.SubmissionID)
	}
	saved, err := h.ledger.SaveLesson(ctx, userID, doc.ID, lessonID, catalog.LessonUpdate{
		Status:    req.Status,
		TimeSpent: req.TimeSpent,
		Score:     req.Score,
	})
	if errors.Is(err, catalog.ErrInvalidStatus) {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err != nil {
		h.internalError(c, "保存课时进度失败", err)
		return
	}
	h.metrics.progressUpdates.WithLabelValues(saved.Status).Inc()

	records, err := h.ledger.Lessons(ctx, userID, doc.ID)
	if err != nil {
		h.internalError(c, "查询课时进度失败", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"message":        "Progress updated",
		"progress":       saved,
		"courseProgress": catalog.BuildProgress(doc, records),
	})
}

// getCourseProgress 课程进度汇总
// 响应: {"progress": summary, "detailedProgress": [...]}
func (h *Handler) getCourseProgress(c *gin.Context) {
	userID, _ := currentUser(c)
	doc, ok := h.catalog.GetCourse(strings.TrimSpace(c.Param("courseId")))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "Course not found"})
		return
	}
	ctx := c.Request.Context()
	if _, enrolled, err := h.ledger.Enrollment(ctx, userID, doc.ID); err != nil {
		h.internalError(c, "查询报名记录失败", err)
		return
	} else if !enrolled {
		c.JSON(http.StatusForbidden, gin.H{"error": "Not enrolled in this course"})
		return
	}
	records, err := h.ledger.Lessons(ctx, userID, doc.ID)
	if err != nil {
		h.internalError(c, "查询课时进度失败", err)
		return
	}
	summary := catalog.BuildProgress(doc, records)
	c.JSON(http.StatusOK, gin.H{"progress": summary, "detailedProgress": summary.DetailedProgress})
}

// internalError 记录错误并返回 500
func (h *Handler) internalError(c *gin.Context, msg string, err error) {
	h.logger.Error("%s: %v", msg, err)
	c.JSON(http.StatusInternalServerError, gin.H{"error": "Server error"})
}
