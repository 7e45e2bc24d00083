// Package remote 封装对远程课程服务 REST 接口的访问
//
// 响应体以无类型的 Payload 返回，由 course 包的规范化函数转换为内部模型。
package remote

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"learnhub/internal/logger"

	"github.com/go-resty/resty/v2"
)

// Payload 未经规范化的 JSON 对象
type Payload = map[string]any

// APIError 服务端拒绝请求（非 2xx 状态码）
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("remote service returned HTTP %d", e.StatusCode)
	}
	return fmt.Sprintf("remote service returned HTTP %d: %s", e.StatusCode, e.Message)
}

// HTTPStatus 返回 HTTP 状态码
func (e *APIError) HTTPStatus() int { return e.StatusCode }

// ServerMessage 返回服务端给出的说明文字
func (e *APIError) ServerMessage() string { return e.Message }

// TransportError 网络或传输层失败
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// IsNotFound 判断错误是否为 404
func IsNotFound(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound
}

// Options 客户端选项
type Options struct {
	Timeout   time.Duration
	UserAgent string
}

// Client 远程课程服务客户端
type Client struct {
	http   *resty.Client
	logger *logger.Logger
}

// NewClient 创建客户端
// 参数:
//
//	baseURL: 服务根地址（含 /api 前缀），例如 http://localhost:5000/api
//	opts: 超时与 User-Agent
//	loggerInstance: 日志记录器实例
func NewClient(baseURL string, opts Options, loggerInstance *logger.Logger) *Client {
	rc := resty.New().
		SetBaseURL(strings.TrimRight(baseURL, "/")).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "application/json")
	if opts.Timeout > 0 {
		rc.SetTimeout(opts.Timeout)
	}
	if opts.UserAgent != "" {
		rc.SetHeader("User-Agent", opts.UserAgent)
	}
	return &Client{http: rc, logger: loggerInstance}
}

// request 构造带可选 Bearer 令牌的请求
func (c *Client) request(ctx context.Context, token string) *resty.Request {
	req := c.http.R().SetContext(ctx)
	if token != "" {
		req.SetAuthToken(token)
	}
	return req
}

// do 发送请求并解析 JSON 响应体
// 非 2xx 返回 *APIError，网络失败返回 *TransportError
func (c *Client) do(req *resty.Request, method, path string) (Payload, error) {
	op := method + " " + path
	resp, err := req.Execute(method, path)
	if err != nil {
		c.logger.Debug("request failed: %s: %v", op, err)
		return nil, &TransportError{Op: op, Err: err}
	}
	c.logger.Debug("%s -> %d (%s)", op, resp.StatusCode(), resp.Time())

	body := resp.Body()
	var payload Payload
	if len(strings.TrimSpace(string(body))) > 0 {
		if err := json.Unmarshal(body, &payload); err != nil && resp.IsSuccess() {
			return nil, &TransportError{Op: op, Err: fmt.Errorf("decode response: %w", err)}
		}
	}

	if !resp.IsSuccess() {
		return nil, &APIError{StatusCode: resp.StatusCode(), Message: messageOf(payload)}
	}
	if payload == nil {
		payload = Payload{}
	}
	return payload, nil
}

// messageOf 从错误响应中提取说明文字
func messageOf(p Payload) string {
	for _, key := range []string{"message", "error"} {
		if s, ok := p[key].(string); ok && s != "" {
			return s
		}
	}
	return ""
}

// GetCourse 获取课程结构，携带令牌时服务端会一并返回报名与进度
func (c *Client) GetCourse(ctx context.Context, courseID, token string) (Payload, error) {
	return c.do(c.request(ctx, token), http.MethodGet, "/courses/"+url.PathEscape(courseID))
}

// ListCourses 获取课程列表
func (c *Client) ListCourses(ctx context.Context, token string) (Payload, error) {
	return c.do(c.request(ctx, token), http.MethodGet, "/courses")
}

// ListEnrollments 获取当前用户的全部报名记录
func (c *Client) ListEnrollments(ctx context.Context, token string) (Payload, error) {
	return c.do(c.request(ctx, token), http.MethodGet, "/enrollments/my/enrollments")
}

// Enroll 报名课程，payment 为透传的支付或校验信息
func (c *Client) Enroll(ctx context.Context, courseID, token string, payment map[string]any) (Payload, error) {
	if payment == nil {
		payment = map[string]any{}
	}
	req := c.request(ctx, token).SetBody(payment)
	return c.do(req, http.MethodPost, "/enrollments/"+url.PathEscape(courseID)+"/enroll")
}

// UpdateLessonProgress 上报课时进度，服务端成功时不要求响应体
func (c *Client) UpdateLessonProgress(ctx context.Context, lessonID, token string, body map[string]any) error {
	req := c.request(ctx, token).SetBody(body)
	_, err := c.do(req, http.MethodPost, "/progress/lesson/"+url.PathEscape(lessonID))
	return err
}

// GetCourseProgress 获取课程进度汇总
func (c *Client) GetCourseProgress(ctx context.Context, courseID, token string) (Payload, error) {
	return c.do(c.request(ctx, token), http.MethodGet, "/progress/course/"+url.PathEscape(courseID))
}

// Login 邮箱密码登录，返回 {token, user}
func (c *Client) Login(ctx context.Context, email, password string) (Payload, error) {
	req := c.request(ctx, "").SetBody(map[string]string{
		"email":    email,
		"password": password,
	})
	return c.do(req, http.MethodPost, "/auth/login")
}

// Health 访问服务根下的 /health（位于 /api 前缀之外）
func (c *Client) Health(ctx context.Context) error {
	base := c.http.BaseURL
	if u, err := url.Parse(base); err == nil {
		u.Path = "/health"
		base = u.String()
	}
	resp, err := c.http.R().SetContext(ctx).Get(base)
	if err != nil {
		return &TransportError{Op: "GET /health", Err: err}
	}
	if !resp.IsSuccess() {
		return &APIError{StatusCode: resp.StatusCode()}
	}
	return nil
}

// ListComments 获取课程评论，lessonID 为空时返回整门课程的评论
func (c *Client) ListComments(ctx context.Context, courseID, lessonID, token string) (Payload, error) {
	req := c.request(ctx, token)
	if lessonID != "" {
		req.SetQueryParam("lessonId", lessonID)
	}
	return c.do(req, http.MethodGet, "/comments/"+url.PathEscape(courseID))
}

// PostComment 发表评论，parentID 非空时为回复
func (c *Client) PostComment(ctx context.Context, token, courseID, lessonID, parentID, content string) (Payload, error) {
	body := map[string]any{"courseId": courseID, "content": content}
	if lessonID != "" {
		body["lessonId"] = lessonID
	}
	if parentID != "" {
		body["parentId"] = parentID
	}
	return c.do(c.request(ctx, token).SetBody(body), http.MethodPost, "/comments")
}

// DeleteComment 删除评论及其回复
func (c *Client) DeleteComment(ctx context.Context, commentID, token string) (Payload, error) {
	return c.do(c.request(ctx, token), http.MethodDelete, "/comments/"+url.PathEscape(commentID))
}

// 课程编辑接口（管理员），成功时返回 {"course": ...}

// coursePath 拼接 /courses/{id}[/unit/{unitId}[/lesson/{lessonId}]]
func coursePath(courseID string, rest ...string) string {
	p := "/courses/" + url.PathEscape(courseID)
	for i, seg := range rest {
		if i%2 == 0 {
			p += "/" + seg
		} else {
			p += "/" + url.PathEscape(seg)
		}
	}
	return p
}

// CreateCourse 新建课程
func (c *Client) CreateCourse(ctx context.Context, token string, body map[string]any) (Payload, error) {
	return c.do(c.request(ctx, token).SetBody(body), http.MethodPost, "/courses")
}

// UpdateCourse 修改课程基本信息
func (c *Client) UpdateCourse(ctx context.Context, token, courseID string, body map[string]any) (Payload, error) {
	return c.do(c.request(ctx, token).SetBody(body), http.MethodPut, coursePath(courseID))
}

// DeleteCourse 删除课程
func (c *Client) DeleteCourse(ctx context.Context, token, courseID string) (Payload, error) {
	return c.do(c.request(ctx, token), http.MethodDelete, coursePath(courseID))
}

// AddUnit 追加单元
func (c *Client) AddUnit(ctx context.Context, token, courseID string, body map[string]any) (Payload, error) {
	return c.do(c.request(ctx, token).SetBody(body), http.MethodPost, coursePath(courseID, "unit"))
}

// UpdateUnit 修改单元
func (c *Client) UpdateUnit(ctx context.Context, token, courseID, unitID string, body map[string]any) (Payload, error) {
	return c.do(c.request(ctx, token).SetBody(body), http.MethodPut, coursePath(courseID, "unit", unitID))
}

// DeleteUnit 删除单元
func (c *Client) DeleteUnit(ctx context.Context, token, courseID, unitID string) (Payload, error) {
	return c.do(c.request(ctx, token), http.MethodDelete, coursePath(courseID, "unit", unitID))
}

// AddLesson 在单元中追加课时
func (c *Client) AddLesson(ctx context.Context, token, courseID, unitID string, body map[string]any) (Payload, error) {
	return c.do(c.request(ctx, token).SetBody(body), http.MethodPost, coursePath(courseID, "unit", unitID, "lesson"))
}

// UpdateLesson 修改课时
func (c *Client) UpdateLesson(ctx context.Context, token, courseID, unitID, lessonID string, body map[string]any) (Payload, error) {
	return c.do(c.request(ctx, token).SetBody(body), http.MethodPut, coursePath(courseID, "unit", unitID, "lesson", lessonID))
}

// DeleteLesson 删除课时
func (c *Client) DeleteLesson(ctx context.Context, token, courseID, unitID, lessonID string) (Payload, error) {
	return c.do(c.request(ctx, token), http.MethodDelete, coursePath(courseID, "unit", unitID, "lesson", lessonID))
}
