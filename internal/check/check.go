// Package check 提供环境检查，CLI 与 /api/check 共用同一套检查逻辑
package check

import (
	"context"
	"fmt"
	"io/fs"
	"net"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"learnhub/internal/catalog"
	"learnhub/internal/config"
	"learnhub/internal/logger"
	"learnhub/internal/remote"
	"learnhub/internal/session"

	"github.com/go-resty/resty/v2"
)

// serviceMarker 本服务 /health 响应中的标识
const serviceMarker = "LearnHub"

// Item 单项检查结果
type Item struct {
	Name    string `json:"name"`
	OK      bool   `json:"ok"`
	Message string `json:"message"`
	Details string `json:"details,omitempty"`
}

// Summary 检查汇总
type Summary struct {
	OK    bool   `json:"ok"`
	Items []Item `json:"items"`
}

// NewSummary 汇总检查项，任一失败即整体失败
func NewSummary(items []Item) Summary {
	ok := true
	for _, it := range items {
		if !it.OK {
			ok = false
		}
	}
	return Summary{OK: ok, Items: items}
}

// RunFromConfig 使用配置与课程来源（嵌入或磁盘）执行检查
func RunFromConfig(ctx context.Context, staticFiles fs.FS, cfg *config.Config) Summary {
	quiet := logger.NewLogger(logger.ERROR)
	items := make([]Item, 0, 5)

	// 1) 远程课程服务
	client := remote.NewClient(cfg.API.BaseURL, remote.Options{Timeout: 3 * time.Second, UserAgent: cfg.API.UserAgent}, quiet)
	apiOK, apiMsg := APIHealth(ctx, client)
	items = append(items, Item{Name: fmt.Sprintf("课程服务 (%s)", cfg.API.BaseURL), OK: apiOK, Message: apiMsg})

	// 2) 登录会话
	sessions := session.NewManager(cfg.Session.File, quiet)
	sessionOK, sessionMsg := SessionStatus(sessions, time.Now())
	items = append(items, Item{Name: "登录会话", OK: sessionOK, Message: sessionMsg})

	// 3) 端口占用
	portOK, portMsg, procInfo := PortOccupation(cfg.Server.Host, cfg.Server.Port)
	details := ""
	if !portOK && procInfo != "" {
		details = procInfo
	}
	items = append(items, Item{Name: fmt.Sprintf("端口占用 (%s:%d)", cfg.Server.Host, cfg.Server.Port), OK: portOK, Message: portMsg, Details: details})

	// 4) 课程目录加载与完整性
	var svc *catalog.Service
	if cfg.Catalog.UseEmbed {
		svc = catalog.NewServiceFromFS(staticFiles, "courses")
	} else {
		svc = catalog.NewService(cfg.Catalog.Dir)
	}
	svc.SetLogger(quiet)
	if err := svc.LoadCourses(); err != nil {
		items = append(items, Item{Name: "课程加载与完整性", OK: false, Message: fmt.Sprintf("课程加载失败：%v", err)})
	} else {
		coursesOK, coursesMsg := CatalogIntegrity(svc)
		items = append(items, Item{Name: "课程加载与完整性", OK: coursesOK, Message: coursesMsg})
	}

	// 5) 沙箱服务健康
	serviceOK, serviceMsg := ServiceHealth(cfg.Server.Host, cfg.Server.Port)
	items = append(items, Item{Name: fmt.Sprintf("服务健康检查 (%s:%d)", cfg.Server.Host, cfg.Server.Port), OK: serviceOK, Message: serviceMsg})

	return NewSummary(items)
}

// APIHealth 检查远程课程服务是否可访问
func APIHealth(ctx context.Context, client *remote.Client) (bool, string) {
	if err := client.Health(ctx); err != nil {
		return false, fmt.Sprintf("课程服务不可用：%v", err)
	}
	return true, "课程服务可访问（/health 返回 200）"
}

// SessionStatus 检查本地会话
// 未登录不视为失败，令牌已过期视为失败
func SessionStatus(sessions session.Provider, now time.Time) (bool, string) {
	s, ok := sessions.Current()
	if !ok {
		return true, "未登录（仅可浏览试看内容）"
	}
	info, err := session.InspectToken(s.Token)
	if err != nil {
		return false, fmt.Sprintf("令牌无法解析：%v", err)
	}
	if info.Expired(now) {
		return false, fmt.Sprintf("%s 的令牌已于 %s 过期，请重新登录", s.User.Email, info.ExpiresAt.Format(time.RFC3339))
	}
	if info.ExpiresAt.IsZero() {
		return true, fmt.Sprintf("已登录：%s", s.User.Email)
	}
	return true, fmt.Sprintf("已登录：%s（令牌有效期至 %s）", s.User.Email, info.ExpiresAt.Format(time.RFC3339))
}

// PortOccupation 检查端口占用
func PortOccupation(host string, port int) (bool, string, string) {
	addr := net.JoinHostPort(host, strconv.Itoa(port))
	conn, err := net.DialTimeout("tcp", addr, 800*time.Millisecond)
	if err != nil {
		return true, "端口未被占用，可用", ""
	}
	_ = conn.Close()

	if IsPortUsedByCurrentService(host, port) {
		return true, "端口被本服务使用（正常）", ""
	}

	procInfo, lerr := ListPortProcesses(port)
	if lerr != nil {
		return false, "端口已被占用（进程信息获取失败，可能未安装 lsof）", ""
	}
	if procInfo == "" {
		return false, "端口已被占用（但未能获取到进程信息）", ""
	}
	return false, "端口已被占用", procInfo
}

// IsPortUsedByCurrentService 通过 /health 识别是否为本服务
func IsPortUsedByCurrentService(host string, port int) bool {
	var payload struct {
		Status  string `json:"status"`
		Message string `json:"message"`
	}
	resp, err := resty.New().
		SetTimeout(800*time.Millisecond).
		R().
		SetResult(&payload).
		Get(fmt.Sprintf("http://%s/health", net.JoinHostPort(host, strconv.Itoa(port))))
	if err != nil || !resp.IsSuccess() {
		return false
	}
	return strings.ToLower(payload.Status) == "ok" && strings.Contains(payload.Message, serviceMarker)
}

// ListPortProcesses 使用 lsof 列出监听进程（最佳努力）
func ListPortProcesses(port int) (string, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	cmd := exec.CommandContext(ctx, "lsof", "-i", fmt.Sprintf(":%d", port), "-sTCP:LISTEN", "-n", "-P")
	out, _ := cmd.CombinedOutput()
	if ctx.Err() == context.DeadlineExceeded {
		return "", fmt.Errorf("查询端口占用超时")
	}
	if len(out) == 0 {
		return "", nil
	}
	return string(out), nil
}

// CatalogIntegrity 课程目录完整性检查
func CatalogIntegrity(svc *catalog.Service) (bool, string) {
	courses := svc.GetCourses()
	if len(courses) == 0 {
		return false, "未找到任何课程，请检查课程目录或嵌入资源"
	}
	problems := make([]string, 0)
	for _, c := range courses {
		if strings.TrimSpace(c.Title) == "" {
			problems = append(problems, fmt.Sprintf("课程 %s 缺少标题", c.ID))
		}
		if len(c.Units) == 0 {
			problems = append(problems, fmt.Sprintf("课程 %s 不包含任何单元", c.ID))
		}
		previews := 0
		for i, u := range c.Units {
			if len(u.Lessons) == 0 {
				problems = append(problems, fmt.Sprintf("课程 %s 的第 %d 个单元不包含课时", c.ID, i+1))
			}
			for _, l := range u.Lessons {
				if strings.TrimSpace(l.Title) == "" {
					problems = append(problems, fmt.Sprintf("课程 %s 的课时 %s 缺少标题", c.ID, l.LessonID))
				}
				if l.IsPreview {
					previews++
				}
			}
		}
		if c.Price > 0 && previews == 0 {
			problems = append(problems, fmt.Sprintf("付费课程 %s 没有试看课时", c.ID))
		}
	}
	if len(problems) > 0 {
		return false, "课程加载成功，但存在数据完整性问题：\n" + strings.Join(problems, "\n")
	}
	return true, fmt.Sprintf("课程加载成功，共 %d 门，数据完整性检查通过", len(courses))
}

// ServiceHealth 调用 /health 检查沙箱服务状态
// 端口未监听说明服务未运行，不视为失败
func ServiceHealth(host string, port int) (bool, string) {
	addr := net.JoinHostPort(host, strconv.Itoa(port))
	conn, err := net.DialTimeout("tcp", addr, 800*time.Millisecond)
	if err != nil {
		return true, "服务未运行"
	}
	_ = conn.Close()

	resp, err := resty.New().SetTimeout(2 * time.Second).R().Get("http://" + addr + "/health")
	if err != nil {
		return false, fmt.Sprintf("服务已监听，但健康端点访问失败：%v", err)
	}
	if !resp.IsSuccess() {
		return false, fmt.Sprintf("服务已监听，但健康端点返回非 200 状态码：%d", resp.StatusCode())
	}
	return true, "服务正在运行且健康（/health 返回 200）"
}
