// Package client 提供面向学习者的命令行子命令
// 所有命令都通过 course.Store 访问远程课程服务，与图形界面共享同一套状态规则
package client

import (
	"context"
	"encoding/json"
	"fmt"

	"learnhub/internal/config"
	"learnhub/internal/course"
	"learnhub/internal/logger"
	"learnhub/internal/remote"
	"learnhub/internal/session"

	"github.com/spf13/cobra"
)

// env 单次命令执行所需的依赖
type env struct {
	cfg      *config.Config
	log      *logger.Logger
	sessions *session.Manager
	api      *remote.Client
	enrolled *course.EnrolledSet
}

// newEnv 仅在命令实际运行时加载配置，避免 help/-h 触发配置加载
func newEnv() (*env, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	log := logger.NewLogger(logger.ParseLogLevel(cfg.Log.Level))
	sessions := session.NewManager(cfg.Session.File, log)
	api := remote.NewClient(cfg.API.BaseURL, remote.Options{Timeout: cfg.API.Timeout, UserAgent: cfg.API.UserAgent}, log)
	return &env{
		cfg:      cfg,
		log:      log,
		sessions: sessions,
		api:      api,
		enrolled: course.NewEnrolledSet(),
	}, nil
}

// newStore 创建课程状态容器，并跟随会话变化刷新或清理
func (e *env) newStore(ctx context.Context) *course.Store {
	store := course.NewStore(e.api, e.sessions, e.enrolled, e.log)
	e.sessions.Subscribe(func(_ session.Session, active bool) {
		store.HandleSessionChange(ctx, active)
	})
	return store
}

// token 返回当前令牌，未登录时为空
func (e *env) token() string {
	s, ok := e.sessions.Current()
	if !ok {
		return ""
	}
	return s.Token
}

// NewCommands 返回学习者相关的全部子命令
func NewCommands() []*cobra.Command {
	return []*cobra.Command{
		newLoginCommand(),
		newLogoutCommand(),
		newWhoamiCommand(),
		newCoursesCommand(),
		newCourseCommand(),
		newEnrollCommand(),
		newProgressCommand(),
		newQuizCommand(),
		newEnrollmentsCommand(),
		newCommentsCommand(),
		newAdminCommand(),
	}
}

// decodeInto 借助 JSON 往返把响应中的对象映射到结构体
func decodeInto(v any, out any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
