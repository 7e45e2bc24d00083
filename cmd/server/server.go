package server

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"learnhub/internal/api"
	"learnhub/internal/catalog"
	"learnhub/internal/config"
	"learnhub/internal/logger"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
)

// NewCommand 创建 server 子命令，启动本地沙箱课程服务
// 参数:
//   - staticFiles: 嵌入的课程文件（来自上层 main 的 go:embed）
func NewCommand(staticFiles fs.FS) *cobra.Command {
	var (
		host string
		port int
	)
	cmd := &cobra.Command{
		Use:   "server",
		Short: "启动本地沙箱课程服务",
		Long: "启动与远程课程服务接口一致的本地沙箱服务。\n" +
			"设置 DATABASE_URL 时学习记录保存到 PostgreSQL，否则保存到 LEDGER_FILE。",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("host") && host != "" {
				cfg.Server.Host = host
			}
			if cmd.Flags().Changed("port") && port != 0 {
				cfg.Server.Port = port
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return Run(ctx, staticFiles, cfg)
		},
	}
	cmd.Flags().StringVar(&host, "host", "", "服务器监听地址（默认从环境变量/配置读取）")
	cmd.Flags().IntVar(&port, "port", 0, "服务器端口（默认从环境变量/配置读取）")
	return cmd
}

// Run 构建依赖并启动 HTTP 服务，ctx 取消后优雅关闭
func Run(ctx context.Context, staticFiles fs.FS, cfg *config.Config) error {
	appLogger := logger.NewLogger(logger.ParseLogLevel(cfg.Log.Level))
	defer appLogger.Sync()

	// 初始化课程目录（嵌入/磁盘双模式）
	var catalogService *catalog.Service
	if cfg.Catalog.UseEmbed {
		catalogService = catalog.NewServiceFromFS(staticFiles, "courses")
		appLogger.Info("Catalog initialized in embedded FS mode")
	} else {
		catalogService = catalog.NewService(cfg.Catalog.Dir)
		appLogger.Info("Catalog initialized in disk mode: %s", cfg.Catalog.Dir)
	}
	catalogService.SetLogger(appLogger)
	if err := catalogService.LoadCourses(); err != nil {
		// 课程加载失败不应该阻止应用启动，但需要记录警告
		appLogger.Warn("Warning: failed to load courses: %v", err)
	}

	users, err := catalog.LoadUsers(cfg.Catalog.UsersFile, appLogger)
	if err != nil {
		return fmt.Errorf("加载用户失败: %w", err)
	}

	ledger := openLedger(ctx, cfg, appLogger)
	defer ledger.Close()

	// GIN_MODE=release 设置 Gin 为发布模式
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())

	apiHandler := api.NewHandler(catalogService, ledger, users, appLogger, cfg)
	apiHandler.SetupRoutes(r)

	for _, ri := range r.Routes() {
		appLogger.Debug("Route registered: %s %s", ri.Method, ri.Path)
	}
	r.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{"error": "API endpoint not found"})
	})

	srv := &http.Server{
		Addr:    cfg.Addr(),
		Handler: r,
		// 设置合理的超时时间防止资源泄漏
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	appLogger.Info("LearnHub sandbox starting on %s", srv.Addr)
	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("failed to start server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}
	appLogger.Info("Shutting down server...")

	// 给服务器5秒时间完成现有请求
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		appLogger.Error("Server forced to shutdown: %v", err)
	}
	appLogger.Info("Server exited")
	return nil
}

// openLedger 选择学习记录存储
// 配置了 DATABASE_URL 且数据库可用时使用 PostgreSQL，否则回退到文件存储
func openLedger(ctx context.Context, cfg *config.Config, log *logger.Logger) catalog.Ledger {
	if cfg.Catalog.DatabaseURL != "" {
		pg, err := catalog.OpenPGLedger(ctx, cfg.Catalog.DatabaseURL, log)
		if err == nil {
			log.Info("Ledger: PostgreSQL")
			return pg
		}
		log.Warn("PostgreSQL 不可用，回退到文件存储: %v", err)
	}
	log.Info("Ledger: file %s", cfg.Catalog.LedgerFile)
	return catalog.NewFileLedger(cfg.Catalog.LedgerFile, log)
}
