package check

import (
	"context"
	"fmt"
	"io/fs"
	"time"

	"github.com/spf13/cobra"

	checkpkg "learnhub/internal/check"
	"learnhub/internal/config"
)

// NewCommand 创建 check 子命令：
// - 远程课程服务可访问性
// - 本地登录会话与令牌有效期
// - 沙箱端口占用检查
// - 课程加载与完整性检查
// - 沙箱服务健康检查（端口未监听不判失败）
func NewCommand(staticFiles fs.FS) *cobra.Command {
	// 不在命令构造阶段加载配置，避免在执行 help/-h 时触发配置加载
	// 通过 Flags 接收用户输入，实际运行时再加载配置并合并覆盖
	var (
		apiURL     string
		host       string
		port       int
		catalogDir string
		useEmbed   bool
	)

	cmd := &cobra.Command{
		Use:   "check",
		Short: "检查本地环境（课程服务、登录会话、端口占用、课程加载、服务健康）",
		Long:  "全面检查本地环境：\n1) 远程课程服务是否可访问\n2) 登录会话与令牌是否有效\n3) 沙箱端口是否被占用\n4) 沙箱课程资源加载与数据完整性\n5) 沙箱服务运行与健康状态",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}

			// 计算有效参数：优先使用用户通过 Flags 设置的值；否则回退到配置
			if cmd.Flags().Changed("api-url") && apiURL != "" {
				cfg.API.BaseURL = apiURL
			}
			if cmd.Flags().Changed("host") && host != "" {
				cfg.Server.Host = host
			}
			if cmd.Flags().Changed("port") && port != 0 {
				cfg.Server.Port = port
			}
			if cmd.Flags().Changed("catalog-dir") && catalogDir != "" {
				cfg.Catalog.Dir = catalogDir
			}
			if cmd.Flags().Changed("catalog-use-embed") {
				cfg.Catalog.UseEmbed = useEmbed
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()
			summary := checkpkg.RunFromConfig(ctx, staticFiles, cfg)
			fmt.Fprintln(cmd.OutOrStdout(), checkpkg.RenderSummaryCLI(summary))

			// 如果任一检查失败，返回非零错误码
			if !summary.OK {
				return fmt.Errorf("环境检查存在失败项，请根据提示修复后重试")
			}
			return nil
		},
	}

	// Flags（仅在用户显式设置时覆盖配置）
	cmd.Flags().StringVar(&apiURL, "api-url", "", "远程课程服务地址（默认从环境变量/配置读取）")
	cmd.Flags().StringVar(&host, "host", "", "指定沙箱服务主机（默认从环境变量/配置读取）")
	cmd.Flags().IntVar(&port, "port", 0, "指定沙箱服务端口（默认从环境变量/配置读取）")
	cmd.Flags().StringVar(&catalogDir, "catalog-dir", "", "沙箱课程目录（未设置时从配置读取）")
	cmd.Flags().BoolVar(&useEmbed, "catalog-use-embed", false, "是否使用嵌入课程资源进行检查（未设置时从配置读取）")

	return cmd
}
