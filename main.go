package main

import (
	"embed"
	"fmt"
	"os"

	checkcmd "learnhub/cmd/check"
	"learnhub/cmd/client"
	servercmd "learnhub/cmd/server"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

// staticFiles 嵌入沙箱课程，发布版本可在没有课程目录时直接运行 server
//
//go:embed courses/*
var staticFiles embed.FS

// main 是应用程序的入口函数
// 组装 cobra 根命令：server/check 子命令与学习者命令
func main() {
	root := &cobra.Command{
		Use:           "learnhub",
		Short:         "LearnHub 学习平台命令行客户端与本地沙箱服务",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			// .env文件不存在或加载失败时不中断程序，环境变量也可以通过其他方式设置
			_ = godotenv.Load()
		},
	}
	root.AddCommand(servercmd.NewCommand(staticFiles))
	root.AddCommand(checkcmd.NewCommand(staticFiles))
	root.AddCommand(client.NewCommands()...)

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
