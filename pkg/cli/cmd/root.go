// Package cmd 命令行子命令定义
package cmd

import (
	"os"

	"github.com/spf13/cobra"
)

var (
	serverURL  string
	outputJSON bool
)

// rootCmd 根命令
var rootCmd = &cobra.Command{
	Use:   "automation-cli",
	Short: "Automation Engine命令行工具",
	Long:  `管理Workflow、Schedule与Execution的命令行客户端。`,
}

// Execute 执行根命令（对外导出）
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&serverURL, "server", "http://localhost:8080", "API服务地址")
	rootCmd.PersistentFlags().BoolVar(&outputJSON, "json", false, "以JSON格式输出")

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(serverCmd)
	rootCmd.AddCommand(workflowCmd)
	rootCmd.AddCommand(scheduleCmd)
	rootCmd.AddCommand(executionCmd)
}
