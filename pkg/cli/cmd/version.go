package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

// Version 构建时注入的版本号
var Version = "dev"

// versionCmd version子命令
var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "显示版本信息",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("automation-cli %s\n", Version)
	},
}
