package cmd

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	istorage "github.com/LENAX/automation-engine/internal/storage"
	"github.com/LENAX/automation-engine/pkg/api"
	"github.com/LENAX/automation-engine/pkg/cli/output"
	"github.com/LENAX/automation-engine/pkg/config"
	"github.com/LENAX/automation-engine/pkg/core/engine"
	"github.com/LENAX/automation-engine/pkg/core/prompt"
	"github.com/LENAX/automation-engine/pkg/core/runner"
	"github.com/LENAX/automation-engine/pkg/core/tool"
	"github.com/LENAX/automation-engine/pkg/core/usage"
)

var (
	serverPort int
	serverHost string
	configPath string
)

// serverCmd server子命令
var serverCmd = &cobra.Command{
	Use:   "server",
	Short: "服务管理命令",
	Long:  `管理Automation Engine HTTP API服务。`,
}

// serverStartCmd 启动服务
var serverStartCmd = &cobra.Command{
	Use:   "start",
	Short: "启动HTTP API服务",
	Long: `启动Automation Engine HTTP API服务。

示例：
  # 使用默认配置启动
  automation-cli server start

  # 指定端口启动
  automation-cli server start --port 8080

  # 指定配置文件启动
  automation-cli server start --config ./configs/engine.yaml`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := loadServerConfig()
		if serverHost != "" {
			cfg.Server.Host = serverHost
		}
		if serverPort > 0 {
			cfg.Server.Port = serverPort
		}

		// 存储
		db, err := istorage.NewDatabase(cfg.Database.Type, cfg.Database.DSN)
		if err != nil {
			output.Error("打开数据库失败: %v", err)
			return err
		}
		defer db.Close()

		// 工具注册表
		registry := tool.NewRegistry()
		if err := tool.RegisterBuiltins(registry, tool.BuiltinConfig{
			OutboundURL: cfg.Tools.OutboundURL,
			HTTPTimeout: cfg.Tools.HTTPTimeout,
		}); err != nil {
			output.Error("注册内置工具失败: %v", err)
			return err
		}

		// 引擎
		prompts := prompt.NewClient(prompt.ClientConfig{
			BackendURL:  cfg.Inference.BackendURL,
			APIKey:      cfg.Inference.APIKey,
			Model:       cfg.Inference.Model,
			Temperature: cfg.Inference.Temperature,
			MaxTokens:   cfg.Inference.MaxTokens,
			Timeout:     cfg.Inference.Timeout,
		})
		accountant := usage.NewAccountant(usage.Limits{
			MaxTokens:  cfg.Usage.MaxTokensPerExecution,
			MaxCredits: cfg.Usage.MaxCreditsPerExecution,
		})
		bus := engine.NewEventBus()
		eng := engine.New(db.Repos, runner.New(registry, prompts, accountant), bus)

		// 崩溃恢复在调度器启动前完成
		if err := engine.NewRecoveryManager(db.Repos, eng).Run(context.Background()); err != nil {
			output.Error("启动恢复失败: %v", err)
			return err
		}

		scheduler := engine.NewScheduler(db.Repos, eng)
		eng.AttachTimers(scheduler)
		if err := scheduler.Start(); err != nil {
			output.Error("启动调度器失败: %v", err)
			return err
		}

		serverConfig := api.ServerConfig{
			Host:        cfg.Server.Host,
			Port:        cfg.Server.Port,
			ReadTimeout: api.DefaultServerConfig().ReadTimeout,
		}
		apiServer := api.NewAPIServer(eng, scheduler, serverConfig, Version)
		go func() {
			if err := apiServer.Start(); err != nil {
				log.Printf("API服务器错误: %v", err)
			}
		}()

		output.Success("Automation Engine Server started on %s", cfg.Addr())

		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		<-quit

		output.Info("正在关闭服务...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := apiServer.Shutdown(shutdownCtx); err != nil {
			output.Error("关闭API服务器失败: %v", err)
		}
		scheduler.Close()
		eng.Close()
		bus.Close()

		output.Success("服务已停止")
		return nil
	},
}

// loadServerConfig 按优先级查找并加载配置，找不到时退回默认配置
func loadServerConfig() *config.Config {
	path := configPath
	if path == "" {
		for _, p := range []string{"./configs/engine.yaml", "./engine.yaml"} {
			if _, err := os.Stat(p); err == nil {
				path = p
				break
			}
		}
	}
	if path == "" {
		output.Warning("未找到配置文件，使用默认配置")
		return config.DefaultConfig()
	}

	output.Info("使用配置文件: %s", path)
	cfg, err := config.LoadConfig(path)
	if err != nil {
		output.Warning("加载配置失败(%v)，使用默认配置", err)
		return config.DefaultConfig()
	}
	return cfg
}

func init() {
	serverStartCmd.Flags().IntVarP(&serverPort, "port", "p", 0, "监听端口（覆盖配置文件）")
	serverStartCmd.Flags().StringVarP(&serverHost, "host", "H", "", "监听地址（覆盖配置文件）")
	serverStartCmd.Flags().StringVarP(&configPath, "config", "c", "", "配置文件路径")

	serverCmd.AddCommand(serverStartCmd)
}
