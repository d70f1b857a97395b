package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/LENAX/automation-engine/internal/storage"
	"github.com/LENAX/automation-engine/pkg/api"
	"github.com/LENAX/automation-engine/pkg/config"
	"github.com/LENAX/automation-engine/pkg/core/engine"
	"github.com/LENAX/automation-engine/pkg/core/prompt"
	"github.com/LENAX/automation-engine/pkg/core/runner"
	"github.com/LENAX/automation-engine/pkg/core/tool"
	"github.com/LENAX/automation-engine/pkg/core/usage"
)

var (
	Version   = "0.1.0"
	GitCommit = "unknown"
	BuildTime = "unknown"
)

func main() {
	configPath := flag.String("config", "./configs/engine.yaml", "配置文件路径")
	flag.Parse()

	log.Printf("Automation Engine Server v%s", Version)

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.Printf("⚠️ 加载配置失败(%v)，使用默认配置", err)
		cfg = config.DefaultConfig()
	}

	// 1. 打开存储
	db, err := storage.NewDatabase(cfg.Database.Type, cfg.Database.DSN)
	if err != nil {
		log.Fatalf("❌ 打开数据库失败: %v", err)
	}
	defer db.Close()

	// 2. 工具注册表：启动时一次性注册，未知工具拒绝执行
	registry := tool.NewRegistry()
	if err := tool.RegisterBuiltins(registry, tool.BuiltinConfig{
		OutboundURL: cfg.Tools.OutboundURL,
		HTTPTimeout: cfg.Tools.HTTPTimeout,
	}); err != nil {
		log.Fatalf("❌ 注册内置工具失败: %v", err)
	}

	// 3. Prompt客户端、用量记账与单步执行器
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
	stepRunner := runner.New(registry, prompts, accountant)

	// 4. 引擎与事件总线
	bus := engine.NewEventBus()
	eng := engine.New(db.Repos, stepRunner, bus)

	// 5. 崩溃恢复：调度器启动前完成，避免与新触发竞争
	recovery := engine.NewRecoveryManager(db.Repos, eng)
	if err := recovery.Run(context.Background()); err != nil {
		log.Fatalf("❌ 启动恢复失败: %v", err)
	}

	// 6. 调度器：同时为延迟步骤提供定时能力
	scheduler := engine.NewScheduler(db.Repos, eng)
	eng.AttachTimers(scheduler)
	if err := scheduler.Start(); err != nil {
		log.Fatalf("❌ 启动调度器失败: %v", err)
	}

	// 7. API服务器
	serverConfig := api.ServerConfig{
		Host:        cfg.Server.Host,
		Port:        cfg.Server.Port,
		ReadTimeout: api.DefaultServerConfig().ReadTimeout,
	}
	apiServer := api.NewAPIServer(eng, scheduler, serverConfig, Version)
	go func() {
		if err := apiServer.Start(); err != nil {
			log.Printf("❌ API服务器错误: %v", err)
		}
	}()

	log.Printf("✅ Automation Engine Server started on %s", cfg.Addr())

	// 等待中断信号
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("正在关闭服务...")

	// 关闭顺序与启动相反：api -> scheduler -> engine -> bus -> store
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := apiServer.Shutdown(shutdownCtx); err != nil {
		log.Printf("❌ 关闭API服务器失败: %v", err)
	}
	scheduler.Close()
	eng.Close()
	bus.Close()

	log.Println("✅ 服务已停止")
}
