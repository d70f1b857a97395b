package api

import (
	"github.com/gin-gonic/gin"

	"github.com/LENAX/automation-engine/pkg/api/handler"
	"github.com/LENAX/automation-engine/pkg/api/middleware"
	"github.com/LENAX/automation-engine/pkg/core/engine"
)

// SetupRouter 设置路由
func SetupRouter(eng *engine.Engine, sched *engine.Scheduler, version string) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	router := gin.New()

	// 全局中间件
	router.Use(middleware.Recovery())
	router.Use(middleware.Logger())
	router.Use(middleware.CORS())

	// 创建handlers
	workflowHandler := handler.NewWorkflowHandler(eng)
	scheduleHandler := handler.NewScheduleHandler(sched)
	executionHandler := handler.NewExecutionHandler(eng)
	healthHandler := handler.NewHealthHandler(version)
	channel := NewChannel(eng, sched)

	// 健康检查路由（不带前缀）
	router.GET("/health", healthHandler.Health)
	router.GET("/ready", healthHandler.Ready)

	// 持久消息通道
	router.GET("/channel", channel.Handle)

	// API v1 路由组
	v1 := router.Group("/api/v1")
	{
		workflows := v1.Group("/workflows")
		{
			workflows.GET("", workflowHandler.List)
			workflows.POST("", workflowHandler.Create)
			workflows.GET("/:id", workflowHandler.Get)
			workflows.PUT("/:id", workflowHandler.Update)
			workflows.DELETE("/:id", workflowHandler.Delete)
			workflows.POST("/:id/execute", workflowHandler.Execute)
			workflows.GET("/:id/executions", workflowHandler.History)
		}

		schedules := v1.Group("/schedules")
		{
			schedules.GET("", scheduleHandler.List)
			schedules.POST("", scheduleHandler.Create)
			schedules.GET("/:id", scheduleHandler.Get)
			schedules.PUT("/:id", scheduleHandler.Update)
			schedules.DELETE("/:id", scheduleHandler.Delete)
		}

		executions := v1.Group("/executions")
		{
			executions.GET("", executionHandler.List)
			executions.GET("/:id", executionHandler.Get)
			executions.POST("/:id/confirm", executionHandler.Confirm)
			executions.POST("/:id/cancel", executionHandler.Cancel)
		}
	}

	return router
}
