package dto

import "github.com/LENAX/automation-engine/pkg/core/workflow"

// CreateWorkflowRequest 创建Workflow请求
type CreateWorkflowRequest struct {
	Name        string          `json:"name" binding:"required"`
	Description string          `json:"description"`
	Steps       []workflow.Step `json:"steps" binding:"required"`
}

// UpdateWorkflowRequest 更新Workflow请求
type UpdateWorkflowRequest struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Steps       []workflow.Step `json:"steps"`
	Status      string          `json:"status"`
}

// ExecuteWorkflowRequest 触发Workflow请求
type ExecuteWorkflowRequest struct {
	Variables map[string]interface{} `json:"variables"`
}

// CreateScheduleRequest 创建Schedule请求
type CreateScheduleRequest struct {
	Name           string `json:"name" binding:"required"`
	CronExpression string `json:"cron_expression" binding:"required"`
	Timezone       string `json:"timezone"`
	Prompt         string `json:"prompt"`
	WorkflowID     string `json:"workflow_id"`
}

// UpdateScheduleRequest 更新Schedule请求
type UpdateScheduleRequest struct {
	Name           string `json:"name"`
	CronExpression string `json:"cron_expression"`
	Timezone       string `json:"timezone"`
	Prompt         string `json:"prompt"`
	WorkflowID     string `json:"workflow_id"`
	Status         string `json:"status"`
}

// ConfirmExecutionRequest 确认请求
type ConfirmExecutionRequest struct {
	Approved bool `json:"approved"`
}
