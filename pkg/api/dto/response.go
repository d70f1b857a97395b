package dto

import (
	"time"

	"github.com/LENAX/automation-engine/pkg/core/execution"
	"github.com/LENAX/automation-engine/pkg/core/schedule"
	"github.com/LENAX/automation-engine/pkg/core/types"
	"github.com/LENAX/automation-engine/pkg/core/workflow"
)

// 消息契约错误码
const (
	CodeSuccess          = 0
	CodeScheduleError    = 6000 // Schedule定义或操作非法
	CodeScheduleNotFound = 6001 // Schedule不存在
	CodeWorkflowError    = 8000 // Workflow定义或操作非法
	CodeWorkflowNotFound = 8001 // Workflow不存在
)

// APIResponse 通用API响应结构
type APIResponse[T any] struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    T      `json:"data,omitempty"`
}

// NewSuccessResponse 创建成功响应
func NewSuccessResponse[T any](data T) APIResponse[T] {
	return APIResponse[T]{
		Code:    CodeSuccess,
		Message: "success",
		Data:    data,
	}
}

// NewErrorResponse 创建错误响应
func NewErrorResponse(code int, message string) APIResponse[any] {
	return APIResponse[any]{
		Code:    code,
		Message: message,
	}
}

// ScheduleErrorCode Schedule操作错误到消息契约码的映射
func ScheduleErrorCode(err error) int {
	if types.IsNotFound(err) {
		return CodeScheduleNotFound
	}
	return CodeScheduleError
}

// WorkflowErrorCode Workflow操作错误到消息契约码的映射
func WorkflowErrorCode(err error) int {
	if types.IsNotFound(err) {
		return CodeWorkflowNotFound
	}
	return CodeWorkflowError
}

// ListResponse 列表响应
type ListResponse[T any] struct {
	Total int `json:"total"`
	Items []T `json:"items"`
}

// WorkflowDTO Workflow响应结构
type WorkflowDTO struct {
	ID          string          `json:"id"`
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Steps       []workflow.Step `json:"steps"`
	Status      string          `json:"status"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

// FromWorkflow 领域实体转DTO
func FromWorkflow(wf *workflow.Workflow) WorkflowDTO {
	return WorkflowDTO{
		ID:          wf.ID,
		Name:        wf.Name,
		Description: wf.Description,
		Steps:       wf.Steps,
		Status:      string(wf.Status),
		CreatedAt:   wf.CreatedAt,
		UpdatedAt:   wf.UpdatedAt,
	}
}

// FromWorkflows 批量转换
func FromWorkflows(workflows []*workflow.Workflow) []WorkflowDTO {
	items := make([]WorkflowDTO, 0, len(workflows))
	for _, wf := range workflows {
		items = append(items, FromWorkflow(wf))
	}
	return items
}

// ScheduleDTO Schedule响应结构
type ScheduleDTO struct {
	ID             string     `json:"id"`
	Name           string     `json:"name"`
	CronExpression string     `json:"cron_expression"`
	Timezone       string     `json:"timezone"`
	Prompt         string     `json:"prompt,omitempty"`
	WorkflowID     string     `json:"workflow_id,omitempty"`
	Status         string     `json:"status"`
	NextRunAt      *time.Time `json:"next_run_at,omitempty"`
	LastRunAt      *time.Time `json:"last_run_at,omitempty"`
	LastError      string     `json:"last_error,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

// FromSchedule 领域实体转DTO
func FromSchedule(s *schedule.Schedule) ScheduleDTO {
	return ScheduleDTO{
		ID:             s.ID,
		Name:           s.Name,
		CronExpression: s.CronExpression,
		Timezone:       s.Timezone,
		Prompt:         s.Prompt,
		WorkflowID:     s.WorkflowID,
		Status:         string(s.Status),
		NextRunAt:      s.NextRunAt,
		LastRunAt:      s.LastRunAt,
		LastError:      s.LastError,
		CreatedAt:      s.CreatedAt,
		UpdatedAt:      s.UpdatedAt,
	}
}

// FromSchedules 批量转换
func FromSchedules(schedules []*schedule.Schedule) []ScheduleDTO {
	items := make([]ScheduleDTO, 0, len(schedules))
	for _, s := range schedules {
		items = append(items, FromSchedule(s))
	}
	return items
}

// ExecutionDTO Execution响应结构
type ExecutionDTO struct {
	ID               string                 `json:"id"`
	WorkflowID       string                 `json:"workflow_id,omitempty"`
	ScheduleID       string                 `json:"schedule_id,omitempty"`
	Trigger          string                 `json:"trigger"`
	Status           string                 `json:"status"`
	CurrentStepIndex int                    `json:"current_step_index"`
	Variables        map[string]interface{} `json:"variables"`
	Resumed          bool                   `json:"resumed"`
	StartedAt        *time.Time             `json:"started_at,omitempty"`
	FinishedAt       *time.Time             `json:"finished_at,omitempty"`
	LastError        string                 `json:"last_error,omitempty"`
	CreatedAt        time.Time              `json:"created_at"`
}

// FromExecution 领域实体转DTO
func FromExecution(e *execution.Execution) ExecutionDTO {
	return ExecutionDTO{
		ID:               e.ID,
		WorkflowID:       e.WorkflowID,
		ScheduleID:       e.ScheduleID,
		Trigger:          string(e.Trigger),
		Status:           string(e.Status),
		CurrentStepIndex: e.CurrentStepIndex,
		Variables:        e.Variables,
		Resumed:          e.Resumed,
		StartedAt:        e.StartedAt,
		FinishedAt:       e.FinishedAt,
		LastError:        e.LastError,
		CreatedAt:        e.CreatedAt,
	}
}

// FromExecutions 批量转换
func FromExecutions(executions []*execution.Execution) []ExecutionDTO {
	items := make([]ExecutionDTO, 0, len(executions))
	for _, e := range executions {
		items = append(items, FromExecution(e))
	}
	return items
}
