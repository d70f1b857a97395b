package execution

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/LENAX/automation-engine/pkg/core/workflow"
)

// Status Execution状态（对外导出）
// 状态只能向前流转，终态不可再变更
type Status string

const (
	StatusPending              Status = "pending"
	StatusRunning              Status = "running"
	StatusAwaitingConfirmation Status = "awaiting_confirmation"
	StatusCompleted            Status = "completed"
	StatusFailed               Status = "failed"
	StatusCancelled            Status = "cancelled"
)

// Trigger 触发来源（对外导出）
type Trigger string

const (
	TriggerManual  Trigger = "manual"
	TriggerCron    Trigger = "cron"
	TriggerWebhook Trigger = "webhook"
	TriggerEvent   Trigger = "event"
)

// transitions 合法的状态迁移表（只允许向前）
var transitions = map[Status][]Status{
	StatusPending:              {StatusRunning, StatusCancelled, StatusFailed},
	StatusRunning:              {StatusCompleted, StatusFailed, StatusCancelled, StatusAwaitingConfirmation},
	StatusAwaitingConfirmation: {StatusRunning, StatusCancelled, StatusFailed},
}

// Execution 一次工作流（或裸Prompt）的执行记录
// 完成后保留用于审计，仅由外部保留策略清理
type Execution struct {
	ID         string  `json:"id"`
	WorkflowID string  `json:"workflow_id,omitempty"` // 为空表示Schedule直接触发的裸Prompt执行
	ScheduleID string  `json:"schedule_id,omitempty"` // 审计用，不影响Schedule生命周期
	Trigger    Trigger `json:"trigger"`

	// Steps 启动时的步骤快照，Workflow后续编辑不影响在途执行
	Steps []workflow.Step `json:"steps"`

	Variables        map[string]interface{} `json:"variables"`
	Status           Status                 `json:"status"`
	CurrentStepIndex int                    `json:"current_step_index"`
	Resumed          bool                   `json:"resumed"` // 崩溃恢复后的审计标记，独立于Status
	StartedAt        *time.Time             `json:"started_at,omitempty"`
	FinishedAt       *time.Time             `json:"finished_at,omitempty"`
	LastError        string                 `json:"last_error,omitempty"`
	CreatedAt        time.Time              `json:"created_at"`
}

// New 创建Execution（对外导出）
func New(workflowID string, trigger Trigger, steps []workflow.Step, variables map[string]interface{}) *Execution {
	if variables == nil {
		variables = make(map[string]interface{})
	}
	return &Execution{
		ID:         uuid.NewString(),
		WorkflowID: workflowID,
		Trigger:    trigger,
		Steps:      steps,
		Variables:  variables,
		Status:     StatusPending,
		CreatedAt:  time.Now(),
	}
}

// CanTransition 判断状态迁移是否合法（对外导出）
func CanTransition(from, to Status) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Transition 执行状态迁移，非法迁移返回错误（对外导出）
func (e *Execution) Transition(to Status) error {
	if !CanTransition(e.Status, to) {
		return fmt.Errorf("非法状态迁移: %s -> %s", e.Status, to)
	}
	e.Status = to
	return nil
}

// AdvanceTo 推进步骤索引，索引只允许单调递增（对外导出）
func (e *Execution) AdvanceTo(index int) error {
	if index < e.CurrentStepIndex {
		return fmt.Errorf("步骤索引不允许回退: %d -> %d", e.CurrentStepIndex, index)
	}
	e.CurrentStepIndex = index
	return nil
}

// IsTerminal 判断是否处于终态（对外导出）
func (e *Execution) IsTerminal() bool {
	switch e.Status {
	case StatusCompleted, StatusFailed, StatusCancelled:
		return true
	}
	return false
}

// StepAt 按索引获取快照中的步骤（对外导出）
func (e *Execution) StepAt(index int) (workflow.Step, bool) {
	for _, s := range e.Steps {
		if s.Index == index {
			return s, true
		}
	}
	return workflow.Step{}, false
}

// ========== 变量表的保留键 ==========

// StepOutputKey 步骤输出在变量表中的保留键（对外导出）
func StepOutputKey(index int) string {
	return fmt.Sprintf("steps.%d.output", index)
}

// StepApprovedKey 步骤确认批准标记的保留键（对外导出）
func StepApprovedKey(index int) string {
	return fmt.Sprintf("steps.%d.approved", index)
}

// StepDelayUntilKey delay步骤恢复时刻的保留键（对外导出）
// 持久化在变量表中，崩溃恢复后可据此继续等待剩余时长
func StepDelayUntilKey(index int) string {
	return fmt.Sprintf("steps.%d.delay_until", index)
}

// StepApproved 判断指定步骤是否已获批准（对外导出）
func (e *Execution) StepApproved(index int) bool {
	v, ok := e.Variables[StepApprovedKey(index)].(bool)
	return ok && v
}
