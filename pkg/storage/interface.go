// Package storage 定义持久化接口；引擎中唯一直接接触数据库的组件
package storage

import (
	"context"
	"time"

	"github.com/LENAX/automation-engine/pkg/core/execution"
	"github.com/LENAX/automation-engine/pkg/core/schedule"
	"github.com/LENAX/automation-engine/pkg/core/workflow"
)

// WorkflowRepository Workflow存储接口（对外导出）
// GetByID在记录不存在时返回(nil, nil)
type WorkflowRepository interface {
	// Save 保存Workflow（幂等upsert）
	Save(ctx context.Context, wf *workflow.Workflow) error
	// GetByID 根据ID查询Workflow
	GetByID(ctx context.Context, id string) (*workflow.Workflow, error)
	// List 列出Workflow，status为空表示不过滤
	List(ctx context.Context, status workflow.Status) ([]*workflow.Workflow, error)
	// Delete 删除Workflow（幂等）
	Delete(ctx context.Context, id string) error
}

// ScheduleRepository Schedule存储接口（对外导出）
type ScheduleRepository interface {
	Save(ctx context.Context, s *schedule.Schedule) error
	GetByID(ctx context.Context, id string) (*schedule.Schedule, error)
	List(ctx context.Context, status schedule.Status) ([]*schedule.Schedule, error)
	Delete(ctx context.Context, id string) error
}

// Checkpoint 一次检查点写入的内容
// status + 步骤索引 + 变量表必须在同一事务中原子落盘，
// 崩溃不能让Execution停留在索引与状态不一致的组合上
type Checkpoint struct {
	Status     execution.Status
	StepIndex  int
	Variables  map[string]interface{}
	LastError  string
	StartedAt  *time.Time
	FinishedAt *time.Time
}

// ExecutionRepository Execution存储接口（对外导出）
type ExecutionRepository interface {
	Save(ctx context.Context, e *execution.Execution) error
	GetByID(ctx context.Context, id string) (*execution.Execution, error)
	// List 按workflowID/status过滤，空值表示不过滤
	List(ctx context.Context, workflowID string, status execution.Status) ([]*execution.Execution, error)
	// ListByStatuses Recovery Manager的启动扫描（executions按status建索引）
	ListByStatuses(ctx context.Context, statuses ...execution.Status) ([]*execution.Execution, error)
	// ApplyCheckpoint 原子写入检查点（单事务）
	ApplyCheckpoint(ctx context.Context, id string, cp Checkpoint) error
	// MarkResumed 置恢复审计标记
	MarkResumed(ctx context.Context, id string) error
	// CancelByWorkflow 取消指定Workflow的所有非终态Execution，返回受影响条数
	CancelByWorkflow(ctx context.Context, workflowID, reason string) (int, error)
}

// Repositories 存储Repository集合（对外导出）
type Repositories struct {
	Workflow  WorkflowRepository
	Schedule  ScheduleRepository
	Execution ExecutionRepository
}
