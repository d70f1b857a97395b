// Package dao 定义数据库行结构（与领域实体的JSON字段互转由Repository负责）
package dao

import (
	"database/sql"
	"time"
)

// WorkflowDAO workflows表行结构
type WorkflowDAO struct {
	ID          string    `db:"id"`
	Name        string    `db:"name"`
	Description string    `db:"description"`
	Steps       string    `db:"steps"` // Step列表的JSON
	Status      string    `db:"status"`
	CreateTime  time.Time `db:"create_time"`
	UpdateTime  time.Time `db:"update_time"`
}

// ScheduleDAO schedules表行结构
type ScheduleDAO struct {
	ID             string         `db:"id"`
	Name           string         `db:"name"`
	CronExpression string         `db:"cron_expression"`
	Timezone       string         `db:"timezone"`
	Prompt         string         `db:"prompt"`
	WorkflowID     sql.NullString `db:"workflow_id"`
	Status         string         `db:"status"`
	NextRunAt      sql.NullTime   `db:"next_run_at"`
	LastRunAt      sql.NullTime   `db:"last_run_at"`
	LastError      sql.NullString `db:"last_error"`
	CreateTime     time.Time      `db:"create_time"`
	UpdateTime     time.Time      `db:"update_time"`
}

// ExecutionDAO executions表行结构
type ExecutionDAO struct {
	ID               string         `db:"id"`
	WorkflowID       sql.NullString `db:"workflow_id"`
	ScheduleID       sql.NullString `db:"schedule_id"`
	Trigger          string         `db:"trigger_kind"`
	Steps            string         `db:"steps"`     // 启动时的步骤快照JSON
	Variables        string         `db:"variables"` // 变量表JSON
	Status           string         `db:"status"`
	CurrentStepIndex int            `db:"current_step_index"`
	Resumed          bool           `db:"resumed"`
	StartedAt        sql.NullTime   `db:"started_at"`
	FinishedAt       sql.NullTime   `db:"finished_at"`
	LastError        sql.NullString `db:"last_error"`
	CreateTime       time.Time      `db:"create_time"`
}
