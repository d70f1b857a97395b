package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/LENAX/automation-engine/pkg/core/execution"
	"github.com/LENAX/automation-engine/pkg/core/types"
	"github.com/LENAX/automation-engine/pkg/core/workflow"
	"github.com/LENAX/automation-engine/pkg/storage/dao"
)

var executionColumns = []string{
	"id", "workflow_id", "schedule_id", "trigger_kind", "steps", "variables",
	"status", "current_step_index", "resumed", "started_at", "finished_at",
	"last_error", "create_time",
}

var executionUpdateColumns = []string{
	"variables", "status", "current_step_index", "resumed",
	"started_at", "finished_at", "last_error",
}

const executionSelectColumns = "id, workflow_id, schedule_id, trigger_kind, steps, variables, " +
	"status, current_step_index, resumed, started_at, finished_at, last_error, create_time"

// ExecutionRepo ExecutionRepository的sqlx实现（对外导出）
type ExecutionRepo struct {
	store *Store
}

// NewExecutionRepo 创建ExecutionRepo实例（对外导出）
func NewExecutionRepo(store *Store) *ExecutionRepo {
	return &ExecutionRepo{store: store}
}

// Save 保存Execution（幂等upsert；步骤快照在创建后不变，冲突时不覆盖）
func (r *ExecutionRepo) Save(ctx context.Context, e *execution.Execution) error {
	row, err := executionToDAO(e)
	if err != nil {
		return err
	}

	query := r.store.dialect.UpsertSQL("executions", executionColumns, "id", executionUpdateColumns)
	if _, err := r.store.db.NamedExecContext(ctx, query, row); err != nil {
		return &types.StorageError{Op: "保存Execution", Err: err}
	}
	return nil
}

// GetByID 根据ID查询Execution，不存在时返回(nil, nil)
func (r *ExecutionRepo) GetByID(ctx context.Context, id string) (*execution.Execution, error) {
	var row dao.ExecutionDAO
	query := "SELECT " + executionSelectColumns + " FROM executions WHERE id = ?"
	err := r.store.db.GetContext(ctx, &row, r.store.db.Rebind(query), id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, &types.StorageError{Op: "查询Execution", Err: err}
	}
	return executionFromDAO(&row)
}

// List 按workflowID/status过滤Execution，空值表示不过滤
func (r *ExecutionRepo) List(ctx context.Context, workflowID string, status execution.Status) ([]*execution.Execution, error) {
	query := "SELECT " + executionSelectColumns + " FROM executions"
	conds := []string{}
	args := []interface{}{}
	if workflowID != "" {
		conds = append(conds, "workflow_id = ?")
		args = append(args, workflowID)
	}
	if status != "" {
		conds = append(conds, "status = ?")
		args = append(args, string(status))
	}
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY create_time"

	return r.selectExecutions(ctx, query, args...)
}

// ListByStatuses 按多个status查询Execution（崩溃恢复的启动扫描）
func (r *ExecutionRepo) ListByStatuses(ctx context.Context, statuses ...execution.Status) ([]*execution.Execution, error) {
	if len(statuses) == 0 {
		return nil, nil
	}

	placeholders := make([]string, len(statuses))
	args := make([]interface{}, len(statuses))
	for i, s := range statuses {
		placeholders[i] = "?"
		args[i] = string(s)
	}

	query := "SELECT " + executionSelectColumns + " FROM executions WHERE status IN (" +
		strings.Join(placeholders, ", ") + ") ORDER BY create_time"
	return r.selectExecutions(ctx, query, args...)
}

// selectExecutions 执行查询并转换为领域实体
func (r *ExecutionRepo) selectExecutions(ctx context.Context, query string, args ...interface{}) ([]*execution.Execution, error) {
	var rows []dao.ExecutionDAO
	if err := r.store.db.SelectContext(ctx, &rows, r.store.db.Rebind(query), args...); err != nil {
		return nil, &types.StorageError{Op: "查询Execution列表", Err: err}
	}

	executions := make([]*execution.Execution, 0, len(rows))
	for i := range rows {
		e, err := executionFromDAO(&rows[i])
		if err != nil {
			return nil, err
		}
		executions = append(executions, e)
	}
	return executions, nil
}

// ErrTerminalOverwrite 检查点试图覆盖已进入终态的Execution（对外导出）
// 取消与推进并发时以先落盘的终态为准，推进方观察到该错误后停止
var ErrTerminalOverwrite = errors.New("Execution已进入终态，检查点被拒绝")

// ApplyCheckpoint 原子写入检查点
// status、步骤索引、变量表在同一UPDATE中落盘，崩溃时要么整体生效要么整体不生效。
// 终态行不可覆盖：WHERE子句排除终态，0行生效且行存在时返回ErrTerminalOverwrite
func (r *ExecutionRepo) ApplyCheckpoint(ctx context.Context, id string, cp Checkpoint) error {
	variablesJSON, err := json.Marshal(cp.Variables)
	if err != nil {
		return fmt.Errorf("序列化变量表失败: %w", err)
	}

	query := r.store.db.Rebind(`UPDATE executions
		SET status = ?, current_step_index = ?, variables = ?,
		    last_error = ?, started_at = ?, finished_at = ?
		WHERE id = ? AND status NOT IN (?, ?, ?)`)
	result, err := r.store.db.ExecContext(ctx, query,
		string(cp.Status), cp.StepIndex, string(variablesJSON),
		toNullString(cp.LastError), toNullTime(cp.StartedAt), toNullTime(cp.FinishedAt), id,
		string(execution.StatusCompleted), string(execution.StatusFailed), string(execution.StatusCancelled))
	if err != nil {
		return &types.StorageError{Op: "写入检查点", Err: err}
	}

	affected, err := result.RowsAffected()
	if err == nil && affected == 0 {
		var status string
		getErr := r.store.db.GetContext(ctx, &status,
			r.store.db.Rebind("SELECT status FROM executions WHERE id = ?"), id)
		if errors.Is(getErr, sql.ErrNoRows) {
			return fmt.Errorf("写入检查点失败: Execution %s 不存在", id)
		}
		if getErr != nil {
			return &types.StorageError{Op: "写入检查点", Err: getErr}
		}
		return fmt.Errorf("Execution %s 当前状态%s: %w", id, status, ErrTerminalOverwrite)
	}
	return nil
}

// MarkResumed 置恢复审计标记
func (r *ExecutionRepo) MarkResumed(ctx context.Context, id string) error {
	query := r.store.db.Rebind("UPDATE executions SET resumed = ? WHERE id = ?")
	if _, err := r.store.db.ExecContext(ctx, query, true, id); err != nil {
		return &types.StorageError{Op: "标记恢复", Err: err}
	}
	return nil
}

// CancelByWorkflow 取消指定Workflow的所有非终态Execution，返回受影响条数
func (r *ExecutionRepo) CancelByWorkflow(ctx context.Context, workflowID, reason string) (int, error) {
	now := time.Now()
	query := r.store.db.Rebind(`UPDATE executions
		SET status = ?, last_error = ?, finished_at = ?
		WHERE workflow_id = ? AND status IN (?, ?, ?)`)
	result, err := r.store.db.ExecContext(ctx, query,
		string(execution.StatusCancelled), toNullString(reason), now, workflowID,
		string(execution.StatusPending), string(execution.StatusRunning),
		string(execution.StatusAwaitingConfirmation))
	if err != nil {
		return 0, &types.StorageError{Op: "取消Execution", Err: err}
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return 0, nil
	}
	return int(affected), nil
}

// executionToDAO 领域实体转数据库行
func executionToDAO(e *execution.Execution) (*dao.ExecutionDAO, error) {
	stepsJSON, err := json.Marshal(e.Steps)
	if err != nil {
		return nil, fmt.Errorf("序列化步骤快照失败: %w", err)
	}
	variablesJSON, err := json.Marshal(e.Variables)
	if err != nil {
		return nil, fmt.Errorf("序列化变量表失败: %w", err)
	}
	return &dao.ExecutionDAO{
		ID:               e.ID,
		WorkflowID:       toNullString(e.WorkflowID),
		ScheduleID:       toNullString(e.ScheduleID),
		Trigger:          string(e.Trigger),
		Steps:            string(stepsJSON),
		Variables:        string(variablesJSON),
		Status:           string(e.Status),
		CurrentStepIndex: e.CurrentStepIndex,
		Resumed:          e.Resumed,
		StartedAt:        toNullTime(e.StartedAt),
		FinishedAt:       toNullTime(e.FinishedAt),
		LastError:        toNullString(e.LastError),
		CreateTime:       e.CreatedAt,
	}, nil
}

// executionFromDAO 数据库行转领域实体
func executionFromDAO(row *dao.ExecutionDAO) (*execution.Execution, error) {
	var steps []workflow.Step
	if err := json.Unmarshal([]byte(row.Steps), &steps); err != nil {
		return nil, fmt.Errorf("反序列化步骤快照失败: %w", err)
	}
	variables := make(map[string]interface{})
	if err := json.Unmarshal([]byte(row.Variables), &variables); err != nil {
		return nil, fmt.Errorf("反序列化变量表失败: %w", err)
	}
	return &execution.Execution{
		ID:               row.ID,
		WorkflowID:       row.WorkflowID.String,
		ScheduleID:       row.ScheduleID.String,
		Trigger:          execution.Trigger(row.Trigger),
		Steps:            steps,
		Variables:        variables,
		Status:           execution.Status(row.Status),
		CurrentStepIndex: row.CurrentStepIndex,
		Resumed:          row.Resumed,
		StartedAt:        fromNullTime(row.StartedAt),
		FinishedAt:       fromNullTime(row.FinishedAt),
		LastError:        row.LastError.String,
		CreatedAt:        row.CreateTime,
	}, nil
}

var _ ExecutionRepository = (*ExecutionRepo)(nil)
