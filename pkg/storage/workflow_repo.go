package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/LENAX/automation-engine/pkg/core/types"
	"github.com/LENAX/automation-engine/pkg/core/workflow"
	"github.com/LENAX/automation-engine/pkg/storage/dao"
)

// workflowColumns workflows表的全部列
var workflowColumns = []string{"id", "name", "description", "steps", "status", "create_time", "update_time"}

// workflowUpdateColumns 冲突时更新的列（create_time不覆盖）
var workflowUpdateColumns = []string{"name", "description", "steps", "status", "update_time"}

// WorkflowRepo WorkflowRepository的sqlx实现（对外导出）
type WorkflowRepo struct {
	store *Store
}

// NewWorkflowRepo 创建WorkflowRepo实例（对外导出）
func NewWorkflowRepo(store *Store) *WorkflowRepo {
	return &WorkflowRepo{store: store}
}

// Save 保存Workflow（幂等upsert）
func (r *WorkflowRepo) Save(ctx context.Context, wf *workflow.Workflow) error {
	row, err := workflowToDAO(wf)
	if err != nil {
		return err
	}

	query := r.store.dialect.UpsertSQL("workflows", workflowColumns, "id", workflowUpdateColumns)
	if _, err := r.store.db.NamedExecContext(ctx, query, row); err != nil {
		return &types.StorageError{Op: "保存Workflow", Err: err}
	}
	return nil
}

// GetByID 根据ID查询Workflow，不存在时返回(nil, nil)
func (r *WorkflowRepo) GetByID(ctx context.Context, id string) (*workflow.Workflow, error) {
	var row dao.WorkflowDAO
	query := "SELECT id, name, description, steps, status, create_time, update_time FROM workflows WHERE id = ?"
	err := r.store.db.GetContext(ctx, &row, r.store.db.Rebind(query), id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, &types.StorageError{Op: "查询Workflow", Err: err}
	}
	return workflowFromDAO(&row)
}

// List 列出Workflow，status为空表示不过滤
func (r *WorkflowRepo) List(ctx context.Context, status workflow.Status) ([]*workflow.Workflow, error) {
	query := "SELECT id, name, description, steps, status, create_time, update_time FROM workflows"
	args := []interface{}{}
	if status != "" {
		query += " WHERE status = ?"
		args = append(args, string(status))
	}
	query += " ORDER BY create_time"

	var rows []dao.WorkflowDAO
	if err := r.store.db.SelectContext(ctx, &rows, r.store.db.Rebind(query), args...); err != nil {
		return nil, &types.StorageError{Op: "查询Workflow列表", Err: err}
	}

	workflows := make([]*workflow.Workflow, 0, len(rows))
	for i := range rows {
		wf, err := workflowFromDAO(&rows[i])
		if err != nil {
			return nil, err
		}
		workflows = append(workflows, wf)
	}
	return workflows, nil
}

// Delete 删除Workflow（幂等）
func (r *WorkflowRepo) Delete(ctx context.Context, id string) error {
	query := r.store.db.Rebind("DELETE FROM workflows WHERE id = ?")
	if _, err := r.store.db.ExecContext(ctx, query, id); err != nil {
		return &types.StorageError{Op: "删除Workflow", Err: err}
	}
	return nil
}

// workflowToDAO 领域实体转数据库行
func workflowToDAO(wf *workflow.Workflow) (*dao.WorkflowDAO, error) {
	stepsJSON, err := json.Marshal(wf.Steps)
	if err != nil {
		return nil, fmt.Errorf("序列化步骤失败: %w", err)
	}
	return &dao.WorkflowDAO{
		ID:          wf.ID,
		Name:        wf.Name,
		Description: wf.Description,
		Steps:       string(stepsJSON),
		Status:      string(wf.Status),
		CreateTime:  wf.CreatedAt,
		UpdateTime:  wf.UpdatedAt,
	}, nil
}

// workflowFromDAO 数据库行转领域实体
func workflowFromDAO(row *dao.WorkflowDAO) (*workflow.Workflow, error) {
	var steps []workflow.Step
	if err := json.Unmarshal([]byte(row.Steps), &steps); err != nil {
		return nil, fmt.Errorf("反序列化步骤失败: %w", err)
	}
	return &workflow.Workflow{
		ID:          row.ID,
		Name:        row.Name,
		Description: row.Description,
		Steps:       steps,
		Status:      workflow.Status(row.Status),
		CreatedAt:   row.CreateTime,
		UpdatedAt:   row.UpdateTime,
	}, nil
}

var _ WorkflowRepository = (*WorkflowRepo)(nil)
