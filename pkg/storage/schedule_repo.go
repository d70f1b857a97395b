package storage

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/LENAX/automation-engine/pkg/core/schedule"
	"github.com/LENAX/automation-engine/pkg/core/types"
	"github.com/LENAX/automation-engine/pkg/storage/dao"
)

var scheduleColumns = []string{
	"id", "name", "cron_expression", "timezone", "prompt", "workflow_id",
	"status", "next_run_at", "last_run_at", "last_error", "create_time", "update_time",
}

var scheduleUpdateColumns = []string{
	"name", "cron_expression", "timezone", "prompt", "workflow_id",
	"status", "next_run_at", "last_run_at", "last_error", "update_time",
}

const scheduleSelectColumns = "id, name, cron_expression, timezone, prompt, workflow_id, " +
	"status, next_run_at, last_run_at, last_error, create_time, update_time"

// ScheduleRepo ScheduleRepository的sqlx实现（对外导出）
type ScheduleRepo struct {
	store *Store
}

// NewScheduleRepo 创建ScheduleRepo实例（对外导出）
func NewScheduleRepo(store *Store) *ScheduleRepo {
	return &ScheduleRepo{store: store}
}

// Save 保存Schedule（幂等upsert）
func (r *ScheduleRepo) Save(ctx context.Context, s *schedule.Schedule) error {
	row := scheduleToDAO(s)
	query := r.store.dialect.UpsertSQL("schedules", scheduleColumns, "id", scheduleUpdateColumns)
	if _, err := r.store.db.NamedExecContext(ctx, query, row); err != nil {
		return &types.StorageError{Op: "保存Schedule", Err: err}
	}
	return nil
}

// GetByID 根据ID查询Schedule，不存在时返回(nil, nil)
func (r *ScheduleRepo) GetByID(ctx context.Context, id string) (*schedule.Schedule, error) {
	var row dao.ScheduleDAO
	query := "SELECT " + scheduleSelectColumns + " FROM schedules WHERE id = ?"
	err := r.store.db.GetContext(ctx, &row, r.store.db.Rebind(query), id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, &types.StorageError{Op: "查询Schedule", Err: err}
	}
	return scheduleFromDAO(&row), nil
}

// List 列出Schedule，status为空表示不过滤
func (r *ScheduleRepo) List(ctx context.Context, status schedule.Status) ([]*schedule.Schedule, error) {
	query := "SELECT " + scheduleSelectColumns + " FROM schedules"
	args := []interface{}{}
	if status != "" {
		query += " WHERE status = ?"
		args = append(args, string(status))
	}
	query += " ORDER BY create_time"

	var rows []dao.ScheduleDAO
	if err := r.store.db.SelectContext(ctx, &rows, r.store.db.Rebind(query), args...); err != nil {
		return nil, &types.StorageError{Op: "查询Schedule列表", Err: err}
	}

	schedules := make([]*schedule.Schedule, 0, len(rows))
	for i := range rows {
		schedules = append(schedules, scheduleFromDAO(&rows[i]))
	}
	return schedules, nil
}

// Delete 删除Schedule（幂等）
func (r *ScheduleRepo) Delete(ctx context.Context, id string) error {
	query := r.store.db.Rebind("DELETE FROM schedules WHERE id = ?")
	if _, err := r.store.db.ExecContext(ctx, query, id); err != nil {
		return &types.StorageError{Op: "删除Schedule", Err: err}
	}
	return nil
}

// scheduleToDAO 领域实体转数据库行
func scheduleToDAO(s *schedule.Schedule) *dao.ScheduleDAO {
	return &dao.ScheduleDAO{
		ID:             s.ID,
		Name:           s.Name,
		CronExpression: s.CronExpression,
		Timezone:       s.Timezone,
		Prompt:         s.Prompt,
		WorkflowID:     toNullString(s.WorkflowID),
		Status:         string(s.Status),
		NextRunAt:      toNullTime(s.NextRunAt),
		LastRunAt:      toNullTime(s.LastRunAt),
		LastError:      toNullString(s.LastError),
		CreateTime:     s.CreatedAt,
		UpdateTime:     s.UpdatedAt,
	}
}

// scheduleFromDAO 数据库行转领域实体
func scheduleFromDAO(row *dao.ScheduleDAO) *schedule.Schedule {
	return &schedule.Schedule{
		ID:             row.ID,
		Name:           row.Name,
		CronExpression: row.CronExpression,
		Timezone:       row.Timezone,
		Prompt:         row.Prompt,
		WorkflowID:     row.WorkflowID.String,
		Status:         schedule.Status(row.Status),
		NextRunAt:      fromNullTime(row.NextRunAt),
		LastRunAt:      fromNullTime(row.LastRunAt),
		LastError:      row.LastError.String,
		CreatedAt:      row.CreateTime,
		UpdatedAt:      row.UpdateTime,
	}
}

func toNullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func toNullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

func fromNullTime(nt sql.NullTime) *time.Time {
	if !nt.Valid {
		return nil
	}
	t := nt.Time
	return &t
}

var _ ScheduleRepository = (*ScheduleRepo)(nil)
