package schedule

import (
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"

	"github.com/LENAX/automation-engine/pkg/core/types"
)

// Status Schedule状态（对外导出）
type Status string

const (
	StatusEnabled  Status = "enabled"
	StatusPaused   Status = "paused"
	StatusDisabled Status = "disabled"
)

// parser 标准五字段cron解析器（分 时 日 月 周），支持@hourly等描述符
// 日与周同时受限时按传统cron的OR语义合并（robfig默认行为）
var parser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// Schedule 定时触发器定义（对外导出）
// 由Scheduler独占管理。NextRunAt恒为cronExpression在timezone下的
// 最早未来时刻，paused/disabled时为nil
type Schedule struct {
	ID             string     `json:"id"`
	Name           string     `json:"name"`
	CronExpression string     `json:"cron_expression"`
	Timezone       string     `json:"timezone"` // IANA时区名
	Prompt         string     `json:"prompt,omitempty"`
	WorkflowID     string     `json:"workflow_id,omitempty"` // 为空时直接派发裸Prompt
	Status         Status     `json:"status"`
	NextRunAt      *time.Time `json:"next_run_at,omitempty"`
	LastRunAt      *time.Time `json:"last_run_at,omitempty"`
	LastError      string     `json:"last_error,omitempty"` // 最近一次触发失败的记录，不会取消Schedule
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

// New 创建Schedule（对外导出）
// 校验失败返回ValidationError；创建即计算NextRunAt
func New(name, cronExpr, timezone, prompt, workflowID string) (*Schedule, error) {
	s := &Schedule{
		ID:             uuid.NewString(),
		Name:           name,
		CronExpression: cronExpr,
		Timezone:       timezone,
		Prompt:         prompt,
		WorkflowID:     workflowID,
		Status:         StatusEnabled,
		CreatedAt:      time.Now(),
		UpdatedAt:      time.Now(),
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	if err := s.ComputeNextRun(time.Now()); err != nil {
		return nil, err
	}
	return s, nil
}

// Validate 校验Schedule定义（对外导出）
func (s *Schedule) Validate() error {
	if s.Name == "" {
		return types.NewValidationError("Schedule名称不能为空")
	}
	if s.Prompt == "" && s.WorkflowID == "" {
		return types.NewValidationError("Schedule必须关联Workflow或携带Prompt")
	}
	if _, err := parser.Parse(s.CronExpression); err != nil {
		return types.NewValidationError("Cron表达式无效: %v", err)
	}
	if _, err := s.Location(); err != nil {
		return types.NewValidationError("时区无效: %q", s.Timezone)
	}
	return nil
}

// Location 加载IANA时区，为空时使用UTC（对外导出）
func (s *Schedule) Location() (*time.Location, error) {
	if s.Timezone == "" {
		return time.UTC, nil
	}
	return time.LoadLocation(s.Timezone)
}

// NextRun 计算cron表达式在指定时区下after之后的最早触发时刻（对外导出）
func NextRun(cronExpr, timezone string, after time.Time) (time.Time, error) {
	sched, err := parser.Parse(cronExpr)
	if err != nil {
		return time.Time{}, types.NewValidationError("Cron表达式无效: %v", err)
	}
	loc := time.UTC
	if timezone != "" {
		loc, err = time.LoadLocation(timezone)
		if err != nil {
			return time.Time{}, types.NewValidationError("时区无效: %q", timezone)
		}
	}
	return sched.Next(after.In(loc)), nil
}

// ComputeNextRun 重算NextRunAt（对外导出）
// enabled时为now之后的最早触发时刻，否则置nil
func (s *Schedule) ComputeNextRun(now time.Time) error {
	if s.Status != StatusEnabled {
		s.NextRunAt = nil
		return nil
	}
	next, err := NextRun(s.CronExpression, s.Timezone, now)
	if err != nil {
		return err
	}
	s.NextRunAt = &next
	return nil
}

// Due 判断在now时刻是否到期（对外导出）
func (s *Schedule) Due(now time.Time) bool {
	return s.Status == StatusEnabled && s.NextRunAt != nil && !s.NextRunAt.After(now)
}
