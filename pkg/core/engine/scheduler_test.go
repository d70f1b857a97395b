package engine

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/LENAX/automation-engine/pkg/core/execution"
	"github.com/LENAX/automation-engine/pkg/core/runner"
	"github.com/LENAX/automation-engine/pkg/core/schedule"
	"github.com/LENAX/automation-engine/pkg/core/types"
	"github.com/LENAX/automation-engine/pkg/storage"
	"github.com/LENAX/automation-engine/pkg/storage/sqlite"
)

func mustSchedule(t *testing.T, name, cronExpr, timezone, prompt, workflowID string) *schedule.Schedule {
	t.Helper()
	s, err := schedule.New(name, cronExpr, timezone, prompt, workflowID)
	require.NoError(t, err)
	return s
}

func newSchedulerHarness(t *testing.T) (*Scheduler, *testHarness) {
	t.Helper()
	store, err := storage.Open(sqlite.NewSQLiteDialect(), filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	tools := newStubTools()
	repos := store.Repos()
	eng := New(repos, runner.New(tools, &stubPrompts{answer: "回答内容"}, nil), nil)
	t.Cleanup(eng.Close)

	sched := NewScheduler(repos, eng)
	eng.AttachTimers(sched)
	t.Cleanup(sched.Close)

	return sched, &testHarness{engine: eng, repos: repos, tools: tools}
}

func TestCreateSchedule(t *testing.T) {
	s, _ := newSchedulerHarness(t)
	ctx := context.Background()

	created, err := s.CreateSchedule(ctx, "每分钟", "* * * * *", "UTC", "生成报告", "")
	require.NoError(t, err)
	assert.Equal(t, schedule.StatusEnabled, created.Status)
	require.NotNil(t, created.NextRunAt)
	// NextRunAt是未来的分钟边界
	assert.True(t, created.NextRunAt.After(time.Now()))
	assert.Zero(t, created.NextRunAt.Second())

	got, err := s.GetSchedule(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, created.ID, got.ID)
}

func TestCreateSchedule_WorkflowMustExist(t *testing.T) {
	s, h := newSchedulerHarness(t)
	ctx := context.Background()

	_, err := s.CreateSchedule(ctx, "孤儿", "* * * * *", "", "", "no-such-workflow")
	assert.True(t, types.IsNotFound(err))

	wf, err := h.engine.CreateWorkflow(ctx, "目标", "", toolSteps(1))
	require.NoError(t, err)
	_, err = s.CreateSchedule(ctx, "合法", "* * * * *", "", "", wf.ID)
	assert.NoError(t, err)
}

func TestCreateSchedule_Invalid(t *testing.T) {
	s, _ := newSchedulerHarness(t)
	ctx := context.Background()

	_, err := s.CreateSchedule(ctx, "坏表达式", "not a cron", "", "p", "")
	assert.True(t, types.IsValidation(err))

	_, err = s.CreateSchedule(ctx, "坏时区", "* * * * *", "Mars/Phobos", "p", "")
	assert.True(t, types.IsValidation(err))
}

func TestUpdateSchedule(t *testing.T) {
	s, _ := newSchedulerHarness(t)
	ctx := context.Background()

	created, err := s.CreateSchedule(ctx, "早报", "0 8 * * *", "Asia/Shanghai", "生成早报", "")
	require.NoError(t, err)
	firstNext := *created.NextRunAt

	// 同一定义重算得到同一时刻
	found, err := s.UpdateSchedule(ctx, created)
	require.NoError(t, err)
	assert.True(t, found)
	assert.True(t, created.NextRunAt.Equal(firstNext))

	// 改cron后NextRunAt跟着变
	created.CronExpression = "0 20 * * *"
	found, err = s.UpdateSchedule(ctx, created)
	require.NoError(t, err)
	assert.True(t, found)
	assert.False(t, created.NextRunAt.Equal(firstNext))

	// paused清空NextRunAt
	created.Status = schedule.StatusPaused
	_, err = s.UpdateSchedule(ctx, created)
	require.NoError(t, err)
	assert.Nil(t, created.NextRunAt)

	missing := *created
	missing.ID = "no-such-id"
	found, err = s.UpdateSchedule(ctx, &missing)
	require.NoError(t, err)
	assert.False(t, found)
}

func TestDeleteSchedule(t *testing.T) {
	s, _ := newSchedulerHarness(t)
	ctx := context.Background()

	created, err := s.CreateSchedule(ctx, "临时", "* * * * *", "", "p", "")
	require.NoError(t, err)
	require.NoError(t, s.DeleteSchedule(ctx, created.ID))

	_, err = s.GetSchedule(ctx, created.ID)
	assert.True(t, types.IsNotFound(err))
}

func TestFireDue(t *testing.T) {
	s, h := newSchedulerHarness(t)
	ctx := context.Background()

	created, err := s.CreateSchedule(ctx, "到期", "* * * * *", "UTC", "生成报告", "")
	require.NoError(t, err)

	// 推进到NextRunAt之后触发
	fireAt := created.NextRunAt.Add(time.Second)
	require.NoError(t, s.fireDue(ctx, fireAt))

	got, err := s.GetSchedule(ctx, created.ID)
	require.NoError(t, err)
	require.NotNil(t, got.LastRunAt)
	assert.True(t, got.LastRunAt.Equal(fireAt))
	assert.Empty(t, got.LastError)
	// NextRunAt推进到下一个分钟边界
	require.NotNil(t, got.NextRunAt)
	assert.True(t, got.NextRunAt.After(fireAt))

	// 裸Prompt触发产出一条WorkflowID为空的Execution
	execs, err := h.repos.Execution.List(ctx, "", "")
	require.NoError(t, err)
	require.Len(t, execs, 1)
	assert.Empty(t, execs[0].WorkflowID)
	assert.Equal(t, created.ID, execs[0].ScheduleID)
	assert.Equal(t, execution.TriggerCron, execs[0].Trigger)
}

func TestFireDue_NotYetDue(t *testing.T) {
	s, h := newSchedulerHarness(t)
	ctx := context.Background()

	created, err := s.CreateSchedule(ctx, "未到期", "0 8 * * *", "UTC", "p", "")
	require.NoError(t, err)

	require.NoError(t, s.fireDue(ctx, created.NextRunAt.Add(-time.Hour)))

	execs, err := h.repos.Execution.List(ctx, "", "")
	require.NoError(t, err)
	assert.Empty(t, execs)
}

func TestFireDue_MissedWindowFiresOnce(t *testing.T) {
	s, h := newSchedulerHarness(t)
	ctx := context.Background()

	created, err := s.CreateSchedule(ctx, "错过", "* * * * *", "UTC", "p", "")
	require.NoError(t, err)

	// 错过多个周期只补发一次，下一次从now重算
	fireAt := created.NextRunAt.Add(10 * time.Minute)
	require.NoError(t, s.fireDue(ctx, fireAt))

	execs, err := h.repos.Execution.List(ctx, "", "")
	require.NoError(t, err)
	assert.Len(t, execs, 1)

	got, err := s.GetSchedule(ctx, created.ID)
	require.NoError(t, err)
	assert.True(t, got.NextRunAt.After(fireAt))
}

func TestFireDue_TriggerFailureRecorded(t *testing.T) {
	s, h := newSchedulerHarness(t)
	ctx := context.Background()

	wf, err := h.engine.CreateWorkflow(ctx, "将消失", "", toolSteps(1))
	require.NoError(t, err)
	created, err := s.CreateSchedule(ctx, "指向已删Workflow", "* * * * *", "UTC", "", wf.ID)
	require.NoError(t, err)

	require.NoError(t, h.engine.DeleteWorkflow(ctx, wf.ID))
	require.NoError(t, s.fireDue(ctx, created.NextRunAt.Add(time.Second)))

	// 触发失败记入LastError，Schedule保持enabled继续排期
	got, err := s.GetSchedule(ctx, created.ID)
	require.NoError(t, err)
	assert.NotEmpty(t, got.LastError)
	assert.Equal(t, schedule.StatusEnabled, got.Status)
	require.NotNil(t, got.NextRunAt)
}

func TestSchedulerAfter(t *testing.T) {
	s, _ := newSchedulerHarness(t)

	fired := make(chan struct{})
	s.After(10*time.Millisecond, func() { close(fired) })

	select {
	case <-fired:
	case <-time.After(time.Second):
		t.Fatal("定时回调未触发")
	}
}
