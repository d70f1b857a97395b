package storage_test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/LENAX/automation-engine/pkg/core/execution"
	"github.com/LENAX/automation-engine/pkg/core/schedule"
	"github.com/LENAX/automation-engine/pkg/core/types"
	"github.com/LENAX/automation-engine/pkg/core/workflow"
	"github.com/LENAX/automation-engine/pkg/storage"
	"github.com/LENAX/automation-engine/pkg/storage/sqlite"
)

func newTestStore(t *testing.T) *storage.Store {
	t.Helper()
	dsn := filepath.Join(t.TempDir(), "test.db")
	store, err := storage.Open(sqlite.NewSQLiteDialect(), dsn)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func sampleWorkflow(t *testing.T, name string) *workflow.Workflow {
	t.Helper()
	wf, err := workflow.NewWorkflow(name, "测试用工作流", []workflow.Step{
		{Index: 0, Kind: workflow.StepToolCall, Params: map[string]interface{}{"tool": "web.fetch", "url": "http://example.com"}},
		{Index: 1, Kind: workflow.StepSubPrompt, Params: map[string]interface{}{"prompt": "总结 {{steps.0.output}}"}},
	})
	require.NoError(t, err)
	return wf
}

func TestWorkflowRepo(t *testing.T) {
	repos := newTestStore(t).Repos()
	ctx := context.Background()

	wf := sampleWorkflow(t, "抓取并总结")
	require.NoError(t, repos.Workflow.Save(ctx, wf))

	got, err := repos.Workflow.GetByID(ctx, wf.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, wf.ID, got.ID)
	assert.Equal(t, wf.Name, got.Name)
	assert.Equal(t, workflow.StatusActive, got.Status)
	require.Len(t, got.Steps, 2)
	assert.Equal(t, workflow.StepToolCall, got.Steps[0].Kind)
	assert.Equal(t, "web.fetch", got.Steps[0].Params["tool"])

	// 不存在的记录返回(nil, nil)
	missing, err := repos.Workflow.GetByID(ctx, "no-such-id")
	require.NoError(t, err)
	assert.Nil(t, missing)

	// upsert更新
	wf.Name = "更新后的名称"
	require.NoError(t, repos.Workflow.Save(ctx, wf))
	got, err = repos.Workflow.GetByID(ctx, wf.ID)
	require.NoError(t, err)
	assert.Equal(t, "更新后的名称", got.Name)

	// List与状态过滤
	wf2 := sampleWorkflow(t, "第二条")
	wf2.Status = workflow.StatusDisabled
	require.NoError(t, repos.Workflow.Save(ctx, wf2))

	all, err := repos.Workflow.List(ctx, "")
	require.NoError(t, err)
	assert.Len(t, all, 2)

	active, err := repos.Workflow.List(ctx, workflow.StatusActive)
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, wf.ID, active[0].ID)

	// Delete幂等
	require.NoError(t, repos.Workflow.Delete(ctx, wf.ID))
	require.NoError(t, repos.Workflow.Delete(ctx, wf.ID))
	got, err = repos.Workflow.GetByID(ctx, wf.ID)
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestScheduleRepo(t *testing.T) {
	repos := newTestStore(t).Repos()
	ctx := context.Background()

	s, err := schedule.New("每日早报", "0 8 * * *", "Asia/Shanghai", "生成早报", "")
	require.NoError(t, err)
	require.NoError(t, repos.Schedule.Save(ctx, s))

	got, err := repos.Schedule.GetByID(ctx, s.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, s.Name, got.Name)
	assert.Equal(t, "0 8 * * *", got.CronExpression)
	assert.Equal(t, "Asia/Shanghai", got.Timezone)
	assert.Equal(t, schedule.StatusEnabled, got.Status)
	require.NotNil(t, got.NextRunAt)
	assert.True(t, got.NextRunAt.Equal(*s.NextRunAt))
	assert.Nil(t, got.LastRunAt)

	// LastRunAt与LastError落盘
	now := time.Now().UTC().Truncate(time.Second)
	s.LastRunAt = &now
	s.LastError = "触发失败: workflow不存在"
	require.NoError(t, repos.Schedule.Save(ctx, s))

	got, err = repos.Schedule.GetByID(ctx, s.ID)
	require.NoError(t, err)
	require.NotNil(t, got.LastRunAt)
	assert.True(t, got.LastRunAt.Equal(now))
	assert.Equal(t, "触发失败: workflow不存在", got.LastError)

	missing, err := repos.Schedule.GetByID(ctx, "nope")
	require.NoError(t, err)
	assert.Nil(t, missing)

	enabled, err := repos.Schedule.List(ctx, schedule.StatusEnabled)
	require.NoError(t, err)
	assert.Len(t, enabled, 1)

	require.NoError(t, repos.Schedule.Delete(ctx, s.ID))
	got, err = repos.Schedule.GetByID(ctx, s.ID)
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestExecutionRepo(t *testing.T) {
	repos := newTestStore(t).Repos()
	ctx := context.Background()

	wf := sampleWorkflow(t, "测试")
	exec := execution.New(wf.ID, execution.TriggerManual, wf.Steps, map[string]interface{}{"city": "北京"})
	require.NoError(t, repos.Execution.Save(ctx, exec))

	got, err := repos.Execution.GetByID(ctx, exec.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, execution.StatusPending, got.Status)
	assert.Equal(t, 0, got.CurrentStepIndex)
	assert.Equal(t, "北京", got.Variables["city"])
	assert.Len(t, got.Steps, 2)
	assert.False(t, got.Resumed)

	missing, err := repos.Execution.GetByID(ctx, "nope")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestExecutionRepo_ListFilters(t *testing.T) {
	repos := newTestStore(t).Repos()
	ctx := context.Background()

	wfA := sampleWorkflow(t, "A")
	wfB := sampleWorkflow(t, "B")

	e1 := execution.New(wfA.ID, execution.TriggerManual, wfA.Steps, nil)
	e2 := execution.New(wfA.ID, execution.TriggerCron, wfA.Steps, nil)
	e2.Status = execution.StatusRunning
	e3 := execution.New(wfB.ID, execution.TriggerManual, wfB.Steps, nil)
	e3.Status = execution.StatusCompleted
	for _, e := range []*execution.Execution{e1, e2, e3} {
		require.NoError(t, repos.Execution.Save(ctx, e))
	}

	all, err := repos.Execution.List(ctx, "", "")
	require.NoError(t, err)
	assert.Len(t, all, 3)

	byWorkflow, err := repos.Execution.List(ctx, wfA.ID, "")
	require.NoError(t, err)
	assert.Len(t, byWorkflow, 2)

	running, err := repos.Execution.List(ctx, "", execution.StatusRunning)
	require.NoError(t, err)
	require.Len(t, running, 1)
	assert.Equal(t, e2.ID, running[0].ID)

	both, err := repos.Execution.List(ctx, wfB.ID, execution.StatusCompleted)
	require.NoError(t, err)
	assert.Len(t, both, 1)

	resumable, err := repos.Execution.ListByStatuses(ctx,
		execution.StatusRunning, execution.StatusAwaitingConfirmation)
	require.NoError(t, err)
	require.Len(t, resumable, 1)
	assert.Equal(t, e2.ID, resumable[0].ID)
}

func TestExecutionRepo_ApplyCheckpoint(t *testing.T) {
	repos := newTestStore(t).Repos()
	ctx := context.Background()

	wf := sampleWorkflow(t, "检查点")
	exec := execution.New(wf.ID, execution.TriggerManual, wf.Steps, nil)
	require.NoError(t, repos.Execution.Save(ctx, exec))

	started := time.Now().UTC().Truncate(time.Second)
	cp := storage.Checkpoint{
		Status:    execution.StatusRunning,
		StepIndex: 1,
		Variables: map[string]interface{}{
			execution.StepOutputKey(0): "抓取结果",
		},
		StartedAt: &started,
	}
	require.NoError(t, repos.Execution.ApplyCheckpoint(ctx, exec.ID, cp))

	got, err := repos.Execution.GetByID(ctx, exec.ID)
	require.NoError(t, err)
	// status、索引与变量表必须同时生效
	assert.Equal(t, execution.StatusRunning, got.Status)
	assert.Equal(t, 1, got.CurrentStepIndex)
	assert.Equal(t, "抓取结果", got.Variables[execution.StepOutputKey(0)])
	require.NotNil(t, got.StartedAt)
	assert.True(t, got.StartedAt.Equal(started))
	assert.Nil(t, got.FinishedAt)

	// 不存在的ID是错误
	err = repos.Execution.ApplyCheckpoint(ctx, "no-such-id", cp)
	assert.Error(t, err)
}

func TestRepos_StorageErrorOnClosedStore(t *testing.T) {
	store := newTestStore(t)
	repos := store.Repos()
	ctx := context.Background()
	require.NoError(t, store.Close())

	// 连接关闭后所有仓储操作以StorageError上浮，调用方不能假定操作已生效
	err := repos.Workflow.Save(ctx, sampleWorkflow(t, "已关库"))
	require.Error(t, err)
	var se *types.StorageError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, "保存Workflow", se.Op)

	_, err = repos.Execution.List(ctx, "", "")
	assert.ErrorAs(t, err, &se)

	_, err = repos.Schedule.List(ctx, "")
	assert.ErrorAs(t, err, &se)
}

func TestExecutionRepo_ApplyCheckpoint_TerminalGuard(t *testing.T) {
	repos := newTestStore(t).Repos()
	ctx := context.Background()

	wf := sampleWorkflow(t, "终态保护")
	exec := execution.New(wf.ID, execution.TriggerManual, wf.Steps, nil)
	require.NoError(t, repos.Execution.Save(ctx, exec))

	finished := time.Now().UTC().Truncate(time.Second)
	require.NoError(t, repos.Execution.ApplyCheckpoint(ctx, exec.ID, storage.Checkpoint{
		Status:     execution.StatusCancelled,
		StepIndex:  0,
		Variables:  map[string]interface{}{},
		LastError:  "Workflow已删除",
		FinishedAt: &finished,
	}))

	// 终态落盘后，迟到的running检查点被拒绝
	err := repos.Execution.ApplyCheckpoint(ctx, exec.ID, storage.Checkpoint{
		Status:    execution.StatusRunning,
		StepIndex: 1,
		Variables: map[string]interface{}{execution.StepOutputKey(0): "迟到输出"},
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, storage.ErrTerminalOverwrite)

	got, err := repos.Execution.GetByID(ctx, exec.ID)
	require.NoError(t, err)
	assert.Equal(t, execution.StatusCancelled, got.Status)
	assert.Equal(t, 0, got.CurrentStepIndex)
	assert.Equal(t, "Workflow已删除", got.LastError)
}

func TestExecutionRepo_MarkResumed(t *testing.T) {
	repos := newTestStore(t).Repos()
	ctx := context.Background()

	wf := sampleWorkflow(t, "恢复")
	exec := execution.New(wf.ID, execution.TriggerManual, wf.Steps, nil)
	exec.Status = execution.StatusRunning
	require.NoError(t, repos.Execution.Save(ctx, exec))

	require.NoError(t, repos.Execution.MarkResumed(ctx, exec.ID))

	got, err := repos.Execution.GetByID(ctx, exec.ID)
	require.NoError(t, err)
	assert.True(t, got.Resumed)
	// 审计标记不改变status
	assert.Equal(t, execution.StatusRunning, got.Status)
}

func TestExecutionRepo_CancelByWorkflow(t *testing.T) {
	repos := newTestStore(t).Repos()
	ctx := context.Background()

	wf := sampleWorkflow(t, "取消")

	running := execution.New(wf.ID, execution.TriggerManual, wf.Steps, nil)
	running.Status = execution.StatusRunning
	awaiting := execution.New(wf.ID, execution.TriggerManual, wf.Steps, nil)
	awaiting.Status = execution.StatusAwaitingConfirmation
	done := execution.New(wf.ID, execution.TriggerManual, wf.Steps, nil)
	done.Status = execution.StatusCompleted
	other := execution.New("other-wf", execution.TriggerManual, wf.Steps, nil)
	other.Status = execution.StatusRunning
	for _, e := range []*execution.Execution{running, awaiting, done, other} {
		require.NoError(t, repos.Execution.Save(ctx, e))
	}

	n, err := repos.Execution.CancelByWorkflow(ctx, wf.ID, "Workflow已删除")
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	got, _ := repos.Execution.GetByID(ctx, running.ID)
	assert.Equal(t, execution.StatusCancelled, got.Status)
	assert.Equal(t, "Workflow已删除", got.LastError)
	require.NotNil(t, got.FinishedAt)

	// 终态与其他Workflow的执行不受影响
	got, _ = repos.Execution.GetByID(ctx, done.ID)
	assert.Equal(t, execution.StatusCompleted, got.Status)
	got, _ = repos.Execution.GetByID(ctx, other.ID)
	assert.Equal(t, execution.StatusRunning, got.Status)
}

func TestExecutionRepo_SnapshotImmutableOnResave(t *testing.T) {
	repos := newTestStore(t).Repos()
	ctx := context.Background()

	wf := sampleWorkflow(t, "快照")
	exec := execution.New(wf.ID, execution.TriggerManual, wf.Steps, nil)
	require.NoError(t, repos.Execution.Save(ctx, exec))

	// 冲突更新时steps快照保持启动时的版本
	mutated := *exec
	mutated.Steps = []workflow.Step{{Index: 0, Kind: workflow.StepSubPrompt,
		Params: map[string]interface{}{"prompt": "changed"}}}
	mutated.Status = execution.StatusRunning
	require.NoError(t, repos.Execution.Save(ctx, &mutated))

	got, err := repos.Execution.GetByID(ctx, exec.ID)
	require.NoError(t, err)
	assert.Equal(t, execution.StatusRunning, got.Status)
	assert.Len(t, got.Steps, 2)
}
