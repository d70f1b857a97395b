// Package engine 实现Workflow执行引擎：Workflow定义的唯一管理方，
// 负责触发执行、逐步推进、检查点持久化与确认/延迟的挂起恢复。
// 至少一次语义：检查点先于下一步执行落盘，崩溃后从已持久化的索引重入
package engine

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/LENAX/automation-engine/pkg/core/execution"
	"github.com/LENAX/automation-engine/pkg/core/runner"
	"github.com/LENAX/automation-engine/pkg/core/schedule"
	"github.com/LENAX/automation-engine/pkg/core/types"
	"github.com/LENAX/automation-engine/pkg/core/workflow"
	"github.com/LENAX/automation-engine/pkg/storage"
)

// TimerFacility 定时能力接口（对外导出）
// 延迟步骤的恢复计时由Scheduler统一提供，引擎不自建timer池
type TimerFacility interface {
	// After 在d之后执行fn，受实现方生命周期管理
	After(d time.Duration, fn func())
}

// Engine Workflow执行引擎（对外导出）
type Engine struct {
	repos  *storage.Repositories
	runner *runner.Runner
	bus    *EventBus
	timers TimerFacility

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New 创建Engine（对外导出）
func New(repos *storage.Repositories, r *runner.Runner, bus *EventBus) *Engine {
	ctx, cancel := context.WithCancel(context.Background())
	return &Engine{
		repos:  repos,
		runner: r,
		bus:    bus,
		ctx:    ctx,
		cancel: cancel,
	}
}

// AttachTimers 注入定时能力（对外导出）
// 必须在触发任何延迟步骤前完成注入；未注入时退化为进程内time.AfterFunc
func (e *Engine) AttachTimers(t TimerFacility) {
	e.timers = t
}

// Events 获取事件总线（对外导出）
func (e *Engine) Events() *EventBus {
	return e.bus
}

// Close 关闭引擎，等待在途执行到达检查点（对外导出）
// 在途执行以running状态留在存储中，下次启动由Recovery Manager恢复
func (e *Engine) Close() {
	e.cancel()
	e.wg.Wait()
	log.Printf("✅ 执行引擎已关闭")
}

// ========== Workflow管理 ==========

// CreateWorkflow 创建Workflow（对外导出）
func (e *Engine) CreateWorkflow(ctx context.Context, name, description string, steps []workflow.Step) (*workflow.Workflow, error) {
	wf, err := workflow.NewWorkflow(name, description, steps)
	if err != nil {
		return nil, err
	}
	if err := e.repos.Workflow.Save(ctx, wf); err != nil {
		return nil, err
	}
	log.Printf("✅ Workflow已创建: %s (%s)", wf.Name, wf.ID)
	return wf, nil
}

// GetWorkflow 查询Workflow（对外导出）
func (e *Engine) GetWorkflow(ctx context.Context, id string) (*workflow.Workflow, error) {
	wf, err := e.repos.Workflow.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if wf == nil {
		return nil, &types.NotFoundError{Kind: "workflow", ID: id}
	}
	return wf, nil
}

// ListWorkflows 列出Workflow，status为空表示不过滤（对外导出）
func (e *Engine) ListWorkflows(ctx context.Context, status workflow.Status) ([]*workflow.Workflow, error) {
	return e.repos.Workflow.List(ctx, status)
}

// UpdateWorkflow 更新Workflow定义（对外导出）
// 目标不存在时返回false；在途执行持有创建时的步骤快照，不受编辑影响
func (e *Engine) UpdateWorkflow(ctx context.Context, wf *workflow.Workflow) (bool, error) {
	existing, err := e.repos.Workflow.GetByID(ctx, wf.ID)
	if err != nil {
		return false, err
	}
	if existing == nil {
		return false, nil
	}
	if err := wf.Validate(); err != nil {
		return false, err
	}

	wf.CreatedAt = existing.CreatedAt
	wf.UpdatedAt = time.Now()
	if err := e.repos.Workflow.Save(ctx, wf); err != nil {
		return false, err
	}
	log.Printf("✅ Workflow已更新: %s (%s)", wf.Name, wf.ID)
	return true, nil
}

// DeleteWorkflow 删除Workflow（对外导出）
// 非终态Execution全部取消，历史Execution保留供审计
func (e *Engine) DeleteWorkflow(ctx context.Context, id string) error {
	cancelled, err := e.repos.Execution.CancelByWorkflow(ctx, id, "Workflow已删除")
	if err != nil {
		return err
	}
	if cancelled > 0 {
		log.Printf("⚠️ Workflow %s 删除，已取消%d个在途Execution", id, cancelled)
	}
	if err := e.repos.Workflow.Delete(ctx, id); err != nil {
		return err
	}
	log.Printf("✅ Workflow已删除: %s", id)
	return nil
}

// ========== 触发 ==========

// TriggerWorkflow 手动触发Workflow执行（对外导出）
// Workflow不存在或disabled时返回NotFoundError
func (e *Engine) TriggerWorkflow(ctx context.Context, workflowID string, trigger execution.Trigger, variables map[string]interface{}) (*execution.Execution, error) {
	return e.trigger(ctx, workflowID, trigger, variables, "")
}

// trigger 创建并启动Execution
// scheduleID在首次落盘前写入：步骤快照之外的列在后续upsert中不再更新
func (e *Engine) trigger(ctx context.Context, workflowID string, trig execution.Trigger, variables map[string]interface{}, scheduleID string) (*execution.Execution, error) {
	wf, err := e.repos.Workflow.GetByID(ctx, workflowID)
	if err != nil {
		return nil, err
	}
	if wf == nil || wf.Status != workflow.StatusActive {
		return nil, &types.NotFoundError{Kind: "workflow", ID: workflowID}
	}

	exec := execution.New(workflowID, trig, wf.Steps, variables)
	exec.ScheduleID = scheduleID
	if err := e.repos.Execution.Save(ctx, exec); err != nil {
		return nil, err
	}

	log.Printf("🕐 触发Workflow: %s -> Execution %s", wf.Name, exec.ID)
	e.start(exec)
	return exec, nil
}

// TriggerFromSchedule 由Schedule触发执行（对外导出）
// 关联Workflow时走正常路径；裸Prompt时合成单步sub_prompt执行
func (e *Engine) TriggerFromSchedule(ctx context.Context, s *schedule.Schedule) (*execution.Execution, error) {
	if s.WorkflowID != "" {
		return e.trigger(ctx, s.WorkflowID, execution.TriggerCron, nil, s.ID)
	}

	steps := []workflow.Step{{
		Index:  0,
		Kind:   workflow.StepSubPrompt,
		Params: map[string]interface{}{"prompt": s.Prompt},
	}}
	exec := execution.New("", execution.TriggerCron, steps, nil)
	exec.ScheduleID = s.ID
	if err := e.repos.Execution.Save(ctx, exec); err != nil {
		return nil, err
	}

	log.Printf("🕐 Schedule %s 派发裸Prompt -> Execution %s", s.Name, exec.ID)
	e.start(exec)
	return exec, nil
}

// ========== Execution管理 ==========

// GetExecution 查询Execution（对外导出）
func (e *Engine) GetExecution(ctx context.Context, id string) (*execution.Execution, error) {
	exec, err := e.repos.Execution.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if exec == nil {
		return nil, &types.NotFoundError{Kind: "execution", ID: id}
	}
	return exec, nil
}

// ListExecutions 按workflowID/status过滤Execution（对外导出）
func (e *Engine) ListExecutions(ctx context.Context, workflowID string, status execution.Status) ([]*execution.Execution, error) {
	return e.repos.Execution.List(ctx, workflowID, status)
}

// ConfirmExecution 对awaiting_confirmation的执行提交确认结果（对外导出）
// 批准后从同一步骤重入；拒绝则整个执行取消
func (e *Engine) ConfirmExecution(ctx context.Context, id string, approved bool) (*execution.Execution, error) {
	exec, err := e.GetExecution(ctx, id)
	if err != nil {
		return nil, err
	}
	if exec.Status != execution.StatusAwaitingConfirmation {
		return nil, types.NewValidationError("Execution %s 不在等待确认状态: %s", id, exec.Status)
	}

	if !approved {
		now := time.Now()
		exec.Status = execution.StatusCancelled
		exec.LastError = "步骤确认被拒绝"
		exec.FinishedAt = &now
		if err := e.checkpoint(ctx, exec); err != nil {
			return nil, err
		}
		e.publish(EventExecutionCancelled, exec)
		log.Printf("⚠️ Execution %s 确认被拒绝，已取消", id)
		return exec, nil
	}

	exec.Variables[execution.StepApprovedKey(exec.CurrentStepIndex)] = true
	if err := exec.Transition(execution.StatusRunning); err != nil {
		return nil, err
	}
	if err := e.checkpoint(ctx, exec); err != nil {
		return nil, err
	}

	log.Printf("✅ Execution %s 步骤%d已确认，继续执行", id, exec.CurrentStepIndex)
	e.start(exec)
	return exec, nil
}

// CancelExecution 取消非终态Execution（对外导出）
func (e *Engine) CancelExecution(ctx context.Context, id, reason string) (*execution.Execution, error) {
	exec, err := e.GetExecution(ctx, id)
	if err != nil {
		return nil, err
	}
	if exec.IsTerminal() {
		return nil, types.NewValidationError("Execution %s 已处于终态: %s", id, exec.Status)
	}

	now := time.Now()
	exec.Status = execution.StatusCancelled
	exec.LastError = reason
	exec.FinishedAt = &now
	if err := e.checkpoint(ctx, exec); err != nil {
		return nil, err
	}
	e.publish(EventExecutionCancelled, exec)
	log.Printf("⚠️ Execution %s 已取消: %s", id, reason)
	return exec, nil
}

// Resume 恢复一个已持久化为running的Execution（对外导出）
// 供Recovery Manager和延迟到期回调使用；从检查点索引重入
func (e *Engine) Resume(ctx context.Context, id string) error {
	exec, err := e.repos.Execution.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if exec == nil {
		return &types.NotFoundError{Kind: "execution", ID: id}
	}
	if exec.Status != execution.StatusRunning {
		return nil
	}
	e.start(exec)
	return nil
}

// ========== 推进循环（内部实现） ==========

// start 启动异步推进
func (e *Engine) start(exec *execution.Execution) {
	e.wg.Add(1)
	go e.advance(exec)
}

// advance 逐步推进执行直到终态或挂起点
// 每步完成后先写检查点再执行下一步；同一步骤可能在崩溃恢复后重入
func (e *Engine) advance(exec *execution.Execution) {
	defer e.wg.Done()
	ctx := e.ctx

	if exec.Status == execution.StatusPending {
		now := time.Now()
		exec.StartedAt = &now
		if err := exec.Transition(execution.StatusRunning); err != nil {
			log.Printf("❌ Execution %s 启动失败: %v", exec.ID, err)
			return
		}
		if err := e.checkpoint(ctx, exec); err != nil {
			logCheckpointFailure(exec, err)
			return
		}
		e.publish(EventExecutionStarted, exec)
	}

	for {
		select {
		case <-ctx.Done():
			// 引擎关闭，执行保持running留给下次启动恢复
			log.Printf("⚠️ 引擎关闭，Execution %s 在索引%d处挂起", exec.ID, exec.CurrentStepIndex)
			return
		default:
		}

		// 协作式取消：外部取消只改库，推进前核对
		current, err := e.repos.Execution.GetByID(ctx, exec.ID)
		if err == nil && current != nil && current.Status == execution.StatusCancelled {
			log.Printf("⚠️ Execution %s 已被取消，停止推进", exec.ID)
			return
		}

		if exec.CurrentStepIndex >= len(exec.Steps) {
			e.complete(ctx, exec)
			return
		}

		step, ok := exec.StepAt(exec.CurrentStepIndex)
		if !ok {
			e.fail(ctx, exec, fmt.Errorf("步骤索引%d不存在", exec.CurrentStepIndex))
			return
		}

		outcome, err := e.runner.Run(ctx, exec, step)
		if err != nil {
			if ctx.Err() != nil {
				// 关闭打断了当前步骤，不标记失败，留给恢复流程
				log.Printf("⚠️ 引擎关闭，Execution %s 在索引%d处挂起", exec.ID, exec.CurrentStepIndex)
				return
			}
			e.fail(ctx, exec, err)
			return
		}

		if outcome.NeedsConfirmation {
			if err := exec.Transition(execution.StatusAwaitingConfirmation); err != nil {
				e.fail(ctx, exec, err)
				return
			}
			if err := e.checkpoint(ctx, exec); err != nil {
				logCheckpointFailure(exec, err)
				return
			}
			e.publish(EventAwaitingConfirm, exec)
			log.Printf("🕐 Execution %s 在步骤%d等待确认", exec.ID, step.Index)
			return
		}

		if outcome.Delay > 0 {
			e.suspend(ctx, exec, step.Index, outcome.Delay)
			return
		}

		if outcome.Output != nil {
			exec.Variables[execution.StepOutputKey(step.Index)] = outcome.Output
		}
		if err := exec.AdvanceTo(outcome.NextIndex); err != nil {
			e.fail(ctx, exec, err)
			return
		}
		if err := e.checkpoint(ctx, exec); err != nil {
			logCheckpointFailure(exec, err)
			return
		}
		e.publish(EventStepCompleted, exec)
	}
}

// suspend 延迟步骤挂起：恢复时刻落盘后由定时能力回调重入同一步骤
func (e *Engine) suspend(ctx context.Context, exec *execution.Execution, stepIndex int, delay time.Duration) {
	until := time.Now().Add(delay)
	exec.Variables[execution.StepDelayUntilKey(stepIndex)] = until.Format(time.RFC3339Nano)
	if err := e.checkpoint(ctx, exec); err != nil {
		logCheckpointFailure(exec, err)
		return
	}
	e.publish(EventExecutionDelayed, exec)
	log.Printf("🕐 Execution %s 延迟%s后从步骤%d恢复", exec.ID, delay, stepIndex)

	id := exec.ID
	resume := func() {
		if err := e.Resume(e.ctx, id); err != nil {
			log.Printf("❌ Execution %s 延迟恢复失败: %v", id, err)
		}
	}
	if e.timers != nil {
		e.timers.After(delay, resume)
	} else {
		time.AfterFunc(delay, resume)
	}
}

// complete 执行完成
func (e *Engine) complete(ctx context.Context, exec *execution.Execution) {
	now := time.Now()
	exec.FinishedAt = &now
	if err := exec.Transition(execution.StatusCompleted); err != nil {
		log.Printf("❌ Execution %s 完成迁移失败: %v", exec.ID, err)
		return
	}
	if err := e.checkpoint(ctx, exec); err != nil {
		logCheckpointFailure(exec, err)
		return
	}
	e.publish(EventExecutionCompleted, exec)
	log.Printf("✅ Execution %s 已完成", exec.ID)
}

// fail 执行失败：记录错误并落盘，已完成步骤的输出保留
func (e *Engine) fail(ctx context.Context, exec *execution.Execution, cause error) {
	now := time.Now()
	exec.LastError = cause.Error()
	exec.FinishedAt = &now
	exec.Status = execution.StatusFailed
	if err := e.checkpoint(ctx, exec); err != nil {
		logCheckpointFailure(exec, err)
		return
	}
	e.publish(EventExecutionFailed, exec)
	log.Printf("❌ Execution %s 在步骤%d失败: %v", exec.ID, exec.CurrentStepIndex, cause)
}

// logCheckpointFailure 区分检查点失败原因
// 并发取消先把终态落盘时，推进方观察到拒绝后安静停止，不算故障
func logCheckpointFailure(exec *execution.Execution, err error) {
	if errors.Is(err, storage.ErrTerminalOverwrite) {
		log.Printf("⚠️ Execution %s 已进入终态，停止推进", exec.ID)
		return
	}
	log.Printf("❌ Execution %s 检查点写入失败: %v", exec.ID, err)
}

// checkpoint 原子落盘当前执行状态
func (e *Engine) checkpoint(ctx context.Context, exec *execution.Execution) error {
	return e.repos.Execution.ApplyCheckpoint(ctx, exec.ID, storage.Checkpoint{
		Status:     exec.Status,
		StepIndex:  exec.CurrentStepIndex,
		Variables:  exec.Variables,
		LastError:  exec.LastError,
		StartedAt:  exec.StartedAt,
		FinishedAt: exec.FinishedAt,
	})
}

// publish 发布执行事件，失败只记日志不影响推进
func (e *Engine) publish(eventType EventType, exec *execution.Execution) {
	if e.bus == nil {
		return
	}
	err := e.bus.Publish(Event{
		Type:        eventType,
		ExecutionID: exec.ID,
		WorkflowID:  exec.WorkflowID,
		StepIndex:   exec.CurrentStepIndex,
		Status:      exec.Status,
		Error:       exec.LastError,
	})
	if err != nil {
		log.Printf("⚠️ 事件发布失败: %v", err)
	}
}
