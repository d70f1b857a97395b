package engine

import (
	"context"
	"log"
	"time"

	"github.com/LENAX/automation-engine/pkg/core/execution"
	"github.com/LENAX/automation-engine/pkg/storage"
)

// RecoveryManager 崩溃恢复管理器（对外导出）
// 启动时扫描被宕机打断的Execution，从最后检查点的步骤索引重入。
// 至少一次语义：检查点之后、下一步落盘之前崩溃的步骤会重新执行
type RecoveryManager struct {
	repos  *storage.Repositories
	engine *Engine
}

// NewRecoveryManager 创建RecoveryManager（对外导出）
func NewRecoveryManager(repos *storage.Repositories, eng *Engine) *RecoveryManager {
	return &RecoveryManager{repos: repos, engine: eng}
}

// Run 执行启动恢复扫描（对外导出）
// running的Execution标记resumed后重入；awaiting_confirmation的保持
// 原状等待客户端确认。单条恢复失败只记日志，不阻断其余恢复
func (m *RecoveryManager) Run(ctx context.Context) error {
	interrupted, err := m.repos.Execution.ListByStatuses(ctx,
		execution.StatusRunning, execution.StatusAwaitingConfirmation)
	if err != nil {
		return err
	}
	if len(interrupted) == 0 {
		log.Printf("✅ 恢复扫描完成，无被打断的Execution")
		return nil
	}

	log.Printf("🕐 恢复扫描发现%d个被打断的Execution", len(interrupted))
	resumed, failed := 0, 0
	for _, exec := range interrupted {
		if exec.Status == execution.StatusAwaitingConfirmation {
			// 等待确认的执行不自动重入
			log.Printf("🕐 Execution %s 在步骤%d继续等待确认", exec.ID, exec.CurrentStepIndex)
			continue
		}

		if err := m.recover(ctx, exec); err != nil {
			failed++
			log.Printf("❌ Execution %s 恢复失败: %v", exec.ID, err)
			continue
		}
		resumed++
	}

	log.Printf("✅ 恢复扫描完成: %d个已恢复, %d个失败", resumed, failed)
	return nil
}

// recover 恢复单个running的Execution
func (m *RecoveryManager) recover(ctx context.Context, exec *execution.Execution) error {
	// 宿主Workflow已删除的执行无法继续
	if exec.WorkflowID != "" {
		wf, err := m.repos.Workflow.GetByID(ctx, exec.WorkflowID)
		if err != nil {
			return err
		}
		if wf == nil {
			now := time.Now()
			exec.Status = execution.StatusFailed
			exec.LastError = "恢复时Workflow已不存在"
			exec.FinishedAt = &now
			return m.repos.Execution.ApplyCheckpoint(ctx, exec.ID, storage.Checkpoint{
				Status:     exec.Status,
				StepIndex:  exec.CurrentStepIndex,
				Variables:  exec.Variables,
				LastError:  exec.LastError,
				StartedAt:  exec.StartedAt,
				FinishedAt: exec.FinishedAt,
			})
		}
	}

	if err := m.repos.Execution.MarkResumed(ctx, exec.ID); err != nil {
		return err
	}

	log.Printf("🕐 Execution %s 从步骤%d恢复", exec.ID, exec.CurrentStepIndex)
	if m.engine.bus != nil {
		m.engine.publish(EventExecutionResumed, exec)
	}
	exec.Resumed = true
	m.engine.start(exec)
	return nil
}
