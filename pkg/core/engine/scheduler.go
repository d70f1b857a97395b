package engine

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/LENAX/automation-engine/pkg/core/schedule"
	"github.com/LENAX/automation-engine/pkg/core/types"
	"github.com/LENAX/automation-engine/pkg/storage"
)

// maxSchedulerIdle 没有任何待触发Schedule时的兜底唤醒间隔
const maxSchedulerIdle = time.Minute

// Scheduler 定时调度器（对外导出）
// 单计时器模型：始终只睡到最早的NextRunAt，Schedule变更通过wake通道
// 重算唤醒时刻。宕机期间错过的触发在启动时各补发一次，下一次触发
// 从当前时刻重算，不为每个错过的周期逐一补发
type Scheduler struct {
	repos  *storage.Repositories
	engine *Engine

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	wake   chan struct{}

	mu     sync.Mutex
	timers map[*time.Timer]struct{}
}

// NewScheduler 创建Scheduler（对外导出）
func NewScheduler(repos *storage.Repositories, eng *Engine) *Scheduler {
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		repos:  repos,
		engine: eng,
		ctx:    ctx,
		cancel: cancel,
		wake:   make(chan struct{}, 1),
		timers: make(map[*time.Timer]struct{}),
	}
}

// Start 启动调度循环（对外导出）
// 先补发宕机期间到期的Schedule，再进入单计时器循环
func (s *Scheduler) Start() error {
	if err := s.fireDue(s.ctx, time.Now()); err != nil {
		return err
	}

	s.wg.Add(1)
	go s.loop()
	log.Printf("✅ 调度器已启动")
	return nil
}

// Close 停止调度循环与所有延迟计时器（对外导出）
func (s *Scheduler) Close() {
	s.cancel()

	s.mu.Lock()
	for t := range s.timers {
		t.Stop()
	}
	s.timers = make(map[*time.Timer]struct{})
	s.mu.Unlock()

	s.wg.Wait()
	log.Printf("✅ 调度器已关闭")
}

// After 实现TimerFacility：延迟步骤的恢复计时（对外导出）
// 计时器随调度器关闭一并停止；计时本身不落盘，恢复时刻由执行
// 的变量表持久化，重启后由Recovery Manager按剩余时长重建
func (s *Scheduler) After(d time.Duration, fn func()) {
	var t *time.Timer
	t = time.AfterFunc(d, func() {
		s.mu.Lock()
		delete(s.timers, t)
		s.mu.Unlock()
		fn()
	})

	s.mu.Lock()
	s.timers[t] = struct{}{}
	s.mu.Unlock()
}

// ========== Schedule管理 ==========

// CreateSchedule 创建Schedule（对外导出）
// 关联Workflow时校验其存在；NextRunAt在创建时即计算
func (s *Scheduler) CreateSchedule(ctx context.Context, name, cronExpr, timezone, prompt, workflowID string) (*schedule.Schedule, error) {
	if workflowID != "" {
		wf, err := s.repos.Workflow.GetByID(ctx, workflowID)
		if err != nil {
			return nil, err
		}
		if wf == nil {
			return nil, &types.NotFoundError{Kind: "workflow", ID: workflowID}
		}
	}

	sched, err := schedule.New(name, cronExpr, timezone, prompt, workflowID)
	if err != nil {
		return nil, err
	}
	if err := s.repos.Schedule.Save(ctx, sched); err != nil {
		return nil, err
	}

	log.Printf("✅ Schedule已创建: %s (%s) 下次触发 %s", sched.Name, sched.ID, formatNextRun(sched))
	s.kick()
	return sched, nil
}

// GetSchedule 查询Schedule（对外导出）
func (s *Scheduler) GetSchedule(ctx context.Context, id string) (*schedule.Schedule, error) {
	sched, err := s.repos.Schedule.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if sched == nil {
		return nil, &types.NotFoundError{Kind: "schedule", ID: id}
	}
	return sched, nil
}

// ListSchedules 列出Schedule，status为空表示不过滤（对外导出）
func (s *Scheduler) ListSchedules(ctx context.Context, status schedule.Status) ([]*schedule.Schedule, error) {
	return s.repos.Schedule.List(ctx, status)
}

// UpdateSchedule 更新Schedule定义（对外导出）
// 目标不存在时返回false；NextRunAt按新定义重算
func (s *Scheduler) UpdateSchedule(ctx context.Context, sched *schedule.Schedule) (bool, error) {
	existing, err := s.repos.Schedule.GetByID(ctx, sched.ID)
	if err != nil {
		return false, err
	}
	if existing == nil {
		return false, nil
	}
	if err := sched.Validate(); err != nil {
		return false, err
	}

	sched.CreatedAt = existing.CreatedAt
	sched.LastRunAt = existing.LastRunAt
	sched.UpdatedAt = time.Now()
	if err := sched.ComputeNextRun(time.Now()); err != nil {
		return false, err
	}
	if err := s.repos.Schedule.Save(ctx, sched); err != nil {
		return false, err
	}

	log.Printf("✅ Schedule已更新: %s (%s) 下次触发 %s", sched.Name, sched.ID, formatNextRun(sched))
	s.kick()
	return true, nil
}

// DeleteSchedule 删除Schedule（对外导出）
// 已派发的Execution不受影响
func (s *Scheduler) DeleteSchedule(ctx context.Context, id string) error {
	if err := s.repos.Schedule.Delete(ctx, id); err != nil {
		return err
	}
	log.Printf("✅ Schedule已删除: %s", id)
	s.kick()
	return nil
}

// ========== 调度循环（内部实现） ==========

// kick 通知循环重算唤醒时刻
func (s *Scheduler) kick() {
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

// loop 单计时器调度循环
func (s *Scheduler) loop() {
	defer s.wg.Done()

	for {
		sleep := s.untilNext()
		timer := time.NewTimer(sleep)

		select {
		case <-s.ctx.Done():
			timer.Stop()
			return
		case <-s.wake:
			timer.Stop()
			continue
		case <-timer.C:
			if err := s.fireDue(s.ctx, time.Now()); err != nil {
				log.Printf("❌ 调度触发失败: %v", err)
			}
		}
	}
}

// untilNext 距最早NextRunAt的时长
func (s *Scheduler) untilNext() time.Duration {
	schedules, err := s.repos.Schedule.List(s.ctx, schedule.StatusEnabled)
	if err != nil {
		log.Printf("❌ 查询Schedule失败: %v", err)
		return maxSchedulerIdle
	}

	var earliest *time.Time
	for _, sched := range schedules {
		if sched.NextRunAt == nil {
			continue
		}
		if earliest == nil || sched.NextRunAt.Before(*earliest) {
			earliest = sched.NextRunAt
		}
	}
	if earliest == nil {
		return maxSchedulerIdle
	}

	sleep := time.Until(*earliest)
	if sleep < 0 {
		return 0
	}
	return sleep
}

// fireDue 触发所有到期的Schedule
// 每个到期Schedule只补发一次，随后NextRunAt从now重算；
// 单个Schedule触发失败记入其LastError，不影响其他Schedule
func (s *Scheduler) fireDue(ctx context.Context, now time.Time) error {
	schedules, err := s.repos.Schedule.List(ctx, schedule.StatusEnabled)
	if err != nil {
		return err
	}

	for _, sched := range schedules {
		if !sched.Due(now) {
			continue
		}

		firedAt := now
		sched.LastRunAt = &firedAt
		sched.LastError = ""
		if _, err := s.engine.TriggerFromSchedule(ctx, sched); err != nil {
			sched.LastError = err.Error()
			log.Printf("❌ Schedule %s 触发失败: %v", sched.Name, err)
		} else {
			log.Printf("🕐 Schedule %s 已触发", sched.Name)
		}

		if err := sched.ComputeNextRun(now); err != nil {
			sched.LastError = err.Error()
		}
		sched.UpdatedAt = time.Now()
		if err := s.repos.Schedule.Save(ctx, sched); err != nil {
			log.Printf("❌ Schedule %s 状态落盘失败: %v", sched.Name, err)
		}
	}
	return nil
}

func formatNextRun(s *schedule.Schedule) string {
	if s.NextRunAt == nil {
		return "无"
	}
	return s.NextRunAt.Format(time.RFC3339)
}

var _ TimerFacility = (*Scheduler)(nil)
