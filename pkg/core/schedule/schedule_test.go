package schedule

import (
	"testing"
	"time"

	"github.com/LENAX/automation-engine/pkg/core/types"
)

func TestNextRun_MinuteBoundaryUTC(t *testing.T) {
	at := time.Date(2025, 6, 1, 10, 30, 27, 0, time.UTC)

	next, err := NextRun("* * * * *", "", at)
	if err != nil {
		t.Fatalf("计算下次触发失败: %v", err)
	}

	want := time.Date(2025, 6, 1, 10, 31, 0, 0, time.UTC)
	if !next.Equal(want) {
		t.Errorf("期望下一分钟边界 %v，实际 %v", want, next)
	}
}

func TestNextRun_AdvancesExactlyOneMinute(t *testing.T) {
	at := time.Date(2025, 6, 1, 10, 30, 0, 0, time.UTC)

	first, err := NextRun("* * * * *", "UTC", at)
	if err != nil {
		t.Fatalf("计算下次触发失败: %v", err)
	}
	second, err := NextRun("* * * * *", "UTC", first)
	if err != nil {
		t.Fatalf("计算下次触发失败: %v", err)
	}

	if diff := second.Sub(first); diff != time.Minute {
		t.Errorf("期望恰好前进一分钟，实际 %v", diff)
	}
	if second.Before(first) {
		t.Error("触发时刻不能回退")
	}
}

func TestNextRun_Timezone(t *testing.T) {
	// UTC 16:00 = 上海 00:00（次日）
	at := time.Date(2025, 6, 1, 15, 0, 0, 0, time.UTC)

	next, err := NextRun("0 8 * * *", "Asia/Shanghai", at)
	if err != nil {
		t.Fatalf("计算下次触发失败: %v", err)
	}

	loc, _ := time.LoadLocation("Asia/Shanghai")
	want := time.Date(2025, 6, 2, 8, 0, 0, 0, loc)
	if !next.Equal(want) {
		t.Errorf("期望上海时间次日08:00 (%v)，实际 %v", want, next)
	}
}

func TestNextRun_Descriptor(t *testing.T) {
	at := time.Date(2025, 6, 1, 10, 30, 0, 0, time.UTC)
	next, err := NextRun("@hourly", "", at)
	if err != nil {
		t.Fatalf("描述符解析失败: %v", err)
	}
	want := time.Date(2025, 6, 1, 11, 0, 0, 0, time.UTC)
	if !next.Equal(want) {
		t.Errorf("期望 %v，实际 %v", want, next)
	}
}

func TestNew_Validation(t *testing.T) {
	cases := []struct {
		name       string
		sName      string
		cron       string
		tz         string
		prompt     string
		workflowID string
	}{
		{"名称为空", "", "* * * * *", "", "p", ""},
		{"无Prompt也无Workflow", "s", "* * * * *", "", "", ""},
		{"Cron无效", "s", "not a cron", "", "p", ""},
		{"六字段Cron拒绝", "s", "0 * * * * *", "", "p", ""},
		{"时区无效", "s", "* * * * *", "Mars/Olympus", "p", ""},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := New(tc.sName, tc.cron, tc.tz, tc.prompt, tc.workflowID)
			if err == nil {
				t.Fatal("期望校验失败")
			}
			if !types.IsValidation(err) {
				t.Errorf("期望ValidationError，实际 %T", err)
			}
		})
	}
}

func TestNew_ComputesNextRun(t *testing.T) {
	s, err := New("每分钟", "* * * * *", "", "检查库存", "")
	if err != nil {
		t.Fatalf("创建Schedule失败: %v", err)
	}
	if s.NextRunAt == nil {
		t.Fatal("创建后NextRunAt不能为空")
	}
	if !s.NextRunAt.After(time.Now().Add(-time.Second)) {
		t.Errorf("NextRunAt必须在未来: %v", s.NextRunAt)
	}
	if s.NextRunAt.Second() != 0 {
		t.Errorf("期望分钟边界，实际 %v", s.NextRunAt)
	}
}

func TestComputeNextRun_PausedClearsNextRun(t *testing.T) {
	s, err := New("暂停测试", "* * * * *", "", "p", "")
	if err != nil {
		t.Fatalf("创建Schedule失败: %v", err)
	}

	s.Status = StatusPaused
	if err := s.ComputeNextRun(time.Now()); err != nil {
		t.Fatalf("重算失败: %v", err)
	}
	if s.NextRunAt != nil {
		t.Error("paused状态的NextRunAt应为nil")
	}
}

func TestComputeNextRun_Idempotent(t *testing.T) {
	// 相同定义在相同时刻重算，结果不变（schedule.update无变更时nextRunAt不漂移）
	now := time.Date(2025, 6, 1, 10, 30, 27, 0, time.UTC)
	s := &Schedule{
		Name:           "幂等",
		CronExpression: "*/5 * * * *",
		Status:         StatusEnabled,
		Prompt:         "p",
	}

	if err := s.ComputeNextRun(now); err != nil {
		t.Fatalf("重算失败: %v", err)
	}
	first := *s.NextRunAt

	if err := s.ComputeNextRun(now); err != nil {
		t.Fatalf("重算失败: %v", err)
	}
	if !s.NextRunAt.Equal(first) {
		t.Errorf("相同输入重算结果应一致: %v != %v", s.NextRunAt, first)
	}
}

func TestDue(t *testing.T) {
	now := time.Now()
	past := now.Add(-time.Minute)
	future := now.Add(time.Minute)

	s := &Schedule{Status: StatusEnabled, NextRunAt: &past}
	if !s.Due(now) {
		t.Error("过期的enabled Schedule应到期")
	}

	s.NextRunAt = &future
	if s.Due(now) {
		t.Error("未来的Schedule不应到期")
	}

	s.Status = StatusPaused
	s.NextRunAt = &past
	if s.Due(now) {
		t.Error("paused的Schedule不应到期")
	}
}
