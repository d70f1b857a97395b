// Package usage 实现工具调用的用量记账：按Execution累计token与credit消耗，
// 超出配置上限后Step Runner以QuotaExceeded拒绝后续工具调用
package usage

import (
	"context"
	"log"
	"sync"

	"github.com/LENAX/automation-engine/pkg/core/runner"
	"github.com/LENAX/automation-engine/pkg/core/tool"
)

// Limits 单次Execution的用量上限（对外导出）
// 零值字段表示该维度不限额
type Limits struct {
	MaxTokens  int
	MaxCredits float64
}

// Accountant 进程内用量记账（对外导出）
// 计数随进程重启清零，限额保护的是单次运行内的消耗
type Accountant struct {
	mu     sync.Mutex
	limits Limits
	spent  map[string]tool.Usage
}

// NewAccountant 创建Accountant（对外导出）
func NewAccountant(limits Limits) *Accountant {
	return &Accountant{
		limits: limits,
		spent:  make(map[string]tool.Usage),
	}
}

// Record 累计一次工具调用的消耗
func (a *Accountant) Record(ctx context.Context, executionID, toolName string, u tool.Usage) {
	a.mu.Lock()
	total := a.spent[executionID]
	total.Tokens += u.Tokens
	total.Credits += u.Credits
	a.spent[executionID] = total
	a.mu.Unlock()

	if u.Tokens > 0 || u.Credits > 0 {
		log.Printf("🕐 Execution %s 工具%s消耗: tokens=%d credits=%.2f",
			executionID, toolName, u.Tokens, u.Credits)
	}
}

// Exhausted 判断Execution是否已超出任一维度的上限
func (a *Accountant) Exhausted(ctx context.Context, executionID string) bool {
	a.mu.Lock()
	total := a.spent[executionID]
	a.mu.Unlock()

	if a.limits.MaxTokens > 0 && total.Tokens >= a.limits.MaxTokens {
		log.Printf("⚠️ Execution %s token用量超限: %d >= %d",
			executionID, total.Tokens, a.limits.MaxTokens)
		return true
	}
	if a.limits.MaxCredits > 0 && total.Credits >= a.limits.MaxCredits {
		log.Printf("⚠️ Execution %s credit用量超限: %.2f >= %.2f",
			executionID, total.Credits, a.limits.MaxCredits)
		return true
	}
	return false
}

var _ runner.UsageRecorder = (*Accountant)(nil)
