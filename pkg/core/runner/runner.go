// Package runner 实现单步执行器：给定步骤定义和解析后的参数，
// 按步骤类型分发到工具调用、延迟、条件分支或裸Prompt路径。
// 副作用仅限于一次工具调用；不直接写库，检查点持久化由Execution Engine负责
package runner

import (
	"context"
	"fmt"
	"time"

	"github.com/LENAX/automation-engine/pkg/core/execution"
	"github.com/LENAX/automation-engine/pkg/core/prompt"
	"github.com/LENAX/automation-engine/pkg/core/tool"
	"github.com/LENAX/automation-engine/pkg/core/types"
	"github.com/LENAX/automation-engine/pkg/core/workflow"
)

// UsageRecorder 用量记账能力接口（对外导出）
// 引擎按工具调用上报消耗；Exhausted返回true后当前步骤以QuotaExceeded失败
type UsageRecorder interface {
	Record(ctx context.Context, executionID, toolName string, usage tool.Usage)
	Exhausted(ctx context.Context, executionID string) bool
}

// Outcome 单步执行结果（对外导出）
type Outcome struct {
	Output            interface{}   // 步骤输出，写入变量表的保留键
	NeedsConfirmation bool          // 需要客户端确认，索引不推进
	NextIndex         int           // 下一步索引（condition可跳转到分支目标）
	Delay             time.Duration // >0表示挂起当前执行，到期后重入同一步骤
}

// Runner 单步执行器（对外导出）
type Runner struct {
	tools   tool.Invoker
	prompts prompt.Dispatcher
	usage   UsageRecorder
}

// New 创建Runner（对外导出）
// usage可为nil（不记账、不限额）
func New(tools tool.Invoker, prompts prompt.Dispatcher, usage UsageRecorder) *Runner {
	return &Runner{tools: tools, prompts: prompts, usage: usage}
}

// Run 执行一个步骤（对外导出）
// 参数中的{{variable}}引用先从exec的变量表解析，未解析的引用
// 返回VariableResolutionError使该步骤失败
func (r *Runner) Run(ctx context.Context, exec *execution.Execution, step workflow.Step) (*Outcome, error) {
	params, err := workflow.ResolveParams(step.Params, exec.Variables)
	if err != nil {
		return nil, err
	}

	switch step.Kind {
	case workflow.StepToolCall:
		return r.runToolCall(ctx, exec, step, params)
	case workflow.StepDelay:
		return r.runDelay(exec, step, params)
	case workflow.StepCondition:
		return r.runCondition(step, params)
	case workflow.StepSubPrompt:
		return r.runSubPrompt(ctx, step, params)
	default:
		return nil, fmt.Errorf("未知步骤类型: %q", step.Kind)
	}
}

// runToolCall 工具调用步骤
func (r *Runner) runToolCall(ctx context.Context, exec *execution.Execution, step workflow.Step, params map[string]interface{}) (*Outcome, error) {
	name, _ := params["tool"].(string)
	args, _ := params["args"].(map[string]interface{})

	// 确认闸门：定义标记或工具声明为高风险，且本执行尚未批准该步骤
	needsConfirm := step.RequiresConfirmation
	if risk, ok := r.tools.RiskOf(name); ok && risk == tool.RiskHigh {
		needsConfirm = true
	}
	if needsConfirm && !exec.StepApproved(step.Index) {
		return &Outcome{NeedsConfirmation: true, NextIndex: step.Index}, nil
	}

	// 限额闸门：耗尽后拒绝继续调用工具
	if r.usage != nil && r.usage.Exhausted(ctx, exec.ID) {
		return nil, &types.QuotaExceededError{ExecutionID: exec.ID}
	}

	result, err := r.tools.Invoke(ctx, name, args, tool.InvocationContext{
		ExecutionID:    exec.ID,
		StepIndex:      step.Index,
		IdempotencyKey: fmt.Sprintf("%s:%d", exec.ID, step.Index),
	})
	if err != nil {
		return nil, err
	}

	if r.usage != nil {
		r.usage.Record(ctx, exec.ID, name, result.Usage)
	}

	return &Outcome{Output: result.Output, NextIndex: step.Index + 1}, nil
}

// runDelay 延迟步骤
// 首次进入返回Delay让引擎挂起；恢复时刻已持久化在变量表中，
// 崩溃恢复重入同一步骤时按剩余时长继续等待，到期后才推进索引
func (r *Runner) runDelay(exec *execution.Execution, step workflow.Step, params map[string]interface{}) (*Outcome, error) {
	d, err := workflow.ParseDelayDuration(params["duration"])
	if err != nil {
		return nil, err
	}

	if untilStr, ok := exec.Variables[execution.StepDelayUntilKey(step.Index)].(string); ok {
		until, parseErr := time.Parse(time.RFC3339Nano, untilStr)
		if parseErr != nil {
			return nil, fmt.Errorf("恢复时刻格式无效: %w", parseErr)
		}
		if remaining := time.Until(until); remaining > 0 {
			return &Outcome{Delay: remaining, NextIndex: step.Index}, nil
		}
		// 延迟已到期，步骤完成
		return &Outcome{Output: untilStr, NextIndex: step.Index + 1}, nil
	}

	return &Outcome{Delay: d, NextIndex: step.Index}, nil
}

// runCondition 条件分支步骤
// 表达式为真跳转到if_true目标，否则if_false；目标在创建时已校验无环
func (r *Runner) runCondition(step workflow.Step, params map[string]interface{}) (*Outcome, error) {
	expr, _ := params["expression"].(string)
	verdict, err := EvalExpression(expr)
	if err != nil {
		return nil, err
	}

	key := "if_false"
	if verdict {
		key = "if_true"
	}
	target, ok := workflow.BranchTarget(params[key])
	if !ok {
		return nil, fmt.Errorf("condition缺少%s分支目标", key)
	}

	return &Outcome{Output: verdict, NextIndex: target}, nil
}

// runSubPrompt 裸Prompt步骤
func (r *Runner) runSubPrompt(ctx context.Context, step workflow.Step, params map[string]interface{}) (*Outcome, error) {
	text, _ := params["prompt"].(string)
	if text == "" {
		return nil, fmt.Errorf("sub_prompt缺少prompt参数")
	}

	answer, err := r.prompts.Complete(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("Prompt派发失败: %w", err)
	}

	return &Outcome{Output: answer, NextIndex: step.Index + 1}, nil
}
