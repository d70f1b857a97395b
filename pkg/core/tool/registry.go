package tool

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/LENAX/automation-engine/pkg/core/types"
)

// RiskLevel 工具风险等级（对外导出）
// high等级的工具调用前需要客户端确认
type RiskLevel string

const (
	RiskLow    RiskLevel = "low"
	RiskMedium RiskLevel = "medium"
	RiskHigh   RiskLevel = "high"
)

// Usage 单次工具调用的用量（上报给Usage Accounting）
type Usage struct {
	Tokens  int     `json:"tokens"`
	Credits float64 `json:"credits"`
}

// Result 工具调用结果
type Result struct {
	Output interface{} `json:"output"`
	Usage  Usage       `json:"usage"`
}

// Handler 工具实现函数（对外导出）
type Handler func(ctx context.Context, args map[string]interface{}) (*Result, error)

// Definition 工具定义（对外导出）
type Definition struct {
	Name        string
	Description string
	Risk        RiskLevel
	Timeout     time.Duration // 单次调用超时上限，0使用默认值
	Handler     Handler
}

// InvocationContext 调用上下文（对外导出）
// IdempotencyKey由Execution ID和步骤索引派生，幂等的工具后端可据此去重
type InvocationContext struct {
	ExecutionID    string
	StepIndex      int
	IdempotencyKey string
}

// Invoker 工具调用能力接口（对外导出，Step Runner依赖此接口）
type Invoker interface {
	// Invoke 调用指定工具，未注册的工具名直接失败（fail closed）
	Invoke(ctx context.Context, name string, args map[string]interface{}, ic InvocationContext) (*Result, error)
	// RiskOf 查询工具风险等级
	RiskOf(name string) (RiskLevel, bool)
}

// defaultTimeout 未指定时的单次调用超时
const defaultTimeout = 30 * time.Second

// Registry 工具注册中心（对外导出）
// 启动时由进程入口一次性注册全部工具，运行期只读
type Registry struct {
	mu    sync.RWMutex
	tools map[string]*Definition
}

// NewRegistry 创建工具注册中心（对外导出）
func NewRegistry() *Registry {
	return &Registry{
		tools: make(map[string]*Definition),
	}
}

// Register 注册工具（对外导出）
func (r *Registry) Register(def *Definition) error {
	if def.Name == "" {
		return fmt.Errorf("工具名称不能为空")
	}
	if def.Handler == nil {
		return fmt.Errorf("工具 %s 缺少Handler", def.Name)
	}
	if def.Risk == "" {
		def.Risk = RiskLow
	}
	if def.Timeout <= 0 {
		def.Timeout = defaultTimeout
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.tools[def.Name]; exists {
		return fmt.Errorf("工具 %s 已注册", def.Name)
	}
	r.tools[def.Name] = def
	return nil
}

// Get 获取工具定义（对外导出）
func (r *Registry) Get(name string) (*Definition, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	def, ok := r.tools[name]
	return def, ok
}

// RiskOf 查询工具风险等级（对外导出）
func (r *Registry) RiskOf(name string) (RiskLevel, bool) {
	def, ok := r.Get(name)
	if !ok {
		return "", false
	}
	return def.Risk, true
}

// Names 列出已注册的工具名（对外导出）
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		names = append(names, name)
	}
	return names
}

// Invoke 调用工具（对外导出）
// 未注册的工具名返回NotFoundError；超出工具声明的超时返回
// ToolInvocationError{Timeout: true}
func (r *Registry) Invoke(ctx context.Context, name string, args map[string]interface{}, ic InvocationContext) (*Result, error) {
	def, ok := r.Get(name)
	if !ok {
		return nil, &types.NotFoundError{Kind: "tool", ID: name}
	}

	callCtx, cancel := context.WithTimeout(ctx, def.Timeout)
	defer cancel()

	type callResult struct {
		result *Result
		err    error
	}
	done := make(chan callResult, 1)
	go func() {
		result, err := def.Handler(callCtx, args)
		done <- callResult{result: result, err: err}
	}()

	select {
	case <-callCtx.Done():
		if callCtx.Err() == context.DeadlineExceeded {
			return nil, &types.ToolInvocationError{Tool: name, Timeout: true}
		}
		return nil, &types.ToolInvocationError{Tool: name, Reason: callCtx.Err().Error()}
	case cr := <-done:
		if cr.err != nil {
			return nil, &types.ToolInvocationError{Tool: name, Reason: cr.err.Error()}
		}
		if cr.result == nil {
			cr.result = &Result{}
		}
		return cr.result, nil
	}
}
