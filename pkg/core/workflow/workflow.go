package workflow

import (
	"fmt"
	"time"

	dag "github.com/begmaroman/go-dag"
	"github.com/google/uuid"

	"github.com/LENAX/automation-engine/pkg/core/types"
)

// Status Workflow状态（对外导出）
type Status string

const (
	StatusActive   Status = "active"   // 可被触发
	StatusDisabled Status = "disabled" // 禁用，触发返回NotFound
)

// StepKind 步骤类型（对外导出）
type StepKind string

const (
	StepToolCall  StepKind = "tool_call"  // 调用外部工具
	StepDelay     StepKind = "delay"      // 延迟后恢复
	StepCondition StepKind = "condition"  // 条件分支
	StepSubPrompt StepKind = "sub_prompt" // 裸Prompt代理路径
)

// Step 步骤定义
// Params中的字符串值支持{{variable}}引用，执行时从Execution的变量表解析
type Step struct {
	Index                int                    `json:"index"`
	Kind                 StepKind               `json:"kind"`
	Params               map[string]interface{} `json:"params"`
	RequiresConfirmation bool                   `json:"requires_confirmation,omitempty"`
}

// Workflow 工作流定义（对外导出）
// 由Execution Engine独占管理，只能通过其update/delete操作变更
type Workflow struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	Steps       []Step    `json:"steps"`
	Status      Status    `json:"status"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// NewWorkflow 创建Workflow（对外导出）
// steps为空或索引非法时返回ValidationError
func NewWorkflow(name, description string, steps []Step) (*Workflow, error) {
	wf := &Workflow{
		ID:          uuid.NewString(),
		Name:        name,
		Description: description,
		Steps:       steps,
		Status:      StatusActive,
		CreatedAt:   time.Now(),
		UpdatedAt:   time.Now(),
	}
	if err := wf.Validate(); err != nil {
		return nil, err
	}
	return wf, nil
}

// Validate 校验Workflow定义（对外导出）
// 检查项：名称非空、步骤非空、索引连续且唯一、步骤参数完整、分支目标无环
func (w *Workflow) Validate() error {
	if w.Name == "" {
		return types.NewValidationError("Workflow名称不能为空")
	}
	if len(w.Steps) == 0 {
		return types.NewValidationError("Workflow至少需要一个步骤")
	}

	seen := make(map[int]bool, len(w.Steps))
	for _, s := range w.Steps {
		if s.Index < 0 || s.Index >= len(w.Steps) {
			return types.NewValidationError("步骤索引越界: %d（有效范围 0-%d）", s.Index, len(w.Steps)-1)
		}
		if seen[s.Index] {
			return types.NewValidationError("步骤索引重复: %d", s.Index)
		}
		seen[s.Index] = true

		if err := validateStep(s, len(w.Steps)); err != nil {
			return err
		}
	}

	return validateBranchGraph(w.Steps)
}

// StepAt 按索引获取步骤（对外导出）
func (w *Workflow) StepAt(index int) (Step, bool) {
	for _, s := range w.Steps {
		if s.Index == index {
			return s, true
		}
	}
	return Step{}, false
}

// validateStep 校验单个步骤的类型与参数
func validateStep(s Step, stepCount int) error {
	switch s.Kind {
	case StepToolCall:
		name, _ := s.Params["tool"].(string)
		if name == "" {
			return types.NewValidationError("步骤%d: tool_call缺少tool参数", s.Index)
		}
	case StepDelay:
		if _, err := ParseDelayDuration(s.Params["duration"]); err != nil {
			return types.NewValidationError("步骤%d: %v", s.Index, err)
		}
	case StepCondition:
		expr, _ := s.Params["expression"].(string)
		if expr == "" {
			return types.NewValidationError("步骤%d: condition缺少expression参数", s.Index)
		}
		for _, key := range []string{"if_true", "if_false"} {
			target, ok := branchTarget(s.Params[key])
			if !ok {
				return types.NewValidationError("步骤%d: condition缺少%s分支目标", s.Index, key)
			}
			if target < 0 || target >= stepCount {
				return types.NewValidationError("步骤%d: %s分支目标越界: %d", s.Index, key, target)
			}
		}
	case StepSubPrompt:
		p, _ := s.Params["prompt"].(string)
		if p == "" {
			return types.NewValidationError("步骤%d: sub_prompt缺少prompt参数", s.Index)
		}
	default:
		return types.NewValidationError("步骤%d: 未知步骤类型 %q", s.Index, s.Kind)
	}
	return nil
}

// stepNode go-dag节点（实现Identifiable接口）
// Index必须导出：go-dag默认用JSON序列化结果做顶点去重，
// 非导出字段会让所有节点哈希相同而被判为重复顶点。
type stepNode struct {
	Index int `json:"index"`
}

func (n *stepNode) ID() string {
	return fmt.Sprintf("step_%d", n.Index)
}

// validateBranchGraph 校验步骤图无环（创建时检查，而非执行时）
// 每个步骤指向其后继：普通步骤指向index+1，condition指向两个分支目标。
// go-dag在AddEdge时递归检测循环，构图失败即存在环。
func validateBranchGraph(steps []Step) error {
	d := dag.NewDAG[*stepNode]()

	nodes := make(map[int]*stepNode, len(steps))
	for _, s := range steps {
		n := &stepNode{Index: s.Index}
		nodes[s.Index] = n
		if _, err := d.AddVertex(n); err != nil {
			return types.NewValidationError("构建步骤图失败: %v", err)
		}
	}

	addEdge := func(from, to int) error {
		if to >= len(steps) {
			// 指向序列末尾之后视为终止，不构成边
			return nil
		}
		if from == to {
			return types.NewValidationError("步骤%d: 分支目标指向自身", from)
		}
		if isEdge, _ := d.IsEdge(nodes[from].ID(), nodes[to].ID()); isEdge {
			return nil
		}
		if err := d.AddEdge(nodes[from].ID(), nodes[to].ID()); err != nil {
			return types.NewValidationError("步骤分支存在循环: %d -> %d", from, to)
		}
		return nil
	}

	for _, s := range steps {
		if s.Kind == StepCondition {
			ifTrue, _ := branchTarget(s.Params["if_true"])
			ifFalse, _ := branchTarget(s.Params["if_false"])
			if err := addEdge(s.Index, ifTrue); err != nil {
				return err
			}
			if err := addEdge(s.Index, ifFalse); err != nil {
				return err
			}
		} else {
			if err := addEdge(s.Index, s.Index+1); err != nil {
				return err
			}
		}
	}

	return nil
}

// branchTarget 解析分支目标索引（JSON反序列化后数字是float64）
func branchTarget(v interface{}) (int, bool) {
	switch t := v.(type) {
	case int:
		return t, true
	case int64:
		return int(t), true
	case float64:
		return int(t), true
	default:
		return 0, false
	}
}

// BranchTarget 解析分支目标索引（对外导出，供Step Runner使用）
func BranchTarget(v interface{}) (int, bool) {
	return branchTarget(v)
}

// ParseDelayDuration 解析delay步骤的duration参数（对外导出）
// 支持time.ParseDuration格式字符串（"60s"）或秒数
func ParseDelayDuration(v interface{}) (time.Duration, error) {
	switch t := v.(type) {
	case string:
		d, err := time.ParseDuration(t)
		if err != nil {
			return 0, fmt.Errorf("duration格式无效: %q", t)
		}
		if d <= 0 {
			return 0, fmt.Errorf("duration必须为正: %q", t)
		}
		return d, nil
	case int:
		if t <= 0 {
			return 0, fmt.Errorf("duration必须为正: %d", t)
		}
		return time.Duration(t) * time.Second, nil
	case float64:
		if t <= 0 {
			return 0, fmt.Errorf("duration必须为正: %v", t)
		}
		return time.Duration(t * float64(time.Second)), nil
	default:
		return 0, fmt.Errorf("delay缺少有效的duration参数")
	}
}
