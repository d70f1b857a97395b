package runner

import (
	"fmt"
	"strconv"
	"strings"
)

// comparators 支持的比较运算符，长运算符优先匹配
var comparators = []string{"==", "!=", ">=", "<=", ">", "<"}

// EvalExpression 求值布尔表达式（对外导出）
// 形式为 "<左值> <运算符> <右值>" 或单个真值字面量。
// {{variable}}引用在参数解析阶段已替换为实际值，
// 这里只处理替换后的字面量：两侧都能解析为数字时按数值比较，否则按字符串比较
func EvalExpression(expr string) (bool, error) {
	expr = strings.TrimSpace(expr)
	if expr == "" {
		return false, fmt.Errorf("条件表达式为空")
	}

	for _, op := range comparators {
		idx := strings.Index(expr, op)
		if idx < 0 {
			continue
		}
		lhs := strings.TrimSpace(expr[:idx])
		rhs := strings.TrimSpace(expr[idx+len(op):])
		if lhs == "" || rhs == "" {
			return false, fmt.Errorf("条件表达式不完整: %q", expr)
		}
		return compare(lhs, op, rhs)
	}

	// 无运算符：按真值字面量处理
	switch strings.ToLower(expr) {
	case "true", "1", "yes":
		return true, nil
	case "false", "0", "no", "":
		return false, nil
	default:
		// 非空字符串视为真
		return true, nil
	}
}

// compare 比较两个操作数
func compare(lhs, op, rhs string) (bool, error) {
	lhs = trimQuotes(lhs)
	rhs = trimQuotes(rhs)

	lf, lErr := strconv.ParseFloat(lhs, 64)
	rf, rErr := strconv.ParseFloat(rhs, 64)
	numeric := lErr == nil && rErr == nil

	switch op {
	case "==":
		if numeric {
			return lf == rf, nil
		}
		return lhs == rhs, nil
	case "!=":
		if numeric {
			return lf != rf, nil
		}
		return lhs != rhs, nil
	case ">":
		if numeric {
			return lf > rf, nil
		}
		return lhs > rhs, nil
	case ">=":
		if numeric {
			return lf >= rf, nil
		}
		return lhs >= rhs, nil
	case "<":
		if numeric {
			return lf < rf, nil
		}
		return lhs < rhs, nil
	case "<=":
		if numeric {
			return lf <= rf, nil
		}
		return lhs <= rhs, nil
	default:
		return false, fmt.Errorf("不支持的运算符: %q", op)
	}
}

// trimQuotes 去除两侧成对的引号
func trimQuotes(s string) string {
	if len(s) >= 2 {
		if (s[0] == '"' && s[len(s)-1] == '"') || (s[0] == '\'' && s[len(s)-1] == '\'') {
			return s[1 : len(s)-1]
		}
	}
	return s
}
