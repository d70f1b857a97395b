package workflow

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/LENAX/automation-engine/pkg/core/types"
)

// placeholderPattern 匹配{{variable}}引用，变量名允许字母数字、下划线、点号
var placeholderPattern = regexp.MustCompile(`\{\{\s*([A-Za-z0-9_.]+)\s*\}\}`)

// ReplacePlaceholder 替换单个字符串中的{{variable}}占位符
// value: 可能包含占位符的字符串
// variables: 变量表，key为占位符名称（不含{{}}）
// 返回替换后的值和未解析的占位符列表。
// 整串恰好是一个占位符时返回原始类型的值（保留数字/布尔/对象），
// 否则做字符串内嵌替换。
func ReplacePlaceholder(value string, variables map[string]interface{}) (interface{}, []string) {
	// 整串占位符：返回变量原值
	trimmed := strings.TrimSpace(value)
	if m := placeholderPattern.FindStringSubmatch(trimmed); m != nil && m[0] == trimmed {
		if actual, exists := variables[m[1]]; exists {
			return actual, nil
		}
		return value, []string{m[1]}
	}

	// 内嵌占位符：逐个替换为字符串形式
	var unresolved []string
	replaced := placeholderPattern.ReplaceAllStringFunc(value, func(match string) string {
		name := placeholderPattern.FindStringSubmatch(match)[1]
		actual, exists := variables[name]
		if !exists {
			unresolved = append(unresolved, name)
			return match
		}
		switch v := actual.(type) {
		case string:
			return v
		case nil:
			return ""
		default:
			return fmt.Sprintf("%v", v)
		}
	})

	return replaced, unresolved
}

// ResolveParams 解析参数表中的所有{{variable}}引用（对外导出）
// 返回解析后的新map，原map不被修改。嵌套map和切片递归解析。
// 存在未解析的引用时返回VariableResolutionError。
func ResolveParams(params map[string]interface{}, variables map[string]interface{}) (map[string]interface{}, error) {
	resolved, unresolved := resolveValue(params, variables)
	if len(unresolved) > 0 {
		return nil, &types.VariableResolutionError{Names: unresolved}
	}
	m, _ := resolved.(map[string]interface{})
	return m, nil
}

// resolveValue 递归解析单个值
func resolveValue(value interface{}, variables map[string]interface{}) (interface{}, []string) {
	switch v := value.(type) {
	case string:
		return ReplacePlaceholder(v, variables)
	case map[string]interface{}:
		out := make(map[string]interface{}, len(v))
		var unresolved []string
		for key, inner := range v {
			r, u := resolveValue(inner, variables)
			out[key] = r
			unresolved = append(unresolved, u...)
		}
		return out, unresolved
	case []interface{}:
		out := make([]interface{}, len(v))
		var unresolved []string
		for i, inner := range v {
			r, u := resolveValue(inner, variables)
			out[i] = r
			unresolved = append(unresolved, u...)
		}
		return out, unresolved
	default:
		return value, nil
	}
}
