package types

import (
	"errors"
	"fmt"
)

// ValidationError 定义校验错误（创建时拒绝，不会持久化）
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("校验失败: %s", e.Reason)
}

// NewValidationError 创建校验错误（对外导出）
func NewValidationError(format string, args ...interface{}) *ValidationError {
	return &ValidationError{Reason: fmt.Sprintf(format, args...)}
}

// NotFoundError 未知ID错误（update/trigger时目标不存在）
type NotFoundError struct {
	Kind string // 实体类型（workflow/schedule/execution/tool）
	ID   string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s不存在: %s", e.Kind, e.ID)
}

// VariableResolutionError 变量解析错误（步骤级错误，只影响所属Execution）
type VariableResolutionError struct {
	Names []string // 未解析的变量名列表
}

func (e *VariableResolutionError) Error() string {
	return fmt.Sprintf("以下变量未找到对应的值: %v", e.Names)
}

// ToolInvocationError 工具调用错误（外部工具失败或超时，步骤级错误）
type ToolInvocationError struct {
	Tool    string
	Reason  string
	Timeout bool
}

func (e *ToolInvocationError) Error() string {
	if e.Timeout {
		return fmt.Sprintf("工具 %s 调用超时", e.Tool)
	}
	return fmt.Sprintf("工具 %s 调用失败: %s", e.Tool, e.Reason)
}

// QuotaExceededError 用量超限错误（步骤级错误，可被客户端识别以提示提额）
type QuotaExceededError struct {
	ExecutionID string
}

func (e *QuotaExceededError) Error() string {
	return fmt.Sprintf("Execution %s 已达用量上限，拒绝继续调用工具", e.ExecutionID)
}

// StorageError 持久化错误（对进行中的操作是致命的，不能假定操作已生效）
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("存储操作 %s 失败: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}

// IsNotFound 判断是否为NotFoundError（对外导出）
func IsNotFound(err error) bool {
	var nf *NotFoundError
	return errors.As(err, &nf)
}

// IsValidation 判断是否为ValidationError（对外导出）
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}
