// internal/errors/errors.go
package errors

import (
	"errors"
	"fmt"
)

// ErrorType 定义错误类型
type ErrorType string

const (
	// ErrorTypeInvalidInput 前置产物缺失或输入不合法（如未合并初稿即润色）
	ErrorTypeInvalidInput ErrorType = "invalid_input"
	// ErrorTypeUpstream 完成服务的网络/HTTP错误，本层不重试
	ErrorTypeUpstream ErrorType = "upstream_failure"
	// ErrorTypeNotFound 按ID查找不到对应实体（如回答了不存在的问题）
	ErrorTypeNotFound ErrorType = "not_found"
	// ErrorTypeConflict 阶段守卫拒绝：同一阶段已有生成在进行
	ErrorTypeConflict ErrorType = "conflict"
	// ErrorTypeDegradedParse JSON抽取失败，调用方以兜底对象吸收，不对外抛出
	ErrorTypeDegradedParse ErrorType = "degraded_parse"
)

// AppError 应用程序错误结构
type AppError struct {
	Type    ErrorType
	Message string
	Err     error
}

// Error 实现 error 接口
func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

// Unwrap 实现错误链接
func (e *AppError) Unwrap() error {
	return e.Err
}

// NewAppError 创建新的 AppError
func NewAppError(errType ErrorType, message string, originalError error) *AppError {
	return &AppError{
		Type:    errType,
		Message: message,
		Err:     originalError,
	}
}

// NewInvalidInputError 创建输入错误
func NewInvalidInputError(message string, originalError error) *AppError {
	return NewAppError(ErrorTypeInvalidInput, message, originalError)
}

// NewUpstreamError 创建上游调用错误
func NewUpstreamError(message string, originalError error) *AppError {
	return NewAppError(ErrorTypeUpstream, message, originalError)
}

// NewNotFoundError 创建未找到错误
func NewNotFoundError(message string, originalError error) *AppError {
	return NewAppError(ErrorTypeNotFound, message, originalError)
}

// NewConflictError 创建冲突错误
func NewConflictError(message string, originalError error) *AppError {
	return NewAppError(ErrorTypeConflict, message, originalError)
}

// TypeOf 返回错误的类型标记，非AppError返回空串
func TypeOf(err error) ErrorType {
	var appError *AppError
	if errors.As(err, &appError) {
		return appError.Type
	}
	return ""
}

// IsInvalidInputError 检查是否为输入错误
func IsInvalidInputError(err error) bool {
	return TypeOf(err) == ErrorTypeInvalidInput
}

// IsUpstreamError 检查是否为上游调用错误
func IsUpstreamError(err error) bool {
	return TypeOf(err) == ErrorTypeUpstream
}

// IsNotFoundError 检查是否为未找到错误
func IsNotFoundError(err error) bool {
	return TypeOf(err) == ErrorTypeNotFound
}

// IsConflictError 检查是否为冲突错误
func IsConflictError(err error) bool {
	return TypeOf(err) == ErrorTypeConflict
}

// WrapError 包装现有错误
func WrapError(err error, message string, errType ErrorType) error {
	if err == nil {
		return nil
	}

	var appError *AppError
	if errors.As(err, &appError) {
		// 已经是 AppError，保留原始类型，只叠加消息
		return &AppError{
			Type:    appError.Type,
			Message: fmt.Sprintf("%s: %s", message, appError.Message),
			Err:     appError,
		}
	}

	return NewAppError(errType, message, err)
}
