package errors

import (
	"fmt"
)

// ErrorCode 错误码类型
type ErrorCode string

// 预定义错误码
const (
	// 验证错误：调用方输入问题，修正后重试
	ErrCodeValidationFailed ErrorCode = "VALIDATION_FAILED"

	// 外部嵌入服务错误：原样向调用方透出，引擎不重试
	ErrCodeProviderError ErrorCode = "PROVIDER_ERROR"

	// 数据损坏：持久化embedding无法解码，本地吸收不上抛
	ErrCodeDataCorruption ErrorCode = "DATA_CORRUPTION"

	// 资源不存在
	ErrCodeNotFound ErrorCode = "NOT_FOUND"
)

// AppError 应用错误结构体
type AppError struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
	Cause   error     `json:"-"`
}

// Error 实现error接口
func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

// Unwrap 返回底层错误
func (e *AppError) Unwrap() error {
	return e.Cause
}

// WithCause 添加错误原因
func (e *AppError) WithCause(cause error) *AppError {
	e.Cause = cause
	return e
}

// NewValidationError 创建验证错误
func NewValidationError(message string) *AppError {
	return &AppError{Code: ErrCodeValidationFailed, Message: message}
}

// NewProviderError 创建外部服务错误
func NewProviderError(message string, cause error) *AppError {
	return &AppError{Code: ErrCodeProviderError, Message: message, Cause: cause}
}

// NewNotFoundError 创建资源不存在错误
func NewNotFoundError(message string) *AppError {
	return &AppError{Code: ErrCodeNotFound, Message: message}
}

// IsValidation 判断是否为验证错误
func IsValidation(err error) bool {
	appErr, ok := err.(*AppError)
	return ok && appErr.Code == ErrCodeValidationFailed
}
