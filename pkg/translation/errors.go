package translation

import (
	"errors"
	"fmt"
)

// 预定义错误
var (
	// ErrInvalidConfig 无效的任务配置
	ErrInvalidConfig = errors.New("invalid configuration")

	// ErrTemplateNotFound 按名称请求的模板不存在
	ErrTemplateNotFound = errors.New("template not found")

	// ErrNoLines 没有待翻译的字幕行
	ErrNoLines = errors.New("no subtitle lines provided")
)

// TranslationError 翻译错误
type TranslationError struct {
	Code    string // 错误代码
	Message string // 错误消息
	Cause   error  // 原因
	Retry   bool   // 是否可重试
}

// Error 实现error接口
func (e *TranslationError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap 返回原因错误
func (e *TranslationError) Unwrap() error {
	return e.Cause
}

// IsRetryable 是否可重试
func (e *TranslationError) IsRetryable() bool {
	return e.Retry
}

// 错误代码常量
const (
	ErrCodeTemplate  = "TEMPLATE_ERROR"
	ErrCodeAuth      = "AUTH_ERROR"
	ErrCodeRateLimit = "RATE_LIMIT_ERROR"
	ErrCodeNetwork   = "NETWORK_ERROR"
	ErrCodeTimeout   = "TIMEOUT_ERROR"
	ErrCodeUnknown   = "UNKNOWN_ERROR"
)

// WrapError 包装错误
// 已经是 TranslationError 的错误原样透传，避免代码和消息层层嵌套
func WrapError(err error, code, message string) *TranslationError {
	if err == nil {
		return nil
	}

	var te *TranslationError
	if errors.As(err, &te) {
		return te
	}

	return &TranslationError{
		Code:    code,
		Message: message,
		Cause:   err,
	}
}
