package providers

import (
	"fmt"
	"time"
)

// AuthError 认证或授权失败，不可重试
type AuthError struct {
	Message string
	Cause   error
}

// Error 实现error接口
func (e *AuthError) Error() string {
	return fmt.Sprintf("authentication failed: %s", e.Message)
}

// Unwrap 返回原因错误
func (e *AuthError) Unwrap() error {
	return e.Cause
}

// RateLimitError 后端限流信号，可重试但需要长退避
type RateLimitError struct {
	Message string
	// RetryAfter 后端建议的等待时间，0表示未提供
	RetryAfter time.Duration
	Cause      error
}

// Error 实现error接口
func (e *RateLimitError) Error() string {
	return fmt.Sprintf("rate limited by backend: %s", e.Message)
}

// Unwrap 返回原因错误
func (e *RateLimitError) Unwrap() error {
	return e.Cause
}

// TransientError 瞬时错误（网络故障、超时、服务端5xx），可快速重试
type TransientError struct {
	Message string
	Cause   error
}

// Error 实现error接口
func (e *TransientError) Error() string {
	return fmt.Sprintf("transient backend error: %s", e.Message)
}

// Unwrap 返回原因错误
func (e *TransientError) Unwrap() error {
	return e.Cause
}
