package translator

import (
	"context"
	"errors"
	"io"
	"math"
	"net"
	"strings"
	"time"

	"github.com/nerdneilsfield/go-subtrans-agent/pkg/providers"
	"github.com/nerdneilsfield/go-subtrans-agent/pkg/translation"
)

// ErrorClass 后端调用错误分类
type ErrorClass int

const (
	ClassNone      ErrorClass = iota
	ClassAuth                 // 认证/授权失败，不重试
	ClassRateLimit            // 后端限流，长退避后重试
	ClassTransient            // 网络/超时/服务端瞬时错误，短退避后重试
	ClassUnknown              // 未分类，保守地按指数退避重试
)

// 错误消息模式，类型断言失败时的兜底识别
var (
	authPatterns = []string{
		"unauthorized",
		"forbidden",
		"invalid api key",
		"invalid authentication",
		"incorrect api key",
		"401",
		"403",
	}

	rateLimitPatterns = []string{
		"rate limit",
		"too many requests",
		"quota exceeded",
		"429",
	}

	transientPatterns = []string{
		"timeout",
		"deadline exceeded",
		"connection refused",
		"connection reset",
		"connection timed out",
		"temporary failure",
		"network is unreachable",
		"no such host",
		"broken pipe",
		"i/o timeout",
		"502",
		"503",
		"504",
	}
)

// ClassifyError 对后端调用错误分类
// 优先识别后端返回的类型化错误，其次按消息模式兜底
func ClassifyError(err error) ErrorClass {
	if err == nil {
		return ClassNone
	}

	var authErr *providers.AuthError
	if errors.As(err, &authErr) {
		return ClassAuth
	}
	var rateErr *providers.RateLimitError
	if errors.As(err, &rateErr) {
		return ClassRateLimit
	}
	var transientErr *providers.TransientError
	if errors.As(err, &transientErr) {
		return ClassTransient
	}

	// 单次调用超时按瞬时错误处理，不是致命条件
	if errors.Is(err, context.DeadlineExceeded) {
		return ClassTransient
	}
	// 连接半途断开表现为EOF，用类型判断避免消息子串误伤
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return ClassTransient
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return ClassTransient
	}

	errStr := strings.ToLower(err.Error())
	for _, pattern := range authPatterns {
		if strings.Contains(errStr, pattern) {
			return ClassAuth
		}
	}
	for _, pattern := range rateLimitPatterns {
		if strings.Contains(errStr, pattern) {
			return ClassRateLimit
		}
	}
	for _, pattern := range transientPatterns {
		if strings.Contains(errStr, pattern) {
			return ClassTransient
		}
	}

	return ClassUnknown
}

// 退避参数
const (
	rateLimitFloor    = 60 * time.Second
	transientInitial  = time.Second
	transientCeiling  = 30 * time.Second
	maxBackoffAttempt = 16 // 防止位移溢出
)

// backoffDelay 计算第 attempt 次尝试失败后的退避时长（attempt 从1开始）
func backoffDelay(class ErrorClass, attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	if attempt > maxBackoffAttempt {
		attempt = maxBackoffAttempt
	}

	switch class {
	case ClassRateLimit:
		// 指数退避，下限60秒
		d := time.Duration(math.Pow(2, float64(attempt-1))) * rateLimitFloor
		if d < rateLimitFloor {
			d = rateLimitFloor
		}
		return d
	case ClassTransient:
		// 指数退避，上限较短
		d := time.Duration(math.Pow(2, float64(attempt-1))) * transientInitial
		if d > transientCeiling {
			d = transientCeiling
		}
		return d
	default:
		// 2^attempt 秒
		return time.Duration(math.Pow(2, float64(attempt))) * time.Second
	}
}

// errCodeFor 把错误分类映射到对外报告的错误代码
// 瞬时错误里的超时单独标记，便于调用方区分网络故障和慢后端
func errCodeFor(class ErrorClass, err error) string {
	switch class {
	case ClassAuth:
		return translation.ErrCodeAuth
	case ClassRateLimit:
		return translation.ErrCodeRateLimit
	case ClassTransient:
		if errors.Is(err, context.DeadlineExceeded) {
			return translation.ErrCodeTimeout
		}
		return translation.ErrCodeNetwork
	default:
		return translation.ErrCodeUnknown
	}
}
