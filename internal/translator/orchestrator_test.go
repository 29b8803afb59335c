package translator

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nerdneilsfield/go-subtrans-agent/pkg/providers"
	"github.com/nerdneilsfield/go-subtrans-agent/pkg/subtitle"
	"github.com/nerdneilsfield/go-subtrans-agent/pkg/translation"
)

// fakeProvider 可编程的后端替身，按调用序号决定返回内容
type fakeProvider struct {
	mu      sync.Mutex
	calls   []*providers.Request
	respond func(call int, req *providers.Request) (*providers.Response, error)
}

func (p *fakeProvider) Translate(_ context.Context, req *providers.Request) (*providers.Response, error) {
	p.mu.Lock()
	p.calls = append(p.calls, req)
	call := len(p.calls)
	p.mu.Unlock()
	return p.respond(call, req)
}

func (p *fakeProvider) Name() string { return "fake" }

func (p *fakeProvider) callCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.calls)
}

// echoIndexes 从提示词里提取编号行并生成 "<index>. <译文>" 形式的回复
func echoIndexes(user string, translated string) string {
	var out []string
	inBlock := false
	for _, line := range strings.Split(user, "\n") {
		switch strings.TrimSpace(line) {
		case translation.SubtitleBlockBegin:
			inBlock = true
			continue
		case translation.SubtitleBlockEnd:
			inBlock = false
			continue
		}
		if !inBlock {
			continue
		}
		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			continue
		}
		dot := strings.Index(trimmed, ".")
		if dot < 0 {
			continue
		}
		out = append(out, fmt.Sprintf("%s. %s%s", trimmed[:dot], translated, trimmed[:dot]))
	}
	return strings.Join(out, "\n\n")
}

func makeTestLines(texts ...string) []*subtitle.Line {
	lines := make([]*subtitle.Line, len(texts))
	for i, text := range texts {
		start := subtitle.Timestamp(time.Duration(i) * time.Second)
		end := subtitle.Timestamp(time.Duration(i)*time.Second + 900*time.Millisecond)
		lines[i] = subtitle.NewLine(i+1, start, end, text)
	}
	return lines
}

func testConfig() translation.TaskConfig {
	return translation.TaskConfig{
		SourceLang:      "en",
		TargetLang:      "zh",
		Style:           "natural",
		ChunkSize:       2,
		ContextWindow:   1,
		MaxRetries:      3,
		ValidationLevel: translation.ValidationBasic,
	}
}

func newTestOrchestrator(p providers.Provider, opts ...Option) *Orchestrator {
	limiter := translation.NewSlidingWindowLimiter(1000, time.Minute)
	o := New(p, limiter, translation.NewStore(), opts...)
	// 测试里不真实等待退避
	o.sleep = func(ctx context.Context, d time.Duration) error { return nil }
	return o
}

func TestRunCompletesTask(t *testing.T) {
	provider := &fakeProvider{
		respond: func(_ int, req *providers.Request) (*providers.Response, error) {
			return &providers.Response{Text: echoIndexes(req.User, "译文")}, nil
		},
	}
	o := newTestOrchestrator(provider)
	registry := NewRegistry(nil)
	task := registry.Create(testConfig())
	lines := makeTestLines("Hello there", "How are you?", "Fine, thanks", "See you")

	result, err := o.Run(context.Background(), task, lines, nil)
	require.NoError(t, err)

	assert.Equal(t, StatusCompleted, result.Status)
	assert.Equal(t, StatusCompleted, task.Status())
	assert.Equal(t, 2, result.TotalChunks)
	assert.Equal(t, 2, result.CompletedChunks)
	assert.Equal(t, 2, provider.callCount())

	for _, line := range lines {
		assert.NotEmpty(t, line.TranslatedText, "line %d", line.Index)
		require.NotNil(t, line.Validation, "line %d", line.Index)
	}
}

func TestRunPreservesMarkupPlaceholders(t *testing.T) {
	// 后端保留了 {name} 占位符，校验通过
	provider := &fakeProvider{
		respond: func(_ int, req *providers.Request) (*providers.Response, error) {
			return &providers.Response{Text: "1. 你好 {name}！"}, nil
		},
	}
	o := newTestOrchestrator(provider)
	task := NewTask(translation.TaskConfig{
		SourceLang: "en", TargetLang: "zh",
		ChunkSize: 10, MaxRetries: 1,
		ValidationLevel: translation.ValidationBasic,
	})
	lines := makeTestLines("Hello {name}!")

	result, err := o.Run(context.Background(), task, lines, nil)
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, result.Status)
	assert.Equal(t, "你好 {name}！", lines[0].TranslatedText)
	assert.True(t, lines[0].Validation.IsValid)
	assert.Empty(t, lines[0].Validation.Errors)
}

func TestRunCarriesHistoryBetweenChunks(t *testing.T) {
	// 第二块的提示词必须携带第一块的译文作为滑动历史
	var secondPrompt string
	provider := &fakeProvider{
		respond: func(call int, req *providers.Request) (*providers.Response, error) {
			if call == 2 {
				secondPrompt = req.User
			}
			return &providers.Response{Text: echoIndexes(req.User, "译文")}, nil
		},
	}
	o := newTestOrchestrator(provider)
	task := NewTask(testConfig())
	lines := makeTestLines("one", "two", "three", "four")

	_, err := o.Run(context.Background(), task, lines, nil)
	require.NoError(t, err)
	require.Equal(t, 2, provider.callCount())

	assert.Contains(t, secondPrompt, "译文1")
	assert.Contains(t, secondPrompt, "译文2")
	assert.NotContains(t, secondPrompt, "(no history)")
}

func TestRunZeroContextWindowSkipsHistory(t *testing.T) {
	var secondPrompt string
	provider := &fakeProvider{
		respond: func(call int, req *providers.Request) (*providers.Response, error) {
			if call == 2 {
				secondPrompt = req.User
			}
			return &providers.Response{Text: echoIndexes(req.User, "译文")}, nil
		},
	}
	o := newTestOrchestrator(provider)
	cfg := testConfig()
	cfg.ContextWindow = 0
	task := NewTask(cfg)
	lines := makeTestLines("one", "two", "three", "four")

	_, err := o.Run(context.Background(), task, lines, nil)
	require.NoError(t, err)
	assert.Contains(t, secondPrompt, "(no history)")
}

func TestRunAuthErrorFailsImmediately(t *testing.T) {
	// 认证失败不重试：恰好一次后端调用，任务进入 FAILED
	provider := &fakeProvider{
		respond: func(_ int, _ *providers.Request) (*providers.Response, error) {
			return nil, &providers.AuthError{Message: "invalid api key"}
		},
	}
	o := newTestOrchestrator(provider)
	task := NewTask(testConfig())
	lines := makeTestLines("hello", "world")

	result, err := o.Run(context.Background(), task, lines, nil)
	require.Error(t, err)

	assert.Equal(t, 1, provider.callCount())
	assert.Equal(t, StatusFailed, result.Status)
	assert.Equal(t, StatusFailed, task.Status())
	assert.Equal(t, 0, result.CompletedChunks)

	var te *translation.TranslationError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, translation.ErrCodeAuth, te.Code)
}

func TestRunRetriesTransientErrors(t *testing.T) {
	// 前两次瞬时失败，第三次成功；记录退避时长
	var delays []time.Duration
	provider := &fakeProvider{
		respond: func(call int, req *providers.Request) (*providers.Response, error) {
			if call <= 2 {
				return nil, &providers.TransientError{Message: "connection reset"}
			}
			return &providers.Response{Text: echoIndexes(req.User, "译文")}, nil
		},
	}
	o := newTestOrchestrator(provider)
	o.sleep = func(_ context.Context, d time.Duration) error {
		delays = append(delays, d)
		return nil
	}
	cfg := testConfig()
	cfg.ChunkSize = 10
	task := NewTask(cfg)
	lines := makeTestLines("hello", "world")

	result, err := o.Run(context.Background(), task, lines, nil)
	require.NoError(t, err)

	assert.Equal(t, StatusCompleted, result.Status)
	assert.Equal(t, 3, provider.callCount())
	// 瞬时错误退避 1s·2^(attempt-1)
	assert.Equal(t, []time.Duration{time.Second, 2 * time.Second}, delays)
}

func TestRunRetriesExhaustedFailsTask(t *testing.T) {
	provider := &fakeProvider{
		respond: func(_ int, _ *providers.Request) (*providers.Response, error) {
			return nil, &providers.TransientError{Message: "timeout"}
		},
	}
	o := newTestOrchestrator(provider)
	task := NewTask(testConfig())
	lines := makeTestLines("hello", "world")

	result, err := o.Run(context.Background(), task, lines, nil)
	require.Error(t, err)

	assert.Equal(t, task.Config.MaxRetries, provider.callCount())
	assert.Equal(t, StatusFailed, result.Status)
	assert.Contains(t, err.Error(), "after 3 attempts")

	// 错误代码反映最后一次失败的分类，不是笼统的 UNKNOWN
	var te *translation.TranslationError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, translation.ErrCodeNetwork, te.Code)
	assert.True(t, te.IsRetryable())
}

func TestRunExhaustionErrorCodes(t *testing.T) {
	run := func(t *testing.T, backendErr error) *translation.TranslationError {
		provider := &fakeProvider{
			respond: func(_ int, _ *providers.Request) (*providers.Response, error) {
				return nil, backendErr
			},
		}
		o := newTestOrchestrator(provider)
		cfg := testConfig()
		cfg.ChunkSize = 10
		_, err := o.Run(context.Background(), NewTask(cfg), makeTestLines("hello"), nil)
		require.Error(t, err)
		var te *translation.TranslationError
		require.ErrorAs(t, err, &te)
		return te
	}

	t.Run("Rate Limit", func(t *testing.T) {
		te := run(t, &providers.RateLimitError{Message: "too many requests"})
		assert.Equal(t, translation.ErrCodeRateLimit, te.Code)
		assert.True(t, te.IsRetryable())
	})

	t.Run("Timeout", func(t *testing.T) {
		te := run(t, fmt.Errorf("call backend: %w", context.DeadlineExceeded))
		assert.Equal(t, translation.ErrCodeTimeout, te.Code)
		assert.True(t, te.IsRetryable())
	})

	t.Run("Unknown", func(t *testing.T) {
		te := run(t, errors.New("something odd happened"))
		assert.Equal(t, translation.ErrCodeUnknown, te.Code)
		assert.False(t, te.IsRetryable())
	})
}

func TestRunRateLimitRetryAfterOverridesBackoff(t *testing.T) {
	var delays []time.Duration
	provider := &fakeProvider{
		respond: func(call int, req *providers.Request) (*providers.Response, error) {
			if call == 1 {
				return nil, &providers.RateLimitError{Message: "too many requests", RetryAfter: 90 * time.Second}
			}
			return &providers.Response{Text: echoIndexes(req.User, "译文")}, nil
		},
	}
	o := newTestOrchestrator(provider)
	o.sleep = func(_ context.Context, d time.Duration) error {
		delays = append(delays, d)
		return nil
	}
	cfg := testConfig()
	cfg.ChunkSize = 10
	task := NewTask(cfg)

	_, err := o.Run(context.Background(), task, makeTestLines("hello"), nil)
	require.NoError(t, err)

	// 后端建议的 Retry-After 大于退避下限时以后端为准
	require.Len(t, delays, 1)
	assert.Equal(t, 90*time.Second, delays[0])
}

func TestRunCancellationBetweenChunks(t *testing.T) {
	// 第一块完成后取消：第二块零次后端调用，已完成的译文保留
	provider := &fakeProvider{}
	task := NewTask(testConfig())
	provider.respond = func(_ int, req *providers.Request) (*providers.Response, error) {
		// 在第一块的调用内设置取消标志，模拟外部并发取消
		task.Cancel()
		return &providers.Response{Text: echoIndexes(req.User, "译文")}, nil
	}
	o := newTestOrchestrator(provider)
	lines := makeTestLines("one", "two", "three", "four")

	result, err := o.Run(context.Background(), task, lines, nil)
	require.NoError(t, err)

	assert.Equal(t, StatusCancelled, result.Status)
	assert.Equal(t, StatusCancelled, task.Status())
	assert.Equal(t, 1, result.CompletedChunks)
	assert.Equal(t, 1, provider.callCount())

	// 第一块的译文保留，第二块未动
	assert.NotEmpty(t, lines[0].TranslatedText)
	assert.NotEmpty(t, lines[1].TranslatedText)
	assert.Empty(t, lines[2].TranslatedText)
	assert.Empty(t, lines[3].TranslatedText)
}

func TestRunProgressCallbacks(t *testing.T) {
	provider := &fakeProvider{
		respond: func(_ int, req *providers.Request) (*providers.Response, error) {
			return &providers.Response{Text: echoIndexes(req.User, "译文")}, nil
		},
	}
	o := newTestOrchestrator(provider)
	task := NewTask(testConfig())

	type event struct {
		pct    float64
		status Status
	}
	var events []event
	_, err := o.Run(context.Background(), task, makeTestLines("a", "b", "c", "d"), func(pct float64, status Status, _ string) {
		events = append(events, event{pct, status})
	})
	require.NoError(t, err)

	require.Len(t, events, 2)
	assert.Equal(t, event{50, StatusProcessing}, events[0])
	assert.Equal(t, event{100, StatusCompleted}, events[1])
}

func TestRunCacheSkipsBackend(t *testing.T) {
	cache := translation.NewMemoryCache()
	provider := &fakeProvider{
		respond: func(_ int, req *providers.Request) (*providers.Response, error) {
			return &providers.Response{Text: echoIndexes(req.User, "译文")}, nil
		},
	}
	o := newTestOrchestrator(provider, WithCache(cache))
	cfg := testConfig()
	cfg.ChunkSize = 10

	lines := makeTestLines("hello", "world")
	_, err := o.Run(context.Background(), NewTask(cfg), lines, nil)
	require.NoError(t, err)
	require.Equal(t, 1, provider.callCount())

	// 同样的行再翻译一遍：全部命中缓存，后端零调用
	again := makeTestLines("hello", "world")
	result, err := o.Run(context.Background(), NewTask(cfg), again, nil)
	require.NoError(t, err)

	assert.Equal(t, 1, provider.callCount())
	assert.Equal(t, StatusCompleted, result.Status)
	assert.Equal(t, lines[0].TranslatedText, again[0].TranslatedText)
	assert.Equal(t, lines[1].TranslatedText, again[1].TranslatedText)
}

func TestRunPartialCacheHitCallsBackend(t *testing.T) {
	cache := translation.NewMemoryCache()
	cfg := testConfig()
	cfg.ChunkSize = 10
	cache.Set(translation.CacheKey("hello", cfg.SourceLang, cfg.TargetLang, cfg.Style), "你好")

	provider := &fakeProvider{
		respond: func(_ int, req *providers.Request) (*providers.Response, error) {
			return &providers.Response{Text: echoIndexes(req.User, "译文")}, nil
		},
	}
	o := newTestOrchestrator(provider, WithCache(cache))

	_, err := o.Run(context.Background(), NewTask(cfg), makeTestLines("hello", "world"), nil)
	require.NoError(t, err)
	assert.Equal(t, 1, provider.callCount())
}

func TestRunInputValidation(t *testing.T) {
	provider := &fakeProvider{
		respond: func(_ int, _ *providers.Request) (*providers.Response, error) {
			t.Fatal("backend must not be called")
			return nil, nil
		},
	}
	o := newTestOrchestrator(provider)

	t.Run("No Lines", func(t *testing.T) {
		_, err := o.Run(context.Background(), NewTask(testConfig()), nil, nil)
		assert.ErrorIs(t, err, translation.ErrNoLines)
	})

	t.Run("Invalid Config", func(t *testing.T) {
		cfg := testConfig()
		cfg.ChunkSize = 0
		_, err := o.Run(context.Background(), NewTask(cfg), makeTestLines("a"), nil)
		assert.ErrorIs(t, err, translation.ErrInvalidConfig)
	})
}

func TestClassifyError(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want ErrorClass
	}{
		{"Nil", nil, ClassNone},
		{"Auth Typed", &providers.AuthError{Message: "bad key"}, ClassAuth},
		{"Rate Limit Typed", &providers.RateLimitError{Message: "slow down"}, ClassRateLimit},
		{"Transient Typed", &providers.TransientError{Message: "reset"}, ClassTransient},
		{"Deadline", context.DeadlineExceeded, ClassTransient},
		{"EOF", io.EOF, ClassTransient},
		{"Unexpected EOF", fmt.Errorf("read response: %w", io.ErrUnexpectedEOF), ClassTransient},
		{"EOF Inside Word Not Matched", errors.New("geofence check failed"), ClassUnknown},
		{"Auth Message", errors.New("server said: 401 unauthorized"), ClassAuth},
		{"Rate Limit Message", errors.New("rate limit exceeded, retry later"), ClassRateLimit},
		{"Transient Message", errors.New("dial tcp: connection refused"), ClassTransient},
		{"Unknown", errors.New("something odd happened"), ClassUnknown},
		{"Wrapped Typed", fmt.Errorf("call failed: %w", &providers.AuthError{Message: "nope"}), ClassAuth},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, ClassifyError(tc.err))
		})
	}
}

func TestBackoffDelay(t *testing.T) {
	t.Run("Rate Limit Floor", func(t *testing.T) {
		assert.Equal(t, 60*time.Second, backoffDelay(ClassRateLimit, 1))
		assert.Equal(t, 120*time.Second, backoffDelay(ClassRateLimit, 2))
		assert.Equal(t, 240*time.Second, backoffDelay(ClassRateLimit, 3))
	})

	t.Run("Transient Ceiling", func(t *testing.T) {
		assert.Equal(t, time.Second, backoffDelay(ClassTransient, 1))
		assert.Equal(t, 2*time.Second, backoffDelay(ClassTransient, 2))
		assert.Equal(t, 30*time.Second, backoffDelay(ClassTransient, 10))
	})

	t.Run("Unknown", func(t *testing.T) {
		assert.Equal(t, 2*time.Second, backoffDelay(ClassUnknown, 1))
		assert.Equal(t, 4*time.Second, backoffDelay(ClassUnknown, 2))
	})

	t.Run("Attempt Clamped", func(t *testing.T) {
		assert.Equal(t, backoffDelay(ClassTransient, 1), backoffDelay(ClassTransient, 0))
		assert.NotPanics(t, func() { backoffDelay(ClassUnknown, 1000) })
	})
}

func TestRegistry(t *testing.T) {
	registry := NewRegistry(nil)
	task := registry.Create(testConfig())

	got, ok := registry.Get(task.ID)
	require.True(t, ok)
	assert.Same(t, task, got)
	assert.Equal(t, StatusPending, task.Status())

	assert.True(t, registry.Cancel(task.ID))
	assert.True(t, task.Cancelled())
	assert.False(t, registry.Cancel("no-such-task"))

	registry.Remove(task.ID)
	_, ok = registry.Get(task.ID)
	assert.False(t, ok)
}
