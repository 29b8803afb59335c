package translator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/nerdneilsfield/go-subtrans-agent/pkg/providers"
	"github.com/nerdneilsfield/go-subtrans-agent/pkg/subtitle"
	"github.com/nerdneilsfield/go-subtrans-agent/pkg/translation"
)

// ProgressFunc 进度回调，每个块完成（成功或重试耗尽）后调用一次
type ProgressFunc func(percentage float64, status Status, message string)

// Result 任务结果
// 失败或取消的任务仍然保留此前已完成块的译文
type Result struct {
	TaskID          string
	Status          Status
	Lines           []*subtitle.Line
	TotalChunks     int
	CompletedChunks int
	// Notes 解析恢复等非致命诊断信息
	Notes []string
}

// errCancelled 内部哨兵：在检查点观察到取消标志
var errCancelled = errors.New("cancellation requested")

// Orchestrator 翻译编排器
// 驱动 分块 → 提示词 → 后端调用 → 解析 → 校验 的状态机；
// 单个任务内块处理严格串行（滑动历史依赖上一块的译文），
// 多个任务可并发运行并共享同一个限流器
type Orchestrator struct {
	provider providers.Provider
	limiter  translation.RateLimiter
	store    *translation.Store
	cache    translation.Cache
	logger   *zap.Logger

	attemptTimeout time.Duration

	// sleep 可注入的退避等待，测试里替换以免真实计时
	sleep func(ctx context.Context, d time.Duration) error
}

// Option 编排器配置选项
type Option func(*Orchestrator)

// WithLogger 设置日志记录器
func WithLogger(logger *zap.Logger) Option {
	return func(o *Orchestrator) {
		o.logger = logger
	}
}

// WithCache 设置翻译缓存
func WithCache(cache translation.Cache) Option {
	return func(o *Orchestrator) {
		o.cache = cache
	}
}

// WithAttemptTimeout 设置单次后端调用的超时时间
func WithAttemptTimeout(d time.Duration) Option {
	return func(o *Orchestrator) {
		o.attemptTimeout = d
	}
}

// New 创建编排器
// 限流器由调用方构造注入，多个编排器/任务共享同一实例时共同受约束
func New(provider providers.Provider, limiter translation.RateLimiter, store *translation.Store, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		provider:       provider,
		limiter:        limiter,
		store:          store,
		logger:         zap.NewNop(),
		attemptTimeout: 2 * time.Minute,
		sleep:          sleepContext,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// sleepContext 可被上下文打断的等待
func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Run 执行翻译任务
// 状态机：PENDING → PROCESSING(chunk i) → {COMPLETED, FAILED, CANCELLED}。
// 返回的 Result 总是包含全部行，已完成块的译文已就地填充；
// 只有重试耗尽和认证失败会产生非nil错误，取消是干净终止
func (o *Orchestrator) Run(ctx context.Context, task *Task, lines []*subtitle.Line, onProgress ProgressFunc) (*Result, error) {
	if len(lines) == 0 {
		return nil, translation.ErrNoLines
	}
	if err := task.Config.Validate(); err != nil {
		return nil, err
	}
	if onProgress == nil {
		onProgress = func(float64, Status, string) {}
	}

	cfg := &task.Config
	chunks := translation.SplitLines(lines, cfg.ChunkSize, cfg.ContextWindow)
	result := &Result{
		TaskID:      task.ID,
		Lines:       lines,
		TotalChunks: len(chunks),
	}

	task.setStatus(StatusProcessing)
	o.logger.Info("translation task started",
		zap.String("taskID", task.ID),
		zap.Int("lines", len(lines)),
		zap.Int("chunks", len(chunks)),
		zap.String("sourceLang", cfg.SourceLang),
		zap.String("targetLang", cfg.TargetLang))

	for i, chunk := range chunks {
		// 历史窗口恰好携带一块的译文；context_window=0 时不携带历史
		if i > 0 && cfg.ContextWindow > 0 {
			chunk.AttachHistory(chunks[i-1])
		}

		notes, err := o.processChunk(ctx, task, chunk)
		result.Notes = append(result.Notes, notes...)

		if err != nil {
			pct := percentage(result.CompletedChunks, result.TotalChunks)
			if errors.Is(err, errCancelled) || errors.Is(err, context.Canceled) {
				task.setStatus(StatusCancelled)
				result.Status = StatusCancelled
				o.logger.Info("translation task cancelled",
					zap.String("taskID", task.ID),
					zap.Int("completedChunks", result.CompletedChunks))
				onProgress(pct, StatusCancelled, fmt.Sprintf("cancelled after %d/%d chunks", result.CompletedChunks, result.TotalChunks))
				return result, nil
			}

			task.setStatus(StatusFailed)
			result.Status = StatusFailed
			o.logger.Error("translation task failed",
				zap.String("taskID", task.ID),
				zap.Int("chunk", i+1),
				zap.Error(err))
			onProgress(pct, StatusFailed, fmt.Sprintf("chunk %d/%d failed: %v", i+1, result.TotalChunks, err))
			return result, err
		}

		result.CompletedChunks++
		pct := percentage(result.CompletedChunks, result.TotalChunks)
		status := StatusProcessing
		message := fmt.Sprintf("chunk %d/%d translated", result.CompletedChunks, result.TotalChunks)
		if result.CompletedChunks == result.TotalChunks {
			status = StatusCompleted
			message = "translation completed"
			task.setStatus(StatusCompleted)
		}
		result.Status = status
		onProgress(pct, status, message)
	}

	o.logger.Info("translation task completed",
		zap.String("taskID", task.ID),
		zap.Int("chunks", result.TotalChunks))
	return result, nil
}

// processChunk 翻译单个块：查缓存、调用后端（带重试）、解析、校验
func (o *Orchestrator) processChunk(ctx context.Context, task *Task, chunk *translation.Chunk) ([]string, error) {
	cfg := &task.Config

	if o.fillFromCache(chunk, cfg) {
		o.logger.Debug("chunk served from cache", zap.String("taskID", task.ID))
		return nil, nil
	}

	system, user, err := translation.FormatPrompt(chunk, cfg, o.store)
	if err != nil {
		return nil, err
	}

	resp, err := o.callWithRetry(ctx, task, &providers.Request{
		System:     system,
		User:       user,
		SourceLang: cfg.SourceLang,
		TargetLang: cfg.TargetLang,
	})
	if err != nil {
		return nil, err
	}

	translations, notes := translation.ParseResponse(resp.Text, chunk.Indices(), chunk.SourceTexts())
	for _, note := range notes {
		o.logger.Warn("response parse recovery", zap.String("taskID", task.ID), zap.String("note", note))
	}

	for j, line := range chunk.Lines {
		line.TranslatedText = translations[j]
		line.Validation = translation.Validate(
			line.SourceText(), line.TranslatedText,
			cfg.ValidationLevel, cfg.Glossary, cfg.ForbiddenTerms)

		if o.cache != nil {
			o.cache.Set(translation.CacheKey(line.SourceText(), cfg.SourceLang, cfg.TargetLang, cfg.Style), line.TranslatedText)
		}
	}

	return notes, nil
}

// fillFromCache 块内全部行都命中缓存时直接填充，跳过后端调用
// 部分命中不走缓存，保持块内上下文的一致性
func (o *Orchestrator) fillFromCache(chunk *translation.Chunk, cfg *translation.TaskConfig) bool {
	if o.cache == nil {
		return false
	}

	cached := make([]string, len(chunk.Lines))
	for i, line := range chunk.Lines {
		value, ok := o.cache.Get(translation.CacheKey(line.SourceText(), cfg.SourceLang, cfg.TargetLang, cfg.Style))
		if !ok {
			return false
		}
		cached[i] = value
	}

	for i, line := range chunk.Lines {
		line.TranslatedText = cached[i]
		line.Validation = translation.Validate(
			line.SourceText(), line.TranslatedText,
			cfg.ValidationLevel, cfg.Glossary, cfg.ForbiddenTerms)
	}
	return true
}

// callWithRetry 带重试的后端调用
// 每次尝试前依次检查取消标志、获取限流许可；
// 错误按分类决定是否重试及退避时长，认证失败立即放弃
func (o *Orchestrator) callWithRetry(ctx context.Context, task *Task, req *providers.Request) (*providers.Response, error) {
	cfg := &task.Config
	var lastErr error

	for attempt := 1; attempt <= cfg.MaxRetries; attempt++ {
		// 取消检查点：限流获取之前、每次重试之前
		if task.Cancelled() {
			return nil, errCancelled
		}

		if err := o.limiter.Acquire(ctx); err != nil {
			return nil, err
		}

		attemptCtx, cancel := context.WithTimeout(ctx, o.attemptTimeout)
		resp, err := o.provider.Translate(attemptCtx, req)
		cancel()

		if err == nil {
			return resp, nil
		}
		lastErr = err

		class := ClassifyError(err)
		if class == ClassAuth {
			o.logger.Error("authentication failed, not retrying",
				zap.String("taskID", task.ID), zap.Error(err))
			return nil, translation.WrapError(err, translation.ErrCodeAuth, "backend authentication failed")
		}
		if errors.Is(err, context.Canceled) {
			return nil, err
		}
		if attempt == cfg.MaxRetries {
			break
		}

		delay := backoffDelay(class, attempt)
		var rateErr *providers.RateLimitError
		if errors.As(err, &rateErr) && rateErr.RetryAfter > delay {
			delay = rateErr.RetryAfter
		}

		o.logger.Warn("backend call failed, will retry",
			zap.String("taskID", task.ID),
			zap.Int("attempt", attempt),
			zap.Int("maxRetries", cfg.MaxRetries),
			zap.Duration("backoff", delay),
			zap.Error(err))

		if err := o.sleep(ctx, delay); err != nil {
			return nil, err
		}
	}

	class := ClassifyError(lastErr)
	werr := translation.WrapError(lastErr, errCodeFor(class, lastErr),
		fmt.Sprintf("translation failed after %d attempts", cfg.MaxRetries))
	werr.Retry = class == ClassRateLimit || class == ClassTransient
	return nil, werr
}

// percentage 完成百分比
func percentage(completed, total int) float64 {
	if total == 0 {
		return 0
	}
	return float64(completed) / float64(total) * 100
}
