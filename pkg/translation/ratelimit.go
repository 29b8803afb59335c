package translation

import (
	"context"
	"sync"
	"time"
)

// RateLimiter 出站后端调用的限流器
// 实例由调用方显式构造并注入编排器，不存在进程级单例，
// 多个任务共享同一实例时共同受滚动窗口约束
type RateLimiter interface {
	// Acquire 阻塞直到获得一个调用许可或上下文被取消
	Acquire(ctx context.Context) error
}

// SlidingWindowLimiter 严格滚动窗口限流器
// 任意 window 长度的时间窗内最多放行 limit 个许可；
// 等待者按到达顺序排队，先到先得，不会被后来者饿死
type SlidingWindowLimiter struct {
	mu     sync.Mutex
	limit  int
	window time.Duration

	// grants 最近放行的时刻，只保留仍在窗口内的
	grants []time.Time
	// queue FIFO等待队列，每个等待者持有一个容量为1的通知通道
	queue []chan struct{}
	// timerSet 是否已有唤醒定时器在途
	timerSet bool

	// now 可注入时钟，测试用
	now func() time.Time
}

// NewSlidingWindowLimiter 创建滚动窗口限流器
// limit 不足1时按1处理，window 不足1秒时按默认60秒处理
func NewSlidingWindowLimiter(limit int, window time.Duration) *SlidingWindowLimiter {
	if limit < 1 {
		limit = 1
	}
	if window <= 0 {
		window = 60 * time.Second
	}
	return &SlidingWindowLimiter{
		limit:  limit,
		window: window,
		now:    time.Now,
	}
}

// Acquire 获取一个许可，窗口满时阻塞等待
func (l *SlidingWindowLimiter) Acquire(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	l.mu.Lock()
	// 队列为空时才允许直接放行，否则必须排到队尾，保证FIFO
	if len(l.queue) == 0 && l.tryGrantLocked() {
		l.mu.Unlock()
		return nil
	}

	ch := make(chan struct{}, 1)
	l.queue = append(l.queue, ch)
	l.scheduleWakeLocked()
	l.mu.Unlock()

	select {
	case <-ch:
		return nil
	case <-ctx.Done():
		l.mu.Lock()
		if l.removeWaiterLocked(ch) {
			l.mu.Unlock()
			return ctx.Err()
		}
		// 取消和放行同时发生：许可已经发给了这个等待者，
		// 退还许可让它流向下一位，避免窗口名额丢失
		<-ch
		l.releaseLocked()
		l.mu.Unlock()
		return ctx.Err()
	}
}

// tryGrantLocked 窗口有空位时记录一次放行
func (l *SlidingWindowLimiter) tryGrantLocked() bool {
	l.pruneLocked()
	if len(l.grants) >= l.limit {
		return false
	}
	l.grants = append(l.grants, l.now())
	return true
}

// pruneLocked 丢弃滑出窗口的放行记录
func (l *SlidingWindowLimiter) pruneLocked() {
	cutoff := l.now().Add(-l.window)
	idx := 0
	for idx < len(l.grants) && !l.grants[idx].After(cutoff) {
		idx++
	}
	if idx > 0 {
		l.grants = append(l.grants[:0], l.grants[idx:]...)
	}
}

// wakeWaitersLocked 按队列顺序给空位内的等待者发放许可
func (l *SlidingWindowLimiter) wakeWaitersLocked() {
	for len(l.queue) > 0 && l.tryGrantLocked() {
		ch := l.queue[0]
		l.queue = l.queue[1:]
		ch <- struct{}{}
	}
	if len(l.queue) > 0 {
		l.scheduleWakeLocked()
	}
}

// scheduleWakeLocked 在最早的放行记录滑出窗口时唤醒队列
func (l *SlidingWindowLimiter) scheduleWakeLocked() {
	if l.timerSet || len(l.grants) == 0 {
		return
	}
	l.timerSet = true

	wait := l.grants[0].Add(l.window).Sub(l.now())
	if wait < 0 {
		wait = 0
	}
	time.AfterFunc(wait, func() {
		l.mu.Lock()
		l.timerSet = false
		l.wakeWaitersLocked()
		l.mu.Unlock()
	})
}

// removeWaiterLocked 把等待者移出队列，已被放行时返回false
func (l *SlidingWindowLimiter) removeWaiterLocked(ch chan struct{}) bool {
	for i, waiter := range l.queue {
		if waiter == ch {
			l.queue = append(l.queue[:i], l.queue[i+1:]...)
			return true
		}
	}
	return false
}

// releaseLocked 退还最近一次放行并把空位转给下一个等待者
func (l *SlidingWindowLimiter) releaseLocked() {
	if len(l.grants) > 0 {
		l.grants = l.grants[:len(l.grants)-1]
	}
	l.wakeWaitersLocked()
}
