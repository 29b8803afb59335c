package translator

import (
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/nerdneilsfield/go-subtrans-agent/pkg/translation"
)

// Status 任务状态
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
	StatusCancelled  Status = "cancelled"
)

// Task 一次翻译任务
// 配置在任务生命周期内只读；取消标志由外部通过注册表设置，
// 编排器只在既定的检查点读取
type Task struct {
	ID     string
	Config translation.TaskConfig

	mu        sync.RWMutex
	status    Status
	cancelled atomic.Bool
}

// NewTask 创建任务
func NewTask(cfg translation.TaskConfig) *Task {
	return &Task{
		ID:     uuid.NewString(),
		Config: cfg,
		status: StatusPending,
	}
}

// Status 返回当前状态
func (t *Task) Status() Status {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.status
}

// setStatus 更新状态，只有编排器调用
func (t *Task) setStatus(s Status) {
	t.mu.Lock()
	t.status = s
	t.mu.Unlock()
}

// Cancel 设置取消标志
// 取消是协作式的：编排器在下一个检查点观察到标志后停止发起后端调用
func (t *Task) Cancel() {
	t.cancelled.Store(true)
}

// Cancelled 返回取消标志
func (t *Task) Cancelled() bool {
	return t.cancelled.Load()
}

// Registry 以任务ID为键的任务注册表
// 外部调用方通过它查询状态和发起取消
type Registry struct {
	mu     sync.RWMutex
	tasks  map[string]*Task
	logger *zap.Logger
}

// NewRegistry 创建任务注册表
func NewRegistry(logger *zap.Logger) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Registry{
		tasks:  make(map[string]*Task),
		logger: logger,
	}
}

// Create 创建并登记任务
func (r *Registry) Create(cfg translation.TaskConfig) *Task {
	task := NewTask(cfg)
	r.mu.Lock()
	r.tasks[task.ID] = task
	r.mu.Unlock()
	r.logger.Debug("task registered", zap.String("taskID", task.ID))
	return task
}

// Get 按ID查询任务
func (r *Registry) Get(id string) (*Task, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	task, ok := r.tasks[id]
	return task, ok
}

// Cancel 按ID取消任务，任务不存在时返回false
func (r *Registry) Cancel(id string) bool {
	r.mu.RLock()
	task, ok := r.tasks[id]
	r.mu.RUnlock()
	if !ok {
		return false
	}
	task.Cancel()
	r.logger.Info("task cancellation requested", zap.String("taskID", id))
	return true
}

// Remove 移除已终止的任务
func (r *Registry) Remove(id string) {
	r.mu.Lock()
	delete(r.tasks, id)
	r.mu.Unlock()
}
