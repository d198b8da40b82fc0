package concurrency

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
)

// boundedExecutor implements Executor with a buffered channel and N workers.
type boundedExecutor struct {
	name      string
	taskChan  chan Task
	workers   int
	queueSize int
	wg        sync.WaitGroup
	ctx       context.Context
	cancel    context.CancelFunc
	mu        sync.RWMutex
	closed    bool
	logger    *slog.Logger

	queuedTasks    int64
	completedTasks int64
	failedTasks    int64
	rejectedTasks  int64
}

// ExecutorConfig configures an Executor
type ExecutorConfig struct {
	Name      string       // Used as the "executor" attribute in logs
	Workers   int          // Number of worker goroutines
	QueueSize int          // Maximum queue size (bounded for backpressure)
	Logger    *slog.Logger // Task failures are logged here; defaults to slog.Default()
}

// DefaultExecutorConfig returns default executor configuration
func DefaultExecutorConfig() ExecutorConfig {
	return ExecutorConfig{
		Name:      "default",
		Workers:   10,
		QueueSize: 1000,
	}
}

// NewExecutor creates a new Executor with the given configuration
func NewExecutor(ctx context.Context, config ExecutorConfig) Executor {
	if config.Workers < 1 {
		config.Workers = 1
	}
	if config.QueueSize < 1 {
		config.QueueSize = 100
	}
	if config.Name == "" {
		config.Name = "default"
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}

	ctx, cancel := context.WithCancel(ctx)
	exec := &boundedExecutor{
		name:      config.Name,
		taskChan:  make(chan Task, config.QueueSize),
		workers:   config.Workers,
		queueSize: config.QueueSize,
		ctx:       ctx,
		cancel:    cancel,
		logger:    logger.With("executor", config.Name),
	}

	exec.wg.Add(exec.workers)
	for i := 0; i < exec.workers; i++ {
		go exec.worker()
	}
	return exec
}

func (e *boundedExecutor) worker() {
	defer e.wg.Done()

	// Drains the queue until Shutdown closes it.
	for task := range e.taskChan {
		atomic.AddInt64(&e.queuedTasks, -1)
		e.run(task)
	}
}

func (e *boundedExecutor) run(task Task) {
	defer func() {
		if r := recover(); r != nil {
			atomic.AddInt64(&e.failedTasks, 1)
			atomic.AddInt64(&e.completedTasks, 1)
			e.logger.Error("task panicked", "task", task.Name(), "panic", fmt.Sprint(r))
		}
	}()

	if err := task.Execute(e.ctx); err != nil {
		atomic.AddInt64(&e.failedTasks, 1)
		e.logger.Error("task failed", "task", task.Name(), "error", err)
	}
	atomic.AddInt64(&e.completedTasks, 1)
}

// Submit implements Executor interface
func (e *boundedExecutor) Submit(task Task) error {
	if task == nil {
		return fmt.Errorf("task cannot be nil")
	}

	// The read lock keeps Shutdown from closing taskChan under a pending send.
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.closed {
		return ErrExecutorClosed
	}

	// Counted before the send so a worker never sees the task uncounted.
	atomic.AddInt64(&e.queuedTasks, 1)
	select {
	case e.taskChan <- task:
		return nil
	default:
		atomic.AddInt64(&e.queuedTasks, -1)
		atomic.AddInt64(&e.rejectedTasks, 1)
		return ErrQueueFull
	}
}

// Shutdown implements Executor interface
func (e *boundedExecutor) Shutdown(ctx context.Context) error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return nil
	}
	e.closed = true
	close(e.taskChan)
	e.mu.Unlock()

	done := make(chan struct{})
	go func() {
		e.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		e.cancel()
		return nil
	case <-ctx.Done():
		e.cancel()
		return fmt.Errorf("executor %s shutdown: %w", e.name, ctx.Err())
	}
}

// Stats implements Executor interface
func (e *boundedExecutor) Stats() ExecutorStats {
	queued := atomic.LoadInt64(&e.queuedTasks)
	utilization := float64(queued) / float64(e.queueSize) * 100.0
	if utilization > 100.0 {
		utilization = 100.0
	}

	return ExecutorStats{
		QueuedTasks:      queued,
		ActiveWorkers:    e.workers,
		CompletedTasks:   atomic.LoadInt64(&e.completedTasks),
		FailedTasks:      atomic.LoadInt64(&e.failedTasks),
		RejectedTasks:    atomic.LoadInt64(&e.rejectedTasks),
		QueueCapacity:    e.queueSize,
		QueueUtilization: utilization,
	}
}
