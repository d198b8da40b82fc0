package concurrency

import (
	"context"
	"errors"
)

var (
	// ErrQueueFull is returned by Submit when the executor queue has no free slot.
	ErrQueueFull = errors.New("executor queue is full")

	// ErrExecutorClosed is returned when submitting to an executor that is shutting down.
	ErrExecutorClosed = errors.New("executor is closed")
)

// ExecutorStats provides statistics about executor performance
type ExecutorStats struct {
	QueuedTasks      int64   // Current number of queued tasks
	ActiveWorkers    int     // Number of worker goroutines
	CompletedTasks   int64   // Total completed tasks
	FailedTasks      int64   // Completed tasks that returned an error
	RejectedTasks    int64   // Total rejected tasks (backpressure)
	QueueCapacity    int     // Maximum queue capacity
	QueueUtilization float64 // Queue utilization percentage
}

// Executor runs tasks on a fixed set of worker goroutines fed by a bounded queue.
// Submit never blocks; callers on latency sensitive paths (message dispatch loops,
// HTTP handlers) hand work over and return.
type Executor interface {
	// Submit queues a task for execution.
	// Returns ErrQueueFull if the queue is full or ErrExecutorClosed after Shutdown.
	Submit(task Task) error

	// Shutdown stops accepting tasks and waits for queued ones to finish.
	// When ctx expires first, running tasks see their context cancelled.
	Shutdown(ctx context.Context) error

	// Stats returns current executor statistics
	Stats() ExecutorStats
}

// Task is a unit of work run by an Executor.
type Task interface {
	Execute(ctx context.Context) error
	Name() string
}

// TaskFunc adapts a function to Task.
type TaskFunc func(ctx context.Context) error

// Execute implements Task.
func (f TaskFunc) Execute(ctx context.Context) error { return f(ctx) }

// Name implements Task.
func (f TaskFunc) Name() string { return "task" }

// NamedTask is a TaskFunc with a name used in logs.
type NamedTask struct {
	name string
	fn   TaskFunc
}

// NewNamedTask creates a new NamedTask
func NewNamedTask(name string, fn TaskFunc) *NamedTask {
	return &NamedTask{name: name, fn: fn}
}

// Execute implements Task.
func (t *NamedTask) Execute(ctx context.Context) error { return t.fn(ctx) }

// Name implements Task.
func (t *NamedTask) Name() string { return t.name }
