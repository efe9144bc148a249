// Package task provides supervision for a single long-running background
// task with an explicit start/stop lifecycle.
package task

import (
	"context"
	"sync"

	"go.uber.org/zap"
)

// Task is a long-running unit of work supervised by a Manager. Run should
// return promptly once ctx is cancelled.
type Task interface {
	Run(ctx context.Context) error
}

// Manager owns at most one live instance of a Task. EnsureRunning and
// EnsureStopped are idempotent and safe to call from error-unwinding paths.
type Manager struct {
	task   Task
	logger *zap.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// NewManager creates a manager for the given task. The task is not started.
func NewManager(task Task, logger *zap.Logger) *Manager {
	return &Manager{
		task:   task,
		logger: logger,
	}
}

// IsRunning reports whether the task is currently live.
func (m *Manager) IsRunning() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.running()
}

// running must be called with mu held.
func (m *Manager) running() bool {
	if m.done == nil {
		return false
	}
	select {
	case <-m.done:
		return false
	default:
		return true
	}
}

// EnsureRunning starts the task if no instance is live. A task failure is
// logged and marks the task finished; it is never propagated to the caller.
func (m *Manager) EnsureRunning(ctx context.Context) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.running() {
		return
	}

	taskCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	m.cancel = cancel
	m.done = done

	go func() {
		defer close(done)
		if err := m.task.Run(taskCtx); err != nil {
			m.logger.Error("background task finished with error", zap.Error(err))
		}
	}()
}

// EnsureStopped requests cancellation and waits for the task to finish.
// Calling it when no task is live is a no-op.
func (m *Manager) EnsureStopped() {
	m.mu.Lock()
	cancel := m.cancel
	done := m.done
	m.cancel = nil
	m.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
}
