package task

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/zap"
)

// blockingTask runs until cancelled and counts its invocations.
type blockingTask struct {
	starts atomic.Int32
}

func (b *blockingTask) Run(ctx context.Context) error {
	b.starts.Add(1)
	<-ctx.Done()
	return nil
}

func TestEnsureRunningIsIdempotent(t *testing.T) {
	body := &blockingTask{}
	manager := NewManager(body, zap.NewNop())
	defer manager.EnsureStopped()

	ctx := context.Background()
	manager.EnsureRunning(ctx)
	manager.EnsureRunning(ctx)
	manager.EnsureRunning(ctx)

	waitFor(t, func() bool { return body.starts.Load() == 1 })
	if !manager.IsRunning() {
		t.Error("expected the task to be running")
	}
}

func TestEnsureStoppedWaitsForTask(t *testing.T) {
	body := &blockingTask{}
	manager := NewManager(body, zap.NewNop())

	manager.EnsureRunning(context.Background())
	waitFor(t, func() bool { return body.starts.Load() == 1 })

	manager.EnsureStopped()
	if manager.IsRunning() {
		t.Error("expected the task to be stopped")
	}

	// Stopping again is a no-op.
	manager.EnsureStopped()
}

func TestEnsureStoppedWithoutStart(t *testing.T) {
	manager := NewManager(&blockingTask{}, zap.NewNop())
	manager.EnsureStopped()
	if manager.IsRunning() {
		t.Error("expected no running task")
	}
}

func TestRestartAfterStop(t *testing.T) {
	body := &blockingTask{}
	manager := NewManager(body, zap.NewNop())
	defer manager.EnsureStopped()

	manager.EnsureRunning(context.Background())
	manager.EnsureStopped()

	manager.EnsureRunning(context.Background())
	waitFor(t, func() bool { return body.starts.Load() == 2 })
}

// failingTask returns immediately with an error.
type failingTask struct{}

func (failingTask) Run(ctx context.Context) error {
	return errors.New("task exploded")
}

func TestTaskErrorIsSwallowed(t *testing.T) {
	manager := NewManager(failingTask{}, zap.NewNop())

	manager.EnsureRunning(context.Background())
	waitFor(t, func() bool { return !manager.IsRunning() })

	// A finished task can be started again.
	manager.EnsureRunning(context.Background())
	manager.EnsureStopped()
}

func waitFor(t *testing.T, condition func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if condition() {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatal("condition never became true")
}
