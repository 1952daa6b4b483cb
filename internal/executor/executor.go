// Package executor runs resolved tasks as subprocesses, either directly on
// the local host or through an external batch system's command-line tools.
// Executors know nothing about channels, caching, or retries; they take a
// fully resolved Spec and report a Result.
package executor

import (
	"context"
	"fmt"
	"log/slog"
)

// Executor submits tasks for execution.
type Executor interface {
	// Name labels the executor in logs and the journal.
	Name() string

	// Submit starts the task and returns a handle for it. Submission
	// errors are TransientError or PermanentError; task-level failures
	// surface later from Handle.Wait.
	Submit(ctx context.Context, spec Spec) (Handle, error)

	// Close releases executor resources.
	Close() error
}

// Handle tracks one submitted task.
type Handle interface {
	// Wait blocks until the task reaches a terminal state and returns its
	// result. A nil error means the command exited zero and every declared
	// output matched at least one file. Task-level failures return a
	// *TaskError alongside the partial result; cancelling ctx kills the
	// task and returns ctx.Err().
	Wait(ctx context.Context) (*Result, error)

	// Cancel terminates the task. Wait still returns afterwards.
	Cancel() error
}

// New creates an executor based on the provided configuration.
// This factory switches on cfg.Type and returns the appropriate adapter.
func New(cfg Config, pm *ProcessManager, logger *slog.Logger) (Executor, error) {
	if logger == nil {
		logger = slog.Default()
	}
	switch cfg.Type {
	case "", "local":
		return NewLocal(pm, logger), nil
	case "grid":
		return NewGrid(cfg.Grid, pm, logger)
	default:
		return nil, fmt.Errorf("unknown executor type: %s", cfg.Type)
	}
}
