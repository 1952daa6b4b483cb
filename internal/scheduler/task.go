package scheduler

import (
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"

	"github.com/flowrun-io/flowrun/internal/graph"
	"github.com/flowrun-io/flowrun/internal/hashkey"
)

// TaskStatus represents the current state of a task.
type TaskStatus int

const (
	TaskCreated    TaskStatus = iota // Firing admitted, identity not yet resolved
	TaskCacheCheck                   // Identity resolved against the result cache
	TaskQueued                       // Cache miss, eligible for submission
	TaskRunning                      // With an executor
	TaskCached                       // Terminal: satisfied from a recorded result
	TaskCompleted                    // Terminal: executed and succeeded
	TaskFailed                       // Terminal: failed, no retry follows
	TaskCancelled                    // Terminal: run stopped first
)

// String returns the status name used in logs and the journal.
func (st TaskStatus) String() string {
	switch st {
	case TaskCreated:
		return "created"
	case TaskCacheCheck:
		return "cache-check"
	case TaskQueued:
		return "queued"
	case TaskRunning:
		return "running"
	case TaskCached:
		return "cached"
	case TaskCompleted:
		return "completed"
	case TaskFailed:
		return "failed"
	case TaskCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// Terminal reports whether the status is final.
func (st TaskStatus) Terminal() bool {
	switch st {
	case TaskCached, TaskCompleted, TaskFailed, TaskCancelled:
		return true
	}
	return false
}

// Task is one firing of a stage moving through the run.
type Task struct {
	ID        string                 // Unique within the run
	Stage     *graph.StageDefinition // Defining stage
	Inputs    []graph.Binding        // The firing's resolved input bindings
	FireIndex int                    // Firing ordinal within the stage

	// Key is the task's cache identity. Zero until resolution succeeds.
	Key hashkey.Key

	Status TaskStatus

	// Attempts counts executor submissions plus identity resolution
	// failures.
	Attempts int

	// WorkDir is assigned at first submission, or taken from the
	// matching cache entry on a hit.
	WorkDir string

	// Err holds the terminal error when Status is TaskFailed.
	Err error

	CreatedAt  time.Time
	StartedAt  time.Time
	FinishedAt time.Time

	// backoff paces retry delays. Created lazily on first failure so
	// tasks that never fail pay nothing.
	backoff *backoff.ExponentialBackOff
}

func newTask(f graph.Firing) *Task {
	return &Task{
		ID:        uuid.NewString(),
		Stage:     f.Stage,
		Inputs:    f.Inputs,
		FireIndex: f.Index,
		Status:    TaskCreated,
		CreatedAt: time.Now(),
	}
}
