package events

import (
	"time"
)

// Event is the base interface for all run events.
type Event interface {
	EventType() string
	StageName() string
}

// Topic constants
const (
	TopicTask  = "task"
	TopicStage = "stage"
	TopicRun   = "run"
)

// Event type constants
const (
	EventTypeTaskQueued    = "task.queued"
	EventTypeTaskStarted   = "task.started"
	EventTypeTaskCached    = "task.cached"
	EventTypeTaskCompleted = "task.completed"
	EventTypeTaskFailed    = "task.failed"
	EventTypeTaskRetried   = "task.retried"
	EventTypeStageClosed   = "stage.closed"
	EventTypeRunProgress   = "run.progress"
)

// TaskQueuedEvent is published when a task misses the cache and enters the
// submission queue.
type TaskQueuedEvent struct {
	ID        string
	Stage     string
	Index     int
	Key       string
	Attempt   int
	Timestamp time.Time
}

func (e TaskQueuedEvent) EventType() string { return EventTypeTaskQueued }
func (e TaskQueuedEvent) StageName() string { return e.Stage }

// TaskStartedEvent is published when a task is handed to an executor.
type TaskStartedEvent struct {
	ID        string
	Stage     string
	Index     int
	Key       string
	Attempt   int
	Timestamp time.Time
}

func (e TaskStartedEvent) EventType() string { return EventTypeTaskStarted }
func (e TaskStartedEvent) StageName() string { return e.Stage }

// TaskCachedEvent is published when a task is satisfied from the cache
// without executing.
type TaskCachedEvent struct {
	ID        string
	Stage     string
	Index     int
	Key       string
	Timestamp time.Time
}

func (e TaskCachedEvent) EventType() string { return EventTypeTaskCached }
func (e TaskCachedEvent) StageName() string { return e.Stage }

// TaskCompletedEvent is published when a task's execution succeeds.
type TaskCompletedEvent struct {
	ID        string
	Stage     string
	Index     int
	Key       string
	Duration  time.Duration
	Timestamp time.Time
}

func (e TaskCompletedEvent) EventType() string { return EventTypeTaskCompleted }
func (e TaskCompletedEvent) StageName() string { return e.Stage }

// TaskFailedEvent is published when a task attempt fails. Final reports
// whether the failure is terminal for the task (no retry follows).
type TaskFailedEvent struct {
	ID        string
	Stage     string
	Index     int
	Key       string
	Err       error
	Attempt   int
	Final     bool
	Timestamp time.Time
}

func (e TaskFailedEvent) EventType() string { return EventTypeTaskFailed }
func (e TaskFailedEvent) StageName() string { return e.Stage }

// TaskRetriedEvent is published when a failed task is scheduled for another
// attempt after a backoff delay.
type TaskRetriedEvent struct {
	ID        string
	Stage     string
	Index     int
	Attempt   int
	Delay     time.Duration
	Timestamp time.Time
}

func (e TaskRetriedEvent) EventType() string { return EventTypeTaskRetried }
func (e TaskRetriedEvent) StageName() string { return e.Stage }

// StageClosedEvent is published when a stage can fire no more tasks and all
// its firings reached a terminal state.
type StageClosedEvent struct {
	Stage     string
	Fired     int
	Timestamp time.Time
}

func (e StageClosedEvent) EventType() string { return EventTypeStageClosed }
func (e StageClosedEvent) StageName() string { return e.Stage }

// RunProgressEvent is published whenever run-wide task counts change.
type RunProgressEvent struct {
	Total     int
	Queued    int
	Running   int
	Cached    int
	Completed int
	Failed    int
	Timestamp time.Time
}

func (e RunProgressEvent) EventType() string { return EventTypeRunProgress }
func (e RunProgressEvent) StageName() string { return "" }
