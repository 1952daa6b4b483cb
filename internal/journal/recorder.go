package journal

import (
	"context"
	"log/slog"
	"time"

	"github.com/flowrun-io/flowrun/internal/events"
)

// Recorder consumes bus events and appends task transitions to a journal.
// Write failures are logged and never propagate into the run.
type Recorder struct {
	journal Journal
	runID   string
	logger  *slog.Logger
	done    chan struct{}
}

// NewRecorder creates a recorder writing under the given run ID.
func NewRecorder(j Journal, runID string, logger *slog.Logger) *Recorder {
	if logger == nil {
		logger = slog.Default()
	}
	return &Recorder{
		journal: j,
		runID:   runID,
		logger:  logger,
		done:    make(chan struct{}),
	}
}

// Run consumes events until the channel closes. Run it in its own goroutine
// and use Wait to block until the last record has been written.
func (r *Recorder) Run(ch <-chan events.Event) {
	defer close(r.done)
	for ev := range ch {
		rec, ok := r.translate(ev)
		if !ok {
			continue
		}
		if err := r.journal.RecordTask(context.Background(), rec); err != nil {
			r.logger.Warn("journal write failed",
				"event", ev.EventType(),
				"error", err)
		}
	}
}

// Wait blocks until the event channel has closed and every record is written.
func (r *Recorder) Wait() {
	<-r.done
}

// translate maps per-task bus events to journal rows. Stage-level and
// run-level events carry no task identity and are skipped.
func (r *Recorder) translate(ev events.Event) (TaskRecord, bool) {
	switch e := ev.(type) {
	case events.TaskQueuedEvent:
		return TaskRecord{
			RunID: r.runID, TaskID: e.ID, Stage: e.Stage, FireIndex: e.Index,
			Key: e.Key, Attempt: e.Attempt, Event: e.EventType(), Timestamp: e.Timestamp,
		}, true
	case events.TaskStartedEvent:
		return TaskRecord{
			RunID: r.runID, TaskID: e.ID, Stage: e.Stage, FireIndex: e.Index,
			Key: e.Key, Attempt: e.Attempt, Event: e.EventType(), Timestamp: e.Timestamp,
		}, true
	case events.TaskCachedEvent:
		return TaskRecord{
			RunID: r.runID, TaskID: e.ID, Stage: e.Stage, FireIndex: e.Index,
			Key: e.Key, Event: e.EventType(), Timestamp: e.Timestamp,
		}, true
	case events.TaskCompletedEvent:
		return TaskRecord{
			RunID: r.runID, TaskID: e.ID, Stage: e.Stage, FireIndex: e.Index,
			Key: e.Key, Event: e.EventType(),
			Detail:    e.Duration.Round(time.Millisecond).String(),
			Timestamp: e.Timestamp,
		}, true
	case events.TaskFailedEvent:
		detail := ""
		if e.Err != nil {
			detail = e.Err.Error()
		}
		return TaskRecord{
			RunID: r.runID, TaskID: e.ID, Stage: e.Stage, FireIndex: e.Index,
			Key: e.Key, Attempt: e.Attempt, Event: e.EventType(),
			Detail: detail, Timestamp: e.Timestamp,
		}, true
	case events.TaskRetriedEvent:
		return TaskRecord{
			RunID: r.runID, TaskID: e.ID, Stage: e.Stage, FireIndex: e.Index,
			Attempt: e.Attempt, Event: e.EventType(),
			Detail: e.Delay.String(), Timestamp: e.Timestamp,
		}, true
	default:
		return TaskRecord{}, false
	}
}
