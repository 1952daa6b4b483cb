package journal

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/flowrun-io/flowrun/internal/events"
)

func TestRecorderWritesTaskEvents(t *testing.T) {
	j := testJournal(t)
	ctx := context.Background()

	if err := j.BeginRun(ctx, "run-1", time.Now()); err != nil {
		t.Fatalf("failed to begin run: %v", err)
	}

	bus := events.NewBus()
	ch := bus.SubscribeAll(64)
	rec := NewRecorder(j, "run-1", nil)
	go rec.Run(ch)

	now := time.Now()
	bus.Publish(events.TopicTask, events.TaskQueuedEvent{
		ID: "t1", Stage: "align", Index: 0, Key: "abcd", Attempt: 1, Timestamp: now,
	})
	bus.Publish(events.TopicTask, events.TaskStartedEvent{
		ID: "t1", Stage: "align", Index: 0, Key: "abcd", Attempt: 1, Timestamp: now,
	})
	bus.Publish(events.TopicTask, events.TaskFailedEvent{
		ID: "t1", Stage: "align", Index: 0, Key: "abcd",
		Err: fmt.Errorf("exit status 1"), Attempt: 1, Timestamp: now,
	})
	bus.Publish(events.TopicTask, events.TaskRetriedEvent{
		ID: "t1", Stage: "align", Index: 0, Attempt: 2, Delay: 500 * time.Millisecond, Timestamp: now,
	})
	bus.Publish(events.TopicTask, events.TaskCompletedEvent{
		ID: "t1", Stage: "align", Index: 0, Key: "abcd", Duration: 1200 * time.Millisecond, Timestamp: now,
	})
	// Run-level events carry no task identity and must be skipped
	bus.Publish(events.TopicRun, events.RunProgressEvent{Total: 1, Running: 1, Timestamp: now})
	bus.Publish(events.TopicStage, events.StageClosedEvent{Stage: "align", Fired: 1, Timestamp: now})

	bus.Close()
	rec.Wait()

	history, err := j.TaskHistory(ctx, "run-1")
	if err != nil {
		t.Fatalf("failed to get history: %v", err)
	}
	if len(history) != 5 {
		t.Fatalf("expected 5 task records, got %d", len(history))
	}

	wantEvents := []string{"task.queued", "task.started", "task.failed", "task.retried", "task.completed"}
	for i, want := range wantEvents {
		if history[i].Event != want {
			t.Errorf("record[%d] = %q, want %q", i, history[i].Event, want)
		}
	}
	if history[2].Detail != "exit status 1" {
		t.Errorf("failure detail = %q, want error text", history[2].Detail)
	}
	if history[3].Detail != "500ms" {
		t.Errorf("retry detail = %q, want delay", history[3].Detail)
	}
	if history[4].Detail != "1.2s" {
		t.Errorf("completion detail = %q, want duration", history[4].Detail)
	}
}

func TestRecorderSurvivesWriteFailure(t *testing.T) {
	j := testJournal(t)

	// No BeginRun: every record violates the run foreign key. The recorder
	// must log and keep consuming rather than wedge the bus drain.
	bus := events.NewBus()
	ch := bus.SubscribeAll(8)
	rec := NewRecorder(j, "never-begun", nil)
	go rec.Run(ch)

	for i := 0; i < 3; i++ {
		bus.Publish(events.TopicTask, events.TaskQueuedEvent{
			ID: fmt.Sprintf("t%d", i), Stage: "s", Timestamp: time.Now(),
		})
	}
	bus.Close()

	done := make(chan struct{})
	go func() {
		rec.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("recorder did not drain after write failures")
	}
}
