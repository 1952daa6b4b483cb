package executor

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/flowrun-io/flowrun/internal/values"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testCtx(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	t.Cleanup(cancel)
	return ctx
}

// TestLocalSuccess runs a real command and checks exit, output collection,
// and the log files left in the task directory.
func TestLocalSuccess(t *testing.T) {
	dir := t.TempDir()
	l := NewLocal(nil, testLogger())

	h, err := l.Submit(testCtx(t), Spec{
		TaskID:  "t1",
		Stage:   "align",
		Command: "echo running; echo data > out.txt",
		Dir:     dir,
		Outputs: []OutputGlob{{Name: "txt", Glob: "*.txt"}},
	})
	if err != nil {
		t.Fatalf("Submit() error = %v", err)
	}

	res, err := h.Wait(testCtx(t))
	if err != nil {
		t.Fatalf("Wait() error = %v", err)
	}
	if res.ExitCode != 0 {
		t.Errorf("exit code = %d, want 0", res.ExitCode)
	}
	if !strings.Contains(res.Stdout, "running") {
		t.Errorf("stdout = %q, want it to contain 'running'", res.Stdout)
	}
	if len(res.Outputs) != 1 || res.Outputs[0].Name != "txt" {
		t.Fatalf("outputs = %+v, want one named txt", res.Outputs)
	}
	fr, ok := res.Outputs[0].Values[0].(*values.FileRef)
	if !ok || filepath.Base(fr.Path) != "out.txt" {
		t.Errorf("collected output = %v, want file ref to out.txt", res.Outputs[0].Values[0])
	}

	if _, err := os.Stat(filepath.Join(dir, "stdout.log")); err != nil {
		t.Errorf("stdout.log not written: %v", err)
	}
}

// TestLocalTaskFailure verifies a non-zero exit surfaces as a TaskError
// with the exit code and stderr preserved.
func TestLocalTaskFailure(t *testing.T) {
	l := NewLocal(nil, testLogger())

	h, err := l.Submit(testCtx(t), Spec{
		TaskID:  "t2",
		Stage:   "align",
		Command: "echo boom >&2; exit 3",
		Dir:     t.TempDir(),
	})
	if err != nil {
		t.Fatalf("Submit() error = %v", err)
	}

	res, err := h.Wait(testCtx(t))
	if err == nil {
		t.Fatal("Wait() error = nil, want TaskError")
	}
	var te *TaskError
	if !errors.As(err, &te) {
		t.Fatalf("Wait() error = %T, want *TaskError", err)
	}
	if te.ExitCode != 3 {
		t.Errorf("exit code = %d, want 3", te.ExitCode)
	}
	if !strings.Contains(te.Stderr, "boom") {
		t.Errorf("stderr in error = %q, want it to contain 'boom'", te.Stderr)
	}
	if res.ExitCode != 3 {
		t.Errorf("result exit code = %d, want 3", res.ExitCode)
	}
	if !IsTaskFailure(err) || IsTransient(err) {
		t.Errorf("classification: IsTaskFailure=%v IsTransient=%v", IsTaskFailure(err), IsTransient(err))
	}
}

// TestLocalMissingOutput verifies a declared output with no matches fails
// the task even though the command exited zero.
func TestLocalMissingOutput(t *testing.T) {
	l := NewLocal(nil, testLogger())

	h, err := l.Submit(testCtx(t), Spec{
		TaskID:  "t3",
		Stage:   "align",
		Command: "true",
		Dir:     t.TempDir(),
		Outputs: []OutputGlob{{Name: "bam", Glob: "*.bam"}},
	})
	if err != nil {
		t.Fatalf("Submit() error = %v", err)
	}

	_, err = h.Wait(testCtx(t))
	var te *TaskError
	if !errors.As(err, &te) || te.MissingOutput != "bam" {
		t.Errorf("Wait() error = %v, want TaskError for missing output bam", err)
	}
}

// TestLocalTimeout verifies the time limit kills the task and marks it
// timed out.
func TestLocalTimeout(t *testing.T) {
	l := NewLocal(nil, testLogger())

	h, err := l.Submit(testCtx(t), Spec{
		TaskID:    "t4",
		Stage:     "align",
		Command:   "sleep 30",
		Dir:       t.TempDir(),
		TimeLimit: 100 * time.Millisecond,
	})
	if err != nil {
		t.Fatalf("Submit() error = %v", err)
	}

	start := time.Now()
	_, err = h.Wait(testCtx(t))
	var te *TaskError
	if !errors.As(err, &te) || !te.TimedOut {
		t.Fatalf("Wait() error = %v, want timed-out TaskError", err)
	}
	if elapsed := time.Since(start); elapsed > 5*time.Second {
		t.Errorf("timeout took %v, the kill did not land", elapsed)
	}
}

// TestLocalContextCancel verifies cancelling the wait context kills the
// task and returns the context error.
func TestLocalContextCancel(t *testing.T) {
	l := NewLocal(nil, testLogger())

	h, err := l.Submit(context.Background(), Spec{
		TaskID:  "t5",
		Stage:   "align",
		Command: "sleep 30",
		Dir:     t.TempDir(),
	})
	if err != nil {
		t.Fatalf("Submit() error = %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(50 * time.Millisecond)
		cancel()
	}()

	_, err = h.Wait(ctx)
	if !errors.Is(err, context.Canceled) {
		t.Errorf("Wait() error = %v, want context.Canceled", err)
	}
}

// TestLocalEnv verifies task identity, resource hints, and caller env all
// reach the command.
func TestLocalEnv(t *testing.T) {
	l := NewLocal(nil, testLogger())

	h, err := l.Submit(testCtx(t), Spec{
		TaskID:  "t6",
		Stage:   "align",
		Command: `printf '%s|%s|%s' "$FLOWRUN_STAGE" "$FLOWRUN_CPUS" "$SAMPLE"`,
		Env:     []string{"SAMPLE=s1"},
		Dir:     t.TempDir(),
		CPUs:    2,
	})
	if err != nil {
		t.Fatalf("Submit() error = %v", err)
	}

	res, err := h.Wait(testCtx(t))
	if err != nil {
		t.Fatalf("Wait() error = %v", err)
	}
	if res.Stdout != "align|2|s1" {
		t.Errorf("stdout = %q, want align|2|s1", res.Stdout)
	}
}

// TestProcessManagerLifecycle verifies tasks are tracked while running and
// untracked once reaped.
func TestProcessManagerLifecycle(t *testing.T) {
	pm := NewProcessManager()
	l := NewLocal(pm, testLogger())

	h, err := l.Submit(testCtx(t), Spec{
		TaskID:  "t7",
		Stage:   "align",
		Command: "sleep 0.2",
		Dir:     t.TempDir(),
	})
	if err != nil {
		t.Fatalf("Submit() error = %v", err)
	}
	if pm.Count() != 1 {
		t.Errorf("Count() during run = %d, want 1", pm.Count())
	}

	if _, err := h.Wait(testCtx(t)); err != nil {
		t.Fatalf("Wait() error = %v", err)
	}
	if pm.Count() != 0 {
		t.Errorf("Count() after completion = %d, want 0", pm.Count())
	}
}

// TestNewFactory verifies the executor factory switch.
func TestNewFactory(t *testing.T) {
	if _, err := New(Config{Type: "local"}, nil, testLogger()); err != nil {
		t.Errorf("New(local) error = %v", err)
	}
	if _, err := New(Config{}, nil, testLogger()); err != nil {
		t.Errorf("New(default) error = %v", err)
	}
	if _, err := New(Config{Type: "grid", Grid: GridConfig{SubmitCmd: []string{"sbatch"}}}, nil, testLogger()); err != nil {
		t.Errorf("New(grid) error = %v", err)
	}
	if _, err := New(Config{Type: "cloud"}, nil, testLogger()); err == nil {
		t.Error("New(cloud) should fail, got nil")
	}
}
