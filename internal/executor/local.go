package executor

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"sync"
	"sync/atomic"
	"time"
)

// Local runs tasks as subprocesses on the host, one process group per
// task.
type Local struct {
	pm     *ProcessManager
	logger *slog.Logger
}

// NewLocal creates a local executor. The ProcessManager is optional - if
// nil, subprocesses won't be tracked for shutdown cleanup.
func NewLocal(pm *ProcessManager, logger *slog.Logger) *Local {
	return &Local{pm: pm, logger: logger}
}

// Name implements Executor.
func (l *Local) Name() string { return "local" }

// Close is a no-op for the local executor (subprocess-per-task model).
func (l *Local) Close() error { return nil }

// Submit starts the task's shell command in its working directory.
func (l *Local) Submit(ctx context.Context, spec Spec) (Handle, error) {
	cmd := newCommand(ctx, "sh", "-c", spec.Command)
	cmd.Dir = spec.Dir
	cmd.Env = append(os.Environ(), spec.Env...)
	cmd.Env = append(cmd.Env, taskEnv(spec)...)

	stdoutPipe, err := cmd.StdoutPipe()
	if err != nil {
		return nil, &TransientError{Op: "submit", Err: err}
	}
	stderrPipe, err := cmd.StderrPipe()
	if err != nil {
		return nil, &TransientError{Op: "submit", Err: err}
	}

	if err := cmd.Start(); err != nil {
		if errors.Is(err, exec.ErrNotFound) || errors.Is(err, os.ErrNotExist) {
			return nil, &PermanentError{Op: "submit", Err: err}
		}
		return nil, &TransientError{Op: "submit", Err: err}
	}
	if l.pm != nil {
		l.pm.Track(cmd)
	}

	l.logger.Debug("task started",
		slog.String("task", spec.TaskID),
		slog.String("stage", spec.Stage),
		slog.Int("pid", cmd.Process.Pid))

	h := &localHandle{cmd: cmd, done: make(chan struct{})}

	var timedOut atomic.Bool
	var timer *time.Timer
	if spec.TimeLimit > 0 {
		timer = time.AfterFunc(spec.TimeLimit, func() {
			timedOut.Store(true)
			killProcessGroup(cmd)
		})
	}

	go func() {
		defer close(h.done)

		start := time.Now()

		// Drain both pipes before Wait so large output can't deadlock.
		var wg sync.WaitGroup
		var stdoutBuf, stderrBuf bytes.Buffer
		wg.Add(2)
		go func() {
			defer wg.Done()
			io.Copy(&stdoutBuf, stdoutPipe)
		}()
		go func() {
			defer wg.Done()
			io.Copy(&stderrBuf, stderrPipe)
		}()
		wg.Wait()

		waitErr := cmd.Wait()
		if timer != nil {
			timer.Stop()
		}
		if l.pm != nil {
			l.pm.Untrack(cmd)
		}

		res := &Result{
			Stdout:   stdoutBuf.String(),
			Stderr:   stderrBuf.String(),
			Duration: time.Since(start),
		}
		writeTaskLogs(spec.Dir, stdoutBuf.Bytes(), stderrBuf.Bytes())

		if waitErr != nil {
			var exitErr *exec.ExitError
			if errors.As(waitErr, &exitErr) {
				res.ExitCode = exitErr.ExitCode()
				h.res = res
				h.err = &TaskError{
					ExitCode: res.ExitCode,
					TimedOut: timedOut.Load(),
					Stderr:   tail(stderrBuf.Bytes()),
				}
				return
			}
			h.res = res
			h.err = &TransientError{Op: "wait", Err: waitErr}
			return
		}

		outs, oerr := collectOutputs(spec.Dir, spec.Outputs)
		if oerr != nil {
			h.res = res
			h.err = oerr
			return
		}
		res.Outputs = outs
		h.res = res
	}()

	return h, nil
}

type localHandle struct {
	cmd  *exec.Cmd
	done chan struct{}
	res  *Result
	err  error
}

// Wait implements Handle.
func (h *localHandle) Wait(ctx context.Context) (*Result, error) {
	select {
	case <-h.done:
		return h.res, h.err
	case <-ctx.Done():
		h.Cancel()
		<-h.done // reap before returning
		return nil, ctx.Err()
	}
}

// Cancel implements Handle.
func (h *localHandle) Cancel() error {
	return killProcessGroup(h.cmd)
}

// taskEnv renders the task identity and resource hints the command can
// read, mirroring what grid executors pass to the batch system.
func taskEnv(spec Spec) []string {
	env := []string{
		"FLOWRUN_TASK_ID=" + spec.TaskID,
		"FLOWRUN_STAGE=" + spec.Stage,
	}
	if spec.CPUs > 0 {
		env = append(env, "FLOWRUN_CPUS="+strconv.Itoa(spec.CPUs))
	}
	if spec.MemoryMB > 0 {
		env = append(env, "FLOWRUN_MEMORY_MB="+strconv.Itoa(spec.MemoryMB))
	}
	return env
}

// writeTaskLogs leaves stdout/stderr copies in the task directory for
// post-mortem inspection. Best effort: a failed write must not fail the
// task.
func writeTaskLogs(dir string, stdout, stderr []byte) {
	if dir == "" {
		return
	}
	_ = os.WriteFile(filepath.Join(dir, "stdout.log"), stdout, 0o644)
	_ = os.WriteFile(filepath.Join(dir, "stderr.log"), stderr, 0o644)
}

// tail returns the last chunk of b as a string, for embedding in errors.
func tail(b []byte) string {
	const max = 1024
	if len(b) > max {
		b = b[len(b)-max:]
	}
	return string(b)
}
