package executor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

const (
	jobScriptName = "job.sh"
	exitCodeName  = ".exitcode"
)

// Grid submits tasks to an external batch system through its command-line
// tools. The job script writes its exit code to a file in the task
// directory; completion is detected by polling for that file, the same way
// regardless of which batch system runs the job. Submission commands
// inherit the task's FLOWRUN_* environment, so site wrappers can translate
// resource hints into scheduler flags.
type Grid struct {
	cfg     GridConfig
	pm      *ProcessManager
	logger  *slog.Logger
	limiter *rate.Limiter
}

// NewGrid creates a grid executor.
func NewGrid(cfg GridConfig, pm *ProcessManager, logger *slog.Logger) (*Grid, error) {
	if len(cfg.SubmitCmd) == 0 {
		return nil, fmt.Errorf("grid executor requires a submit command")
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 5 * time.Second
	}

	var limiter *rate.Limiter
	if cfg.SubmitRatePerSec > 0 {
		burst := cfg.SubmitBurst
		if burst <= 0 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(cfg.SubmitRatePerSec), burst)
	}

	return &Grid{cfg: cfg, pm: pm, logger: logger, limiter: limiter}, nil
}

// Name implements Executor.
func (g *Grid) Name() string {
	if g.cfg.Name != "" {
		return "grid/" + g.cfg.Name
	}
	return "grid"
}

// Close is a no-op; jobs belong to the batch system once submitted.
func (g *Grid) Close() error { return nil }

// Submit writes the job script, throttles, and runs the submit command.
// The submit command must print a job identifier on stdout.
func (g *Grid) Submit(ctx context.Context, spec Spec) (Handle, error) {
	if spec.Dir == "" {
		return nil, &PermanentError{Op: "submit", Err: fmt.Errorf("grid tasks need a working directory")}
	}

	scriptPath := filepath.Join(spec.Dir, jobScriptName)
	if err := os.WriteFile(scriptPath, []byte(jobScript(spec)), 0o755); err != nil {
		return nil, &TransientError{Op: "submit", Err: fmt.Errorf("failed to write job script: %w", err)}
	}

	if g.limiter != nil {
		if err := g.limiter.Wait(ctx); err != nil {
			return nil, err
		}
	}

	args := append(append([]string(nil), g.cfg.SubmitCmd[1:]...), scriptPath)
	cmd := newCommand(ctx, g.cfg.SubmitCmd[0], args...)
	cmd.Dir = spec.Dir
	cmd.Env = append(os.Environ(), taskEnv(spec)...)

	stdout, _, err := runCommand(cmd, g.pm)
	if err != nil {
		if errors.Is(err, exec.ErrNotFound) {
			return nil, &PermanentError{Op: "submit", Err: err}
		}
		return nil, &TransientError{Op: "submit", Err: err}
	}

	jobID := firstLine(stdout)
	if jobID == "" {
		return nil, &TransientError{Op: "submit", Err: fmt.Errorf("submit command printed no job id")}
	}

	g.logger.Debug("job submitted",
		slog.String("task", spec.TaskID),
		slog.String("stage", spec.Stage),
		slog.String("job", jobID))

	h := &gridHandle{
		g:     g,
		spec:  spec,
		jobID: jobID,
		done:  make(chan struct{}),
		stop:  make(chan struct{}),
	}
	go h.poll()
	return h, nil
}

type gridHandle struct {
	g        *Grid
	spec     Spec
	jobID    string
	done     chan struct{}
	stop     chan struct{}
	stopOnce sync.Once
	res      *Result
	err      error
}

// poll watches for the exit-code file, enforcing the task time limit and
// probing job liveness when a status command is configured.
func (h *gridHandle) poll() {
	defer close(h.done)

	start := time.Now()
	var deadline time.Time
	if h.spec.TimeLimit > 0 {
		deadline = start.Add(h.spec.TimeLimit)
	}

	ticker := time.NewTicker(h.g.cfg.PollInterval)
	defer ticker.Stop()

	for {
		if h.tryFinish(start) {
			return
		}

		if !deadline.IsZero() && time.Now().After(deadline) {
			h.kill()
			h.res = &Result{ExitCode: -1, Duration: time.Since(start)}
			h.err = &TaskError{ExitCode: -1, TimedOut: true}
			return
		}

		if len(h.g.cfg.StatusCmd) > 0 && !h.alive() {
			// Re-check once: the job may have finished between the
			// exit-code check and the probe.
			if h.tryFinish(start) {
				return
			}
			h.res = &Result{ExitCode: -1, Duration: time.Since(start)}
			h.err = &TransientError{Op: "poll", Err: fmt.Errorf("job %s disappeared from the batch system", h.jobID)}
			return
		}

		select {
		case <-ticker.C:
		case <-h.stop:
			h.res = &Result{ExitCode: -1, Duration: time.Since(start)}
			h.err = &TaskError{ExitCode: -1, Stderr: "job cancelled"}
			return
		}
	}
}

// tryFinish reads the exit-code file and, when present, assembles the
// final result into h.res/h.err. Returns false while the job is still
// running.
func (h *gridHandle) tryFinish(start time.Time) bool {
	data, err := os.ReadFile(filepath.Join(h.spec.Dir, exitCodeName))
	if err != nil {
		return false
	}

	rc, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		h.res = &Result{ExitCode: -1, Duration: time.Since(start)}
		h.err = &TransientError{Op: "poll", Err: fmt.Errorf("unreadable exit code for job %s: %w", h.jobID, err)}
		return true
	}

	stdout, _ := os.ReadFile(filepath.Join(h.spec.Dir, "stdout.log"))
	stderr, _ := os.ReadFile(filepath.Join(h.spec.Dir, "stderr.log"))
	res := &Result{
		ExitCode: rc,
		Stdout:   string(stdout),
		Stderr:   string(stderr),
		Duration: time.Since(start),
	}
	h.res = res

	if rc != 0 {
		h.err = &TaskError{ExitCode: rc, Stderr: tail(stderr)}
		return true
	}

	outs, oerr := collectOutputs(h.spec.Dir, h.spec.Outputs)
	if oerr != nil {
		h.err = oerr
		return true
	}
	res.Outputs = outs
	return true
}

// alive probes the batch system for the job. Any probe failure counts as
// not alive; tryFinish gets the final say.
func (h *gridHandle) alive() bool {
	args := append(append([]string(nil), h.g.cfg.StatusCmd[1:]...), h.jobID)
	cmd := newCommand(context.Background(), h.g.cfg.StatusCmd[0], args...)
	_, _, err := runCommand(cmd, h.g.pm)
	return err == nil
}

// kill runs the configured kill command for the job.
func (h *gridHandle) kill() {
	if len(h.g.cfg.KillCmd) == 0 {
		return
	}
	args := append(append([]string(nil), h.g.cfg.KillCmd[1:]...), h.jobID)
	cmd := newCommand(context.Background(), h.g.cfg.KillCmd[0], args...)
	if _, _, err := runCommand(cmd, h.g.pm); err != nil {
		h.g.logger.Warn("failed to kill job",
			slog.String("job", h.jobID),
			slog.String("error", err.Error()))
	}
}

// Wait implements Handle.
func (h *gridHandle) Wait(ctx context.Context) (*Result, error) {
	select {
	case <-h.done:
		return h.res, h.err
	case <-ctx.Done():
		h.Cancel()
		<-h.done
		return nil, ctx.Err()
	}
}

// Cancel implements Handle.
func (h *gridHandle) Cancel() error {
	h.stopOnce.Do(func() {
		h.kill()
		close(h.stop)
	})
	return nil
}

// jobScript renders the wrapper script the batch system runs: restore the
// task environment, run the command with logs captured, and persist the
// exit code for the poller.
func jobScript(spec Spec) string {
	var b strings.Builder
	b.WriteString("#!/bin/sh\n")
	fmt.Fprintf(&b, "cd %s || exit 70\n", shellQuote(spec.Dir))
	for _, kv := range append(append([]string(nil), spec.Env...), taskEnv(spec)...) {
		k, v, ok := strings.Cut(kv, "=")
		if !ok {
			continue
		}
		fmt.Fprintf(&b, "export %s=%s\n", k, shellQuote(v))
	}
	b.WriteString("(\n")
	b.WriteString(spec.Command)
	b.WriteString("\n) > stdout.log 2> stderr.log\n")
	b.WriteString("rc=$?\n")
	fmt.Fprintf(&b, "echo \"$rc\" > %s\n", exitCodeName)
	b.WriteString("exit \"$rc\"\n")
	return b.String()
}

func shellQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}

func firstLine(b []byte) string {
	s := strings.TrimSpace(string(b))
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[:i]
	}
	return strings.TrimSpace(s)
}
