package executor

import (
	"time"

	"github.com/flowrun-io/flowrun/internal/values"
)

// Spec is one fully resolved task invocation: everything an executor needs
// without reaching back into the scheduler.
type Spec struct {
	// TaskID identifies the task for logs and job names.
	TaskID string

	// Stage is the owning stage's name.
	Stage string

	// Command is the shell command line, run via sh -c.
	Command string

	// Env holds fully resolved KEY=VALUE pairs appended to the inherited
	// environment. Input bindings arrive here already rendered.
	Env []string

	// Dir is the task working directory. The caller creates it; the
	// executor runs the command inside it and collects outputs from it.
	Dir string

	// CPUs and MemoryMB are resource requests. The local executor exports
	// them as environment hints; grid executors pass them to the batch
	// system.
	CPUs     int
	MemoryMB int

	// TimeLimit caps wall-clock runtime. Zero means unlimited.
	TimeLimit time.Duration

	// Outputs are collected from Dir by glob after a zero exit.
	Outputs []OutputGlob
}

// OutputGlob declares one named output: files under the task directory
// matching Glob, in lexical order.
type OutputGlob struct {
	Name string
	Glob string
}

// Result is the outcome of a completed execution.
type Result struct {
	ExitCode int
	Outputs  []values.Output
	Stdout   string
	Stderr   string
	Duration time.Duration
}

// Config selects and configures an executor.
type Config struct {
	// Type is "local" or "grid".
	Type string `json:"type"`

	// Grid configures the grid adapter when Type is "grid".
	Grid GridConfig `json:"grid"`
}

// GridConfig describes how to drive an external batch system through its
// command-line tools.
type GridConfig struct {
	// Name labels the batch system in logs (e.g. "slurm").
	Name string `json:"name"`

	// SubmitCmd is the submission command; the job script path is appended.
	// The command must print a job identifier on stdout.
	SubmitCmd []string `json:"submit_cmd"`

	// KillCmd cancels a job; the job identifier is appended.
	KillCmd []string `json:"kill_cmd"`

	// StatusCmd, when set, checks liveness; the job identifier is appended.
	// A non-zero exit while no exit-code file exists marks the job lost.
	StatusCmd []string `json:"status_cmd"`

	// PollInterval is how often to check for completion. Defaults to 5s.
	PollInterval time.Duration `json:"poll_interval"`

	// SubmitRatePerSec throttles submissions to protect the batch daemon.
	// Zero disables throttling.
	SubmitRatePerSec float64 `json:"submit_rate_per_sec"`

	// SubmitBurst is the throttle burst size. Defaults to 1 when throttled.
	SubmitBurst int `json:"submit_burst"`
}
