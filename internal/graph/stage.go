package graph

import (
	"fmt"
	"time"

	"github.com/flowrun-io/flowrun/internal/values"
)

// ErrorStrategy selects how a stage's task failures affect the run.
type ErrorStrategy int

const (
	// StrategyTerminate aborts the whole run on failure. The default.
	StrategyTerminate ErrorStrategy = iota
	// StrategyIgnore treats a failed task as completed with no output.
	StrategyIgnore
	// StrategyFinish stops submitting new tasks but lets in-flight ones
	// run to completion.
	StrategyFinish
	// StrategyRetry resubmits with bounded attempts and increasing
	// backoff; exhausting the attempts escalates to Terminate.
	StrategyRetry
)

// String returns the strategy name used in logs and journal records.
func (s ErrorStrategy) String() string {
	switch s {
	case StrategyTerminate:
		return "terminate"
	case StrategyIgnore:
		return "ignore"
	case StrategyFinish:
		return "finish"
	case StrategyRetry:
		return "retry"
	}
	return "unknown"
}

// ParseStrategy maps a configuration string to its strategy. The empty
// string is the default, terminate.
func ParseStrategy(s string) (ErrorStrategy, error) {
	switch s {
	case "", "terminate":
		return StrategyTerminate, nil
	case "ignore":
		return StrategyIgnore, nil
	case "finish":
		return StrategyFinish, nil
	case "retry":
		return StrategyRetry, nil
	}
	return StrategyTerminate, fmt.Errorf("unknown error strategy %q", s)
}

// Resources declares what one task of a stage needs from its backend.
// Resource requests do not participate in cache identity.
type Resources struct {
	CPUs      int
	MemoryMB  int64
	TimeLimit time.Duration
}

// InputSpec binds one named input to the channel it consumes.
type InputSpec struct {
	Name    string
	Channel string
}

// OutputSpec binds one named output to the channel it feeds. Glob selects
// the files an executor collects from the task working directory for this
// output; empty means the output carries whatever values the backend
// reports under this name.
type OutputSpec struct {
	Name    string
	Channel string
	Glob    string
}

// StageDefinition is the static description of one pipeline step. Built
// while the pipeline is assembled and frozen once the run starts; tasks
// reference it, they do not own it.
type StageDefinition struct {
	Name    string
	Command string
	Env     map[string]string

	Inputs  []InputSpec
	Outputs []OutputSpec

	Resources Resources

	Strategy    ErrorStrategy
	MaxAttempts int // attempts ceiling for StrategyRetry; 0 uses the run default

	// MaxConcurrent caps in-flight tasks of this stage; 0 means only the
	// global limit applies.
	MaxConcurrent int
}

// Binding is one named input value for a single firing.
type Binding struct {
	Name  string
	Value values.Value
}

// Firing is one ready tuple: the stage, its per-stage firing index, and the
// input bindings popped from the stage's ports in declaration order.
type Firing struct {
	Stage  *StageDefinition
	Index  int
	Inputs []Binding
}
