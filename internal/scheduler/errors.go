package scheduler

import "fmt"

// RunAbortError reports why a run stopped before finishing all its work,
// identifying the task whose failure pulled the trigger. A run cancelled
// from outside carries only the Reason.
type RunAbortError struct {
	TaskID  string
	Stage   string
	Key     string // hex hash key, empty if identity never resolved
	WorkDir string
	Reason  error
}

func (e *RunAbortError) Error() string {
	if e.Stage == "" {
		return fmt.Sprintf("run aborted: %v", e.Reason)
	}
	return fmt.Sprintf("run aborted: task %s of stage %s failed: %v", e.TaskID, e.Stage, e.Reason)
}

func (e *RunAbortError) Unwrap() error { return e.Reason }
