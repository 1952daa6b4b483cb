package executor

import (
	"errors"
	"fmt"
)

// TransientError marks a backend fault that a later attempt may clear:
// submission rejected, batch daemon unreachable, fork pressure. The engine
// retries these with backoff and counts them against the circuit breaker.
type TransientError struct {
	Op  string
	Err error
}

func (e *TransientError) Error() string {
	return fmt.Sprintf("transient backend error during %s: %v", e.Op, e.Err)
}

func (e *TransientError) Unwrap() error { return e.Err }

// PermanentError marks a backend fault no retry can clear: missing binary,
// broken configuration. No further attempts are made; the stage's error
// strategy decides what happens to the run.
type PermanentError struct {
	Op  string
	Err error
}

func (e *PermanentError) Error() string {
	return fmt.Sprintf("permanent backend error during %s: %v", e.Op, e.Err)
}

func (e *PermanentError) Unwrap() error { return e.Err }

// TaskError is a task-level failure: the command ran and failed, timed out,
// or finished without producing a declared output. Stage error strategy
// decides what happens next.
type TaskError struct {
	ExitCode      int
	TimedOut      bool
	MissingOutput string
	Stderr        string
}

func (e *TaskError) Error() string {
	switch {
	case e.TimedOut:
		return "task exceeded its time limit"
	case e.MissingOutput != "":
		return fmt.Sprintf("task produced no files for declared output %q", e.MissingOutput)
	default:
		return fmt.Sprintf("task failed with exit code %d", e.ExitCode)
	}
}

// IsTransient reports whether err is (or wraps) a transient backend error.
func IsTransient(err error) bool {
	var te *TransientError
	return errors.As(err, &te)
}

// IsPermanent reports whether err is (or wraps) a permanent backend error.
func IsPermanent(err error) bool {
	var pe *PermanentError
	return errors.As(err, &pe)
}

// IsTaskFailure reports whether err is (or wraps) a task-level failure, as
// opposed to a backend fault.
func IsTaskFailure(err error) bool {
	var te *TaskError
	return errors.As(err, &te)
}
