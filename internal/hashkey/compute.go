package hashkey

import (
	"bytes"
	"fmt"
	"sort"

	"github.com/flowrun-io/flowrun/internal/values"
)

// StageIdentity is the slice of a stage definition that contributes to task
// identity: the stage name, the executable template content, and the
// declared environment. Resource requests and error policy deliberately do
// not participate; changing a CPU count must not invalidate cached results.
type StageIdentity struct {
	Name    string
	Command string
	Env     map[string]string
}

// Param is one named input value bound for a single task firing.
type Param struct {
	Name  string
	Value values.Value
}

// ResolutionError reports that an input's identity could not be stabilized,
// for example an unreadable input file or a value kind the hasher does not
// support. It fails the task being scheduled, not the run.
type ResolutionError struct {
	Input string
	Err   error
}

func (e *ResolutionError) Error() string {
	return fmt.Sprintf("cannot resolve identity of input %q: %v", e.Input, e.Err)
}

func (e *ResolutionError) Unwrap() error {
	return e.Err
}

// Compute derives the task fingerprint for one firing of a stage.
//
// It is pure: the same stage identity and the same input multiset always
// produce the same Key. Params are folded order-invariantly, so the key for
// a tuple does not depend on the order bindings were collected in; values
// that are themselves collections get the same treatment through Bag
// digests. Content is hashed literally, never normalized.
func Compute(stage StageIdentity, params []Param) (Key, error) {
	h := NewHasher()
	h.WriteString(stage.Name)
	h.WriteString(stage.Command)

	envKeys := make([]string, 0, len(stage.Env))
	for k := range stage.Env {
		envKeys = append(envKeys, k)
	}
	sort.Strings(envKeys)
	for _, k := range envKeys {
		h.WriteString(k)
		h.WriteString(stage.Env[k])
	}

	// Digest each binding (name + value) on its own, then fold sorted so
	// the param tuple is identified as a multiset.
	digests := make([][]byte, 0, len(params))
	for _, p := range params {
		sub := NewHasher()
		sub.WriteString(p.Name)
		if err := sub.WriteValue(p.Value); err != nil {
			return Key{}, &ResolutionError{Input: p.Name, Err: err}
		}
		d := sub.Sum()
		digests = append(digests, d[:])
	}
	sort.Slice(digests, func(i, j int) bool { return bytes.Compare(digests[i], digests[j]) < 0 })
	for _, d := range digests {
		h.WriteField(d)
	}

	return h.Sum(), nil
}
