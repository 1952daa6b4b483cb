package executor

import (
	"fmt"
	"path/filepath"
	"sort"

	"github.com/flowrun-io/flowrun/internal/values"
)

// collectOutputs resolves each declared output glob against the task
// directory. Matches become file references in lexical path order. A glob
// matching nothing fails the task: a declared output is a promise.
func collectOutputs(dir string, globs []OutputGlob) ([]values.Output, error) {
	outs := make([]values.Output, 0, len(globs))
	for _, og := range globs {
		matches, err := filepath.Glob(filepath.Join(dir, og.Glob))
		if err != nil {
			return nil, fmt.Errorf("bad glob %q for output %q: %w", og.Glob, og.Name, err)
		}
		if len(matches) == 0 {
			return nil, &TaskError{MissingOutput: og.Name}
		}
		sort.Strings(matches)

		out := values.Output{Name: og.Name}
		for _, m := range matches {
			out.Values = append(out.Values, values.NewFileRef(m))
		}
		outs = append(outs, out)
	}
	return outs, nil
}
