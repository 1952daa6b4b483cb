// Package values defines the data kinds that flow through pipeline channels:
// scalars, file references with stable content identity, and Bag, an ordered
// container with multiset equality semantics used for cache identity.
package values

// Value is a single datum travelling a pipeline channel.
//
// Supported dynamic types: string, bool, int, int64, float64, *FileRef,
// *Bag, and []Value for fixed-shape tuples. Anything else is rejected when
// a task's hash key is computed.
type Value = any

// Output is one named output of a completed task: the values it emitted,
// in emission order. A task produces zero or more values per declared
// output; each value is delivered individually downstream.
type Output struct {
	Name   string
	Values []Value
}

// Same reports structural equivalence of two values.
//
// Scalars compare by value with int widened to int64 first. File references
// compare by path: within a single controlling process the path determines
// the content snapshot, so path equivalence and content equivalence agree
// (mutating an input file mid-run voids that, as it voids cache identity).
// Bags compare as multisets; tuples compare element-wise.
func Same(a, b Value) bool {
	switch av := a.(type) {
	case string:
		bv, ok := b.(string)
		return ok && av == bv
	case bool:
		bv, ok := b.(bool)
		return ok && av == bv
	case int:
		return sameInt(int64(av), b)
	case int64:
		return sameInt(av, b)
	case float64:
		bv, ok := b.(float64)
		return ok && av == bv
	case *FileRef:
		bv, ok := b.(*FileRef)
		return ok && av != nil && bv != nil && av.Path == bv.Path
	case *Bag:
		bv, ok := b.(*Bag)
		return ok && av.Equal(bv)
	case []Value:
		bv, ok := b.([]Value)
		if !ok || len(av) != len(bv) {
			return false
		}
		for i := range av {
			if !Same(av[i], bv[i]) {
				return false
			}
		}
		return true
	case nil:
		return b == nil
	}
	return false
}

func sameInt(a int64, b Value) bool {
	switch bv := b.(type) {
	case int:
		return a == int64(bv)
	case int64:
		return a == bv
	}
	return false
}
