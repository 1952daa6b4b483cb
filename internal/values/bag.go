package values

// Bag is a sequence-backed container whose identity treats element order as
// irrelevant. Iteration preserves insertion order so command arguments can be
// reproduced positionally, while equality and hashing treat the contents as a
// multiset so reordering upstream producers never changes cache identity.
//
// A Bag is immutable after construction.
type Bag struct {
	elems []Value
}

// NewBag builds a Bag over the given elements, preserving their order for
// iteration. The slice is copied; later mutation of the argument does not
// affect the Bag.
func NewBag(elems ...Value) *Bag {
	cp := make([]Value, len(elems))
	copy(cp, elems)
	return &Bag{elems: cp}
}

// Len returns the number of elements, counting duplicates.
func (b *Bag) Len() int {
	if b == nil {
		return 0
	}
	return len(b.elems)
}

// At returns the element at position i in insertion order.
func (b *Bag) At(i int) Value {
	return b.elems[i]
}

// Elements returns a copy of the elements in insertion order.
func (b *Bag) Elements() []Value {
	cp := make([]Value, len(b.elems))
	copy(cp, b.elems)
	return cp
}

// Equal reports multiset equality: both bags contain the same elements with
// the same multiplicities, in any order. Duplicate counts are verified; a
// plain size-plus-containment check would report {a,a,b} equal to {a,b,b},
// which would break the contract that equal bags hash identically.
func (b *Bag) Equal(other *Bag) bool {
	if b == nil || other == nil {
		return b.Len() == 0 && other.Len() == 0
	}
	if len(b.elems) != len(other.elems) {
		return false
	}

	// Elements are not comparable map keys, so match greedily with a
	// used-mark per element. Input tuples are small; quadratic is fine.
	used := make([]bool, len(other.elems))
	for _, e := range b.elems {
		found := false
		for j, o := range other.elems {
			if used[j] {
				continue
			}
			if Same(e, o) {
				used[j] = true
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

// EqualOrdered reports positional equality: same elements at the same
// positions. This is the comparison argv-reproduction code wants; cache
// identity must use Equal instead.
func (b *Bag) EqualOrdered(other *Bag) bool {
	if b == nil || other == nil {
		return b.Len() == 0 && other.Len() == 0
	}
	if len(b.elems) != len(other.elems) {
		return false
	}
	for i := range b.elems {
		if !Same(b.elems[i], other.elems[i]) {
			return false
		}
	}
	return true
}
