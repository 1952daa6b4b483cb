package values

import "testing"

// TestBagEqual exercises multiset equality across orderings and duplicate
// multiplicities.
func TestBagEqual(t *testing.T) {
	tests := []struct {
		name string
		a    *Bag
		b    *Bag
		want bool
	}{
		{
			name: "identical order",
			a:    NewBag("x", "y", "z"),
			b:    NewBag("x", "y", "z"),
			want: true,
		},
		{
			name: "permuted order",
			a:    NewBag("x", "y", "z"),
			b:    NewBag("z", "x", "y"),
			want: true,
		},
		{
			name: "different sizes",
			a:    NewBag("x", "y"),
			b:    NewBag("x", "y", "y"),
			want: false,
		},
		{
			name: "same distinct values, different multiplicities",
			// The naive size+containment check calls these equal.
			a:    NewBag("a", "a", "b"),
			b:    NewBag("a", "b", "b"),
			want: false,
		},
		{
			name: "duplicates matched one to one",
			a:    NewBag("a", "a", "b"),
			b:    NewBag("b", "a", "a"),
			want: true,
		},
		{
			name: "mixed scalar kinds",
			a:    NewBag(int64(1), "1", true),
			b:    NewBag("1", true, int64(1)),
			want: true,
		},
		{
			name: "int widens to int64",
			a:    NewBag(1, 2),
			b:    NewBag(int64(2), int64(1)),
			want: true,
		},
		{
			name: "int does not equal float",
			a:    NewBag(int64(1)),
			b:    NewBag(float64(1)),
			want: false,
		},
		{
			name: "both empty",
			a:    NewBag(),
			b:    NewBag(),
			want: true,
		},
		{
			name: "nil equals empty",
			a:    nil,
			b:    NewBag(),
			want: true,
		},
		{
			name: "nested bags by multiset",
			a:    NewBag(NewBag("p", "q"), "tail"),
			b:    NewBag("tail", NewBag("q", "p")),
			want: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.a.Equal(tt.b); got != tt.want {
				t.Errorf("Equal() = %v, want %v", got, tt.want)
			}
			// Equality is symmetric.
			if got := tt.b.Equal(tt.a); got != tt.want {
				t.Errorf("Equal() reversed = %v, want %v", got, tt.want)
			}
		})
	}
}

// TestBagEqualOrdered verifies the positional comparison stays positional.
func TestBagEqualOrdered(t *testing.T) {
	a := NewBag("x", "y", "z")
	b := NewBag("z", "x", "y")

	if !a.Equal(b) {
		t.Fatal("permutations should be multiset-equal")
	}
	if a.EqualOrdered(b) {
		t.Error("permutations must not be position-equal")
	}
	if !a.EqualOrdered(NewBag("x", "y", "z")) {
		t.Error("identical sequences must be position-equal")
	}
}

// TestBagIterationOrder verifies insertion order survives for argv
// reproduction.
func TestBagIterationOrder(t *testing.T) {
	b := NewBag("c", "a", "b")

	want := []string{"c", "a", "b"}
	for i, w := range want {
		if got := b.At(i); got != w {
			t.Errorf("At(%d) = %v, want %v", i, got, w)
		}
	}

	elems := b.Elements()
	if len(elems) != 3 {
		t.Fatalf("Elements() returned %d elements, want 3", len(elems))
	}
	// Mutating the returned slice must not affect the bag.
	elems[0] = "mutated"
	if b.At(0) != "c" {
		t.Error("Elements() must return a copy")
	}
}
