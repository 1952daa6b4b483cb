package values

import (
	"os"
	"path/filepath"
	"testing"
)

func TestFileRefDigest(t *testing.T) {
	dir := t.TempDir()

	pathA := filepath.Join(dir, "a.txt")
	pathB := filepath.Join(dir, "b.txt")
	if err := os.WriteFile(pathA, []byte("payload"), 0644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(pathB, []byte("payload"), 0644); err != nil {
		t.Fatal(err)
	}

	refA := NewFileRef(pathA)
	refB := NewFileRef(pathB)

	digA, err := refA.Digest()
	if err != nil {
		t.Fatalf("Digest() error: %v", err)
	}
	digB, err := refB.Digest()
	if err != nil {
		t.Fatalf("Digest() error: %v", err)
	}

	// Content identity ignores the path.
	if digA != digB {
		t.Error("identical content at different paths should share a digest")
	}

	// Digest is memoized: rewriting the file after stabilization does not
	// change the recorded identity.
	if err := os.WriteFile(pathA, []byte("rewritten"), 0644); err != nil {
		t.Fatal(err)
	}
	digA2, err := refA.Digest()
	if err != nil {
		t.Fatalf("Digest() error: %v", err)
	}
	if digA != digA2 {
		t.Error("digest should be memoized after the first call")
	}

	// A fresh ref sees the new content.
	digNew, err := NewFileRef(pathA).Digest()
	if err != nil {
		t.Fatalf("Digest() error: %v", err)
	}
	if digNew == digA {
		t.Error("rewritten content should produce a different digest")
	}
}

func TestFileRefDigestUnreadable(t *testing.T) {
	ref := NewFileRef(filepath.Join(t.TempDir(), "missing.txt"))
	if _, err := ref.Digest(); err == nil {
		t.Fatal("expected error digesting a missing file")
	}
}

func TestFileRefMetadataIdentity(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "data.bin")
	if err := os.WriteFile(path, []byte("1234"), 0644); err != nil {
		t.Fatal(err)
	}

	content, err := NewFileRef(path).Digest()
	if err != nil {
		t.Fatal(err)
	}
	meta, err := NewFileRefMode(path, MetadataIdentity).Digest()
	if err != nil {
		t.Fatal(err)
	}
	if content == meta {
		t.Error("metadata identity should differ from content identity")
	}
}

func TestSame(t *testing.T) {
	tests := []struct {
		name string
		a    Value
		b    Value
		want bool
	}{
		{"equal strings", "v", "v", true},
		{"different strings", "v", "w", false},
		{"string vs int", "1", int64(1), false},
		{"int vs int64", 3, int64(3), true},
		{"floats", 1.5, 1.5, true},
		{"int vs float not normalized", int64(1), float64(1), false},
		{"bools", true, true, true},
		{"nils", nil, nil, true},
		{"nil vs value", nil, "x", false},
		{"filerefs by path", NewFileRef("/p"), NewFileRef("/p"), true},
		{"filerefs different path", NewFileRef("/p"), NewFileRef("/q"), false},
		{"tuples", []Value{"a", int64(1)}, []Value{"a", int64(1)}, true},
		{"tuples order matters", []Value{"a", "b"}, []Value{"b", "a"}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Same(tt.a, tt.b); got != tt.want {
				t.Errorf("Same(%v, %v) = %v, want %v", tt.a, tt.b, got, tt.want)
			}
		})
	}
}
