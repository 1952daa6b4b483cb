// Package hashkey derives stable, order-invariant cache identities for
// pipeline tasks. A Key fingerprints a stage's executable definition, its
// declared environment, and the content identity of every input value;
// permutations of multi-valued inputs produce the same Key.
package hashkey

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// Size is the fingerprint width in bytes.
const Size = sha256.Size

// Key is a fixed-size task fingerprint.
type Key [Size]byte

// String returns the full lowercase hex form.
func (k Key) String() string {
	return hex.EncodeToString(k[:])
}

// Short returns an abbreviated hex form for logs and progress lines.
func (k Key) Short() string {
	return hex.EncodeToString(k[:4])
}

// Fan splits the hex form into a two-character prefix and remainder,
// the layout task working directories use to avoid huge flat directories.
func (k Key) Fan() (prefix, rest string) {
	s := k.String()
	return s[:2], s[2:]
}

// IsZero reports whether the key is the zero fingerprint.
func (k Key) IsZero() bool {
	return k == Key{}
}

// Parse decodes a full-length hex key, as accepted by cache tooling.
func Parse(s string) (Key, error) {
	var k Key
	b, err := hex.DecodeString(s)
	if err != nil {
		return k, fmt.Errorf("invalid key %q: %w", s, err)
	}
	if len(b) != Size {
		return k, fmt.Errorf("invalid key %q: want %d bytes, got %d", s, Size, len(b))
	}
	copy(k[:], b)
	return k, nil
}
