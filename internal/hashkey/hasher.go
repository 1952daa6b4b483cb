package hashkey

import (
	"bytes"
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"hash"
	"math"
	"sort"

	"github.com/flowrun-io/flowrun/internal/values"
)

// Type tags keep values of different kinds from colliding: the int64 1 and
// the string "1" frame differently, and 1 never hashes like 1.0. Hashing is
// content-literal by contract, no numeric normalization.
const (
	tagString = 's'
	tagBool   = 'b'
	tagInt    = 'i'
	tagFloat  = 'f'
	tagFile   = 'F'
	tagBag    = 'B'
	tagTuple  = 'T'
	tagNil    = 'n'
)

// Hasher accumulates length-prefixed fields into a Key. The framing makes
// adjacent fields unambiguous: ("ab","c") never hashes like ("a","bc").
type Hasher struct {
	h hash.Hash
}

// NewHasher returns an empty Hasher.
func NewHasher() *Hasher {
	return &Hasher{h: sha256.New()}
}

// WriteField appends one framed field.
func (h *Hasher) WriteField(b []byte) {
	var n [8]byte
	binary.BigEndian.PutUint64(n[:], uint64(len(b)))
	h.h.Write(n[:])
	h.h.Write(b)
}

// WriteString appends one framed string field.
func (h *Hasher) WriteString(s string) {
	h.WriteField([]byte(s))
}

// Sum finalizes the accumulated fields into a Key.
func (h *Hasher) Sum() Key {
	var k Key
	copy(k[:], h.h.Sum(nil))
	return k
}

// WriteValue appends one framed, type-tagged value. Bags contribute an
// order-invariant digest; every other composite preserves position.
func (h *Hasher) WriteValue(v values.Value) error {
	d, err := valueDigest(v)
	if err != nil {
		return err
	}
	h.WriteField(d)
	return nil
}

// valueDigest computes a self-contained digest for a single value, used both
// for direct framing and as the unit the Bag fold sorts.
func valueDigest(v values.Value) ([]byte, error) {
	sub := NewHasher()
	switch tv := v.(type) {
	case string:
		sub.WriteField([]byte{tagString})
		sub.WriteString(tv)
	case bool:
		sub.WriteField([]byte{tagBool})
		if tv {
			sub.WriteField([]byte{1})
		} else {
			sub.WriteField([]byte{0})
		}
	case int:
		return valueDigest(int64(tv))
	case int64:
		var b [8]byte
		binary.BigEndian.PutUint64(b[:], uint64(tv))
		sub.WriteField([]byte{tagInt})
		sub.WriteField(b[:])
	case float64:
		var b [8]byte
		binary.BigEndian.PutUint64(b[:], math.Float64bits(tv))
		sub.WriteField([]byte{tagFloat})
		sub.WriteField(b[:])
	case *values.FileRef:
		dig, err := tv.Digest()
		if err != nil {
			return nil, err
		}
		sub.WriteField([]byte{tagFile})
		sub.WriteField(dig[:])
	case *values.Bag:
		d, err := bagDigest(tv)
		if err != nil {
			return nil, err
		}
		sub.WriteField([]byte{tagBag})
		sub.WriteField(d)
	case []values.Value:
		sub.WriteField([]byte{tagTuple})
		for _, e := range tv {
			if err := sub.WriteValue(e); err != nil {
				return nil, err
			}
		}
	case nil:
		sub.WriteField([]byte{tagNil})
	default:
		return nil, fmt.Errorf("unhashable value of type %T", v)
	}
	k := sub.Sum()
	return k[:], nil
}

// bagDigest folds element digests in sorted order, so any permutation of the
// same multiset digests identically while duplicate elements still count
// twice.
func bagDigest(b *values.Bag) ([]byte, error) {
	subs := make([][]byte, 0, b.Len())
	for i := 0; i < b.Len(); i++ {
		d, err := valueDigest(b.At(i))
		if err != nil {
			return nil, err
		}
		subs = append(subs, d)
	}
	sort.Slice(subs, func(i, j int) bool { return bytes.Compare(subs[i], subs[j]) < 0 })

	fold := NewHasher()
	for _, d := range subs {
		fold.WriteField(d)
	}
	k := fold.Sum()
	return k[:], nil
}
