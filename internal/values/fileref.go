package values

import (
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"sync"
)

// IdentityMode selects how a FileRef derives its stable identity.
type IdentityMode int

const (
	// ContentIdentity digests the file's bytes. Default: renaming or
	// touching a file does not invalidate caches, rewriting it does.
	ContentIdentity IdentityMode = iota

	// MetadataIdentity digests path, size, and mtime instead of content.
	// Cheaper for very large inputs when the pipeline opts in.
	MetadataIdentity
)

// FileRef is a reference to a file input or output. Its identity is
// stabilized lazily on first use and memoized, so a FileRef travelling
// through several stages digests its content at most once.
type FileRef struct {
	Path string
	Mode IdentityMode

	mu       sync.Mutex
	digest   [sha256.Size]byte
	digested bool
}

// NewFileRef returns a content-identity reference to path.
func NewFileRef(path string) *FileRef {
	return &FileRef{Path: path}
}

// NewFileRefMode returns a reference using the given identity mode.
func NewFileRefMode(path string, mode IdentityMode) *FileRef {
	return &FileRef{Path: path, Mode: mode}
}

// Digest returns the file's stable identity digest, computing and memoizing
// it on first call. An unreadable file is an error; callers treat that as a
// failure to stabilize the input, local to the task at hand.
func (f *FileRef) Digest() ([sha256.Size]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.digested {
		return f.digest, nil
	}

	var err error
	switch f.Mode {
	case MetadataIdentity:
		f.digest, err = metadataDigest(f.Path)
	default:
		f.digest, err = contentDigest(f.Path)
	}
	if err != nil {
		return [sha256.Size]byte{}, err
	}
	f.digested = true
	return f.digest, nil
}

// String returns the path, which is what argv reproduction wants.
func (f *FileRef) String() string {
	return f.Path
}

func contentDigest(path string) ([sha256.Size]byte, error) {
	var sum [sha256.Size]byte

	file, err := os.Open(path)
	if err != nil {
		return sum, fmt.Errorf("reading %s: %w", path, err)
	}
	defer file.Close()

	h := sha256.New()
	if _, err := io.Copy(h, file); err != nil {
		return sum, fmt.Errorf("digesting %s: %w", path, err)
	}
	copy(sum[:], h.Sum(nil))
	return sum, nil
}

func metadataDigest(path string) ([sha256.Size]byte, error) {
	var sum [sha256.Size]byte

	info, err := os.Stat(path)
	if err != nil {
		return sum, fmt.Errorf("stat %s: %w", path, err)
	}

	h := sha256.New()
	h.Write([]byte(path))
	var buf [16]byte
	binary.BigEndian.PutUint64(buf[0:8], uint64(info.Size()))
	binary.BigEndian.PutUint64(buf[8:16], uint64(info.ModTime().UnixNano()))
	h.Write(buf[:])
	copy(sum[:], h.Sum(nil))
	return sum, nil
}
