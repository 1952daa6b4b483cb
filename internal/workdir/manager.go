// Package workdir manages per-task working directories. Directories are
// laid out by hash-key fanout (work/ab/cdef...) so a task's directory can
// be found from its key prefix and no single directory grows unbounded.
package workdir

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/flowrun-io/flowrun/internal/hashkey"
)

// Manager creates, locates, and reclaims task directories under one root.
type Manager struct {
	root string
}

// NewManager creates a manager rooted at dir. Defaults to "work".
func NewManager(dir string) *Manager {
	if dir == "" {
		dir = "work"
	}
	return &Manager{root: dir}
}

// Root returns the managed root directory.
func (m *Manager) Root() string {
	return m.root
}

// Path returns the directory a key maps to, whether or not it exists.
func (m *Manager) Path(key hashkey.Key) string {
	prefix, rest := key.Fan()
	return filepath.Join(m.root, prefix, rest)
}

// Create makes the task directory for key, parents included. Creating an
// existing directory is fine; a retry reuses it.
func (m *Manager) Create(key hashkey.Key) (string, error) {
	path := m.Path(key)
	if err := os.MkdirAll(path, 0o755); err != nil {
		return "", fmt.Errorf("failed to create task directory: %w", err)
	}
	return path, nil
}

// Remove deletes the task directory for key and its contents.
func (m *Manager) Remove(key hashkey.Key) error {
	if err := os.RemoveAll(m.Path(key)); err != nil {
		return fmt.Errorf("failed to remove task directory: %w", err)
	}
	return nil
}

// Info describes one existing task directory.
type Info struct {
	Key     hashkey.Key
	Path    string
	Size    int64
	ModTime time.Time
}

// List returns every task directory under the root. Entries that do not
// parse as fanned-out keys are skipped; the root may hold other files.
func (m *Manager) List() ([]Info, error) {
	prefixes, err := os.ReadDir(m.root)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read work root: %w", err)
	}

	var infos []Info
	for _, p := range prefixes {
		if !p.IsDir() || len(p.Name()) != 2 {
			continue
		}
		rests, err := os.ReadDir(filepath.Join(m.root, p.Name()))
		if err != nil {
			continue
		}
		for _, r := range rests {
			if !r.IsDir() {
				continue
			}
			key, err := hashkey.Parse(p.Name() + r.Name())
			if err != nil {
				continue
			}
			path := filepath.Join(m.root, p.Name(), r.Name())
			stat, err := r.Info()
			if err != nil {
				continue
			}
			infos = append(infos, Info{
				Key:     key,
				Path:    path,
				Size:    dirSize(path),
				ModTime: stat.ModTime(),
			})
		}
	}
	return infos, nil
}

// Prune removes task directories the keep predicate rejects, typically
// those no longer referenced by any cache entry. Returns how many were
// removed.
func (m *Manager) Prune(keep func(hashkey.Key) bool) (int, error) {
	infos, err := m.List()
	if err != nil {
		return 0, err
	}

	removed := 0
	for _, info := range infos {
		if keep != nil && keep(info.Key) {
			continue
		}
		if err := m.Remove(info.Key); err != nil {
			return removed, err
		}
		removed++
	}
	return removed, nil
}

// Clean removes the entire work root.
func (m *Manager) Clean() error {
	if err := os.RemoveAll(m.root); err != nil {
		return fmt.Errorf("failed to clean work root: %w", err)
	}
	return nil
}

func dirSize(path string) int64 {
	var total int64
	filepath.WalkDir(path, func(_ string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return nil
		}
		if info, err := d.Info(); err == nil {
			total += info.Size()
		}
		return nil
	})
	return total
}
