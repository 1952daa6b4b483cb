// Package cache persists task results keyed by hash key, so a later run
// (or a later firing in the same run) can skip execution when an identical
// task already completed. Entries live in an embedded badger keyspace under
// the pipeline's cache directory.
package cache

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/dgraph-io/badger/v4"

	"github.com/flowrun-io/flowrun/internal/hashkey"
	"github.com/flowrun-io/flowrun/internal/values"
)

// entryPrefix namespaces result entries inside the keyspace.
const entryPrefix = "entry/"

// Entry is one cached task result.
type Entry struct {
	Key       hashkey.Key
	Stage     string
	TaskID    string
	ExitCode  int
	WorkDir   string
	Outputs   []values.Output
	Runtime   time.Duration
	CreatedAt time.Time
}

// wireEntry is the JSON form an Entry takes in the keyspace. Outputs keep
// the values wire encoding so int64 and file identity modes survive.
type wireEntry struct {
	Key       string          `json:"key"`
	Stage     string          `json:"stage"`
	TaskID    string          `json:"task_id"`
	ExitCode  int             `json:"exit_code"`
	WorkDir   string          `json:"work_dir,omitempty"`
	Outputs   json.RawMessage `json:"outputs"`
	RuntimeMS int64           `json:"runtime_ms"`
	CreatedAt time.Time       `json:"created_at"`
}

// Options configures a cache store.
type Options struct {
	// Path is the directory for the keyspace. Required unless InMemory.
	Path string

	// InMemory keeps the keyspace off disk. Useful for testing.
	InMemory bool

	// SyncWrites makes each Record durable before returning.
	SyncWrites bool

	// Logger receives consistency warnings. Defaults to slog.Default().
	Logger *slog.Logger
}

// Store is a persistent task-result cache. Safe for concurrent use.
type Store struct {
	db     *badger.DB
	logger *slog.Logger
}

// Open opens (creating if needed) the cache keyspace.
func Open(opts Options) (*Store, error) {
	if !opts.InMemory && opts.Path == "" {
		return nil, fmt.Errorf("cache path is required for a persistent store")
	}

	var bopts badger.Options
	if opts.InMemory {
		bopts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if err := os.MkdirAll(opts.Path, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create cache directory %s: %w", opts.Path, err)
		}
		bopts = badger.DefaultOptions(opts.Path)
	}
	bopts = bopts.WithSyncWrites(opts.SyncWrites)
	bopts = bopts.WithLogger(nil) // keyspace internals stay quiet

	db, err := badger.Open(bopts)
	if err != nil {
		return nil, fmt.Errorf("failed to open cache keyspace: %w", err)
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{db: db, logger: logger}, nil
}

// Close flushes and closes the keyspace.
func (s *Store) Close() error {
	return s.db.Close()
}

// Lookup returns the entry for key, or ok=false on a miss. An entry whose
// file outputs no longer exist on disk is treated as a miss: a warning is
// logged, the stale entry is dropped, and the caller re-executes.
func (s *Store) Lookup(key hashkey.Key) (*Entry, bool, error) {
	var raw []byte
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(storeKey(key))
		if err != nil {
			return err
		}
		raw, err = item.ValueCopy(nil)
		return err
	})
	if err == badger.ErrKeyNotFound {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to read cache entry %s: %w", key.Short(), err)
	}

	entry, err := decodeEntry(raw)
	if err != nil {
		// Undecodable entries cannot satisfy anyone; drop and miss.
		s.logger.Warn("dropping undecodable cache entry",
			slog.String("key", key.Short()),
			slog.String("error", err.Error()))
		if derr := s.Invalidate(key); derr != nil {
			return nil, false, derr
		}
		return nil, false, nil
	}

	if missing := firstMissingFile(entry.Outputs); missing != "" {
		s.logger.Warn("cache entry references missing output file, treating as miss",
			slog.String("key", key.Short()),
			slog.String("stage", entry.Stage),
			slog.String("missing", missing))
		if derr := s.Invalidate(key); derr != nil {
			return nil, false, derr
		}
		return nil, false, nil
	}

	return entry, true, nil
}

// Record stores an entry, overwriting any previous result for the same key.
// Re-recording an identical result is a silent no-op; a conflicting result
// logs a consistency warning and the newer entry wins.
func (s *Store) Record(e *Entry) error {
	raw, err := encodeEntry(e)
	if err != nil {
		return err
	}

	return s.db.Update(func(txn *badger.Txn) error {
		item, err := txn.Get(storeKey(e.Key))
		if err == nil {
			prev, verr := item.ValueCopy(nil)
			if verr == nil && conflicting(prev, raw) {
				s.logger.Warn("replacing conflicting cache entry",
					slog.String("key", e.Key.Short()),
					slog.String("stage", e.Stage))
			}
		} else if err != badger.ErrKeyNotFound {
			return fmt.Errorf("failed to read previous cache entry: %w", err)
		}
		return txn.Set(storeKey(e.Key), raw)
	})
}

// Invalidate removes the entry for key. Removing an absent key is a no-op.
func (s *Store) Invalidate(key hashkey.Key) error {
	err := s.db.Update(func(txn *badger.Txn) error {
		return txn.Delete(storeKey(key))
	})
	if err != nil {
		return fmt.Errorf("failed to invalidate cache entry %s: %w", key.Short(), err)
	}
	return nil
}

// Keys lists every cached key, cheapest first by keyspace order.
func (s *Store) Keys() ([]hashkey.Key, error) {
	var keys []hashkey.Key
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false

		it := txn.NewIterator(opts)
		defer it.Close()

		prefix := []byte(entryPrefix)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			hex := string(it.Item().Key()[len(prefix):])
			key, err := hashkey.Parse(hex)
			if err != nil {
				continue // foreign key in the namespace, skip
			}
			keys = append(keys, key)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list cache keys: %w", err)
	}
	return keys, nil
}

// Entries decodes every cached entry. Meant for inspection tooling, not the
// hot path.
func (s *Store) Entries() ([]*Entry, error) {
	var entries []*Entry
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = true

		it := txn.NewIterator(opts)
		defer it.Close()

		prefix := []byte(entryPrefix)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			raw, err := it.Item().ValueCopy(nil)
			if err != nil {
				return err
			}
			entry, err := decodeEntry(raw)
			if err != nil {
				s.logger.Warn("skipping undecodable cache entry",
					slog.String("key", string(it.Item().Key())),
					slog.String("error", err.Error()))
				continue
			}
			entries = append(entries, entry)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list cache entries: %w", err)
	}
	return entries, nil
}

func storeKey(key hashkey.Key) []byte {
	return []byte(entryPrefix + key.String())
}

func encodeEntry(e *Entry) ([]byte, error) {
	outs, err := values.EncodeOutputs(e.Outputs)
	if err != nil {
		return nil, fmt.Errorf("failed to encode outputs for cache entry %s: %w", e.Key.Short(), err)
	}
	return json.Marshal(wireEntry{
		Key:       e.Key.String(),
		Stage:     e.Stage,
		TaskID:    e.TaskID,
		ExitCode:  e.ExitCode,
		WorkDir:   e.WorkDir,
		Outputs:   outs,
		RuntimeMS: e.Runtime.Milliseconds(),
		CreatedAt: e.CreatedAt,
	})
}

func decodeEntry(raw []byte) (*Entry, error) {
	var w wireEntry
	if err := json.Unmarshal(raw, &w); err != nil {
		return nil, fmt.Errorf("failed to parse cache entry: %w", err)
	}
	key, err := hashkey.Parse(w.Key)
	if err != nil {
		return nil, fmt.Errorf("cache entry carries bad key: %w", err)
	}
	outs, err := values.DecodeOutputs(w.Outputs)
	if err != nil {
		return nil, err
	}
	return &Entry{
		Key:       key,
		Stage:     w.Stage,
		TaskID:    w.TaskID,
		ExitCode:  w.ExitCode,
		WorkDir:   w.WorkDir,
		Outputs:   outs,
		Runtime:   time.Duration(w.RuntimeMS) * time.Millisecond,
		CreatedAt: w.CreatedAt,
	}, nil
}

// conflicting reports whether two serialized entries disagree on anything
// that matters for consumers: stage, exit code, work dir, or outputs.
// Timestamps and task IDs are expected to differ between recordings.
func conflicting(prev, next []byte) bool {
	var a, b wireEntry
	if json.Unmarshal(prev, &a) != nil || json.Unmarshal(next, &b) != nil {
		return true
	}
	return a.Stage != b.Stage ||
		a.ExitCode != b.ExitCode ||
		a.WorkDir != b.WorkDir ||
		string(a.Outputs) != string(b.Outputs)
}

// firstMissingFile walks outputs and returns the path of the first file
// reference that no longer resolves, or "" when all files are present.
func firstMissingFile(outs []values.Output) string {
	var walk func(v values.Value) string
	walk = func(v values.Value) string {
		switch tv := v.(type) {
		case *values.FileRef:
			if _, err := os.Stat(tv.Path); err != nil {
				return tv.Path
			}
		case *values.Bag:
			for _, e := range tv.Elements() {
				if p := walk(e); p != "" {
					return p
				}
			}
		case []values.Value:
			for _, e := range tv {
				if p := walk(e); p != "" {
					return p
				}
			}
		}
		return ""
	}
	for _, out := range outs {
		for _, v := range out.Values {
			if p := walk(v); p != "" {
				return p
			}
		}
	}
	return ""
}
