// Package journal records run history to SQLite: one row per run and one row
// per observed task transition. The journal is advisory -- write failures are
// logged and never fail the run.
package journal

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// RunRecord summarizes one pipeline run.
type RunRecord struct {
	ID         string
	StartedAt  time.Time
	FinishedAt time.Time // zero while the run is still open
	Status     string    // "running", "completed", "failed", "cancelled"
	Error      string
	Completed  int
	Cached     int
	Failed     int
}

// TaskRecord is one task transition observed during a run.
type TaskRecord struct {
	RunID     string
	TaskID    string
	Stage     string
	FireIndex int
	Key       string // hex hash key
	Attempt   int
	Event     string // event type, e.g. "task.completed"
	Detail    string // error text, duration, or retry delay
	Timestamp time.Time
}

// RunCounts carries the terminal tallies written when a run closes.
type RunCounts struct {
	Completed int
	Cached    int
	Failed    int
}

// Journal defines the run-history interface.
type Journal interface {
	BeginRun(ctx context.Context, runID string, startedAt time.Time) error
	FinishRun(ctx context.Context, runID, status string, runErr error, counts RunCounts) error
	RecordTask(ctx context.Context, rec TaskRecord) error
	ListRuns(ctx context.Context) ([]RunRecord, error)
	TaskHistory(ctx context.Context, runID string) ([]TaskRecord, error)
	Close() error
}

// SQLiteJournal implements Journal using SQLite.
type SQLiteJournal struct {
	db *sql.DB
}

// Open creates a SQLite-backed journal at the given path.
// Creates parent directories if needed. Enables WAL mode, foreign keys, and
// busy timeout.
func Open(ctx context.Context, dbPath string) (*SQLiteJournal, error) {
	// Create parent directories
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create parent directories: %w", err)
	}

	// Open SQLite with connection string for WAL mode, busy timeout
	// Note: modernc.org/sqlite doesn't support _foreign_keys in connection string
	connStr := fmt.Sprintf("file:%s?_journal_mode=WAL&_busy_timeout=5000&_synchronous=NORMAL", dbPath)
	db, err := sql.Open("sqlite", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	return newJournal(ctx, db)
}

// OpenMemory creates an in-memory journal for testing.
// Uses a shared cache so multiple connections see the same database.
func OpenMemory(ctx context.Context) (*SQLiteJournal, error) {
	connStr := "file::memory:?mode=memory&cache=shared"
	db, err := sql.Open("sqlite", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open memory database: %w", err)
	}

	return newJournal(ctx, db)
}

func newJournal(ctx context.Context, db *sql.DB) (*SQLiteJournal, error) {
	// Enable foreign keys via PRAGMA (required for modernc.org/sqlite)
	if _, err := db.ExecContext(ctx, "PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	// Allow 2 connections: one for primary queries, one for subqueries
	db.SetMaxOpenConns(2)

	j := &SQLiteJournal{db: db}

	if err := j.initSchema(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return j, nil
}

// Close closes the database connection.
func (j *SQLiteJournal) Close() error {
	return j.db.Close()
}
