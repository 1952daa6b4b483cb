package journal

import (
	"context"
)

// initSchema creates all required tables if they don't exist.
func (j *SQLiteJournal) initSchema(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS runs (
		id TEXT PRIMARY KEY,
		started_at DATETIME NOT NULL,
		finished_at DATETIME,
		status TEXT NOT NULL,
		error TEXT,
		completed INTEGER NOT NULL DEFAULT 0,
		cached INTEGER NOT NULL DEFAULT 0,
		failed INTEGER NOT NULL DEFAULT 0
	);

	CREATE TABLE IF NOT EXISTS task_records (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		run_id TEXT NOT NULL,
		task_id TEXT NOT NULL,
		stage TEXT NOT NULL,
		fire_index INTEGER NOT NULL,
		hash_key TEXT NOT NULL,
		attempt INTEGER NOT NULL,
		event TEXT NOT NULL,
		detail TEXT,
		timestamp DATETIME NOT NULL,
		FOREIGN KEY (run_id) REFERENCES runs(id) ON DELETE CASCADE
	);

	CREATE INDEX IF NOT EXISTS idx_task_records_run_timestamp
		ON task_records(run_id, timestamp);
	`

	_, err := j.db.ExecContext(ctx, schema)
	return err
}
