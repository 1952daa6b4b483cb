package journal

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// BeginRun opens a run row in "running" status. Idempotent for the same ID.
func (j *SQLiteJournal) BeginRun(ctx context.Context, runID string, startedAt time.Time) error {
	_, err := j.db.ExecContext(ctx, `
		INSERT INTO runs (id, started_at, status)
		VALUES (?, ?, 'running')
		ON CONFLICT(id) DO UPDATE SET
			started_at = excluded.started_at,
			status = 'running'
	`, runID, startedAt.UTC())
	if err != nil {
		return fmt.Errorf("failed to begin run: %w", err)
	}
	return nil
}

// FinishRun closes a run row with its terminal status and tallies.
func (j *SQLiteJournal) FinishRun(ctx context.Context, runID, status string, runErr error, counts RunCounts) error {
	errorStr := ""
	if runErr != nil {
		errorStr = runErr.Error()
	}

	res, err := j.db.ExecContext(ctx, `
		UPDATE runs
		SET finished_at = ?, status = ?, error = ?, completed = ?, cached = ?, failed = ?
		WHERE id = ?
	`, time.Now().UTC(), status, errorStr, counts.Completed, counts.Cached, counts.Failed, runID)
	if err != nil {
		return fmt.Errorf("failed to finish run: %w", err)
	}

	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("run not found: %s", runID)
	}
	return nil
}

// RecordTask appends one task transition to the run's history.
func (j *SQLiteJournal) RecordTask(ctx context.Context, rec TaskRecord) error {
	_, err := j.db.ExecContext(ctx, `
		INSERT INTO task_records (run_id, task_id, stage, fire_index, hash_key, attempt, event, detail, timestamp)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, rec.RunID, rec.TaskID, rec.Stage, rec.FireIndex, rec.Key, rec.Attempt, rec.Event, rec.Detail, rec.Timestamp.UTC())
	if err != nil {
		return fmt.Errorf("failed to record task event: %w", err)
	}
	return nil
}

// ListRuns returns all runs, most recent first.
func (j *SQLiteJournal) ListRuns(ctx context.Context) ([]RunRecord, error) {
	rows, err := j.db.QueryContext(ctx, `
		SELECT id, started_at, finished_at, status, error, completed, cached, failed
		FROM runs
		ORDER BY started_at DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	defer rows.Close()

	var runs []RunRecord
	for rows.Next() {
		var r RunRecord
		var finished sql.NullTime
		var errorStr sql.NullString

		if err := rows.Scan(&r.ID, &r.StartedAt, &finished, &r.Status, &errorStr, &r.Completed, &r.Cached, &r.Failed); err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		if finished.Valid {
			r.FinishedAt = finished.Time
		}
		if errorStr.Valid {
			r.Error = errorStr.String
		}
		runs = append(runs, r)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating runs: %w", err)
	}

	return runs, nil
}

// TaskHistory returns all task transitions for a run in arrival order.
func (j *SQLiteJournal) TaskHistory(ctx context.Context, runID string) ([]TaskRecord, error) {
	rows, err := j.db.QueryContext(ctx, `
		SELECT run_id, task_id, stage, fire_index, hash_key, attempt, event, detail, timestamp
		FROM task_records
		WHERE run_id = ?
		ORDER BY id
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to query task history: %w", err)
	}
	defer rows.Close()

	var records []TaskRecord
	for rows.Next() {
		var rec TaskRecord
		var detail sql.NullString

		if err := rows.Scan(&rec.RunID, &rec.TaskID, &rec.Stage, &rec.FireIndex, &rec.Key, &rec.Attempt, &rec.Event, &detail, &rec.Timestamp); err != nil {
			return nil, fmt.Errorf("failed to scan task record: %w", err)
		}
		if detail.Valid {
			rec.Detail = detail.String
		}
		records = append(records, rec)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating task records: %w", err)
	}

	return records, nil
}
