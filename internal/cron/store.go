package cron

import (
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite" // pure Go SQLite driver
)

// Store persists job execution history to a SQLite database file, replacing
// the newline-delimited-JSON run log with a queryable table.
type Store struct {
	db *sql.DB
}

// OpenStore opens (creating if absent) a SQLite database at path and ensures
// its schema exists.
func OpenStore(path string) (*Store, error) {
	db, err := sql.Open("sqlite", fmt.Sprintf("file:%s?mode=rwc", path))
	if err != nil {
		return nil, fmt.Errorf("cron: open store %s: %w", path, err)
	}
	if _, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS runs (
			job_id     TEXT NOT NULL,
			ran_at     TEXT NOT NULL,
			succeeded  INTEGER NOT NULL,
			error      TEXT
		)`); err != nil {
		db.Close()
		return nil, fmt.Errorf("cron: create schema: %w", err)
	}
	if _, err := db.Exec(`CREATE INDEX IF NOT EXISTS idx_runs_job_id ON runs(job_id, ran_at)`); err != nil {
		db.Close()
		return nil, fmt.Errorf("cron: create index: %w", err)
	}
	return &Store{db: db}, nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// RecordRun appends one execution record.
func (s *Store) RecordRun(run Run) error {
	succeeded := 0
	if run.Succeeded {
		succeeded = 1
	}
	_, err := s.db.Exec(
		`INSERT INTO runs (job_id, ran_at, succeeded, error) VALUES (?, ?, ?, ?)`,
		run.JobID, run.RanAt.UTC().Format(time.RFC3339Nano), succeeded, run.Error,
	)
	if err != nil {
		return fmt.Errorf("cron: record run for job %s: %w", run.JobID, err)
	}
	return nil
}

// ListRuns returns up to limit most recent runs for jobID, oldest first. A
// non-positive limit returns every recorded run.
func (s *Store) ListRuns(jobID string, limit int) ([]Run, error) {
	query := `SELECT job_id, ran_at, succeeded, error FROM runs WHERE job_id = ? ORDER BY ran_at DESC`
	args := []any{jobID}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}
	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("cron: list runs for job %s: %w", jobID, err)
	}
	defer rows.Close()

	var out []Run
	for rows.Next() {
		var r Run
		var ranAt string
		var succeeded int
		var errText sql.NullString
		if err := rows.Scan(&r.JobID, &ranAt, &succeeded, &errText); err != nil {
			return nil, fmt.Errorf("cron: scan run row: %w", err)
		}
		r.RanAt, _ = time.Parse(time.RFC3339Nano, ranAt)
		r.Succeeded = succeeded != 0
		r.Error = errText.String
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	// Rows came back newest-first; reverse to oldest-first to match
	// GetJobRuns' existing ordering contract.
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, nil
}
