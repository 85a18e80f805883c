// Package database keeps a SQLite journal of watch runs.
package database

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// Run is one journal row.
type Run struct {
	ID            string
	StartedAt     time.Time
	Duration      time.Duration
	AuthPath      string
	FinalState    string
	Previous      int
	Current       int
	Changed       bool
	Delivered     bool
	Attempts      int
	ErrorCategory string
	Error         string
	Snapshot      string
}

// Success reports whether the run finished without a run error.
func (r Run) Success() bool {
	return r.ErrorCategory == ""
}

// Journal is the run journal.
type Journal struct {
	conn *sql.DB
}

// Open opens (and if needed creates) the journal at dbPath.
func Open(dbPath string) (*Journal, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	conn, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// One writer per process; the lock marker keeps it to one process.
	conn.SetMaxOpenConns(1)

	if _, err := conn.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to set busy timeout: %w", err)
	}

	j := &Journal{conn: conn}
	if err := j.InitSchema(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return j, nil
}

// Close closes the database connection
func (j *Journal) Close() error {
	return j.conn.Close()
}

// InitSchema creates the tables if they don't exist
func (j *Journal) InitSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS runs (
		id TEXT PRIMARY KEY,
		started_at TIMESTAMP NOT NULL,
		duration_ms INTEGER NOT NULL,
		auth_path TEXT,
		final_state TEXT,
		previous_count INTEGER NOT NULL DEFAULT 0,
		current_count INTEGER NOT NULL DEFAULT 0,
		changed BOOLEAN NOT NULL DEFAULT 0,
		delivered BOOLEAN NOT NULL DEFAULT 0,
		attempts INTEGER NOT NULL DEFAULT 0,
		error_category TEXT,
		error TEXT,
		snapshot TEXT,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_runs_started_at ON runs(started_at);
	`

	_, err := j.conn.Exec(schema)
	return err
}

// Record stores a finished run.
func (j *Journal) Record(r Run) error {
	query := `
		INSERT INTO runs (id, started_at, duration_ms, auth_path, final_state,
			previous_count, current_count, changed, delivered, attempts,
			error_category, error, snapshot)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := j.conn.Exec(query,
		r.ID,
		r.StartedAt.UTC(),
		r.Duration.Milliseconds(),
		r.AuthPath,
		r.FinalState,
		r.Previous,
		r.Current,
		r.Changed,
		r.Delivered,
		r.Attempts,
		r.ErrorCategory,
		r.Error,
		r.Snapshot,
	)
	if err != nil {
		return fmt.Errorf("failed to record run: %w", err)
	}
	return nil
}

// LastRuns returns up to n runs, newest first.
func (j *Journal) LastRuns(n int) ([]Run, error) {
	query := `
		SELECT id, started_at, duration_ms, auth_path, final_state,
			previous_count, current_count, changed, delivered, attempts,
			error_category, error, snapshot
		FROM runs
		ORDER BY started_at DESC, created_at DESC
		LIMIT ?
	`

	rows, err := j.conn.Query(query, n)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var r Run
		var durationMS int64
		var authPath, finalState, category, errText, snapshot sql.NullString
		err := rows.Scan(
			&r.ID,
			&r.StartedAt,
			&durationMS,
			&authPath,
			&finalState,
			&r.Previous,
			&r.Current,
			&r.Changed,
			&r.Delivered,
			&r.Attempts,
			&category,
			&errText,
			&snapshot,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		r.Duration = time.Duration(durationMS) * time.Millisecond
		r.AuthPath = authPath.String
		r.FinalState = finalState.String
		r.ErrorCategory = category.String
		r.Error = errText.String
		r.Snapshot = snapshot.String
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// Prune deletes runs older than cutoff and returns how many were removed.
func (j *Journal) Prune(cutoff time.Time) (int64, error) {
	result, err := j.conn.Exec("DELETE FROM runs WHERE started_at < ?", cutoff.UTC())
	if err != nil {
		return 0, fmt.Errorf("failed to prune runs: %w", err)
	}
	return result.RowsAffected()
}
