// Package history archives terminal job outcomes and engine events in
// SQLite. The queue's durable state lives in the snapshot file; the
// archive only records what already happened.
package history

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"ytqueue/internal/domain"
)

const schema = `
CREATE TABLE IF NOT EXISTS outcomes (
    id          INTEGER PRIMARY KEY AUTOINCREMENT,
    url         TEXT NOT NULL,
    media_kind  TEXT NOT NULL,
    quality     TEXT NOT NULL,
    outcome     TEXT NOT NULL,
    reason      TEXT,
    retry_count INTEGER NOT NULL DEFAULT 0,
    finished_at DATETIME DEFAULT CURRENT_TIMESTAMP
);
CREATE INDEX IF NOT EXISTS idx_outcomes_outcome ON outcomes(outcome);

CREATE TABLE IF NOT EXISTS events (
    id         INTEGER PRIMARY KEY AUTOINCREMENT,
    level      TEXT NOT NULL,
    message    TEXT NOT NULL,
    created_at DATETIME DEFAULT CURRENT_TIMESTAMP
);
`

// Archive implements domain.Archiver using SQLite.
type Archive struct {
	db *sql.DB
}

// New opens (and if needed initializes) the archive at dbPath.
func New(dbPath string) (*Archive, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, err
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, err
	}
	return &Archive{db: db}, nil
}

// Close closes the database connection.
func (a *Archive) Close() error {
	return a.db.Close()
}

// RecordOutcome appends one terminal outcome for a job.
func (a *Archive) RecordOutcome(ctx context.Context, job domain.Job, outcome, reason string) error {
	_, err := a.db.ExecContext(ctx,
		`INSERT INTO outcomes (url, media_kind, quality, outcome, reason, retry_count, finished_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		job.URL, string(job.MediaKind), job.Quality, outcome, reason, job.RetryCount, time.Now(),
	)
	return err
}

// AddEvent appends one engine event.
func (a *Archive) AddEvent(ctx context.Context, level, message string) error {
	_, err := a.db.ExecContext(ctx,
		`INSERT INTO events (level, message, created_at) VALUES (?, ?, ?)`,
		level, message, time.Now(),
	)
	return err
}

// Outcome is one archived terminal result.
type Outcome struct {
	ID         int64     `json:"id"`
	URL        string    `json:"url"`
	MediaKind  string    `json:"media_kind"`
	Quality    string    `json:"quality"`
	Outcome    string    `json:"outcome"`
	Reason     string    `json:"reason,omitempty"`
	RetryCount int       `json:"retry_count"`
	FinishedAt time.Time `json:"finished_at"`
}

// Recent returns the latest outcomes, newest first.
func (a *Archive) Recent(ctx context.Context, limit int) ([]Outcome, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := a.db.QueryContext(ctx,
		`SELECT id, url, media_kind, quality, outcome, COALESCE(reason, ''), retry_count, finished_at
		 FROM outcomes ORDER BY id DESC LIMIT ?`, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Outcome
	for rows.Next() {
		var o Outcome
		if err := rows.Scan(&o.ID, &o.URL, &o.MediaKind, &o.Quality, &o.Outcome, &o.Reason, &o.RetryCount, &o.FinishedAt); err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

// Totals returns the lifetime completed and failed counts, used to seed
// the stats tracker on startup.
func (a *Archive) Totals(ctx context.Context) (completed, failed int64, err error) {
	row := a.db.QueryRowContext(ctx, `
SELECT
    COALESCE(SUM(CASE WHEN outcome = 'complete' THEN 1 ELSE 0 END), 0),
    COALESCE(SUM(CASE WHEN outcome = 'failed' THEN 1 ELSE 0 END), 0)
FROM outcomes`)
	err = row.Scan(&completed, &failed)
	return completed, failed, err
}
