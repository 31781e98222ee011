// internal/history/db.go
// Package history persists one row per render request in SQLite.
package history

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// Request outcomes.
const (
	StateSuccess = "success"
	StateInvalid = "invalid"
	StateFailure = "failure"
	StateTimeout = "timeout"
)

// ErrNotFound is returned by Get for an unknown request id.
var ErrNotFound = errors.New("history record not found")

// Record is a single render request.
type Record struct {
	ID         int64     `json:"id"`
	RequestID  string    `json:"request_id"`
	Source     string    `json:"source"` // http, mcp or cli
	Client     string    `json:"client,omitempty"`
	Expression string    `json:"expression"`
	Normalized string    `json:"normalized,omitempty"`
	State      string    `json:"state"`
	Error      string    `json:"error,omitempty"`
	Frames     int       `json:"frames"`
	Bytes      int64     `json:"bytes"`
	DurationMs int64     `json:"duration_ms"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
}

// Stats summarises the stored history.
type Stats struct {
	Total         int64            `json:"total"`
	ByState       map[string]int64 `json:"by_state"`
	TotalBytes    int64            `json:"total_bytes"`
	AvgDurationMs float64          `json:"avg_duration_ms"`
}

// DB wraps the SQLite database connection for render history.
type DB struct {
	db *sql.DB
}

const schema = `
CREATE TABLE IF NOT EXISTS schema_version (
    version INTEGER NOT NULL,
    applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS render_history (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    request_id TEXT NOT NULL,
    source TEXT NOT NULL,
    client TEXT,
    expression TEXT NOT NULL,
    normalized TEXT,
    state TEXT NOT NULL,
    error TEXT,
    frames INTEGER NOT NULL DEFAULT 0,
    bytes INTEGER NOT NULL DEFAULT 0,
    duration_ms INTEGER NOT NULL,
    started_at DATETIME NOT NULL,
    finished_at DATETIME NOT NULL,
    created_at DATETIME DEFAULT CURRENT_TIMESTAMP
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_render_history_request ON render_history(request_id);
CREATE INDEX IF NOT EXISTS idx_render_history_state ON render_history(state);
CREATE INDEX IF NOT EXISTS idx_render_history_started ON render_history(started_at);
`

// Open opens or creates a history database at the given path.
func Open(path string) (*DB, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("creating database directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	// sqlite allows a single writer
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("connecting to database: %w", err)
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("initializing schema: %w", err)
	}

	var count int
	if err := db.QueryRow("SELECT COUNT(*) FROM schema_version").Scan(&count); err != nil {
		db.Close()
		return nil, fmt.Errorf("reading schema version: %w", err)
	}
	if count == 0 {
		if _, err := db.Exec("INSERT INTO schema_version (version) VALUES (1)"); err != nil {
			db.Close()
			return nil, fmt.Errorf("writing schema version: %w", err)
		}
	}

	return &DB{db: db}, nil
}

// Close closes the database connection.
func (d *DB) Close() error {
	return d.db.Close()
}

// Record stores a render record and returns its row id. Times are stored
// in UTC.
func (d *DB) Record(rec Record) (int64, error) {
	if rec.RequestID == "" {
		return 0, fmt.Errorf("recording render: request id is required")
	}
	if rec.DurationMs == 0 && !rec.FinishedAt.IsZero() {
		rec.DurationMs = rec.FinishedAt.Sub(rec.StartedAt).Milliseconds()
	}

	result, err := d.db.Exec(`
		INSERT INTO render_history
		(request_id, source, client, expression, normalized, state, error,
		 frames, bytes, duration_ms, started_at, finished_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.RequestID, rec.Source, rec.Client, rec.Expression, rec.Normalized,
		rec.State, rec.Error, rec.Frames, rec.Bytes, rec.DurationMs,
		rec.StartedAt.UTC(), rec.FinishedAt.UTC(),
	)
	if err != nil {
		return 0, fmt.Errorf("recording render: %w", err)
	}
	return result.LastInsertId()
}

const selectColumns = `SELECT id, request_id, source, client, expression, normalized, state, error,
	frames, bytes, duration_ms, started_at, finished_at FROM render_history`

// List returns the newest records first, optionally filtered by state.
func (d *DB) List(state string, limit int) ([]Record, error) {
	query := selectColumns + " WHERE 1=1"
	var args []any

	if state != "" {
		query += " AND state = ?"
		args = append(args, state)
	}

	query += " ORDER BY started_at DESC, id DESC"
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := d.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying history: %w", err)
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		r, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, r)
	}
	return records, rows.Err()
}

// Get returns the record for a request id.
func (d *DB) Get(requestID string) (*Record, error) {
	row := d.db.QueryRow(selectColumns+" WHERE request_id = ?", requestID)
	r, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &r, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(s scanner) (Record, error) {
	var r Record
	var client, normalized, errStr sql.NullString
	err := s.Scan(&r.ID, &r.RequestID, &r.Source, &client, &r.Expression, &normalized,
		&r.State, &errStr, &r.Frames, &r.Bytes, &r.DurationMs, &r.StartedAt, &r.FinishedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return r, err
	}
	if err != nil {
		return r, fmt.Errorf("scanning record: %w", err)
	}
	r.Client = client.String
	r.Normalized = normalized.String
	r.Error = errStr.String
	return r, nil
}

// Stats aggregates the whole table.
func (d *DB) Stats() (Stats, error) {
	st := Stats{ByState: map[string]int64{}}

	var avg sql.NullFloat64
	var totalBytes sql.NullInt64
	err := d.db.QueryRow(
		"SELECT COUNT(*), SUM(bytes), AVG(duration_ms) FROM render_history",
	).Scan(&st.Total, &totalBytes, &avg)
	if err != nil {
		return st, fmt.Errorf("querying stats: %w", err)
	}
	st.TotalBytes = totalBytes.Int64
	st.AvgDurationMs = avg.Float64

	rows, err := d.db.Query("SELECT state, COUNT(*) FROM render_history GROUP BY state")
	if err != nil {
		return st, fmt.Errorf("querying stats: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var state string
		var n int64
		if err := rows.Scan(&state, &n); err != nil {
			return st, fmt.Errorf("scanning stats: %w", err)
		}
		st.ByState[state] = n
	}
	return st, rows.Err()
}

// Cleanup removes records older than the specified number of days.
func (d *DB) Cleanup(retentionDays int) (int64, error) {
	cutoff := time.Now().UTC().AddDate(0, 0, -retentionDays)
	result, err := d.db.Exec(
		"DELETE FROM render_history WHERE started_at < ?", cutoff,
	)
	if err != nil {
		return 0, fmt.Errorf("cleaning up history: %w", err)
	}
	return result.RowsAffected()
}
