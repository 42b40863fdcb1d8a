// Package database keeps the SQLite journal of generated previews.
package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

var ErrRunNotFound = errors.New("preview run not found")

// DB wraps sql.DB for the run journal.
type DB struct {
	*sql.DB
}

// Run is one journaled preview generation.
type Run struct {
	ID         string    `json:"id"`
	CustomerID string    `json:"customer_id"`
	JobIDs     []string  `json:"job_ids"`
	ItemCount  int       `json:"item_count"`
	GapCount   int       `json:"gap_count"`
	Blocked    bool      `json:"blocked"`
	Subtotal   float64   `json:"subtotal"`
	Digest     string    `json:"digest"`
	CreatedAt  time.Time `json:"created_at"`
}

// NewDB opens database at path and runs migrations.
func NewDB(path string) (*DB, error) {
	dsn := path
	if !strings.HasPrefix(path, "file:") && path != ":memory:" {
		dsn = fmt.Sprintf("file:%s?_journal_mode=WAL&_busy_timeout=5000", path)
	}
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if path == ":memory:" || strings.Contains(path, "mode=memory") {
		// Each connection to an in-memory database sees its own empty database.
		db.SetMaxOpenConns(1)
	}
	if err := createTables(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &DB{db}, nil
}

func createTables(db *sql.DB) error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS preview_runs (
            id TEXT PRIMARY KEY,
            customer_id TEXT NOT NULL,
            job_key TEXT NOT NULL,
            job_ids TEXT NOT NULL,
            item_count INTEGER NOT NULL,
            gap_count INTEGER NOT NULL,
            blocked BOOLEAN NOT NULL DEFAULT 0,
            subtotal REAL NOT NULL,
            digest TEXT NOT NULL,
            created_at DATETIME NOT NULL
        )`,
		`CREATE INDEX IF NOT EXISTS idx_preview_runs_customer ON preview_runs(customer_id, created_at)`,
		`CREATE INDEX IF NOT EXISTS idx_preview_runs_job_key ON preview_runs(customer_id, job_key, created_at)`,
	}

	for _, q := range queries {
		if _, err := db.Exec(q); err != nil {
			return fmt.Errorf("exec migration %s: %w", trimSQL(q), err)
		}
	}
	return nil
}

// JobKey is the order-independent identity of a set of jobs.
func JobKey(jobIDs []string) string {
	ids := append([]string(nil), jobIDs...)
	sort.Strings(ids)
	return strings.Join(ids, ",")
}

// RecordRun appends a run to the journal. CreatedAt defaults to now.
func (db *DB) RecordRun(ctx context.Context, run *Run) error {
	if run.CreatedAt.IsZero() {
		run.CreatedAt = time.Now().UTC()
	}
	_, err := db.ExecContext(ctx, `
        INSERT INTO preview_runs (id, customer_id, job_key, job_ids, item_count, gap_count, blocked, subtotal, digest, created_at)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID, run.CustomerID, JobKey(run.JobIDs), strings.Join(run.JobIDs, ","),
		run.ItemCount, run.GapCount, run.Blocked, run.Subtotal, run.Digest, run.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert preview run %s: %w", run.ID, err)
	}
	return nil
}

// ListRuns returns a customer's most recent runs, newest first.
func (db *DB) ListRuns(ctx context.Context, customerID string, limit int) ([]Run, error) {
	if limit <= 0 || limit > 500 {
		limit = 50
	}
	rows, err := db.QueryContext(ctx, `
        SELECT id, customer_id, job_ids, item_count, gap_count, blocked, subtotal, digest, created_at
        FROM preview_runs
        WHERE customer_id = ?
        ORDER BY created_at DESC, rowid DESC
        LIMIT ?`, customerID, limit)
	if err != nil {
		return nil, fmt.Errorf("query preview runs: %w", err)
	}
	defer rows.Close()

	runs := make([]Run, 0)
	for rows.Next() {
		var (
			r      Run
			jobIDs string
		)
		if err := rows.Scan(&r.ID, &r.CustomerID, &jobIDs, &r.ItemCount, &r.GapCount, &r.Blocked, &r.Subtotal, &r.Digest, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan preview run: %w", err)
		}
		if jobIDs != "" {
			r.JobIDs = strings.Split(jobIDs, ",")
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// LastDigest returns the digest of the latest run over the same set of jobs.
func (db *DB) LastDigest(ctx context.Context, customerID, jobKey string) (string, error) {
	var digest string
	err := db.QueryRowContext(ctx, `
        SELECT digest FROM preview_runs
        WHERE customer_id = ? AND job_key = ?
        ORDER BY created_at DESC, rowid DESC
        LIMIT 1`, customerID, jobKey).Scan(&digest)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrRunNotFound
	}
	if err != nil {
		return "", fmt.Errorf("query last digest: %w", err)
	}
	return digest, nil
}

func trimSQL(s string) string {
	s = strings.TrimSpace(s)
	if len(s) > 60 {
		return s[:60] + "..."
	}
	return s
}
