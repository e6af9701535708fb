// Package db provides structured access and database migrations for the SQLite export ledger.
package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
)

// DB wraps the SQLite database connection
type DB struct {
	*sql.DB
	path string
}

// Export is one ledger row. A run attempt has at most one row.
type Export struct {
	ID         string
	Repository string
	RunID      int64
	RunAttempt int
	Result     string
	Spans      int
	Error      string
	CreatedAt  time.Time
}

// New creates a new database connection
func New(dbPath string) (*DB, error) {
	// Ensure directory exists
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create db directory: %w", err)
	}

	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// SQLite allows a single writer.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &DB{
		DB:   db,
		path: dbPath,
	}, nil
}

// Migrate runs database migrations
func (db *DB) Migrate() error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS exports (
			id TEXT PRIMARY KEY,
			repository TEXT NOT NULL,
			run_id INTEGER NOT NULL,
			run_attempt INTEGER NOT NULL DEFAULT 1,
			result TEXT NOT NULL,
			spans INTEGER NOT NULL DEFAULT 0,
			error TEXT,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			UNIQUE (repository, run_id, run_attempt)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_exports_created ON exports(created_at)`,
	}

	for _, migration := range migrations {
		if _, err := db.Exec(migration); err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}
	}

	return nil
}

// RecordExport stores the outcome of an export attempt, replacing an earlier row for the same
// run attempt. It returns the row ID.
func (db *DB) RecordExport(ctx context.Context, e Export) (string, error) {
	if e.ID == "" {
		e.ID = uuid.New().String()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}

	var id string
	err := db.QueryRowContext(ctx, `
		INSERT INTO exports (id, repository, run_id, run_attempt, result, spans, error, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (repository, run_id, run_attempt) DO UPDATE SET
			result = excluded.result,
			spans = excluded.spans,
			error = excluded.error,
			created_at = excluded.created_at
		RETURNING id`,
		e.ID, e.Repository, e.RunID, e.RunAttempt, e.Result, e.Spans, nullString(e.Error), e.CreatedAt,
	).Scan(&id)
	if err != nil {
		return "", fmt.Errorf("failed to record export: %w", err)
	}
	return id, nil
}

// HasExport reports whether the run attempt already reached the backend, fully or partially.
func (db *DB) HasExport(ctx context.Context, repository string, runID int64, attempt int) (bool, error) {
	var result string
	err := db.QueryRowContext(ctx,
		`SELECT result FROM exports WHERE repository = ? AND run_id = ? AND run_attempt = ?`,
		repository, runID, attempt,
	).Scan(&result)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to query export: %w", err)
	}
	return result == "success" || result == "partial", nil
}

// ListExports returns the most recent ledger rows first.
func (db *DB) ListExports(ctx context.Context, limit int) ([]Export, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT id, repository, run_id, run_attempt, result, spans, COALESCE(error, ''), created_at
		FROM exports ORDER BY created_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list exports: %w", err)
	}
	defer rows.Close()

	var exports []Export
	for rows.Next() {
		var e Export
		if err := rows.Scan(&e.ID, &e.Repository, &e.RunID, &e.RunAttempt, &e.Result, &e.Spans, &e.Error, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan export: %w", err)
		}
		exports = append(exports, e)
	}
	return exports, rows.Err()
}

// Close closes the database connection
func (db *DB) Close() error {
	return db.DB.Close()
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
