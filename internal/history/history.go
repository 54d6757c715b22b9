// Package history keeps an audit trail of deployment requests in SQLite.
package history

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

// History manages the deployment audit database.
type History struct {
	db *sql.DB
}

// New opens (and if needed creates) the audit database.
func New(dbPath string) (*History, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Configure connection pool for SQLite (single writer)
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	h := &History{db: db}

	if err := h.initSchema(); err != nil {
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return h, nil
}

// Close closes the database connection.
func (h *History) Close() error {
	return h.db.Close()
}

func (h *History) initSchema() error {
	_, err := h.db.Exec(`
		CREATE TABLE IF NOT EXISTS deployments (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			subdomain TEXT NOT NULL,
			project_name TEXT NOT NULL,
			app_name TEXT NOT NULL,
			project_uuid TEXT,
			app_uuid TEXT,
			host_port INTEGER,
			status TEXT NOT NULL,
			error_message TEXT,
			created_at TEXT NOT NULL
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create table: %w", err)
	}

	_, err = h.db.Exec(`
		CREATE INDEX IF NOT EXISTS idx_subdomain_created
		ON deployments(subdomain, created_at DESC)
	`)
	if err != nil {
		return fmt.Errorf("failed to create index: %w", err)
	}

	return nil
}

// Record inserts one deployment request and returns its row ID.
func (h *History) Record(ctx context.Context, rec *Record) (int64, error) {
	result, err := h.db.ExecContext(ctx, `
		INSERT INTO deployments
		(subdomain, project_name, app_name, project_uuid, app_uuid,
		 host_port, status, error_message, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		rec.Subdomain,
		rec.ProjectName,
		rec.AppName,
		rec.ProjectUUID,
		rec.AppUUID,
		rec.HostPort,
		rec.Status,
		rec.ErrorMessage,
		time.Now().UTC().Format(time.RFC3339),
	)
	if err != nil {
		return 0, fmt.Errorf("failed to insert deployment record: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to get last insert ID: %w", err)
	}

	return id, nil
}

// LatestBySubdomain returns the most recent deployment request for a
// subdomain, or nil when there is none.
func (h *History) LatestBySubdomain(ctx context.Context, subdomain string) (*Record, error) {
	row := h.db.QueryRowContext(ctx, `
		SELECT id, subdomain, project_name, app_name, project_uuid, app_uuid,
		       host_port, status, error_message, created_at
		FROM deployments
		WHERE subdomain = ?
		ORDER BY id DESC
		LIMIT 1
	`, subdomain)

	rec, err := scanRecord(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query latest deployment: %w", err)
	}

	return rec, nil
}

// Recent returns the most recent deployment requests, newest first.
func (h *History) Recent(ctx context.Context, limit int) ([]Record, error) {
	rows, err := h.db.QueryContext(ctx, `
		SELECT id, subdomain, project_name, app_name, project_uuid, app_uuid,
		       host_port, status, error_message, created_at
		FROM deployments
		ORDER BY id DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query recent deployments: %w", err)
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan deployment record: %w", err)
		}
		records = append(records, *rec)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}

	return records, nil
}

// scanner is an interface that both *sql.Row and *sql.Rows implement
type scanner interface {
	Scan(dest ...interface{}) error
}

func scanRecord(s scanner) (*Record, error) {
	var rec Record
	var createdAtStr string

	err := s.Scan(
		&rec.ID,
		&rec.Subdomain,
		&rec.ProjectName,
		&rec.AppName,
		&rec.ProjectUUID,
		&rec.AppUUID,
		&rec.HostPort,
		&rec.Status,
		&rec.ErrorMessage,
		&createdAtStr,
	)
	if err != nil {
		return nil, err
	}

	createdAt, err := time.Parse(time.RFC3339, createdAtStr)
	if err != nil {
		return nil, fmt.Errorf("failed to parse created_at timestamp: %w", err)
	}
	rec.CreatedAt = createdAt

	return &rec, nil
}
