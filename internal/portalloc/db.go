package portalloc

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

// DBAllocator persists the counter as a single row (id = 1) in a relational
// table and serializes allocations with a write-locking transaction. An
// aborted connection rolls back the uncommitted update and releases the lock,
// so a crash mid-allocation never loses or double-issues a port. This is the
// backend to use when several server instances share one store.
type DBAllocator struct {
	db          *sql.DB
	initialPort int
}

// NewDBAllocator opens the counter database. Transactions are opened in
// immediate mode so the write lock is taken up front, and lock waits are
// bounded by the busy timeout.
func NewDBAllocator(dbPath string, initialPort int) (*DBAllocator, error) {
	dsn := "file:" + dbPath + "?_txlock=immediate&_pragma=busy_timeout(5000)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("%w: opening database: %v", ErrUnavailable, err)
	}

	// Single writer, matching SQLite's concurrency model.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	return &DBAllocator{db: db, initialPort: initialPort}, nil
}

// Close closes the database connection.
func (a *DBAllocator) Close() error {
	return a.db.Close()
}

// Initialize creates the counter table and seeds the single row if absent.
// Both statements are safe to run repeatedly and concurrently; the first
// insert to commit wins and later ones observe the existing row.
func (a *DBAllocator) Initialize(ctx context.Context) error {
	_, err := a.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS port_counter (
			id INTEGER PRIMARY KEY CHECK (id = 1),
			current_port INTEGER NOT NULL,
			updated_at TEXT NOT NULL
		)
	`)
	if err != nil {
		return fmt.Errorf("%w: creating port_counter table: %v", ErrUnavailable, err)
	}

	_, err = a.db.ExecContext(ctx, `
		INSERT INTO port_counter (id, current_port, updated_at)
		VALUES (1, ?, ?)
		ON CONFLICT (id) DO NOTHING
	`, a.initialPort, time.Now().UTC().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("%w: seeding port_counter row: %v", ErrUnavailable, err)
	}

	return nil
}

// AllocateNext runs a single transaction: lock the row, read the current
// value, write current+1, commit. Any failure before commit rolls back and
// the row reverts to its pre-transaction value.
func (a *DBAllocator) AllocateNext(ctx context.Context) (int, error) {
	tx, err := a.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("%w: beginning transaction: %v", ErrUnavailable, err)
	}
	defer tx.Rollback()

	var current int
	err = tx.QueryRowContext(ctx, `
		SELECT current_port FROM port_counter WHERE id = 1
	`).Scan(&current)
	if err == sql.ErrNoRows {
		return 0, ErrNotInitialized
	}
	if err != nil {
		// A store that has never seen Initialize has no table at all.
		if strings.Contains(err.Error(), "no such table") {
			return 0, ErrNotInitialized
		}
		return 0, fmt.Errorf("%w: reading port_counter: %v", ErrUnavailable, err)
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE port_counter
		SET current_port = ?, updated_at = ?
		WHERE id = 1
	`, current+1, time.Now().UTC().Format(time.RFC3339))
	if err != nil {
		return 0, fmt.Errorf("%w: updating port_counter: %v", ErrUnavailable, err)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("%w: committing port_counter update: %v", ErrUnavailable, err)
	}

	return current, nil
}
