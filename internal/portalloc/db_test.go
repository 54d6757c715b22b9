package portalloc

import (
	"context"
	"errors"
	"path/filepath"
	"sort"
	"sync"
	"testing"
	"time"
)

func newTestDBAllocator(t *testing.T, dbPath string, initialPort int) *DBAllocator {
	t.Helper()
	alloc, err := NewDBAllocator(dbPath, initialPort)
	if err != nil {
		t.Fatalf("Failed to create db allocator: %v", err)
	}
	t.Cleanup(func() { alloc.Close() })
	return alloc
}

func TestDBAllocator_RowAbsent(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "counter.db")
	alloc := newTestDBAllocator(t, dbPath, 3003)
	ctx := context.Background()

	if err := alloc.Initialize(ctx); err != nil {
		t.Fatalf("Initialize failed: %v", err)
	}

	// An operator wiping the row leaves the table present but empty; the
	// allocator must report the misconfiguration, not invent a value.
	if _, err := alloc.db.ExecContext(ctx, `DELETE FROM port_counter`); err != nil {
		t.Fatalf("Failed to delete counter row: %v", err)
	}

	_, err := alloc.AllocateNext(ctx)
	if !errors.Is(err, ErrNotInitialized) {
		t.Errorf("Expected ErrNotInitialized for absent row, got %v", err)
	}
}

func TestDBAllocator_UpdatedAtRefreshed(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "counter.db")
	alloc := newTestDBAllocator(t, dbPath, 3003)
	ctx := context.Background()

	if err := alloc.Initialize(ctx); err != nil {
		t.Fatalf("Initialize failed: %v", err)
	}

	readState := func() (int, string) {
		var port int
		var updatedAt string
		err := alloc.db.QueryRowContext(ctx,
			`SELECT current_port, updated_at FROM port_counter WHERE id = 1`,
		).Scan(&port, &updatedAt)
		if err != nil {
			t.Fatalf("Failed to read counter row: %v", err)
		}
		return port, updatedAt
	}

	port, seeded := readState()
	if port != 3003 {
		t.Fatalf("Expected seeded current_port 3003, got %d", port)
	}
	if _, err := time.Parse(time.RFC3339, seeded); err != nil {
		t.Errorf("updated_at is not RFC3339: %q", seeded)
	}

	time.Sleep(1100 * time.Millisecond)

	if _, err := alloc.AllocateNext(ctx); err != nil {
		t.Fatalf("AllocateNext failed: %v", err)
	}

	port, refreshed := readState()
	if port != 3004 {
		t.Errorf("Expected persisted current_port 3004, got %d", port)
	}
	if refreshed == seeded {
		t.Errorf("Expected updated_at to be refreshed, still %q", refreshed)
	}
}

func TestDBAllocator_MultipleInstancesShareStore(t *testing.T) {
	// Two allocators on the same database file model two server instances
	// sharing one relational store.
	dbPath := filepath.Join(t.TempDir(), "counter.db")
	ctx := context.Background()

	a := newTestDBAllocator(t, dbPath, 9000)
	b := newTestDBAllocator(t, dbPath, 9000)

	if err := a.Initialize(ctx); err != nil {
		t.Fatalf("Initialize failed: %v", err)
	}
	if err := b.Initialize(ctx); err != nil {
		t.Fatalf("Second instance Initialize failed: %v", err)
	}

	const perInstance = 15
	ports := make([]int, 2*perInstance)

	var wg sync.WaitGroup
	wg.Add(2)
	for n, inst := range []*DBAllocator{a, b} {
		go func(n int, inst *DBAllocator) {
			defer wg.Done()
			for i := 0; i < perInstance; i++ {
				port, err := inst.AllocateNext(ctx)
				if err != nil {
					t.Errorf("Instance %d allocation %d failed: %v", n, i, err)
					return
				}
				ports[n*perInstance+i] = port
			}
		}(n, inst)
	}
	wg.Wait()

	sort.Ints(ports)
	for i, port := range ports {
		if port != 9000+i {
			t.Fatalf("Expected contiguous range from 9000, got %v", ports)
		}
	}
}

func TestDBAllocator_AbortedTransactionReleasesRow(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "counter.db")
	alloc := newTestDBAllocator(t, dbPath, 3003)
	ctx := context.Background()

	if err := alloc.Initialize(ctx); err != nil {
		t.Fatalf("Initialize failed: %v", err)
	}

	// Simulate a caller crashing mid-update: write the row inside a
	// transaction and roll it back instead of committing.
	tx, err := alloc.db.BeginTx(ctx, nil)
	if err != nil {
		t.Fatalf("Failed to begin transaction: %v", err)
	}
	if _, err := tx.ExecContext(ctx,
		`UPDATE port_counter SET current_port = ? WHERE id = 1`, 9999,
	); err != nil {
		t.Fatalf("Failed to update inside transaction: %v", err)
	}
	if err := tx.Rollback(); err != nil {
		t.Fatalf("Rollback failed: %v", err)
	}

	// The rollback released the lock and reverted the value, so the next
	// caller sees the pre-transaction counter.
	got, err := alloc.AllocateNext(ctx)
	if err != nil {
		t.Fatalf("AllocateNext after rollback failed: %v", err)
	}
	if got != 3003 {
		t.Errorf("Expected port 3003 after rollback, got %d", got)
	}
}

func TestDBAllocator_ClosedStoreUnavailable(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "counter.db")
	alloc, err := NewDBAllocator(dbPath, 3003)
	if err != nil {
		t.Fatalf("Failed to create db allocator: %v", err)
	}

	ctx := context.Background()
	if err := alloc.Initialize(ctx); err != nil {
		t.Fatalf("Initialize failed: %v", err)
	}
	alloc.Close()

	_, err = alloc.AllocateNext(ctx)
	if !errors.Is(err, ErrUnavailable) {
		t.Errorf("Expected ErrUnavailable after close, got %v", err)
	}
}
