// Package portalloc hands out host-side network ports for newly deployed
// applications. Ports are strictly increasing and never reused: every
// successful allocation returns a value greater than all previously returned
// values, even across process restarts and concurrent callers.
//
// Two backends are provided. FileAllocator keeps the counter in a local file
// guarded by an advisory lock and is only safe for a single host.
// DBAllocator keeps the counter as a single row in a relational store and is
// safe for multiple server instances sharing the same database.
package portalloc

import (
	"context"
	"errors"
)

// Sentinel errors for the allocator. Callers match with errors.Is.
var (
	// ErrNotInitialized is returned when an allocation is attempted before
	// Initialize has ever succeeded. Surfaces a misconfiguration that needs
	// operator action, not a transient failure.
	ErrNotInitialized = errors.New("port counter not initialized")

	// ErrUnavailable is returned when the backing store cannot be reached,
	// created or written. The failed request may be retried; the counter is
	// never advanced on failure.
	ErrUnavailable = errors.New("port counter storage unavailable")

	// ErrLockTimeout is returned by the file backend when a context deadline
	// expires while waiting for the counter lock.
	ErrLockTimeout = errors.New("timed out waiting for port counter lock")
)

// Allocator is the port counter contract.
type Allocator interface {
	// Initialize ensures the backing store exists and holds the initial
	// value if and only if no prior value is present. It is idempotent and
	// safe to call concurrently: whichever caller creates the counter first
	// wins, and a later call never resets an existing value.
	Initialize(ctx context.Context) error

	// AllocateNext returns the current counter value and atomically
	// advances it by one. Safe under arbitrary concurrent invocation.
	// A failure leaves the persisted value exactly as it was.
	AllocateNext(ctx context.Context) (int, error)
}
