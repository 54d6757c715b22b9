package portalloc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/gofrs/flock"
)

// lockRetryDelay is the polling interval used when a context deadline bounds
// the lock wait. The unbounded path uses a true blocking lock instead.
const lockRetryDelay = 25 * time.Millisecond

// counterRecord is the persisted file format: {"current_port": 3003}
type counterRecord struct {
	CurrentPort int `json:"current_port"`
}

// FileAllocator persists the counter in a single local file guarded by an
// exclusive advisory lock on the file itself. The lock only serializes
// cooperating processes on the same host that open the same path, so this
// backend must not be used when multiple hosts share the counter.
type FileAllocator struct {
	path        string
	initialPort int
}

// NewFileAllocator creates a file-backed allocator. The file is created by
// Initialize; path's directory must already exist and be writable.
func NewFileAllocator(path string, initialPort int) *FileAllocator {
	return &FileAllocator{
		path:        path,
		initialPort: initialPort,
	}
}

// Initialize writes the initial counter value if no value is present yet.
// The advisory lock is held across the check-then-write so concurrent
// initializers are first-writer-wins.
func (a *FileAllocator) Initialize(ctx context.Context) error {
	fl := flock.New(a.path)
	if err := a.acquire(ctx, fl); err != nil {
		return err
	}
	defer fl.Unlock()

	data, err := os.ReadFile(a.path)
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("%w: reading %s: %v", ErrUnavailable, a.path, err)
	}
	if len(data) > 0 {
		// Already initialized; never reset an existing value.
		return nil
	}

	return a.write(counterRecord{CurrentPort: a.initialPort})
}

// AllocateNext reads the current value under the exclusive lock, persists
// current+1, and returns the pre-update value. The lock acquisition blocks
// without timeout unless ctx carries a deadline.
func (a *FileAllocator) AllocateNext(ctx context.Context) (int, error) {
	fl := flock.New(a.path)
	if err := a.acquire(ctx, fl); err != nil {
		return 0, err
	}
	defer fl.Unlock()

	data, err := os.ReadFile(a.path)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, ErrNotInitialized
		}
		return 0, fmt.Errorf("%w: reading %s: %v", ErrUnavailable, a.path, err)
	}
	if len(data) == 0 {
		// Locking the path creates an empty file as a side effect, so an
		// empty file is the same as an absent one.
		return 0, ErrNotInitialized
	}

	var rec counterRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return 0, fmt.Errorf("%w: corrupt counter file %s: %v", ErrUnavailable, a.path, err)
	}

	if err := a.write(counterRecord{CurrentPort: rec.CurrentPort + 1}); err != nil {
		return 0, err
	}

	return rec.CurrentPort, nil
}

// acquire takes the exclusive advisory lock. A plain background context
// blocks until the lock is free; a cancellable context polls, mapping a
// deadline expiry to ErrLockTimeout.
func (a *FileAllocator) acquire(ctx context.Context, fl *flock.Flock) error {
	if ctx.Done() == nil {
		if err := fl.Lock(); err != nil {
			return fmt.Errorf("%w: locking %s: %v", ErrUnavailable, a.path, err)
		}
		return nil
	}

	locked, err := fl.TryLockContext(ctx, lockRetryDelay)
	if err != nil || !locked {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return fmt.Errorf("%w: %s", ErrLockTimeout, a.path)
		}
		if ctx.Err() != nil {
			return fmt.Errorf("acquiring counter lock: %w", ctx.Err())
		}
		return fmt.Errorf("%w: locking %s: %v", ErrUnavailable, a.path, err)
	}
	return nil
}

// write overwrites the counter file, truncating stale trailing data, and
// flushes before the caller releases the lock.
func (a *FileAllocator) write(rec counterRecord) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("%w: encoding counter: %v", ErrUnavailable, err)
	}

	f, err := os.OpenFile(a.path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0644)
	if err != nil {
		return fmt.Errorf("%w: opening %s: %v", ErrUnavailable, a.path, err)
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		return fmt.Errorf("%w: writing %s: %v", ErrUnavailable, a.path, err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return fmt.Errorf("%w: syncing %s: %v", ErrUnavailable, a.path, err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("%w: closing %s: %v", ErrUnavailable, a.path, err)
	}
	return nil
}
