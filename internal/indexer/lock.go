package indexer

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"
)

// writerLock serializes index writers across processes sharing a database.
type writerLock struct {
	flock *flock.Flock
}

func newWriterLock(path string) *writerLock {
	return &writerLock{flock: flock.New(path)}
}

// acquire blocks until the lock is held or ctx is done.
func (l *writerLock) acquire(ctx context.Context) error {
	if err := os.MkdirAll(filepath.Dir(l.flock.Path()), 0o755); err != nil {
		return fmt.Errorf("failed to create lock directory: %w", err)
	}
	ok, err := l.flock.TryLockContext(ctx, 50*time.Millisecond)
	if err != nil {
		return fmt.Errorf("failed to acquire writer lock: %w", err)
	}
	if !ok {
		return fmt.Errorf("failed to acquire writer lock: %s", l.flock.Path())
	}
	return nil
}

func (l *writerLock) release() error {
	if err := l.flock.Unlock(); err != nil {
		return fmt.Errorf("failed to release writer lock: %w", err)
	}
	return nil
}
