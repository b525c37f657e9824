// Package lock provides a port-keyed startup lock so two bridge
// processes configured for the same port never race to bind it.
// Grounded on the teacher's internal/process.StartupLock, generalized
// from a fixed single lock file to one keyed by port (spec.md §12:
// multiple bridge instances on different ports may run concurrently).
package lock

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"
)

// StartupLock guards the brief window between config load and listener
// bind for one port.
type StartupLock struct {
	path  string
	flock *flock.Flock
}

// New creates a StartupLock for the given port, storing its lock file
// under the OS temp directory.
func New(port int) *StartupLock {
	path := filepath.Join(os.TempDir(), fmt.Sprintf("abridge-%d.lock", port))
	return &StartupLock{path: path, flock: flock.New(path)}
}

// TryLock attempts to acquire the lock within a short timeout,
// reporting false (not an error) if another process already holds it.
func (l *StartupLock) TryLock() (bool, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	locked, err := l.flock.TryLockContext(ctx, 20*time.Millisecond)
	if errors.Is(err, context.DeadlineExceeded) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("acquiring startup lock: %w", err)
	}
	return locked, nil
}

// Unlock releases the lock and removes the lock file.
func (l *StartupLock) Unlock() error {
	if err := l.flock.Unlock(); err != nil {
		return err
	}
	if err := os.Remove(l.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("removing startup lock file: %w", err)
	}
	return nil
}
