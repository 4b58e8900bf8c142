package corpus

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/gofrs/flock"
)

// FileLock excludes concurrent index writers across processes. Two
// pdfmcp processes sharing an index directory must not rebuild at the
// same time; readers never take it.
type FileLock struct {
	path  string
	flock *flock.Flock
}

// NewFileLock creates a lock on <indexDir>/lock.
func NewFileLock(indexDir string) *FileLock {
	path := filepath.Join(indexDir, "lock")
	return &FileLock{
		path:  path,
		flock: flock.New(path),
	}
}

// Lock acquires the lock, blocking until it is available.
func (l *FileLock) Lock() error {
	if err := os.MkdirAll(filepath.Dir(l.path), 0o755); err != nil {
		return fmt.Errorf("create index directory: %w", err)
	}
	if err := l.flock.Lock(); err != nil {
		return fmt.Errorf("acquire index lock: %w", err)
	}
	return nil
}

// TryLock acquires the lock without blocking. Returns false when
// another process holds it.
func (l *FileLock) TryLock() (bool, error) {
	if err := os.MkdirAll(filepath.Dir(l.path), 0o755); err != nil {
		return false, fmt.Errorf("create index directory: %w", err)
	}
	acquired, err := l.flock.TryLock()
	if err != nil {
		return false, fmt.Errorf("acquire index lock: %w", err)
	}
	return acquired, nil
}

// Unlock releases the lock. Safe to call on an unheld lock.
func (l *FileLock) Unlock() error {
	if !l.flock.Locked() {
		return nil
	}
	if err := l.flock.Unlock(); err != nil {
		return fmt.Errorf("release index lock: %w", err)
	}
	return nil
}

// Path returns the lock file location.
func (l *FileLock) Path() string {
	return l.path
}
