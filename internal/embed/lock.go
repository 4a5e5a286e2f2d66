package embed

import (
	"os"
	"path/filepath"

	"github.com/gofrs/flock"

	errs "github.com/restocker/invsearch/internal/errors"
)

// DataLock is a cross-process lock over the data directory. It keeps two
// server instances from writing the catalog and index snapshots at once.
type DataLock struct {
	flock  *flock.Flock
	locked bool
}

// NewDataLock creates the lock for dir; the lock file lives at <dir>/.lock.
func NewDataLock(dir string) *DataLock {
	return &DataLock{flock: flock.New(filepath.Join(dir, ".lock"))}
}

// TryLock attempts a non-blocking exclusive lock. It returns false when
// another process holds the data directory.
func (l *DataLock) TryLock() (bool, error) {
	if err := os.MkdirAll(filepath.Dir(l.flock.Path()), 0o755); err != nil {
		return false, errs.Wrap(err, errs.ErrCodeStoreUnavailable, "create data directory")
	}
	acquired, err := l.flock.TryLock()
	if err != nil {
		return false, errs.Wrap(err, errs.ErrCodeStoreUnavailable, "acquire data lock")
	}
	l.locked = acquired
	return acquired, nil
}

// Unlock releases the lock. Safe to call when not held.
func (l *DataLock) Unlock() error {
	if !l.locked {
		return nil
	}
	l.locked = false
	return l.flock.Unlock()
}
