package lock

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/gofrs/flock"

	"github.com/rlanders/dr-restore-utility/internal/session"
)

// ErrBusy reports that another stage or restore already holds the session.
var ErrBusy = errors.New("session is busy")

// SessionLock serializes stage/restore work per session ID. Two restores
// racing over one staging target is the failure this prevents; different
// sessions never contend.
type SessionLock struct {
	file *flock.Flock
}

// Acquire obtains the advisory lock for a session ID, failing fast with
// ErrBusy when it is already held.
func Acquire(dir string, id session.ID) (*SessionLock, error) {
	if dir == "" {
		dir = filepath.Join(os.TempDir(), "dru-locks")
	}
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("create lock dir: %w", err)
	}
	path := filepath.Join(dir, string(id)+".lock")
	lock := flock.New(path)
	ok, err := lock.TryLock()
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("another restore or stage holds %s (lock: %s): %w", id, path, ErrBusy)
	}
	return &SessionLock{file: lock}, nil
}

// Release frees the lock.
func (l *SessionLock) Release() error {
	if l == nil || l.file == nil {
		return nil
	}
	return l.file.Unlock()
}
