package store

import (
	"context"
	"errors"
	"os"
	"path/filepath"

	"github.com/rlanders/dr-restore-utility/internal/session"
)

// LocalSession is a session directory found under one of the local roots.
type LocalSession struct {
	ID  session.ID
	Dir string
}

// LocalRoots scans one or more local backup roots for session directories.
// The roots and their contents are read-only; the backup producer owns them.
type LocalRoots struct {
	Roots []string
}

func NewLocalRoots(roots []string) *LocalRoots {
	return &LocalRoots{Roots: roots}
}

// FindExact checks each root for a directory named exactly id. The first
// root wins; roots are ordered by the operator.
func (l *LocalRoots) FindExact(ctx context.Context, id session.ID) (LocalSession, bool, error) {
	var errs []error
	for _, root := range l.Roots {
		select {
		case <-ctx.Done():
			return LocalSession{}, false, ctx.Err()
		default:
		}
		dir := filepath.Join(root, string(id))
		info, err := os.Stat(dir)
		if err == nil && info.IsDir() {
			return LocalSession{ID: id, Dir: dir}, true, nil
		}
		if err != nil && !os.IsNotExist(err) {
			errs = append(errs, err)
		}
	}
	return LocalSession{}, false, errors.Join(errs...)
}

// Scan lists every canonical session directory across all roots. Unreadable
// roots do not hide readable ones; their errors come back joined alongside
// the partial result.
func (l *LocalRoots) Scan(ctx context.Context) ([]LocalSession, error) {
	var sessions []LocalSession
	var errs []error
	for _, root := range l.Roots {
		select {
		case <-ctx.Done():
			return sessions, ctx.Err()
		default:
		}
		entries, err := os.ReadDir(root)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		for _, entry := range entries {
			if !entry.IsDir() || !session.IsCanonical(entry.Name()) {
				continue
			}
			sessions = append(sessions, LocalSession{
				ID:  session.ID(entry.Name()),
				Dir: filepath.Join(root, entry.Name()),
			})
		}
	}
	return sessions, errors.Join(errs...)
}

// DirSize sums the regular files under a session directory.
func DirSize(dir string) int64 {
	var total int64
	_ = filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return nil
		}
		if info, ierr := d.Info(); ierr == nil {
			total += info.Size()
		}
		return nil
	})
	return total
}
