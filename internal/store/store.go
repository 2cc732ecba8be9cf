package store

import (
	"context"
	"errors"
	"io"
	"time"
)

// Source tags where a session was found. A session may exist on both
// sides (replication); the tag always reflects the side actually used.
type Source string

const (
	SourceLocal  Source = "local"
	SourceRemote Source = "remote"
)

// ErrNotExist reports that a requested object or session is absent.
// Transient source failures are distinct and wrap the underlying error.
var ErrNotExist = errors.New("object does not exist")

type ObjectInfo struct {
	Key      string
	Size     int64
	Modified time.Time
	ETag     string
}

// Remote is the read-only object-store surface this tool needs. Writes
// belong to the backup producer; none are exposed here.
type Remote interface {
	List(ctx context.Context, prefix string) ([]ObjectInfo, error)
	Get(ctx context.Context, key string) (io.ReadCloser, error)
	Stat(ctx context.Context, key string) (ObjectInfo, error)
	Exists(ctx context.Context, key string) (bool, error)
}
