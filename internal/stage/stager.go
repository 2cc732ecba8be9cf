// Package stage copies a remote session's files into a scoped local
// staging directory so later steps can treat remote and local sessions
// uniformly.
package stage

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/rlanders/dr-restore-utility/internal/compress"
	"github.com/rlanders/dr-restore-utility/internal/cryptoutil"
	"github.com/rlanders/dr-restore-utility/internal/resolve"
	"github.com/rlanders/dr-restore-utility/internal/session"
	"github.com/rlanders/dr-restore-utility/internal/store"
)

// FileWarning records one payload file that could not be staged cleanly.
// Warnings do not abort the stage; a broken manifest does.
type FileWarning struct {
	Name string
	Err  error
}

// StagingError is the closed failure type of Stage. The staging directory
// is already removed by the time it is returned.
type StagingError struct {
	SessionID session.ID
	Err       error
	Warnings  []FileWarning
}

func (e *StagingError) Error() string {
	return fmt.Sprintf("stage %s: %v", e.SessionID, e.Err)
}

func (e *StagingError) Unwrap() error { return e.Err }

// Handle owns one staged copy. Release is idempotent and must run on
// every exit path of the caller.
type Handle struct {
	SessionID session.ID
	Dir       string
	Manifest  *session.Manifest
	Warnings  []FileWarning

	releaseOnce sync.Once
	releaseErr  error
}

// Release removes the staging directory. Safe to call repeatedly and
// after the directory is already gone.
func (h *Handle) Release() error {
	if h == nil {
		return nil
	}
	h.releaseOnce.Do(func() {
		err := os.RemoveAll(h.Dir)
		if err != nil && !os.IsNotExist(err) {
			h.releaseErr = err
		}
	})
	return h.releaseErr
}

type Stager struct {
	Root        string // operator-configured staging root, shared across operations
	Remote      store.Remote
	Concurrency int
	DecryptKey  []byte // nil when the producer does not encrypt payloads
	Log         zerolog.Logger
}

func New(root string, remote store.Remote, concurrency int, decryptKey []byte, log zerolog.Logger) *Stager {
	if concurrency <= 0 {
		concurrency = 4
	}
	return &Stager{Root: root, Remote: remote, Concurrency: concurrency, DecryptKey: decryptKey, Log: log}
}

// Stage downloads every file of a resolved remote session into a fresh,
// uniquely named directory under the staging root. Per-file failures are
// recorded as warnings; the manifest failing to download or failing its
// structural check after transfer aborts the stage and removes the
// directory. The manifest check deliberately runs only after all other
// transfers have been attempted, so it reflects the final staged state.
func (s *Stager) Stage(ctx context.Context, resolved resolve.ResolvedSession) (*Handle, error) {
	if resolved.Source != store.SourceRemote {
		return nil, &StagingError{SessionID: resolved.ID, Err: fmt.Errorf("session is not remote: %s", resolved.Source)}
	}
	if s.Remote == nil {
		return nil, &StagingError{SessionID: resolved.ID, Err: fmt.Errorf("no remote store configured")}
	}

	if err := os.MkdirAll(s.Root, 0o750); err != nil {
		return nil, &StagingError{SessionID: resolved.ID, Err: fmt.Errorf("create staging root: %w", err)}
	}
	dir := filepath.Join(s.Root, fmt.Sprintf("%s-%s", resolved.ID, uuid.NewString()))
	if err := os.Mkdir(dir, 0o750); err != nil {
		return nil, &StagingError{SessionID: resolved.ID, Err: fmt.Errorf("create staging dir: %w", err)}
	}
	handle := &Handle{SessionID: resolved.ID, Dir: dir}

	fail := func(err error) (*Handle, error) {
		warnings := handle.Warnings
		_ = handle.Release()
		return nil, &StagingError{SessionID: resolved.ID, Err: err, Warnings: warnings}
	}

	prefix := strings.TrimSuffix(resolved.Path, "/") + "/"
	objects, err := s.Remote.List(ctx, prefix)
	if err != nil {
		return fail(fmt.Errorf("list session objects: %w", err))
	}
	if len(objects) == 0 {
		return fail(fmt.Errorf("session has no objects under %s", prefix))
	}

	// Best-effort manifest pre-read: per-file compression/encryption flags
	// live there. The authoritative check still runs against the staged
	// copy below.
	entries := s.preloadEntries(ctx, prefix)

	var mu sync.Mutex
	manifestSeen := false

	eg, egCtx := errgroup.WithContext(ctx)
	eg.SetLimit(s.Concurrency)
	for _, obj := range objects {
		rel := strings.TrimPrefix(obj.Key, prefix)
		if rel == "" || strings.HasSuffix(rel, "/") {
			continue
		}
		if rel == session.ManifestName {
			manifestSeen = true
		}
		eg.Go(func() error {
			warn := s.stageObject(egCtx, obj, rel, dir, entries)
			if warn != nil {
				if rel == session.ManifestName {
					// The manifest is the one file that may not fail.
					return warn.Err
				}
				mu.Lock()
				handle.Warnings = append(handle.Warnings, *warn)
				mu.Unlock()
				s.Log.Warn().Err(warn.Err).Str("file", warn.Name).Str("session", string(resolved.ID)).Msg("partial download")
			}
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return fail(err)
	}
	if !manifestSeen {
		return fail(&session.ManifestError{Kind: session.ManifestMissing, Path: prefix + session.ManifestName})
	}

	manifest, err := session.CheckManifestDir(dir)
	if err != nil {
		return fail(err)
	}
	handle.Manifest = manifest

	s.Log.Info().Str("session", string(resolved.ID)).Str("dir", dir).
		Int("files", len(objects)).Int("warnings", len(handle.Warnings)).Msg("session staged")
	return handle, nil
}

// stageObject downloads one object, decoding producer-side compression and
// encryption so the executor always sees plain files. The manifest itself
// is written verbatim.
func (s *Stager) stageObject(ctx context.Context, obj store.ObjectInfo, rel, dir string, entries map[string]session.FileEntry) *FileWarning {
	body, err := s.Remote.Get(ctx, obj.Key)
	if err != nil {
		return &FileWarning{Name: rel, Err: fmt.Errorf("download: %w", err)}
	}
	defer body.Close()

	reader := io.Reader(body)
	target := rel
	var expected int64 = -1

	if rel != session.ManifestName {
		kind := compress.FromFilename(rel)
		logical := compress.TrimExtension(rel)
		entry, known := entries[logical]
		if !known {
			entry, known = entries[rel]
		}
		if known {
			if entry.Compression != "" {
				kind = entry.Compression
			}
			expected = entry.ExpectedSize
			if entry.Encrypted {
				if s.DecryptKey == nil {
					return &FileWarning{Name: rel, Err: fmt.Errorf("file is encrypted but no decryption key is configured")}
				}
				reader, err = cryptoutil.DecryptReader(reader, s.DecryptKey)
				if err != nil {
					return &FileWarning{Name: rel, Err: fmt.Errorf("decrypt: %w", err)}
				}
			}
		}
		if kind != compress.TypeNone {
			wrapped, werr := compress.WrapReader(kind, reader)
			if werr != nil {
				return &FileWarning{Name: rel, Err: fmt.Errorf("decompress: %w", werr)}
			}
			defer wrapped.Close()
			reader = wrapped
			target = logical
		}
	}

	path := filepath.Join(dir, filepath.FromSlash(target))
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return &FileWarning{Name: rel, Err: err}
	}
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600)
	if err != nil {
		return &FileWarning{Name: rel, Err: err}
	}
	written, err := io.Copy(file, reader)
	if cerr := file.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return &FileWarning{Name: rel, Err: fmt.Errorf("write staged copy: %w", err)}
	}

	if written == 0 && expected != 0 {
		return &FileWarning{Name: rel, Err: fmt.Errorf("empty download")}
	}
	if expected >= 0 && written != expected {
		return &FileWarning{Name: rel, Err: fmt.Errorf("size mismatch: staged %d bytes, manifest expects %d", written, expected)}
	}
	return nil
}

func (s *Stager) preloadEntries(ctx context.Context, prefix string) map[string]session.FileEntry {
	entries := map[string]session.FileEntry{}
	body, err := s.Remote.Get(ctx, prefix+session.ManifestName)
	if err != nil {
		return entries
	}
	defer body.Close()
	data, err := io.ReadAll(body)
	if err != nil {
		return entries
	}
	manifest, err := session.CheckManifestBytes(data, prefix+session.ManifestName)
	if err != nil {
		return entries
	}
	for _, entry := range manifest.Files {
		entries[entry.Name] = entry
	}
	return entries
}
