package stage

import (
	"bytes"
	"compress/gzip"
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/rlanders/dr-restore-utility/internal/resolve"
	"github.com/rlanders/dr-restore-utility/internal/session"
	"github.com/rlanders/dr-restore-utility/internal/store"
	"github.com/rlanders/dr-restore-utility/internal/store/storetest"
)

const testID = "backup_20250104_143022_12345"

func seedSession(mem *storetest.Mem) {
	mem.Put("pfx/"+testID+"/manifest.json", []byte(`{
		"files": [
			{"name": "database/dump.sql", "expected_size": 8},
			{"name": "files/logo.png", "expected_size": 4},
			{"name": "config/site.conf", "expected_size": 6}
		],
		"created_at": "2025-01-04T14:30:22Z",
		"generator_version": "2.1.0"
	}`))
	mem.Put("pfx/"+testID+"/database/dump.sql", []byte("select 1"))
	mem.Put("pfx/"+testID+"/files/logo.png", []byte("\x89PNG"))
	mem.Put("pfx/"+testID+"/config/site.conf", []byte("root=/"))
}

func remoteSession() resolve.ResolvedSession {
	return resolve.ResolvedSession{
		ID:     session.ID(testID),
		Source: store.SourceRemote,
		Path:   "pfx/" + testID,
	}
}

func newStager(t *testing.T, mem *storetest.Mem) *Stager {
	t.Helper()
	return New(t.TempDir(), mem, 2, nil, zerolog.Nop())
}

func requireEmptyRoot(t *testing.T, root string) {
	t.Helper()
	entries, err := os.ReadDir(root)
	require.NoError(t, err)
	require.Empty(t, entries, "staging root must hold no residue")
}

func TestStageAndRelease(t *testing.T) {
	mem := storetest.NewMem()
	seedSession(mem)
	s := newStager(t, mem)

	handle, err := s.Stage(context.Background(), remoteSession())
	require.NoError(t, err)
	require.Empty(t, handle.Warnings)
	require.NotNil(t, handle.Manifest)
	require.Len(t, handle.Manifest.Files, 3)

	data, err := os.ReadFile(filepath.Join(handle.Dir, "database", "dump.sql"))
	require.NoError(t, err)
	require.Equal(t, "select 1", string(data))

	require.NoError(t, handle.Release())
	require.NoError(t, handle.Release(), "release is idempotent")
	requireEmptyRoot(t, s.Root)
}

func TestStagePartialDownloadWarns(t *testing.T) {
	mem := storetest.NewMem()
	seedSession(mem)
	mem.GetErr["pfx/"+testID+"/files/logo.png"] = errors.New("connection reset")
	s := newStager(t, mem)

	handle, err := s.Stage(context.Background(), remoteSession())
	require.NoError(t, err, "payload failure is a warning, not an abort")
	require.Len(t, handle.Warnings, 1)
	require.Equal(t, "files/logo.png", handle.Warnings[0].Name)
	require.NoError(t, handle.Release())
}

func TestStageManifestDownloadFailureAborts(t *testing.T) {
	mem := storetest.NewMem()
	seedSession(mem)
	mem.GetErr["pfx/"+testID+"/manifest.json"] = errors.New("connection reset")
	s := newStager(t, mem)

	_, err := s.Stage(context.Background(), remoteSession())
	var serr *StagingError
	require.ErrorAs(t, err, &serr)
	requireEmptyRoot(t, s.Root)
}

func TestStageCorruptManifestAborts(t *testing.T) {
	mem := storetest.NewMem()
	seedSession(mem)
	mem.Put("pfx/"+testID+"/manifest.json", []byte("{broken"))
	s := newStager(t, mem)

	_, err := s.Stage(context.Background(), remoteSession())
	var serr *StagingError
	require.ErrorAs(t, err, &serr)
	var merr *session.ManifestError
	require.ErrorAs(t, err, &merr)
	require.Equal(t, session.ManifestCorrupt, merr.Kind)
	requireEmptyRoot(t, s.Root)
}

func TestStageDecompressesByExtension(t *testing.T) {
	mem := storetest.NewMem()
	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	_, err := zw.Write([]byte("select 1"))
	require.NoError(t, err)
	require.NoError(t, zw.Close())

	mem.Put("pfx/"+testID+"/manifest.json", []byte(`{
		"files": [{"name": "database/dump.sql", "expected_size": 8}],
		"created_at": "2025-01-04T14:30:22Z"
	}`))
	mem.Put("pfx/"+testID+"/database/dump.sql.gz", buf.Bytes())
	s := newStager(t, mem)

	handle, err := s.Stage(context.Background(), remoteSession())
	require.NoError(t, err)
	require.Empty(t, handle.Warnings)

	data, err := os.ReadFile(filepath.Join(handle.Dir, "database", "dump.sql"))
	require.NoError(t, err)
	require.Equal(t, "select 1", string(data))
	require.NoError(t, handle.Release())
}

func TestStageSizeMismatchWarns(t *testing.T) {
	mem := storetest.NewMem()
	seedSession(mem)
	mem.Put("pfx/"+testID+"/database/dump.sql", []byte("truncated"))
	s := newStager(t, mem)

	handle, err := s.Stage(context.Background(), remoteSession())
	require.NoError(t, err)
	require.Len(t, handle.Warnings, 1)
	require.Contains(t, handle.Warnings[0].Err.Error(), "size mismatch")
	require.NoError(t, handle.Release())
}

func TestStageCancelledLeavesNoResidue(t *testing.T) {
	mem := storetest.NewMem()
	seedSession(mem)
	s := newStager(t, mem)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := s.Stage(ctx, remoteSession())
	require.Error(t, err)
	requireEmptyRoot(t, s.Root)
}

func TestStageRejectsLocalSession(t *testing.T) {
	s := newStager(t, storetest.NewMem())
	_, err := s.Stage(context.Background(), resolve.ResolvedSession{
		ID:     session.ID(testID),
		Source: store.SourceLocal,
		Path:   "/var/backups/" + testID,
	})
	var serr *StagingError
	require.ErrorAs(t, err, &serr)
}
