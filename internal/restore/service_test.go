package restore

import (
	"context"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/rlanders/dr-restore-utility/internal/catalog"
	"github.com/rlanders/dr-restore-utility/internal/executor"
	"github.com/rlanders/dr-restore-utility/internal/resolve"
	"github.com/rlanders/dr-restore-utility/internal/session"
	"github.com/rlanders/dr-restore-utility/internal/stage"
	"github.com/rlanders/dr-restore-utility/internal/store"
	"github.com/rlanders/dr-restore-utility/internal/store/storetest"
)

const testID = "backup_20250104_143022_12345"

type execCall struct {
	SessionPath string
	Mode        executor.Mode
	RestorePath string
	Files       []string
}

type fakeExecutor struct {
	mu      sync.Mutex
	calls   []execCall
	err     error
	entered chan struct{} // closed on first Apply, when set
	release chan struct{} // Apply blocks until closed, when set
}

func (f *fakeExecutor) Apply(ctx context.Context, sessionPath string, mode executor.Mode, restorePath string, files []string) error {
	f.mu.Lock()
	f.calls = append(f.calls, execCall{SessionPath: sessionPath, Mode: mode, RestorePath: restorePath, Files: files})
	entered, release := f.entered, f.release
	f.mu.Unlock()
	if entered != nil {
		close(entered)
		f.mu.Lock()
		f.entered = nil
		f.mu.Unlock()
	}
	if release != nil {
		<-release
	}
	return f.err
}

func (f *fakeExecutor) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func seedRemoteSession(mem *storetest.Mem) {
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

func newTestService(t *testing.T, mem *storetest.Mem, localRoots []string, exec executor.Executor) (*Service, string) {
	t.Helper()
	log := zerolog.Nop()
	local := store.NewLocalRoots(localRoots)
	resolver := resolve.New(local, mem, "pfx", log)
	stagingRoot := t.TempDir()
	svc := &Service{
		Resolver: resolver,
		Catalog:  catalog.New(local, mem, "pfx", log),
		Stager:   stage.New(stagingRoot, mem, 2, nil, log),
		Executor: exec,
		LockDir:  t.TempDir(),
		Log:      log,
	}
	return svc, stagingRoot
}

func requireEmptyDir(t *testing.T, dir string) {
	t.Helper()
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Empty(t, entries)
}

func TestRestoreRemoteDatabaseOnlyEndToEnd(t *testing.T) {
	mem := storetest.NewMem()
	seedRemoteSession(mem)
	exec := &fakeExecutor{}
	svc, stagingRoot := newTestService(t, mem, nil, exec)

	result, err := svc.Restore(context.Background(), Request{
		SessionRef:     "20250104_143022_12345", // prefix-less variant
		Mode:           executor.ModeDatabaseOnly,
		TargetLocation: resolve.PreferRemote,
		RestorePath:    "/tmp/r",
	})
	require.NoError(t, err)
	require.Equal(t, StateCompleted, result.Status)
	require.Equal(t, session.ID(testID), result.SessionID)
	require.Equal(t, store.SourceRemote, result.Source)

	require.Equal(t, 1, exec.callCount())
	call := exec.calls[0]
	require.Equal(t, executor.ModeDatabaseOnly, call.Mode)
	require.Equal(t, "/tmp/r", call.RestorePath)
	require.Equal(t, []string{"database/dump.sql"}, call.Files)

	// Staging directory is gone once the run is terminal.
	requireEmptyDir(t, stagingRoot)
}

func TestRestoreLocalSkipsStaging(t *testing.T) {
	root := t.TempDir()
	dir := root + "/" + testID
	require.NoError(t, os.MkdirAll(dir+"/database", 0o750))
	require.NoError(t, os.WriteFile(dir+"/manifest.json", []byte(`{"files":[{"name":"database/dump.sql","expected_size":8}]}`), 0o600))
	require.NoError(t, os.WriteFile(dir+"/database/dump.sql", []byte("select 1"), 0o600))

	exec := &fakeExecutor{}
	svc, stagingRoot := newTestService(t, storetest.NewMem(), []string{root}, exec)

	result, err := svc.Restore(context.Background(), Request{
		SessionRef: testID,
		Mode:       executor.ModeFull,
	})
	require.NoError(t, err)
	require.Equal(t, store.SourceLocal, result.Source)
	require.Equal(t, dir, exec.calls[0].SessionPath)
	requireEmptyDir(t, stagingRoot)
}

func TestRestoreMalformedRef(t *testing.T) {
	svc, _ := newTestService(t, storetest.NewMem(), nil, &fakeExecutor{})
	_, err := svc.Restore(context.Background(), Request{SessionRef: "not a ref!"})
	var failure *Failure
	require.ErrorAs(t, err, &failure)
	require.Equal(t, KindMalformedID, failure.Kind)
	require.Equal(t, StateNormalizing, failure.State)
}

func TestRestoreNotFound(t *testing.T) {
	svc, _ := newTestService(t, storetest.NewMem(), []string{t.TempDir()}, &fakeExecutor{})
	_, err := svc.Restore(context.Background(), Request{SessionRef: testID})
	var failure *Failure
	require.ErrorAs(t, err, &failure)
	require.Equal(t, KindNotFound, failure.Kind)

	var notFound *resolve.NotFoundError
	require.ErrorAs(t, err, &notFound, "searched locations must ride along")
}

func TestRestoreExecutorFailureStillCleansUp(t *testing.T) {
	mem := storetest.NewMem()
	seedRemoteSession(mem)
	exec := &fakeExecutor{err: context.DeadlineExceeded}
	svc, stagingRoot := newTestService(t, mem, nil, exec)

	_, err := svc.Restore(context.Background(), Request{
		SessionRef:     testID,
		Mode:           executor.ModeFull,
		TargetLocation: resolve.PreferRemote,
	})
	var failure *Failure
	require.ErrorAs(t, err, &failure)
	require.Equal(t, KindExecutorFailure, failure.Kind)
	require.Equal(t, StateDispatching, failure.State)
	requireEmptyDir(t, stagingRoot)
}

func TestRestoreRemoteMissingManifestProbe(t *testing.T) {
	mem := storetest.NewMem()
	// Session files exist but the manifest object is absent.
	mem.Put("pfx/"+testID+"/database/dump.sql", []byte("select 1"))
	svc, stagingRoot := newTestService(t, mem, nil, &fakeExecutor{})

	_, err := svc.Restore(context.Background(), Request{
		SessionRef:     testID,
		TargetLocation: resolve.PreferRemote,
	})
	var failure *Failure
	require.ErrorAs(t, err, &failure)
	require.Equal(t, KindMissingManifest, failure.Kind)
	require.Equal(t, StateValidating, failure.State, "probe must fail before staging starts")
	requireEmptyDir(t, stagingRoot)
}

func TestRestoreConcurrentSameSession(t *testing.T) {
	mem := storetest.NewMem()
	seedRemoteSession(mem)
	exec := &fakeExecutor{entered: make(chan struct{}), release: make(chan struct{})}
	svc, _ := newTestService(t, mem, nil, exec)

	req := Request{SessionRef: testID, Mode: executor.ModeFull, TargetLocation: resolve.PreferRemote}

	done := make(chan error, 1)
	go func() {
		_, err := svc.Restore(context.Background(), req)
		done <- err
	}()

	// Wait until the first run holds the session and is inside dispatch.
	select {
	case <-exec.entered:
	case <-time.After(5 * time.Second):
		t.Fatal("first restore never reached the executor")
	}

	_, err := svc.Restore(context.Background(), req)
	var failure *Failure
	require.ErrorAs(t, err, &failure)
	require.Equal(t, KindSessionBusy, failure.Kind)

	close(exec.release)
	require.NoError(t, <-done)
	require.Equal(t, 1, exec.callCount(), "exactly one run may dispatch")

	// The lock is released with the first run; a retry now proceeds.
	_, err = svc.Restore(context.Background(), req)
	require.NoError(t, err)
}

func TestRestoreDryRun(t *testing.T) {
	mem := storetest.NewMem()
	seedRemoteSession(mem)
	exec := &fakeExecutor{}
	svc, stagingRoot := newTestService(t, mem, nil, exec)

	result, err := svc.Restore(context.Background(), Request{
		SessionRef:     testID,
		TargetLocation: resolve.PreferRemote,
		DryRun:         true,
	})
	require.NoError(t, err)
	require.Equal(t, StateCompleted, result.Status)
	require.Zero(t, exec.callCount(), "dry run must not dispatch")
	requireEmptyDir(t, stagingRoot)
}

func TestRestoreOutsideWindow(t *testing.T) {
	svc, _ := newTestService(t, storetest.NewMem(), nil, &fakeExecutor{})
	now := time.Now()
	svc.Window = Window{
		Start: now.Add(2 * time.Hour).Format("15:04"),
		End:   now.Add(3 * time.Hour).Format("15:04"),
	}
	_, err := svc.Restore(context.Background(), Request{SessionRef: testID})
	require.ErrorContains(t, err, "restore window")
}

func TestValidateSessionRemote(t *testing.T) {
	mem := storetest.NewMem()
	seedRemoteSession(mem)
	svc, _ := newTestService(t, mem, nil, &fakeExecutor{})

	report, err := svc.ValidateSession(context.Background(), testID, resolve.PreferRemote)
	require.NoError(t, err)
	require.True(t, report.OK)
	require.Equal(t, store.SourceRemote, report.SourceUsed)
}

func TestValidateSessionCorruptLocal(t *testing.T) {
	root := t.TempDir()
	dir := root + "/" + testID
	require.NoError(t, os.MkdirAll(dir, 0o750))
	require.NoError(t, os.WriteFile(dir+"/manifest.json", []byte("{nope"), 0o600))

	svc, _ := newTestService(t, storetest.NewMem(), []string{root}, &fakeExecutor{})
	report, err := svc.ValidateSession(context.Background(), testID, resolve.PreferLocal)
	require.NoError(t, err)
	require.False(t, report.OK)
	require.Contains(t, report.Reason, "corrupt_manifest")
}
