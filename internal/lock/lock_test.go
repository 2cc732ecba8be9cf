package lock

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/rlanders/dr-restore-utility/internal/session"
)

func TestAcquireReleaseReacquire(t *testing.T) {
	dir := t.TempDir()
	id := session.ID("backup_20250104_143022_12345")

	first, err := Acquire(dir, id)
	require.NoError(t, err)

	_, err = Acquire(dir, id)
	require.ErrorIs(t, err, ErrBusy)

	require.NoError(t, first.Release())

	second, err := Acquire(dir, id)
	require.NoError(t, err)
	require.NoError(t, second.Release())
}

func TestDifferentSessionsDoNotContend(t *testing.T) {
	dir := t.TempDir()

	a, err := Acquire(dir, session.ID("backup_20250104_143022_11111"))
	require.NoError(t, err)
	defer a.Release()

	b, err := Acquire(dir, session.ID("backup_20250104_143022_22222"))
	require.NoError(t, err)
	require.NoError(t, b.Release())
}
