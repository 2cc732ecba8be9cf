package session

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestNormalizeAcceptedVariants(t *testing.T) {
	const want = ID("backup_20250104_143022_12345")

	variants := []string{
		"backup_20250104_143022_12345",
		"20250104_143022_12345",
		"/var/backups/site/backup_20250104_143022_12345",
		"backups/backup_20250104_143022_12345",
		`C:\backups\backup_20250104_143022_12345`,
		"  backup_20250104_143022_12345  ",
	}
	for _, raw := range variants {
		ref, err := Normalize(raw)
		require.NoError(t, err, "input %q", raw)
		require.True(t, ref.Exact, "input %q", raw)
		require.Equal(t, want, ref.ID, "input %q", raw)

		// Normalizing the normalized form is a fixpoint.
		again, err := Normalize(ref.String())
		require.NoError(t, err)
		require.Equal(t, ref, again)
	}
}

func TestNormalizeFragment(t *testing.T) {
	ref, err := Normalize("20250104_1430")
	require.NoError(t, err)
	require.False(t, ref.Exact)
	require.Equal(t, "20250104_1430", ref.Fragment)
}

func TestNormalizeMalformed(t *testing.T) {
	for _, raw := range []string{
		"",
		"backup_2025x104_143022_12345",
		"drop table;",
		"backups/",
		"backup_20251399_143022_12345", // impossible date
	} {
		_, err := Normalize(raw)
		var malformed *MalformedIDError
		require.Error(t, err, "input %q", raw)
		require.True(t, errors.As(err, &malformed), "input %q", raw)
	}
}

func TestIDTimestamp(t *testing.T) {
	id := ID("backup_20250104_143022_12345")
	require.Equal(t, time.Date(2025, 1, 4, 14, 30, 22, 0, time.UTC), id.Timestamp())
	require.Equal(t, "12345", id.Suffix())
}

func TestParseRejectsFragment(t *testing.T) {
	_, err := Parse("20250104")
	require.Error(t, err)
}

func TestIsCanonical(t *testing.T) {
	require.True(t, IsCanonical("backup_20250104_143022_12345"))
	require.False(t, IsCanonical("20250104_143022_12345"))
	require.False(t, IsCanonical("backup_20250104_143022_1234"))
	require.False(t, IsCanonical("backup_20251399_143022_12345"))
}
