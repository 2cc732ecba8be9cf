package restore

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/rlanders/dr-restore-utility/internal/executor"
	"github.com/rlanders/dr-restore-utility/internal/session"
)

func fixtureManifest() *session.Manifest {
	return &session.Manifest{Files: []session.FileEntry{
		{Name: "database/dump.sql"},
		{Name: "files/uploads/logo.png"},
		{Name: "config/site.conf"},
		{Name: "schema.sql"},    // extension fallback: database
		{Name: "settings.yaml"}, // extension fallback: config
		{Name: "favicon.ico"},   // unclassified: site files
	}}
}

func TestSelectFilesFull(t *testing.T) {
	names := SelectFiles(executor.ModeFull, fixtureManifest())
	require.Len(t, names, 6)
}

func TestSelectFilesDatabaseOnly(t *testing.T) {
	names := SelectFiles(executor.ModeDatabaseOnly, fixtureManifest())
	require.ElementsMatch(t, []string{"database/dump.sql", "schema.sql"}, names)
}

func TestSelectFilesConfigOnly(t *testing.T) {
	names := SelectFiles(executor.ModeConfigOnly, fixtureManifest())
	require.ElementsMatch(t, []string{"config/site.conf", "settings.yaml"}, names)
}

func TestSelectFilesFilesOnly(t *testing.T) {
	names := SelectFiles(executor.ModeFilesOnly, fixtureManifest())
	require.ElementsMatch(t, []string{"files/uploads/logo.png", "favicon.ico"}, names)
}

func TestSelectFilesNilManifest(t *testing.T) {
	require.Empty(t, SelectFiles(executor.ModeFull, nil))
}

func TestParseMode(t *testing.T) {
	mode, err := executor.ParseMode("")
	require.NoError(t, err)
	require.Equal(t, executor.ModeFull, mode)

	_, err = executor.ParseMode("everything")
	require.Error(t, err)
}
