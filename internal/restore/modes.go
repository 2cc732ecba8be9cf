package restore

import (
	"path"
	"strings"

	"github.com/rlanders/dr-restore-utility/internal/executor"
	"github.com/rlanders/dr-restore-utility/internal/session"
)

type fileCategory int

const (
	categoryDatabase fileCategory = iota
	categoryFiles
	categoryConfig
)

// classifyFile buckets a manifest entry for mode selection. Sessions lay
// their payload out under database/, files/, and config/; entries outside
// that convention fall back to extension, and anything still ambiguous
// counts as site files.
func classifyFile(name string) fileCategory {
	top, _, nested := strings.Cut(path.Clean(name), "/")
	if nested {
		switch top {
		case "database", "db":
			return categoryDatabase
		case "files", "public", "private":
			return categoryFiles
		case "config":
			return categoryConfig
		}
	}
	switch path.Ext(name) {
	case ".sql", ".dump", ".archive":
		return categoryDatabase
	case ".conf", ".cfg", ".ini", ".env", ".yaml", ".yml", ".toml":
		return categoryConfig
	}
	return categoryFiles
}

// SelectFiles returns the subset of a session's files a mode hands to the
// executor. The orchestrator only selects; applying any subset is the
// executor's business.
func SelectFiles(mode executor.Mode, m *session.Manifest) []string {
	if m == nil {
		return nil
	}
	var want fileCategory
	switch mode {
	case executor.ModeFull:
		names := make([]string, 0, len(m.Files))
		for _, f := range m.Files {
			names = append(names, f.Name)
		}
		return names
	case executor.ModeDatabaseOnly:
		want = categoryDatabase
	case executor.ModeFilesOnly:
		want = categoryFiles
	case executor.ModeConfigOnly:
		want = categoryConfig
	}
	var names []string
	for _, f := range m.Files {
		if classifyFile(f.Name) == want {
			names = append(names, f.Name)
		}
	}
	return names
}
