// Package executor defines the boundary to the external restore engine.
// This tool decides which backup to use, validates it, and stages it; the
// executor owns the actual database/file restore I/O.
package executor

import (
	"context"
	"fmt"
	"strings"
)

// Mode is the restore scope selector.
type Mode string

const (
	ModeFull         Mode = "full"
	ModeDatabaseOnly Mode = "database-only"
	ModeFilesOnly    Mode = "files-only"
	ModeConfigOnly   Mode = "config-only"
)

func ParseMode(raw string) (Mode, error) {
	switch Mode(strings.ToLower(raw)) {
	case "", ModeFull:
		return ModeFull, nil
	case ModeDatabaseOnly:
		return ModeDatabaseOnly, nil
	case ModeFilesOnly:
		return ModeFilesOnly, nil
	case ModeConfigOnly:
		return ModeConfigOnly, nil
	default:
		return "", fmt.Errorf("unknown restore mode: %s", raw)
	}
}

// Executor applies a validated, locally available session. files is the
// mode-selected subset, relative to sessionPath.
type Executor interface {
	Apply(ctx context.Context, sessionPath string, mode Mode, restorePath string, files []string) error
}
