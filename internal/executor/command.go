package executor

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"

	"github.com/rs/zerolog"
)

// Command invokes an operator-configured program as the restore engine.
// The selected file list arrives on stdin, one relative path per line;
// session path, mode, and restore path are passed through the environment.
type Command struct {
	Argv []string
	Log  zerolog.Logger
}

func NewCommand(argv []string, log zerolog.Logger) (*Command, error) {
	if len(argv) == 0 {
		return nil, fmt.Errorf("executor command is not configured")
	}
	if _, err := exec.LookPath(argv[0]); err != nil {
		return nil, fmt.Errorf("executor binary not found: %s", argv[0])
	}
	return &Command{Argv: argv, Log: log}, nil
}

func (c *Command) Apply(ctx context.Context, sessionPath string, mode Mode, restorePath string, files []string) error {
	cmd := exec.CommandContext(ctx, c.Argv[0], c.Argv[1:]...)
	cmd.Env = append(os.Environ(),
		"DRU_SESSION_PATH="+sessionPath,
		"DRU_MODE="+string(mode),
		"DRU_RESTORE_PATH="+restorePath,
	)
	cmd.Stdin = strings.NewReader(strings.Join(files, "\n"))

	c.Log.Debug().Str("session_path", sessionPath).Str("mode", string(mode)).
		Strs("argv", c.Argv).Msg("dispatching to executor")

	out, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("executor %s failed: %w (output: %s)", c.Argv[0], err, strings.TrimSpace(string(out)))
	}
	return nil
}
