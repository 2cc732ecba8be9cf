package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/rlanders/dr-restore-utility/internal/catalog"
	"github.com/rlanders/dr-restore-utility/internal/config"
	"github.com/rlanders/dr-restore-utility/internal/cryptoutil"
	"github.com/rlanders/dr-restore-utility/internal/executor"
	"github.com/rlanders/dr-restore-utility/internal/logging"
	"github.com/rlanders/dr-restore-utility/internal/notify"
	"github.com/rlanders/dr-restore-utility/internal/resolve"
	"github.com/rlanders/dr-restore-utility/internal/restore"
	"github.com/rlanders/dr-restore-utility/internal/stage"
	"github.com/rlanders/dr-restore-utility/internal/store"
	"github.com/rlanders/dr-restore-utility/internal/util"
	"github.com/rlanders/dr-restore-utility/internal/version"
)

type rootFlags struct {
	ConfigPath string
	LogLevel   string
	LogFormat  string
}

type overrideFlags struct {
	LocalRoots      []string
	RemotePrefix    string
	S3Endpoint      string
	S3Bucket        string
	S3AccessKey     string
	S3SecretKey     string
	S3Region        string
	S3UseSSL        string
	S3PathStyle     string
	StagingRoot     string
	StagingWorkers  int
	DecryptionKey   string
	ExecutorCommand []string
}

func main() {
	root := &rootFlags{}
	overrides := &overrideFlags{}

	rootCmd := &cobra.Command{
		Use:   "dru",
		Short: "Disaster-recovery restore utility for backup sessions",
	}

	rootCmd.PersistentFlags().StringVar(&root.ConfigPath, "config", "", "Path to config file (yaml/toml/json or .enc)")
	rootCmd.PersistentFlags().StringVar(&root.LogLevel, "log-level", "", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&root.LogFormat, "log-format", "", "Log format (json, console)")

	rootCmd.PersistentFlags().StringSliceVar(&overrides.LocalRoots, "local-root", nil, "Local backup root (repeatable)")
	rootCmd.PersistentFlags().StringVar(&overrides.RemotePrefix, "remote-prefix", "", "Remote key prefix above session dirs")
	rootCmd.PersistentFlags().StringVar(&overrides.S3Endpoint, "s3-endpoint", "", "S3 endpoint (MinIO/OSS)")
	rootCmd.PersistentFlags().StringVar(&overrides.S3Bucket, "s3-bucket", "", "S3 bucket")
	rootCmd.PersistentFlags().StringVar(&overrides.S3AccessKey, "s3-access-key", "", "S3 access key")
	rootCmd.PersistentFlags().StringVar(&overrides.S3SecretKey, "s3-secret-key", "", "S3 secret key")
	rootCmd.PersistentFlags().StringVar(&overrides.S3Region, "s3-region", "", "S3 region")
	rootCmd.PersistentFlags().StringVar(&overrides.S3UseSSL, "s3-ssl", "", "Use SSL for S3 endpoint (true/false)")
	rootCmd.PersistentFlags().StringVar(&overrides.S3PathStyle, "s3-path-style", "", "Force path-style S3 (true/false)")
	rootCmd.PersistentFlags().StringVar(&overrides.StagingRoot, "staging-root", "", "Staging root for remote sessions")
	rootCmd.PersistentFlags().IntVar(&overrides.StagingWorkers, "staging-workers", 0, "Concurrent downloads while staging")
	rootCmd.PersistentFlags().StringVar(&overrides.DecryptionKey, "decryption-key", "", "Key (base64 or hex) for producer-encrypted payloads")
	rootCmd.PersistentFlags().StringSliceVar(&overrides.ExecutorCommand, "executor", nil, "Restore executor command and args")

	rootCmd.AddCommand(newRestoreCmd(root, overrides))
	rootCmd.AddCommand(newValidateCmd(root, overrides))
	rootCmd.AddCommand(newListCmd(root, overrides))
	rootCmd.AddCommand(newConfigCmd())
	rootCmd.AddCommand(newVersionCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func newRestoreCmd(root *rootFlags, overrides *overrideFlags) *cobra.Command {
	var sessionRef string
	var mode string
	var source string
	var restorePath string
	var dryRun bool
	var retry int
	var retryBackoff time.Duration

	cmd := &cobra.Command{
		Use:   "restore",
		Short: "Restore a backup session",
		RunE: func(cmd *cobra.Command, args []string) error {
			if sessionRef == "" {
				return fmt.Errorf("--session is required")
			}
			cfg, err := loadConfig(root, overrides)
			if err != nil {
				return err
			}
			if dryRun {
				cfg.Restore.DryRun = true
			}
			if mode != "" {
				cfg.Restore.Mode = mode
			}
			if restorePath != "" {
				cfg.Restore.RestorePath = restorePath
			}
			if retry > 0 {
				cfg.Restore.RetryCount = retry
			}
			if retryBackoff > 0 {
				cfg.Restore.RetryBackoff = retryBackoff
			}

			logger := logging.Configure(cfg.Global.LogLevel, cfg.Global.LogFormat)
			parsedMode, err := executor.ParseMode(cfg.Restore.Mode)
			if err != nil {
				return err
			}
			pref, err := resolve.ParsePreference(source)
			if err != nil {
				return err
			}
			svc, err := buildService(cfg, logger)
			if err != nil {
				return err
			}
			if !cfg.Restore.DryRun {
				exec, err := executor.NewCommand(cfg.Restore.ExecutorCommand, logger)
				if err != nil {
					return err
				}
				svc.Executor = exec
			}

			ctx, cancel := context.WithTimeout(context.Background(), cfg.Global.OperationTimeout)
			defer cancel()

			return util.Retry(ctx, cfg.Restore.RetryCount, cfg.Restore.RetryBackoff, func() error {
				result, err := svc.Restore(ctx, restore.Request{
					SessionRef:     sessionRef,
					Mode:           parsedMode,
					TargetLocation: pref,
					RestorePath:    cfg.Restore.RestorePath,
					DryRun:         cfg.Restore.DryRun,
				})
				if err != nil {
					return err
				}
				logger.Info().Str("session", string(result.SessionID)).Str("source", string(result.Source)).
					Dur("elapsed", result.Elapsed).Int("warnings", len(result.Warnings)).Msg("restore completed")
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&sessionRef, "session", "", "Session ID, path, or fragment")
	cmd.Flags().StringVar(&mode, "mode", "", "Restore mode (full/database-only/files-only/config-only)")
	cmd.Flags().StringVar(&source, "source", "", "Where the session lives (local/remote/auto)")
	cmd.Flags().StringVar(&restorePath, "restore-path", "", "Destination root for restored artifacts")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Resolve and validate without staging or dispatching")
	cmd.Flags().IntVar(&retry, "retry", 0, "Retry attempts")
	cmd.Flags().DurationVar(&retryBackoff, "retry-backoff", 0, "Retry backoff")

	return cmd
}

func newValidateCmd(root *rootFlags, overrides *overrideFlags) *cobra.Command {
	var sessionRef string
	var source string

	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Validate a backup session's manifest",
		RunE: func(cmd *cobra.Command, args []string) error {
			if sessionRef == "" {
				return fmt.Errorf("--session is required")
			}
			cfg, err := loadConfig(root, overrides)
			if err != nil {
				return err
			}
			logger := logging.Configure(cfg.Global.LogLevel, cfg.Global.LogFormat)
			pref, err := resolve.ParsePreference(source)
			if err != nil {
				return err
			}
			svc, err := buildService(cfg, logger)
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(context.Background(), cfg.Global.OperationTimeout)
			defer cancel()

			report, err := svc.ValidateSession(ctx, sessionRef, pref)
			if err != nil {
				return err
			}
			if !report.OK {
				logger.Error().Str("session", string(report.SessionID)).Str("source", string(report.SourceUsed)).
					Str("reason", report.Reason).Msg("session failed validation")
				return fmt.Errorf("session %s is not valid: %s", report.SessionID, report.Reason)
			}
			logger.Info().Str("session", string(report.SessionID)).Str("source", string(report.SourceUsed)).Msg("session is valid")
			return nil
		},
	}

	cmd.Flags().StringVar(&sessionRef, "session", "", "Session ID, path, or fragment")
	cmd.Flags().StringVar(&source, "source", "", "Where to look (local/remote/auto)")

	return cmd
}

func newListCmd(root *rootFlags, overrides *overrideFlags) *cobra.Command {
	var source string
	var limit int

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List backup sessions across sources",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(root, overrides)
			if err != nil {
				return err
			}
			logger := logging.Configure(cfg.Global.LogLevel, cfg.Global.LogFormat)
			filter, err := catalog.ParseSourceFilter(source)
			if err != nil {
				return err
			}
			svc, err := buildService(cfg, logger)
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(context.Background(), cfg.Global.OperationTimeout)
			defer cancel()

			listing, err := svc.ListBackups(ctx, filter, limit)
			if err != nil {
				return err
			}
			for _, entry := range listing.Entries {
				integrity := "ok"
				if !entry.IntegrityOK {
					integrity = "suspect"
				}
				fmt.Printf("%s\t%s\t%s\t%d\t%s\n", entry.ID, entry.Source, entry.Timestamp.Format(time.RFC3339), entry.Size, integrity)
			}
			if listing.LocalErr != nil {
				logger.Warn().Err(listing.LocalErr).Msg("local source incomplete")
			}
			if listing.RemoteErr != nil {
				logger.Warn().Err(listing.RemoteErr).Msg("remote source incomplete")
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&source, "source", "", "Sources to list (local/remote/both)")
	cmd.Flags().IntVar(&limit, "limit", 0, "Maximum entries (0 = all)")

	return cmd
}

func newConfigCmd() *cobra.Command {
	var input string
	var output string
	var key string

	cmd := &cobra.Command{
		Use:   "config",
		Short: "Config utilities",
	}

	encrypt := &cobra.Command{
		Use:   "encrypt",
		Short: "Encrypt a config file",
		RunE: func(cmd *cobra.Command, args []string) error {
			if input == "" || output == "" || key == "" {
				return fmt.Errorf("--input, --output, and --key are required")
			}
			return config.EncryptConfigFile(input, output, key)
		},
	}
	encrypt.Flags().StringVar(&input, "input", "", "Input config file")
	encrypt.Flags().StringVar(&output, "output", "", "Output encrypted config file")
	encrypt.Flags().StringVar(&key, "key", "", "Encryption key (base64 or hex)")

	cmd.AddCommand(encrypt)
	return cmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("dru %s (commit %s, built %s)\n", version.Version, version.Commit, version.Date)
		},
	}
}

func buildService(cfg *config.Config, logger zerolog.Logger) (*restore.Service, error) {
	remote, err := store.NewRemote(cfg.Sources.Remote)
	if err != nil {
		return nil, err
	}
	local := store.NewLocalRoots(cfg.Sources.LocalRoots)
	resolver := resolve.New(local, remote, cfg.Sources.Prefix, logger)

	var decryptKey []byte
	if cfg.Staging.DecryptionKey != "" {
		decryptKey, err = cryptoutil.ParseKey(cfg.Staging.DecryptionKey)
		if err != nil {
			return nil, fmt.Errorf("staging decryption key: %w", err)
		}
	}

	return &restore.Service{
		Resolver: resolver,
		Catalog:  catalog.New(local, remote, cfg.Sources.Prefix, logger),
		Stager:   stage.New(cfg.Staging.Root, remote, cfg.Staging.Concurrency, decryptKey, logger),
		LockDir:  cfg.Global.LockDir,
		Window: restore.Window{
			Start:    cfg.Restore.WindowStart,
			End:      cfg.Restore.WindowEnd,
			Timezone: cfg.Restore.Timezone,
		},
		Log:      logger,
		Notifier: notify.FromConfig(cfg.Notifications),
	}, nil
}

func loadConfig(root *rootFlags, overrides *overrideFlags) (*config.Config, error) {
	cfg, err := config.Load(root.ConfigPath)
	if err != nil {
		return nil, err
	}
	applyOverrides(cfg, root, overrides)
	return cfg, nil
}

func applyOverrides(cfg *config.Config, root *rootFlags, overrides *overrideFlags) {
	if root.LogLevel != "" {
		cfg.Global.LogLevel = root.LogLevel
	}
	if root.LogFormat != "" {
		cfg.Global.LogFormat = root.LogFormat
	}

	if len(overrides.LocalRoots) > 0 {
		cfg.Sources.LocalRoots = overrides.LocalRoots
	}
	if overrides.RemotePrefix != "" {
		cfg.Sources.Prefix = overrides.RemotePrefix
	}
	if overrides.S3Endpoint != "" {
		cfg.Sources.Remote.Endpoint = overrides.S3Endpoint
	}
	if overrides.S3Bucket != "" {
		cfg.Sources.Remote.Bucket = overrides.S3Bucket
	}
	if overrides.S3AccessKey != "" {
		cfg.Sources.Remote.AccessKey = overrides.S3AccessKey
	}
	if overrides.S3SecretKey != "" {
		cfg.Sources.Remote.SecretKey = overrides.S3SecretKey
	}
	if overrides.S3Region != "" {
		cfg.Sources.Remote.Region = overrides.S3Region
	}
	if overrides.S3UseSSL != "" {
		cfg.Sources.Remote.UseSSL = isTrue(overrides.S3UseSSL)
	}
	if overrides.S3PathStyle != "" {
		cfg.Sources.Remote.ForcePathStyle = isTrue(overrides.S3PathStyle)
	}

	if overrides.StagingRoot != "" {
		cfg.Staging.Root = overrides.StagingRoot
	}
	if overrides.StagingWorkers > 0 {
		cfg.Staging.Concurrency = overrides.StagingWorkers
	}
	if overrides.DecryptionKey != "" {
		cfg.Staging.DecryptionKey = overrides.DecryptionKey
	}
	if len(overrides.ExecutorCommand) > 0 {
		cfg.Restore.ExecutorCommand = overrides.ExecutorCommand
	}
}

func isTrue(v string) bool {
	return v == "true" || v == "1" || v == "TRUE" || v == "True"
}
