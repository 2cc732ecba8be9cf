package config

import "time"

// Config is the root configuration schema. Unknown keys are rejected at
// load time; free-form option maps are deliberately not supported.
type Config struct {
	Global        GlobalConfig        `mapstructure:"global"`
	Sources       SourcesConfig       `mapstructure:"sources"`
	Staging       StagingConfig       `mapstructure:"staging"`
	Restore       RestoreConfig       `mapstructure:"restore"`
	Notifications NotificationsConfig `mapstructure:"notifications"`
}

type GlobalConfig struct {
	LogLevel         string        `mapstructure:"log_level"`
	LogFormat        string        `mapstructure:"log_format"` // json or console
	LockDir          string        `mapstructure:"lock_dir"`
	OperationTimeout time.Duration `mapstructure:"operation_timeout"`
	ConfigPassphrase string        `mapstructure:"config_passphrase"` // optional; may come from env
}

// SourcesConfig describes where backup sessions live. Both sides are
// read-only for this tool; the backup producer owns the data.
type SourcesConfig struct {
	LocalRoots []string          `mapstructure:"local_roots"`
	Remote     RemoteStoreConfig `mapstructure:"remote"`
	Prefix     string            `mapstructure:"prefix"` // remote key prefix above session dirs
}

type RemoteStoreConfig struct {
	Endpoint        string `mapstructure:"endpoint"`
	Region          string `mapstructure:"region"`
	Bucket          string `mapstructure:"bucket"`
	AccessKey       string `mapstructure:"access_key"`
	SecretKey       string `mapstructure:"secret_key"`
	SessionToken    string `mapstructure:"session_token"`
	UseSSL          bool   `mapstructure:"use_ssl"`
	ForcePathStyle  bool   `mapstructure:"force_path_style"`
	TLSInsecureSkip bool   `mapstructure:"tls_insecure_skip"`
}

type StagingConfig struct {
	Root          string `mapstructure:"root"`
	Concurrency   int    `mapstructure:"concurrency"`
	DecryptionKey string `mapstructure:"decryption_key"` // for producer-encrypted payload files
}

type RestoreConfig struct {
	Mode            string        `mapstructure:"mode"` // full, database-only, files-only, config-only
	RestorePath     string        `mapstructure:"restore_path"`
	ExecutorCommand []string      `mapstructure:"executor_command"`
	DryRun          bool          `mapstructure:"dry_run"`
	RetryCount      int           `mapstructure:"retry_count"`
	RetryBackoff    time.Duration `mapstructure:"retry_backoff"`
	WindowStart     string        `mapstructure:"window_start"` // HH:MM local time
	WindowEnd       string        `mapstructure:"window_end"`
	Timezone        string        `mapstructure:"timezone"`
}

type NotificationsConfig struct {
	Webhooks   []WebhookConfig  `mapstructure:"webhooks"`
	Mattermost []MattermostHook `mapstructure:"mattermost"`
	Matrix     []MatrixConfig   `mapstructure:"matrix"`
}

type WebhookConfig struct {
	Name    string            `mapstructure:"name"`
	URL     string            `mapstructure:"url"`
	Headers map[string]string `mapstructure:"headers"`
}

type MattermostHook struct {
	Name string `mapstructure:"name"`
	URL  string `mapstructure:"url"`
}

type MatrixConfig struct {
	Name        string `mapstructure:"name"`
	ServerURL   string `mapstructure:"server_url"`
	AccessToken string `mapstructure:"access_token"`
	RoomID      string `mapstructure:"room_id"`
}
