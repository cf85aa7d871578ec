// Package config loads and validates reportsync configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Server  ServerConfig  `mapstructure:"server"`
	Sync    SyncConfig    `mapstructure:"sync"`
	Storage StorageConfig `mapstructure:"storage"`
	Mailbox MailboxConfig `mapstructure:"mailbox"`
	Portal  PortalConfig  `mapstructure:"portal"`
	DB      DBConfig      `mapstructure:"db"`
	PubSub  PubSubConfig  `mapstructure:"pubsub"`
	Logging LoggingConfig `mapstructure:"logging"`
}

// ServerConfig controls the HTTP status server.
type ServerConfig struct {
	Port int `mapstructure:"port"`
}

// SyncConfig governs the batch pipeline.
type SyncConfig struct {
	// RosterPath points at the entity roster file.
	RosterPath string `mapstructure:"roster_path"`
	// Concurrency bounds the worker pool per run.
	Concurrency int `mapstructure:"concurrency"`
	// DownloadTimeoutSeconds bounds each report download.
	DownloadTimeoutSeconds int `mapstructure:"download_timeout_seconds"`
}

// StorageConfig sets local and remote artifact locations.
type StorageConfig struct {
	BaseDir   string `mapstructure:"base_dir"`
	GCSBucket string `mapstructure:"gcs_bucket"`
	GCSPrefix string `mapstructure:"gcs_prefix"`
}

// MailboxConfig configures the IMAP source.
type MailboxConfig struct {
	Addr          string `mapstructure:"addr"`
	Username      string `mapstructure:"username"`
	Password      string `mapstructure:"password"`
	Mailbox       string `mapstructure:"mailbox"`
	SubjectPrefix string `mapstructure:"subject_prefix"`
	SinceDays     int    `mapstructure:"since_days"`
}

// PortalConfig configures the report portal session.
type PortalConfig struct {
	Enabled           bool   `mapstructure:"enabled"`
	LoginURL          string `mapstructure:"login_url"`
	ReportURLTemplate string `mapstructure:"report_url_template"`
	Username          string `mapstructure:"username"`
	Password          string `mapstructure:"password"`
	MaxParallel       int    `mapstructure:"max_parallel"`
	NavTimeoutSeconds int    `mapstructure:"nav_timeout_seconds"`
}

// DBConfig controls the optional run-history database.
type DBConfig struct {
	DSN          string `mapstructure:"dsn"`
	MaxOpenConns int    `mapstructure:"max_open_conns"`
	MinOpenConns int    `mapstructure:"min_open_conns"`
}

// PubSubConfig holds metadata for run-completion notifications.
type PubSubConfig struct {
	ProjectID string `mapstructure:"project_id"`
	TopicName string `mapstructure:"topic_name"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool `mapstructure:"development"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("REPORTSYNC")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("sync.roster_path", "entity_list.txt")
	v.SetDefault("sync.concurrency", 3)
	v.SetDefault("sync.download_timeout_seconds", 30)
	v.SetDefault("storage.base_dir", "download")
	v.SetDefault("storage.gcs_prefix", "reports")
	v.SetDefault("mailbox.mailbox", "INBOX")
	v.SetDefault("mailbox.subject_prefix", "Internal Reports")
	v.SetDefault("mailbox.since_days", 2)
	v.SetDefault("portal.enabled", false)
	v.SetDefault("portal.max_parallel", 1)
	v.SetDefault("portal.nav_timeout_seconds", 45)
	v.SetDefault("logging.development", true)
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	if c.Sync.Concurrency <= 0 {
		return fmt.Errorf("sync.concurrency must be > 0")
	}
	if c.Sync.RosterPath == "" {
		return fmt.Errorf("sync.roster_path is required")
	}
	if c.Storage.BaseDir == "" {
		return fmt.Errorf("storage.base_dir is required")
	}
	if c.Sync.DownloadTimeoutSeconds <= 0 {
		return fmt.Errorf("sync.download_timeout_seconds must be > 0")
	}
	if c.Portal.Enabled && c.Portal.LoginURL == "" {
		return fmt.Errorf("portal.login_url is required when the portal is enabled")
	}
	if c.Portal.Enabled && c.Portal.ReportURLTemplate == "" {
		return fmt.Errorf("portal.report_url_template is required when the portal is enabled")
	}
	return nil
}

// DownloadTimeout converts the download timeout into a duration.
func (c Config) DownloadTimeout() time.Duration {
	return time.Duration(c.Sync.DownloadTimeoutSeconds) * time.Second
}

// PortalNavTimeout converts the portal navigation timeout into a duration.
func (c Config) PortalNavTimeout() time.Duration {
	return time.Duration(c.Portal.NavTimeoutSeconds) * time.Second
}
