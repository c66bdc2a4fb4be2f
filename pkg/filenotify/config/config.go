package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/adrg/xdg"
	"github.com/dustin/go-humanize"
	"github.com/spf13/viper"

	"github.com/jamesainslie/filenotify/pkg/filenotify/logging"
	"github.com/jamesainslie/filenotify/pkg/filenotify/notify"
)

// AppName names the XDG directories and the environment prefix.
const AppName = "filenotify"

// EnvPrefix prefixes environment overrides, e.g. FILENOTIFY_SMTP_HOST.
const EnvPrefix = "FILENOTIFY"

// RotationConfig configures log file rotation.
type RotationConfig struct {
	MaxSize    string `mapstructure:"max_size"`
	MaxAge     int    `mapstructure:"max_age"`
	MaxBackups int    `mapstructure:"max_backups"`
	Daily      bool   `mapstructure:"daily"`
}

// LoggingConfig configures application logging.
type LoggingConfig struct {
	Level      string            `mapstructure:"level"`
	Path       string            `mapstructure:"path"`
	Rotation   RotationConfig    `mapstructure:"rotation"`
	Components map[string]string `mapstructure:"components"`
}

// SMTPConfig configures the outgoing mail server.
type SMTPConfig struct {
	Host     string        `mapstructure:"host"`
	Port     int           `mapstructure:"port"`
	Username string        `mapstructure:"username"`
	Password string        `mapstructure:"password"`
	From     string        `mapstructure:"from"`
	TLS      string        `mapstructure:"tls"`
	Timeout  time.Duration `mapstructure:"timeout"`
	Subject  string        `mapstructure:"subject"`
	Body     string        `mapstructure:"body"`
}

// HistoryConfig configures the run history database.
type HistoryConfig struct {
	Enabled       bool   `mapstructure:"enabled"`
	Path          string `mapstructure:"path"`
	RetentionDays int    `mapstructure:"retention_days"`
}

// MetricsConfig configures the metrics export.
type MetricsConfig struct {
	// Textfile is written after every run when set.
	Textfile string `mapstructure:"textfile"`
}

// Config represents the application configuration.
type Config struct {
	Root           string        `mapstructure:"root"`
	ManifestName   string        `mapstructure:"manifest_name"`
	RecipientsName string        `mapstructure:"recipients_name"`
	Exclude        []string      `mapstructure:"exclude"`
	DryRun         bool          `mapstructure:"dry_run"`
	Interval       time.Duration `mapstructure:"interval"`
	Output         string        `mapstructure:"output"`
	SMTP           SMTPConfig    `mapstructure:"smtp"`
	Logging        LoggingConfig `mapstructure:"logging"`
	History        HistoryConfig `mapstructure:"history"`
	Metrics        MetricsConfig `mapstructure:"metrics"`
}

// SetDefaults registers the default value of every key on v.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("root", DefaultRoot)
	v.SetDefault("manifest_name", DefaultManifestName)
	v.SetDefault("recipients_name", DefaultRecipientsName)
	v.SetDefault("exclude", DefaultExclusions)
	v.SetDefault("dry_run", false)
	v.SetDefault("interval", time.Duration(0))
	v.SetDefault("output", DefaultOutput)

	v.SetDefault("smtp.host", "localhost")
	v.SetDefault("smtp.port", DefaultSMTPPort)
	v.SetDefault("smtp.username", "")
	v.SetDefault("smtp.password", "")
	v.SetDefault("smtp.from", "")
	v.SetDefault("smtp.tls", notify.TLSOpportunistic)
	v.SetDefault("smtp.timeout", DefaultSMTPTimeout)
	v.SetDefault("smtp.subject", "")
	v.SetDefault("smtp.body", "")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.path", "") // Empty means use DefaultLogPath
	v.SetDefault("logging.rotation.max_size", DefaultLogMaxSize)
	v.SetDefault("logging.rotation.max_age", 30)
	v.SetDefault("logging.rotation.max_backups", 5)
	v.SetDefault("logging.rotation.daily", true)
	v.SetDefault("logging.components", map[string]string{
		"walker":    "info",
		"processor": "info",
		"notify":    "info",
		"history":   "warn",
	})

	v.SetDefault("history.enabled", true)
	v.SetDefault("history.path", "") // Empty means use DefaultHistoryPath
	v.SetDefault("history.retention_days", DefaultRetentionDays)

	v.SetDefault("metrics.textfile", "")
}

// Configure prepares v for reading: config file search paths (or the given
// file), environment binding and defaults. A missing config file is not an
// error; an unreadable one is.
func Configure(v *viper.Viper, configFile string) error {
	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")

		dir, err := ConfigDir()
		if err != nil {
			return err
		}
		v.AddConfigPath(dir)
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	SetDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return fmt.Errorf("failed to read config file: %w", err)
		}
	}
	return nil
}

// Decode unmarshals v into a Config, expanding ~ in paths and validating the
// result.
func Decode(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	for _, p := range []*string{&cfg.Root, &cfg.Logging.Path, &cfg.History.Path, &cfg.Metrics.Textfile} {
		expanded, err := ExpandPath(*p)
		if err != nil {
			return nil, err
		}
		*p = expanded
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Load reads configuration from the default locations and the environment.
func Load() (*Config, error) {
	v := viper.New()
	if err := Configure(v, ""); err != nil {
		return nil, err
	}
	return Decode(v)
}

// Validate checks values that would otherwise fail deep inside a run.
func (c *Config) Validate() error {
	if c.ManifestName == "" {
		return errors.New("manifest_name must not be empty")
	}
	if c.RecipientsName == "" {
		return errors.New("recipients_name must not be empty")
	}
	if c.ManifestName == c.RecipientsName {
		return fmt.Errorf("manifest_name and recipients_name must differ (both %q)", c.ManifestName)
	}
	if strings.ContainsRune(c.ManifestName, filepath.Separator) || strings.ContainsRune(c.RecipientsName, filepath.Separator) {
		return errors.New("manifest_name and recipients_name must be plain file names")
	}
	if c.Interval < 0 {
		return fmt.Errorf("interval must not be negative: %s", c.Interval)
	}
	switch strings.ToLower(c.SMTP.TLS) {
	case "", notify.TLSOpportunistic, notify.TLSMandatory, notify.TLSImplicit, notify.TLSNone:
	default:
		return fmt.Errorf("unknown smtp.tls mode %q", c.SMTP.TLS)
	}
	if err := checkSMTPPort(c.SMTP.Port, strings.ToLower(c.SMTP.TLS)); err != nil {
		return err
	}
	if _, err := c.LoggingConfig(); err != nil {
		return err
	}
	return nil
}

// checkSMTPPort rejects ports outside the valid range and the well-known
// ports paired with the wrong TLS mode.
func checkSMTPPort(port int, mode string) error {
	if port < 0 || port > 65535 {
		return fmt.Errorf("smtp.port out of range: %d", port)
	}
	switch {
	case mode == notify.TLSImplicit && port == 587:
		return errors.New("smtp.tls implicit does not work on the submission port 587; use 465 or leave smtp.port at 0")
	case mode != notify.TLSImplicit && port == 465:
		return fmt.Errorf("smtp.port 465 expects implicit TLS, not %q", mode)
	}
	return nil
}

// MailerOptions maps the SMTP section onto notify.Options.
func (c *Config) MailerOptions() notify.Options {
	return notify.Options{
		Host:           c.SMTP.Host,
		Port:           c.SMTP.Port,
		Username:       c.SMTP.Username,
		Password:       c.SMTP.Password,
		From:           c.SMTP.From,
		TLS:            c.SMTP.TLS,
		Timeout:        c.SMTP.Timeout,
		Subject:        c.SMTP.Subject,
		Body:           c.SMTP.Body,
		RecipientsName: c.RecipientsName,
	}
}

// LoggingConfig maps the logging section onto logging.Config.
func (c *Config) LoggingConfig() (logging.Config, error) {
	var maxSize int64
	if c.Logging.Rotation.MaxSize != "" {
		n, err := humanize.ParseBytes(c.Logging.Rotation.MaxSize)
		if err != nil {
			return logging.Config{}, fmt.Errorf("invalid logging.rotation.max_size %q: %w", c.Logging.Rotation.MaxSize, err)
		}
		maxSize = int64(n)
	}
	return logging.Config{
		Level:      c.Logging.Level,
		Path:       c.Logging.Path,
		Components: c.Logging.Components,
		Rotation: logging.RotationConfig{
			MaxSize:    maxSize,
			MaxAge:     c.Logging.Rotation.MaxAge,
			MaxBackups: c.Logging.Rotation.MaxBackups,
			Daily:      c.Logging.Rotation.Daily,
		},
	}, nil
}

// HistoryPath returns the configured history database path or the default.
func (c *Config) HistoryPath() string {
	if c.History.Path != "" {
		return c.History.Path
	}
	return DefaultHistoryPath()
}

// ConfigDir returns the configuration directory path.
func ConfigDir() (string, error) {
	if xdgConfigHome := os.Getenv("XDG_CONFIG_HOME"); xdgConfigHome != "" {
		return filepath.Join(xdgConfigHome, AppName), nil
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get user home directory: %w", err)
	}

	return filepath.Join(homeDir, ".config", AppName), nil
}

// ConfigPath returns the path of the default config file.
func ConfigPath() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.yaml"), nil
}

// DataDir returns $XDG_DATA_HOME/filenotify/ for the history database and run lock.
func DataDir() string {
	return filepath.Join(xdg.DataHome, AppName)
}

// DefaultHistoryPath returns the default run history database directory.
func DefaultHistoryPath() string {
	return filepath.Join(DataDir(), "history")
}

// DefaultLockPath returns the default run lock file.
func DefaultLockPath() string {
	return filepath.Join(DataDir(), "run.lock")
}

// WriteDefault writes a default config file if none exists and returns its
// path. An existing file is left untouched.
func WriteDefault() (string, error) {
	path, err := ConfigPath()
	if err != nil {
		return "", err
	}

	if _, err := os.Stat(path); err == nil {
		return path, nil
	} else if !os.IsNotExist(err) {
		return "", fmt.Errorf("failed to check config file: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", fmt.Errorf("failed to create config directory: %w", err)
	}

	defaultConfig := fmt.Sprintf(`# filenotify configuration

# Tree to scan when no path is given
root: %s

# Per-directory file names
manifest_name: %s
recipients_name: %s

# Glob patterns for names or root-relative paths never scanned
exclude:
  - "*.swp"
  - "*~"

# Report changes without sending mail or updating manifests
dry_run: false

# Repeat the scan at this interval (e.g. 15m); 0s runs once
interval: 0s

# Report format: plain, json, yaml, pretty
output: %s

smtp:
  host: localhost
  # 0 picks the port from tls: 465 for implicit, 25 for none, 587 otherwise
  port: %d
  username: ""
  password: ""
  from: ""
  # opportunistic, mandatory, implicit, none
  tls: opportunistic
  timeout: 30s
  # text/template overrides for the message (empty uses the built-in ones)
  subject: ""
  body: ""

logging:
  # Log level: debug, info, warn, error
  level: info
  # Log file path (empty means use default: $XDG_STATE_HOME/filenotify/filenotify.log)
  path: ""
  rotation:
    max_size: %s
    max_age: 30       # days
    max_backups: 5
    daily: true
  components:
    walker: info
    processor: info
    notify: info
    history: warn

history:
  enabled: true
  # Database directory (empty means use default: $XDG_DATA_HOME/filenotify/history)
  path: ""
  retention_days: %d

metrics:
  # Prometheus textfile written after every run (empty disables)
  textfile: ""
`, DefaultRoot, DefaultManifestName, DefaultRecipientsName, DefaultOutput, DefaultSMTPPort, DefaultLogMaxSize, DefaultRetentionDays)

	if err := os.WriteFile(path, []byte(defaultConfig), 0o644); err != nil {
		return "", fmt.Errorf("failed to write default config: %w", err)
	}

	return path, nil
}

// ExpandPath expands a leading ~ to the user's home directory.
func ExpandPath(path string) (string, error) {
	if !strings.HasPrefix(path, "~") {
		return path, nil
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get user home directory: %w", err)
	}

	return filepath.Join(homeDir, path[1:]), nil
}
