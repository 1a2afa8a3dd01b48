// Package config loads taskdock configuration from the XDG config
// directory via viper, with environment-variable overrides.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"
)

const (
	// AppName is the application directory name.
	AppName = "taskdock"

	// ConfigFile is the configuration filename (YAML).
	ConfigFile = "config.yaml"
)

// Config holds runtime settings.
type Config struct {
	// Dir is the configuration directory.
	Dir string `mapstructure:"-"`

	// DBPath is the SQLite database location.
	DBPath string `mapstructure:"db_path"`

	// LogPath is the rotating log file location. Empty logs to stderr
	// only.
	LogPath string `mapstructure:"log_path"`

	// User is the local user id accounts are created under.
	User string `mapstructure:"user"`

	// SyncInterval is the default delay between reconciliation passes.
	SyncInterval time.Duration `mapstructure:"sync_interval"`

	// SyncIntervals overrides SyncInterval per integration kind.
	SyncIntervals map[string]time.Duration `mapstructure:"sync_intervals"`

	// DashboardPort is the status server port for the daemon. Zero
	// disables the dashboard.
	DashboardPort int `mapstructure:"dashboard_port"`
}

// DefaultDir returns the default configuration directory.
// Uses XDG_CONFIG_HOME if set, otherwise $HOME/.config.
func DefaultDir() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, AppName)
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return AppName
	}
	return filepath.Join(home, ".config", AppName)
}

// Load reads configuration from dir (DefaultDir when empty). A missing
// config file is not an error: defaults apply.
func Load(dir string) (*Config, error) {
	if dir == "" {
		dir = DefaultDir()
	}

	v := viper.New()
	v.SetConfigFile(filepath.Join(dir, ConfigFile))
	v.SetConfigType("yaml")
	v.SetEnvPrefix("TASKDOCK")
	v.AutomaticEnv()

	v.SetDefault("db_path", filepath.Join(dir, "taskdock.db"))
	v.SetDefault("log_path", filepath.Join(dir, "taskdock.log"))
	v.SetDefault("user", "local")
	v.SetDefault("sync_interval", time.Minute)
	v.SetDefault("dashboard_port", 8787)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(*os.PathError); !ok {
			if _, notFound := err.(viper.ConfigFileNotFoundError); !notFound {
				return nil, fmt.Errorf("failed to read config: %w", err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	cfg.Dir = dir
	if cfg.SyncInterval <= 0 {
		cfg.SyncInterval = time.Minute
	}
	return &cfg, nil
}

// Path returns the config file path for dir.
func (c *Config) Path() string {
	return filepath.Join(c.Dir, ConfigFile)
}

// LockPath returns the daemon lock file path.
func (c *Config) LockPath() string {
	return filepath.Join(c.Dir, "daemon.lock")
}

// EnsureDir creates the config directory if it doesn't exist.
func (c *Config) EnsureDir() error {
	return os.MkdirAll(c.Dir, 0700)
}

// WriteDefault writes a commented starter config file, refusing to
// overwrite an existing one.
func (c *Config) WriteDefault() error {
	if err := c.EnsureDir(); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	path := c.Path()
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config already exists at %s", path)
	}

	content := fmt.Sprintf(`# taskdock configuration
db_path: %s
log_path: %s
user: %s

# Delay between reconciliation passes (Go duration syntax).
sync_interval: %s

# Per-integration overrides, e.g.:
# sync_intervals:
#   github: 2m
#   gtasks: 5m

# Daemon status server port. 0 disables it.
dashboard_port: %d
`, c.DBPath, c.LogPath, c.User, c.SyncInterval, c.DashboardPort)

	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}
