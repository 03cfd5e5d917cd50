// Package config loads pocket configuration through viper.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Remote backend kinds.
const (
	RemoteREST     = "rest"
	RemotePostgres = "postgres"
)

// ErrInvalid is returned when a loaded configuration fails validation.
var ErrInvalid = errors.New("invalid configuration")

// Config is the full pocket configuration.
type Config struct {
	Database DatabaseConfig `mapstructure:"database"`
	Remote   RemoteConfig   `mapstructure:"remote"`
	Gateway  GatewayConfig  `mapstructure:"gateway"`
	Logging  LoggingConfig  `mapstructure:"logging"`
	Sync     SyncConfig     `mapstructure:"sync"`
	Session  SessionConfig  `mapstructure:"session"`
}

// DatabaseConfig locates the local ledger.
type DatabaseConfig struct {
	Path string `mapstructure:"path"`
}

// RemoteConfig selects the upload target.
type RemoteConfig struct {
	Kind        string `mapstructure:"kind"`
	URL         string `mapstructure:"url"`
	DatabaseURL string `mapstructure:"database_url"`
}

// SyncConfig tunes the background upload worker.
type SyncConfig struct {
	Interval   time.Duration `mapstructure:"interval"`
	Timeout    time.Duration `mapstructure:"timeout"`
	BackoffMin time.Duration `mapstructure:"backoff_min"`
	BackoffMax time.Duration `mapstructure:"backoff_max"`
}

// GatewayConfig configures pocket serve.
type GatewayConfig struct {
	Addr      string `mapstructure:"addr"`
	JWTSecret string `mapstructure:"jwt_secret"`
}

// SessionConfig controls tokens minted by pocket login.
type SessionConfig struct {
	TTL time.Duration `mapstructure:"ttl"`
}

// LoggingConfig mirrors the --log-level and --log-format flags.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// SetDefaults registers the default value of every key on v.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("database.path", "~/.local/share/pocket/pocket.db")
	v.SetDefault("remote.kind", RemoteREST)
	v.SetDefault("remote.url", "http://localhost:8080")
	v.SetDefault("remote.database_url", "")
	v.SetDefault("sync.interval", 15*time.Minute)
	v.SetDefault("sync.timeout", time.Minute)
	v.SetDefault("sync.backoff_min", time.Second)
	v.SetDefault("sync.backoff_max", 5*time.Minute)
	v.SetDefault("gateway.addr", ":8080")
	v.SetDefault("gateway.jwt_secret", "")
	v.SetDefault("session.ttl", 720*time.Hour)
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "console")
}

// Load unmarshals v into a Config, expands paths and validates the result.
// Defaults must already be registered with SetDefaults.
func Load(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}

	cfg.Database.Path = ExpandPath(cfg.Database.Path)
	cfg.Remote.Kind = strings.ToLower(strings.TrimSpace(cfg.Remote.Kind))

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks values that cannot be caught by decoding.
func (c *Config) Validate() error {
	if c.Database.Path == "" {
		return fmt.Errorf("%w: database.path is required", ErrInvalid)
	}
	switch c.Remote.Kind {
	case RemoteREST, RemotePostgres:
	default:
		return fmt.Errorf("%w: remote.kind must be %q or %q, got %q", ErrInvalid, RemoteREST, RemotePostgres, c.Remote.Kind)
	}
	if c.Sync.Interval <= 0 || c.Sync.Timeout <= 0 {
		return fmt.Errorf("%w: sync.interval and sync.timeout must be positive", ErrInvalid)
	}
	if c.Sync.BackoffMin <= 0 || c.Sync.BackoffMax < c.Sync.BackoffMin {
		return fmt.Errorf("%w: sync.backoff_max must be at least sync.backoff_min", ErrInvalid)
	}
	if c.Session.TTL <= 0 {
		return fmt.Errorf("%w: session.ttl must be positive", ErrInvalid)
	}
	return nil
}

// ExpandPath resolves a leading ~ to the home directory and expands $VAR
// references. The path is returned unchanged when the home directory is
// unknown.
func ExpandPath(path string) string {
	if path == "~" || strings.HasPrefix(path, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			path = filepath.Join(home, strings.TrimPrefix(path[1:], "/"))
		}
	}
	return os.ExpandEnv(path)
}
