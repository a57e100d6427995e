// Package daemon manages the expenzez runtime lifecycle and configuration.
package daemon

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/biszaal/expenzez-sub007/internal/domain"
)

// Config holds all runtime configuration.
type Config struct {
	User        UserConfig                `toml:"user"`
	Store       StoreConfig               `toml:"store"`
	Remote      RemoteConfig              `toml:"remote"`
	Server      ServerConfig              `toml:"server"`
	Logging     LoggingConfig             `toml:"logging"`
	Progression ProgressionConfig         `toml:"progression"`
	Actions     []domain.ActionDefinition `toml:"actions"`
}

// UserConfig identifies the signed-in user. An empty ID means signed out.
type UserConfig struct {
	ID string `toml:"id"`
}

// StoreConfig selects the local key-value backend.
type StoreConfig struct {
	Driver      string `toml:"driver"` // "sqlite" or "redis"
	RedisAddr   string `toml:"redis_addr"`
	RedisDB     int    `toml:"redis_db"`
	RedisPrefix string `toml:"redis_prefix"`
}

// RemoteConfig points at the authoritative progression service.
// An empty BaseURL runs local-only.
type RemoteConfig struct {
	BaseURL    string `toml:"base_url"`
	Token      string `toml:"token"`
	Timeout    string `toml:"timeout"`
	MaxRetries int    `toml:"max_retries"`
	BaseDelay  string `toml:"base_delay"`
	MaxDelay   string `toml:"max_delay"`
	QueueSize  int    `toml:"queue_size"`
}

// ServerConfig controls the remote progression HTTP service.
type ServerConfig struct {
	Host        string `toml:"host"`
	Port        int    `toml:"port"`
	Backend     string `toml:"backend"` // "sqlite" or "postgres"
	PostgresDSN string `toml:"postgres_dsn"`
	Metrics     bool   `toml:"metrics"`
	Token       string `toml:"token"`
}

// LoggingConfig controls logging behavior.
type LoggingConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"` // "text" or "json"
}

// ProgressionConfig tunes the facade.
type ProgressionConfig struct {
	Strict bool `toml:"strict"`
}

// DefaultConfig returns a local-only configuration backed by SQLite.
func DefaultConfig() Config {
	return Config{
		Store: StoreConfig{
			Driver:      "sqlite",
			RedisAddr:   "localhost:6379",
			RedisPrefix: "expenzez:",
		},
		Remote: RemoteConfig{
			Timeout:    "3s",
			MaxRetries: 5,
			BaseDelay:  "1s",
			MaxDelay:   "60s",
			QueueSize:  1024,
		},
		Server: ServerConfig{
			Host:    "127.0.0.1",
			Port:    8088,
			Backend: "sqlite",
			Metrics: true,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// LoadConfig reads config from $EXPENZEZ_HOME/config.toml, falling back to defaults.
func LoadConfig() (Config, error) {
	return LoadConfigFile(filepath.Join(expenzezHome(), "config.toml"))
}

// LoadConfigFile reads config from path. A missing file yields the defaults.
func LoadConfigFile(path string) (Config, error) {
	cfg := DefaultConfig()

	if _, err := os.Stat(path); os.IsNotExist(err) {
		return cfg, nil
	}

	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// SaveConfig writes the config to $EXPENZEZ_HOME/config.toml.
func SaveConfig(cfg Config) error {
	path := filepath.Join(expenzezHome(), "config.toml")
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return err
	}

	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	encoder := toml.NewEncoder(f)
	return encoder.Encode(cfg)
}

// Validate rejects settings the daemon cannot start with.
func (c Config) Validate() error {
	switch c.Store.Driver {
	case "sqlite", "redis":
	default:
		return fmt.Errorf("config: unknown store driver %q", c.Store.Driver)
	}
	switch c.Server.Backend {
	case "sqlite":
	case "postgres":
		if c.Server.PostgresDSN == "" {
			return fmt.Errorf("config: server.backend = postgres requires server.postgres_dsn")
		}
	default:
		return fmt.Errorf("config: unknown server backend %q", c.Server.Backend)
	}
	if c.Remote.QueueSize < 0 || c.Remote.MaxRetries < 0 {
		return fmt.Errorf("config: remote queue_size and max_retries must not be negative")
	}
	return nil
}

// LogLevel maps the configured level onto slog. Unknown values mean info.
func (c Config) LogLevel() slog.Level {
	switch strings.ToLower(c.Logging.Level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// expenzezHome returns the expenzez data directory.
func expenzezHome() string {
	if env := os.Getenv("EXPENZEZ_HOME"); env != "" {
		return env
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".expenzez")
}

// Home is exported for use by other packages.
func Home() string {
	return expenzezHome()
}

// parseDuration parses a duration string, returning a fallback on error.
func parseDuration(s string, fallback time.Duration) time.Duration {
	if s == "" {
		return fallback
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return fallback
	}
	return d
}
