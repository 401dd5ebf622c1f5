package config

import (
	"fmt"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/sho7650/social-bridge/internal/core"
	"github.com/sho7650/social-bridge/internal/plugins"
	"github.com/sho7650/social-bridge/internal/scheduler"
)

// Config represents the complete application configuration
type Config struct {
	Global       GlobalConfig              `yaml:"global"`
	Platforms    map[string]PlatformConfig `yaml:"platforms"`
	Display      DisplayConfig             `yaml:"display"`
	ContentItems []core.ContentItem        `yaml:"content_items"`
}

// GlobalConfig represents global application settings
type GlobalConfig struct {
	Database DatabaseConfig `yaml:"database"`
	Lock     LockConfig     `yaml:"lock"`
	Sync     SyncConfig     `yaml:"sync"`
	HTTP     HTTPConfig     `yaml:"http"`
	Log      LogConfig      `yaml:"log"`
}

// DatabaseConfig selects the interaction store backend
type DatabaseConfig struct {
	Driver string `yaml:"driver"`
	Path   string `yaml:"path"`
	URL    string `yaml:"url"`
}

// LockConfig selects the sync lock backend
type LockConfig struct {
	Backend    string `yaml:"backend"`
	RedisURL   string `yaml:"redis_url"`
	Key        string `yaml:"key"`
	StaleAfter string `yaml:"stale_after"`
}

// SyncConfig controls automatic passes
type SyncConfig struct {
	Frequency      string `yaml:"frequency"`
	PassTimeout    string `yaml:"pass_timeout"`
	RequestTimeout string `yaml:"request_timeout"`
}

// HTTPConfig is the listen address of the HTTP adapter
type HTTPConfig struct {
	Addr string `yaml:"addr"`
}

// LogConfig controls the slog logger
type LogConfig struct {
	Level string `yaml:"level"`
	Sink  string `yaml:"sink"`
}

// PlatformConfig represents configuration for a single platform
type PlatformConfig struct {
	Enabled   bool                   `yaml:"enabled"`
	RateLimit RateLimitConfig        `yaml:"rate_limit"`
	Settings  map[string]interface{} `yaml:"settings"`
}

// UnmarshalYAML treats a platform block without an enabled key as enabled
func (p *PlatformConfig) UnmarshalYAML(value *yaml.Node) error {
	type plain PlatformConfig
	out := plain{Enabled: true}
	if err := value.Decode(&out); err != nil {
		return err
	}
	*p = PlatformConfig(out)
	return nil
}

// RateLimitConfig throttles outbound requests to one platform
type RateLimitConfig struct {
	RPS   float64 `yaml:"rps"`
	Burst int     `yaml:"burst"`
}

// DisplayConfig holds the read-path settings
type DisplayConfig struct {
	CommentTypes core.Visibility `yaml:"comment_types"`
}

// ConfigChangeEvent represents a configuration change event
type ConfigChangeEvent struct {
	Type  string
	Path  string
	Error string
}

const (
	EventConfigUpdated = "config_updated"
	EventConfigError   = "config_error"
)

// Default returns a configuration with every default filled in. Files are
// decoded on top of it so absent keys keep these values.
func Default() Config {
	return Config{
		Global: GlobalConfig{
			Database: DatabaseConfig{Driver: "sqlite", Path: "./social-bridge.db"},
			Lock:     LockConfig{Backend: "database", Key: "social-bridge:sync-lock", StaleAfter: "10m"},
			Sync:     SyncConfig{Frequency: "hourly", PassTimeout: "5m", RequestTimeout: "15s"},
			HTTP:     HTTPConfig{Addr: ":8080"},
			Log:      LogConfig{Level: "info", Sink: "stdout"},
		},
		Display: DisplayConfig{CommentTypes: core.DefaultVisibility()},
	}
}

// Validate checks if GlobalConfig is valid
func (g *GlobalConfig) Validate() error {
	switch g.Database.Driver {
	case "sqlite":
		if g.Database.Path == "" {
			return fmt.Errorf("database path cannot be empty")
		}
	case "postgres":
		if g.Database.URL == "" {
			return fmt.Errorf("database url cannot be empty for postgres")
		}
	default:
		return fmt.Errorf("database driver must be 'sqlite' or 'postgres', got: %s", g.Database.Driver)
	}

	switch g.Lock.Backend {
	case "database", "memory":
	case "redis":
		if g.Lock.RedisURL == "" {
			return fmt.Errorf("lock redis_url cannot be empty for redis backend")
		}
	default:
		return fmt.Errorf("lock backend must be 'database', 'memory' or 'redis', got: %s", g.Lock.Backend)
	}

	for name, value := range map[string]string{
		"lock stale_after":     g.Lock.StaleAfter,
		"sync pass_timeout":    g.Sync.PassTimeout,
		"sync request_timeout": g.Sync.RequestTimeout,
	} {
		if value == "" {
			continue
		}
		d, err := time.ParseDuration(value)
		if err != nil {
			return fmt.Errorf("invalid %s format: %w", name, err)
		}
		if d <= 0 {
			return fmt.Errorf("%s must be positive, got: %s", name, value)
		}
	}

	if _, err := scheduler.CronFor(g.Sync.Frequency); err != nil {
		return err
	}

	switch strings.ToLower(g.Log.Level) {
	case "", "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("log level must be debug, info, warn or error, got: %s", g.Log.Level)
	}
	return nil
}

// Validate checks if PlatformConfig is valid
func (p *PlatformConfig) Validate() error {
	if p.RateLimit.RPS < 0 {
		return fmt.Errorf("rate_limit rps cannot be negative, got: %v", p.RateLimit.RPS)
	}
	if p.RateLimit.Burst < 0 {
		return fmt.Errorf("rate_limit burst cannot be negative, got: %d", p.RateLimit.Burst)
	}
	return nil
}

// PlatformSettings converts the platforms section into registry settings
func (c *Config) PlatformSettings() map[string]plugins.Settings {
	out := make(map[string]plugins.Settings, len(c.Platforms))
	for id, p := range c.Platforms {
		settings := p.Settings
		if settings == nil {
			settings = map[string]interface{}{}
		}
		out[id] = plugins.Settings{Enabled: p.Enabled, Settings: settings}
	}
	return out
}

// StaleAfter returns the parsed lock staleness timeout
func (g *GlobalConfig) StaleAfter() time.Duration {
	return durationOr(g.Lock.StaleAfter, 10*time.Minute)
}

// PassTimeout returns the parsed pass ceiling
func (g *GlobalConfig) PassTimeout() time.Duration {
	return durationOr(g.Sync.PassTimeout, 5*time.Minute)
}

// RequestTimeout returns the parsed per-request timeout
func (g *GlobalConfig) RequestTimeout() time.Duration {
	return durationOr(g.Sync.RequestTimeout, 15*time.Second)
}

func durationOr(value string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(value)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}
