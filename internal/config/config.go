// Package config loads and validates fetch service configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Limiter   LimiterConfig   `mapstructure:"limiter"`
	Selector  SelectorConfig  `mapstructure:"selector"`
	Cache     CacheConfig     `mapstructure:"cache"`
	Fetch     FetchConfig     `mapstructure:"fetch"`
	Headless  HeadlessConfig  `mapstructure:"headless"`
	Archive   ArchiveConfig   `mapstructure:"archive"`
	PubSub    PubSubConfig    `mapstructure:"pubsub"`
	Logging   LoggingConfig   `mapstructure:"logging"`
}

// ServerConfig controls HTTP server behavior.
type ServerConfig struct {
	Port int `mapstructure:"port"`
}

// LimiterConfig governs per-domain admission and adaptive feedback.
type LimiterConfig struct {
	WindowSeconds        int     `mapstructure:"window_seconds"`
	DefaultRate          float64 `mapstructure:"default_rate"`
	MinRate              float64 `mapstructure:"min_rate"`
	MaxRate              float64 `mapstructure:"max_rate"`
	SuccessThreshold     int     `mapstructure:"success_threshold"`
	SoftFailureThreshold int     `mapstructure:"soft_failure_threshold"`
	BackoffFactor        float64 `mapstructure:"backoff_factor"`
	RecoveryFactor       float64 `mapstructure:"recovery_factor"`
	GlobalRate           float64 `mapstructure:"global_rate"`
	GlobalBurst          int     `mapstructure:"global_burst"`
}

// SelectorConfig overrides backend routing rules.
type SelectorConfig struct {
	ContentTypeRoutes map[string]string `mapstructure:"content_type_routes"`
	BrowserDomains    []string          `mapstructure:"browser_domains"`
	AuthDomains       []string          `mapstructure:"auth_domains"`
}

// CacheConfig controls the result cache tiers.
type CacheConfig struct {
	DefaultTTLMinutes int            `mapstructure:"default_ttl_minutes"`
	ClassTTLMinutes   map[string]int `mapstructure:"class_ttl_minutes"`
	DomainTTLMinutes  map[string]int `mapstructure:"domain_ttl_minutes"`
	JanitorSeconds    int            `mapstructure:"janitor_seconds"`
	PostgresDSN       string         `mapstructure:"postgres_dsn"`
}

// FetchConfig tunes the orchestrator and the plain HTTP backends.
type FetchConfig struct {
	AttemptTimeoutSeconds int    `mapstructure:"attempt_timeout_seconds"`
	TimeoutIsHard         bool   `mapstructure:"timeout_is_hard"`
	UserAgent             string `mapstructure:"user_agent"`
	MaxBodyBytes          int64  `mapstructure:"max_body_bytes"`
}

// HeadlessConfig configures the browser rendering backend.
type HeadlessConfig struct {
	Enabled       bool `mapstructure:"enabled"`
	MaxParallel   int  `mapstructure:"max_parallel"`
	NavTimeoutSec int  `mapstructure:"nav_timeout_seconds"`
}

// ArchiveConfig sets blob persistence for raw payloads.
type ArchiveConfig struct {
	GCSBucket string `mapstructure:"gcs_bucket"`
	Prefix    string `mapstructure:"prefix"`
}

// PubSubConfig holds metadata for completion event publishing.
type PubSubConfig struct {
	ProjectID string `mapstructure:"project_id"`
	TopicName string `mapstructure:"topic_name"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool   `mapstructure:"development"`
	Level       string `mapstructure:"level"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("CONTENTFETCH")
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
	v.SetDefault("limiter.window_seconds", 5)
	v.SetDefault("limiter.default_rate", 1.0)
	v.SetDefault("limiter.min_rate", 0.1)
	v.SetDefault("limiter.max_rate", 10.0)
	v.SetDefault("limiter.success_threshold", 5)
	v.SetDefault("limiter.soft_failure_threshold", 3)
	v.SetDefault("limiter.backoff_factor", 2.0)
	v.SetDefault("limiter.recovery_factor", 1.5)
	v.SetDefault("limiter.global_rate", 0.0)
	v.SetDefault("limiter.global_burst", 1)
	v.SetDefault("cache.default_ttl_minutes", 60)
	v.SetDefault("cache.janitor_seconds", 60)
	v.SetDefault("fetch.attempt_timeout_seconds", 30)
	v.SetDefault("fetch.timeout_is_hard", false)
	v.SetDefault("fetch.user_agent", "contentfetch-bot/1.0")
	v.SetDefault("fetch.max_body_bytes", int64(10<<20))
	v.SetDefault("headless.enabled", true)
	v.SetDefault("headless.max_parallel", 2)
	v.SetDefault("headless.nav_timeout_seconds", 45)
	v.SetDefault("archive.prefix", "pages")
	v.SetDefault("logging.development", true)
	v.SetDefault("logging.level", "")
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	if c.Limiter.WindowSeconds <= 0 {
		return fmt.Errorf("limiter.window_seconds must be > 0")
	}
	if c.Limiter.MinRate <= 0 || c.Limiter.MaxRate < c.Limiter.MinRate {
		return fmt.Errorf("limiter rates must satisfy 0 < min_rate <= max_rate")
	}
	if c.Limiter.DefaultRate < c.Limiter.MinRate || c.Limiter.DefaultRate > c.Limiter.MaxRate {
		return fmt.Errorf("limiter.default_rate must lie within [min_rate, max_rate]")
	}
	if c.Limiter.BackoffFactor <= 1 {
		return fmt.Errorf("limiter.backoff_factor must be > 1")
	}
	if c.Limiter.RecoveryFactor <= 1 {
		return fmt.Errorf("limiter.recovery_factor must be > 1")
	}
	if c.Fetch.AttemptTimeoutSeconds <= 0 {
		return fmt.Errorf("fetch.attempt_timeout_seconds must be > 0")
	}
	if c.Headless.Enabled && c.Headless.MaxParallel <= 0 {
		return fmt.Errorf("headless.max_parallel must be > 0 when headless is enabled")
	}
	if c.PubSub.TopicName != "" && c.PubSub.ProjectID == "" {
		return fmt.Errorf("pubsub.project_id must be set when pubsub.topic_name is set")
	}
	return nil
}

// Window converts the limiter window into a duration.
func (c Config) Window() time.Duration {
	return time.Duration(c.Limiter.WindowSeconds) * time.Second
}

// AttemptTimeout converts the per-attempt budget into a duration.
func (c Config) AttemptTimeout() time.Duration {
	return time.Duration(c.Fetch.AttemptTimeoutSeconds) * time.Second
}
