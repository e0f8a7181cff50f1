// Package config loads and validates engine configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config captures all engine configuration knobs loaded via Viper.
type Config struct {
	Logging   LoggingConfig   `mapstructure:"logging"`
	Crawler   CrawlerConfig   `mapstructure:"crawler"`
	Identity  IdentityConfig  `mapstructure:"identity"`
	RateLimit RateLimitConfig `mapstructure:"ratelimit"`
	DB        DBConfig        `mapstructure:"db"`
	Snapshots SnapshotsConfig `mapstructure:"snapshots"`
	PubSub    PubSubConfig    `mapstructure:"pubsub"`
	Server    ServerConfig    `mapstructure:"server"`
	Filter    FilterConfig    `mapstructure:"filter"`
	Sources   []string        `mapstructure:"sources"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool `mapstructure:"development"`
}

// CrawlerConfig governs the scheduler and the fetch state machine.
type CrawlerConfig struct {
	Concurrency       int     `mapstructure:"concurrency"`
	MaxPages          int     `mapstructure:"max_pages"`
	StaggerSeconds    float64 `mapstructure:"stagger_seconds"`
	FetchDetails      bool    `mapstructure:"fetch_details"`
	DetailConcurrency int     `mapstructure:"detail_concurrency"`
	NavTimeoutSec     int     `mapstructure:"nav_timeout_seconds"`
	PageAttempts      int     `mapstructure:"page_attempts"`
	SnapshotPages     bool    `mapstructure:"snapshot_pages"`
}

// IdentityConfig lists the rotating browser identities.
type IdentityConfig struct {
	UserAgents []string `mapstructure:"user_agents"`
	Proxies    []string `mapstructure:"proxies"`
}

// RateLimitConfig caps the per-host request rate.
type RateLimitConfig struct {
	RequestsPerSecond float64 `mapstructure:"requests_per_second"`
	Burst             int     `mapstructure:"burst"`
}

// DBConfig controls access to the relational database. An empty DSN selects
// the in-memory store.
type DBConfig struct {
	DSN      string `mapstructure:"dsn"`
	Table    string `mapstructure:"table"`
	MaxConns int32  `mapstructure:"max_conns"`
}

// SnapshotsConfig selects where raw page snapshots go.
type SnapshotsConfig struct {
	// Provider is one of "none", "local", "memory", "gcs".
	Provider string `mapstructure:"provider"`
	BaseDir  string `mapstructure:"base_dir"`
	Bucket   string `mapstructure:"bucket"`
	Prefix   string `mapstructure:"prefix"`
}

// PubSubConfig holds metadata for run-summary notifications.
type PubSubConfig struct {
	ProjectID string `mapstructure:"project_id"`
	TopicID   string `mapstructure:"topic_id"`
}

// ServerConfig controls the ops HTTP server.
type ServerConfig struct {
	Enabled bool `mapstructure:"enabled"`
	Port    int  `mapstructure:"port"`
}

// FilterConfig overrides the built-in exclusion rule data. Empty lists keep
// the defaults.
type FilterConfig struct {
	StaffingKeywords      []string       `mapstructure:"staffing_keywords"`
	Industries            []string       `mapstructure:"industries"`
	Locations             []string       `mapstructure:"locations"`
	PhonePrefixes         []string       `mapstructure:"phone_prefixes"`
	LargeCompanyThreshold int            `mapstructure:"large_company_threshold"`
	SourcePriority        map[string]int `mapstructure:"source_priority"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("JOBHARVEST")
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
	v.SetDefault("logging.development", true)
	v.SetDefault("crawler.concurrency", 3)
	v.SetDefault("crawler.max_pages", 5)
	v.SetDefault("crawler.stagger_seconds", 1.5)
	v.SetDefault("crawler.fetch_details", false)
	v.SetDefault("crawler.detail_concurrency", 3)
	v.SetDefault("crawler.nav_timeout_seconds", 45)
	v.SetDefault("crawler.page_attempts", 2)
	v.SetDefault("crawler.snapshot_pages", false)
	v.SetDefault("ratelimit.requests_per_second", 1)
	v.SetDefault("ratelimit.burst", 2)
	v.SetDefault("db.table", "job_records")
	v.SetDefault("snapshots.provider", "none")
	v.SetDefault("snapshots.prefix", "pages")
	v.SetDefault("server.enabled", false)
	v.SetDefault("server.port", 8080)
	v.SetDefault("sources", []string{"townwork", "machbaito", "hellowork"})
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Crawler.Concurrency <= 0 {
		return fmt.Errorf("crawler.concurrency must be > 0")
	}
	if c.Crawler.MaxPages <= 0 {
		return fmt.Errorf("crawler.max_pages must be > 0")
	}
	if c.Crawler.NavTimeoutSec <= 0 {
		return fmt.Errorf("crawler.nav_timeout_seconds must be > 0")
	}
	if c.RateLimit.RequestsPerSecond <= 0 {
		return fmt.Errorf("ratelimit.requests_per_second must be > 0")
	}
	if c.Server.Enabled && c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0 when the server is enabled")
	}
	switch c.Snapshots.Provider {
	case "", "none", "memory":
	case "local":
		if c.Snapshots.BaseDir == "" {
			return fmt.Errorf("snapshots.base_dir is required for the local provider")
		}
	case "gcs":
		if c.Snapshots.Bucket == "" {
			return fmt.Errorf("snapshots.bucket is required for the gcs provider")
		}
	default:
		return fmt.Errorf("unknown snapshots.provider %q", c.Snapshots.Provider)
	}
	if len(c.Sources) == 0 {
		return fmt.Errorf("at least one source is required")
	}
	return nil
}

// NavTimeout returns the navigation timeout as a duration.
func (c Config) NavTimeout() time.Duration {
	return time.Duration(c.Crawler.NavTimeoutSec) * time.Second
}

// Stagger returns the per-task launch stagger as a duration.
func (c Config) Stagger() time.Duration {
	return time.Duration(c.Crawler.StaggerSeconds * float64(time.Second))
}
