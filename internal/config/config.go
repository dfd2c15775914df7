// Package config loads service configuration from an optional YAML
// file and JW_READER_* environment variables, with working defaults
// for every knob.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is the fully resolved service configuration.
type Config struct {
	Server         Server
	Log            Log
	Scheduler      Scheduler
	Store          Store
	Extract        Extract
	Enrich         Enrich
	SourcesFile    string
	PublishersFile string
}

// Server configures the HTTP serving layer.
type Server struct {
	Port int
	// Mode is the gin mode: "release", "debug" or "test".
	Mode string
	// BasicAuthUser/BasicAuthPass guard every route except /health
	// when both are set.
	BasicAuthUser string
	BasicAuthPass string
}

// Log configures structured logging.
type Log struct {
	Level string
}

// Scheduler configures the refresh cycle driver.
type Scheduler struct {
	// CronSpec is a standard 5-field cron expression for cycle ticks.
	CronSpec string
	// StartupDelay postpones the first cycle so the process can finish
	// wiring before outbound traffic starts.
	StartupDelay time.Duration
	// SourceTimeout bounds one adapter fetch.
	SourceTimeout time.Duration
	// Concurrency caps how many source fetches run at once.
	Concurrency int
	// FailureThreshold is the consecutive-failure count after which a
	// source is degraded.
	FailureThreshold int
	// BackoffBase and BackoffCap bound the exponential skip window for
	// degraded sources.
	BackoffBase time.Duration
	BackoffCap  time.Duration
	// Retention is the window articles stay cached after their last
	// sighting.
	Retention time.Duration
}

// Store configures cache persistence.
type Store struct {
	// SnapshotPath enables bbolt snapshots when non-empty.
	SnapshotPath string
}

// Extract configures the reader-mode extraction endpoint.
type Extract struct {
	AllowedHosts []string
	Timeout      time.Duration
	UserAgent    string
	MaxBodyBytes int
}

// Enrich configures OpenGraph metadata enrichment of new articles.
type Enrich struct {
	Enabled      bool
	Workers      int
	Timeout      time.Duration
	RequestDelay time.Duration
	MaxPerCycle  int
}

// Load reads configuration from cfgFile (optional; "config.yaml" in
// the working directory is tried when empty), layers JW_READER_*
// environment variables on top, applies defaults, and validates the
// result.
func Load(cfgFile string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("/etc/jw-news-reader-api")
	}

	v.SetEnvPrefix("JW_READER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if cfgFile != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	cfg := &Config{
		Server: Server{
			Port:          v.GetInt("server.port"),
			Mode:          v.GetString("server.mode"),
			BasicAuthUser: v.GetString("server.basic_auth_user"),
			BasicAuthPass: v.GetString("server.basic_auth_pass"),
		},
		Log: Log{
			Level: v.GetString("log.level"),
		},
		Scheduler: Scheduler{
			CronSpec:         v.GetString("scheduler.cron"),
			StartupDelay:     v.GetDuration("scheduler.startup_delay"),
			SourceTimeout:    v.GetDuration("scheduler.source_timeout"),
			Concurrency:      v.GetInt("scheduler.concurrency"),
			FailureThreshold: v.GetInt("scheduler.failure_threshold"),
			BackoffBase:      v.GetDuration("scheduler.backoff_base"),
			BackoffCap:       v.GetDuration("scheduler.backoff_cap"),
			Retention:        v.GetDuration("scheduler.retention"),
		},
		Store: Store{
			SnapshotPath: v.GetString("store.snapshot_path"),
		},
		Extract: Extract{
			AllowedHosts: v.GetStringSlice("extract.allowed_hosts"),
			Timeout:      v.GetDuration("extract.timeout"),
			UserAgent:    v.GetString("extract.user_agent"),
			MaxBodyBytes: v.GetInt("extract.max_body_bytes"),
		},
		Enrich: Enrich{
			Enabled:      v.GetBool("enrich.enabled"),
			Workers:      v.GetInt("enrich.workers"),
			Timeout:      v.GetDuration("enrich.timeout"),
			RequestDelay: v.GetDuration("enrich.request_delay"),
			MaxPerCycle:  v.GetInt("enrich.max_per_cycle"),
		},
		SourcesFile:    v.GetString("sources.file"),
		PublishersFile: v.GetString("publishers.file"),
	}

	cfg.sanitize()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8000)
	v.SetDefault("server.mode", "release")
	v.SetDefault("server.basic_auth_user", "")
	v.SetDefault("server.basic_auth_pass", "")
	v.SetDefault("log.level", "info")
	v.SetDefault("scheduler.cron", "*/10 * * * *")
	v.SetDefault("scheduler.startup_delay", "5s")
	v.SetDefault("scheduler.source_timeout", "15s")
	v.SetDefault("scheduler.concurrency", 4)
	v.SetDefault("scheduler.failure_threshold", 3)
	v.SetDefault("scheduler.backoff_base", "20m")
	v.SetDefault("scheduler.backoff_cap", "6h")
	v.SetDefault("scheduler.retention", "72h")
	v.SetDefault("store.snapshot_path", "")
	v.SetDefault("sources.file", "sources.yaml")
	v.SetDefault("publishers.file", "")
	v.SetDefault("extract.allowed_hosts", []string{"jw.org"})
	v.SetDefault("extract.timeout", "10s")
	v.SetDefault("extract.user_agent", "jw-news-reader-api/1.0")
	v.SetDefault("extract.max_body_bytes", 1<<20)
	v.SetDefault("enrich.enabled", false)
	v.SetDefault("enrich.workers", 4)
	v.SetDefault("enrich.timeout", "10s")
	v.SetDefault("enrich.request_delay", "500ms")
	v.SetDefault("enrich.max_per_cycle", 50)
}

// sanitize normalizes fields that tolerate sloppy input.
func (c *Config) sanitize() {
	c.Log.Level = strings.ToLower(strings.TrimSpace(c.Log.Level))
	c.Server.Mode = strings.ToLower(strings.TrimSpace(c.Server.Mode))

	hosts := make([]string, 0, len(c.Extract.AllowedHosts))
	for _, h := range c.Extract.AllowedHosts {
		h = strings.ToLower(strings.TrimSpace(h))
		if h != "" {
			hosts = append(hosts, h)
		}
	}
	c.Extract.AllowedHosts = hosts
}

// validate rejects configurations the service cannot run with.
func (c *Config) validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("config: server.port %d out of range", c.Server.Port)
	}
	if (c.Server.BasicAuthUser == "") != (c.Server.BasicAuthPass == "") {
		return fmt.Errorf("config: server basic auth needs both user and pass")
	}
	if c.Scheduler.CronSpec == "" {
		return fmt.Errorf("config: scheduler.cron must not be empty")
	}
	if c.Scheduler.SourceTimeout <= 0 {
		return fmt.Errorf("config: scheduler.source_timeout must be positive")
	}
	if c.Scheduler.Concurrency < 1 {
		return fmt.Errorf("config: scheduler.concurrency must be at least 1")
	}
	if c.Scheduler.FailureThreshold < 1 {
		return fmt.Errorf("config: scheduler.failure_threshold must be at least 1")
	}
	if c.Scheduler.BackoffBase <= 0 || c.Scheduler.BackoffCap < c.Scheduler.BackoffBase {
		return fmt.Errorf("config: scheduler backoff window is invalid")
	}
	if c.Scheduler.Retention <= 0 {
		return fmt.Errorf("config: scheduler.retention must be positive")
	}
	if len(c.Extract.AllowedHosts) == 0 {
		return fmt.Errorf("config: extract.allowed_hosts must not be empty")
	}
	if c.Extract.Timeout <= 0 {
		return fmt.Errorf("config: extract.timeout must be positive")
	}
	if c.Extract.MaxBodyBytes < 1 {
		return fmt.Errorf("config: extract.max_body_bytes must be positive")
	}
	if c.Enrich.Workers < 1 {
		return fmt.Errorf("config: enrich.workers must be at least 1")
	}
	return nil
}
