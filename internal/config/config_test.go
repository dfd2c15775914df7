package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Server.Port != 8000 {
		t.Errorf("Server.Port = %d, want 8000", cfg.Server.Port)
	}
	if cfg.Scheduler.CronSpec != "*/10 * * * *" {
		t.Errorf("Scheduler.CronSpec = %q", cfg.Scheduler.CronSpec)
	}
	if cfg.Scheduler.SourceTimeout != 15*time.Second {
		t.Errorf("Scheduler.SourceTimeout = %v", cfg.Scheduler.SourceTimeout)
	}
	if cfg.Scheduler.Retention != 72*time.Hour {
		t.Errorf("Scheduler.Retention = %v", cfg.Scheduler.Retention)
	}
	if cfg.Extract.UserAgent != "jw-news-reader-api/1.0" {
		t.Errorf("Extract.UserAgent = %q", cfg.Extract.UserAgent)
	}
	if len(cfg.Extract.AllowedHosts) != 1 || cfg.Extract.AllowedHosts[0] != "jw.org" {
		t.Errorf("Extract.AllowedHosts = %v", cfg.Extract.AllowedHosts)
	}
	if cfg.Enrich.Enabled {
		t.Error("Enrich.Enabled should default to false")
	}
	if cfg.SourcesFile != "sources.yaml" {
		t.Errorf("SourcesFile = %q", cfg.SourcesFile)
	}
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	data := `
server:
  port: 9090
log:
  level: DEBUG
scheduler:
  cron: "*/5 * * * *"
  source_timeout: 30s
  concurrency: 8
extract:
  allowed_hosts: [" JW.org ", "wol.jw.org"]
`
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Server.Port != 9090 {
		t.Errorf("Server.Port = %d, want 9090", cfg.Server.Port)
	}
	if cfg.Log.Level != "debug" {
		t.Errorf("Log.Level = %q, want debug (sanitized)", cfg.Log.Level)
	}
	if cfg.Scheduler.Concurrency != 8 {
		t.Errorf("Scheduler.Concurrency = %d, want 8", cfg.Scheduler.Concurrency)
	}
	if cfg.Scheduler.SourceTimeout != 30*time.Second {
		t.Errorf("Scheduler.SourceTimeout = %v", cfg.Scheduler.SourceTimeout)
	}
	// Unset keys keep defaults.
	if cfg.Scheduler.FailureThreshold != 3 {
		t.Errorf("Scheduler.FailureThreshold = %d, want default 3", cfg.Scheduler.FailureThreshold)
	}
	want := []string{"jw.org", "wol.jw.org"}
	if len(cfg.Extract.AllowedHosts) != 2 || cfg.Extract.AllowedHosts[0] != want[0] || cfg.Extract.AllowedHosts[1] != want[1] {
		t.Errorf("Extract.AllowedHosts = %v, want %v", cfg.Extract.AllowedHosts, want)
	}
}

func TestLoadMissingExplicitFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Fatal("expected error for missing explicit config file")
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"port", func(c *Config) { c.Server.Port = 0 }},
		{"basic auth half-configured", func(c *Config) { c.Server.BasicAuthUser = "reader" }},
		{"cron", func(c *Config) { c.Scheduler.CronSpec = "" }},
		{"concurrency", func(c *Config) { c.Scheduler.Concurrency = 0 }},
		{"threshold", func(c *Config) { c.Scheduler.FailureThreshold = 0 }},
		{"backoff", func(c *Config) { c.Scheduler.BackoffCap = c.Scheduler.BackoffBase / 2 }},
		{"retention", func(c *Config) { c.Scheduler.Retention = 0 }},
		{"hosts", func(c *Config) { c.Extract.AllowedHosts = nil }},
		{"workers", func(c *Config) { c.Enrich.Workers = 0 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := Load("")
			if err != nil {
				t.Fatalf("Load: %v", err)
			}
			tt.mutate(cfg)
			if err := cfg.validate(); err == nil {
				t.Fatal("expected validation error")
			}
		})
	}
}
