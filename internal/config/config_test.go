package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv(configFileEnvVar, "")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.StoreDriver != DriverMemory || cfg.LockBackend != LockMemory {
		t.Fatalf("unexpected backends %q/%q", cfg.StoreDriver, cfg.LockBackend)
	}
	if cfg.LockTimeout != 5*time.Second {
		t.Fatalf("expected 5s lock timeout, got %s", cfg.LockTimeout)
	}
	if cfg.Address() != ":8080" {
		t.Fatalf("unexpected address %q", cfg.Address())
	}
}

func TestLoadFileThenEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := "store_driver: sqlite\nsqlite_path: " + filepath.Join(dir, "ledger.db") + "\nlock_timeout: 2s\nport: \"9000\"\n"
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv(configFileEnvVar, path)
	t.Setenv("PORT", "9100")
	t.Setenv("LOG_LEVEL", "DEBUG")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.StoreDriver != DriverSQLite {
		t.Fatalf("expected sqlite from file, got %q", cfg.StoreDriver)
	}
	if cfg.LockTimeout != 2*time.Second {
		t.Fatalf("expected lock timeout from file, got %s", cfg.LockTimeout)
	}
	if cfg.Port != "9100" {
		t.Fatalf("expected env to override file port, got %q", cfg.Port)
	}
	if cfg.LogLevel != "debug" {
		t.Fatalf("expected lowercased log level, got %q", cfg.LogLevel)
	}
}

func TestValidateRejectsIncompleteBackends(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{name: "postgres without url", mutate: func(c *Config) { c.StoreDriver = DriverPostgres }},
		{name: "redis lock without url", mutate: func(c *Config) { c.LockBackend = LockRedis }},
		{name: "advisory lock without postgres", mutate: func(c *Config) { c.LockBackend = LockPostgres }},
		{name: "unknown driver", mutate: func(c *Config) { c.StoreDriver = "oracle" }},
		{name: "zero lock timeout", mutate: func(c *Config) { c.LockTimeout = 0 }},
		{name: "zero store timeout", mutate: func(c *Config) { c.StoreTimeout = 0 }},
		{name: "empty advisory lock pool", mutate: func(c *Config) {
			c.StoreDriver, c.DatabaseURL, c.LockBackend, c.LockPoolSize = DriverPostgres, "postgres://x", LockPostgres, 0
		}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := Defaults()
			tc.mutate(&cfg)
			if err := cfg.Validate(); err == nil {
				t.Fatalf("expected validation error")
			}
		})
	}
}

func TestLoadReportsBadDuration(t *testing.T) {
	t.Setenv(configFileEnvVar, "")
	t.Setenv("LOCK_TIMEOUT", "soon")

	_, err := Load()
	if err == nil || !strings.Contains(err.Error(), "parse env") {
		t.Fatalf("expected env parse error, got %v", err)
	}
}
