package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := NewViperLoader("", "EDITLOCK").Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.HTTP.Port != 8080 {
		t.Errorf("HTTP.Port = %d, want 8080", cfg.HTTP.Port)
	}
	if cfg.Storage.LeaseBackend != BackendMemory || cfg.Storage.DocumentBackend != BackendMemory {
		t.Errorf("backends = %q/%q, want memory", cfg.Storage.LeaseBackend, cfg.Storage.DocumentBackend)
	}
	if cfg.Lease.Duration != 5*time.Minute {
		t.Errorf("Lease.Duration = %s, want 5m", cfg.Lease.Duration)
	}
	if cfg.Session.HeartbeatInterval != 60*time.Second {
		t.Errorf("Session.HeartbeatInterval = %s, want 60s", cfg.Session.HeartbeatInterval)
	}
	if cfg.Session.WarningWindow != 60*time.Second {
		t.Errorf("Session.WarningWindow = %s, want 60s", cfg.Session.WarningWindow)
	}
}

func TestLoadEnvOverridesDefaults(t *testing.T) {
	t.Setenv("EDITLOCK_HTTP_PORT", "9090")
	t.Setenv("EDITLOCK_LOG_LEVEL", "debug")
	t.Setenv("EDITLOCK_LEASE_DURATION", "10m")
	t.Setenv("EDITLOCK_STORAGE_LEASE_BACKEND", "redis")
	t.Setenv("EDITLOCK_STORAGE_REDIS_URL", "redis://cache:6379/1")

	cfg, err := NewViperLoader("", "EDITLOCK").Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.HTTP.Port != 9090 {
		t.Errorf("HTTP.Port = %d, want 9090", cfg.HTTP.Port)
	}
	if cfg.Log.Level != "debug" {
		t.Errorf("Log.Level = %q, want debug", cfg.Log.Level)
	}
	if cfg.Lease.Duration != 10*time.Minute {
		t.Errorf("Lease.Duration = %s, want 10m", cfg.Lease.Duration)
	}
	if cfg.Storage.LeaseBackend != BackendRedis {
		t.Errorf("LeaseBackend = %q, want redis", cfg.Storage.LeaseBackend)
	}
	if cfg.Storage.Redis.URL != "redis://cache:6379/1" {
		t.Errorf("Redis.URL = %q", cfg.Storage.Redis.URL)
	}
}

func TestLoadDatabaseURLAlias(t *testing.T) {
	t.Setenv("EDITLOCK_DATABASE_URL", "postgres://db:5432/portal")
	t.Setenv("EDITLOCK_STORAGE_LEASE_BACKEND", "postgres")

	cfg, err := NewViperLoader("", "EDITLOCK").Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Storage.Postgres.URL != "postgres://db:5432/portal" {
		t.Errorf("Postgres.URL = %q", cfg.Storage.Postgres.URL)
	}
}

func TestLoadFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := []byte(`
http:
  port: 7070
lease:
  duration: 2m
session:
  heartbeat_interval: 30s
`)
	if err := os.WriteFile(path, content, 0o600); err != nil {
		t.Fatalf("write config file: %v", err)
	}

	cfg, err := NewViperLoader(path, "EDITLOCK").Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.HTTP.Port != 7070 {
		t.Errorf("HTTP.Port = %d, want 7070", cfg.HTTP.Port)
	}
	if cfg.Lease.Duration != 2*time.Minute {
		t.Errorf("Lease.Duration = %s, want 2m", cfg.Lease.Duration)
	}
	if cfg.Session.HeartbeatInterval != 30*time.Second {
		t.Errorf("Session.HeartbeatInterval = %s, want 30s", cfg.Session.HeartbeatInterval)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := NewViperLoader("/nonexistent/config.yaml", "EDITLOCK").Load(); err == nil {
		t.Error("Load() succeeded with a missing config file")
	}
}

func TestValidateConfig(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{
			name:   "defaults are valid",
			mutate: func(c *Config) {},
		},
		{
			name:    "port out of range",
			mutate:  func(c *Config) { c.HTTP.Port = 0 },
			wantErr: true,
		},
		{
			name:    "unknown lease backend",
			mutate:  func(c *Config) { c.Storage.LeaseBackend = "etcd" },
			wantErr: true,
		},
		{
			name: "postgres backend without url",
			mutate: func(c *Config) {
				c.Storage.LeaseBackend = BackendPostgres
				c.Storage.Postgres.URL = ""
			},
			wantErr: true,
		},
		{
			name: "redis backend without url",
			mutate: func(c *Config) {
				c.Storage.LeaseBackend = BackendRedis
				c.Storage.Redis.URL = ""
			},
			wantErr: true,
		},
		{
			name:    "non-positive lease duration",
			mutate:  func(c *Config) { c.Lease.Duration = 0 },
			wantErr: true,
		},
		{
			name: "heartbeat not under lease duration",
			mutate: func(c *Config) {
				c.Lease.Duration = time.Minute
				c.Session.HeartbeatInterval = time.Minute
			},
			wantErr: true,
		},
		{
			name: "warning window beyond idle timeout",
			mutate: func(c *Config) {
				c.Session.IdleTimeout = time.Minute
				c.Session.WarningWindow = 2 * time.Minute
			},
			wantErr: true,
		},
		{
			name: "production requires a jwt secret",
			mutate: func(c *Config) {
				c.Service.Environment = "production"
				c.Auth.JWTSecret = ""
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			err := ValidateConfig(cfg)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateConfig() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
