// Package config defines service configuration and its loading rules.
package config

import "time"

// Config is the root configuration for the service.
type Config struct {
	Service ServiceConfig `mapstructure:"service"`
	HTTP    HTTPConfig    `mapstructure:"http"`
	Log     LogConfig     `mapstructure:"log"`
	Auth    AuthConfig    `mapstructure:"auth"`
	Storage StorageConfig `mapstructure:"storage"`
	Lease   LeaseConfig   `mapstructure:"lease"`
	Session SessionConfig `mapstructure:"session"`
}

// ServiceConfig identifies the running service.
type ServiceConfig struct {
	Name        string `mapstructure:"name"`
	Environment string `mapstructure:"environment"`
}

// HTTPConfig holds HTTP server settings.
type HTTPConfig struct {
	Port         int           `mapstructure:"port"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	IdleTimeout  time.Duration `mapstructure:"idle_timeout"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// AuthConfig holds token verification settings.
type AuthConfig struct {
	JWTSecret string `mapstructure:"jwt_secret"`
}

// Lease store backends.
const (
	BackendMemory   = "memory"
	BackendPostgres = "postgres"
	BackendRedis    = "redis"
)

// StorageConfig selects and configures the backing stores.
type StorageConfig struct {
	// LeaseBackend is one of memory, postgres, redis.
	LeaseBackend string `mapstructure:"lease_backend"`
	// DocumentBackend is one of memory, postgres.
	DocumentBackend string         `mapstructure:"document_backend"`
	Postgres        PostgresConfig `mapstructure:"postgres"`
	Redis           RedisConfig    `mapstructure:"redis"`
}

// PostgresConfig holds PostgreSQL connection settings.
type PostgresConfig struct {
	URL              string        `mapstructure:"url"`
	LeaseTable       string        `mapstructure:"lease_table"`
	DocumentTable    string        `mapstructure:"document_table"`
	OperationTimeout time.Duration `mapstructure:"operation_timeout"`
}

// RedisConfig holds Redis connection settings.
type RedisConfig struct {
	URL              string        `mapstructure:"url"`
	KeyPrefix        string        `mapstructure:"key_prefix"`
	OperationTimeout time.Duration `mapstructure:"operation_timeout"`
}

// LeaseConfig holds server-side lease issuance settings.
type LeaseConfig struct {
	// Duration is how long a lease lives without a heartbeat.
	Duration time.Duration `mapstructure:"duration"`
}

// SessionConfig holds client session timing defaults served to edit sessions.
type SessionConfig struct {
	HeartbeatInterval time.Duration `mapstructure:"heartbeat_interval"`
	IdleTimeout       time.Duration `mapstructure:"idle_timeout"`
	WarningWindow     time.Duration `mapstructure:"warning_window"`
}

// DefaultConfig returns the configuration defaults.
func DefaultConfig() *Config {
	return &Config{
		Service: ServiceConfig{
			Name:        "editlockd",
			Environment: "development",
		},
		HTTP: HTTPConfig{
			Port:         8080,
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 15 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
		Storage: StorageConfig{
			LeaseBackend:    BackendMemory,
			DocumentBackend: BackendMemory,
			Postgres: PostgresConfig{
				LeaseTable:       "resource_leases",
				DocumentTable:    "versioned_documents",
				OperationTimeout: 3 * time.Second,
			},
			Redis: RedisConfig{
				URL:              "redis://localhost:6379/0",
				KeyPrefix:        "editlock:lease",
				OperationTimeout: 3 * time.Second,
			},
		},
		Lease: LeaseConfig{
			Duration: 5 * time.Minute,
		},
		Session: SessionConfig{
			HeartbeatInterval: 60 * time.Second,
			IdleTimeout:       5 * time.Minute,
			WarningWindow:     60 * time.Second,
		},
	}
}
