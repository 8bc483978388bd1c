package config

import (
	"fmt"

	"github.com/spf13/viper"
)

// Loader defines the interface for loading configuration
type Loader interface {
	Load() (*Config, error)
	Validate(*Config) error
}

// ViperLoader implements Loader using Viper for configuration management
type ViperLoader struct {
	configFile string
	envPrefix  string
}

// NewViperLoader creates a new ViperLoader.
// configFile: path to configuration file (optional, can be empty)
// envPrefix: prefix for environment variables (e.g., "EDITLOCK")
func NewViperLoader(configFile, envPrefix string) *ViperLoader {
	return &ViperLoader{
		configFile: configFile,
		envPrefix:  envPrefix,
	}
}

// Load loads configuration with precedence: ENV > file > defaults
func (l *ViperLoader) Load() (*Config, error) {
	v := viper.New()

	l.setDefaults(v, DefaultConfig())

	if l.configFile != "" {
		v.SetConfigFile(l.configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", l.configFile, err)
		}
	}

	v.SetEnvPrefix(l.envPrefix)
	l.bindEnvVars(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := l.Validate(&cfg); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

// Validate checks the configuration for consistency.
func (l *ViperLoader) Validate(cfg *Config) error {
	return ValidateConfig(cfg)
}

func (l *ViperLoader) setDefaults(v *viper.Viper, d *Config) {
	v.SetDefault("service.name", d.Service.Name)
	v.SetDefault("service.environment", d.Service.Environment)

	v.SetDefault("http.port", d.HTTP.Port)
	v.SetDefault("http.read_timeout", d.HTTP.ReadTimeout)
	v.SetDefault("http.write_timeout", d.HTTP.WriteTimeout)
	v.SetDefault("http.idle_timeout", d.HTTP.IdleTimeout)

	v.SetDefault("log.level", d.Log.Level)
	v.SetDefault("log.format", d.Log.Format)

	v.SetDefault("auth.jwt_secret", d.Auth.JWTSecret)

	v.SetDefault("storage.lease_backend", d.Storage.LeaseBackend)
	v.SetDefault("storage.document_backend", d.Storage.DocumentBackend)
	v.SetDefault("storage.postgres.url", d.Storage.Postgres.URL)
	v.SetDefault("storage.postgres.lease_table", d.Storage.Postgres.LeaseTable)
	v.SetDefault("storage.postgres.document_table", d.Storage.Postgres.DocumentTable)
	v.SetDefault("storage.postgres.operation_timeout", d.Storage.Postgres.OperationTimeout)
	v.SetDefault("storage.redis.url", d.Storage.Redis.URL)
	v.SetDefault("storage.redis.key_prefix", d.Storage.Redis.KeyPrefix)
	v.SetDefault("storage.redis.operation_timeout", d.Storage.Redis.OperationTimeout)

	v.SetDefault("lease.duration", d.Lease.Duration)

	v.SetDefault("session.heartbeat_interval", d.Session.HeartbeatInterval)
	v.SetDefault("session.idle_timeout", d.Session.IdleTimeout)
	v.SetDefault("session.warning_window", d.Session.WarningWindow)
}

// bindEnvVars explicitly binds environment variables for nested structs
func (l *ViperLoader) bindEnvVars(v *viper.Viper) {
	v.BindEnv("service.name", l.prefixedEnv("SERVICE_NAME"))
	v.BindEnv("service.environment", l.prefixedEnv("SERVICE_ENVIRONMENT"), l.prefixedEnv("ENVIRONMENT"))

	v.BindEnv("http.port", l.prefixedEnv("HTTP_PORT"))
	v.BindEnv("http.read_timeout", l.prefixedEnv("HTTP_READ_TIMEOUT"))
	v.BindEnv("http.write_timeout", l.prefixedEnv("HTTP_WRITE_TIMEOUT"))
	v.BindEnv("http.idle_timeout", l.prefixedEnv("HTTP_IDLE_TIMEOUT"))

	v.BindEnv("log.level", l.prefixedEnv("LOG_LEVEL"))
	v.BindEnv("log.format", l.prefixedEnv("LOG_FORMAT"))

	v.BindEnv("auth.jwt_secret", l.prefixedEnv("AUTH_JWT_SECRET"))

	v.BindEnv("storage.lease_backend", l.prefixedEnv("STORAGE_LEASE_BACKEND"))
	v.BindEnv("storage.document_backend", l.prefixedEnv("STORAGE_DOCUMENT_BACKEND"))
	v.BindEnv("storage.postgres.url", l.prefixedEnv("STORAGE_POSTGRES_URL"), l.prefixedEnv("DATABASE_URL"))
	v.BindEnv("storage.postgres.lease_table", l.prefixedEnv("STORAGE_POSTGRES_LEASE_TABLE"))
	v.BindEnv("storage.postgres.document_table", l.prefixedEnv("STORAGE_POSTGRES_DOCUMENT_TABLE"))
	v.BindEnv("storage.postgres.operation_timeout", l.prefixedEnv("STORAGE_POSTGRES_OPERATION_TIMEOUT"))
	v.BindEnv("storage.redis.url", l.prefixedEnv("STORAGE_REDIS_URL"), l.prefixedEnv("REDIS_URL"))
	v.BindEnv("storage.redis.key_prefix", l.prefixedEnv("STORAGE_REDIS_KEY_PREFIX"))
	v.BindEnv("storage.redis.operation_timeout", l.prefixedEnv("STORAGE_REDIS_OPERATION_TIMEOUT"))

	v.BindEnv("lease.duration", l.prefixedEnv("LEASE_DURATION"))

	v.BindEnv("session.heartbeat_interval", l.prefixedEnv("SESSION_HEARTBEAT_INTERVAL"))
	v.BindEnv("session.idle_timeout", l.prefixedEnv("SESSION_IDLE_TIMEOUT"))
	v.BindEnv("session.warning_window", l.prefixedEnv("SESSION_WARNING_WINDOW"))
}

func (l *ViperLoader) prefixedEnv(name string) string {
	if l.envPrefix == "" {
		return name
	}
	return l.envPrefix + "_" + name
}
