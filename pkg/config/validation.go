package config

import (
	"errors"
	"fmt"
)

// ValidateConfig checks cross-field constraints. The timing rules keep the
// lock protocol sound: a heartbeat interval at or above the lease duration
// would let held leases expire between renewals.
func ValidateConfig(cfg *Config) error {
	if cfg == nil {
		return errors.New("config is nil")
	}

	var errs []error

	if cfg.HTTP.Port < 1 || cfg.HTTP.Port > 65535 {
		errs = append(errs, fmt.Errorf("http.port must be between 1 and 65535, got %d", cfg.HTTP.Port))
	}

	switch cfg.Storage.LeaseBackend {
	case BackendMemory, BackendPostgres, BackendRedis:
	default:
		errs = append(errs, fmt.Errorf("storage.lease_backend must be one of memory, postgres, redis, got %q", cfg.Storage.LeaseBackend))
	}

	switch cfg.Storage.DocumentBackend {
	case BackendMemory, BackendPostgres:
	default:
		errs = append(errs, fmt.Errorf("storage.document_backend must be one of memory, postgres, got %q", cfg.Storage.DocumentBackend))
	}

	if cfg.Storage.LeaseBackend == BackendPostgres || cfg.Storage.DocumentBackend == BackendPostgres {
		if cfg.Storage.Postgres.URL == "" {
			errs = append(errs, errors.New("storage.postgres.url is required for the postgres backend"))
		}
	}
	if cfg.Storage.LeaseBackend == BackendRedis && cfg.Storage.Redis.URL == "" {
		errs = append(errs, errors.New("storage.redis.url is required for the redis backend"))
	}

	if cfg.Lease.Duration <= 0 {
		errs = append(errs, errors.New("lease.duration must be positive"))
	}
	if cfg.Session.HeartbeatInterval <= 0 {
		errs = append(errs, errors.New("session.heartbeat_interval must be positive"))
	}
	if cfg.Session.HeartbeatInterval >= cfg.Lease.Duration {
		errs = append(errs, fmt.Errorf("session.heartbeat_interval (%s) must be well under lease.duration (%s)",
			cfg.Session.HeartbeatInterval, cfg.Lease.Duration))
	}
	if cfg.Session.IdleTimeout <= 0 {
		errs = append(errs, errors.New("session.idle_timeout must be positive"))
	}
	if cfg.Session.WarningWindow <= 0 || cfg.Session.WarningWindow > cfg.Session.IdleTimeout {
		errs = append(errs, fmt.Errorf("session.warning_window (%s) must be positive and at most session.idle_timeout (%s)",
			cfg.Session.WarningWindow, cfg.Session.IdleTimeout))
	}

	if cfg.Auth.JWTSecret == "" && cfg.Service.Environment != "development" {
		errs = append(errs, errors.New("auth.jwt_secret is required outside development"))
	}

	return errors.Join(errs...)
}
