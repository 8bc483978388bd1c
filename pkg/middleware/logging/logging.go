// Package logging provides request logging middleware.
package logging

import (
	"time"

	"github.com/sbportal/editlock/pkg/middleware/requestid"
	"github.com/sbportal/editlock/pkg/observability/logger"
	"github.com/sbportal/editlock/pkg/server/router"
)

// Config controls which requests get logged.
type Config struct {
	// SkipPaths lists exact request paths that are never logged,
	// typically health and metrics endpoints.
	SkipPaths []string
}

// RequestLogger creates middleware that logs each HTTP request with its
// method, path, status, and duration. Errors returned by the handler chain
// are logged at error level and passed through unchanged.
func RequestLogger(log logger.Logger, cfg Config) router.MiddlewareFunc {
	skip := make(map[string]struct{}, len(cfg.SkipPaths))
	for _, p := range cfg.SkipPaths {
		skip[p] = struct{}{}
	}

	return func(next router.HandlerFunc) router.HandlerFunc {
		return func(c router.Context) error {
			if _, ok := skip[c.Request().URL.Path]; ok {
				return next(c)
			}

			start := time.Now()
			err := next(c)
			duration := time.Since(start)

			fields := []any{
				"request_id", requestid.GetRequestID(c.Request().Context()),
				"method", c.Request().Method,
				"path", c.Request().URL.Path,
				"status", c.Response().Status(),
				"duration_ms", duration.Milliseconds(),
				"remote_addr", c.Request().RemoteAddr,
			}

			if err != nil {
				log.Error("request failed", append(fields, "error", err)...)
				return err
			}

			log.Info("request completed", fields...)
			return nil
		}
	}
}
