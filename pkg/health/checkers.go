package health

import (
	"context"
	"time"
)

// Pinger is anything that can report connectivity with a ping.
type Pinger interface {
	Ping(ctx context.Context) error
}

// PingChecker verifies connectivity to a backing store with a bounded ping.
type PingChecker struct {
	name    string
	pinger  Pinger
	timeout time.Duration
}

// NewPingChecker creates a checker around a store's ping.
func NewPingChecker(name string, pinger Pinger, timeout time.Duration) *PingChecker {
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	return &PingChecker{name: name, pinger: pinger, timeout: timeout}
}

// Name returns the checker name.
func (c *PingChecker) Name() string { return c.name }

// Check pings the store within the configured timeout.
func (c *PingChecker) Check(ctx context.Context) CheckResult {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	start := time.Now()
	result := CheckResult{
		Name:      c.name,
		Status:    StatusHealthy,
		Timestamp: start.UTC(),
	}
	if err := c.pinger.Ping(ctx); err != nil {
		result.Status = StatusUnhealthy
		result.Error = err.Error()
	}
	result.Duration = time.Since(start)
	return result
}
