package lease

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/sbportal/editlock/pkg/observability/logger"
	"github.com/sbportal/editlock/pkg/observability/metrics"
)

// DefaultDuration is how long a lease lives without a heartbeat.
const DefaultDuration = 5 * time.Minute

// ManagerConfig configures lease issuance.
type ManagerConfig struct {
	Duration time.Duration
}

func (c *ManagerConfig) normalize() {
	if c.Duration <= 0 {
		c.Duration = DefaultDuration
	}
}

// Manager is the only writer of the lease store. It implements acquire,
// heartbeat, release and get with lazy expiry; contention is reported
// through return values, never through errors.
type Manager struct {
	store   Store
	log     logger.Logger
	metrics *metrics.LeaseMetrics
	config  ManagerConfig
	now     func() time.Time
}

// Outcome is the result of an acquire attempt. When Acquired is true, Lease
// is the caller's (new or refreshed) lease. When false, Lease is the
// complete record of the current holder.
type Outcome struct {
	Acquired bool
	Lease    *Lease
}

// NewManager creates a lease manager on top of the given store.
func NewManager(store Store, cfg ManagerConfig, log logger.Logger) (*Manager, error) {
	if store == nil {
		return nil, leaseError(ErrInvalidArgument, "store is required")
	}
	if log == nil {
		return nil, leaseError(ErrInvalidArgument, "logger is required")
	}
	cfg.normalize()
	return &Manager{
		store:  store,
		log:    log,
		config: cfg,
		now:    time.Now,
	}, nil
}

// WithMetrics attaches lease counters. Optional.
func (m *Manager) WithMetrics(lm *metrics.LeaseMetrics) *Manager {
	m.metrics = lm
	return m
}

// Duration returns the configured lease lifetime.
func (m *Manager) Duration() time.Duration {
	return m.config.Duration
}

// Acquire attempts to take the lease on a resource for holderID. Expired
// rows on the key are purged first. A live lease held by the same user is
// refreshed and reported as acquired (re-entrant). A live lease held by
// someone else yields a denied outcome carrying the full existing record.
// Concurrent acquires resolve to exactly one winner through the store's
// atomic insert; a losing racer re-reads the winning lease.
func (m *Manager) Acquire(ctx context.Context, key Key, holderID, holderName string) (*Outcome, error) {
	if err := key.Validate(); err != nil {
		return nil, err
	}
	if strings.TrimSpace(holderID) == "" {
		return nil, leaseError(ErrInvalidArgument, "holder id is required")
	}

	if err := m.store.PurgeExpired(ctx, key); err != nil {
		return nil, err
	}

	existing, err := m.store.FindByResource(ctx, key)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		if existing.HolderID == holderID {
			now := m.now().UTC()
			expiresAt := now.Add(m.config.Duration)
			extended, err := m.store.Extend(ctx, existing.ID, holderID, expiresAt, now)
			if err != nil {
				return nil, err
			}
			if extended {
				existing.ExpiresAt = expiresAt
				existing.LastHeartbeatAt = now
				m.countAcquire("refreshed")
				return &Outcome{Acquired: true, Lease: existing}, nil
			}
			// Lease vanished between find and extend; fall through to insert.
		} else {
			m.countAcquire("denied")
			return &Outcome{Acquired: false, Lease: existing}, nil
		}
	}

	now := m.now().UTC()
	fresh := &Lease{
		ID:              uuid.New().String(),
		ResourceType:    key.ResourceType,
		ResourceID:      key.ResourceID,
		HolderID:        holderID,
		HolderName:      holderName,
		AcquiredAt:      now,
		ExpiresAt:       now.Add(m.config.Duration),
		LastHeartbeatAt: now,
	}

	if err := m.store.Insert(ctx, fresh); err != nil {
		if errors.Is(err, ErrDuplicate) {
			// Lost the race. Re-read the winner instead of overwriting it.
			winner, findErr := m.store.FindByResource(ctx, key)
			if findErr != nil {
				return nil, findErr
			}
			if winner != nil && winner.HolderID != holderID {
				m.countAcquire("denied")
				return &Outcome{Acquired: false, Lease: winner}, nil
			}
			if winner != nil {
				m.countAcquire("acquired")
				return &Outcome{Acquired: true, Lease: winner}, nil
			}
		}
		return nil, err
	}

	m.countAcquire("acquired")
	m.log.WithContext(ctx).Info("lease acquired",
		"lease_id", fresh.ID,
		"resource_type", fresh.ResourceType,
		"resource_id", fresh.ResourceID,
		"expires_at", fresh.ExpiresAt,
	)
	return &Outcome{Acquired: true, Lease: fresh}, nil
}

// Heartbeat extends the lease identified by leaseID when it is still held by
// holderID. Returns false when the lease is gone or held by someone else;
// callers must treat false as lock lost and stop editing.
func (m *Manager) Heartbeat(ctx context.Context, leaseID, holderID string) (bool, error) {
	if strings.TrimSpace(leaseID) == "" || strings.TrimSpace(holderID) == "" {
		return false, leaseError(ErrInvalidArgument, "lease id and holder id are required")
	}
	now := m.now().UTC()
	extended, err := m.store.Extend(ctx, leaseID, holderID, now.Add(m.config.Duration), now)
	if err != nil {
		return false, err
	}
	m.countHeartbeat(extended)
	return extended, nil
}

// Release removes the lease. Idempotent: returns true when the lease is
// already gone or was removed by its holder; false only when the lease
// exists but belongs to someone else.
func (m *Manager) Release(ctx context.Context, leaseID, holderID string) (bool, error) {
	if strings.TrimSpace(leaseID) == "" || strings.TrimSpace(holderID) == "" {
		return false, leaseError(ErrInvalidArgument, "lease id and holder id are required")
	}
	deleted, err := m.store.Delete(ctx, leaseID, holderID)
	if err != nil {
		return false, err
	}
	if deleted {
		m.countRelease("released")
		return true, nil
	}
	current, err := m.store.Find(ctx, leaseID)
	if err != nil {
		return false, err
	}
	if current == nil {
		m.countRelease("already_gone")
		return true, nil
	}
	m.countRelease("rejected")
	return false, nil
}

// ReleaseByResource removes the lease on the key when holderID holds it.
// Best-effort variant for callers that do not know the lease id.
func (m *Manager) ReleaseByResource(ctx context.Context, key Key, holderID string) error {
	if err := key.Validate(); err != nil {
		return err
	}
	if strings.TrimSpace(holderID) == "" {
		return leaseError(ErrInvalidArgument, "holder id is required")
	}
	return m.store.DeleteByResource(ctx, key, holderID)
}

// Get returns the live lease on the key, or nil. Expired rows are purged
// first so callers never observe a stale lease.
func (m *Manager) Get(ctx context.Context, key Key) (*Lease, error) {
	if err := key.Validate(); err != nil {
		return nil, err
	}
	if err := m.store.PurgeExpired(ctx, key); err != nil {
		return nil, err
	}
	return m.store.FindByResource(ctx, key)
}

func (m *Manager) countAcquire(outcome string) {
	if m.metrics != nil {
		m.metrics.AcquiresTotal.WithLabelValues(outcome).Inc()
	}
}

func (m *Manager) countHeartbeat(ok bool) {
	if m.metrics == nil {
		return
	}
	if ok {
		m.metrics.HeartbeatsTotal.WithLabelValues("extended").Inc()
	} else {
		m.metrics.HeartbeatsTotal.WithLabelValues("rejected").Inc()
	}
}

func (m *Manager) countRelease(outcome string) {
	if m.metrics != nil {
		m.metrics.ReleasesTotal.WithLabelValues(outcome).Inc()
	}
}
