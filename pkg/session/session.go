// Package session implements the client side of the edit-locking protocol:
// a per-resource state machine that acquires the lock, renews it with
// heartbeats, tracks user idleness, warns before an idle kick, and releases
// the lock on the way out. One session exists per open resource view; all
// state is owned by a single event loop goroutine, so transitions never
// race and every timer is stopped before the next state's timers are armed.
package session

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/sbportal/editlock/pkg/observability/logger"
)

// State is the lifecycle phase of an edit session.
type State string

const (
	StateIdle      State = "idle"
	StateAcquiring State = "acquiring"
	StateHeld      State = "held"
	StateWarning   State = "warning"
	StateDenied    State = "denied"
	StateReleased  State = "released"
)

// SaveOutcome is the result of the pre-kick autosave, surfaced verbatim to
// the user: saved, conflict, or nothing to save.
type SaveOutcome string

const (
	SaveOutcomeSaved     SaveOutcome = "saved"
	SaveOutcomeConflict  SaveOutcome = "conflict"
	SaveOutcomeNoChanges SaveOutcome = "no_changes"
)

// Reason explains why a session reached StateReleased.
type Reason string

const (
	// ReasonUser is an explicit user-initiated release.
	ReasonUser Reason = "user"
	// ReasonLockLost means a heartbeat was rejected or failed; the session
	// no longer has authority to write.
	ReasonLockLost Reason = "lock_lost"
	// ReasonIdleTimeout is the idle kick after the warning countdown ran out.
	ReasonIdleTimeout Reason = "idle_timeout"
	// ReasonShutdown is teardown or page unload; release went via the beacon.
	ReasonShutdown Reason = "shutdown"
)

// Session timing defaults.
const (
	DefaultHeartbeatInterval = 60 * time.Second
	DefaultIdleTimeout       = 5 * time.Minute
	DefaultWarningWindow     = 60 * time.Second

	callTimeout = 10 * time.Second
)

// SaveFunc is the autosave collaborator invoked right before an idle kick,
// while the session still holds the lock.
type SaveFunc func(ctx context.Context) (SaveOutcome, error)

// Config configures an edit session.
type Config struct {
	ResourceType string
	ResourceID   string

	// HeartbeatInterval must be well under the server's lease duration.
	HeartbeatInterval time.Duration
	// IdleTimeout is how long without user activity before the kick.
	IdleTimeout time.Duration
	// WarningWindow is how long before the kick the warning shows. Must be
	// at most IdleTimeout.
	WarningWindow time.Duration

	// Save is optional. When nil the idle kick reports no_changes.
	Save SaveFunc
	// OnChange is optional and observes every state transition. It is
	// called from the session's own goroutine and must not block.
	OnChange func(Snapshot)
}

func (c *Config) normalize() error {
	if strings.TrimSpace(c.ResourceType) == "" || strings.TrimSpace(c.ResourceID) == "" {
		return fmt.Errorf("resource type and id are required")
	}
	if c.HeartbeatInterval <= 0 {
		c.HeartbeatInterval = DefaultHeartbeatInterval
	}
	if c.IdleTimeout <= 0 {
		c.IdleTimeout = DefaultIdleTimeout
	}
	if c.WarningWindow <= 0 {
		c.WarningWindow = DefaultWarningWindow
	}
	if c.WarningWindow > c.IdleTimeout {
		return fmt.Errorf("warning window (%s) must be at most idle timeout (%s)", c.WarningWindow, c.IdleTimeout)
	}
	return nil
}

// Snapshot is an observer's view of the session at one instant.
type Snapshot struct {
	State       State
	LeaseID     string
	Holder      *HolderInfo
	SecondsLeft int
	Reason      Reason
	// KickOutcome is set on ReasonIdleTimeout releases. Empty means the
	// autosave itself failed.
	KickOutcome SaveOutcome
}

type eventKind int

const (
	evActivity eventKind = iota
	evRelease
	evAbandon
)

type event struct {
	kind  eventKind
	reply chan struct{}
}

// Session drives the lock lifecycle for a single open resource.
type Session struct {
	api    LeaseAPI
	beacon ReleaseBeacon
	cfg    Config
	log    logger.Logger

	mu      sync.Mutex
	snap    Snapshot
	started bool

	events chan event
	done   chan struct{}

	// Loop-owned fields. Nothing outside the loop goroutine touches them
	// after Start.
	leaseID     string
	heartbeat   *time.Timer
	idle        *time.Timer
	countdown   *time.Ticker
	secondsLeft int
}

// NewSession creates a session. Start must be called to acquire the lock.
func NewSession(api LeaseAPI, beacon ReleaseBeacon, cfg Config, log logger.Logger) (*Session, error) {
	if api == nil {
		return nil, fmt.Errorf("lease api is required")
	}
	if log == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if err := cfg.normalize(); err != nil {
		return nil, err
	}
	return &Session{
		api:    api,
		beacon: beacon,
		cfg:    cfg,
		log:    log,
		snap:   Snapshot{State: StateIdle},
		events: make(chan event, 8),
		done:   make(chan struct{}),
	}, nil
}

// Start attempts to acquire the lock. On success the session moves to Held
// and begins heartbeating; on contention it moves to Denied with the
// holder's record. A transport failure is treated as Denied: the user-facing
// effect is the same, no write access. The returned state is terminal only
// for Denied; a Held session runs until released or the context is
// cancelled (cancellation releases via the beacon, the unload path).
func (s *Session) Start(ctx context.Context) (State, error) {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return s.snap.State, fmt.Errorf("session already started")
	}
	s.started = true
	s.mu.Unlock()

	s.setSnapshot(Snapshot{State: StateAcquiring})

	result, err := s.api.Acquire(ctx, s.cfg.ResourceType, s.cfg.ResourceID)
	if err != nil {
		s.log.Warn("acquire failed, treating as denied",
			"resource_type", s.cfg.ResourceType,
			"resource_id", s.cfg.ResourceID,
			"error", err,
		)
		s.setSnapshot(Snapshot{State: StateDenied})
		close(s.done)
		return StateDenied, nil
	}
	if !result.Acquired {
		s.setSnapshot(Snapshot{State: StateDenied, Holder: result.Holder})
		close(s.done)
		return StateDenied, nil
	}

	s.leaseID = result.Lease.LeaseID
	s.heartbeat = time.NewTimer(s.cfg.HeartbeatInterval)
	s.idle = time.NewTimer(s.idleDelay())
	s.setSnapshot(Snapshot{State: StateHeld, LeaseID: s.leaseID})

	go s.loop(ctx)
	return StateHeld, nil
}

// RegisterActivity records user activity. In Held it pushes the idle kick
// out; in Warning it cancels the countdown and returns to Held. Heartbeats
// never count as activity.
func (s *Session) RegisterActivity() {
	s.send(event{kind: evActivity})
}

// StayActive is the warning dialog's keep-editing action.
func (s *Session) StayActive() {
	s.send(event{kind: evActivity})
}

// Release ends the session on behalf of the user and waits for cleanup.
func (s *Session) Release(ctx context.Context) error {
	ev := event{kind: evRelease, reply: make(chan struct{})}
	select {
	case s.events <- ev:
	case <-s.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case <-ev.reply:
		return nil
	case <-s.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Abandon ends the session without waiting, releasing via the beacon. This
// is the teardown path; it never blocks.
func (s *Session) Abandon() {
	s.send(event{kind: evAbandon})
}

// Snapshot returns the current observable state.
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snap
}

// Done is closed when the session reaches a terminal state.
func (s *Session) Done() <-chan struct{} {
	return s.done
}

func (s *Session) send(ev event) {
	select {
	case s.events <- ev:
	case <-s.done:
	}
}

func (s *Session) loop(ctx context.Context) {
	defer func() {
		stopTimer(s.heartbeat)
		stopTimer(s.idle)
		s.stopCountdown()
		close(s.done)
	}()

	for {
		select {
		case <-ctx.Done():
			if s.beacon != nil {
				s.beacon.Send(s.leaseID)
			}
			s.setSnapshot(Snapshot{State: StateReleased, Reason: ReasonShutdown})
			return

		case <-s.heartbeat.C:
			if !s.doHeartbeat() {
				s.setSnapshot(Snapshot{State: StateReleased, Reason: ReasonLockLost})
				return
			}
			s.heartbeat.Reset(s.cfg.HeartbeatInterval)

		case <-s.idle.C:
			s.enterWarning()

		case <-s.countdownC():
			s.secondsLeft--
			if s.secondsLeft <= 0 {
				s.kick()
				return
			}
			s.setSnapshot(Snapshot{State: StateWarning, LeaseID: s.leaseID, SecondsLeft: s.secondsLeft})

		case ev := <-s.events:
			switch ev.kind {
			case evActivity:
				s.touch()
			case evRelease:
				s.releaseLease()
				s.setSnapshot(Snapshot{State: StateReleased, Reason: ReasonUser})
				if ev.reply != nil {
					close(ev.reply)
				}
				return
			case evAbandon:
				if s.beacon != nil {
					s.beacon.Send(s.leaseID)
				}
				s.setSnapshot(Snapshot{State: StateReleased, Reason: ReasonShutdown})
				return
			}
		}
	}
}

// doHeartbeat renews the lease. Any failure, transport or rejection, means
// the session must stop editing immediately; it never retries.
func (s *Session) doHeartbeat() bool {
	ctx, cancel := context.WithTimeout(context.Background(), callTimeout)
	defer cancel()

	ok, err := s.api.Heartbeat(ctx, s.leaseID)
	if err != nil {
		s.log.Warn("heartbeat failed, lock lost", "lease_id", s.leaseID, "error", err)
		return false
	}
	if !ok {
		s.log.Info("heartbeat rejected, lock lost", "lease_id", s.leaseID)
	}
	return ok
}

// touch records activity: rearm the idle timer and, in Warning, cancel the
// countdown and go back to Held.
func (s *Session) touch() {
	s.stopCountdown()
	stopTimer(s.idle)
	s.idle.Reset(s.idleDelay())
	s.setSnapshot(Snapshot{State: StateHeld, LeaseID: s.leaseID})
}

func (s *Session) enterWarning() {
	s.secondsLeft = int(s.cfg.WarningWindow / time.Second)
	if s.secondsLeft <= 0 {
		s.kick()
		return
	}
	s.countdown = time.NewTicker(time.Second)
	s.setSnapshot(Snapshot{State: StateWarning, LeaseID: s.leaseID, SecondsLeft: s.secondsLeft})
}

// kick is the idle timeout firing: autosave while the lock is still held,
// then release. The outcome is surfaced verbatim to the user.
func (s *Session) kick() {
	s.stopCountdown()

	outcome := SaveOutcomeNoChanges
	if s.cfg.Save != nil {
		ctx, cancel := context.WithTimeout(context.Background(), callTimeout)
		saved, err := s.cfg.Save(ctx)
		cancel()
		if err != nil {
			s.log.Warn("autosave before idle kick failed", "lease_id", s.leaseID, "error", err)
			outcome = ""
		} else {
			outcome = saved
		}
	}

	s.releaseLease()
	s.setSnapshot(Snapshot{State: StateReleased, Reason: ReasonIdleTimeout, KickOutcome: outcome})
}

func (s *Session) releaseLease() {
	ctx, cancel := context.WithTimeout(context.Background(), callTimeout)
	defer cancel()
	if _, err := s.api.Release(ctx, s.leaseID); err != nil {
		s.log.Warn("release failed, lease will expire on its own", "lease_id", s.leaseID, "error", err)
	}
}

func (s *Session) idleDelay() time.Duration {
	return s.cfg.IdleTimeout - s.cfg.WarningWindow
}

func (s *Session) countdownC() <-chan time.Time {
	if s.countdown == nil {
		return nil
	}
	return s.countdown.C
}

func (s *Session) stopCountdown() {
	if s.countdown != nil {
		s.countdown.Stop()
		s.countdown = nil
	}
}

func (s *Session) setSnapshot(snap Snapshot) {
	s.mu.Lock()
	s.snap = snap
	s.mu.Unlock()
	if s.cfg.OnChange != nil {
		s.cfg.OnChange(snap)
	}
}

// stopTimer stops t and drains its channel so a later Reset cannot observe
// a stale expiry.
func stopTimer(t *time.Timer) {
	if t == nil {
		return
	}
	if !t.Stop() {
		select {
		case <-t.C:
		default:
		}
	}
}
