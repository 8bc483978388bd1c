package lease

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/lib/pq"

	"github.com/sbportal/editlock/pkg/observability/logger"
)

const (
	defaultPostgresLeaseTable     = "resource_leases"
	defaultPostgresLeaseOperation = 3 * time.Second

	pqUniqueViolation = "23505"
)

var validTableName = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// PostgresStoreConfig configures the Postgres lease store.
type PostgresStoreConfig struct {
	URL              string
	Table            string
	OperationTimeout time.Duration
}

func (c *PostgresStoreConfig) normalize() {
	if strings.TrimSpace(c.Table) == "" {
		c.Table = defaultPostgresLeaseTable
	}
	if c.OperationTimeout <= 0 {
		c.OperationTimeout = defaultPostgresLeaseOperation
	}
}

// PostgresStore keeps lease rows in a Postgres table. A uniqueness constraint
// on (resource_type, resource_id) makes acquire-on-contended-key atomic.
type PostgresStore struct {
	db     *sql.DB
	log    logger.Logger
	config PostgresStoreConfig
}

// NewPostgresStore opens a connection and ensures the lease table exists.
func NewPostgresStore(cfg PostgresStoreConfig, log logger.Logger) (*PostgresStore, error) {
	if log == nil {
		return nil, leaseError(ErrInvalidArgument, "logger is required")
	}
	if strings.TrimSpace(cfg.URL) == "" {
		return nil, leaseError(ErrInvalidArgument, "postgres url is required")
	}
	cfg.normalize()
	if !validTableName.MatchString(cfg.Table) {
		return nil, leaseError(ErrInvalidArgument, fmt.Sprintf("invalid lease table name %q", cfg.Table))
	}

	db, err := sql.Open("postgres", cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("open postgres failed: %w", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), cfg.OperationTimeout)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, errors.Join(leaseError(ErrUnavailable, "ping postgres failed"), err)
	}

	store := &PostgresStore{
		db:     db,
		log:    log,
		config: cfg,
	}
	if err := store.ensureTable(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

func newPostgresStoreWithDB(db *sql.DB, cfg PostgresStoreConfig, log logger.Logger) (*PostgresStore, error) {
	if db == nil {
		return nil, leaseError(ErrInvalidArgument, "db is required")
	}
	if log == nil {
		return nil, leaseError(ErrInvalidArgument, "logger is required")
	}
	cfg.normalize()
	if !validTableName.MatchString(cfg.Table) {
		return nil, leaseError(ErrInvalidArgument, fmt.Sprintf("invalid lease table name %q", cfg.Table))
	}
	return &PostgresStore{
		db:     db,
		log:    log,
		config: cfg,
	}, nil
}

// Insert creates the lease row. The uniqueness constraint turns a racing
// insert into ErrDuplicate, so the losing racer can re-read the winner.
func (s *PostgresStore) Insert(ctx context.Context, l *Lease) error {
	if s == nil || s.db == nil {
		return leaseError(ErrNotInitialized, "")
	}
	if l == nil {
		return leaseError(ErrInvalidArgument, "lease is required")
	}

	opCtx, cancel := s.operationContext(ctx)
	defer cancel()
	query := fmt.Sprintf(`
INSERT INTO %s(id, resource_type, resource_id, holder_id, holder_name, acquired_at, expires_at, last_heartbeat_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`, s.config.Table)
	_, err := s.db.ExecContext(opCtx, query,
		l.ID, l.ResourceType, l.ResourceID, l.HolderID, l.HolderName,
		l.AcquiredAt, l.ExpiresAt, l.LastHeartbeatAt)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == pqUniqueViolation {
			return leaseError(ErrDuplicate, "resource already leased")
		}
		return err
	}
	return nil
}

// Find returns the live lease by id, or nil.
func (s *PostgresStore) Find(ctx context.Context, id string) (*Lease, error) {
	if s == nil || s.db == nil {
		return nil, leaseError(ErrNotInitialized, "")
	}
	query := fmt.Sprintf(`
SELECT id, resource_type, resource_id, holder_id, holder_name, acquired_at, expires_at, last_heartbeat_at
FROM %s WHERE id=$1 AND expires_at > NOW()`, s.config.Table)
	return s.queryOne(ctx, query, id)
}

// FindByResource returns the live lease on the key, or nil.
func (s *PostgresStore) FindByResource(ctx context.Context, key Key) (*Lease, error) {
	if s == nil || s.db == nil {
		return nil, leaseError(ErrNotInitialized, "")
	}
	query := fmt.Sprintf(`
SELECT id, resource_type, resource_id, holder_id, holder_name, acquired_at, expires_at, last_heartbeat_at
FROM %s WHERE resource_type=$1 AND resource_id=$2 AND expires_at > NOW()`, s.config.Table)
	return s.queryOne(ctx, query, key.ResourceType, key.ResourceID)
}

// Extend moves expiry/heartbeat forward when the live lease is held by holderID.
func (s *PostgresStore) Extend(ctx context.Context, id, holderID string, expiresAt, heartbeatAt time.Time) (bool, error) {
	if s == nil || s.db == nil {
		return false, leaseError(ErrNotInitialized, "")
	}
	opCtx, cancel := s.operationContext(ctx)
	defer cancel()
	query := fmt.Sprintf(`UPDATE %s SET expires_at=$3, last_heartbeat_at=$4 WHERE id=$1 AND holder_id=$2 AND expires_at > NOW()`, s.config.Table)
	result, err := s.db.ExecContext(opCtx, query, id, holderID, expiresAt, heartbeatAt)
	if err != nil {
		return false, err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected > 0, nil
}

// Delete removes the lease when held by holderID.
func (s *PostgresStore) Delete(ctx context.Context, id, holderID string) (bool, error) {
	if s == nil || s.db == nil {
		return false, leaseError(ErrNotInitialized, "")
	}
	opCtx, cancel := s.operationContext(ctx)
	defer cancel()
	query := fmt.Sprintf(`DELETE FROM %s WHERE id=$1 AND holder_id=$2`, s.config.Table)
	result, err := s.db.ExecContext(opCtx, query, id, holderID)
	if err != nil {
		return false, err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected > 0, nil
}

// DeleteByResource removes the lease on the key when held by holderID.
func (s *PostgresStore) DeleteByResource(ctx context.Context, key Key, holderID string) error {
	if s == nil || s.db == nil {
		return leaseError(ErrNotInitialized, "")
	}
	opCtx, cancel := s.operationContext(ctx)
	defer cancel()
	query := fmt.Sprintf(`DELETE FROM %s WHERE resource_type=$1 AND resource_id=$2 AND holder_id=$3`, s.config.Table)
	_, err := s.db.ExecContext(opCtx, query, key.ResourceType, key.ResourceID, holderID)
	return err
}

// PurgeExpired removes expired rows for the key.
func (s *PostgresStore) PurgeExpired(ctx context.Context, key Key) error {
	if s == nil || s.db == nil {
		return leaseError(ErrNotInitialized, "")
	}
	opCtx, cancel := s.operationContext(ctx)
	defer cancel()
	query := fmt.Sprintf(`DELETE FROM %s WHERE resource_type=$1 AND resource_id=$2 AND expires_at <= NOW()`, s.config.Table)
	_, err := s.db.ExecContext(opCtx, query, key.ResourceType, key.ResourceID)
	return err
}

// Ping reports database connectivity.
func (s *PostgresStore) Ping(ctx context.Context) error {
	if s == nil || s.db == nil {
		return leaseError(ErrNotInitialized, "")
	}
	opCtx, cancel := s.operationContext(ctx)
	defer cancel()
	return s.db.PingContext(opCtx)
}

// Close closes DB resources.
func (s *PostgresStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *PostgresStore) ensureTable(ctx context.Context) error {
	query := fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS %s (
	id UUID PRIMARY KEY,
	resource_type TEXT NOT NULL,
	resource_id TEXT NOT NULL,
	holder_id TEXT NOT NULL,
	holder_name TEXT NOT NULL DEFAULT '',
	acquired_at TIMESTAMPTZ NOT NULL,
	expires_at TIMESTAMPTZ NOT NULL,
	last_heartbeat_at TIMESTAMPTZ NOT NULL,
	UNIQUE (resource_type, resource_id)
)`, s.config.Table)
	_, err := s.db.ExecContext(ctx, query)
	return err
}

func (s *PostgresStore) queryOne(ctx context.Context, query string, args ...interface{}) (*Lease, error) {
	opCtx, cancel := s.operationContext(ctx)
	defer cancel()
	var l Lease
	err := s.db.QueryRowContext(opCtx, query, args...).Scan(
		&l.ID, &l.ResourceType, &l.ResourceID, &l.HolderID, &l.HolderName,
		&l.AcquiredAt, &l.ExpiresAt, &l.LastHeartbeatAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &l, nil
}

func (s *PostgresStore) operationContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithTimeout(ctx, s.config.OperationTimeout)
}
