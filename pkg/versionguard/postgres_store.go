package versionguard

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	_ "github.com/lib/pq"

	"github.com/sbportal/editlock/pkg/observability/logger"
)

const (
	defaultPostgresDocumentTable     = "versioned_documents"
	defaultPostgresDocumentOperation = 3 * time.Second
)

var validTableName = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// PostgresStoreConfig configures the Postgres document store.
type PostgresStoreConfig struct {
	URL              string
	Table            string
	OperationTimeout time.Duration
}

func (c *PostgresStoreConfig) normalize() {
	if strings.TrimSpace(c.Table) == "" {
		c.Table = defaultPostgresDocumentTable
	}
	if c.OperationTimeout <= 0 {
		c.OperationTimeout = defaultPostgresDocumentOperation
	}
}

// PostgresStore keeps versioned documents in a Postgres table. The version
// check happens in the write statement's WHERE clause, so the compare and
// the increment commit together.
type PostgresStore struct {
	db     *sql.DB
	log    logger.Logger
	config PostgresStoreConfig
}

// NewPostgresStore opens a connection and ensures the document table exists.
func NewPostgresStore(cfg PostgresStoreConfig, log logger.Logger) (*PostgresStore, error) {
	if log == nil {
		return nil, fmt.Errorf("%w: logger is required", ErrInvalidArgument)
	}
	if strings.TrimSpace(cfg.URL) == "" {
		return nil, fmt.Errorf("%w: postgres url is required", ErrInvalidArgument)
	}
	cfg.normalize()
	if !validTableName.MatchString(cfg.Table) {
		return nil, fmt.Errorf("%w: invalid document table name %q", ErrInvalidArgument, cfg.Table)
	}

	db, err := sql.Open("postgres", cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("open postgres failed: %w", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), cfg.OperationTimeout)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping postgres failed: %w", err)
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
		return nil, fmt.Errorf("%w: db is required", ErrInvalidArgument)
	}
	if log == nil {
		return nil, fmt.Errorf("%w: logger is required", ErrInvalidArgument)
	}
	cfg.normalize()
	if !validTableName.MatchString(cfg.Table) {
		return nil, fmt.Errorf("%w: invalid document table name %q", ErrInvalidArgument, cfg.Table)
	}
	return &PostgresStore{
		db:     db,
		log:    log,
		config: cfg,
	}, nil
}

// ApplyIfVersion writes content under the version rules of DocumentStore.
func (s *PostgresStore) ApplyIfVersion(ctx context.Context, id string, expected *int64, content []byte) (int64, error) {
	if s == nil || s.db == nil {
		return 0, ErrNotInitialized
	}

	opCtx, cancel := s.operationContext(ctx)
	defer cancel()

	if expected == nil {
		query := fmt.Sprintf(`
INSERT INTO %s(id, version, content, updated_at)
VALUES ($1, 1, $2, NOW())
ON CONFLICT(id) DO UPDATE
SET version = %s.version + 1,
    content = EXCLUDED.content,
    updated_at = NOW()
RETURNING version`, s.config.Table, s.config.Table)
		var version int64
		if err := s.db.QueryRowContext(opCtx, query, id, content).Scan(&version); err != nil {
			return 0, err
		}
		return version, nil
	}

	query := fmt.Sprintf(`UPDATE %s SET version=version+1, content=$2, updated_at=NOW() WHERE id=$1 AND version=$3 RETURNING version`, s.config.Table)
	var version int64
	err := s.db.QueryRowContext(opCtx, query, id, content, *expected).Scan(&version)
	if err == nil {
		return version, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return 0, err
	}

	// No row matched: either the document is gone or the version moved.
	current, err := s.currentVersion(opCtx, id)
	if err != nil {
		return 0, err
	}
	return 0, &ConflictError{ResourceID: id, Expected: *expected, Actual: current}
}

// Get returns the document, or ErrNotFound.
func (s *PostgresStore) Get(ctx context.Context, id string) (*Document, error) {
	if s == nil || s.db == nil {
		return nil, ErrNotInitialized
	}
	opCtx, cancel := s.operationContext(ctx)
	defer cancel()
	query := fmt.Sprintf(`SELECT id, version, content, updated_at FROM %s WHERE id=$1`, s.config.Table)
	var doc Document
	err := s.db.QueryRowContext(opCtx, query, id).Scan(&doc.ID, &doc.Version, &doc.Content, &doc.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return nil, err
	}
	return &doc, nil
}

// Ping reports database connectivity.
func (s *PostgresStore) Ping(ctx context.Context) error {
	if s == nil || s.db == nil {
		return ErrNotInitialized
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

func (s *PostgresStore) currentVersion(ctx context.Context, id string) (int64, error) {
	query := fmt.Sprintf(`SELECT version FROM %s WHERE id=$1`, s.config.Table)
	var version int64
	err := s.db.QueryRowContext(ctx, query, id).Scan(&version)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return 0, err
	}
	return version, nil
}

func (s *PostgresStore) ensureTable(ctx context.Context) error {
	query := fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS %s (
	id TEXT PRIMARY KEY,
	version BIGINT NOT NULL,
	content JSONB NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
)`, s.config.Table)
	_, err := s.db.ExecContext(ctx, query)
	return err
}

func (s *PostgresStore) operationContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithTimeout(ctx, s.config.OperationTimeout)
}
