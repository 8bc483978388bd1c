// Package versionguard implements the optimistic version check on document
// writes. A write carries the version the caller believes is current; the
// store applies it with a single compare-and-increment and reports a conflict
// with the authoritative version otherwise. The guard knows nothing about
// leases: both protections are independent.
package versionguard

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sbportal/editlock/pkg/observability/logger"
	"github.com/sbportal/editlock/pkg/observability/metrics"
)

var (
	// ErrNotFound classifies writes against a missing document with an expected version.
	ErrNotFound = errors.New("document not found")
	// ErrInvalidArgument classifies invalid caller arguments.
	ErrInvalidArgument = errors.New("versionguard invalid argument")
	// ErrNotInitialized classifies operations on an uninitialized store.
	ErrNotInitialized = errors.New("versionguard store not initialized")
)

// ConflictError is returned by stores when the expected version no longer
// matches the stored version at commit time.
type ConflictError struct {
	ResourceID string
	Expected   int64
	Actual     int64
}

// Error implements the error interface.
func (e *ConflictError) Error() string {
	return fmt.Sprintf("version conflict on %s: expected %d, got %d",
		e.ResourceID, e.Expected, e.Actual)
}

// Document is a versioned content record.
type Document struct {
	ID        string    `json:"id"`
	Version   int64     `json:"version"`
	Content   []byte    `json:"content"`
	UpdatedAt time.Time `json:"updated_at"`
}

// DocumentStore persists versioned documents. ApplyIfVersion must be a single
// atomic compare-and-increment at the storage layer, not a read-then-write
// pair: of two racing writers with the same expected version, exactly one
// commits and the other observes *ConflictError.
type DocumentStore interface {
	// ApplyIfVersion writes content and increments the version by one. When
	// expected is nil the write applies unconditionally (creating the
	// document at version 1 when absent). Returns the new version, a
	// *ConflictError on mismatch, or ErrNotFound for a versioned write
	// against a missing document.
	ApplyIfVersion(ctx context.Context, id string, expected *int64, content []byte) (int64, error)

	// Get returns the document, or ErrNotFound.
	Get(ctx context.Context, id string) (*Document, error)

	// Close releases store resources.
	Close() error
}

// Result reports the outcome of a guarded write.
type Result struct {
	Applied        bool
	NewVersion     int64
	CurrentVersion int64
}

// Guard performs version-checked writes against a DocumentStore.
type Guard struct {
	store   DocumentStore
	log     logger.Logger
	metrics *metrics.VersionMetrics
}

// NewGuard creates a version guard on top of the given store.
func NewGuard(store DocumentStore, log logger.Logger) (*Guard, error) {
	if store == nil {
		return nil, fmt.Errorf("%w: store is required", ErrInvalidArgument)
	}
	if log == nil {
		return nil, fmt.Errorf("%w: logger is required", ErrInvalidArgument)
	}
	return &Guard{store: store, log: log}, nil
}

// WithMetrics attaches version counters. Optional.
func (g *Guard) WithMetrics(vm *metrics.VersionMetrics) *Guard {
	g.metrics = vm
	return g
}

// CheckAndApply writes content when expected matches the stored version at
// commit time, or unconditionally when expected is nil. A mismatch is an
// outcome, not an error: the result carries the authoritative current
// version so the caller can decide how to proceed.
func (g *Guard) CheckAndApply(ctx context.Context, resourceID string, expected *int64, content []byte) (Result, error) {
	if strings.TrimSpace(resourceID) == "" {
		return Result{}, fmt.Errorf("%w: resource id is required", ErrInvalidArgument)
	}

	newVersion, err := g.store.ApplyIfVersion(ctx, resourceID, expected, content)
	if err != nil {
		var conflict *ConflictError
		if errors.As(err, &conflict) {
			if g.metrics != nil {
				g.metrics.ConflictsTotal.Inc()
			}
			g.log.WithContext(ctx).Info("version conflict",
				"resource_id", resourceID,
				"expected", conflict.Expected,
				"current", conflict.Actual,
			)
			return Result{Applied: false, CurrentVersion: conflict.Actual}, nil
		}
		return Result{}, err
	}

	if g.metrics != nil {
		g.metrics.AppliesTotal.Inc()
	}
	return Result{Applied: true, NewVersion: newVersion}, nil
}

// Get returns the current document.
func (g *Guard) Get(ctx context.Context, resourceID string) (*Document, error) {
	if strings.TrimSpace(resourceID) == "" {
		return nil, fmt.Errorf("%w: resource id is required", ErrInvalidArgument)
	}
	return g.store.Get(ctx, resourceID)
}
