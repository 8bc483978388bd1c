// Package lease implements single-writer edit leasing for shared resources.
// A lease is a time-bounded exclusive claim held by one user, renewed via
// heartbeat and reclaimed lazily after expiry.
package lease

import (
	"context"
	"strings"
	"time"
)

// Resource type tags for the editable document kinds.
const (
	ResourceTypeCase           = "case"
	ResourceTypeDepartmentList = "department_list"
)

// Key identifies the resource a lease protects.
type Key struct {
	ResourceType string
	ResourceID   string
}

// Validate reports whether the key carries both parts.
func (k Key) Validate() error {
	if strings.TrimSpace(k.ResourceType) == "" {
		return leaseError(ErrInvalidArgument, "resource type is required")
	}
	if strings.TrimSpace(k.ResourceID) == "" {
		return leaseError(ErrInvalidArgument, "resource id is required")
	}
	return nil
}

// Lease is an exclusive editing claim on one resource.
type Lease struct {
	ID              string    `json:"id"`
	ResourceType    string    `json:"resource_type"`
	ResourceID      string    `json:"resource_id"`
	HolderID        string    `json:"holder_id"`
	HolderName      string    `json:"holder_name"`
	AcquiredAt      time.Time `json:"acquired_at"`
	ExpiresAt       time.Time `json:"expires_at"`
	LastHeartbeatAt time.Time `json:"last_heartbeat_at"`
}

// Key returns the resource key of the lease.
func (l *Lease) Key() Key {
	return Key{ResourceType: l.ResourceType, ResourceID: l.ResourceID}
}

// Expired reports whether the lease is logically absent at the given instant.
func (l *Lease) Expired(now time.Time) bool {
	return !l.ExpiresAt.After(now)
}

// Store is the durable table mapping resource keys to lease records.
// Insert must be atomic per key: of two concurrent inserts for the same key,
// exactly one succeeds and the other observes ErrDuplicate. Finders never
// return a lease whose expiry has passed.
type Store interface {
	// Insert creates the lease row. Returns ErrDuplicate when a row for the
	// resource key already exists (live or not yet purged).
	Insert(ctx context.Context, l *Lease) error

	// Find returns the live lease with the given id, or nil when absent.
	Find(ctx context.Context, id string) (*Lease, error)

	// FindByResource returns the live lease on the key, or nil when absent.
	FindByResource(ctx context.Context, key Key) (*Lease, error)

	// Extend moves expiry and heartbeat forward when the live lease exists
	// and is held by holderID. Reports whether the update applied.
	Extend(ctx context.Context, id, holderID string, expiresAt, heartbeatAt time.Time) (bool, error)

	// Delete removes the lease when held by holderID. Reports whether a row
	// was removed.
	Delete(ctx context.Context, id, holderID string) (bool, error)

	// DeleteByResource removes the lease on the key when held by holderID.
	DeleteByResource(ctx context.Context, key Key, holderID string) error

	// PurgeExpired removes expired rows for the key. Storage reclamation
	// only: finders already treat expired rows as absent.
	PurgeExpired(ctx context.Context, key Key) error

	// Close releases store resources.
	Close() error
}
