package lease

import (
	"context"
	"sync"
	"time"
)

// MemoryStore is an in-process Store guarded by one mutex. Suitable for
// single-process deployments and tests; the mutex makes check-and-insert
// atomic per key.
type MemoryStore struct {
	mu    sync.Mutex
	byKey map[Key]*Lease
	byID  map[string]Key
	now   func() time.Time
}

// NewMemoryStore creates an empty in-memory lease store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		byKey: make(map[Key]*Lease),
		byID:  make(map[string]Key),
		now:   time.Now,
	}
}

// Insert creates the lease row unless a row for the key already exists.
func (s *MemoryStore) Insert(ctx context.Context, l *Lease) error {
	if l == nil {
		return leaseError(ErrInvalidArgument, "lease is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	key := l.Key()
	if _, exists := s.byKey[key]; exists {
		return leaseError(ErrDuplicate, "resource already leased")
	}
	stored := *l
	s.byKey[key] = &stored
	s.byID[stored.ID] = key
	return nil
}

// Find returns the live lease by id, or nil.
func (s *MemoryStore) Find(ctx context.Context, id string) (*Lease, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key, ok := s.byID[id]
	if !ok {
		return nil, nil
	}
	l := s.liveLocked(key)
	if l == nil || l.ID != id {
		return nil, nil
	}
	return l, nil
}

// FindByResource returns the live lease on the key, or nil.
func (s *MemoryStore) FindByResource(ctx context.Context, key Key) (*Lease, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.liveLocked(key), nil
}

// Extend moves expiry/heartbeat forward when the live lease is held by holderID.
func (s *MemoryStore) Extend(ctx context.Context, id, holderID string, expiresAt, heartbeatAt time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key, ok := s.byID[id]
	if !ok {
		return false, nil
	}
	l := s.byKey[key]
	if l == nil || l.ID != id || l.HolderID != holderID || l.Expired(s.now()) {
		return false, nil
	}
	l.ExpiresAt = expiresAt
	l.LastHeartbeatAt = heartbeatAt
	return true, nil
}

// Delete removes the lease when held by holderID.
func (s *MemoryStore) Delete(ctx context.Context, id, holderID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key, ok := s.byID[id]
	if !ok {
		return false, nil
	}
	l := s.byKey[key]
	if l == nil || l.ID != id || l.HolderID != holderID {
		return false, nil
	}
	delete(s.byKey, key)
	delete(s.byID, id)
	return true, nil
}

// DeleteByResource removes the lease on the key when held by holderID.
func (s *MemoryStore) DeleteByResource(ctx context.Context, key Key, holderID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	l := s.byKey[key]
	if l == nil || l.HolderID != holderID {
		return nil
	}
	delete(s.byKey, key)
	delete(s.byID, l.ID)
	return nil
}

// PurgeExpired removes the row for the key when its expiry has passed.
func (s *MemoryStore) PurgeExpired(ctx context.Context, key Key) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	l := s.byKey[key]
	if l != nil && l.Expired(s.now()) {
		delete(s.byKey, key)
		delete(s.byID, l.ID)
	}
	return nil
}

// Close is a no-op for the in-memory store.
func (s *MemoryStore) Close() error {
	return nil
}

// liveLocked returns a copy of the lease on key when present and unexpired.
func (s *MemoryStore) liveLocked(key Key) *Lease {
	l := s.byKey[key]
	if l == nil || l.Expired(s.now()) {
		return nil
	}
	out := *l
	return &out
}
