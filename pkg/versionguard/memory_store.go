package versionguard

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// MemoryStore is an in-process DocumentStore guarded by one mutex, which
// makes the compare-and-increment atomic.
type MemoryStore struct {
	mu   sync.Mutex
	docs map[string]*Document
	now  func() time.Time
}

// NewMemoryStore creates an empty in-memory document store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		docs: make(map[string]*Document),
		now:  time.Now,
	}
}

// ApplyIfVersion writes content under the version rules of DocumentStore.
func (s *MemoryStore) ApplyIfVersion(ctx context.Context, id string, expected *int64, content []byte) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, exists := s.docs[id]
	if !exists {
		if expected != nil {
			return 0, fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		stored := &Document{
			ID:        id,
			Version:   1,
			Content:   append([]byte(nil), content...),
			UpdatedAt: s.now().UTC(),
		}
		s.docs[id] = stored
		return stored.Version, nil
	}

	if expected != nil && *expected != doc.Version {
		return 0, &ConflictError{ResourceID: id, Expected: *expected, Actual: doc.Version}
	}

	doc.Version++
	doc.Content = append([]byte(nil), content...)
	doc.UpdatedAt = s.now().UTC()
	return doc.Version, nil
}

// Get returns a copy of the document, or ErrNotFound.
func (s *MemoryStore) Get(ctx context.Context, id string) (*Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc, exists := s.docs[id]
	if !exists {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	out := *doc
	out.Content = append([]byte(nil), doc.Content...)
	return &out, nil
}

// Close is a no-op for the in-memory store.
func (s *MemoryStore) Close() error {
	return nil
}
