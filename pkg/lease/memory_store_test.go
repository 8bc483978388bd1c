package lease

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestMemoryStoreInsertDuplicate(t *testing.T) {
	store := NewMemoryStore()
	now := time.Now().UTC()
	l := testLease(now)

	if err := store.Insert(context.Background(), l); err != nil {
		t.Fatalf("Insert() error = %v", err)
	}

	other := testLease(now)
	other.ID = "9f4ae5b1-0000-4000-8000-000000000002"
	other.HolderID = "bob"
	err := store.Insert(context.Background(), other)
	if !errors.Is(err, ErrDuplicate) {
		t.Fatalf("Insert() error = %v, want ErrDuplicate", err)
	}
}

func TestMemoryStoreFindStaleIDAfterTakeover(t *testing.T) {
	store := NewMemoryStore()
	base := time.Now().UTC()
	now := base
	store.now = func() time.Time { return now }

	first := testLease(base)
	if err := store.Insert(context.Background(), first); err != nil {
		t.Fatalf("Insert() error = %v", err)
	}

	// First lease expires; another holder takes the key.
	now = base.Add(6 * time.Minute)
	if err := store.PurgeExpired(context.Background(), first.Key()); err != nil {
		t.Fatalf("PurgeExpired() error = %v", err)
	}
	second := testLease(now)
	second.ID = "9f4ae5b1-0000-4000-8000-000000000002"
	second.HolderID = "bob"
	if err := store.Insert(context.Background(), second); err != nil {
		t.Fatalf("Insert() error = %v", err)
	}

	// The old lease id must not resolve to the new lease.
	got, err := store.Find(context.Background(), first.ID)
	if err != nil {
		t.Fatalf("Find() error = %v", err)
	}
	if got != nil {
		t.Errorf("Find(stale id) = %+v, want nil", got)
	}
}

func TestMemoryStoreFindReturnsCopy(t *testing.T) {
	store := NewMemoryStore()
	l := testLease(time.Now().UTC())
	if err := store.Insert(context.Background(), l); err != nil {
		t.Fatalf("Insert() error = %v", err)
	}

	got, err := store.FindByResource(context.Background(), l.Key())
	if err != nil {
		t.Fatalf("FindByResource() error = %v", err)
	}
	got.HolderID = "mallory"

	again, err := store.FindByResource(context.Background(), l.Key())
	if err != nil {
		t.Fatalf("FindByResource() error = %v", err)
	}
	if again.HolderID != "alice" {
		t.Error("store returned a shared mutable lease")
	}
}
