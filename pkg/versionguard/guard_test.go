package versionguard

import (
	"context"
	"errors"
	"testing"

	"github.com/sbportal/editlock/pkg/testutil"
)

func newTestGuard(t *testing.T) *Guard {
	t.Helper()
	g, err := NewGuard(NewMemoryStore(), &testutil.MockLogger{})
	if err != nil {
		t.Fatalf("NewGuard() error = %v", err)
	}
	return g
}

func int64p(v int64) *int64 { return &v }

func TestGuardUnconditionalWriteCreates(t *testing.T) {
	g := newTestGuard(t)

	result, err := g.CheckAndApply(context.Background(), "doc-1", nil, []byte(`{"a":1}`))
	if err != nil {
		t.Fatalf("CheckAndApply() error = %v", err)
	}
	if !result.Applied || result.NewVersion != 1 {
		t.Errorf("result = %+v, want applied at version 1", result)
	}

	doc, err := g.Get(context.Background(), "doc-1")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if doc.Version != 1 || string(doc.Content) != `{"a":1}` {
		t.Errorf("doc = %+v, want version 1 with content", doc)
	}
}

func TestGuardMatchingVersionIncrements(t *testing.T) {
	g := newTestGuard(t)

	if _, err := g.CheckAndApply(context.Background(), "doc-1", nil, []byte(`{"a":1}`)); err != nil {
		t.Fatalf("seed write error = %v", err)
	}

	result, err := g.CheckAndApply(context.Background(), "doc-1", int64p(1), []byte(`{"a":2}`))
	if err != nil {
		t.Fatalf("CheckAndApply() error = %v", err)
	}
	if !result.Applied || result.NewVersion != 2 {
		t.Errorf("result = %+v, want applied at version 2", result)
	}
}

func TestGuardStaleVersionConflicts(t *testing.T) {
	g := newTestGuard(t)

	if _, err := g.CheckAndApply(context.Background(), "doc-1", nil, []byte(`{"a":1}`)); err != nil {
		t.Fatalf("seed write error = %v", err)
	}
	if _, err := g.CheckAndApply(context.Background(), "doc-1", int64p(1), []byte(`{"a":2}`)); err != nil {
		t.Fatalf("second write error = %v", err)
	}

	// A writer still holding version 1 must observe a conflict, never win.
	result, err := g.CheckAndApply(context.Background(), "doc-1", int64p(1), []byte(`{"a":"stale"}`))
	if err != nil {
		t.Fatalf("CheckAndApply() error = %v", err)
	}
	if result.Applied {
		t.Fatal("stale write applied")
	}
	if result.CurrentVersion != 2 {
		t.Errorf("CurrentVersion = %d, want 2", result.CurrentVersion)
	}

	doc, _ := g.Get(context.Background(), "doc-1")
	if string(doc.Content) != `{"a":2}` {
		t.Error("stale write mutated the document")
	}
}

func TestGuardVersionedWriteAgainstMissingDocument(t *testing.T) {
	g := newTestGuard(t)

	_, err := g.CheckAndApply(context.Background(), "ghost", int64p(3), []byte(`{}`))
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("CheckAndApply() error = %v, want ErrNotFound", err)
	}
}

func TestGuardValidation(t *testing.T) {
	g := newTestGuard(t)

	if _, err := g.CheckAndApply(context.Background(), "  ", nil, []byte(`{}`)); !errors.Is(err, ErrInvalidArgument) {
		t.Errorf("CheckAndApply() error = %v, want ErrInvalidArgument", err)
	}
	if _, err := g.Get(context.Background(), ""); !errors.Is(err, ErrInvalidArgument) {
		t.Errorf("Get() error = %v, want ErrInvalidArgument", err)
	}
}
