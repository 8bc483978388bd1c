package lease

import (
	"context"
	"errors"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"

	"github.com/sbportal/editlock/pkg/testutil"
)

func newMockLeaseStore(t *testing.T) (*PostgresStore, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("sqlmock.New() error = %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	store, err := newPostgresStoreWithDB(db, PostgresStoreConfig{Table: "resource_leases"}, &testutil.MockLogger{})
	if err != nil {
		t.Fatalf("newPostgresStoreWithDB() error = %v", err)
	}
	return store, mock
}

func testLease(now time.Time) *Lease {
	return &Lease{
		ID:              "9f4ae5b1-0000-4000-8000-000000000001",
		ResourceType:    ResourceTypeCase,
		ResourceID:      "case-1",
		HolderID:        "alice",
		HolderName:      "Alice A",
		AcquiredAt:      now,
		ExpiresAt:       now.Add(5 * time.Minute),
		LastHeartbeatAt: now,
	}
}

func TestPostgresStoreInsert(t *testing.T) {
	store, mock := newMockLeaseStore(t)
	l := testLease(time.Now().UTC())

	mock.ExpectExec(`INSERT INTO resource_leases`).
		WithArgs(l.ID, l.ResourceType, l.ResourceID, l.HolderID, l.HolderName,
			l.AcquiredAt, l.ExpiresAt, l.LastHeartbeatAt).
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := store.Insert(context.Background(), l); err != nil {
		t.Fatalf("Insert() error = %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestPostgresStoreInsertDuplicate(t *testing.T) {
	store, mock := newMockLeaseStore(t)
	l := testLease(time.Now().UTC())

	mock.ExpectExec(`INSERT INTO resource_leases`).
		WillReturnError(&pq.Error{Code: pqUniqueViolation})

	err := store.Insert(context.Background(), l)
	if !errors.Is(err, ErrDuplicate) {
		t.Fatalf("Insert() error = %v, want ErrDuplicate", err)
	}
}

func TestPostgresStoreFindByResourceFiltersExpired(t *testing.T) {
	store, mock := newMockLeaseStore(t)
	now := time.Now().UTC()
	l := testLease(now)

	rows := sqlmock.NewRows([]string{
		"id", "resource_type", "resource_id", "holder_id", "holder_name",
		"acquired_at", "expires_at", "last_heartbeat_at",
	}).AddRow(l.ID, l.ResourceType, l.ResourceID, l.HolderID, l.HolderName,
		l.AcquiredAt, l.ExpiresAt, l.LastHeartbeatAt)

	mock.ExpectQuery(`FROM resource_leases WHERE resource_type=\$1 AND resource_id=\$2 AND expires_at > NOW\(\)`).
		WithArgs(l.ResourceType, l.ResourceID).
		WillReturnRows(rows)

	got, err := store.FindByResource(context.Background(), Key{ResourceType: l.ResourceType, ResourceID: l.ResourceID})
	if err != nil {
		t.Fatalf("FindByResource() error = %v", err)
	}
	if got == nil || got.ID != l.ID || got.HolderName != "Alice A" {
		t.Errorf("FindByResource() = %+v, want lease %s", got, l.ID)
	}
}

func TestPostgresStoreFindAbsent(t *testing.T) {
	store, mock := newMockLeaseStore(t)

	mock.ExpectQuery(`FROM resource_leases WHERE id=\$1 AND expires_at > NOW\(\)`).
		WithArgs("missing").
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	got, err := store.Find(context.Background(), "missing")
	if err != nil {
		t.Fatalf("Find() error = %v", err)
	}
	if got != nil {
		t.Errorf("Find() = %+v, want nil", got)
	}
}

func TestPostgresStoreExtend(t *testing.T) {
	store, mock := newMockLeaseStore(t)
	now := time.Now().UTC()

	mock.ExpectExec(`UPDATE resource_leases SET expires_at=\$3, last_heartbeat_at=\$4 WHERE id=\$1 AND holder_id=\$2 AND expires_at > NOW\(\)`).
		WithArgs("lease-1", "alice", now.Add(5*time.Minute), now).
		WillReturnResult(sqlmock.NewResult(0, 1))

	ok, err := store.Extend(context.Background(), "lease-1", "alice", now.Add(5*time.Minute), now)
	if err != nil {
		t.Fatalf("Extend() error = %v", err)
	}
	if !ok {
		t.Error("Extend() = false, want true")
	}
}

func TestPostgresStoreExtendRejected(t *testing.T) {
	store, mock := newMockLeaseStore(t)
	now := time.Now().UTC()

	mock.ExpectExec(`UPDATE resource_leases`).
		WillReturnResult(sqlmock.NewResult(0, 0))

	ok, err := store.Extend(context.Background(), "lease-1", "bob", now.Add(5*time.Minute), now)
	if err != nil {
		t.Fatalf("Extend() error = %v", err)
	}
	if ok {
		t.Error("Extend() = true for non-holder, want false")
	}
}

func TestPostgresStoreDelete(t *testing.T) {
	store, mock := newMockLeaseStore(t)

	mock.ExpectExec(`DELETE FROM resource_leases WHERE id=\$1 AND holder_id=\$2`).
		WithArgs("lease-1", "alice").
		WillReturnResult(sqlmock.NewResult(0, 1))

	ok, err := store.Delete(context.Background(), "lease-1", "alice")
	if err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if !ok {
		t.Error("Delete() = false, want true")
	}
}

func TestPostgresStorePurgeExpired(t *testing.T) {
	store, mock := newMockLeaseStore(t)

	mock.ExpectExec(`DELETE FROM resource_leases WHERE resource_type=\$1 AND resource_id=\$2 AND expires_at <= NOW\(\)`).
		WithArgs(ResourceTypeCase, "case-1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := store.PurgeExpired(context.Background(), Key{ResourceType: ResourceTypeCase, ResourceID: "case-1"})
	if err != nil {
		t.Fatalf("PurgeExpired() error = %v", err)
	}
}

func TestPostgresStoreInvalidTableName(t *testing.T) {
	db, _, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New() error = %v", err)
	}
	defer db.Close()

	if _, err := newPostgresStoreWithDB(db, PostgresStoreConfig{Table: "leases; DROP TABLE x"}, &testutil.MockLogger{}); err == nil {
		t.Error("newPostgresStoreWithDB() accepted an invalid table name")
	}
}
