package versionguard

import (
	"context"
	"errors"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"

	"github.com/sbportal/editlock/pkg/testutil"
)

func newMockDocumentStore(t *testing.T) (*PostgresStore, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("sqlmock.New() error = %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	store, err := newPostgresStoreWithDB(db, PostgresStoreConfig{Table: "versioned_documents"}, &testutil.MockLogger{})
	if err != nil {
		t.Fatalf("newPostgresStoreWithDB() error = %v", err)
	}
	return store, mock
}

func TestPostgresStoreUnconditionalUpsert(t *testing.T) {
	store, mock := newMockDocumentStore(t)

	mock.ExpectQuery(`INSERT INTO versioned_documents.+ON CONFLICT\(id\) DO UPDATE`).
		WithArgs("doc-1", []byte(`{"a":1}`)).
		WillReturnRows(sqlmock.NewRows([]string{"version"}).AddRow(int64(1)))

	version, err := store.ApplyIfVersion(context.Background(), "doc-1", nil, []byte(`{"a":1}`))
	if err != nil {
		t.Fatalf("ApplyIfVersion() error = %v", err)
	}
	if version != 1 {
		t.Errorf("version = %d, want 1", version)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestPostgresStoreVersionedUpdate(t *testing.T) {
	store, mock := newMockDocumentStore(t)
	expected := int64(3)

	mock.ExpectQuery(`UPDATE versioned_documents SET version=version\+1.+WHERE id=\$1 AND version=\$3 RETURNING version`).
		WithArgs("doc-1", []byte(`{"a":2}`), expected).
		WillReturnRows(sqlmock.NewRows([]string{"version"}).AddRow(int64(4)))

	version, err := store.ApplyIfVersion(context.Background(), "doc-1", &expected, []byte(`{"a":2}`))
	if err != nil {
		t.Fatalf("ApplyIfVersion() error = %v", err)
	}
	if version != 4 {
		t.Errorf("version = %d, want 4", version)
	}
}

func TestPostgresStoreVersionConflict(t *testing.T) {
	store, mock := newMockDocumentStore(t)
	expected := int64(1)

	mock.ExpectQuery(`UPDATE versioned_documents`).
		WithArgs("doc-1", []byte(`{}`), expected).
		WillReturnRows(sqlmock.NewRows([]string{"version"}))
	mock.ExpectQuery(`SELECT version FROM versioned_documents WHERE id=\$1`).
		WithArgs("doc-1").
		WillReturnRows(sqlmock.NewRows([]string{"version"}).AddRow(int64(5)))

	_, err := store.ApplyIfVersion(context.Background(), "doc-1", &expected, []byte(`{}`))
	var conflict *ConflictError
	if !errors.As(err, &conflict) {
		t.Fatalf("ApplyIfVersion() error = %v, want ConflictError", err)
	}
	if conflict.Actual != 5 || conflict.Expected != 1 {
		t.Errorf("conflict = %+v, want expected 1 actual 5", conflict)
	}
}

func TestPostgresStoreVersionedUpdateMissingDocument(t *testing.T) {
	store, mock := newMockDocumentStore(t)
	expected := int64(2)

	mock.ExpectQuery(`UPDATE versioned_documents`).
		WithArgs("ghost", []byte(`{}`), expected).
		WillReturnRows(sqlmock.NewRows([]string{"version"}))
	mock.ExpectQuery(`SELECT version FROM versioned_documents WHERE id=\$1`).
		WithArgs("ghost").
		WillReturnRows(sqlmock.NewRows([]string{"version"}))

	_, err := store.ApplyIfVersion(context.Background(), "ghost", &expected, []byte(`{}`))
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("ApplyIfVersion() error = %v, want ErrNotFound", err)
	}
}

func TestPostgresStoreGet(t *testing.T) {
	store, mock := newMockDocumentStore(t)
	updated := time.Now().UTC()

	mock.ExpectQuery(`SELECT id, version, content, updated_at FROM versioned_documents WHERE id=\$1`).
		WithArgs("doc-1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "version", "content", "updated_at"}).
			AddRow("doc-1", int64(2), []byte(`{"a":1}`), updated))

	doc, err := store.Get(context.Background(), "doc-1")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if doc.Version != 2 || string(doc.Content) != `{"a":1}` {
		t.Errorf("doc = %+v, want version 2 with content", doc)
	}
}

func TestPostgresStoreGetMissing(t *testing.T) {
	store, mock := newMockDocumentStore(t)

	mock.ExpectQuery(`SELECT id, version, content, updated_at FROM versioned_documents WHERE id=\$1`).
		WithArgs("ghost").
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	_, err := store.Get(context.Background(), "ghost")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("Get() error = %v, want ErrNotFound", err)
	}
}

func TestPostgresStoreRejectsInvalidTable(t *testing.T) {
	db, _, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New() error = %v", err)
	}
	defer db.Close()

	if _, err := newPostgresStoreWithDB(db, PostgresStoreConfig{Table: "docs; DROP TABLE x"}, &testutil.MockLogger{}); err == nil {
		t.Error("newPostgresStoreWithDB() accepted an invalid table name")
	}
}
