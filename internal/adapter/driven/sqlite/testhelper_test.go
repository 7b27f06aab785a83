package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/ezysend/dispatch/internal/domain/model"
)

// setupTestDB creates a named shared in-memory SQLite database for testing.
// Writer and reader connections share the same in-memory database via cache=shared.
// A unique name derived from t.Name() ensures isolation between parallel tests.
func setupTestDB(t *testing.T) *DB {
	t.Helper()

	// Percent-encode the test name so it's a safe SQLite URI filename component
	// and cannot be misinterpreted as query parameters in the "file:%s?..." DSN.
	safeName := url.PathEscape(t.Name())
	// WAL mode is not applicable to in-memory databases; omit journal_mode pragma.
	dsn := fmt.Sprintf(
		"file:%s?mode=memory&cache=shared&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)&_pragma=foreign_keys(ON)&_pragma=cache_size(-64000)",
		safeName,
	)

	writer, err := sql.Open("sqlite", dsn)
	if err != nil {
		t.Fatalf("create test db writer: %v", err)
	}
	writer.SetMaxOpenConns(1)
	if err := writer.PingContext(context.Background()); err != nil {
		_ = writer.Close()
		t.Fatalf("ping test db writer: %v", err)
	}

	reader, err := sql.Open("sqlite", dsn)
	if err != nil {
		_ = writer.Close()
		t.Fatalf("create test db reader: %v", err)
	}
	reader.SetMaxOpenConns(4)
	if err := reader.PingContext(context.Background()); err != nil {
		_ = reader.Close()
		_ = writer.Close()
		t.Fatalf("ping test db reader: %v", err)
	}

	db := &DB{Writer: writer, Reader: reader, path: dsn}

	if err := RunMigrations(db.Writer); err != nil {
		_ = db.Close()
		t.Fatalf("run migrations: %v", err)
	}

	t.Cleanup(func() { _ = db.Close() })

	return db
}

// testCredential returns a valid credential with a unique key hash and label.
func testCredential(accountID string) model.Credential {
	id := uuid.NewString()
	return model.Credential{
		ID:        id,
		AccountID: accountID,
		KeyHash:   "hash-" + id,
		Label:     "label-" + id,
		Active:    true,
		CreatedAt: time.Now().UTC().Truncate(time.Second),
	}
}

// seedLogEntry inserts an unresolved audit log entry and returns it.
func seedLogEntry(t *testing.T, db *DB, accountID string) model.AuditLogEntry {
	t.Helper()

	cred := testCredential(accountID)
	if err := NewCredentialRepo(db).Create(context.Background(), cred); err != nil {
		t.Fatalf("seed credential: %v", err)
	}

	entry := model.AuditLogEntry{
		ID:           uuid.NewString(),
		AccountID:    accountID,
		CredentialID: cred.ID,
		Method:       "POST",
		Endpoint:     "/api/v1/email/send",
		RequestBody:  []byte(`{"from":"a@example.com"}`),
		CreatedAt:    time.Now().UTC().Truncate(time.Second),
	}
	if err := NewAuditLogRepo(db).Create(context.Background(), entry); err != nil {
		t.Fatalf("seed audit log entry: %v", err)
	}

	return entry
}
