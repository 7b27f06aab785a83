package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/ezysend/dispatch/internal/domain/model"
	"github.com/ezysend/dispatch/internal/domain/port/driven"
)

// Compile-time interface satisfaction check.
var _ driven.AuditLogStore = (*AuditLogRepo)(nil)

// AuditLogRepo is the SQLite implementation of the AuditLogStore port
// interface. It only creates and reads entries; the unresolved-to-resolved
// transition is owned by OutcomeRepo.
type AuditLogRepo struct {
	db *DB
}

// NewAuditLogRepo creates a new AuditLogRepo backed by the given DB.
func NewAuditLogRepo(db *DB) *AuditLogRepo {
	return &AuditLogRepo{db: db}
}

// Create inserts a new unresolved audit log entry. Response fields are left
// NULL regardless of what the entry carries.
func (r *AuditLogRepo) Create(ctx context.Context, entry model.AuditLogEntry) error {
	const query = `INSERT INTO audit_log (id, account_id, credential_id, method, endpoint, request_body, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`

	_, err := r.db.Writer.ExecContext(ctx, query,
		entry.ID, entry.AccountID, entry.CredentialID, entry.Method, entry.Endpoint,
		string(entry.RequestBody), formatTime(entry.CreatedAt))
	if err != nil {
		return fmt.Errorf("create audit log entry %s: %w", entry.ID, err)
	}

	return nil
}

// GetByID retrieves an audit log entry. Returns nil, nil when no entry
// matches.
func (r *AuditLogRepo) GetByID(ctx context.Context, id string) (*model.AuditLogEntry, error) {
	const query = `SELECT id, account_id, credential_id, method, endpoint, request_body, response_status, response_body, created_at
		FROM audit_log WHERE id = ?`

	entry, err := scanAuditLogEntry(r.db.Reader.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get audit log entry %s: %w", id, err)
	}

	return entry, nil
}

func scanAuditLogEntry(s scanner) (*model.AuditLogEntry, error) {
	var entry model.AuditLogEntry
	var requestBody string
	var responseStatus sql.NullInt64
	var responseBody sql.NullString
	var createdAt string

	err := s.Scan(&entry.ID, &entry.AccountID, &entry.CredentialID, &entry.Method, &entry.Endpoint,
		&requestBody, &responseStatus, &responseBody, &createdAt)
	if err != nil {
		return nil, err
	}

	entry.RequestBody = []byte(requestBody)
	if responseStatus.Valid {
		status := int(responseStatus.Int64)
		entry.ResponseStatus = &status
	}
	if responseBody.Valid {
		entry.ResponseBody = []byte(responseBody.String)
	}

	entry.CreatedAt, err = parseTime(createdAt)
	if err != nil {
		return nil, fmt.Errorf("parse created_at: %w", err)
	}

	return &entry, nil
}
