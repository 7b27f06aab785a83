package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/ezysend/dispatch/internal/domain/model"
	"github.com/ezysend/dispatch/internal/domain/port/driven"
)

// Compile-time interface satisfaction check.
var _ driven.CredentialStore = (*CredentialRepo)(nil)

// CredentialRepo is the SQLite implementation of the CredentialStore port
// interface. Only key hashes are stored, never plaintext keys.
type CredentialRepo struct {
	db *DB
}

// NewCredentialRepo creates a new CredentialRepo backed by the given DB.
func NewCredentialRepo(db *DB) *CredentialRepo {
	return &CredentialRepo{db: db}
}

// Create inserts a new credential. Uniqueness of the key hash and of the
// (account, label) pair is enforced by the schema.
func (r *CredentialRepo) Create(ctx context.Context, cred model.Credential) error {
	const query = `INSERT INTO credentials (id, account_id, key_hash, label, active, expires_at, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`

	var expiresAt any
	if cred.ExpiresAt != nil {
		expiresAt = formatTime(*cred.ExpiresAt)
	}

	_, err := r.db.Writer.ExecContext(ctx, query,
		cred.ID, cred.AccountID, cred.KeyHash, cred.Label, cred.Active, expiresAt, formatTime(cred.CreatedAt))
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint") {
			if strings.Contains(err.Error(), "key_hash") {
				return fmt.Errorf("create credential %s: %w", cred.ID, driven.ErrDuplicateKeyHash)
			}
			return fmt.Errorf("create credential %s: %w", cred.ID, driven.ErrDuplicateLabel)
		}
		return fmt.Errorf("create credential %s: %w", cred.ID, err)
	}

	return nil
}

// GetByKeyHash retrieves a credential by its key hash. Returns nil, nil when
// no credential matches.
func (r *CredentialRepo) GetByKeyHash(ctx context.Context, keyHash string) (*model.Credential, error) {
	const query = `SELECT id, account_id, key_hash, label, active, expires_at, created_at
		FROM credentials WHERE key_hash = ?`

	cred, err := scanCredential(r.db.Reader.QueryRowContext(ctx, query, keyHash))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get credential by key hash: %w", err)
	}

	return cred, nil
}

// SetActive flips the active flag of a credential.
func (r *CredentialRepo) SetActive(ctx context.Context, id string, active bool) error {
	const query = `UPDATE credentials SET active = ? WHERE id = ?`

	result, err := r.db.Writer.ExecContext(ctx, query, active, id)
	if err != nil {
		return fmt.Errorf("set credential %s active: %w", id, err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("check rows affected: %w", err)
	}

	if rows == 0 {
		return fmt.Errorf("set credential %s active: %w", id, driven.ErrCredentialNotFound)
	}

	return nil
}

func scanCredential(s scanner) (*model.Credential, error) {
	var cred model.Credential
	var expiresAt sql.NullString
	var createdAt string

	err := s.Scan(&cred.ID, &cred.AccountID, &cred.KeyHash, &cred.Label, &cred.Active, &expiresAt, &createdAt)
	if err != nil {
		return nil, err
	}

	if expiresAt.Valid {
		t, err := parseTime(expiresAt.String)
		if err != nil {
			return nil, fmt.Errorf("parse expires_at: %w", err)
		}
		cred.ExpiresAt = &t
	}

	cred.CreatedAt, err = parseTime(createdAt)
	if err != nil {
		return nil, fmt.Errorf("parse created_at: %w", err)
	}

	return &cred, nil
}
