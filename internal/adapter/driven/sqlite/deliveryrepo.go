package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/ezysend/dispatch/internal/domain/model"
	"github.com/ezysend/dispatch/internal/domain/port/driven"
)

// Compile-time interface satisfaction check.
var _ driven.DeliveryStore = (*DeliveryRepo)(nil)

// DeliveryRepo is the SQLite implementation of the DeliveryStore port
// interface. Deliveries are append-only; all writes go through OutcomeRepo.
type DeliveryRepo struct {
	db *DB
}

// NewDeliveryRepo creates a new DeliveryRepo backed by the given DB.
func NewDeliveryRepo(db *DB) *DeliveryRepo {
	return &DeliveryRepo{db: db}
}

const deliveryColumns = `id, account_id, channel, sender, recipients, subject, phone_number, message, provider_metadata, created_at`

// GetByID retrieves a delivery record. Returns nil, nil when no record
// matches.
func (r *DeliveryRepo) GetByID(ctx context.Context, id string) (*model.DeliveryRecord, error) {
	query := `SELECT ` + deliveryColumns + ` FROM deliveries WHERE id = ?`

	record, err := scanDeliveryRecord(r.db.Reader.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get delivery record %s: %w", id, err)
	}

	return record, nil
}

// ListByAccount returns an account's delivery records, newest first.
func (r *DeliveryRepo) ListByAccount(ctx context.Context, accountID string) ([]model.DeliveryRecord, error) {
	query := `SELECT ` + deliveryColumns + ` FROM deliveries WHERE account_id = ? ORDER BY created_at DESC`

	rows, err := r.db.Reader.QueryContext(ctx, query, accountID)
	if err != nil {
		return nil, fmt.Errorf("list deliveries: %w", err)
	}
	defer rows.Close()

	var records []model.DeliveryRecord
	for rows.Next() {
		record, err := scanDeliveryRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("scan delivery record: %w", err)
		}
		records = append(records, *record)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate deliveries: %w", err)
	}

	return records, nil
}

func scanDeliveryRecord(s scanner) (*model.DeliveryRecord, error) {
	var record model.DeliveryRecord
	var channel string
	var recipients string
	var metadata sql.NullString
	var createdAt string

	err := s.Scan(&record.ID, &record.AccountID, &channel, &record.Sender, &recipients,
		&record.Subject, &record.PhoneNumber, &record.Message, &metadata, &createdAt)
	if err != nil {
		return nil, err
	}

	record.Channel = model.Channel(channel)
	if err := json.Unmarshal([]byte(recipients), &record.Recipients); err != nil {
		return nil, fmt.Errorf("parse recipients: %w", err)
	}
	if metadata.Valid {
		record.ProviderMetadata = []byte(metadata.String)
	}

	record.CreatedAt, err = parseTime(createdAt)
	if err != nil {
		return nil, fmt.Errorf("parse created_at: %w", err)
	}

	return &record, nil
}
