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
var _ driven.OutcomeStore = (*OutcomeRepo)(nil)

// OutcomeRepo is the SQLite implementation of the OutcomeStore port
// interface. It is the only writer of the audit log's response fields and of
// the deliveries table, and it performs both writes in one transaction on
// the single writer connection.
type OutcomeRepo struct {
	db *DB
}

// NewOutcomeRepo creates a new OutcomeRepo backed by the given DB.
func NewOutcomeRepo(db *DB) *OutcomeRepo {
	return &OutcomeRepo{db: db}
}

// successBody is the resolved-success response payload: a reference to the
// delivery record, never an inlined copy of it.
type successBody struct {
	ID string `json:"id"`
}

// failureBody is the resolved-failure response payload.
type failureBody struct {
	Error string `json:"error"`
}

// ResolveSuccess atomically creates the delivery record and marks the log
// entry resolved-success referencing it. Returns ErrAlreadyResolved if the
// entry already carries an outcome, in which case no record is created.
func (r *OutcomeRepo) ResolveSuccess(ctx context.Context, logID string, record model.DeliveryRecord, status int) error {
	body, err := json.Marshal(successBody{ID: record.ID})
	if err != nil {
		return fmt.Errorf("marshal response body: %w", err)
	}

	recipients, err := json.Marshal(record.Recipients)
	if err != nil {
		return fmt.Errorf("marshal recipients: %w", err)
	}

	return r.resolve(ctx, logID, status, body, func(tx *sql.Tx) error {
		const query = `INSERT INTO deliveries
			(id, account_id, channel, sender, recipients, subject, phone_number, message, provider_metadata, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

		var metadata any
		if record.ProviderMetadata != nil {
			metadata = string(record.ProviderMetadata)
		}

		_, err := tx.ExecContext(ctx, query,
			record.ID, record.AccountID, string(record.Channel),
			record.Sender, string(recipients), record.Subject,
			record.PhoneNumber, record.Message, metadata, formatTime(record.CreatedAt))
		if err != nil {
			return fmt.Errorf("insert delivery record %s: %w", record.ID, err)
		}
		return nil
	})
}

// ResolveFailure atomically marks the log entry resolved-failure with the
// given status and error detail. Returns ErrAlreadyResolved if the entry
// already carries an outcome.
func (r *OutcomeRepo) ResolveFailure(ctx context.Context, logID string, status int, detail string) error {
	body, err := json.Marshal(failureBody{Error: detail})
	if err != nil {
		return fmt.Errorf("marshal response body: %w", err)
	}

	return r.resolve(ctx, logID, status, body, nil)
}

// resolve runs the shared resolution transaction: verify the entry exists
// and is unresolved, run the optional extra write, then set the response
// fields. The guarded UPDATE re-checks response_status IS NULL so two
// racing resolutions can never both commit.
func (r *OutcomeRepo) resolve(ctx context.Context, logID string, status int, body []byte, extra func(tx *sql.Tx) error) error {
	tx, err := r.db.Writer.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin outcome transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var current sql.NullInt64
	err = tx.QueryRowContext(ctx, `SELECT response_status FROM audit_log WHERE id = ?`, logID).Scan(&current)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("resolve log entry %s: %w", logID, driven.ErrLogEntryNotFound)
	}
	if err != nil {
		return fmt.Errorf("read log entry %s: %w", logID, err)
	}
	if current.Valid {
		return fmt.Errorf("resolve log entry %s: %w", logID, driven.ErrAlreadyResolved)
	}

	if extra != nil {
		if err := extra(tx); err != nil {
			return err
		}
	}

	result, err := tx.ExecContext(ctx,
		`UPDATE audit_log SET response_status = ?, response_body = ? WHERE id = ? AND response_status IS NULL`,
		status, string(body), logID)
	if err != nil {
		return fmt.Errorf("update log entry %s: %w", logID, err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("check rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("resolve log entry %s: %w", logID, driven.ErrAlreadyResolved)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit outcome transaction: %w", err)
	}

	return nil
}
