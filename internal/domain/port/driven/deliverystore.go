package driven

import (
	"context"

	"github.com/ezysend/dispatch/internal/domain/model"
)

// OutcomeStore persists the worker's terminal outcome for a dispatch. Each
// method runs as a single atomic transaction, and a given log entry resolves
// at most once: both return ErrAlreadyResolved if an earlier delivery won.
// The two-row success write (delivery record + resolved log) is never
// observable half-applied.
type OutcomeStore interface {
	// ResolveSuccess creates the delivery record and marks the log entry
	// resolved-success with the provider's success status and the record's
	// id in the response body.
	ResolveSuccess(ctx context.Context, logID string, record model.DeliveryRecord, status int) error

	// ResolveFailure marks the log entry resolved-failure with the given
	// status code and error detail. No delivery record is created.
	ResolveFailure(ctx context.Context, logID string, status int, detail string) error
}

// DeliveryStore defines the read side of delivery records, the data the
// owner-facing query surface is guaranteed to be able to expose.
type DeliveryStore interface {
	// GetByID returns nil, nil when no record matches.
	GetByID(ctx context.Context, id string) (*model.DeliveryRecord, error)

	// ListByAccount returns an account's records, newest first.
	ListByAccount(ctx context.Context, accountID string) ([]model.DeliveryRecord, error)
}
