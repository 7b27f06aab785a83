package driven

import (
	"context"

	"github.com/ezysend/dispatch/internal/domain/model"
)

// AuditLogStore defines the driven port for audit log persistence. Entries
// are created unresolved by the gateway; the resolved transition belongs
// exclusively to the OutcomeStore.
type AuditLogStore interface {
	Create(ctx context.Context, entry model.AuditLogEntry) error

	// GetByID returns nil, nil when no entry matches.
	GetByID(ctx context.Context, id string) (*model.AuditLogEntry, error)
}
