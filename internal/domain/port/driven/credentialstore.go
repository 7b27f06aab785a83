package driven

import (
	"context"

	"github.com/ezysend/dispatch/internal/domain/model"
)

// CredentialStore defines the driven port for API key persistence.
type CredentialStore interface {
	// Create inserts a new credential. Returns ErrDuplicateKeyHash or
	// ErrDuplicateLabel on a uniqueness violation.
	Create(ctx context.Context, cred model.Credential) error

	// GetByKeyHash looks up a credential by the hash of its plaintext key.
	// Returns nil, nil when no credential matches.
	GetByKeyHash(ctx context.Context, keyHash string) (*model.Credential, error)

	// SetActive flips the active flag, the only mutable field besides the
	// label. Returns ErrCredentialNotFound for an unknown id.
	SetActive(ctx context.Context, id string, active bool) error
}
