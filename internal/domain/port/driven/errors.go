// Package driven defines the driven ports of the dispatch pipeline: the
// persistent store, the durable channel bus, and the delivery provider
// capability. Adapters implement these interfaces; the application layer
// depends only on them.
package driven

import "errors"

// Credential lookup failures. Each is a distinct, user-visible rejection
// reason at the ingestion boundary.
var (
	ErrCredentialNotFound = errors.New("credential not found")
	ErrCredentialInactive = errors.New("credential inactive")
	ErrCredentialExpired  = errors.New("credential expired")
)

// Store uniqueness violations surfaced at credential creation.
var (
	ErrDuplicateKeyHash = errors.New("credential key hash already exists")
	ErrDuplicateLabel   = errors.New("credential label already exists for account")
)

// Audit log resolution failures.
var (
	ErrLogEntryNotFound = errors.New("audit log entry not found")

	// ErrAlreadyResolved reports that a log entry already carries a terminal
	// outcome. The worker treats it as a successful acknowledgement: a
	// redelivered message must never produce a second outcome.
	ErrAlreadyResolved = errors.New("audit log entry already resolved")
)
