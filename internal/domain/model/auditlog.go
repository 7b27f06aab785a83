// Package model holds the domain entities of the dispatch pipeline.
package model

import "time"

// AuditLogEntry records one accepted ingestion request. It is created in the
// unresolved state (response fields nil) before the caller receives
// acceptance, and resolved exactly once by the dispatch worker with the final
// delivery outcome. Status and body are always set together.
type AuditLogEntry struct {
	ID             string
	AccountID      string
	CredentialID   string
	Method         string
	Endpoint       string
	RequestBody    []byte
	ResponseStatus *int
	ResponseBody   []byte
	CreatedAt      time.Time
}

// Resolved reports whether the worker has recorded a terminal outcome.
func (e *AuditLogEntry) Resolved() bool {
	return e.ResponseStatus != nil
}
