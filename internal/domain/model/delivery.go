package model

import "time"

// DeliveryRecord is the immutable proof of a confirmed provider send. It is
// created only inside the worker's outcome transaction, together with the
// audit log resolution that references it by id. There is no reverse foreign
// key from deliveries to the log; the log stays authoritative and this table
// stays append-only.
type DeliveryRecord struct {
	ID        string
	AccountID string
	Channel   Channel

	// Email fields.
	Sender     string
	Recipients []string
	Subject    string

	// SMS fields.
	PhoneNumber string
	Message     string

	// ProviderMetadata is the provider's raw response, stored as JSON.
	ProviderMetadata []byte

	CreatedAt time.Time
}
