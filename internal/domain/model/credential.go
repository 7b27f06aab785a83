package model

import "time"

// Credential is an API key identity owned by an account. Only the SHA-256
// hash of the key is stored; the plaintext is returned once at mint time and
// never persisted or logged. After creation only Active and Label may change.
type Credential struct {
	ID        string
	AccountID string
	KeyHash   string
	Label     string
	Active    bool
	ExpiresAt *time.Time
	CreatedAt time.Time
}

// Identity is the resolved owner of a successfully authenticated API key.
type Identity struct {
	CredentialID string
	AccountID    string
}
