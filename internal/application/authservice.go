// Package application contains use-case orchestration services.
package application

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/ezysend/dispatch/internal/domain/model"
	"github.com/ezysend/dispatch/internal/domain/port/driven"
)

// keyPrefix marks minted API keys so leaked keys are recognizable in scans.
const keyPrefix = "nt_"

// AuthService resolves presented API keys to their owning account and mints
// new keys. Lookups are side-effect free.
type AuthService struct {
	creds driven.CredentialStore
	now   func() time.Time
}

// NewAuthService creates an AuthService backed by the given credential store.
func NewAuthService(creds driven.CredentialStore) *AuthService {
	return &AuthService{creds: creds, now: time.Now}
}

// HashKey derives the stored lookup hash from a plaintext API key.
func HashKey(key string) string {
	sum := sha256.Sum256([]byte(key))
	return hex.EncodeToString(sum[:])
}

// Authenticate resolves a presented key to its owning identity. The key is
// hashed before lookup; the plaintext never reaches the store. Expiry is
// checked against the wall clock at validation time and takes precedence
// over the active flag: an expired credential fails with
// ErrCredentialExpired regardless of whether it is active.
func (s *AuthService) Authenticate(ctx context.Context, presentedKey string) (model.Identity, error) {
	cred, err := s.creds.GetByKeyHash(ctx, HashKey(presentedKey))
	if err != nil {
		return model.Identity{}, fmt.Errorf("look up credential: %w", err)
	}
	if cred == nil {
		return model.Identity{}, driven.ErrCredentialNotFound
	}

	if cred.ExpiresAt != nil && !cred.ExpiresAt.After(s.now()) {
		return model.Identity{}, driven.ErrCredentialExpired
	}
	if !cred.Active {
		return model.Identity{}, driven.ErrCredentialInactive
	}

	return model.Identity{CredentialID: cred.ID, AccountID: cred.AccountID}, nil
}

// MintKey generates a new API key for an account, stores its hash, and
// returns the plaintext exactly once. expiresAt may be nil for a key that
// never expires.
func (s *AuthService) MintKey(ctx context.Context, accountID, label string, expiresAt *time.Time) (string, model.Credential, error) {
	raw := make([]byte, 32)
	if _, err := rand.Read(raw); err != nil {
		return "", model.Credential{}, fmt.Errorf("generate key material: %w", err)
	}

	key := keyPrefix + uuid.NewString() + "_" + base64.RawURLEncoding.EncodeToString(raw)

	cred := model.Credential{
		ID:        uuid.NewString(),
		AccountID: accountID,
		KeyHash:   HashKey(key),
		Label:     label,
		Active:    true,
		ExpiresAt: expiresAt,
		CreatedAt: s.now().UTC(),
	}

	if err := s.creds.Create(ctx, cred); err != nil {
		return "", model.Credential{}, fmt.Errorf("store credential: %w", err)
	}

	return key, cred, nil
}
