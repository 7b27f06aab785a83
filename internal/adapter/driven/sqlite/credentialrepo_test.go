package sqlite

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ezysend/dispatch/internal/domain/port/driven"
)

func TestCredentialRepo_CreateAndGetByKeyHash(t *testing.T) {
	db := setupTestDB(t)
	repo := NewCredentialRepo(db)
	ctx := context.Background()

	cred := testCredential("acct-1")
	expires := time.Now().UTC().Add(24 * time.Hour).Truncate(time.Second)
	cred.ExpiresAt = &expires

	err := repo.Create(ctx, cred)
	require.NoError(t, err)

	got, err := repo.GetByKeyHash(ctx, cred.KeyHash)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, cred.ID, got.ID)
	assert.Equal(t, "acct-1", got.AccountID)
	assert.Equal(t, cred.Label, got.Label)
	assert.True(t, got.Active)
	require.NotNil(t, got.ExpiresAt)
	assert.True(t, got.ExpiresAt.Equal(expires))
}

func TestCredentialRepo_GetByKeyHashMissing(t *testing.T) {
	db := setupTestDB(t)
	repo := NewCredentialRepo(db)
	ctx := context.Background()

	got, err := repo.GetByKeyHash(ctx, "no-such-hash")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestCredentialRepo_NilExpiryRoundTrips(t *testing.T) {
	db := setupTestDB(t)
	repo := NewCredentialRepo(db)
	ctx := context.Background()

	cred := testCredential("acct-1")
	require.NoError(t, repo.Create(ctx, cred))

	got, err := repo.GetByKeyHash(ctx, cred.KeyHash)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Nil(t, got.ExpiresAt)
}

func TestCredentialRepo_DuplicateKeyHash(t *testing.T) {
	db := setupTestDB(t)
	repo := NewCredentialRepo(db)
	ctx := context.Background()

	cred := testCredential("acct-1")
	require.NoError(t, repo.Create(ctx, cred))

	dup := testCredential("acct-2")
	dup.KeyHash = cred.KeyHash

	err := repo.Create(ctx, dup)
	assert.ErrorIs(t, err, driven.ErrDuplicateKeyHash)
}

func TestCredentialRepo_DuplicateLabelSameAccount(t *testing.T) {
	db := setupTestDB(t)
	repo := NewCredentialRepo(db)
	ctx := context.Background()

	cred := testCredential("acct-1")
	require.NoError(t, repo.Create(ctx, cred))

	dup := testCredential("acct-1")
	dup.Label = cred.Label

	err := repo.Create(ctx, dup)
	assert.ErrorIs(t, err, driven.ErrDuplicateLabel)
}

func TestCredentialRepo_SameLabelDifferentAccounts(t *testing.T) {
	db := setupTestDB(t)
	repo := NewCredentialRepo(db)
	ctx := context.Background()

	cred := testCredential("acct-1")
	require.NoError(t, repo.Create(ctx, cred))

	other := testCredential("acct-2")
	other.Label = cred.Label

	err := repo.Create(ctx, other)
	assert.NoError(t, err, "labels are only unique within an account")
}

func TestCredentialRepo_SetActive(t *testing.T) {
	db := setupTestDB(t)
	repo := NewCredentialRepo(db)
	ctx := context.Background()

	cred := testCredential("acct-1")
	require.NoError(t, repo.Create(ctx, cred))

	err := repo.SetActive(ctx, cred.ID, false)
	require.NoError(t, err)

	got, err := repo.GetByKeyHash(ctx, cred.KeyHash)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.False(t, got.Active)
}

func TestCredentialRepo_SetActiveMissing(t *testing.T) {
	db := setupTestDB(t)
	repo := NewCredentialRepo(db)
	ctx := context.Background()

	err := repo.SetActive(ctx, "no-such-id", false)
	assert.ErrorIs(t, err, driven.ErrCredentialNotFound)
}
