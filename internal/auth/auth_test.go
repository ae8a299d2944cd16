package auth

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arclabs/arcpay/internal/identity"
)

var agent = identity.MustParse("0x4444444444444444444444444444444444444444")

func TestGenerateAndValidateKey(t *testing.T) {
	m := NewManager(NewMemoryStore())
	ctx := context.Background()

	rawKey, key, err := m.GenerateKey(ctx, agent, "test key")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(rawKey, "sk_"))
	assert.True(t, strings.HasPrefix(key.ID, "ak_"))
	assert.Equal(t, agent.String(), key.AgentAddr)
	assert.NotContains(t, key.Hash, rawKey)

	validated, err := m.ValidateKey(ctx, rawKey)
	require.NoError(t, err)
	assert.Equal(t, key.ID, validated.ID)

	// Bearer prefix is accepted.
	validated, err = m.ValidateKey(ctx, "Bearer "+rawKey)
	require.NoError(t, err)
	assert.Equal(t, key.ID, validated.ID)
}

func TestValidateKey_Rejections(t *testing.T) {
	m := NewManager(NewMemoryStore())
	ctx := context.Background()

	_, err := m.ValidateKey(ctx, "")
	assert.ErrorIs(t, err, ErrNoAPIKey)

	_, err = m.ValidateKey(ctx, "not-a-key")
	assert.ErrorIs(t, err, ErrInvalidAPIKey)

	_, err = m.ValidateKey(ctx, "sk_0000000000000000000000000000000000000000000000000000000000000000")
	assert.ErrorIs(t, err, ErrInvalidAPIKey)
}

func TestValidateKey_Revoked(t *testing.T) {
	m := NewManager(NewMemoryStore())
	ctx := context.Background()

	rawKey, key, err := m.GenerateKey(ctx, agent, "doomed")
	require.NoError(t, err)
	require.NoError(t, m.RevokeKey(ctx, key.ID, agent))

	_, err = m.ValidateKey(ctx, rawKey)
	assert.ErrorIs(t, err, ErrInvalidAPIKey)
}

func TestValidateKey_Expired(t *testing.T) {
	store := NewMemoryStore()
	m := NewManager(store)
	ctx := context.Background()

	rawKey, key, err := m.GenerateKey(ctx, agent, "short-lived")
	require.NoError(t, err)

	past := time.Now().Add(-time.Hour)
	key.ExpiresAt = &past
	require.NoError(t, store.Update(ctx, key))

	_, err = m.ValidateKey(ctx, rawKey)
	assert.ErrorIs(t, err, ErrInvalidAPIKey)
}

func TestListAndRevoke(t *testing.T) {
	m := NewManager(NewMemoryStore())
	ctx := context.Background()

	_, first, err := m.GenerateKey(ctx, agent, "first")
	require.NoError(t, err)
	_, _, err = m.GenerateKey(ctx, agent, "second")
	require.NoError(t, err)

	keys, err := m.ListKeys(ctx, agent)
	require.NoError(t, err)
	assert.Len(t, keys, 2)

	require.NoError(t, m.RevokeKey(ctx, first.ID, agent))
	assert.ErrorIs(t, m.RevokeKey(ctx, "ak_missing", agent), ErrKeyNotFound)

	// Revoking for a different agent doesn't find the key.
	stranger := identity.MustParse("0x5555555555555555555555555555555555555555")
	assert.ErrorIs(t, m.RevokeKey(ctx, first.ID, stranger), ErrKeyNotFound)
}
