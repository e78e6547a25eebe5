package revocation

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"certhub/pkg/platform/sentinel"
)

func TestInMemoryTRL(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }
	trl := NewInMemoryTRL(clock)
	ctx := context.Background()

	revoked, err := trl.IsRevoked(ctx, "jti-1")
	require.NoError(t, err)
	assert.False(t, revoked)

	require.NoError(t, trl.RevokeToken(ctx, "jti-1", time.Hour))
	revoked, _ = NewChecker(trl).IsTokenRevoked(ctx, "jti-1")
	assert.True(t, revoked)

	now = now.Add(2 * time.Hour)
	revoked, _ = trl.IsRevoked(ctx, "jti-1")
	assert.False(t, revoked, "entries lapse with the token")
}

func TestRevokeRejectsNonPositiveTTL(t *testing.T) {
	trl := NewInMemoryTRL(nil)
	err := trl.RevokeToken(context.Background(), "jti", 0)
	assert.ErrorIs(t, err, sentinel.ErrInvalidState)
}

func TestRevokeIgnoresEmptyJTI(t *testing.T) {
	trl := NewInMemoryTRL(nil)
	assert.NoError(t, trl.RevokeToken(context.Background(), "", time.Hour))
}
