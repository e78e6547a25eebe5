//go:build integration

package revocation

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"certhub/internal/platform/database"
	"certhub/pkg/testutil/containers"
)

func TestRedisTRL(t *testing.T) {
	rc := containers.NewRedisContainer(t)
	trl := NewRedisTRL(rc.Client)
	ctx := context.Background()

	require.NoError(t, trl.RevokeToken(ctx, "jti-redis", time.Minute))
	revoked, err := trl.IsRevoked(ctx, "jti-redis")
	require.NoError(t, err)
	assert.True(t, revoked)

	revoked, err = trl.IsRevoked(ctx, "unknown")
	require.NoError(t, err)
	assert.False(t, revoked)
}

func TestPostgresTRL(t *testing.T) {
	pg := containers.NewPostgresContainer(t)
	ctx := context.Background()
	require.NoError(t, database.Migrate(ctx, pg.DB))

	now := time.Now().UTC()
	trl := NewPostgresTRL(pg.DB, WithPostgresClock(func() time.Time { return now }))

	require.NoError(t, trl.RevokeToken(ctx, "jti-pg", time.Hour))
	revoked, err := trl.IsRevoked(ctx, "jti-pg")
	require.NoError(t, err)
	assert.True(t, revoked)

	now = now.Add(2 * time.Hour)
	revoked, err = trl.IsRevoked(ctx, "jti-pg")
	require.NoError(t, err)
	assert.False(t, revoked)

	n, err := trl.PurgeExpired(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}
