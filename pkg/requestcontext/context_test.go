package requestcontext

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	id "certhub/pkg/domain"
)

func TestDetachKeepsValuesDropsCancellation(t *testing.T) {
	userID := id.NewUserID()
	fixed := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

	parent, cancel := context.WithCancel(context.Background())
	ctx := WithPrincipal(parent, userID, id.RoleAdmin, id.InstitutionID{})
	ctx = WithRequestID(ctx, "req-1")
	ctx = WithClientMetadata(ctx, "10.0.0.1", "curl/8.0")
	ctx = WithTime(ctx, fixed)

	detached := Detach(ctx)
	cancel()

	assert.NoError(t, detached.Err())
	assert.Equal(t, userID, UserID(detached))
	assert.Equal(t, id.RoleAdmin, Role(detached))
	assert.Equal(t, "req-1", RequestID(detached))
	assert.Equal(t, "10.0.0.1", ClientIP(detached))
	assert.Equal(t, fixed, Now(detached))
}

func TestDefaults(t *testing.T) {
	ctx := context.Background()
	assert.True(t, UserID(ctx).IsNil())
	assert.Equal(t, id.Role(""), Role(ctx))
	assert.Equal(t, "en", Locale(ctx))
	assert.Empty(t, TokenID(ctx))
}
