package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"certhub/internal/activity/models"
	id "certhub/pkg/domain"
	"certhub/pkg/platform/sentinel"
)

func mustRecord(t *testing.T, ev models.Event, at time.Time) *models.Record {
	t.Helper()
	r, err := models.NewRecord(ev, "127.0.0.1", "test", at)
	require.NoError(t, err)
	return r
}

func TestInMemoryStore(t *testing.T) {
	ctx := context.Background()
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	userID := id.NewUserID()

	s := NewInMemory()
	first := mustRecord(t, models.Event{Action: "A", Category: models.CategoryAuth, Status: models.StatusSuccess, UserID: &userID}, base)
	second := mustRecord(t, models.Event{Action: "B", Category: models.CategoryVerification, Status: models.StatusFailure}, base.Add(time.Hour))
	third := mustRecord(t, models.Event{Action: "C", Category: models.CategoryVerification, Status: models.StatusFailure}, base.Add(2*time.Hour))
	for _, r := range []*models.Record{first, second, third} {
		require.NoError(t, s.Append(ctx, r))
	}

	t.Run("find by id", func(t *testing.T) {
		got, err := s.FindByID(ctx, second.ID)
		require.NoError(t, err)
		assert.Equal(t, "B", got.Action)

		_, err = s.FindByID(ctx, id.NewActivityLogID())
		assert.ErrorIs(t, err, sentinel.ErrNotFound)
	})

	t.Run("list newest first with filter", func(t *testing.T) {
		items, total, err := s.List(ctx, models.Filter{Category: models.CategoryVerification, Limit: 10})
		require.NoError(t, err)
		assert.Equal(t, 2, total)
		require.Len(t, items, 2)
		assert.Equal(t, "C", items[0].Action)
	})

	t.Run("list by user", func(t *testing.T) {
		items, total, err := s.List(ctx, models.Filter{UserID: &userID, Limit: 10})
		require.NoError(t, err)
		assert.Equal(t, 1, total)
		assert.Equal(t, "A", items[0].Action)
	})

	t.Run("offset past end", func(t *testing.T) {
		items, total, err := s.List(ctx, models.Filter{Limit: 10, Offset: 5})
		require.NoError(t, err)
		assert.Equal(t, 3, total)
		assert.Empty(t, items)
	})

	t.Run("count since", func(t *testing.T) {
		n, err := s.CountSince(ctx, models.CategoryVerification, models.StatusFailure, base.Add(90*time.Minute))
		require.NoError(t, err)
		assert.Equal(t, 1, n)
	})

	t.Run("delete before", func(t *testing.T) {
		n, err := s.DeleteBefore(ctx, base.Add(30*time.Minute))
		require.NoError(t, err)
		assert.Equal(t, int64(1), n)
		assert.Len(t, s.All(), 2)
	})
}
