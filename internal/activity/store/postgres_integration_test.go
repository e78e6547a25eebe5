//go:build integration

package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"certhub/internal/activity/models"
	"certhub/internal/platform/database"
	id "certhub/pkg/domain"
	"certhub/pkg/platform/sentinel"
	"certhub/pkg/testutil/containers"
)

type PostgresStoreSuite struct {
	suite.Suite
	pg    *containers.PostgresContainer
	store *PostgresStore
	ctx   context.Context
}

func TestPostgresStoreSuite(t *testing.T) {
	suite.Run(t, new(PostgresStoreSuite))
}

func (s *PostgresStoreSuite) SetupSuite() {
	s.ctx = context.Background()
	s.pg = containers.NewPostgresContainer(s.T())
	s.Require().NoError(database.Migrate(s.ctx, s.pg.DB))
	s.store = NewPostgres(s.pg.DB)
}

func (s *PostgresStoreSuite) SetupTest() {
	s.Require().NoError(s.pg.Truncate(s.ctx, "activity_logs"))
}

func (s *PostgresStoreSuite) record(ev models.Event, at time.Time) *models.Record {
	r, err := models.NewRecord(ev, "10.0.0.1", "integration", at)
	s.Require().NoError(err)
	s.Require().NoError(s.store.Append(s.ctx, r))
	return r
}

func (s *PostgresStoreSuite) TestAppendAndFind() {
	userID := id.NewUserID()
	at := time.Date(2026, 2, 3, 4, 5, 6, 0, time.UTC)
	r := s.record(models.Event{
		Action:   models.ActionLogin,
		Category: models.CategoryAuth,
		Status:   models.StatusSuccess,
		UserID:   &userID,
		Metadata: map[string]any{"browser": "Firefox"},
	}, at)

	got, err := s.store.FindByID(s.ctx, r.ID)
	s.Require().NoError(err)
	s.Equal(models.ActionLogin, got.Action)
	s.Require().NotNil(got.UserID)
	s.Equal(userID, *got.UserID)
	s.Nil(got.InstitutionID)
	s.Equal("Firefox", got.Metadata["browser"])
	s.True(at.Equal(got.CreatedAt))

	_, err = s.store.FindByID(s.ctx, id.NewActivityLogID())
	s.ErrorIs(err, sentinel.ErrNotFound)
}

func (s *PostgresStoreSuite) TestAppendAcceptsCleanedClientText() {
	r, err := models.NewRecord(models.Event{
		Action:   models.ActionVerifyByFile,
		Category: models.CategoryVerification,
		Status:   models.StatusFailure,
		Metadata: map[string]any{"file_name": "x\x00\xff.pdf"},
	}, "203.0.113.5\xff", "agent\xff\x00", time.Now())
	s.Require().NoError(err)
	s.Require().NoError(s.store.Append(s.ctx, r))

	got, err := s.store.FindByID(s.ctx, r.ID)
	s.Require().NoError(err)
	s.Equal(r.UserAgent, got.UserAgent)
	s.Equal("x\uFFFD\uFFFD.pdf", got.Metadata["file_name"])
}

func (s *PostgresStoreSuite) TestListFilterAndPaging() {
	base := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)
	for i := range 4 {
		s.record(models.Event{Action: models.ActionVerifyByID, Category: models.CategoryVerification, Status: models.StatusFailure},
			base.Add(time.Duration(i)*time.Hour))
	}
	s.record(models.Event{Action: models.ActionLogin, Category: models.CategoryAuth, Status: models.StatusSuccess}, base)

	from := base.Add(time.Hour)
	items, total, err := s.store.List(s.ctx, models.Filter{
		Category: models.CategoryVerification,
		From:     &from,
		Limit:    2,
	})
	s.Require().NoError(err)
	s.Equal(3, total)
	s.Require().Len(items, 2)
	s.True(items[0].CreatedAt.After(items[1].CreatedAt))

	n, err := s.store.CountSince(s.ctx, models.CategoryVerification, models.StatusFailure, from)
	s.Require().NoError(err)
	s.Equal(3, n)
}

func (s *PostgresStoreSuite) TestDeleteBefore() {
	base := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)
	s.record(models.Event{Action: "OLD", Category: models.CategorySystem, Status: models.StatusSuccess}, base)
	s.record(models.Event{Action: "NEW", Category: models.CategorySystem, Status: models.StatusSuccess}, base.Add(48*time.Hour))

	n, err := s.store.DeleteBefore(s.ctx, base.Add(24*time.Hour))
	s.Require().NoError(err)
	s.Equal(int64(1), n)
}
