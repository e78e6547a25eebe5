//go:build integration

package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	authmodels "certhub/internal/auth/models"
	userstore "certhub/internal/auth/store/user"
	"certhub/internal/platform/database"
	"certhub/internal/support/models"
	id "certhub/pkg/domain"
	"certhub/pkg/platform/sentinel"
	"certhub/pkg/testutil/containers"
)

type PostgresTicketStoreSuite struct {
	suite.Suite
	pg    *containers.PostgresContainer
	store *PostgresStore
	users *userstore.PostgresStore
	ctx   context.Context
	now   time.Time
	user  id.UserID
}

func TestPostgresTicketStoreSuite(t *testing.T) {
	suite.Run(t, new(PostgresTicketStoreSuite))
}

func (s *PostgresTicketStoreSuite) SetupSuite() {
	s.ctx = context.Background()
	s.now = time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)
	s.pg = containers.NewPostgresContainer(s.T())
	s.Require().NoError(database.Migrate(s.ctx, s.pg.DB))
	s.store = NewPostgres(s.pg.DB)
	s.users = userstore.NewPostgres(s.pg.DB)
}

func (s *PostgresTicketStoreSuite) SetupTest() {
	s.Require().NoError(s.pg.Truncate(s.ctx, "support_attachments", "support_messages", "support_tickets", "users"))
	u, err := authmodels.NewUser("support-store@example.com", "Store", "hash", id.RoleUser, s.now)
	s.Require().NoError(err)
	s.Require().NoError(s.users.Create(s.ctx, u))
	s.user = u.ID
}

func (s *PostgresTicketStoreSuite) TestTicketLifecycle() {
	t, err := models.NewTicket("Broken link", "The verify page 404s", "web", models.PriorityHigh, s.user, nil, s.now)
	s.Require().NoError(err)
	s.Require().NoError(s.store.Create(s.ctx, t))

	msg, err := models.NewMessage(t.ID, s.user, "<p>any news?</p>", false, s.now.Add(time.Minute))
	s.Require().NoError(err)
	s.Require().NoError(s.store.AddMessage(s.ctx, msg))
	note, err := models.NewMessage(t.ID, s.user, "<p>escalated</p>", true, s.now.Add(2*time.Minute))
	s.Require().NoError(err)
	s.Require().NoError(s.store.AddMessage(s.ctx, note))
	s.Require().NoError(s.store.AddAttachment(s.ctx, &models.Attachment{
		ID: id.NewAttachmentID(), TicketID: t.ID, MessageID: &msg.ID, FileName: "shot.png",
		ContentType: "image/png", SizeBytes: 42, URL: "https://cdn/shot.png", UploaderID: s.user, CreatedAt: s.now,
	}))

	got, err := s.store.FindByID(s.ctx, t.ID)
	s.Require().NoError(err)
	s.Equal(models.PriorityHigh, got.Priority)
	s.Nil(got.InstitutionID)

	visible, err := s.store.ListMessages(s.ctx, t.ID, false)
	s.Require().NoError(err)
	s.Len(visible, 1)
	all, err := s.store.ListMessages(s.ctx, t.ID, true)
	s.Require().NoError(err)
	s.Len(all, 2)

	atts, err := s.store.ListAttachments(s.ctx, t.ID)
	s.Require().NoError(err)
	s.Require().Len(atts, 1)
	s.Require().NotNil(atts[0].MessageID)
	s.Equal(msg.ID, *atts[0].MessageID)

	resolved := models.StatusResolved
	s.Require().NoError(got.ApplyUpdate(models.Update{Status: &resolved, AssigneeID: &s.user}, s.now))
	s.Require().NoError(s.store.Update(s.ctx, got))
	n, err := s.store.CountOpen(s.ctx)
	s.Require().NoError(err)
	s.Zero(n)

	s.Require().NoError(s.store.Delete(s.ctx, t.ID))
	_, err = s.store.FindByID(s.ctx, t.ID)
	s.ErrorIs(err, sentinel.ErrNotFound)
	atts, err = s.store.ListAttachments(s.ctx, t.ID)
	s.Require().NoError(err)
	s.Empty(atts)
}

func (s *PostgresTicketStoreSuite) TestUnknownCreator() {
	t, err := models.NewTicket("s", "d", "", "", id.NewUserID(), nil, s.now)
	s.Require().NoError(err)
	s.ErrorIs(s.store.Create(s.ctx, t), sentinel.ErrNotFound)
}
