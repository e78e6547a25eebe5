package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	activitymodels "certhub/internal/activity/models"
	"certhub/internal/admin/service/mocks"
	"certhub/internal/auth/models"
	userstore "certhub/internal/auth/store/user"
	id "certhub/pkg/domain"
	dErrors "certhub/pkg/domain-errors"
	"certhub/pkg/requestcontext"
	"certhub/pkg/secrets"
)

//go:generate mockgen -source=service.go -destination=mocks/mocks.go -package=mocks UserStore,Tally,TicketCounter,FailureCounter,ActivityLogger

type AdminServiceSuite struct {
	suite.Suite
	ctrl     *gomock.Controller
	users    *userstore.InMemoryStore
	activity *mocks.MockActivityLogger
	userTal  *mocks.MockTally
	instTal  *mocks.MockTally
	certTal  *mocks.MockTally
	tickets  *mocks.MockTicketCounter
	failures *mocks.MockFailureCounter
	service  *Service
	events   []activitymodels.Event
	now      time.Time
	self     *models.User
	admin    context.Context
}

func TestAdminServiceSuite(t *testing.T) {
	suite.Run(t, new(AdminServiceSuite))
}

func (s *AdminServiceSuite) SetupTest() {
	s.ctrl = gomock.NewController(s.T())
	s.users = userstore.NewInMemory()
	s.activity = mocks.NewMockActivityLogger(s.ctrl)
	s.userTal = mocks.NewMockTally(s.ctrl)
	s.instTal = mocks.NewMockTally(s.ctrl)
	s.certTal = mocks.NewMockTally(s.ctrl)
	s.tickets = mocks.NewMockTicketCounter(s.ctrl)
	s.failures = mocks.NewMockFailureCounter(s.ctrl)
	s.events = nil
	s.activity.EXPECT().Log(gomock.Any(), gomock.Any()).Do(func(_ context.Context, ev activitymodels.Event) {
		s.events = append(s.events, ev)
	}).AnyTimes()
	s.service = New(s.users, StatsSources{
		Users:        s.userTal,
		Institutions: s.instTal,
		Certificates: s.certTal,
		Tickets:      s.tickets,
		Failures:     s.failures,
	}, WithActivityLogger(s.activity))

	s.now = time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)
	s.self = s.seed("root@certhub.io", id.RoleAdmin)
	s.admin = requestcontext.WithTime(
		requestcontext.WithPrincipal(context.Background(), s.self.ID, id.RoleAdmin, id.InstitutionID{}), s.now)
}

func (s *AdminServiceSuite) seed(addr string, role id.Role) *models.User {
	u, err := models.NewUser(addr, "", "hash", role, s.now)
	s.Require().NoError(err)
	s.Require().NoError(s.users.Create(context.Background(), u))
	return u
}

func (s *AdminServiceSuite) lastEvent() activitymodels.Event {
	s.Require().NotEmpty(s.events)
	return s.events[len(s.events)-1]
}

func (s *AdminServiceSuite) TestRequiresAdmin() {
	ctx := requestcontext.WithPrincipal(context.Background(), id.NewUserID(), id.RoleInstitution, id.NewInstitutionID())

	_, err := s.service.ListUsers(ctx, models.Filter{})
	s.True(dErrors.HasCode(err, dErrors.CodeForbidden))
	_, err = s.service.CreateUser(ctx, CreateUserCommand{Email: "x@y.io"})
	s.True(dErrors.HasCode(err, dErrors.CodeForbidden))
	_, err = s.service.Stats(ctx)
	s.True(dErrors.HasCode(err, dErrors.CodeForbidden))
	s.True(dErrors.HasCode(s.service.DeleteUser(ctx, s.self.ID), dErrors.CodeForbidden))
}

func (s *AdminServiceSuite) TestCreateUser() {
	s.Run("with password", func() {
		created, err := s.service.CreateUser(s.admin, CreateUserCommand{
			Email: "Staff@Northwind.edu", Name: "Staff", Password: "correct horse battery", Role: id.RoleInstitution,
		})
		s.Require().NoError(err)
		s.Equal("staff@northwind.edu", created.User.Email)
		s.Equal(id.RoleInstitution, created.User.Role)
		s.Empty(created.TemporaryPassword)
		s.NoError(secrets.Verify("correct horse battery", created.User.PasswordHash))

		ev := s.lastEvent()
		s.Equal(activitymodels.ActionUserCreated, ev.Action)
		s.Equal(activitymodels.CategoryUser, ev.Category)
		s.Equal(created.User.ID.String(), ev.Metadata["target_user_id"])
	})

	s.Run("generated password defaults to USER", func() {
		created, err := s.service.CreateUser(s.admin, CreateUserCommand{Email: "new@example.com"})
		s.Require().NoError(err)
		s.Equal(id.RoleUser, created.User.Role)
		s.NotEmpty(created.TemporaryPassword)
		s.NoError(secrets.Verify(created.TemporaryPassword, created.User.PasswordHash))
	})

	s.Run("duplicate email", func() {
		_, err := s.service.CreateUser(s.admin, CreateUserCommand{Email: "root@certhub.io"})
		s.True(dErrors.HasCode(err, dErrors.CodeConflict))
	})

	s.Run("weak password", func() {
		_, err := s.service.CreateUser(s.admin, CreateUserCommand{Email: "weak@example.com", Password: "short"})
		s.True(dErrors.HasCode(err, dErrors.CodeValidation))
	})

	s.Run("bad email", func() {
		_, err := s.service.CreateUser(s.admin, CreateUserCommand{Email: "not-an-email"})
		s.True(dErrors.HasCode(err, dErrors.CodeValidation))
	})
}

func (s *AdminServiceSuite) TestListUsers() {
	s.seed("a@example.com", id.RoleUser)
	s.seed("b@example.com", id.RoleInstitution)

	page, err := s.service.ListUsers(s.admin, models.Filter{Role: id.RoleInstitution})
	s.Require().NoError(err)
	s.Equal(1, page.Total)
	s.Equal("b@example.com", page.Items[0].Email)

	page, err = s.service.ListUsers(s.admin, models.Filter{Search: "example"})
	s.Require().NoError(err)
	s.Equal(2, page.Total)
	s.Equal(models.DefaultPageSize, page.Limit)
}

func (s *AdminServiceSuite) TestUpdateUser() {
	target := s.seed("target@example.com", id.RoleUser)

	s.Run("promote and deactivate", func() {
		role, active, name := id.RoleInstitution, false, "  Target Person "
		got, err := s.service.UpdateUser(s.admin, target.ID, UserUpdate{Name: &name, Role: &role, Active: &active})
		s.Require().NoError(err)
		s.Equal("Target Person", got.Name)
		s.Equal(id.RoleInstitution, got.Role)
		s.False(got.Active)
		s.Equal(activitymodels.ActionUserUpdated, s.lastEvent().Action)
	})

	s.Run("self demotion", func() {
		role := id.RoleUser
		_, err := s.service.UpdateUser(s.admin, s.self.ID, UserUpdate{Role: &role})
		s.True(dErrors.HasCode(err, dErrors.CodeForbidden))
	})

	s.Run("self deactivation", func() {
		active := false
		_, err := s.service.UpdateUser(s.admin, s.self.ID, UserUpdate{Active: &active})
		s.True(dErrors.HasCode(err, dErrors.CodeForbidden))
	})

	s.Run("invalid role", func() {
		role := id.Role("ROOT")
		_, err := s.service.UpdateUser(s.admin, target.ID, UserUpdate{Role: &role})
		s.True(dErrors.HasCode(err, dErrors.CodeValidation))
	})

	s.Run("unknown user", func() {
		name := "x"
		_, err := s.service.UpdateUser(s.admin, id.NewUserID(), UserUpdate{Name: &name})
		s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
	})
}

func (s *AdminServiceSuite) TestDeleteUser() {
	target := s.seed("gone@example.com", id.RoleUser)

	s.True(dErrors.HasCode(s.service.DeleteUser(s.admin, s.self.ID), dErrors.CodeForbidden))
	s.Require().NoError(s.service.DeleteUser(s.admin, target.ID))
	s.Equal(activitymodels.ActionUserDeleted, s.lastEvent().Action)

	_, err := s.service.GetUser(s.admin, target.ID)
	s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
}

func (s *AdminServiceSuite) TestStats() {
	s.userTal.EXPECT().Tally(gomock.Any()).Return(map[string]int{"ADMIN": 1, "INSTITUTION": 2, "USER": 7}, nil)
	s.instTal.EXPECT().Tally(gomock.Any()).Return(map[string]int{"ACTIVE": 3, "PENDING": 1, "SUSPENDED": 0}, nil)
	s.certTal.EXPECT().Tally(gomock.Any()).Return(map[string]int{"ACTIVE": 40, "REVOKED": 2, "EXPIRED": 5}, nil)
	s.tickets.EXPECT().CountOpen(gomock.Any()).Return(4, nil)
	s.failures.EXPECT().CountFailuresSince(gomock.Any(), activitymodels.CategoryVerification, s.now.Add(-FailureWindow)).Return(9, nil)

	st, err := s.service.Stats(s.admin)
	s.Require().NoError(err)
	s.Equal(7, st.UsersByRole["USER"])
	s.Equal(3, st.InstitutionsByStatus["ACTIVE"])
	s.Equal(2, st.CertificatesByStatus["REVOKED"])
	s.Equal(4, st.OpenTickets)
	s.Equal(9, st.RecentVerifyFailures)
	s.Equal(s.now, st.GeneratedAt)
}

func (s *AdminServiceSuite) TestStatsFailure() {
	s.userTal.EXPECT().Tally(gomock.Any()).Return(nil, errors.New("db down"))
	s.instTal.EXPECT().Tally(gomock.Any()).Return(map[string]int{}, nil).AnyTimes()
	s.certTal.EXPECT().Tally(gomock.Any()).Return(map[string]int{}, nil).AnyTimes()
	s.tickets.EXPECT().CountOpen(gomock.Any()).Return(0, nil).AnyTimes()
	s.failures.EXPECT().CountFailuresSince(gomock.Any(), gomock.Any(), gomock.Any()).Return(0, nil).AnyTimes()

	_, err := s.service.Stats(s.admin)
	s.True(dErrors.HasCode(err, dErrors.CodeInternal))
}
