package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	activitymodels "certhub/internal/activity/models"
	authmodels "certhub/internal/auth/models"
	userstore "certhub/internal/auth/store/user"
	"certhub/internal/institution/metrics"
	"certhub/internal/institution/models"
	"certhub/internal/institution/service/mocks"
	"certhub/internal/institution/store"
	id "certhub/pkg/domain"
	dErrors "certhub/pkg/domain-errors"
	"certhub/pkg/platform/tx"
	"certhub/pkg/requestcontext"
)

//go:generate mockgen -source=service.go -destination=mocks/mocks.go -package=mocks Store,UserStore,CertificateCounter,ActivityLogger

type InstitutionServiceSuite struct {
	suite.Suite
	ctrl     *gomock.Controller
	store    *store.InMemoryStore
	users    *userstore.InMemoryStore
	certs    *mocks.MockCertificateCounter
	activity *mocks.MockActivityLogger
	metrics  *metrics.Metrics
	service  *Service
	admin    context.Context
}

func TestInstitutionServiceSuite(t *testing.T) {
	suite.Run(t, new(InstitutionServiceSuite))
}

func (s *InstitutionServiceSuite) SetupTest() {
	s.ctrl = gomock.NewController(s.T())
	s.store = store.NewInMemory()
	s.users = userstore.NewInMemory()
	s.certs = mocks.NewMockCertificateCounter(s.ctrl)
	s.activity = mocks.NewMockActivityLogger(s.ctrl)
	s.activity.EXPECT().Log(gomock.Any(), gomock.Any()).AnyTimes()
	s.metrics = metrics.NewWith(prometheus.NewRegistry())
	s.service = New(s.store, s.users, s.certs, tx.NoopRunner{},
		WithActivityLogger(s.activity),
		WithMetrics(s.metrics),
	)
	s.admin = requestcontext.WithPrincipal(context.Background(), id.NewUserID(), id.RoleAdmin, id.InstitutionID{})
}

func (s *InstitutionServiceSuite) createInstitution(name string) *models.Institution {
	inst, err := s.service.Create(s.admin, CreateCommand{Name: name, Type: models.TypeUniversity})
	s.Require().NoError(err)
	return inst
}

func (s *InstitutionServiceSuite) createUser(addr string, role id.Role) *authmodels.User {
	u, err := authmodels.NewUser(addr, "", "hash", role, time.Now())
	s.Require().NoError(err)
	s.Require().NoError(s.users.Create(context.Background(), u))
	return u
}

func (s *InstitutionServiceSuite) TestCreateDefaultsToActive() {
	inst := s.createInstitution("Université de Test")
	s.Equal(models.StatusActive, inst.Status)
	s.Equal(float64(1), testutil.ToFloat64(s.metrics.Created))
}

func (s *InstitutionServiceSuite) TestCreateRequiresAdmin() {
	ctx := requestcontext.WithPrincipal(context.Background(), id.NewUserID(), id.RoleInstitution, id.NewInstitutionID())
	_, err := s.service.Create(ctx, CreateCommand{Name: "Nope", Type: models.TypeSchool})
	s.True(dErrors.HasCode(err, dErrors.CodeForbidden))
}

func (s *InstitutionServiceSuite) TestCreateRejectsInvalidInput() {
	_, err := s.service.Create(s.admin, CreateCommand{Name: "  ", Type: models.TypeSchool})
	s.True(dErrors.HasCode(err, dErrors.CodeValidation))

	_, err = s.service.Create(s.admin, CreateCommand{Name: "Bad Web", Type: models.TypeSchool,
		Profile: models.Profile{Website: "ftp://bad.example"}})
	s.True(dErrors.HasCode(err, dErrors.CodeValidation))
}

func (s *InstitutionServiceSuite) TestCreateDuplicateNameConflicts() {
	s.createInstitution("Same Name")
	_, err := s.service.Create(s.admin, CreateCommand{Name: "Same Name", Type: models.TypeCompany})
	s.True(dErrors.HasCode(err, dErrors.CodeConflict))
}

func (s *InstitutionServiceSuite) TestGetScopedToMembers() {
	inst := s.createInstitution("Scoped")
	s.certs.EXPECT().CountByInstitution(gomock.Any(), inst.ID).Return(7, nil).Times(2)

	details, err := s.service.Get(s.admin, inst.ID)
	s.Require().NoError(err)
	s.Equal(7, details.CertificateCount)
	s.Equal(0, details.UserCount)

	member := requestcontext.WithPrincipal(context.Background(), id.NewUserID(), id.RoleInstitution, inst.ID)
	_, err = s.service.Get(member, inst.ID)
	s.NoError(err)

	outsider := requestcontext.WithPrincipal(context.Background(), id.NewUserID(), id.RoleInstitution, id.NewInstitutionID())
	_, err = s.service.Get(outsider, inst.ID)
	s.True(dErrors.HasCode(err, dErrors.CodeForbidden))
}

func (s *InstitutionServiceSuite) TestGetMissingIsNotFound() {
	_, err := s.service.Get(s.admin, id.NewInstitutionID())
	s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
}

func (s *InstitutionServiceSuite) TestListScopedByRole() {
	a := s.createInstitution("Alpha")
	s.createInstitution("Beta")

	page, err := s.service.List(s.admin, models.Filter{})
	s.Require().NoError(err)
	s.Equal(2, page.Total)

	member := requestcontext.WithPrincipal(context.Background(), id.NewUserID(), id.RoleInstitution, a.ID)
	page, err = s.service.List(member, models.Filter{})
	s.Require().NoError(err)
	s.Require().Len(page.Items, 1)
	s.Equal(a.ID, page.Items[0].ID)

	plain := requestcontext.WithPrincipal(context.Background(), id.NewUserID(), id.RoleUser, id.InstitutionID{})
	page, err = s.service.List(plain, models.Filter{})
	s.Require().NoError(err)
	s.Empty(page.Items)
}

func (s *InstitutionServiceSuite) TestUpdateAppliesFields() {
	inst := s.createInstitution("Old Name")
	name := "New Name"
	typ := models.TypeGovernment
	updated, err := s.service.Update(s.admin, inst.ID, UpdateCommand{
		Name:    &name,
		Type:    &typ,
		Profile: &models.Profile{Website: "https://new.example", Email: "Info@New.Example"},
	})
	s.Require().NoError(err)
	s.Equal("New Name", updated.Name)
	s.Equal(models.TypeGovernment, updated.Type)
	s.Equal("info@new.example", updated.Email)
}

func (s *InstitutionServiceSuite) TestChangeStatus() {
	inst := s.createInstitution("Status Co")

	updated, err := s.service.ChangeStatus(s.admin, inst.ID, models.StatusSuspended)
	s.Require().NoError(err)
	s.Equal(models.StatusSuspended, updated.Status)
	s.Equal(float64(1), testutil.ToFloat64(s.metrics.StatusChanges.WithLabelValues("SUSPENDED")))

	_, err = s.service.ChangeStatus(s.admin, inst.ID, models.StatusSuspended)
	s.True(dErrors.HasCode(err, dErrors.CodeValidation))

	_, err = s.service.ChangeStatus(s.admin, inst.ID, models.StatusPending)
	s.True(dErrors.HasCode(err, dErrors.CodeValidation))
}

func (s *InstitutionServiceSuite) TestDeleteBlockedByCertificates() {
	inst := s.createInstitution("Busy")
	s.certs.EXPECT().CountByInstitution(gomock.Any(), inst.ID).Return(3, nil)

	err := s.service.Delete(s.admin, inst.ID)
	s.True(dErrors.HasCode(err, dErrors.CodeConflict))
}

func (s *InstitutionServiceSuite) TestDelete() {
	inst := s.createInstitution("Gone")
	s.certs.EXPECT().CountByInstitution(gomock.Any(), inst.ID).Return(0, nil)

	s.Require().NoError(s.service.Delete(s.admin, inst.ID))
	_, err := s.store.FindByID(context.Background(), inst.ID)
	s.Error(err)
}

func (s *InstitutionServiceSuite) TestDeleteCountFailure() {
	inst := s.createInstitution("Flaky")
	s.certs.EXPECT().CountByInstitution(gomock.Any(), inst.ID).Return(0, errors.New("db down"))

	err := s.service.Delete(s.admin, inst.ID)
	s.True(dErrors.HasCode(err, dErrors.CodeInternal))
}

func (s *InstitutionServiceSuite) TestAddMemberPromotesUser() {
	inst := s.createInstitution("Members U")
	u := s.createUser("staff@members.edu", id.RoleUser)

	m, err := s.service.AddMember(s.admin, inst.ID, u.ID, "")
	s.Require().NoError(err)
	s.Equal(models.MemberStaff, m.Role)

	stored, err := s.users.FindByID(context.Background(), u.ID)
	s.Require().NoError(err)
	s.Equal(id.RoleInstitution, stored.Role)

	members, err := s.service.ListMembers(s.admin, inst.ID)
	s.Require().NoError(err)
	s.Require().Len(members, 1)
	s.Equal("staff@members.edu", members[0].Email)
}

func (s *InstitutionServiceSuite) TestAddMemberKeepsAdminRole() {
	inst := s.createInstitution("Admins U")
	u := s.createUser("root@members.edu", id.RoleAdmin)

	_, err := s.service.AddMember(s.admin, inst.ID, u.ID, models.MemberOwner)
	s.Require().NoError(err)

	stored, _ := s.users.FindByID(context.Background(), u.ID)
	s.Equal(id.RoleAdmin, stored.Role)
}

func (s *InstitutionServiceSuite) TestAddMemberTwiceConflicts() {
	a := s.createInstitution("First")
	b := s.createInstitution("Second")
	u := s.createUser("twice@members.edu", id.RoleUser)

	_, err := s.service.AddMember(s.admin, a.ID, u.ID, models.MemberStaff)
	s.Require().NoError(err)
	_, err = s.service.AddMember(s.admin, b.ID, u.ID, models.MemberStaff)
	s.True(dErrors.HasCode(err, dErrors.CodeConflict))
}

func (s *InstitutionServiceSuite) TestAddMemberUnknownUser() {
	inst := s.createInstitution("Ghosts")
	_, err := s.service.AddMember(s.admin, inst.ID, id.NewUserID(), models.MemberStaff)
	s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
}

func (s *InstitutionServiceSuite) TestAddMemberRequiresAdmin() {
	inst := s.createInstitution("Guarded")
	ctx := requestcontext.WithPrincipal(context.Background(), id.NewUserID(), id.RoleInstitution, inst.ID)
	_, err := s.service.AddMember(ctx, inst.ID, id.NewUserID(), models.MemberStaff)
	s.True(dErrors.HasCode(err, dErrors.CodeForbidden))
}

func (s *InstitutionServiceSuite) TestRemoveMemberDemotes() {
	inst := s.createInstitution("Leavers")
	u := s.createUser("leaver@members.edu", id.RoleUser)
	_, err := s.service.AddMember(s.admin, inst.ID, u.ID, models.MemberStaff)
	s.Require().NoError(err)

	s.Require().NoError(s.service.RemoveMember(s.admin, inst.ID, u.ID))

	stored, _ := s.users.FindByID(context.Background(), u.ID)
	s.Equal(id.RoleUser, stored.Role)

	err = s.service.RemoveMember(s.admin, inst.ID, u.ID)
	s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
}

func (s *InstitutionServiceSuite) TestMutationsLogInstitutionActivity() {
	ctrl := gomock.NewController(s.T())
	activity := mocks.NewMockActivityLogger(ctrl)
	svc := New(s.store, s.users, nil, nil, WithActivityLogger(activity))

	activity.EXPECT().Log(gomock.Any(), gomock.Any()).Do(func(_ context.Context, ev activitymodels.Event) {
		s.Equal(activitymodels.ActionInstitutionCreated, ev.Action)
		s.Equal(activitymodels.CategoryInstitution, ev.Category)
		s.Equal(activitymodels.StatusSuccess, ev.Status)
		s.NotNil(ev.InstitutionID)
		s.NotNil(ev.UserID)
	})
	_, err := svc.Create(s.admin, CreateCommand{Name: "Logged", Type: models.TypeOther})
	s.Require().NoError(err)
}

func (s *InstitutionServiceSuite) TestAddMemberStoreFailureIsInternal() {
	instStore := mocks.NewMockStore(s.ctrl)
	svc := New(instStore, s.users, s.certs, tx.NoopRunner{})
	inst, err := models.NewInstitution("Mock College", models.TypeSchool, models.StatusActive, models.Profile{}, time.Now())
	s.Require().NoError(err)
	u := s.createUser("mock.member@example.com", id.RoleUser)

	instStore.EXPECT().FindByID(gomock.Any(), inst.ID).Return(inst, nil)
	instStore.EXPECT().AddMember(gomock.Any(), gomock.Any()).DoAndReturn(func(_ context.Context, member *models.Member) error {
		s.Equal(u.ID, member.UserID)
		s.Equal(models.MemberStaff, member.Role)
		return errors.New("db down")
	})

	_, err = svc.AddMember(s.admin, inst.ID, u.ID, "")
	s.True(dErrors.HasCode(err, dErrors.CodeInternal))

	stored, err := s.users.FindByID(context.Background(), u.ID)
	s.Require().NoError(err)
	s.Equal(id.RoleUser, stored.Role)
}
