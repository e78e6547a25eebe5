package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	activitymodels "certhub/internal/activity/models"
	authmodels "certhub/internal/auth/models"
	userstore "certhub/internal/auth/store/user"
	"certhub/internal/certificate/anchor"
	"certhub/internal/certificate/models"
	"certhub/internal/certificate/service/mocks"
	certstore "certhub/internal/certificate/store"
	instmodels "certhub/internal/institution/models"
	inststore "certhub/internal/institution/store"
	id "certhub/pkg/domain"
	dErrors "certhub/pkg/domain-errors"
	"certhub/pkg/media"
	"certhub/pkg/platform/sentinel"
	"certhub/pkg/requestcontext"
)

//go:generate mockgen -source=service.go -destination=mocks/mocks.go -package=mocks Store,Institutions,Users,Uploader,Anchorer,ActivityLogger

type CertificateServiceSuite struct {
	suite.Suite
	ctrl         *gomock.Controller
	store        *certstore.InMemoryStore
	institutions *inststore.InMemoryStore
	users        *userstore.InMemoryStore
	uploader     *mocks.MockUploader
	anchor       *mocks.MockAnchorer
	activity     *mocks.MockActivityLogger
	service      *Service
	events       []activitymodels.Event
	now          time.Time
	inst         *instmodels.Institution
	admin        context.Context
}

func TestCertificateServiceSuite(t *testing.T) {
	suite.Run(t, new(CertificateServiceSuite))
}

func (s *CertificateServiceSuite) SetupTest() {
	s.ctrl = gomock.NewController(s.T())
	s.store = certstore.NewInMemory()
	s.institutions = inststore.NewInMemory()
	s.users = userstore.NewInMemory()
	s.uploader = mocks.NewMockUploader(s.ctrl)
	s.anchor = mocks.NewMockAnchorer(s.ctrl)
	s.activity = mocks.NewMockActivityLogger(s.ctrl)
	s.events = nil
	s.activity.EXPECT().Log(gomock.Any(), gomock.Any()).Do(func(_ context.Context, ev activitymodels.Event) {
		s.events = append(s.events, ev)
	}).AnyTimes()
	s.uploader.EXPECT().Enabled().Return(false).AnyTimes()
	s.anchor.EXPECT().Enabled().Return(false).AnyTimes()

	s.service = New(s.store, s.institutions, s.users,
		WithUploader(s.uploader),
		WithAnchor(s.anchor),
		WithActivityLogger(s.activity),
	)
	s.now = time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)
	s.inst = s.newInstitution("Northwind University", instmodels.StatusActive)
	s.admin = s.as(id.NewUserID(), id.RoleAdmin, id.InstitutionID{})
}

// withService rebuilds the service with fresh uploader and anchor mocks whose
// Enabled results are up to the test.
func (s *CertificateServiceSuite) withCollaborators(uploaderOn, anchorOn bool) {
	s.uploader = mocks.NewMockUploader(s.ctrl)
	s.anchor = mocks.NewMockAnchorer(s.ctrl)
	s.uploader.EXPECT().Enabled().Return(uploaderOn).AnyTimes()
	s.anchor.EXPECT().Enabled().Return(anchorOn).AnyTimes()
	s.service = New(s.store, s.institutions, s.users,
		WithUploader(s.uploader),
		WithAnchor(s.anchor),
		WithActivityLogger(s.activity),
	)
}

func (s *CertificateServiceSuite) as(userID id.UserID, role id.Role, instID id.InstitutionID) context.Context {
	ctx := requestcontext.WithPrincipal(context.Background(), userID, role, instID)
	return requestcontext.WithTime(ctx, s.now)
}

func (s *CertificateServiceSuite) public() context.Context {
	return requestcontext.WithTime(context.Background(), s.now)
}

func (s *CertificateServiceSuite) newInstitution(name string, status instmodels.Status) *instmodels.Institution {
	inst, err := instmodels.NewInstitution(name, instmodels.TypeUniversity, status, instmodels.Profile{}, s.now)
	s.Require().NoError(err)
	s.Require().NoError(s.institutions.Create(context.Background(), inst))
	return inst
}

func (s *CertificateServiceSuite) newUser(addr string, role id.Role) *authmodels.User {
	u, err := authmodels.NewUser(addr, "Someone", "hash", role, s.now)
	s.Require().NoError(err)
	s.Require().NoError(s.users.Create(context.Background(), u))
	return u
}

func (s *CertificateServiceSuite) issue(recipient string) *models.Certificate {
	c, err := s.service.Issue(s.admin, IssueCommand{
		InstitutionID:  s.inst.ID,
		Title:          "BSc Computer Science",
		RecipientName:  "Ada Lovelace",
		RecipientEmail: recipient,
	})
	s.Require().NoError(err)
	return c
}

func (s *CertificateServiceSuite) lastEvent() activitymodels.Event {
	s.Require().NotEmpty(s.events)
	return s.events[len(s.events)-1]
}

func (s *CertificateServiceSuite) TestIssueAsAdmin() {
	recipient := s.newUser("ada@example.com", id.RoleUser)

	c, err := s.service.Issue(s.admin, IssueCommand{
		InstitutionID:  s.inst.ID,
		Title:          "  BSc Computer Science ",
		RecipientName:  "Ada Lovelace",
		RecipientEmail: "ADA@example.com",
	})
	s.Require().NoError(err)
	s.Equal("BSc Computer Science", c.Title)
	s.Equal(models.StatusActive, c.Status)
	s.Equal(models.AnchorNone, c.AnchorStatus)
	s.Regexp(`^CH-[2-9A-Z]{4}-[2-9A-Z]{4}-[2-9A-Z]{4}$`, c.VerificationID)
	s.Require().NotNil(c.RecipientUserID)
	s.Equal(recipient.ID, *c.RecipientUserID)
	s.True(c.IssueDate.Equal(s.now))

	ev := s.lastEvent()
	s.Equal(activitymodels.ActionCertificateIssued, ev.Action)
	s.Equal(activitymodels.CategoryCertificate, ev.Category)
	s.Equal(c.ID, *ev.CertificateID)
}

func (s *CertificateServiceSuite) TestIssueAuthorization() {
	suspended := s.newInstitution("Dormant College", instmodels.StatusSuspended)
	staff := id.NewUserID()
	base := IssueCommand{Title: "Award", RecipientName: "R", RecipientEmail: "r@example.com"}

	s.Run("admin must name the institution", func() {
		_, err := s.service.Issue(s.admin, base)
		s.True(dErrors.HasCode(err, dErrors.CodeValidation))
	})

	s.Run("institution user issues for own institution", func() {
		c, err := s.service.Issue(s.as(staff, id.RoleInstitution, s.inst.ID), base)
		s.Require().NoError(err)
		s.Equal(s.inst.ID, c.InstitutionID)
		s.Equal(staff, *c.IssuerID)
	})

	s.Run("institution user cannot issue for another institution", func() {
		cmd := base
		cmd.InstitutionID = id.NewInstitutionID()
		_, err := s.service.Issue(s.as(staff, id.RoleInstitution, s.inst.ID), cmd)
		s.True(dErrors.HasCode(err, dErrors.CodeForbidden))
	})

	s.Run("institution must be active", func() {
		_, err := s.service.Issue(s.as(staff, id.RoleInstitution, suspended.ID), base)
		s.True(dErrors.HasCode(err, dErrors.CodeForbidden))
	})

	s.Run("regular users cannot issue", func() {
		_, err := s.service.Issue(s.as(id.NewUserID(), id.RoleUser, id.InstitutionID{}), base)
		s.True(dErrors.HasCode(err, dErrors.CodeForbidden))
	})

	s.Run("unknown institution", func() {
		cmd := base
		cmd.InstitutionID = id.NewInstitutionID()
		_, err := s.service.Issue(s.admin, cmd)
		s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
	})

	s.Run("invalid fields", func() {
		cmd := base
		cmd.InstitutionID = s.inst.ID
		cmd.RecipientEmail = "not-an-email"
		_, err := s.service.Issue(s.admin, cmd)
		s.True(dErrors.HasCode(err, dErrors.CodeValidation))
	})
}

func (s *CertificateServiceSuite) TestIssueWithFileUploadsAndAnchors() {
	s.withCollaborators(true, true)
	data := []byte("%PDF-1.7 diploma")
	hash := HashFile(data)
	anchoredAt := s.now.Add(time.Minute)

	s.uploader.EXPECT().Upload(gomock.Any(), gomock.Any()).DoAndReturn(func(_ context.Context, f media.File) (*media.Asset, error) {
		s.Equal("certificates", f.Subfolder)
		s.Equal("diploma.pdf", f.Name)
		return &media.Asset{URL: "https://cdn.example.com/diploma.pdf"}, nil
	})
	s.anchor.EXPECT().Network().Return("polygon")
	s.anchor.EXPECT().Anchor(gomock.Any(), hash).Return(&anchor.Receipt{
		Network: "polygon", TxHash: "0xabc", AnchoredAt: anchoredAt,
	}, nil)

	c, err := s.service.Issue(s.admin, IssueCommand{
		InstitutionID:  s.inst.ID,
		Title:          "Diploma",
		RecipientName:  "Ada",
		RecipientEmail: "ada@example.com",
		File:           &File{Name: "diploma.pdf", ContentType: "application/pdf", Data: data},
	})
	s.Require().NoError(err)
	s.Equal(hash, c.FileHash)
	s.Equal("https://cdn.example.com/diploma.pdf", c.FileURL)

	stored, err := s.store.FindByID(context.Background(), c.ID)
	s.Require().NoError(err)
	s.Equal(models.AnchorConfirmed, stored.AnchorStatus)
	s.Equal("0xabc", stored.AnchorTxHash)
	s.True(stored.AnchoredAt.Equal(anchoredAt))

	ev := s.lastEvent()
	s.Equal(activitymodels.CategoryBlockchain, ev.Category)
	s.Equal(activitymodels.StatusSuccess, ev.Status)
}

func (s *CertificateServiceSuite) TestAnchorFailureKeepsCertificate() {
	s.withCollaborators(false, true)
	s.anchor.EXPECT().Network().Return("polygon")
	s.anchor.EXPECT().Anchor(gomock.Any(), gomock.Any()).Return(nil, errors.New("node unreachable"))

	c, err := s.service.Issue(s.admin, IssueCommand{
		InstitutionID:  s.inst.ID,
		Title:          "Diploma",
		RecipientName:  "Ada",
		RecipientEmail: "ada@example.com",
		File:           &File{Name: "d.pdf", Data: []byte("data")},
	})
	s.Require().NoError(err)
	s.Empty(c.FileURL)

	stored, err := s.store.FindByID(context.Background(), c.ID)
	s.Require().NoError(err)
	s.Equal(models.AnchorFailed, stored.AnchorStatus)

	ev := s.lastEvent()
	s.Equal(activitymodels.ActionBlockchainAnchor, ev.Action)
	s.Equal(activitymodels.CategoryBlockchain, ev.Category)
	s.Equal(activitymodels.StatusFailure, ev.Status)
}

func (s *CertificateServiceSuite) TestUploadFailureAborts() {
	s.withCollaborators(true, false)
	s.uploader.EXPECT().Upload(gomock.Any(), gomock.Any()).Return(nil, errors.New("503"))

	_, err := s.service.Issue(s.admin, IssueCommand{
		InstitutionID:  s.inst.ID,
		Title:          "Diploma",
		RecipientName:  "Ada",
		RecipientEmail: "ada@example.com",
		File:           &File{Name: "d.pdf", Data: []byte("data")},
	})
	s.True(dErrors.HasCode(err, dErrors.CodeUnavailable))

	_, total, _ := s.store.List(context.Background(), models.Filter{Limit: 10})
	s.Zero(total)
}

func (s *CertificateServiceSuite) TestIssueRetriesVerificationIDConflict() {
	store := mocks.NewMockStore(s.ctrl)
	svc := New(store, s.institutions, s.users)
	var tried []string
	store.EXPECT().Create(gomock.Any(), gomock.Any()).DoAndReturn(func(_ context.Context, c *models.Certificate) error {
		tried = append(tried, c.VerificationID)
		if len(tried) == 1 {
			return sentinel.ErrConflict
		}
		return nil
	}).Times(2)

	c, err := svc.Issue(s.admin, IssueCommand{
		InstitutionID: s.inst.ID, Title: "T", RecipientName: "R", RecipientEmail: "r@example.com",
	})
	s.Require().NoError(err)
	s.Require().Len(tried, 2)
	s.NotEqual(tried[0], tried[1])
	s.Equal(tried[1], c.VerificationID)
}

func (s *CertificateServiceSuite) TestListIsScopedByRole() {
	other := s.newInstitution("Other Institute", instmodels.StatusActive)
	me := s.newUser("me@example.com", id.RoleUser)
	mine := s.issue("me@example.com")
	s.issue("someone@example.com")
	_, err := s.service.Issue(s.admin, IssueCommand{
		InstitutionID: other.ID, Title: "Elsewhere", RecipientName: "R", RecipientEmail: "r@example.com",
	})
	s.Require().NoError(err)

	page, err := s.service.List(s.admin, models.Filter{})
	s.Require().NoError(err)
	s.Equal(3, page.Total)
	s.Equal(models.DefaultPageSize, page.Limit)

	page, err = s.service.List(s.as(id.NewUserID(), id.RoleInstitution, other.ID), models.Filter{InstitutionID: &s.inst.ID})
	s.Require().NoError(err)
	s.Equal(1, page.Total)
	s.Equal(other.ID, page.Items[0].InstitutionID)

	page, err = s.service.List(s.as(me.ID, id.RoleUser, id.InstitutionID{}), models.Filter{})
	s.Require().NoError(err)
	s.Require().Equal(1, page.Total)
	s.Equal(mine.ID, page.Items[0].ID)

	page, err = s.service.List(s.as(id.NewUserID(), id.RoleInstitution, id.InstitutionID{}), models.Filter{})
	s.Require().NoError(err)
	s.Zero(page.Total)
}

func (s *CertificateServiceSuite) TestGetVisibility() {
	owner := s.newUser("owner@example.com", id.RoleUser)
	stranger := s.newUser("stranger@example.com", id.RoleUser)
	c := s.issue("owner@example.com")

	_, err := s.service.Get(s.as(owner.ID, id.RoleUser, id.InstitutionID{}), c.ID)
	s.NoError(err)

	_, err = s.service.Get(s.as(id.NewUserID(), id.RoleInstitution, s.inst.ID), c.ID)
	s.NoError(err)

	_, err = s.service.Get(s.as(stranger.ID, id.RoleUser, id.InstitutionID{}), c.ID)
	s.True(dErrors.HasCode(err, dErrors.CodeForbidden))

	_, err = s.service.Get(s.admin, id.NewCertificateID())
	s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
}

func (s *CertificateServiceSuite) TestUpdateRelinksRecipient() {
	c := s.issue("first@example.com")
	s.Nil(c.RecipientUserID)
	second := s.newUser("second@example.com", id.RoleUser)

	addr := "second@example.com"
	updated, err := s.service.Update(s.as(id.NewUserID(), id.RoleInstitution, s.inst.ID), c.ID, models.Update{RecipientEmail: &addr})
	s.Require().NoError(err)
	s.Require().NotNil(updated.RecipientUserID)
	s.Equal(second.ID, *updated.RecipientUserID)

	_, err = s.service.Update(s.as(id.NewUserID(), id.RoleInstitution, id.NewInstitutionID()), c.ID, models.Update{RecipientEmail: &addr})
	s.True(dErrors.HasCode(err, dErrors.CodeForbidden))
}

func (s *CertificateServiceSuite) TestRevoke() {
	c := s.issue("ada@example.com")

	_, err := s.service.Revoke(s.admin, c.ID, "  ")
	s.True(dErrors.HasCode(err, dErrors.CodeValidation))

	_, err = s.service.Revoke(s.as(id.NewUserID(), id.RoleUser, id.InstitutionID{}), c.ID, "fraud")
	s.True(dErrors.HasCode(err, dErrors.CodeForbidden))

	revoked, err := s.service.Revoke(s.admin, c.ID, "issued in error")
	s.Require().NoError(err)
	s.Equal(models.StatusRevoked, revoked.Status)
	s.Equal("issued in error", revoked.RevocationReason)
	s.Equal(activitymodels.ActionCertificateRevoked, s.lastEvent().Action)

	_, err = s.service.Revoke(s.admin, c.ID, "again")
	s.True(dErrors.HasCode(err, dErrors.CodeValidation))
}

func (s *CertificateServiceSuite) TestDeleteIsAdminOnly() {
	c := s.issue("ada@example.com")

	err := s.service.Delete(s.as(id.NewUserID(), id.RoleInstitution, s.inst.ID), c.ID)
	s.True(dErrors.HasCode(err, dErrors.CodeForbidden))

	s.Require().NoError(s.service.Delete(s.admin, c.ID))
	err = s.service.Delete(s.admin, c.ID)
	s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
}

func (s *CertificateServiceSuite) TestExpireDue() {
	expiry := s.now.Add(24 * time.Hour)
	c, err := s.service.Issue(s.admin, IssueCommand{
		InstitutionID: s.inst.ID, Title: "Short course", RecipientName: "R", RecipientEmail: "r@example.com",
		ExpiryDate: &expiry,
	})
	s.Require().NoError(err)
	s.issue("forever@example.com")

	later := requestcontext.WithTime(context.Background(), s.now.Add(48*time.Hour))
	n, err := s.service.ExpireDue(later)
	s.Require().NoError(err)
	s.Equal(1, n)

	stored, _ := s.store.FindByID(context.Background(), c.ID)
	s.Equal(models.StatusExpired, stored.Status)
	s.Equal(activitymodels.ActionCertificateExpired, s.lastEvent().Action)

	n, err = s.service.ExpireDue(later)
	s.Require().NoError(err)
	s.Zero(n)
}

func (s *CertificateServiceSuite) TestVerifyByID() {
	valid := s.issue("ada@example.com")
	revoked := s.issue("bob@example.com")
	_, err := s.service.Revoke(s.admin, revoked.ID, "withdrawn")
	s.Require().NoError(err)

	s.Run("valid", func() {
		res, err := s.service.VerifyByID(s.public(), " "+valid.VerificationID+" ")
		s.Require().NoError(err)
		s.True(res.Valid)
		s.Equal(models.ReasonValid, res.Reason)
		s.Equal("Northwind University", res.Certificate.InstitutionName)
		s.Nil(res.Blockchain)
		s.True(res.CheckedAt.Equal(s.now))
		s.Equal(activitymodels.StatusSuccess, s.lastEvent().Status)
	})

	s.Run("revoked is a warning", func() {
		res, err := s.service.VerifyByID(s.public(), revoked.VerificationID)
		s.Require().NoError(err)
		s.False(res.Valid)
		s.Equal(models.ReasonRevoked, res.Reason)
		s.Equal("withdrawn", res.Certificate.RevocationReason)
		ev := s.lastEvent()
		s.Equal(activitymodels.CategoryVerification, ev.Category)
		s.Equal(activitymodels.StatusWarning, ev.Status)
	})

	s.Run("unknown is a failure", func() {
		res, err := s.service.VerifyByID(s.public(), "CH-ZZZZ-ZZZZ-ZZZZ")
		s.Require().NoError(err)
		s.False(res.Valid)
		s.Equal(models.ReasonNotFound, res.Reason)
		s.Nil(res.Certificate)
		ev := s.lastEvent()
		s.Equal(activitymodels.ActionVerifyByID, ev.Action)
		s.Equal(activitymodels.CategoryVerification, ev.Category)
		s.Equal(activitymodels.StatusFailure, ev.Status)
	})

	s.Run("blank id", func() {
		_, err := s.service.VerifyByID(s.public(), "  ")
		s.True(dErrors.HasCode(err, dErrors.CodeValidation))
	})
}

func (s *CertificateServiceSuite) TestVerifyReportsLapsedCertificateBeforeSweep() {
	expiry := s.now.Add(time.Hour)
	c, err := s.service.Issue(s.admin, IssueCommand{
		InstitutionID: s.inst.ID, Title: "T", RecipientName: "R", RecipientEmail: "r@example.com",
		ExpiryDate: &expiry,
	})
	s.Require().NoError(err)

	res, err := s.service.VerifyByID(requestcontext.WithTime(context.Background(), s.now.Add(2*time.Hour)), c.VerificationID)
	s.Require().NoError(err)
	s.False(res.Valid)
	s.Equal(models.ReasonExpired, res.Reason)
	s.Equal(models.StatusExpired, res.Certificate.Status)
}

func (s *CertificateServiceSuite) TestVerifyByFile() {
	data := []byte("signed transcript")
	c, err := s.service.Issue(s.admin, IssueCommand{
		InstitutionID: s.inst.ID, Title: "Transcript", RecipientName: "R", RecipientEmail: "r@example.com",
		File: &File{Name: "t.pdf", Data: data},
	})
	s.Require().NoError(err)

	res, err := s.service.VerifyByFile(s.public(), File{Name: "upload.pdf", Data: data})
	s.Require().NoError(err)
	s.True(res.Valid)
	s.Equal(c.VerificationID, res.Certificate.VerificationID)

	res, err = s.service.VerifyByFile(s.public(), File{Name: "forged.pdf", Data: []byte("forged")})
	s.Require().NoError(err)
	s.Equal(models.ReasonNotFound, res.Reason)
	s.Equal(activitymodels.ActionVerifyByFile, s.lastEvent().Action)
	s.Equal(activitymodels.StatusFailure, s.lastEvent().Status)

	_, err = s.service.VerifyByFile(s.public(), File{})
	s.True(dErrors.HasCode(err, dErrors.CodeValidation))
}

func (s *CertificateServiceSuite) TestAnchorRecheck() {
	c := s.issue("ada@example.com")
	c.AttachFile("", "feedface", s.now)
	c.ConfirmAnchor("0xtx", s.now, s.now)
	c.AnchorNetwork = "polygon"
	s.Require().NoError(s.store.Update(context.Background(), c))
	s.withCollaborators(false, true)

	s.Run("match", func() {
		s.anchor.EXPECT().Verify(gomock.Any(), "feedface", "0xtx").Return(true, nil)
		res, err := s.service.VerifyByID(s.public(), c.VerificationID)
		s.Require().NoError(err)
		s.Require().NotNil(res.Blockchain.Verified)
		s.True(*res.Blockchain.Verified)
		s.Equal(activitymodels.CategoryVerification, s.lastEvent().Category)
	})

	s.Run("mismatch", func() {
		s.anchor.EXPECT().Verify(gomock.Any(), "feedface", "0xtx").Return(false, nil)
		before := len(s.events)
		res, err := s.service.VerifyByID(s.public(), c.VerificationID)
		s.Require().NoError(err)
		s.True(res.Valid)
		s.False(*res.Blockchain.Verified)
		s.Equal(models.AnchorConfirmed, res.Blockchain.Status)

		s.Require().Len(s.events, before+2)
		chain := s.events[before]
		s.Equal(activitymodels.CategoryBlockchain, chain.Category)
		s.Equal(activitymodels.StatusFailure, chain.Status)
	})

	s.Run("anchor error", func() {
		s.anchor.EXPECT().Verify(gomock.Any(), gomock.Any(), gomock.Any()).Return(false, errors.New("timeout"))
		res, err := s.service.VerifyByID(s.public(), c.VerificationID)
		s.Require().NoError(err)
		s.False(*res.Blockchain.Verified)
	})
}

func (s *CertificateServiceSuite) TestListMineRequiresAccount() {
	_, err := s.service.ListMine(s.public(), models.Filter{})
	s.True(dErrors.HasCode(err, dErrors.CodeUnauthorized))
}
