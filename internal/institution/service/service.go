// Package service manages institutions and their membership.
package service

import (
	"context"
	"errors"
	"log/slog"

	activitymodels "certhub/internal/activity/models"
	authmodels "certhub/internal/auth/models"
	"certhub/internal/institution/metrics"
	"certhub/internal/institution/models"
	id "certhub/pkg/domain"
	dErrors "certhub/pkg/domain-errors"
	"certhub/pkg/platform/sentinel"
	"certhub/pkg/platform/tx"
	"certhub/pkg/requestcontext"
)

type Store interface {
	Create(ctx context.Context, inst *models.Institution) error
	FindByID(ctx context.Context, instID id.InstitutionID) (*models.Institution, error)
	Update(ctx context.Context, inst *models.Institution) error
	Delete(ctx context.Context, instID id.InstitutionID) error
	List(ctx context.Context, f models.Filter) ([]*models.Institution, int, error)
	AddMember(ctx context.Context, member *models.Member) error
	RemoveMember(ctx context.Context, instID id.InstitutionID, userID id.UserID) error
	ListMembers(ctx context.Context, instID id.InstitutionID) ([]*models.Member, error)
	CountMembers(ctx context.Context, instID id.InstitutionID) (int, error)
}

type UserStore interface {
	FindByID(ctx context.Context, userID id.UserID) (*authmodels.User, error)
	Update(ctx context.Context, u *authmodels.User) error
}

// CertificateCounter reports how many certificates an institution has issued.
type CertificateCounter interface {
	CountByInstitution(ctx context.Context, instID id.InstitutionID) (int, error)
}

type ActivityLogger interface {
	Log(ctx context.Context, ev activitymodels.Event)
}

type Service struct {
	store        Store
	users        UserStore
	certificates CertificateCounter
	tx           tx.Runner
	activity     ActivityLogger
	logger       *slog.Logger
	metrics      *metrics.Metrics
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

func WithActivityLogger(a ActivityLogger) Option {
	return func(s *Service) {
		s.activity = a
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

func New(store Store, users UserStore, certificates CertificateCounter, runner tx.Runner, opts ...Option) *Service {
	s := &Service{
		store:        store,
		users:        users,
		certificates: certificates,
		tx:           runner,
		logger:       slog.New(slog.DiscardHandler),
	}
	if s.tx == nil {
		s.tx = tx.NoopRunner{}
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// CreateCommand carries the fields of a new institution.
type CreateCommand struct {
	Name    string
	Type    models.Type
	Status  models.Status
	Profile models.Profile
}

// UpdateCommand replaces the editable fields. Nil fields are left as they are.
type UpdateCommand struct {
	Name    *string
	Type    *models.Type
	Profile *models.Profile
}

// Page is one page of an institution listing.
type Page struct {
	Items  []*models.Institution
	Total  int
	Limit  int
	Offset int
}

func requireAdmin(ctx context.Context) error {
	if requestcontext.Role(ctx) != id.RoleAdmin {
		return dErrors.New(dErrors.CodeForbidden, "admin access required")
	}
	return nil
}

// Create registers an institution. Admin only; status defaults to ACTIVE.
func (s *Service) Create(ctx context.Context, cmd CreateCommand) (*models.Institution, error) {
	if err := requireAdmin(ctx); err != nil {
		return nil, err
	}
	if cmd.Status == "" {
		cmd.Status = models.StatusActive
	}
	inst, err := models.NewInstitution(cmd.Name, cmd.Type, cmd.Status, cmd.Profile, requestcontext.Now(ctx))
	if err != nil {
		return nil, dErrors.New(dErrors.CodeValidation, err.Error())
	}
	if err := s.store.Create(ctx, inst); err != nil {
		if errors.Is(err, sentinel.ErrConflict) {
			return nil, dErrors.New(dErrors.CodeConflict, "an institution with this name already exists")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to create institution")
	}
	s.metrics.IncCreated()
	s.logActivity(ctx, inst.ID, activitymodels.ActionInstitutionCreated, "Institution created",
		map[string]any{"name": inst.Name, "type": string(inst.Type), "status": string(inst.Status)})
	s.logger.InfoContext(ctx, "institution created",
		"institution_id", inst.ID.String(),
		"request_id", requestcontext.RequestID(ctx),
	)
	return inst, nil
}

// Get returns an institution with usage counts. Admins see any institution,
// other callers only their own.
func (s *Service) Get(ctx context.Context, instID id.InstitutionID) (*models.Details, error) {
	if requestcontext.Role(ctx) != id.RoleAdmin && requestcontext.InstitutionID(ctx) != instID {
		return nil, dErrors.New(dErrors.CodeForbidden, "not a member of this institution")
	}
	inst, err := s.load(ctx, instID)
	if err != nil {
		return nil, err
	}
	users, err := s.store.CountMembers(ctx, instID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to count members")
	}
	certs := 0
	if s.certificates != nil {
		certs, err = s.certificates.CountByInstitution(ctx, instID)
		if err != nil {
			return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to count certificates")
		}
	}
	return &models.Details{Institution: inst, UserCount: users, CertificateCount: certs}, nil
}

// List returns every institution to admins and the caller's own institution
// to everyone else.
func (s *Service) List(ctx context.Context, f models.Filter) (*Page, error) {
	f.Normalize()
	f.OnlyID = nil
	if requestcontext.Role(ctx) != id.RoleAdmin {
		own := requestcontext.InstitutionID(ctx)
		if own.IsNil() {
			return &Page{Items: []*models.Institution{}, Limit: f.Limit, Offset: f.Offset}, nil
		}
		f.OnlyID = &own
	}
	items, total, err := s.store.List(ctx, f)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list institutions")
	}
	return &Page{Items: items, Total: total, Limit: f.Limit, Offset: f.Offset}, nil
}

// Update edits name, type and profile. Admin only.
func (s *Service) Update(ctx context.Context, instID id.InstitutionID, cmd UpdateCommand) (*models.Institution, error) {
	if err := requireAdmin(ctx); err != nil {
		return nil, err
	}
	inst, err := s.load(ctx, instID)
	if err != nil {
		return nil, err
	}
	now := requestcontext.Now(ctx)
	if cmd.Name != nil {
		if err := inst.Rename(*cmd.Name, now); err != nil {
			return nil, dErrors.New(dErrors.CodeValidation, err.Error())
		}
	}
	if cmd.Type != nil {
		if !cmd.Type.IsValid() {
			return nil, dErrors.New(dErrors.CodeValidation, "invalid institution type")
		}
		inst.Type = *cmd.Type
	}
	if cmd.Profile != nil {
		if err := inst.ApplyProfile(*cmd.Profile, now); err != nil {
			return nil, dErrors.New(dErrors.CodeValidation, err.Error())
		}
	}
	if err := s.store.Update(ctx, inst); err != nil {
		return nil, translateWriteErr(err, "failed to update institution")
	}
	s.logActivity(ctx, inst.ID, activitymodels.ActionInstitutionUpdated, "Institution updated", nil)
	return inst, nil
}

// ChangeStatus moves an institution between PENDING, ACTIVE and SUSPENDED. Admin only.
func (s *Service) ChangeStatus(ctx context.Context, instID id.InstitutionID, next models.Status) (*models.Institution, error) {
	if err := requireAdmin(ctx); err != nil {
		return nil, err
	}
	inst, err := s.load(ctx, instID)
	if err != nil {
		return nil, err
	}
	previous := inst.Status
	if err := inst.ChangeStatus(next, requestcontext.Now(ctx)); err != nil {
		return nil, dErrors.New(dErrors.CodeValidation, err.Error())
	}
	if err := s.store.Update(ctx, inst); err != nil {
		return nil, translateWriteErr(err, "failed to update institution status")
	}
	s.metrics.IncStatusChange(string(next))
	s.logActivity(ctx, inst.ID, activitymodels.ActionInstitutionStatusChanged, "Institution status changed",
		map[string]any{"from": string(previous), "to": string(next)})
	s.logger.InfoContext(ctx, "institution status changed",
		"institution_id", inst.ID.String(),
		"from", string(previous),
		"to", string(next),
		"request_id", requestcontext.RequestID(ctx),
	)
	return inst, nil
}

// Delete removes an institution that has issued no certificates. Admin only.
func (s *Service) Delete(ctx context.Context, instID id.InstitutionID) error {
	if err := requireAdmin(ctx); err != nil {
		return err
	}
	inst, err := s.load(ctx, instID)
	if err != nil {
		return err
	}
	if s.certificates != nil {
		n, err := s.certificates.CountByInstitution(ctx, instID)
		if err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to count certificates")
		}
		if n > 0 {
			return dErrors.New(dErrors.CodeConflict, "institution has issued certificates")
		}
	}
	if err := s.store.Delete(ctx, instID); err != nil {
		if errors.Is(err, sentinel.ErrConflict) {
			return dErrors.New(dErrors.CodeConflict, "institution has issued certificates")
		}
		return translateWriteErr(err, "failed to delete institution")
	}
	s.metrics.IncDeleted()
	s.logActivity(ctx, instID, activitymodels.ActionInstitutionDeleted, "Institution deleted",
		map[string]any{"name": inst.Name})
	return nil
}

func (s *Service) load(ctx context.Context, instID id.InstitutionID) (*models.Institution, error) {
	inst, err := s.store.FindByID(ctx, instID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "institution not found")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load institution")
	}
	return inst, nil
}

func translateWriteErr(err error, msg string) error {
	switch {
	case errors.Is(err, sentinel.ErrNotFound):
		return dErrors.New(dErrors.CodeNotFound, "institution not found")
	case errors.Is(err, sentinel.ErrConflict):
		return dErrors.New(dErrors.CodeConflict, "an institution with this name already exists")
	}
	return dErrors.Wrap(err, dErrors.CodeInternal, msg)
}

func (s *Service) logActivity(ctx context.Context, instID id.InstitutionID, action, description string, meta map[string]any) {
	if s.activity == nil {
		return
	}
	actor := requestcontext.UserID(ctx)
	var actorRef *id.UserID
	if !actor.IsNil() {
		actorRef = &actor
	}
	s.activity.Log(ctx, activitymodels.Event{
		Action:        action,
		Category:      activitymodels.CategoryInstitution,
		Status:        activitymodels.StatusSuccess,
		UserID:        actorRef,
		InstitutionID: &instID,
		Description:   description,
		Metadata:      meta,
	})
}
