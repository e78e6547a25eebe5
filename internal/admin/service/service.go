// Package service implements the admin console: user management and the
// dashboard statistics.
package service

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	activitymodels "certhub/internal/activity/models"
	"certhub/internal/auth/models"
	id "certhub/pkg/domain"
	dErrors "certhub/pkg/domain-errors"
	"certhub/pkg/platform/sentinel"
	"certhub/pkg/requestcontext"
	"certhub/pkg/secrets"
)

type UserStore interface {
	Create(ctx context.Context, u *models.User) error
	FindByID(ctx context.Context, userID id.UserID) (*models.User, error)
	Update(ctx context.Context, u *models.User) error
	Delete(ctx context.Context, userID id.UserID) error
	List(ctx context.Context, f models.Filter) ([]*models.User, int, error)
}

// Tally reports counts keyed by a status or role name.
type Tally interface {
	Tally(ctx context.Context) (map[string]int, error)
}

type TicketCounter interface {
	CountOpen(ctx context.Context) (int, error)
}

type FailureCounter interface {
	CountFailuresSince(ctx context.Context, category activitymodels.Category, since time.Time) (int, error)
}

type ActivityLogger interface {
	Log(ctx context.Context, ev activitymodels.Event)
}

// StatsSources feeds the dashboard.
type StatsSources struct {
	Users        Tally
	Institutions Tally
	Certificates Tally
	Tickets      TicketCounter
	Failures     FailureCounter
}

type Service struct {
	users    UserStore
	stats    StatsSources
	activity ActivityLogger
	logger   *slog.Logger
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

func New(users UserStore, stats StatsSources, opts ...Option) *Service {
	s := &Service{
		users:  users,
		stats:  stats,
		logger: slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func requireAdmin(ctx context.Context) error {
	if requestcontext.Role(ctx) != id.RoleAdmin {
		return dErrors.New(dErrors.CodeForbidden, "admin access required")
	}
	return nil
}

// CreateUserCommand carries a new account. An empty Password generates a
// temporary one, returned once in CreatedUser.
type CreateUserCommand struct {
	Email    string
	Name     string
	Password string
	Role     id.Role
}

type CreatedUser struct {
	User              *models.User
	TemporaryPassword string
}

type Page struct {
	Items  []*models.User
	Total  int
	Limit  int
	Offset int
}

// UserUpdate holds the admin-editable fields. Nil fields are left unchanged.
type UserUpdate struct {
	Name   *string
	Role   *id.Role
	Active *bool
}

func (s *Service) CreateUser(ctx context.Context, cmd CreateUserCommand) (*CreatedUser, error) {
	if err := requireAdmin(ctx); err != nil {
		return nil, err
	}
	if cmd.Role == "" {
		cmd.Role = id.RoleUser
	}
	password, temporary := cmd.Password, ""
	if password == "" {
		generated, err := secrets.Generate()
		if err != nil {
			return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to generate password")
		}
		password, temporary = generated, generated
	} else if err := secrets.ValidatePassword(password); err != nil {
		return nil, err
	}
	hash, err := secrets.Hash(password)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to hash password")
	}
	u, err := models.NewUser(cmd.Email, cmd.Name, hash, cmd.Role, requestcontext.Now(ctx))
	if err != nil {
		return nil, dErrors.New(dErrors.CodeValidation, err.Error())
	}
	if err := s.users.Create(ctx, u); err != nil {
		if errors.Is(err, sentinel.ErrConflict) {
			return nil, dErrors.New(dErrors.CodeConflict, "email already registered")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to create user")
	}
	s.logActivity(ctx, activitymodels.ActionUserCreated, u, "User created",
		map[string]any{"email": u.Email, "role": u.Role.String()})
	s.logger.InfoContext(ctx, "user created",
		"user_id", u.ID.String(),
		"role", u.Role.String(),
		"request_id", requestcontext.RequestID(ctx),
	)
	return &CreatedUser{User: u, TemporaryPassword: temporary}, nil
}

func (s *Service) ListUsers(ctx context.Context, f models.Filter) (*Page, error) {
	if err := requireAdmin(ctx); err != nil {
		return nil, err
	}
	f.Normalize()
	items, total, err := s.users.List(ctx, f)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list users")
	}
	if items == nil {
		items = []*models.User{}
	}
	return &Page{Items: items, Total: total, Limit: f.Limit, Offset: f.Offset}, nil
}

func (s *Service) GetUser(ctx context.Context, userID id.UserID) (*models.User, error) {
	if err := requireAdmin(ctx); err != nil {
		return nil, err
	}
	return s.load(ctx, userID)
}

// UpdateUser edits name, role and active flag. Admins cannot demote or
// deactivate themselves.
func (s *Service) UpdateUser(ctx context.Context, userID id.UserID, upd UserUpdate) (*models.User, error) {
	if err := requireAdmin(ctx); err != nil {
		return nil, err
	}
	u, err := s.load(ctx, userID)
	if err != nil {
		return nil, err
	}
	self := requestcontext.UserID(ctx) == userID
	if upd.Name != nil {
		name := strings.TrimSpace(*upd.Name)
		if err := models.ValidateName(name); err != nil {
			return nil, err
		}
		u.Name = name
	}
	if upd.Role != nil {
		if !upd.Role.IsValid() {
			return nil, dErrors.New(dErrors.CodeValidation, "invalid role")
		}
		if self && *upd.Role != u.Role {
			return nil, dErrors.New(dErrors.CodeForbidden, "cannot change your own role")
		}
		u.Role = *upd.Role
	}
	if upd.Active != nil {
		if self && !*upd.Active {
			return nil, dErrors.New(dErrors.CodeForbidden, "cannot deactivate your own account")
		}
		u.Active = *upd.Active
	}
	u.UpdatedAt = requestcontext.Now(ctx)
	if err := s.users.Update(ctx, u); err != nil {
		return nil, translateWriteErr(err, "failed to update user")
	}
	s.logActivity(ctx, activitymodels.ActionUserUpdated, u, "User updated",
		map[string]any{"role": u.Role.String(), "active": u.Active})
	return u, nil
}

func (s *Service) DeleteUser(ctx context.Context, userID id.UserID) error {
	if err := requireAdmin(ctx); err != nil {
		return err
	}
	if requestcontext.UserID(ctx) == userID {
		return dErrors.New(dErrors.CodeForbidden, "cannot delete your own account")
	}
	u, err := s.load(ctx, userID)
	if err != nil {
		return err
	}
	if err := s.users.Delete(ctx, userID); err != nil {
		return translateWriteErr(err, "failed to delete user")
	}
	s.logActivity(ctx, activitymodels.ActionUserDeleted, u, "User deleted",
		map[string]any{"email": u.Email})
	return nil
}

func (s *Service) load(ctx context.Context, userID id.UserID) (*models.User, error) {
	u, err := s.users.FindByID(ctx, userID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "user not found")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load user")
	}
	return u, nil
}

func translateWriteErr(err error, msg string) error {
	switch {
	case errors.Is(err, sentinel.ErrNotFound):
		return dErrors.New(dErrors.CodeNotFound, "user not found")
	case errors.Is(err, sentinel.ErrConflict):
		return dErrors.New(dErrors.CodeConflict, "email already registered")
	}
	return dErrors.Wrap(err, dErrors.CodeInternal, msg)
}

func (s *Service) logActivity(ctx context.Context, action string, target *models.User, description string, meta map[string]any) {
	if s.activity == nil {
		return
	}
	actor := requestcontext.UserID(ctx)
	var actorRef *id.UserID
	if !actor.IsNil() {
		actorRef = &actor
	}
	if meta == nil {
		meta = map[string]any{}
	}
	meta["target_user_id"] = target.ID.String()
	s.activity.Log(ctx, activitymodels.Event{
		Action:      action,
		Category:    activitymodels.CategoryUser,
		Status:      activitymodels.StatusSuccess,
		UserID:      actorRef,
		Description: description,
		Metadata:    meta,
	})
}
