// Package service implements credential sign-in, sign-out and self-service
// account operations.
package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	activitymodels "certhub/internal/activity/models"
	"certhub/internal/auth/models"
	jwttoken "certhub/internal/jwt_token"
	id "certhub/pkg/domain"
	dErrors "certhub/pkg/domain-errors"
	"certhub/pkg/platform/sentinel"
	"certhub/pkg/requestcontext"
	"certhub/pkg/secrets"
)

type UserStore interface {
	FindByID(ctx context.Context, userID id.UserID) (*models.User, error)
	FindByEmail(ctx context.Context, email string) (*models.User, error)
	Update(ctx context.Context, u *models.User) error
}

// Memberships resolves the institution a user belongs to.
// Returns sentinel.ErrNotFound for users without one.
type Memberships interface {
	InstitutionOf(ctx context.Context, userID id.UserID) (id.InstitutionID, error)
}

type TokenIssuer interface {
	GenerateAccessToken(userID id.UserID, role id.Role, institutionID id.InstitutionID) (*jwttoken.IssuedToken, error)
	TTL() time.Duration
}

type RevocationList interface {
	RevokeToken(ctx context.Context, jti string, ttl time.Duration) error
}

type ActivityLogger interface {
	Log(ctx context.Context, ev activitymodels.Event)
}

type Service struct {
	users       UserStore
	memberships Memberships
	tokens      TokenIssuer
	revocations RevocationList
	activity    ActivityLogger
	logger      *slog.Logger
	// decoy burns password-check time for unknown accounts.
	decoy func(password string)
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

func New(users UserStore, memberships Memberships, tokens TokenIssuer, revocations RevocationList, opts ...Option) *Service {
	s := &Service{
		users:       users,
		memberships: memberships,
		tokens:      tokens,
		revocations: revocations,
		logger:      slog.New(slog.DiscardHandler),
		decoy:       secrets.VerifyDecoy,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Service) logActivity(ctx context.Context, ev activitymodels.Event) {
	if s.activity == nil {
		return
	}
	s.activity.Log(ctx, ev)
}

// currentUser loads the authenticated principal's record.
func (s *Service) currentUser(ctx context.Context) (*models.User, error) {
	userID := requestcontext.UserID(ctx)
	if userID.IsNil() {
		return nil, dErrors.New(dErrors.CodeUnauthorized, "authentication required")
	}
	u, err := s.users.FindByID(ctx, userID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeUnauthorized, "account no longer exists")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load user")
	}
	return u, nil
}

func (s *Service) institutionOf(ctx context.Context, userID id.UserID) (id.InstitutionID, error) {
	if s.memberships == nil {
		return id.InstitutionID{}, nil
	}
	instID, err := s.memberships.InstitutionOf(ctx, userID)
	if errors.Is(err, sentinel.ErrNotFound) {
		return id.InstitutionID{}, nil
	}
	if err != nil {
		return id.InstitutionID{}, dErrors.Wrap(err, dErrors.CodeInternal, "failed to resolve institution")
	}
	return instID, nil
}
