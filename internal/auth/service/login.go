package service

import (
	"context"
	"errors"
	"time"

	activitymodels "certhub/internal/activity/models"
	"certhub/internal/auth/models"
	id "certhub/pkg/domain"
	dErrors "certhub/pkg/domain-errors"
	"certhub/pkg/email"
	"certhub/pkg/platform/middleware/locale"
	"certhub/pkg/platform/sentinel"
	"certhub/pkg/requestcontext"
	"certhub/pkg/secrets"
)

// LoginResult is a successful sign-in.
type LoginResult struct {
	Token         string
	ExpiresAt     time.Time
	User          *models.User
	InstitutionID id.InstitutionID
	RedirectPath  string
}

// landingPaths maps each role to its dashboard route.
var landingPaths = map[id.Role]string{
	id.RoleAdmin:       "/dashboard/admin",
	id.RoleInstitution: "/dashboard/institution",
	id.RoleUser:        "/dashboard",
}

// LandingPath returns the localized dashboard for role.
func LandingPath(loc string, role id.Role) string {
	path, ok := landingPaths[role]
	if !ok {
		path = landingPaths[id.RoleUser]
	}
	return locale.LandingPath(loc, path)
}

var errInvalidCredentials = dErrors.New(dErrors.CodeUnauthorized, "invalid email or password")

// Login authenticates by email and password and issues an access token.
// Unknown email and wrong password are indistinguishable to the caller,
// in both the error and the bcrypt work done.
func (s *Service) Login(ctx context.Context, addr, password string) (*LoginResult, error) {
	normalized := email.Normalize(addr)
	if normalized == "" || password == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "email and password are required")
	}

	u, err := s.users.FindByEmail(ctx, normalized)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			s.decoy(password)
			s.loginFailed(ctx, nil, normalized, "unknown email")
			return nil, errInvalidCredentials
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load user")
	}
	if err := secrets.Verify(password, u.PasswordHash); err != nil {
		if dErrors.HasCode(err, dErrors.CodeUnauthorized) {
			s.loginFailed(ctx, &u.ID, normalized, "wrong password")
			return nil, errInvalidCredentials
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to verify password")
	}
	if !u.CanSignIn() {
		s.loginFailed(ctx, &u.ID, normalized, "account disabled")
		return nil, dErrors.New(dErrors.CodeForbidden, "account is disabled")
	}

	instID, err := s.institutionOf(ctx, u.ID)
	if err != nil {
		return nil, err
	}
	issued, err := s.tokens.GenerateAccessToken(u.ID, u.Role, instID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to issue token")
	}

	u.RecordLogin(requestcontext.Now(ctx))
	if err := s.users.Update(ctx, u); err != nil {
		s.logger.WarnContext(ctx, "failed to record last login",
			"user_id", u.ID.String(),
			"error", err,
			"request_id", requestcontext.RequestID(ctx),
		)
	}

	var instRef *id.InstitutionID
	if !instID.IsNil() {
		instRef = &instID
	}
	s.logActivity(ctx, activitymodels.Event{
		Action:        activitymodels.ActionLogin,
		Category:      activitymodels.CategoryAuth,
		Status:        activitymodels.StatusSuccess,
		UserID:        &u.ID,
		InstitutionID: instRef,
		Description:   "User signed in",
		Metadata:      map[string]any{"email": u.Email, "role": u.Role.String()},
	})
	s.logger.InfoContext(ctx, "user signed in",
		"user_id", u.ID.String(),
		"role", u.Role.String(),
		"request_id", requestcontext.RequestID(ctx),
	)

	return &LoginResult{
		Token:         issued.Token,
		ExpiresAt:     issued.ExpiresAt,
		User:          u,
		InstitutionID: instID,
		RedirectPath:  LandingPath(requestcontext.Locale(ctx), u.Role),
	}, nil
}

func (s *Service) loginFailed(ctx context.Context, userID *id.UserID, addr, reason string) {
	s.logActivity(ctx, activitymodels.Event{
		Action:      activitymodels.ActionLoginFailed,
		Category:    activitymodels.CategoryAuth,
		Status:      activitymodels.StatusFailure,
		UserID:      userID,
		Description: "Sign-in rejected",
		Metadata:    map[string]any{"email": addr, "reason": reason},
	})
	s.logger.WarnContext(ctx, "sign-in rejected",
		"reason", reason,
		"request_id", requestcontext.RequestID(ctx),
	)
}

// Logout revokes the presented token for the rest of its lifetime.
func (s *Service) Logout(ctx context.Context) error {
	userID := requestcontext.UserID(ctx)
	jti := requestcontext.TokenID(ctx)
	if userID.IsNil() || jti == "" {
		return dErrors.New(dErrors.CodeUnauthorized, "authentication required")
	}
	if err := s.revocations.RevokeToken(ctx, jti, s.tokens.TTL()); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to revoke token")
	}
	s.logActivity(ctx, activitymodels.Event{
		Action:      activitymodels.ActionLogout,
		Category:    activitymodels.CategoryAuth,
		Status:      activitymodels.StatusSuccess,
		UserID:      &userID,
		Description: "User signed out",
	})
	return nil
}
