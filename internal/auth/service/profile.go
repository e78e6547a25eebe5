package service

import (
	"context"
	"strings"

	activitymodels "certhub/internal/activity/models"
	"certhub/internal/auth/models"
	id "certhub/pkg/domain"
	dErrors "certhub/pkg/domain-errors"
	"certhub/pkg/requestcontext"
	"certhub/pkg/secrets"
)

// Profile is the signed-in user's view of their account.
type Profile struct {
	User          *models.User
	InstitutionID id.InstitutionID
	LandingPath   string
}

func (s *Service) Me(ctx context.Context) (*Profile, error) {
	u, err := s.currentUser(ctx)
	if err != nil {
		return nil, err
	}
	instID, err := s.institutionOf(ctx, u.ID)
	if err != nil {
		return nil, err
	}
	return &Profile{
		User:          u,
		InstitutionID: instID,
		LandingPath:   LandingPath(requestcontext.Locale(ctx), u.Role),
	}, nil
}

// UpdateProfile changes the display name.
func (s *Service) UpdateProfile(ctx context.Context, name string) (*models.User, error) {
	name = strings.TrimSpace(name)
	if err := models.ValidateName(name); err != nil {
		return nil, err
	}
	u, err := s.currentUser(ctx)
	if err != nil {
		return nil, err
	}
	u.Name = name
	u.UpdatedAt = requestcontext.Now(ctx)
	if err := s.users.Update(ctx, u); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to update profile")
	}
	s.logActivity(ctx, activitymodels.Event{
		Action:      activitymodels.ActionProfileUpdate,
		Category:    activitymodels.CategoryUser,
		Status:      activitymodels.StatusSuccess,
		UserID:      &u.ID,
		Description: "Profile updated",
	})
	return u, nil
}

// ChangePassword replaces the password after checking the current one.
func (s *Service) ChangePassword(ctx context.Context, current, next string) error {
	if current == "" {
		return dErrors.New(dErrors.CodeValidation, "current password is required")
	}
	if err := secrets.ValidatePassword(next); err != nil {
		return err
	}
	u, err := s.currentUser(ctx)
	if err != nil {
		return err
	}
	if err := secrets.Verify(current, u.PasswordHash); err != nil {
		if dErrors.HasCode(err, dErrors.CodeUnauthorized) {
			s.logActivity(ctx, activitymodels.Event{
				Action:      activitymodels.ActionPasswordChange,
				Category:    activitymodels.CategoryAuth,
				Status:      activitymodels.StatusFailure,
				UserID:      &u.ID,
				Description: "Password change rejected: wrong current password",
			})
			return dErrors.New(dErrors.CodeValidation, "current password is incorrect")
		}
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to verify password")
	}
	hash, err := secrets.Hash(next)
	if err != nil {
		return err
	}
	u.PasswordHash = hash
	u.UpdatedAt = requestcontext.Now(ctx)
	if err := s.users.Update(ctx, u); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to update password")
	}
	s.logActivity(ctx, activitymodels.Event{
		Action:      activitymodels.ActionPasswordChange,
		Category:    activitymodels.CategoryAuth,
		Status:      activitymodels.StatusSuccess,
		UserID:      &u.ID,
		Description: "Password changed",
	})
	return nil
}
