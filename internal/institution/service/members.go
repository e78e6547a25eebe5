package service

import (
	"context"
	"errors"

	activitymodels "certhub/internal/activity/models"
	"certhub/internal/institution/models"
	id "certhub/pkg/domain"
	dErrors "certhub/pkg/domain-errors"
	"certhub/pkg/platform/sentinel"
	"certhub/pkg/requestcontext"
)

// AddMember joins a user to an institution and grants the INSTITUTION role.
// Admin accounts keep their role. Admin only.
func (s *Service) AddMember(ctx context.Context, instID id.InstitutionID, userID id.UserID, role models.MemberRole) (*models.Member, error) {
	if err := requireAdmin(ctx); err != nil {
		return nil, err
	}
	if role == "" {
		role = models.MemberStaff
	}
	if !role.IsValid() {
		return nil, dErrors.New(dErrors.CodeValidation, "invalid member role")
	}

	var member *models.Member
	err := s.tx.RunInTx(ctx, func(ctx context.Context) error {
		if _, err := s.load(ctx, instID); err != nil {
			return err
		}
		u, err := s.users.FindByID(ctx, userID)
		if err != nil {
			if errors.Is(err, sentinel.ErrNotFound) {
				return dErrors.New(dErrors.CodeNotFound, "user not found")
			}
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to load user")
		}
		now := requestcontext.Now(ctx)
		m := &models.Member{
			InstitutionID: instID,
			UserID:        u.ID,
			Role:          role,
			CreatedAt:     now,
			Email:         u.Email,
			Name:          u.Name,
		}
		if err := s.store.AddMember(ctx, m); err != nil {
			if errors.Is(err, sentinel.ErrConflict) {
				return dErrors.New(dErrors.CodeConflict, "user already belongs to an institution")
			}
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to add member")
		}
		if u.Role == id.RoleUser {
			u.Role = id.RoleInstitution
			u.UpdatedAt = now
			if err := s.users.Update(ctx, u); err != nil {
				return dErrors.Wrap(err, dErrors.CodeInternal, "failed to update user role")
			}
		}
		member = m
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.metrics.IncMemberChange("add")
	s.logActivity(ctx, instID, activitymodels.ActionMemberAdded, "Member added",
		map[string]any{"member_id": userID.String(), "member_role": string(role)})
	return member, nil
}

// RemoveMember deletes a membership. INSTITUTION users fall back to USER. Admin only.
func (s *Service) RemoveMember(ctx context.Context, instID id.InstitutionID, userID id.UserID) error {
	if err := requireAdmin(ctx); err != nil {
		return err
	}
	err := s.tx.RunInTx(ctx, func(ctx context.Context) error {
		if err := s.store.RemoveMember(ctx, instID, userID); err != nil {
			if errors.Is(err, sentinel.ErrNotFound) {
				return dErrors.New(dErrors.CodeNotFound, "member not found")
			}
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to remove member")
		}
		u, err := s.users.FindByID(ctx, userID)
		if err != nil {
			if errors.Is(err, sentinel.ErrNotFound) {
				return nil
			}
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to load user")
		}
		if u.Role == id.RoleInstitution {
			u.Role = id.RoleUser
			u.UpdatedAt = requestcontext.Now(ctx)
			if err := s.users.Update(ctx, u); err != nil {
				return dErrors.Wrap(err, dErrors.CodeInternal, "failed to update user role")
			}
		}
		return nil
	})
	if err != nil {
		return err
	}
	s.metrics.IncMemberChange("remove")
	s.logActivity(ctx, instID, activitymodels.ActionMemberRemoved, "Member removed",
		map[string]any{"member_id": userID.String()})
	return nil
}

// ListMembers returns the members of an institution with their account details. Admin only.
func (s *Service) ListMembers(ctx context.Context, instID id.InstitutionID) ([]*models.Member, error) {
	if err := requireAdmin(ctx); err != nil {
		return nil, err
	}
	if _, err := s.load(ctx, instID); err != nil {
		return nil, err
	}
	members, err := s.store.ListMembers(ctx, instID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list members")
	}
	for _, m := range members {
		if m.Email != "" {
			continue
		}
		u, err := s.users.FindByID(ctx, m.UserID)
		if err != nil {
			s.logger.WarnContext(ctx, "member account missing",
				"user_id", m.UserID.String(),
				"error", err,
				"request_id", requestcontext.RequestID(ctx),
			)
			continue
		}
		m.Email = u.Email
		m.Name = u.Name
	}
	if members == nil {
		members = []*models.Member{}
	}
	return members, nil
}
