package handler

import (
	"strings"

	"certhub/internal/institution/models"
	id "certhub/pkg/domain"
	dErrors "certhub/pkg/domain-errors"
)

type ProfileFields struct {
	Email       string `json:"email"`
	Website     string `json:"website"`
	Address     string `json:"address"`
	Description string `json:"description"`
	LogoURL     string `json:"logo_url"`
}

func (p ProfileFields) toModel() models.Profile {
	return models.Profile{
		Email:       p.Email,
		Website:     p.Website,
		Address:     p.Address,
		Description: p.Description,
		LogoURL:     p.LogoURL,
	}
}

// CreateInstitutionRequest is the body of POST /institutions.
type CreateInstitutionRequest struct {
	Name   string `json:"name"`
	Type   string `json:"type"`
	Status string `json:"status,omitempty"`
	ProfileFields

	parsedType   models.Type
	parsedStatus models.Status
}

func (r *CreateInstitutionRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request body is required")
	}
	r.Name = strings.TrimSpace(r.Name)
	if r.Name == "" {
		return dErrors.New(dErrors.CodeValidation, "name is required")
	}
	typ, err := models.ParseType(r.Type)
	if err != nil {
		return err
	}
	r.parsedType = typ
	if r.Status != "" {
		st, err := models.ParseStatus(r.Status)
		if err != nil {
			return err
		}
		r.parsedStatus = st
	}
	return nil
}

// UpdateInstitutionRequest is the body of PUT /institutions/{id}.
// Omitted fields keep their value; a present profile replaces the whole profile.
type UpdateInstitutionRequest struct {
	Name    *string        `json:"name,omitempty"`
	Type    *string        `json:"type,omitempty"`
	Profile *ProfileFields `json:"profile,omitempty"`

	parsedType *models.Type
}

func (r *UpdateInstitutionRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request body is required")
	}
	if r.Name == nil && r.Type == nil && r.Profile == nil {
		return dErrors.New(dErrors.CodeValidation, "nothing to update")
	}
	if r.Type != nil {
		typ, err := models.ParseType(*r.Type)
		if err != nil {
			return err
		}
		r.parsedType = &typ
	}
	return nil
}

// ChangeStatusRequest is the body of PUT /institutions/{id}/status.
type ChangeStatusRequest struct {
	Status string `json:"status"`

	parsed models.Status
}

func (r *ChangeStatusRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request body is required")
	}
	st, err := models.ParseStatus(r.Status)
	if err != nil {
		return err
	}
	r.parsed = st
	return nil
}

// AddMemberRequest is the body of POST /institutions/{id}/members.
type AddMemberRequest struct {
	UserID string `json:"user_id"`
	Role   string `json:"role,omitempty"`

	parsedUserID id.UserID
	parsedRole   models.MemberRole
}

func (r *AddMemberRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request body is required")
	}
	userID, err := id.ParseUserID(strings.TrimSpace(r.UserID))
	if err != nil {
		return err
	}
	role, err := models.ParseMemberRole(r.Role)
	if err != nil {
		return err
	}
	r.parsedUserID = userID
	r.parsedRole = role
	return nil
}
