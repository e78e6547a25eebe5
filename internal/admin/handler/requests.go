package handler

import (
	"strings"

	"certhub/internal/admin/service"
	id "certhub/pkg/domain"
	dErrors "certhub/pkg/domain-errors"
)

type CreateUserRequest struct {
	Email    string `json:"email"`
	Name     string `json:"name,omitempty"`
	Password string `json:"password,omitempty"`
	Role     string `json:"role,omitempty"`

	parsedRole id.Role
}

func (r *CreateUserRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request body is required")
	}
	if strings.TrimSpace(r.Email) == "" {
		return dErrors.New(dErrors.CodeValidation, "email is required")
	}
	if r.Role != "" {
		role, err := id.ParseRole(r.Role)
		if err != nil {
			return err
		}
		r.parsedRole = role
	}
	return nil
}

type UpdateUserRequest struct {
	Name   *string `json:"name,omitempty"`
	Role   *string `json:"role,omitempty"`
	Active *bool   `json:"active,omitempty"`

	parsed service.UserUpdate
}

func (r *UpdateUserRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request body is required")
	}
	r.parsed = service.UserUpdate{Name: r.Name, Active: r.Active}
	if r.Role != nil {
		role, err := id.ParseRole(*r.Role)
		if err != nil {
			return err
		}
		r.parsed.Role = &role
	}
	return nil
}
