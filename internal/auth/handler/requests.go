package handler

import (
	"strings"

	dErrors "certhub/pkg/domain-errors"
	"certhub/pkg/platform/middleware/locale"
)

// LoginRequest is the body of POST /auth/login.
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Locale   string `json:"locale,omitempty"`
}

func (r *LoginRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request body is required")
	}
	r.Email = strings.TrimSpace(r.Email)
	if r.Email == "" || r.Password == "" {
		return dErrors.New(dErrors.CodeValidation, "email and password are required")
	}
	if len(r.Email) > 254 || len(r.Password) > 256 {
		return dErrors.New(dErrors.CodeValidation, "credentials too long")
	}
	r.Locale = strings.ToLower(strings.TrimSpace(r.Locale))
	if r.Locale != "" && !locale.IsSupported(r.Locale) {
		return dErrors.New(dErrors.CodeValidation, "unsupported locale")
	}
	return nil
}

// UpdateProfileRequest is the body of PUT /user/profile.
type UpdateProfileRequest struct {
	Name string `json:"name"`
}

func (r *UpdateProfileRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request body is required")
	}
	r.Name = strings.TrimSpace(r.Name)
	if r.Name == "" {
		return dErrors.New(dErrors.CodeValidation, "name is required")
	}
	return nil
}

// ChangePasswordRequest is the body of PUT /user/password.
type ChangePasswordRequest struct {
	CurrentPassword string `json:"current_password"`
	NewPassword     string `json:"new_password"`
}

func (r *ChangePasswordRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request body is required")
	}
	if r.CurrentPassword == "" || r.NewPassword == "" {
		return dErrors.New(dErrors.CodeValidation, "current_password and new_password are required")
	}
	if r.CurrentPassword == r.NewPassword {
		return dErrors.New(dErrors.CodeValidation, "new password must differ from the current one")
	}
	return nil
}
