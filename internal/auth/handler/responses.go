package handler

import (
	"time"

	"certhub/internal/auth/models"
	"certhub/internal/auth/service"
)

type UserResponse struct {
	ID            string     `json:"id"`
	Email         string     `json:"email"`
	Name          string     `json:"name"`
	Role          string     `json:"role"`
	Active        bool       `json:"active"`
	InstitutionID *string    `json:"institution_id,omitempty"`
	LastLoginAt   *time.Time `json:"last_login_at,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
}

type LoginResponse struct {
	AccessToken  string       `json:"access_token"`
	TokenType    string       `json:"token_type"`
	ExpiresAt    time.Time    `json:"expires_at"`
	RedirectPath string       `json:"redirect_path"`
	User         UserResponse `json:"user"`
}

type MeResponse struct {
	UserResponse
	LandingPath string `json:"landing_path"`
}

// ToUserResponse renders a user without secrets.
func ToUserResponse(u *models.User) UserResponse {
	return UserResponse{
		ID:          u.ID.String(),
		Email:       u.Email,
		Name:        u.Name,
		Role:        u.Role.String(),
		Active:      u.Active,
		LastLoginAt: u.LastLoginAt,
		CreatedAt:   u.CreatedAt,
	}
}

func toLoginResponse(res *service.LoginResult) LoginResponse {
	user := ToUserResponse(res.User)
	if !res.InstitutionID.IsNil() {
		s := res.InstitutionID.String()
		user.InstitutionID = &s
	}
	return LoginResponse{
		AccessToken:  res.Token,
		TokenType:    "Bearer",
		ExpiresAt:    res.ExpiresAt,
		RedirectPath: res.RedirectPath,
		User:         user,
	}
}

func toMeResponse(p *service.Profile) MeResponse {
	user := ToUserResponse(p.User)
	if !p.InstitutionID.IsNil() {
		s := p.InstitutionID.String()
		user.InstitutionID = &s
	}
	return MeResponse{UserResponse: user, LandingPath: p.LandingPath}
}
