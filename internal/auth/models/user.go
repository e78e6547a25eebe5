package models

import (
	"strings"
	"time"
	"unicode/utf8"

	id "certhub/pkg/domain"
	dErrors "certhub/pkg/domain-errors"
	"certhub/pkg/email"
)

const (
	MaxNameLength   = 120
	DefaultPageSize = 20
	MaxPageSize     = 200
)

// User is an account that can sign in.
type User struct {
	ID           id.UserID
	Email        string
	Name         string
	PasswordHash string
	Role         id.Role
	Active       bool
	LastLoginAt  *time.Time
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// NewUser validates and builds an active user. addr is normalized.
func NewUser(addr, name, passwordHash string, role id.Role, now time.Time) (*User, error) {
	normalized, err := email.Parse(addr)
	if err != nil {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "invalid email address")
	}
	if !role.IsValid() {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "invalid role")
	}
	if passwordHash == "" {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "password hash required")
	}
	name = strings.TrimSpace(name)
	if name == "" {
		name = email.DeriveName(normalized)
	}
	if err := ValidateName(name); err != nil {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, err.Error())
	}
	return &User{
		ID:           id.NewUserID(),
		Email:        normalized,
		Name:         name,
		PasswordHash: passwordHash,
		Role:         role,
		Active:       true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}, nil
}

// ValidateName checks a display name.
func ValidateName(name string) error {
	if strings.TrimSpace(name) == "" {
		return dErrors.New(dErrors.CodeValidation, "name is required")
	}
	if utf8.RuneCountInString(name) > MaxNameLength {
		return dErrors.New(dErrors.CodeValidation, "name is too long")
	}
	return nil
}

func (u *User) IsAdmin() bool {
	return u.Role == id.RoleAdmin
}

// CanSignIn reports whether the account may authenticate.
func (u *User) CanSignIn() bool {
	return u.Active
}

// RecordLogin stamps the last successful login.
func (u *User) RecordLogin(now time.Time) {
	u.LastLoginAt = &now
	u.UpdatedAt = now
}

// Filter narrows an admin user listing.
type Filter struct {
	Role   id.Role
	Search string
	Active *bool
	Limit  int
	Offset int
}

// Normalize clamps paging and tidies the search term.
func (f *Filter) Normalize() {
	f.Search = strings.TrimSpace(f.Search)
	if f.Limit <= 0 {
		f.Limit = DefaultPageSize
	}
	if f.Limit > MaxPageSize {
		f.Limit = MaxPageSize
	}
	if f.Offset < 0 {
		f.Offset = 0
	}
}
