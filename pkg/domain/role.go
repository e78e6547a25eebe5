package domain

import (
	"strings"

	dErrors "certhub/pkg/domain-errors"
)

// Role is the account-level role that gates every route.
type Role string

const (
	RoleAdmin       Role = "ADMIN"
	RoleInstitution Role = "INSTITUTION"
	RoleUser        Role = "USER"
)

func (r Role) IsValid() bool {
	switch r {
	case RoleAdmin, RoleInstitution, RoleUser:
		return true
	}
	return false
}

func (r Role) String() string { return string(r) }

// ParseRole accepts role names case-insensitively.
func ParseRole(s string) (Role, error) {
	r := Role(strings.ToUpper(strings.TrimSpace(s)))
	if !r.IsValid() {
		return "", dErrors.New(dErrors.CodeInvalidInput, "invalid role")
	}
	return r, nil
}
