package models

import (
	"strings"
	"time"

	id "certhub/pkg/domain"
	dErrors "certhub/pkg/domain-errors"
)

// MemberRole is a user's role inside their institution.
type MemberRole string

const (
	MemberOwner   MemberRole = "OWNER"
	MemberManager MemberRole = "MANAGER"
	MemberStaff   MemberRole = "STAFF"
)

func (r MemberRole) IsValid() bool {
	switch r {
	case MemberOwner, MemberManager, MemberStaff:
		return true
	}
	return false
}

// ParseMemberRole defaults an empty value to STAFF.
func ParseMemberRole(s string) (MemberRole, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return MemberStaff, nil
	}
	r := MemberRole(strings.ToUpper(s))
	if !r.IsValid() {
		return "", dErrors.New(dErrors.CodeInvalidInput, "invalid member role")
	}
	return r, nil
}

// Member joins a user to an institution. A user has at most one membership.
type Member struct {
	InstitutionID id.InstitutionID
	UserID        id.UserID
	Role          MemberRole
	CreatedAt     time.Time
	// Email and Name are filled on listing.
	Email string
	Name  string
}
