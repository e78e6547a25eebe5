package models

import (
	"net/url"
	"strings"
	"time"
	"unicode/utf8"

	id "certhub/pkg/domain"
	dErrors "certhub/pkg/domain-errors"
	"certhub/pkg/email"
)

const (
	MaxNameLength        = 200
	MaxDescriptionLength = 4000
	DefaultPageSize      = 20
	MaxPageSize          = 200
)

// Type classifies an issuing organization.
type Type string

const (
	TypeUniversity     Type = "UNIVERSITY"
	TypeSchool         Type = "SCHOOL"
	TypeTrainingCenter Type = "TRAINING_CENTER"
	TypeGovernment     Type = "GOVERNMENT"
	TypeCompany        Type = "COMPANY"
	TypeOther          Type = "OTHER"
)

func (t Type) IsValid() bool {
	switch t {
	case TypeUniversity, TypeSchool, TypeTrainingCenter, TypeGovernment, TypeCompany, TypeOther:
		return true
	}
	return false
}

func ParseType(s string) (Type, error) {
	t := Type(strings.ToUpper(strings.TrimSpace(s)))
	if !t.IsValid() {
		return "", dErrors.New(dErrors.CodeInvalidInput, "invalid institution type")
	}
	return t, nil
}

// Status gates certificate issuance. Only ACTIVE institutions issue.
type Status string

const (
	StatusPending   Status = "PENDING"
	StatusActive    Status = "ACTIVE"
	StatusSuspended Status = "SUSPENDED"
)

func (s Status) IsValid() bool {
	switch s {
	case StatusPending, StatusActive, StatusSuspended:
		return true
	}
	return false
}

// CanTransitionTo allows any move except back to PENDING.
func (s Status) CanTransitionTo(next Status) bool {
	return next.IsValid() && next != s && next != StatusPending
}

func ParseStatus(s string) (Status, error) {
	st := Status(strings.ToUpper(strings.TrimSpace(s)))
	if !st.IsValid() {
		return "", dErrors.New(dErrors.CodeInvalidInput, "invalid institution status")
	}
	return st, nil
}

// Institution is an organization that issues certificates.
//
// Invariants:
//   - Name is non-empty, at most 200 characters and unique
//   - Type and Status hold known values
//   - Email, when set, is a valid address; Website and LogoURL are absolute http(s) URLs
type Institution struct {
	ID          id.InstitutionID
	Name        string
	Type        Type
	Status      Status
	Email       string
	Website     string
	Address     string
	Description string
	LogoURL     string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

func (i *Institution) IsActive() bool {
	return i.Status == StatusActive
}

// Profile is the mutable descriptive part of an institution.
type Profile struct {
	Email       string
	Website     string
	Address     string
	Description string
	LogoURL     string
}

func NewInstitution(name string, typ Type, status Status, p Profile, now time.Time) (*Institution, error) {
	inst := &Institution{
		ID:        id.NewInstitutionID(),
		Type:      typ,
		Status:    status,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := inst.Rename(name, now); err != nil {
		return nil, err
	}
	if !typ.IsValid() {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "invalid institution type")
	}
	if !status.IsValid() {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "invalid institution status")
	}
	if err := inst.ApplyProfile(p, now); err != nil {
		return nil, err
	}
	return inst, nil
}

// Rename validates and applies a new name.
func (i *Institution) Rename(name string, now time.Time) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return dErrors.New(dErrors.CodeInvariantViolation, "institution name cannot be empty")
	}
	if utf8.RuneCountInString(name) > MaxNameLength {
		return dErrors.New(dErrors.CodeInvariantViolation, "institution name must be 200 characters or less")
	}
	i.Name = name
	i.UpdatedAt = now
	return nil
}

// ApplyProfile validates and replaces the descriptive fields.
func (i *Institution) ApplyProfile(p Profile, now time.Time) error {
	p.Email = strings.TrimSpace(p.Email)
	if p.Email != "" {
		normalized, err := email.Parse(p.Email)
		if err != nil {
			return dErrors.New(dErrors.CodeInvariantViolation, "invalid institution email")
		}
		p.Email = normalized
	}
	for _, u := range []*string{&p.Website, &p.LogoURL} {
		*u = strings.TrimSpace(*u)
		if *u != "" && !validURL(*u) {
			return dErrors.New(dErrors.CodeInvariantViolation, "website and logo must be absolute http(s) URLs")
		}
	}
	if utf8.RuneCountInString(p.Description) > MaxDescriptionLength {
		return dErrors.New(dErrors.CodeInvariantViolation, "description is too long")
	}
	i.Email = p.Email
	i.Website = p.Website
	i.Address = strings.TrimSpace(p.Address)
	i.Description = strings.TrimSpace(p.Description)
	i.LogoURL = p.LogoURL
	i.UpdatedAt = now
	return nil
}

// ChangeStatus applies a status transition.
func (i *Institution) ChangeStatus(next Status, now time.Time) error {
	if !i.Status.CanTransitionTo(next) {
		return dErrors.New(dErrors.CodeInvariantViolation, "cannot change status from "+string(i.Status)+" to "+string(next))
	}
	i.Status = next
	i.UpdatedAt = now
	return nil
}

func validURL(raw string) bool {
	u, err := url.Parse(raw)
	return err == nil && (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}

// Details is an institution with its usage counts.
type Details struct {
	Institution      *Institution
	UserCount        int
	CertificateCount int
}

// Filter narrows an institution listing.
type Filter struct {
	Status Status
	Type   Type
	Search string
	// OnlyID restricts the listing to one institution (non-admin callers).
	OnlyID *id.InstitutionID
	Limit  int
	Offset int
}

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
