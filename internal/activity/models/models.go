package models

import (
	"strings"
	"time"
	"unicode/utf8"

	id "certhub/pkg/domain"
	dErrors "certhub/pkg/domain-errors"
)

// Category groups activity by the area of the system it concerns.
type Category string

const (
	CategoryAuth         Category = "AUTH"
	CategoryUser         Category = "USER"
	CategoryInstitution  Category = "INSTITUTION"
	CategoryCertificate  Category = "CERTIFICATE"
	CategoryVerification Category = "VERIFICATION"
	CategoryBlockchain   Category = "BLOCKCHAIN"
	CategorySupport      Category = "SUPPORT"
	CategorySystem       Category = "SYSTEM"
)

func (c Category) IsValid() bool {
	switch c {
	case CategoryAuth, CategoryUser, CategoryInstitution, CategoryCertificate,
		CategoryVerification, CategoryBlockchain, CategorySupport, CategorySystem:
		return true
	}
	return false
}

// Status is the outcome of the recorded action.
type Status string

const (
	StatusSuccess Status = "SUCCESS"
	StatusFailure Status = "FAILURE"
	StatusWarning Status = "WARNING"
)

func (s Status) IsValid() bool {
	switch s {
	case StatusSuccess, StatusFailure, StatusWarning:
		return true
	}
	return false
}

// ParseCategory accepts category names case-insensitively.
func ParseCategory(s string) (Category, error) {
	c := Category(strings.ToUpper(strings.TrimSpace(s)))
	if !c.IsValid() {
		return "", dErrors.New(dErrors.CodeInvalidInput, "invalid category")
	}
	return c, nil
}

// ParseStatus accepts status names case-insensitively.
func ParseStatus(s string) (Status, error) {
	st := Status(strings.ToUpper(strings.TrimSpace(s)))
	if !st.IsValid() {
		return "", dErrors.New(dErrors.CodeInvalidInput, "invalid status")
	}
	return st, nil
}

// Event is what callers hand to the activity logger.
type Event struct {
	Action        string
	Category      Category
	Status        Status
	UserID        *id.UserID
	InstitutionID *id.InstitutionID
	CertificateID *id.CertificateID
	Description   string
	Metadata      map[string]any
}

// Record is a stored activity log row. Records are append-only.
type Record struct {
	ID            id.ActivityLogID
	Action        string
	Category      Category
	Status        Status
	UserID        *id.UserID
	InstitutionID *id.InstitutionID
	CertificateID *id.CertificateID
	Description   string
	Metadata      map[string]any
	IPAddress     string
	UserAgent     string
	CreatedAt     time.Time
}

const (
	maxDescriptionLen = 2000
	maxUserAgentLen   = 512
	maxIPAddressLen   = 64
	maxMetadataText   = 1000
)

// CleanText makes s storable in a TEXT column: invalid UTF-8 and NUL bytes
// are replaced and the result is capped at max runes.
func CleanText(s string, max int) string {
	s = strings.ToValidUTF8(s, "\uFFFD")
	s = strings.ReplaceAll(s, "\x00", "\uFFFD")
	if utf8.RuneCountInString(s) <= max {
		return s
	}
	runes := []rune(s)
	return string(runes[:max])
}

func cleanValue(v any) any {
	switch t := v.(type) {
	case string:
		return CleanText(t, maxMetadataText)
	case []string:
		out := make([]string, len(t))
		for i, s := range t {
			out[i] = CleanText(s, maxMetadataText)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = cleanValue(e)
		}
		return out
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, e := range t {
			out[CleanText(k, maxMetadataText)] = cleanValue(e)
		}
		return out
	}
	return v
}

// NewRecord builds a record from an event plus request metadata.
func NewRecord(ev Event, ipAddress, userAgent string, now time.Time) (*Record, error) {
	action := strings.TrimSpace(ev.Action)
	if action == "" {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "action is required")
	}
	if !ev.Category.IsValid() {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "invalid category")
	}
	if !ev.Status.IsValid() {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "invalid status")
	}
	meta, _ := cleanValue(ev.Metadata).(map[string]any)
	if meta == nil {
		meta = map[string]any{}
	}
	return &Record{
		ID:            id.NewActivityLogID(),
		Action:        CleanText(action, maxMetadataText),
		Category:      ev.Category,
		Status:        ev.Status,
		UserID:        ev.UserID,
		InstitutionID: ev.InstitutionID,
		CertificateID: ev.CertificateID,
		Description:   CleanText(ev.Description, maxDescriptionLen),
		Metadata:      meta,
		IPAddress:     CleanText(ipAddress, maxIPAddressLen),
		UserAgent:     CleanText(userAgent, maxUserAgentLen),
		CreatedAt:     now,
	}, nil
}

// ShouldAlert is the fixed admin-alert rule: failed verifications and
// failed blockchain checks.
func (r *Record) ShouldAlert() bool {
	if r.Status != StatusFailure {
		return false
	}
	return r.Category == CategoryVerification || r.Category == CategoryBlockchain
}

// Filter narrows admin listings. Zero values mean "any".
type Filter struct {
	Category      Category
	Status        Status
	Action        string
	UserID        *id.UserID
	InstitutionID *id.InstitutionID
	From          *time.Time
	To            *time.Time
	Limit         int
	Offset        int
}

const (
	DefaultPageSize = 50
	MaxPageSize     = 500
	// MaxExportRows caps a single XLSX export.
	MaxExportRows = 50000
)

// Normalize clamps pagination.
func (f *Filter) Normalize() {
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
