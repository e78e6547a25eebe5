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
	MaxTitleLength       = 200
	MaxNameLength        = 200
	MaxDescriptionLength = 4000
	MaxReasonLength      = 1000
	DefaultPageSize      = 20
	MaxPageSize          = 200
)

// Status is the lifecycle state of a certificate.
type Status string

const (
	StatusActive  Status = "ACTIVE"
	StatusRevoked Status = "REVOKED"
	StatusExpired Status = "EXPIRED"
)

func (s Status) IsValid() bool {
	switch s {
	case StatusActive, StatusRevoked, StatusExpired:
		return true
	}
	return false
}

func ParseStatus(s string) (Status, error) {
	st := Status(strings.ToUpper(strings.TrimSpace(s)))
	if !st.IsValid() {
		return "", dErrors.New(dErrors.CodeInvalidInput, "invalid certificate status")
	}
	return st, nil
}

// AnchorStatus tracks the blockchain anchoring of the certificate file hash.
type AnchorStatus string

const (
	AnchorNone      AnchorStatus = "NONE"
	AnchorPending   AnchorStatus = "PENDING"
	AnchorConfirmed AnchorStatus = "CONFIRMED"
	AnchorFailed    AnchorStatus = "FAILED"
)

// Certificate is an issued credential.
//
// Invariants:
//   - VerificationID is non-empty and unique
//   - Title and RecipientName are non-empty
//   - RecipientEmail is a valid, lower-cased address
//   - ExpiryDate, when set, is after IssueDate
//   - RevokedAt is set exactly when Status is REVOKED
type Certificate struct {
	ID               id.CertificateID
	VerificationID   string
	Title            string
	Description      string
	RecipientName    string
	RecipientEmail   string
	RecipientUserID  *id.UserID
	InstitutionID    id.InstitutionID
	IssuerID         *id.UserID
	IssueDate        time.Time
	ExpiryDate       *time.Time
	Status           Status
	RevocationReason string
	RevokedAt        *time.Time
	FileURL          string
	FileHash         string
	AnchorStatus     AnchorStatus
	AnchorNetwork    string
	AnchorTxHash     string
	AnchoredAt       *time.Time
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// IssueParams are the caller-supplied fields of a new certificate.
type IssueParams struct {
	Title           string
	Description     string
	RecipientName   string
	RecipientEmail  string
	RecipientUserID *id.UserID
	InstitutionID   id.InstitutionID
	IssuerID        *id.UserID
	IssueDate       time.Time
	ExpiryDate      *time.Time
}

// NewCertificate validates p and builds an ACTIVE certificate. A zero
// IssueDate defaults to now.
func NewCertificate(p IssueParams, verificationID string, now time.Time) (*Certificate, error) {
	if strings.TrimSpace(verificationID) == "" {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "verification id is required")
	}
	if p.InstitutionID.IsNil() {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "institution is required")
	}
	if p.IssueDate.IsZero() {
		p.IssueDate = now
	}
	c := &Certificate{
		ID:              id.NewCertificateID(),
		VerificationID:  verificationID,
		RecipientUserID: p.RecipientUserID,
		InstitutionID:   p.InstitutionID,
		IssuerID:        p.IssuerID,
		IssueDate:       p.IssueDate,
		Status:          StatusActive,
		AnchorStatus:    AnchorNone,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if err := c.ApplyUpdate(Update{
		Title:          &p.Title,
		Description:    &p.Description,
		RecipientName:  &p.RecipientName,
		RecipientEmail: &p.RecipientEmail,
		ExpiryDate:     p.ExpiryDate,
	}, now); err != nil {
		return nil, err
	}
	return c, nil
}

// Update holds the mutable fields. Nil fields are left unchanged.
type Update struct {
	Title          *string
	Description    *string
	RecipientName  *string
	RecipientEmail *string
	ExpiryDate     *time.Time
	ClearExpiry    bool
}

// ApplyUpdate validates and applies u. Revoked certificates are frozen.
func (c *Certificate) ApplyUpdate(u Update, now time.Time) error {
	if c.Status == StatusRevoked {
		return dErrors.New(dErrors.CodeInvariantViolation, "revoked certificates cannot be changed")
	}
	next := *c
	if u.Title != nil {
		t := strings.TrimSpace(*u.Title)
		if t == "" {
			return dErrors.New(dErrors.CodeInvariantViolation, "title is required")
		}
		if utf8.RuneCountInString(t) > MaxTitleLength {
			return dErrors.New(dErrors.CodeInvariantViolation, "title must be 200 characters or less")
		}
		next.Title = t
	}
	if u.Description != nil {
		d := strings.TrimSpace(*u.Description)
		if utf8.RuneCountInString(d) > MaxDescriptionLength {
			return dErrors.New(dErrors.CodeInvariantViolation, "description is too long")
		}
		next.Description = d
	}
	if u.RecipientName != nil {
		n := strings.TrimSpace(*u.RecipientName)
		if n == "" {
			return dErrors.New(dErrors.CodeInvariantViolation, "recipient name is required")
		}
		if utf8.RuneCountInString(n) > MaxNameLength {
			return dErrors.New(dErrors.CodeInvariantViolation, "recipient name must be 200 characters or less")
		}
		next.RecipientName = n
	}
	if u.RecipientEmail != nil {
		addr, err := email.Parse(*u.RecipientEmail)
		if err != nil {
			return dErrors.New(dErrors.CodeInvariantViolation, "invalid recipient email")
		}
		next.RecipientEmail = addr
	}
	switch {
	case u.ClearExpiry:
		next.ExpiryDate = nil
	case u.ExpiryDate != nil:
		exp := *u.ExpiryDate
		next.ExpiryDate = &exp
	}
	if next.ExpiryDate != nil && !next.ExpiryDate.After(next.IssueDate) {
		return dErrors.New(dErrors.CodeInvariantViolation, "expiry date must be after issue date")
	}
	// A new expiry in the future reactivates an expired certificate.
	if next.Status == StatusExpired && !next.IsExpiredAt(now) {
		next.Status = StatusActive
	}
	next.UpdatedAt = now
	*c = next
	return nil
}

// IsExpiredAt reports whether the expiry date has passed at t.
func (c *Certificate) IsExpiredAt(t time.Time) bool {
	return c.ExpiryDate != nil && t.After(*c.ExpiryDate)
}

// EffectiveStatus is Status with a lapsed ACTIVE certificate reported as EXPIRED,
// whether or not the expiry sweep has run yet.
func (c *Certificate) EffectiveStatus(now time.Time) Status {
	if c.Status == StatusActive && c.IsExpiredAt(now) {
		return StatusExpired
	}
	return c.Status
}

func (c *Certificate) Revoke(reason string, now time.Time) error {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return dErrors.New(dErrors.CodeInvariantViolation, "revocation reason is required")
	}
	if utf8.RuneCountInString(reason) > MaxReasonLength {
		return dErrors.New(dErrors.CodeInvariantViolation, "revocation reason is too long")
	}
	if c.Status == StatusRevoked {
		return dErrors.New(dErrors.CodeInvariantViolation, "certificate is already revoked")
	}
	c.Status = StatusRevoked
	c.RevocationReason = reason
	c.RevokedAt = &now
	c.UpdatedAt = now
	return nil
}

// AttachFile records the stored file and its SHA-256 hex digest.
func (c *Certificate) AttachFile(url, hash string, now time.Time) {
	c.FileURL = url
	c.FileHash = strings.ToLower(hash)
	c.UpdatedAt = now
}

func (c *Certificate) StartAnchor(network string, now time.Time) {
	c.AnchorStatus = AnchorPending
	c.AnchorNetwork = network
	c.UpdatedAt = now
}

func (c *Certificate) ConfirmAnchor(txHash string, at, now time.Time) {
	c.AnchorStatus = AnchorConfirmed
	c.AnchorTxHash = txHash
	c.AnchoredAt = &at
	c.UpdatedAt = now
}

func (c *Certificate) FailAnchor(now time.Time) {
	c.AnchorStatus = AnchorFailed
	c.UpdatedAt = now
}

// IsAnchored reports whether a confirmed anchor exists to re-check.
func (c *Certificate) IsAnchored() bool {
	return c.AnchorStatus == AnchorConfirmed && c.AnchorTxHash != "" && c.FileHash != ""
}

// Owner identifies a recipient by account or address.
type Owner struct {
	UserID id.UserID
	Email  string
}

// Filter narrows a certificate listing.
type Filter struct {
	InstitutionID *id.InstitutionID
	// Owner restricts results to certificates issued to this recipient.
	Owner  *Owner
	Status Status
	Search string
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
