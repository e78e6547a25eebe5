package handler

import (
	"net/http"
	"strings"
	"time"

	"certhub/internal/certificate/models"
	id "certhub/pkg/domain"
	dErrors "certhub/pkg/domain-errors"
)

const dateLayout = "2006-01-02"

// parseDate accepts RFC 3339 timestamps or plain YYYY-MM-DD dates.
func parseDate(field, v string) (time.Time, error) {
	v = strings.TrimSpace(v)
	if t, err := time.Parse(time.RFC3339, v); err == nil {
		return t.UTC(), nil
	}
	if t, err := time.Parse(dateLayout, v); err == nil {
		return t, nil
	}
	return time.Time{}, dErrors.New(dErrors.CodeValidation, field+" must be a date (YYYY-MM-DD) or RFC 3339 timestamp")
}

// IssueCertificateRequest is the body of POST /certificates, sent either as
// JSON or as multipart form fields alongside a "file" part.
type IssueCertificateRequest struct {
	InstitutionID  string `json:"institution_id,omitempty"`
	Title          string `json:"title"`
	Description    string `json:"description,omitempty"`
	RecipientName  string `json:"recipient_name"`
	RecipientEmail string `json:"recipient_email"`
	IssueDate      string `json:"issue_date,omitempty"`
	ExpiryDate     string `json:"expiry_date,omitempty"`

	parsedInstitution id.InstitutionID
	parsedIssueDate   time.Time
	parsedExpiry      *time.Time
}

func issueRequestFromForm(r *http.Request) *IssueCertificateRequest {
	return &IssueCertificateRequest{
		InstitutionID:  r.FormValue("institution_id"),
		Title:          r.FormValue("title"),
		Description:    r.FormValue("description"),
		RecipientName:  r.FormValue("recipient_name"),
		RecipientEmail: r.FormValue("recipient_email"),
		IssueDate:      r.FormValue("issue_date"),
		ExpiryDate:     r.FormValue("expiry_date"),
	}
}

func (r *IssueCertificateRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request body is required")
	}
	if strings.TrimSpace(r.Title) == "" {
		return dErrors.New(dErrors.CodeValidation, "title is required")
	}
	if strings.TrimSpace(r.RecipientName) == "" {
		return dErrors.New(dErrors.CodeValidation, "recipient_name is required")
	}
	if strings.TrimSpace(r.RecipientEmail) == "" {
		return dErrors.New(dErrors.CodeValidation, "recipient_email is required")
	}
	if v := strings.TrimSpace(r.InstitutionID); v != "" {
		instID, err := id.ParseInstitutionID(v)
		if err != nil {
			return err
		}
		r.parsedInstitution = instID
	}
	if r.IssueDate != "" {
		t, err := parseDate("issue_date", r.IssueDate)
		if err != nil {
			return err
		}
		r.parsedIssueDate = t
	}
	if r.ExpiryDate != "" {
		t, err := parseDate("expiry_date", r.ExpiryDate)
		if err != nil {
			return err
		}
		r.parsedExpiry = &t
	}
	return nil
}

// UpdateCertificateRequest is the body of PUT /certificates/{id}. Omitted
// fields are left unchanged; an empty expiry_date clears the expiry.
type UpdateCertificateRequest struct {
	Title          *string `json:"title,omitempty"`
	Description    *string `json:"description,omitempty"`
	RecipientName  *string `json:"recipient_name,omitempty"`
	RecipientEmail *string `json:"recipient_email,omitempty"`
	ExpiryDate     *string `json:"expiry_date,omitempty"`

	parsed models.Update
}

func (r *UpdateCertificateRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request body is required")
	}
	r.parsed = models.Update{
		Title:          r.Title,
		Description:    r.Description,
		RecipientName:  r.RecipientName,
		RecipientEmail: r.RecipientEmail,
	}
	if r.ExpiryDate != nil {
		if strings.TrimSpace(*r.ExpiryDate) == "" {
			r.parsed.ClearExpiry = true
		} else {
			t, err := parseDate("expiry_date", *r.ExpiryDate)
			if err != nil {
				return err
			}
			r.parsed.ExpiryDate = &t
		}
	}
	return nil
}

type RevokeRequest struct {
	Reason string `json:"reason"`
}

func (r *RevokeRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request body is required")
	}
	r.Reason = strings.TrimSpace(r.Reason)
	if r.Reason == "" {
		return dErrors.New(dErrors.CodeValidation, "reason is required")
	}
	return nil
}
