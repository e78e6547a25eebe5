package models

import "time"

// Reason explains a verification outcome.
type Reason string

const (
	ReasonValid    Reason = "VALID"
	ReasonNotFound Reason = "NOT_FOUND"
	ReasonRevoked  Reason = "REVOKED"
	ReasonExpired  Reason = "EXPIRED"
)

// Summary is the public view of a verified certificate.
type Summary struct {
	VerificationID   string
	Title            string
	RecipientName    string
	InstitutionName  string
	IssueDate        time.Time
	ExpiryDate       *time.Time
	Status           Status
	RevocationReason string
}

// AnchorCheck reports the blockchain side of a verification.
type AnchorCheck struct {
	Status     AnchorStatus
	Network    string
	TxHash     string
	AnchoredAt *time.Time
	// Verified is nil when no re-check was attempted.
	Verified *bool
}

// VerificationResult is what public verification returns.
type VerificationResult struct {
	Valid       bool
	Reason      Reason
	Certificate *Summary
	Blockchain  *AnchorCheck
	CheckedAt   time.Time
}
