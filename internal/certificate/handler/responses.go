package handler

import (
	"time"

	"certhub/internal/certificate/models"
	"certhub/internal/certificate/service"
)

type BlockchainResponse struct {
	Status     string     `json:"status"`
	Network    string     `json:"network,omitempty"`
	TxHash     string     `json:"tx_hash,omitempty"`
	AnchoredAt *time.Time `json:"anchored_at,omitempty"`
}

type CertificateResponse struct {
	ID               string              `json:"id"`
	VerificationID   string              `json:"verification_id"`
	Title            string              `json:"title"`
	Description      string              `json:"description,omitempty"`
	RecipientName    string              `json:"recipient_name"`
	RecipientEmail   string              `json:"recipient_email"`
	RecipientUserID  string              `json:"recipient_user_id,omitempty"`
	InstitutionID    string              `json:"institution_id"`
	IssuerID         string              `json:"issuer_id,omitempty"`
	IssueDate        time.Time           `json:"issue_date"`
	ExpiryDate       *time.Time          `json:"expiry_date,omitempty"`
	Status           string              `json:"status"`
	RevocationReason string              `json:"revocation_reason,omitempty"`
	RevokedAt        *time.Time          `json:"revoked_at,omitempty"`
	FileURL          string              `json:"file_url,omitempty"`
	FileHash         string              `json:"file_hash,omitempty"`
	Blockchain       *BlockchainResponse `json:"blockchain,omitempty"`
	CreatedAt        time.Time           `json:"created_at"`
	UpdatedAt        time.Time           `json:"updated_at"`
}

type ListResponse struct {
	Items  []CertificateResponse `json:"items"`
	Total  int                   `json:"total"`
	Limit  int                   `json:"limit"`
	Offset int                   `json:"offset"`
}

type SummaryResponse struct {
	VerificationID   string     `json:"verification_id"`
	Title            string     `json:"title"`
	RecipientName    string     `json:"recipient_name"`
	InstitutionName  string     `json:"institution_name"`
	IssueDate        time.Time  `json:"issue_date"`
	ExpiryDate       *time.Time `json:"expiry_date,omitempty"`
	Status           string     `json:"status"`
	RevocationReason string     `json:"revocation_reason,omitempty"`
}

type AnchorCheckResponse struct {
	BlockchainResponse
	BlockchainVerified *bool `json:"blockchain_verified,omitempty"`
}

// VerificationResponse is the public answer to a verification request.
type VerificationResponse struct {
	Valid       bool                 `json:"valid"`
	Reason      string               `json:"reason"`
	Certificate *SummaryResponse     `json:"certificate,omitempty"`
	Blockchain  *AnchorCheckResponse `json:"blockchain,omitempty"`
	CheckedAt   time.Time            `json:"checked_at"`
}

func toCertificateResponse(c *models.Certificate) CertificateResponse {
	resp := CertificateResponse{
		ID:               c.ID.String(),
		VerificationID:   c.VerificationID,
		Title:            c.Title,
		Description:      c.Description,
		RecipientName:    c.RecipientName,
		RecipientEmail:   c.RecipientEmail,
		InstitutionID:    c.InstitutionID.String(),
		IssueDate:        c.IssueDate,
		ExpiryDate:       c.ExpiryDate,
		Status:           string(c.Status),
		RevocationReason: c.RevocationReason,
		RevokedAt:        c.RevokedAt,
		FileURL:          c.FileURL,
		FileHash:         c.FileHash,
		CreatedAt:        c.CreatedAt,
		UpdatedAt:        c.UpdatedAt,
	}
	if c.RecipientUserID != nil {
		resp.RecipientUserID = c.RecipientUserID.String()
	}
	if c.IssuerID != nil {
		resp.IssuerID = c.IssuerID.String()
	}
	if c.AnchorStatus != "" && c.AnchorStatus != models.AnchorNone {
		resp.Blockchain = &BlockchainResponse{
			Status:     string(c.AnchorStatus),
			Network:    c.AnchorNetwork,
			TxHash:     c.AnchorTxHash,
			AnchoredAt: c.AnchoredAt,
		}
	}
	return resp
}

func toListResponse(p *service.Page) ListResponse {
	items := make([]CertificateResponse, 0, len(p.Items))
	for _, c := range p.Items {
		items = append(items, toCertificateResponse(c))
	}
	return ListResponse{Items: items, Total: p.Total, Limit: p.Limit, Offset: p.Offset}
}

func toVerificationResponse(res *models.VerificationResult) VerificationResponse {
	out := VerificationResponse{
		Valid:     res.Valid,
		Reason:    string(res.Reason),
		CheckedAt: res.CheckedAt,
	}
	if s := res.Certificate; s != nil {
		out.Certificate = &SummaryResponse{
			VerificationID:   s.VerificationID,
			Title:            s.Title,
			RecipientName:    s.RecipientName,
			InstitutionName:  s.InstitutionName,
			IssueDate:        s.IssueDate,
			ExpiryDate:       s.ExpiryDate,
			Status:           string(s.Status),
			RevocationReason: s.RevocationReason,
		}
	}
	if b := res.Blockchain; b != nil {
		out.Blockchain = &AnchorCheckResponse{
			BlockchainResponse: BlockchainResponse{
				Status:     string(b.Status),
				Network:    b.Network,
				TxHash:     b.TxHash,
				AnchoredAt: b.AnchoredAt,
			},
			BlockchainVerified: b.Verified,
		}
	}
	return out
}
