package handler

import (
	"time"

	"certhub/internal/institution/models"
	"certhub/internal/institution/service"
)

type InstitutionResponse struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Type        string    `json:"type"`
	Status      string    `json:"status"`
	Email       string    `json:"email,omitempty"`
	Website     string    `json:"website,omitempty"`
	Address     string    `json:"address,omitempty"`
	Description string    `json:"description,omitempty"`
	LogoURL     string    `json:"logo_url,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

type DetailsResponse struct {
	InstitutionResponse
	UserCount        int `json:"user_count"`
	CertificateCount int `json:"certificate_count"`
}

type ListResponse struct {
	Items  []InstitutionResponse `json:"items"`
	Total  int                   `json:"total"`
	Limit  int                   `json:"limit"`
	Offset int                   `json:"offset"`
}

type MemberResponse struct {
	UserID    string    `json:"user_id"`
	Email     string    `json:"email"`
	Name      string    `json:"name"`
	Role      string    `json:"role"`
	CreatedAt time.Time `json:"created_at"`
}

func toInstitutionResponse(i *models.Institution) InstitutionResponse {
	return InstitutionResponse{
		ID:          i.ID.String(),
		Name:        i.Name,
		Type:        string(i.Type),
		Status:      string(i.Status),
		Email:       i.Email,
		Website:     i.Website,
		Address:     i.Address,
		Description: i.Description,
		LogoURL:     i.LogoURL,
		CreatedAt:   i.CreatedAt,
		UpdatedAt:   i.UpdatedAt,
	}
}

func toDetailsResponse(d *models.Details) DetailsResponse {
	return DetailsResponse{
		InstitutionResponse: toInstitutionResponse(d.Institution),
		UserCount:           d.UserCount,
		CertificateCount:    d.CertificateCount,
	}
}

func toListResponse(p *service.Page) ListResponse {
	items := make([]InstitutionResponse, 0, len(p.Items))
	for _, i := range p.Items {
		items = append(items, toInstitutionResponse(i))
	}
	return ListResponse{Items: items, Total: p.Total, Limit: p.Limit, Offset: p.Offset}
}

func toMemberResponse(m *models.Member) MemberResponse {
	return MemberResponse{
		UserID:    m.UserID.String(),
		Email:     m.Email,
		Name:      m.Name,
		Role:      string(m.Role),
		CreatedAt: m.CreatedAt,
	}
}
