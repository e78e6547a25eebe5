package handler

import (
	"time"

	"certhub/internal/activity/models"
	"certhub/internal/activity/service"
)

type Response struct {
	ID            string         `json:"id"`
	Action        string         `json:"action"`
	Category      string         `json:"category"`
	Status        string         `json:"status"`
	UserID        *string        `json:"user_id"`
	InstitutionID *string        `json:"institution_id"`
	CertificateID *string        `json:"certificate_id"`
	Description   string         `json:"description"`
	Metadata      map[string]any `json:"metadata"`
	IPAddress     string         `json:"ip_address"`
	UserAgent     string         `json:"user_agent"`
	CreatedAt     time.Time      `json:"created_at"`
}

type PageResponse struct {
	Items  []Response `json:"items"`
	Total  int        `json:"total"`
	Limit  int        `json:"limit"`
	Offset int        `json:"offset"`
}

func toResponse(r *models.Record) Response {
	resp := Response{
		ID:          r.ID.String(),
		Action:      r.Action,
		Category:    string(r.Category),
		Status:      string(r.Status),
		Description: r.Description,
		Metadata:    r.Metadata,
		IPAddress:   r.IPAddress,
		UserAgent:   r.UserAgent,
		CreatedAt:   r.CreatedAt,
	}
	if r.UserID != nil {
		s := r.UserID.String()
		resp.UserID = &s
	}
	if r.InstitutionID != nil {
		s := r.InstitutionID.String()
		resp.InstitutionID = &s
	}
	if r.CertificateID != nil {
		s := r.CertificateID.String()
		resp.CertificateID = &s
	}
	return resp
}

func toPageResponse(p *service.Page) PageResponse {
	items := make([]Response, 0, len(p.Items))
	for _, r := range p.Items {
		items = append(items, toResponse(r))
	}
	return PageResponse{Items: items, Total: p.Total, Limit: p.Limit, Offset: p.Offset}
}
