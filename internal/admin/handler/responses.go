package handler

import (
	"time"

	"certhub/internal/admin/service"
	authhandler "certhub/internal/auth/handler"
)

type CreatedUserResponse struct {
	authhandler.UserResponse
	TemporaryPassword string `json:"temporary_password,omitempty"`
}

type UserListResponse struct {
	Items  []authhandler.UserResponse `json:"items"`
	Total  int                        `json:"total"`
	Limit  int                        `json:"limit"`
	Offset int                        `json:"offset"`
}

type StatsResponse struct {
	Users                   map[string]int `json:"users"`
	Institutions            map[string]int `json:"institutions"`
	Certificates            map[string]int `json:"certificates"`
	OpenTickets             int            `json:"open_tickets"`
	VerificationFailures24h int            `json:"verification_failures_24h"`
	GeneratedAt             time.Time      `json:"generated_at"`
}

func toUserListResponse(p *service.Page) UserListResponse {
	items := make([]authhandler.UserResponse, 0, len(p.Items))
	for _, u := range p.Items {
		items = append(items, authhandler.ToUserResponse(u))
	}
	return UserListResponse{Items: items, Total: p.Total, Limit: p.Limit, Offset: p.Offset}
}

func toStatsResponse(st *service.Stats) StatsResponse {
	return StatsResponse{
		Users:                   st.UsersByRole,
		Institutions:            st.InstitutionsByStatus,
		Certificates:            st.CertificatesByStatus,
		OpenTickets:             st.OpenTickets,
		VerificationFailures24h: st.RecentVerifyFailures,
		GeneratedAt:             st.GeneratedAt,
	}
}
