package handler

import (
	"time"

	"certhub/internal/support/models"
	"certhub/internal/support/service"
)

type TicketResponse struct {
	ID            string    `json:"id"`
	Subject       string    `json:"subject"`
	Description   string    `json:"description"`
	Status        string    `json:"status"`
	Priority      string    `json:"priority"`
	Category      string    `json:"category,omitempty"`
	CreatorID     string    `json:"creator_id"`
	InstitutionID string    `json:"institution_id,omitempty"`
	AssigneeID    string    `json:"assignee_id,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

type MessageResponse struct {
	ID        string    `json:"id"`
	AuthorID  string    `json:"author_id"`
	Body      string    `json:"body"`
	Internal  bool      `json:"internal"`
	CreatedAt time.Time `json:"created_at"`
}

type AttachmentResponse struct {
	ID          string    `json:"id"`
	MessageID   string    `json:"message_id,omitempty"`
	FileName    string    `json:"file_name"`
	ContentType string    `json:"content_type"`
	SizeBytes   int64     `json:"size_bytes"`
	URL         string    `json:"url"`
	UploaderID  string    `json:"uploader_id"`
	CreatedAt   time.Time `json:"created_at"`
}

type DetailsResponse struct {
	TicketResponse
	Messages    []MessageResponse    `json:"messages"`
	Attachments []AttachmentResponse `json:"attachments"`
}

type ListResponse struct {
	Items  []TicketResponse `json:"items"`
	Total  int              `json:"total"`
	Limit  int              `json:"limit"`
	Offset int              `json:"offset"`
}

func toTicketResponse(t *models.Ticket) TicketResponse {
	resp := TicketResponse{
		ID:          t.ID.String(),
		Subject:     t.Subject,
		Description: t.Description,
		Status:      string(t.Status),
		Priority:    string(t.Priority),
		Category:    t.Category,
		CreatorID:   t.CreatorID.String(),
		CreatedAt:   t.CreatedAt,
		UpdatedAt:   t.UpdatedAt,
	}
	if t.InstitutionID != nil {
		resp.InstitutionID = t.InstitutionID.String()
	}
	if t.AssigneeID != nil {
		resp.AssigneeID = t.AssigneeID.String()
	}
	return resp
}

func toMessageResponse(m *models.Message) MessageResponse {
	return MessageResponse{
		ID:        m.ID.String(),
		AuthorID:  m.AuthorID.String(),
		Body:      m.Body,
		Internal:  m.Internal,
		CreatedAt: m.CreatedAt,
	}
}

func toAttachmentResponse(a *models.Attachment) AttachmentResponse {
	resp := AttachmentResponse{
		ID:          a.ID.String(),
		FileName:    a.FileName,
		ContentType: a.ContentType,
		SizeBytes:   a.SizeBytes,
		URL:         a.URL,
		UploaderID:  a.UploaderID.String(),
		CreatedAt:   a.CreatedAt,
	}
	if a.MessageID != nil {
		resp.MessageID = a.MessageID.String()
	}
	return resp
}

func toDetailsResponse(d *models.Details) DetailsResponse {
	resp := DetailsResponse{
		TicketResponse: toTicketResponse(d.Ticket),
		Messages:       make([]MessageResponse, 0, len(d.Messages)),
		Attachments:    make([]AttachmentResponse, 0, len(d.Attachments)),
	}
	for _, m := range d.Messages {
		resp.Messages = append(resp.Messages, toMessageResponse(m))
	}
	for _, a := range d.Attachments {
		resp.Attachments = append(resp.Attachments, toAttachmentResponse(a))
	}
	return resp
}

func toListResponse(p *service.Page) ListResponse {
	items := make([]TicketResponse, 0, len(p.Items))
	for _, t := range p.Items {
		items = append(items, toTicketResponse(t))
	}
	return ListResponse{Items: items, Total: p.Total, Limit: p.Limit, Offset: p.Offset}
}
