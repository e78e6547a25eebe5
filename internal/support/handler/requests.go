package handler

import (
	"strings"

	"certhub/internal/support/models"
	id "certhub/pkg/domain"
	dErrors "certhub/pkg/domain-errors"
)

type CreateTicketRequest struct {
	Subject     string `json:"subject"`
	Description string `json:"description"`
	Category    string `json:"category,omitempty"`
	Priority    string `json:"priority,omitempty"`

	parsedPriority models.Priority
}

func (r *CreateTicketRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request body is required")
	}
	if strings.TrimSpace(r.Subject) == "" {
		return dErrors.New(dErrors.CodeValidation, "subject is required")
	}
	if strings.TrimSpace(r.Description) == "" {
		return dErrors.New(dErrors.CodeValidation, "description is required")
	}
	if r.Priority != "" {
		p, err := models.ParsePriority(r.Priority)
		if err != nil {
			return err
		}
		r.parsedPriority = p
	}
	return nil
}

// UpdateTicketRequest is the body of PUT /support/tickets/{id}. Omitted
// fields are left unchanged; an empty assignee_id unassigns the ticket.
type UpdateTicketRequest struct {
	Subject     *string `json:"subject,omitempty"`
	Description *string `json:"description,omitempty"`
	Category    *string `json:"category,omitempty"`
	Priority    *string `json:"priority,omitempty"`
	Status      *string `json:"status,omitempty"`
	AssigneeID  *string `json:"assignee_id,omitempty"`

	parsed models.Update
}

func (r *UpdateTicketRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request body is required")
	}
	r.parsed = models.Update{
		Subject:     r.Subject,
		Description: r.Description,
		Category:    r.Category,
	}
	if r.Priority != nil {
		p, err := models.ParsePriority(*r.Priority)
		if err != nil {
			return err
		}
		r.parsed.Priority = &p
	}
	if r.Status != nil {
		st, err := models.ParseStatus(*r.Status)
		if err != nil {
			return err
		}
		r.parsed.Status = &st
	}
	if r.AssigneeID != nil {
		if strings.TrimSpace(*r.AssigneeID) == "" {
			r.parsed.ClearAssignee = true
		} else {
			assignee, err := id.ParseUserID(*r.AssigneeID)
			if err != nil {
				return err
			}
			r.parsed.AssigneeID = &assignee
		}
	}
	return nil
}

type MessageRequest struct {
	Body     string `json:"body"`
	Internal bool   `json:"internal,omitempty"`
}

func (r *MessageRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request body is required")
	}
	if strings.TrimSpace(r.Body) == "" {
		return dErrors.New(dErrors.CodeValidation, "body is required")
	}
	if len(r.Body) > models.MaxMessageLength {
		return dErrors.New(dErrors.CodeValidation, "body is too long")
	}
	return nil
}
