package models

import (
	"strings"
	"time"
	"unicode/utf8"

	id "certhub/pkg/domain"
	dErrors "certhub/pkg/domain-errors"
)

const (
	MaxSubjectLength     = 200
	MaxDescriptionLength = 10000
	MaxCategoryLength    = 50
	MaxMessageLength     = 20000
	DefaultPageSize      = 20
	MaxPageSize          = 100
)

type Status string

const (
	StatusOpen       Status = "OPEN"
	StatusInProgress Status = "IN_PROGRESS"
	StatusResolved   Status = "RESOLVED"
	StatusClosed     Status = "CLOSED"
)

func (s Status) IsValid() bool {
	switch s {
	case StatusOpen, StatusInProgress, StatusResolved, StatusClosed:
		return true
	}
	return false
}

// IsOpen reports whether the ticket still needs attention.
func (s Status) IsOpen() bool {
	return s == StatusOpen || s == StatusInProgress
}

func ParseStatus(s string) (Status, error) {
	st := Status(strings.ToUpper(strings.TrimSpace(s)))
	if !st.IsValid() {
		return "", dErrors.New(dErrors.CodeInvalidInput, "invalid ticket status")
	}
	return st, nil
}

type Priority string

const (
	PriorityLow    Priority = "LOW"
	PriorityMedium Priority = "MEDIUM"
	PriorityHigh   Priority = "HIGH"
	PriorityUrgent Priority = "URGENT"
)

func (p Priority) IsValid() bool {
	switch p {
	case PriorityLow, PriorityMedium, PriorityHigh, PriorityUrgent:
		return true
	}
	return false
}

func ParsePriority(s string) (Priority, error) {
	p := Priority(strings.ToUpper(strings.TrimSpace(s)))
	if !p.IsValid() {
		return "", dErrors.New(dErrors.CodeInvalidInput, "invalid ticket priority")
	}
	return p, nil
}

// Ticket is a support request raised by a user.
//
// Invariants:
//   - Subject and Description are non-empty after trimming
//   - Status and Priority are valid enum values
type Ticket struct {
	ID            id.TicketID
	Subject       string
	Description   string
	Status        Status
	Priority      Priority
	Category      string
	CreatorID     id.UserID
	InstitutionID *id.InstitutionID
	AssigneeID    *id.UserID
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// NewTicket builds an OPEN ticket. An empty priority defaults to MEDIUM.
func NewTicket(subject, description, category string, priority Priority, creator id.UserID,
	institutionID *id.InstitutionID, now time.Time) (*Ticket, error) {
	if creator.IsNil() {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "creator is required")
	}
	if priority == "" {
		priority = PriorityMedium
	}
	status := StatusOpen
	t := &Ticket{
		ID:            id.NewTicketID(),
		Status:        StatusOpen,
		Priority:      PriorityMedium,
		CreatorID:     creator,
		InstitutionID: institutionID,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := t.ApplyUpdate(Update{
		Subject:     &subject,
		Description: &description,
		Priority:    &priority,
		Status:      &status,
		Category:    &category,
	}, now); err != nil {
		return nil, err
	}
	return t, nil
}

// Update holds the editable ticket fields. Nil fields are left unchanged.
type Update struct {
	Subject       *string
	Description   *string
	Category      *string
	Priority      *Priority
	Status        *Status
	AssigneeID    *id.UserID
	ClearAssignee bool
}

// IsAssignment reports whether u touches the assignee.
func (u Update) IsAssignment() bool {
	return u.AssigneeID != nil || u.ClearAssignee
}

// ApplyUpdate validates and applies u atomically.
func (t *Ticket) ApplyUpdate(u Update, now time.Time) error {
	next := *t
	if u.Subject != nil {
		s := strings.TrimSpace(*u.Subject)
		if s == "" {
			return dErrors.New(dErrors.CodeInvariantViolation, "subject is required")
		}
		if utf8.RuneCountInString(s) > MaxSubjectLength {
			return dErrors.New(dErrors.CodeInvariantViolation, "subject must be 200 characters or less")
		}
		next.Subject = s
	}
	if u.Description != nil {
		d := strings.TrimSpace(*u.Description)
		if d == "" {
			return dErrors.New(dErrors.CodeInvariantViolation, "description is required")
		}
		if utf8.RuneCountInString(d) > MaxDescriptionLength {
			return dErrors.New(dErrors.CodeInvariantViolation, "description is too long")
		}
		next.Description = d
	}
	if u.Category != nil {
		c := strings.TrimSpace(*u.Category)
		if utf8.RuneCountInString(c) > MaxCategoryLength {
			return dErrors.New(dErrors.CodeInvariantViolation, "category is too long")
		}
		next.Category = c
	}
	if u.Priority != nil {
		if !u.Priority.IsValid() {
			return dErrors.New(dErrors.CodeInvariantViolation, "invalid ticket priority")
		}
		next.Priority = *u.Priority
	}
	if u.Status != nil {
		if !u.Status.IsValid() {
			return dErrors.New(dErrors.CodeInvariantViolation, "invalid ticket status")
		}
		next.Status = *u.Status
	}
	switch {
	case u.ClearAssignee:
		next.AssigneeID = nil
	case u.AssigneeID != nil:
		a := *u.AssigneeID
		next.AssigneeID = &a
	}
	next.UpdatedAt = now
	*t = next
	return nil
}

// Message is one entry in a ticket thread. Internal notes are visible to
// admins only.
type Message struct {
	ID        id.MessageID
	TicketID  id.TicketID
	AuthorID  id.UserID
	Body      string
	Internal  bool
	CreatedAt time.Time
}

// NewMessage expects body to be sanitized already.
func NewMessage(ticketID id.TicketID, author id.UserID, body string, internal bool, now time.Time) (*Message, error) {
	body = strings.TrimSpace(body)
	if body == "" {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "message body is required")
	}
	if utf8.RuneCountInString(body) > MaxMessageLength {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "message body is too long")
	}
	return &Message{
		ID:        id.NewMessageID(),
		TicketID:  ticketID,
		AuthorID:  author,
		Body:      body,
		Internal:  internal,
		CreatedAt: now,
	}, nil
}

// Attachment is a file stored on the media host and linked to a ticket.
type Attachment struct {
	ID          id.AttachmentID
	TicketID    id.TicketID
	MessageID   *id.MessageID
	FileName    string
	ContentType string
	SizeBytes   int64
	URL         string
	UploaderID  id.UserID
	CreatedAt   time.Time
}

// Details is a ticket with its thread.
type Details struct {
	Ticket      *Ticket
	Messages    []*Message
	Attachments []*Attachment
}

// Visibility restricts a listing to tickets created by UserID or belonging
// to InstitutionID. Both nil means no restriction.
type Visibility struct {
	UserID        *id.UserID
	InstitutionID *id.InstitutionID
}

type Filter struct {
	Status   Status
	Priority Priority
	Visible  Visibility
	Limit    int
	Offset   int
}

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
