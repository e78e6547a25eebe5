// Package service manages support tickets and their message threads.
package service

import (
	"context"
	"errors"
	"log/slog"

	activitymodels "certhub/internal/activity/models"
	authmodels "certhub/internal/auth/models"
	"certhub/internal/support/metrics"
	"certhub/internal/support/models"
	id "certhub/pkg/domain"
	dErrors "certhub/pkg/domain-errors"
	"certhub/pkg/media"
	"certhub/pkg/platform/sentinel"
	"certhub/pkg/requestcontext"
)

const mediaSubfolder = "support"

type Store interface {
	Create(ctx context.Context, t *models.Ticket) error
	FindByID(ctx context.Context, ticketID id.TicketID) (*models.Ticket, error)
	Update(ctx context.Context, t *models.Ticket) error
	Delete(ctx context.Context, ticketID id.TicketID) error
	List(ctx context.Context, f models.Filter) ([]*models.Ticket, int, error)
	AddMessage(ctx context.Context, msg *models.Message) error
	ListMessages(ctx context.Context, ticketID id.TicketID, includeInternal bool) ([]*models.Message, error)
	AddAttachment(ctx context.Context, a *models.Attachment) error
	ListAttachments(ctx context.Context, ticketID id.TicketID) ([]*models.Attachment, error)
}

type Users interface {
	FindByID(ctx context.Context, userID id.UserID) (*authmodels.User, error)
}

// Uploader stores attachments on the media host.
type Uploader interface {
	Enabled() bool
	Upload(ctx context.Context, f media.File) (*media.Asset, error)
}

type ActivityLogger interface {
	Log(ctx context.Context, ev activitymodels.Event)
}

type Service struct {
	store    Store
	users    Users
	uploader Uploader
	activity ActivityLogger
	logger   *slog.Logger
	metrics  *metrics.Metrics
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

func WithActivityLogger(a ActivityLogger) Option {
	return func(s *Service) {
		s.activity = a
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

func WithUploader(u Uploader) Option {
	return func(s *Service) {
		s.uploader = u
	}
}

func New(store Store, users Users, opts ...Option) *Service {
	s := &Service{
		store:  store,
		users:  users,
		logger: slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

type CreateCommand struct {
	Subject     string
	Description string
	Category    string
	Priority    models.Priority
}

// File is an uploaded attachment.
type File struct {
	Name        string
	ContentType string
	Data        []byte
}

type Page struct {
	Items  []*models.Ticket
	Total  int
	Limit  int
	Offset int
}

// Create opens a ticket for the caller. The ticket is attached to the
// caller's institution when they have one.
func (s *Service) Create(ctx context.Context, cmd CreateCommand) (*models.Ticket, error) {
	userID := requestcontext.UserID(ctx)
	if userID.IsNil() {
		return nil, dErrors.New(dErrors.CodeUnauthorized, "authentication required")
	}
	var instRef *id.InstitutionID
	if inst := requestcontext.InstitutionID(ctx); !inst.IsNil() {
		instRef = &inst
	}
	t, err := models.NewTicket(cmd.Subject, cmd.Description, cmd.Category, cmd.Priority, userID, instRef, requestcontext.Now(ctx))
	if err != nil {
		return nil, dErrors.New(dErrors.CodeValidation, err.Error())
	}
	if err := s.store.Create(ctx, t); err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeUnauthorized, "user no longer exists")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to create ticket")
	}
	s.metrics.IncTicket(string(t.Priority))
	s.logActivity(ctx, t, activitymodels.ActionTicketCreated, "Support ticket created",
		map[string]any{"subject": t.Subject, "priority": string(t.Priority)})
	s.logger.InfoContext(ctx, "support ticket created",
		"ticket_id", t.ID.String(),
		"request_id", requestcontext.RequestID(ctx),
	)
	return t, nil
}

// List returns the tickets the caller can see. Admins see every ticket,
// institution users their institution's, and other users their own plus
// their institution's.
func (s *Service) List(ctx context.Context, f models.Filter) (*Page, error) {
	f.Normalize()
	vis, err := visibility(ctx)
	if err != nil {
		return nil, err
	}
	f.Visible = vis
	items, total, err := s.store.List(ctx, f)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list tickets")
	}
	if items == nil {
		items = []*models.Ticket{}
	}
	return &Page{Items: items, Total: total, Limit: f.Limit, Offset: f.Offset}, nil
}

func visibility(ctx context.Context) (models.Visibility, error) {
	userID := requestcontext.UserID(ctx)
	if userID.IsNil() {
		return models.Visibility{}, dErrors.New(dErrors.CodeUnauthorized, "authentication required")
	}
	var v models.Visibility
	inst := requestcontext.InstitutionID(ctx)
	switch requestcontext.Role(ctx) {
	case id.RoleAdmin:
		return v, nil
	case id.RoleInstitution:
		if !inst.IsNil() {
			v.InstitutionID = &inst
			return v, nil
		}
		v.UserID = &userID
	default:
		v.UserID = &userID
		if !inst.IsNil() {
			v.InstitutionID = &inst
		}
	}
	return v, nil
}

func canView(ctx context.Context, t *models.Ticket) bool {
	v, err := visibility(ctx)
	if err != nil {
		return false
	}
	if v.UserID == nil && v.InstitutionID == nil {
		return true
	}
	if v.UserID != nil && *v.UserID == t.CreatorID {
		return true
	}
	return v.InstitutionID != nil && t.InstitutionID != nil && *v.InstitutionID == *t.InstitutionID
}

func isAdmin(ctx context.Context) bool {
	return requestcontext.Role(ctx) == id.RoleAdmin
}

// Get returns a ticket with its thread. Internal notes are only included for admins.
func (s *Service) Get(ctx context.Context, ticketID id.TicketID) (*models.Details, error) {
	t, err := s.loadVisible(ctx, ticketID)
	if err != nil {
		return nil, err
	}
	msgs, err := s.store.ListMessages(ctx, ticketID, isAdmin(ctx))
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load messages")
	}
	atts, err := s.store.ListAttachments(ctx, ticketID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load attachments")
	}
	if !isAdmin(ctx) {
		atts = publicAttachments(atts, msgs)
	}
	return &models.Details{Ticket: t, Messages: msgs, Attachments: atts}, nil
}

// publicAttachments drops attachments linked to messages the caller cannot see.
func publicAttachments(atts []*models.Attachment, visible []*models.Message) []*models.Attachment {
	seen := make(map[id.MessageID]bool, len(visible))
	for _, m := range visible {
		seen[m.ID] = true
	}
	out := make([]*models.Attachment, 0, len(atts))
	for _, a := range atts {
		if a.MessageID == nil || seen[*a.MessageID] {
			out = append(out, a)
		}
	}
	return out
}

// Update edits a ticket. Only admins may change the assignee, who must be an
// active admin.
func (s *Service) Update(ctx context.Context, ticketID id.TicketID, u models.Update) (*models.Ticket, error) {
	t, err := s.loadVisible(ctx, ticketID)
	if err != nil {
		return nil, err
	}
	if u.IsAssignment() {
		if !isAdmin(ctx) {
			return nil, dErrors.New(dErrors.CodeForbidden, "only admins can assign tickets")
		}
		if u.AssigneeID != nil {
			if err := s.checkAssignee(ctx, *u.AssigneeID); err != nil {
				return nil, err
			}
		}
	}
	if err := t.ApplyUpdate(u, requestcontext.Now(ctx)); err != nil {
		return nil, dErrors.New(dErrors.CodeValidation, err.Error())
	}
	if err := s.store.Update(ctx, t); err != nil {
		return nil, translateWriteErr(err, "failed to update ticket")
	}
	meta := map[string]any{"status": string(t.Status), "priority": string(t.Priority)}
	if t.AssigneeID != nil {
		meta["assignee_id"] = t.AssigneeID.String()
	}
	s.logActivity(ctx, t, activitymodels.ActionTicketUpdated, "Support ticket updated", meta)
	return t, nil
}

func (s *Service) checkAssignee(ctx context.Context, userID id.UserID) error {
	u, err := s.users.FindByID(ctx, userID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return dErrors.New(dErrors.CodeValidation, "assignee not found")
		}
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to load assignee")
	}
	if u.Role != id.RoleAdmin || !u.Active {
		return dErrors.New(dErrors.CodeValidation, "assignee must be an active admin")
	}
	return nil
}

// Delete removes a ticket with its thread. Admin only.
func (s *Service) Delete(ctx context.Context, ticketID id.TicketID) error {
	if !isAdmin(ctx) {
		return dErrors.New(dErrors.CodeForbidden, "admin access required")
	}
	t, err := s.load(ctx, ticketID)
	if err != nil {
		return err
	}
	if err := s.store.Delete(ctx, ticketID); err != nil {
		return translateWriteErr(err, "failed to delete ticket")
	}
	s.logActivity(ctx, t, activitymodels.ActionTicketDeleted, "Support ticket deleted",
		map[string]any{"subject": t.Subject})
	return nil
}

// AddMessage posts a reply. The Markdown body is rendered and sanitized
// before it is stored. Internal notes are admin only.
func (s *Service) AddMessage(ctx context.Context, ticketID id.TicketID, body string, internal bool) (*models.Message, error) {
	if internal && !isAdmin(ctx) {
		return nil, dErrors.New(dErrors.CodeForbidden, "only admins can post internal notes")
	}
	t, err := s.loadVisible(ctx, ticketID)
	if err != nil {
		return nil, err
	}
	rendered, err := renderMessage(body)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeValidation, "message body could not be rendered")
	}
	now := requestcontext.Now(ctx)
	m, err := models.NewMessage(ticketID, requestcontext.UserID(ctx), rendered, internal, now)
	if err != nil {
		return nil, dErrors.New(dErrors.CodeValidation, err.Error())
	}
	if err := s.store.AddMessage(ctx, m); err != nil {
		return nil, translateWriteErr(err, "failed to add message")
	}
	s.touch(ctx, t)
	s.metrics.IncMessage(internal)
	s.logActivity(ctx, t, activitymodels.ActionTicketMessage, "Support message added",
		map[string]any{"message_id": m.ID.String(), "internal": internal})
	return m, nil
}

// AddAttachment uploads f to the media host and links it to the ticket, and
// optionally to one of its messages.
func (s *Service) AddAttachment(ctx context.Context, ticketID id.TicketID, f File, messageID *id.MessageID) (*models.Attachment, error) {
	if len(f.Data) == 0 {
		return nil, dErrors.New(dErrors.CodeValidation, "file is required")
	}
	t, err := s.loadVisible(ctx, ticketID)
	if err != nil {
		return nil, err
	}
	if messageID != nil {
		if err := s.checkMessage(ctx, ticketID, *messageID); err != nil {
			return nil, err
		}
	}
	if s.uploader == nil || !s.uploader.Enabled() {
		return nil, dErrors.New(dErrors.CodeUnavailable, "attachment uploads are not configured")
	}
	asset, err := s.uploader.Upload(ctx, media.File{
		Name:        f.Name,
		ContentType: f.ContentType,
		Data:        f.Data,
		Subfolder:   mediaSubfolder,
	})
	if err != nil {
		s.logger.ErrorContext(ctx, "attachment upload failed",
			"ticket_id", ticketID.String(),
			"error", err,
		)
		return nil, dErrors.Wrap(err, dErrors.CodeUnavailable, "failed to upload attachment")
	}

	now := requestcontext.Now(ctx)
	a := &models.Attachment{
		ID:          id.NewAttachmentID(),
		TicketID:    ticketID,
		MessageID:   messageID,
		FileName:    f.Name,
		ContentType: f.ContentType,
		SizeBytes:   int64(len(f.Data)),
		URL:         asset.URL,
		UploaderID:  requestcontext.UserID(ctx),
		CreatedAt:   now,
	}
	if err := s.store.AddAttachment(ctx, a); err != nil {
		return nil, translateWriteErr(err, "failed to save attachment")
	}
	s.touch(ctx, t)
	s.metrics.IncAttachment()
	s.logActivity(ctx, t, activitymodels.ActionTicketAttachment, "Support attachment uploaded",
		map[string]any{"attachment_id": a.ID.String(), "file_name": a.FileName, "size_bytes": a.SizeBytes})
	return a, nil
}

func (s *Service) checkMessage(ctx context.Context, ticketID id.TicketID, messageID id.MessageID) error {
	msgs, err := s.store.ListMessages(ctx, ticketID, isAdmin(ctx))
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to load messages")
	}
	for _, m := range msgs {
		if m.ID == messageID {
			return nil
		}
	}
	return dErrors.New(dErrors.CodeValidation, "message does not belong to this ticket")
}

// touch bumps the ticket's updated_at so active threads sort first.
func (s *Service) touch(ctx context.Context, t *models.Ticket) {
	if err := t.ApplyUpdate(models.Update{}, requestcontext.Now(ctx)); err != nil {
		return
	}
	if err := s.store.Update(ctx, t); err != nil {
		s.logger.WarnContext(ctx, "failed to touch ticket",
			"ticket_id", t.ID.String(),
			"error", err,
		)
	}
}

func (s *Service) load(ctx context.Context, ticketID id.TicketID) (*models.Ticket, error) {
	t, err := s.store.FindByID(ctx, ticketID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "ticket not found")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load ticket")
	}
	return t, nil
}

// loadVisible reports tickets outside the caller's visibility as not found.
func (s *Service) loadVisible(ctx context.Context, ticketID id.TicketID) (*models.Ticket, error) {
	if requestcontext.UserID(ctx).IsNil() {
		return nil, dErrors.New(dErrors.CodeUnauthorized, "authentication required")
	}
	t, err := s.load(ctx, ticketID)
	if err != nil {
		return nil, err
	}
	if !canView(ctx, t) {
		return nil, dErrors.New(dErrors.CodeNotFound, "ticket not found")
	}
	return t, nil
}

func translateWriteErr(err error, msg string) error {
	if errors.Is(err, sentinel.ErrNotFound) {
		return dErrors.New(dErrors.CodeNotFound, "ticket not found")
	}
	return dErrors.Wrap(err, dErrors.CodeInternal, msg)
}

func (s *Service) logActivity(ctx context.Context, t *models.Ticket, action, description string, meta map[string]any) {
	if s.activity == nil {
		return
	}
	actor := requestcontext.UserID(ctx)
	var actorRef *id.UserID
	if !actor.IsNil() {
		actorRef = &actor
	}
	if meta == nil {
		meta = map[string]any{}
	}
	meta["ticket_id"] = t.ID.String()
	s.activity.Log(ctx, activitymodels.Event{
		Action:        action,
		Category:      activitymodels.CategorySupport,
		Status:        activitymodels.StatusSuccess,
		UserID:        actorRef,
		InstitutionID: t.InstitutionID,
		Description:   description,
		Metadata:      meta,
	})
}
