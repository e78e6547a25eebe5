package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"certhub/internal/support/models"
	"certhub/internal/support/service"
	id "certhub/pkg/domain"
	"certhub/pkg/platform/httputil"
	"certhub/pkg/requestcontext"
)

// DefaultMaxAttachmentBytes caps attachments when no limit is configured.
const DefaultMaxAttachmentBytes = 10 << 20

type Service interface {
	Create(ctx context.Context, cmd service.CreateCommand) (*models.Ticket, error)
	List(ctx context.Context, f models.Filter) (*service.Page, error)
	Get(ctx context.Context, ticketID id.TicketID) (*models.Details, error)
	Update(ctx context.Context, ticketID id.TicketID, u models.Update) (*models.Ticket, error)
	Delete(ctx context.Context, ticketID id.TicketID) error
	AddMessage(ctx context.Context, ticketID id.TicketID, body string, internal bool) (*models.Message, error)
	AddAttachment(ctx context.Context, ticketID id.TicketID, f service.File, messageID *id.MessageID) (*models.Attachment, error)
}

type Handler struct {
	service        Service
	logger         *slog.Logger
	maxUploadBytes int64
}

func New(service Service, logger *slog.Logger, maxUploadBytes int64) *Handler {
	if maxUploadBytes <= 0 {
		maxUploadBytes = DefaultMaxAttachmentBytes
	}
	return &Handler{service: service, logger: logger, maxUploadBytes: maxUploadBytes}
}

func (h *Handler) Register(r chi.Router) {
	r.Route("/support/tickets", func(r chi.Router) {
		r.Get("/", h.HandleList)
		r.Post("/", h.HandleCreate)
		r.Get("/{id}", h.HandleGet)
		r.Put("/{id}", h.HandleUpdate)
		r.Delete("/{id}", h.HandleDelete)
		r.Post("/{id}/messages", h.HandleAddMessage)
		r.Post("/{id}/attachments", h.HandleAddAttachment)
	})
}

func (h *Handler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	req, ok := httputil.DecodeAndPrepare[CreateTicketRequest](w, r, h.logger, ctx, requestcontext.RequestID(ctx))
	if !ok {
		return
	}
	t, err := h.service.Create(ctx, service.CreateCommand{
		Subject:     req.Subject,
		Description: req.Description,
		Category:    req.Category,
		Priority:    req.parsedPriority,
	})
	if err != nil {
		h.logError(ctx, "create ticket failed", err)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, toTicketResponse(t))
}

func (h *Handler) HandleList(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	q := r.URL.Query()
	var (
		f   models.Filter
		err error
	)
	if v := q.Get("status"); v != "" {
		if f.Status, err = models.ParseStatus(v); err != nil {
			httputil.WriteError(w, err)
			return
		}
	}
	if v := q.Get("priority"); v != "" {
		if f.Priority, err = models.ParsePriority(v); err != nil {
			httputil.WriteError(w, err)
			return
		}
	}
	if f.Limit, f.Offset, err = httputil.Paging(r); err != nil {
		httputil.WriteError(w, err)
		return
	}
	page, err := h.service.List(ctx, f)
	if err != nil {
		h.logError(ctx, "list tickets failed", err)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toListResponse(page))
}

func (h *Handler) HandleGet(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	ticketID, err := id.ParseTicketID(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	d, err := h.service.Get(ctx, ticketID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toDetailsResponse(d))
}

func (h *Handler) HandleUpdate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	ticketID, err := id.ParseTicketID(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	req, ok := httputil.DecodeAndPrepare[UpdateTicketRequest](w, r, h.logger, ctx, requestcontext.RequestID(ctx))
	if !ok {
		return
	}
	t, err := h.service.Update(ctx, ticketID, req.parsed)
	if err != nil {
		h.logError(ctx, "update ticket failed", err)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toTicketResponse(t))
}

func (h *Handler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	ticketID, err := id.ParseTicketID(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	if err := h.service.Delete(ctx, ticketID); err != nil {
		h.logError(ctx, "delete ticket failed", err)
		httputil.WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) HandleAddMessage(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	ticketID, err := id.ParseTicketID(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	req, ok := httputil.DecodeAndPrepare[MessageRequest](w, r, h.logger, ctx, requestcontext.RequestID(ctx))
	if !ok {
		return
	}
	m, err := h.service.AddMessage(ctx, ticketID, req.Body, req.Internal)
	if err != nil {
		h.logError(ctx, "add ticket message failed", err)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, toMessageResponse(m))
}

// HandleAddAttachment expects a multipart "file" part and an optional
// "message_id" field.
func (h *Handler) HandleAddAttachment(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	ticketID, err := id.ParseTicketID(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	upload, err := httputil.ReadFormFile(w, r, "file", h.maxUploadBytes, true)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	var messageID *id.MessageID
	if v := strings.TrimSpace(r.FormValue("message_id")); v != "" {
		mid, err := id.ParseMessageID(v)
		if err != nil {
			httputil.WriteError(w, err)
			return
		}
		messageID = &mid
	}
	a, err := h.service.AddAttachment(ctx, ticketID, service.File{
		Name:        upload.Name,
		ContentType: upload.ContentType,
		Data:        upload.Data,
	}, messageID)
	if err != nil {
		h.logError(ctx, "add ticket attachment failed", err)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, toAttachmentResponse(a))
}

func (h *Handler) logError(ctx context.Context, msg string, err error) {
	h.logger.ErrorContext(ctx, msg,
		"error", err,
		"request_id", requestcontext.RequestID(ctx),
	)
}
