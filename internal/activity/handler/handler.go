package handler

import (
	"bytes"
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"certhub/internal/activity/export"
	"certhub/internal/activity/models"
	"certhub/internal/activity/service"
	id "certhub/pkg/domain"
	dErrors "certhub/pkg/domain-errors"
	"certhub/pkg/platform/httputil"
	"certhub/pkg/requestcontext"
)

// Service defines the activity operations the handler needs.
type Service interface {
	List(ctx context.Context, f models.Filter) (*service.Page, error)
	Get(ctx context.Context, logID id.ActivityLogID) (*models.Record, error)
	ListForExport(ctx context.Context, f models.Filter) ([]*models.Record, error)
}

// Handler serves the admin activity-log endpoints.
type Handler struct {
	service Service
	logger  *slog.Logger
}

func New(service Service, logger *slog.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

// Register mounts activity-log endpoints relative to /admin. Callers restrict
// the group to admins.
func (h *Handler) Register(r chi.Router) {
	r.Get("/activity-logs", h.HandleList)
	r.Get("/activity-logs/export", h.HandleExport)
	r.Get("/activity-logs/{id}", h.HandleGet)
}

func (h *Handler) HandleList(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	f, err := parseFilter(r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	page, err := h.service.List(ctx, f)
	if err != nil {
		h.logError(ctx, "list activity logs failed", err)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toPageResponse(page))
}

func (h *Handler) HandleGet(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logID, err := id.ParseActivityLogID(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	rec, err := h.service.Get(ctx, logID)
	if err != nil {
		h.logError(ctx, "get activity log failed", err)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toResponse(rec))
}

// HandleExport streams the filtered list as an XLSX download.
func (h *Handler) HandleExport(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	f, err := parseFilter(r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	records, err := h.service.ListForExport(ctx, f)
	if err != nil {
		h.logError(ctx, "export activity logs failed", err)
		httputil.WriteError(w, err)
		return
	}

	var buf bytes.Buffer
	if err := export.WriteXLSX(&buf, records); err != nil {
		h.logError(ctx, "render activity export failed", err)
		httputil.WriteError(w, dErrors.Wrap(err, dErrors.CodeInternal, "failed to render export"))
		return
	}

	h.logger.InfoContext(ctx, "activity logs exported",
		"rows", len(records),
		"request_id", requestcontext.RequestID(ctx),
	)
	w.Header().Set("Content-Type", export.ContentType)
	w.Header().Set("Content-Disposition", `attachment; filename="`+export.Filename(requestcontext.Now(ctx))+`"`)
	w.Header().Set("Content-Length", strconv.Itoa(buf.Len()))
	w.WriteHeader(http.StatusOK)
	_, _ = buf.WriteTo(w)
}

func (h *Handler) logError(ctx context.Context, msg string, err error) {
	h.logger.ErrorContext(ctx, msg,
		"error", err,
		"request_id", requestcontext.RequestID(ctx),
	)
}

func parseFilter(r *http.Request) (models.Filter, error) {
	q := r.URL.Query()
	var f models.Filter

	if v := q.Get("category"); v != "" {
		c, err := models.ParseCategory(v)
		if err != nil {
			return f, err
		}
		f.Category = c
	}
	if v := q.Get("status"); v != "" {
		s, err := models.ParseStatus(v)
		if err != nil {
			return f, err
		}
		f.Status = s
	}
	f.Action = q.Get("action")
	if v := q.Get("user_id"); v != "" {
		uid, err := id.ParseUserID(v)
		if err != nil {
			return f, err
		}
		f.UserID = &uid
	}
	if v := q.Get("institution_id"); v != "" {
		iid, err := id.ParseInstitutionID(v)
		if err != nil {
			return f, err
		}
		f.InstitutionID = &iid
	}
	from, err := parseTime(q.Get("from"), false)
	if err != nil {
		return f, err
	}
	f.From = from
	to, err := parseTime(q.Get("to"), true)
	if err != nil {
		return f, err
	}
	f.To = to
	if f.From != nil && f.To != nil && f.To.Before(*f.From) {
		return f, dErrors.New(dErrors.CodeValidation, "to must not be before from")
	}
	if f.Limit, f.Offset, err = httputil.Paging(r); err != nil {
		return f, err
	}
	return f, nil
}

// parseTime accepts RFC 3339 or a bare date. A bare "to" date covers the whole day.
func parseTime(v string, endOfDay bool) (*time.Time, error) {
	if v == "" {
		return nil, nil
	}
	if t, err := time.Parse(time.RFC3339, v); err == nil {
		return &t, nil
	}
	t, err := time.Parse(time.DateOnly, v)
	if err != nil {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "invalid date: "+v)
	}
	if endOfDay {
		t = t.Add(24*time.Hour - time.Nanosecond)
	}
	return &t, nil
}
