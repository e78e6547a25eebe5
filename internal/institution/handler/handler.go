package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"certhub/internal/institution/models"
	"certhub/internal/institution/service"
	id "certhub/pkg/domain"
	"certhub/pkg/platform/httputil"
	"certhub/pkg/requestcontext"
)

// Service defines the institution operations the handler needs.
type Service interface {
	Create(ctx context.Context, cmd service.CreateCommand) (*models.Institution, error)
	Get(ctx context.Context, instID id.InstitutionID) (*models.Details, error)
	List(ctx context.Context, f models.Filter) (*service.Page, error)
	Update(ctx context.Context, instID id.InstitutionID, cmd service.UpdateCommand) (*models.Institution, error)
	ChangeStatus(ctx context.Context, instID id.InstitutionID, next models.Status) (*models.Institution, error)
	Delete(ctx context.Context, instID id.InstitutionID) error
	AddMember(ctx context.Context, instID id.InstitutionID, userID id.UserID, role models.MemberRole) (*models.Member, error)
	RemoveMember(ctx context.Context, instID id.InstitutionID, userID id.UserID) error
	ListMembers(ctx context.Context, instID id.InstitutionID) ([]*models.Member, error)
}

type Handler struct {
	service Service
	logger  *slog.Logger
}

func New(service Service, logger *slog.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

// Register mounts institution endpoints. Role checks live in the service.
func (h *Handler) Register(r chi.Router) {
	r.Get("/institutions", h.HandleList)
	r.Post("/institutions", h.HandleCreate)
	r.Get("/institutions/{id}", h.HandleGet)
	r.Put("/institutions/{id}", h.HandleUpdate)
	r.Delete("/institutions/{id}", h.HandleDelete)
	r.Put("/institutions/{id}/status", h.HandleChangeStatus)
	r.Get("/institutions/{id}/members", h.HandleListMembers)
	r.Post("/institutions/{id}/members", h.HandleAddMember)
	r.Delete("/institutions/{id}/members/{userID}", h.HandleRemoveMember)
}

func (h *Handler) HandleList(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	q := r.URL.Query()
	var f models.Filter
	var err error
	if v := q.Get("status"); v != "" {
		if f.Status, err = models.ParseStatus(v); err != nil {
			httputil.WriteError(w, err)
			return
		}
	}
	if v := q.Get("type"); v != "" {
		if f.Type, err = models.ParseType(v); err != nil {
			httputil.WriteError(w, err)
			return
		}
	}
	f.Search = q.Get("search")
	if f.Limit, f.Offset, err = httputil.Paging(r); err != nil {
		httputil.WriteError(w, err)
		return
	}

	page, err := h.service.List(ctx, f)
	if err != nil {
		h.logError(ctx, "list institutions failed", err)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toListResponse(page))
}

func (h *Handler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	req, ok := httputil.DecodeAndPrepare[CreateInstitutionRequest](w, r, h.logger, ctx, requestcontext.RequestID(ctx))
	if !ok {
		return
	}
	inst, err := h.service.Create(ctx, service.CreateCommand{
		Name:    req.Name,
		Type:    req.parsedType,
		Status:  req.parsedStatus,
		Profile: req.ProfileFields.toModel(),
	})
	if err != nil {
		h.logError(ctx, "create institution failed", err)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, toInstitutionResponse(inst))
}

func (h *Handler) HandleGet(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	instID, err := id.ParseInstitutionID(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	details, err := h.service.Get(ctx, instID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toDetailsResponse(details))
}

func (h *Handler) HandleUpdate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	instID, err := id.ParseInstitutionID(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	req, ok := httputil.DecodeAndPrepare[UpdateInstitutionRequest](w, r, h.logger, ctx, requestcontext.RequestID(ctx))
	if !ok {
		return
	}
	cmd := service.UpdateCommand{Name: req.Name, Type: req.parsedType}
	if req.Profile != nil {
		p := req.Profile.toModel()
		cmd.Profile = &p
	}
	inst, err := h.service.Update(ctx, instID, cmd)
	if err != nil {
		h.logError(ctx, "update institution failed", err)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toInstitutionResponse(inst))
}

func (h *Handler) HandleChangeStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	instID, err := id.ParseInstitutionID(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	req, ok := httputil.DecodeAndPrepare[ChangeStatusRequest](w, r, h.logger, ctx, requestcontext.RequestID(ctx))
	if !ok {
		return
	}
	inst, err := h.service.ChangeStatus(ctx, instID, req.parsed)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toInstitutionResponse(inst))
}

func (h *Handler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	instID, err := id.ParseInstitutionID(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	if err := h.service.Delete(ctx, instID); err != nil {
		h.logError(ctx, "delete institution failed", err)
		httputil.WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) HandleListMembers(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	instID, err := id.ParseInstitutionID(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	members, err := h.service.ListMembers(ctx, instID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	out := make([]MemberResponse, 0, len(members))
	for _, m := range members {
		out = append(out, toMemberResponse(m))
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"members": out})
}

func (h *Handler) HandleAddMember(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	instID, err := id.ParseInstitutionID(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	req, ok := httputil.DecodeAndPrepare[AddMemberRequest](w, r, h.logger, ctx, requestcontext.RequestID(ctx))
	if !ok {
		return
	}
	m, err := h.service.AddMember(ctx, instID, req.parsedUserID, req.parsedRole)
	if err != nil {
		h.logError(ctx, "add member failed", err)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, toMemberResponse(m))
}

func (h *Handler) HandleRemoveMember(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	instID, err := id.ParseInstitutionID(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	userID, err := id.ParseUserID(chi.URLParam(r, "userID"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	if err := h.service.RemoveMember(ctx, instID, userID); err != nil {
		h.logError(ctx, "remove member failed", err)
		httputil.WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) logError(ctx context.Context, msg string, err error) {
	h.logger.ErrorContext(ctx, msg,
		"error", err,
		"request_id", requestcontext.RequestID(ctx),
	)
}
