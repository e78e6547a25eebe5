package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"certhub/internal/admin/service"
	authhandler "certhub/internal/auth/handler"
	"certhub/internal/auth/models"
	id "certhub/pkg/domain"
	dErrors "certhub/pkg/domain-errors"
	"certhub/pkg/platform/httputil"
	"certhub/pkg/requestcontext"
)

type Service interface {
	CreateUser(ctx context.Context, cmd service.CreateUserCommand) (*service.CreatedUser, error)
	ListUsers(ctx context.Context, f models.Filter) (*service.Page, error)
	GetUser(ctx context.Context, userID id.UserID) (*models.User, error)
	UpdateUser(ctx context.Context, userID id.UserID, upd service.UserUpdate) (*models.User, error)
	DeleteUser(ctx context.Context, userID id.UserID) error
	Stats(ctx context.Context) (*service.Stats, error)
}

type Handler struct {
	service Service
	logger  *slog.Logger
}

func New(service Service, logger *slog.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

// Register mounts the admin console routes relative to /admin. Callers are
// expected to gate the group on the ADMIN role; the service checks again.
func (h *Handler) Register(r chi.Router) {
	r.Get("/users", h.HandleListUsers)
	r.Post("/users", h.HandleCreateUser)
	r.Get("/users/{id}", h.HandleGetUser)
	r.Put("/users/{id}", h.HandleUpdateUser)
	r.Delete("/users/{id}", h.HandleDeleteUser)
	r.Get("/stats", h.HandleStats)
}

func (h *Handler) HandleCreateUser(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	req, ok := httputil.DecodeAndPrepare[CreateUserRequest](w, r, h.logger, ctx, requestcontext.RequestID(ctx))
	if !ok {
		return
	}
	created, err := h.service.CreateUser(ctx, service.CreateUserCommand{
		Email:    req.Email,
		Name:     req.Name,
		Password: req.Password,
		Role:     req.parsedRole,
	})
	if err != nil {
		h.logError(ctx, "create user failed", err)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, CreatedUserResponse{
		UserResponse:      authhandler.ToUserResponse(created.User),
		TemporaryPassword: created.TemporaryPassword,
	})
}

func (h *Handler) HandleListUsers(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	q := r.URL.Query()
	f := models.Filter{Search: q.Get("search")}
	var err error
	if v := q.Get("role"); v != "" {
		if f.Role, err = id.ParseRole(v); err != nil {
			httputil.WriteError(w, err)
			return
		}
	}
	if v := q.Get("active"); v != "" {
		active, err := strconv.ParseBool(v)
		if err != nil {
			httputil.WriteError(w, dErrors.New(dErrors.CodeInvalidInput, "active must be true or false"))
			return
		}
		f.Active = &active
	}
	if f.Limit, f.Offset, err = httputil.Paging(r); err != nil {
		httputil.WriteError(w, err)
		return
	}
	page, err := h.service.ListUsers(ctx, f)
	if err != nil {
		h.logError(ctx, "list users failed", err)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toUserListResponse(page))
}

func (h *Handler) HandleGetUser(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID, err := id.ParseUserID(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	u, err := h.service.GetUser(ctx, userID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, authhandler.ToUserResponse(u))
}

func (h *Handler) HandleUpdateUser(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID, err := id.ParseUserID(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	req, ok := httputil.DecodeAndPrepare[UpdateUserRequest](w, r, h.logger, ctx, requestcontext.RequestID(ctx))
	if !ok {
		return
	}
	u, err := h.service.UpdateUser(ctx, userID, req.parsed)
	if err != nil {
		h.logError(ctx, "update user failed", err)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, authhandler.ToUserResponse(u))
}

func (h *Handler) HandleDeleteUser(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID, err := id.ParseUserID(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	if err := h.service.DeleteUser(ctx, userID); err != nil {
		h.logError(ctx, "delete user failed", err)
		httputil.WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) HandleStats(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	st, err := h.service.Stats(ctx)
	if err != nil {
		h.logError(ctx, "stats failed", err)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toStatsResponse(st))
}

func (h *Handler) logError(ctx context.Context, msg string, err error) {
	h.logger.ErrorContext(ctx, msg,
		"error", err,
		"request_id", requestcontext.RequestID(ctx),
	)
}
