package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"certhub/internal/auth/models"
	"certhub/internal/auth/service"
	"certhub/pkg/platform/httputil"
	"certhub/pkg/requestcontext"
)

// Service defines the auth operations the handler needs.
type Service interface {
	Login(ctx context.Context, email, password string) (*service.LoginResult, error)
	Logout(ctx context.Context) error
	Me(ctx context.Context) (*service.Profile, error)
	UpdateProfile(ctx context.Context, name string) (*models.User, error)
	ChangePassword(ctx context.Context, current, next string) error
}

// Handler serves sign-in and self-service account endpoints.
type Handler struct {
	service Service
	logger  *slog.Logger
}

func New(service Service, logger *slog.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

// RegisterPublic mounts endpoints that do not need a token.
func (h *Handler) RegisterPublic(r chi.Router) {
	r.Post("/auth/login", h.HandleLogin)
}

// Register mounts endpoints for authenticated users.
func (h *Handler) Register(r chi.Router) {
	r.Post("/auth/logout", h.HandleLogout)
	r.Get("/user/me", h.HandleMe)
	r.Put("/user/profile", h.HandleUpdateProfile)
	r.Put("/user/password", h.HandleChangePassword)
}

// HandleLogin handles POST /auth/login.
func (h *Handler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	req, ok := httputil.DecodeAndPrepare[LoginRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}
	if req.Locale != "" {
		ctx = requestcontext.WithLocale(ctx, req.Locale)
	}

	res, err := h.service.Login(ctx, req.Email, req.Password)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toLoginResponse(res))
}

// HandleLogout handles POST /auth/logout.
func (h *Handler) HandleLogout(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if err := h.service.Logout(ctx); err != nil {
		h.logger.ErrorContext(ctx, "logout failed",
			"error", err,
			"request_id", requestcontext.RequestID(ctx),
		)
		httputil.WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HandleMe handles GET /user/me.
func (h *Handler) HandleMe(w http.ResponseWriter, r *http.Request) {
	p, err := h.service.Me(r.Context())
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toMeResponse(p))
}

// HandleUpdateProfile handles PUT /user/profile.
func (h *Handler) HandleUpdateProfile(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	req, ok := httputil.DecodeAndPrepare[UpdateProfileRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}
	u, err := h.service.UpdateProfile(ctx, req.Name)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, ToUserResponse(u))
}

// HandleChangePassword handles PUT /user/password.
func (h *Handler) HandleChangePassword(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	req, ok := httputil.DecodeAndPrepare[ChangePasswordRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}
	if err := h.service.ChangePassword(ctx, req.CurrentPassword, req.NewPassword); err != nil {
		httputil.WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
