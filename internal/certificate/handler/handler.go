package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"certhub/internal/certificate/models"
	"certhub/internal/certificate/service"
	id "certhub/pkg/domain"
	"certhub/pkg/platform/httputil"
	"certhub/pkg/requestcontext"
)

// DefaultMaxUploadBytes caps certificate files when no limit is configured.
const DefaultMaxUploadBytes = 10 << 20

// Service defines the certificate operations the handler needs.
type Service interface {
	Issue(ctx context.Context, cmd service.IssueCommand) (*models.Certificate, error)
	Get(ctx context.Context, certID id.CertificateID) (*models.Certificate, error)
	List(ctx context.Context, f models.Filter) (*service.Page, error)
	ListMine(ctx context.Context, f models.Filter) (*service.Page, error)
	Update(ctx context.Context, certID id.CertificateID, u models.Update) (*models.Certificate, error)
	Revoke(ctx context.Context, certID id.CertificateID, reason string) (*models.Certificate, error)
	Delete(ctx context.Context, certID id.CertificateID) error
	VerifyByID(ctx context.Context, verificationID string) (*models.VerificationResult, error)
	VerifyByFile(ctx context.Context, f service.File) (*models.VerificationResult, error)
}

type Handler struct {
	service        Service
	logger         *slog.Logger
	maxUploadBytes int64
}

func New(service Service, logger *slog.Logger, maxUploadBytes int64) *Handler {
	if maxUploadBytes <= 0 {
		maxUploadBytes = DefaultMaxUploadBytes
	}
	return &Handler{service: service, logger: logger, maxUploadBytes: maxUploadBytes}
}

// Register mounts the authenticated certificate endpoints. Role checks live
// in the service.
func (h *Handler) Register(r chi.Router) {
	r.Get("/certificates", h.HandleList)
	r.Post("/certificates", h.HandleIssue)
	r.Get("/certificates/{id}", h.HandleGet)
	r.Put("/certificates/{id}", h.HandleUpdate)
	r.Delete("/certificates/{id}", h.HandleDelete)
	r.Post("/certificates/{id}/revoke", h.HandleRevoke)
	r.Get("/user/certificates", h.HandleListMine)
}

// RegisterPublic mounts the anonymous verification endpoints, relative to
// the locale prefix.
func (h *Handler) RegisterPublic(r chi.Router) {
	r.Get("/verify/{verificationID}", h.HandleVerifyByID)
	r.Post("/verify", h.HandleVerifyByFile)
}

func parseFilter(r *http.Request) (models.Filter, error) {
	q := r.URL.Query()
	var f models.Filter
	var err error
	if v := q.Get("status"); v != "" {
		if f.Status, err = models.ParseStatus(v); err != nil {
			return f, err
		}
	}
	if v := q.Get("institution_id"); v != "" {
		instID, err := id.ParseInstitutionID(v)
		if err != nil {
			return f, err
		}
		f.InstitutionID = &instID
	}
	f.Search = q.Get("search")
	f.Limit, f.Offset, err = httputil.Paging(r)
	return f, err
}

func (h *Handler) HandleList(w http.ResponseWriter, r *http.Request) {
	h.list(w, r, h.service.List)
}

func (h *Handler) HandleListMine(w http.ResponseWriter, r *http.Request) {
	h.list(w, r, h.service.ListMine)
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request, fn func(context.Context, models.Filter) (*service.Page, error)) {
	ctx := r.Context()
	f, err := parseFilter(r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	page, err := fn(ctx, f)
	if err != nil {
		h.logError(ctx, "list certificates failed", err)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toListResponse(page))
}

// HandleIssue accepts JSON, or multipart form fields with an optional "file" part.
func (h *Handler) HandleIssue(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var (
		req  *IssueCertificateRequest
		file *service.File
	)
	if strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data") {
		upload, err := httputil.ReadFormFile(w, r, "file", h.maxUploadBytes, false)
		if err != nil {
			httputil.WriteError(w, err)
			return
		}
		if upload != nil {
			file = &service.File{Name: upload.Name, ContentType: upload.ContentType, Data: upload.Data}
		}
		req = issueRequestFromForm(r)
		if err := req.Validate(); err != nil {
			httputil.WriteError(w, err)
			return
		}
	} else {
		var ok bool
		req, ok = httputil.DecodeAndPrepare[IssueCertificateRequest](w, r, h.logger, ctx, requestcontext.RequestID(ctx))
		if !ok {
			return
		}
	}

	cert, err := h.service.Issue(ctx, service.IssueCommand{
		InstitutionID:  req.parsedInstitution,
		Title:          req.Title,
		Description:    req.Description,
		RecipientName:  req.RecipientName,
		RecipientEmail: req.RecipientEmail,
		IssueDate:      req.parsedIssueDate,
		ExpiryDate:     req.parsedExpiry,
		File:           file,
	})
	if err != nil {
		h.logError(ctx, "issue certificate failed", err)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, toCertificateResponse(cert))
}

func (h *Handler) HandleGet(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	certID, err := id.ParseCertificateID(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	cert, err := h.service.Get(ctx, certID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toCertificateResponse(cert))
}

func (h *Handler) HandleUpdate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	certID, err := id.ParseCertificateID(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	req, ok := httputil.DecodeAndPrepare[UpdateCertificateRequest](w, r, h.logger, ctx, requestcontext.RequestID(ctx))
	if !ok {
		return
	}
	cert, err := h.service.Update(ctx, certID, req.parsed)
	if err != nil {
		h.logError(ctx, "update certificate failed", err)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toCertificateResponse(cert))
}

func (h *Handler) HandleRevoke(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	certID, err := id.ParseCertificateID(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	req, ok := httputil.DecodeAndPrepare[RevokeRequest](w, r, h.logger, ctx, requestcontext.RequestID(ctx))
	if !ok {
		return
	}
	cert, err := h.service.Revoke(ctx, certID, req.Reason)
	if err != nil {
		h.logError(ctx, "revoke certificate failed", err)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toCertificateResponse(cert))
}

func (h *Handler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	certID, err := id.ParseCertificateID(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	if err := h.service.Delete(ctx, certID); err != nil {
		h.logError(ctx, "delete certificate failed", err)
		httputil.WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) HandleVerifyByID(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	res, err := h.service.VerifyByID(ctx, chi.URLParam(r, "verificationID"))
	if err != nil {
		h.logError(ctx, "verify by id failed", err)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toVerificationResponse(res))
}

func (h *Handler) HandleVerifyByFile(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	upload, err := httputil.ReadFormFile(w, r, "file", h.maxUploadBytes, true)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	res, err := h.service.VerifyByFile(ctx, service.File{
		Name:        upload.Name,
		ContentType: upload.ContentType,
		Data:        upload.Data,
	})
	if err != nil {
		h.logError(ctx, "verify by file failed", err)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toVerificationResponse(res))
}

func (h *Handler) logError(ctx context.Context, msg string, err error) {
	h.logger.ErrorContext(ctx, msg,
		"error", err,
		"request_id", requestcontext.RequestID(ctx),
	)
}
