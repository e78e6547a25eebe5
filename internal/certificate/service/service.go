// Package service issues, manages and verifies certificates.
package service

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"log/slog"
	"time"

	activitymodels "certhub/internal/activity/models"
	authmodels "certhub/internal/auth/models"
	"certhub/internal/certificate/anchor"
	"certhub/internal/certificate/metrics"
	"certhub/internal/certificate/models"
	instmodels "certhub/internal/institution/models"
	id "certhub/pkg/domain"
	dErrors "certhub/pkg/domain-errors"
	"certhub/pkg/media"
	"certhub/pkg/platform/sentinel"
	"certhub/pkg/requestcontext"
	"certhub/pkg/secrets"
)

const (
	verificationIDAttempts = 5
	expirySweepBatch       = 500
	mediaSubfolder         = "certificates"
)

type Store interface {
	Create(ctx context.Context, c *models.Certificate) error
	FindByID(ctx context.Context, certID id.CertificateID) (*models.Certificate, error)
	FindByVerificationID(ctx context.Context, verificationID string) (*models.Certificate, error)
	FindByFileHash(ctx context.Context, hash string) (*models.Certificate, error)
	Update(ctx context.Context, c *models.Certificate) error
	Delete(ctx context.Context, certID id.CertificateID) error
	List(ctx context.Context, f models.Filter) ([]*models.Certificate, int, error)
	ListExpired(ctx context.Context, now time.Time, limit int) ([]*models.Certificate, error)
	MarkExpired(ctx context.Context, ids []id.CertificateID, now time.Time) (int64, error)
}

type Institutions interface {
	FindByID(ctx context.Context, instID id.InstitutionID) (*instmodels.Institution, error)
}

type Users interface {
	FindByID(ctx context.Context, userID id.UserID) (*authmodels.User, error)
	FindByEmail(ctx context.Context, email string) (*authmodels.User, error)
}

// Uploader stores certificate files on the media host.
type Uploader interface {
	Enabled() bool
	Upload(ctx context.Context, f media.File) (*media.Asset, error)
}

// Anchorer records file hashes on chain and re-checks them.
type Anchorer interface {
	Enabled() bool
	Network() string
	Anchor(ctx context.Context, hash string) (*anchor.Receipt, error)
	Verify(ctx context.Context, hash, txHash string) (bool, error)
}

type ActivityLogger interface {
	Log(ctx context.Context, ev activitymodels.Event)
}

type Service struct {
	store        Store
	institutions Institutions
	users        Users
	uploader     Uploader
	anchor       Anchorer
	activity     ActivityLogger
	logger       *slog.Logger
	metrics      *metrics.Metrics
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

func WithAnchor(a Anchorer) Option {
	return func(s *Service) {
		s.anchor = a
	}
}

func New(store Store, institutions Institutions, users Users, opts ...Option) *Service {
	s := &Service{
		store:        store,
		institutions: institutions,
		users:        users,
		logger:       slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// File is an uploaded certificate document.
type File struct {
	Name        string
	ContentType string
	Data        []byte
}

// IssueCommand carries a new certificate. InstitutionID may be left empty by
// institution users; it defaults to their own institution.
type IssueCommand struct {
	InstitutionID  id.InstitutionID
	Title          string
	Description    string
	RecipientName  string
	RecipientEmail string
	IssueDate      time.Time
	ExpiryDate     *time.Time
	File           *File
}

// Page is one page of a certificate listing.
type Page struct {
	Items  []*models.Certificate
	Total  int
	Limit  int
	Offset int
}

// HashFile returns the lower-case hex SHA-256 digest of data.
func HashFile(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// Issue creates a certificate. Admins may issue for any institution;
// institution users only for their own, and only while it is ACTIVE.
func (s *Service) Issue(ctx context.Context, cmd IssueCommand) (*models.Certificate, error) {
	instID, err := s.issuingInstitution(ctx, cmd.InstitutionID)
	if err != nil {
		return nil, err
	}
	inst, err := s.institutions.FindByID(ctx, instID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "institution not found")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load institution")
	}
	if !inst.IsActive() {
		return nil, dErrors.New(dErrors.CodeForbidden, "institution is not active")
	}

	now := requestcontext.Now(ctx)
	issuer := requestcontext.UserID(ctx)
	params := models.IssueParams{
		Title:          cmd.Title,
		Description:    cmd.Description,
		RecipientName:  cmd.RecipientName,
		RecipientEmail: cmd.RecipientEmail,
		InstitutionID:  instID,
		IssueDate:      cmd.IssueDate,
		ExpiryDate:     cmd.ExpiryDate,
	}
	if !issuer.IsNil() {
		params.IssuerID = &issuer
	}

	vid, err := secrets.GenerateVerificationID()
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to generate verification id")
	}
	cert, err := models.NewCertificate(params, vid, now)
	if err != nil {
		return nil, dErrors.New(dErrors.CodeValidation, err.Error())
	}
	s.linkRecipient(ctx, cert)
	if cmd.File != nil {
		if err := s.attachFile(ctx, cert, *cmd.File, now); err != nil {
			return nil, err
		}
	}
	if cert.FileHash != "" && s.anchorEnabled() {
		cert.StartAnchor(s.anchor.Network(), now)
	}

	for attempt := 1; ; attempt++ {
		err := s.store.Create(ctx, cert)
		if err == nil {
			break
		}
		if !errors.Is(err, sentinel.ErrConflict) || attempt >= verificationIDAttempts {
			return nil, translateWriteErr(err, "failed to issue certificate")
		}
		if cert.VerificationID, err = secrets.GenerateVerificationID(); err != nil {
			return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to generate verification id")
		}
	}

	s.metrics.IncIssued()
	s.logActivity(ctx, cert, activitymodels.ActionCertificateIssued, activitymodels.CategoryCertificate,
		activitymodels.StatusSuccess, "Certificate issued",
		map[string]any{"verification_id": cert.VerificationID, "title": cert.Title})
	s.logger.InfoContext(ctx, "certificate issued",
		"certificate_id", cert.ID.String(),
		"institution_id", instID.String(),
		"request_id", requestcontext.RequestID(ctx),
	)

	if cert.AnchorStatus == models.AnchorPending {
		s.anchorHash(ctx, cert)
	}
	return cert, nil
}

func (s *Service) anchorEnabled() bool {
	return s.anchor != nil && s.anchor.Enabled()
}

func (s *Service) issuingInstitution(ctx context.Context, requested id.InstitutionID) (id.InstitutionID, error) {
	switch requestcontext.Role(ctx) {
	case id.RoleAdmin:
		if requested.IsNil() {
			return id.InstitutionID{}, dErrors.New(dErrors.CodeValidation, "institution_id is required")
		}
		return requested, nil
	case id.RoleInstitution:
		own := requestcontext.InstitutionID(ctx)
		if own.IsNil() {
			return id.InstitutionID{}, dErrors.New(dErrors.CodeForbidden, "no institution associated with this account")
		}
		if !requested.IsNil() && requested != own {
			return id.InstitutionID{}, dErrors.New(dErrors.CodeForbidden, "cannot issue for another institution")
		}
		return own, nil
	}
	return id.InstitutionID{}, dErrors.New(dErrors.CodeForbidden, "not allowed to issue certificates")
}

// linkRecipient ties the certificate to an existing account with the recipient's email.
func (s *Service) linkRecipient(ctx context.Context, c *models.Certificate) {
	c.RecipientUserID = nil
	if s.users == nil {
		return
	}
	u, err := s.users.FindByEmail(ctx, c.RecipientEmail)
	if err != nil {
		if !errors.Is(err, sentinel.ErrNotFound) {
			s.logger.WarnContext(ctx, "recipient lookup failed", "error", err)
		}
		return
	}
	c.RecipientUserID = &u.ID
}

func (s *Service) attachFile(ctx context.Context, c *models.Certificate, f File, now time.Time) error {
	if len(f.Data) == 0 {
		return dErrors.New(dErrors.CodeValidation, "certificate file is empty")
	}
	hash := HashFile(f.Data)
	url := ""
	if s.uploader != nil && s.uploader.Enabled() {
		asset, err := s.uploader.Upload(ctx, media.File{
			Name:        f.Name,
			ContentType: f.ContentType,
			Data:        f.Data,
			Subfolder:   mediaSubfolder,
		})
		if err != nil {
			return dErrors.Wrap(err, dErrors.CodeUnavailable, "failed to upload certificate file")
		}
		url = asset.URL
	} else {
		s.logger.WarnContext(ctx, "media host not configured; storing file hash only",
			"file_name", f.Name,
		)
	}
	c.AttachFile(url, hash, now)
	return nil
}

// anchorHash records the file hash on chain. Failures leave the certificate
// issued with a FAILED anchor.
func (s *Service) anchorHash(ctx context.Context, c *models.Certificate) {
	receipt, err := s.anchor.Anchor(ctx, c.FileHash)
	now := requestcontext.Now(ctx)
	if err != nil {
		c.FailAnchor(now)
		s.metrics.IncAnchor("anchor", "failure")
		s.logger.ErrorContext(ctx, "blockchain anchor failed",
			"certificate_id", c.ID.String(),
			"error", err,
		)
		s.logActivity(ctx, c, activitymodels.ActionBlockchainAnchor, activitymodels.CategoryBlockchain,
			activitymodels.StatusFailure, "Blockchain anchoring failed",
			map[string]any{"network": c.AnchorNetwork, "error": err.Error()})
	} else {
		c.ConfirmAnchor(receipt.TxHash, receipt.AnchoredAt, now)
		c.AnchorNetwork = receipt.Network
		s.metrics.IncAnchor("anchor", "success")
		s.logActivity(ctx, c, activitymodels.ActionBlockchainAnchor, activitymodels.CategoryBlockchain,
			activitymodels.StatusSuccess, "Certificate hash anchored",
			map[string]any{"network": receipt.Network, "tx_hash": receipt.TxHash})
	}
	if err := s.store.Update(ctx, c); err != nil {
		s.logger.ErrorContext(ctx, "failed to persist anchor result",
			"certificate_id", c.ID.String(),
			"error", err,
		)
	}
}

// Get returns a certificate the caller is allowed to see.
func (s *Service) Get(ctx context.Context, certID id.CertificateID) (*models.Certificate, error) {
	c, err := s.load(ctx, certID)
	if err != nil {
		return nil, err
	}
	if err := s.authorizeView(ctx, c); err != nil {
		return nil, err
	}
	return c, nil
}

// List scopes the listing by role: admins see everything, institution users
// their institution, and everyone else the certificates issued to them.
func (s *Service) List(ctx context.Context, f models.Filter) (*Page, error) {
	f.Normalize()
	f.Owner = nil
	switch requestcontext.Role(ctx) {
	case id.RoleAdmin:
	case id.RoleInstitution:
		own := requestcontext.InstitutionID(ctx)
		if own.IsNil() {
			return &Page{Items: []*models.Certificate{}, Limit: f.Limit, Offset: f.Offset}, nil
		}
		f.InstitutionID = &own
	default:
		return s.ListMine(ctx, f)
	}
	return s.list(ctx, f)
}

// ListMine lists certificates issued to the caller, by account or email.
func (s *Service) ListMine(ctx context.Context, f models.Filter) (*Page, error) {
	f.Normalize()
	owner, err := s.owner(ctx)
	if err != nil {
		return nil, err
	}
	f.InstitutionID = nil
	f.Owner = owner
	return s.list(ctx, f)
}

func (s *Service) list(ctx context.Context, f models.Filter) (*Page, error) {
	items, total, err := s.store.List(ctx, f)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list certificates")
	}
	if items == nil {
		items = []*models.Certificate{}
	}
	return &Page{Items: items, Total: total, Limit: f.Limit, Offset: f.Offset}, nil
}

func (s *Service) owner(ctx context.Context) (*models.Owner, error) {
	userID := requestcontext.UserID(ctx)
	if userID.IsNil() {
		return nil, dErrors.New(dErrors.CodeUnauthorized, "authentication required")
	}
	u, err := s.users.FindByID(ctx, userID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeUnauthorized, "user no longer exists")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load user")
	}
	return &models.Owner{UserID: u.ID, Email: u.Email}, nil
}

// Update edits the mutable fields of a certificate.
func (s *Service) Update(ctx context.Context, certID id.CertificateID, u models.Update) (*models.Certificate, error) {
	c, err := s.load(ctx, certID)
	if err != nil {
		return nil, err
	}
	if err := authorizeManage(ctx, c); err != nil {
		return nil, err
	}
	previousEmail := c.RecipientEmail
	if err := c.ApplyUpdate(u, requestcontext.Now(ctx)); err != nil {
		return nil, dErrors.New(dErrors.CodeValidation, err.Error())
	}
	if c.RecipientEmail != previousEmail {
		s.linkRecipient(ctx, c)
	}
	if err := s.store.Update(ctx, c); err != nil {
		return nil, translateWriteErr(err, "failed to update certificate")
	}
	s.logActivity(ctx, c, activitymodels.ActionCertificateUpdated, activitymodels.CategoryCertificate,
		activitymodels.StatusSuccess, "Certificate updated", nil)
	return c, nil
}

// Revoke marks a certificate revoked with the given reason.
func (s *Service) Revoke(ctx context.Context, certID id.CertificateID, reason string) (*models.Certificate, error) {
	c, err := s.load(ctx, certID)
	if err != nil {
		return nil, err
	}
	if err := authorizeManage(ctx, c); err != nil {
		return nil, err
	}
	if err := c.Revoke(reason, requestcontext.Now(ctx)); err != nil {
		return nil, dErrors.New(dErrors.CodeValidation, err.Error())
	}
	if err := s.store.Update(ctx, c); err != nil {
		return nil, translateWriteErr(err, "failed to revoke certificate")
	}
	s.metrics.IncRevoked()
	s.logActivity(ctx, c, activitymodels.ActionCertificateRevoked, activitymodels.CategoryCertificate,
		activitymodels.StatusSuccess, "Certificate revoked",
		map[string]any{"reason": c.RevocationReason})
	s.logger.InfoContext(ctx, "certificate revoked",
		"certificate_id", c.ID.String(),
		"request_id", requestcontext.RequestID(ctx),
	)
	return c, nil
}

// Delete removes a certificate. Admin only.
func (s *Service) Delete(ctx context.Context, certID id.CertificateID) error {
	if requestcontext.Role(ctx) != id.RoleAdmin {
		return dErrors.New(dErrors.CodeForbidden, "admin access required")
	}
	c, err := s.load(ctx, certID)
	if err != nil {
		return err
	}
	if err := s.store.Delete(ctx, certID); err != nil {
		return translateWriteErr(err, "failed to delete certificate")
	}
	s.logActivity(ctx, c, activitymodels.ActionCertificateDeleted, activitymodels.CategoryCertificate,
		activitymodels.StatusSuccess, "Certificate deleted",
		map[string]any{"verification_id": c.VerificationID})
	return nil
}

// ExpireDue marks every ACTIVE certificate whose expiry date has passed as
// EXPIRED and returns how many changed.
func (s *Service) ExpireDue(ctx context.Context) (int, error) {
	now := requestcontext.Now(ctx)
	total := 0
	for {
		due, err := s.store.ListExpired(ctx, now, expirySweepBatch)
		if err != nil {
			return total, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list expired certificates")
		}
		if len(due) == 0 {
			break
		}
		ids := make([]id.CertificateID, len(due))
		for i, c := range due {
			ids[i] = c.ID
		}
		n, err := s.store.MarkExpired(ctx, ids, now)
		if err != nil {
			return total, dErrors.Wrap(err, dErrors.CodeInternal, "failed to mark certificates expired")
		}
		total += int(n)
		for _, c := range due {
			s.logActivity(ctx, c, activitymodels.ActionCertificateExpired, activitymodels.CategoryCertificate,
				activitymodels.StatusSuccess, "Certificate expired",
				map[string]any{"expiry_date": c.ExpiryDate.Format(time.RFC3339)})
		}
		if len(due) < expirySweepBatch || n == 0 {
			break
		}
	}
	s.metrics.AddExpired(total)
	if total > 0 {
		s.logger.InfoContext(ctx, "certificates expired", "count", total)
	}
	return total, nil
}

func (s *Service) authorizeView(ctx context.Context, c *models.Certificate) error {
	switch requestcontext.Role(ctx) {
	case id.RoleAdmin:
		return nil
	case id.RoleInstitution:
		if requestcontext.InstitutionID(ctx) == c.InstitutionID {
			return nil
		}
	}
	userID := requestcontext.UserID(ctx)
	if userID.IsNil() {
		return dErrors.New(dErrors.CodeUnauthorized, "authentication required")
	}
	if c.RecipientUserID != nil && *c.RecipientUserID == userID {
		return nil
	}
	owner, err := s.owner(ctx)
	if err != nil {
		return err
	}
	if owner.Email == c.RecipientEmail {
		return nil
	}
	return dErrors.New(dErrors.CodeForbidden, "not allowed to view this certificate")
}

func authorizeManage(ctx context.Context, c *models.Certificate) error {
	switch requestcontext.Role(ctx) {
	case id.RoleAdmin:
		return nil
	case id.RoleInstitution:
		if requestcontext.InstitutionID(ctx) == c.InstitutionID {
			return nil
		}
		return dErrors.New(dErrors.CodeForbidden, "certificate belongs to another institution")
	}
	return dErrors.New(dErrors.CodeForbidden, "not allowed to manage certificates")
}

func (s *Service) load(ctx context.Context, certID id.CertificateID) (*models.Certificate, error) {
	c, err := s.store.FindByID(ctx, certID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "certificate not found")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load certificate")
	}
	return c, nil
}

func translateWriteErr(err error, msg string) error {
	switch {
	case errors.Is(err, sentinel.ErrNotFound):
		return dErrors.New(dErrors.CodeNotFound, "certificate not found")
	case errors.Is(err, sentinel.ErrConflict):
		return dErrors.New(dErrors.CodeConflict, "verification id already in use")
	}
	return dErrors.Wrap(err, dErrors.CodeInternal, msg)
}

func (s *Service) logActivity(ctx context.Context, c *models.Certificate, action string, category activitymodels.Category,
	status activitymodels.Status, description string, meta map[string]any) {
	if s.activity == nil {
		return
	}
	actor := requestcontext.UserID(ctx)
	var actorRef *id.UserID
	if !actor.IsNil() {
		actorRef = &actor
	}
	ev := activitymodels.Event{
		Action:      action,
		Category:    category,
		Status:      status,
		UserID:      actorRef,
		Description: description,
		Metadata:    meta,
	}
	if c != nil {
		certID, instID := c.ID, c.InstitutionID
		ev.CertificateID = &certID
		ev.InstitutionID = &instID
	}
	s.activity.Log(ctx, ev)
}
