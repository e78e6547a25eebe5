package service

import (
	"context"
	"errors"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	activitymodels "certhub/internal/activity/models"
	"certhub/internal/certificate/models"
	dErrors "certhub/pkg/domain-errors"
	"certhub/pkg/platform/sentinel"
	"certhub/pkg/requestcontext"
	"certhub/pkg/secrets"
)

var tracer = otel.Tracer("certhub/internal/certificate")

const (
	methodID   = "id"
	methodFile = "file"
)

// VerifyByID looks a certificate up by its public verification ID. An
// unknown ID is a valid answer (NOT_FOUND), not an error.
func (s *Service) VerifyByID(ctx context.Context, verificationID string) (*models.VerificationResult, error) {
	vid := secrets.NormalizeVerificationID(verificationID)
	if vid == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "verification id is required")
	}
	ctx, span := tracer.Start(ctx, "certificate.VerifyByID")
	defer span.End()
	span.SetAttributes(attribute.String("certificate.verification_id", vid))

	start := time.Now()
	defer func() { s.metrics.ObserveVerify(methodID, time.Since(start).Seconds()) }()

	c, err := s.store.FindByVerificationID(ctx, vid)
	return s.verify(ctx, c, err, methodID, activitymodels.ActionVerifyByID, map[string]any{"verification_id": vid})
}

// VerifyByFile hashes the uploaded document and looks up the certificate
// issued with that file.
func (s *Service) VerifyByFile(ctx context.Context, f File) (*models.VerificationResult, error) {
	if len(f.Data) == 0 {
		return nil, dErrors.New(dErrors.CodeValidation, "file is required")
	}
	ctx, span := tracer.Start(ctx, "certificate.VerifyByFile")
	defer span.End()
	hash := HashFile(f.Data)
	span.SetAttributes(attribute.String("certificate.file_hash", hash))

	start := time.Now()
	defer func() { s.metrics.ObserveVerify(methodFile, time.Since(start).Seconds()) }()

	c, err := s.store.FindByFileHash(ctx, hash)
	return s.verify(ctx, c, err, methodFile, activitymodels.ActionVerifyByFile,
		map[string]any{"file_hash": hash, "file_name": f.Name})
}

func (s *Service) verify(ctx context.Context, c *models.Certificate, lookupErr error, method, action string,
	meta map[string]any) (*models.VerificationResult, error) {
	now := requestcontext.Now(ctx)
	span := trace.SpanFromContext(ctx)

	if lookupErr != nil {
		if !errors.Is(lookupErr, sentinel.ErrNotFound) {
			span.RecordError(lookupErr)
			span.SetStatus(codes.Error, "lookup")
			return nil, dErrors.Wrap(lookupErr, dErrors.CodeInternal, "failed to look up certificate")
		}
		s.metrics.IncVerification(method, string(models.ReasonNotFound))
		s.logActivity(ctx, nil, action, activitymodels.CategoryVerification, activitymodels.StatusFailure,
			"Certificate not found during verification", meta)
		return &models.VerificationResult{Valid: false, Reason: models.ReasonNotFound, CheckedAt: now}, nil
	}

	result := &models.VerificationResult{
		Certificate: s.summarize(ctx, c, now),
		CheckedAt:   now,
	}
	switch c.EffectiveStatus(now) {
	case models.StatusRevoked:
		result.Reason = models.ReasonRevoked
	case models.StatusExpired:
		result.Reason = models.ReasonExpired
	default:
		result.Valid = true
		result.Reason = models.ReasonValid
	}
	result.Blockchain = s.checkAnchor(ctx, c)

	span.SetAttributes(
		attribute.Bool("verification.valid", result.Valid),
		attribute.String("verification.reason", string(result.Reason)),
	)
	s.metrics.IncVerification(method, string(result.Reason))

	meta["verification_id"] = c.VerificationID
	meta["reason"] = string(result.Reason)
	if result.Valid {
		s.logActivity(ctx, c, action, activitymodels.CategoryVerification, activitymodels.StatusSuccess,
			"Certificate verified", meta)
	} else {
		s.logActivity(ctx, c, action, activitymodels.CategoryVerification, activitymodels.StatusWarning,
			"Certificate is not valid", meta)
	}
	return result, nil
}

func (s *Service) summarize(ctx context.Context, c *models.Certificate, now time.Time) *models.Summary {
	sum := &models.Summary{
		VerificationID:   c.VerificationID,
		Title:            c.Title,
		RecipientName:    c.RecipientName,
		IssueDate:        c.IssueDate,
		ExpiryDate:       c.ExpiryDate,
		Status:           c.EffectiveStatus(now),
		RevocationReason: c.RevocationReason,
	}
	inst, err := s.institutions.FindByID(ctx, c.InstitutionID)
	if err != nil {
		s.logger.WarnContext(ctx, "institution lookup failed during verification",
			"institution_id", c.InstitutionID.String(),
			"error", err,
		)
		return sum
	}
	sum.InstitutionName = inst.Name
	return sum
}

// checkAnchor re-checks a confirmed anchor. Mismatches and anchor errors are
// recorded as blockchain failures; they do not change Valid.
func (s *Service) checkAnchor(ctx context.Context, c *models.Certificate) *models.AnchorCheck {
	if c.AnchorStatus == "" || c.AnchorStatus == models.AnchorNone {
		return nil
	}
	check := &models.AnchorCheck{
		Status:     c.AnchorStatus,
		Network:    c.AnchorNetwork,
		TxHash:     c.AnchorTxHash,
		AnchoredAt: c.AnchoredAt,
	}
	if !c.IsAnchored() || !s.anchorEnabled() {
		return check
	}

	ok, err := s.anchor.Verify(ctx, c.FileHash, c.AnchorTxHash)
	check.Verified = &ok
	if err == nil && ok {
		s.metrics.IncAnchor("verify", "success")
		return check
	}

	s.metrics.IncAnchor("verify", "failure")
	meta := map[string]any{"network": c.AnchorNetwork, "tx_hash": c.AnchorTxHash}
	description := "Blockchain record does not match certificate file"
	if err != nil {
		meta["error"] = err.Error()
		description = "Blockchain verification failed"
		s.logger.ErrorContext(ctx, "anchor re-check failed",
			"certificate_id", c.ID.String(),
			"error", err,
		)
	}
	s.logActivity(ctx, c, activitymodels.ActionBlockchainVerify, activitymodels.CategoryBlockchain,
		activitymodels.StatusFailure, description, meta)
	return check
}
