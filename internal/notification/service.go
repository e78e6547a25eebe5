// Package notification emails administrators about alerting activity.
//
// Delivery is best effort: each alert is sent in the background, detached
// from the request that triggered it, and failures are logged and dropped.
package notification

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/sync/errgroup"

	activitymodels "certhub/internal/activity/models"
	authmodels "certhub/internal/auth/models"
	"certhub/internal/notification/mailer"
	"certhub/internal/notification/metrics"
	id "certhub/pkg/domain"
	"certhub/pkg/requestcontext"
)

var tracer = otel.Tracer("certhub/internal/notification")

const (
	defaultSendTimeout = 30 * time.Second
	defaultConcurrency = 4
)

// Recipients lists accounts by role.
type Recipients interface {
	ListActiveByRole(ctx context.Context, role id.Role) ([]*authmodels.User, error)
}

type Mailer interface {
	Send(ctx context.Context, msg mailer.Message) error
}

type Service struct {
	recipients  Recipients
	mailer      Mailer
	baseURL     string
	sendTimeout time.Duration
	concurrency int
	logger      *slog.Logger
	metrics     *metrics.Metrics

	mu       sync.Mutex
	closed   bool
	inflight sync.WaitGroup
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

func WithSendTimeout(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.sendTimeout = d
		}
	}
}

// WithConcurrency bounds how many recipients are mailed at once.
func WithConcurrency(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.concurrency = n
		}
	}
}

// WithBaseURL sets the public URL used for links in emails.
func WithBaseURL(u string) Option {
	return func(s *Service) {
		s.baseURL = u
	}
}

// New returns a notifier. A nil mailer disables delivery; every alert is
// then counted as skipped.
func New(recipients Recipients, m Mailer, opts ...Option) *Service {
	s := &Service{
		recipients:  recipients,
		mailer:      m,
		sendTimeout: defaultSendTimeout,
		concurrency: defaultConcurrency,
		logger:      slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Enabled reports whether alerts are delivered at all.
func (s *Service) Enabled() bool {
	return s.mailer != nil
}

// NotifyAdmins emails every active admin about r and returns immediately.
func (s *Service) NotifyAdmins(ctx context.Context, r *activitymodels.Record) {
	if r == nil {
		return
	}
	if !s.Enabled() {
		s.metrics.IncSkipped()
		s.logger.DebugContext(ctx, "smtp not configured, skipping admin notification",
			"action", r.Action,
			"request_id", requestcontext.RequestID(ctx),
		)
		return
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		s.metrics.IncSkipped()
		s.logger.WarnContext(ctx, "notifier shut down, dropping admin notification",
			"action", r.Action,
		)
		return
	}
	s.inflight.Add(1)
	s.mu.Unlock()

	sendCtx, cancel := context.WithTimeout(requestcontext.Detach(ctx), s.sendTimeout)
	s.metrics.AddInFlight(1)
	go func() {
		defer s.inflight.Done()
		defer s.metrics.AddInFlight(-1)
		defer cancel()
		s.deliver(sendCtx, r)
	}()
}

// deliver renders the alert once and mails each admin with bounded
// concurrency. A failed recipient does not stop the others.
func (s *Service) deliver(ctx context.Context, r *activitymodels.Record) {
	ctx, span := tracer.Start(ctx, "notification.NotifyAdmins")
	defer span.End()
	span.SetAttributes(
		attribute.String("activity.action", r.Action),
		attribute.String("activity.category", string(r.Category)),
	)
	requestID := requestcontext.RequestID(ctx)

	admins, err := s.recipients.ListActiveByRole(ctx, id.RoleAdmin)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "load admins")
		s.logger.ErrorContext(ctx, "failed to load admin recipients",
			"error", err,
			"request_id", requestID,
		)
		return
	}
	if len(admins) == 0 {
		s.logger.WarnContext(ctx, "no active admins to notify",
			"action", r.Action,
			"request_id", requestID,
		)
		return
	}

	body, err := renderAlert(r, s.baseURL)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "render")
		s.logger.ErrorContext(ctx, "failed to render admin notification",
			"error", err,
			"request_id", requestID,
		)
		return
	}
	subject := subjectFor(r)
	span.SetAttributes(attribute.Int("notification.recipients", len(admins)))

	var (
		g      errgroup.Group
		failMu sync.Mutex
		failed int
	)
	g.SetLimit(s.concurrency)
	for _, admin := range admins {
		g.Go(func() error {
			err := s.mailer.Send(ctx, mailer.Message{To: admin.Email, Subject: subject, HTML: body})
			if err != nil {
				s.metrics.IncFailed()
				failMu.Lock()
				failed++
				failMu.Unlock()
				s.logger.WarnContext(ctx, "admin notification failed",
					"recipient_id", admin.ID.String(),
					"error", err,
					"request_id", requestID,
				)
				return nil
			}
			s.metrics.IncSent()
			return nil
		})
	}
	_ = g.Wait()

	if failed > 0 {
		span.SetStatus(codes.Error, "partial delivery")
	}
	s.logger.InfoContext(ctx, "admin notification sent",
		"action", r.Action,
		"recipients", len(admins),
		"failed", failed,
		"request_id", requestID,
	)
}

// Shutdown stops accepting alerts and waits for in-flight sends or ctx.
func (s *Service) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()

	done := make(chan struct{})
	go func() {
		s.inflight.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
