// Package service records activity logs and serves admin queries over them.
//
// Recording never fails the caller: store, stream and notification errors are
// logged and counted, then dropped.
package service

import (
	"context"
	"errors"
	"log/slog"
	"maps"
	"time"

	"github.com/mssola/useragent"

	"certhub/internal/activity/metrics"
	"certhub/internal/activity/models"
	id "certhub/pkg/domain"
	dErrors "certhub/pkg/domain-errors"
	"certhub/pkg/platform/sentinel"
	"certhub/pkg/requestcontext"
)

type Store interface {
	Append(ctx context.Context, r *models.Record) error
	FindByID(ctx context.Context, logID id.ActivityLogID) (*models.Record, error)
	List(ctx context.Context, f models.Filter) ([]*models.Record, int, error)
	DeleteBefore(ctx context.Context, cutoff time.Time) (int64, error)
	CountSince(ctx context.Context, category models.Category, status models.Status, since time.Time) (int, error)
}

// Notifier fans an alert out to administrators. Implementations return
// immediately and deliver in the background.
type Notifier interface {
	NotifyAdmins(ctx context.Context, r *models.Record)
}

// Sink streams stored records to downstream consumers.
type Sink interface {
	Publish(ctx context.Context, r *models.Record)
}

// Service is the activity logger.
type Service struct {
	store    Store
	notifier Notifier
	sink     Sink
	logger   *slog.Logger
	metrics  *metrics.Metrics
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

func WithNotifier(n Notifier) Option {
	return func(s *Service) {
		s.notifier = n
	}
}

func WithSink(sink Sink) Option {
	return func(s *Service) {
		s.sink = sink
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

func New(store Store, opts ...Option) *Service {
	s := &Service{store: store, logger: slog.New(slog.DiscardHandler)}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Log appends an activity record built from ev and the request metadata in
// ctx. Matching failures trigger an admin notification.
func (s *Service) Log(ctx context.Context, ev models.Event) {
	requestID := requestcontext.RequestID(ctx)
	userAgent := requestcontext.UserAgent(ctx)

	ev.Metadata = enrichMetadata(ev.Metadata, requestID, userAgent)
	record, err := models.NewRecord(ev, requestcontext.ClientIP(ctx), userAgent, requestcontext.Now(ctx))
	if err != nil {
		s.logger.ErrorContext(ctx, "invalid activity event",
			"action", ev.Action,
			"error", err,
			"request_id", requestID,
		)
		return
	}

	if err := s.store.Append(ctx, record); err != nil {
		s.metrics.IncWriteFailure()
		s.logger.ErrorContext(ctx, "failed to write activity log",
			"action", record.Action,
			"category", record.Category,
			"error", err,
			"request_id", requestID,
		)
		return
	}
	s.metrics.IncRecorded(string(record.Category), string(record.Status))

	if s.sink != nil {
		s.sink.Publish(ctx, record)
	}

	if record.ShouldAlert() {
		s.metrics.IncAlert(string(record.Category))
		if s.notifier != nil {
			s.notifier.NotifyAdmins(ctx, record)
		}
	}
}

// enrichMetadata copies meta and adds request correlation and parsed
// user-agent details without overwriting caller keys.
func enrichMetadata(meta map[string]any, requestID, userAgent string) map[string]any {
	out := make(map[string]any, len(meta)+4)
	maps.Copy(out, meta)
	if requestID != "" {
		if _, ok := out["request_id"]; !ok {
			out["request_id"] = requestID
		}
	}
	if userAgent != "" {
		if _, ok := out["browser"]; !ok {
			ua := useragent.New(userAgent)
			name, version := ua.Browser()
			out["browser"] = name
			if version != "" {
				out["browser_version"] = version
			}
			out["os"] = ua.OS()
			out["mobile"] = ua.Mobile()
			out["bot"] = ua.Bot()
		}
	}
	return out
}

// Page is one page of an admin listing.
type Page struct {
	Items  []*models.Record
	Total  int
	Limit  int
	Offset int
}

func requireAdmin(ctx context.Context) error {
	if requestcontext.Role(ctx) != id.RoleAdmin {
		return dErrors.New(dErrors.CodeForbidden, "admin access required")
	}
	return nil
}

// List returns a filtered page of activity logs. Admin only.
func (s *Service) List(ctx context.Context, f models.Filter) (*Page, error) {
	if err := requireAdmin(ctx); err != nil {
		return nil, err
	}
	f.Normalize()
	items, total, err := s.store.List(ctx, f)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list activity logs")
	}
	return &Page{Items: items, Total: total, Limit: f.Limit, Offset: f.Offset}, nil
}

// Get returns one activity log. Admin only.
func (s *Service) Get(ctx context.Context, logID id.ActivityLogID) (*models.Record, error) {
	if err := requireAdmin(ctx); err != nil {
		return nil, err
	}
	r, err := s.store.FindByID(ctx, logID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "activity log not found")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load activity log")
	}
	return r, nil
}

// ListForExport returns every matching record up to MaxExportRows. Admin only.
func (s *Service) ListForExport(ctx context.Context, f models.Filter) ([]*models.Record, error) {
	if err := requireAdmin(ctx); err != nil {
		return nil, err
	}
	f.Offset = 0
	f.Limit = models.MaxExportRows
	items, _, err := s.store.List(ctx, f)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to export activity logs")
	}
	return items, nil
}

// CountFailuresSince counts FAILURE records in category since t.
func (s *Service) CountFailuresSince(ctx context.Context, category models.Category, since time.Time) (int, error) {
	n, err := s.store.CountSince(ctx, category, models.StatusFailure, since)
	if err != nil {
		return 0, dErrors.Wrap(err, dErrors.CodeInternal, "failed to count activity logs")
	}
	return n, nil
}

// Purge deletes records older than retention and records the purge itself.
func (s *Service) Purge(ctx context.Context, retention time.Duration) (int64, error) {
	if retention <= 0 {
		return 0, dErrors.New(dErrors.CodeValidation, "retention must be positive")
	}
	cutoff := requestcontext.Now(ctx).Add(-retention)
	n, err := s.store.DeleteBefore(ctx, cutoff)
	if err != nil {
		return 0, dErrors.Wrap(err, dErrors.CodeInternal, "failed to purge activity logs")
	}
	s.metrics.AddPurged(n)
	s.logger.InfoContext(ctx, "activity logs purged",
		"deleted", n,
		"cutoff", cutoff,
	)
	if n > 0 {
		s.Log(ctx, models.Event{
			Action:      models.ActionActivityLogsPurged,
			Category:    models.CategorySystem,
			Status:      models.StatusSuccess,
			Description: "Activity log retention purge",
			Metadata:    map[string]any{"deleted": n, "cutoff": cutoff.Format(time.RFC3339)},
		})
	}
	return n, nil
}
