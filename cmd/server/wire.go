package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	activityadapters "certhub/internal/activity/adapters"
	activityhandler "certhub/internal/activity/handler"
	activitymetrics "certhub/internal/activity/metrics"
	activityservice "certhub/internal/activity/service"
	activitystore "certhub/internal/activity/store"
	"certhub/internal/admin/adapters"
	adminhandler "certhub/internal/admin/handler"
	adminservice "certhub/internal/admin/service"
	authhandler "certhub/internal/auth/handler"
	authservice "certhub/internal/auth/service"
	"certhub/internal/auth/store/revocation"
	userstore "certhub/internal/auth/store/user"
	"certhub/internal/certificate/anchor"
	certhandler "certhub/internal/certificate/handler"
	certmetrics "certhub/internal/certificate/metrics"
	certservice "certhub/internal/certificate/service"
	certstore "certhub/internal/certificate/store"
	httpapi "certhub/internal/http"
	insthandler "certhub/internal/institution/handler"
	instmetrics "certhub/internal/institution/metrics"
	instservice "certhub/internal/institution/service"
	inststore "certhub/internal/institution/store"
	jwttoken "certhub/internal/jwt_token"
	"certhub/internal/notification"
	"certhub/internal/notification/mailer"
	notifymetrics "certhub/internal/notification/metrics"
	"certhub/internal/platform/config"
	"certhub/internal/platform/database"
	"certhub/internal/platform/kafka"
	"certhub/internal/platform/redis"
	"certhub/internal/scheduler"
	supporthandler "certhub/internal/support/handler"
	supportmetrics "certhub/internal/support/metrics"
	supportservice "certhub/internal/support/service"
	supportstore "certhub/internal/support/store"
	"certhub/pkg/media"
	"certhub/pkg/platform/middleware/metadata"
	"certhub/pkg/platform/middleware/ratelimit"
	"certhub/pkg/platform/tx"
)

type userStore interface {
	authservice.UserStore
	adminservice.UserStore
	notification.Recipients
	adapters.UserCounter
}

type institutionStore interface {
	instservice.Store
	authservice.Memberships
	adapters.InstitutionCounter
}

type certificateStore interface {
	certservice.Store
	instservice.CertificateCounter
	adapters.CertificateCounter
}

type ticketStore interface {
	supportservice.Store
	adminservice.TicketCounter
}

type stores struct {
	users        userStore
	institutions institutionStore
	certificates certificateStore
	tickets      ticketStore
	activity     activityservice.Store
	tx           tx.Runner
}

type app struct {
	router    http.Handler
	storage   string
	scheduler *scheduler.Scheduler
	closers   []func(ctx context.Context)
}

func (a *app) close(ctx context.Context) {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i](ctx)
	}
}

func buildApp(ctx context.Context, cfg *config.Config, log *slog.Logger) (*app, error) {
	a := &app{storage: "memory"}
	var (
		s   stores
		db  *sql.DB
		err error
	)
	if cfg.Database.URL != "" {
		if db, err = database.Open(ctx, cfg.Database); err != nil {
			return nil, err
		}
		a.closers = append(a.closers, func(context.Context) { _ = db.Close() })
		if cfg.Database.AutoMigrate {
			if err := database.Migrate(ctx, db); err != nil {
				return nil, fmt.Errorf("migrate: %w", err)
			}
		}
		s = postgresStores(db)
		a.storage = "postgres"
	} else {
		log.Warn("DATABASE_URL not set; using in-memory stores")
		s = memoryStores()
	}

	revocations, purger, err := buildRevocations(ctx, cfg, db, a)
	if err != nil {
		return nil, err
	}

	var m notification.Mailer
	if cfg.SMTP.Enabled() {
		m = mailer.NewSMTP(cfg.SMTP, cfg.Notification.SendTimeout)
	}
	notifier := notification.New(s.users, m,
		notification.WithLogger(log),
		notification.WithMetrics(notifymetrics.New()),
		notification.WithSendTimeout(cfg.Notification.SendTimeout),
		notification.WithConcurrency(cfg.Notification.Concurrency),
		notification.WithBaseURL(cfg.BaseURL),
	)
	a.closers = append(a.closers, func(ctx context.Context) {
		if err := notifier.Shutdown(ctx); err != nil {
			log.Warn("notifier shutdown incomplete", "error", err)
		}
	})

	activityOpts := []activityservice.Option{
		activityservice.WithLogger(log),
		activityservice.WithNotifier(notifier),
		activityservice.WithMetrics(activitymetrics.New()),
	}
	if cfg.Kafka.Enabled() {
		producer, err := kafka.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.ActivityTopic, log)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, producer.Close)
		activityOpts = append(activityOpts, activityservice.WithSink(activityadapters.NewStreamSink(producer, log)))
	}
	activity := activityservice.New(s.activity, activityOpts...)

	mediaClient := media.New(cfg.Media, log)
	jwt := jwttoken.NewJWTService(cfg.Auth.JWTSigningKey, cfg.Auth.JWTIssuer, cfg.Auth.TokenTTL)

	certOpts := []certservice.Option{
		certservice.WithLogger(log),
		certservice.WithActivityLogger(activity),
		certservice.WithMetrics(certmetrics.New()),
		certservice.WithUploader(mediaClient),
	}
	if cfg.Anchor.Enabled() {
		certOpts = append(certOpts, certservice.WithAnchor(anchor.New(cfg.Anchor, log)))
	}
	certificates := certservice.New(s.certificates, s.institutions, s.users, certOpts...)

	institutions := instservice.New(s.institutions, s.users, s.certificates, s.tx,
		instservice.WithLogger(log),
		instservice.WithActivityLogger(activity),
		instservice.WithMetrics(instmetrics.New()),
	)
	auth := authservice.New(s.users, s.institutions, jwt, revocations,
		authservice.WithLogger(log),
		authservice.WithActivityLogger(activity),
	)
	support := supportservice.New(s.tickets, s.users,
		supportservice.WithLogger(log),
		supportservice.WithActivityLogger(activity),
		supportservice.WithMetrics(supportmetrics.New()),
		supportservice.WithUploader(mediaClient),
	)
	admin := adminservice.New(s.users, adminservice.StatsSources{
		Users:        adapters.NewUserTally(s.users),
		Institutions: adapters.NewInstitutionTally(s.institutions),
		Certificates: adapters.NewCertificateTally(s.certificates),
		Tickets:      s.tickets,
		Failures:     activity,
	}, adminservice.WithLogger(log), adminservice.WithActivityLogger(activity))

	if cfg.Scheduler.Enabled {
		sched := scheduler.New(log, scheduler.WithRegisterer(prometheus.DefaultRegisterer))
		targets := scheduler.Targets{Activity: activity, Certificates: certificates}
		if purger != nil {
			targets.Revocations = purger
		}
		if err := scheduler.RegisterJobs(sched, *cfg, targets); err != nil {
			return nil, err
		}
		a.scheduler = sched
		a.closers = append(a.closers, sched.Stop)
	}

	proxies, err := metadata.ParseTrustedProxies(cfg.RateLimit.TrustedProxies)
	if err != nil {
		return nil, err
	}
	var health httpapi.Pinger
	if db != nil {
		health = db
	}
	maxUpload := cfg.Server.MaxUploadBytes
	a.router = httpapi.NewRouter(httpapi.Deps{
		Handlers: httpapi.Handlers{
			Auth:         authhandler.New(auth, log),
			Certificates: certhandler.New(certificates, log, maxUpload),
			Institutions: insthandler.New(institutions, log),
			Support:      supporthandler.New(support, log, maxUpload),
			Admin:        adminhandler.New(admin, log),
			Activity:     activityhandler.New(activity, log),
		},
		Logger:         log,
		Tokens:         jwttoken.NewJWTServiceAdapter(jwt),
		Revocations:    revocation.NewChecker(revocations),
		TrustedProxies: proxies,
		VerifyLimiter:  ratelimit.NewPerIP(cfg.RateLimit.VerifyPerMinute, cfg.RateLimit.VerifyBurst, log),
		Metrics:        promhttp.Handler(),
		HTTPMetrics:    httpapi.NewMetrics(),
		Health:         health,
	})
	return a, nil
}

func postgresStores(db *sql.DB) stores {
	return stores{
		users:        userstore.NewPostgres(db),
		institutions: inststore.NewPostgres(db),
		certificates: certstore.NewPostgres(db),
		tickets:      supportstore.NewPostgres(db),
		activity:     activitystore.NewPostgres(db),
		tx:           tx.NewSQLRunner(db),
	}
}

func memoryStores() stores {
	return stores{
		users:        userstore.NewInMemory(),
		institutions: inststore.NewInMemory(),
		certificates: certstore.NewInMemory(),
		tickets:      supportstore.NewInMemory(),
		activity:     activitystore.NewInMemory(),
	}
}

// buildRevocations prefers Redis, then PostgreSQL, then memory. Only the
// PostgreSQL list needs the periodic purge.
func buildRevocations(ctx context.Context, cfg *config.Config, db *sql.DB, a *app) (revocation.List, *revocation.PostgresTRL, error) {
	if cfg.Redis.Enabled() {
		client, err := redis.New(ctx, cfg.Redis)
		if err != nil {
			return nil, nil, err
		}
		a.closers = append(a.closers, func(context.Context) { _ = client.Close() })
		return revocation.NewRedisTRL(client.Client), nil, nil
	}
	if db != nil {
		trl := revocation.NewPostgresTRL(db)
		return trl, trl, nil
	}
	if cfg.IsProduction() {
		return nil, nil, errors.New("a persistent token revocation list is required in production")
	}
	return revocation.NewInMemoryTRL(nil), nil, nil
}
