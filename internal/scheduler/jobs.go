package scheduler

import (
	"context"
	"time"

	"certhub/internal/platform/config"
)

const (
	JobActivityRetention = "activity-retention"
	JobCertificateExpiry = "certificate-expiry"
	JobTokenCleanup      = "token-revocation-cleanup"

	tokenCleanupSpec = "@hourly"
)

type ActivityPurger interface {
	Purge(ctx context.Context, retention time.Duration) (int64, error)
}

type CertificateExpirer interface {
	ExpireDue(ctx context.Context) (int, error)
}

type RevocationPurger interface {
	PurgeExpired(ctx context.Context) (int64, error)
}

// Targets are the services the maintenance jobs act on. Revocations is
// optional; only the PostgreSQL revocation list needs cleaning.
type Targets struct {
	Activity     ActivityPurger
	Certificates CertificateExpirer
	Revocations  RevocationPurger
}

// RegisterJobs adds the maintenance jobs configured in cfg.
func RegisterJobs(s *Scheduler, cfg config.Config, t Targets) error {
	retention := time.Duration(cfg.Activity.RetentionDays) * 24 * time.Hour
	if err := s.Add(JobActivityRetention, cfg.Scheduler.RetentionSpec, func(ctx context.Context) (int64, error) {
		return t.Activity.Purge(ctx, retention)
	}); err != nil {
		return err
	}
	if err := s.Add(JobCertificateExpiry, cfg.Scheduler.ExpirySweepSpec, func(ctx context.Context) (int64, error) {
		n, err := t.Certificates.ExpireDue(ctx)
		return int64(n), err
	}); err != nil {
		return err
	}
	if t.Revocations != nil {
		if err := s.Add(JobTokenCleanup, tokenCleanupSpec, t.Revocations.PurgeExpired); err != nil {
			return err
		}
	}
	return nil
}
