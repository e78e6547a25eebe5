package service

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"

	activitymodels "certhub/internal/activity/models"
	dErrors "certhub/pkg/domain-errors"
	"certhub/pkg/requestcontext"
)

// FailureWindow is how far back the dashboard counts verification failures.
const FailureWindow = 24 * time.Hour

type Stats struct {
	UsersByRole          map[string]int
	InstitutionsByStatus map[string]int
	CertificatesByStatus map[string]int
	OpenTickets          int
	RecentVerifyFailures int
	GeneratedAt          time.Time
}

// Stats gathers the dashboard counters concurrently.
func (s *Service) Stats(ctx context.Context) (*Stats, error) {
	if err := requireAdmin(ctx); err != nil {
		return nil, err
	}
	now := requestcontext.Now(ctx)
	out := &Stats{GeneratedAt: now}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		out.UsersByRole, err = s.stats.Users.Tally(gctx)
		return err
	})
	g.Go(func() (err error) {
		out.InstitutionsByStatus, err = s.stats.Institutions.Tally(gctx)
		return err
	})
	g.Go(func() (err error) {
		out.CertificatesByStatus, err = s.stats.Certificates.Tally(gctx)
		return err
	})
	g.Go(func() (err error) {
		out.OpenTickets, err = s.stats.Tickets.CountOpen(gctx)
		return err
	})
	g.Go(func() (err error) {
		out.RecentVerifyFailures, err = s.stats.Failures.CountFailuresSince(gctx,
			activitymodels.CategoryVerification, now.Add(-FailureWindow))
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to compute stats")
	}
	return out, nil
}
