// Package scheduler runs the periodic maintenance jobs: activity log
// retention, certificate expiry and token revocation cleanup.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/robfig/cron/v3"

	"certhub/pkg/requestcontext"
)

// DefaultJobTimeout bounds a single job run.
const DefaultJobTimeout = 5 * time.Minute

// JobFunc performs one run and reports how many items it touched.
type JobFunc func(ctx context.Context) (int64, error)

type job struct {
	name    string
	spec    string
	run     JobFunc
	entryID cron.EntryID
}

// JobInfo describes a registered job.
type JobInfo struct {
	Name    string
	Spec    string
	NextRun time.Time
	LastRun time.Time
}

type Scheduler struct {
	cron    *cron.Cron
	logger  *slog.Logger
	timeout time.Duration
	runs    *prometheus.CounterVec

	mu   sync.Mutex
	jobs map[string]*job
}

type Option func(*Scheduler)

func WithTimeout(d time.Duration) Option {
	return func(s *Scheduler) {
		s.timeout = d
	}
}

// WithRegisterer records job outcomes on reg.
func WithRegisterer(reg prometheus.Registerer) Option {
	return func(s *Scheduler) {
		s.runs = promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "certhub_scheduler_runs_total",
			Help: "Scheduled job runs, by job and result",
		}, []string{"job", "result"})
	}
}

func New(logger *slog.Logger, opts ...Option) *Scheduler {
	s := &Scheduler{
		cron:    cron.New(),
		logger:  logger,
		timeout: DefaultJobTimeout,
		jobs:    make(map[string]*job),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Add registers fn under name with a standard five-field cron spec.
func (s *Scheduler) Add(name, spec string, fn JobFunc) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.jobs[name]; ok {
		return fmt.Errorf("job %q already registered", name)
	}
	j := &job{name: name, spec: spec, run: fn}
	entryID, err := s.cron.AddFunc(spec, func() {
		_, _ = s.execute(context.Background(), j)
	})
	if err != nil {
		return fmt.Errorf("invalid cron expression %q for %s: %w", spec, name, err)
	}
	j.entryID = entryID
	s.jobs[name] = j
	s.logger.Debug("registered scheduled job", "job", name, "schedule", spec)
	return nil
}

// Start runs the cron loop in the background.
func (s *Scheduler) Start() {
	s.cron.Start()
	s.logger.Info("scheduler started", "jobs", len(s.cron.Entries()))
}

// Stop stops scheduling and waits for running jobs, or until ctx is done.
func (s *Scheduler) Stop(ctx context.Context) {
	done := s.cron.Stop()
	select {
	case <-done.Done():
		s.logger.Info("scheduler stopped")
	case <-ctx.Done():
		s.logger.Warn("scheduler stop timed out; jobs still running")
	}
}

// RunNow executes a registered job immediately, outside its schedule.
func (s *Scheduler) RunNow(ctx context.Context, name string) (int64, error) {
	s.mu.Lock()
	j, ok := s.jobs[name]
	s.mu.Unlock()
	if !ok {
		return 0, fmt.Errorf("job not found: %s", name)
	}
	return s.execute(ctx, j)
}

func (s *Scheduler) List() []JobInfo {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]JobInfo, 0, len(s.jobs))
	for _, j := range s.jobs {
		entry := s.cron.Entry(j.entryID)
		out = append(out, JobInfo{Name: j.name, Spec: j.spec, NextRun: entry.Next, LastRun: entry.Prev})
	}
	sort.Slice(out, func(i, k int) bool { return out[i].Name < out[k].Name })
	return out
}

func (s *Scheduler) execute(parent context.Context, j *job) (int64, error) {
	ctx, cancel := context.WithTimeout(parent, s.timeout)
	defer cancel()
	runID := "job-" + uuid.NewString()
	ctx = requestcontext.WithRequestID(ctx, runID)

	start := time.Now()
	n, err := j.run(ctx)
	if err != nil {
		s.count(j.name, "failure")
		s.logger.ErrorContext(ctx, "scheduled job failed",
			"job", j.name,
			"run_id", runID,
			"duration", time.Since(start),
			"error", err,
		)
		return n, err
	}
	s.count(j.name, "success")
	s.logger.InfoContext(ctx, "scheduled job finished",
		"job", j.name,
		"run_id", runID,
		"affected", n,
		"duration", time.Since(start),
	)
	return n, nil
}

func (s *Scheduler) count(name, result string) {
	if s.runs != nil {
		s.runs.WithLabelValues(name, result).Inc()
	}
}
