// Package cron provides scheduled background jobs using robfig/cron.
package cron

import (
	"context"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
)

// Maintainer is the store side of the nightly jobs.
type Maintainer interface {
	ReconcileSequences(ctx context.Context) (int64, error)
	PruneImportJobs(ctx context.Context, before time.Time) (int64, error)
}

// Pruner deletes archived files older than a cutoff.
type Pruner interface {
	Prune(ctx context.Context, before time.Time) (int, error)
}

// Config holds job schedules in the standard 5-field format.
type Config struct {
	ReconcileSpec string
	PruneSpec     string
	// Retention is how long import jobs and archived files are kept.
	Retention time.Duration
}

// Scheduler manages background scheduled jobs using robfig/cron.
type Scheduler struct {
	cron   *cron.Cron
	cfg    Config
	store  Maintainer
	files  Pruner // Optional
	logger *slog.Logger
	now    func() time.Time
}

const jobTimeout = 30 * time.Minute

// NewScheduler creates a new job scheduler.
func NewScheduler(cfg Config, store Maintainer, files Pruner, logger *slog.Logger) *Scheduler {
	c := cron.New(cron.WithLogger(cron.VerbosePrintfLogger(slog.NewLogLogger(logger.Handler(), slog.LevelDebug))))

	return &Scheduler{
		cron:   c,
		cfg:    cfg,
		store:  store,
		files:  files,
		logger: logger,
		now:    time.Now,
	}
}

// Start registers the nightly jobs and begins running them. A job with an
// empty schedule is left out.
func (s *Scheduler) Start() error {
	if s.cfg.ReconcileSpec != "" {
		if _, err := s.cron.AddFunc(s.cfg.ReconcileSpec, s.reconcileSequences); err != nil {
			return err
		}
	}
	if s.cfg.PruneSpec != "" {
		if _, err := s.cron.AddFunc(s.cfg.PruneSpec, s.pruneImports); err != nil {
			return err
		}
	}

	s.cron.Start()
	s.logger.Info("cron scheduler started",
		slog.Int("jobs", len(s.cron.Entries())),
	)
	return nil
}

// Every adds a plain periodic job, e.g. rate limiter cleanup.
func (s *Scheduler) Every(d time.Duration, job func()) {
	s.cron.Schedule(cron.Every(d), cron.FuncJob(job))
}

// Stop gracefully stops all scheduled jobs.
func (s *Scheduler) Stop() context.Context {
	s.logger.Info("cron scheduler stopping")
	return s.cron.Stop()
}

// reconcileSequences raises document counters that fell behind the numbers
// already in use, e.g. after a manual data fix.
func (s *Scheduler) reconcileSequences() {
	ctx, cancel := context.WithTimeout(context.Background(), jobTimeout)
	defer cancel()

	n, err := s.store.ReconcileSequences(ctx)
	if err != nil {
		s.logger.Error("failed to reconcile sequences", slog.Any("error", err))
		return
	}
	s.logger.Info("sequence reconciliation completed", slog.Int64("counters_raised", n))
}

// pruneImports drops import jobs and archived files past the retention.
func (s *Scheduler) pruneImports() {
	ctx, cancel := context.WithTimeout(context.Background(), jobTimeout)
	defer cancel()

	cutoff := s.now().Add(-s.cfg.Retention)

	jobs, err := s.store.PruneImportJobs(ctx, cutoff)
	if err != nil {
		s.logger.Error("failed to prune import jobs", slog.Any("error", err))
	}

	files := 0
	if s.files != nil {
		files, err = s.files.Prune(ctx, cutoff)
		if err != nil {
			s.logger.Error("failed to prune import files", slog.Any("error", err))
		}
	}

	s.logger.Info("import pruning completed",
		slog.Time("cutoff", cutoff),
		slog.Int64("jobs_deleted", jobs),
		slog.Int("files_deleted", files),
	)
}
