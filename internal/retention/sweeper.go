// Package retention wires up the cron job that periodically removes terminal
// jobs past their retention age, together with their stored archives.
package retention

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/ossprey/licenscope/internal/domain"
	"github.com/ossprey/licenscope/internal/logger"
	"github.com/ossprey/licenscope/internal/report"
	"github.com/ossprey/licenscope/internal/storage"
)

// Config holds sweeper settings.
type Config struct {
	Interval time.Duration // how often the sweep runs; <= 0 means hourly
	MaxAge   time.Duration // terminal jobs older than this are removed; <= 0 means 72h
}

// Sweeper wraps robfig/cron and manages the retention loop.
type Sweeper struct {
	cron    *cron.Cron
	store   report.Store
	objects storage.ObjectStorage
	logger  *logger.Logger
	maxAge  time.Duration
	spec    string // cron spec, e.g. "@every 1h"
}

// New creates a Sweeper that fires every cfg.Interval.
func New(store report.Store, objects storage.ObjectStorage, log *logger.Logger, cfg Config) *Sweeper {
	interval := cfg.Interval
	if interval <= 0 {
		interval = time.Hour
	}
	maxAge := cfg.MaxAge
	if maxAge <= 0 {
		maxAge = 72 * time.Hour
	}
	return &Sweeper{
		cron:    cron.New(),
		store:   store,
		objects: objects,
		logger:  log,
		maxAge:  maxAge,
		spec:    fmt.Sprintf("@every %s", interval),
	}
}

// Start registers the sweep and starts the scheduler.
func (s *Sweeper) Start(ctx context.Context) error {
	_, err := s.cron.AddFunc(s.spec, func() {
		s.sweep(ctx)
	})
	if err != nil {
		return fmt.Errorf("failed to schedule retention sweep: %w", err)
	}

	s.cron.Start()
	s.logger.WithFields(logger.Fields{
		"spec":    s.spec,
		"max_age": s.maxAge.String(),
	}).Info("Retention sweeper started")
	return nil
}

// Stop gracefully shuts down the scheduler.
func (s *Sweeper) Stop() {
	s.cron.Stop()
	s.logger.Info("Retention sweeper stopped")
}

// sweep removes every terminal job that finished more than maxAge ago. The
// stored archive goes first, so a failed blob delete keeps the job visible
// for the next pass.
func (s *Sweeper) sweep(ctx context.Context) {
	cutoff := time.Now().UTC().Add(-s.maxAge)

	jobs, err := s.store.ListJobs(ctx, 0, 0)
	if err != nil {
		s.logger.WithError(err).Error("Retention sweep failed to list jobs")
		return
	}

	removed := 0
	for i := range jobs {
		job := &jobs[i]
		if !job.Status.IsTerminal() || job.FinishedAt == nil || job.FinishedAt.After(cutoff) {
			continue
		}
		if err := s.remove(ctx, job); err != nil {
			s.logger.WithFields(logger.Fields{
				logger.FieldJobID: job.ID,
			}).WithError(err).Warn("Retention sweep failed to remove job")
			continue
		}
		removed++
	}

	if removed > 0 {
		s.logger.WithFields(logger.Fields{
			logger.FieldCount: removed,
			"max_age":         s.maxAge.String(),
		}).Info("Retention sweep removed expired jobs")
	}
}

func (s *Sweeper) remove(ctx context.Context, job *domain.Job) error {
	if job.ArchiveKey != "" {
		if err := s.objects.Delete(ctx, job.ArchiveKey); err != nil {
			return fmt.Errorf("failed to delete archive %s: %w", job.ArchiveKey, err)
		}
	}
	if err := s.store.DeleteJob(ctx, job.ID); err != nil {
		return fmt.Errorf("failed to delete job: %w", err)
	}
	return nil
}
