// Package scheduler wires the cron entries: the evening all-positions
// refresh after European close, the monthly accumulator reset, and the
// nightly backup. Every entry submits through the job runner so cron
// and HTTP triggers share the same single-flight and timeout rules.
package scheduler

import (
	"context"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"monpecule/internal/jobs"
)

// Entry names, shared with the HTTP admin triggers.
const (
	JobRefresh      = "scheduled_refresh"
	JobMonthlyReset = "monthly_reset"
	JobBackup       = "backup"
)

// Config carries the cron expressions in standard five-field syntax.
type Config struct {
	RefreshCron string
	ResetCron   string
	BackupCron  string
}

// Scheduler owns the cron loop.
type Scheduler struct {
	cron   *cron.Cron
	runner *jobs.Runner
	log    zerolog.Logger
}

// New creates a scheduler backed by the given job runner.
func New(runner *jobs.Runner, log zerolog.Logger) *Scheduler {
	return &Scheduler{
		cron:   cron.New(),
		runner: runner,
		log:    log.With().Str("service", "scheduler").Logger(),
	}
}

// Register adds the three standing entries. A nil backup function skips
// the backup entry (backups not configured).
func (s *Scheduler) Register(
	cfg Config,
	refresh func(ctx context.Context) error,
	monthlyReset func(ctx context.Context) error,
	backup func(ctx context.Context) error,
) error {
	if err := s.add(cfg.RefreshCron, JobRefresh, refresh); err != nil {
		return err
	}
	if err := s.add(cfg.ResetCron, JobMonthlyReset, monthlyReset); err != nil {
		return err
	}
	if backup != nil {
		if err := s.add(cfg.BackupCron, JobBackup, backup); err != nil {
			return err
		}
	}
	return nil
}

func (s *Scheduler) add(spec, name string, fn func(ctx context.Context) error) error {
	_, err := s.cron.AddFunc(spec, func() {
		if _, err := s.runner.Submit(name, fn); err != nil {
			s.log.Warn().Err(err).Str("job", name).Msg("Skipped cron trigger")
		}
	})
	if err != nil {
		return err
	}
	s.log.Info().Str("job", name).Str("spec", spec).Msg("Cron entry registered")
	return nil
}

// Start begins the cron loop in its own goroutine.
func (s *Scheduler) Start() {
	s.cron.Start()
}

// Stop halts the loop. Running jobs continue under the job runner's
// own lifecycle.
func (s *Scheduler) Stop() {
	s.cron.Stop()
}
