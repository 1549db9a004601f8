package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"monpecule/internal/jobs"
	"monpecule/internal/modules/monthly"
	"monpecule/internal/modules/refresh"
	"monpecule/internal/scheduler"
)

// handleAdminRefresh triggers an all-positions scheduled-mode refresh.
// POST /api/admin/refresh
func (s *Server) handleAdminRefresh(w http.ResponseWriter, r *http.Request) {
	s.submitAdminJob(w, scheduler.JobRefresh, func(ctx context.Context) error {
		_, err := s.cfg.Refresh.Run(ctx, refresh.Options{Scheduled: true})
		return err
	})
}

// handleAdminMonthlyReset zeroes the current month's accumulator rows.
// POST /api/admin/monthly_reset
func (s *Server) handleAdminMonthlyReset(w http.ResponseWriter, r *http.Request) {
	s.submitAdminJob(w, scheduler.JobMonthlyReset, func(ctx context.Context) error {
		_, err := s.cfg.Monthly.Reset(monthly.MonthKey(time.Now()))
		return err
	})
}

// handleAdminAnalysisRefresh recomputes the analysis snapshot table.
// POST /api/admin/analysis/refresh
func (s *Server) handleAdminAnalysisRefresh(w http.ResponseWriter, r *http.Request) {
	s.submitAdminJob(w, "analysis_recompute", func(ctx context.Context) error {
		_, err := s.cfg.Analysis.RecomputeAll(ctx)
		return err
	})
}

// handleAdminBackup runs a backup immediately.
// POST /api/admin/backup
func (s *Server) handleAdminBackup(w http.ResponseWriter, r *http.Request) {
	if s.cfg.Backup == nil {
		s.writeError(w, http.StatusNotImplemented, "backups not configured")
		return
	}
	s.submitAdminJob(w, scheduler.JobBackup, s.cfg.Backup.Run)
}

func (s *Server) submitAdminJob(w http.ResponseWriter, name string, fn func(ctx context.Context) error) {
	id, err := s.cfg.Jobs.Submit(name, fn)
	if errors.Is(err, jobs.ErrDuplicate) {
		s.writeError(w, http.StatusConflict, "job already running")
		return
	}
	if err != nil {
		s.log.Error().Err(err).Str("job", name).Msg("Failed to submit job")
		s.writeError(w, http.StatusInternalServerError, "failed to start job")
		return
	}
	s.writeJSON(w, http.StatusAccepted, map[string]string{
		"status": "started",
		"job":    name,
		"job_id": id,
	})
}
