package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"

	"github.com/go-chi/chi/v5"

	"monpecule/internal/jobs"
	"monpecule/internal/modules/quotes"
	"monpecule/internal/modules/refresh"
)

// handleSearchTicker resolves free text to a live quote.
// GET /api/search_ticker/{query}
func (s *Server) handleSearchTicker(w http.ResponseWriter, r *http.Request) {
	query := chi.URLParam(r, "query")
	if decoded, err := url.PathUnescape(query); err == nil {
		query = decoded
	}
	if query == "" {
		s.writeError(w, http.StatusBadRequest, "query is required")
		return
	}

	res, err := s.cfg.Resolver.Resolve(r.Context(), query)
	if err == quotes.ErrNoQuote {
		s.writeError(w, http.StatusNotFound, "no quote found")
		return
	}
	if err != nil {
		s.log.Error().Err(err).Str("query", query).Msg("Ticker search failed")
		s.writeError(w, http.StatusInternalServerError, "search failed")
		return
	}
	s.writeJSON(w, http.StatusOK, res)
}

// handleUpdatePrices triggers a manual refresh of the caller's own
// positions. The work runs in the background; the response is an
// acknowledgment carrying the job id.
// POST /api/update_prices
func (s *Server) handleUpdatePrices(w http.ResponseWriter, r *http.Request) {
	user := currentUser(r)
	name := fmt.Sprintf("manual_refresh_user_%d", user.ID)

	id, err := s.cfg.Jobs.Submit(name, func(ctx context.Context) error {
		_, err := s.cfg.Refresh.Run(ctx, refresh.Options{UserID: user.ID, Scheduled: false})
		return err
	})
	if errors.Is(err, jobs.ErrDuplicate) {
		s.writeError(w, http.StatusConflict, "refresh already running")
		return
	}
	if err != nil {
		s.log.Error().Err(err).Msg("Failed to submit refresh")
		s.writeError(w, http.StatusInternalServerError, "failed to start refresh")
		return
	}

	s.writeJSON(w, http.StatusAccepted, map[string]string{
		"status": "refresh started",
		"job_id": id,
	})
}

// handleAnalysis returns the current analysis snapshots.
// GET /api/analysis
func (s *Server) handleAnalysis(w http.ResponseWriter, r *http.Request) {
	snapshots, err := s.cfg.Analysis.All()
	if err != nil {
		s.log.Error().Err(err).Msg("Failed to load analysis")
		s.writeError(w, http.StatusInternalServerError, "failed to load analysis")
		return
	}
	s.writeJSON(w, http.StatusOK, snapshots)
}

// handleJobStatus reports a background job's state.
// GET /api/jobs/{id}
func (s *Server) handleJobStatus(w http.ResponseWriter, r *http.Request) {
	status := s.cfg.Jobs.Status(chi.URLParam(r, "id"))
	if status == nil {
		s.writeError(w, http.StatusNotFound, "unknown job")
		return
	}
	s.writeJSON(w, http.StatusOK, status)
}
