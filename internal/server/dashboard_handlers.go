package server

import (
	"net/http"
	"time"

	"monpecule/internal/modules/monthly"
)

// handleDashboard returns the caller's positions with their valuations,
// the aggregate totals in the display currency, and the current month's
// cumulative gain/loss per position.
// GET /api/dashboard
func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request) {
	user := currentUser(r)

	list, err := s.cfg.Positions.GetByUser(user.ID)
	if err != nil {
		s.log.Error().Err(err).Msg("Failed to load positions")
		s.writeError(w, http.StatusInternalServerError, "failed to load dashboard")
		return
	}

	valued, totals := s.cfg.Valuation.ValueAll(list)
	display := s.cfg.Valuation.ConvertTotals(totals, user.DisplayCurrency)

	month := monthly.MonthKey(time.Now())
	monthlyGains := make(map[int64]float64, len(list))
	for _, p := range list {
		row, err := s.cfg.Monthly.Get(p.ID, month)
		if err != nil {
			s.log.Warn().Err(err).Int64("position", p.ID).Msg("Failed to load monthly gain")
			continue
		}
		if row != nil {
			monthlyGains[p.ID] = row.Cumulative
		}
	}

	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"positions":     valued,
		"totals":        display,
		"monthly_gains": monthlyGains,
		"month":         month,
		"last_refresh":  user.LastRefresh,
	})
}
