package server

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"monpecule/internal/modules/monthly"
	"monpecule/internal/modules/positions"
)

type positionRequest struct {
	AccountID     int64   `json:"account_id"`
	Name          string  `json:"name"`
	Identifier    string  `json:"identifier"`
	PurchasePrice float64 `json:"purchase_price"`
	Quantity      int64   `json:"quantity"`
	Fee           float64 `json:"fee"`
	CurrentPrice  float64 `json:"current_price"`
	PurchaseDate  string  `json:"purchase_date"`
}

// handleListPositions lists the caller's positions.
// GET /api/positions
func (s *Server) handleListPositions(w http.ResponseWriter, r *http.Request) {
	user := currentUser(r)
	list, err := s.cfg.Positions.GetByUser(user.ID)
	if err != nil {
		s.log.Error().Err(err).Msg("Failed to list positions")
		s.writeError(w, http.StatusInternalServerError, "failed to list positions")
		return
	}
	s.writeJSON(w, http.StatusOK, list)
}

// handleCreatePosition adds a position. The identifier is resolved
// immediately so the position carries a symbol and a current price from
// the start; resolution failure is not fatal, the identifier is kept
// and the next refresh retries. The previous price seeds from the
// purchase price so day-one gain/loss reads zero.
// POST /api/positions
func (s *Server) handleCreatePosition(w http.ResponseWriter, r *http.Request) {
	user := currentUser(r)
	var req positionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Name == "" || req.Identifier == "" {
		s.writeError(w, http.StatusBadRequest, "name and identifier are required")
		return
	}
	if req.Quantity < 0 {
		s.writeError(w, http.StatusBadRequest, "quantity must not be negative")
		return
	}
	owner, err := s.cfg.IdentityRepo.AccountOwner(req.AccountID)
	if err != nil || owner != user.ID {
		s.writeError(w, http.StatusNotFound, "account not found")
		return
	}

	p := positions.Position{
		AccountID:     req.AccountID,
		Name:          req.Name,
		Identifier:    req.Identifier,
		PurchasePrice: req.PurchasePrice,
		Quantity:      req.Quantity,
		Fee:           req.Fee,
		CurrentPrice:  req.CurrentPrice,
		Currency:      s.cfg.Valuation.Reference(),
		PurchaseDate:  req.PurchaseDate,
	}

	if res, err := s.cfg.Resolver.Resolve(r.Context(), req.Identifier); err == nil {
		p.Symbol = res.Symbol
		p.CurrentPrice = res.Price
		p.Currency = res.Currency
	} else {
		s.log.Warn().Err(err).Str("identifier", req.Identifier).
			Msg("Identifier did not resolve at creation")
	}
	if p.CurrentPrice == 0 {
		// Without a quote the position values at cost, current and
		// previous both equal to the purchase price, until the first
		// successful refresh.
		p.CurrentPrice = req.PurchasePrice
	}

	id, err := s.cfg.Positions.Create(p)
	if err != nil {
		s.log.Error().Err(err).Msg("Failed to create position")
		s.writeError(w, http.StatusInternalServerError, "failed to create position")
		return
	}
	if err := s.cfg.Monthly.Seed(id, monthly.MonthKey(time.Now())); err != nil {
		s.log.Warn().Err(err).Int64("position", id).Msg("Failed to seed monthly row")
	}

	created, err := s.cfg.Positions.GetByID(id)
	if err != nil || created == nil {
		s.writeJSON(w, http.StatusCreated, map[string]int64{"id": id})
		return
	}
	s.writeJSON(w, http.StatusCreated, created)
}

// handleUpdatePosition edits a position's own fields. Price fields are
// owned by the refresh path and not editable here, except the purchase
// price which is part of the cost basis.
// PUT /api/positions/{id}
func (s *Server) handleUpdatePosition(w http.ResponseWriter, r *http.Request) {
	p, ok := s.ownedPosition(w, r)
	if !ok {
		return
	}
	var req positionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Quantity < 0 {
		s.writeError(w, http.StatusBadRequest, "quantity must not be negative")
		return
	}

	if req.Name != "" {
		p.Name = req.Name
	}
	if req.Identifier != "" && req.Identifier != p.Identifier {
		p.Identifier = req.Identifier
		// Symbol is stale until the next refresh re-resolves
		p.Symbol = ""
	}
	if req.PurchasePrice > 0 {
		p.PurchasePrice = req.PurchasePrice
	}
	p.Quantity = req.Quantity
	p.Fee = req.Fee
	if req.PurchaseDate != "" {
		p.PurchaseDate = req.PurchaseDate
	}

	if err := s.cfg.Positions.Update(*p); err != nil {
		s.log.Error().Err(err).Msg("Failed to update position")
		s.writeError(w, http.StatusInternalServerError, "failed to update position")
		return
	}
	s.writeJSON(w, http.StatusOK, p)
}

// handleDeletePosition removes a position. History and monthly rows
// cascade.
// DELETE /api/positions/{id}
func (s *Server) handleDeletePosition(w http.ResponseWriter, r *http.Request) {
	p, ok := s.ownedPosition(w, r)
	if !ok {
		return
	}
	if err := s.cfg.Positions.Delete(p.ID); err != nil {
		s.log.Error().Err(err).Msg("Failed to delete position")
		s.writeError(w, http.StatusInternalServerError, "failed to delete position")
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

// handlePositionHistory returns recent daily prices for one position.
// GET /api/positions/{id}/history
func (s *Server) handlePositionHistory(w http.ResponseWriter, r *http.Request) {
	p, ok := s.ownedPosition(w, r)
	if !ok {
		return
	}
	limit := 90
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 && n <= 365 {
			limit = n
		}
	}
	history, err := s.cfg.Positions.GetHistory(p.ID, limit)
	if err != nil {
		s.log.Error().Err(err).Msg("Failed to get history")
		s.writeError(w, http.StatusInternalServerError, "failed to get history")
		return
	}
	s.writeJSON(w, http.StatusOK, history)
}

// ownedPosition parses {id} and checks the caller owns it.
func (s *Server) ownedPosition(w http.ResponseWriter, r *http.Request) (*positions.Position, bool) {
	user := currentUser(r)
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid position id")
		return nil, false
	}
	owner, err := s.cfg.Positions.OwnerUserID(id)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, "failed to check position")
		return nil, false
	}
	if owner == 0 || owner != user.ID {
		s.writeError(w, http.StatusNotFound, "position not found")
		return nil, false
	}
	p, err := s.cfg.Positions.GetByID(id)
	if err != nil || p == nil {
		s.writeError(w, http.StatusNotFound, "position not found")
		return nil, false
	}
	return p, true
}
