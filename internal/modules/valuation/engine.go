// Package valuation computes gain/loss figures for positions and
// multi-currency aggregates.
package valuation

import (
	"math"

	"github.com/rs/zerolog"

	"monpecule/internal/modules/currency"
	"monpecule/internal/modules/positions"
)

// AnomalyThreshold is the fraction of the current price beyond which the
// previous-reference price is treated as unreliable. A previous price of
// zero, or one more than 20% away from the current price, makes the day
// figure fall back to the total gain/loss.
const AnomalyThreshold = 0.20

// Valuation holds the computed figures for one position, in its quoting
// currency.
type Valuation struct {
	CostBasis     float64 `json:"cost_basis"`
	MarketValue   float64 `json:"market_value"`
	TotalGainLoss float64 `json:"total_gain_loss"`
	DayGainLoss   float64 `json:"day_gain_loss"`
	DayChangePct  float64 `json:"day_change_pct"`
	Currency      string  `json:"currency"`
}

// Value computes the valuation of a single position.
//
// The flat fee is added to both cost basis and market value: it cancels
// out of the gain/loss difference but shows up in displayed totals. The
// day figure excludes fees.
func Value(p positions.Position) Valuation {
	q := float64(p.Quantity)

	costBasis := p.PurchasePrice*q + p.Fee
	marketValue := p.CurrentPrice*q + p.Fee
	total := marketValue - costBasis

	day := total
	pct := 0.0
	if previousReliable(p.PreviousPrice, p.CurrentPrice) {
		day = (p.CurrentPrice - p.PreviousPrice) * q
		pct = (p.CurrentPrice - p.PreviousPrice) / p.PreviousPrice * 100
	}

	return Valuation{
		CostBasis:     costBasis,
		MarketValue:   marketValue,
		TotalGainLoss: total,
		DayGainLoss:   day,
		DayChangePct:  pct,
		Currency:      p.Currency,
	}
}

// previousReliable applies the anomaly guard: a previous price of zero or
// one further than AnomalyThreshold of the current price from it is
// discarded as stale or implausible.
func previousReliable(previous, current float64) bool {
	if previous == 0 {
		return false
	}
	return math.Abs(previous-current) <= AnomalyThreshold*current
}

// PositionValuation pairs a position with its figures, plus the totals
// converted to the reference currency for aggregation.
type PositionValuation struct {
	Position positions.Position `json:"position"`
	Valuation
	RefMarketValue   float64 `json:"ref_market_value"`
	RefCostBasis     float64 `json:"ref_cost_basis"`
	RefTotalGainLoss float64 `json:"ref_total_gain_loss"`
	RefDayGainLoss   float64 `json:"ref_day_gain_loss"`
}

// Totals aggregates positions in the reference currency.
type Totals struct {
	MarketValue   float64 `json:"market_value"`
	CostBasis     float64 `json:"cost_basis"`
	TotalGainLoss float64 `json:"total_gain_loss"`
	DayGainLoss   float64 `json:"day_gain_loss"`
	Currency      string  `json:"currency"`
	Positions     int     `json:"positions"`
}

// Engine values positions and aggregates them across currencies.
type Engine struct {
	converter *currency.Converter
	log       zerolog.Logger
}

// NewEngine creates a valuation engine.
func NewEngine(converter *currency.Converter, log zerolog.Logger) *Engine {
	return &Engine{
		converter: converter,
		log:       log.With().Str("service", "valuation").Logger(),
	}
}

// Reference returns the engine's reference currency code.
func (e *Engine) Reference() string {
	return e.converter.Reference()
}

// ValueAll values each position and sums totals in the reference
// currency. Raw values of differing quoting currencies are never summed
// directly: each position is converted first. Positions whose currency is
// missing from the rate table are valued but excluded from the totals.
func (e *Engine) ValueAll(ps []positions.Position) ([]PositionValuation, Totals) {
	valued := make([]PositionValuation, 0, len(ps))
	totals := Totals{Currency: e.converter.Reference()}

	for _, p := range ps {
		v := Value(p)
		pv := PositionValuation{Position: p, Valuation: v}

		mv, err1 := e.converter.ToReference(v.MarketValue, p.Currency)
		cb, err2 := e.converter.ToReference(v.CostBasis, p.Currency)
		tg, err3 := e.converter.ToReference(v.TotalGainLoss, p.Currency)
		dg, err4 := e.converter.ToReference(v.DayGainLoss, p.Currency)
		if err1 != nil || err2 != nil || err3 != nil || err4 != nil {
			e.log.Warn().
				Int64("position", p.ID).
				Str("currency", p.Currency).
				Msg("Unknown quoting currency, excluded from aggregate totals")
			valued = append(valued, pv)
			continue
		}

		pv.RefMarketValue = mv
		pv.RefCostBasis = cb
		pv.RefTotalGainLoss = tg
		pv.RefDayGainLoss = dg

		totals.MarketValue += mv
		totals.CostBasis += cb
		totals.TotalGainLoss += tg
		totals.DayGainLoss += dg
		totals.Positions++

		valued = append(valued, pv)
	}

	return valued, totals
}

// ConvertTotals re-expresses aggregate totals in the user's display
// currency. Totals stay in the reference currency when the display
// currency is unknown.
func (e *Engine) ConvertTotals(t Totals, displayCurrency string) Totals {
	if displayCurrency == "" || displayCurrency == t.Currency || !e.converter.Known(displayCurrency) {
		return t
	}

	out := t
	out.Currency = displayCurrency
	out.MarketValue, _ = e.converter.Convert(t.MarketValue, t.Currency, displayCurrency)
	out.CostBasis, _ = e.converter.Convert(t.CostBasis, t.Currency, displayCurrency)
	out.TotalGainLoss, _ = e.converter.Convert(t.TotalGainLoss, t.Currency, displayCurrency)
	out.DayGainLoss, _ = e.converter.Convert(t.DayGainLoss, t.Currency, displayCurrency)
	return out
}
