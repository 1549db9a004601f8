package valuation

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"

	"monpecule/internal/config"
	"monpecule/internal/modules/currency"
	"monpecule/internal/modules/positions"
)

func testEngine() *Engine {
	converter := currency.NewConverter(config.DefaultMarket(), zerolog.Nop())
	return NewEngine(converter, zerolog.Nop())
}

func TestValueBasicFigures(t *testing.T) {
	v := Value(positions.Position{
		PurchasePrice: 100,
		Quantity:      10,
		Fee:           5,
		CurrentPrice:  110,
		PreviousPrice: 108,
		Currency:      "EUR",
	})

	assert.Equal(t, 1005.0, v.CostBasis, "fee is part of the cost basis")
	assert.Equal(t, 1105.0, v.MarketValue, "fee is part of the market value")
	assert.Equal(t, 100.0, v.TotalGainLoss, "fee cancels out of the difference")
	assert.Equal(t, 20.0, v.DayGainLoss, "day figure excludes fees")
	assert.InDelta(t, 1.8518, v.DayChangePct, 0.001)
}

func TestValueZeroPreviousFallsBackToTotal(t *testing.T) {
	v := Value(positions.Position{
		PurchasePrice: 100,
		Quantity:      10,
		CurrentPrice:  110,
		PreviousPrice: 0,
	})

	assert.Equal(t, v.TotalGainLoss, v.DayGainLoss)
	assert.Equal(t, 0.0, v.DayChangePct)
}

func TestValueAnomalyGuardBoundaries(t *testing.T) {
	base := positions.Position{PurchasePrice: 90, Quantity: 1, CurrentPrice: 100}

	// 21% away from current: unreliable, day falls back to total.
	p := base
	p.PreviousPrice = 79
	v := Value(p)
	assert.Equal(t, v.TotalGainLoss, v.DayGainLoss)

	// Exactly 20% away: still reliable.
	p.PreviousPrice = 80
	v = Value(p)
	assert.Equal(t, 20.0, v.DayGainLoss)

	// Just inside the band.
	p.PreviousPrice = 81
	v = Value(p)
	assert.InDelta(t, 19.0, v.DayGainLoss, 1e-9)
}

func TestValueAllConvertsBeforeSumming(t *testing.T) {
	e := testEngine()

	valued, totals := e.ValueAll([]positions.Position{
		{PurchasePrice: 100, Quantity: 1, CurrentPrice: 110, PreviousPrice: 108, Currency: "EUR"},
		{PurchasePrice: 100, Quantity: 1, CurrentPrice: 108, PreviousPrice: 107, Currency: "USD"},
	})

	assert.Len(t, valued, 2)
	assert.Equal(t, "EUR", totals.Currency)
	assert.Equal(t, 2, totals.Positions)
	// 110 EUR + 108 USD / 1.08 = 110 + 100 EUR
	assert.InDelta(t, 210.0, totals.MarketValue, 1e-9)
}

func TestValueAllExcludesUnknownCurrencyFromTotals(t *testing.T) {
	e := testEngine()

	valued, totals := e.ValueAll([]positions.Position{
		{PurchasePrice: 10, Quantity: 1, CurrentPrice: 12, Currency: "EUR"},
		{PurchasePrice: 10, Quantity: 1, CurrentPrice: 12, Currency: "JPY"},
	})

	assert.Len(t, valued, 2, "the position itself is still valued")
	assert.Equal(t, 1, totals.Positions, "unknown currency stays out of the aggregate")
	assert.InDelta(t, 12.0, totals.MarketValue, 1e-9)
}

func TestConvertTotalsDisplayCurrency(t *testing.T) {
	e := testEngine()

	totals := Totals{MarketValue: 100, CostBasis: 90, TotalGainLoss: 10, DayGainLoss: 2, Currency: "EUR"}

	usd := e.ConvertTotals(totals, "USD")
	assert.Equal(t, "USD", usd.Currency)
	assert.InDelta(t, 108.0, usd.MarketValue, 1e-9)

	same := e.ConvertTotals(totals, "EUR")
	assert.Equal(t, totals, same)

	unknown := e.ConvertTotals(totals, "JPY")
	assert.Equal(t, "EUR", unknown.Currency, "unknown display currency keeps the reference")
}
