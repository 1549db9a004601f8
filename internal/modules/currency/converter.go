// Package currency converts amounts between quoting currencies and the
// reference currency using the fixed rate table from the market config.
package currency

import (
	"fmt"

	"github.com/rs/zerolog"

	"monpecule/internal/config"
)

// Converter converts between the currencies of the fixed rate table.
// Rates are configuration, not computed: staleness is a documented
// limitation, not a bug.
type Converter struct {
	reference string
	rates     map[string]float64
	log       zerolog.Logger
}

// NewConverter creates a converter from the market tables.
func NewConverter(market *config.Market, log zerolog.Logger) *Converter {
	return &Converter{
		reference: market.ReferenceCurrency,
		rates:     market.Rates,
		log:       log.With().Str("service", "currency").Logger(),
	}
}

// Reference returns the reference currency code (EUR).
func (c *Converter) Reference() string {
	return c.reference
}

// Known reports whether a currency is present in the rate table.
func (c *Converter) Known(code string) bool {
	_, ok := c.rates[code]
	return ok
}

// Convert converts an amount between two currencies, routing through the
// reference currency: amount / rate[from] * rate[to].
// Identity when the currencies match.
func (c *Converter) Convert(amount float64, from, to string) (float64, error) {
	if from == to {
		return amount, nil
	}

	fromRate, ok := c.rates[from]
	if !ok {
		return 0, fmt.Errorf("unknown currency %q", from)
	}
	toRate, ok := c.rates[to]
	if !ok {
		return 0, fmt.Errorf("unknown currency %q", to)
	}

	return amount / fromRate * toRate, nil
}

// ToReference converts an amount into the reference currency.
func (c *Converter) ToReference(amount float64, from string) (float64, error) {
	return c.Convert(amount, from, c.reference)
}
