package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/BurntSushi/toml"
)

// Market holds the static market tables used by the quote resolver and
// the currency converter. The tables are configuration, not code: they
// can be replaced via a TOML file without touching the resolver.
type Market struct {
	// ReferenceCurrency is the common currency used to aggregate totals
	// across positions (EUR).
	ReferenceCurrency string `toml:"reference_currency"`

	// Overrides maps known-ambiguous identifiers (ISINs, truncated
	// tickers, long product names) to canonical exchange-qualified
	// symbols. Keys are matched case-insensitively.
	Overrides map[string]string `toml:"overrides"`

	// Fragments maps lowercase multi-word product-name fragments to
	// canonical symbols, matched by substring.
	Fragments map[string]string `toml:"fragments"`

	// SuffixCurrencies maps exchange suffixes to quoting currencies
	// (".L" -> "GBP"). Symbols without a matching suffix quote in the
	// reference currency, except bare US-style tickers which quote USD.
	SuffixCurrencies map[string]string `toml:"suffix_currencies"`

	// Rates holds fixed FX rates expressed as units of currency per one
	// unit of the reference currency. No live FX fetch: staleness is a
	// known limitation of these tables.
	Rates map[string]float64 `toml:"rates"`

	// Watchlist lists fund/ETF symbols included in trend analysis in
	// addition to the symbols held in positions.
	Watchlist []string `toml:"watchlist"`

	Search SearchWeights `toml:"search"`
}

// SearchWeights scores candidates returned by the free-text quote search.
type SearchWeights struct {
	ExactSymbol        float64  `toml:"exact_symbol"`
	HomeExchange       float64  `toml:"home_exchange"`
	SecondaryExchange  float64  `toml:"secondary_exchange"`
	FundType           float64  `toml:"fund_type"`
	HomeExchanges      []string `toml:"home_exchanges"`
	SecondaryExchanges []string `toml:"secondary_exchanges"`
}

// DefaultMarket returns the compiled-in market tables.
func DefaultMarket() *Market {
	return &Market{
		ReferenceCurrency: "EUR",
		Overrides: map[string]string{
			// ISIN -> Euronext Paris symbol for commonly held French names
			"FR0000131104": "BNP.PA",
			"FR0000120271": "TTE.PA",
			"FR0000121014": "MC.PA",
			"FR0010315770": "CW8.PA",
			"LU1681043599": "CW8.PA",
			"IE00B4L5Y983": "IWDA.AS",
			// Truncated tickers users type from broker statements
			"BNP":   "BNP.PA",
			"TOTAL": "TTE.PA",
			"LVMH":  "MC.PA",
		},
		Fragments: map[string]string{
			"amundi msci world":  "CW8.PA",
			"lyxor world":        "EWLD.PA",
			"ishares core msci":  "IWDA.AS",
			"louis vuitton":      "MC.PA",
			"bnp paribas":        "BNP.PA",
			"totalenergies":      "TTE.PA",
		},
		SuffixCurrencies: map[string]string{
			".PA": "EUR",
			".AS": "EUR",
			".BR": "EUR",
			".DE": "EUR",
			".MI": "EUR",
			".L":  "GBP",
			".SW": "CHF",
		},
		Rates: map[string]float64{
			"EUR": 1.0,
			"USD": 1.08,
			"GBP": 0.86,
			"CHF": 0.94,
		},
		Watchlist: []string{"CW8.PA", "EWLD.PA", "IWDA.AS"},
		Search: SearchWeights{
			ExactSymbol:        10,
			HomeExchange:       5,
			SecondaryExchange:  2,
			FundType:           3,
			HomeExchanges:      []string{"PAR", "Paris"},
			SecondaryExchanges: []string{"AMS", "BRU", "GER", "MIL", "Amsterdam", "Brussels", "XETRA", "Milan"},
		},
	}
}

// LoadMarket returns the market tables, overlaying the TOML file at
// path (if any) on top of the defaults. An empty path yields defaults.
func LoadMarket(path string) (*Market, error) {
	m := DefaultMarket()
	if path == "" {
		return m, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read market config %s: %w", path, err)
	}
	if err := toml.Unmarshal(data, m); err != nil {
		return nil, fmt.Errorf("failed to parse market config %s: %w", path, err)
	}

	if err := m.Validate(); err != nil {
		return nil, fmt.Errorf("invalid market config %s: %w", path, err)
	}
	return m, nil
}

// Validate checks internal consistency of the tables.
func (m *Market) Validate() error {
	if m.ReferenceCurrency == "" {
		return fmt.Errorf("reference_currency is required")
	}
	rate, ok := m.Rates[m.ReferenceCurrency]
	if !ok {
		return fmt.Errorf("rates must include the reference currency %s", m.ReferenceCurrency)
	}
	if rate != 1.0 {
		return fmt.Errorf("rate for reference currency %s must be 1.0, got %v", m.ReferenceCurrency, rate)
	}
	for code, r := range m.Rates {
		if r <= 0 {
			return fmt.Errorf("rate for %s must be positive, got %v", code, r)
		}
	}
	for suffix := range m.SuffixCurrencies {
		if !strings.HasPrefix(suffix, ".") {
			return fmt.Errorf("suffix %q must start with a dot", suffix)
		}
	}
	return nil
}
