package quotes

import (
	"context"
	"errors"
	"math"
	"regexp"
	"strings"

	"github.com/rs/zerolog"

	"monpecule/internal/config"
	"monpecule/internal/market"
)

// ErrNoQuote is returned when no provider at any stage of the fallback
// chain yields a usable price. Callers must leave persisted price fields
// untouched when they see it.
var ErrNoQuote = errors.New("quotes: no provider yielded a usable price")

const (
	// priceDecimals is the rounding applied to every numeric result the
	// resolver returns. The valuation layer may round further for display.
	priceDecimals = 4

	// penceThreshold flags GBP quotes reported in pence: a "price" this
	// far above the typical major-unit range is divided by 100. This can
	// misfire for genuinely expensive UK instruments; accepted risk.
	penceThreshold = 1000.0

	// maxDirectSymbolLen is the length up to which a candidate is worth
	// trying as a symbol without searching first.
	maxDirectSymbolLen = 6
)

// suffixPattern matches exchange-qualified symbols (BNP.PA, RIO.L).
var suffixPattern = regexp.MustCompile(`\.[A-Za-z]{1,3}$`)

// usTickerPattern matches bare US-style tickers (AAPL, MSFT).
var usTickerPattern = regexp.MustCompile(`^[A-Z]{1,5}$`)

// Resolution is the resolver's output: a canonical symbol with its
// current and previous price in the detected quoting currency.
type Resolution struct {
	Symbol        string  `json:"symbol"`
	Name          string  `json:"name"`
	Price         float64 `json:"price"`
	PreviousClose float64 `json:"previous_close"`
	Currency      string  `json:"currency"`
}

// Resolver turns free-form identifiers into priced resolutions through a
// fallback chain: override normalization, direct lookup, scored search,
// cleaned input as last resort; primary then secondary provider at each
// price retrieval. Single-provider failures degrade to the next step and
// never propagate.
type Resolver struct {
	normalizer *Normalizer
	primary    market.QuoteProvider
	secondary  market.QuoteProvider
	search     market.SearchProvider
	tables     *config.Market
	log        zerolog.Logger
}

// NewResolver creates a resolver. secondary may be nil when only one
// quote provider is configured.
func NewResolver(
	normalizer *Normalizer,
	primary market.QuoteProvider,
	secondary market.QuoteProvider,
	search market.SearchProvider,
	tables *config.Market,
	log zerolog.Logger,
) *Resolver {
	return &Resolver{
		normalizer: normalizer,
		primary:    primary,
		secondary:  secondary,
		search:     search,
		tables:     tables,
		log:        log.With().Str("service", "resolver").Logger(),
	}
}

// Resolve runs the fallback chain for one identifier.
func (r *Resolver) Resolve(ctx context.Context, identifier string) (*Resolution, error) {
	raw := strings.TrimSpace(identifier)
	if raw == "" {
		return nil, ErrNoQuote
	}

	candidate := r.normalizer.Normalize(raw)

	// Direct lookup when the candidate plausibly is a symbol already.
	triedDirect := ""
	if looksLikeSymbol(candidate) {
		symbol := strings.ToUpper(candidate)
		triedDirect = symbol
		if q := r.fetchQuote(ctx, symbol); q != nil {
			return r.finish(symbol, q.Name, q), nil
		}
	}

	// Free-text search, scored.
	if best := r.searchBest(ctx, raw); best != nil {
		if q := r.fetchQuote(ctx, best.Symbol); q != nil {
			name := best.Name
			if name == "" {
				name = q.Name
			}
			return r.finish(best.Symbol, name, q), nil
		}
	}

	// Last resort: the cleaned, uppercased input as the symbol itself.
	cleaned := cleanSymbol(raw)
	if cleaned != "" && cleaned != triedDirect {
		if q := r.fetchQuote(ctx, cleaned); q != nil {
			return r.finish(cleaned, q.Name, q), nil
		}
	}

	r.log.Info().Str("identifier", raw).Msg("No provider yielded a usable price")
	return nil, ErrNoQuote
}

// fetchQuote tries the primary provider, then the secondary. Provider
// errors are logged and swallowed: failure here means "try the next
// stage", never an error for the caller.
func (r *Resolver) fetchQuote(ctx context.Context, symbol string) *market.Quote {
	for _, p := range []market.QuoteProvider{r.primary, r.secondary} {
		if p == nil {
			continue
		}
		q, err := p.Quote(ctx, symbol)
		if err != nil {
			if !errors.Is(err, market.ErrNotFound) {
				r.log.Warn().Err(err).Str("provider", p.Name()).Str("symbol", symbol).Msg("Quote lookup failed")
			}
			continue
		}
		if q == nil || q.Price == 0 {
			continue
		}
		return q
	}
	return nil
}

// searchBest queries the search provider and picks the highest-scoring
// candidate. Ambiguity is resolved deterministically by the weights, not
// surfaced as an error; a wrong pick is an accepted heuristic risk.
func (r *Resolver) searchBest(ctx context.Context, query string) *market.SearchResult {
	if r.search == nil {
		return nil
	}

	results, err := r.search.Search(ctx, query)
	if err != nil {
		r.log.Warn().Err(err).Str("query", query).Msg("Search failed")
		return nil
	}
	if len(results) == 0 {
		return nil
	}

	best := results[0]
	bestScore := r.scoreCandidate(query, best)
	for _, c := range results[1:] {
		if s := r.scoreCandidate(query, c); s > bestScore {
			best, bestScore = c, s
		}
	}
	return &best
}

// scoreCandidate weights a search result: exact symbol match highest,
// home market heavily favored, secondary euro venues moderately, and
// instrument-type agreement when the query looks like a fund query.
func (r *Resolver) scoreCandidate(query string, c market.SearchResult) float64 {
	w := r.tables.Search
	score := 0.0

	bare := suffixPattern.ReplaceAllString(c.Symbol, "")
	if strings.EqualFold(c.Symbol, query) || strings.EqualFold(bare, query) {
		score += w.ExactSymbol
	}

	switch {
	case containsFold(w.HomeExchanges, c.Exchange):
		score += w.HomeExchange
	case containsFold(w.SecondaryExchanges, c.Exchange):
		score += w.SecondaryExchange
	}

	if looksLikeFundQuery(query) && isFundType(c.Type) {
		score += w.FundType
	}

	return score
}

// finish applies the currency/unit policy and rounding to a raw quote.
//
// Quoting currency comes from the symbol shape: exchange suffix first,
// then the bare-US-ticker pattern, defaulting to the reference currency.
// GBP prices above the pence threshold are read as minor units and
// divided by 100 together with the previous close.
func (r *Resolver) finish(symbol, name string, q *market.Quote) *Resolution {
	currency := r.currencyFor(symbol)

	price := q.Price
	previous := q.PreviousClose
	if currency == "GBP" && price > penceThreshold {
		price /= 100
		previous /= 100
	}

	if name == "" {
		name = symbol
	}

	return &Resolution{
		Symbol:        symbol,
		Name:          name,
		Price:         round(price),
		PreviousClose: round(previous),
		Currency:      currency,
	}
}

// currencyFor detects the quoting currency from the symbol shape alone.
func (r *Resolver) currencyFor(symbol string) string {
	upper := strings.ToUpper(symbol)
	for suffix, code := range r.tables.SuffixCurrencies {
		if strings.HasSuffix(upper, strings.ToUpper(suffix)) {
			return code
		}
	}
	if usTickerPattern.MatchString(upper) {
		return "USD"
	}
	return r.tables.ReferenceCurrency
}

// looksLikeSymbol reports whether a candidate is worth a direct quote
// lookup: short, or exchange-qualified, or fully uppercase.
func looksLikeSymbol(candidate string) bool {
	if candidate == "" || strings.ContainsAny(candidate, " \t") {
		return false
	}
	if suffixPattern.MatchString(candidate) {
		return true
	}
	if len(candidate) <= maxDirectSymbolLen {
		return true
	}
	return candidate == strings.ToUpper(candidate)
}

// looksLikeFundQuery reports whether the free text reads like an
// ETF/fund query.
func looksLikeFundQuery(query string) bool {
	lower := strings.ToLower(query)
	for _, marker := range []string{"etf", "fund", "msci", "index", "tracker"} {
		if strings.Contains(lower, marker) {
			return true
		}
	}
	return false
}

func isFundType(t string) bool {
	switch strings.ToUpper(t) {
	case "ETF", "MUTUALFUND", "FUND", "INDEX":
		return true
	}
	return false
}

// cleanSymbol uppercases the input and strips everything that cannot
// appear in a symbol.
func cleanSymbol(raw string) string {
	var b strings.Builder
	for _, r := range strings.ToUpper(raw) {
		switch {
		case r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '.', r == '-':
			b.WriteRune(r)
		}
	}
	return b.String()
}

func containsFold(list []string, s string) bool {
	for _, v := range list {
		if strings.EqualFold(v, s) {
			return true
		}
	}
	return false
}

func round(v float64) float64 {
	shift := math.Pow10(priceDecimals)
	return math.Round(v*shift) / shift
}
