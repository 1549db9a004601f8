package quotes

import (
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"monpecule/internal/config"
	"monpecule/internal/market"
)

// fakeProvider serves canned quotes and search results keyed by symbol.
type fakeProvider struct {
	name     string
	quotes   map[string]market.Quote
	results  []market.SearchResult
	quoteLog []string
}

func (f *fakeProvider) Name() string { return f.name }

func (f *fakeProvider) Quote(ctx context.Context, symbol string) (*market.Quote, error) {
	f.quoteLog = append(f.quoteLog, symbol)
	if q, ok := f.quotes[symbol]; ok {
		return &q, nil
	}
	return nil, market.ErrNotFound
}

func (f *fakeProvider) Search(ctx context.Context, query string) ([]market.SearchResult, error) {
	return f.results, nil
}

func testResolver(primary, secondary market.QuoteProvider, search market.SearchProvider) *Resolver {
	normalizer := NewNormalizer(
		map[string]string{"FR0000131104": "BNP.PA", "BNP": "BNP.PA"},
		map[string]string{"amundi msci world": "CW8.PA"},
	)
	return NewResolver(normalizer, primary, secondary, search, config.DefaultMarket(), zerolog.Nop())
}

func TestResolveDirectSymbol(t *testing.T) {
	primary := &fakeProvider{name: "primary", quotes: map[string]market.Quote{
		"BNP.PA": {Symbol: "BNP.PA", Name: "BNP Paribas", Price: 61.23456, PreviousClose: 60.5},
	}}
	r := testResolver(primary, nil, primary)

	res, err := r.Resolve(context.Background(), "FR0000131104")
	require.NoError(t, err)
	assert.Equal(t, "BNP.PA", res.Symbol)
	assert.Equal(t, "EUR", res.Currency, "Paris suffix quotes in euros")
	assert.Equal(t, 61.2346, res.Price, "prices round to four decimals")
	assert.Equal(t, 60.5, res.PreviousClose)
}

func TestResolveBareUSTicker(t *testing.T) {
	primary := &fakeProvider{name: "primary", quotes: map[string]market.Quote{
		"AAPL": {Symbol: "AAPL", Name: "Apple Inc.", Price: 210.42, PreviousClose: 208.0},
	}}
	r := testResolver(primary, nil, primary)

	res, err := r.Resolve(context.Background(), "aapl")
	require.NoError(t, err)
	assert.Equal(t, "AAPL", res.Symbol)
	assert.Equal(t, "USD", res.Currency, "bare US-style ticker quotes in dollars")
}

func TestResolveGBPPenceCorrection(t *testing.T) {
	primary := &fakeProvider{name: "primary", quotes: map[string]market.Quote{
		"VOD.L": {Symbol: "VOD.L", Price: 7250, PreviousClose: 7180},
	}}
	r := testResolver(primary, nil, primary)

	res, err := r.Resolve(context.Background(), "VOD.L")
	require.NoError(t, err)
	assert.Equal(t, "GBP", res.Currency)
	assert.Equal(t, 72.5, res.Price, "pence quotes divide by 100")
	assert.Equal(t, 71.8, res.PreviousClose, "previous close divides with the price")
}

func TestResolveGBPBelowPenceThreshold(t *testing.T) {
	primary := &fakeProvider{name: "primary", quotes: map[string]market.Quote{
		"SHEL.L": {Symbol: "SHEL.L", Price: 28.44, PreviousClose: 28.1},
	}}
	r := testResolver(primary, nil, primary)

	res, err := r.Resolve(context.Background(), "SHEL.L")
	require.NoError(t, err)
	assert.Equal(t, 28.44, res.Price, "prices at or below the threshold pass through")
}

func TestResolveFallsBackToSearch(t *testing.T) {
	// The ISIN has no override entry and no direct quote, so resolution
	// must go through scored search.
	provider := &fakeProvider{
		name: "primary",
		quotes: map[string]market.Quote{
			"OR.PA": {Symbol: "OR.PA", Name: "L'Oreal", Price: 410.2, PreviousClose: 405.0},
		},
		results: []market.SearchResult{
			{Symbol: "LRLCY", Name: "L'Oreal ADR", Exchange: "PNK", Type: "EQUITY"},
			{Symbol: "OR.PA", Name: "L'Oreal", Exchange: "PAR", Type: "EQUITY"},
		},
	}
	r := testResolver(provider, nil, provider)

	res, err := r.Resolve(context.Background(), "FR0000120321")
	require.NoError(t, err)
	assert.Equal(t, "OR.PA", res.Symbol, "home exchange outweighs other venues")
	assert.Equal(t, "L'Oreal", res.Name)
	assert.Equal(t, "EUR", res.Currency)
}

func TestResolveSecondaryProviderFallback(t *testing.T) {
	primary := &fakeProvider{name: "primary", quotes: map[string]market.Quote{}}
	secondary := &fakeProvider{name: "secondary", quotes: map[string]market.Quote{
		"BNP.PA": {Symbol: "BNP.PA", Price: 61.0, PreviousClose: 60.0},
	}}
	r := testResolver(primary, secondary, primary)

	res, err := r.Resolve(context.Background(), "BNP")
	require.NoError(t, err)
	assert.Equal(t, "BNP.PA", res.Symbol)
	assert.Equal(t, 61.0, res.Price)
}

func TestResolveZeroPriceSkipsProvider(t *testing.T) {
	primary := &fakeProvider{name: "primary", quotes: map[string]market.Quote{
		"BNP.PA": {Symbol: "BNP.PA", Price: 0},
	}}
	secondary := &fakeProvider{name: "secondary", quotes: map[string]market.Quote{
		"BNP.PA": {Symbol: "BNP.PA", Price: 59.9, PreviousClose: 59.1},
	}}
	r := testResolver(primary, secondary, primary)

	res, err := r.Resolve(context.Background(), "BNP")
	require.NoError(t, err)
	assert.Equal(t, 59.9, res.Price, "a zero price is no price")
}

func TestResolveLastResortCleanedInput(t *testing.T) {
	// Not symbol-like (contains a space), search returns nothing, but
	// the cleaned input itself quotes.
	provider := &fakeProvider{
		name: "primary",
		quotes: map[string]market.Quote{
			"MC.PA": {Symbol: "MC.PA", Price: 612.3, PreviousClose: 610.0},
		},
	}
	r := testResolver(provider, nil, provider)

	res, err := r.Resolve(context.Background(), "mc .pa")
	require.NoError(t, err)
	assert.Equal(t, "MC.PA", res.Symbol)
}

func TestResolveNothingFound(t *testing.T) {
	provider := &fakeProvider{name: "primary", quotes: map[string]market.Quote{}}
	r := testResolver(provider, nil, provider)

	_, err := r.Resolve(context.Background(), "completely unknown thing")
	assert.ErrorIs(t, err, ErrNoQuote)

	_, err = r.Resolve(context.Background(), "   ")
	assert.ErrorIs(t, err, ErrNoQuote)
}

func TestResolveDirectNotRetriedAsLastResort(t *testing.T) {
	provider := &fakeProvider{name: "primary", quotes: map[string]market.Quote{}}
	r := testResolver(provider, nil, provider)

	_, err := r.Resolve(context.Background(), "ZZZZ")
	assert.ErrorIs(t, err, ErrNoQuote)

	direct := 0
	for _, s := range provider.quoteLog {
		if s == "ZZZZ" {
			direct++
		}
	}
	assert.Equal(t, 1, direct, "the cleaned input equals the direct candidate and is not fetched twice")
}

func TestScoreCandidateWeights(t *testing.T) {
	provider := &fakeProvider{name: "primary"}
	r := testResolver(provider, nil, provider)

	exact := r.scoreCandidate("CW8", market.SearchResult{Symbol: "CW8.PA", Exchange: "PAR", Type: "ETF"})
	other := r.scoreCandidate("CW8", market.SearchResult{Symbol: "CW8U.L", Exchange: "LSE", Type: "ETF"})
	assert.Greater(t, exact, other)

	fund := r.scoreCandidate("amundi etf", market.SearchResult{Symbol: "CW8.PA", Exchange: "PAR", Type: "ETF"})
	equity := r.scoreCandidate("amundi etf", market.SearchResult{Symbol: "AMUN.PA", Exchange: "PAR", Type: "EQUITY"})
	assert.Greater(t, fund, equity, "fund-looking queries prefer fund instruments")
}

func TestLooksLikeSymbol(t *testing.T) {
	assert.True(t, looksLikeSymbol("BNP.PA"))
	assert.True(t, looksLikeSymbol("AAPL"))
	assert.True(t, looksLikeSymbol("FR0000131104"), "uppercase alphanumerics pass")
	assert.False(t, looksLikeSymbol("Banque Nationale"))
	assert.False(t, looksLikeSymbol(""))
}
