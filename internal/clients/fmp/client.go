// Package fmp provides the secondary quote provider client
// (Financial Modeling Prep). It backs up the primary provider in the
// resolver fallback chain; the free tier is limited to 250 calls/day,
// so quote responses are cached.
package fmp

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/rs/zerolog"

	"monpecule/internal/clientdata"
	"monpecule/internal/market"
)

const callTimeout = 5 * time.Second

// Client for the Financial Modeling Prep API.
type Client struct {
	baseURL   string
	apiKey    string
	client    *http.Client
	log       zerolog.Logger
	cacheRepo *clientdata.Repository
}

// NewClient creates a new FMP client.
// cacheRepo is optional - if nil, caching is disabled.
func NewClient(apiKey string, cacheRepo *clientdata.Repository, log zerolog.Logger) *Client {
	return &Client{
		baseURL:   "https://financialmodelingprep.com/stable",
		apiKey:    apiKey,
		client:    &http.Client{Timeout: callTimeout},
		log:       log.With().Str("client", "fmp").Logger(),
		cacheRepo: cacheRepo,
	}
}

// NewClientWithBaseURL creates a client pointed at a custom endpoint.
// Used in tests with httptest servers.
func NewClientWithBaseURL(baseURL, apiKey string, cacheRepo *clientdata.Repository, log zerolog.Logger) *Client {
	c := NewClient(apiKey, cacheRepo, log)
	c.baseURL = baseURL
	return c
}

// Name identifies the provider in logs and resolver fallback chains.
func (c *Client) Name() string { return "fmp" }

type quoteEntry struct {
	Symbol        string  `json:"symbol"`
	Name          string  `json:"name"`
	Price         float64 `json:"price"`
	PreviousClose float64 `json:"previousClose"`
}

// Quote fetches the current price for an exact symbol.
func (c *Client) Quote(ctx context.Context, symbol string) (*market.Quote, error) {
	if c.apiKey == "" {
		return nil, fmt.Errorf("fmp: API key not configured")
	}

	if c.cacheRepo != nil {
		if data, err := c.cacheRepo.GetIfFresh("fmp_quote", symbol); err == nil && data != nil {
			var q market.Quote
			if err := json.Unmarshal(data, &q); err == nil {
				c.log.Debug().Str("symbol", symbol).Msg("Cache hit")
				return &q, nil
			}
		}
	}

	u := fmt.Sprintf("%s/quote?symbol=%s&apikey=%s", c.baseURL, url.QueryEscape(symbol), url.QueryEscape(c.apiKey))

	var entries []quoteEntry
	if err := c.getJSON(ctx, u, &entries); err != nil {
		return nil, err
	}
	if len(entries) == 0 || entries[0].Price == 0 {
		return nil, market.ErrNotFound
	}

	q := &market.Quote{
		Symbol:        entries[0].Symbol,
		Name:          entries[0].Name,
		Price:         entries[0].Price,
		PreviousClose: entries[0].PreviousClose,
	}

	if c.cacheRepo != nil {
		if err := c.cacheRepo.Store("fmp_quote", symbol, q, clientdata.TTLQuote); err != nil {
			c.log.Warn().Err(err).Str("symbol", symbol).Msg("Failed to cache quote")
		}
	}

	return q, nil
}

type searchEntry struct {
	Symbol   string `json:"symbol"`
	Name     string `json:"name"`
	Exchange string `json:"exchangeShortName"`
}

// Search resolves free text (company name, ISIN) to candidate symbols.
func (c *Client) Search(ctx context.Context, query string) ([]market.SearchResult, error) {
	if c.apiKey == "" {
		return nil, fmt.Errorf("fmp: API key not configured")
	}

	u := fmt.Sprintf("%s/search-symbol?query=%s&apikey=%s", c.baseURL, url.QueryEscape(query), url.QueryEscape(c.apiKey))

	var entries []searchEntry
	if err := c.getJSON(ctx, u, &entries); err != nil {
		return nil, err
	}

	results := make([]market.SearchResult, 0, len(entries))
	for _, e := range entries {
		results = append(results, market.SearchResult{
			Symbol:   e.Symbol,
			Name:     e.Name,
			Exchange: e.Exchange,
		})
	}
	return results, nil
}

func (c *Client) getJSON(ctx context.Context, rawURL string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("API request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return market.ErrNotFound
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("API returned status %d", resp.StatusCode)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to parse response: %w", err)
	}
	return nil
}
