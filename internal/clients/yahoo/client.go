// Package yahoo provides the primary quote provider client (Yahoo Finance
// public endpoints: chart, search). Responses are cached persistently so
// batch refreshes do not hammer the rate-limited API.
package yahoo

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

// Client for the Yahoo Finance public API.
type Client struct {
	quoteURL  string // chart endpoint base (query1)
	searchURL string // search endpoint base (query2)
	client    *http.Client
	log       zerolog.Logger
	cacheRepo *clientdata.Repository
}

// NewClient creates a new Yahoo Finance client.
// cacheRepo is optional - if nil, caching is disabled.
func NewClient(cacheRepo *clientdata.Repository, log zerolog.Logger) *Client {
	return &Client{
		quoteURL:  "https://query1.finance.yahoo.com/v8/finance/chart",
		searchURL: "https://query2.finance.yahoo.com/v1/finance/search",
		client:    &http.Client{Timeout: callTimeout},
		log:       log.With().Str("client", "yahoo").Logger(),
		cacheRepo: cacheRepo,
	}
}

// NewClientWithBaseURLs creates a client pointed at custom endpoints.
// Used in tests with httptest servers.
func NewClientWithBaseURLs(quoteURL, searchURL string, cacheRepo *clientdata.Repository, log zerolog.Logger) *Client {
	c := NewClient(cacheRepo, log)
	c.quoteURL = quoteURL
	c.searchURL = searchURL
	return c
}

// Name identifies the provider in logs and resolver fallback chains.
func (c *Client) Name() string { return "yahoo" }

// chartResponse is the subset of the chart endpoint payload we consume.
type chartResponse struct {
	Chart struct {
		Result []struct {
			Meta struct {
				Symbol             string  `json:"symbol"`
				Currency           string  `json:"currency"`
				RegularMarketPrice float64 `json:"regularMarketPrice"`
				PreviousClose      float64 `json:"chartPreviousClose"`
				LongName           string  `json:"longName"`
				ShortName          string  `json:"shortName"`
			} `json:"meta"`
			Timestamp  []int64 `json:"timestamp"`
			Indicators struct {
				Quote []struct {
					Close []*float64 `json:"close"`
				} `json:"quote"`
			} `json:"indicators"`
		} `json:"result"`
		Error *struct {
			Code        string `json:"code"`
			Description string `json:"description"`
		} `json:"error"`
	} `json:"chart"`
}

// Quote fetches the current price and previous close for an exact symbol.
func (c *Client) Quote(ctx context.Context, symbol string) (*market.Quote, error) {
	if cached, ok := c.fromCache("yahoo_quote", symbol); ok {
		var q market.Quote
		if err := json.Unmarshal(cached, &q); err == nil {
			return &q, nil
		}
	}

	u := fmt.Sprintf("%s/%s?range=1d&interval=1d", c.quoteURL, url.PathEscape(symbol))
	var payload chartResponse
	if err := c.getJSON(ctx, u, &payload); err != nil {
		return nil, err
	}

	if payload.Chart.Error != nil || len(payload.Chart.Result) == 0 {
		return nil, market.ErrNotFound
	}

	meta := payload.Chart.Result[0].Meta
	if meta.RegularMarketPrice == 0 {
		return nil, market.ErrNotFound
	}

	name := meta.LongName
	if name == "" {
		name = meta.ShortName
	}
	q := &market.Quote{
		Symbol:        meta.Symbol,
		Name:          name,
		Price:         meta.RegularMarketPrice,
		PreviousClose: meta.PreviousClose,
		Currency:      meta.Currency,
	}

	c.toCache("yahoo_quote", symbol, q, clientdata.TTLQuote)
	return q, nil
}

// searchResponse is the subset of the search endpoint payload we consume.
type searchResponse struct {
	Quotes []struct {
		Symbol    string `json:"symbol"`
		ShortName string `json:"shortname"`
		LongName  string `json:"longname"`
		Exchange  string `json:"exchange"`
		QuoteType string `json:"quoteType"`
	} `json:"quotes"`
	News []struct {
		Title     string `json:"title"`
		Publisher string `json:"publisher"`
		Published int64  `json:"providerPublishTime"`
	} `json:"news"`
}

// Search resolves free text (name, ISIN, partial ticker) to candidates.
func (c *Client) Search(ctx context.Context, query string) ([]market.SearchResult, error) {
	if cached, ok := c.fromCache("yahoo_search", query); ok {
		var results []market.SearchResult
		if err := json.Unmarshal(cached, &results); err == nil {
			return results, nil
		}
	}

	u := fmt.Sprintf("%s?q=%s&quotesCount=10&newsCount=0", c.searchURL, url.QueryEscape(query))
	var payload searchResponse
	if err := c.getJSON(ctx, u, &payload); err != nil {
		return nil, err
	}

	results := make([]market.SearchResult, 0, len(payload.Quotes))
	for _, q := range payload.Quotes {
		name := q.LongName
		if name == "" {
			name = q.ShortName
		}
		results = append(results, market.SearchResult{
			Symbol:   q.Symbol,
			Name:     name,
			Exchange: q.Exchange,
			Type:     q.QuoteType,
		})
	}

	c.toCache("yahoo_search", query, results, clientdata.TTLSearch)
	return results, nil
}

// History returns daily closes from the given date, oldest first.
func (c *Client) History(ctx context.Context, symbol string, from time.Time) ([]market.Candle, error) {
	cacheKey := fmt.Sprintf("%s:%s", symbol, from.Format("2006-01-02"))
	if cached, ok := c.fromCache("yahoo_history", cacheKey); ok {
		var candles []market.Candle
		if err := json.Unmarshal(cached, &candles); err == nil {
			return candles, nil
		}
	}

	u := fmt.Sprintf("%s/%s?period1=%d&period2=%d&interval=1d",
		c.quoteURL, url.PathEscape(symbol), from.Unix(), time.Now().Unix())
	var payload chartResponse
	if err := c.getJSON(ctx, u, &payload); err != nil {
		return nil, err
	}

	if payload.Chart.Error != nil || len(payload.Chart.Result) == 0 {
		return nil, market.ErrNotFound
	}

	result := payload.Chart.Result[0]
	if len(result.Indicators.Quote) == 0 {
		return nil, market.ErrNotFound
	}

	closes := result.Indicators.Quote[0].Close
	candles := make([]market.Candle, 0, len(result.Timestamp))
	for i, ts := range result.Timestamp {
		if i >= len(closes) || closes[i] == nil {
			// Market holidays produce null closes
			continue
		}
		candles = append(candles, market.Candle{
			Day:   time.Unix(ts, 0).UTC().Format("2006-01-02"),
			Close: *closes[i],
		})
	}

	c.toCache("yahoo_history", cacheKey, candles, clientdata.TTLHistory)
	return candles, nil
}

// News returns recent headlines mentioning the symbol.
func (c *Client) News(ctx context.Context, symbol string) ([]market.NewsItem, error) {
	if cached, ok := c.fromCache("yahoo_news", symbol); ok {
		var items []market.NewsItem
		if err := json.Unmarshal(cached, &items); err == nil {
			return items, nil
		}
	}

	u := fmt.Sprintf("%s?q=%s&quotesCount=0&newsCount=15", c.searchURL, url.QueryEscape(symbol))
	var payload searchResponse
	if err := c.getJSON(ctx, u, &payload); err != nil {
		return nil, err
	}

	items := make([]market.NewsItem, 0, len(payload.News))
	for _, n := range payload.News {
		items = append(items, market.NewsItem{
			Title:     n.Title,
			Publisher: n.Publisher,
			Published: time.Unix(n.Published, 0).UTC(),
		})
	}

	c.toCache("yahoo_news", symbol, items, clientdata.TTLNews)
	return items, nil
}

// getJSON performs a GET request and decodes the JSON response.
func (c *Client) getJSON(ctx context.Context, rawURL string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	// The public endpoints reject requests without a browser user agent
	req.Header.Set("User-Agent", "Mozilla/5.0")

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

func (c *Client) fromCache(table, key string) (json.RawMessage, bool) {
	if c.cacheRepo == nil {
		return nil, false
	}
	data, err := c.cacheRepo.GetIfFresh(table, key)
	if err != nil || data == nil {
		return nil, false
	}
	c.log.Debug().Str("table", table).Str("key", key).Msg("Cache hit")
	return data, true
}

func (c *Client) toCache(table, key string, data interface{}, ttl time.Duration) {
	if c.cacheRepo == nil {
		return
	}
	if err := c.cacheRepo.Store(table, key, data, ttl); err != nil {
		c.log.Warn().Err(err).Str("table", table).Str("key", key).Msg("Failed to cache response")
	}
}
