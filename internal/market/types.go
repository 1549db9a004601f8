// Package market defines the abstract quote-provider capability the
// rest of the system consumes. Any concrete vendor is swappable behind
// these interfaces; nothing outside internal/clients may assume a
// specific vendor's response shape.
package market

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a provider has no data for a symbol.
var ErrNotFound = errors.New("market: not found")

// Quote is the normalized shape returned by all providers.
type Quote struct {
	Symbol        string  `json:"symbol"`
	Name          string  `json:"name"`
	Price         float64 `json:"price"`
	PreviousClose float64 `json:"previous_close"`
	Currency      string  `json:"currency"`
}

// SearchResult is a candidate instrument returned by a free-text search.
type SearchResult struct {
	Symbol   string `json:"symbol"`
	Name     string `json:"name"`
	Exchange string `json:"exchange"`
	Type     string `json:"type"` // EQUITY, ETF, MUTUALFUND, ...
}

// Candle is one daily close from a price history.
type Candle struct {
	Day   string  `json:"day"` // YYYY-MM-DD
	Close float64 `json:"close"`
}

// NewsItem is one headline attributed to a symbol.
type NewsItem struct {
	Title     string    `json:"title"`
	Publisher string    `json:"publisher"`
	Published time.Time `json:"published"`
}

// QuoteProvider retrieves a current quote for an exact symbol.
type QuoteProvider interface {
	Name() string
	Quote(ctx context.Context, symbol string) (*Quote, error)
}

// SearchProvider resolves free text to candidate instruments.
type SearchProvider interface {
	Search(ctx context.Context, query string) ([]SearchResult, error)
}

// HistoryProvider retrieves ordered daily closes from a start date.
type HistoryProvider interface {
	History(ctx context.Context, symbol string, from time.Time) ([]Candle, error)
}

// NewsProvider retrieves recent headlines for a symbol.
type NewsProvider interface {
	News(ctx context.Context, symbol string) ([]NewsItem, error)
}
