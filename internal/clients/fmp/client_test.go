package fmp

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"monpecule/internal/market"
)

func testClient(t *testing.T, handler http.Handler) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	return NewClientWithBaseURL(server.URL, "test-key", nil, zerolog.Nop())
}

func TestQuoteParsesEntry(t *testing.T) {
	c := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "AAPL", r.URL.Query().Get("symbol"))
		assert.Equal(t, "test-key", r.URL.Query().Get("apikey"))
		fmt.Fprint(w, `[{"symbol":"AAPL","name":"Apple Inc.","price":187.44,"previousClose":185.2}]`)
	}))

	q, err := c.Quote(context.Background(), "AAPL")
	require.NoError(t, err)
	assert.Equal(t, "AAPL", q.Symbol)
	assert.Equal(t, "Apple Inc.", q.Name)
	assert.Equal(t, 187.44, q.Price)
	assert.Equal(t, 185.2, q.PreviousClose)
	assert.Empty(t, q.Currency, "fmp does not report a currency")
}

func TestQuoteEmptyArray(t *testing.T) {
	c := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `[]`)
	}))

	_, err := c.Quote(context.Background(), "NOPE")
	assert.ErrorIs(t, err, market.ErrNotFound)
}

func TestQuoteZeroPrice(t *testing.T) {
	c := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `[{"symbol":"HALT","price":0}]`)
	}))

	_, err := c.Quote(context.Background(), "HALT")
	assert.ErrorIs(t, err, market.ErrNotFound)
}

func TestQuoteRequiresAPIKey(t *testing.T) {
	c := NewClientWithBaseURL("http://invalid.test", "", nil, zerolog.Nop())

	_, err := c.Quote(context.Background(), "AAPL")
	assert.ErrorContains(t, err, "API key")
}

func TestSearchParsesEntries(t *testing.T) {
	c := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "BNP Paribas", r.URL.Query().Get("query"))
		fmt.Fprint(w, `[{"symbol":"BNP.PA","name":"BNP Paribas SA","exchangeShortName":"PAR"}]`)
	}))

	results, err := c.Search(context.Background(), "BNP Paribas")
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "BNP.PA", results[0].Symbol)
	assert.Equal(t, "PAR", results[0].Exchange)
}

func TestErrorStatus(t *testing.T) {
	c := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))

	_, err := c.Quote(context.Background(), "AAPL")
	assert.ErrorContains(t, err, "status 429")
}
