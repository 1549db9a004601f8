package yahoo

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"monpecule/internal/clientdata"
	"monpecule/internal/database"
	"monpecule/internal/market"
)

const chartBody = `{"chart":{"result":[{"meta":{"symbol":"BNP.PA","currency":"EUR",
"regularMarketPrice":61.23,"chartPreviousClose":60.5,"shortName":"BNP Paribas"},
"timestamp":[1756425600,1756512000,1756598400],
"indicators":{"quote":[{"close":[60.1,null,61.23]}]}}],"error":null}}`

const searchBody = `{"quotes":[
{"symbol":"BNP.PA","longname":"BNP Paribas SA","exchange":"PAR","quoteType":"EQUITY"},
{"symbol":"BNPQY","shortname":"BNP Paribas ADR","exchange":"PNK","quoteType":"EQUITY"}],
"news":[{"title":"BNP beats estimates","publisher":"Wire","providerPublishTime":1756680000}]}`

func testClient(t *testing.T, handler http.Handler) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	return NewClientWithBaseURLs(server.URL, server.URL, nil, zerolog.Nop())
}

func TestQuoteParsesChartMeta(t *testing.T) {
	c := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, chartBody)
	}))

	q, err := c.Quote(context.Background(), "BNP.PA")
	require.NoError(t, err)
	assert.Equal(t, "BNP.PA", q.Symbol)
	assert.Equal(t, "BNP Paribas", q.Name)
	assert.Equal(t, 61.23, q.Price)
	assert.Equal(t, 60.5, q.PreviousClose)
	assert.Equal(t, "EUR", q.Currency)
}

func TestQuoteNotFound(t *testing.T) {
	c := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))

	_, err := c.Quote(context.Background(), "NOPE")
	assert.ErrorIs(t, err, market.ErrNotFound)
}

func TestQuoteEmptyResult(t *testing.T) {
	c := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"chart":{"result":[],"error":null}}`)
	}))

	_, err := c.Quote(context.Background(), "NOPE")
	assert.ErrorIs(t, err, market.ErrNotFound)
}

func TestSearchParsesCandidates(t *testing.T) {
	c := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "BNP Paribas", r.URL.Query().Get("q"))
		fmt.Fprint(w, searchBody)
	}))

	results, err := c.Search(context.Background(), "BNP Paribas")
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "BNP.PA", results[0].Symbol)
	assert.Equal(t, "BNP Paribas SA", results[0].Name)
	assert.Equal(t, "PAR", results[0].Exchange)
	assert.Equal(t, "EQUITY", results[0].Type)
	assert.Equal(t, "BNP Paribas ADR", results[1].Name, "shortname fills in when longname is absent")
}

func TestHistorySkipsNullCloses(t *testing.T) {
	c := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, chartBody)
	}))

	candles, err := c.History(context.Background(), "BNP.PA", time.Now().AddDate(0, 0, -30))
	require.NoError(t, err)
	require.Len(t, candles, 2, "the null close for the market holiday is dropped")
	assert.Equal(t, 60.1, candles[0].Close)
	assert.Equal(t, 61.23, candles[1].Close)
}

func TestNewsParsesTimestamps(t *testing.T) {
	c := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, searchBody)
	}))

	items, err := c.News(context.Background(), "BNP.PA")
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "BNP beats estimates", items[0].Title)
	assert.Equal(t, "Wire", items[0].Publisher)
	assert.Equal(t, time.Unix(1756680000, 0).UTC(), items[0].Published)
}

func TestQuoteServedFromCache(t *testing.T) {
	db, err := database.New(database.Config{
		Path:    fmt.Sprintf("file:yahoo_%s?mode=memory&cache=shared", t.Name()),
		Profile: database.ProfileCache,
		Name:    "clientdata",
	})
	require.NoError(t, err)
	require.NoError(t, db.Migrate())
	t.Cleanup(func() { db.Close() })
	repo := clientdata.NewRepository(db.Conn())

	var calls int64
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt64(&calls, 1)
		fmt.Fprint(w, chartBody)
	}))
	t.Cleanup(server.Close)
	c := NewClientWithBaseURLs(server.URL, server.URL, repo, zerolog.Nop())

	for i := 0; i < 3; i++ {
		_, err := c.Quote(context.Background(), "BNP.PA")
		require.NoError(t, err)
	}
	assert.Equal(t, int64(1), atomic.LoadInt64(&calls), "repeat lookups inside the TTL hit the cache")
}
