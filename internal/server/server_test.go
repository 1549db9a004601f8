package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"monpecule/internal/config"
	"monpecule/internal/database"
	"monpecule/internal/jobs"
	"monpecule/internal/market"
	"monpecule/internal/modules/analysis"
	"monpecule/internal/modules/currency"
	"monpecule/internal/modules/identity"
	"monpecule/internal/modules/monthly"
	"monpecule/internal/modules/positions"
	"monpecule/internal/modules/quotes"
	"monpecule/internal/modules/refresh"
	"monpecule/internal/modules/valuation"
)

const adminToken = "test-admin-token"

type stubMarket struct {
	quotes map[string]market.Quote
}

func (s *stubMarket) Name() string { return "stub" }

func (s *stubMarket) Quote(ctx context.Context, symbol string) (*market.Quote, error) {
	if q, ok := s.quotes[symbol]; ok {
		return &q, nil
	}
	return nil, market.ErrNotFound
}

func (s *stubMarket) Search(ctx context.Context, query string) ([]market.SearchResult, error) {
	return nil, nil
}

func (s *stubMarket) History(ctx context.Context, symbol string, from time.Time) ([]market.Candle, error) {
	return nil, nil
}

func (s *stubMarket) News(ctx context.Context, symbol string) ([]market.NewsItem, error) {
	return nil, nil
}

type testApp struct {
	ts       *httptest.Server
	provider *stubMarket
}

func newTestApp(t *testing.T) *testApp {
	t.Helper()

	portfolioDB, err := database.New(database.Config{
		Path:    fmt.Sprintf("file:server_pf_%s?mode=memory&cache=shared", t.Name()),
		Profile: database.ProfileStandard,
		Name:    "portfolio",
	})
	require.NoError(t, err)
	require.NoError(t, portfolioDB.Migrate())
	t.Cleanup(func() { portfolioDB.Close() })

	cacheDB, err := database.New(database.Config{
		Path:    fmt.Sprintf("file:server_cd_%s?mode=memory&cache=shared", t.Name()),
		Profile: database.ProfileCache,
		Name:    "clientdata",
	})
	require.NoError(t, err)
	require.NoError(t, cacheDB.Migrate())
	t.Cleanup(func() { cacheDB.Close() })

	tables := config.DefaultMarket()
	provider := &stubMarket{quotes: map[string]market.Quote{}}
	resolver := quotes.NewResolver(
		quotes.NewNormalizer(tables.Overrides, tables.Fragments),
		provider, nil, provider, tables, zerolog.Nop())
	converter := currency.NewConverter(tables, zerolog.Nop())
	engine := valuation.NewEngine(converter, zerolog.Nop())

	conn := portfolioDB.Conn()
	identityRepo := identity.NewRepository(conn, zerolog.Nop())
	identityService := identity.NewService(identityRepo, zerolog.Nop())
	positionRepo := positions.NewRepository(conn, zerolog.Nop())
	accumulator := monthly.NewAccumulator(conn, zerolog.Nop())
	orchestrator := refresh.NewOrchestrator(resolver, positionRepo, accumulator,
		converter, identityRepo, 0, zerolog.Nop())

	scorer := analysis.NewScorer(provider, provider, provider, tables.Watchlist, zerolog.Nop())
	snapshotRepo := analysis.NewSnapshotRepository(conn, zerolog.Nop())
	analysisService := analysis.NewService(scorer, snapshotRepo, positionRepo,
		tables.Watchlist, zerolog.Nop())

	runner := jobs.NewRunner(context.Background(), zerolog.Nop())
	t.Cleanup(func() { runner.Shutdown(time.Second) })

	srv := New(Config{
		Log: zerolog.Nop(),
		Cfg: &config.Config{
			DataDir:    t.TempDir(),
			AdminToken: adminToken,
		},
		PortfolioDB:  portfolioDB,
		CacheDB:      cacheDB,
		Identity:     identityService,
		IdentityRepo: identityRepo,
		Positions:    positionRepo,
		Resolver:     resolver,
		Valuation:    engine,
		Monthly:      accumulator,
		Refresh:      orchestrator,
		Analysis:     analysisService,
		Jobs:         runner,
	})

	ts := httptest.NewServer(srv.Router())
	t.Cleanup(ts.Close)
	return &testApp{ts: ts, provider: provider}
}

// request performs a JSON request and decodes the response body.
func (a *testApp) request(t *testing.T, method, path, token string, body interface{}) (int, map[string]interface{}) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, a.ts.URL+path, &buf)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var decoded map[string]interface{}
	_ = json.NewDecoder(resp.Body).Decode(&decoded)
	return resp.StatusCode, decoded
}

// requestList is request for endpoints returning a JSON array.
func (a *testApp) requestList(t *testing.T, method, path, token string) (int, []map[string]interface{}) {
	t.Helper()
	req, err := http.NewRequest(method, a.ts.URL+path, nil)
	require.NoError(t, err)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var decoded []map[string]interface{}
	_ = json.NewDecoder(resp.Body).Decode(&decoded)
	return resp.StatusCode, decoded
}

// signup registers a user and returns a session token.
func (a *testApp) signup(t *testing.T, email string) string {
	t.Helper()
	code, _ := a.request(t, http.MethodPost, "/api/register", "", map[string]string{
		"name": "Tester", "email": email, "password": "hunter22",
	})
	require.Equal(t, http.StatusCreated, code)

	code, body := a.request(t, http.MethodPost, "/api/login", "", map[string]string{
		"email": email, "password": "hunter22",
	})
	require.Equal(t, http.StatusOK, code)
	token, _ := body["token"].(string)
	require.NotEmpty(t, token)
	return token
}

func TestRegisterAndLogin(t *testing.T) {
	app := newTestApp(t)

	code, body := app.request(t, http.MethodPost, "/api/register", "", map[string]string{
		"name": "Alice", "email": "Alice@Example.com", "password": "secret12",
	})
	require.Equal(t, http.StatusCreated, code)
	assert.Equal(t, "alice@example.com", body["email"], "email is stored lowercased")
	assert.Equal(t, "EUR", body["display_currency"])

	code, _ = app.request(t, http.MethodPost, "/api/register", "", map[string]string{
		"name": "Imposter", "email": "alice@example.com", "password": "other123",
	})
	assert.Equal(t, http.StatusConflict, code)

	code, _ = app.request(t, http.MethodPost, "/api/login", "", map[string]string{
		"email": "alice@example.com", "password": "wrong",
	})
	assert.Equal(t, http.StatusUnauthorized, code)

	code, body = app.request(t, http.MethodPost, "/api/login", "", map[string]string{
		"email": "alice@example.com", "password": "secret12",
	})
	require.Equal(t, http.StatusOK, code)
	assert.NotEmpty(t, body["token"])
}

func TestSessionRequired(t *testing.T) {
	app := newTestApp(t)

	code, _ := app.request(t, http.MethodGet, "/api/dashboard", "", nil)
	assert.Equal(t, http.StatusUnauthorized, code)

	code, _ = app.request(t, http.MethodGet, "/api/dashboard", "not-a-session", nil)
	assert.Equal(t, http.StatusUnauthorized, code)
}

func TestLogoutInvalidatesToken(t *testing.T) {
	app := newTestApp(t)
	token := app.signup(t, "bob@example.com")

	code, _ := app.request(t, http.MethodGet, "/api/dashboard", token, nil)
	require.Equal(t, http.StatusOK, code)

	code, _ = app.request(t, http.MethodPost, "/api/logout", token, nil)
	require.Equal(t, http.StatusOK, code)

	code, _ = app.request(t, http.MethodGet, "/api/dashboard", token, nil)
	assert.Equal(t, http.StatusUnauthorized, code)
}

func TestAccountLifecycle(t *testing.T) {
	app := newTestApp(t)
	token := app.signup(t, "carol@example.com")

	code, accounts := app.requestList(t, http.MethodGet, "/api/accounts/", token)
	require.Equal(t, http.StatusOK, code)
	require.Len(t, accounts, 1, "registration creates the default account")
	assert.Equal(t, "Principal", accounts[0]["name"])

	code, created := app.request(t, http.MethodPost, "/api/accounts/", token,
		map[string]string{"name": "PEA"})
	require.Equal(t, http.StatusCreated, code)
	accountID := int64(created["id"].(float64))

	code, _ = app.request(t, http.MethodPut, fmt.Sprintf("/api/accounts/%d", accountID),
		token, map[string]string{"name": "PEA Boursorama"})
	require.Equal(t, http.StatusOK, code)

	// Another user must not see or touch it
	other := app.signup(t, "mallory@example.com")
	code, _ = app.request(t, http.MethodPut, fmt.Sprintf("/api/accounts/%d", accountID),
		other, map[string]string{"name": "mine now"})
	assert.Equal(t, http.StatusNotFound, code)

	code, _ = app.request(t, http.MethodDelete, fmt.Sprintf("/api/accounts/%d", accountID), token, nil)
	require.Equal(t, http.StatusOK, code)

	code, accounts = app.requestList(t, http.MethodGet, "/api/accounts/", token)
	require.Equal(t, http.StatusOK, code)
	assert.Len(t, accounts, 1)
}

func TestPositionLifecycleAndDashboard(t *testing.T) {
	app := newTestApp(t)
	app.provider.quotes["BNP.PA"] = market.Quote{
		Symbol: "BNP.PA", Name: "BNP Paribas", Price: 61.5, PreviousClose: 60.0, Currency: "EUR",
	}
	token := app.signup(t, "dave@example.com")

	code, accounts := app.requestList(t, http.MethodGet, "/api/accounts/", token)
	require.Equal(t, http.StatusOK, code)
	accountID := int64(accounts[0]["id"].(float64))

	code, created := app.request(t, http.MethodPost, "/api/positions/", token, map[string]interface{}{
		"account_id":     accountID,
		"name":           "BNP Paribas",
		"identifier":     "BNP.PA",
		"purchase_price": 55.0,
		"quantity":       10,
		"fee":            2.5,
		"purchase_date":  "2026-01-15",
	})
	require.Equal(t, http.StatusCreated, code)
	positionID := int64(created["id"].(float64))
	assert.Equal(t, "BNP.PA", created["symbol"], "identifier resolves at creation")
	assert.Equal(t, 61.5, created["current_price"])

	code, dash := app.request(t, http.MethodGet, "/api/dashboard", token, nil)
	require.Equal(t, http.StatusOK, code)
	valued := dash["positions"].([]interface{})
	require.Len(t, valued, 1)
	totals := dash["totals"].(map[string]interface{})
	assert.Equal(t, 61.5*10, totals["market_value"])

	// Price fields are not editable through the update endpoint
	code, updated := app.request(t, http.MethodPut, fmt.Sprintf("/api/positions/%d", positionID),
		token, map[string]interface{}{"quantity": 12, "fee": 2.5})
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, float64(12), updated["quantity"])
	assert.Equal(t, 61.5, updated["current_price"])

	// Changing the identifier blanks the symbol until the next refresh,
	// both in the response and in the stored row
	code, updated = app.request(t, http.MethodPut, fmt.Sprintf("/api/positions/%d", positionID),
		token, map[string]interface{}{"identifier": "FR0000120271", "quantity": 12})
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "", updated["symbol"])

	code, stored := app.requestList(t, http.MethodGet, "/api/positions/", token)
	require.Equal(t, http.StatusOK, code)
	require.Len(t, stored, 1)
	assert.Equal(t, "", stored[0]["symbol"], "blanked symbol must be persisted")
	assert.Equal(t, "FR0000120271", stored[0]["identifier"])

	// Other users get a 404, not a 403, so position ids do not leak
	other := app.signup(t, "eve@example.com")
	code, _ = app.request(t, http.MethodGet, fmt.Sprintf("/api/positions/%d/history", positionID), other, nil)
	assert.Equal(t, http.StatusNotFound, code)

	code, _ = app.request(t, http.MethodDelete, fmt.Sprintf("/api/positions/%d", positionID), token, nil)
	require.Equal(t, http.StatusOK, code)
}

func TestUnresolvedAddValuesAtCost(t *testing.T) {
	app := newTestApp(t)
	token := app.signup(t, "oscar@example.com")

	code, accounts := app.requestList(t, http.MethodGet, "/api/accounts/", token)
	require.Equal(t, http.StatusOK, code)
	accountID := int64(accounts[0]["id"].(float64))

	// No quote exists for this identifier, so resolution fails and the
	// position must value at cost until the first successful refresh.
	code, created := app.request(t, http.MethodPost, "/api/positions/", token, map[string]interface{}{
		"account_id":     accountID,
		"name":           "Fonds Maison",
		"identifier":     "XX0000000000",
		"purchase_price": 50.0,
		"quantity":       10,
	})
	require.Equal(t, http.StatusCreated, code)
	assert.Equal(t, 50.0, created["current_price"])
	assert.Equal(t, 50.0, created["previous_price"])

	code, dash := app.request(t, http.MethodGet, "/api/dashboard", token, nil)
	require.Equal(t, http.StatusOK, code)
	totals := dash["totals"].(map[string]interface{})
	assert.Equal(t, 0.0, totals["total_gain_loss"])
	assert.Equal(t, 0.0, totals["day_gain_loss"])
}

func TestAddWithExplicitCurrentPrice(t *testing.T) {
	app := newTestApp(t)
	token := app.signup(t, "peggy@example.com")

	code, accounts := app.requestList(t, http.MethodGet, "/api/accounts/", token)
	require.Equal(t, http.StatusOK, code)
	accountID := int64(accounts[0]["id"].(float64))

	code, created := app.request(t, http.MethodPost, "/api/positions/", token, map[string]interface{}{
		"account_id":     accountID,
		"name":           "Fonds Maison",
		"identifier":     "XX0000000000",
		"purchase_price": 50.0,
		"current_price":  52.0,
		"quantity":       10,
	})
	require.Equal(t, http.StatusCreated, code)
	assert.Equal(t, 52.0, created["current_price"], "caller-supplied price wins when resolution fails")
	assert.Equal(t, 50.0, created["previous_price"])
}

func TestPositionRejectsForeignAccount(t *testing.T) {
	app := newTestApp(t)
	token := app.signup(t, "frank@example.com")
	other := app.signup(t, "grace@example.com")

	code, accounts := app.requestList(t, http.MethodGet, "/api/accounts/", other)
	require.Equal(t, http.StatusOK, code)
	foreignID := int64(accounts[0]["id"].(float64))

	code, _ = app.request(t, http.MethodPost, "/api/positions/", token, map[string]interface{}{
		"account_id": foreignID, "name": "Sneaky", "identifier": "BNP.PA", "quantity": 1,
	})
	assert.Equal(t, http.StatusNotFound, code)
}

func TestSearchTicker(t *testing.T) {
	app := newTestApp(t)
	app.provider.quotes["MC.PA"] = market.Quote{
		Symbol: "MC.PA", Name: "LVMH", Price: 612.4, Currency: "EUR",
	}
	token := app.signup(t, "heidi@example.com")

	code, body := app.request(t, http.MethodGet, "/api/search_ticker/MC.PA", token, nil)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "MC.PA", body["symbol"])
	assert.Equal(t, 612.4, body["price"])

	code, _ = app.request(t, http.MethodGet, "/api/search_ticker/NOSUCHTHING", token, nil)
	assert.Equal(t, http.StatusNotFound, code)
}

func TestUpdatePricesRunsAsJob(t *testing.T) {
	app := newTestApp(t)
	token := app.signup(t, "ivan@example.com")

	code, body := app.request(t, http.MethodPost, "/api/update_prices", token, nil)
	require.Equal(t, http.StatusAccepted, code)
	jobID, _ := body["job_id"].(string)
	require.NotEmpty(t, jobID)

	deadline := time.Now().Add(2 * time.Second)
	for {
		code, status := app.request(t, http.MethodGet, "/api/jobs/"+jobID, token, nil)
		require.Equal(t, http.StatusOK, code)
		if status["state"] == "done" {
			break
		}
		require.True(t, time.Now().Before(deadline), "job did not finish: %v", status)
		time.Sleep(10 * time.Millisecond)
	}
}

func TestAdminSurfaceGuarded(t *testing.T) {
	app := newTestApp(t)

	code, _ := app.request(t, http.MethodPost, "/api/admin/refresh", "", nil)
	assert.Equal(t, http.StatusForbidden, code)

	code, _ = app.request(t, http.MethodPost, "/api/admin/refresh", "wrong-token", nil)
	assert.Equal(t, http.StatusForbidden, code)

	code, body := app.request(t, http.MethodPost, "/api/admin/refresh", adminToken, nil)
	require.Equal(t, http.StatusAccepted, code)
	assert.NotEmpty(t, body["job_id"])
}

func TestAdminTokenQueryParam(t *testing.T) {
	app := newTestApp(t)

	code, _ := app.request(t, http.MethodPost, "/api/admin/monthly_reset?token=wrong", "", nil)
	assert.Equal(t, http.StatusForbidden, code)

	code, body := app.request(t, http.MethodPost, "/api/admin/monthly_reset?token="+adminToken, "", nil)
	require.Equal(t, http.StatusAccepted, code)
	assert.NotEmpty(t, body["job_id"])
}

func TestAdminBackupUnconfigured(t *testing.T) {
	app := newTestApp(t)

	code, _ := app.request(t, http.MethodPost, "/api/admin/backup", adminToken, nil)
	assert.Equal(t, http.StatusNotImplemented, code)
}

func TestAnalysisStartsEmpty(t *testing.T) {
	app := newTestApp(t)
	token := app.signup(t, "judy@example.com")

	code, snapshots := app.requestList(t, http.MethodGet, "/api/analysis", token)
	require.Equal(t, http.StatusOK, code)
	assert.Empty(t, snapshots)
}

func TestHealthEndpoint(t *testing.T) {
	app := newTestApp(t)

	code, body := app.request(t, http.MethodGet, "/api/system/health", "", nil)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, true, body["healthy"])
}
