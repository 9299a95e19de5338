package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"tradeguard/internal/events"
	"tradeguard/internal/journal"
	"tradeguard/internal/monitor"
	"tradeguard/internal/risk"
	"tradeguard/pkg/db"
)

func newTestAPIServer(t *testing.T) (*httptest.Server, func()) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	database, err := db.New(":memory:")
	if err != nil {
		t.Fatalf("db.New: %v", err)
	}
	if err := db.ApplyMigrations(database); err != nil {
		t.Fatalf("ApplyMigrations: %v", err)
	}

	bus := events.NewBus()
	metrics := monitor.NewSystemMetrics()

	limits := risk.Limits{
		MaxDailyLoss:     decimal.NewFromInt(200),
		MaxTradesPerDay:  5,
		MaxTradesMonthly: 100,
		MaxTradesYearly:  1000,
	}
	engine := risk.NewEngine(risk.NewSQLStore(database.DB), bus, metrics, limits, 12*time.Hour)
	journalSvc := journal.NewService(database, engine, bus, metrics)

	server := NewServer(
		bus,
		database,
		engine,
		journalSvc,
		metrics,
		SystemMeta{Version: "test"},
		"test-secret",
	)

	httpServer := httptest.NewServer(server.Router)
	cleanup := func() {
		httpServer.Close()
		_ = database.Close()
	}
	return httpServer, cleanup
}

func doJSONRequest(t *testing.T, client *http.Client, method, url, token string, payload any, out any) int {
	t.Helper()

	var buf bytes.Buffer
	if payload != nil {
		if err := json.NewEncoder(&buf).Encode(payload); err != nil {
			t.Fatalf("encode payload: %v", err)
		}
	}

	req, err := http.NewRequest(method, url, &buf)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := client.Do(req)
	if err != nil {
		t.Fatalf("do request: %v", err)
	}
	defer resp.Body.Close()

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			t.Fatalf("decode response: %v", err)
		}
	}
	return resp.StatusCode
}

func registerAndLogin(t *testing.T, base string, email string) string {
	t.Helper()
	client := http.DefaultClient

	status := doJSONRequest(t, client, http.MethodPost, base+"/api/v1/auth/register", "", map[string]any{
		"email":    email,
		"password": "hunter22",
	}, nil)
	if status != http.StatusCreated {
		t.Fatalf("register: status %d", status)
	}

	var login struct {
		Token string `json:"token"`
	}
	status = doJSONRequest(t, client, http.MethodPost, base+"/api/v1/auth/login", "", map[string]any{
		"email":    email,
		"password": "hunter22",
	}, &login)
	if status != http.StatusOK {
		t.Fatalf("login: status %d", status)
	}
	if login.Token == "" {
		t.Fatalf("login returned empty token")
	}
	return login.Token
}

type profileResponse struct {
	Profile struct {
		MaxTradesPerDay int    `json:"max_trades_per_day"`
		TradesToday     int    `json:"trades_today"`
		IsLocked        bool   `json:"is_locked"`
		LockReason      string `json:"lock_reason"`
	} `json:"profile"`
	Status struct {
		Allowed bool   `json:"allowed"`
		Kind    string `json:"kind"`
		Reason  string `json:"reason"`
	} `json:"status"`
}

type tradeResponse struct {
	Trade struct {
		ID     string `json:"id"`
		Status string `json:"status"`
		Result string `json:"result"`
		PnL    string `json:"pnl"`
	} `json:"trade"`
	Status struct {
		Allowed bool   `json:"allowed"`
		Kind    string `json:"kind"`
		Reason  string `json:"reason"`
	} `json:"status"`
}

func TestHealthEndpoint(t *testing.T) {
	srv, cleanup := newTestAPIServer(t)
	defer cleanup()

	var out map[string]any
	status := doJSONRequest(t, http.DefaultClient, http.MethodGet, srv.URL+"/health", "", nil, &out)
	if status != http.StatusOK {
		t.Fatalf("health: status %d", status)
	}
	if out["status"] != "ok" {
		t.Fatalf("health body: %v", out)
	}
}

func TestProtectedRoutesRequireAuth(t *testing.T) {
	srv, cleanup := newTestAPIServer(t)
	defer cleanup()

	status := doJSONRequest(t, http.DefaultClient, http.MethodGet, srv.URL+"/api/v1/risk/profile", "", nil, nil)
	if status != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", status)
	}

	status = doJSONRequest(t, http.DefaultClient, http.MethodGet, srv.URL+"/api/v1/risk/profile", "garbage-token", nil, nil)
	if status != http.StatusUnauthorized {
		t.Fatalf("expected 401 with bad token, got %d", status)
	}
}

func TestRiskProfileAutoProvision(t *testing.T) {
	srv, cleanup := newTestAPIServer(t)
	defer cleanup()
	token := registerAndLogin(t, srv.URL, "alice@example.com")

	var out profileResponse
	status := doJSONRequest(t, http.DefaultClient, http.MethodGet, srv.URL+"/api/v1/risk/profile", token, nil, &out)
	if status != http.StatusOK {
		t.Fatalf("profile: status %d", status)
	}
	if out.Profile.MaxTradesPerDay != 5 {
		t.Fatalf("default limits not applied: %+v", out.Profile)
	}
	if !out.Status.Allowed || out.Status.Reason != "Trading Allowed" {
		t.Fatalf("fresh profile decision: %+v", out.Status)
	}
}

func TestTradeFlowLockAndReset(t *testing.T) {
	srv, cleanup := newTestAPIServer(t)
	defer cleanup()
	token := registerAndLogin(t, srv.URL, "bob@example.com")
	client := http.DefaultClient

	var last tradeResponse
	for i := 1; i <= 5; i++ {
		status := doJSONRequest(t, client, http.MethodPost, srv.URL+"/api/v1/trades", token, map[string]any{
			"symbol": "EURUSD",
			"side":   "BUY",
		}, &last)
		if status != http.StatusCreated {
			t.Fatalf("open %d: status %d", i, status)
		}
		if i < 5 && !last.Status.Allowed {
			t.Fatalf("open %d should be allowed: %+v", i, last.Status)
		}
	}

	// The fifth open lands on the cap and trips the lock.
	if last.Status.Allowed {
		t.Fatalf("fifth open must deny: %+v", last.Status)
	}
	if want := "Account Locked: Max Daily Trades (5) hit."; last.Status.Reason != want {
		t.Fatalf("reason = %q, want %q", last.Status.Reason, want)
	}

	// Limit edits are refused while locked.
	status := doJSONRequest(t, client, http.MethodPatch, srv.URL+"/api/v1/risk/profile/limits", token, map[string]any{
		"max_trades_per_day": 50,
	}, nil)
	if status != http.StatusConflict {
		t.Fatalf("limit edit while locked: status %d, want 409", status)
	}

	// Administrative reset unlocks.
	status = doJSONRequest(t, client, http.MethodPost, srv.URL+"/api/v1/risk/profile/reset", token, nil, nil)
	if status != http.StatusOK {
		t.Fatalf("reset: status %d", status)
	}

	status = doJSONRequest(t, client, http.MethodPatch, srv.URL+"/api/v1/risk/profile/limits", token, map[string]any{
		"max_trades_per_day": 50,
	}, nil)
	if status != http.StatusOK {
		t.Fatalf("limit edit after reset: status %d", status)
	}

	var prof profileResponse
	doJSONRequest(t, client, http.MethodGet, srv.URL+"/api/v1/risk/profile", token, nil, &prof)
	if prof.Profile.MaxTradesPerDay != 50 {
		t.Fatalf("limit edit not applied: %+v", prof.Profile)
	}
}

func TestCloseTradeEndToEnd(t *testing.T) {
	srv, cleanup := newTestAPIServer(t)
	defer cleanup()
	token := registerAndLogin(t, srv.URL, "carol@example.com")
	client := http.DefaultClient

	var opened tradeResponse
	status := doJSONRequest(t, client, http.MethodPost, srv.URL+"/api/v1/trades", token, map[string]any{
		"symbol": "XAUUSD",
		"side":   "SELL",
	}, &opened)
	if status != http.StatusCreated {
		t.Fatalf("open: status %d", status)
	}

	var closed tradeResponse
	url := fmt.Sprintf("%s/api/v1/trades/%s/close", srv.URL, opened.Trade.ID)
	status = doJSONRequest(t, client, http.MethodPost, url, token, map[string]any{
		"result": "LOSS",
		"pnl":    "-250",
	}, &closed)
	if status != http.StatusOK {
		t.Fatalf("close: status %d", status)
	}
	if closed.Trade.Status != "CLOSED" || closed.Trade.Result != "LOSS" {
		t.Fatalf("close not applied: %+v", closed.Trade)
	}
	if closed.Trade.PnL != "-250" {
		t.Fatalf("pnl = %q, want -250", closed.Trade.PnL)
	}
	if closed.Status.Allowed {
		t.Fatalf("250 loss must lock: %+v", closed.Status)
	}
	if want := "Account Locked: Daily Loss Limit ($200) hit."; closed.Status.Reason != want {
		t.Fatalf("reason = %q, want %q", closed.Status.Reason, want)
	}

	// Double close.
	status = doJSONRequest(t, client, http.MethodPost, url, token, map[string]any{
		"result": "LOSS",
		"pnl":    "-250",
	}, nil)
	if status != http.StatusNotFound {
		t.Fatalf("double close: status %d, want 404", status)
	}

	// Bad result value.
	status = doJSONRequest(t, client, http.MethodPost, url, token, map[string]any{
		"result": "DRAW",
	}, nil)
	if status != http.StatusNotFound && status != http.StatusBadRequest {
		t.Fatalf("bad result: status %d", status)
	}
}

func TestTradesAreUserScoped(t *testing.T) {
	srv, cleanup := newTestAPIServer(t)
	defer cleanup()
	tokenA := registerAndLogin(t, srv.URL, "dave@example.com")
	tokenB := registerAndLogin(t, srv.URL, "erin@example.com")
	client := http.DefaultClient

	var opened tradeResponse
	doJSONRequest(t, client, http.MethodPost, srv.URL+"/api/v1/trades", tokenA, map[string]any{
		"symbol": "EURUSD", "side": "BUY",
	}, &opened)

	// User B cannot close user A's trade.
	url := fmt.Sprintf("%s/api/v1/trades/%s/close", srv.URL, opened.Trade.ID)
	status := doJSONRequest(t, client, http.MethodPost, url, tokenB, map[string]any{"result": "WIN"}, nil)
	if status != http.StatusNotFound {
		t.Fatalf("cross-user close: status %d, want 404", status)
	}

	// User B's listing is empty.
	var listB []map[string]any
	status = doJSONRequest(t, client, http.MethodGet, srv.URL+"/api/v1/trades", tokenB, nil, &listB)
	if status != http.StatusOK {
		t.Fatalf("list: status %d", status)
	}
	if len(listB) != 0 {
		t.Fatalf("user B must not see user A's trades: %v", listB)
	}
}

func TestTradeStatsEndpoint(t *testing.T) {
	srv, cleanup := newTestAPIServer(t)
	defer cleanup()
	token := registerAndLogin(t, srv.URL, "frank@example.com")
	client := http.DefaultClient

	var opened tradeResponse
	doJSONRequest(t, client, http.MethodPost, srv.URL+"/api/v1/trades", token, map[string]any{
		"symbol": "SPX500", "side": "BUY",
	}, &opened)
	doJSONRequest(t, client, http.MethodPost,
		fmt.Sprintf("%s/api/v1/trades/%s/close", srv.URL, opened.Trade.ID), token,
		map[string]any{"result": "WIN", "pnl": "120"}, nil)

	var stats struct {
		TotalTrades int     `json:"total_trades"`
		Wins        int     `json:"wins"`
		WinRate     float64 `json:"win_rate"`
	}
	status := doJSONRequest(t, client, http.MethodGet, srv.URL+"/api/v1/trades/stats", token, nil, &stats)
	if status != http.StatusOK {
		t.Fatalf("stats: status %d", status)
	}
	if stats.TotalTrades != 1 || stats.Wins != 1 || stats.WinRate != 100.0 {
		t.Fatalf("stats = %+v", stats)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	srv, cleanup := newTestAPIServer(t)
	defer cleanup()
	token := registerAndLogin(t, srv.URL, "gina@example.com")

	var out map[string]any
	status := doJSONRequest(t, http.DefaultClient, http.MethodGet, srv.URL+"/api/v1/metrics", token, nil, &out)
	if status != http.StatusOK {
		t.Fatalf("metrics: status %d", status)
	}
	if _, ok := out["api_requests"]; !ok {
		t.Fatalf("metrics body missing counters: %v", out)
	}
}

func TestRegisterDuplicateEmail(t *testing.T) {
	srv, cleanup := newTestAPIServer(t)
	defer cleanup()
	registerAndLogin(t, srv.URL, "hank@example.com")

	status := doJSONRequest(t, http.DefaultClient, http.MethodPost, srv.URL+"/api/v1/auth/register", "", map[string]any{
		"email":    "hank@example.com",
		"password": "hunter22",
	}, nil)
	if status != http.StatusConflict {
		t.Fatalf("duplicate register: status %d, want 409", status)
	}
}
