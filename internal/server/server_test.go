package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/liquidbot/internal/directory"
	"github.com/alanyoungcy/liquidbot/internal/domain"
	"github.com/alanyoungcy/liquidbot/internal/ledger"
	"github.com/alanyoungcy/liquidbot/internal/scheduler"
	"github.com/alanyoungcy/liquidbot/internal/server/handler"
)

type fakeStatus struct {
	opps []domain.LiquidationOpportunity
}

func (f *fakeStatus) Status() scheduler.Status {
	return scheduler.Status{State: scheduler.StateIdle, Scans: 3}
}

func (f *fakeStatus) RecentOpportunities(limit int) []domain.LiquidationOpportunity {
	if limit < len(f.opps) {
		return f.opps[:limit]
	}
	return f.opps
}

type fakeAuditStore struct {
	last    domain.AuditFilter
	entries []domain.AuditEntry
}

func (f *fakeAuditStore) Log(context.Context, string, map[string]any) error { return nil }

func (f *fakeAuditStore) List(_ context.Context, filter domain.AuditFilter) ([]domain.AuditEntry, error) {
	f.last = filter
	return f.entries, nil
}

type fixture struct {
	handler http.Handler
	dir     *directory.Directory
	ledger  *ledger.Ledger
	audit   *fakeAuditStore
}

func newFixture(t *testing.T, cfg Config, checks map[string]handler.Check) *fixture {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	dir := directory.New(nil, nil, logger)
	led := ledger.New(nil, logger)
	audit := &fakeAuditStore{}

	opp := domain.LiquidationOpportunity{
		Borrower:          common.HexToAddress("0x00000000000000000000000000000000000000b1"),
		ExpectedProfitUSD: 12,
	}
	opp.Borrow.Market.Symbol = "USDC"

	h := buildHandler(cfg, Handlers{
		Health:       handler.NewHealthHandler(checks, logger),
		Status:       handler.NewStatusHandler("monitor", "largest", &fakeStatus{opps: []domain.LiquidationOpportunity{opp}}),
		Liquidations: handler.NewLiquidationHandler(led, nil, nil, logger),
		Borrowers:    handler.NewBorrowerHandler(dir, logger),
		Audit:        handler.NewAuditHandler(audit, logger),
		Metrics: http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte("metrics"))
		}),
	}, nil, nil, logger)
	return &fixture{handler: h, dir: dir, ledger: led, audit: audit}
}

func (f *fixture) do(method, path, body string, headers map[string]string) *httptest.ResponseRecorder {
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, r)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return out
}

func TestHealth(t *testing.T) {
	f := newFixture(t, Config{}, map[string]handler.Check{
		"rpc":   func(context.Context) error { return nil },
		"redis": func(context.Context) error { return errors.New("connection refused") },
	})
	rec := f.do("GET", "/api/health", "", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, "degraded", body["status"])
	assert.Equal(t, "ok", body["components"].(map[string]any)["rpc"])

	f = newFixture(t, Config{}, nil)
	assert.Equal(t, http.StatusOK, f.do("GET", "/api/health", "", nil).Code)
}

func TestBorrowerEndpoints(t *testing.T) {
	f := newFixture(t, Config{}, nil)
	const addr = "0x00000000000000000000000000000000000000AA"

	rec := f.do("POST", "/api/borrowers", `{"addresses":["`+addr+`"]}`, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1.0, decode(t, rec)["added"])
	assert.True(t, f.dir.Contains(addr))

	rec = f.do("POST", "/api/borrowers", `{"address":"not-an-address"}`, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.do("GET", "/api/borrowers", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []any{strings.ToLower(addr)}, decode(t, rec)["borrowers"])

	assert.Equal(t, http.StatusOK, f.do("DELETE", "/api/borrowers/"+addr, "", nil).Code)
	assert.Equal(t, http.StatusNotFound, f.do("DELETE", "/api/borrowers/"+addr, "", nil).Code)
	assert.Zero(t, f.dir.Len())
}

func TestStatsAndLiquidations(t *testing.T) {
	f := newFixture(t, Config{}, nil)
	f.ledger.Append(domain.LiquidationRecord{ID: "1", ProfitUSD: 10, LiquidationUSD: 100})
	f.ledger.Append(domain.LiquidationRecord{ID: "2", ProfitUSD: 30, LiquidationUSD: 300})

	stats := decode(t, f.do("GET", "/api/stats", "", nil))
	assert.Equal(t, 2.0, stats["count"])
	assert.Equal(t, 40.0, stats["total_profit_usd"])

	body := decode(t, f.do("GET", "/api/liquidations?limit=1", "", nil))
	assert.Equal(t, "session", body["source"])
	list := body["liquidations"].([]any)
	require.Len(t, list, 1)
	assert.Equal(t, "2", list[0].(map[string]any)["id"])

	assert.Equal(t, http.StatusNotFound, f.do("GET", "/api/archives", "", nil).Code)
}

func TestAuditLog(t *testing.T) {
	f := newFixture(t, Config{}, nil)
	f.audit.entries = []domain.AuditEntry{{ID: 7, Event: "liquidation.attempt", Borrower: "0x00000000000000000000000000000000000000aa"}}

	rec := f.do("GET", "/api/audit?event=liquidation.attempt&borrower=0x00000000000000000000000000000000000000aa&limit=5", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	entries := decode(t, rec)["entries"].([]any)
	require.Len(t, entries, 1)
	assert.Equal(t, 7.0, entries[0].(map[string]any)["id"])

	assert.Equal(t, "liquidation.attempt", f.audit.last.Event)
	assert.Equal(t, common.HexToAddress("0xaa").Hex(), f.audit.last.Borrower)
	assert.Equal(t, 5, f.audit.last.Limit)

	assert.Equal(t, http.StatusBadRequest, f.do("GET", "/api/audit?borrower=nope", "", nil).Code)

	f.audit.entries = nil
	body := decode(t, f.do("GET", "/api/audit", "", nil))
	assert.Equal(t, []any{}, body["entries"])
}

func TestStatusAndOpportunities(t *testing.T) {
	f := newFixture(t, Config{}, nil)
	status := decode(t, f.do("GET", "/api/status", "", nil))
	assert.Equal(t, "monitor", status["mode"])
	assert.Equal(t, "idle", status["scheduler"].(map[string]any)["state"])

	opps := decode(t, f.do("GET", "/api/opportunities", "", nil))["opportunities"].([]any)
	require.Len(t, opps, 1)
	assert.Equal(t, "USDC", opps[0].(map[string]any)["repay_symbol"])
}

func TestAuth(t *testing.T) {
	f := newFixture(t, Config{APIKey: "secret"}, nil)

	assert.Equal(t, http.StatusUnauthorized, f.do("GET", "/api/stats", "", nil).Code)
	assert.Equal(t, http.StatusUnauthorized, f.do("GET", "/api/stats", "", map[string]string{"X-API-Key": "wrong"}).Code)
	assert.Equal(t, http.StatusOK, f.do("GET", "/api/stats", "", map[string]string{"Authorization": "Bearer secret"}).Code)
	// Query tokens only count for the websocket handshake.
	assert.Equal(t, http.StatusUnauthorized, f.do("GET", "/api/stats?token=secret", "", nil).Code)

	rec := f.do("GET", "/api/stats", "", nil)
	assert.Equal(t, `Bearer realm="liquidbot"`, rec.Header().Get("WWW-Authenticate"))

	// Probes stay open.
	assert.Equal(t, http.StatusOK, f.do("GET", "/api/health", "", nil).Code)
	assert.Equal(t, http.StatusOK, f.do("GET", "/metrics", "", nil).Code)
}

func TestRateLimit(t *testing.T) {
	f := newFixture(t, Config{RateLimit: 2}, nil)
	assert.Equal(t, http.StatusOK, f.do("GET", "/api/stats", "", nil).Code)
	assert.Equal(t, http.StatusOK, f.do("GET", "/api/stats", "", nil).Code)
	assert.Equal(t, http.StatusTooManyRequests, f.do("GET", "/api/stats", "", nil).Code)

	// A different client has its own bucket.
	assert.Equal(t, http.StatusOK, f.do("GET", "/api/stats", "", map[string]string{"X-Forwarded-For": "10.0.0.9"}).Code)
}

func TestCORSPreflight(t *testing.T) {
	f := newFixture(t, Config{CORSOrigins: []string{"http://localhost:3000"}}, nil)
	rec := f.do("OPTIONS", "/api/borrowers", "", map[string]string{"Origin": "http://localhost:3000"})
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "http://localhost:3000", rec.Header().Get("Access-Control-Allow-Origin"))

	rec = f.do("OPTIONS", "/api/borrowers", "", map[string]string{"Origin": "http://evil.example"})
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestRequestID(t *testing.T) {
	f := newFixture(t, Config{}, nil)

	rec := f.do("GET", "/api/stats", "", nil)
	assert.Len(t, rec.Header().Get("X-Request-ID"), 36)

	rec = f.do("GET", "/api/stats", "", map[string]string{"X-Request-ID": "abc-123"})
	assert.Equal(t, "abc-123", rec.Header().Get("X-Request-ID"))
}
