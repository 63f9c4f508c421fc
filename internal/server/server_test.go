package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/avetrov/goldpilot/internal/adapters/broker"
	"github.com/avetrov/goldpilot/internal/adapters/config"
	"github.com/avetrov/goldpilot/internal/engine"
	"github.com/avetrov/goldpilot/internal/ledger"
	"github.com/avetrov/goldpilot/pkg/models"
)

// fakeEngine implements EngineControl with plain lifecycle bookkeeping
type fakeEngine struct {
	running bool
}

func (f *fakeEngine) Start(ctx context.Context) error {
	if f.running {
		return engine.ErrAlreadyRunning
	}
	f.running = true
	return nil
}

func (f *fakeEngine) Stop() error {
	if !f.running {
		return engine.ErrNotRunning
	}
	f.running = false
	return nil
}

func (f *fakeEngine) Status() models.EngineStatus {
	return models.EngineStatus{
		Running:      f.running,
		Connected:    true,
		Symbol:       "XAUUSD",
		BaseLot:      0.01,
		MaxPositions: 3,
	}
}

// fakeProfits records what the profit queries were asked for
type fakeProfits struct {
	lastLimit int
	lastDays  int
	synced    []models.TradeRecord
}

func (f *fakeProfits) Stats(ctx context.Context) (*ledger.Stats, error) {
	return &ledger.Stats{InitialBalance: 10000, CurrentBalance: 10500}, nil
}

func (f *fakeProfits) ChartData(ctx context.Context, days int) ([]ledger.DailySnapshot, error) {
	f.lastDays = days
	return nil, nil
}

func (f *fakeProfits) SyncFromHistory(ctx context.Context, records []models.TradeRecord) (*ledger.SyncResult, error) {
	f.synced = records
	return &ledger.SyncResult{Trades: len(records)}, nil
}

func (f *fakeProfits) RecentReasoning(ctx context.Context, limit int) ([]models.ReasoningEntry, error) {
	f.lastLimit = limit
	return []models.ReasoningEntry{}, nil
}

// fakeProvider accepts groq and deepseek only
type fakeProvider struct {
	active string
}

func (f *fakeProvider) Use(name string) error {
	if name != "groq" && name != "deepseek" {
		return fmt.Errorf("unknown provider: %s", name)
	}
	f.active = name
	return nil
}

func (f *fakeProvider) Name() string        { return f.active }
func (f *fakeProvider) Available() []string { return []string{"groq", "deepseek"} }

type failingCheck struct{}

func (failingCheck) Health() error { return fmt.Errorf("connection refused") }

type passingCheck struct{}

func (passingCheck) Health() error { return nil }

type testRig struct {
	server   *Server
	engine   *fakeEngine
	paper    *broker.Paper
	profits  *fakeProfits
	provider *fakeProvider
}

func newTestServer(t *testing.T, checks map[string]HealthChecker) *testRig {
	t.Helper()

	paper := broker.NewPaper("XAUUSD", 10000)
	if err := paper.Connect(context.Background()); err != nil {
		t.Fatalf("connect paper broker: %v", err)
	}
	paper.SetQuote(2499.80, 2500.00)

	eng := &fakeEngine{}
	profits := &fakeProfits{}
	provider := &fakeProvider{active: "groq"}

	trading := config.TradingConfig{
		Symbol:         "XAUUSD",
		PipSize:        0.1,
		BaseLot:        0.01,
		MaxPositions:   3,
		MaxSLDistance:  6.0,
		MinConfidence:  60,
		BEPTriggerPips: 5.0,
		DCAStepPips:    20.0,
		DCADirection:   config.DCABoth,
	}

	srv := New(context.Background(), 0, Deps{
		Engine:   eng,
		Broker:   paper,
		Settings: config.NewSettings(trading),
		Profits:  profits,
		Provider: provider,
		Checks:   checks,
	})

	return &testRig{server: srv, engine: eng, paper: paper, profits: profits, provider: provider}
}

func (r *testRig) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}

	req := httptest.NewRequest(method, path, &buf)
	rec := httptest.NewRecorder()
	r.server.Handler().ServeHTTP(rec, req)
	return rec
}

func decodeJSON(t *testing.T, rec *httptest.ResponseRecorder, out any) {
	t.Helper()
	if err := json.NewDecoder(rec.Body).Decode(out); err != nil {
		t.Fatalf("decode response: %v", err)
	}
}

func TestLifecycleEndpoints(t *testing.T) {
	r := newTestServer(t, nil)

	if rec := r.do(t, http.MethodPost, "/api/start", nil); rec.Code != http.StatusOK {
		t.Fatalf("start: code=%d body=%s", rec.Code, rec.Body.String())
	}
	if !r.engine.running {
		t.Error("engine should be running after /api/start")
	}

	if rec := r.do(t, http.MethodPost, "/api/start", nil); rec.Code != http.StatusConflict {
		t.Errorf("second start should be 409, got %d", rec.Code)
	}

	if rec := r.do(t, http.MethodPost, "/api/stop", nil); rec.Code != http.StatusOK {
		t.Fatalf("stop: code=%d", rec.Code)
	}
	if rec := r.do(t, http.MethodPost, "/api/stop", nil); rec.Code != http.StatusConflict {
		t.Errorf("second stop should be 409, got %d", rec.Code)
	}
}

func TestStatusIncludesMarketState(t *testing.T) {
	r := newTestServer(t, nil)

	rec := r.do(t, http.MethodGet, "/api/status", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status: code=%d", rec.Code)
	}

	var resp struct {
		Running    bool   `json:"running"`
		Symbol     string `json:"symbol"`
		MarketOpen bool   `json:"market_open"`
	}
	decodeJSON(t, rec, &resp)

	if resp.Running {
		t.Error("engine should report stopped")
	}
	if resp.Symbol != "XAUUSD" || !resp.MarketOpen {
		t.Errorf("unexpected status payload: %+v", resp)
	}
}

func TestConfigPatch(t *testing.T) {
	r := newTestServer(t, nil)

	lot := 0.05
	rec := r.do(t, http.MethodPost, "/api/config", map[string]any{"base_lot": lot})
	if rec.Code != http.StatusOK {
		t.Fatalf("config patch: code=%d body=%s", rec.Code, rec.Body.String())
	}

	var view configView
	decodeJSON(t, rec, &view)
	if view.BaseLot != lot {
		t.Errorf("base lot should be %v after patch, got %v", lot, view.BaseLot)
	}

	// An invalid patch is rejected and changes nothing
	rec = r.do(t, http.MethodPost, "/api/config", map[string]any{"max_positions": 0})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("invalid patch should be 400, got %d", rec.Code)
	}

	rec = r.do(t, http.MethodGet, "/api/config", nil)
	decodeJSON(t, rec, &view)
	if view.MaxPositions != 3 || view.BaseLot != lot {
		t.Errorf("rejected patch must not change settings: %+v", view)
	}
}

func TestManualOrder(t *testing.T) {
	r := newTestServer(t, nil)

	rec := r.do(t, http.MethodPost, "/api/order", map[string]any{"volume": 0.02})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("order without side should be 400, got %d", rec.Code)
	}

	rec = r.do(t, http.MethodPost, "/api/order", map[string]any{"side": "BUY"})
	if rec.Code != http.StatusOK {
		t.Fatalf("order: code=%d body=%s", rec.Code, rec.Body.String())
	}

	positions, err := r.paper.Positions(context.Background(), "XAUUSD")
	if err != nil {
		t.Fatalf("positions: %v", err)
	}
	if len(positions) != 1 {
		t.Fatalf("expected 1 open position, got %d", len(positions))
	}
	if positions[0].Volume != 0.01 || positions[0].Comment != "MANUAL_TRADE" {
		t.Errorf("order defaults not applied: %+v", positions[0])
	}
}

func TestModifyAndClosePosition(t *testing.T) {
	r := newTestServer(t, nil)

	result, err := r.paper.PlaceMarketOrder(context.Background(), broker.OrderRequest{
		Symbol: "XAUUSD", Side: models.SideBuy, Volume: 0.01,
	})
	if err != nil {
		t.Fatalf("seed position: %v", err)
	}

	path := fmt.Sprintf("/api/positions/%d/modify", result.Ticket)
	rec := r.do(t, http.MethodPost, path, map[string]any{"sl": 2494.0, "tp": 2510.0})
	if rec.Code != http.StatusOK {
		t.Fatalf("modify: code=%d body=%s", rec.Code, rec.Body.String())
	}

	positions, _ := r.paper.Positions(context.Background(), "XAUUSD")
	if positions[0].StopLoss != 2494.0 || positions[0].TakeProfit != 2510.0 {
		t.Errorf("modify not applied: %+v", positions[0])
	}

	path = fmt.Sprintf("/api/positions/%d/close", result.Ticket)
	if rec := r.do(t, http.MethodPost, path, nil); rec.Code != http.StatusOK {
		t.Fatalf("close: code=%d body=%s", rec.Code, rec.Body.String())
	}

	positions, _ = r.paper.Positions(context.Background(), "XAUUSD")
	if len(positions) != 0 {
		t.Errorf("position should be closed, book: %+v", positions)
	}
}

func TestCloseAll(t *testing.T) {
	r := newTestServer(t, nil)

	for i := 0; i < 3; i++ {
		if _, err := r.paper.PlaceMarketOrder(context.Background(), broker.OrderRequest{
			Symbol: "XAUUSD", Side: models.SideBuy, Volume: 0.01,
		}); err != nil {
			t.Fatalf("seed position %d: %v", i, err)
		}
	}

	rec := r.do(t, http.MethodPost, "/api/positions/close-all", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("close-all: code=%d body=%s", rec.Code, rec.Body.String())
	}

	var resp struct {
		Requested int `json:"requested"`
	}
	decodeJSON(t, rec, &resp)
	if resp.Requested != 3 {
		t.Errorf("expected 3 closures requested, got %d", resp.Requested)
	}

	positions, _ := r.paper.Positions(context.Background(), "XAUUSD")
	if len(positions) != 0 {
		t.Errorf("book should be flat after close-all, got %d positions", len(positions))
	}
}

func TestReasoningLimitDefault(t *testing.T) {
	r := newTestServer(t, nil)

	if rec := r.do(t, http.MethodGet, "/api/reasoning", nil); rec.Code != http.StatusOK {
		t.Fatalf("reasoning: code=%d", rec.Code)
	}
	if r.profits.lastLimit != defaultReasoningLimit {
		t.Errorf("default limit should be %d, got %d", defaultReasoningLimit, r.profits.lastLimit)
	}

	r.do(t, http.MethodGet, "/api/reasoning?limit=10", nil)
	if r.profits.lastLimit != 10 {
		t.Errorf("limit query should be honored, got %d", r.profits.lastLimit)
	}
}

func TestProviderSwitch(t *testing.T) {
	r := newTestServer(t, nil)

	rec := r.do(t, http.MethodPost, "/api/ai/provider/claude", nil)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("unknown provider should be 400, got %d", rec.Code)
	}
	if r.provider.active != "groq" {
		t.Errorf("failed switch must not change the provider, got %s", r.provider.active)
	}

	rec = r.do(t, http.MethodPost, "/api/ai/provider/deepseek", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("provider switch: code=%d body=%s", rec.Code, rec.Body.String())
	}
	if r.provider.active != "deepseek" {
		t.Errorf("provider should be deepseek, got %s", r.provider.active)
	}
}

func TestProfitSyncPullsBrokerHistory(t *testing.T) {
	r := newTestServer(t, nil)

	result, err := r.paper.PlaceMarketOrder(context.Background(), broker.OrderRequest{
		Symbol: "XAUUSD", Side: models.SideBuy, Volume: 0.01,
	})
	if err != nil {
		t.Fatalf("seed position: %v", err)
	}
	if _, err := r.paper.ClosePosition(context.Background(), result.Ticket); err != nil {
		t.Fatalf("close position: %v", err)
	}

	rec := r.do(t, http.MethodPost, "/api/profit/sync", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("profit sync: code=%d body=%s", rec.Code, rec.Body.String())
	}
	if len(r.profits.synced) != 1 {
		t.Errorf("expected 1 history record passed to sync, got %d", len(r.profits.synced))
	}
}

func TestReadinessGates(t *testing.T) {
	r := newTestServer(t, map[string]HealthChecker{"database": passingCheck{}})

	if rec := r.do(t, http.MethodGet, "/ready", nil); rec.Code != http.StatusServiceUnavailable {
		t.Errorf("not-ready service should answer 503, got %d", rec.Code)
	}

	r.server.SetReady(true)
	if rec := r.do(t, http.MethodGet, "/ready", nil); rec.Code != http.StatusOK {
		t.Errorf("ready service should answer 200, got %d", rec.Code)
	}

	// A failing dependency overrides the ready flag
	failing := newTestServer(t, map[string]HealthChecker{"database": failingCheck{}})
	failing.server.SetReady(true)
	if rec := failing.do(t, http.MethodGet, "/ready", nil); rec.Code != http.StatusServiceUnavailable {
		t.Errorf("unhealthy dependency should answer 503, got %d", rec.Code)
	}

	if rec := r.do(t, http.MethodGet, "/health", nil); rec.Code != http.StatusOK {
		t.Errorf("liveness should always answer 200, got %d", rec.Code)
	}
}
