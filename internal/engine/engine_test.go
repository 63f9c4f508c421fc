package engine

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/avetrov/goldpilot/internal/adapters/ai"
	"github.com/avetrov/goldpilot/internal/adapters/broker"
	"github.com/avetrov/goldpilot/internal/adapters/config"
	"github.com/avetrov/goldpilot/internal/events"
	"github.com/avetrov/goldpilot/internal/risk"
	"github.com/avetrov/goldpilot/pkg/models"
)

// scriptedAI returns canned decisions and records what it was asked
type scriptedAI struct {
	decision   *models.EntryDecision
	entryErr   error
	verdict    *models.GuardVerdict
	guardErr   error
	entryCalls int
	guardCalls int
	lastEntry  *ai.EntryContext
	lastGuard  *ai.GuardContext
}

func (s *scriptedAI) Name() string { return "scripted" }

func (s *scriptedAI) AnalyzeEntry(ctx context.Context, entry *ai.EntryContext) (*models.EntryDecision, error) {
	s.entryCalls++
	s.lastEntry = entry
	if s.entryErr != nil {
		return nil, s.entryErr
	}
	if s.decision == nil {
		return &models.EntryDecision{Decision: models.EntryWait, Confidence: 50, Reason: "no setup"}, nil
	}
	return s.decision, nil
}

func (s *scriptedAI) GuardPosition(ctx context.Context, guard *ai.GuardContext) (*models.GuardVerdict, error) {
	s.guardCalls++
	s.lastGuard = guard
	if s.guardErr != nil {
		return nil, s.guardErr
	}
	if s.verdict == nil {
		return &models.GuardVerdict{Action: models.GuardHold, Reason: "steady"}, nil
	}
	return s.verdict, nil
}

// fakeLedger records tracker calls without a database
type fakeLedger struct {
	initial    float64
	balances   []float64
	trades     []models.TradeRecord
	closeTypes []models.CloseType
	reasonings []models.ReasoningKind
}

func (f *fakeLedger) InitialBalance() float64 { return f.initial }

func (f *fakeLedger) UpdateBalance(ctx context.Context, balance, equity float64) error {
	f.balances = append(f.balances, balance)
	return nil
}

func (f *fakeLedger) RecordClosedTrade(ctx context.Context, rec models.TradeRecord, closeType models.CloseType) error {
	f.trades = append(f.trades, rec)
	f.closeTypes = append(f.closeTypes, closeType)
	return nil
}

func (f *fakeLedger) AppendReasoning(ctx context.Context, kind models.ReasoningKind, symbol string, ticket int64, provider, result string) error {
	f.reasonings = append(f.reasonings, kind)
	return nil
}

// rig wires an engine to a connected paper broker with a quoted market
type rig struct {
	engine *Engine
	paper  *broker.Paper
	ai     *scriptedAI
	ledger *fakeLedger
	bus    *events.Bus
	gate   *risk.CooldownGate
}

func testTradingConfig() config.TradingConfig {
	return config.TradingConfig{
		Symbol:           "XAUUSD",
		PipSize:          0.1,
		BaseLot:          0.01,
		MaxPositions:     3,
		MaxSLDistance:    6.0,
		MinConfidence:    60,
		TickInterval:     time.Hour,
		EntryInterval:    0,
		GuardianInterval: 0,
		CooldownDuration: 5 * time.Minute,
		AutoBEPEnabled:   true,
		BEPTriggerPips:   5.0,
		DCAStepPips:      20.0,
		DCADirection:     config.DCABoth,
		AllowedSessions:  []string{"london", "newyork", "asia", "sydney"},
	}
}

func newRig(t *testing.T, mutate func(*config.TradingConfig)) *rig {
	t.Helper()

	cfg := testTradingConfig()
	if mutate != nil {
		mutate(&cfg)
	}

	paper := broker.NewPaper(cfg.Symbol, 10000)
	if err := paper.Connect(context.Background()); err != nil {
		t.Fatalf("connect paper broker: %v", err)
	}
	paper.SetQuote(2499.80, 2500.00)

	scripted := &scriptedAI{}
	ledger := &fakeLedger{initial: 10000}
	bus := events.NewBus(0)
	gate := risk.NewCooldownGate(cfg.CooldownDuration)

	eng := New(paper, paper, scripted, config.NewSettings(cfg), gate, ledger, bus, nil)

	return &rig{engine: eng, paper: paper, ai: scripted, ledger: ledger, bus: bus, gate: gate}
}

func (r *rig) tick(t *testing.T) {
	t.Helper()
	if err := r.engine.tick(context.Background()); err != nil {
		t.Fatalf("tick: %v", err)
	}
}

// drain empties the bus without blocking
func (r *rig) drain() []models.Event {
	var out []models.Event
	for {
		select {
		case ev := <-r.bus.Events():
			out = append(out, ev)
		default:
			return out
		}
	}
}

func tradeEvents(evs []models.Event, action models.TradeAction) []models.TradeEvent {
	var out []models.TradeEvent
	for _, ev := range evs {
		if ev.Type != models.EventTrade {
			continue
		}
		trade, ok := ev.Data.(models.TradeEvent)
		if !ok || trade.Action != action {
			continue
		}
		out = append(out, trade)
	}
	return out
}

func (r *rig) openPosition(t *testing.T, side models.Side, sl, tp float64) int64 {
	t.Helper()
	result, err := r.paper.PlaceMarketOrder(context.Background(), broker.OrderRequest{
		Symbol:     "XAUUSD",
		Side:       side,
		Volume:     0.01,
		StopLoss:   sl,
		TakeProfit: tp,
		Comment:    "seed",
	})
	if err != nil {
		t.Fatalf("open position: %v", err)
	}
	return result.Ticket
}

func TestEngineStartStop(t *testing.T) {
	r := newRig(t, nil)

	if err := r.engine.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if !r.engine.Running() {
		t.Error("engine should be running after Start")
	}

	if err := r.engine.Start(context.Background()); !errors.Is(err, ErrAlreadyRunning) {
		t.Errorf("second Start should return ErrAlreadyRunning, got %v", err)
	}

	if err := r.engine.Stop(); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if r.engine.Running() {
		t.Error("engine should not be running after Stop")
	}

	if err := r.engine.Stop(); !errors.Is(err, ErrNotRunning) {
		t.Errorf("second Stop should return ErrNotRunning, got %v", err)
	}

	// The immediate tick ran before Stop returned
	if r.ai.entryCalls == 0 {
		t.Error("first tick should have attempted an entry analysis")
	}

	var statuses []models.StatusEvent
	for _, ev := range r.drain() {
		if ev.Type == models.EventStatus {
			statuses = append(statuses, ev.Data.(models.StatusEvent))
		}
	}
	if len(statuses) != 2 || !statuses[0].Running || statuses[1].Running {
		t.Errorf("expected running/stopped status events, got %+v", statuses)
	}
}

func TestEngineStatus(t *testing.T) {
	r := newRig(t, nil)

	status := r.engine.Status()
	if status.Running {
		t.Error("engine should report stopped before Start")
	}
	if !status.Connected {
		t.Error("paper broker is connected")
	}
	if status.Symbol != "XAUUSD" || status.BaseLot != 0.01 || status.MaxPositions != 3 {
		t.Errorf("status should mirror trading config: %+v", status)
	}
	if status.CooldownActive {
		t.Error("cooldown should start disarmed")
	}

	r.gate.Arm()
	status = r.engine.Status()
	if !status.CooldownActive || status.CooldownUntil.IsZero() {
		t.Errorf("armed cooldown should surface in status: %+v", status)
	}
}

func TestTickQuoteFailureSkipsEverything(t *testing.T) {
	r := newRig(t, nil)
	r.paper.SetQuote(0, 0)

	if err := r.engine.tick(context.Background()); err == nil {
		t.Fatal("tick should fail without a quote")
	}

	if r.ai.entryCalls != 0 {
		t.Error("no analysis should run without a quote")
	}
	if len(r.ledger.balances) != 0 {
		t.Error("no balance update should run without a quote")
	}
}

func TestTickMarketClosedGate(t *testing.T) {
	r := newRig(t, func(cfg *config.TradingConfig) {
		cfg.AutoBEPEnabled = false
		cfg.DCAStepPips = 1000
	})
	ticket := r.openPosition(t, models.SideBuy, 2494, 2510)

	r.paper.SetQuote(2505.00, 2505.20)
	r.tick(t) // track the position while it is winning
	r.paper.SetMarketOpen(false)
	r.paper.RemovePosition(ticket, 3.75)

	r.tick(t)

	// Closure detection still ran behind the gate
	if len(r.ledger.trades) != 1 || r.ledger.closeTypes[0] != models.CloseTakeProfit {
		t.Errorf("closure should be detected while market is closed: %+v", r.ledger.closeTypes)
	}

	// Trading logic did not: the book is flat and entry is due, yet no call
	if r.ai.entryCalls != 0 {
		t.Error("entry analysis should not run while market is closed")
	}
}

func TestTickSessionGate(t *testing.T) {
	r := newRig(t, func(cfg *config.TradingConfig) {
		cfg.SessionFilterEnabled = true
		cfg.AllowedSessions = []string{"london"}
	})

	// 03:00 UTC is inside the Asian session only
	r.engine.now = func() time.Time {
		return time.Date(2025, 3, 10, 3, 0, 0, 0, time.UTC)
	}

	r.tick(t)
	if r.ai.entryCalls != 0 {
		t.Error("entry analysis should not run outside allowed sessions")
	}

	// 09:00 UTC falls inside London hours
	r.engine.now = func() time.Time {
		return time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)
	}

	r.tick(t)
	if r.ai.entryCalls != 1 {
		t.Errorf("entry analysis should run inside an allowed session, calls=%d", r.ai.entryCalls)
	}
}

// flakyBroker fails position fetches on demand
type flakyBroker struct {
	*broker.Paper
	positionsErr error
}

func (f *flakyBroker) Positions(ctx context.Context, symbol string) ([]models.Position, error) {
	if f.positionsErr != nil {
		return nil, f.positionsErr
	}
	return f.Paper.Positions(ctx, symbol)
}

func TestTickPositionsFailureKeepsPreviousMap(t *testing.T) {
	r := newRig(t, nil)
	flaky := &flakyBroker{Paper: r.paper}
	r.engine.broker = flaky

	ticket := r.openPosition(t, models.SideBuy, 2494, 2510)
	r.tick(t)

	// The position vanishes during a fetch outage. No closure may be
	// reported from a failed fetch.
	flaky.positionsErr = errors.New("bridge timeout")
	r.paper.RemovePosition(ticket, -5.0)

	if err := r.engine.tick(context.Background()); err == nil {
		t.Fatal("tick should surface the positions failure")
	}
	if len(r.ledger.trades) != 0 {
		t.Fatal("no closure may be recorded while the fetch fails")
	}

	// Once the fetch recovers the closure is observed exactly once
	flaky.positionsErr = nil
	r.tick(t)

	if len(r.ledger.trades) != 1 {
		t.Fatalf("expected 1 recorded closure, got %d", len(r.ledger.trades))
	}
	if r.ledger.closeTypes[0] != models.CloseStopLoss {
		t.Errorf("losing closure should classify as SL_HIT, got %s", r.ledger.closeTypes[0])
	}
}

func TestTickClosureArmsCooldown(t *testing.T) {
	r := newRig(t, nil)
	ticket := r.openPosition(t, models.SideBuy, 2494, 2510)

	r.tick(t) // position profit is negative at bid 2499.80
	r.paper.RemovePosition(ticket, -12.50)
	r.drain()

	r.tick(t)

	closes := tradeEvents(r.drain(), models.TradeClosed)
	if len(closes) != 1 {
		t.Fatalf("expected 1 close event, got %d", len(closes))
	}
	if closes[0].CloseType != models.CloseStopLoss || closes[0].Ticket != ticket {
		t.Errorf("unexpected close event: %+v", closes[0])
	}

	if !r.gate.Active() {
		t.Error("stop-loss closure should arm the entry cooldown")
	}

	// The book is flat now, entry is due, but the cooldown blocks it
	r.tick(t)
	if r.ai.entryCalls != 0 {
		t.Error("cooldown should block entry analysis")
	}
}

func TestTickProfitableClosureDoesNotArmCooldown(t *testing.T) {
	r := newRig(t, func(cfg *config.TradingConfig) {
		cfg.AutoBEPEnabled = false
		cfg.DCAStepPips = 1000
	})
	ticket := r.openPosition(t, models.SideBuy, 2494, 2510)

	r.paper.SetQuote(2505.00, 2505.20)
	r.tick(t) // snapshot now carries positive profit
	r.paper.RemovePosition(ticket, 5.0)

	r.tick(t)

	if len(r.ledger.closeTypes) != 1 || r.ledger.closeTypes[0] != models.CloseTakeProfit {
		t.Fatalf("profitable closure should classify as TP_HIT: %+v", r.ledger.closeTypes)
	}
	if r.gate.Active() {
		t.Error("take-profit closure must not arm the cooldown")
	}
}
