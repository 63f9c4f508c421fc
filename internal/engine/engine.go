package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/avetrov/goldpilot/internal/adapters/ai"
	"github.com/avetrov/goldpilot/internal/adapters/broker"
	"github.com/avetrov/goldpilot/internal/adapters/config"
	"github.com/avetrov/goldpilot/internal/events"
	"github.com/avetrov/goldpilot/internal/indicators"
	"github.com/avetrov/goldpilot/internal/risk"
	"github.com/avetrov/goldpilot/internal/telemetry"
	"github.com/avetrov/goldpilot/pkg/logger"
	"github.com/avetrov/goldpilot/pkg/models"
)

var (
	// ErrAlreadyRunning is returned by Start when the loop is active
	ErrAlreadyRunning = errors.New("engine already running")

	// ErrNotRunning is returned by Stop when the loop is not active
	ErrNotRunning = errors.New("engine not running")
)

// CandleSource supplies OHLCV context for AI prompts. The broker satisfies
// it directly; a ccxt-backed source can stand in when configured.
type CandleSource interface {
	Candles(ctx context.Context, symbol, timeframe string, count int) ([]models.Candle, error)
}

// Ledger is the slice of the profit tracker the engine drives
type Ledger interface {
	InitialBalance() float64
	UpdateBalance(ctx context.Context, balance, equity float64) error
	RecordClosedTrade(ctx context.Context, rec models.TradeRecord, closeType models.CloseType) error
	AppendReasoning(ctx context.Context, kind models.ReasoningKind, symbol string, ticket int64, provider, result string) error
}

// TickRecorder archives per-tick market state. Implementations must not
// block; a nil recorder disables archiving.
type TickRecorder interface {
	RecordTick(quote *models.Quote, openPositions int, balance, equity float64)
}

// Engine runs the trading control loop: one tick every TickInterval that
// reads market state, detects closures and drives break-even, guardian,
// ladder DCA and entry logic in that order.
type Engine struct {
	broker   broker.Broker
	candles  CandleSource
	ai       ai.Provider
	calc     *indicators.Calculator
	settings *config.Settings
	cooldown *risk.CooldownGate
	ledger   Ledger
	bus      *events.Bus
	archive  TickRecorder
	now      func() time.Time

	mu                sync.Mutex
	running           bool
	cancel            context.CancelFunc
	done              chan struct{}
	lastEntryCheck    time.Time
	lastGuardianCheck time.Time

	// touched only by the tick goroutine
	prev        map[int64]models.Position
	lastBalance float64
}

// New creates the trading engine. The archive is optional; pass nil to
// disable tick archiving.
func New(
	b broker.Broker,
	candles CandleSource,
	provider ai.Provider,
	settings *config.Settings,
	cooldown *risk.CooldownGate,
	ledger Ledger,
	bus *events.Bus,
	archive TickRecorder,
) *Engine {
	return &Engine{
		broker:   b,
		candles:  candles,
		ai:       provider,
		calc:     indicators.NewCalculator(),
		settings: settings,
		cooldown: cooldown,
		ledger:   ledger,
		bus:      bus,
		archive:  archive,
		now:      time.Now,
		prev:     make(map[int64]models.Position),
	}
}

// Start spawns the trading loop. The first tick runs immediately.
func (e *Engine) Start(ctx context.Context) error {
	e.mu.Lock()
	if e.running {
		e.mu.Unlock()
		return ErrAlreadyRunning
	}

	loopCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	e.running = true
	e.cancel = cancel
	e.done = done
	e.mu.Unlock()

	trading := e.settings.Trading()
	go e.loop(loopCtx, done, trading.TickInterval)

	logger.Info("trading engine started",
		zap.String("symbol", trading.Symbol),
		zap.Duration("interval", trading.TickInterval),
	)
	e.bus.Publish(models.EventStatus, models.StatusEvent{
		Running:   true,
		Connected: e.broker.IsConnected(),
		Message:   "trading engine started",
	})

	return nil
}

// Stop cancels the loop and waits for the in-flight tick to finish
func (e *Engine) Stop() error {
	e.mu.Lock()
	if !e.running {
		e.mu.Unlock()
		return ErrNotRunning
	}
	cancel := e.cancel
	done := e.done
	e.running = false
	e.cancel = nil
	e.mu.Unlock()

	cancel()
	<-done

	logger.Info("trading engine stopped")
	e.bus.Publish(models.EventStatus, models.StatusEvent{
		Running:   false,
		Connected: e.broker.IsConnected(),
		Message:   "trading engine stopped",
	})

	return nil
}

// Running reports whether the loop is active
func (e *Engine) Running() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.running
}

// Status returns the lifecycle snapshot exposed over the API
func (e *Engine) Status() models.EngineStatus {
	trading := e.settings.Trading()
	armed, remaining := e.cooldown.Status()

	e.mu.Lock()
	defer e.mu.Unlock()

	return models.EngineStatus{
		Running:           e.running,
		Connected:         e.broker.IsConnected(),
		Symbol:            trading.Symbol,
		BaseLot:           trading.BaseLot,
		MaxPositions:      trading.MaxPositions,
		CooldownActive:    armed && remaining > 0,
		CooldownUntil:     e.cooldown.Until(),
		LastEntryCheck:    e.lastEntryCheck,
		LastGuardianCheck: e.lastGuardianCheck,
	}
}

func (e *Engine) loop(ctx context.Context, done chan struct{}, interval time.Duration) {
	defer close(done)

	logger.Info("trading loop started")

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	e.runTick(ctx, interval)

	for {
		select {
		case <-ctx.Done():
			logger.Info("trading loop ended")
			return
		case <-ticker.C:
			e.runTick(ctx, interval)
		}
	}
}

// runTick bounds one tick with a deadline and turns its failure into a log
// line and an error event. A failed tick never kills the loop.
func (e *Engine) runTick(ctx context.Context, interval time.Duration) {
	tickCtx, cancel := context.WithTimeout(ctx, interval)
	defer cancel()

	started := e.now()
	if err := e.tick(tickCtx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("tick failed", zap.Error(err))
		e.bus.Publish(models.EventError, models.ErrorEvent{Message: err.Error()})
	}

	telemetry.ObserveTickDuration(e.now().Sub(started).Seconds())
	telemetry.IncTick()
}

// tick runs one pass of the control sequence. It returns an error only when
// the tick cannot proceed at all; partial failures inside the steps are
// logged and tolerated.
func (e *Engine) tick(ctx context.Context) error {
	trading := e.settings.Trading()
	symbol := trading.Symbol

	// 1. Live quote. Without a price nothing below can run.
	quote, err := e.broker.Quote(ctx, symbol)
	if err != nil {
		return fmt.Errorf("failed to fetch quote: %w", err)
	}
	e.bus.Publish(models.EventPrice, quote)

	// 2. Account snapshot, best effort
	account, err := e.broker.Account(ctx)
	if err != nil {
		logger.Warn("failed to fetch account", zap.Error(err))
	} else {
		e.lastBalance = account.Balance
		e.bus.Publish(models.EventAccount, account)
		telemetry.SetAccount(account.Balance, account.Equity)
		if err := e.ledger.UpdateBalance(ctx, account.Balance, account.Equity); err != nil {
			logger.Error("failed to update balance", zap.Error(err))
		}
	}

	// 3. Open positions. A failed fetch must not look like a closed book,
	// so the previous map stays untouched and the tick ends here.
	positions, err := e.broker.Positions(ctx, symbol)
	if err != nil {
		return fmt.Errorf("failed to fetch positions: %w", err)
	}
	e.bus.Publish(models.EventPositions, positions)
	telemetry.SetOpenPositions(len(positions))

	// 4. Closed-position detection
	closures, next := DetectClosed(e.prev, positions)
	e.prev = next
	for _, closure := range closures {
		e.handleClosure(ctx, &trading, closure)
	}

	if e.archive != nil {
		var balance, equity float64
		if account != nil {
			balance, equity = account.Balance, account.Equity
		}
		e.archive.RecordTick(quote, len(positions), balance, equity)
	}

	// 5. Market-closed gate. An unknown state reads as closed.
	open, err := e.broker.IsMarketOpen(ctx, symbol)
	if err != nil {
		logger.Warn("failed to check market state", zap.Error(err))
		return nil
	}
	if !open {
		logger.Debug("market closed")
		return nil
	}

	// 6. Session gate
	if trading.SessionFilterEnabled && !risk.InAllowedSession(e.now(), trading.AllowedSessions) {
		logger.Debug("outside allowed sessions")
		return nil
	}

	// 7. Auto break-even, every tick
	if len(positions) > 0 && trading.AutoBEPEnabled {
		e.applyBreakEven(ctx, &trading, quote, positions)
	}

	// 8. Guardian review, rate limited
	if len(positions) > 0 && e.guardianDue(trading.GuardianInterval) {
		e.runGuardian(ctx, &trading, quote, positions)
	}

	// 9. Ladder DCA while below the position cap
	if len(positions) > 0 && len(positions) < trading.MaxPositions {
		e.applyLadderDCA(ctx, &trading, quote, positions)
	}

	// 10. Entry analysis when flat, rate limited
	if len(positions) == 0 && e.entryDue(trading.EntryInterval) {
		e.runEntry(ctx, &trading, quote)
	}

	return nil
}

// handleClosure reacts to one detected closure: arm the cooldown on a stop
// loss, persist the trade and fan the event out.
func (e *Engine) handleClosure(ctx context.Context, trading *config.TradingConfig, c Closure) {
	logger.Info("position closed",
		zap.Int64("ticket", c.Ticket),
		zap.String("close_type", string(c.CloseType)),
		zap.Float64("profit", c.Profit),
	)

	if c.CloseType == models.CloseStopLoss {
		e.cooldown.Arm()
		logger.Warn("⚠️ stop loss hit, entry cooldown armed",
			zap.Int64("ticket", c.Ticket),
			zap.Duration("cooldown", trading.CooldownDuration),
		)
	}

	telemetry.IncClose(string(c.CloseType))

	rec := models.TradeRecord{
		Ticket:   c.Ticket,
		Symbol:   c.Symbol,
		Side:     c.Side,
		Volume:   c.Volume,
		Price:    c.Price,
		Profit:   c.Profit,
		ClosedAt: e.now(),
		Comment:  c.Comment,
	}
	if err := e.ledger.RecordClosedTrade(ctx, rec, c.CloseType); err != nil {
		logger.Error("failed to record closed trade", zap.Error(err))
	}

	e.bus.Publish(models.EventTrade, models.TradeEvent{
		Action:    models.TradeClosed,
		Ticket:    c.Ticket,
		Symbol:    c.Symbol,
		Side:      c.Side,
		Volume:    c.Volume,
		Profit:    c.Profit,
		CloseType: c.CloseType,
	})
}

func (e *Engine) entryDue(interval time.Duration) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	return e.lastEntryCheck.IsZero() || e.now().Sub(e.lastEntryCheck) >= interval
}

func (e *Engine) guardianDue(interval time.Duration) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	return e.lastGuardianCheck.IsZero() || e.now().Sub(e.lastGuardianCheck) >= interval
}

func (e *Engine) markEntryCheck() {
	e.mu.Lock()
	e.lastEntryCheck = e.now()
	e.mu.Unlock()
}

func (e *Engine) markGuardianCheck() {
	e.mu.Lock()
	e.lastGuardianCheck = e.now()
	e.mu.Unlock()
}

// recordReasoning persists one AI exchange and broadcasts it. Persistence
// failures are logged; the decision has already been made.
func (e *Engine) recordReasoning(ctx context.Context, kind models.ReasoningKind, symbol string, ticket int64, decision any) {
	raw, err := json.Marshal(decision)
	if err != nil {
		logger.Error("failed to encode reasoning", zap.Error(err))
		return
	}

	entry := models.ReasoningEntry{
		Kind:      kind,
		Symbol:    symbol,
		Ticket:    ticket,
		Provider:  e.ai.Name(),
		Result:    string(raw),
		CreatedAt: e.now(),
	}
	e.bus.Publish(models.EventReasoning, entry)

	if err := e.ledger.AppendReasoning(ctx, kind, symbol, ticket, entry.Provider, entry.Result); err != nil {
		logger.Error("failed to persist reasoning", zap.Error(err))
	}
}

// profitPips converts a position's favorable price movement into pips:
// positive values mean the position is winning.
func profitPips(position *models.Position, quote *models.Quote, pipSize float64) float64 {
	if position.Side == models.SideBuy {
		return (quote.Bid - position.OpenPrice) / pipSize
	}
	return (position.OpenPrice - quote.Ask) / pipSize
}
