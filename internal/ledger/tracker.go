package ledger

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/avetrov/goldpilot/pkg/logger"
	"github.com/avetrov/goldpilot/pkg/models"
)

// Store is the persistence surface the tracker needs
type Store interface {
	LoadState(ctx context.Context) (*EngineState, error)
	SeedState(ctx context.Context, symbol string, initialBalance float64) error
	UpdateStateBalance(ctx context.Context, balance, equity float64) error
	IncrementTradeCounters(ctx context.Context, win bool) error
	SetTradeCounters(ctx context.Context, wins, losses int) error
	UpsertDailyBalance(ctx context.Context, day time.Time, balance, equity float64) error
	AddTradeToDay(ctx context.Context, day time.Time, profit float64) error
	QueryStats(ctx context.Context, today time.Time) (*StatsRow, error)
	Snapshots(ctx context.Context, days int) ([]DailySnapshot, error)
	InsertTrade(ctx context.Context, rec models.TradeRecord, closeType models.CloseType) error
	TradesSince(ctx context.Context, since time.Time) ([]models.TradeRecord, error)
	InsertReasoning(ctx context.Context, entry models.ReasoningEntry) error
	RecentReasoning(ctx context.Context, limit int) ([]models.ReasoningEntry, error)
}

// Stats is the profit statistics payload
type Stats struct {
	InitialBalance     float64         `json:"initial_balance"`
	CurrentBalance     float64         `json:"current_balance"`
	TotalProfit        float64         `json:"total_profit"`
	TotalProfitPercent float64         `json:"total_profit_percent"`
	TodayProfit        float64         `json:"today_profit"`
	YesterdayProfit    float64         `json:"yesterday_profit"`
	WeekProfit         float64         `json:"week_profit"`
	MonthProfit        float64         `json:"month_profit"`
	TotalTrades        int             `json:"total_trades"`
	TotalWins          int             `json:"total_wins"`
	TotalLosses        int             `json:"total_losses"`
	WinRate            float64         `json:"win_rate"`
	WinningDays        int             `json:"winning_days"`
	LosingDays         int             `json:"losing_days"`
	History            []DailySnapshot `json:"history"`
}

// SyncResult summarizes a trade-history sync
type SyncResult struct {
	TotalTrades int     `json:"total_trades"`
	Wins        int     `json:"wins"`
	Losses      int     `json:"losses"`
	WinRate     float64 `json:"win_rate"`
}

// Tracker tracks balance growth and trade performance
type Tracker struct {
	store Store

	mu             sync.Mutex
	symbol         string
	initialBalance float64
	currentBalance float64

	now func() time.Time
}

// NewTracker creates new profit tracker
func NewTracker(store Store) *Tracker {
	return &Tracker{
		store: store,
		now:   time.Now,
	}
}

// Initialize loads the engine state, seeding it on first run, and returns
// the effective initial balance. A zero boot balance (broker unreachable)
// leaves the baseline unseeded; the first nonzero balance reported through
// UpdateBalance seeds it then.
func (t *Tracker) Initialize(ctx context.Context, symbol string, balance float64) (float64, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.symbol = symbol

	state, err := t.store.LoadState(ctx)
	if errors.Is(err, ErrNoState) {
		if balance <= 0 {
			logger.Warn("no account balance at boot, deferring initial balance seed")
			return 0, nil
		}
		if err := t.store.SeedState(ctx, symbol, balance); err != nil {
			return 0, err
		}
		logger.Info("initial balance set", zap.Float64("balance", balance))
		state, err = t.store.LoadState(ctx)
	}
	if err != nil {
		return 0, err
	}

	t.initialBalance = state.InitialBalance
	t.currentBalance = state.CurrentBalance

	logger.Info("profit tracker initialized",
		zap.Float64("initial_balance", state.InitialBalance),
		zap.Float64("balance", state.CurrentBalance),
		zap.Int("total_trades", state.TotalTrades),
	)

	return state.InitialBalance, nil
}

// InitialBalance returns the balance growth baseline
func (t *Tracker) InitialBalance() float64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.initialBalance
}

// UpdateBalance stores the latest balance and refreshes today's snapshot.
// When the growth baseline is still unseeded this balance becomes it.
func (t *Tracker) UpdateBalance(ctx context.Context, balance, equity float64) error {
	t.mu.Lock()
	t.currentBalance = balance
	seed := t.initialBalance <= 0 && balance > 0
	symbol := t.symbol
	t.mu.Unlock()

	if seed {
		if err := t.store.SeedState(ctx, symbol, balance); err != nil {
			return err
		}
		t.mu.Lock()
		t.initialBalance = balance
		t.mu.Unlock()
		logger.Info("initial balance set", zap.Float64("balance", balance))
	}

	if err := t.store.UpdateStateBalance(ctx, balance, equity); err != nil {
		return err
	}
	return t.store.UpsertDailyBalance(ctx, t.today(), balance, equity)
}

// RecordClosedTrade persists a closed trade and bumps win/loss counters
func (t *Tracker) RecordClosedTrade(ctx context.Context, rec models.TradeRecord, closeType models.CloseType) error {
	if err := t.store.InsertTrade(ctx, rec, closeType); err != nil {
		return err
	}
	if err := t.store.IncrementTradeCounters(ctx, rec.Profit >= 0); err != nil {
		return err
	}
	if err := t.store.AddTradeToDay(ctx, dayOf(rec.ClosedAt), rec.Profit); err != nil {
		return err
	}

	logger.Info("trade recorded",
		zap.Int64("ticket", rec.Ticket),
		zap.Float64("profit", rec.Profit),
		zap.String("close_type", string(closeType)),
	)

	return nil
}

// Stats assembles the profit statistics
func (t *Tracker) Stats(ctx context.Context) (*Stats, error) {
	state, err := t.store.LoadState(ctx)
	if errors.Is(err, ErrNoState) {
		return &Stats{History: []DailySnapshot{}}, nil
	}
	if err != nil {
		return nil, err
	}

	row, err := t.store.QueryStats(ctx, t.today())
	if err != nil {
		return nil, err
	}

	history, err := t.store.Snapshots(ctx, 30)
	if err != nil {
		return nil, err
	}

	var totalProfit, totalPercent float64
	if state.InitialBalance > 0 {
		totalProfit = state.CurrentBalance - state.InitialBalance
		totalPercent = totalProfit / state.InitialBalance * 100
	}

	var winRate float64
	if state.TotalTrades > 0 {
		winRate = float64(state.TotalWins) / float64(state.TotalTrades) * 100
	}

	return &Stats{
		InitialBalance:     state.InitialBalance,
		CurrentBalance:     state.CurrentBalance,
		TotalProfit:        round2(totalProfit),
		TotalProfitPercent: round2(totalPercent),
		TodayProfit:        round2(row.TodayProfit),
		YesterdayProfit:    round2(row.YesterdayProfit),
		WeekProfit:         round2(row.WeekProfit),
		MonthProfit:        round2(row.MonthProfit),
		TotalTrades:        state.TotalTrades,
		TotalWins:          state.TotalWins,
		TotalLosses:        state.TotalLosses,
		WinRate:            round1(winRate),
		WinningDays:        row.WinningDays,
		LosingDays:         row.LosingDays,
		History:            history,
	}, nil
}

// ChartData returns daily snapshots for the growth chart, oldest first
func (t *Tracker) ChartData(ctx context.Context, days int) ([]DailySnapshot, error) {
	if days <= 0 {
		days = 30
	}
	return t.store.Snapshots(ctx, days)
}

// SyncFromHistory rebuilds the lifetime counters from broker trade history
func (t *Tracker) SyncFromHistory(ctx context.Context, records []models.TradeRecord) (*SyncResult, error) {
	var wins, losses int
	for _, rec := range records {
		closeType := models.CloseTakeProfit
		if rec.Profit < 0 {
			closeType = models.CloseStopLoss
		}
		if err := t.store.InsertTrade(ctx, rec, closeType); err != nil {
			return nil, err
		}

		if rec.Profit >= 0 {
			wins++
		} else {
			losses++
		}
	}

	if err := t.store.SetTradeCounters(ctx, wins, losses); err != nil {
		return nil, err
	}

	total := wins + losses
	var winRate float64
	if total > 0 {
		winRate = float64(wins) / float64(total) * 100
	}

	logger.Info("win rate synced from trade history",
		zap.Int("trades", total),
		zap.Int("wins", wins),
		zap.Int("losses", losses),
	)

	return &SyncResult{
		TotalTrades: total,
		Wins:        wins,
		Losses:      losses,
		WinRate:     round1(winRate),
	}, nil
}

// AppendReasoning stores one AI exchange
func (t *Tracker) AppendReasoning(ctx context.Context, kind models.ReasoningKind, symbol string, ticket int64, provider, result string) error {
	entry := models.ReasoningEntry{
		Kind:      kind,
		Symbol:    symbol,
		Ticket:    ticket,
		Provider:  provider,
		Result:    result,
		CreatedAt: t.now(),
	}
	return t.store.InsertReasoning(ctx, entry)
}

// RecentReasoning returns the latest AI exchanges newest first
func (t *Tracker) RecentReasoning(ctx context.Context, limit int) ([]models.ReasoningEntry, error) {
	if limit <= 0 {
		limit = 100
	}
	return t.store.RecentReasoning(ctx, limit)
}

func (t *Tracker) today() time.Time {
	return dayOf(t.now())
}

// dayOf truncates a timestamp to its UTC date
func dayOf(ts time.Time) time.Time {
	y, m, d := ts.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func round2(v float64) float64 {
	f, _ := decimal.NewFromFloat(v).Round(2).Float64()
	return f
}

func round1(v float64) float64 {
	f, _ := decimal.NewFromFloat(v).Round(1).Float64()
	return f
}
