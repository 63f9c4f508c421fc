package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/avetrov/goldpilot/pkg/models"
)

// ErrNoState is returned when the engine state row has not been seeded yet
var ErrNoState = errors.New("engine state not initialized")

// Repository handles database operations for profit tracking
type Repository struct {
	db *sqlx.DB
}

// NewRepository creates new ledger repository
func NewRepository(db *sqlx.DB) *Repository {
	return &Repository{db: db}
}

// EngineState is the singleton row holding balances and lifetime counters
type EngineState struct {
	ID             int64     `db:"id"`
	Symbol         string    `db:"symbol"`
	InitialBalance float64   `db:"initial_balance"`
	CurrentBalance float64   `db:"current_balance"`
	CurrentEquity  float64   `db:"current_equity"`
	TotalWins      int       `db:"total_wins"`
	TotalLosses    int       `db:"total_losses"`
	TotalTrades    int       `db:"total_trades"`
	UpdatedAt      time.Time `db:"updated_at"`
}

// DailySnapshot is one day of balance history
type DailySnapshot struct {
	Date        time.Time `db:"snap_date" json:"date"`
	Balance     float64   `db:"balance" json:"balance"`
	Equity      float64   `db:"equity" json:"equity"`
	ProfitDay   float64   `db:"profit_day" json:"profit_day"`
	TradesCount int       `db:"trades_count" json:"trades_count"`
	Wins        int       `db:"wins" json:"wins"`
	Losses      int       `db:"losses" json:"losses"`
	UpdatedAt   time.Time `db:"updated_at" json:"updated_at"`
}

// StatsRow holds the aggregates behind profit statistics
type StatsRow struct {
	WinningDays     int     `db:"winning_days"`
	LosingDays      int     `db:"losing_days"`
	TodayProfit     float64 `db:"today_profit"`
	YesterdayProfit float64 `db:"yesterday_profit"`
	WeekProfit      float64 `db:"week_profit"`
	MonthProfit     float64 `db:"month_profit"`
}

// LoadState loads the engine state row
func (r *Repository) LoadState(ctx context.Context) (*EngineState, error) {
	query := `
		SELECT id, symbol, initial_balance, current_balance, current_equity,
		       total_wins, total_losses, total_trades, updated_at
		FROM engine_state
		WHERE id = 1
	`

	var state EngineState
	err := r.db.GetContext(ctx, &state, query)
	if err == sql.ErrNoRows {
		return nil, ErrNoState
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load engine state: %w", err)
	}

	return &state, nil
}

// SeedState creates the engine state row. A nonzero baseline already in
// place is never overwritten; a zero one is repaired, so the first nonzero
// balance wins no matter when it arrives.
func (r *Repository) SeedState(ctx context.Context, symbol string, initialBalance float64) error {
	query := `
		INSERT INTO engine_state (id, symbol, initial_balance, current_balance, current_equity, updated_at)
		VALUES (1, $1, $2, $2, $2, $3)
		ON CONFLICT (id) DO UPDATE SET
		        initial_balance = EXCLUDED.initial_balance,
		        updated_at = EXCLUDED.updated_at
		WHERE engine_state.initial_balance <= 0
	`

	_, err := r.db.ExecContext(ctx, query, symbol, initialBalance, time.Now())
	if err != nil {
		return fmt.Errorf("failed to seed engine state: %w", err)
	}
	return nil
}

// UpdateStateBalance stores the latest balance and equity
func (r *Repository) UpdateStateBalance(ctx context.Context, balance, equity float64) error {
	query := `
		UPDATE engine_state
		SET current_balance = $1, current_equity = $2, updated_at = $3
		WHERE id = 1
	`

	_, err := r.db.ExecContext(ctx, query, balance, equity, time.Now())
	if err != nil {
		return fmt.Errorf("failed to update engine state balance: %w", err)
	}
	return nil
}

// IncrementTradeCounters bumps the lifetime win/loss counters
func (r *Repository) IncrementTradeCounters(ctx context.Context, win bool) error {
	query := `
		UPDATE engine_state
		SET total_trades = total_trades + 1,
		    total_wins = total_wins + CASE WHEN $1 THEN 1 ELSE 0 END,
		    total_losses = total_losses + CASE WHEN $1 THEN 0 ELSE 1 END,
		    updated_at = $2
		WHERE id = 1
	`

	_, err := r.db.ExecContext(ctx, query, win, time.Now())
	if err != nil {
		return fmt.Errorf("failed to increment trade counters: %w", err)
	}
	return nil
}

// SetTradeCounters overwrites the lifetime counters (history sync)
func (r *Repository) SetTradeCounters(ctx context.Context, wins, losses int) error {
	query := `
		UPDATE engine_state
		SET total_wins = $1, total_losses = $2, total_trades = $1 + $2, updated_at = $3
		WHERE id = 1
	`

	_, err := r.db.ExecContext(ctx, query, wins, losses, time.Now())
	if err != nil {
		return fmt.Errorf("failed to set trade counters: %w", err)
	}
	return nil
}

// UpsertDailyBalance records today's balance and derives the day profit from
// the previous snapshot (or the initial balance on the first day)
func (r *Repository) UpsertDailyBalance(ctx context.Context, day time.Time, balance, equity float64) error {
	query := `
		INSERT INTO daily_snapshots (snap_date, balance, equity, profit_day, trades_count, wins, losses, created_at, updated_at)
		VALUES ($1, $2, $3,
		        CASE
		            WHEN (SELECT balance FROM daily_snapshots WHERE snap_date < $1 ORDER BY snap_date DESC LIMIT 1) IS NULL
		                 AND COALESCE((SELECT initial_balance FROM engine_state WHERE id = 1), 0) = 0 THEN 0
		            ELSE $2 - COALESCE(
		                (SELECT balance FROM daily_snapshots WHERE snap_date < $1 ORDER BY snap_date DESC LIMIT 1),
		                (SELECT initial_balance FROM engine_state WHERE id = 1),
		                0)
		        END,
		        0, 0, 0, $4, $4)
		ON CONFLICT (snap_date) DO UPDATE SET
		        balance = EXCLUDED.balance,
		        equity = EXCLUDED.equity,
		        profit_day = EXCLUDED.profit_day,
		        updated_at = EXCLUDED.updated_at
	`

	_, err := r.db.ExecContext(ctx, query, day, balance, equity, time.Now())
	if err != nil {
		return fmt.Errorf("failed to upsert daily snapshot: %w", err)
	}
	return nil
}

// AddTradeToDay bumps the day's trade counters, creating the snapshot if the
// day has no balance entry yet
func (r *Repository) AddTradeToDay(ctx context.Context, day time.Time, profit float64) error {
	query := `
		INSERT INTO daily_snapshots (snap_date, balance, equity, profit_day, trades_count, wins, losses, created_at, updated_at)
		VALUES ($1,
		        COALESCE((SELECT current_balance FROM engine_state WHERE id = 1), 0),
		        COALESCE((SELECT current_equity FROM engine_state WHERE id = 1), 0),
		        0, 1,
		        CASE WHEN $2 >= 0 THEN 1 ELSE 0 END,
		        CASE WHEN $2 < 0 THEN 1 ELSE 0 END,
		        $3, $3)
		ON CONFLICT (snap_date) DO UPDATE SET
		        trades_count = daily_snapshots.trades_count + 1,
		        wins = daily_snapshots.wins + CASE WHEN $2 >= 0 THEN 1 ELSE 0 END,
		        losses = daily_snapshots.losses + CASE WHEN $2 < 0 THEN 1 ELSE 0 END,
		        updated_at = $3
	`

	_, err := r.db.ExecContext(ctx, query, day, profit, time.Now())
	if err != nil {
		return fmt.Errorf("failed to add trade to daily snapshot: %w", err)
	}
	return nil
}

// QueryStats aggregates day profits around the given date
func (r *Repository) QueryStats(ctx context.Context, today time.Time) (*StatsRow, error) {
	query := `
		SELECT
		    COUNT(*) FILTER (WHERE profit_day > 0) AS winning_days,
		    COUNT(*) FILTER (WHERE profit_day < 0) AS losing_days,
		    COALESCE(SUM(profit_day) FILTER (WHERE snap_date = $1::date), 0) AS today_profit,
		    COALESCE(SUM(profit_day) FILTER (WHERE snap_date = $1::date - 1), 0) AS yesterday_profit,
		    COALESCE(SUM(profit_day) FILTER (WHERE snap_date > $1::date - 7), 0) AS week_profit,
		    COALESCE(SUM(profit_day) FILTER (WHERE snap_date > $1::date - 30), 0) AS month_profit
		FROM daily_snapshots
	`

	var row StatsRow
	if err := r.db.GetContext(ctx, &row, query, today); err != nil {
		return nil, fmt.Errorf("failed to query profit stats: %w", err)
	}

	return &row, nil
}

// Snapshots returns the last N daily snapshots in ascending date order
func (r *Repository) Snapshots(ctx context.Context, days int) ([]DailySnapshot, error) {
	query := `
		SELECT snap_date, balance, equity, profit_day, trades_count, wins, losses, updated_at
		FROM (
		    SELECT snap_date, balance, equity, profit_day, trades_count, wins, losses, updated_at
		    FROM daily_snapshots
		    ORDER BY snap_date DESC
		    LIMIT $1
		) recent
		ORDER BY snap_date ASC
	`

	snapshots := make([]DailySnapshot, 0, days)
	if err := r.db.SelectContext(ctx, &snapshots, query, days); err != nil {
		return nil, fmt.Errorf("failed to load daily snapshots: %w", err)
	}

	return snapshots, nil
}

// tradeRow mirrors the trades table
type tradeRow struct {
	Ticket    int64     `db:"ticket"`
	Symbol    string    `db:"symbol"`
	Side      string    `db:"side"`
	Volume    float64   `db:"volume"`
	Price     float64   `db:"price"`
	Profit    float64   `db:"profit"`
	CloseType string    `db:"close_type"`
	Comment   string    `db:"comment"`
	ClosedAt  time.Time `db:"closed_at"`
}

// InsertTrade stores a closed trade; replays of the same ticket are ignored
func (r *Repository) InsertTrade(ctx context.Context, rec models.TradeRecord, closeType models.CloseType) error {
	query := `
		INSERT INTO trades (ticket, symbol, side, volume, price, profit, close_type, comment, closed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (ticket) DO NOTHING
	`

	_, err := r.db.ExecContext(ctx, query,
		rec.Ticket, rec.Symbol, string(rec.Side), rec.Volume, rec.Price,
		rec.Profit, string(closeType), rec.Comment, rec.ClosedAt)
	if err != nil {
		return fmt.Errorf("failed to insert trade: %w", err)
	}
	return nil
}

// TradesSince returns closed trades newest first
func (r *Repository) TradesSince(ctx context.Context, since time.Time) ([]models.TradeRecord, error) {
	query := `
		SELECT ticket, symbol, side, volume, price, profit, close_type, comment, closed_at
		FROM trades
		WHERE closed_at >= $1
		ORDER BY closed_at DESC
	`

	var rows []tradeRow
	if err := r.db.SelectContext(ctx, &rows, query, since); err != nil {
		return nil, fmt.Errorf("failed to load trades: %w", err)
	}

	records := make([]models.TradeRecord, len(rows))
	for i, row := range rows {
		records[i] = models.TradeRecord{
			Ticket:   row.Ticket,
			Symbol:   row.Symbol,
			Side:     models.Side(row.Side),
			Volume:   row.Volume,
			Price:    row.Price,
			Profit:   row.Profit,
			ClosedAt: row.ClosedAt,
			Comment:  row.Comment,
		}
	}

	return records, nil
}

// InsertReasoning appends one AI exchange to the log
func (r *Repository) InsertReasoning(ctx context.Context, entry models.ReasoningEntry) error {
	query := `
		INSERT INTO reasoning_log (kind, symbol, ticket, provider, result, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`

	_, err := r.db.ExecContext(ctx, query,
		string(entry.Kind), entry.Symbol, entry.Ticket, entry.Provider, entry.Result, entry.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert reasoning entry: %w", err)
	}
	return nil
}

// RecentReasoning returns the latest AI exchanges newest first
func (r *Repository) RecentReasoning(ctx context.Context, limit int) ([]models.ReasoningEntry, error) {
	query := `
		SELECT id, kind, symbol, ticket, provider, result, created_at
		FROM reasoning_log
		ORDER BY id DESC
		LIMIT $1
	`

	entries := make([]models.ReasoningEntry, 0, limit)
	if err := r.db.SelectContext(ctx, &entries, query, limit); err != nil {
		return nil, fmt.Errorf("failed to load reasoning log: %w", err)
	}

	return entries, nil
}
