package workers

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/avetrov/goldpilot/internal/ledger"
	"github.com/avetrov/goldpilot/pkg/logger"
)

// DefaultSummaryHour is the UTC hour the daily report goes out
const DefaultSummaryHour = 21

// StatsSource produces the profit report payload
type StatsSource interface {
	Stats(ctx context.Context) (*ledger.Stats, error)
}

// SummaryNotifier delivers the daily report
type SummaryNotifier interface {
	NotifyDailySummary(ctx context.Context, stats *ledger.Stats) error
}

// DailySummaryWorker sends one profit report per UTC day once the
// configured hour passes. Run executes one check; schedule it hourly.
type DailySummaryWorker struct {
	stats     StatsSource
	notifiers []SummaryNotifier
	hour      int
	lastSent  time.Time
	now       func() time.Time
}

// NewDailySummaryWorker creates the report worker. A boot after the send
// hour does not re-send that day's report.
func NewDailySummaryWorker(stats StatsSource, hour int, notifiers ...SummaryNotifier) *DailySummaryWorker {
	return newDailySummaryWorker(stats, hour, time.Now, notifiers...)
}

func newDailySummaryWorker(stats StatsSource, hour int, now func() time.Time, notifiers ...SummaryNotifier) *DailySummaryWorker {
	if hour < 0 || hour > 23 {
		hour = DefaultSummaryHour
	}

	kept := make([]SummaryNotifier, 0, len(notifiers))
	for _, n := range notifiers {
		if n != nil {
			kept = append(kept, n)
		}
	}

	w := &DailySummaryWorker{
		stats:     stats,
		notifiers: kept,
		hour:      hour,
		now:       now,
	}

	if ts := w.now().UTC(); ts.Hour() >= hour {
		w.lastSent = dateOf(ts)
	}

	return w
}

// Name implements worker.Worker
func (w *DailySummaryWorker) Name() string {
	return "daily_summary"
}

// Run sends the report when due. PeriodicWorker serializes calls, so no
// locking is needed around lastSent.
func (w *DailySummaryWorker) Run(ctx context.Context) error {
	now := w.now().UTC()
	if now.Hour() < w.hour {
		return nil
	}

	today := dateOf(now)
	if w.lastSent.Equal(today) {
		return nil
	}

	stats, err := w.stats.Stats(ctx)
	if err != nil {
		return fmt.Errorf("failed to load stats for daily summary: %w", err)
	}

	for _, n := range w.notifiers {
		if err := n.NotifyDailySummary(ctx, stats); err != nil {
			logger.Warn("daily summary notifier failed", zap.Error(err))
		}
	}

	w.lastSent = today
	logger.Info("📊 daily summary sent",
		zap.String("date", today.Format("2006-01-02")),
		zap.Float64("today_profit", stats.TodayProfit),
	)

	return nil
}

func dateOf(ts time.Time) time.Time {
	y, m, d := ts.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
