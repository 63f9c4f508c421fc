package clickhouse

import (
	"go.uber.org/zap"

	"github.com/avetrov/goldpilot/pkg/logger"
	"github.com/avetrov/goldpilot/pkg/metrics"
	"github.com/avetrov/goldpilot/pkg/models"
)

// Recorder feeds engine ticks into the metrics buffer. It satisfies the
// engine's tick archive hook and never blocks the trading loop.
type Recorder struct {
	buffer metrics.Buffer
}

// NewRecorder creates the tick recorder
func NewRecorder(buffer metrics.Buffer) *Recorder {
	return &Recorder{buffer: buffer}
}

// RecordTick buffers one tick snapshot for archiving
func (r *Recorder) RecordTick(quote *models.Quote, openPositions int, balance, equity float64) {
	if quote == nil {
		return
	}

	err := r.buffer.Add(&metrics.TickMetric{
		Timestamp:     quote.Time,
		Symbol:        quote.Symbol,
		Bid:           quote.Bid,
		Ask:           quote.Ask,
		Spread:        quote.Spread,
		OpenPositions: openPositions,
		Balance:       balance,
		Equity:        equity,
	})
	if err != nil {
		logger.Warn("failed to buffer tick", zap.Error(err))
	}
}
