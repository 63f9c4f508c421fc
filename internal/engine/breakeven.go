package engine

import (
	"context"
	"math"

	"go.uber.org/zap"

	"github.com/avetrov/goldpilot/internal/adapters/config"
	"github.com/avetrov/goldpilot/pkg/logger"
	"github.com/avetrov/goldpilot/pkg/models"
)

// applyBreakEven moves the stop loss to the open price once a position is
// far enough in profit. The move happens once per position: after it the
// stop already sits at the open price and the side predicate goes false.
func (e *Engine) applyBreakEven(ctx context.Context, trading *config.TradingConfig, quote *models.Quote, positions []models.Position) {
	for i := range positions {
		position := &positions[i]

		pips := profitPips(position, quote, trading.PipSize)

		// A BUY stop below the open (or unset, 0) still exposes the entry;
		// a SELL stop above the open (or unset) does the same.
		var needsMove bool
		if position.Side == models.SideBuy {
			needsMove = position.StopLoss < position.OpenPrice
		} else {
			needsMove = position.StopLoss == 0 || position.StopLoss > position.OpenPrice
		}

		if pips < trading.BEPTriggerPips || !needsMove {
			continue
		}

		logger.Info("auto break-even triggered",
			zap.Int64("ticket", position.Ticket),
			zap.Float64("profit_pips", roundPips(pips)),
			zap.Float64("new_sl", position.OpenPrice),
		)

		if err := e.broker.ModifyPosition(ctx, position.Ticket, position.OpenPrice, position.TakeProfit); err != nil {
			logger.Error("auto break-even modify failed",
				zap.Int64("ticket", position.Ticket),
				zap.Error(err),
			)
			continue
		}

		e.bus.Publish(models.EventTrade, models.TradeEvent{
			Action:     models.TradeAutoBEP,
			Ticket:     position.Ticket,
			Symbol:     position.Symbol,
			Side:       position.Side,
			StopLoss:   position.OpenPrice,
			ProfitPips: roundPips(pips),
		})
	}
}

// roundPips keeps pip values readable in logs and events
func roundPips(pips float64) float64 {
	return math.Round(pips*10) / 10
}
