package engine

import (
	"context"
	"fmt"
	"math"

	"go.uber.org/zap"

	"github.com/avetrov/goldpilot/internal/adapters/broker"
	"github.com/avetrov/goldpilot/internal/adapters/config"
	"github.com/avetrov/goldpilot/internal/risk"
	"github.com/avetrov/goldpilot/internal/telemetry"
	"github.com/avetrov/goldpilot/pkg/logger"
	"github.com/avetrov/goldpilot/pkg/models"
)

// applyLadderDCA adds one position per DCAStepPips the price has moved away
// from the oldest position's open, in either direction unless the policy
// narrows it. The ladder is anchored to the first position so later fills
// do not shift the rung spacing.
func (e *Engine) applyLadderDCA(ctx context.Context, trading *config.TradingConfig, quote *models.Quote, positions []models.Position) {
	ref := &positions[0]

	pips := profitPips(ref, quote, trading.PipSize)
	moved := math.Abs(pips)

	switch trading.DCADirection {
	case config.DCAAdverse:
		if pips >= 0 {
			return
		}
	case config.DCAFavorable:
		if pips <= 0 {
			return
		}
	}

	expected := 1
	if moved >= trading.DCAStepPips {
		expected = 1 + int(moved/trading.DCAStepPips)
	}
	if expected > trading.MaxPositions {
		expected = trading.MaxPositions
	}

	if len(positions) >= expected {
		return
	}

	direction := "adverse"
	if pips > 0 {
		direction = "favorable"
	}

	count := len(positions) + 1
	volume := risk.DynamicLot(trading.BaseLot, e.ledger.InitialBalance(), e.lastBalance)

	logger.Info("ladder DCA rung reached",
		zap.Float64("pips_moved", roundPips(moved)),
		zap.String("direction", direction),
		zap.Int("position", count),
	)

	result, err := e.broker.PlaceMarketOrder(ctx, broker.OrderRequest{
		Symbol:     ref.Symbol,
		Side:       ref.Side,
		Volume:     volume,
		StopLoss:   ref.StopLoss,
		TakeProfit: ref.TakeProfit,
		Comment:    fmt.Sprintf("DCA_%d", count),
	})
	if err != nil {
		logger.Error("ladder DCA order failed", zap.Error(err))
		return
	}

	telemetry.IncOrder("dca")
	logger.Info("ladder DCA position opened",
		zap.String("side", string(ref.Side)),
		zap.Float64("volume", volume),
		zap.Int64("ticket", result.Ticket),
	)

	e.bus.Publish(models.EventTrade, models.TradeEvent{
		Action:     models.TradeDCA,
		Ticket:     result.Ticket,
		Symbol:     ref.Symbol,
		Side:       ref.Side,
		Volume:     volume,
		Price:      result.Price,
		StopLoss:   ref.StopLoss,
		TakeProfit: ref.TakeProfit,
		PipsMoved:  roundPips(moved),
		Count:      count,
	})
}
