package engine

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/avetrov/goldpilot/internal/adapters/ai"
	"github.com/avetrov/goldpilot/internal/adapters/broker"
	"github.com/avetrov/goldpilot/internal/adapters/config"
	"github.com/avetrov/goldpilot/internal/telemetry"
	"github.com/avetrov/goldpilot/pkg/logger"
	"github.com/avetrov/goldpilot/pkg/models"
)

const guardianCandleCount = 20

// runGuardian reviews every open position with the AI. One position's
// failure does not stop the pass; the check timestamp advances afterwards
// either way.
func (e *Engine) runGuardian(ctx context.Context, trading *config.TradingConfig, quote *models.Quote, positions []models.Position) {
	for i := range positions {
		e.guardPosition(ctx, trading, quote, &positions[i])
	}
	e.markGuardianCheck()
}

func (e *Engine) guardPosition(ctx context.Context, trading *config.TradingConfig, quote *models.Quote, position *models.Position) {
	candles, err := e.candles.Candles(ctx, position.Symbol, "M15", guardianCandleCount)
	if err != nil {
		logger.Warn("failed to fetch guardian candles",
			zap.Int64("ticket", position.Ticket),
			zap.Error(err),
		)
	}

	pips := profitPips(position, quote, trading.PipSize)

	telemetry.IncAIRequest(e.ai.Name(), "guardian")
	verdict, err := e.ai.GuardPosition(ctx, &ai.GuardContext{
		Position:   *position,
		Quote:      *quote,
		CandlesM15: candles,
		ProfitPips: roundPips(pips),
	})
	if err != nil {
		logger.Warn("AI guardian analysis failed",
			zap.Int64("ticket", position.Ticket),
			zap.Error(err),
		)
		return
	}

	e.recordReasoning(ctx, models.ReasoningKindGuardian, position.Symbol, position.Ticket, verdict)

	switch verdict.Action {
	case models.GuardHold:
		logger.Debug("guardian verdict: HOLD",
			zap.Int64("ticket", position.Ticket),
			zap.String("reason", verdict.Reason),
		)

	case models.GuardModifySL, models.GuardModifyTP:
		e.guardianModify(ctx, position, verdict)

	case models.GuardClose:
		e.guardianClose(ctx, position, verdict)

	case models.GuardAddDCA:
		e.guardianAddDCA(ctx, trading, position, verdict)
	}
}

// guardianModify applies a stop or target change, keeping the current value
// for whichever side the verdict left unset.
func (e *Engine) guardianModify(ctx context.Context, position *models.Position, verdict *models.GuardVerdict) {
	newSL := verdict.NewSL
	if newSL == 0 {
		newSL = position.StopLoss
	}
	newTP := verdict.NewTP
	if newTP == 0 {
		newTP = position.TakeProfit
	}

	if err := e.broker.ModifyPosition(ctx, position.Ticket, newSL, newTP); err != nil {
		logger.Error("guardian modify failed",
			zap.Int64("ticket", position.Ticket),
			zap.Error(err),
		)
		return
	}

	logger.Info("guardian modified position",
		zap.Int64("ticket", position.Ticket),
		zap.String("action", string(verdict.Action)),
		zap.Float64("sl", newSL),
		zap.Float64("tp", newTP),
	)

	e.bus.Publish(models.EventTrade, models.TradeEvent{
		Action:     models.TradeModified,
		Ticket:     position.Ticket,
		Symbol:     position.Symbol,
		Side:       position.Side,
		StopLoss:   newSL,
		TakeProfit: newTP,
		Reason:     verdict.Reason,
	})
}

// guardianClose exits the position at market. The detector map is left
// alone: the next tick observes the disappearance, classifies it and arms
// the cooldown if the close realized a loss.
func (e *Engine) guardianClose(ctx context.Context, position *models.Position, verdict *models.GuardVerdict) {
	result, err := e.broker.ClosePosition(ctx, position.Ticket)
	if err != nil {
		logger.Error("guardian close failed",
			zap.Int64("ticket", position.Ticket),
			zap.Error(err),
		)
		return
	}

	logger.Info("guardian closed position",
		zap.Int64("ticket", position.Ticket),
		zap.Float64("profit", result.Profit),
		zap.String("reason", verdict.Reason),
	)

	e.bus.Publish(models.EventTrade, models.TradeEvent{
		Action: models.TradeClosed,
		Ticket: position.Ticket,
		Symbol: position.Symbol,
		Side:   position.Side,
		Volume: position.Volume,
		Price:  result.Price,
		Profit: result.Profit,
		Reason: verdict.Reason,
	})
}

// guardianAddDCA piles onto momentum with a base-lot order. The position
// count is re-checked against the live book so a cap reached since the
// tick started turns the verdict into a no-op.
func (e *Engine) guardianAddDCA(ctx context.Context, trading *config.TradingConfig, position *models.Position, verdict *models.GuardVerdict) {
	current, err := e.broker.Positions(ctx, position.Symbol)
	if err != nil {
		logger.Error("momentum DCA position check failed", zap.Error(err))
		return
	}

	if len(current) >= trading.MaxPositions {
		logger.Info("momentum DCA skipped: position cap reached",
			zap.Int("max_positions", trading.MaxPositions),
		)
		return
	}

	logger.Info("momentum DCA triggered",
		zap.String("momentum", string(verdict.Momentum)),
		zap.String("reason", verdict.Reason),
	)

	result, err := e.broker.PlaceMarketOrder(ctx, broker.OrderRequest{
		Symbol:     position.Symbol,
		Side:       position.Side,
		Volume:     trading.BaseLot,
		StopLoss:   position.StopLoss,
		TakeProfit: position.TakeProfit,
		Comment:    fmt.Sprintf("MOMENTUM_DCA_%s", verdict.Momentum),
	})
	if err != nil {
		logger.Error("momentum DCA order failed", zap.Error(err))
		return
	}

	telemetry.IncOrder("momentum_dca")
	logger.Info("momentum DCA position opened",
		zap.String("side", string(position.Side)),
		zap.Int64("ticket", result.Ticket),
	)

	e.bus.Publish(models.EventTrade, models.TradeEvent{
		Action:     models.TradeMomentumDCA,
		Ticket:     result.Ticket,
		Symbol:     position.Symbol,
		Side:       position.Side,
		Volume:     trading.BaseLot,
		Price:      result.Price,
		StopLoss:   position.StopLoss,
		TakeProfit: position.TakeProfit,
		Reason:     verdict.Reason,
	})
}
