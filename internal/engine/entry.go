package engine

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/avetrov/goldpilot/internal/adapters/ai"
	"github.com/avetrov/goldpilot/internal/adapters/broker"
	"github.com/avetrov/goldpilot/internal/adapters/config"
	"github.com/avetrov/goldpilot/internal/indicators"
	"github.com/avetrov/goldpilot/internal/risk"
	"github.com/avetrov/goldpilot/internal/telemetry"
	"github.com/avetrov/goldpilot/pkg/logger"
	"github.com/avetrov/goldpilot/pkg/models"
)

const entryCandleCount = 50

// runEntry asks the AI for an entry while the book is flat. Every analysis
// attempt advances the entry timestamp; a cooldown skip does not, so the
// engine retries on the first tick after the window.
func (e *Engine) runEntry(ctx context.Context, trading *config.TradingConfig, quote *models.Quote) {
	if armed, remaining := e.cooldown.Status(); armed {
		if remaining > 0 {
			logger.Info("🕐 stop-loss cooldown active, skipping entry",
				zap.Duration("remaining", remaining.Round(time.Second)),
			)
			return
		}
		logger.Info("✅ stop-loss cooldown expired, resuming entries")
		e.cooldown.Clear()
	}

	defer e.markEntryCheck()

	symbol := trading.Symbol

	candlesH1, err := e.candles.Candles(ctx, symbol, "H1", entryCandleCount)
	if err != nil {
		logger.Warn("failed to fetch H1 candles", zap.Error(err))
	}
	candlesM15, err := e.candles.Candles(ctx, symbol, "M15", entryCandleCount)
	if err != nil {
		logger.Warn("failed to fetch M15 candles", zap.Error(err))
	}

	var snapshot *indicators.Snapshot
	if s, err := e.calc.Compute(candlesH1); err != nil {
		logger.Debug("indicators unavailable", zap.Error(err))
	} else {
		snapshot = s
	}

	telemetry.IncAIRequest(e.ai.Name(), "entry")
	decision, err := e.ai.AnalyzeEntry(ctx, &ai.EntryContext{
		Symbol:     symbol,
		Quote:      *quote,
		CandlesH1:  candlesH1,
		CandlesM15: candlesM15,
		Indicators: snapshot,
	})
	if err != nil {
		logger.Warn("AI entry analysis failed", zap.Error(err))
		return
	}

	e.recordReasoning(ctx, models.ReasoningKindEntry, symbol, 0, decision)

	if decision.Decision == models.EntryWait {
		logger.Info("AI entry decision: WAIT",
			zap.Int("confidence", decision.Confidence),
			zap.String("reason", decision.Reason),
		)
		return
	}

	if decision.Confidence < trading.MinConfidence {
		logger.Info("AI entry confidence below threshold",
			zap.String("decision", string(decision.Decision)),
			zap.Int("confidence", decision.Confidence),
			zap.Int("min_confidence", trading.MinConfidence),
		)
		return
	}

	side := models.SideBuy
	if decision.Decision == models.EntrySell {
		side = models.SideSell
	}

	sl := clampStopLoss(side, decision.StopLoss, quote, trading.MaxSLDistance)
	if sl != decision.StopLoss {
		logger.Info("stop loss clamped to max distance",
			zap.Float64("proposed", decision.StopLoss),
			zap.Float64("sl", sl),
		)
	}

	volume := risk.DynamicLot(trading.BaseLot, e.ledger.InitialBalance(), e.lastBalance)

	result, err := e.broker.PlaceMarketOrder(ctx, broker.OrderRequest{
		Symbol:     symbol,
		Side:       side,
		Volume:     volume,
		StopLoss:   sl,
		TakeProfit: decision.TakeProfit,
		Comment:    fmt.Sprintf("AI_%d", decision.Confidence),
	})
	if err != nil {
		logger.Error("failed to open trade", zap.Error(err))
		return
	}

	telemetry.IncOrder("entry")
	logger.Info("trade opened",
		zap.String("side", string(side)),
		zap.Float64("volume", volume),
		zap.Float64("price", result.Price),
		zap.Int64("ticket", result.Ticket),
		zap.Int("confidence", decision.Confidence),
	)

	e.bus.Publish(models.EventTrade, models.TradeEvent{
		Action:     models.TradeOpened,
		Ticket:     result.Ticket,
		Symbol:     symbol,
		Side:       side,
		Volume:     volume,
		Price:      result.Price,
		StopLoss:   sl,
		TakeProfit: decision.TakeProfit,
		Confidence: decision.Confidence,
		Reason:     decision.Reason,
	})

	// Refresh the book so consumers see the fill without waiting a tick
	if positions, err := e.broker.Positions(ctx, symbol); err == nil {
		e.bus.Publish(models.EventPositions, positions)
	}
}

// clampStopLoss enforces the widest stop the engine accepts: MaxSLDistance
// price units from the live entry price. A missing stop (0) or one further
// away is pulled to the limit; a tighter stop passes through.
func clampStopLoss(side models.Side, sl float64, quote *models.Quote, maxDistance float64) float64 {
	if side == models.SideBuy {
		maxSL := quote.Ask - maxDistance
		if sl == 0 || sl < maxSL {
			return maxSL
		}
		return sl
	}

	maxSL := quote.Bid + maxDistance
	if sl == 0 || sl > maxSL {
		return maxSL
	}
	return sl
}
