package indicators

import (
	"fmt"

	"github.com/cinar/indicator"

	"github.com/avetrov/goldpilot/pkg/models"
)

// minCandles is the history needed for the slowest indicator (EMA 50)
const minCandles = 50

// Snapshot holds the indicator values included in AI prompts
type Snapshot struct {
	RSI14 float64
	EMA20 float64
	EMA50 float64
	ATR14 float64
	Trend string
}

// Calculator derives technical indicators from candle history
type Calculator struct{}

// NewCalculator creates new indicator calculator
func NewCalculator() *Calculator {
	return &Calculator{}
}

// Compute calculates the snapshot from candles ordered oldest first
func (c *Calculator) Compute(candles []models.Candle) (*Snapshot, error) {
	if len(candles) < minCandles {
		return nil, fmt.Errorf("insufficient candles for indicators (need at least %d, got %d)", minCandles, len(candles))
	}

	closes := make([]float64, len(candles))
	highs := make([]float64, len(candles))
	lows := make([]float64, len(candles))

	for i, candle := range candles {
		closes[i] = candle.Close
		highs[i] = candle.High
		lows[i] = candle.Low
	}

	_, rsi := indicator.Rsi(closes)
	if len(rsi) < 14 {
		return nil, fmt.Errorf("insufficient RSI data")
	}

	ema20 := indicator.Ema(20, closes)
	if len(ema20) == 0 {
		return nil, fmt.Errorf("EMA(20) calculation failed")
	}

	ema50 := indicator.Ema(50, closes)
	if len(ema50) == 0 {
		return nil, fmt.Errorf("EMA(50) calculation failed")
	}

	_, atr := indicator.Atr(14, highs, lows, closes)
	if len(atr) == 0 {
		return nil, fmt.Errorf("ATR returned no data")
	}

	snap := &Snapshot{
		RSI14: rsi[len(rsi)-1],
		EMA20: ema20[len(ema20)-1],
		EMA50: ema50[len(ema50)-1],
		ATR14: atr[len(atr)-1],
	}
	snap.Trend = detectTrend(closes[len(closes)-1], snap.EMA20, snap.EMA50)

	return snap, nil
}

// detectTrend classifies the market by price position against the EMAs
func detectTrend(price, ema20, ema50 float64) string {
	switch {
	case price > ema20 && ema20 > ema50:
		return "uptrend"
	case price < ema20 && ema20 < ema50:
		return "downtrend"
	default:
		return "sideways"
	}
}
