// Package marketdata serves OHLCV history from Bybit via ccxt as an
// alternative to broker candles. XAUUSD maps onto a tokenized-gold proxy
// instrument whose bars track spot gold closely enough for prompt context.
package marketdata

import (
	"context"
	"fmt"
	"time"

	ccxt "github.com/ccxt/ccxt/go/v4"
	"go.uber.org/zap"

	"github.com/avetrov/goldpilot/internal/adapters/config"
	"github.com/avetrov/goldpilot/pkg/logger"
	"github.com/avetrov/goldpilot/pkg/models"
)

// timeframes maps broker-style timeframe names onto ccxt notation
var timeframes = map[string]string{
	"M1":  "1m",
	"M5":  "5m",
	"M15": "15m",
	"M30": "30m",
	"H1":  "1h",
	"H4":  "4h",
	"D1":  "1d",
}

// BybitSource fetches candles from Bybit
type BybitSource struct {
	exchange *ccxt.Bybit
	cfg      *config.MarketDataConfig
}

// NewBybitSource creates the ccxt-backed candle source. API credentials are
// optional: OHLCV endpoints are public.
func NewBybitSource(cfg *config.MarketDataConfig) (*BybitSource, error) {
	options := map[string]interface{}{}
	if cfg.APIKey != "" {
		options["apiKey"] = cfg.APIKey
		options["secret"] = cfg.Secret
	}

	exchange := ccxt.NewBybit(options)
	exchange.SetOption("adjustForTimeDifference", true)

	if err := exchange.LoadMarkets(); err != nil {
		return nil, fmt.Errorf("failed to load Bybit markets: %w", err)
	}

	logger.Info("bybit candle source initialized",
		zap.String("proxy_symbol", cfg.BybitSymbol),
		zap.Int("markets_count", len(exchange.Markets)),
	)

	return &BybitSource{
		exchange: exchange,
		cfg:      cfg,
	}, nil
}

// Candles fetches the most recent count bars for the given timeframe
func (s *BybitSource) Candles(ctx context.Context, symbol, timeframe string, count int) ([]models.Candle, error) {
	tf, err := mapTimeframe(timeframe)
	if err != nil {
		return nil, err
	}

	ohlcv, err := s.exchange.FetchOHLCV(
		s.proxySymbol(symbol),
		ccxt.WithFetchOHLCVTimeframe(tf),
		ccxt.WithFetchOHLCVLimit(count),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch OHLCV: %w", err)
	}

	candles := make([]models.Candle, len(ohlcv))
	for i, bar := range ohlcv {
		candles[i] = models.Candle{
			Time:   time.UnixMilli(int64(bar[0])),
			Open:   bar[1],
			High:   bar[2],
			Low:    bar[3],
			Close:  bar[4],
			Volume: bar[5],
		}
	}

	return candles, nil
}

// proxySymbol swaps the traded symbol for its exchange-listed stand-in
func (s *BybitSource) proxySymbol(symbol string) string {
	if symbol == "XAUUSD" && s.cfg.BybitSymbol != "" {
		return s.cfg.BybitSymbol
	}
	return symbol
}

func mapTimeframe(timeframe string) (string, error) {
	tf, ok := timeframes[timeframe]
	if !ok {
		return "", fmt.Errorf("unsupported timeframe: %s", timeframe)
	}
	return tf, nil
}
