package broker

import (
	"context"
	"errors"

	"github.com/avetrov/goldpilot/pkg/models"
)

// ErrNotConnected is returned when an operation requires an established
// broker session
var ErrNotConnected = errors.New("broker not connected")

// Broker represents the unified trading interface the engine drives
type Broker interface {
	// Session
	Connect(ctx context.Context) error
	Disconnect(ctx context.Context) error
	IsConnected() bool

	// Market data
	Quote(ctx context.Context, symbol string) (*models.Quote, error)
	Candles(ctx context.Context, symbol, timeframe string, count int) ([]models.Candle, error)
	IsMarketOpen(ctx context.Context, symbol string) (bool, error)

	// Account
	Account(ctx context.Context) (*models.AccountSnapshot, error)
	Positions(ctx context.Context, symbol string) ([]models.Position, error)
	TradeHistory(ctx context.Context, symbol string, days int) ([]models.TradeRecord, error)

	// Trading
	PlaceMarketOrder(ctx context.Context, req OrderRequest) (*models.OrderResult, error)
	ModifyPosition(ctx context.Context, ticket int64, sl, tp float64) error
	ClosePosition(ctx context.Context, ticket int64) (*models.CloseResult, error)
}

// OrderRequest describes a market order. Zero SL/TP means unset.
type OrderRequest struct {
	Symbol     string      `json:"symbol"`
	Side       models.Side `json:"side"`
	Volume     float64     `json:"volume"`
	StopLoss   float64     `json:"sl"`
	TakeProfit float64     `json:"tp"`
	Comment    string      `json:"comment"`
}
