package models

import (
	"time"
)

// Side represents position or order direction
type Side string

const (
	SideBuy  Side = "BUY"
	SideSell Side = "SELL"
)

// Opposite returns the closing side for a position
func (s Side) Opposite() Side {
	if s == SideBuy {
		return SideSell
	}
	return SideBuy
}

// CloseType classifies why a position left the book
type CloseType string

const (
	CloseTakeProfit CloseType = "TP_HIT"
	CloseStopLoss   CloseType = "SL_HIT"
	CloseManual     CloseType = "MANUAL"
)

// Quote represents a live bid/ask snapshot for a symbol
type Quote struct {
	Symbol string    `json:"symbol"`
	Bid    float64   `json:"bid"`
	Ask    float64   `json:"ask"`
	Spread float64   `json:"spread"`
	Time   time.Time `json:"time"`
}

// AccountSnapshot represents broker account state at one moment
type AccountSnapshot struct {
	Login        int64   `json:"login"`
	Balance      float64 `json:"balance"`
	Equity       float64 `json:"equity"`
	Profit       float64 `json:"profit"`
	Margin       float64 `json:"margin"`
	MarginFree   float64 `json:"margin_free"`
	MarginLevel  float64 `json:"margin_level"`
	Leverage     int     `json:"leverage"`
	Currency     string  `json:"currency"`
	Server       string  `json:"server"`
	TradeAllowed bool    `json:"trade_allowed"`
}

// Position represents an open trade as reported by the broker
type Position struct {
	Ticket       int64     `json:"ticket"`
	Symbol       string    `json:"symbol"`
	Side         Side      `json:"side"`
	Volume       float64   `json:"volume"`
	OpenPrice    float64   `json:"open_price"`
	CurrentPrice float64   `json:"current_price"`
	StopLoss     float64   `json:"sl"`
	TakeProfit   float64   `json:"tp"`
	Profit       float64   `json:"profit"`
	Swap         float64   `json:"swap"`
	OpenedAt     time.Time `json:"opened_at"`
	Magic        int64     `json:"magic"`
	Comment      string    `json:"comment"`
}

// Candle represents one OHLCV bar
type Candle struct {
	Time   time.Time `json:"time"`
	Open   float64   `json:"open"`
	High   float64   `json:"high"`
	Low    float64   `json:"low"`
	Close  float64   `json:"close"`
	Volume float64   `json:"volume"`
}

// Bullish reports whether the bar closed above its open
func (c Candle) Bullish() bool {
	return c.Close > c.Open
}

// OrderResult represents a filled market order
type OrderResult struct {
	Ticket int64   `json:"ticket"`
	Price  float64 `json:"price"`
	Volume float64 `json:"volume"`
}

// CloseResult represents a position closure acknowledged by the broker
type CloseResult struct {
	Ticket int64   `json:"ticket"`
	Price  float64 `json:"price"`
	Profit float64 `json:"profit"`
}

// TradeRecord represents one closed deal from broker history
type TradeRecord struct {
	Ticket   int64     `json:"ticket"`
	Symbol   string    `json:"symbol"`
	Side     Side      `json:"side"`
	Volume   float64   `json:"volume"`
	Price    float64   `json:"price"`
	Profit   float64   `json:"profit"`
	ClosedAt time.Time `json:"closed_at"`
	Comment  string    `json:"comment"`
}

// EngineStatus is the lifecycle snapshot exposed over the API
type EngineStatus struct {
	Running           bool      `json:"running"`
	Connected         bool      `json:"connected"`
	Symbol            string    `json:"symbol"`
	BaseLot           float64   `json:"base_lot"`
	MaxPositions      int       `json:"max_positions"`
	CooldownActive    bool      `json:"cooldown_active"`
	CooldownUntil     time.Time `json:"cooldown_until"`
	LastEntryCheck    time.Time `json:"last_entry_check"`
	LastGuardianCheck time.Time `json:"last_guardian_check"`
}
