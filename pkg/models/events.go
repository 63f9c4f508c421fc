package models

import "time"

// EventType tags outbound engine events
type EventType string

const (
	EventPrice     EventType = "price"
	EventAccount   EventType = "account"
	EventPositions EventType = "positions"
	EventStatus    EventType = "status"
	EventReasoning EventType = "reasoning"
	EventTrade     EventType = "trade"
	EventError     EventType = "error"
)

// Event is one outbound message for the websocket hub and notifiers
type Event struct {
	ID   string    `json:"id"`
	Type EventType `json:"type"`
	Data any       `json:"data"`
	At   time.Time `json:"at"`
}

// TradeAction identifies what a trade event describes
type TradeAction string

const (
	TradeOpened      TradeAction = "OPEN"
	TradeClosed      TradeAction = "CLOSE"
	TradeModified    TradeAction = "MODIFY"
	TradeAutoBEP     TradeAction = "AUTO_BEP"
	TradeDCA         TradeAction = "DCA"
	TradeMomentumDCA TradeAction = "MOMENTUM_DCA"
)

// TradeEvent is the payload carried by EventTrade. Fields that do not
// apply to the action are left zero and omitted from JSON.
type TradeEvent struct {
	Action     TradeAction `json:"action"`
	Ticket     int64       `json:"ticket,omitempty"`
	Symbol     string      `json:"symbol,omitempty"`
	Side       Side        `json:"side,omitempty"`
	Volume     float64     `json:"volume,omitempty"`
	Price      float64     `json:"price,omitempty"`
	StopLoss   float64     `json:"sl,omitempty"`
	TakeProfit float64     `json:"tp,omitempty"`
	Profit     float64     `json:"profit,omitempty"`
	CloseType  CloseType   `json:"close_type,omitempty"`
	ProfitPips float64     `json:"profit_pips,omitempty"`
	PipsMoved  float64     `json:"pips_moved,omitempty"`
	Count      int         `json:"position_count,omitempty"`
	Confidence int         `json:"confidence,omitempty"`
	Reason     string      `json:"reason,omitempty"`
}

// StatusEvent is the payload carried by EventStatus
type StatusEvent struct {
	Running   bool   `json:"running"`
	Connected bool   `json:"connected"`
	Message   string `json:"message,omitempty"`
}

// ErrorEvent is the payload carried by EventError
type ErrorEvent struct {
	Message string `json:"message"`
}
