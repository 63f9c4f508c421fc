package models

import "time"

// EntryAction is the AI verdict on opening a new position
type EntryAction string

const (
	EntryBuy  EntryAction = "BUY"
	EntrySell EntryAction = "SELL"
	EntryWait EntryAction = "WAIT"
)

// GuardAction is the AI verdict on managing an open position
type GuardAction string

const (
	GuardHold     GuardAction = "HOLD"
	GuardModifySL GuardAction = "MODIFY_SL"
	GuardModifyTP GuardAction = "MODIFY_TP"
	GuardClose    GuardAction = "CLOSE"
	GuardAddDCA   GuardAction = "ADD_DCA"
)

// MomentumStrength grades the momentum backing an ADD_DCA verdict
type MomentumStrength string

const (
	MomentumWeak   MomentumStrength = "WEAK"
	MomentumMedium MomentumStrength = "MEDIUM"
	MomentumStrong MomentumStrength = "STRONG"
)

// EntryDecision is the parsed AI response for entry analysis
type EntryDecision struct {
	Decision   EntryAction `json:"decision"`
	EntryPrice float64     `json:"entry_price"`
	StopLoss   float64     `json:"stop_loss"`
	TakeProfit float64     `json:"take_profit"`
	RRRatio    float64     `json:"rr_ratio"`
	Confidence int         `json:"confidence"`
	Reason     string      `json:"reason"`
}

// GuardVerdict is the parsed AI response for position supervision
type GuardVerdict struct {
	Action   GuardAction      `json:"action"`
	NewSL    float64          `json:"new_sl"`
	NewTP    float64          `json:"new_tp"`
	Momentum MomentumStrength `json:"momentum_strength"`
	Reason   string           `json:"reason"`
}

// ReasoningKind distinguishes recorded AI exchanges
type ReasoningKind string

const (
	ReasoningKindEntry    ReasoningKind = "ENTRY"
	ReasoningKindGuardian ReasoningKind = "GUARDIAN"
)

// ReasoningEntry is one persisted AI exchange, raw response included
type ReasoningEntry struct {
	ID        int64         `json:"id" db:"id"`
	Kind      ReasoningKind `json:"kind" db:"kind"`
	Symbol    string        `json:"symbol" db:"symbol"`
	Ticket    int64         `json:"ticket" db:"ticket"`
	Provider  string        `json:"provider" db:"provider"`
	Result    string        `json:"result" db:"result"`
	CreatedAt time.Time     `json:"created_at" db:"created_at"`
}
