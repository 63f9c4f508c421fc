package config

import (
	"fmt"
	"sync"
)

// TradingPatch is a partial update to the tunable trading parameters.
// Nil fields are left unchanged.
type TradingPatch struct {
	BaseLot              *float64      `json:"base_lot,omitempty"`
	MaxPositions         *int          `json:"max_positions,omitempty"`
	MinConfidence        *int          `json:"min_confidence,omitempty"`
	AutoBEPEnabled       *bool         `json:"auto_bep_enabled,omitempty"`
	BEPTriggerPips       *float64      `json:"auto_bep_pips,omitempty"`
	DCAStepPips          *float64      `json:"dca_step_pips,omitempty"`
	DCADirection         *DCADirection `json:"dca_direction,omitempty"`
	SessionFilterEnabled *bool         `json:"session_filter_enabled,omitempty"`
	AllowedSessions      []string      `json:"allowed_sessions,omitempty"`
}

// Settings holds the live trading parameters shared between the engine and
// the API. Readers take a copy, so tick logic never holds the lock.
type Settings struct {
	mu      sync.RWMutex
	trading TradingConfig
}

// NewSettings wraps the boot-time trading configuration
func NewSettings(trading TradingConfig) *Settings {
	return &Settings{trading: trading}
}

// Trading returns a copy of the current trading parameters
func (s *Settings) Trading() TradingConfig {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.trading
}

// Apply merges a patch into the current parameters. The merged result is
// validated before it becomes visible; an invalid patch changes nothing.
func (s *Settings) Apply(patch TradingPatch) (TradingConfig, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := s.trading
	if patch.BaseLot != nil {
		next.BaseLot = *patch.BaseLot
	}
	if patch.MaxPositions != nil {
		next.MaxPositions = *patch.MaxPositions
	}
	if patch.MinConfidence != nil {
		next.MinConfidence = *patch.MinConfidence
	}
	if patch.AutoBEPEnabled != nil {
		next.AutoBEPEnabled = *patch.AutoBEPEnabled
	}
	if patch.BEPTriggerPips != nil {
		next.BEPTriggerPips = *patch.BEPTriggerPips
	}
	if patch.DCAStepPips != nil {
		next.DCAStepPips = *patch.DCAStepPips
	}
	if patch.DCADirection != nil {
		next.DCADirection = *patch.DCADirection
	}
	if patch.SessionFilterEnabled != nil {
		next.SessionFilterEnabled = *patch.SessionFilterEnabled
	}
	if patch.AllowedSessions != nil {
		next.AllowedSessions = append([]string(nil), patch.AllowedSessions...)
	}

	if err := next.Validate(); err != nil {
		return TradingConfig{}, fmt.Errorf("invalid settings patch: %w", err)
	}

	s.trading = next
	return next, nil
}
