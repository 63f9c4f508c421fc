package config

import (
	"testing"
	"time"
)

func validTrading() TradingConfig {
	return TradingConfig{
		Symbol:           "XAUUSD",
		PipSize:          0.1,
		BaseLot:          0.01,
		MaxPositions:     3,
		MaxSLDistance:    6.0,
		MinConfidence:    60,
		TickInterval:     30 * time.Second,
		EntryInterval:    15 * time.Minute,
		GuardianInterval: 5 * time.Minute,
		CooldownDuration: 5 * time.Minute,
		AutoBEPEnabled:   true,
		BEPTriggerPips:   5.0,
		DCAStepPips:      20.0,
		DCADirection:     DCABoth,
		AllowedSessions:  []string{"london", "newyork"},
	}
}

func TestTradingConfigValidate(t *testing.T) {
	t.Run("valid config passes", func(t *testing.T) {
		cfg := validTrading()
		if err := cfg.Validate(); err != nil {
			t.Fatalf("expected valid config, got error: %v", err)
		}
	})

	t.Run("zero base lot rejected", func(t *testing.T) {
		cfg := validTrading()
		cfg.BaseLot = 0
		if err := cfg.Validate(); err == nil {
			t.Error("expected error for zero base lot")
		}
	})

	t.Run("confidence above 100 rejected", func(t *testing.T) {
		cfg := validTrading()
		cfg.MinConfidence = 101
		if err := cfg.Validate(); err == nil {
			t.Error("expected error for confidence > 100")
		}
	})

	t.Run("unknown dca direction rejected", func(t *testing.T) {
		cfg := validTrading()
		cfg.DCADirection = "sideways"
		if err := cfg.Validate(); err == nil {
			t.Error("expected error for unknown dca direction")
		}
	})
}

func TestSettingsApply(t *testing.T) {
	t.Run("patch updates only set fields", func(t *testing.T) {
		s := NewSettings(validTrading())

		lot := 0.05
		maxPos := 5
		updated, err := s.Apply(TradingPatch{BaseLot: &lot, MaxPositions: &maxPos})
		if err != nil {
			t.Fatalf("apply failed: %v", err)
		}

		if updated.BaseLot != 0.05 {
			t.Errorf("expected base lot 0.05, got %v", updated.BaseLot)
		}
		if updated.MaxPositions != 5 {
			t.Errorf("expected max positions 5, got %d", updated.MaxPositions)
		}
		if updated.MinConfidence != 60 {
			t.Errorf("unpatched field changed: min confidence %d", updated.MinConfidence)
		}
	})

	t.Run("invalid patch leaves settings untouched", func(t *testing.T) {
		s := NewSettings(validTrading())

		bad := -1.0
		if _, err := s.Apply(TradingPatch{BaseLot: &bad}); err == nil {
			t.Fatal("expected error for negative base lot")
		}

		if got := s.Trading().BaseLot; got != 0.01 {
			t.Errorf("settings mutated by rejected patch: base lot %v", got)
		}
	})

	t.Run("sessions list replaced wholesale", func(t *testing.T) {
		s := NewSettings(validTrading())

		if _, err := s.Apply(TradingPatch{AllowedSessions: []string{"asia"}}); err != nil {
			t.Fatalf("apply failed: %v", err)
		}

		got := s.Trading().AllowedSessions
		if len(got) != 1 || got[0] != "asia" {
			t.Errorf("expected [asia], got %v", got)
		}
	})
}
