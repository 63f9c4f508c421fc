package engine

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/avetrov/goldpilot/internal/adapters/config"
	"github.com/avetrov/goldpilot/pkg/models"
)

// guardianRig isolates the guardian step: break-even off, ladder DCA out
// of reach.
func newGuardianRig(t *testing.T) *rig {
	t.Helper()
	return newRig(t, func(cfg *config.TradingConfig) {
		cfg.AutoBEPEnabled = false
		cfg.DCAStepPips = 1000
	})
}

func TestGuardianModifyPreservesOtherLevel(t *testing.T) {
	r := newGuardianRig(t)
	ticket := r.openPosition(t, models.SideBuy, 2494.00, 2510.00)

	r.ai.verdict = &models.GuardVerdict{
		Action: models.GuardModifySL,
		NewSL:  2496.00,
		Reason: "structure shifted up",
	}

	r.tick(t)

	positions, _ := r.paper.Positions(context.Background(), "XAUUSD")
	if positions[0].StopLoss != 2496.00 {
		t.Errorf("SL should follow the verdict, got %v", positions[0].StopLoss)
	}
	if positions[0].TakeProfit != 2510.00 {
		t.Errorf("TP must stay untouched by MODIFY_SL, got %v", positions[0].TakeProfit)
	}

	modified := tradeEvents(r.drain(), models.TradeModified)
	if len(modified) != 1 || modified[0].Ticket != ticket || modified[0].StopLoss != 2496.00 {
		t.Errorf("expected one modify event for the ticket, got %+v", modified)
	}
}

func TestGuardianCloseObservedNextTick(t *testing.T) {
	r := newGuardianRig(t)
	r.openPosition(t, models.SideBuy, 2494.00, 2510.00)

	r.ai.verdict = &models.GuardVerdict{Action: models.GuardClose, Reason: "momentum faded"}

	// Bid sits under the open price, so the close realizes a small loss
	r.tick(t)

	positions, _ := r.paper.Positions(context.Background(), "XAUUSD")
	if len(positions) != 0 {
		t.Fatalf("guardian CLOSE should flatten the book, got %d positions", len(positions))
	}
	if r.gate.Active() {
		t.Error("cooldown must not arm before the detector observes the closure")
	}

	// The next tick's detector classifies the disappearance as a stop loss
	r.ai.verdict = nil
	r.tick(t)

	if len(r.ledger.closeTypes) != 1 || r.ledger.closeTypes[0] != models.CloseStopLoss {
		t.Fatalf("losing guardian close should classify as SL_HIT: %+v", r.ledger.closeTypes)
	}
	if !r.gate.Active() {
		t.Error("detector-observed losing closure should arm the cooldown")
	}
}

func TestGuardianAddDCA(t *testing.T) {
	r := newGuardianRig(t)
	r.openPosition(t, models.SideBuy, 2494.00, 2510.00)

	r.ai.verdict = &models.GuardVerdict{
		Action:   models.GuardAddDCA,
		Momentum: models.MomentumStrong,
		Reason:   "breakout continuation",
	}

	r.tick(t)

	positions, _ := r.paper.Positions(context.Background(), "XAUUSD")
	if len(positions) != 2 {
		t.Fatalf("ADD_DCA should open one extra position, got %d", len(positions))
	}

	added := positions[1]
	if added.Side != models.SideBuy || added.Volume != 0.01 {
		t.Errorf("momentum add should mirror side at base lot: %+v", added)
	}
	if added.StopLoss != 2494.00 || added.TakeProfit != 2510.00 {
		t.Errorf("momentum add should carry the position's SL/TP: %+v", added)
	}
	if !strings.HasPrefix(added.Comment, "MOMENTUM_DCA_") {
		t.Errorf("unexpected comment: %q", added.Comment)
	}

	if events := tradeEvents(r.drain(), models.TradeMomentumDCA); len(events) != 1 {
		t.Errorf("expected one momentum DCA event, got %d", len(events))
	}
}

func TestGuardianAddDCAAtCapIsNoop(t *testing.T) {
	r := newGuardianRig(t)
	for i := 0; i < 3; i++ {
		r.openPosition(t, models.SideBuy, 2494.00, 2510.00)
	}

	r.ai.verdict = &models.GuardVerdict{
		Action:   models.GuardAddDCA,
		Momentum: models.MomentumMedium,
	}

	r.tick(t)

	positions, _ := r.paper.Positions(context.Background(), "XAUUSD")
	if len(positions) != 3 {
		t.Errorf("ADD_DCA at the position cap must not order, got %d positions", len(positions))
	}
}

func TestGuardianIntervalGate(t *testing.T) {
	r := newRig(t, func(cfg *config.TradingConfig) {
		cfg.AutoBEPEnabled = false
		cfg.DCAStepPips = 1000
		cfg.GuardianInterval = 5 * time.Minute
	})

	base := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)
	r.engine.now = func() time.Time { return base }

	r.openPosition(t, models.SideBuy, 2494.00, 2510.00)

	r.tick(t)
	if r.ai.guardCalls != 1 {
		t.Fatalf("first tick should run the guardian, calls=%d", r.ai.guardCalls)
	}

	base = base.Add(time.Minute)
	r.tick(t)
	if r.ai.guardCalls != 1 {
		t.Errorf("guardian must stay quiet inside its interval, calls=%d", r.ai.guardCalls)
	}

	base = base.Add(5 * time.Minute)
	r.tick(t)
	if r.ai.guardCalls != 2 {
		t.Errorf("guardian should run again after the interval, calls=%d", r.ai.guardCalls)
	}
}

func TestGuardianFailureLeavesPositionAlone(t *testing.T) {
	r := newGuardianRig(t)
	r.openPosition(t, models.SideBuy, 2494.00, 2510.00)

	r.ai.guardErr = errors.New("provider overloaded")

	r.tick(t)

	positions, _ := r.paper.Positions(context.Background(), "XAUUSD")
	if len(positions) != 1 || positions[0].StopLoss != 2494.00 {
		t.Errorf("a failed verdict must not touch the position: %+v", positions)
	}
	if len(r.ledger.reasonings) != 0 {
		t.Error("no reasoning should be recorded for a failed analysis")
	}
}
