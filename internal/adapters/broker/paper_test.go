package broker

import (
	"context"
	"errors"
	"testing"

	"github.com/avetrov/goldpilot/pkg/models"
)

func newConnectedPaper(t *testing.T) *Paper {
	t.Helper()

	p := NewPaper("XAUUSD", 10000)
	if err := p.Connect(context.Background()); err != nil {
		t.Fatalf("connect: %v", err)
	}
	p.SetQuote(2499.80, 2500.00)
	return p
}

func TestPaperRequiresConnection(t *testing.T) {
	p := NewPaper("XAUUSD", 10000)
	_, err := p.Quote(context.Background(), "XAUUSD")
	if !errors.Is(err, ErrNotConnected) {
		t.Fatalf("expected ErrNotConnected, got %v", err)
	}
}

func TestPaperOrderFillsAtQuote(t *testing.T) {
	p := newConnectedPaper(t)
	ctx := context.Background()

	buy, err := p.PlaceMarketOrder(ctx, OrderRequest{
		Symbol: "XAUUSD", Side: models.SideBuy, Volume: 0.01,
		StopLoss: 2494.0, TakeProfit: 2510.0, Comment: "AI_75",
	})
	if err != nil {
		t.Fatalf("buy: %v", err)
	}
	if buy.Price != 2500.00 {
		t.Errorf("buy should fill at ask, got %v", buy.Price)
	}

	sell, err := p.PlaceMarketOrder(ctx, OrderRequest{
		Symbol: "XAUUSD", Side: models.SideSell, Volume: 0.01,
	})
	if err != nil {
		t.Fatalf("sell: %v", err)
	}
	if sell.Price != 2499.80 {
		t.Errorf("sell should fill at bid, got %v", sell.Price)
	}
	if sell.Ticket <= buy.Ticket {
		t.Errorf("tickets should increase: buy=%d sell=%d", buy.Ticket, sell.Ticket)
	}

	positions, err := p.Positions(ctx, "XAUUSD")
	if err != nil {
		t.Fatalf("positions: %v", err)
	}
	if len(positions) != 2 {
		t.Fatalf("expected 2 positions, got %d", len(positions))
	}
	if positions[0].Ticket != buy.Ticket {
		t.Errorf("positions should be ordered oldest first")
	}
	if positions[0].StopLoss != 2494.0 || positions[0].TakeProfit != 2510.0 {
		t.Errorf("SL/TP not stored: %+v", positions[0])
	}
}

func TestPaperRejectsWhenMarketClosed(t *testing.T) {
	p := newConnectedPaper(t)
	p.SetMarketOpen(false)

	_, err := p.PlaceMarketOrder(context.Background(), OrderRequest{
		Symbol: "XAUUSD", Side: models.SideBuy, Volume: 0.01,
	})
	if err == nil {
		t.Fatal("expected error when market closed")
	}
}

func TestPaperCloseRealizesProfit(t *testing.T) {
	p := newConnectedPaper(t)
	ctx := context.Background()

	res, err := p.PlaceMarketOrder(ctx, OrderRequest{
		Symbol: "XAUUSD", Side: models.SideBuy, Volume: 0.01,
	})
	if err != nil {
		t.Fatalf("buy: %v", err)
	}

	// price moves up 5.00, a 0.01 lot buy gains 5.00 * 0.01 * 100 = 5 USD
	p.SetQuote(2505.00, 2505.20)

	cl, err := p.ClosePosition(ctx, res.Ticket)
	if err != nil {
		t.Fatalf("close: %v", err)
	}
	if cl.Price != 2505.00 {
		t.Errorf("buy should close at bid, got %v", cl.Price)
	}
	if cl.Profit != 5.0 {
		t.Errorf("expected profit 5.0, got %v", cl.Profit)
	}

	acc, err := p.Account(ctx)
	if err != nil {
		t.Fatalf("account: %v", err)
	}
	if acc.Balance != 10005.0 {
		t.Errorf("expected balance 10005, got %v", acc.Balance)
	}

	hist, err := p.TradeHistory(ctx, "XAUUSD", 7)
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(hist) != 1 || hist[0].Profit != 5.0 {
		t.Errorf("close not recorded in history: %+v", hist)
	}
}

func TestPaperRemovePositionSimulatesStopout(t *testing.T) {
	p := newConnectedPaper(t)
	ctx := context.Background()

	res, err := p.PlaceMarketOrder(ctx, OrderRequest{
		Symbol: "XAUUSD", Side: models.SideSell, Volume: 0.02,
	})
	if err != nil {
		t.Fatalf("sell: %v", err)
	}

	p.RemovePosition(res.Ticket, -12.50)

	positions, err := p.Positions(ctx, "XAUUSD")
	if err != nil {
		t.Fatalf("positions: %v", err)
	}
	if len(positions) != 0 {
		t.Fatalf("expected no positions after removal, got %d", len(positions))
	}

	acc, err := p.Account(ctx)
	if err != nil {
		t.Fatalf("account: %v", err)
	}
	if acc.Balance != 9987.50 {
		t.Errorf("expected balance 9987.50, got %v", acc.Balance)
	}
}

func TestPaperModifyPosition(t *testing.T) {
	p := newConnectedPaper(t)
	ctx := context.Background()

	res, err := p.PlaceMarketOrder(ctx, OrderRequest{
		Symbol: "XAUUSD", Side: models.SideBuy, Volume: 0.01, StopLoss: 2494.0,
	})
	if err != nil {
		t.Fatalf("buy: %v", err)
	}

	if err := p.ModifyPosition(ctx, res.Ticket, 2500.0, 0); err != nil {
		t.Fatalf("modify: %v", err)
	}

	positions, _ := p.Positions(ctx, "XAUUSD")
	if positions[0].StopLoss != 2500.0 {
		t.Errorf("SL not moved, got %v", positions[0].StopLoss)
	}

	if err := p.ModifyPosition(ctx, 999999, 1, 1); err == nil {
		t.Error("expected error for unknown ticket")
	}
}
