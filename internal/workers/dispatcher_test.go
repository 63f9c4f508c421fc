package workers

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/avetrov/goldpilot/internal/events"
	"github.com/avetrov/goldpilot/pkg/models"
)

type fakeHub struct {
	mu     sync.Mutex
	events []models.Event
}

func (h *fakeHub) Broadcast(evt models.Event) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.events = append(h.events, evt)
}

func (h *fakeHub) count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.events)
}

type fakeNotifier struct {
	mu     sync.Mutex
	trades []models.TradeEvent
	err    error
}

func (n *fakeNotifier) NotifyTrade(ctx context.Context, evt models.TradeEvent) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.trades = append(n.trades, evt)
	return n.err
}

func (n *fakeNotifier) count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.trades)
}

func TestDispatcherFansOutAndDrains(t *testing.T) {
	bus := events.NewBus(16)
	defer bus.Close()

	bus.Publish(models.EventPrice, models.Quote{Symbol: "XAUUSD", Bid: 2499.8})
	bus.Publish(models.EventTrade, models.TradeEvent{Action: models.TradeOpened, Symbol: "XAUUSD"})
	bus.Publish(models.EventStatus, models.StatusEvent{Running: true})

	hub := &fakeHub{}
	notifier := &fakeNotifier{}
	d := NewDispatcher(bus, hub, notifier)

	// Canceled context: Run must still drain everything already buffered
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := d.Run(ctx); err != nil {
		t.Fatalf("run failed: %v", err)
	}

	if hub.count() != 3 {
		t.Errorf("expected hub to receive all 3 events, got %d", hub.count())
	}
	if notifier.count() != 1 {
		t.Errorf("expected notifier to receive 1 trade event, got %d", notifier.count())
	}
	if notifier.trades[0].Action != models.TradeOpened {
		t.Errorf("unexpected trade action %s", notifier.trades[0].Action)
	}
}

func TestDispatcherNotifierFailureDoesNotStopFanout(t *testing.T) {
	bus := events.NewBus(4)
	defer bus.Close()

	bus.Publish(models.EventTrade, models.TradeEvent{Action: models.TradeClosed})

	failing := &fakeNotifier{err: errors.New("telegram down")}
	healthy := &fakeNotifier{}
	d := NewDispatcher(bus, nil, failing, healthy)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := d.Run(ctx); err != nil {
		t.Fatalf("run failed: %v", err)
	}

	if failing.count() != 1 || healthy.count() != 1 {
		t.Errorf("expected both notifiers called once, got %d and %d", failing.count(), healthy.count())
	}
}

func TestDispatcherSkipsNilNotifiers(t *testing.T) {
	bus := events.NewBus(4)
	defer bus.Close()

	d := NewDispatcher(bus, nil, nil, &fakeNotifier{})
	if len(d.notifiers) != 1 {
		t.Errorf("expected nil notifiers dropped, got %d", len(d.notifiers))
	}
}

func TestDispatcherLiveConsumption(t *testing.T) {
	bus := events.NewBus(4)
	defer bus.Close()

	hub := &fakeHub{}
	d := NewDispatcher(bus, hub)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		d.Run(ctx)
		close(done)
	}()

	bus.Publish(models.EventAccount, models.AccountSnapshot{Balance: 10000})

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) && hub.count() == 0 {
		time.Sleep(10 * time.Millisecond)
	}
	if hub.count() != 1 {
		t.Fatalf("expected 1 event consumed live, got %d", hub.count())
	}

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("dispatcher did not stop on cancel")
	}
}
