// Package workers carries the background workers that run beside the
// trading engine: the event dispatcher and the daily summary.
package workers

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/avetrov/goldpilot/internal/events"
	"github.com/avetrov/goldpilot/pkg/logger"
	"github.com/avetrov/goldpilot/pkg/models"
)

// Broadcaster receives every event (the websocket hub)
type Broadcaster interface {
	Broadcast(event models.Event)
}

// TradeNotifier receives trade lifecycle events only
type TradeNotifier interface {
	NotifyTrade(ctx context.Context, event models.TradeEvent) error
}

// Dispatcher drains the engine event bus and fans events out: every type
// goes to the hub, trade events additionally go to the notifiers. A failing
// notifier is logged and never stops the fan-out.
type Dispatcher struct {
	bus       *events.Bus
	hub       Broadcaster
	notifiers []TradeNotifier
}

// NewDispatcher creates the fan-out worker. hub may be nil; nil notifiers
// are skipped.
func NewDispatcher(bus *events.Bus, hub Broadcaster, notifiers ...TradeNotifier) *Dispatcher {
	kept := make([]TradeNotifier, 0, len(notifiers))
	for _, n := range notifiers {
		if n != nil {
			kept = append(kept, n)
		}
	}

	return &Dispatcher{
		bus:       bus,
		hub:       hub,
		notifiers: kept,
	}
}

// Name implements worker.Worker
func (d *Dispatcher) Name() string {
	return "event_dispatcher"
}

// Run consumes the bus until ctx is canceled, then drains what is already
// buffered so shutdown does not lose queued trade alerts.
func (d *Dispatcher) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			d.drain()
			return nil

		case evt, ok := <-d.bus.Events():
			if !ok {
				return nil
			}
			d.handle(ctx, evt)
		}
	}
}

func (d *Dispatcher) handle(ctx context.Context, evt models.Event) {
	if d.hub != nil {
		d.hub.Broadcast(evt)
	}

	if evt.Type != models.EventTrade {
		return
	}

	trade, ok := evt.Data.(models.TradeEvent)
	if !ok {
		logger.Warn("trade event carries unexpected payload",
			zap.String("event_id", evt.ID),
		)
		return
	}

	for _, n := range d.notifiers {
		if err := n.NotifyTrade(ctx, trade); err != nil {
			logger.Warn("trade notifier failed",
				zap.String("action", string(trade.Action)),
				zap.Error(err),
			)
		}
	}
}

// drain consumes buffered events without blocking. The parent context is
// already canceled, so notifiers get a short grace window.
func (d *Dispatcher) drain() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	for {
		select {
		case evt, ok := <-d.bus.Events():
			if !ok {
				return
			}
			d.handle(ctx, evt)
		default:
			return
		}
	}
}
