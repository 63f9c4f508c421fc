package events

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/avetrov/goldpilot/pkg/logger"
	"github.com/avetrov/goldpilot/pkg/models"
)

// DefaultBufferSize is the event backlog a bus holds before it starts
// dropping. Sized for a burst of one full tick's events per consumer stall.
const DefaultBufferSize = 256

// Bus carries engine events to the dispatcher. Publishing never blocks:
// when the buffer is full the event is dropped and counted, so a stalled
// consumer can never stall a trading tick.
type Bus struct {
	ch  chan models.Event
	now func() time.Time

	mu     sync.RWMutex
	closed bool
}

// NewBus creates an event bus. size <= 0 selects DefaultBufferSize.
func NewBus(size int) *Bus {
	if size <= 0 {
		size = DefaultBufferSize
	}
	return &Bus{
		ch:  make(chan models.Event, size),
		now: time.Now,
	}
}

// Publish enqueues one event without blocking. Publishing to a closed bus
// drops the event; a publisher racing shutdown must never take the
// process down.
func (b *Bus) Publish(eventType models.EventType, data any) {
	event := models.Event{
		ID:   uuid.NewString(),
		Type: eventType,
		Data: data,
		At:   b.now(),
	}

	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		logger.Warn("event bus closed, dropping event",
			zap.String("type", string(eventType)),
			zap.String("id", event.ID),
		)
		return
	}

	select {
	case b.ch <- event:
	default:
		logger.Warn("event bus full, dropping event",
			zap.String("type", string(eventType)),
			zap.String("id", event.ID),
		)
	}
}

// Events returns the consumer side of the bus
func (b *Bus) Events() <-chan models.Event {
	return b.ch
}

// Close releases the bus. The dispatcher drains whatever is still
// buffered; later publishes are dropped. Idempotent.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}
	b.closed = true
	close(b.ch)
}
