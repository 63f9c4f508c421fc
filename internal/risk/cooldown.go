package risk

import (
	"sync"
	"time"
)

// CooldownGate blocks new entries for a period after a stop-loss hit.
// The gate stays armed past expiry until the caller observes it and
// clears it, so the first entry attempt after the window can log the
// transition.
type CooldownGate struct {
	duration time.Duration
	armedAt  time.Time
	armed    bool
	now      func() time.Time
	mu       sync.Mutex
}

// NewCooldownGate creates a cooldown gate with the given window
func NewCooldownGate(duration time.Duration) *CooldownGate {
	return &CooldownGate{
		duration: duration,
		now:      time.Now,
	}
}

// Arm starts (or restarts) the cooldown window
func (g *CooldownGate) Arm() {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.armedAt = g.now()
	g.armed = true
}

// Status returns whether the gate is armed and the time remaining in the
// window. Remaining <= 0 with armed true means the window has expired but
// has not been cleared yet.
func (g *CooldownGate) Status() (bool, time.Duration) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if !g.armed {
		return false, 0
	}
	return true, g.duration - g.now().Sub(g.armedAt)
}

// Clear disarms the gate
func (g *CooldownGate) Clear() {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.armed = false
	g.armedAt = time.Time{}
}

// Active reports whether entries are currently blocked
func (g *CooldownGate) Active() bool {
	armed, remaining := g.Status()
	return armed && remaining > 0
}

// Until returns when the window expires; zero when the gate is not armed
func (g *CooldownGate) Until() time.Time {
	g.mu.Lock()
	defer g.mu.Unlock()

	if !g.armed {
		return time.Time{}
	}
	return g.armedAt.Add(g.duration)
}
