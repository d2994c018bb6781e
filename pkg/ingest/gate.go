package ingest

import (
	"sync"
	"time"
)

// Gate enforces the global classification cooldown. It is the only state
// shared between concurrent ingestion attempts; the check and the timestamp
// update happen in a single critical section so two attempts can never both
// pass within one cooldown window.
type Gate struct {
	mu       sync.Mutex
	cooldown time.Duration
	last     time.Time
}

// NewGate creates a gate with the given cooldown
func NewGate(cooldown time.Duration) *Gate {
	return &Gate{cooldown: cooldown}
}

// TryAcquire reports whether a new attempt may proceed at now, and on
// success stamps now as the last acquisition. The stamp is taken before
// classification starts: the cooldown gates invocation frequency, not
// outcome.
func (g *Gate) TryAcquire(now time.Time) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	if !g.last.IsZero() && now.Sub(g.last) < g.cooldown {
		return false
	}
	g.last = now
	return true
}

// SetCooldown updates the cooldown window, applied from the next attempt on
func (g *Gate) SetCooldown(cooldown time.Duration) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.cooldown = cooldown
}

// Cooldown returns the current cooldown window
func (g *Gate) Cooldown() time.Duration {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.cooldown
}
