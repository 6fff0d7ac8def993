package logic

import (
	"sync"
	"time"
)

// Gate decides whether a trigger may fire the actuator.
// A trigger is let through iff at least window has elapsed since the
// last one that was let through. The first trigger always passes.
//
// TryAcquire is the only mutation and is safe for concurrent use.
type Gate struct {
	window time.Duration

	mu       sync.Mutex
	fired    bool
	lastFire time.Time
}

// NewGate creates a gate with the given debounce window.
// A negative window is treated as zero.
func NewGate(window time.Duration) *Gate {
	if window < 0 {
		window = 0
	}
	return &Gate{window: window}
}

// Window returns the configured debounce window.
func (g *Gate) Window() time.Duration {
	return g.window
}

// TryAcquire reports whether a trigger observed at now may fire and, if so,
// records now as the last fire instant. Ties (exactly window elapsed) pass.
func (g *Gate) TryAcquire(now time.Time) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.fired && now.Sub(g.lastFire) < g.window {
		return false
	}
	// An earlier now always lands in the branch above, so lastFire never
	// moves backwards.
	g.lastFire = now
	g.fired = true
	return true
}

// LastFire returns the last accepted instant and whether any trigger has
// been accepted yet.
func (g *Gate) LastFire() (time.Time, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.lastFire, g.fired
}

// SinceLast returns the elapsed time from the last accepted trigger to now,
// or zero if none has been accepted.
func (g *Gate) SinceLast(now time.Time) time.Duration {
	last, ok := g.LastFire()
	if !ok {
		return 0
	}
	return now.Sub(last)
}
