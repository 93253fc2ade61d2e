package correction

import (
	"sync"
	"time"
)

// Gate enforces that at most one correction cycle is in flight and that a
// cooldown separates consecutive cycles. The cooldown is measured from the
// moment the previous cycle was released.
//
// Gate is not safe for concurrent use; the engine loop owns it.
type Gate struct {
	cooldown      time.Duration
	inFlight      bool
	lastCompleted time.Time
}

// NewGate returns an open gate with the given cooldown.
func NewGate(cooldown time.Duration) *Gate {
	return &Gate{cooldown: cooldown}
}

// Admit reports whether a new cycle may start at now.
func (g *Gate) Admit(now time.Time) bool {
	return !g.inFlight && g.Remaining(now) == 0
}

// Remaining returns how much of the cooldown is left at now. It is zero
// while a cycle is in flight; use [Gate.InFlight] to tell the cases apart.
func (g *Gate) Remaining(now time.Time) time.Duration {
	if g.inFlight || g.lastCompleted.IsZero() {
		return 0
	}
	if left := g.cooldown - now.Sub(g.lastCompleted); left > 0 {
		return left
	}
	return 0
}

// Begin marks a cycle as in flight.
func (g *Gate) Begin() { g.inFlight = true }

// Release ends the in-flight cycle and starts the cooldown at now.
func (g *Gate) Release(now time.Time) {
	g.inFlight = false
	g.lastCompleted = now
}

// InFlight reports whether a cycle is running.
func (g *Gate) InFlight() bool { return g.inFlight }

// SetCooldown changes the cooldown for future admissions.
func (g *Gate) SetCooldown(d time.Duration) { g.cooldown = d }

// debouncer runs fn once delay has passed without another Reset. Every Reset
// bumps a generation counter; a timer whose generation is no longer current
// is ignored by the engine, so a late firing can never win over a newer one.
type debouncer struct {
	mu    sync.Mutex
	timer *time.Timer
	gen   uint64
}

// Reset cancels any pending timer and schedules fire(gen) after delay.
func (d *debouncer) Reset(delay time.Duration, fire func(gen uint64)) uint64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.timer != nil {
		d.timer.Stop()
	}
	d.gen++
	gen := d.gen
	d.timer = time.AfterFunc(delay, func() { fire(gen) })
	return gen
}

// Stop cancels the pending timer, if any, and invalidates its generation.
func (d *debouncer) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
	d.gen++
}

// Current reports whether gen belongs to the most recent Reset.
func (d *debouncer) Current(gen uint64) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.timer != nil && gen == d.gen
}

// clear forgets the timer after it fired.
func (d *debouncer) clear(gen uint64) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if gen == d.gen {
		d.timer = nil
	}
}
