package clock

import (
	"context"
	"sync"
)

// SimulatedClock is a Clock that only moves when driven. The replay bar
// source advances it to each bar's timestamp, and WaitUntil jumps
// straight to its target, so a backtest replays an entire session
// without real sleeping.
type SimulatedClock struct {
	mu  sync.Mutex
	now int64
}

// NewSimulatedClock creates a simulated clock starting at the given
// UTC-ms timestamp.
func NewSimulatedClock(start int64) *SimulatedClock {
	return &SimulatedClock{now: start}
}

// Now returns the simulated current time.
func (c *SimulatedClock) Now() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Advance moves the clock forward to target. The clock never goes
// backwards: Advance with an earlier timestamp is a no-op.
func (c *SimulatedClock) Advance(target int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if target > c.now {
		c.now = target
	}
}

// WaitUntil sets now to max(now, target) and returns immediately.
func (c *SimulatedClock) WaitUntil(ctx context.Context, target int64) error {
	c.Advance(target)
	return ctx.Err()
}

// Sleep advances ms simulated milliseconds and returns immediately.
func (c *SimulatedClock) Sleep(ctx context.Context, ms int64) error {
	return c.WaitUntil(ctx, c.Now()+ms)
}
