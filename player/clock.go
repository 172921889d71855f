package player

import (
	"sync"
	"time"
)

// Clock maps wall time to media time. While frozen, Elapsed does not advance;
// Resume shifts the anchor by the frozen duration so paused time is excluded.
type Clock struct {
	mu  sync.Mutex
	now func() time.Time

	start    time.Time
	frozen   bool
	frozenAt time.Time
}

// NewClock returns a frozen clock at position 0. A nil now uses time.Now.
func NewClock(now func() time.Time) *Clock {
	if now == nil {
		now = time.Now
	}
	t := now()
	return &Clock{now: now, start: t, frozen: true, frozenAt: t}
}

// Elapsed returns the media position in seconds.
func (c *Clock) Elapsed() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()

	end := c.now()
	if c.frozen {
		end = c.frozenAt
	}
	return end.Sub(c.start).Seconds()
}

// Freeze stops the clock. It is a no-op on a frozen clock.
func (c *Clock) Freeze() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.frozen {
		c.frozen = true
		c.frozenAt = c.now()
	}
}

// Resume restarts a frozen clock from where it stopped.
func (c *Clock) Resume() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.frozen {
		c.start = c.start.Add(c.now().Sub(c.frozenAt))
		c.frozen = false
	}
}

// Anchor moves the clock to pos seconds without changing whether it runs.
func (c *Clock) Anchor(pos float64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	c.start = now.Add(-time.Duration(pos * float64(time.Second)))
	if c.frozen {
		c.frozenAt = now
	}
}

// Reset anchors the clock at 0.
func (c *Clock) Reset() {
	c.Anchor(0)
}

// Frozen reports whether the clock is stopped.
func (c *Clock) Frozen() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.frozen
}
