package player

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestClock_StartsFrozen(t *testing.T) {
	fc := newFakeClock()
	c := NewClock(fc.Now)

	fc.Advance(time.Second)
	assert.True(t, c.Frozen())
	assert.Zero(t, c.Elapsed())
}

func TestClock_PauseExcluded(t *testing.T) {
	fc := newFakeClock()
	c := NewClock(fc.Now)

	c.Resume()
	fc.Advance(500 * time.Millisecond)
	assert.InDelta(t, 0.5, c.Elapsed(), 1e-9)

	c.Freeze()
	fc.Advance(3 * time.Second)
	assert.InDelta(t, 0.5, c.Elapsed(), 1e-9)

	c.Resume()
	fc.Advance(250 * time.Millisecond)
	assert.InDelta(t, 0.75, c.Elapsed(), 1e-9)
}

func TestClock_Anchor(t *testing.T) {
	fc := newFakeClock()
	c := NewClock(fc.Now)
	c.Resume()
	fc.Advance(2 * time.Second)

	c.Anchor(10)
	assert.InDelta(t, 10, c.Elapsed(), 1e-9)
	fc.Advance(time.Second)
	assert.InDelta(t, 11, c.Elapsed(), 1e-9)

	// anchoring a frozen clock keeps it frozen at the new position
	c.Freeze()
	c.Anchor(3)
	fc.Advance(time.Second)
	assert.InDelta(t, 3, c.Elapsed(), 1e-9)
	c.Resume()
	fc.Advance(time.Second)
	assert.InDelta(t, 4, c.Elapsed(), 1e-9)

	c.Reset()
	assert.InDelta(t, 0, c.Elapsed(), 1e-9)
}
