// Package clock supplies the "current tick" that callers pass into the raid
// engine. The engine itself never reads time.
package clock

import (
	"sync"
	"time"
)

type Clock struct {
	mu    sync.Mutex
	hz    int
	base  uint64
	start time.Time
	last  uint64
	now   func() time.Time
}

// New returns a clock that starts counting at base and advances hz ticks per second.
func New(base uint64, hz int) *Clock {
	return newWithNow(base, hz, time.Now)
}

func newWithNow(base uint64, hz int, now func() time.Time) *Clock {
	if hz <= 0 {
		hz = 1
	}
	return &Clock{hz: hz, base: base, start: now(), last: base, now: now}
}

// Tick returns the current tick. It never goes backwards, even if the wall
// clock does.
func (c *Clock) Tick() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	elapsed := c.now().Sub(c.start)
	if elapsed < 0 {
		elapsed = 0
	}
	t := c.base + uint64(elapsed/(time.Second/time.Duration(c.hz)))
	if t < c.last {
		t = c.last
	}
	c.last = t
	return t
}

func (c *Clock) RateHz() int { return c.hz }
