package clock

import (
	"testing"
	"time"
)

func TestClockAdvancesAtRate(t *testing.T) {
	now := time.Unix(1000, 0)
	c := newWithNow(500, 10, func() time.Time { return now })
	if got := c.Tick(); got != 500 {
		t.Fatalf("initial tick: got %d want 500", got)
	}
	now = now.Add(2500 * time.Millisecond)
	if got := c.Tick(); got != 525 {
		t.Fatalf("after 2.5s at 10Hz: got %d want 525", got)
	}
}

func TestClockIsMonotonic(t *testing.T) {
	now := time.Unix(1000, 0)
	c := newWithNow(0, 5, func() time.Time { return now })
	now = now.Add(10 * time.Second)
	if got := c.Tick(); got != 50 {
		t.Fatalf("tick: got %d want 50", got)
	}
	now = now.Add(-8 * time.Second)
	if got := c.Tick(); got != 50 {
		t.Fatalf("clock went backwards: %d", got)
	}
}
