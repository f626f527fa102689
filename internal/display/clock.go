package display

import (
	"sync"
	"time"
)

// Clock is a monotonic millisecond counter.
type Clock interface {
	Millis() int64
}

// SystemClock counts milliseconds since it was created.
type SystemClock struct {
	start time.Time
}

func NewSystemClock() *SystemClock {
	return &SystemClock{start: time.Now()}
}

func (c *SystemClock) Millis() int64 {
	return time.Since(c.start).Milliseconds()
}

// ManualClock only moves when told to. Used to drive deadlines in tests and
// in the simulated bus.
type ManualClock struct {
	mu sync.Mutex
	ms int64
}

func (c *ManualClock) Millis() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ms
}

func (c *ManualClock) Set(ms int64) {
	c.mu.Lock()
	c.ms = ms
	c.mu.Unlock()
}

func (c *ManualClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.ms += d.Milliseconds()
	c.mu.Unlock()
}
