package clock

import (
	"sync"
	"time"
)

// Fake returns a manually driven clock starting at wall time initial and
// monotonic reading mono.
func Fake(initial time.Time, mono time.Duration) *FakeClock {
	return &FakeClock{wall: initial, mono: mono}
}

// FakeClock is a Clock whose wall and monotonic sources only move when the
// test says so. Advance moves both together; SetWall moves only the wall
// clock, which is how tests inject clock tampering.
type FakeClock struct {
	mu      sync.Mutex
	wall    time.Time
	mono    time.Duration
	waiters []*fakeWaiter
}

type fakeWaiter struct {
	deadline time.Duration
	interval time.Duration
	channel  chan time.Time
	stopped  bool
}

func (c *FakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.wall
}

func (c *FakeClock) Monotonic() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.mono
}

func (c *FakeClock) After(d time.Duration) <-chan time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()

	channel := make(chan time.Time, 1)
	if d <= 0 {
		channel <- c.wall
		return channel
	}
	c.waiters = append(c.waiters, &fakeWaiter{deadline: c.mono + d, channel: channel})
	return channel
}

func (c *FakeClock) NewTicker(d time.Duration) *Ticker {
	if d <= 0 {
		panic("clock: non-positive interval for NewTicker")
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	waiter := &fakeWaiter{
		deadline: c.mono + d,
		interval: d,
		channel:  make(chan time.Time, 1),
	}
	c.waiters = append(c.waiters, waiter)
	return &Ticker{
		C: waiter.channel,
		stopFunc: func() {
			c.mu.Lock()
			defer c.mu.Unlock()
			waiter.stopped = true
		},
	}
}

// Advance moves both clocks forward by d and fires every waiter whose
// deadline has been reached. Ticker channels hold at most one pending tick,
// like time.Ticker.
func (c *FakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.wall = c.wall.Add(d)
	c.mono += d

	remaining := c.waiters[:0]
	for _, w := range c.waiters {
		if w.stopped {
			continue
		}
		if w.deadline > c.mono {
			remaining = append(remaining, w)
			continue
		}
		select {
		case w.channel <- c.wall:
		default:
		}
		if w.interval > 0 {
			for w.deadline <= c.mono {
				w.deadline += w.interval
			}
			remaining = append(remaining, w)
		}
	}
	c.waiters = remaining
}

// SetWall sets the wall clock without touching the monotonic clock.
func (c *FakeClock) SetWall(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.wall = t
}

// Waiters returns the number of pending After calls and live tickers, so
// tests can wait for a goroutine to block on the clock before advancing it.
func (c *FakeClock) Waiters() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, w := range c.waiters {
		if !w.stopped {
			n++
		}
	}
	return n
}
