// Package clock provides the two time sources the engine relies on: a wall
// clock, which the supervised user may be able to change, and a monotonic
// boot clock, which only moves forward. Durations (budget usage, grace,
// heartbeat staleness) are always measured on the monotonic clock; the wall
// clock is only used to decide which time window applies.
//
// Production code uses Real. Tests use Fake, which lets the two sources be
// moved independently to simulate clock tampering.
package clock

import "time"

type Clock interface {
	// Now returns the current wall-clock time in the local zone.
	Now() time.Time

	// Monotonic returns time elapsed since boot, including time spent in
	// suspend. It never decreases within one boot.
	Monotonic() time.Duration

	// After returns a channel that receives the wall time after d elapses.
	After(d time.Duration) <-chan time.Time

	// NewTicker returns a Ticker delivering ticks every d. Panics if d <= 0.
	NewTicker(d time.Duration) *Ticker
}

// Ticker mirrors time.Ticker so fake clocks can drive tick loops.
type Ticker struct {
	C <-chan time.Time

	stopFunc func()
}

func (t *Ticker) Stop() { t.stopFunc() }
