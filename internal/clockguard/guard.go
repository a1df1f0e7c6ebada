// Package clockguard detects wall-clock discontinuities by comparing how far
// the wall clock moved against how far the monotonic clock moved between two
// observations.
package clockguard

import (
	"fmt"
	"time"
)

// DefaultTolerance absorbs normal NTP slewing between two evaluation ticks.
const DefaultTolerance = 5 * time.Second

type Direction int

const (
	Forward Direction = iota
	Backward
)

func (d Direction) String() string {
	if d == Backward {
		return "backward"
	}
	return "forward"
}

// Observation is one reading of both clocks.
type Observation struct {
	Wall time.Time
	Mono time.Duration
}

// Jump describes a wall-clock discontinuity. Magnitude is how far the wall
// clock moved beyond (Forward) or short of (Backward) the monotonic clock.
type Jump struct {
	Direction Direction
	Magnitude time.Duration
	From      time.Time
	To        time.Time
	// Expected is where the wall clock should be according to the
	// monotonic clock.
	Expected time.Time
}

func (j Jump) String() string {
	return fmt.Sprintf("wall clock jumped %s by %s (from %s to %s)",
		j.Direction, j.Magnitude.Round(time.Second), j.From.Format(time.RFC3339), j.To.Format(time.RFC3339))
}

// ZoneChange reports a change of the local UTC offset between observations.
// The instant is unaffected; only window matching shifts.
type ZoneChange struct {
	From string
	To   string
}

type Result struct {
	Jump *Jump
	Zone *ZoneChange
}

// Guard tracks the previous observation for one session. It is not safe for
// concurrent use; each session owns its own guard.
type Guard struct {
	tolerance time.Duration
	prev      Observation
	primed    bool
}

func New(tolerance time.Duration) *Guard {
	if tolerance <= 0 {
		tolerance = DefaultTolerance
	}
	return &Guard{tolerance: tolerance}
}

// Prime sets the reference observation without checking it, after start-up
// or resume.
func (g *Guard) Prime(obs Observation) {
	g.prev = obs
	g.primed = true
}

// Reboot primes the guard with obs, the first reading of a new boot, and
// checks it against last, the final reading of the previous boot. Monotonic
// readings of different boots cannot be compared, but the wall clock cannot
// have run backwards across the downtime: a wall reading earlier than last
// is a backward jump.
func (g *Guard) Reboot(last, obs Observation) Result {
	g.Prime(obs)
	var r Result
	if back := last.Wall.Sub(obs.Wall); back > g.tolerance {
		r.Jump = &Jump{
			Direction: Backward,
			Magnitude: back,
			From:      last.Wall,
			To:        obs.Wall,
			Expected:  last.Wall,
		}
	}
	return r
}

// Last returns the previous observation.
func (g *Guard) Last() (Observation, bool) {
	return g.prev, g.primed
}

// Observe checks obs against the previous observation and makes obs the new
// reference. The first observation only primes the guard.
func (g *Guard) Observe(obs Observation) Result {
	var r Result
	if !g.primed {
		g.Prime(obs)
		return r
	}

	prev := g.prev
	g.prev = obs

	dWall := obs.Wall.Sub(prev.Wall)
	dMono := obs.Mono - prev.Mono
	if dMono < 0 {
		// A new boot; readings are not comparable.
		return r
	}

	skew := dWall - dMono
	switch {
	case skew > g.tolerance:
		r.Jump = &Jump{Direction: Forward, Magnitude: skew}
	case skew < -g.tolerance:
		r.Jump = &Jump{Direction: Backward, Magnitude: -skew}
	}
	if r.Jump != nil {
		r.Jump.From = prev.Wall
		r.Jump.To = obs.Wall
		r.Jump.Expected = prev.Wall.Add(dMono)
	}

	prevName, prevOffset := prev.Wall.Zone()
	name, offset := obs.Wall.Zone()
	if prevOffset != offset {
		r.Zone = &ZoneChange{From: prevName, To: name}
	}
	return r
}
