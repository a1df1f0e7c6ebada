// Package heartbeat records liveness pulses from the external monitoring
// agent and decides when its silence must be treated as tampering.
package heartbeat

import (
	"sync"
	"sync/atomic"
	"time"
)

const DefaultTimeout = 30 * time.Second

// Tracker holds the last pulse per session. Recording a pulse takes only a
// read lock on the session table plus atomic stores, so it never waits on
// an evaluation.
type Tracker struct {
	timeout time.Duration

	mu      sync.RWMutex
	entries map[string]*entry
}

type entry struct {
	lastMono atomic.Int64
	lastWall atomic.Int64
	pulses   atomic.Uint64
	present  atomic.Bool
}

func NewTracker(timeout time.Duration) *Tracker {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Tracker{timeout: timeout, entries: make(map[string]*entry)}
}

func (t *Tracker) Timeout() time.Duration { return t.timeout }

func (t *Tracker) get(id string) *entry {
	t.mu.RLock()
	e := t.entries[id]
	t.mu.RUnlock()
	if e != nil {
		return e
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if e = t.entries[id]; e == nil {
		e = &entry{}
		t.entries[id] = e
	}
	return e
}

// Register starts the silence clock for a session that has not reported
// yet, so a monitor that never starts is noticed too. Registering an
// existing session keeps its last pulse.
func (t *Tracker) Register(id string, mono time.Duration) {
	e := t.get(id)
	e.lastMono.CompareAndSwap(0, int64(mono))
}

// Touch restarts the silence clock at mono without counting a pulse. It is
// used when a session logs in or resumes, where the agent needs a moment to
// reconnect.
func (t *Tracker) Touch(id string, mono time.Duration) {
	e := t.get(id)
	for {
		prev := e.lastMono.Load()
		if int64(mono) <= prev || e.lastMono.CompareAndSwap(prev, int64(mono)) {
			return
		}
	}
}

// Record stores a pulse received at monotonic time mono. wall is the
// timestamp the agent reported and is kept for display only.
func (t *Tracker) Record(id string, mono time.Duration, wall time.Time) {
	e := t.get(id)
	for {
		prev := e.lastMono.Load()
		if int64(mono) <= prev {
			break
		}
		if e.lastMono.CompareAndSwap(prev, int64(mono)) {
			break
		}
	}
	e.lastWall.Store(wall.UnixNano())
	e.pulses.Add(1)
}

// SetPresent flags whether the account's graphical session is present, as
// reported by logind.
func (t *Tracker) SetPresent(id string, present bool) {
	t.get(id).present.Store(present)
}

func (t *Tracker) Present(id string) bool {
	return t.get(id).present.Load()
}

// Last returns the monotonic and agent-reported wall time of the last
// pulse. ok is false if no pulse was ever recorded.
func (t *Tracker) Last(id string) (mono time.Duration, wall time.Time, ok bool) {
	e := t.get(id)
	if e.pulses.Load() == 0 {
		return time.Duration(e.lastMono.Load()), time.Time{}, false
	}
	return time.Duration(e.lastMono.Load()), time.Unix(0, e.lastWall.Load()), true
}

// Silence returns how long the session has gone without a pulse.
func (t *Tracker) Silence(id string, now time.Duration) time.Duration {
	last := time.Duration(t.get(id).lastMono.Load())
	if now < last {
		return 0
	}
	return now - last
}

// IsStale reports whether the session is graphically present and silent for
// longer than the timeout. Absent sessions are never stale: there is nothing
// for the agent to report on.
func (t *Tracker) IsStale(id string, now time.Duration) bool {
	if !t.Present(id) {
		return false
	}
	return t.Silence(id, now) > t.timeout
}

// Forget drops a session's entry on logout.
func (t *Tracker) Forget(id string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.entries, id)
}
