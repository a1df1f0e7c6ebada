package session

import (
	"fmt"
	"time"

	"github.com/SoarinFerret/TimeWarden/internal/audit"
	"github.com/SoarinFerret/TimeWarden/internal/profile"
)

// State is the enforcement state of a session.
type State int

const (
	Active State = iota
	WarningPending
	GracePeriod
	Locked
	OverrideActive
)

var stateNames = [...]string{"Active", "WarningPending", "GracePeriod", "Locked", "OverrideActive"}

func (s State) String() string {
	if int(s) < len(stateNames) {
		return stateNames[s]
	}
	return fmt.Sprintf("State(%d)", int(s))
}

func ParseState(s string) (State, error) {
	for i, name := range stateNames {
		if name == s {
			return State(i), nil
		}
	}
	return 0, fmt.Errorf("unknown session state %q", s)
}

// Restrictiveness orders states from most permissive (OverrideActive) to
// most restrictive (Locked).
func (s State) Restrictiveness() int {
	switch s {
	case OverrideActive:
		return 0
	case Active:
		return 1
	case WarningPending:
		return 2
	case GracePeriod:
		return 3
	}
	return 4
}

const (
	ReasonBudgetExhausted = "daily budget exhausted"
	ReasonHeartbeatLost   = "monitoring agent unresponsive"
	ReasonClockRollback   = "clock rollback detected"
)

// Latch holds a session locked after a clock rollback until the wall clock
// is back where the monotonic clock says it should be. Expected is the
// correct wall time at monotonic reading Mono.
type Latch struct {
	Expected time.Time     `cbor:"expected"`
	Mono     time.Duration `cbor:"mono"`
}

// Session is the live enforcement record for one profile.
type Session struct {
	ProfileID string `cbor:"profile"`
	State     State  `cbor:"state"`
	// Reason explains the current or pending lock.
	Reason    string              `cbor:"reason,omitempty"`
	Window    *profile.TimeWindow `cbor:"window,omitempty"`
	WindowEnd time.Time           `cbor:"window_end"`

	// Used is the screen time consumed in the current budget day, measured
	// on the monotonic clock. DayAnchor is the monotonic reading at which
	// the budget day began.
	Used       time.Duration `cbor:"used"`
	DayAnchor  time.Duration `cbor:"day_anchor"`
	DayStarted time.Time     `cbor:"day_started"`

	// LastMono and LastWall are the readings of the last evaluation.
	LastMono time.Duration `cbor:"last_mono"`
	LastWall time.Time     `cbor:"last_wall"`

	LastHeartbeatMono time.Duration `cbor:"hb_mono"`
	LastHeartbeatWall time.Time     `cbor:"hb_wall"`

	Present   bool `cbor:"present"`
	Suspended bool `cbor:"suspended"`

	Override    *Override `cbor:"override,omitempty"`
	PreOverride State     `cbor:"pre_override"`

	WarnLevel    int           `cbor:"warn_level"`
	Warned       bool          `cbor:"warned"`
	LastWarnMono time.Duration `cbor:"last_warn_mono"`
	GraceStart   time.Duration `cbor:"grace_start"`

	Latch         *Latch `cbor:"latch,omitempty"`
	HeartbeatLost bool   `cbor:"hb_lost"`
	CollectorDown bool   `cbor:"collector_down"`

	BootID  string    `cbor:"boot"`
	Created time.Time `cbor:"created"`
}

// Clone returns a deep copy suitable for handing to another goroutine.
func (s *Session) Clone() Session {
	c := *s
	if s.Window != nil {
		w := *s.Window
		w.Days = append([]profile.DayType(nil), s.Window.Days...)
		c.Window = &w
	}
	if s.Override != nil {
		o := *s.Override
		c.Override = &o
	}
	if s.Latch != nil {
		l := *s.Latch
		c.Latch = &l
	}
	return c
}

// Remaining returns the budget left for the day, never negative.
func (s *Session) Remaining(budget time.Duration) time.Duration {
	if budget == profile.BudgetUnlimited {
		return profile.BudgetUnlimited
	}
	if s.Used >= budget {
		return 0
	}
	return budget - s.Used
}

type EffectKind int

const (
	EffectWarn EffectKind = iota
	EffectSavePrompt
	EffectLock
	EffectUnlock
	EffectAudit
)

// Effect is a side effect requested by a transition. The state machine only
// produces effects; the actuator carries them out.
type Effect struct {
	Kind    EffectKind
	Seconds int64
	Reason  string
	// Notify is set on EffectLock when the session has just become locked.
	// Without it the lock is only being re-asserted.
	Notify bool
	Event  audit.Event
}
