package session

import (
	"sort"
	"strconv"
	"time"

	"github.com/SoarinFerret/TimeWarden/internal/audit"
	"github.com/SoarinFerret/TimeWarden/internal/clockguard"
	"github.com/SoarinFerret/TimeWarden/internal/eval"
	"github.com/SoarinFerret/TimeWarden/internal/profile"
)

// Policy holds the thresholds shared by every session.
type Policy struct {
	// Warning is how long before the window ends or the budget runs out
	// that a session enters WarningPending.
	Warning time.Duration
	// Reminders are further warning thresholds below Warning.
	Reminders []time.Duration
	// Suppress is the minimum spacing between two warnings.
	Suppress  time.Duration
	Grace     time.Duration
	BudgetDay time.Duration
	Tolerance time.Duration
}

func DefaultPolicy() Policy {
	return Policy{
		Warning:   5 * time.Minute,
		Suppress:  time.Minute,
		Grace:     2 * time.Minute,
		BudgetDay: 24 * time.Hour,
		Tolerance: clockguard.DefaultTolerance,
	}
}

// thresholds returns the warning thresholds, largest first.
func (p Policy) thresholds() []time.Duration {
	out := []time.Duration{p.Warning}
	for _, r := range p.Reminders {
		if r <= 0 || r >= p.Warning {
			continue
		}
		dup := false
		for _, t := range out {
			dup = dup || t == r
		}
		if !dup {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] > out[j] })
	return out
}

// Input is everything an evaluation needs to know about the outside world
// at one instant.
type Input struct {
	Wall     time.Time
	Mono     time.Duration
	Boot     string
	Decision eval.WindowDecision
	Budget   time.Duration

	// HeartbeatStale is set when the graphical session is present and the
	// monitoring agent has been silent past its timeout.
	HeartbeatStale   bool
	HeartbeatSilence time.Duration

	Jump *clockguard.Jump
	Zone *clockguard.ZoneChange
}

// New returns a session for a profile that has none yet. It starts Active;
// callers must run Login or Evaluate on it before exposing its state.
func New(profileID string, in Input) *Session {
	return &Session{
		ProfileID:         profileID,
		State:             Active,
		DayAnchor:         in.Mono,
		DayStarted:        in.Wall,
		LastMono:          in.Mono,
		LastWall:          in.Wall,
		LastHeartbeatMono: in.Mono,
		BootID:            in.Boot,
		Created:           in.Wall,
	}
}

func (s *Session) audit(in Input, kind audit.Kind, kv ...string) Effect {
	return Effect{Kind: EffectAudit, Event: audit.New(kind, s.ProfileID, in.Wall, in.Mono, in.Boot, kv...)}
}

// accrue charges the time since the last evaluation to the budget. Time
// counts whenever the graphical session is present and not locked, whether
// or not the monitoring agent reported during it.
func (s *Session) accrue(in Input) {
	delta := in.Mono - s.LastMono
	if delta < 0 || in.Boot != s.BootID {
		delta = 0
	}
	if s.Present && !s.Suspended && s.State != Locked {
		s.Used += delta
	}
	s.LastMono = in.Mono
	s.LastWall = in.Wall
	s.BootID = in.Boot
}

// rollover starts a new budget day once a full day of monotonic time has
// passed since the anchor. The new anchor is taken while the account is
// present, i.e. at its first login of the new day.
func (s *Session) rollover(in Input, p Policy) {
	if s.Present && in.Mono-s.DayAnchor >= p.BudgetDay {
		s.Used = 0
		s.DayAnchor = in.Mono
		s.DayStarted = in.Wall
	}
}

// allowed reports whether a fresh evaluation would permit access, and the
// reason if not.
func (s *Session) allowed(in Input) (bool, string) {
	switch {
	case s.Latch != nil:
		return false, ReasonClockRollback
	case in.HeartbeatStale:
		return false, ReasonHeartbeatLost
	case !in.Decision.Allowed:
		return false, in.Decision.Reason
	case s.Remaining(in.Budget) <= 0:
		return false, ReasonBudgetExhausted
	}
	return true, ""
}

// deadline returns the time until access must end, negative once it has
// passed, and why it ends.
func (s *Session) deadline(in Input) (time.Duration, string) {
	var until time.Duration
	cause := in.Decision.Reason
	if in.Decision.Allowed {
		until = in.Decision.End.Sub(in.Wall)
		cause = eval.ReasonOutsideWindow
	} else if !s.WindowEnd.IsZero() && s.WindowEnd.Before(in.Wall) {
		until = s.WindowEnd.Sub(in.Wall)
	}
	if in.Budget != profile.BudgetUnlimited {
		if left := in.Budget - s.Used; left < until {
			until = left
			cause = ReasonBudgetExhausted
		}
	}
	return until, cause
}

func (s *Session) lock(in Input, reason string) []Effect {
	s.Reason = reason
	if s.State == Locked {
		if s.Present {
			return []Effect{{Kind: EffectLock, Reason: reason}}
		}
		return nil
	}
	prev := s.State
	s.State = Locked
	s.WarnLevel = 0
	return []Effect{
		{Kind: EffectLock, Reason: reason, Notify: true},
		s.audit(in, audit.SessionLock, "reason", reason, "from", prev.String()),
	}
}

func (s *Session) unlock(in Input, kv ...string) []Effect {
	s.State = Active
	s.Reason = ""
	s.WarnLevel = 0
	return []Effect{{Kind: EffectUnlock}, s.audit(in, audit.SessionUnlock, kv...)}
}

// reevaluate sets the state a fresh login would get: Active when access is
// permitted, Locked otherwise.
func (s *Session) reevaluate(in Input) []Effect {
	if ok, reason := s.allowed(in); !ok {
		return s.lock(in, reason)
	}
	if s.State == Locked {
		return s.unlock(in)
	}
	s.State = Active
	s.Reason = ""
	s.WarnLevel = 0
	return nil
}

// warn emits one warning when until crosses a threshold not yet warned
// about, unless the last warning was too recent.
func (s *Session) warn(in Input, p Policy, until time.Duration) []Effect {
	if until <= 0 {
		return nil
	}
	crossed := 0
	for _, t := range p.thresholds() {
		if until <= t {
			crossed++
		}
	}
	if crossed <= s.WarnLevel {
		return nil
	}
	s.WarnLevel = crossed
	if s.Warned && p.Suppress > 0 && in.Mono-s.LastWarnMono < p.Suppress {
		return nil
	}
	s.Warned = true
	s.LastWarnMono = in.Mono
	secs := int64(until.Round(time.Second) / time.Second)
	return []Effect{
		{Kind: EffectWarn, Seconds: secs},
		s.audit(in, audit.WarningIssued, "seconds", strconv.FormatInt(secs, 10), "state", s.State.String()),
	}
}

func (s *Session) observeClock(in Input, p Policy) []Effect {
	var effects []Effect
	if in.Zone != nil {
		effects = append(effects, s.audit(in, audit.TimezoneChanged, "from", in.Zone.From, "to", in.Zone.To))
	}

	j := in.Jump
	if j == nil {
		if s.Latch != nil {
			expected := s.Latch.Expected.Add(in.Mono - s.Latch.Mono)
			if !in.Wall.Before(expected.Add(-p.Tolerance)) {
				s.Latch = nil
			}
		}
		return effects
	}

	effects = append(effects, s.audit(in, audit.ClockJumpDetected,
		"direction", j.Direction.String(),
		"magnitude", j.Magnitude.String(),
		"from", j.From.Format(time.RFC3339),
		"to", j.To.Format(time.RFC3339),
		"state", s.State.String(),
	))
	if j.Direction != clockguard.Backward {
		return effects
	}

	latch := Latch{Expected: j.Expected, Mono: in.Mono}
	if s.Latch != nil {
		if prev := s.Latch.Expected.Add(in.Mono - s.Latch.Mono); prev.After(latch.Expected) {
			latch.Expected = prev
		}
	}
	s.Latch = &latch

	if s.Override != nil {
		effects = append(effects, s.audit(in, audit.OverrideRevoked, "override", s.Override.ID, "reason", ReasonClockRollback))
		s.Override = nil
	}
	return append(effects, s.lock(in, ReasonClockRollback)...)
}

func (s *Session) observeCollector(in Input) []Effect {
	if !in.HeartbeatStale {
		s.CollectorDown = false
		s.HeartbeatLost = false
		return nil
	}
	if s.CollectorDown {
		return nil
	}
	s.CollectorDown = true
	return []Effect{s.audit(in, audit.CollectorUnavailable, "silence", in.HeartbeatSilence.Round(time.Second).String())}
}

// Evaluate advances the state machine to in. It is the tick entry point and
// is also run after every external event.
func (s *Session) Evaluate(in Input, p Policy) []Effect {
	s.accrue(in)
	s.rollover(in, p)

	effects := s.observeClock(in, p)
	if in.Jump != nil && in.Jump.Direction == clockguard.Backward {
		return effects
	}
	effects = append(effects, s.observeCollector(in)...)

	if s.State == OverrideActive {
		if s.Override != nil && !s.Override.Expired(in.Wall, in.Mono, in.Boot) {
			return append(effects, s.warn(in, p, s.Override.Remaining(in.Wall, in.Mono, in.Boot))...)
		}
		if s.Override != nil {
			effects = append(effects, s.audit(in, audit.OverrideExpired,
				"override", s.Override.ID,
				"grantor", s.Override.Grantor,
				"previous", s.PreOverride.String(),
			))
			s.Override = nil
		}
		effects = append(effects, s.reevaluate(in)...)
	}
	return append(effects, s.step(in, p)...)
}

// step runs the non-override transitions until the state settles. A late
// tick may need several transitions at once, e.g. Active straight through
// WarningPending into GracePeriod.
func (s *Session) step(in Input, p Policy) []Effect {
	var effects []Effect
	if in.Decision.Allowed && in.Decision.Window != nil {
		w := *in.Decision.Window
		s.Window = &w
		s.WindowEnd = in.Decision.End
	} else {
		s.Window = nil
	}

	for i := 0; i < 4; i++ {
		switch s.State {
		case OverrideActive:
			return effects

		case Locked:
			ok, reason := s.allowed(in)
			if ok {
				effects = append(effects, s.unlock(in)...)
				continue
			}
			return append(effects, s.lock(in, reason)...)
		}

		// Warnings and grace are for someone at the screen. Without a
		// graphical session the lock is immediate.
		if !s.Present {
			if ok, reason := s.allowed(in); !ok {
				return append(effects, s.lock(in, reason)...)
			}
		}
		if in.HeartbeatStale {
			s.HeartbeatLost = true
			effects = append(effects, s.audit(in, audit.HeartbeatLost,
				"silence", in.HeartbeatSilence.Round(time.Second).String(),
				"state", s.State.String(),
			))
			return append(effects, s.lock(in, ReasonHeartbeatLost)...)
		}
		if s.Latch != nil {
			return append(effects, s.lock(in, ReasonClockRollback)...)
		}

		until, cause := s.deadline(in)
		switch s.State {
		case Active:
			if until > p.Warning {
				return effects
			}
			s.State = WarningPending
			effects = append(effects, s.warn(in, p, until)...)
			if until > 0 {
				return effects
			}

		case WarningPending:
			if until > p.Warning {
				s.State = Active
				s.WarnLevel = 0
				return effects
			}
			if until > 0 {
				return append(effects, s.warn(in, p, until)...)
			}
			if p.Grace <= 0 {
				return append(effects, s.lock(in, cause)...)
			}
			s.State = GracePeriod
			s.Reason = cause
			// Grace runs from the moment access ended, not from when it
			// was noticed.
			s.GraceStart = in.Mono + until
			effects = append(effects, Effect{Kind: EffectSavePrompt, Seconds: int64(p.Grace / time.Second), Reason: cause})

		case GracePeriod:
			if until > p.Warning {
				s.State = Active
				s.Reason = ""
				s.WarnLevel = 0
				return effects
			}
			if in.Mono-s.GraceStart >= p.Grace {
				return append(effects, s.lock(in, s.Reason)...)
			}
			return effects
		}
	}
	return effects
}

// Login marks the account's graphical session present and computes its
// initial state from the current window and budget.
func (s *Session) Login(in Input, p Policy) []Effect {
	s.accrue(in)
	s.Present = true
	s.Suspended = false
	s.WarnLevel = 0
	s.rollover(in, p)

	var effects []Effect
	if s.State != OverrideActive {
		effects = s.reevaluate(in)
	}
	return append(effects, s.Evaluate(in, p)...)
}

// Logout stops charging usage to the session.
func (s *Session) Logout(in Input) {
	s.accrue(in)
	s.Present = false
}

func (s *Session) Suspend(in Input) {
	s.accrue(in)
	s.Suspended = true
}

func (s *Session) Resume(in Input) {
	s.accrue(in)
	s.Suspended = false
}

// Grant enters OverrideActive. A rollback latch is cleared: the grantor
// has vouched for the session.
func (s *Session) Grant(o Override, in Input) []Effect {
	s.accrue(in)
	pre := s.State
	if pre == OverrideActive {
		pre = s.PreOverride
	}
	s.PreOverride = pre
	s.Override = &o
	s.Latch = nil
	s.State = OverrideActive
	s.Reason = ""
	s.WarnLevel = 0

	effects := []Effect{s.audit(in, audit.OverrideGranted,
		"override", o.ID,
		"grantor", o.Grantor,
		"duration", o.Duration.String(),
		"expires", o.ExpiresAt().Format(time.RFC3339),
		"reason", o.Reason,
		"previous", pre.String(),
	)}
	if pre == Locked {
		effects = append(effects, Effect{Kind: EffectUnlock}, s.audit(in, audit.SessionUnlock, "override", o.ID))
	}
	return effects
}

// Revoke ends an active override early. ok is false if none was active.
func (s *Session) Revoke(by string, in Input, p Policy) (effects []Effect, ok bool) {
	if s.State != OverrideActive || s.Override == nil {
		return nil, false
	}
	s.accrue(in)
	effects = append(effects, s.audit(in, audit.OverrideRevoked, "override", s.Override.ID, "by", by))
	s.Override = nil
	effects = append(effects, s.reevaluate(in)...)
	return append(effects, s.step(in, p)...), true
}
