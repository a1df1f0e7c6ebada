package state

import (
	"time"

	"github.com/SoarinFerret/TimeWarden/internal/eval"
	"github.com/SoarinFerret/TimeWarden/internal/profile"
	"github.com/SoarinFerret/TimeWarden/internal/session"
)

// Access answers CheckAccess.
type Access struct {
	ProfileID string
	State     session.State
	// Remaining is how long access lasts from now: the override's time
	// left, the grace left, or the nearer of window end and budget. Zero
	// when locked.
	Remaining  time.Duration
	WindowEnd  time.Time
	Reason     string
	Message    string
	NextWindow time.Time
	Used       time.Duration
	Budget     time.Duration
	Override   *session.Override
}

func (c *cell) access(in session.Input) Access {
	s := c.sess
	a := Access{
		ProfileID:  s.ProfileID,
		State:      s.State,
		Reason:     s.Reason,
		Used:       s.Used,
		Budget:     in.Budget,
		NextWindow: in.Decision.Next,
	}
	if in.Decision.Allowed {
		a.WindowEnd = in.Decision.End
	}

	switch s.State {
	case session.OverrideActive:
		if s.Override != nil {
			o := *s.Override
			a.Override = &o
			a.Remaining = o.Remaining(in.Wall, in.Mono, in.Boot)
		}
	case session.Locked:
		if s.Reason == eval.ReasonOutsideWindow || s.Reason == eval.ReasonNoWindows {
			a.Message = eval.DenialMessage(c.profile, in.Decision, in.Wall)
		}
	case session.GracePeriod:
		if left := c.m.policy.Grace - (in.Mono - s.GraceStart); left > 0 {
			a.Remaining = left
		}
	default:
		if in.Decision.Allowed {
			a.Remaining = in.Decision.End.Sub(in.Wall)
		}
		if in.Budget != profile.BudgetUnlimited {
			if left := s.Remaining(in.Budget); left < a.Remaining {
				a.Remaining = left
			}
		}
	}
	return a
}
