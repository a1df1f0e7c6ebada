package state

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/SoarinFerret/TimeWarden/internal/audit"
	"github.com/SoarinFerret/TimeWarden/internal/eval"
	"github.com/SoarinFerret/TimeWarden/internal/session"
)

// ReportHeartbeat records a pulse from the monitoring agent. ts is the
// agent's own clock and is never used for decisions.
func (m *Manager) ReportHeartbeat(ctx context.Context, profileID string, ts time.Time) error {
	c, err := m.cell(profileID)
	if err != nil {
		return err
	}
	m.tracker.Record(profileID, m.clock.Monotonic(), ts)

	// A silent agent has locked or flagged the session; let it recover now
	// rather than at the next tick.
	if snap := c.snapshot(); snap.CollectorDown || snap.HeartbeatLost {
		c.postTick()
	}
	return nil
}

// ReportActivity decides whether an observed application or site is
// allowed. It also counts as a heartbeat. Everything is denied while the
// session is locked.
func (m *Manager) ReportActivity(ctx context.Context, profileID string, a eval.Activity, ts time.Time) (eval.ActivityDecision, error) {
	c, err := m.cell(profileID)
	if err != nil {
		return eval.ActivityDecision{}, err
	}
	m.tracker.Record(profileID, m.clock.Monotonic(), ts)

	var d eval.ActivityDecision
	err = c.call(ctx, func() {
		if c.sess.State == session.Locked {
			d = eval.ActivityDecision{Allow: false, Reason: "session locked: " + c.sess.Reason}
		} else {
			d = eval.EvaluateActivity(c.profile, a)
		}
		if d.Allow {
			return
		}
		e := audit.New(audit.PolicyViolation, profileID, m.clock.Now(), m.clock.Monotonic(), m.boot,
			"kind", string(a.Kind),
			"id", a.ID,
			"category", a.Category,
			"reason", d.Reason,
		)
		c.emit([]session.Effect{{Kind: session.EffectAudit, Event: e}})
	})
	return d, err
}

// CheckAccess evaluates the profile now and reports the outcome.
func (m *Manager) CheckAccess(ctx context.Context, profileID string) (Access, error) {
	c, err := m.cell(profileID)
	if err != nil {
		return Access{}, err
	}
	var a Access
	err = c.call(ctx, func() {
		in := c.step(nil)
		a = c.access(in)
	})
	return a, err
}

// GrantOverride verifies credential and puts the profile in
// OverrideActive for d. Rejected attempts are audited.
func (m *Manager) GrantOverride(ctx context.Context, profileID string, d time.Duration, credential, reason string) (session.Override, error) {
	c, err := m.cell(profileID)
	if err != nil {
		return session.Override{}, err
	}
	if d <= 0 || d > m.maxOverride {
		return session.Override{}, fmt.Errorf("%w: %s not in (0, %s]", ErrInvalidDuration, d, m.maxOverride)
	}
	grantor, err := m.auth.Verify(profileID, credential)
	if err != nil {
		m.denied(ctx, c, profileID, "grant", err)
		return session.Override{}, err
	}

	var o session.Override
	err = c.call(ctx, func() {
		c.step(func(s *session.Session, in session.Input) []session.Effect {
			o = session.Override{
				ID:          uuid.NewString(),
				Grantor:     grantor,
				Reason:      reason,
				GrantedAt:   in.Wall,
				GrantedMono: in.Mono,
				BootID:      in.Boot,
				Duration:    d,
			}
			return s.Grant(o, in)
		})
	})
	if err != nil {
		return session.Override{}, err
	}
	m.logger.Info("Override granted", "profile", profileID, "grantor", grantor, "duration", d, "override", o.ID)
	return o, nil
}

// RevokeOverride ends the profile's override early. It reports false if
// none was active.
func (m *Manager) RevokeOverride(ctx context.Context, profileID, credential string) (bool, error) {
	c, err := m.cell(profileID)
	if err != nil {
		return false, err
	}
	by, err := m.auth.Verify(profileID, credential)
	if err != nil {
		m.denied(ctx, c, profileID, "revoke", err)
		return false, err
	}

	var ok bool
	err = c.call(ctx, func() {
		c.step(func(s *session.Session, in session.Input) []session.Effect {
			var effects []session.Effect
			effects, ok = s.Revoke(by, in, c.m.policy)
			return effects
		})
	})
	if ok {
		m.logger.Info("Override revoked", "profile", profileID, "by", by)
	}
	return ok, err
}

func (m *Manager) denied(ctx context.Context, c *cell, profileID, action string, cause error) {
	m.logger.Warn("Override credential rejected", "profile", profileID, "action", action, "error", cause)
	err := c.call(ctx, func() {
		e := audit.New(audit.OverrideDenied, profileID, m.clock.Now(), m.clock.Monotonic(), m.boot,
			"action", action,
			"error", cause.Error(),
		)
		c.emit([]session.Effect{{Kind: session.EffectAudit, Event: e}})
	})
	if err != nil {
		m.logger.Warn("Failed to audit rejected credential", "profile", profileID, "error", err)
	}
}

// ListAudit returns the most recent audit events for a profile, or for
// every profile when profileID is empty.
func (m *Manager) ListAudit(ctx context.Context, profileID string, limit int) ([]audit.Event, error) {
	if profileID != "" {
		if _, err := m.cell(profileID); err != nil {
			return nil, err
		}
	}
	return m.persister.ListAudit(ctx, profileID, limit)
}
