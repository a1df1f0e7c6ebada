// Package actuator carries out the side effects the enforcement state
// machine asks for: locking sessions through logind, desktop notifications
// on the user's session bus, D-Bus signals and audit appends.
package actuator

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/SoarinFerret/TimeWarden/internal/audit"
	"github.com/SoarinFerret/TimeWarden/internal/session"
)

// Target identifies where effects for one profile land.
type Target struct {
	ProfileID string
	Account   string
	// Sessions are the account's logind session object paths.
	Sessions []string
}

type Locker interface {
	// LockSession locks a logind session. Locking an already locked
	// session is a no-op.
	LockSession(ctx context.Context, sessionPath string) error
	// UnlockSession lifts the lock on a logind session. Unlocking a
	// session that is not locked is a no-op.
	UnlockSession(ctx context.Context, sessionPath string) error
}

type Notification struct {
	Summary string
	Body    string
	// Urgency follows the freedesktop hint: 0 low, 1 normal, 2 critical.
	Urgency byte
	Timeout time.Duration
}

type Notifier interface {
	Notify(ctx context.Context, sessionPath string, n Notification) error
}

// Emitter publishes the engine's D-Bus signals.
type Emitter interface {
	WarningIssued(profileID string, seconds int64) error
	SessionLocked(profileID, reason string) error
	SessionUnlocked(profileID string) error
}

type AuditSink interface {
	AppendAudit(e audit.Event)
}

type Actuator struct {
	locker     Locker
	notifier   Notifier
	emitter    Emitter
	audit      AuditSink
	logger     *slog.Logger
	lockScreen bool
}

// New returns an actuator. With lockScreen false, locks are signalled and
// audited but sessions are left unlocked.
func New(locker Locker, notifier Notifier, emitter Emitter, sink AuditSink, logger *slog.Logger, lockScreen bool) *Actuator {
	return &Actuator{
		locker:     locker,
		notifier:   notifier,
		emitter:    emitter,
		audit:      sink,
		logger:     logger,
		lockScreen: lockScreen,
	}
}

// Apply executes effects in order. Failures are logged and never stop the
// remaining effects.
func (a *Actuator) Apply(ctx context.Context, t Target, effects []session.Effect) {
	for _, e := range effects {
		switch e.Kind {
		case session.EffectAudit:
			a.audit.AppendAudit(e.Event)

		case session.EffectWarn:
			remaining := time.Duration(e.Seconds) * time.Second
			a.logger.Info("Warning session", "profile", t.ProfileID, "remaining", remaining)
			if err := a.emitter.WarningIssued(t.ProfileID, e.Seconds); err != nil {
				a.logger.Warn("Failed to emit WarningIssued", "profile", t.ProfileID, "error", err)
			}
			a.notify(ctx, t, Notification{
				Summary: "Screen time ending",
				Body:    fmt.Sprintf("You have %s of screen time left", formatTimeRemaining(remaining)),
				Urgency: 1,
				Timeout: 10 * time.Second,
			})

		case session.EffectSavePrompt:
			a.logger.Info("Grace period started", "profile", t.ProfileID, "reason", e.Reason)
			a.notify(ctx, t, Notification{
				Summary: "Save your work",
				Body:    fmt.Sprintf("This session locks in %s: %s", formatTimeRemaining(time.Duration(e.Seconds)*time.Second), e.Reason),
				Urgency: 2,
			})

		case session.EffectLock:
			if e.Notify {
				a.logger.Info("Locking session", "profile", t.ProfileID, "reason", e.Reason)
				if err := a.emitter.SessionLocked(t.ProfileID, e.Reason); err != nil {
					a.logger.Warn("Failed to emit SessionLocked", "profile", t.ProfileID, "error", err)
				}
				a.notify(ctx, t, Notification{Summary: "Session locked", Body: e.Reason, Urgency: 2})
			}
			a.lock(ctx, t)

		case session.EffectUnlock:
			a.logger.Info("Access restored", "profile", t.ProfileID)
			if err := a.emitter.SessionUnlocked(t.ProfileID); err != nil {
				a.logger.Warn("Failed to emit SessionUnlocked", "profile", t.ProfileID, "error", err)
			}
			a.unlock(ctx, t)
		}
	}
}

func (a *Actuator) lock(ctx context.Context, t Target) {
	if !a.lockScreen {
		a.logger.Debug("Lock screen disabled, session left unlocked", "profile", t.ProfileID)
		return
	}
	for _, path := range t.Sessions {
		if err := a.locker.LockSession(ctx, path); err != nil {
			a.logger.Error("Failed to lock session", "profile", t.ProfileID, "session", path, "error", err)
		}
	}
}

func (a *Actuator) unlock(ctx context.Context, t Target) {
	if !a.lockScreen {
		return
	}
	for _, path := range t.Sessions {
		if err := a.locker.UnlockSession(ctx, path); err != nil {
			a.logger.Warn("Failed to unlock session", "profile", t.ProfileID, "session", path, "error", err)
		}
	}
}

func (a *Actuator) notify(ctx context.Context, t Target, n Notification) {
	for _, path := range t.Sessions {
		if err := a.notifier.Notify(ctx, path, n); err != nil {
			a.logger.Warn("Failed to send notification", "profile", t.ProfileID, "session", path, "error", err)
		}
	}
}
