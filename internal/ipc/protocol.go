// Package ipc exposes the enforcement engine on the D-Bus system bus.
package ipc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/godbus/dbus/v5"

	"github.com/SoarinFerret/TimeWarden/internal/audit"
	"github.com/SoarinFerret/TimeWarden/internal/auth"
	"github.com/SoarinFerret/TimeWarden/internal/eval"
	"github.com/SoarinFerret/TimeWarden/internal/session"
	"github.com/SoarinFerret/TimeWarden/internal/state"
	"github.com/SoarinFerret/TimeWarden/internal/store"
)

const (
	ObjectPath    = "/io/github/soarinferret/timewarden"
	InterfaceName = "io.github.soarinferret.timewarden.Engine"
	ServiceName   = "io.github.soarinferret.timewarden"

	ErrProfileNotFound    = "io.github.soarinferret.timewarden.Error.ProfileNotFound"
	ErrInvalidCredential  = "io.github.soarinferret.timewarden.Error.InvalidCredential"
	errInvalidArgs        = "org.freedesktop.DBus.Error.InvalidArgs"
	defaultAuditListLimit = 100
	callTimeout           = 10 * time.Second
)

// Backend is what the engine object delegates to. *state.Manager
// implements it.
type Backend interface {
	ReportHeartbeat(ctx context.Context, profileID string, ts time.Time) error
	ReportActivity(ctx context.Context, profileID string, a eval.Activity, ts time.Time) (eval.ActivityDecision, error)
	CheckAccess(ctx context.Context, profileID string) (state.Access, error)
	GrantOverride(ctx context.Context, profileID string, d time.Duration, credential, reason string) (session.Override, error)
	RevokeOverride(ctx context.Context, profileID, credential string) (bool, error)
	ListAudit(ctx context.Context, profileID string, limit int) ([]audit.Event, error)
	Status() []session.Session
}

// Engine is the object exported at ObjectPath. Timestamps on the wire are
// Unix seconds; durations are seconds.
type Engine struct {
	backend Backend
	logger  *slog.Logger
}

func NewEngine(backend Backend, logger *slog.Logger) *Engine {
	return &Engine{backend: backend, logger: logger}
}

func (e *Engine) GetStatus() (string, *dbus.Error) {
	return fmt.Sprintf("Service is running, enforcing %d profile(s)", len(e.backend.Status())), nil
}

func (e *Engine) ReportHeartbeat(profile string, timestamp int64) (bool, *dbus.Error) {
	ctx, cancel := context.WithTimeout(context.Background(), callTimeout)
	defer cancel()
	if err := e.backend.ReportHeartbeat(ctx, profile, time.Unix(timestamp, 0)); err != nil {
		return false, e.fail("ReportHeartbeat", profile, err)
	}
	return true, nil
}

func (e *Engine) ReportActivity(profile, kind, id, category string, timestamp int64) (bool, string, *dbus.Error) {
	k, err := eval.ParseActivityKind(kind)
	if err != nil {
		return false, "", dbus.NewError(errInvalidArgs, []any{err.Error()})
	}
	ctx, cancel := context.WithTimeout(context.Background(), callTimeout)
	defer cancel()
	d, err := e.backend.ReportActivity(ctx, profile, eval.Activity{Kind: k, ID: id, Category: category}, time.Unix(timestamp, 0))
	if err != nil {
		return false, "", e.fail("ReportActivity", profile, err)
	}
	return d.Allow, d.Reason, nil
}

// CheckAccess returns the state name, seconds of access left, the window
// end and next window start as Unix seconds (0 if none) and the reason
// access is restricted.
func (e *Engine) CheckAccess(profile string) (string, int64, int64, string, int64, *dbus.Error) {
	ctx, cancel := context.WithTimeout(context.Background(), callTimeout)
	defer cancel()
	a, err := e.backend.CheckAccess(ctx, profile)
	if err != nil {
		return "", 0, 0, "", 0, e.fail("CheckAccess", profile, err)
	}
	reason := a.Reason
	if a.Message != "" {
		reason = a.Message
	}
	return a.State.String(), seconds(a.Remaining), unix(a.WindowEnd), reason, unix(a.NextWindow), nil
}

func (e *Engine) GrantOverride(profile string, secs int64, credential, reason string) (bool, *dbus.Error) {
	ctx, cancel := context.WithTimeout(context.Background(), callTimeout)
	defer cancel()
	if _, err := e.backend.GrantOverride(ctx, profile, time.Duration(secs)*time.Second, credential, reason); err != nil {
		return false, e.fail("GrantOverride", profile, err)
	}
	return true, nil
}

func (e *Engine) RevokeOverride(profile, credential string) (bool, *dbus.Error) {
	ctx, cancel := context.WithTimeout(context.Background(), callTimeout)
	defer cancel()
	ok, err := e.backend.RevokeOverride(ctx, profile, credential)
	if err != nil {
		return false, e.fail("RevokeOverride", profile, err)
	}
	return ok, nil
}

// ListAudit returns the events as a JSON array. An empty profile lists all
// profiles; a zero limit means the default of 100.
func (e *Engine) ListAudit(profile string, limit uint32) (string, *dbus.Error) {
	n := int(limit)
	if n == 0 {
		n = defaultAuditListLimit
	}
	ctx, cancel := context.WithTimeout(context.Background(), callTimeout)
	defer cancel()
	events, err := e.backend.ListAudit(ctx, profile, n)
	if err != nil {
		return "", e.fail("ListAudit", profile, err)
	}
	if events == nil {
		events = []audit.Event{}
	}
	data, err := json.Marshal(events)
	if err != nil {
		return "", dbus.MakeFailedError(err)
	}
	return string(data), nil
}

func (e *Engine) fail(method, profile string, err error) *dbus.Error {
	e.logger.Debug("D-Bus call failed", "method", method, "profile", profile, "error", err)
	return toDBusError(err)
}

func toDBusError(err error) *dbus.Error {
	switch {
	case errors.Is(err, store.ErrProfileNotFound):
		return dbus.NewError(ErrProfileNotFound, []any{err.Error()})
	case errors.Is(err, auth.ErrInvalidCredential), errors.Is(err, auth.ErrRateLimited):
		return dbus.NewError(ErrInvalidCredential, []any{err.Error()})
	case errors.Is(err, state.ErrInvalidDuration):
		return dbus.NewError(errInvalidArgs, []any{err.Error()})
	}
	return dbus.MakeFailedError(err)
}

func seconds(d time.Duration) int64 {
	return int64(d / time.Second)
}

func unix(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.Unix()
}
