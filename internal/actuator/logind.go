package actuator

import (
	"context"
	"fmt"

	"github.com/godbus/dbus/v5"
)

const (
	login1Service = "org.freedesktop.login1"
	login1Path    = "/org/freedesktop/login1"
)

type Logind struct {
	conn *dbus.Conn
}

func NewLogind(conn *dbus.Conn) *Logind {
	return &Logind{conn: conn}
}

// Logind locks and unlocks sessions through org.freedesktop.login1 on the
// system bus. Both calls check LockedHint first and do nothing when the
// session is already in the wanted state.
func (l *Logind) LockSession(ctx context.Context, sessionPath string) error {
	return l.setLocked(ctx, sessionPath, true)
}

func (l *Logind) UnlockSession(ctx context.Context, sessionPath string) error {
	return l.setLocked(ctx, sessionPath, false)
}

func (l *Logind) setLocked(ctx context.Context, sessionPath string, lock bool) error {
	sessionObj := l.conn.Object(login1Service, dbus.ObjectPath(sessionPath))

	lockedVariant, err := sessionObj.GetProperty("org.freedesktop.login1.Session.LockedHint")
	if err != nil {
		return fmt.Errorf("failed to get LockedHint from path %s: %w", sessionPath, err)
	}
	if locked, _ := lockedVariant.Value().(bool); locked == lock {
		return nil
	}

	idVariant, err := sessionObj.GetProperty("org.freedesktop.login1.Session.Id")
	if err != nil {
		return fmt.Errorf("failed to get session ID from path %s: %w", sessionPath, err)
	}
	sessionID, ok := idVariant.Value().(string)
	if !ok {
		return fmt.Errorf("unexpected type for session ID at %s", sessionPath)
	}

	method, verb := "org.freedesktop.login1.Manager.LockSession", "lock"
	if !lock {
		method, verb = "org.freedesktop.login1.Manager.UnlockSession", "unlock"
	}
	managerObj := l.conn.Object(login1Service, login1Path)
	call := managerObj.CallWithContext(ctx, method, 0, sessionID)
	if call.Err != nil {
		return fmt.Errorf("failed to %s session %s: %w", verb, sessionID, call.Err)
	}
	return nil
}
