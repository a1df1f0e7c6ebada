// Package loginctl follows logind: session creation and removal, sleep,
// and screen lock changes.
package loginctl

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/godbus/dbus/v5"
)

const (
	login1Service = "org.freedesktop.login1"
	login1Path    = "/org/freedesktop/login1"
	managerIface  = "org.freedesktop.login1.Manager"
	sessionIface  = "org.freedesktop.login1.Session"
)

// Handler receives logind events. *state.Manager implements it.
type Handler interface {
	HandleLogin(account, path string)
	HandleLogout(path string)
	HandleSleep()
	HandleWake()
	HandleLock(account, path string)
	HandleUnlock(account, path string)
	// SyncPresence receives every current user session, path to account.
	SyncPresence(logins map[string]string)
}

// Watch reports logind events to h until ctx is done. Sessions that exist
// when it starts are reported through SyncPresence.
func Watch(ctx context.Context, h Handler, logger *slog.Logger) error {
	conn, err := dbus.ConnectSystemBus()
	if err != nil {
		return fmt.Errorf("failed to connect to system bus: %w", err)
	}
	defer conn.Close()

	for _, member := range []string{"SessionNew", "SessionRemoved", "PrepareForSleep"} {
		if err := conn.AddMatchSignal(
			dbus.WithMatchObjectPath(login1Path),
			dbus.WithMatchInterface(managerIface),
			dbus.WithMatchMember(member),
		); err != nil {
			return fmt.Errorf("add match failed: %w", err)
		}
	}

	// watch for property changes (session locked)
	if err := conn.AddMatchSignal(
		dbus.WithMatchInterface("org.freedesktop.DBus.Properties"),
		dbus.WithMatchMember("PropertiesChanged"),
	); err != nil {
		return fmt.Errorf("add match for PropertiesChanged failed: %w", err)
	}

	c := make(chan *dbus.Signal, 10)
	conn.Signal(c)
	defer conn.RemoveSignal(c)

	logins, err := listUserSessions(ctx, conn)
	if err != nil {
		return fmt.Errorf("failed to list sessions: %w", err)
	}
	logger.Info("Found existing sessions", "count", len(logins))
	h.SyncPresence(logins)

	for {
		select {
		case sig := <-c:
			dispatch(conn, h, logger, sig)
		case <-ctx.Done():
			return nil
		}
	}
}

func dispatch(conn *dbus.Conn, h Handler, logger *slog.Logger, sig *dbus.Signal) {
	switch sig.Name {
	case managerIface + ".SessionNew":
		if len(sig.Body) < 2 {
			return
		}
		sessionPath, ok := sig.Body[1].(dbus.ObjectPath)
		if !ok {
			logger.Warn("SessionNew: failed to get session object path")
			return
		}
		class, err := getSessionClass(conn, sessionPath)
		if err != nil {
			logger.Warn("SessionNew: failed to get session class", "session", sessionPath, "error", err)
			return
		}
		if class != "user" {
			return // Ignore non-user sessions
		}
		username, err := getUsernameFromSession(conn, sessionPath)
		if err != nil {
			logger.Warn("SessionNew: failed to get username", "session", sessionPath, "error", err)
			return
		}
		h.HandleLogin(username, string(sessionPath))

	case managerIface + ".SessionRemoved":
		if len(sig.Body) < 2 {
			return
		}
		sessionPath, ok := sig.Body[1].(dbus.ObjectPath)
		if !ok {
			logger.Warn("SessionRemoved: failed to get session object path")
			return
		}
		h.HandleLogout(string(sessionPath))

	case managerIface + ".PrepareForSleep":
		if len(sig.Body) == 0 {
			return
		}
		if sleeping, _ := sig.Body[0].(bool); sleeping {
			h.HandleSleep()
		} else {
			h.HandleWake()
		}

	case "org.freedesktop.DBus.Properties.PropertiesChanged":
		locked, ok := lockedHintChange(sig)
		if !ok {
			return
		}
		username, err := getUsernameFromSession(conn, sig.Path)
		if err != nil {
			logger.Warn("LockedHint: failed to get username", "session", sig.Path, "error", err)
			return
		}
		if locked {
			h.HandleLock(username, string(sig.Path))
		} else {
			h.HandleUnlock(username, string(sig.Path))
		}
	}
}

// lockedHintChange extracts a LockedHint change from a PropertiesChanged
// signal of a logind session.
func lockedHintChange(sig *dbus.Signal) (locked, ok bool) {
	if len(sig.Body) < 3 {
		return false, false
	}
	if iface, _ := sig.Body[0].(string); iface != sessionIface {
		return false, false
	}
	changed, _ := sig.Body[1].(map[string]dbus.Variant)
	val, exists := changed["LockedHint"]
	if !exists {
		return false, false
	}
	locked, ok = val.Value().(bool)
	return locked, ok
}

type sessionEntry struct {
	ID   string
	UID  uint32
	User string
	Seat string
	Path dbus.ObjectPath
}

func listUserSessions(ctx context.Context, conn *dbus.Conn) (map[string]string, error) {
	var entries []sessionEntry
	err := conn.Object(login1Service, login1Path).
		CallWithContext(ctx, managerIface+".ListSessions", 0).
		Store(&entries)
	if err != nil {
		return nil, err
	}

	out := make(map[string]string, len(entries))
	for _, e := range entries {
		class, err := getSessionClass(conn, e.Path)
		if err != nil || class != "user" {
			continue
		}
		out[string(e.Path)] = e.User
	}
	return out, nil
}

func getUsernameFromSession(conn *dbus.Conn, sessionPath dbus.ObjectPath) (string, error) {
	sessionObj := conn.Object(login1Service, sessionPath)

	var userInfo []interface{}
	err := sessionObj.Call("org.freedesktop.DBus.Properties.Get", 0, sessionIface, "User").Store(&userInfo)
	if err != nil || len(userInfo) < 2 {
		return "", fmt.Errorf("failed to get user info: %w", err)
	}
	userPath, ok := userInfo[1].(dbus.ObjectPath)
	if !ok {
		return "", fmt.Errorf("failed to get user object path")
	}
	userObj := conn.Object(login1Service, userPath)
	var username dbus.Variant
	err = userObj.Call("org.freedesktop.DBus.Properties.Get", 0,
		"org.freedesktop.login1.User", "Name").Store(&username)
	if err != nil {
		return "", fmt.Errorf("failed to get username: %w", err)
	}
	name, ok := username.Value().(string)
	if !ok {
		return "", fmt.Errorf("unexpected type for user name")
	}
	return name, nil
}

func getSessionClass(conn *dbus.Conn, sessionPath dbus.ObjectPath) (string, error) {
	obj := conn.Object(login1Service, sessionPath)
	var class dbus.Variant
	err := obj.Call("org.freedesktop.DBus.Properties.Get", 0, sessionIface, "Class").Store(&class)
	if err != nil {
		return "", err
	}
	if v, ok := class.Value().(string); ok {
		return v, nil
	}
	return "", fmt.Errorf("unexpected type for session class")
}
