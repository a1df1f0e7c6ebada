package actuator

import (
	"context"
	"fmt"

	"github.com/godbus/dbus/v5"
)

// Desktop sends notifications to the session bus of a logind session's
// leader process.
type Desktop struct {
	conn    *dbus.Conn
	appName string
}

// NewDesktop returns a notifier that looks sessions up on conn, the system
// bus.
func NewDesktop(conn *dbus.Conn, appName string) *Desktop {
	return &Desktop{conn: conn, appName: appName}
}

func (d *Desktop) Notify(ctx context.Context, sessionPath string, n Notification) error {
	busAddr, err := d.sessionBusAddress(sessionPath)
	if err != nil {
		return fmt.Errorf("failed to get session bus address: %w", err)
	}

	userConn, err := dbus.Dial(busAddr)
	if err != nil {
		return fmt.Errorf("failed to connect to user session bus: %w", err)
	}
	defer userConn.Close()

	if err := userConn.Auth(nil); err != nil {
		return fmt.Errorf("failed to authenticate: %w", err)
	}
	if err := userConn.Hello(); err != nil {
		return fmt.Errorf("failed to send hello: %w", err)
	}

	timeout := int32(-1)
	if n.Timeout > 0 {
		timeout = int32(n.Timeout.Milliseconds())
	}
	icon := "dialog-information"
	if n.Urgency >= 2 {
		icon = "dialog-warning"
	}

	obj := userConn.Object("org.freedesktop.Notifications", "/org/freedesktop/Notifications")
	call := obj.CallWithContext(ctx, "org.freedesktop.Notifications.Notify", 0,
		d.appName,
		uint32(0),
		icon,
		n.Summary,
		n.Body,
		[]string{},
		map[string]dbus.Variant{"urgency": dbus.MakeVariant(n.Urgency)},
		timeout,
	)
	if call.Err != nil {
		return fmt.Errorf("failed to send notification: %w", call.Err)
	}
	return nil
}

// sessionBusAddress reads DBUS_SESSION_BUS_ADDRESS from the environment of
// the session leader.
func (d *Desktop) sessionBusAddress(sessionPath string) (string, error) {
	obj := d.conn.Object(login1Service, dbus.ObjectPath(sessionPath))

	pidVariant, err := obj.GetProperty("org.freedesktop.login1.Session.Leader")
	if err != nil {
		return "", fmt.Errorf("failed to get Leader property: %w", err)
	}
	pid, ok := pidVariant.Value().(uint32)
	if !ok || pid == 0 {
		return "", fmt.Errorf("session %s has no leader", sessionPath)
	}

	return getEnvFromProc(int(pid), "DBUS_SESSION_BUS_ADDRESS")
}
