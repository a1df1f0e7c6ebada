package ipc

import (
	"fmt"

	"github.com/godbus/dbus/v5"
	"github.com/godbus/dbus/v5/introspect"
)

const intro = `
<node>
	<interface name="` + InterfaceName + `">
		<method name="GetStatus">
			<arg direction="out" type="s"/>
		</method>
		<method name="ReportHeartbeat">
			<arg name="profile" direction="in" type="s"/>
			<arg name="timestamp" direction="in" type="x"/>
			<arg name="ack" direction="out" type="b"/>
		</method>
		<method name="ReportActivity">
			<arg name="profile" direction="in" type="s"/>
			<arg name="kind" direction="in" type="s"/>
			<arg name="id" direction="in" type="s"/>
			<arg name="category" direction="in" type="s"/>
			<arg name="timestamp" direction="in" type="x"/>
			<arg name="allow" direction="out" type="b"/>
			<arg name="reason" direction="out" type="s"/>
		</method>
		<method name="CheckAccess">
			<arg name="profile" direction="in" type="s"/>
			<arg name="state" direction="out" type="s"/>
			<arg name="remaining" direction="out" type="x"/>
			<arg name="window_end" direction="out" type="x"/>
			<arg name="reason" direction="out" type="s"/>
			<arg name="next_window" direction="out" type="x"/>
		</method>
		<method name="GrantOverride">
			<arg name="profile" direction="in" type="s"/>
			<arg name="seconds" direction="in" type="x"/>
			<arg name="credential" direction="in" type="s"/>
			<arg name="reason" direction="in" type="s"/>
			<arg name="ok" direction="out" type="b"/>
		</method>
		<method name="RevokeOverride">
			<arg name="profile" direction="in" type="s"/>
			<arg name="credential" direction="in" type="s"/>
			<arg name="ok" direction="out" type="b"/>
		</method>
		<method name="ListAudit">
			<arg name="profile" direction="in" type="s"/>
			<arg name="limit" direction="in" type="u"/>
			<arg name="json" direction="out" type="s"/>
		</method>
		<signal name="WarningIssued">
			<arg name="profile" type="s"/>
			<arg name="seconds" type="x"/>
		</signal>
		<signal name="SessionLocked">
			<arg name="profile" type="s"/>
			<arg name="reason" type="s"/>
		</signal>
		<signal name="SessionUnlocked">
			<arg name="profile" type="s"/>
		</signal>
	</interface>` + introspect.IntrospectDataString + `</node> `

// Serve exports engine on conn and claims ServiceName.
func Serve(conn *dbus.Conn, engine *Engine) error {
	if err := conn.Export(engine, dbus.ObjectPath(ObjectPath), InterfaceName); err != nil {
		return fmt.Errorf("failed to export interface: %w", err)
	}
	if err := conn.Export(introspect.Introspectable(intro), dbus.ObjectPath(ObjectPath), "org.freedesktop.DBus.Introspectable"); err != nil {
		return fmt.Errorf("failed to export introspection: %w", err)
	}

	reply, err := conn.RequestName(ServiceName, dbus.NameFlagDoNotQueue)
	if err != nil {
		return fmt.Errorf("failed to request name: %w", err)
	}
	if reply != dbus.RequestNameReplyPrimaryOwner {
		return fmt.Errorf("name %s already taken", ServiceName)
	}
	return nil
}

// Emitter publishes the engine's signals on a bus connection.
type Emitter struct {
	conn *dbus.Conn
}

func NewEmitter(conn *dbus.Conn) *Emitter {
	return &Emitter{conn: conn}
}

func (e *Emitter) WarningIssued(profileID string, seconds int64) error {
	return e.conn.Emit(ObjectPath, InterfaceName+".WarningIssued", profileID, seconds)
}

func (e *Emitter) SessionLocked(profileID, reason string) error {
	return e.conn.Emit(ObjectPath, InterfaceName+".SessionLocked", profileID, reason)
}

func (e *Emitter) SessionUnlocked(profileID string) error {
	return e.conn.Emit(ObjectPath, InterfaceName+".SessionUnlocked", profileID)
}
