package loginctl

import (
	"io"
	"log/slog"
	"testing"

	"github.com/godbus/dbus/v5"
	"github.com/stretchr/testify/assert"
)

func TestLockedHintChange(t *testing.T) {
	tests := []struct {
		name       string
		body       []interface{}
		wantLocked bool
		wantOK     bool
	}{
		{
			name:       "locked",
			body:       []interface{}{sessionIface, map[string]dbus.Variant{"LockedHint": dbus.MakeVariant(true)}, []string{}},
			wantLocked: true,
			wantOK:     true,
		},
		{
			name:   "unlocked",
			body:   []interface{}{sessionIface, map[string]dbus.Variant{"LockedHint": dbus.MakeVariant(false)}, []string{}},
			wantOK: true,
		},
		{
			name: "other property",
			body: []interface{}{sessionIface, map[string]dbus.Variant{"IdleHint": dbus.MakeVariant(true)}, []string{}},
		},
		{
			name: "other interface",
			body: []interface{}{"org.freedesktop.login1.User", map[string]dbus.Variant{"LockedHint": dbus.MakeVariant(true)}, []string{}},
		},
		{
			name: "short body",
			body: []interface{}{sessionIface},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			locked, ok := lockedHintChange(&dbus.Signal{Body: tt.body})
			assert.Equal(t, tt.wantLocked, locked)
			assert.Equal(t, tt.wantOK, ok)
		})
	}
}

type recordingHandler struct {
	calls []string
}

func (r *recordingHandler) HandleLogin(account, path string)  { r.calls = append(r.calls, "login "+account) }
func (r *recordingHandler) HandleLogout(path string)          { r.calls = append(r.calls, "logout "+path) }
func (r *recordingHandler) HandleSleep()                      { r.calls = append(r.calls, "sleep") }
func (r *recordingHandler) HandleWake()                       { r.calls = append(r.calls, "wake") }
func (r *recordingHandler) HandleLock(account, path string)   { r.calls = append(r.calls, "lock "+account) }
func (r *recordingHandler) HandleUnlock(account, path string) { r.calls = append(r.calls, "unlock "+account) }
func (r *recordingHandler) SyncPresence(map[string]string)    { r.calls = append(r.calls, "sync") }

func TestDispatchWithoutLookups(t *testing.T) {
	h := &recordingHandler{}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	dispatch(nil, h, logger, &dbus.Signal{Name: managerIface + ".PrepareForSleep", Body: []interface{}{true}})
	dispatch(nil, h, logger, &dbus.Signal{Name: managerIface + ".PrepareForSleep", Body: []interface{}{false}})
	dispatch(nil, h, logger, &dbus.Signal{Name: managerIface + ".SessionRemoved", Body: []interface{}{"c2", dbus.ObjectPath("/org/freedesktop/login1/session/c2")}})
	dispatch(nil, h, logger, &dbus.Signal{Name: managerIface + ".SessionRemoved", Body: []interface{}{"c3"}})

	assert.Equal(t, []string{"sleep", "wake", "logout /org/freedesktop/login1/session/c2"}, h.calls)
}
