package arg

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/SoarinFerret/TimeWarden/internal/audit"
)

func TestFormatDuration(t *testing.T) {
	tests := []struct {
		in   time.Duration
		want string
	}{
		{0, "0s"},
		{45 * time.Second, "45s"},
		{5*time.Minute + 30*time.Second, "5m 30s"},
		{2*time.Hour + 15*time.Minute, "2h 15m"},
		{90*time.Second + 400*time.Millisecond, "1m 30s"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, formatDuration(tt.in), tt.in.String())
	}
}

func TestFieldsSkipsEmptyValues(t *testing.T) {
	out := fields([2]string{"Profile", "kid"}, [2]string{"Reason", ""}, [2]string{"Remaining", "5m 0s"})

	lines := strings.Split(strings.TrimRight(out, "\n"), "\n")
	require.Len(t, lines, 2)
	assert.Contains(t, lines[0], "kid")
	assert.Contains(t, lines[1], "5m 0s")
	assert.NotContains(t, out, "Reason")
}

func TestTableAlignsColumns(t *testing.T) {
	out := table([]string{"A", "B"}, [][]string{{"long-value", "x"}, {"s", "y"}})

	lines := strings.Split(strings.TrimRight(out, "\n"), "\n")
	require.Len(t, lines, 3)
	assert.Equal(t, strings.Index(lines[1], "x"), strings.Index(lines[2], "y"))
}

func TestEncode(t *testing.T) {
	report := newAccessReport("kid", "Locked", 0, 0, "outside allowed hours", 1772463600)

	var buf bytes.Buffer
	done, err := encode(&buf, "json", report)
	require.NoError(t, err)
	assert.True(t, done)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &decoded))
	assert.Equal(t, "kid", decoded["profile"])
	assert.Equal(t, "Locked", decoded["state"])
	assert.Contains(t, decoded, "next_window")
	assert.NotContains(t, decoded, "window_end")

	buf.Reset()
	done, err = encode(&buf, "yaml", report)
	require.NoError(t, err)
	assert.True(t, done)
	assert.Contains(t, buf.String(), "state: Locked")

	buf.Reset()
	done, err = encode(&buf, "table", report)
	require.NoError(t, err)
	assert.False(t, done)
	assert.Empty(t, buf.String())
}

func TestAccessReportRender(t *testing.T) {
	report := newAccessReport("kid", "Active", 3725, 1772463600, "", 0)

	assert.Equal(t, "1h2m5s", report.Remaining)
	out := report.render()
	assert.Contains(t, out, "1h 2m")
	assert.Contains(t, out, "Window ends")
	assert.NotContains(t, out, "Next window")
}

func TestRenderEvents(t *testing.T) {
	wall := time.Date(2026, 3, 2, 19, 2, 0, 0, time.Local)
	events := []audit.Event{
		audit.New(audit.SessionLock, "kid", wall, time.Minute, "boot-1", "reason", "outside_window", "account", "kid"),
	}

	out := renderEvents(events)
	assert.Contains(t, out, "2026-03-02 19:02:00")
	assert.Contains(t, out, "account=kid reason=outside_window")
}
