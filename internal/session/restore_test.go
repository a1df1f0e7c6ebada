package session

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRestoreSameBootChargesDowntime(t *testing.T) {
	h := newHarness(t, "weekday 06:00-22:00")
	h.at(10, 0)
	s, _ := h.login()
	h.at(10, 30)
	s.Evaluate(h.in(), h.pol)
	snapshot := s.Clone()

	h.at(10, 45)
	in := h.in()
	snapshot.Restore(in)

	assert.Equal(t, 45*time.Minute, snapshot.Used)
	assert.Equal(t, in.Mono, snapshot.LastMono)
	assert.True(t, snapshot.Present)
}

func TestRestoreLockedDoesNotCharge(t *testing.T) {
	h := newHarness(t, "weekday 15:00-19:00")
	h.at(10, 0)
	s, _ := h.login()
	snapshot := s.Clone()

	h.at(11, 0)
	snapshot.Restore(h.in())
	assert.Zero(t, snapshot.Used)
}

func TestRestoreAfterRebootRebasesReferences(t *testing.T) {
	h := newHarness(t, "weekday 06:00-22:00")
	h.at(10, 0)
	s, _ := h.login()
	h.at(10, 30)
	s.Evaluate(h.in(), h.pol)
	in := h.in()
	s.Grant(Override{ID: "ovr", GrantedAt: in.Wall, GrantedMono: in.Mono, BootID: in.Boot, Duration: time.Hour}, in)
	snapshot := s.Clone()
	anchorAge := snapshot.LastMono - snapshot.DayAnchor

	// The machine was off for an hour; the new boot's clock starts low.
	h.wall = h.wall.Add(time.Hour)
	after := Input{Wall: h.wall, Mono: 2 * time.Minute, Boot: "boot-2"}
	snapshot.Restore(after)

	assert.Equal(t, 30*time.Minute, snapshot.Used, "usage is never reduced")
	assert.False(t, snapshot.Present)
	assert.Equal(t, "boot-2", snapshot.BootID)
	assert.Equal(t, anchorAge, after.Mono-snapshot.DayAnchor, "downtime does not age the budget day")
	assert.Equal(t, "boot-2", snapshot.Override.BootID)
	// The wall estimate already counts the downtime against the override.
	assert.Equal(t, time.Duration(0), snapshot.Override.Remaining(after.Wall, after.Mono, after.Boot))
}

func TestCloneIsDeep(t *testing.T) {
	h := newHarness(t, "weekday 06:00-22:00")
	h.at(10, 0)
	s, _ := h.login()
	s.Latch = &Latch{Mono: time.Minute}

	c := s.Clone()
	c.Window.Label = "changed"
	c.Latch.Mono = time.Hour

	assert.NotEqual(t, "changed", s.Window.Label)
	assert.Equal(t, time.Minute, s.Latch.Mono)
}
