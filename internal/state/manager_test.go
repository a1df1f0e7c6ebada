package state

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/SoarinFerret/TimeWarden/internal/audit"
	"github.com/SoarinFerret/TimeWarden/internal/clock"
	"github.com/SoarinFerret/TimeWarden/internal/eval"
	"github.com/SoarinFerret/TimeWarden/internal/profile"
	"github.com/SoarinFerret/TimeWarden/internal/session"
	"github.com/SoarinFerret/TimeWarden/internal/store"
	"github.com/SoarinFerret/TimeWarden/internal/store/memory"
)

func TestLoginInsideWindowIsActive(t *testing.T) {
	f := newFixture(t, clock.Fake(monday(7, 30), 10*time.Hour), memory.New())
	f.sync(schoolDay(t))
	f.login()

	a := f.check()
	assert.Equal(t, session.Active, a.State)
	assert.Equal(t, monday(8, 0), a.WindowEnd)
	assert.Equal(t, 30*time.Minute, a.Remaining)
	assert.Empty(t, f.rec.Locks())
}

func TestLoginOutsideWindowIsLocked(t *testing.T) {
	f := newFixture(t, clock.Fake(monday(10, 0), 10*time.Hour), memory.New())
	f.sync(schoolDay(t))
	f.login()

	a := f.check()
	assert.Equal(t, session.Locked, a.State)
	assert.Equal(t, eval.ReasonOutsideWindow, a.Reason)
	assert.Equal(t, monday(15, 0), a.NextWindow)
	assert.Equal(t, time.Duration(0), a.Remaining)
	assert.Equal(t, "Computer access is restricted to: 06:00-08:00, 15:00-19:00", a.Message)

	assert.Contains(t, f.rec.Signals(), "SessionLocked kid "+eval.ReasonOutsideWindow)
	assert.Contains(t, f.rec.Locks(), kidSession)
	assert.Contains(t, f.auditKinds(), audit.SessionLock)
}

func TestNoWindowsMeansLocked(t *testing.T) {
	f := newFixture(t, clock.Fake(monday(12, 0), 10*time.Hour), memory.New())
	f.sync(kidProfile(t))
	f.login()

	a := f.check()
	assert.Equal(t, session.Locked, a.State)
	assert.Equal(t, eval.ReasonNoWindows, a.Reason)
	assert.Equal(t, "No time windows configured for today", a.Message)
}

func TestCheckAccessBeforeLogin(t *testing.T) {
	f := newFixture(t, clock.Fake(monday(12, 0), 10*time.Hour), memory.New())
	f.sync(kidProfile(t))
	assert.Equal(t, session.Locked, f.m.Status()[0].State, "published state after load")

	a := f.check()
	assert.Equal(t, session.Locked, a.State)
	assert.Equal(t, eval.ReasonNoWindows, a.Reason)
	assert.Equal(t, time.Duration(0), a.Remaining)
	assert.Contains(t, f.auditKinds(), audit.SessionLock)
}

func TestAbsentSessionLocksAtWindowEnd(t *testing.T) {
	clk := clock.Fake(monday(18, 58), 10*time.Hour)
	f := newFixture(t, clk, memory.New())
	f.sync(schoolDay(t))

	clk.Advance(2 * time.Minute)
	a := f.check()
	assert.Equal(t, session.Locked, a.State, "no grace without a graphical session")
	assert.Equal(t, eval.ReasonOutsideWindow, a.Reason)
}

func TestWarningGraceAndLock(t *testing.T) {
	clk := clock.Fake(monday(18, 50), 10*time.Hour)
	f := newFixture(t, clk, memory.New())
	f.sync(schoolDay(t))
	f.login()

	clk.Advance(4 * time.Minute)
	assert.Equal(t, session.Active, f.check().State, "18:54")

	clk.Advance(time.Minute)
	a := f.check()
	assert.Equal(t, session.WarningPending, a.State, "18:55")
	assert.Equal(t, 5*time.Minute, a.Remaining)
	assert.Equal(t, []string{"WarningIssued kid 300"}, f.rec.Signals())

	clk.Advance(5 * time.Minute)
	a = f.check()
	assert.Equal(t, session.GracePeriod, a.State, "19:00")
	assert.Equal(t, 2*time.Minute, a.Remaining)
	assert.Empty(t, f.rec.Locks())

	clk.Advance(time.Minute)
	assert.Equal(t, session.GracePeriod, f.check().State, "19:01")

	clk.Advance(time.Minute)
	a = f.check()
	assert.Equal(t, session.Locked, a.State, "19:02")
	assert.Equal(t, eval.ReasonOutsideWindow, a.Reason)
	assert.Contains(t, f.rec.Signals(), "SessionLocked kid "+eval.ReasonOutsideWindow)
	assert.Equal(t, []string{kidSession}, f.rec.Locks())
}

func TestUserUnlockIsReverted(t *testing.T) {
	f := newFixture(t, clock.Fake(monday(10, 0), 10*time.Hour), memory.New())
	f.sync(schoolDay(t))
	f.login()
	locks := len(f.rec.Locks())
	require.NotZero(t, locks)

	f.m.HandleUnlock("kid", kidSession)
	f.settle()
	assert.Len(t, f.rec.Locks(), locks+1)
}

func TestHeartbeatLossLocksAndKeepsCharging(t *testing.T) {
	clk := clock.Fake(monday(15, 0), 10*time.Hour)
	f := newFixture(t, clk, memory.New(), withHeartbeatTimeout(30*time.Second))
	p := schoolDay(t)
	p.DailyBudget = 2 * time.Hour
	f.sync(p)
	f.login()

	ctx := context.Background()
	clk.Advance(20 * time.Second)
	require.NoError(t, f.m.ReportHeartbeat(ctx, "kid", clk.Now()))
	assert.Equal(t, session.Active, f.check().State)

	// The agent is killed.
	clk.Advance(40 * time.Second)
	a := f.check()
	assert.Equal(t, session.Locked, a.State)
	assert.Equal(t, session.ReasonHeartbeatLost, a.Reason)
	assert.Equal(t, time.Minute, a.Used, "silence is charged as usage")
	assert.Contains(t, f.auditKinds(), audit.HeartbeatLost)
	assert.Contains(t, f.auditKinds(), audit.CollectorUnavailable)

	clk.Advance(time.Minute)
	require.NoError(t, f.m.ReportHeartbeat(ctx, "kid", clk.Now()))
	f.settle()
	a = f.check()
	assert.Equal(t, session.Active, a.State)
	assert.Equal(t, time.Minute, a.Used, "locked time is not charged")
}

func TestBudgetExhaustion(t *testing.T) {
	clk := clock.Fake(monday(15, 0), 10*time.Hour)
	f := newFixture(t, clk, memory.New())
	p := schoolDay(t)
	p.DailyBudget = 30 * time.Minute
	f.sync(p)
	f.login()

	a := f.check()
	assert.Equal(t, 30*time.Minute, a.Remaining)
	assert.Equal(t, 30*time.Minute, a.Budget)

	clk.Advance(26 * time.Minute)
	a = f.check()
	assert.Equal(t, session.WarningPending, a.State)
	assert.Equal(t, 4*time.Minute, a.Remaining)

	clk.Advance(4 * time.Minute)
	assert.Equal(t, session.GracePeriod, f.check().State)
	clk.Advance(2 * time.Minute)
	a = f.check()
	assert.Equal(t, session.Locked, a.State)
	assert.Equal(t, session.ReasonBudgetExhausted, a.Reason)
	assert.Empty(t, a.Message)
}

func TestClockRollbackLocks(t *testing.T) {
	clk := clock.Fake(monday(7, 0), 10*time.Hour)
	f := newFixture(t, clk, memory.New())
	f.sync(schoolDay(t))
	f.login()
	require.Equal(t, session.Active, f.check().State)

	clk.Advance(10 * time.Minute)
	clk.SetWall(monday(6, 30))
	a := f.check()
	assert.Equal(t, session.Locked, a.State)
	assert.Equal(t, session.ReasonClockRollback, a.Reason)
	assert.Contains(t, f.auditKinds(), audit.ClockJumpDetected)

	// Still inside a window, but held until the clock is put right.
	clk.Advance(time.Minute)
	assert.Equal(t, session.Locked, f.check().State)

	clk.SetWall(monday(7, 12))
	f.check()
	assert.Equal(t, session.Active, f.check().State)
}

func TestReportActivity(t *testing.T) {
	clk := clock.Fake(monday(7, 0), 10*time.Hour)
	f := newFixture(t, clk, memory.New())
	p := schoolDay(t)
	p.Applications = profile.Rules{Blocked: []string{"steam"}}
	f.sync(p)
	f.login()
	ctx := context.Background()

	d, err := f.m.ReportActivity(ctx, "kid", eval.Activity{Kind: eval.KindApplication, ID: "firefox"}, clk.Now())
	require.NoError(t, err)
	assert.True(t, d.Allow)

	d, err = f.m.ReportActivity(ctx, "kid", eval.Activity{Kind: eval.KindApplication, ID: "steam"}, clk.Now())
	require.NoError(t, err)
	assert.False(t, d.Allow)
	f.settle()
	assert.Contains(t, f.auditKinds(), audit.PolicyViolation)

	clk.Advance(2 * time.Hour)
	f.check()
	d, err = f.m.ReportActivity(ctx, "kid", eval.Activity{Kind: eval.KindApplication, ID: "firefox"}, clk.Now())
	require.NoError(t, err)
	assert.False(t, d.Allow, "nothing is allowed while locked")

	_, err = f.m.ReportActivity(ctx, "nobody", eval.Activity{Kind: eval.KindApplication, ID: "firefox"}, clk.Now())
	assert.ErrorIs(t, err, store.ErrProfileNotFound)
}

func TestUnknownProfile(t *testing.T) {
	f := newFixture(t, clock.Fake(monday(7, 0), 10*time.Hour), memory.New())
	f.sync(schoolDay(t))
	ctx := context.Background()

	_, err := f.m.CheckAccess(ctx, "nobody")
	assert.ErrorIs(t, err, store.ErrProfileNotFound)
	assert.ErrorIs(t, f.m.ReportHeartbeat(ctx, "nobody", time.Now()), store.ErrProfileNotFound)
	_, err = f.m.ListAudit(ctx, "nobody", 10)
	assert.ErrorIs(t, err, store.ErrProfileNotFound)
}

func TestLogoutStopsCharging(t *testing.T) {
	clk := clock.Fake(monday(15, 0), 10*time.Hour)
	f := newFixture(t, clk, memory.New())
	p := schoolDay(t)
	p.DailyBudget = 2 * time.Hour
	f.sync(p)
	f.login()

	clk.Advance(10 * time.Minute)
	f.m.HandleLogout(kidSession)
	f.settle()
	clk.Advance(time.Hour)

	a := f.check()
	assert.Equal(t, 10*time.Minute, a.Used)
	assert.False(t, f.m.Status()[0].Present)
}

func TestSuspendStopsCharging(t *testing.T) {
	clk := clock.Fake(monday(15, 0), 10*time.Hour)
	f := newFixture(t, clk, memory.New())
	p := schoolDay(t)
	p.DailyBudget = 2 * time.Hour
	f.sync(p)
	f.login()

	clk.Advance(10 * time.Minute)
	f.m.HandleSleep()
	f.settle()
	clk.Advance(time.Hour)
	f.m.HandleWake()
	f.settle()
	clk.Advance(5 * time.Minute)

	assert.Equal(t, 15*time.Minute, f.check().Used)
}

func TestSyncProfilesAddsAndRemoves(t *testing.T) {
	clk := clock.Fake(monday(7, 0), 10*time.Hour)
	f := newFixture(t, clk, memory.New())

	// The account logged in before it had a profile.
	f.m.HandleLogin("kid", kidSession)
	f.sync(schoolDay(t))
	require.Len(t, f.m.Status(), 1)
	assert.True(t, f.m.Status()[0].Present)

	changed := schoolDay(t)
	changed.DailyBudget = 10 * time.Minute
	f.sync(changed)
	assert.Equal(t, 10*time.Minute, f.check().Budget)

	f.sync()
	assert.Empty(t, f.m.Status())
	_, err := f.m.CheckAccess(context.Background(), "kid")
	assert.ErrorIs(t, err, store.ErrProfileNotFound)
}

func TestSyncProfilesRejectsInvalid(t *testing.T) {
	f := newFixture(t, clock.Fake(monday(7, 0), 10*time.Hour), memory.New())
	err := f.m.SyncProfiles(context.Background(), []profile.Profile{{ID: "broken"}})
	assert.ErrorIs(t, err, profile.ErrInvalidProfile)
	assert.Empty(t, f.m.Status())
}

func TestSyncPresenceLogsOutVanishedSessions(t *testing.T) {
	clk := clock.Fake(monday(15, 0), 10*time.Hour)
	f := newFixture(t, clk, memory.New())
	f.sync(schoolDay(t))
	f.login()

	f.m.SyncPresence(map[string]string{"/org/freedesktop/login1/session/c1": "gdm"})
	f.settle()
	assert.False(t, f.m.Status()[0].Present)

	f.m.SyncPresence(map[string]string{kidSession: "kid"})
	f.settle()
	assert.True(t, f.m.Status()[0].Present)
}

func TestRunTicks(t *testing.T) {
	clk := clock.Fake(monday(18, 50), 10*time.Hour)
	f := newFixture(t, clk, memory.New())
	f.sync(schoolDay(t))
	f.login()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- f.m.Run(ctx) }()
	require.Eventually(t, func() bool { return clk.Waiters() >= 1 }, time.Second, time.Millisecond)

	clk.Advance(5 * time.Minute)
	assert.Eventually(t, func() bool {
		return f.m.Status()[0].State == session.WarningPending
	}, time.Second, time.Millisecond)

	cancel()
	require.NoError(t, <-done)
	assert.Empty(t, f.m.Status())
}
