package state

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/SoarinFerret/TimeWarden/internal/actuator"
	"github.com/SoarinFerret/TimeWarden/internal/audit"
	"github.com/SoarinFerret/TimeWarden/internal/auth"
	"github.com/SoarinFerret/TimeWarden/internal/clock"
	"github.com/SoarinFerret/TimeWarden/internal/heartbeat"
	"github.com/SoarinFerret/TimeWarden/internal/profile"
	"github.com/SoarinFerret/TimeWarden/internal/session"
	"github.com/SoarinFerret/TimeWarden/internal/store"
	"github.com/SoarinFerret/TimeWarden/internal/store/memory"
)

const kidSession = "/org/freedesktop/login1/session/_35"

var (
	hashOnce  sync.Once
	adminHash string
)

// recorder stands in for logind, the notification daemon and the D-Bus
// signal emitter.
type recorder struct {
	mu      sync.Mutex
	signals []string
	locks   []string
}

func (r *recorder) LockSession(_ context.Context, path string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.locks = append(r.locks, path)
	return nil
}

func (r *recorder) UnlockSession(context.Context, string) error { return nil }

func (r *recorder) Notify(context.Context, string, actuator.Notification) error { return nil }

func (r *recorder) WarningIssued(profileID string, seconds int64) error {
	r.add(fmt.Sprintf("WarningIssued %s %d", profileID, seconds))
	return nil
}

func (r *recorder) SessionLocked(profileID, reason string) error {
	r.add(fmt.Sprintf("SessionLocked %s %s", profileID, reason))
	return nil
}

func (r *recorder) SessionUnlocked(profileID string) error {
	r.add("SessionUnlocked " + profileID)
	return nil
}

func (r *recorder) add(s string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.signals = append(r.signals, s)
}

func (r *recorder) Signals() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Clone(r.signals)
}

func (r *recorder) Locks() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Clone(r.locks)
}

type fixture struct {
	t       *testing.T
	clk     *clock.FakeClock
	store   *memory.Store
	writer  *store.Writer
	rec     *recorder
	tracker *heartbeat.Tracker
	m       *Manager
}

type fixtureOption func(*Options)

func withHeartbeatTimeout(d time.Duration) fixtureOption {
	return func(o *Options) { o.Tracker = heartbeat.NewTracker(d) }
}

func withBoot(boot string) fixtureOption {
	return func(o *Options) { o.BootID = boot }
}

// monday returns a wall time on Monday 2026-03-02.
func monday(hour, minute int) time.Time {
	return time.Date(2026, 3, 2, hour, minute, 0, 0, time.Local)
}

func kidProfile(t *testing.T, windows ...string) profile.Profile {
	t.Helper()
	p := profile.Profile{ID: "kid", Account: "kid", DailyBudget: profile.BudgetUnlimited}
	for _, text := range windows {
		var w profile.TimeWindow
		require.NoError(t, w.UnmarshalText([]byte(text)))
		p.Windows = append(p.Windows, w)
	}
	return p
}

func schoolDay(t *testing.T) profile.Profile {
	return kidProfile(t, "weekday 06:00-08:00", "weekday 15:00-19:00")
}

func newFixture(t *testing.T, clk *clock.FakeClock, st *memory.Store, opts ...fixtureOption) *fixture {
	t.Helper()
	hashOnce.Do(func() {
		h, err := auth.HashPassword("secret")
		require.NoError(t, err)
		adminHash = h
	})

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	rec := &recorder{}
	writer := store.NewWriter(st, clk, logger)

	o := Options{
		Store:     st,
		Persister: writer,
		Actuator:  actuator.New(rec, rec, rec, writer, logger, true),
		Auth:      auth.NewAuthenticator([]auth.Admin{{Name: "admin", PasswordHash: adminHash}}, clk, 5, 5),
		Tracker:   heartbeat.NewTracker(12 * time.Hour),
		Clock:     clk,
		Logger:    logger,
		Policy:    session.DefaultPolicy(),
		BootID:    "boot-1",
	}
	for _, opt := range opts {
		opt(&o)
	}

	f := &fixture{t: t, clk: clk, store: st, writer: writer, rec: rec, tracker: o.Tracker, m: New(o)}
	t.Cleanup(f.m.stop)
	return f
}

func (f *fixture) sync(profiles ...profile.Profile) {
	f.t.Helper()
	require.NoError(f.t, f.m.SyncProfiles(context.Background(), profiles))
	f.settle()
}

// settle waits until every cell has processed its queued work and the
// resulting effects have been carried out.
func (f *fixture) settle() {
	f.t.Helper()
	for _, c := range f.m.allCells() {
		require.NoError(f.t, c.call(context.Background(), func() {}))
		done := make(chan struct{})
		c.fx.post(func() { close(done) })
		<-done
	}
}

func (f *fixture) login() {
	f.m.HandleLogin("kid", kidSession)
	f.settle()
}

func (f *fixture) check() Access {
	f.t.Helper()
	a, err := f.m.CheckAccess(context.Background(), "kid")
	require.NoError(f.t, err)
	f.settle()
	return a
}

func (f *fixture) auditKinds() []audit.Kind {
	f.t.Helper()
	events, err := f.writer.ListAudit(context.Background(), "kid", 0)
	require.NoError(f.t, err)
	kinds := make([]audit.Kind, len(events))
	for i, e := range events {
		kinds[i] = e.Kind
	}
	return kinds
}
