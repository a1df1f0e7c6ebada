package store_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/SoarinFerret/TimeWarden/internal/audit"
	"github.com/SoarinFerret/TimeWarden/internal/clock"
	"github.com/SoarinFerret/TimeWarden/internal/profile"
	"github.com/SoarinFerret/TimeWarden/internal/session"
	"github.com/SoarinFerret/TimeWarden/internal/store"
	"github.com/SoarinFerret/TimeWarden/internal/store/memory"
)

var errDiskFull = errors.New("disk full")

// flakyStore fails the next n writes.
type flakyStore struct {
	*memory.Store
	mu    sync.Mutex
	fails int
}

func (f *flakyStore) fail() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fails > 0 {
		f.fails--
		return errDiskFull
	}
	return nil
}

func (f *flakyStore) AppendAudit(ctx context.Context, e audit.Event) error {
	if err := f.fail(); err != nil {
		return err
	}
	return f.Store.AppendAudit(ctx, e)
}

func (f *flakyStore) PersistSession(ctx context.Context, s session.Session) error {
	if err := f.fail(); err != nil {
		return err
	}
	return f.Store.PersistSession(ctx, s)
}

func newFlaky(t *testing.T, fails int) *flakyStore {
	t.Helper()
	m := memory.New()
	require.NoError(t, m.PutProfile(context.Background(), profile.Profile{ID: "kid", Account: "kid"}))
	return &flakyStore{Store: m, fails: fails}
}

func discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func event(kind audit.Kind) audit.Event {
	return audit.New(kind, "kid", time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC), time.Hour, "boot")
}

func TestWriterFlushKeepsOrderAcrossFailures(t *testing.T) {
	st := newFlaky(t, 0)
	clk := clock.Fake(time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC), time.Hour)
	w := store.NewWriter(st, clk, discard())
	ctx := context.Background()

	w.AppendAudit(event(audit.SessionLock))
	w.AppendAudit(event(audit.SessionUnlock))
	st.fails = 1
	require.ErrorIs(t, w.Flush(ctx), errDiskFull)
	assert.Equal(t, 2, w.Pending())

	w.AppendAudit(event(audit.WarningIssued))
	require.NoError(t, w.Flush(ctx))
	assert.Zero(t, w.Pending())

	events, err := st.ListAudit(ctx, "kid", 0)
	require.NoError(t, err)
	require.Len(t, events, 3)
	assert.Equal(t, audit.SessionLock, events[0].Kind)
	assert.Equal(t, audit.SessionUnlock, events[1].Kind)
	assert.Equal(t, audit.WarningIssued, events[2].Kind)
}

func TestWriterCoalescesSnapshots(t *testing.T) {
	st := newFlaky(t, 0)
	clk := clock.Fake(time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC), time.Hour)
	w := store.NewWriter(st, clk, discard())
	ctx := context.Background()

	w.PersistSession(session.Session{ProfileID: "kid", State: session.Active, Used: time.Minute})
	w.PersistSession(session.Session{ProfileID: "kid", State: session.Locked, Used: 2 * time.Minute})
	assert.Equal(t, 1, w.Pending())

	require.NoError(t, w.Flush(ctx))
	got, created, err := st.GetOrCreateSession(ctx, "kid", session.Input{})
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, session.Locked, got.State)
	assert.Equal(t, 2*time.Minute, got.Used)
}

func TestWriterNewerSnapshotWinsOverRequeue(t *testing.T) {
	st := newFlaky(t, 1)
	clk := clock.Fake(time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC), time.Hour)
	w := store.NewWriter(st, clk, discard())
	ctx := context.Background()

	w.PersistSession(session.Session{ProfileID: "kid", State: session.Active})
	require.Error(t, w.Flush(ctx))

	w.PersistSession(session.Session{ProfileID: "kid", State: session.Locked})
	require.NoError(t, w.Flush(ctx))

	got, _, err := st.GetOrCreateSession(ctx, "kid", session.Input{})
	require.NoError(t, err)
	assert.Equal(t, session.Locked, got.State)
}

func TestWriterRunRetriesWithBackoff(t *testing.T) {
	st := newFlaky(t, 2)
	clk := clock.Fake(time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC), time.Hour)
	w := store.NewWriter(st, clk, discard())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		w.Run(ctx)
		close(done)
	}()

	w.AppendAudit(event(audit.SessionLock))
	for i := 0; i < 2; i++ {
		require.Eventually(t, func() bool { return clk.Waiters() == 1 }, time.Second, time.Millisecond)
		clk.Advance(time.Minute)
	}
	require.Eventually(t, func() bool { return w.Pending() == 0 }, time.Second, time.Millisecond)

	cancel()
	<-done

	events, err := st.ListAudit(context.Background(), "kid", 0)
	require.NoError(t, err)
	assert.Len(t, events, 1)
}

func TestWriterListAuditIncludesQueued(t *testing.T) {
	st := newFlaky(t, 0)
	clk := clock.Fake(time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC), time.Hour)
	w := store.NewWriter(st, clk, discard())
	ctx := context.Background()

	w.AppendAudit(event(audit.SessionLock))
	require.NoError(t, w.Flush(ctx))
	w.AppendAudit(event(audit.SessionUnlock))

	events, err := w.ListAudit(ctx, "kid", 0)
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, audit.SessionUnlock, events[1].Kind)

	events, err = w.ListAudit(ctx, "kid", 1)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, audit.SessionUnlock, events[0].Kind)
}
