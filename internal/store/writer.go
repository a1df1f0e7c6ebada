package store

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/SoarinFerret/TimeWarden/internal/audit"
	"github.com/SoarinFerret/TimeWarden/internal/clock"
	"github.com/SoarinFerret/TimeWarden/internal/session"
)

const shutdownFlushTimeout = 5 * time.Second

// Writer queues session snapshots and audit events for a Store and writes
// them from its own goroutine. Snapshots are coalesced per profile, latest
// wins; audit events are written in the order they were queued. Failed
// writes are retried with exponential backoff and nothing is dropped.
type Writer struct {
	store  Store
	clock  clock.Clock
	logger *slog.Logger

	mu       sync.Mutex
	sessions map[string]session.Session
	events   []audit.Event
	wake     chan struct{}
}

func NewWriter(st Store, clk clock.Clock, logger *slog.Logger) *Writer {
	return &Writer{
		store:    st,
		clock:    clk,
		logger:   logger,
		sessions: make(map[string]session.Session),
		wake:     make(chan struct{}, 1),
	}
}

func (w *Writer) PersistSession(s session.Session) {
	w.mu.Lock()
	w.sessions[s.ProfileID] = s.Clone()
	w.mu.Unlock()
	w.signal()
}

func (w *Writer) AppendAudit(e audit.Event) {
	w.mu.Lock()
	w.events = append(w.events, e)
	w.mu.Unlock()
	w.signal()
}

// Pending returns the number of queued writes.
func (w *Writer) Pending() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.sessions) + len(w.events)
}

// ListAudit lists stored events followed by those still queued.
func (w *Writer) ListAudit(ctx context.Context, profileID string, limit int) ([]audit.Event, error) {
	w.mu.Lock()
	var queued []audit.Event
	for _, e := range w.events {
		if profileID == "" || e.ProfileID == profileID {
			queued = append(queued, e)
		}
	}
	w.mu.Unlock()

	stored, err := w.store.ListAudit(ctx, profileID, limit)
	if err != nil {
		return nil, err
	}
	out := append(stored, queued...)
	if limit > 0 && len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out, nil
}

func (w *Writer) signal() {
	select {
	case w.wake <- struct{}{}:
	default:
	}
}

// Run writes queued items until ctx is cancelled, then makes one last
// attempt to drain the queue.
func (w *Writer) Run(ctx context.Context) {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 500 * time.Millisecond
	b.MaxInterval = 30 * time.Second

	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), shutdownFlushTimeout)
		defer cancel()
		if err := w.Flush(flushCtx); err != nil {
			w.logger.Error("Persisting state on shutdown failed", "pending", w.Pending(), "error", err)
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.wake:
		}

		for {
			err := w.Flush(ctx)
			if err == nil {
				b.Reset()
				break
			}
			if ctx.Err() != nil {
				return
			}
			delay := b.NextBackOff()
			w.logger.Warn("Persisting state failed, retrying",
				"pending", w.Pending(),
				"retry_in", delay,
				"error", err,
			)
			select {
			case <-ctx.Done():
				return
			case <-w.clock.After(delay):
			}
		}
	}
}

// Flush writes everything queued so far. On error the unwritten items stay
// queued.
func (w *Writer) Flush(ctx context.Context) error {
	w.mu.Lock()
	events := w.events
	w.events = nil
	sessions := w.sessions
	w.sessions = make(map[string]session.Session)
	w.mu.Unlock()

	for i, e := range events {
		if err := w.store.AppendAudit(ctx, e); err != nil {
			w.requeue(events[i:], sessions)
			return err
		}
	}
	for id, s := range sessions {
		if err := w.store.PersistSession(ctx, s); err != nil {
			w.requeue(nil, sessions)
			return err
		}
		delete(sessions, id)
	}
	return nil
}

// requeue puts unwritten items back in front of anything queued since they
// were taken. A snapshot queued in the meantime is newer and wins.
func (w *Writer) requeue(events []audit.Event, sessions map[string]session.Session) {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.events = append(append([]audit.Event(nil), events...), w.events...)
	for id, s := range sessions {
		if _, newer := w.sessions[id]; !newer {
			w.sessions[id] = s
		}
	}
}
