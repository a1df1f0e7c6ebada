package state

import (
	"context"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/SoarinFerret/TimeWarden/internal/actuator"
	"github.com/SoarinFerret/TimeWarden/internal/clockguard"
	"github.com/SoarinFerret/TimeWarden/internal/eval"
	"github.com/SoarinFerret/TimeWarden/internal/profile"
	"github.com/SoarinFerret/TimeWarden/internal/session"
)

const actuateTimeout = 10 * time.Second

// cell owns the session of one profile. Every field below the mailboxes is
// only touched from the ops goroutine; status is the published copy other
// goroutines read.
type cell struct {
	m *Manager

	ops      *mailbox
	fx       *mailbox
	stop     chan struct{}
	opsDone  chan struct{}
	fxStop   chan struct{}
	fxDone   chan struct{}
	stopOnce sync.Once

	tickPending atomic.Bool
	status      atomic.Pointer[session.Session]

	profile   profile.Profile
	sess      *session.Session
	guard     *clockguard.Guard
	paths     []string
	scheduled string
}

func newCell(m *Manager, p profile.Profile, s *session.Session, g *clockguard.Guard) *cell {
	c := &cell{
		m:       m,
		ops:     newMailbox(),
		fx:      newMailbox(),
		stop:    make(chan struct{}),
		opsDone: make(chan struct{}),
		fxStop:  make(chan struct{}),
		fxDone:  make(chan struct{}),
		profile: p,
		sess:    s,
		guard:   g,
	}
	snap := s.Clone()
	c.status.Store(&snap)
	return c
}

func (c *cell) start() {
	go func() {
		defer close(c.opsDone)
		c.ops.run(c.stop, false)
	}()
	go func() {
		defer close(c.fxDone)
		c.fx.run(c.fxStop, true)
	}()
}

// close stops the cell. Effects already handed to the actuator are still
// carried out.
func (c *cell) close() {
	c.stopOnce.Do(func() {
		close(c.stop)
		<-c.opsDone
		close(c.fxStop)
		<-c.fxDone
	})
}

func (c *cell) post(fn func()) { c.ops.post(fn) }

// postTick queues an evaluation unless one is already waiting.
func (c *cell) postTick() {
	if c.tickPending.CompareAndSwap(false, true) {
		c.ops.post(func() {
			c.tickPending.Store(false)
			c.step(nil)
		})
	}
}

// call runs fn on the cell goroutine and waits for it.
func (c *cell) call(ctx context.Context, fn func()) error {
	done := make(chan struct{})
	c.ops.post(func() {
		fn()
		close(done)
	})
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-c.opsDone:
		select {
		case <-done:
			return nil
		default:
			return ErrStopped
		}
	}
}

func (c *cell) snapshot() session.Session {
	return *c.status.Load()
}

// input reads both clocks and everything else an evaluation depends on.
// Each call advances the clock guard.
func (c *cell) input() session.Input {
	wall := c.m.clock.Now()
	mono := c.m.clock.Monotonic()
	r := c.guard.Observe(clockguard.Observation{Wall: wall, Mono: mono})

	id := c.profile.ID
	return session.Input{
		Wall:             wall,
		Mono:             mono,
		Boot:             c.m.boot,
		Decision:         eval.LookupWindow(c.profile, wall),
		Budget:           c.profile.DailyBudget,
		HeartbeatStale:   !c.sess.Suspended && c.m.tracker.IsStale(id, mono),
		HeartbeatSilence: c.m.tracker.Silence(id, mono),
		Jump:             r.Jump,
		Zone:             r.Zone,
	}
}

// step evaluates the session at the current instant, then applies op. The
// evaluation consumes the clock observation, so op sees no jump.
func (c *cell) step(op func(s *session.Session, in session.Input) []session.Effect) session.Input {
	in := c.input()
	effects := c.sess.Evaluate(in, c.m.policy)
	if op != nil {
		in.Jump, in.Zone = nil, nil
		effects = append(effects, op(c.sess, in)...)
	}
	c.commit(in, effects)
	return in
}

// first runs the evaluation of a freshly loaded session before the cell is
// shared, so its published state is never the unevaluated default. j is a
// jump detected across a reboot.
func (c *cell) first(j *clockguard.Jump) {
	in := c.input()
	if in.Jump == nil {
		in.Jump = j
	}
	c.commit(in, c.sess.Evaluate(in, c.m.policy))
}

// commit hands effects to the actuator, queues the snapshot for the store
// and publishes it.
func (c *cell) commit(in session.Input, effects []session.Effect) {
	c.emit(effects)
	if mono, wall, ok := c.m.tracker.Last(c.profile.ID); ok {
		c.sess.LastHeartbeatMono = mono
		c.sess.LastHeartbeatWall = wall
	}
	snap := c.sess.Clone()
	c.m.persister.PersistSession(snap)
	c.status.Store(&snap)
	c.schedule(in)
}

func (c *cell) emit(effects []session.Effect) {
	if len(effects) == 0 {
		return
	}
	t := c.target()
	c.fx.post(func() {
		ctx, cancel := context.WithTimeout(context.Background(), actuateTimeout)
		defer cancel()
		c.m.actuator.Apply(ctx, t, effects)
	})
}

func (c *cell) target() actuator.Target {
	return actuator.Target{
		ProfileID: c.profile.ID,
		Account:   c.profile.Account,
		Sessions:  slices.Clone(c.paths),
	}
}

// schedule arranges an evaluation at the moment a newly granted override
// runs out. The tick loop covers everything else.
func (c *cell) schedule(in session.Input) {
	o := c.sess.Override
	if c.sess.State != session.OverrideActive || o == nil || o.ID == c.scheduled {
		return
	}
	c.scheduled = o.ID
	after := c.m.clock.After(o.Remaining(in.Wall, in.Mono, in.Boot))
	go func() {
		select {
		case <-after:
			c.postTick()
		case <-c.stop:
		}
	}()
}

func (c *cell) addPath(path string) {
	if !slices.Contains(c.paths, path) {
		c.paths = append(c.paths, path)
	}
}

func (c *cell) removePath(path string) {
	c.paths = slices.DeleteFunc(c.paths, func(p string) bool { return p == path })
}
