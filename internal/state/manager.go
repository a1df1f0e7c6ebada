// Package state runs enforcement for every configured profile. Each profile
// has a cell: a goroutine that owns the profile's session and serializes
// every mutation of it, from ticks, logind events and IPC calls alike.
package state

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"sort"
	"sync"
	"time"

	"github.com/SoarinFerret/TimeWarden/internal/actuator"
	"github.com/SoarinFerret/TimeWarden/internal/audit"
	"github.com/SoarinFerret/TimeWarden/internal/clock"
	"github.com/SoarinFerret/TimeWarden/internal/clockguard"
	"github.com/SoarinFerret/TimeWarden/internal/heartbeat"
	"github.com/SoarinFerret/TimeWarden/internal/profile"
	"github.com/SoarinFerret/TimeWarden/internal/session"
	"github.com/SoarinFerret/TimeWarden/internal/store"
)

const (
	DefaultTickInterval = 30 * time.Second
	DefaultMaxOverride  = 4 * time.Hour
)

var (
	ErrInvalidDuration = errors.New("invalid override duration")
	ErrStopped         = errors.New("enforcement stopped")
)

// Store is the synchronous part of persistence, used when profiles are
// (re)loaded.
type Store interface {
	PutProfile(ctx context.Context, p profile.Profile) error
	GetOrCreateSession(ctx context.Context, profileID string, now session.Input) (session.Session, bool, error)
}

// Persister takes snapshots and audit events off the enforcement path.
// store.Writer implements it.
type Persister interface {
	PersistSession(s session.Session)
	AppendAudit(e audit.Event)
	ListAudit(ctx context.Context, profileID string, limit int) ([]audit.Event, error)
}

type Actuator interface {
	Apply(ctx context.Context, t actuator.Target, effects []session.Effect)
}

type Authenticator interface {
	Verify(profileID, credential string) (string, error)
}

type Options struct {
	Store     Store
	Persister Persister
	Actuator  Actuator
	Auth      Authenticator
	Tracker   *heartbeat.Tracker
	Clock     clock.Clock
	Logger    *slog.Logger

	Policy       session.Policy
	TickInterval time.Duration
	MaxOverride  time.Duration
	// BootID identifies the current boot. Defaults to the kernel's.
	BootID string
}

type Manager struct {
	store       Store
	persister   Persister
	actuator    Actuator
	auth        Authenticator
	tracker     *heartbeat.Tracker
	clock       clock.Clock
	logger      *slog.Logger
	policy      session.Policy
	tick        time.Duration
	maxOverride time.Duration
	boot        string

	mu        sync.RWMutex
	cells     map[string]*cell
	byAccount map[string]string
	// logins maps every logind session path to its account, managed or not.
	logins map[string]string
}

func New(opts Options) *Manager {
	m := &Manager{
		store:       opts.Store,
		persister:   opts.Persister,
		actuator:    opts.Actuator,
		auth:        opts.Auth,
		tracker:     opts.Tracker,
		clock:       opts.Clock,
		logger:      opts.Logger,
		policy:      opts.Policy,
		tick:        opts.TickInterval,
		maxOverride: opts.MaxOverride,
		boot:        opts.BootID,
		cells:       make(map[string]*cell),
		byAccount:   make(map[string]string),
		logins:      make(map[string]string),
	}
	if m.tracker == nil {
		m.tracker = heartbeat.NewTracker(heartbeat.DefaultTimeout)
	}
	if m.clock == nil {
		m.clock = clock.Real()
	}
	if m.logger == nil {
		m.logger = slog.Default()
	}
	if m.tick <= 0 {
		m.tick = DefaultTickInterval
	}
	if m.maxOverride <= 0 {
		m.maxOverride = DefaultMaxOverride
	}
	if m.boot == "" {
		m.boot = clock.BootID()
	}
	return m
}

func (m *Manager) cell(profileID string) (*cell, error) {
	m.mu.RLock()
	c := m.cells[profileID]
	m.mu.RUnlock()
	if c == nil {
		return nil, fmt.Errorf("%w: %s", store.ErrProfileNotFound, profileID)
	}
	return c, nil
}

func (m *Manager) cellForAccount(account string) *cell {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.cells[m.byAccount[account]]
}

func (m *Manager) allCells() []*cell {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*cell, 0, len(m.cells))
	for _, c := range m.cells {
		out = append(out, c)
	}
	return out
}

// pathsOf returns the known logind sessions of account. Caller holds mu.
func (m *Manager) pathsOf(account string) []string {
	var out []string
	for path, a := range m.logins {
		if a == account {
			out = append(out, path)
		}
	}
	sort.Strings(out)
	return out
}

// loadCell builds the cell for p from its stored session, restoring it to
// the current instant.
func (m *Manager) loadCell(ctx context.Context, p profile.Profile) (*cell, error) {
	now := session.Input{Wall: m.clock.Now(), Mono: m.clock.Monotonic(), Boot: m.boot}
	s, created, err := m.store.GetOrCreateSession(ctx, p.ID, now)
	if err != nil {
		return nil, err
	}

	g := clockguard.New(m.policy.Tolerance)
	var jump *clockguard.Jump
	if !created {
		last := clockguard.Observation{Wall: s.LastWall, Mono: s.LastMono}
		if s.BootID == m.boot && now.Mono >= s.LastMono {
			// Within one boot the last evaluation is still a valid
			// reference, so a clock set back while the daemon was down
			// is caught by the first evaluation.
			g.Prime(last)
		} else {
			jump = g.Reboot(last, clockguard.Observation{Wall: now.Wall, Mono: now.Mono}).Jump
		}
		s.Restore(now)
		m.logger.Info("Restored session", "profile", p.ID, "state", s.State, "used", s.Used.Round(time.Second))
	}
	m.tracker.Register(p.ID, s.LastHeartbeatMono)

	c := newCell(m, p, &s, g)
	c.first(jump)
	return c, nil
}

// SyncProfiles makes the enforced profile set equal to profiles: new ones
// are loaded, changed ones updated and missing ones stopped. A profile that
// fails to store keeps its previous configuration.
func (m *Manager) SyncProfiles(ctx context.Context, profiles []profile.Profile) error {
	var errs []error
	keep := make(map[string]profile.Profile, len(profiles))
	failed := make(map[string]bool)
	for _, p := range profiles {
		if err := m.store.PutProfile(ctx, p); err != nil {
			errs = append(errs, fmt.Errorf("profile %s: %w", p.ID, err))
			failed[p.ID] = true
			continue
		}
		keep[p.ID] = p
	}

	m.mu.RLock()
	existing := maps.Clone(m.cells)
	m.mu.RUnlock()

	added := make(map[string]*cell)
	for id, p := range keep {
		if existing[id] != nil {
			continue
		}
		c, err := m.loadCell(ctx, p)
		if err != nil {
			errs = append(errs, fmt.Errorf("profile %s: %w", id, err))
			delete(keep, id)
			continue
		}
		added[id] = c
	}

	removed := make(map[string]*cell)
	presence := make(map[string][]string)

	m.mu.Lock()
	byAccount := make(map[string]string)
	for account, id := range m.byAccount {
		if failed[id] {
			byAccount[account] = id
		}
	}
	for id, c := range m.cells {
		if _, ok := keep[id]; !ok && !failed[id] {
			removed[id] = c
			delete(m.cells, id)
		}
	}
	for id, p := range keep {
		byAccount[p.Account] = id
		presence[id] = m.pathsOf(p.Account)
	}
	for id, c := range added {
		m.cells[id] = c
	}
	m.byAccount = byAccount
	m.mu.Unlock()

	for id, c := range added {
		c.start()
		paths := presence[id]
		c.post(func() { c.sync(paths) })
		m.logger.Info("Enforcing profile", "profile", id, "account", c.profile.Account)
	}
	for id, p := range keep {
		if c := existing[id]; c != nil {
			c.post(func() {
				c.profile = p
				c.step(nil)
			})
		}
	}
	for id, c := range removed {
		c.close()
		m.tracker.Forget(id)
		m.logger.Info("Stopped enforcing profile", "profile", id)
	}
	return errors.Join(errs...)
}

// Run evaluates every session on each tick until ctx is done, then stops
// all cells.
func (m *Manager) Run(ctx context.Context) error {
	ticker := m.clock.NewTicker(m.tick)
	defer ticker.Stop()

	m.logger.Info("Enforcement loop started", "interval", m.tick)
	for {
		select {
		case <-ctx.Done():
			m.stop()
			m.logger.Info("Enforcement loop stopped")
			return nil
		case <-ticker.C:
			for _, c := range m.allCells() {
				c.postTick()
			}
		}
	}
}

func (m *Manager) stop() {
	m.mu.Lock()
	cells := m.cells
	m.cells = make(map[string]*cell)
	m.byAccount = make(map[string]string)
	m.mu.Unlock()

	var wg sync.WaitGroup
	for _, c := range cells {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c.close()
		}()
	}
	wg.Wait()
}

// Status returns the last published session of every profile, sorted by
// profile id.
func (m *Manager) Status() []session.Session {
	cells := m.allCells()
	out := make([]session.Session, 0, len(cells))
	for _, c := range cells {
		out = append(out, c.snapshot())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ProfileID < out[j].ProfileID })
	return out
}
