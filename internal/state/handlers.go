package state

import (
	"slices"

	"github.com/SoarinFerret/TimeWarden/internal/session"
)

// HandleLogin records a new logind session. Sessions of accounts without a
// profile are remembered so that a profile added later sees them.
func (m *Manager) HandleLogin(account, path string) {
	m.mu.Lock()
	m.logins[path] = account
	c := m.cells[m.byAccount[account]]
	m.mu.Unlock()

	if c == nil {
		m.logger.Debug("Login of unmanaged account", "account", account, "session", path)
		return
	}
	m.logger.Info("User logged in", "account", account, "session", path)
	c.post(func() { c.login(path) })
}

func (m *Manager) HandleLogout(path string) {
	m.mu.Lock()
	account, ok := m.logins[path]
	delete(m.logins, path)
	c := m.cells[m.byAccount[account]]
	m.mu.Unlock()

	if !ok || c == nil {
		return
	}
	m.logger.Info("User logged out", "account", account, "session", path)
	c.post(func() { c.logout(path) })
}

// HandleSleep stops usage accrual on every session until HandleWake.
func (m *Manager) HandleSleep() {
	m.logger.Info("System going to sleep")
	for _, c := range m.allCells() {
		c.post(func() {
			c.step(func(s *session.Session, in session.Input) []session.Effect {
				s.Suspend(in)
				return nil
			})
		})
	}
}

func (m *Manager) HandleWake() {
	m.logger.Info("System woke up")
	for _, c := range m.allCells() {
		c.post(c.resume)
	}
}

// HandleLock notes a screen lock initiated by the user or by us. Usage
// keeps accruing while the session is present; only enforcement locks stop
// it.
func (m *Manager) HandleLock(account, path string) {
	if c := m.cellForAccount(account); c != nil {
		m.logger.Debug("Session locked", "account", account, "session", path)
		c.postTick()
	}
}

// HandleUnlock re-evaluates the account. If enforcement holds the session
// locked, the evaluation locks it again.
func (m *Manager) HandleUnlock(account, path string) {
	if c := m.cellForAccount(account); c != nil {
		m.logger.Debug("Session unlocked", "account", account, "session", path)
		c.postTick()
	}
}

// SyncPresence replaces the known logind sessions, path to account, with a
// fresh enumeration. Sessions that ended while nobody was watching are
// logged out.
func (m *Manager) SyncPresence(logins map[string]string) {
	m.mu.Lock()
	m.logins = make(map[string]string, len(logins))
	for path, account := range logins {
		m.logins[path] = account
	}
	type pending struct {
		c     *cell
		paths []string
	}
	var work []pending
	for account, id := range m.byAccount {
		if c := m.cells[id]; c != nil {
			work = append(work, pending{c, m.pathsOf(account)})
		}
	}
	m.mu.Unlock()

	for _, w := range work {
		w.c.post(func() { w.c.sync(w.paths) })
	}
}

func (c *cell) login(path string) {
	c.addPath(path)
	c.m.tracker.SetPresent(c.profile.ID, true)
	if c.sess.Present && !c.sess.Suspended {
		c.step(nil)
		return
	}
	c.m.tracker.Touch(c.profile.ID, c.m.clock.Monotonic())
	c.step(func(s *session.Session, in session.Input) []session.Effect {
		return s.Login(in, c.m.policy)
	})
}

func (c *cell) logout(path string) {
	c.removePath(path)
	if len(c.paths) > 0 {
		c.step(nil)
		return
	}
	c.m.tracker.SetPresent(c.profile.ID, false)
	c.step(func(s *session.Session, in session.Input) []session.Effect {
		s.Logout(in)
		return nil
	})
}

func (c *cell) resume() {
	c.m.tracker.Touch(c.profile.ID, c.m.clock.Monotonic())
	c.step(func(s *session.Session, in session.Input) []session.Effect {
		s.Resume(in)
		return nil
	})
	c.postTick()
}

// sync sets the cell's logind sessions to paths, logging the account in
// or out as needed.
func (c *cell) sync(paths []string) {
	if len(paths) == 0 {
		c.paths = nil
		c.m.tracker.SetPresent(c.profile.ID, false)
		if !c.sess.Present {
			c.step(nil)
			return
		}
		c.step(func(s *session.Session, in session.Input) []session.Effect {
			s.Logout(in)
			return nil
		})
		return
	}
	c.paths = slices.Clone(paths[1:])
	c.login(paths[0])
}
