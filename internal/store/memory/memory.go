package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/SoarinFerret/TimeWarden/internal/audit"
	"github.com/SoarinFerret/TimeWarden/internal/profile"
	"github.com/SoarinFerret/TimeWarden/internal/session"
	"github.com/SoarinFerret/TimeWarden/internal/store"
)

// Store keeps everything in process memory.
type Store struct {
	mu       sync.RWMutex
	profiles map[string]profile.Profile
	sessions map[string]session.Session
	events   []audit.Event
}

var _ store.Store = (*Store)(nil)

func New() *Store {
	return &Store{
		profiles: make(map[string]profile.Profile),
		sessions: make(map[string]session.Session),
	}
}

func (s *Store) GetProfile(_ context.Context, id string) (profile.Profile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.profiles[id]
	if !ok {
		return profile.Profile{}, fmt.Errorf("%w: %s", store.ErrProfileNotFound, id)
	}
	return p, nil
}

func (s *Store) PutProfile(_ context.Context, p profile.Profile) error {
	if err := p.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for id, other := range s.profiles {
		if id != p.ID && other.Account == p.Account {
			return fmt.Errorf("%w: account %s already belongs to profile %s", profile.ErrInvalidProfile, p.Account, id)
		}
	}
	s.profiles[p.ID] = p
	return nil
}

func (s *Store) ListProfiles(_ context.Context) ([]profile.Profile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]profile.Profile, 0, len(s.profiles))
	for _, p := range s.profiles {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *Store) GetOrCreateSession(_ context.Context, profileID string, now session.Input) (session.Session, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if _, ok := s.profiles[profileID]; !ok {
		return session.Session{}, false, fmt.Errorf("%w: %s", store.ErrProfileNotFound, profileID)
	}
	if sess, ok := s.sessions[profileID]; ok {
		return sess.Clone(), false, nil
	}
	return *session.New(profileID, now), true, nil
}

func (s *Store) PersistSession(_ context.Context, sess session.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.profiles[sess.ProfileID]; !ok {
		return fmt.Errorf("%w: %s", store.ErrProfileNotFound, sess.ProfileID)
	}
	s.sessions[sess.ProfileID] = sess.Clone()
	return nil
}

func (s *Store) AppendAudit(_ context.Context, e audit.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	e.Payload = clonePayload(e.Payload)
	s.events = append(s.events, e)
	return nil
}

func (s *Store) ListAudit(_ context.Context, profileID string, limit int) ([]audit.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []audit.Event
	for _, e := range s.events {
		if profileID == "" || e.ProfileID == profileID {
			e.Payload = clonePayload(e.Payload)
			out = append(out, e)
		}
	}
	if limit > 0 && len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out, nil
}

func clonePayload(m map[string]string) map[string]string {
	if m == nil {
		return nil
	}
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
