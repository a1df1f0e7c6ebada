// Package store defines persistence for profiles, live sessions and the
// audit log. The memory and sqlite subpackages implement it; Writer sits in
// front of either and moves writes off the enforcement path.
package store

import (
	"context"
	"errors"

	"github.com/SoarinFerret/TimeWarden/internal/audit"
	"github.com/SoarinFerret/TimeWarden/internal/profile"
	"github.com/SoarinFerret/TimeWarden/internal/session"
)

var ErrProfileNotFound = errors.New("profile not found")

type ProfileStore interface {
	GetProfile(ctx context.Context, id string) (profile.Profile, error)
	// PutProfile validates p and inserts or replaces it.
	PutProfile(ctx context.Context, p profile.Profile) error
	ListProfiles(ctx context.Context) ([]profile.Profile, error)
}

type SessionStore interface {
	// GetOrCreateSession returns the stored session for a profile. If there
	// is none, a new one is built from now and created is true; it is not
	// stored until PersistSession.
	GetOrCreateSession(ctx context.Context, profileID string, now session.Input) (s session.Session, created bool, err error)
	PersistSession(ctx context.Context, s session.Session) error
}

// AuditStore is append-only. Events are never updated or removed.
type AuditStore interface {
	AppendAudit(ctx context.Context, e audit.Event) error
	// ListAudit returns up to limit of the most recent events for
	// profileID, oldest first. An empty profileID lists every profile;
	// limit <= 0 lists everything.
	ListAudit(ctx context.Context, profileID string, limit int) ([]audit.Event, error)
}

type Store interface {
	ProfileStore
	SessionStore
	AuditStore
}
