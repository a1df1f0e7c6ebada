package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/SoarinFerret/TimeWarden/internal/session"
)

func (s *Store) GetOrCreateSession(ctx context.Context, profileID string, now session.Input) (session.Session, bool, error) {
	var payload []byte
	err := s.db.QueryRowContext(ctx, `
SELECT payload FROM sessions WHERE profile_id = ?;
`, profileID).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		if err := profileExists(ctx, s.db, profileID); err != nil {
			return session.Session{}, false, err
		}
		return *session.New(profileID, now), true, nil
	}
	if err != nil {
		return session.Session{}, false, fmt.Errorf("GetOrCreateSession %s: %w", profileID, err)
	}

	var sess session.Session
	if err := s.sealer.Open(payload, &sess); err != nil {
		return session.Session{}, false, fmt.Errorf("GetOrCreateSession %s: %w", profileID, err)
	}
	return sess, false, nil
}

func (s *Store) PersistSession(ctx context.Context, sess session.Session) error {
	payload, err := s.sealer.Seal(sess)
	if err != nil {
		return fmt.Errorf("PersistSession %s: %w", sess.ProfileID, err)
	}

	return s.writer.Do(ctx, func(ctx context.Context, tx *sql.Tx) error {
		if err := profileExists(ctx, tx, sess.ProfileID); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `
INSERT INTO sessions(profile_id, state, boot_id, payload, updated_at_ms)
VALUES (?, ?, ?, ?, ?)
ON CONFLICT(profile_id) DO UPDATE SET
  state = excluded.state,
  boot_id = excluded.boot_id,
  payload = excluded.payload,
  updated_at_ms = excluded.updated_at_ms;
`, sess.ProfileID, sess.State.String(), sess.BootID, payload, nowMs()); err != nil {
			return fmt.Errorf("PersistSession upsert: %w", err)
		}
		return nil
	})
}
