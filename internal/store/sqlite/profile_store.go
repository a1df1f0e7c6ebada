package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/SoarinFerret/TimeWarden/internal/profile"
	"github.com/SoarinFerret/TimeWarden/internal/store"
)

func (s *Store) GetProfile(ctx context.Context, id string) (profile.Profile, error) {
	var payload []byte
	err := s.db.QueryRowContext(ctx, `
SELECT payload FROM profiles WHERE profile_id = ?;
`, id).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return profile.Profile{}, fmt.Errorf("%w: %s", store.ErrProfileNotFound, id)
	}
	if err != nil {
		return profile.Profile{}, fmt.Errorf("GetProfile %s: %w", id, err)
	}

	var p profile.Profile
	if err := s.sealer.Open(payload, &p); err != nil {
		return profile.Profile{}, fmt.Errorf("GetProfile %s: %w", id, err)
	}
	return p, nil
}

func (s *Store) PutProfile(ctx context.Context, p profile.Profile) error {
	if err := p.Validate(); err != nil {
		return err
	}
	payload, err := s.sealer.Seal(p)
	if err != nil {
		return fmt.Errorf("PutProfile %s: %w", p.ID, err)
	}

	return s.writer.Do(ctx, func(ctx context.Context, tx *sql.Tx) error {
		var owner string
		err := tx.QueryRowContext(ctx, `
SELECT profile_id FROM profiles WHERE account = ? AND profile_id <> ?;
`, p.Account, p.ID).Scan(&owner)
		if err == nil {
			return fmt.Errorf("%w: account %s already belongs to profile %s", profile.ErrInvalidProfile, p.Account, owner)
		}
		if !errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("PutProfile check account: %w", err)
		}

		if _, err := tx.ExecContext(ctx, `
INSERT INTO profiles(profile_id, account, payload, updated_at_ms)
VALUES (?, ?, ?, ?)
ON CONFLICT(profile_id) DO UPDATE SET
  account = excluded.account,
  payload = excluded.payload,
  updated_at_ms = excluded.updated_at_ms;
`, p.ID, p.Account, payload, nowMs()); err != nil {
			return fmt.Errorf("PutProfile upsert: %w", err)
		}
		return nil
	})
}

func (s *Store) ListProfiles(ctx context.Context) ([]profile.Profile, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT payload FROM profiles ORDER BY profile_id;`)
	if err != nil {
		return nil, fmt.Errorf("ListProfiles: %w", err)
	}
	defer rows.Close()

	var out []profile.Profile
	for rows.Next() {
		var payload []byte
		if err := rows.Scan(&payload); err != nil {
			return nil, fmt.Errorf("ListProfiles scan: %w", err)
		}
		var p profile.Profile
		if err := s.sealer.Open(payload, &p); err != nil {
			return nil, fmt.Errorf("ListProfiles: %w", err)
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("ListProfiles rows: %w", err)
	}
	return out, nil
}
