package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/SoarinFerret/TimeWarden/internal/audit"
)

// AppendAudit inserts one event. Appending an event that is already stored
// is a no-op, so a write retried after an ambiguous failure cannot fail on
// the unique id. The table rejects updates and deletes.
func (s *Store) AppendAudit(ctx context.Context, e audit.Event) error {
	payload, err := s.sealer.Seal(e)
	if err != nil {
		return fmt.Errorf("AppendAudit %s: %w", e.ID, err)
	}

	return s.writer.Do(ctx, func(ctx context.Context, tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `
INSERT INTO audit_events(event_id, kind, profile_id, wall_ms, mono_ns, boot_id, payload)
VALUES (?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(event_id) DO NOTHING;
`,
			e.ID, string(e.Kind), e.ProfileID, e.Wall.UTC().UnixMilli(), int64(e.Mono), e.BootID, payload,
		); err != nil {
			return fmt.Errorf("AppendAudit insert: %w", err)
		}
		return nil
	})
}

func (s *Store) ListAudit(ctx context.Context, profileID string, limit int) ([]audit.Event, error) {
	query := `SELECT payload FROM audit_events`
	var args []any
	if profileID != "" {
		query += ` WHERE profile_id = ?`
		args = append(args, profileID)
	}
	query += ` ORDER BY seq DESC`
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query+";", args...)
	if err != nil {
		return nil, fmt.Errorf("ListAudit: %w", err)
	}
	defer rows.Close()

	var out []audit.Event
	for rows.Next() {
		var payload []byte
		if err := rows.Scan(&payload); err != nil {
			return nil, fmt.Errorf("ListAudit scan: %w", err)
		}
		var e audit.Event
		if err := s.sealer.Open(payload, &e); err != nil {
			return nil, fmt.Errorf("ListAudit: %w", err)
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("ListAudit rows: %w", err)
	}

	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, nil
}
