// Package sqlite stores profiles, sessions and audit events in SQLite.
// Payloads are sealed before they are written; the clear columns carry only
// what lookups and ordering need.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	dbpkg "github.com/SoarinFerret/TimeWarden/internal/db"
	"github.com/SoarinFerret/TimeWarden/internal/seal"
	"github.com/SoarinFerret/TimeWarden/internal/store"
)

type Store struct {
	db     *sql.DB
	writer *dbpkg.Worker
	sealer *seal.Sealer
}

var _ store.Store = (*Store)(nil)

func New(db *sql.DB, writer *dbpkg.Worker, sealer *seal.Sealer) *Store {
	return &Store{db: db, writer: writer, sealer: sealer}
}

func nowMs() int64 {
	return time.Now().UTC().UnixMilli()
}

func profileExists(ctx context.Context, q interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}, id string) error {
	var one int
	err := q.QueryRowContext(ctx, `SELECT 1 FROM profiles WHERE profile_id = ?;`, id).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%w: %s", store.ErrProfileNotFound, id)
	}
	if err != nil {
		return fmt.Errorf("lookup profile %s: %w", id, err)
	}
	return nil
}
