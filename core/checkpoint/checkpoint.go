// Package checkpoint tracks per-repository sync progress: the last
// indexed commit per repo_order, and when a list was last threaded. This
// enables incremental synchronization by resuming from the last
// processed commit instead of replaying a whole archive.
package checkpoint

import (
	"context"
	"database/sql"

	"github.com/tansanrao/nexus/core/clock"
	"github.com/tansanrao/nexus/core/port"
)

// Store wraps a port.Store to expose the checkpoint operations the
// orchestrator needs, keeping the invariant that a saved commit implies
// every message up to and including it is durably present for that
// (list_id, repo_order).
type Store struct {
	db    port.Store
	clock clock.Clock
}

func New(db port.Store, c clock.Clock) *Store {
	return &Store{db: db, clock: c}
}

// LoadLastCommits returns the last indexed commit per repo_order. An absent
// entry, or an empty commit, means that repository has never completed a
// sync.
func (s *Store) LoadLastCommits(ctx context.Context, listID int64) (map[int]string, error) {
	tx, err := s.db.BeginTx(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	commits, err := tx.LoadLastCommits(ctx, listID)
	if err != nil {
		return nil, err
	}
	return commits, tx.Commit()
}

// SaveLastCommits upserts the last indexed commit per repo_order. Callers
// must only call this after the import of that commit has committed —
// the function itself performs no ordering check, that invariant is the
// caller's (the orchestrator's) responsibility.
func (s *Store) SaveLastCommits(ctx context.Context, listID int64, commits map[int]string) error {
	tx, err := s.db.BeginTx(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if err := tx.SaveLastCommits(ctx, listID, commits); err != nil {
		return err
	}
	return tx.Commit()
}

// SaveLastThreadedAt records when threading last completed for a list,
// using the injected Clock rather than time.Now for deterministic tests.
func (s *Store) SaveLastThreadedAt(ctx context.Context, listID int64) error {
	tx, err := s.db.BeginTx(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	now := s.clock.Now()
	if err := tx.SaveLastThreadedAt(ctx, listID, sql.NullTime{Time: now, Valid: true}); err != nil {
		return err
	}
	return tx.Commit()
}
