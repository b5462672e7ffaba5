// Package postgres implements core/port's Store, Tx, and JobStore
// interfaces over database/sql + github.com/jmoiron/sqlx + lib/pq,
// grounded on the teacher's adapter/out/persistence package: sqlx.DB
// wrapping, pq.Array columnar binding, and the BeginTxx/defer-Rollback
// transaction shape used throughout worker_email_adapter.go and
// worker_attachment_adapter.go.
package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"

	"github.com/tansanrao/nexus/core/port"
)

// Store is the top-level Postgres connection, implementing port.Store.
type Store struct {
	db *sqlx.DB
}

// Open connects to Postgres via lib/pq and verifies the connection with a
// ping, matching the teacher's eager-connect style at startup.
func Open(ctx context.Context, dsn string) (*Store, error) {
	db, err := sqlx.ConnectContext(ctx, "postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	db.SetMaxOpenConns(20)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(30 * time.Minute)
	return &Store{db: db}, nil
}

func NewStore(db *sqlx.DB) *Store {
	return &Store{db: db}
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) BeginTx(ctx context.Context) (port.Tx, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	return &Tx{tx: tx}, nil
}

// Tx wraps one sqlx.Tx, implementing port.Tx. Callers must call Commit or
// Rollback exactly once; a second Rollback after Commit is a no-op error
// the caller should ignore, matching sqlx/database-sql semantics.
type Tx struct {
	tx *sqlx.Tx
}

func (t *Tx) Commit() error   { return t.tx.Commit() }
func (t *Tx) Rollback() error { return t.tx.Rollback() }
