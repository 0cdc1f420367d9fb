package repository

import (
	"context"
	"database/sql"
)

// Store runs units of work against the shared database.  Repositories take
// the *sql.Tx explicitly (the *Tx methods) so that one transaction can span
// the catalog and the ledger.
type Store struct {
	db    *sql.DB
	begin func(ctx context.Context, opts *sql.TxOptions) (*sql.Tx, error)
}

// NewStore returns a Store bound to db.
func NewStore(db *sql.DB) *Store { return &Store{db: db, begin: db.BeginTx} }

// DB exposes the underlying handle, e.g. for health checks.
func (s *Store) DB() *sql.DB { return s.db }

// WithTx runs fn inside a read-committed transaction.  Writers serialise on
// the catalog rows they lock with SELECT ... FOR UPDATE, and read committed
// guarantees the quota sums read after taking those locks are current.  Any
// error from fn, a panic, or a cancelled context rolls everything back and
// the original error is returned unchanged.
func (s *Store) WithTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	return s.run(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted}, fn)
}

// WithSnapshot runs fn inside a read-only repeatable-read transaction so a
// multi-query read sees one consistent snapshot of the ledger.
func (s *Store) WithSnapshot(ctx context.Context, fn func(tx *sql.Tx) error) error {
	return s.run(ctx, &sql.TxOptions{Isolation: sql.LevelRepeatableRead, ReadOnly: true}, fn)
}

func (s *Store) run(ctx context.Context, opts *sql.TxOptions, fn func(tx *sql.Tx) error) error {
	tx, err := s.begin(ctx, opts)
	if err != nil {
		return err
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()
	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	committed = true
	return nil
}
