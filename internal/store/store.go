// Package store owns all Postgres persistence. Voucher numbering and
// callback reconciliation run inside serializable transactions with bounded
// retry on serialization conflicts.
package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/IsakPetersson/Orient/internal/domain"
)

type Store struct {
	db *pgxpool.Pool
}

func New(connString string) (*Store, error) {
	config, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, fmt.Errorf("unable to parse database config: %w", err)
	}

	pool, err := pgxpool.NewWithConfig(context.Background(), config)
	if err != nil {
		return nil, fmt.Errorf("unable to create connection pool: %w", err)
	}

	if err := pool.Ping(context.Background()); err != nil {
		return nil, fmt.Errorf("unable to ping database: %w", err)
	}

	return &Store{db: pool}, nil
}

// NewWithPool wraps an existing pool; the caller keeps ownership of it.
func NewWithPool(pool *pgxpool.Pool) *Store {
	return &Store{db: pool}
}

func (s *Store) Close() {
	s.db.Close()
}

// maxTxAttempts bounds retries of serializable transactions before the race
// is surfaced as a conflict.
const maxTxAttempts = 3

// retryableTxErr reports whether err is a transient transaction failure:
// a serialization conflict (40001), a deadlock (40P01), or a unique-index
// violation (23505) from the voucher-number backstop constraint.
func retryableTxErr(err error) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return false
	}
	switch pgErr.Code {
	case "40001", "40P01", "23505":
		return true
	}
	return false
}

// serializable runs fn in a serializable transaction, retrying transient
// conflicts up to maxTxAttempts times.
func (s *Store) serializable(ctx context.Context, fn func(pgx.Tx) error) error {
	var lastErr error
	for attempt := 0; attempt < maxTxAttempts; attempt++ {
		tx, err := s.db.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.Serializable})
		if err != nil {
			return fmt.Errorf("tx begin failed: %w", err)
		}

		if err := fn(tx); err != nil {
			tx.Rollback(ctx)
			if retryableTxErr(err) {
				lastErr = err
				continue
			}
			return err
		}

		if err := tx.Commit(ctx); err != nil {
			if retryableTxErr(err) {
				lastErr = err
				continue
			}
			return fmt.Errorf("tx commit failed: %w", err)
		}
		return nil
	}
	return fmt.Errorf("%w: retries exhausted: %v", domain.ErrConflict, lastErr)
}
