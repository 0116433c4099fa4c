package sequence

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const ticketCounterName = "ticket_id"

// PostgresCounterStore advances the counter inside a SERIALIZABLE
// transaction over the counters table. Concurrent increments conflict at
// commit and surface as ErrConflict for the allocator to retry.
type PostgresCounterStore struct {
	pool *pgxpool.Pool
}

// NewPostgresCounterStore builds the store.
func NewPostgresCounterStore(pool *pgxpool.Pool) *PostgresCounterStore {
	return &PostgresCounterStore{pool: pool}
}

// Increment performs the atomic read-modify-write. When no counter row
// exists yet it seeds from the highest persisted ticket id, so counters
// survive being dropped or introduced after tickets already exist. A
// bootstrap race is resolved by the unique counter name: the loser hits
// a serialization or duplicate-key error and retries.
func (s *PostgresCounterStore) Increment(ctx context.Context) (uint64, error) {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.Serializable})
	if err != nil {
		return 0, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var next uint64
	var current uint64
	err = tx.QueryRow(ctx,
		`SELECT value FROM counters WHERE name=$1`, ticketCounterName,
	).Scan(&current)
	switch {
	case err == nil:
		next = current + 1
		if _, err := tx.Exec(ctx,
			`UPDATE counters SET value=$1, updated_at=NOW() WHERE name=$2`,
			next, ticketCounterName,
		); err != nil {
			return 0, mapConflict(err)
		}
	case errors.Is(err, pgx.ErrNoRows):
		var seed uint64
		if err := tx.QueryRow(ctx,
			`SELECT COALESCE(MAX(id::bigint), 0) FROM tickets`,
		).Scan(&seed); err != nil {
			return 0, mapConflict(err)
		}
		next = seed + 1
		if _, err := tx.Exec(ctx,
			`INSERT INTO counters (name, value) VALUES ($1, $2)`,
			ticketCounterName, next,
		); err != nil {
			return 0, mapConflict(err)
		}
	default:
		return 0, mapConflict(err)
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, mapConflict(err)
	}
	return next, nil
}

// mapConflict folds serialization failures (40001), deadlocks (40P01)
// and the bootstrap duplicate-key race (23505) into ErrConflict.
func mapConflict(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "40001", "40P01", "23505":
			return ErrConflict
		}
	}
	return err
}
