package ratelimit

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

type queryExecer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresStore keeps the gate timestamp in the request_gate table
type PostgresStore struct {
	pool queryExecer
}

// NewPostgresStore creates a store over a pgx pool
func NewPostgresStore(pool queryExecer) *PostgresStore {
	return &PostgresStore{pool: pool}
}

func (s *PostgresStore) ReadNextAllowed(ctx context.Context, key string) (time.Time, error) {
	var next time.Time
	err := s.pool.QueryRow(ctx, `SELECT next_allowed FROM request_gate WHERE name = $1`, key).Scan(&next)
	if errors.Is(err, pgx.ErrNoRows) {
		return time.Time{}, nil
	}
	return next, err
}

func (s *PostgresStore) WriteNextAllowed(ctx context.Context, key string, next time.Time) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO request_gate (name, next_allowed)
		VALUES ($1, $2)
		ON CONFLICT (name) DO UPDATE SET next_allowed = EXCLUDED.next_allowed`, key, next)
	return err
}
