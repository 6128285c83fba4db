package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"twscraper/pkg/graphql"
)

type queryExecer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresEntityStore keeps entities in the api_data table
type PostgresEntityStore struct {
	pool queryExecer
	ttl  time.Duration
	now  func() time.Time
}

// NewPostgresEntityStore creates a store over a pgx pool
func NewPostgresEntityStore(pool queryExecer, ttl time.Duration) *PostgresEntityStore {
	if ttl <= 0 {
		ttl = DefaultEntityTTL
	}
	return &PostgresEntityStore{pool: pool, ttl: ttl, now: time.Now}
}

func (s *PostgresEntityStore) Save(ctx context.Context, records []graphql.Record, idField, platform string, kind EntityKind) error {
	expires := s.now().Add(s.ttl).UTC()
	for _, rec := range records {
		id, err := recordID(rec, idField)
		if err != nil {
			return err
		}
		payload, err := json.Marshal(rec)
		if err != nil {
			return err
		}
		_, err = s.pool.Exec(ctx, `
			INSERT INTO api_data (platform, kind, entity_id, data, expires_at)
			VALUES ($1, $2, $3, $4, $5)
			ON CONFLICT (platform, kind, entity_id)
			DO UPDATE SET data = EXCLUDED.data, expires_at = EXCLUDED.expires_at`,
			platform, string(kind), id, payload, expires)
		if err != nil {
			return fmt.Errorf("upsert %s %s: %w", kind, id, err)
		}
	}
	return nil
}

func (s *PostgresEntityStore) Get(ctx context.Context, id, platform string, kind EntityKind) (graphql.Record, bool, error) {
	var payload []byte
	err := s.pool.QueryRow(ctx, `
		SELECT data FROM api_data
		WHERE platform = $1 AND kind = $2 AND entity_id = $3 AND expires_at > $4`,
		platform, string(kind), id, s.now().UTC()).Scan(&payload)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	rec, err := decodeRecord(payload)
	if err != nil {
		return nil, false, err
	}
	return rec, true, nil
}
