package checkpoint

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

type queryExecer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresStore keeps job progress in the job_progress table
type PostgresStore struct {
	pool queryExecer
}

// NewPostgresStore creates a store over a pgx pool
func NewPostgresStore(pool queryExecer) *PostgresStore {
	return &PostgresStore{pool: pool}
}

func (s *PostgresStore) Load(ctx context.Context, jobID string) (*JobProgress, error) {
	p := JobProgress{JobID: jobID}
	var phase, stage string
	err := s.pool.QueryRow(ctx, `
		SELECT phase, stage, range_label, ids, temp_ids, created_at, updated_at
		FROM job_progress WHERE job_id = $1`, jobID).
		Scan(&phase, &stage, &p.Range, &p.IDs, &p.TempIDs, &p.CreatedAt, &p.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("select job progress: %w", err)
	}
	p.Phase = Phase(phase)
	p.Stage = Stage(stage)
	return &p, nil
}

func (s *PostgresStore) Save(ctx context.Context, p *JobProgress) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO job_progress (job_id, phase, stage, range_label, ids, temp_ids, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (job_id) DO UPDATE SET
			phase = EXCLUDED.phase,
			stage = EXCLUDED.stage,
			range_label = EXCLUDED.range_label,
			ids = EXCLUDED.ids,
			temp_ids = EXCLUDED.temp_ids,
			updated_at = EXCLUDED.updated_at`,
		p.JobID, string(p.Phase), string(p.Stage), p.Range, nonNil(p.IDs), nonNil(p.TempIDs), p.CreatedAt, p.UpdatedAt)
	if err != nil {
		return fmt.Errorf("upsert job progress: %w", err)
	}
	return nil
}

// Drain clears temp_ids in the same statement that reads them; the row lock
// keeps a concurrent drain from seeing the old list.
func (s *PostgresStore) Drain(ctx context.Context, jobID string) ([]int64, error) {
	var ids []int64
	err := s.pool.QueryRow(ctx, `
		UPDATE job_progress AS j
		SET temp_ids = '{}', updated_at = now()
		FROM (SELECT job_id, temp_ids FROM job_progress WHERE job_id = $1 FOR UPDATE) AS old
		WHERE j.job_id = old.job_id
		RETURNING old.temp_ids`, jobID).Scan(&ids)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("drain job progress: %w", err)
	}
	if len(ids) == 0 {
		return nil, nil
	}
	return ids, nil
}

func (s *PostgresStore) Delete(ctx context.Context, jobID string) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM job_progress WHERE job_id = $1`, jobID)
	return err
}

func nonNil(ids []int64) []int64 {
	if ids == nil {
		return []int64{}
	}
	return ids
}
