package subscription

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// DB is the subset of pgxpool.Pool the store needs
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresStore keeps subscriptions in the subscription and
// subscription_element tables
type PostgresStore struct {
	db DB
}

// NewPostgresStore creates a store over a pgx pool
func NewPostgresStore(db DB) *PostgresStore {
	return &PostgresStore{db: db}
}

const subscriptionColumns = `id, account_id, handle, last_id, expiration_days, status, active, requery_at, error_ids, created_at, updated_at`

const elementColumns = `id, subscription_id, content_id, status, keep, fingerprint, asset_key, expires, error_ids, created_at, updated_at`

func scanSubscription(row pgx.Row) (*Subscription, error) {
	var sub Subscription
	var status int16
	err := row.Scan(&sub.ID, &sub.AccountID, &sub.Handle, &sub.LastID, &sub.ExpirationDays,
		&status, &sub.Active, &sub.RequeryAt, &sub.ErrorIDs, &sub.CreatedAt, &sub.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if sub.Status, err = StatusFromID(status); err != nil {
		return nil, err
	}
	return &sub, nil
}

func scanElement(row pgx.Row) (*Element, error) {
	var e Element
	var status int16
	var keep *int16
	var fingerprint, assetKey *string
	err := row.Scan(&e.ID, &e.SubscriptionID, &e.ContentID, &status, &keep, &fingerprint, &assetKey,
		&e.Expires, &e.ErrorIDs, &e.CreatedAt, &e.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if e.Status, err = ElementStatusFromID(status); err != nil {
		return nil, err
	}
	if e.Keep, err = KeepFromID(keep); err != nil {
		return nil, err
	}
	if fingerprint != nil {
		e.Fingerprint = *fingerprint
	}
	if assetKey != nil {
		e.AssetKey = *assetKey
	}
	return &e, nil
}

func collectElements(rows pgx.Rows) ([]*Element, error) {
	defer rows.Close()
	var out []*Element
	for rows.Next() {
		e, err := scanElement(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func ids(v []int64) []int64 {
	if v == nil {
		return []int64{}
	}
	return v
}

func (s *PostgresStore) CreateSubscription(ctx context.Context, sub *Subscription) error {
	err := s.db.QueryRow(ctx, `
		INSERT INTO subscription (account_id, handle, last_id, expiration_days, status, active, requery_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id, created_at, updated_at`,
		sub.AccountID, sub.Handle, sub.LastID, sub.ExpirationDays, int16(sub.Status), sub.Active, sub.RequeryAt).
		Scan(&sub.ID, &sub.CreatedAt, &sub.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert subscription: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetSubscription(ctx context.Context, id int64) (*Subscription, error) {
	sub, err := scanSubscription(s.db.QueryRow(ctx,
		`SELECT `+subscriptionColumns+` FROM subscription WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	return sub, err
}

func (s *PostgresStore) querySubscriptions(ctx context.Context, sql string, args ...any) ([]*Subscription, error) {
	rows, err := s.db.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*Subscription
	for rows.Next() {
		sub, err := scanSubscription(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, sub)
	}
	return out, rows.Err()
}

func (s *PostgresStore) ListSubscriptions(ctx context.Context) ([]*Subscription, error) {
	return s.querySubscriptions(ctx, `SELECT `+subscriptionColumns+` FROM subscription ORDER BY id`)
}

func (s *PostgresStore) DueSubscriptions(ctx context.Context, now time.Time, limit int) ([]*Subscription, error) {
	return s.querySubscriptions(ctx, `
		SELECT `+subscriptionColumns+` FROM subscription
		WHERE active AND status <> $1 AND (requery_at IS NULL OR requery_at <= $2)
		ORDER BY id LIMIT $3`,
		int16(SubscriptionRetired), now, limit)
}

func (s *PostgresStore) UpdateSubscription(ctx context.Context, sub *Subscription) error {
	tag, err := s.db.Exec(ctx, `
		UPDATE subscription SET handle = $2, last_id = $3, expiration_days = $4, status = $5,
			active = $6, requery_at = $7, error_ids = $8, updated_at = now()
		WHERE id = $1`,
		sub.ID, sub.Handle, sub.LastID, sub.ExpirationDays, int16(sub.Status), sub.Active, sub.RequeryAt, ids(sub.ErrorIDs))
	if err != nil {
		return fmt.Errorf("update subscription %d: %w", sub.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteSubscription removes the subscription; its elements go with it
// through ON DELETE CASCADE
func (s *PostgresStore) DeleteSubscription(ctx context.Context, id int64) error {
	_, err := s.db.Exec(ctx, `DELETE FROM subscription WHERE id = $1`, id)
	return err
}

func (s *PostgresStore) InsertElements(ctx context.Context, subID int64, contentIDs []int64, expires *time.Time) ([]*Element, int, error) {
	tag, err := s.db.Exec(ctx, `
		INSERT INTO subscription_element (subscription_id, content_id, status, expires)
		SELECT $1, cid, $2, $3 FROM unnest($4::bigint[]) AS cid
		ON CONFLICT (subscription_id, content_id) DO NOTHING`,
		subID, int16(StatusActive), expires, contentIDs)
	if err != nil {
		return nil, 0, fmt.Errorf("insert elements: %w", err)
	}

	rows, err := s.db.Query(ctx, `
		SELECT `+elementColumns+` FROM subscription_element
		WHERE subscription_id = $1 AND content_id = ANY($2)
		ORDER BY id`, subID, contentIDs)
	if err != nil {
		return nil, 0, fmt.Errorf("select elements: %w", err)
	}
	elements, err := collectElements(rows)
	if err != nil {
		return nil, 0, err
	}
	return elements, int(tag.RowsAffected()), nil
}

func (s *PostgresStore) GetElement(ctx context.Context, id int64) (*Element, error) {
	e, err := scanElement(s.db.QueryRow(ctx,
		`SELECT `+elementColumns+` FROM subscription_element WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	return e, err
}

func (s *PostgresStore) ListElements(ctx context.Context, subID, afterID int64, limit int) ([]*Element, error) {
	rows, err := s.db.Query(ctx, `
		SELECT `+elementColumns+` FROM subscription_element
		WHERE subscription_id = $1 AND id > $2
		ORDER BY id LIMIT $3`, subID, afterID, limit)
	if err != nil {
		return nil, err
	}
	return collectElements(rows)
}

func (s *PostgresStore) UpdateElement(ctx context.Context, e *Element) error {
	tag, err := s.db.Exec(ctx, `
		UPDATE subscription_element SET status = $2, keep = $3, fingerprint = $4, asset_key = $5,
			expires = $6, error_ids = $7, updated_at = now()
		WHERE id = $1`,
		e.ID, int16(e.Status), e.Keep.ID(), nullable(e.Fingerprint), nullable(e.AssetKey), e.Expires, ids(e.ErrorIDs))
	if err != nil {
		return fmt.Errorf("update element %d: %w", e.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) FingerprintKnown(ctx context.Context, fingerprint string, exceptID int64) (bool, error) {
	var found bool
	err := s.db.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM subscription_element
			WHERE fingerprint = $1 AND id <> $2
			  AND (status = ANY($3) OR (status = ANY($4) AND asset_key IS NOT NULL))
		)`, fingerprint, exceptID,
		[]int16{int16(StatusDeleted), int16(StatusArchived)},
		[]int16{int16(StatusActive), int16(StatusUnlinked)}).Scan(&found)
	return found, err
}

// ElementBatch builds the sweep query from f. Rows come back in id order
// after afterID so callers can page with the last id they saw.
func (s *PostgresStore) ElementBatch(ctx context.Context, f ElementFilter, afterID int64, limit int) ([]*Element, error) {
	statuses := make([]int16, len(f.Statuses))
	for i, st := range f.Statuses {
		statuses[i] = int16(st)
	}
	args := []any{afterID, statuses}
	where := []string{"id > $1", "status = ANY($2)"}

	if len(f.Keeps) > 0 {
		keeps := make([]int16, len(f.Keeps))
		for i, k := range f.Keeps {
			keeps[i] = int16(k)
		}
		args = append(args, keeps)
		clause := fmt.Sprintf("keep = ANY($%d)", len(args))
		if f.Undecided {
			clause = "(" + clause + " OR keep IS NULL)"
		}
		where = append(where, clause)
	}
	if !f.ExpiredBefore.IsZero() {
		args = append(args, f.ExpiredBefore)
		where = append(where, fmt.Sprintf("expires < $%d", len(args)))
	}
	args = append(args, limit)

	sql := `SELECT ` + elementColumns + ` FROM subscription_element WHERE ` +
		strings.Join(where, " AND ") + fmt.Sprintf(" ORDER BY id LIMIT $%d", len(args))
	rows, err := s.db.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	return collectElements(rows)
}
