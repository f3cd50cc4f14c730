package lock

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/sellside/coedit/model"
)

// PgStore is a PostgreSQL-backed lock store using pgx/v5.
//
// Expected table:
//
//	locks (
//	    id                text not null,
//	    resource_type     text not null,
//	    resource_id       bigint not null,
//	    holder_id         text not null,
//	    acquired_at       timestamptz not null,
//	    expires_at        timestamptz not null,
//	    last_refreshed_at timestamptz not null,
//	    primary key (resource_type, resource_id)
//	)
//
// The primary key makes "at most one active lock per resource" a table
// constraint: a lapsed row is reused in place by the next acquire.
type PgStore struct {
	pool *pgxpool.Pool
}

// NewPgStore creates a new PostgreSQL lock store.
func NewPgStore(pool *pgxpool.Pool) *PgStore {
	return &PgStore{pool: pool}
}

const lockColumns = `id, resource_type, resource_id, holder_id, acquired_at, expires_at, last_refreshed_at`

// Acquire atomically installs the candidate lock in a single upsert.
// The DO UPDATE branch only fires when the existing row has lapsed or
// belongs to the same holder; a live foreign lock leaves the statement
// with zero returned rows.
func (s *PgStore) Acquire(ctx context.Context, candidate model.Lock, now time.Time) (model.Lock, error) {
	var lk model.Lock
	err := s.pool.QueryRow(ctx, `
		INSERT INTO locks (`+lockColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (resource_type, resource_id) DO UPDATE SET
			id = CASE
				WHEN locks.holder_id = EXCLUDED.holder_id AND locks.expires_at > $8
				THEN locks.id ELSE EXCLUDED.id END,
			holder_id = EXCLUDED.holder_id,
			acquired_at = CASE
				WHEN locks.holder_id = EXCLUDED.holder_id AND locks.expires_at > $8
				THEN locks.acquired_at ELSE EXCLUDED.acquired_at END,
			expires_at = EXCLUDED.expires_at,
			last_refreshed_at = EXCLUDED.last_refreshed_at
		WHERE locks.expires_at <= $8 OR locks.holder_id = EXCLUDED.holder_id
		RETURNING `+lockColumns,
		candidate.ID, candidate.ResourceType, candidate.ResourceID, candidate.HolderID,
		candidate.AcquiredAt, candidate.ExpiresAt, candidate.LastRefreshedAt,
		now,
	).Scan(
		&lk.ID, &lk.ResourceType, &lk.ResourceID, &lk.HolderID,
		&lk.AcquiredAt, &lk.ExpiresAt, &lk.LastRefreshedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		existing, getErr := s.GetActive(ctx, candidate.ResourceType, candidate.ResourceID, now)
		holder := "another user"
		if getErr == nil && existing != nil {
			holder = existing.HolderID
		}
		return model.Lock{}, model.NewConflictError(model.ConflictLockedByOther,
			fmt.Sprintf("%s %d is locked by %s", candidate.ResourceType, candidate.ResourceID, holder),
		)
	}
	if err != nil {
		return model.Lock{}, fmt.Errorf("acquire lock: %w", err)
	}
	return lk, nil
}

// Replace unconditionally installs the candidate lock.
func (s *PgStore) Replace(ctx context.Context, candidate model.Lock) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO locks (`+lockColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (resource_type, resource_id) DO UPDATE SET
			id = EXCLUDED.id,
			holder_id = EXCLUDED.holder_id,
			acquired_at = EXCLUDED.acquired_at,
			expires_at = EXCLUDED.expires_at,
			last_refreshed_at = EXCLUDED.last_refreshed_at`,
		candidate.ID, candidate.ResourceType, candidate.ResourceID, candidate.HolderID,
		candidate.AcquiredAt, candidate.ExpiresAt, candidate.LastRefreshedAt,
	)
	if err != nil {
		return fmt.Errorf("replace lock: %w", err)
	}
	return nil
}

// GetActive returns the active lock for a resource, or nil.
func (s *PgStore) GetActive(ctx context.Context, resourceType string, resourceID int64, now time.Time) (*model.Lock, error) {
	var lk model.Lock
	err := s.pool.QueryRow(ctx, `
		SELECT `+lockColumns+`
		FROM locks
		WHERE resource_type = $1 AND resource_id = $2 AND expires_at > $3`,
		resourceType, resourceID, now,
	).Scan(
		&lk.ID, &lk.ResourceType, &lk.ResourceID, &lk.HolderID,
		&lk.AcquiredAt, &lk.ExpiresAt, &lk.LastRefreshedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query active lock: %w", err)
	}
	return &lk, nil
}

// GetByID returns a lock row by ID regardless of expiry.
func (s *PgStore) GetByID(ctx context.Context, id string) (model.Lock, error) {
	var lk model.Lock
	err := s.pool.QueryRow(ctx, `
		SELECT `+lockColumns+`
		FROM locks
		WHERE id = $1`,
		id,
	).Scan(
		&lk.ID, &lk.ResourceType, &lk.ResourceID, &lk.HolderID,
		&lk.AcquiredAt, &lk.ExpiresAt, &lk.LastRefreshedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return model.Lock{}, model.NewNotFoundError(fmt.Sprintf("lock %q not found", id))
	}
	if err != nil {
		return model.Lock{}, fmt.Errorf("query lock: %w", err)
	}
	return lk, nil
}

// UpdateExpiry extends a still-active lock.
func (s *PgStore) UpdateExpiry(ctx context.Context, id string, expiresAt, refreshedAt, now time.Time) (model.Lock, error) {
	var lk model.Lock
	err := s.pool.QueryRow(ctx, `
		UPDATE locks SET
			expires_at = $1,
			last_refreshed_at = $2
		WHERE id = $3 AND expires_at > $4
		RETURNING `+lockColumns,
		expiresAt, refreshedAt, id, now,
	).Scan(
		&lk.ID, &lk.ResourceType, &lk.ResourceID, &lk.HolderID,
		&lk.AcquiredAt, &lk.ExpiresAt, &lk.LastRefreshedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return model.Lock{}, model.NewNotFoundError(
			fmt.Sprintf("lock %q has expired or been released", id),
		)
	}
	if err != nil {
		return model.Lock{}, fmt.Errorf("update lock expiry: %w", err)
	}
	return lk, nil
}

// Delete removes a lock row.
func (s *PgStore) Delete(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM locks WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete lock: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return model.NewNotFoundError(fmt.Sprintf("lock %q not found", id))
	}
	return nil
}

// DeleteLapsedBefore reclaims rows that lapsed before the cutoff.
func (s *PgStore) DeleteLapsedBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM locks WHERE expires_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("delete lapsed locks: %w", err)
	}
	return tag.RowsAffected(), nil
}

// HealthCheck verifies store connectivity for the readiness endpoint.
func (s *PgStore) HealthCheck(ctx context.Context) error {
	return s.pool.Ping(ctx)
}
