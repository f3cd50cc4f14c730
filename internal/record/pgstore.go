package record

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/sellside/coedit/model"
)

// PgStore is a PostgreSQL-backed record store using pgx/v5.
//
// Expected table:
//
//	records (
//	    id              bigint primary key,
//	    resource_type   text not null,
//	    title           text not null default '',
//	    content         text not null default '',
//	    current_version bigint not null default 0,
//	    status          text not null,
//	    owner_id        text not null,
//	    created_at      timestamptz not null,
//	    updated_at      timestamptz not null
//	)
type PgStore struct {
	pool *pgxpool.Pool
}

// NewPgStore creates a new PostgreSQL record store.
func NewPgStore(pool *pgxpool.Pool) *PgStore {
	return &PgStore{pool: pool}
}

// Create inserts a new record.
func (s *PgStore) Create(ctx context.Context, rec model.Record) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO records (
			id, resource_type, title, content, current_version, status,
			owner_id, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		rec.ID, rec.ResourceType, rec.Title, rec.Content, rec.CurrentVersion,
		rec.Status, rec.OwnerID, rec.CreatedAt, rec.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert record: %w", err)
	}
	return nil
}

// Get retrieves a record by ID.
func (s *PgStore) Get(ctx context.Context, id int64) (model.Record, error) {
	var rec model.Record
	err := s.pool.QueryRow(ctx, `
		SELECT id, resource_type, title, content, current_version, status,
		       owner_id, created_at, updated_at
		FROM records
		WHERE id = $1`,
		id,
	).Scan(
		&rec.ID, &rec.ResourceType, &rec.Title, &rec.Content, &rec.CurrentVersion,
		&rec.Status, &rec.OwnerID, &rec.CreatedAt, &rec.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return model.Record{}, model.NewNotFoundError(
			fmt.Sprintf("record %d not found", id),
		)
	}
	if err != nil {
		return model.Record{}, fmt.Errorf("query record: %w", err)
	}
	return rec, nil
}

// UpdateContent overwrites live content guarded by the expected version.
func (s *PgStore) UpdateContent(ctx context.Context, id int64, content string, newVersion, expectedVersion int64) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE records SET
			content = $1,
			current_version = $2,
			updated_at = $3
		WHERE id = $4 AND current_version = $5`,
		content, newVersion, time.Now().UTC(), id, expectedVersion,
	)
	if err != nil {
		return fmt.Errorf("update record content: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return model.NewConflictError(model.ConflictConcurrentEdit,
			fmt.Sprintf("record %d moved past version %d", id, expectedVersion),
		)
	}
	return nil
}

// SetCurrentVersion advances the current-version pointer.
func (s *PgStore) SetCurrentVersion(ctx context.Context, id, n int64) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE records SET
			current_version = GREATEST(current_version, $1),
			updated_at = $2
		WHERE id = $3`,
		n, time.Now().UTC(), id,
	)
	if err != nil {
		return fmt.Errorf("set current version: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return model.NewNotFoundError(fmt.Sprintf("record %d not found", id))
	}
	return nil
}

// UpdateStatus moves the record between statuses, guarded by from.
func (s *PgStore) UpdateStatus(ctx context.Context, id int64, from, to model.Status) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE records SET
			status = $1,
			updated_at = $2
		WHERE id = $3 AND status = $4`,
		to, time.Now().UTC(), id, from,
	)
	if err != nil {
		return fmt.Errorf("update record status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return model.NewConflictError(model.ConflictConcurrentEdit,
			fmt.Sprintf("record %d is no longer %q", id, from),
		)
	}
	return nil
}

// CurrentVersion returns the record's current version number.
func (s *PgStore) CurrentVersion(ctx context.Context, id int64) (int64, error) {
	var v int64
	err := s.pool.QueryRow(ctx,
		`SELECT current_version FROM records WHERE id = $1`, id,
	).Scan(&v)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, model.NewNotFoundError(fmt.Sprintf("record %d not found", id))
	}
	if err != nil {
		return 0, fmt.Errorf("query current version: %w", err)
	}
	return v, nil
}

// HealthCheck verifies store connectivity for the readiness endpoint.
func (s *PgStore) HealthCheck(ctx context.Context) error {
	return s.pool.Ping(ctx)
}
