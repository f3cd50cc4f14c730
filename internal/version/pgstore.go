package version

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/sellside/coedit/model"
)

const pgUniqueViolation = "23505"

// PgStore is a PostgreSQL-backed snapshot store using pgx/v5.
//
// Expected table:
//
//	version_snapshots (
//	    id             text primary key,
//	    parent_id      bigint not null,
//	    version_number bigint not null,
//	    content        text not null,
//	    change_summary text not null default '',
//	    is_major       boolean not null default false,
//	    tags           jsonb,
//	    metadata       jsonb,
//	    created_by     text not null,
//	    created_at     timestamptz not null,
//	    unique (parent_id, version_number)
//	)
//
// The unique key is what makes concurrent snapshot numbering safe: a
// lost read-increment-write race surfaces as a constraint violation
// instead of a duplicate version.
type PgStore struct {
	pool *pgxpool.Pool
}

// NewPgStore creates a new PostgreSQL snapshot store.
func NewPgStore(pool *pgxpool.Pool) *PgStore {
	return &PgStore{pool: pool}
}

const snapshotColumns = `id, parent_id, version_number, content, change_summary, is_major, tags, metadata, created_by, created_at`

// CreateSnapshot appends a snapshot.
func (s *PgStore) CreateSnapshot(ctx context.Context, snap model.VersionSnapshot) error {
	tagsJSON, err := json.Marshal(snap.Tags)
	if err != nil {
		return fmt.Errorf("marshal tags: %w", err)
	}
	metaJSON, err := json.Marshal(snap.Metadata)
	if err != nil {
		return fmt.Errorf("marshal metadata: %w", err)
	}

	_, err = s.pool.Exec(ctx, `
		INSERT INTO version_snapshots (`+snapshotColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		snap.ID, snap.ParentID, snap.VersionNumber, snap.Content, snap.ChangeSummary,
		snap.IsMajor, tagsJSON, metaJSON, snap.CreatedBy, snap.CreatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
			return model.NewConflictError(model.ConflictConcurrentEdit,
				fmt.Sprintf("version %d already exists for parent %d", snap.VersionNumber, snap.ParentID),
			)
		}
		return fmt.Errorf("insert snapshot: %w", err)
	}
	return nil
}

// GetSnapshot returns a snapshot by ID.
func (s *PgStore) GetSnapshot(ctx context.Context, id string) (model.VersionSnapshot, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT `+snapshotColumns+`
		FROM version_snapshots
		WHERE id = $1`,
		id,
	)
	snap, err := scanSnapshot(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return model.VersionSnapshot{}, model.NewNotFoundError(
			fmt.Sprintf("version %q not found", id),
		)
	}
	if err != nil {
		return model.VersionSnapshot{}, fmt.Errorf("query snapshot: %w", err)
	}
	return snap, nil
}

// ListByParent returns snapshots newest-first with pagination.
func (s *PgStore) ListByParent(ctx context.Context, parentID int64, limit, offset int) ([]model.VersionSnapshot, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+snapshotColumns+`
		FROM version_snapshots
		WHERE parent_id = $1
		ORDER BY version_number DESC
		LIMIT $2 OFFSET $3`,
		parentID, limit, offset,
	)
	if err != nil {
		return nil, fmt.Errorf("query snapshots: %w", err)
	}
	defer rows.Close()

	var snaps []model.VersionSnapshot
	for rows.Next() {
		snap, err := scanSnapshot(rows)
		if err != nil {
			return nil, fmt.Errorf("scan snapshot: %w", err)
		}
		snaps = append(snaps, snap)
	}
	return snaps, rows.Err()
}

// MaxVersion returns the highest version number for a parent.
func (s *PgStore) MaxVersion(ctx context.Context, parentID int64) (int64, error) {
	var max int64
	err := s.pool.QueryRow(ctx, `
		SELECT COALESCE(MAX(version_number), 0)
		FROM version_snapshots
		WHERE parent_id = $1`,
		parentID,
	).Scan(&max)
	if err != nil {
		return 0, fmt.Errorf("query max version: %w", err)
	}
	return max, nil
}

// DeleteSnapshot removes a snapshot row.
func (s *PgStore) DeleteSnapshot(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM version_snapshots WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete snapshot: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return model.NewNotFoundError(fmt.Sprintf("version %q not found", id))
	}
	return nil
}

// Stats summarizes a parent's version history.
func (s *PgStore) Stats(ctx context.Context, parentID int64) (model.VersionStats, error) {
	var stats model.VersionStats
	err := s.pool.QueryRow(ctx, `
		SELECT COUNT(*),
		       COUNT(*) FILTER (WHERE is_major),
		       MIN(created_at),
		       MAX(created_at)
		FROM version_snapshots
		WHERE parent_id = $1`,
		parentID,
	).Scan(&stats.TotalVersions, &stats.MajorVersionCount, &stats.FirstVersionAt, &stats.LastVersionAt)
	if err != nil {
		return model.VersionStats{}, fmt.Errorf("query version stats: %w", err)
	}
	return stats, nil
}

// HealthCheck verifies store connectivity for the readiness endpoint.
func (s *PgStore) HealthCheck(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

func scanSnapshot(row pgx.Row) (model.VersionSnapshot, error) {
	var snap model.VersionSnapshot
	var tagsJSON, metaJSON []byte
	err := row.Scan(
		&snap.ID, &snap.ParentID, &snap.VersionNumber, &snap.Content, &snap.ChangeSummary,
		&snap.IsMajor, &tagsJSON, &metaJSON, &snap.CreatedBy, &snap.CreatedAt,
	)
	if err != nil {
		return model.VersionSnapshot{}, err
	}
	if tagsJSON != nil {
		_ = json.Unmarshal(tagsJSON, &snap.Tags)
	}
	if metaJSON != nil {
		_ = json.Unmarshal(metaJSON, &snap.Metadata)
	}
	return snap, nil
}
