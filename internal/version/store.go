// Package version implements the append-only version history engine:
// snapshot creation safe under concurrent writers, line diffs, and
// revert with a durable backup and compensating cleanup.
package version

import (
	"context"

	"github.com/sellside/coedit/model"
)

// Store persists version snapshots. Rows are append-only; the single
// sanctioned deletion is the engine's compensating cleanup after a
// failed revert, plus explicit deletion of non-current snapshots.
type Store interface {
	// CreateSnapshot appends a snapshot. (parent_id, version_number) is
	// unique; a duplicate returns CONFLICT/CONCURRENT_EDIT so the engine
	// can recompute and retry.
	CreateSnapshot(ctx context.Context, snap model.VersionSnapshot) error

	// GetSnapshot returns a snapshot by ID. Returns NOT_FOUND if absent.
	GetSnapshot(ctx context.Context, id string) (model.VersionSnapshot, error)

	// ListByParent returns snapshots for a parent ordered by descending
	// version number, with limit/offset pagination.
	ListByParent(ctx context.Context, parentID int64, limit, offset int) ([]model.VersionSnapshot, error)

	// MaxVersion returns the highest version number for a parent, or
	// zero when the parent has no snapshots.
	MaxVersion(ctx context.Context, parentID int64) (int64, error)

	// DeleteSnapshot removes a snapshot row. Returns NOT_FOUND if absent.
	DeleteSnapshot(ctx context.Context, id string) error

	// Stats summarizes a parent's version history.
	Stats(ctx context.Context, parentID int64) (model.VersionStats, error)
}
