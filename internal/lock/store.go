// Package lock implements the advisory lock manager. Locks are
// cooperative: the storage layer does not reject writes from
// non-holders, so the manager's conflict probe (including its known
// version check) is the caller's safety net against lost updates.
package lock

import (
	"context"
	"time"

	"github.com/sellside/coedit/model"
)

// Store persists one lock row per (resource_type, resource_id). A
// lapsed row is logically absent; expiry is evaluated at read time
// against a caller-supplied instant, never by a background sweep.
type Store interface {
	// Acquire atomically installs the candidate lock. It succeeds when
	// no row exists, the existing row has lapsed, or the existing row is
	// held by the same holder (in which case the original lock identity
	// is kept and its expiry extended). Returns CONFLICT/LOCKED_BY_OTHER
	// when another holder's lock is still active.
	Acquire(ctx context.Context, candidate model.Lock, now time.Time) (model.Lock, error)

	// Replace unconditionally installs the candidate lock, superseding
	// whatever row exists. Used only by the force-acquire path.
	Replace(ctx context.Context, candidate model.Lock) error

	// GetActive returns the active lock for a resource, or nil when no
	// lock exists or the row has lapsed.
	GetActive(ctx context.Context, resourceType string, resourceID int64, now time.Time) (*model.Lock, error)

	// GetByID returns a lock row by ID regardless of expiry. Returns
	// NOT_FOUND if the row is gone.
	GetByID(ctx context.Context, id string) (model.Lock, error)

	// UpdateExpiry extends a still-active lock. Returns NOT_FOUND if the
	// lock has lapsed or been released; a dead lock is never resurrected.
	UpdateExpiry(ctx context.Context, id string, expiresAt, refreshedAt, now time.Time) (model.Lock, error)

	// Delete removes a lock row. Returns NOT_FOUND if absent.
	Delete(ctx context.Context, id string) error

	// DeleteLapsedBefore removes rows whose expiry lies before the
	// cutoff and returns how many were reclaimed. Storage reclamation
	// only; correctness never depends on it running.
	DeleteLapsedBefore(ctx context.Context, cutoff time.Time) (int64, error)
}
