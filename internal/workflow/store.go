package workflow

import (
	"context"

	"github.com/sellside/coedit/model"
)

// Store commits status changes and persists the immutable transition
// audit log.
type Store interface {
	// CommitTransition atomically applies one status change: the
	// from-guarded status update, the current-version pointer advance
	// when snapshotVersion is positive, and the audit row. Either all
	// of it persists or none of it does. Returns
	// CONFLICT/CONCURRENT_EDIT when the record has already left the
	// from status.
	CommitTransition(ctx context.Context, from, to model.Status, snapshotVersion int64, tr model.StateTransition) error

	// History returns a record's transitions newest-first with
	// limit/offset pagination.
	History(ctx context.Context, recordID int64, limit, offset int) ([]model.StateTransition, error)
}
