// Package record persists the parent records that locking, versioning
// and the workflow state machine all coordinate on. The current-version
// pointer and the status are the only mutable fields; both are updated
// with optimistic checks so a lost race surfaces as a conflict instead
// of a silent overwrite.
package record

import (
	"context"

	"github.com/sellside/coedit/model"
)

// Store persists parent records.
type Store interface {
	// Create persists a new record. The record starts at its given
	// status and current version.
	Create(ctx context.Context, rec model.Record) error

	// Get retrieves a record by ID. Returns NOT_FOUND if absent.
	Get(ctx context.Context, id int64) (model.Record, error)

	// UpdateContent overwrites the record's live content and sets its
	// current-version pointer, guarded by the expected version. Returns
	// CONFLICT/CONCURRENT_EDIT if the stored version no longer matches.
	UpdateContent(ctx context.Context, id int64, content string, newVersion, expectedVersion int64) error

	// SetCurrentVersion advances the current-version pointer to n. The
	// pointer is monotonic: a stale writer can never lower it.
	SetCurrentVersion(ctx context.Context, id, n int64) error

	// UpdateStatus moves the record from one status to another, guarded
	// by the from-status. Returns CONFLICT/CONCURRENT_EDIT if the record
	// is no longer in the expected status.
	UpdateStatus(ctx context.Context, id int64, from, to model.Status) error

	// CurrentVersion returns the record's current version number.
	CurrentVersion(ctx context.Context, id int64) (int64, error)
}
