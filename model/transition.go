package model

import (
	"context"
	"time"
)

// StateTransition is an immutable audit entry for one status change.
type StateTransition struct {
	ID         string    `json:"id"`
	RecordID   int64     `json:"record_id"`
	FromStatus Status    `json:"from_status"`
	ToStatus   Status    `json:"to_status"`
	ActorID    string    `json:"actor_id"`
	Reason     string    `json:"reason,omitempty"`
	Comment    string    `json:"comment,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
}

// TransitionResult is returned by a successful status transition.
type TransitionResult struct {
	Record       Record `json:"record"`
	TransitionID string `json:"transition_id"`
	// SnapshotID is set when the transition was content-significant and
	// triggered a version snapshot before committing.
	SnapshotID string `json:"snapshot_id,omitempty"`
}

// Permissions checked against the identity collaborator.
const (
	PermSubmit    = "proposal:submit"
	PermReview    = "proposal:review"
	PermSend      = "proposal:send"
	PermArchive   = "proposal:archive"
	PermForceLock = "lock:force"
)

// Authorizer is the seam to the identity/authorization collaborator.
// The core never authenticates; it only asks whether an already
// authenticated actor may perform a specific action on a record.
type Authorizer interface {
	Allowed(ctx context.Context, actorID, permission string, record *Record) (bool, error)
}
