package workflow

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/sellside/coedit/internal/lock"
	"github.com/sellside/coedit/internal/notify"
	"github.com/sellside/coedit/internal/observability"
	"github.com/sellside/coedit/internal/record"
	"github.com/sellside/coedit/internal/version"
	"github.com/sellside/coedit/model"
)

// Options configure an Engine.
type Options struct {
	// SnapshotStatuses lists target statuses whose transitions snapshot
	// the record's content first. The snapshot is marked major.
	SnapshotStatuses []model.Status
}

// TransitionInput describes one requested status change.
type TransitionInput struct {
	RecordID int64
	To       model.Status
	ActorID  string
	Reason   string
	Comment  string
}

// Engine executes status transitions in a fixed order: edge validation,
// authorization, lock gating, snapshot staging, then one atomic commit
// of the status write and the audit entry. A commit that loses its
// guard discards the staged snapshot.
type Engine struct {
	records  record.Store
	store    Store
	versions *version.Engine
	locks    *lock.Manager
	authz    model.Authorizer
	notifier notify.Notifier
	logger   *zap.Logger
	metrics  *observability.Metrics
	snapshot map[model.Status]bool
	now      func() time.Time
}

// NewEngine creates a workflow engine.
func NewEngine(
	records record.Store,
	store Store,
	versions *version.Engine,
	locks *lock.Manager,
	authz model.Authorizer,
	notifier notify.Notifier,
	logger *zap.Logger,
	metrics *observability.Metrics,
	opts Options,
) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	statuses := opts.SnapshotStatuses
	if statuses == nil {
		statuses = []model.Status{model.StatusApproved, model.StatusSent}
	}
	snapshot := make(map[model.Status]bool, len(statuses))
	for _, s := range statuses {
		snapshot[s] = true
	}
	return &Engine{
		records:  records,
		store:    store,
		versions: versions,
		locks:    locks,
		authz:    authz,
		notifier: notifier,
		logger:   logger,
		metrics:  metrics,
		snapshot: snapshot,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Transition moves a record to a new status. Requesting the record's
// current status is a VALIDATION_ERROR, not a no-op: the caller's view
// is stale and silently succeeding would hide that.
func (e *Engine) Transition(ctx context.Context, in TransitionInput) (model.TransitionResult, error) {
	ctx, span := observability.StartSpan(ctx, "workflow.Transition",
		observability.AttrResourceID.Int64(in.RecordID),
		observability.AttrActorID.String(in.ActorID),
		observability.AttrToStatus.String(string(in.To)),
	)
	var err error
	defer func() { observability.EndSpanWithError(span, err) }()

	start := e.now()

	var rec model.Record
	rec, err = e.records.Get(ctx, in.RecordID)
	if err != nil {
		return model.TransitionResult{}, err
	}
	from := rec.Status
	span.SetAttributes(observability.AttrFromStatus.String(string(from)))

	outcome := "error"
	defer func() {
		e.metrics.RecordTransition(string(from), string(in.To), outcome, e.now().Sub(start))
	}()

	if in.To == from {
		err = model.NewValidationError(
			fmt.Sprintf("record %d is already in status %q", in.RecordID, from),
		)
		return model.TransitionResult{}, err
	}
	if !edgeAllowed(from, in.To) {
		err = model.NewInvalidTransitionError(from, in.To)
		return model.TransitionResult{}, err
	}

	if err = e.authorize(ctx, in, &rec, from); err != nil {
		return model.TransitionResult{}, err
	}

	if err = e.gateOnLock(ctx, &rec, in.ActorID); err != nil {
		return model.TransitionResult{}, err
	}

	result := model.TransitionResult{}
	var snapVersion int64

	if e.snapshot[in.To] && e.versions != nil {
		var snap model.VersionSnapshot
		snap, err = e.versions.StageVersion(ctx, version.CreateInput{
			ParentID:      rec.ID,
			ChangeSummary: fmt.Sprintf("snapshot on transition to %s", in.To),
			IsMajor:       true,
			CreatedBy:     in.ActorID,
		})
		if err != nil {
			return model.TransitionResult{}, err
		}
		result.SnapshotID = snap.ID
		snapVersion = snap.VersionNumber
	}

	tr := model.StateTransition{
		ID:         uuid.New().String(),
		RecordID:   rec.ID,
		FromStatus: from,
		ToStatus:   in.To,
		ActorID:    in.ActorID,
		Reason:     in.Reason,
		Comment:    in.Comment,
		Timestamp:  e.now(),
	}

	// Status change, pointer advance and audit row commit atomically; a
	// staged snapshot is discarded when the commit loses, so version
	// history never records an approval that did not happen.
	if err = e.store.CommitTransition(ctx, from, in.To, snapVersion, tr); err != nil {
		if result.SnapshotID != "" {
			if dErr := e.versions.DiscardVersion(ctx, result.SnapshotID); dErr != nil {
				e.logger.Error("failed to discard staged snapshot",
					zap.Int64("record_id", rec.ID),
					zap.String("snapshot_id", result.SnapshotID),
					zap.Error(dErr),
				)
			}
		}
		return model.TransitionResult{}, err
	}
	rec.Status = in.To
	if snapVersion > 0 {
		rec.CurrentVersion = snapVersion
		e.metrics.RecordSnapshot(true)
	}
	rec.UpdatedAt = e.now()

	outcome = "ok"
	result.Record = rec
	result.TransitionID = tr.ID

	e.logger.Info("status transition",
		zap.Int64("record_id", rec.ID),
		zap.String("from_status", string(from)),
		zap.String("to_status", string(in.To)),
		zap.String("actor_id", in.ActorID),
		zap.String("snapshot_id", result.SnapshotID),
	)

	if e.notifier != nil {
		e.notifier.Notify(notify.TransitionEvent{
			RecordID:     rec.ID,
			Title:        rec.Title,
			FromStatus:   from,
			ToStatus:     in.To,
			ActorID:      in.ActorID,
			OwnerID:      rec.OwnerID,
			Reason:       in.Reason,
			TransitionID: tr.ID,
			Timestamp:    tr.Timestamp,
		})
	}

	return result, nil
}

// authorize checks the edge's permission. Submitting one's own draft is
// always allowed; every other edge defers to the authorizer.
func (e *Engine) authorize(ctx context.Context, in TransitionInput, rec *model.Record, from model.Status) error {
	perm := edgePermissions[edge{from, in.To}]

	if perm == model.PermSubmit && rec.OwnerID == in.ActorID {
		return nil
	}
	if e.authz == nil {
		return nil
	}

	ok, err := e.authz.Allowed(ctx, in.ActorID, perm, rec)
	if err != nil {
		return fmt.Errorf("authorize transition: %w", err)
	}
	if !ok {
		return model.NewForbiddenError(
			fmt.Sprintf("actor %q lacks %q for record %d", in.ActorID, perm, rec.ID),
		)
	}
	return nil
}

// gateOnLock rejects a transition while someone else holds the record's
// edit lock: a status change mid-edit would commit content the editor
// has not finished.
func (e *Engine) gateOnLock(ctx context.Context, rec *model.Record, actorID string) error {
	if e.locks == nil {
		return nil
	}
	info, err := e.locks.DetectConflict(ctx, rec.ResourceType, rec.ID, actorID, nil)
	if err != nil {
		return err
	}
	if info.HasConflict {
		return model.NewConflictError(model.ConflictLockedByOther,
			fmt.Sprintf("record %d is locked by %q", rec.ID, info.HolderID),
		)
	}
	return nil
}

// History returns a record's transition audit entries newest-first.
func (e *Engine) History(ctx context.Context, recordID int64, limit, offset int) ([]model.StateTransition, error) {
	if limit <= 0 {
		limit = 50
	}
	return e.store.History(ctx, recordID, limit, offset)
}
