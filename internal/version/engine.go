package version

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/sellside/coedit/internal/observability"
	"github.com/sellside/coedit/internal/record"
	"github.com/sellside/coedit/model"
)

// Options configure an Engine.
type Options struct {
	// MaxCreateRetries bounds the recompute-and-retry loop when concurrent
	// writers race on the next version number.
	MaxCreateRetries int
	// BackupOnRevert snapshots the pre-revert content before restoring,
	// so a revert is itself revertible.
	BackupOnRevert bool
}

// CreateInput describes a snapshot to create.
type CreateInput struct {
	ParentID      int64
	Content       string
	ChangeSummary string
	IsMajor       bool
	Tags          []string
	Metadata      map[string]string
	CreatedBy     string
}

// Engine owns the append-only version history of records. Snapshot
// numbering stays contiguous per parent even under concurrent writers:
// the store's uniqueness constraint turns a lost race into a retry here.
type Engine struct {
	records record.Store
	store   Store
	logger  *zap.Logger
	metrics *observability.Metrics
	opts    Options
	now     func() time.Time
}

// NewEngine creates a version engine.
func NewEngine(records record.Store, store Store, logger *zap.Logger, metrics *observability.Metrics, opts Options) *Engine {
	if opts.MaxCreateRetries < 1 {
		opts.MaxCreateRetries = 3
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{
		records: records,
		store:   store,
		logger:  logger,
		metrics: metrics,
		opts:    opts,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// CreateVersion snapshots content as the parent's next version and
// advances the parent's current-version pointer. Empty content copies
// the parent's live content. Under concurrency each caller gets a
// distinct contiguous number; losers of the numbering race recompute
// and retry up to MaxCreateRetries before failing with
// CONCURRENCY_ERROR.
func (e *Engine) CreateVersion(ctx context.Context, in CreateInput) (model.VersionSnapshot, error) {
	ctx, span := observability.StartSpan(ctx, "version.Create",
		observability.AttrResourceID.Int64(in.ParentID),
		observability.AttrActorID.String(in.CreatedBy),
	)
	var err error
	defer func() { observability.EndSpanWithError(span, err) }()

	var snap model.VersionSnapshot
	snap, err = e.StageVersion(ctx, in)
	if err != nil {
		return model.VersionSnapshot{}, err
	}

	if err = e.records.SetCurrentVersion(ctx, in.ParentID, snap.VersionNumber); err != nil {
		// The snapshot never became current; remove it rather than
		// leave an orphan in history.
		e.rollbackSnapshots(ctx, []string{snap.ID})
		return model.VersionSnapshot{}, err
	}

	e.metrics.RecordSnapshot(snap.IsMajor)
	e.logger.Info("version created",
		zap.Int64("parent_id", snap.ParentID),
		zap.Int64("version", snap.VersionNumber),
		zap.Bool("is_major", snap.IsMajor),
		zap.String("created_by", snap.CreatedBy),
	)
	span.SetAttributes(observability.AttrVersion.Int64(snap.VersionNumber))
	return snap, nil
}

// StageVersion appends a snapshot at the parent's next number without
// touching the current-version pointer. Empty content copies the
// parent's live content. Callers staging ahead of a guarded commit
// advance the pointer themselves once the commit lands, or remove the
// snapshot with DiscardVersion when it does not.
func (e *Engine) StageVersion(ctx context.Context, in CreateInput) (model.VersionSnapshot, error) {
	rec, err := e.records.Get(ctx, in.ParentID)
	if err != nil {
		return model.VersionSnapshot{}, err
	}
	if in.Content == "" {
		in.Content = rec.Content
	}
	return e.insertSnapshot(ctx, in)
}

// DiscardVersion removes a staged snapshot that never became current.
func (e *Engine) DiscardVersion(ctx context.Context, id string) error {
	return e.store.DeleteSnapshot(ctx, id)
}

// insertSnapshot appends a snapshot at the parent's next number with a
// freshly computed number per attempt. The backup snapshot taken before
// a revert goes through here too, so it never advances the pointer.
func (e *Engine) insertSnapshot(ctx context.Context, in CreateInput) (model.VersionSnapshot, error) {
	for attempt := 0; attempt < e.opts.MaxCreateRetries; attempt++ {
		max, err := e.store.MaxVersion(ctx, in.ParentID)
		if err != nil {
			return model.VersionSnapshot{}, err
		}

		snap := model.VersionSnapshot{
			ID:            uuid.New().String(),
			ParentID:      in.ParentID,
			VersionNumber: max + 1,
			Content:       in.Content,
			ChangeSummary: in.ChangeSummary,
			IsMajor:       in.IsMajor,
			Tags:          in.Tags,
			Metadata:      in.Metadata,
			CreatedBy:     in.CreatedBy,
			CreatedAt:     e.now(),
		}

		err = e.store.CreateSnapshot(ctx, snap)
		if err == nil {
			return snap, nil
		}
		if model.ReasonOf(err) != model.ConflictConcurrentEdit {
			return model.VersionSnapshot{}, err
		}
		// Lost the numbering race; recompute and retry.
		e.metrics.RecordSnapshotRetry()
	}
	return model.VersionSnapshot{}, model.NewConcurrencyError(
		fmt.Sprintf("could not allocate a version number for parent %d after %d attempts", in.ParentID, e.opts.MaxCreateRetries),
	)
}

// GetVersion returns a snapshot by ID.
func (e *Engine) GetVersion(ctx context.Context, id string) (model.VersionSnapshot, error) {
	return e.store.GetSnapshot(ctx, id)
}

// History returns the parent's snapshots newest-first.
func (e *Engine) History(ctx context.Context, parentID int64, limit, offset int) ([]model.VersionSnapshot, error) {
	if limit <= 0 {
		limit = 50
	}
	return e.store.ListByParent(ctx, parentID, limit, offset)
}

// Stats summarizes the parent's version history.
func (e *Engine) Stats(ctx context.Context, parentID int64) (model.VersionStats, error) {
	return e.store.Stats(ctx, parentID)
}

// Compare diffs two snapshots of the same parent line by line.
func (e *Engine) Compare(ctx context.Context, aID, bID string) (model.Diff, error) {
	a, err := e.store.GetSnapshot(ctx, aID)
	if err != nil {
		return model.Diff{}, err
	}
	b, err := e.store.GetSnapshot(ctx, bID)
	if err != nil {
		return model.Diff{}, err
	}
	if a.ParentID != b.ParentID {
		return model.Diff{}, model.NewValidationError(
			fmt.Sprintf("versions %q and %q belong to different parents", aID, bID),
		)
	}

	lines, inserted, deleted := diffLines(a.Content, b.Content)
	return model.Diff{
		ParentID: a.ParentID,
		AVersion: a.VersionNumber,
		BVersion: b.VersionNumber,
		Lines:    lines,
		Inserted: inserted,
		Deleted:  deleted,
	}, nil
}

// Revert restores a past snapshot's content as a brand-new version,
// never rewriting history. When backups are enabled the pre-revert
// content is snapshotted first so the revert is itself revertible. A
// failure to update the live record rolls the new snapshots back so
// history never shows a revert that did not take effect.
func (e *Engine) Revert(ctx context.Context, parentID int64, targetID, actorID, reason string) (model.VersionSnapshot, error) {
	ctx, span := observability.StartSpan(ctx, "version.Revert",
		observability.AttrResourceID.Int64(parentID),
		observability.AttrActorID.String(actorID),
	)
	var err error
	defer func() { observability.EndSpanWithError(span, err) }()

	var rec model.Record
	rec, err = e.records.Get(ctx, parentID)
	if err != nil {
		return model.VersionSnapshot{}, err
	}

	var target model.VersionSnapshot
	target, err = e.store.GetSnapshot(ctx, targetID)
	if err != nil {
		return model.VersionSnapshot{}, err
	}
	if target.ParentID != parentID {
		err = model.NewValidationError(
			fmt.Sprintf("version %q does not belong to record %d", targetID, parentID),
		)
		return model.VersionSnapshot{}, err
	}
	if target.VersionNumber == rec.CurrentVersion {
		err = model.NewValidationError(
			fmt.Sprintf("version %d is already current for record %d", target.VersionNumber, parentID),
		)
		return model.VersionSnapshot{}, err
	}

	var cleanup []string

	if e.opts.BackupOnRevert {
		var backup model.VersionSnapshot
		backup, err = e.insertSnapshot(ctx, CreateInput{
			ParentID:      parentID,
			Content:       rec.Content,
			ChangeSummary: fmt.Sprintf("backup before restoring version %d", target.VersionNumber),
			Metadata:      map[string]string{model.MetaBackupBeforeRestore: "true"},
			CreatedBy:     actorID,
		})
		if err != nil {
			e.metrics.RecordRevert("aborted")
			return model.VersionSnapshot{}, err
		}
		cleanup = append(cleanup, backup.ID)
	}

	meta := map[string]string{
		model.MetaRestoredFromVersion: strconv.FormatInt(target.VersionNumber, 10),
	}
	if reason != "" {
		meta[model.MetaRestoreReason] = reason
	}

	var reverted model.VersionSnapshot
	reverted, err = e.insertSnapshot(ctx, CreateInput{
		ParentID:      parentID,
		Content:       target.Content,
		ChangeSummary: fmt.Sprintf("restored version %d", target.VersionNumber),
		Metadata:      meta,
		CreatedBy:     actorID,
	})
	if err != nil {
		e.rollbackSnapshots(ctx, cleanup)
		e.metrics.RecordRevert("aborted")
		return model.VersionSnapshot{}, err
	}
	cleanup = append(cleanup, reverted.ID)

	if err = e.records.UpdateContent(ctx, parentID, target.Content, reverted.VersionNumber, rec.CurrentVersion); err != nil {
		e.rollbackSnapshots(ctx, cleanup)
		e.metrics.RecordRevert("aborted")
		return model.VersionSnapshot{}, err
	}

	e.metrics.RecordRevert("ok")
	e.metrics.RecordSnapshot(false)
	e.logger.Info("version reverted",
		zap.Int64("parent_id", parentID),
		zap.Int64("restored_version", target.VersionNumber),
		zap.Int64("new_version", reverted.VersionNumber),
		zap.String("actor_id", actorID),
	)
	span.SetAttributes(observability.AttrVersion.Int64(reverted.VersionNumber))
	return reverted, nil
}

// DeleteVersion removes a snapshot. The current version is protected:
// deleting it would orphan the record's pointer.
func (e *Engine) DeleteVersion(ctx context.Context, parentID int64, id string) error {
	snap, err := e.store.GetSnapshot(ctx, id)
	if err != nil {
		return err
	}
	if snap.ParentID != parentID {
		return model.NewValidationError(
			fmt.Sprintf("version %q does not belong to record %d", id, parentID),
		)
	}

	current, err := e.records.CurrentVersion(ctx, parentID)
	if err != nil {
		return err
	}
	if snap.VersionNumber == current {
		return model.NewValidationError(
			fmt.Sprintf("version %d is the current version of record %d and cannot be deleted", snap.VersionNumber, parentID),
		)
	}
	return e.store.DeleteSnapshot(ctx, id)
}

// rollbackSnapshots best-effort deletes snapshots created by a revert
// that did not take effect.
func (e *Engine) rollbackSnapshots(ctx context.Context, ids []string) {
	for _, id := range ids {
		if delErr := e.store.DeleteSnapshot(ctx, id); delErr != nil {
			e.logger.Error("revert rollback failed to delete snapshot",
				zap.String("snapshot_id", id),
				zap.Error(delErr),
			)
		}
	}
}
