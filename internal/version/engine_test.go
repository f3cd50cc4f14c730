package version

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sellside/coedit/internal/record"
	"github.com/sellside/coedit/model"
)

func setupEngine(t *testing.T, opts Options) (*Engine, *record.MemoryStore, *MemoryStore) {
	t.Helper()
	records := record.NewMemoryStore()
	snapshots := NewMemoryStore()
	engine := NewEngine(records, snapshots, nil, nil, opts)
	return engine, records, snapshots
}

func seedRecord(t *testing.T, records *record.MemoryStore, id int64, content string, currentVersion int64) {
	t.Helper()
	now := time.Now().UTC()
	err := records.Create(context.Background(), model.Record{
		ID:             id,
		ResourceType:   model.ResourceProposal,
		Title:          "Q3 renewal",
		Content:        content,
		CurrentVersion: currentVersion,
		Status:         model.StatusDraft,
		OwnerID:        "alice",
		CreatedAt:      now,
		UpdatedAt:      now,
	})
	require.NoError(t, err)
}

func TestCreateVersionAdvancesPointer(t *testing.T) {
	engine, records, _ := setupEngine(t, Options{})
	ctx := context.Background()
	seedRecord(t, records, 1, "draft", 0)

	snap, err := engine.CreateVersion(ctx, CreateInput{
		ParentID:      1,
		Content:       "draft",
		ChangeSummary: "initial draft",
		CreatedBy:     "alice",
	})
	require.NoError(t, err)
	assert.Equal(t, int64(1), snap.VersionNumber)

	current, err := records.CurrentVersion(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(1), current)
}

func TestCreateVersionUnknownParent(t *testing.T) {
	engine, _, _ := setupEngine(t, Options{})

	_, err := engine.CreateVersion(context.Background(), CreateInput{ParentID: 99, CreatedBy: "alice"})
	assert.Equal(t, model.ErrNotFound, model.CodeOf(err))
}

// TestCreateVersionConcurrentWritersGetContiguousNumbers is the core
// numbering property: under heavy contention every writer gets its own
// version and the sequence has no gaps and no duplicates.
func TestCreateVersionConcurrentWritersGetContiguousNumbers(t *testing.T) {
	engine, records, snapshots := setupEngine(t, Options{MaxCreateRetries: 50})
	ctx := context.Background()
	seedRecord(t, records, 1, "draft", 0)

	const writers = 20
	var wg sync.WaitGroup
	numbers := make(chan int64, writers)

	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			snap, err := engine.CreateVersion(ctx, CreateInput{
				ParentID:  1,
				Content:   fmt.Sprintf("edit %d", i),
				CreatedBy: fmt.Sprintf("writer-%d", i),
			})
			if err != nil {
				t.Errorf("writer %d: %v", i, err)
				return
			}
			numbers <- snap.VersionNumber
		}(i)
	}
	wg.Wait()
	close(numbers)

	seen := make(map[int64]bool)
	for n := range numbers {
		assert.False(t, seen[n], "duplicate version number %d", n)
		seen[n] = true
	}
	require.Len(t, seen, writers)
	for n := int64(1); n <= writers; n++ {
		assert.True(t, seen[n], "gap at version %d", n)
	}

	assert.Equal(t, writers, snapshots.Len())
	current, err := records.CurrentVersion(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(writers), current)
}

// TestCreateVersionCopiesLiveContentByDefault: leaving content empty
// snapshots whatever the parent currently holds.
func TestCreateVersionCopiesLiveContentByDefault(t *testing.T) {
	engine, records, _ := setupEngine(t, Options{})
	ctx := context.Background()
	seedRecord(t, records, 1, "live body", 0)

	snap, err := engine.CreateVersion(ctx, CreateInput{ParentID: 1, ChangeSummary: "checkpoint", CreatedBy: "alice"})
	require.NoError(t, err)
	assert.Equal(t, "live body", snap.Content)
}

func TestStageVersionLeavesPointerUntouched(t *testing.T) {
	engine, records, snapshots := setupEngine(t, Options{})
	ctx := context.Background()
	seedRecord(t, records, 1, "body", 0)

	snap, err := engine.StageVersion(ctx, CreateInput{ParentID: 1, CreatedBy: "carol"})
	require.NoError(t, err)
	assert.Equal(t, int64(1), snap.VersionNumber)
	assert.Equal(t, "body", snap.Content)

	current, err := records.CurrentVersion(ctx, 1)
	require.NoError(t, err)
	assert.Zero(t, current)

	require.NoError(t, engine.DiscardVersion(ctx, snap.ID))
	assert.Zero(t, snapshots.Len())
}

type failingPointerStore struct {
	*record.MemoryStore
}

func (failingPointerStore) SetCurrentVersion(context.Context, int64, int64) error {
	return errors.New("connection reset")
}

func TestCreateVersionRollsBackWhenPointerUpdateFails(t *testing.T) {
	records := record.NewMemoryStore()
	snapshots := NewMemoryStore()
	seedRecord(t, records, 1, "v1", 0)
	engine := NewEngine(failingPointerStore{MemoryStore: records}, snapshots, nil, nil, Options{})

	_, err := engine.CreateVersion(context.Background(), CreateInput{ParentID: 1, Content: "v1", CreatedBy: "alice"})
	require.Error(t, err)
	assert.Zero(t, snapshots.Len(), "snapshot that never became current must be removed")
}

type alwaysConflictStore struct {
	Store
}

func (alwaysConflictStore) CreateSnapshot(context.Context, model.VersionSnapshot) error {
	return model.NewConflictError(model.ConflictConcurrentEdit, "simulated numbering race")
}

func TestCreateVersionExhaustsRetries(t *testing.T) {
	records := record.NewMemoryStore()
	seedRecord(t, records, 1, "draft", 0)
	engine := NewEngine(records, alwaysConflictStore{Store: NewMemoryStore()}, nil, nil, Options{MaxCreateRetries: 3})

	_, err := engine.CreateVersion(context.Background(), CreateInput{ParentID: 1, CreatedBy: "alice"})
	assert.Equal(t, model.ErrConcurrencyError, model.CodeOf(err))
}

func TestRevertCreatesBackupThenNewVersion(t *testing.T) {
	engine, records, snapshots := setupEngine(t, Options{BackupOnRevert: true})
	ctx := context.Background()
	seedRecord(t, records, 1, "v1", 0)

	v1, err := engine.CreateVersion(ctx, CreateInput{ParentID: 1, Content: "v1", CreatedBy: "alice"})
	require.NoError(t, err)
	_, err = engine.CreateVersion(ctx, CreateInput{ParentID: 1, Content: "v2", CreatedBy: "alice"})
	require.NoError(t, err)
	require.NoError(t, records.UpdateContent(ctx, 1, "v2", 2, 2))

	reverted, err := engine.Revert(ctx, 1, v1.ID, "bob", "client asked for the old pricing")
	require.NoError(t, err)

	// Backup of the pre-revert content is version 3; the restore is 4.
	assert.Equal(t, int64(4), reverted.VersionNumber)
	assert.Equal(t, "v1", reverted.Content)
	assert.Equal(t, "1", reverted.Metadata[model.MetaRestoredFromVersion])
	assert.Equal(t, "client asked for the old pricing", reverted.Metadata[model.MetaRestoreReason])

	history, err := engine.History(ctx, 1, 10, 0)
	require.NoError(t, err)
	require.Len(t, history, 4)
	backup := history[1]
	assert.Equal(t, int64(3), backup.VersionNumber)
	assert.Equal(t, "v2", backup.Content)
	assert.Equal(t, "true", backup.Metadata[model.MetaBackupBeforeRestore])

	rec, err := records.Get(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, "v1", rec.Content)
	assert.Equal(t, int64(4), rec.CurrentVersion)

	assert.Equal(t, 4, snapshots.Len())
}

func TestRevertWithoutBackup(t *testing.T) {
	engine, records, snapshots := setupEngine(t, Options{BackupOnRevert: false})
	ctx := context.Background()
	seedRecord(t, records, 1, "v1", 0)

	v1, err := engine.CreateVersion(ctx, CreateInput{ParentID: 1, Content: "v1", CreatedBy: "alice"})
	require.NoError(t, err)
	_, err = engine.CreateVersion(ctx, CreateInput{ParentID: 1, Content: "v2", CreatedBy: "alice"})
	require.NoError(t, err)
	require.NoError(t, records.UpdateContent(ctx, 1, "v2", 2, 2))

	reverted, err := engine.Revert(ctx, 1, v1.ID, "bob", "")
	require.NoError(t, err)
	assert.Equal(t, int64(3), reverted.VersionNumber)
	assert.Equal(t, 3, snapshots.Len())
}

func TestRevertToCurrentVersionRejected(t *testing.T) {
	engine, records, snapshots := setupEngine(t, Options{BackupOnRevert: true})
	ctx := context.Background()
	seedRecord(t, records, 1, "v1", 0)

	v1, err := engine.CreateVersion(ctx, CreateInput{ParentID: 1, Content: "v1", CreatedBy: "alice"})
	require.NoError(t, err)

	before := snapshots.Len()
	_, err = engine.Revert(ctx, 1, v1.ID, "bob", "")
	assert.Equal(t, model.ErrValidationError, model.CodeOf(err))
	assert.Equal(t, before, snapshots.Len(), "a rejected revert must write nothing")
}

func TestRevertWrongParentRejected(t *testing.T) {
	engine, records, _ := setupEngine(t, Options{})
	ctx := context.Background()
	seedRecord(t, records, 1, "v1", 0)
	seedRecord(t, records, 2, "other", 0)

	other, err := engine.CreateVersion(ctx, CreateInput{ParentID: 2, Content: "other", CreatedBy: "alice"})
	require.NoError(t, err)

	_, err = engine.Revert(ctx, 1, other.ID, "bob", "")
	assert.Equal(t, model.ErrValidationError, model.CodeOf(err))
}

type failingContentStore struct {
	*record.MemoryStore
}

func (failingContentStore) UpdateContent(context.Context, int64, string, int64, int64) error {
	return model.NewConflictError(model.ConflictConcurrentEdit, "simulated pointer race")
}

// TestRevertRollsBackSnapshotsOnFailure: when the live record cannot be
// updated, the backup and restore snapshots must not survive — history
// never shows a revert that did not take effect.
func TestRevertRollsBackSnapshotsOnFailure(t *testing.T) {
	records := record.NewMemoryStore()
	snapshots := NewMemoryStore()
	seedRecord(t, records, 1, "v1", 0)

	seeder := NewEngine(records, snapshots, nil, nil, Options{})
	v1, err := seeder.CreateVersion(context.Background(), CreateInput{ParentID: 1, Content: "v1", CreatedBy: "alice"})
	require.NoError(t, err)
	_, err = seeder.CreateVersion(context.Background(), CreateInput{ParentID: 1, Content: "v2", CreatedBy: "alice"})
	require.NoError(t, err)

	engine := NewEngine(failingContentStore{MemoryStore: records}, snapshots, nil, nil, Options{BackupOnRevert: true})
	before := snapshots.Len()

	_, err = engine.Revert(context.Background(), 1, v1.ID, "bob", "")
	assert.Equal(t, model.ConflictConcurrentEdit, model.ReasonOf(err))
	assert.Equal(t, before, snapshots.Len(), "compensating deletes must remove both snapshots")
}

func TestDeleteVersionRefusesCurrent(t *testing.T) {
	engine, records, _ := setupEngine(t, Options{})
	ctx := context.Background()
	seedRecord(t, records, 1, "v1", 0)

	v1, err := engine.CreateVersion(ctx, CreateInput{ParentID: 1, Content: "v1", CreatedBy: "alice"})
	require.NoError(t, err)
	v2, err := engine.CreateVersion(ctx, CreateInput{ParentID: 1, Content: "v2", CreatedBy: "alice"})
	require.NoError(t, err)

	err = engine.DeleteVersion(ctx, 1, v2.ID)
	assert.Equal(t, model.ErrValidationError, model.CodeOf(err))

	require.NoError(t, engine.DeleteVersion(ctx, 1, v1.ID))
	_, err = engine.GetVersion(ctx, v1.ID)
	assert.Equal(t, model.ErrNotFound, model.CodeOf(err))
}

func TestCompareAcrossParentsRejected(t *testing.T) {
	engine, records, _ := setupEngine(t, Options{})
	ctx := context.Background()
	seedRecord(t, records, 1, "a", 0)
	seedRecord(t, records, 2, "b", 0)

	a, err := engine.CreateVersion(ctx, CreateInput{ParentID: 1, Content: "a", CreatedBy: "alice"})
	require.NoError(t, err)
	b, err := engine.CreateVersion(ctx, CreateInput{ParentID: 2, Content: "b", CreatedBy: "alice"})
	require.NoError(t, err)

	_, err = engine.Compare(ctx, a.ID, b.ID)
	assert.Equal(t, model.ErrValidationError, model.CodeOf(err))
}

func TestCompareProducesLineDiff(t *testing.T) {
	engine, records, _ := setupEngine(t, Options{})
	ctx := context.Background()
	seedRecord(t, records, 1, "", 0)

	a, err := engine.CreateVersion(ctx, CreateInput{ParentID: 1, Content: "intro\npricing: old\n", CreatedBy: "alice"})
	require.NoError(t, err)
	b, err := engine.CreateVersion(ctx, CreateInput{ParentID: 1, Content: "intro\npricing: new\n", CreatedBy: "bob"})
	require.NoError(t, err)

	diff, err := engine.Compare(ctx, a.ID, b.ID)
	require.NoError(t, err)
	assert.Equal(t, a.VersionNumber, diff.AVersion)
	assert.Equal(t, b.VersionNumber, diff.BVersion)
	assert.Equal(t, 1, diff.Inserted)
	assert.Equal(t, 1, diff.Deleted)
}

func TestStatsCountsMajors(t *testing.T) {
	engine, records, _ := setupEngine(t, Options{})
	ctx := context.Background()
	seedRecord(t, records, 1, "v1", 0)

	_, err := engine.CreateVersion(ctx, CreateInput{ParentID: 1, Content: "v1", CreatedBy: "alice"})
	require.NoError(t, err)
	_, err = engine.CreateVersion(ctx, CreateInput{ParentID: 1, Content: "v2", IsMajor: true, CreatedBy: "alice"})
	require.NoError(t, err)

	stats, err := engine.Stats(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(2), stats.TotalVersions)
	assert.Equal(t, int64(1), stats.MajorVersionCount)
}

func TestRevertMetadataRoundTrips(t *testing.T) {
	engine, records, _ := setupEngine(t, Options{BackupOnRevert: false})
	ctx := context.Background()
	seedRecord(t, records, 1, "v1", 0)

	v1, err := engine.CreateVersion(ctx, CreateInput{ParentID: 1, Content: "v1", CreatedBy: "alice"})
	require.NoError(t, err)
	_, err = engine.CreateVersion(ctx, CreateInput{ParentID: 1, Content: "v2", CreatedBy: "alice"})
	require.NoError(t, err)
	require.NoError(t, records.UpdateContent(ctx, 1, "v2", 2, 2))

	reverted, err := engine.Revert(ctx, 1, v1.ID, "bob", "rollback")
	require.NoError(t, err)

	fetched, err := engine.GetVersion(ctx, reverted.ID)
	require.NoError(t, err)
	n, err := strconv.ParseInt(fetched.Metadata[model.MetaRestoredFromVersion], 10, 64)
	require.NoError(t, err)
	assert.Equal(t, v1.VersionNumber, n)
}
