package version

import (
	"context"
	"testing"
	"time"

	"github.com/sellside/coedit/model"
)

func testSnapshot(id string, parentID, number int64) model.VersionSnapshot {
	return model.VersionSnapshot{
		ID:            id,
		ParentID:      parentID,
		VersionNumber: number,
		Content:       "content",
		CreatedBy:     "alice",
		CreatedAt:     time.Now().UTC(),
	}
}

func TestMemoryStoreRejectsDuplicateVersionNumber(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	if err := store.CreateSnapshot(ctx, testSnapshot("a", 1, 1)); err != nil {
		t.Fatalf("CreateSnapshot: %v", err)
	}

	err := store.CreateSnapshot(ctx, testSnapshot("b", 1, 1))
	if model.ReasonOf(err) != model.ConflictConcurrentEdit {
		t.Errorf("duplicate = %v, want CONFLICT/CONCURRENT_EDIT", err)
	}

	// The same number under a different parent is fine.
	if err := store.CreateSnapshot(ctx, testSnapshot("c", 2, 1)); err != nil {
		t.Errorf("different parent: %v", err)
	}
}

func TestMemoryStoreListByParentOrdersNewestFirst(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	for i := int64(1); i <= 5; i++ {
		if err := store.CreateSnapshot(ctx, testSnapshot(string(rune('a'+i)), 1, i)); err != nil {
			t.Fatalf("CreateSnapshot %d: %v", i, err)
		}
	}

	snaps, err := store.ListByParent(ctx, 1, 3, 0)
	if err != nil {
		t.Fatalf("ListByParent: %v", err)
	}
	if len(snaps) != 3 {
		t.Fatalf("len = %d, want 3", len(snaps))
	}
	if snaps[0].VersionNumber != 5 || snaps[2].VersionNumber != 3 {
		t.Errorf("order = %d..%d, want 5..3", snaps[0].VersionNumber, snaps[2].VersionNumber)
	}

	page2, err := store.ListByParent(ctx, 1, 3, 3)
	if err != nil {
		t.Fatalf("ListByParent offset: %v", err)
	}
	if len(page2) != 2 || page2[0].VersionNumber != 2 {
		t.Errorf("page2 = %+v", page2)
	}
}

func TestMemoryStoreMaxVersion(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	max, err := store.MaxVersion(ctx, 1)
	if err != nil {
		t.Fatalf("MaxVersion: %v", err)
	}
	if max != 0 {
		t.Errorf("MaxVersion(empty) = %d, want 0", max)
	}

	if err := store.CreateSnapshot(ctx, testSnapshot("a", 1, 4)); err != nil {
		t.Fatal(err)
	}
	max, _ = store.MaxVersion(ctx, 1)
	if max != 4 {
		t.Errorf("MaxVersion = %d, want 4", max)
	}
}

func TestMemoryStoreStats(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	regular := testSnapshot("a", 1, 1)
	major := testSnapshot("b", 1, 2)
	major.IsMajor = true
	if err := store.CreateSnapshot(ctx, regular); err != nil {
		t.Fatal(err)
	}
	if err := store.CreateSnapshot(ctx, major); err != nil {
		t.Fatal(err)
	}

	stats, err := store.Stats(ctx, 1)
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if stats.TotalVersions != 2 || stats.MajorVersionCount != 1 {
		t.Errorf("stats = %+v", stats)
	}
	if stats.FirstVersionAt == nil || stats.LastVersionAt == nil {
		t.Error("timestamps missing")
	}
}
