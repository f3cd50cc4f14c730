package lock

import (
	"context"
	"testing"
	"time"

	"github.com/sellside/coedit/model"
)

func testLock(id, holder string, resourceID int64, now time.Time, ttl time.Duration) model.Lock {
	return model.Lock{
		ID:              id,
		ResourceType:    model.ResourceProposal,
		ResourceID:      resourceID,
		HolderID:        holder,
		AcquiredAt:      now,
		ExpiresAt:       now.Add(ttl),
		LastRefreshedAt: now,
	}
}

func TestMemoryStoreAcquireRejectsOtherHolder(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	now := time.Now().UTC()

	if _, err := store.Acquire(ctx, testLock("a", "alice", 1, now, time.Minute), now); err != nil {
		t.Fatalf("first Acquire: %v", err)
	}

	_, err := store.Acquire(ctx, testLock("b", "bob", 1, now, time.Minute), now)
	if model.ReasonOf(err) != model.ConflictLockedByOther {
		t.Errorf("second Acquire = %v, want CONFLICT/LOCKED_BY_OTHER", err)
	}
}

func TestMemoryStoreAcquireSameHolderKeepsIdentity(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	now := time.Now().UTC()

	first, err := store.Acquire(ctx, testLock("a", "alice", 1, now, time.Minute), now)
	if err != nil {
		t.Fatalf("first Acquire: %v", err)
	}

	again, err := store.Acquire(ctx, testLock("b", "alice", 1, now, 2*time.Minute), now)
	if err != nil {
		t.Fatalf("re-Acquire: %v", err)
	}
	if again.ID != first.ID {
		t.Errorf("re-acquire changed lock identity: %q -> %q", first.ID, again.ID)
	}
	if !again.ExpiresAt.After(first.ExpiresAt) {
		t.Error("re-acquire did not extend expiry")
	}
}

func TestMemoryStoreAcquireOverLapsedLock(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	now := time.Now().UTC()

	if _, err := store.Acquire(ctx, testLock("a", "alice", 1, now.Add(-2*time.Minute), time.Minute), now.Add(-2*time.Minute)); err != nil {
		t.Fatalf("seed Acquire: %v", err)
	}

	// Alice's lock lapsed a minute ago; bob takes over without a sweep.
	lk, err := store.Acquire(ctx, testLock("b", "bob", 1, now, time.Minute), now)
	if err != nil {
		t.Fatalf("Acquire over lapsed: %v", err)
	}
	if lk.HolderID != "bob" || lk.ID != "b" {
		t.Errorf("lock = %+v", lk)
	}
}

func TestMemoryStoreGetActiveIgnoresLapsed(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	now := time.Now().UTC()

	if _, err := store.Acquire(ctx, testLock("a", "alice", 1, now, time.Minute), now); err != nil {
		t.Fatalf("Acquire: %v", err)
	}

	lk, err := store.GetActive(ctx, model.ResourceProposal, 1, now)
	if err != nil {
		t.Fatalf("GetActive: %v", err)
	}
	if lk == nil || lk.HolderID != "alice" {
		t.Fatalf("GetActive = %+v", lk)
	}

	// After expiry the same row is invisible, though still stored.
	lk, err = store.GetActive(ctx, model.ResourceProposal, 1, now.Add(2*time.Minute))
	if err != nil {
		t.Fatalf("GetActive after expiry: %v", err)
	}
	if lk != nil {
		t.Errorf("lapsed lock still visible: %+v", lk)
	}
	if store.Len() != 1 {
		t.Errorf("Len = %d, want 1 (row kept until sweep)", store.Len())
	}
}

func TestMemoryStoreUpdateExpiryRejectsLapsed(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	now := time.Now().UTC()

	if _, err := store.Acquire(ctx, testLock("a", "alice", 1, now, time.Minute), now); err != nil {
		t.Fatalf("Acquire: %v", err)
	}

	late := now.Add(5 * time.Minute)
	_, err := store.UpdateExpiry(ctx, "a", late.Add(time.Minute), late, late)
	if model.CodeOf(err) != model.ErrNotFound {
		t.Errorf("UpdateExpiry on lapsed = %v, want NOT_FOUND", err)
	}
}

func TestMemoryStoreDeleteLapsedBefore(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	now := time.Now().UTC()

	// One long-lapsed, one recently lapsed, one active.
	if _, err := store.Acquire(ctx, testLock("a", "alice", 1, now.Add(-3*time.Hour), time.Minute), now.Add(-3*time.Hour)); err != nil {
		t.Fatal(err)
	}
	if _, err := store.Acquire(ctx, testLock("b", "bob", 2, now.Add(-2*time.Minute), time.Minute), now.Add(-2*time.Minute)); err != nil {
		t.Fatal(err)
	}
	if _, err := store.Acquire(ctx, testLock("c", "carol", 3, now, time.Hour), now); err != nil {
		t.Fatal(err)
	}

	reclaimed, err := store.DeleteLapsedBefore(ctx, now.Add(-time.Hour))
	if err != nil {
		t.Fatalf("DeleteLapsedBefore: %v", err)
	}
	if reclaimed != 1 {
		t.Errorf("reclaimed = %d, want 1", reclaimed)
	}
	if store.Len() != 2 {
		t.Errorf("Len = %d, want 2", store.Len())
	}
}
