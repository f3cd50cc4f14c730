package version

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/sellside/coedit/model"
)

type parentVersion struct {
	parentID int64
	number   int64
}

// MemoryStore is an in-memory snapshot store used by tests and the
// memory storage mode. It enforces the same (parent, version) uniqueness
// as the PostgreSQL store.
type MemoryStore struct {
	mu     sync.RWMutex
	byID   map[string]model.VersionSnapshot
	byVers map[parentVersion]string
}

// NewMemoryStore creates an empty in-memory snapshot store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		byID:   make(map[string]model.VersionSnapshot),
		byVers: make(map[parentVersion]string),
	}
}

// CreateSnapshot appends a snapshot.
func (s *MemoryStore) CreateSnapshot(_ context.Context, snap model.VersionSnapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := parentVersion{parentID: snap.ParentID, number: snap.VersionNumber}
	if _, exists := s.byVers[key]; exists {
		return model.NewConflictError(model.ConflictConcurrentEdit,
			fmt.Sprintf("version %d already exists for parent %d", snap.VersionNumber, snap.ParentID),
		)
	}
	s.byID[snap.ID] = snap
	s.byVers[key] = snap.ID
	return nil
}

// GetSnapshot returns a snapshot by ID.
func (s *MemoryStore) GetSnapshot(_ context.Context, id string) (model.VersionSnapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snap, ok := s.byID[id]
	if !ok {
		return model.VersionSnapshot{}, model.NewNotFoundError(
			fmt.Sprintf("version %q not found", id),
		)
	}
	return snap, nil
}

// ListByParent returns snapshots newest-first with pagination.
func (s *MemoryStore) ListByParent(_ context.Context, parentID int64, limit, offset int) ([]model.VersionSnapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var snaps []model.VersionSnapshot
	for _, snap := range s.byID {
		if snap.ParentID == parentID {
			snaps = append(snaps, snap)
		}
	}
	sort.Slice(snaps, func(i, j int) bool {
		return snaps[i].VersionNumber > snaps[j].VersionNumber
	})

	if offset >= len(snaps) {
		return nil, nil
	}
	snaps = snaps[offset:]
	if limit > 0 && limit < len(snaps) {
		snaps = snaps[:limit]
	}
	return snaps, nil
}

// MaxVersion returns the highest version number for a parent.
func (s *MemoryStore) MaxVersion(_ context.Context, parentID int64) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var max int64
	for key := range s.byVers {
		if key.parentID == parentID && key.number > max {
			max = key.number
		}
	}
	return max, nil
}

// DeleteSnapshot removes a snapshot.
func (s *MemoryStore) DeleteSnapshot(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap, ok := s.byID[id]
	if !ok {
		return model.NewNotFoundError(fmt.Sprintf("version %q not found", id))
	}
	delete(s.byID, id)
	delete(s.byVers, parentVersion{parentID: snap.ParentID, number: snap.VersionNumber})
	return nil
}

// Stats summarizes a parent's version history.
func (s *MemoryStore) Stats(_ context.Context, parentID int64) (model.VersionStats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var stats model.VersionStats
	for _, snap := range s.byID {
		if snap.ParentID != parentID {
			continue
		}
		stats.TotalVersions++
		if snap.IsMajor {
			stats.MajorVersionCount++
		}
		if stats.FirstVersionAt == nil || snap.CreatedAt.Before(*stats.FirstVersionAt) {
			t := snap.CreatedAt
			stats.FirstVersionAt = &t
		}
		if stats.LastVersionAt == nil || snap.CreatedAt.After(*stats.LastVersionAt) {
			t := snap.CreatedAt
			stats.LastVersionAt = &t
		}
	}
	return stats, nil
}

// Len reports the number of stored snapshots, for tests.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.byID)
}
