package lock

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sellside/coedit/model"
)

type resourceKey struct {
	resourceType string
	resourceID   int64
}

// MemoryStore is an in-memory lock store for testing. It keeps the same
// one-row-per-resource shape as the PostgreSQL store.
type MemoryStore struct {
	mu    sync.Mutex
	locks map[resourceKey]model.Lock
}

// NewMemoryStore creates a new in-memory lock store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{locks: make(map[resourceKey]model.Lock)}
}

// Acquire atomically installs the candidate lock.
func (s *MemoryStore) Acquire(_ context.Context, candidate model.Lock, now time.Time) (model.Lock, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := resourceKey{candidate.ResourceType, candidate.ResourceID}
	existing, exists := s.locks[key]
	if exists && existing.Active(now) {
		if existing.HolderID != candidate.HolderID {
			return model.Lock{}, model.NewConflictError(model.ConflictLockedByOther,
				fmt.Sprintf("%s %d is locked by %s", candidate.ResourceType, candidate.ResourceID, existing.HolderID),
			)
		}
		// Same holder: keep the lock's identity, extend its expiry.
		existing.ExpiresAt = candidate.ExpiresAt
		existing.LastRefreshedAt = candidate.LastRefreshedAt
		s.locks[key] = existing
		return existing, nil
	}

	s.locks[key] = candidate
	return candidate, nil
}

// Replace unconditionally installs the candidate lock.
func (s *MemoryStore) Replace(_ context.Context, candidate model.Lock) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.locks[resourceKey{candidate.ResourceType, candidate.ResourceID}] = candidate
	return nil
}

// GetActive returns the active lock for a resource, or nil.
func (s *MemoryStore) GetActive(_ context.Context, resourceType string, resourceID int64, now time.Time) (*model.Lock, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	lk, exists := s.locks[resourceKey{resourceType, resourceID}]
	if !exists || !lk.Active(now) {
		return nil, nil
	}
	out := lk
	return &out, nil
}

// GetByID returns a lock row by ID regardless of expiry.
func (s *MemoryStore) GetByID(_ context.Context, id string) (model.Lock, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, lk := range s.locks {
		if lk.ID == id {
			return lk, nil
		}
	}
	return model.Lock{}, model.NewNotFoundError(fmt.Sprintf("lock %q not found", id))
}

// UpdateExpiry extends a still-active lock.
func (s *MemoryStore) UpdateExpiry(_ context.Context, id string, expiresAt, refreshedAt, now time.Time) (model.Lock, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for key, lk := range s.locks {
		if lk.ID != id {
			continue
		}
		if !lk.Active(now) {
			break
		}
		lk.ExpiresAt = expiresAt
		lk.LastRefreshedAt = refreshedAt
		s.locks[key] = lk
		return lk, nil
	}
	return model.Lock{}, model.NewNotFoundError(
		fmt.Sprintf("lock %q has expired or been released", id),
	)
}

// Delete removes a lock row.
func (s *MemoryStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for key, lk := range s.locks {
		if lk.ID == id {
			delete(s.locks, key)
			return nil
		}
	}
	return model.NewNotFoundError(fmt.Sprintf("lock %q not found", id))
}

// DeleteLapsedBefore reclaims rows that lapsed before the cutoff.
func (s *MemoryStore) DeleteLapsedBefore(_ context.Context, cutoff time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var reclaimed int64
	for key, lk := range s.locks {
		if lk.ExpiresAt.Before(cutoff) {
			delete(s.locks, key)
			reclaimed++
		}
	}
	return reclaimed, nil
}

// Len returns the number of lock rows, lapsed included. For testing.
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.locks)
}
