package record

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sellside/coedit/model"
)

// MemoryStore is an in-memory record store for testing.
type MemoryStore struct {
	mu      sync.RWMutex
	records map[int64]model.Record
}

// NewMemoryStore creates a new in-memory record store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[int64]model.Record)}
}

// Create persists a new record.
func (s *MemoryStore) Create(_ context.Context, rec model.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.records[rec.ID]; exists {
		return model.NewConflictError(model.ConflictConcurrentEdit,
			fmt.Sprintf("record %d already exists", rec.ID),
		)
	}
	s.records[rec.ID] = rec
	return nil
}

// Get retrieves a record by ID.
func (s *MemoryStore) Get(_ context.Context, id int64) (model.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, exists := s.records[id]
	if !exists {
		return model.Record{}, model.NewNotFoundError(
			fmt.Sprintf("record %d not found", id),
		)
	}
	return rec, nil
}

// UpdateContent overwrites live content guarded by the expected version.
func (s *MemoryStore) UpdateContent(_ context.Context, id int64, content string, newVersion, expectedVersion int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, exists := s.records[id]
	if !exists {
		return model.NewNotFoundError(fmt.Sprintf("record %d not found", id))
	}
	if rec.CurrentVersion != expectedVersion {
		return model.NewConflictError(model.ConflictConcurrentEdit,
			fmt.Sprintf("record %d moved past version %d", id, expectedVersion),
		)
	}
	rec.Content = content
	rec.CurrentVersion = newVersion
	rec.UpdatedAt = time.Now().UTC()
	s.records[id] = rec
	return nil
}

// SetCurrentVersion advances the current-version pointer.
func (s *MemoryStore) SetCurrentVersion(_ context.Context, id, n int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, exists := s.records[id]
	if !exists {
		return model.NewNotFoundError(fmt.Sprintf("record %d not found", id))
	}
	if n > rec.CurrentVersion {
		rec.CurrentVersion = n
	}
	rec.UpdatedAt = time.Now().UTC()
	s.records[id] = rec
	return nil
}

// UpdateStatus moves the record between statuses, guarded by from.
func (s *MemoryStore) UpdateStatus(_ context.Context, id int64, from, to model.Status) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, exists := s.records[id]
	if !exists {
		return model.NewNotFoundError(fmt.Sprintf("record %d not found", id))
	}
	if rec.Status != from {
		return model.NewConflictError(model.ConflictConcurrentEdit,
			fmt.Sprintf("record %d is no longer %q", id, from),
		)
	}
	rec.Status = to
	rec.UpdatedAt = time.Now().UTC()
	s.records[id] = rec
	return nil
}

// CurrentVersion returns the record's current version number.
func (s *MemoryStore) CurrentVersion(_ context.Context, id int64) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, exists := s.records[id]
	if !exists {
		return 0, model.NewNotFoundError(fmt.Sprintf("record %d not found", id))
	}
	return rec.CurrentVersion, nil
}
