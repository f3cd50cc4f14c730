package workflow

import (
	"context"
	"sync"

	"github.com/sellside/coedit/internal/record"
	"github.com/sellside/coedit/model"
)

// MemoryStore is an in-memory transition store used by tests and the
// memory storage mode. It delegates the guarded status update and the
// pointer advance to the record store; the append below cannot fail, so
// the pair behaves atomically.
type MemoryStore struct {
	mu          sync.RWMutex
	records     record.Store
	transitions []model.StateTransition
}

// NewMemoryStore creates an empty in-memory transition store over the
// given record store.
func NewMemoryStore(records record.Store) *MemoryStore {
	return &MemoryStore{records: records}
}

// CommitTransition applies the status change, pointer advance and audit
// row together.
func (s *MemoryStore) CommitTransition(ctx context.Context, from, to model.Status, snapshotVersion int64, tr model.StateTransition) error {
	if err := s.records.UpdateStatus(ctx, tr.RecordID, from, to); err != nil {
		return err
	}
	if snapshotVersion > 0 {
		if err := s.records.SetCurrentVersion(ctx, tr.RecordID, snapshotVersion); err != nil {
			return err
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.transitions = append(s.transitions, tr)
	return nil
}

// History returns a record's transitions newest-first.
func (s *MemoryStore) History(_ context.Context, recordID int64, limit, offset int) ([]model.StateTransition, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var trs []model.StateTransition
	for i := len(s.transitions) - 1; i >= 0; i-- {
		if s.transitions[i].RecordID == recordID {
			trs = append(trs, s.transitions[i])
		}
	}

	if offset >= len(trs) {
		return nil, nil
	}
	trs = trs[offset:]
	if limit > 0 && limit < len(trs) {
		trs = trs[:limit]
	}
	return trs, nil
}

// Len reports the total number of stored transitions, for tests.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.transitions)
}
