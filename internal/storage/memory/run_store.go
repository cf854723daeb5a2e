package memory

import (
	"context"
	"sort"
	"sync"

	"token-trader/internal/domain"
	"token-trader/internal/storage"
)

// RunStore is an in-memory implementation of storage.RunStore.
type RunStore struct {
	mu   sync.RWMutex
	data map[string]*domain.WorkflowRun // keyed by run_id
}

// NewRunStore creates a new in-memory run store.
func NewRunStore() *RunStore {
	return &RunStore{
		data: make(map[string]*domain.WorkflowRun),
	}
}

// Create adds a new run. Returns ErrDuplicateKey if run_id exists.
func (s *RunStore) Create(_ context.Context, run *domain.WorkflowRun) error {
	if run == nil || run.RunID == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.data[run.RunID]; exists {
		return storage.ErrDuplicateKey
	}

	s.data[run.RunID] = copyRun(run)
	return nil
}

// Get retrieves a run by its ID. Returns ErrNotFound if not exists.
func (s *RunStore) Get(_ context.Context, runID string) (*domain.WorkflowRun, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	run, exists := s.data[runID]
	if !exists {
		return nil, storage.ErrNotFound
	}

	return copyRun(run), nil
}

// Update overwrites the stored state of an existing run.
func (s *RunStore) Update(_ context.Context, run *domain.WorkflowRun) error {
	if run == nil || run.RunID == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.data[run.RunID]; !exists {
		return storage.ErrNotFound
	}

	s.data[run.RunID] = copyRun(run)
	return nil
}

// ListByStage retrieves all runs in the given stage, ordered by creation
// time ASC.
func (s *RunStore) ListByStage(_ context.Context, stage domain.Stage) ([]*domain.WorkflowRun, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.WorkflowRun
	for _, run := range s.data {
		if run.Stage == stage {
			result = append(result, copyRun(run))
		}
	}

	sort.Slice(result, func(i, j int) bool {
		if result[i].CreatedAt != result[j].CreatedAt {
			return result[i].CreatedAt < result[j].CreatedAt
		}
		return result[i].RunID < result[j].RunID
	})

	return result, nil
}

// copyRun returns a deep copy to prevent external mutation.
func copyRun(run *domain.WorkflowRun) *domain.WorkflowRun {
	c := *run
	if run.CandidateAddresses != nil {
		c.CandidateAddresses = append([]string(nil), run.CandidateAddresses...)
	}
	if run.TradeResult != nil {
		c.TradeResult = append(domain.TradeResult(nil), run.TradeResult...)
	}
	return &c
}

// Verify interface compliance at compile time.
var _ storage.RunStore = (*RunStore)(nil)
