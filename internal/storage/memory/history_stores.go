package memory

import (
	"context"
	"sort"
	"sync"

	"token-trader/internal/domain"
	"token-trader/internal/storage"
)

// ScoreHistoryStore is an in-memory implementation of
// storage.ScoreHistoryStore.
type ScoreHistoryStore struct {
	mu   sync.RWMutex
	data []*domain.ScorePoint
}

// NewScoreHistoryStore creates a new in-memory score history store.
func NewScoreHistoryStore() *ScoreHistoryStore {
	return &ScoreHistoryStore{}
}

// InsertBulk appends score observations.
func (s *ScoreHistoryStore) InsertBulk(_ context.Context, points []*domain.ScorePoint) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, p := range points {
		if p == nil || p.RunID == "" {
			return storage.ErrInvalidInput
		}
		pointCopy := *p
		s.data = append(s.data, &pointCopy)
	}
	return nil
}

// GetByRunID retrieves all observations for a run, highest total first.
func (s *ScoreHistoryStore) GetByRunID(_ context.Context, runID string) ([]*domain.ScorePoint, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.ScorePoint
	for _, p := range s.data {
		if p.RunID == runID {
			pointCopy := *p
			result = append(result, &pointCopy)
		}
	}

	sort.SliceStable(result, func(i, j int) bool {
		return result[i].Total > result[j].Total
	})

	return result, nil
}

// ValidationSignalStore is an in-memory implementation of
// storage.ValidationSignalStore.
type ValidationSignalStore struct {
	mu   sync.RWMutex
	data []*domain.SignalPoint
}

// NewValidationSignalStore creates a new in-memory validation signal store.
func NewValidationSignalStore() *ValidationSignalStore {
	return &ValidationSignalStore{}
}

// InsertBulk appends signal observations.
func (s *ValidationSignalStore) InsertBulk(_ context.Context, points []*domain.SignalPoint) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, p := range points {
		if p == nil || p.RunID == "" {
			return storage.ErrInvalidInput
		}
		pointCopy := *p
		s.data = append(s.data, &pointCopy)
	}
	return nil
}

// GetByRunID retrieves all observations for a run in insertion order.
func (s *ValidationSignalStore) GetByRunID(_ context.Context, runID string) ([]*domain.SignalPoint, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.SignalPoint
	for _, p := range s.data {
		if p.RunID == runID {
			pointCopy := *p
			result = append(result, &pointCopy)
		}
	}

	return result, nil
}

// Verify interface compliance at compile time.
var (
	_ storage.ScoreHistoryStore     = (*ScoreHistoryStore)(nil)
	_ storage.ValidationSignalStore = (*ValidationSignalStore)(nil)
)
