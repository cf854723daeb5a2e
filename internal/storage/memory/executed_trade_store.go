package memory

import (
	"context"
	"strings"
	"sync"

	"token-trader/internal/domain"
	"token-trader/internal/storage"
)

// ExecutedTradeStore is an in-memory implementation of
// storage.ExecutedTradeStore. Addresses are matched case-insensitively.
type ExecutedTradeStore struct {
	mu   sync.RWMutex
	data map[string]*domain.ExecutedTrade // keyed by lowercased address
}

// NewExecutedTradeStore creates a new in-memory executed trade store.
func NewExecutedTradeStore() *ExecutedTradeStore {
	return &ExecutedTradeStore{
		data: make(map[string]*domain.ExecutedTrade),
	}
}

// Insert records an executed trade. Returns ErrDuplicateKey if the address
// was already recorded.
func (s *ExecutedTradeStore) Insert(_ context.Context, t *domain.ExecutedTrade) error {
	if t == nil || t.Address == "" {
		return storage.ErrInvalidInput
	}

	key := strings.ToLower(t.Address)

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.data[key]; exists {
		return storage.ErrDuplicateKey
	}

	tradeCopy := *t
	s.data[key] = &tradeCopy
	return nil
}

// HasAddress reports whether a trade was already executed for the address.
func (s *ExecutedTradeStore) HasAddress(_ context.Context, address string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	_, exists := s.data[strings.ToLower(address)]
	return exists, nil
}

// Verify interface compliance at compile time.
var _ storage.ExecutedTradeStore = (*ExecutedTradeStore)(nil)
