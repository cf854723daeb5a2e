package postgres

import (
	"context"
	"fmt"
	"strings"

	"token-trader/internal/domain"
	"token-trader/internal/storage"
)

// ExecutedTradeStore implements storage.ExecutedTradeStore using PostgreSQL.
// Addresses are stored lowercased so dedup is case-insensitive.
type ExecutedTradeStore struct {
	pool *Pool
}

// NewExecutedTradeStore creates a new ExecutedTradeStore.
func NewExecutedTradeStore(pool *Pool) *ExecutedTradeStore {
	return &ExecutedTradeStore{pool: pool}
}

// Compile-time interface check.
var _ storage.ExecutedTradeStore = (*ExecutedTradeStore)(nil)

// Insert records an executed trade. Returns ErrDuplicateKey if the address
// was already recorded.
func (s *ExecutedTradeStore) Insert(ctx context.Context, t *domain.ExecutedTrade) error {
	if t == nil || t.Address == "" {
		return storage.ErrInvalidInput
	}

	query := `
		INSERT INTO executed_trades (address, run_id, executed_at)
		VALUES ($1, $2, $3)
	`

	_, err := s.pool.Exec(ctx, query,
		strings.ToLower(t.Address),
		t.RunID,
		t.ExecutedAt,
	)
	if err != nil {
		if isDuplicateKeyError(err) {
			return storage.ErrDuplicateKey
		}
		return fmt.Errorf("insert executed trade: %w", err)
	}
	return nil
}

// HasAddress reports whether a trade was already executed for the address.
func (s *ExecutedTradeStore) HasAddress(ctx context.Context, address string) (bool, error) {
	query := `
		SELECT EXISTS(SELECT 1 FROM executed_trades WHERE address = $1)
	`

	var exists bool
	err := s.pool.QueryRow(ctx, query, strings.ToLower(address)).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check executed trade: %w", err)
	}

	return exists, nil
}
