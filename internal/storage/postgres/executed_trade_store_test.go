package postgres_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"token-trader/internal/domain"
	"token-trader/internal/storage"
	"token-trader/internal/storage/postgres"
)

func TestExecutedTradeStore_InsertAndHasAddress(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	store := postgres.NewExecutedTradeStore(pool)

	trade := &domain.ExecutedTrade{
		Address:    "0xAbCdEf0123456789aBcDeF0123456789AbCdEf01",
		RunID:      "run-001",
		ExecutedAt: 1704067200000,
	}
	require.NoError(t, store.Insert(ctx, trade))

	has, err := store.HasAddress(ctx, trade.Address)
	require.NoError(t, err)
	assert.True(t, has)

	has, err = store.HasAddress(ctx, "0x0000000000000000000000000000000000000000")
	require.NoError(t, err)
	assert.False(t, has)
}

func TestExecutedTradeStore_CaseInsensitiveDedup(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	store := postgres.NewExecutedTradeStore(pool)

	require.NoError(t, store.Insert(ctx, &domain.ExecutedTrade{
		Address: "0xABCDEF0123456789ABCDEF0123456789ABCDEF01",
		RunID:   "run-001",
	}))

	// Lookup with different casing must match.
	has, err := store.HasAddress(ctx, "0xabcdef0123456789abcdef0123456789abcdef01")
	require.NoError(t, err)
	assert.True(t, has)

	// Insert with different casing is a duplicate.
	err = store.Insert(ctx, &domain.ExecutedTrade{
		Address: "0xAbCdEf0123456789aBcDeF0123456789AbCdEf01",
		RunID:   "run-002",
	})
	assert.ErrorIs(t, err, storage.ErrDuplicateKey)
}

func TestExecutedTradeStore_InvalidInput(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	store := postgres.NewExecutedTradeStore(pool)

	assert.ErrorIs(t, store.Insert(ctx, nil), storage.ErrInvalidInput)
	assert.ErrorIs(t, store.Insert(ctx, &domain.ExecutedTrade{Address: ""}), storage.ErrInvalidInput)
}
