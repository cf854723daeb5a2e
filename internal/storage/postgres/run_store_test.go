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

func createTestRun(runID string, stage domain.Stage, createdAt int64) *domain.WorkflowRun {
	return &domain.WorkflowRun{
		RunID:              runID,
		Stage:              stage,
		CandidateAddresses: []string{"0xaaa1111111111111111111111111111111111111", "0xbbb2222222222222222222222222222222222222"},
		RecommendedAddress: "0xaaa1111111111111111111111111111111111111",
		Outlook:            domain.OutlookBullish,
		Prompt:             "Buy AAA?",
		CreatedAt:          createdAt,
		UpdatedAt:          createdAt,
	}
}

func TestRunStore_CreateAndGet(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	store := postgres.NewRunStore(pool)

	run := createTestRun("run-001", domain.StageConfirm, 1704067200000)
	require.NoError(t, store.Create(ctx, run))

	retrieved, err := store.Get(ctx, "run-001")
	require.NoError(t, err)

	assert.Equal(t, run.RunID, retrieved.RunID)
	assert.Equal(t, domain.StageConfirm, retrieved.Stage)
	assert.Equal(t, run.CandidateAddresses, retrieved.CandidateAddresses)
	assert.Equal(t, run.RecommendedAddress, retrieved.RecommendedAddress)
	assert.Equal(t, domain.OutlookBullish, retrieved.Outlook)
	assert.Equal(t, run.Prompt, retrieved.Prompt)
	assert.Equal(t, run.CreatedAt, retrieved.CreatedAt)
}

func TestRunStore_DuplicateKey(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	store := postgres.NewRunStore(pool)

	run := createTestRun("run-001", domain.StageDiscover, 1000)
	require.NoError(t, store.Create(ctx, run))

	err := store.Create(ctx, run)
	assert.ErrorIs(t, err, storage.ErrDuplicateKey)
}

func TestRunStore_NotFound(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	store := postgres.NewRunStore(pool)

	_, err := store.Get(ctx, "nonexistent")
	assert.ErrorIs(t, err, storage.ErrNotFound)

	err = store.Update(ctx, createTestRun("nonexistent", domain.StageDone, 1000))
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestRunStore_UpdateRoundTrip(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	store := postgres.NewRunStore(pool)

	run := createTestRun("run-001", domain.StageConfirm, 1000)
	require.NoError(t, store.Create(ctx, run))

	run.Stage = domain.StageDone
	run.FromToken = "0xa0b86991c6218b36c1d19d4a2e9eb0ce3606eb48"
	run.Amount = "250.5"
	run.TradeResult = domain.TradeResult(`{"success":true,"txHash":"0xdeadbeef"}`)
	run.UpdatedAt = 2000
	require.NoError(t, store.Update(ctx, run))

	retrieved, err := store.Get(ctx, "run-001")
	require.NoError(t, err)

	assert.Equal(t, domain.StageDone, retrieved.Stage)
	assert.Equal(t, run.FromToken, retrieved.FromToken)
	assert.Equal(t, run.Amount, retrieved.Amount)
	assert.JSONEq(t, string(run.TradeResult), string(retrieved.TradeResult))
	assert.Equal(t, int64(2000), retrieved.UpdatedAt)
}

func TestRunStore_ListByStage(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	store := postgres.NewRunStore(pool)

	require.NoError(t, store.Create(ctx, createTestRun("r1", domain.StageConfirm, 3000)))
	require.NoError(t, store.Create(ctx, createTestRun("r2", domain.StageDone, 1000)))
	require.NoError(t, store.Create(ctx, createTestRun("r3", domain.StageConfirm, 1000)))
	require.NoError(t, store.Create(ctx, createTestRun("r4", domain.StageConfirm, 2000)))

	runs, err := store.ListByStage(ctx, domain.StageConfirm)
	require.NoError(t, err)
	require.Len(t, runs, 3)

	// Creation time ASC.
	assert.Equal(t, "r3", runs[0].RunID)
	assert.Equal(t, "r4", runs[1].RunID)
	assert.Equal(t, "r1", runs[2].RunID)
}

func TestRunStore_EmptyOptionalFields(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	store := postgres.NewRunStore(pool)

	// A freshly started run has no recommendation, resume payload or result.
	run := &domain.WorkflowRun{
		RunID:     "run-bare",
		Stage:     domain.StageDiscover,
		CreatedAt: 1000,
		UpdatedAt: 1000,
	}
	require.NoError(t, store.Create(ctx, run))

	retrieved, err := store.Get(ctx, "run-bare")
	require.NoError(t, err)

	assert.Empty(t, retrieved.RecommendedAddress)
	assert.Empty(t, retrieved.FromToken)
	assert.Empty(t, retrieved.Amount)
	assert.Empty(t, retrieved.TradeResult)
	assert.Empty(t, retrieved.FailReason)
}

func TestRunStore_InvalidInput(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	store := postgres.NewRunStore(pool)

	assert.ErrorIs(t, store.Create(ctx, nil), storage.ErrInvalidInput)
	assert.ErrorIs(t, store.Create(ctx, &domain.WorkflowRun{}), storage.ErrInvalidInput)
	assert.ErrorIs(t, store.Update(ctx, nil), storage.ErrInvalidInput)
}
