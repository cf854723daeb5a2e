package storage

import (
	"context"

	"token-trader/internal/domain"
)

// RunStore provides durable persistence for workflow runs. A run suspended
// at CONFIRM lives only here until an external resume arrives.
type RunStore interface {
	// Create adds a new run. Returns ErrDuplicateKey if run_id exists.
	Create(ctx context.Context, run *domain.WorkflowRun) error

	// Get retrieves a run by its ID. Returns ErrNotFound if not exists.
	Get(ctx context.Context, runID string) (*domain.WorkflowRun, error)

	// Update overwrites the stored state of an existing run.
	// Returns ErrNotFound if the run does not exist.
	Update(ctx context.Context, run *domain.WorkflowRun) error

	// ListByStage retrieves all runs currently in the given stage,
	// ordered by creation time ASC.
	ListByStage(ctx context.Context, stage domain.Stage) ([]*domain.WorkflowRun, error)
}

// ExecutedTradeStore records completed purchases for cross-run
// deduplication of candidate addresses.
type ExecutedTradeStore interface {
	// Insert records an executed trade. Returns ErrDuplicateKey if the
	// address was already recorded.
	Insert(ctx context.Context, t *domain.ExecutedTrade) error

	// HasAddress reports whether a trade was already executed for the
	// given token address.
	HasAddress(ctx context.Context, address string) (bool, error)
}

// ScoreHistoryStore is an append-only analytics sink for discovery scores.
type ScoreHistoryStore interface {
	// InsertBulk appends score observations for one run.
	InsertBulk(ctx context.Context, points []*domain.ScorePoint) error

	// GetByRunID retrieves all observations for a run, highest total first.
	GetByRunID(ctx context.Context, runID string) ([]*domain.ScorePoint, error)
}

// ValidationSignalStore is an append-only analytics sink for on-chain
// validation signals.
type ValidationSignalStore interface {
	// InsertBulk appends signal observations for one run.
	InsertBulk(ctx context.Context, points []*domain.SignalPoint) error

	// GetByRunID retrieves all observations for a run in insertion order.
	GetByRunID(ctx context.Context, runID string) ([]*domain.SignalPoint, error)
}
