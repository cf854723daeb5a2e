package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"token-trader/internal/domain"
	"token-trader/internal/storage"
)

// RunStore implements storage.RunStore using PostgreSQL.
type RunStore struct {
	pool *Pool
}

// NewRunStore creates a new RunStore.
func NewRunStore(pool *Pool) *RunStore {
	return &RunStore{pool: pool}
}

// Compile-time interface check.
var _ storage.RunStore = (*RunStore)(nil)

const runColumns = `
	run_id, stage, candidate_addresses, recommended_address, outlook,
	prompt, from_token, amount, trade_result, fail_reason,
	created_at, updated_at
`

// Create adds a new run. Returns ErrDuplicateKey if run_id exists.
func (s *RunStore) Create(ctx context.Context, run *domain.WorkflowRun) error {
	if run == nil || run.RunID == "" {
		return storage.ErrInvalidInput
	}

	query := `
		INSERT INTO workflow_runs (` + runColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`

	_, err := s.pool.Exec(ctx, query,
		run.RunID,
		string(run.Stage),
		run.CandidateAddresses,
		run.RecommendedAddress,
		string(run.Outlook),
		run.Prompt,
		run.FromToken,
		run.Amount,
		[]byte(run.TradeResult),
		run.FailReason,
		run.CreatedAt,
		run.UpdatedAt,
	)
	if err != nil {
		if isDuplicateKeyError(err) {
			return storage.ErrDuplicateKey
		}
		return fmt.Errorf("insert run: %w", err)
	}
	return nil
}

// Get retrieves a run by its ID. Returns ErrNotFound if not exists.
func (s *RunStore) Get(ctx context.Context, runID string) (*domain.WorkflowRun, error) {
	query := `
		SELECT ` + runColumns + `
		FROM workflow_runs
		WHERE run_id = $1
	`

	row := s.pool.QueryRow(ctx, query, runID)
	run, err := scanRun(row)
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get run by id: %w", err)
	}
	return run, nil
}

// Update overwrites the stored state of an existing run.
func (s *RunStore) Update(ctx context.Context, run *domain.WorkflowRun) error {
	if run == nil || run.RunID == "" {
		return storage.ErrInvalidInput
	}

	query := `
		UPDATE workflow_runs
		SET stage = $2,
		    candidate_addresses = $3,
		    recommended_address = $4,
		    outlook = $5,
		    prompt = $6,
		    from_token = $7,
		    amount = $8,
		    trade_result = $9,
		    fail_reason = $10,
		    updated_at = $11
		WHERE run_id = $1
	`

	tag, err := s.pool.Exec(ctx, query,
		run.RunID,
		string(run.Stage),
		run.CandidateAddresses,
		run.RecommendedAddress,
		string(run.Outlook),
		run.Prompt,
		run.FromToken,
		run.Amount,
		[]byte(run.TradeResult),
		run.FailReason,
		run.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("update run: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// ListByStage retrieves all runs in the given stage, ordered by creation
// time ASC.
func (s *RunStore) ListByStage(ctx context.Context, stage domain.Stage) ([]*domain.WorkflowRun, error) {
	query := `
		SELECT ` + runColumns + `
		FROM workflow_runs
		WHERE stage = $1
		ORDER BY created_at ASC, run_id ASC
	`

	rows, err := s.pool.Query(ctx, query, string(stage))
	if err != nil {
		return nil, fmt.Errorf("list runs by stage: %w", err)
	}
	defer rows.Close()

	var runs []*domain.WorkflowRun
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("scan run row: %w", err)
		}
		runs = append(runs, run)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate run rows: %w", err)
	}

	return runs, nil
}

// scanRun scans a single row into a WorkflowRun.
func scanRun(row pgx.Row) (*domain.WorkflowRun, error) {
	var run domain.WorkflowRun
	var stage, outlook string
	var tradeResult []byte

	err := row.Scan(
		&run.RunID,
		&stage,
		&run.CandidateAddresses,
		&run.RecommendedAddress,
		&outlook,
		&run.Prompt,
		&run.FromToken,
		&run.Amount,
		&tradeResult,
		&run.FailReason,
		&run.CreatedAt,
		&run.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	run.Stage = domain.Stage(stage)
	run.Outlook = domain.Outlook(outlook)
	run.TradeResult = domain.TradeResult(tradeResult)
	return &run, nil
}
