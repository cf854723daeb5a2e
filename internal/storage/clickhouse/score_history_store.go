package clickhouse

import (
	"context"
	"fmt"

	"token-trader/internal/domain"
	"token-trader/internal/storage"
)

// ScoreHistoryStore implements storage.ScoreHistoryStore using ClickHouse.
// Append-only; MergeTree does not enforce uniqueness and none is needed here.
type ScoreHistoryStore struct {
	conn *Conn
}

// NewScoreHistoryStore creates a new ScoreHistoryStore.
func NewScoreHistoryStore(conn *Conn) *ScoreHistoryStore {
	return &ScoreHistoryStore{conn: conn}
}

// Compile-time interface check.
var _ storage.ScoreHistoryStore = (*ScoreHistoryStore)(nil)

// InsertBulk appends score observations for one run.
func (s *ScoreHistoryStore) InsertBulk(ctx context.Context, points []*domain.ScorePoint) error {
	if len(points) == 0 {
		return nil
	}

	batch, err := s.conn.PrepareBatch(ctx, `
		INSERT INTO score_history (
			run_id, address, symbol, total, trending_bonus,
			momentum_pct, volatility, recorded_at
		)
	`)
	if err != nil {
		return fmt.Errorf("prepare batch: %w", err)
	}

	for _, p := range points {
		err = batch.Append(
			p.RunID, p.Address, p.Symbol, p.Total, p.TrendingBonus,
			p.MomentumPct, p.Volatility, uint64(p.RecordedAt),
		)
		if err != nil {
			return fmt.Errorf("append to batch: %w", err)
		}
	}

	if err := batch.Send(); err != nil {
		return fmt.Errorf("send batch: %w", err)
	}

	return nil
}

// GetByRunID retrieves all observations for a run, highest total first.
func (s *ScoreHistoryStore) GetByRunID(ctx context.Context, runID string) ([]*domain.ScorePoint, error) {
	query := `
		SELECT run_id, address, symbol, total, trending_bonus,
		       momentum_pct, volatility, recorded_at
		FROM score_history
		WHERE run_id = ?
		ORDER BY total DESC
	`

	rows, err := s.conn.Query(ctx, query, runID)
	if err != nil {
		return nil, fmt.Errorf("query score history: %w", err)
	}
	defer rows.Close()

	return scanScorePoints(rows)
}

// scanScorePoints scans multiple rows.
func scanScorePoints(rows chRows) ([]*domain.ScorePoint, error) {
	var points []*domain.ScorePoint

	for rows.Next() {
		var p domain.ScorePoint
		var recordedAt uint64

		err := rows.Scan(
			&p.RunID, &p.Address, &p.Symbol, &p.Total, &p.TrendingBonus,
			&p.MomentumPct, &p.Volatility, &recordedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan score history row: %w", err)
		}

		p.RecordedAt = int64(recordedAt)
		points = append(points, &p)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate score history rows: %w", err)
	}

	return points, nil
}
