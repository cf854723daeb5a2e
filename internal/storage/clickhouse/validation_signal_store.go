package clickhouse

import (
	"context"
	"fmt"

	"token-trader/internal/domain"
	"token-trader/internal/storage"
)

// ValidationSignalStore implements storage.ValidationSignalStore using
// ClickHouse.
type ValidationSignalStore struct {
	conn *Conn
}

// NewValidationSignalStore creates a new ValidationSignalStore.
func NewValidationSignalStore(conn *Conn) *ValidationSignalStore {
	return &ValidationSignalStore{conn: conn}
}

// Compile-time interface check.
var _ storage.ValidationSignalStore = (*ValidationSignalStore)(nil)

// InsertBulk appends signal observations for one run.
func (s *ValidationSignalStore) InsertBulk(ctx context.Context, points []*domain.SignalPoint) error {
	if len(points) == 0 {
		return nil
	}

	batch, err := s.conn.PrepareBatch(ctx, `
		INSERT INTO validation_signals (
			run_id, address, has_whale_activity, address_delta, tx_delta,
			addresses_increasing, tx_increasing, degraded, recorded_at
		)
	`)
	if err != nil {
		return fmt.Errorf("prepare batch: %w", err)
	}

	for _, p := range points {
		err = batch.Append(
			p.RunID, p.Address, p.HasWhaleActivity,
			int32(p.AddressDelta), int32(p.TxDelta),
			p.AddressesIncreasing, p.TxIncreasing, p.Degraded,
			uint64(p.RecordedAt),
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

// GetByRunID retrieves all observations for a run in insertion order.
func (s *ValidationSignalStore) GetByRunID(ctx context.Context, runID string) ([]*domain.SignalPoint, error) {
	query := `
		SELECT run_id, address, has_whale_activity, address_delta, tx_delta,
		       addresses_increasing, tx_increasing, degraded, recorded_at
		FROM validation_signals
		WHERE run_id = ?
		ORDER BY recorded_at ASC
	`

	rows, err := s.conn.Query(ctx, query, runID)
	if err != nil {
		return nil, fmt.Errorf("query validation signals: %w", err)
	}
	defer rows.Close()

	var points []*domain.SignalPoint
	for rows.Next() {
		var p domain.SignalPoint
		var addressDelta, txDelta int32
		var recordedAt uint64

		err := rows.Scan(
			&p.RunID, &p.Address, &p.HasWhaleActivity, &addressDelta, &txDelta,
			&p.AddressesIncreasing, &p.TxIncreasing, &p.Degraded, &recordedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan validation signal row: %w", err)
		}

		p.AddressDelta = int(addressDelta)
		p.TxDelta = int(txDelta)
		p.RecordedAt = int64(recordedAt)
		points = append(points, &p)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate validation signal rows: %w", err)
	}

	return points, nil
}
