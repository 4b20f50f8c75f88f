package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
)

// LastTimestamp returns the checkpointed high-water mark for the
// symbol. ok is false when no state row exists yet.
func (s *Store) LastTimestamp(ctx context.Context, symbol string) (int64, bool, error) {
	ctx, cancel := s.opCtx(ctx)
	defer cancel()

	var ts int64
	err := s.pool.QueryRow(ctx,
		`SELECT last_timestamp FROM collector_state WHERE symbol = $1`, symbol).Scan(&ts)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, false, nil
		}
		return 0, false, fmt.Errorf("querying collector state: %w", err)
	}
	return ts, true, nil
}

// UpsertState writes the checkpoint row for the symbol.
func (s *Store) UpsertState(ctx context.Context, symbol string, lastTimestamp int64, isRealtime bool) error {
	ctx, cancel := s.opCtx(ctx)
	defer cancel()

	_, err := s.pool.Exec(ctx, `
		INSERT INTO collector_state (symbol, last_timestamp, is_realtime, last_updated)
		VALUES ($1, $2, $3, NOW())
		ON CONFLICT (symbol) DO UPDATE SET
			last_timestamp = EXCLUDED.last_timestamp,
			is_realtime = EXCLUDED.is_realtime,
			last_updated = NOW()`,
		symbol, lastTimestamp, isRealtime)
	if err != nil {
		return fmt.Errorf("upserting collector state: %w", err)
	}
	return nil
}
