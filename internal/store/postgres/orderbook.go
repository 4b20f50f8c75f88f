package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"

	"github.com/Linkora-Dex/linkora-dex-backend/internal/model"
)

// InsertOrderBook upserts one snapshot keyed by (symbol, timestamp).
// Consecutive polls with an unchanged last_update_id still land as
// distinct rows because the wall-clock timestamp differs.
func (s *Store) InsertOrderBook(ctx context.Context, snap *model.OrderBookSnapshot) error {
	ctx, cancel := s.opCtx(ctx)
	defer cancel()

	bids, err := json.Marshal(snap.Bids)
	if err != nil {
		return fmt.Errorf("encoding bids: %w", err)
	}
	asks, err := json.Marshal(snap.Asks)
	if err != nil {
		return fmt.Errorf("encoding asks: %w", err)
	}

	_, err = s.pool.Exec(ctx, `
		INSERT INTO orderbook_data (symbol, timestamp, last_update_id, bids, asks)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (symbol, timestamp) DO UPDATE SET
			last_update_id = EXCLUDED.last_update_id,
			bids = EXCLUDED.bids,
			asks = EXCLUDED.asks`,
		snap.Symbol, snap.Timestamp, snap.LastUpdateID, string(bids), string(asks))
	if err != nil {
		return fmt.Errorf("inserting orderbook: %w", err)
	}
	return nil
}

// LatestOrderBook returns the newest snapshot truncated to the given
// depth. Returns nil, nil if no snapshot exists for the symbol.
func (s *Store) LatestOrderBook(ctx context.Context, symbol string, levels int) (*model.OrderBookSnapshot, error) {
	ctx, cancel := s.opCtx(ctx)
	defer cancel()

	var (
		snap       model.OrderBookSnapshot
		bids, asks []byte
	)
	err := s.pool.QueryRow(ctx, `
		SELECT symbol, timestamp, last_update_id, bids, asks
		FROM orderbook_data
		WHERE symbol = $1
		ORDER BY timestamp DESC
		LIMIT 1`, strings.ToUpper(symbol)).
		Scan(&snap.Symbol, &snap.Timestamp, &snap.LastUpdateID, &bids, &asks)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("querying orderbook: %w", err)
	}

	if err := json.Unmarshal(bids, &snap.Bids); err != nil {
		return nil, fmt.Errorf("decoding bids: %w", err)
	}
	if err := json.Unmarshal(asks, &snap.Asks); err != nil {
		return nil, fmt.Errorf("decoding asks: %w", err)
	}
	return snap.Truncate(levels), nil
}
