package model

import (
	"context"
	"time"
)

// ── Storage Port Interfaces ──
// These interfaces decouple collectors and HTTP handlers from the
// concrete Postgres and Redis adapters.

// CandleWriter persists candle batches.
type CandleWriter interface {
	// InsertCandles writes a batch transactionally, skipping rows whose
	// (symbol, timestamp) already exist. Returns the inserted count.
	InsertCandles(ctx context.Context, candles []Candle) (int64, error)
}

// CandleReader serves candle range queries.
type CandleReader interface {
	// Candles returns up to limit buckets for the symbol at the given
	// timeframe label, ordered ascending by bucket start. A nil start
	// selects the newest buckets.
	Candles(ctx context.Context, symbol, timeframe string, start *time.Time, limit int) ([]Candle, error)

	// Symbols lists every distinct symbol with stored candles, sorted.
	Symbols(ctx context.Context) ([]string, error)
}

// OrderBookWriter persists depth snapshots.
type OrderBookWriter interface {
	// InsertOrderBook upserts a snapshot keyed by (symbol, timestamp).
	InsertOrderBook(ctx context.Context, snap *OrderBookSnapshot) error
}

// OrderBookReader serves the latest depth snapshot.
type OrderBookReader interface {
	// LatestOrderBook returns the newest snapshot truncated to the given
	// depth. Returns nil, nil if no snapshot exists for the symbol.
	LatestOrderBook(ctx context.Context, symbol string, levels int) (*OrderBookSnapshot, error)
}

// StateStore tracks per-symbol collection progress.
type StateStore interface {
	// LastTimestamp returns the checkpointed high-water mark for the
	// symbol. ok is false when no state row exists yet.
	LastTimestamp(ctx context.Context, symbol string) (ts int64, ok bool, err error)

	// UpsertState writes the checkpoint row for the symbol.
	UpsertState(ctx context.Context, symbol string, lastTimestamp int64, isRealtime bool) error
}

// HealthChecker reports storage reachability.
type HealthChecker interface {
	Health(ctx context.Context) error
}

// ── Broker Port Interfaces ──

// CandlePublisher fans a candle out on its broker topics. Publishing is
// fire-and-forget: the store stays authoritative and failures are logged
// and dropped by the implementation.
type CandlePublisher interface {
	PublishCandle(ctx context.Context, c StreamCandle) error
}

// OrderBookPublisher fans a depth snapshot out on its broker topics.
type OrderBookPublisher interface {
	PublishOrderBook(ctx context.Context, snap *OrderBookSnapshot) error
}
