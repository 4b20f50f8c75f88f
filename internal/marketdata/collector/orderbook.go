package collector

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/Linkora-Dex/linkora-dex-backend/internal/model"
	"github.com/Linkora-Dex/linkora-dex-backend/pkg/binance"
)

// DepthSource fetches an order-book snapshot from the upstream venue.
type DepthSource interface {
	Depth(ctx context.Context, symbol string, limit int) (*binance.DepthResult, error)
}

// OrderBookConfig configures one order-book worker.
type OrderBookConfig struct {
	Symbol         string
	Levels         int
	UpdateInterval time.Duration
	RetryDelay     time.Duration
}

// OrderBookCollector polls the depth endpoint for a single symbol on a
// fixed cadence, stamps each snapshot with the local wall clock, stores
// it and publishes it. Snapshots with an unchanged last_update_id are
// still persisted; the timestamp records the observation, not the
// change.
type OrderBookCollector struct {
	cfg   OrderBookConfig
	src   DepthSource
	store model.OrderBookWriter
	pub   model.OrderBookPublisher
	log   zerolog.Logger

	nowFn func() time.Time

	// Metrics hooks, optional.
	OnSnapshot func()
	OnError    func(stage string)
}

// NewOrderBookCollector creates a worker. Zero durations and levels
// fall back to production defaults.
func NewOrderBookCollector(cfg OrderBookConfig, src DepthSource, store model.OrderBookWriter, pub model.OrderBookPublisher, log zerolog.Logger) *OrderBookCollector {
	if cfg.Levels <= 0 {
		cfg.Levels = 20
	}
	if cfg.UpdateInterval <= 0 {
		cfg.UpdateInterval = time.Second
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = time.Second
	}
	return &OrderBookCollector{
		cfg:   cfg,
		src:   src,
		store: store,
		pub:   pub,
		log:   log.With().Str("component", "orderbook_collector").Str("symbol", cfg.Symbol).Logger(),
		nowFn: time.Now,
	}
}

// Run blocks until ctx is cancelled.
func (c *OrderBookCollector) Run(ctx context.Context) {
	c.log.Info().Int("levels", c.cfg.Levels).Msg("orderbook collector started")
	defer c.log.Info().Msg("orderbook collector stopped")

	ticker := time.NewTicker(c.cfg.UpdateInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.pollOnce(ctx)
		}
	}
}

func (c *OrderBookCollector) pollOnce(ctx context.Context) {
	depth, err := c.src.Depth(ctx, c.cfg.Symbol, c.cfg.Levels)
	if err != nil {
		c.log.Warn().Err(err).Msg("depth fetch failed, skipping tick")
		if c.OnError != nil {
			c.OnError("fetch")
		}
		return
	}

	snap := &model.OrderBookSnapshot{
		Symbol:       c.cfg.Symbol,
		Timestamp:    c.nowFn().UnixMilli(),
		LastUpdateID: depth.LastUpdateID,
		Bids:         depth.Bids,
		Asks:         depth.Asks,
	}
	if err := c.store.InsertOrderBook(ctx, snap); err != nil {
		c.log.Error().Err(err).Msg("orderbook insert failed")
		if c.OnError != nil {
			c.OnError("store")
		}
		sleepCtx(ctx, c.cfg.RetryDelay)
		return
	}
	if err := c.pub.PublishOrderBook(ctx, snap); err != nil {
		if c.OnError != nil {
			c.OnError("publish")
		}
		return
	}
	if c.OnSnapshot != nil {
		c.OnSnapshot()
	}
}
