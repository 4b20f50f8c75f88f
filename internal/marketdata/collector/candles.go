// Package collector runs the per-symbol ingestion workers: one walking
// the backfill to realtime state machine for 1-minute candles, one
// polling order-book snapshots on a fixed cadence.
package collector

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/Linkora-Dex/linkora-dex-backend/internal/model"
)

const minuteMs = 60000

// liveWindowMs is the trailing fetch window in realtime mode. Five
// minutes gives the upstream time to correct late rows while dedup on
// insert keeps the overlap cheap.
const liveWindowMs = 5 * minuteMs

// KlineSource fetches closed 1-minute candles from the upstream venue.
type KlineSource interface {
	Klines(ctx context.Context, symbol string, startMs, endMs int64, limit int) ([]model.Candle, error)
}

// CandleStore is the storage surface the candle worker needs.
type CandleStore interface {
	model.CandleWriter
	model.StateStore
}

// CandleConfig configures one candle worker.
type CandleConfig struct {
	Symbol           string
	StartDate        time.Time
	BatchSize        int
	RetryDelay       time.Duration
	RealtimeInterval time.Duration
	// BatchPause is the pause between historical batches.
	BatchPause time.Duration
	// EmptyWindowWait is how long to wait before retrying a window the
	// upstream answered with no rows.
	EmptyWindowWait time.Duration
}

// CandleCollector ingests 1-minute candles for a single symbol. It
// backfills from the last checkpoint (or the configured start date),
// flips its checkpoint to realtime exactly once when history catches up
// to the current minute, then polls a trailing window forever. Candles
// above the publish high-water mark go to the broker after they are
// stored.
type CandleCollector struct {
	cfg   CandleConfig
	src   KlineSource
	store CandleStore
	pub   model.CandlePublisher
	log   zerolog.Logger

	realtime bool
	hwm      int64

	nowFn func() time.Time

	// Metrics hooks, optional.
	OnBatch   func(fetched, inserted int64)
	OnPublish func()
	OnError   func(stage string)
}

// NewCandleCollector creates a worker. Zero durations and sizes fall
// back to production defaults.
func NewCandleCollector(cfg CandleConfig, src KlineSource, store CandleStore, pub model.CandlePublisher, log zerolog.Logger) *CandleCollector {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 1000
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = time.Second
	}
	if cfg.RealtimeInterval <= 0 {
		cfg.RealtimeInterval = 500 * time.Millisecond
	}
	if cfg.BatchPause <= 0 {
		cfg.BatchPause = 100 * time.Millisecond
	}
	if cfg.EmptyWindowWait <= 0 {
		cfg.EmptyWindowWait = time.Minute
	}
	return &CandleCollector{
		cfg:   cfg,
		src:   src,
		store: store,
		pub:   pub,
		log:   log.With().Str("component", "candle_collector").Str("symbol", cfg.Symbol).Logger(),
		nowFn: time.Now,
	}
}

// Run blocks until ctx is cancelled.
func (c *CandleCollector) Run(ctx context.Context) {
	c.log.Info().Time("start_date", c.cfg.StartDate).Msg("candle collector started")
	defer c.log.Info().Msg("candle collector stopped")

	start, ok := c.bootstrap(ctx)
	if !ok {
		return
	}
	c.backfill(ctx, start)
	if ctx.Err() != nil {
		return
	}
	c.live(ctx)
}

// bootstrap resumes from the stored checkpoint or the configured start
// date, whichever is later. Retries until the store answers.
func (c *CandleCollector) bootstrap(ctx context.Context) (int64, bool) {
	for {
		last, found, err := c.store.LastTimestamp(ctx, c.cfg.Symbol)
		if err == nil {
			start := c.cfg.StartDate.UnixMilli()
			if found {
				c.hwm = last
				if last+minuteMs > start {
					start = last + minuteMs
				}
				c.log.Info().Int64("checkpoint", last).Msg("resuming from checkpoint")
			} else {
				c.log.Info().Msg("no checkpoint, starting from configured date")
			}
			return start, true
		}
		c.log.Error().Err(err).Msg("reading checkpoint failed")
		c.countError("state")
		if !sleepCtx(ctx, c.cfg.RetryDelay) {
			return 0, false
		}
	}
}

// backfill walks history in BatchSize-minute windows until the next
// window would reach past the current minute, then flips the checkpoint
// to realtime.
func (c *CandleCollector) backfill(ctx context.Context, start int64) {
	for {
		if ctx.Err() != nil {
			return
		}
		now := c.nowFn().UnixMilli()
		if start+minuteMs > now {
			c.transition(ctx)
			return
		}

		end := start + int64(c.cfg.BatchSize)*minuteMs
		if end > now {
			end = now
		}
		candles, err := c.src.Klines(ctx, c.cfg.Symbol, start, end, c.cfg.BatchSize)
		if err != nil {
			c.log.Error().Err(err).Int64("start", start).Msg("backfill fetch failed")
			c.countError("fetch")
			if !sleepCtx(ctx, c.cfg.RetryDelay) {
				return
			}
			continue
		}
		if len(candles) == 0 {
			c.log.Warn().Int64("start", start).Int64("end", end).Msg("upstream returned no candles, retrying window")
			if !sleepCtx(ctx, c.cfg.EmptyWindowWait) {
				return
			}
			continue
		}

		inserted, err := c.store.InsertCandles(ctx, candles)
		if err != nil {
			c.log.Error().Err(err).Msg("backfill insert failed")
			c.countError("store")
			if !sleepCtx(ctx, c.cfg.RetryDelay) {
				return
			}
			continue
		}
		last := candles[len(candles)-1].Timestamp
		if err := c.store.UpsertState(ctx, c.cfg.Symbol, last, false); err != nil {
			c.log.Error().Err(err).Msg("backfill checkpoint failed")
			c.countError("state")
			if !sleepCtx(ctx, c.cfg.RetryDelay) {
				return
			}
			continue
		}

		c.hwm = last
		start = last + minuteMs
		if c.OnBatch != nil {
			c.OnBatch(int64(len(candles)), inserted)
		}
		c.log.Info().
			Int("fetched", len(candles)).
			Int64("inserted", inserted).
			Time("through", time.UnixMilli(last).UTC()).
			Msg("backfill batch stored")

		if !sleepCtx(ctx, c.cfg.BatchPause) {
			return
		}
	}
}

// transition flips the checkpoint to realtime. It runs at most once per
// process; restarts re-enter through backfill.
func (c *CandleCollector) transition(ctx context.Context) {
	if c.realtime {
		return
	}
	for {
		if err := c.store.UpsertState(ctx, c.cfg.Symbol, c.hwm, true); err != nil {
			c.log.Error().Err(err).Msg("realtime transition checkpoint failed")
			c.countError("state")
			if !sleepCtx(ctx, c.cfg.RetryDelay) {
				return
			}
			continue
		}
		c.realtime = true
		c.log.Info().Int64("high_water_mark", c.hwm).Msg("entering realtime")
		return
	}
}

func (c *CandleCollector) live(ctx context.Context) {
	ticker := time.NewTicker(c.cfg.RealtimeInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			c.checkpointFinal()
			return
		case <-ticker.C:
			c.pollOnce(ctx)
		}
	}
}

// pollOnce fetches the trailing window, stores it, checkpoints, and
// publishes rows above the high-water mark. Storage runs on a context
// detached from cancellation so an in-flight insert survives shutdown.
func (c *CandleCollector) pollOnce(ctx context.Context) {
	now := c.nowFn().UnixMilli()
	candles, err := c.src.Klines(ctx, c.cfg.Symbol, now-liveWindowMs, now, c.cfg.BatchSize)
	if err != nil {
		c.log.Error().Err(err).Msg("live fetch failed")
		c.countError("fetch")
		sleepCtx(ctx, c.cfg.RetryDelay)
		return
	}
	if len(candles) == 0 {
		return
	}

	opCtx := context.WithoutCancel(ctx)
	inserted, err := c.store.InsertCandles(opCtx, candles)
	if err != nil {
		c.log.Error().Err(err).Msg("live insert failed")
		c.countError("store")
		sleepCtx(ctx, c.cfg.RetryDelay)
		return
	}
	last := candles[len(candles)-1].Timestamp
	if err := c.store.UpsertState(opCtx, c.cfg.Symbol, last, true); err != nil {
		c.log.Error().Err(err).Msg("live checkpoint failed")
		c.countError("state")
		sleepCtx(ctx, c.cfg.RetryDelay)
		return
	}
	if c.OnBatch != nil {
		c.OnBatch(int64(len(candles)), inserted)
	}

	for i := range candles {
		if candles[i].Timestamp <= c.hwm {
			continue
		}
		if err := c.pub.PublishCandle(opCtx, candles[i].Stream()); err != nil {
			c.countError("publish")
			continue
		}
		if c.OnPublish != nil {
			c.OnPublish()
		}
	}
	c.hwm = last
}

// checkpointFinal persists the last high-water mark on a fresh context
// so shutdown does not lose progress.
func (c *CandleCollector) checkpointFinal() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := c.store.UpsertState(ctx, c.cfg.Symbol, c.hwm, c.realtime); err != nil {
		c.log.Error().Err(err).Msg("final checkpoint failed")
	}
}

func (c *CandleCollector) countError(stage string) {
	if c.OnError != nil {
		c.OnError(stage)
	}
}

// sleepCtx waits for d, returning false if ctx ends first.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	select {
	case <-ctx.Done():
		return false
	case <-time.After(d):
		return true
	}
}
