// The collector ingests market data from the upstream exchange API: one
// candle worker per symbol walks backfill into realtime, one depth
// worker per symbol polls order-book snapshots. Everything lands in the
// time-series store first and is then fanned out over the broker.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/Linkora-Dex/linkora-dex-backend/config"
	"github.com/Linkora-Dex/linkora-dex-backend/internal/logger"
	"github.com/Linkora-Dex/linkora-dex-backend/internal/marketdata/collector"
	"github.com/Linkora-Dex/linkora-dex-backend/internal/metrics"
	"github.com/Linkora-Dex/linkora-dex-backend/internal/store/postgres"
	"github.com/Linkora-Dex/linkora-dex-backend/internal/store/redis"
	"github.com/Linkora-Dex/linkora-dex-backend/pkg/binance"
)

func main() {
	cfg, err := config.LoadCollector()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	log := logger.Init("collector", cfg.LogLevel)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	store, err := postgres.New(ctx, cfg.DB.URL(), log)
	if err != nil {
		log.Fatal().Err(err).Msg("database connection failed")
	}
	defer store.Close()

	rdb, err := redis.Connect(redis.Config{Addr: cfg.Redis.Addr(), Password: cfg.Redis.Password})
	if err != nil {
		log.Fatal().Err(err).Msg("broker connection failed")
	}
	defer rdb.Close()
	pub := redis.NewPublisher(rdb, log)

	prom := metrics.NewCollectorMetrics()
	health := metrics.NewHealthStatus()
	health.CheckRedis(ctx, rdb)
	health.CheckStore(ctx, store)
	health.StartLivenessChecker(ctx, rdb, store, 10*time.Second)
	metricsSrv := metrics.NewServer(cfg.MetricsAddr, health, log)
	metricsSrv.Start()

	upstream := binance.New(binance.Config{
		BaseURL:         cfg.BinanceBaseURL,
		Interval:        cfg.Interval,
		RetryDelay:      cfg.RetryDelay,
		MaxRetries:      cfg.MaxRetries,
		DepthMaxRetries: cfg.OrderBookMaxRetries,
		RateLimit:       cfg.UpstreamRateLimit,
	}, log)

	var wg sync.WaitGroup
	for _, symbol := range cfg.Symbols {
		cc := collector.NewCandleCollector(collector.CandleConfig{
			Symbol:           symbol,
			StartDate:        cfg.StartDate,
			BatchSize:        cfg.BatchSize,
			RetryDelay:       cfg.RetryDelay,
			RealtimeInterval: cfg.RealtimeInterval,
		}, upstream, store, pub, log)
		cc.OnBatch = func(fetched, inserted int64) {
			prom.CandlesFetched.Add(float64(fetched))
			prom.CandlesInserted.Add(float64(inserted))
		}
		cc.OnPublish = func() { prom.CandlesPublished.Inc() }
		cc.OnError = func(stage string) { prom.Errors.WithLabelValues(stage).Inc() }

		wg.Add(1)
		go func() {
			defer wg.Done()
			cc.Run(ctx)
		}()
	}
	for _, symbol := range cfg.OrderBookSymbols {
		oc := collector.NewOrderBookCollector(collector.OrderBookConfig{
			Symbol:         symbol,
			Levels:         cfg.OrderBookLevels,
			UpdateInterval: cfg.OrderBookUpdateInterval,
			RetryDelay:     cfg.OrderBookRetryDelay,
		}, upstream, store, pub, log)
		oc.OnSnapshot = func() { prom.Snapshots.Inc() }
		oc.OnError = func(stage string) { prom.Errors.WithLabelValues(stage).Inc() }

		wg.Add(1)
		go func() {
			defer wg.Done()
			oc.Run(ctx)
		}()
	}
	log.Info().
		Int("candle_workers", len(cfg.Symbols)).
		Int("orderbook_workers", len(cfg.OrderBookSymbols)).
		Msg("collector running")

	go func() {
		ticker := time.NewTicker(5 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				prom.BrokerCircuit.Set(float64(pub.CircuitState()))
			}
		}
	}()

	<-ctx.Done()
	log.Info().Msg("shutdown signal received")
	wg.Wait()

	stopCtx, stopCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer stopCancel()
	metricsSrv.Stop(stopCtx)
	log.Info().Msg("collector stopped")
}
