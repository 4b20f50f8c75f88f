// The API server is the distribution side: it subscribes to the broker
// firehose, rolls 1-minute candles into the timeframe ladder, fans
// events out to WebSocket subscribers and serves the REST query layer.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Linkora-Dex/linkora-dex-backend/config"
	"github.com/Linkora-Dex/linkora-dex-backend/internal/api"
	"github.com/Linkora-Dex/linkora-dex-backend/internal/gateway"
	"github.com/Linkora-Dex/linkora-dex-backend/internal/logger"
	"github.com/Linkora-Dex/linkora-dex-backend/internal/marketdata/tfagg"
	"github.com/Linkora-Dex/linkora-dex-backend/internal/metrics"
	"github.com/Linkora-Dex/linkora-dex-backend/internal/model"
	"github.com/Linkora-Dex/linkora-dex-backend/internal/store/postgres"
	"github.com/Linkora-Dex/linkora-dex-backend/internal/store/redis"
)

func main() {
	cfg, err := config.LoadAPIServer()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	log := logger.Init("apiserver", cfg.LogLevel)

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

	prom := metrics.NewGatewayMetrics()
	health := metrics.NewHealthStatus()
	health.CheckRedis(ctx, rdb)
	health.CheckStore(ctx, store)
	health.StartLivenessChecker(ctx, rdb, store, 10*time.Second)
	metricsSrv := metrics.NewServer(cfg.MetricsAddr, health, log)
	metricsSrv.Start()

	manager := tfagg.NewManager(log)

	hub := gateway.NewHub(gateway.Config{
		PingInterval:    cfg.PingInterval,
		PongTimeout:     cfg.PongTimeout,
		CleanupInterval: cfg.CleanupInterval,
	}, log)
	hub.OnConnect = func() { prom.WSClients.Inc() }
	hub.OnDisconnect = func() { prom.WSClients.Dec() }
	hub.OnBroadcast = func(kind string) { prom.Broadcasts.WithLabelValues(kind).Inc() }
	go hub.Run(ctx)

	broadcast := func(em tfagg.Emission) {
		state := "interim"
		if em.Closed {
			state = "closed"
		}
		prom.Emissions.WithLabelValues(em.Timeframe, state).Inc()
		hub.BroadcastCandle(em.Symbol, em.Timeframe, gateway.CandlePayload(em.Timeframe, em.Closed, em.Candle))
	}

	sub := redis.NewSubscriber(rdb, log)
	sub.OnCandle = func(c model.StreamCandle) {
		for _, em := range manager.Feed(c, time.Now()) {
			broadcast(em)
		}
	}
	sub.OnOrderBook = func(snap *model.OrderBookSnapshot) {
		hub.BroadcastOrderBook(snap)
	}
	go sub.Run(ctx)

	// Quiet sessions still surface their forming candle.
	go func() {
		ticker := time.NewTicker(5 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				for _, em := range manager.Interims(time.Now()) {
					broadcast(em)
				}
			}
		}
	}()

	handlers := api.NewHandlers(store, manager, log)
	srv := api.NewServer(api.Config{
		Addr: cfg.Addr(),
		ObserveHTTP: func(route string, d time.Duration) {
			prom.HTTPDur.WithLabelValues(route).Observe(d.Seconds())
		},
	}, handlers, hub.HandleWS, log)

	go func() {
		if err := srv.Run(); err != nil {
			log.Error().Err(err).Msg("api server failed")
			cancel()
		}
	}()

	<-ctx.Done()
	log.Info().Msg("shutdown signal received")
	hub.CloseAll()

	stopCtx, stopCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer stopCancel()
	srv.Shutdown(stopCtx)
	metricsSrv.Stop(stopCtx)
	log.Info().Msg("api server stopped")
}
