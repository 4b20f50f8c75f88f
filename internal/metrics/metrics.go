// Package metrics exposes Prometheus instrumentation and an operational
// health endpoint for both services. This is plumbing for operators;
// the query layer's GET /health stays part of the public API surface.
package metrics

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	goredis "github.com/go-redis/redis/v8"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

// CollectorMetrics holds the ingestion-side counters.
type CollectorMetrics struct {
	CandlesFetched   prometheus.Counter
	CandlesInserted  prometheus.Counter
	CandlesPublished prometheus.Counter
	Snapshots        prometheus.Counter
	Errors           *prometheus.CounterVec // labels: stage
	BrokerCircuit    prometheus.Gauge       // 0=closed, 1=open, 2=half-open
}

// NewCollectorMetrics registers and returns the collector metric set.
func NewCollectorMetrics() *CollectorMetrics {
	m := &CollectorMetrics{
		CandlesFetched: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "collector_candles_fetched_total",
			Help: "1-minute candles fetched from the upstream API",
		}),
		CandlesInserted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "collector_candles_inserted_total",
			Help: "Candle rows inserted (duplicates excluded)",
		}),
		CandlesPublished: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "collector_candles_published_total",
			Help: "Candles published to the broker",
		}),
		Snapshots: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "collector_orderbook_snapshots_total",
			Help: "Order book snapshots persisted",
		}),
		Errors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "collector_errors_total",
			Help: "Collector loop errors by stage",
		}, []string{"stage"}),
		BrokerCircuit: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "collector_broker_circuit_state",
			Help: "Broker circuit breaker state (0=closed, 1=open, 2=half-open)",
		}),
	}
	prometheus.MustRegister(
		m.CandlesFetched,
		m.CandlesInserted,
		m.CandlesPublished,
		m.Snapshots,
		m.Errors,
		m.BrokerCircuit,
	)
	return m
}

// GatewayMetrics holds the distribution-side counters.
type GatewayMetrics struct {
	WSClients  prometheus.Gauge
	Broadcasts *prometheus.CounterVec // labels: kind
	Emissions  *prometheus.CounterVec // labels: timeframe, state
	HTTPDur    *prometheus.HistogramVec
}

// NewGatewayMetrics registers and returns the API server metric set.
func NewGatewayMetrics() *GatewayMetrics {
	m := &GatewayMetrics{
		WSClients: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "gateway_ws_clients",
			Help: "Currently registered WebSocket clients",
		}),
		Broadcasts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "gateway_broadcasts_total",
			Help: "Hub broadcasts by stream kind",
		}, []string{"kind"}),
		Emissions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "gateway_agg_emissions_total",
			Help: "Aggregator emissions by timeframe and state",
		}, []string{"timeframe", "state"}),
		HTTPDur: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "gateway_http_request_duration_seconds",
			Help:    "Query layer request latency by route",
			Buckets: prometheus.DefBuckets,
		}, []string{"route"}),
	}
	prometheus.MustRegister(m.WSClients, m.Broadcasts, m.Emissions, m.HTTPDur)
	return m
}

// StorePinger is the slice of the store needed for liveness probes.
type StorePinger interface {
	Health(ctx context.Context) error
}

// HealthStatus aggregates dependency health for the /healthz endpoint.
type HealthStatus struct {
	mu sync.RWMutex

	RedisConnected bool
	StoreOK        bool
	RedisLatencyMs float64
	StoreLatencyMs float64
	LastCheckAt    time.Time
	StartedAt      time.Time
}

// NewHealthStatus returns a status anchored at process start.
func NewHealthStatus() *HealthStatus {
	return &HealthStatus{StartedAt: time.Now()}
}

// CheckRedis pings the broker and records latency and connectivity.
func (h *HealthStatus) CheckRedis(ctx context.Context, rdb *goredis.Client) {
	start := time.Now()
	err := rdb.Ping(ctx).Err()
	latency := time.Since(start)

	h.mu.Lock()
	h.RedisConnected = err == nil
	h.RedisLatencyMs = float64(latency.Microseconds()) / 1000.0
	h.LastCheckAt = time.Now()
	h.mu.Unlock()
}

// CheckStore probes the time-series store and records latency and health.
func (h *HealthStatus) CheckStore(ctx context.Context, store StorePinger) {
	start := time.Now()
	err := store.Health(ctx)
	latency := time.Since(start)

	h.mu.Lock()
	h.StoreOK = err == nil
	h.StoreLatencyMs = float64(latency.Microseconds()) / 1000.0
	h.LastCheckAt = time.Now()
	h.mu.Unlock()
}

// StartLivenessChecker probes both dependencies on a fixed interval
// until ctx is cancelled. Nil dependencies are skipped.
func (h *HealthStatus) StartLivenessChecker(ctx context.Context, rdb *goredis.Client, store StorePinger, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				probeCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
				if rdb != nil {
					h.CheckRedis(probeCtx, rdb)
				}
				if store != nil {
					h.CheckStore(probeCtx, store)
				}
				cancel()
			}
		}
	}()
}

// ServeHTTP handles the /healthz endpoint.
func (h *HealthStatus) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	status := "healthy"
	code := http.StatusOK
	if !h.RedisConnected || !h.StoreOK {
		status = "degraded"
		code = http.StatusServiceUnavailable
	}
	if !h.RedisConnected && !h.StoreOK {
		status = "unhealthy"
	}

	body := struct {
		Status         string  `json:"status"`
		Uptime         string  `json:"uptime"`
		RedisConnected bool    `json:"redis_connected"`
		RedisLatencyMs float64 `json:"redis_latency_ms"`
		StoreOK        bool    `json:"store_ok"`
		StoreLatencyMs float64 `json:"store_latency_ms"`
		LastCheckAt    string  `json:"last_check_at"`
	}{
		Status:         status,
		Uptime:         time.Since(h.StartedAt).Round(time.Second).String(),
		RedisConnected: h.RedisConnected,
		RedisLatencyMs: h.RedisLatencyMs,
		StoreOK:        h.StoreOK,
		StoreLatencyMs: h.StoreLatencyMs,
		LastCheckAt:    h.LastCheckAt.Format(time.RFC3339),
	}

	w.Header().Set("Content-Type", "application/json")
	if code != http.StatusOK {
		w.WriteHeader(code)
	}
	json.NewEncoder(w).Encode(body)
}

// Server exposes /metrics and /healthz on its own listener so scrapes
// never compete with the public API.
type Server struct {
	srv *http.Server
	log zerolog.Logger
}

// NewServer creates the metrics and health server.
func NewServer(addr string, health *HealthStatus, log zerolog.Logger) *Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", health.ServeHTTP)

	return &Server{
		srv: &http.Server{Addr: addr, Handler: mux},
		log: log.With().Str("component", "metrics").Logger(),
	}
}

// Start launches the listener in a goroutine.
func (s *Server) Start() {
	go func() {
		s.log.Info().Str("addr", s.srv.Addr).Msg("metrics server listening")
		if err := s.srv.ListenAndServe(); err != http.ErrServerClosed {
			s.log.Error().Err(err).Msg("metrics server failed")
		}
	}()
}

// Stop gracefully shuts the listener down.
func (s *Server) Stop(ctx context.Context) {
	s.srv.Shutdown(ctx)
}
