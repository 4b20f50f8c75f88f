// Package gateway fans live market data out to WebSocket subscribers.
// Connections register under a (symbol, timeframe, type) key; candle
// emissions and order-book snapshots are routed to the matching sets
// plus the "all" firehose key. Liveness is heartbeat driven: the hub
// sends JSON heartbeats, clients answer with JSON pongs, and a periodic
// sweep closes connections that stopped answering.
package gateway

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/Linkora-Dex/linkora-dex-backend/internal/model"
)

// Subscription stream kinds.
const (
	KindCandles   = "candles"
	KindOrderBook = "orderbook"
)

type subKey struct {
	symbol    string
	timeframe string
	kind      string
}

// Config holds the hub intervals. Zero values fall back to production
// defaults; tests shrink them.
type Config struct {
	// PingInterval is the heartbeat cadence.
	PingInterval time.Duration
	// PongTimeout is how long a client may stay silent before the sweep
	// closes it.
	PongTimeout time.Duration
	// CleanupInterval is the sweep cadence.
	CleanupInterval time.Duration
}

// Hub is the connection registry and broadcaster.
type Hub struct {
	cfg Config
	log zerolog.Logger

	mu      sync.RWMutex
	clients map[subKey]map[*Client]struct{}

	// Metrics hooks, optional.
	OnConnect    func()
	OnDisconnect func()
	OnBroadcast  func(kind string)
}

// NewHub creates an empty hub.
func NewHub(cfg Config, log zerolog.Logger) *Hub {
	if cfg.PingInterval <= 0 {
		cfg.PingInterval = 30 * time.Second
	}
	if cfg.PongTimeout <= 0 {
		cfg.PongTimeout = 60 * time.Second
	}
	if cfg.CleanupInterval <= 0 {
		cfg.CleanupInterval = 120 * time.Second
	}
	return &Hub{
		cfg:     cfg,
		log:     log.With().Str("component", "hub").Logger(),
		clients: make(map[subKey]map[*Client]struct{}),
	}
}

// Run drives the heartbeat and cleanup loops until ctx is cancelled.
func (h *Hub) Run(ctx context.Context) {
	heartbeat := time.NewTicker(h.cfg.PingInterval)
	cleanup := time.NewTicker(h.cfg.CleanupInterval)
	defer heartbeat.Stop()
	defer cleanup.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-heartbeat.C:
			h.sendHeartbeats()
		case <-cleanup.C:
			h.sweepStale()
		}
	}
}

func (h *Hub) register(c *Client) {
	h.mu.Lock()
	set, ok := h.clients[c.key]
	if !ok {
		set = make(map[*Client]struct{})
		h.clients[c.key] = set
	}
	set[c] = struct{}{}
	total := h.countLocked()
	h.mu.Unlock()

	h.log.Info().
		Str("symbol", c.key.symbol).
		Str("timeframe", c.key.timeframe).
		Str("type", c.key.kind).
		Int("clients", total).
		Msg("client connected")
	if h.OnConnect != nil {
		h.OnConnect()
	}
}

// remove drops c from the registry. The read loop calls it once the
// connection dies; after CloseAll it is a no-op.
func (h *Hub) remove(c *Client) {
	h.mu.Lock()
	removed := false
	if set, ok := h.clients[c.key]; ok {
		if _, in := set[c]; in {
			delete(set, c)
			removed = true
			if len(set) == 0 {
				delete(h.clients, c.key)
			}
		}
	}
	h.mu.Unlock()

	if !removed {
		return
	}
	c.stop()
	h.log.Info().
		Str("symbol", c.key.symbol).
		Str("timeframe", c.key.timeframe).
		Str("type", c.key.kind).
		Msg("client disconnected")
	if h.OnDisconnect != nil {
		h.OnDisconnect()
	}
}

// ClientCount returns the number of registered connections.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.countLocked()
}

func (h *Hub) countLocked() int {
	n := 0
	for _, set := range h.clients {
		n += len(set)
	}
	return n
}

// BroadcastCandle delivers a candle payload to the (symbol, timeframe)
// subscribers and to the "all" subscribers of the same timeframe.
func (h *Hub) BroadcastCandle(symbol, timeframe string, payload []byte) {
	h.mu.RLock()
	h.deliverLocked(subKey{symbol, timeframe, KindCandles}, payload)
	h.deliverLocked(subKey{"all", timeframe, KindCandles}, payload)
	h.mu.RUnlock()

	if h.OnBroadcast != nil {
		h.OnBroadcast(KindCandles)
	}
}

// BroadcastOrderBook delivers snap to the symbol's depth subscribers and
// the "all" firehose, truncating to each client's requested levels. The
// truncated payloads are rendered once per distinct level count.
func (h *Hub) BroadcastOrderBook(snap *model.OrderBookSnapshot) {
	payloads := make(map[int][]byte, 3)
	render := func(levels int) []byte {
		if b, ok := payloads[levels]; ok {
			return b
		}
		b, err := json.Marshal(snap.Truncate(levels))
		if err != nil {
			h.log.Error().Err(err).Str("symbol", snap.Symbol).Msg("orderbook payload encode failed")
			return nil
		}
		payloads[levels] = b
		return b
	}

	h.mu.RLock()
	for _, key := range []subKey{
		{snap.Symbol, "1", KindOrderBook},
		{"all", "1", KindOrderBook},
	} {
		for c := range h.clients[key] {
			if b := render(c.levels); b != nil {
				c.enqueue(b)
			}
		}
	}
	h.mu.RUnlock()

	if h.OnBroadcast != nil {
		h.OnBroadcast(KindOrderBook)
	}
}

func (h *Hub) deliverLocked(key subKey, payload []byte) {
	for c := range h.clients[key] {
		c.enqueue(payload)
	}
}

func (h *Hub) sendHeartbeats() {
	msg, _ := json.Marshal(struct {
		Type      string `json:"type"`
		Timestamp int64  `json:"timestamp"`
	}{Type: "heartbeat", Timestamp: time.Now().UnixMilli()})

	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, set := range h.clients {
		for c := range set {
			c.enqueue(msg)
		}
	}
}

// sweepStale closes connections that stopped answering heartbeats or
// failed a write. Closing the socket unblocks the client's read loop,
// which performs the registry removal.
func (h *Hub) sweepStale() {
	cutoff := time.Now().Add(-h.cfg.PongTimeout)

	var stale []*Client
	h.mu.RLock()
	for _, set := range h.clients {
		for c := range set {
			if c.isDead() || c.pongBefore(cutoff) {
				stale = append(stale, c)
			}
		}
	}
	h.mu.RUnlock()

	for _, c := range stale {
		h.log.Info().
			Str("symbol", c.key.symbol).
			Str("timeframe", c.key.timeframe).
			Str("type", c.key.kind).
			Msg("closing stale client")
		c.conn.Close()
	}
}

// CloseAll empties the registry and disconnects every client with a
// normal closure frame. Called on server shutdown.
func (h *Hub) CloseAll() {
	h.mu.Lock()
	var all []*Client
	for _, set := range h.clients {
		for c := range set {
			all = append(all, c)
		}
	}
	h.clients = make(map[subKey]map[*Client]struct{})
	h.mu.Unlock()

	for _, c := range all {
		c.stop()
	}
	if len(all) > 0 {
		h.log.Info().Int("clients", len(all)).Msg("closed all clients")
	}
}
