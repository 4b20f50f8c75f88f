// Package api is the query layer: REST endpoints for historical candles,
// the latest order book, price analytics and the symbol catalog, plus
// the /ws upgrade route into the gateway.
package api

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/Linkora-Dex/linkora-dex-backend/internal/model"
)

const (
	defaultCandleLimit = 500
	maxCandleLimit     = 5000
	defaultLevels      = 20
)

// Store is the storage surface the query layer reads through.
type Store interface {
	Candles(ctx context.Context, symbol, timeframe string, start *time.Time, limit int) ([]model.Candle, error)
	Symbols(ctx context.Context) ([]string, error)
	LatestOrderBook(ctx context.Context, symbol string, levels int) (*model.OrderBookSnapshot, error)
	Health(ctx context.Context) error
}

// PartialSource exposes the aggregator's forming candle to /price.
type PartialSource interface {
	Current(symbol, timeframe string) *model.StreamCandle
}

// Handlers serves the REST routes. Store errors are logged and mapped to
// opaque 500 responses; parameter problems come back as 400 with a
// reason.
type Handlers struct {
	store Store
	agg   PartialSource
	log   zerolog.Logger

	nowFn func() time.Time
}

// NewHandlers wires the query layer over its collaborators.
func NewHandlers(store Store, agg PartialSource, log zerolog.Logger) *Handlers {
	return &Handlers{
		store: store,
		agg:   agg,
		log:   log.With().Str("component", "api").Logger(),
		nowFn: time.Now,
	}
}

// Health reports service and database health.
func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	status, database := "healthy", "healthy"
	if err := h.store.Health(r.Context()); err != nil {
		h.log.Warn().Err(err).Msg("database health probe failed")
		status, database = "degraded", "unhealthy"
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"status":    status,
		"timestamp": h.nowFn().UTC().Format(time.RFC3339),
		"database":  database,
	})
}

// Symbols lists every symbol with stored candles.
func (h *Handlers) Symbols(w http.ResponseWriter, r *http.Request) {
	symbols, err := h.store.Symbols(r.Context())
	if err != nil {
		h.log.Error().Err(err).Msg("symbols query failed")
		writeError(w, http.StatusInternalServerError, "Database error")
		return
	}
	if symbols == nil {
		symbols = []string{}
	}
	writeJSON(w, http.StatusOK, map[string][]string{"symbols": symbols})
}

// Candles serves a bucketed candle range for one symbol.
func (h *Handlers) Candles(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	symbol := strings.ToUpper(q.Get("symbol"))
	if symbol == "" {
		writeError(w, http.StatusBadRequest, "symbol parameter is required")
		return
	}
	timeframe := q.Get("timeframe")
	if timeframe == "" {
		timeframe = "1"
	}
	if _, ok := model.TimeframeMinutes(timeframe); !ok {
		writeError(w, http.StatusBadRequest,
			fmt.Sprintf("Invalid timeframe. Supported: %v", model.TimeframeLabels()))
		return
	}

	limit := defaultCandleLimit
	if raw := q.Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > maxCandleLimit {
			writeError(w, http.StatusBadRequest,
				fmt.Sprintf("limit must be an integer between 1 and %d", maxCandleLimit))
			return
		}
		limit = n
	}

	var start *time.Time
	if raw := q.Get("start_date"); raw != "" {
		t, err := parseISOTime(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "start_date must be an ISO-8601 date")
			return
		}
		start = &t
	}

	candles, err := h.store.Candles(r.Context(), symbol, timeframe, start, limit)
	if err != nil {
		h.log.Error().Err(err).Str("symbol", symbol).Str("timeframe", timeframe).Msg("candles query failed")
		writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}
	if candles == nil {
		candles = []model.Candle{}
	}
	writeJSON(w, http.StatusOK, candles)
}

// OrderBook serves the latest depth snapshot for one symbol.
func (h *Handlers) OrderBook(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	symbol := strings.ToUpper(q.Get("symbol"))
	if symbol == "" {
		writeError(w, http.StatusBadRequest, "symbol parameter is required")
		return
	}
	levels := defaultLevels
	if raw := q.Get("levels"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || (n != 5 && n != 10 && n != 20) {
			writeError(w, http.StatusBadRequest, "Invalid levels. Supported: [5 10 20]")
			return
		}
		levels = n
	}

	snap, err := h.store.LatestOrderBook(r.Context(), symbol, levels)
	if err != nil {
		h.log.Error().Err(err).Str("symbol", symbol).Msg("orderbook query failed")
		writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}
	if snap == nil {
		writeError(w, http.StatusNotFound, "No orderbook data available for this symbol")
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

// Price serves derived price analytics for one (symbol, timeframe). The
// current price prefers the aggregator's forming candle; the previous
// price always comes from storage.
func (h *Handlers) Price(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	symbol := strings.ToUpper(q.Get("symbol"))
	if symbol == "" {
		writeError(w, http.StatusBadRequest, "symbol parameter is required")
		return
	}
	timeframe := q.Get("timeframe")
	if timeframe == "" {
		timeframe = "1"
	}
	if _, ok := model.TimeframeMinutes(timeframe); !ok {
		writeError(w, http.StatusBadRequest,
			fmt.Sprintf("Invalid timeframe. Supported: %v", model.TimeframeLabels()))
		return
	}

	partial := h.agg.Current(symbol, timeframe)

	// With a forming candle only the newest closed one matters; without
	// it the two newest closed candles carry current and previous.
	limit := 1
	if timeframe == "1" {
		limit = 2
	}
	candles, err := h.store.Candles(r.Context(), symbol, timeframe, nil, limit)
	if err != nil {
		h.log.Error().Err(err).Str("symbol", symbol).Str("timeframe", timeframe).Msg("price query failed")
		writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}
	if len(candles) == 0 && partial == nil {
		writeError(w, http.StatusNotFound, "No data available for this symbol")
		return
	}

	var current, previous, volume decimal.Decimal
	var timestamp int64
	if partial != nil {
		current = partial.Close
		timestamp = partial.Timestamp
		volume = partial.Volume
		previous = current
		if len(candles) > 0 {
			previous = candles[len(candles)-1].ClosePrice
		}
	} else {
		newest := candles[len(candles)-1]
		current = newest.ClosePrice
		timestamp = newest.Timestamp
		volume = newest.Volume
		previous = current
		if len(candles) >= 2 {
			previous = candles[len(candles)-2].ClosePrice
		}
	}

	change := current.Sub(previous)
	percent := decimal.Zero
	if !previous.IsZero() {
		percent = change.Div(previous).Mul(decimal.NewFromInt(100))
	}
	trend := "neutral"
	switch {
	case change.IsPositive():
		trend = "up"
	case change.IsNegative():
		trend = "down"
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"symbol":          symbol,
		"timeframe":       timeframe,
		"current_price":   model.FormatDecimal(current),
		"previous_price":  model.FormatDecimal(previous),
		"change_absolute": model.FormatDecimal(change),
		"change_percent":  percent.StringFixed(2),
		"trend":           trend,
		"timestamp":       timestamp,
		"volume":          model.FormatDecimal(volume),
	})
}

// parseISOTime accepts a full RFC3339 instant or a plain calendar date,
// both interpreted as UTC.
func parseISOTime(s string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t.UTC(), nil
	}
	return time.ParseInLocation("2006-01-02", s, time.UTC)
}
