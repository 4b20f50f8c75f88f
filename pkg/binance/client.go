// Package binance is a client for the public Binance-style REST market
// data API: 1-minute klines and order book depth snapshots. Requests are
// paced by a shared token bucket and retried with exponential backoff;
// decimal fields are normalized to exact values on ingest.
//
// Usage example:
//
//	cli := binance.New(binance.Config{BaseURL: "https://api.binance.com"}, log)
//	candles, err := cli.Klines(ctx, "BTCUSDT", startMs, endMs, 1000)
package binance

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

// ---- Config & client ----

// Config tunes endpoints, retry behaviour and request pacing. Zero
// fields fall back to production defaults.
type Config struct {
	BaseURL         string        // default: https://api.binance.com
	Interval        string        // kline interval, default: 1m
	RetryDelay      time.Duration // base backoff unit, default: 1s
	MaxRetries      int           // kline attempts, default: 5
	DepthMaxRetries int           // depth attempts, default: 3
	RateLimit       float64       // requests per second, default: 20
}

// Client issues market data requests. Safe for concurrent use; the rate
// limiter serializes pacing across all callers.
type Client struct {
	klines  *http.Client
	depth   *http.Client
	cfg     Config
	limiter *rate.Limiter
	log     zerolog.Logger
}

// New builds a client with defaults applied for unset config fields.
func New(cfg Config, log zerolog.Logger) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.binance.com"
	}
	if cfg.Interval == "" {
		cfg.Interval = "1m"
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = time.Second
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 5
	}
	if cfg.DepthMaxRetries <= 0 {
		cfg.DepthMaxRetries = 3
	}
	if cfg.RateLimit <= 0 {
		cfg.RateLimit = 20
	}
	burst := int(cfg.RateLimit)
	if burst < 1 {
		burst = 1
	}
	return &Client{
		klines:  &http.Client{Timeout: 30 * time.Second},
		depth:   &http.Client{Timeout: 10 * time.Second},
		cfg:     cfg,
		limiter: rate.NewLimiter(rate.Limit(cfg.RateLimit), burst),
		log:     log.With().Str("component", "binance").Logger(),
	}
}

// getJSON runs one request with retries. Fatal client errors abort
// immediately; everything else backs off RetryDelay * 2^attempt. When
// all attempts fail the returned error wraps ErrUpstreamUnavailable.
func (c *Client) getJSON(ctx context.Context, hc *http.Client, url string, attempts int) ([]byte, error) {
	var lastErr error
	for attempt := 0; attempt < attempts; attempt++ {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, err
		}
		body, err := c.do(ctx, hc, url)
		if err == nil {
			return body, nil
		}
		var apiErr *APIError
		if errors.As(err, &apiErr) && apiErr.Fatal() {
			return nil, err
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		lastErr = err
		if attempt < attempts-1 {
			delay := c.cfg.RetryDelay << uint(attempt)
			c.log.Warn().Err(err).Int("attempt", attempt+1).Dur("backoff", delay).Msg("request failed, backing off")
			if err := sleepCtx(ctx, delay); err != nil {
				return nil, err
			}
		}
	}
	return nil, fmt.Errorf("%w after %d attempts: %v", ErrUpstreamUnavailable, attempts, lastErr)
}

func (c *Client) do(ctx context.Context, hc *http.Client, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := hc.Do(req)
	if err != nil {
		return nil, fmt.Errorf("executing request: %w", err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, &APIError{Status: resp.StatusCode, Body: snippet(body)}
	}
	return body, nil
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func snippet(b []byte) string {
	const max = 200
	if len(b) > max {
		b = b[:max]
	}
	return string(b)
}
