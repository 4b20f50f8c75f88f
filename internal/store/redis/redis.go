// Package redis is the pub/sub broker adapter. The collector publishes
// candles and depth snapshots on per-symbol and firehose topics; the
// API server subscribes to the firehose and feeds the WebSocket hub.
package redis

import (
	"context"
	"fmt"
	"time"

	goredis "github.com/go-redis/redis/v8"
)

// Topic layout. Every message goes to its per-symbol topic and to the
// matching firehose topic.
const (
	topicCandles   = "candles"
	topicOrderBook = "orderbook"

	channelCandlesAll   = "candles:all"
	channelOrderBookAll = "orderbook:all"
)

// Config configures the broker connection.
type Config struct {
	Addr     string // e.g. "localhost:6379"
	Password string
	DB       int
}

// Connect creates a go-redis client and verifies the connection.
func Connect(cfg Config) (*goredis.Client, error) {
	client := goredis.NewClient(&goredis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return client, nil
}
