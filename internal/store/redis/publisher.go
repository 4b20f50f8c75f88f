package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	goredis "github.com/go-redis/redis/v8"
	"github.com/rs/zerolog"

	"github.com/Linkora-Dex/linkora-dex-backend/internal/model"
)

// Publisher fans each message out to its per-symbol topic and the
// matching firehose topic in a single pipeline. Publishing is best
// effort: a failed publish is logged and dropped, never retried, and a
// circuit breaker sheds the calls entirely while Redis stays down.
type Publisher struct {
	client *goredis.Client
	cb     *CircuitBreaker
	log    zerolog.Logger
}

// NewPublisher wraps client with a breaker that opens after 5
// consecutive failed publishes and probes again after 10 seconds.
func NewPublisher(client *goredis.Client, log zerolog.Logger) *Publisher {
	p := &Publisher{
		client: client,
		cb:     NewCircuitBreaker(5, 10*time.Second),
		log:    log.With().Str("component", "publisher").Logger(),
	}
	p.cb.OnStateChange = func(from, to State) {
		p.log.Warn().
			Stringer("from", from).
			Stringer("to", to).
			Msg("broker circuit state changed")
	}
	return p
}

// PublishCandle sends c to candles:<SYMBOL> and candles:all.
func (p *Publisher) PublishCandle(ctx context.Context, c model.StreamCandle) error {
	payload, err := json.Marshal(c)
	if err != nil {
		return fmt.Errorf("encode candle: %w", err)
	}
	return p.publish(ctx, topicCandles, c.Symbol, payload)
}

// PublishOrderBook sends snap to orderbook:<SYMBOL> and orderbook:all.
func (p *Publisher) PublishOrderBook(ctx context.Context, snap *model.OrderBookSnapshot) error {
	payload, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("encode orderbook: %w", err)
	}
	return p.publish(ctx, topicOrderBook, snap.Symbol, payload)
}

func (p *Publisher) publish(ctx context.Context, topic, symbol string, payload []byte) error {
	err := p.cb.Execute(func() error {
		pipe := p.client.Pipeline()
		pipe.Publish(ctx, topic+":"+symbol, payload)
		pipe.Publish(ctx, topic+":all", payload)
		_, err := pipe.Exec(ctx)
		return err
	})
	if err != nil {
		p.log.Warn().
			Err(err).
			Str("topic", topic).
			Str("symbol", symbol).
			Msg("publish dropped")
		return err
	}
	return nil
}

// CircuitState reports the breaker position for health endpoints.
func (p *Publisher) CircuitState() State {
	return p.cb.CurrentState()
}
