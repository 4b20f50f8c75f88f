package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	goredis "github.com/go-redis/redis/v8"
	"github.com/rs/zerolog"

	"github.com/Linkora-Dex/linkora-dex-backend/internal/model"
)

// Subscriber consumes the candle and orderbook firehose topics and hands
// decoded messages to the registered callbacks. It owns reconnection:
// when the subscription drops it retries with exponential backoff until
// the context is cancelled.
type Subscriber struct {
	client *goredis.Client
	log    zerolog.Logger

	// OnCandle receives every message from candles:all.
	OnCandle func(model.StreamCandle)
	// OnOrderBook receives every message from orderbook:all.
	OnOrderBook func(*model.OrderBookSnapshot)
}

// NewSubscriber creates a subscriber over an established client.
// Callbacks must be set before Run is called.
func NewSubscriber(client *goredis.Client, log zerolog.Logger) *Subscriber {
	return &Subscriber{
		client: client,
		log:    log.With().Str("component", "subscriber").Logger(),
	}
}

// Run blocks until ctx is cancelled, reconnecting after failures.
// Backoff doubles from 1s up to 30s and resets once a subscription is
// confirmed by the server.
func (s *Subscriber) Run(ctx context.Context) {
	const maxBackoff = 30 * time.Second
	backoff := time.Second

	for {
		subscribed, err := s.consume(ctx)
		if ctx.Err() != nil {
			return
		}
		if subscribed {
			backoff = time.Second
		}
		s.log.Warn().
			Err(err).
			Dur("retry_in", backoff).
			Msg("subscription lost, reconnecting")

		select {
		case <-ctx.Done():
			return
		case <-time.After(backoff):
		}
		backoff *= 2
		if backoff > maxBackoff {
			backoff = maxBackoff
		}
	}
}

// consume subscribes to both firehose topics and dispatches messages
// until the stream breaks. The flag reports whether the subscribe
// handshake succeeded, so Run only resets its backoff after a healthy
// session.
func (s *Subscriber) consume(ctx context.Context) (bool, error) {
	pubsub := s.client.Subscribe(ctx, channelCandlesAll, channelOrderBookAll)
	defer pubsub.Close()

	if _, err := pubsub.Receive(ctx); err != nil {
		return false, fmt.Errorf("subscribe: %w", err)
	}
	s.log.Info().
		Str("channels", channelCandlesAll+","+channelOrderBookAll).
		Msg("subscribed")

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return true, ctx.Err()
		case msg, ok := <-ch:
			if !ok {
				return true, errors.New("pubsub stream closed")
			}
			s.dispatch(msg.Channel, []byte(msg.Payload))
		}
	}
}

func (s *Subscriber) dispatch(channel string, payload []byte) {
	switch channel {
	case channelCandlesAll:
		var c model.StreamCandle
		if err := json.Unmarshal(payload, &c); err != nil {
			s.log.Warn().Err(err).Str("channel", channel).Msg("dropping undecodable message")
			return
		}
		if s.OnCandle != nil {
			s.OnCandle(c)
		}
	case channelOrderBookAll:
		var snap model.OrderBookSnapshot
		if err := json.Unmarshal(payload, &snap); err != nil {
			s.log.Warn().Err(err).Str("channel", channel).Msg("dropping undecodable message")
			return
		}
		if s.OnOrderBook != nil {
			s.OnOrderBook(&snap)
		}
	}
}
