package model

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
)

// Candle is a persisted 1-minute OHLC row, or a server-side aggregated
// bucket when read back at a higher timeframe. Prices and volumes are
// exact decimals. Timestamp is the bucket start in Unix milliseconds and
// forms the primary key together with Symbol.
type Candle struct {
	Symbol              string
	Timestamp           int64
	OpenTime            time.Time
	CloseTime           time.Time
	OpenPrice           decimal.Decimal
	HighPrice           decimal.Decimal
	LowPrice            decimal.Decimal
	ClosePrice          decimal.Decimal
	Volume              decimal.Decimal
	QuoteVolume         decimal.Decimal
	Trades              int64
	TakerBuyVolume      decimal.Decimal
	TakerBuyQuoteVolume decimal.Decimal
}

// MarshalJSON renders the query-layer response shape: timestamps as
// RFC3339, decimals as fixed 8-digit strings, never scientific notation.
func (c Candle) MarshalJSON() ([]byte, error) {
	type wire struct {
		Timestamp           int64  `json:"timestamp"`
		OpenTime            string `json:"open_time"`
		CloseTime           string `json:"close_time"`
		OpenPrice           string `json:"open_price"`
		HighPrice           string `json:"high_price"`
		LowPrice            string `json:"low_price"`
		ClosePrice          string `json:"close_price"`
		Volume              string `json:"volume"`
		QuoteVolume         string `json:"quote_volume"`
		Trades              int64  `json:"trades"`
		TakerBuyVolume      string `json:"taker_buy_volume"`
		TakerBuyQuoteVolume string `json:"taker_buy_quote_volume"`
	}
	return json.Marshal(wire{
		Timestamp:           c.Timestamp,
		OpenTime:            c.OpenTime.UTC().Format(time.RFC3339Nano),
		CloseTime:           c.CloseTime.UTC().Format(time.RFC3339Nano),
		OpenPrice:           FormatDecimal(c.OpenPrice),
		HighPrice:           FormatDecimal(c.HighPrice),
		LowPrice:            FormatDecimal(c.LowPrice),
		ClosePrice:          FormatDecimal(c.ClosePrice),
		Volume:              FormatDecimal(c.Volume),
		QuoteVolume:         FormatDecimal(c.QuoteVolume),
		Trades:              c.Trades,
		TakerBuyVolume:      FormatDecimal(c.TakerBuyVolume),
		TakerBuyQuoteVolume: FormatDecimal(c.TakerBuyQuoteVolume),
	})
}

// Stream converts the row into its broker payload.
func (c *Candle) Stream() StreamCandle {
	return StreamCandle{
		Symbol:      c.Symbol,
		Timestamp:   c.Timestamp,
		Open:        c.OpenPrice,
		High:        c.HighPrice,
		Low:         c.LowPrice,
		Close:       c.ClosePrice,
		Volume:      c.Volume,
		QuoteVolume: c.QuoteVolume,
		Trades:      c.Trades,
	}
}

// StreamCandle is the payload carried on candles:<SYMBOL> topics and
// pushed to WebSocket candle subscribers. Aggregated candles (closed and
// interim) reuse the same shape with Timestamp set to the period start.
type StreamCandle struct {
	Symbol      string
	Timestamp   int64
	Open        decimal.Decimal
	High        decimal.Decimal
	Low         decimal.Decimal
	Close       decimal.Decimal
	Volume      decimal.Decimal
	QuoteVolume decimal.Decimal
	Trades      int64
}

type streamCandleWire struct {
	Symbol      string          `json:"symbol"`
	Timestamp   int64           `json:"timestamp"`
	Open        decimal.Decimal `json:"open"`
	High        decimal.Decimal `json:"high"`
	Low         decimal.Decimal `json:"low"`
	Close       decimal.Decimal `json:"close"`
	Volume      decimal.Decimal `json:"volume"`
	QuoteVolume decimal.Decimal `json:"quote_volume"`
	Trades      int64           `json:"trades"`
}

// MarshalJSON emits decimals as fixed 8-digit strings, never scientific
// notation. Timestamp and trades stay JSON numbers.
func (c StreamCandle) MarshalJSON() ([]byte, error) {
	type wire struct {
		Symbol      string `json:"symbol"`
		Timestamp   int64  `json:"timestamp"`
		Open        string `json:"open"`
		High        string `json:"high"`
		Low         string `json:"low"`
		Close       string `json:"close"`
		Volume      string `json:"volume"`
		QuoteVolume string `json:"quote_volume"`
		Trades      int64  `json:"trades"`
	}
	return json.Marshal(wire{
		Symbol:      c.Symbol,
		Timestamp:   c.Timestamp,
		Open:        FormatDecimal(c.Open),
		High:        FormatDecimal(c.High),
		Low:         FormatDecimal(c.Low),
		Close:       FormatDecimal(c.Close),
		Volume:      FormatDecimal(c.Volume),
		QuoteVolume: FormatDecimal(c.QuoteVolume),
		Trades:      c.Trades,
	})
}

// UnmarshalJSON accepts decimal fields as either strings or bare numbers.
func (c *StreamCandle) UnmarshalJSON(b []byte) error {
	var w streamCandleWire
	if err := json.Unmarshal(b, &w); err != nil {
		return err
	}
	*c = StreamCandle{
		Symbol:      w.Symbol,
		Timestamp:   w.Timestamp,
		Open:        w.Open,
		High:        w.High,
		Low:         w.Low,
		Close:       w.Close,
		Volume:      w.Volume,
		QuoteVolume: w.QuoteVolume,
		Trades:      w.Trades,
	}
	return nil
}

// JSON returns the encoded payload (ignoring errors for hot-path usage).
func (c StreamCandle) JSON() []byte {
	b, _ := json.Marshal(c)
	return b
}
