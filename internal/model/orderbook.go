package model

import (
	"encoding/json"

	"github.com/shopspring/decimal"
)

// PriceLevel is one entry on a side of the order book.
type PriceLevel struct {
	Price    decimal.Decimal
	Quantity decimal.Decimal
}

type priceLevelWire struct {
	Price    decimal.Decimal `json:"price"`
	Quantity decimal.Decimal `json:"quantity"`
}

// MarshalJSON emits both fields as fixed 8-digit strings.
func (l PriceLevel) MarshalJSON() ([]byte, error) {
	type wire struct {
		Price    string `json:"price"`
		Quantity string `json:"quantity"`
	}
	return json.Marshal(wire{
		Price:    FormatDecimal(l.Price),
		Quantity: FormatDecimal(l.Quantity),
	})
}

// UnmarshalJSON accepts strings or bare numbers for both fields.
func (l *PriceLevel) UnmarshalJSON(b []byte) error {
	var w priceLevelWire
	if err := json.Unmarshal(b, &w); err != nil {
		return err
	}
	l.Price = w.Price
	l.Quantity = w.Quantity
	return nil
}

// OrderBookSnapshot is one polled depth snapshot. Timestamp is the
// wall-clock capture time in Unix milliseconds and forms the primary key
// together with Symbol; LastUpdateID is the upstream book revision and
// may repeat across consecutive snapshots.
type OrderBookSnapshot struct {
	Symbol       string
	Timestamp    int64
	LastUpdateID int64
	Bids         []PriceLevel
	Asks         []PriceLevel
}

type orderBookWire struct {
	Symbol       string       `json:"symbol"`
	Timestamp    int64        `json:"timestamp"`
	LastUpdateID int64        `json:"last_update_id"`
	Bids         []PriceLevel `json:"bids"`
	Asks         []PriceLevel `json:"asks"`
}

// MarshalJSON always emits bids and asks as arrays, never null.
func (s OrderBookSnapshot) MarshalJSON() ([]byte, error) {
	bids := s.Bids
	if bids == nil {
		bids = []PriceLevel{}
	}
	asks := s.Asks
	if asks == nil {
		asks = []PriceLevel{}
	}
	return json.Marshal(orderBookWire{
		Symbol:       s.Symbol,
		Timestamp:    s.Timestamp,
		LastUpdateID: s.LastUpdateID,
		Bids:         bids,
		Asks:         asks,
	})
}

func (s *OrderBookSnapshot) UnmarshalJSON(b []byte) error {
	var w orderBookWire
	if err := json.Unmarshal(b, &w); err != nil {
		return err
	}
	*s = OrderBookSnapshot{
		Symbol:       w.Symbol,
		Timestamp:    w.Timestamp,
		LastUpdateID: w.LastUpdateID,
		Bids:         w.Bids,
		Asks:         w.Asks,
	}
	return nil
}

// Truncate returns a copy limited to the top n levels per side.
func (s *OrderBookSnapshot) Truncate(levels int) *OrderBookSnapshot {
	out := *s
	if levels > 0 && len(out.Bids) > levels {
		out.Bids = out.Bids[:levels]
	}
	if levels > 0 && len(out.Asks) > levels {
		out.Asks = out.Asks[:levels]
	}
	return &out
}

// JSON returns the encoded payload (ignoring errors for hot-path usage).
func (s *OrderBookSnapshot) JSON() []byte {
	b, _ := json.Marshal(s)
	return b
}
