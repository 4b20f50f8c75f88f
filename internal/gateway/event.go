package gateway

import (
	"encoding/json"

	"github.com/Linkora-Dex/linkora-dex-backend/internal/model"
)

// Candle stream message types. Control messages (heartbeat) and candle
// data share one socket, so every candle message carries a type tag;
// order-book sockets carry a single shape and stay untagged.
const (
	EventCandleClosed = "candle_closed"
	EventCandleUpdate = "candle_update"
)

// CandlePayload renders one candle emission for broadcast.
func CandlePayload(timeframe string, closed bool, c model.StreamCandle) []byte {
	typ := EventCandleUpdate
	if closed {
		typ = EventCandleClosed
	}
	b, _ := json.Marshal(struct {
		Type      string             `json:"type"`
		Timeframe string             `json:"timeframe"`
		Candle    model.StreamCandle `json:"candle"`
	}{Type: typ, Timeframe: timeframe, Candle: c})
	return b
}
