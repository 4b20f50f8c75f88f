package model

import (
	"encoding/json"
	"strings"
	"testing"
)

func level(t *testing.T, price, qty string) PriceLevel {
	t.Helper()
	return PriceLevel{Price: dec(t, price), Quantity: dec(t, qty)}
}

func TestOrderBookSnapshot_MarshalJSON(t *testing.T) {
	snap := &OrderBookSnapshot{
		Symbol:       "BTCUSDT",
		Timestamp:    1736899200123,
		LastUpdateID: 987654321,
		Bids: []PriceLevel{
			level(t, "105000.10", "0.5"),
			level(t, "105000.00", "1.25"),
		},
		Asks: []PriceLevel{
			level(t, "105001.00", "0.75"),
		},
	}
	b, err := json.Marshal(snap)
	if err != nil {
		t.Fatal(err)
	}
	s := string(b)
	if !strings.Contains(s, `"last_update_id":987654321`) {
		t.Errorf("last_update_id must stay a JSON number: %s", s)
	}
	if !strings.Contains(s, `{"price":"105000.10000000","quantity":"0.50000000"}`) {
		t.Errorf("levels not rendered as string objects: %s", s)
	}

	var out OrderBookSnapshot
	if err := json.Unmarshal(b, &out); err != nil {
		t.Fatal(err)
	}
	if len(out.Bids) != 2 || len(out.Asks) != 1 {
		t.Fatalf("round trip lost levels: %d bids, %d asks", len(out.Bids), len(out.Asks))
	}
	if !out.Bids[0].Price.Equal(snap.Bids[0].Price) {
		t.Errorf("bid price changed: got %s", out.Bids[0].Price)
	}
}

func TestOrderBookSnapshot_EmptySidesAreArrays(t *testing.T) {
	snap := &OrderBookSnapshot{Symbol: "ETHUSDT", Timestamp: 1}
	b, err := json.Marshal(snap)
	if err != nil {
		t.Fatal(err)
	}
	s := string(b)
	if strings.Contains(s, "null") {
		t.Errorf("empty sides must encode as [], got %s", s)
	}
}

func TestOrderBookSnapshot_Truncate(t *testing.T) {
	snap := &OrderBookSnapshot{
		Symbol: "BTCUSDT",
		Bids: []PriceLevel{
			level(t, "3", "1"), level(t, "2", "1"), level(t, "1", "1"),
		},
		Asks: []PriceLevel{
			level(t, "4", "1"), level(t, "5", "1"), level(t, "6", "1"),
		},
	}
	got := snap.Truncate(2)
	if len(got.Bids) != 2 || len(got.Asks) != 2 {
		t.Errorf("Truncate(2): got %d bids, %d asks", len(got.Bids), len(got.Asks))
	}
	if len(snap.Bids) != 3 {
		t.Errorf("Truncate mutated the original: %d bids", len(snap.Bids))
	}

	same := snap.Truncate(10)
	if len(same.Bids) != 3 || len(same.Asks) != 3 {
		t.Errorf("Truncate(10) should keep all levels, got %d/%d", len(same.Bids), len(same.Asks))
	}
}
