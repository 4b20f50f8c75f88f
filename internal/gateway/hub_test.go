package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/Linkora-Dex/linkora-dex-backend/internal/model"
)

func newTestHub(cfg Config) (*Hub, *httptest.Server) {
	h := NewHub(cfg, zerolog.Nop())
	srv := httptest.NewServer(http.HandlerFunc(h.HandleWS))
	return h, srv
}

func dialWS(t *testing.T, srv *httptest.Server, query string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + query
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial %s: %v", query, err)
	}
	return conn
}

func waitForClients(t *testing.T, h *Hub, want int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if h.ClientCount() == want {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("client count = %d, want %d", h.ClientCount(), want)
}

func readNext(t *testing.T, conn *websocket.Conn, timeout time.Duration) []byte {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(timeout))
	_, msg, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	return msg
}

// pumpMessages reads conn in a goroutine and forwards every message to
// the returned channel. Gorilla read errors are sticky, so a test that
// checks for silence with a short read deadline would kill the
// connection for any later read; draining through a channel lets the
// silence checks stay non-destructive.
func pumpMessages(conn *websocket.Conn) <-chan []byte {
	msgs := make(chan []byte, 16)
	go func() {
		defer close(msgs)
		for {
			_, msg, err := conn.ReadMessage()
			if err != nil {
				return
			}
			msgs <- msg
		}
	}()
	return msgs
}

func readNextCh(t *testing.T, msgs <-chan []byte, timeout time.Duration) []byte {
	t.Helper()
	select {
	case msg, ok := <-msgs:
		if !ok {
			t.Fatal("read: connection closed")
		}
		return msg
	case <-time.After(timeout):
		t.Fatal("read: timed out")
	}
	return nil
}

func expectSilence(t *testing.T, msgs <-chan []byte) {
	t.Helper()
	select {
	case msg := <-msgs:
		t.Fatalf("expected no message, got %s", msg)
	case <-time.After(60 * time.Millisecond):
	}
}

func expectPolicyClose(t *testing.T, conn *websocket.Conn, wantReason string) {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, _, err := conn.ReadMessage()
	closeErr, ok := err.(*websocket.CloseError)
	if !ok {
		t.Fatalf("expected close error, got %v", err)
	}
	if closeErr.Code != websocket.ClosePolicyViolation {
		t.Errorf("close code = %d, want %d", closeErr.Code, websocket.ClosePolicyViolation)
	}
	if !strings.Contains(closeErr.Text, wantReason) {
		t.Errorf("close reason = %q, want it to contain %q", closeErr.Text, wantReason)
	}
}

func TestHandleWS_RejectsInvalidParams(t *testing.T) {
	_, srv := newTestHub(Config{})
	defer srv.Close()

	tests := []struct {
		name   string
		query  string
		reason string
	}{
		{"unknown timeframe", "?timeframe=7", "unsupported timeframe"},
		{"lowercase hour alias", "?timeframe=1h", "unsupported timeframe"},
		{"unknown type", "?type=trades", "unsupported type"},
		{"levels not in set", "?type=orderbook&levels=7", "unsupported levels"},
		{"levels not a number", "?type=orderbook&levels=many", "unsupported levels"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			conn := dialWS(t, srv, tt.query)
			defer conn.Close()
			expectPolicyClose(t, conn, tt.reason)
		})
	}
}

func TestHub_RoutesCandlesBySymbolAndTimeframe(t *testing.T) {
	h, srv := newTestHub(Config{})
	defer srv.Close()

	btc5 := dialWS(t, srv, "?symbol=BTCUSDT&timeframe=5")
	defer btc5.Close()
	firehose := dialWS(t, srv, "") // defaults: all, timeframe 1, candles
	defer firehose.Close()
	eth5 := dialWS(t, srv, "?symbol=ETHUSDT&timeframe=5")
	defer eth5.Close()
	waitForClients(t, h, 3)

	btc5Msgs := pumpMessages(btc5)
	firehoseMsgs := pumpMessages(firehose)
	eth5Msgs := pumpMessages(eth5)

	h.BroadcastCandle("BTCUSDT", "5", []byte(`{"symbol":"BTCUSDT","timeframe":"5"}`))

	msg := readNextCh(t, btc5Msgs, time.Second)
	if !strings.Contains(string(msg), "BTCUSDT") {
		t.Errorf("subscriber got %s, want the BTCUSDT payload", msg)
	}
	expectSilence(t, firehoseMsgs)
	expectSilence(t, eth5Msgs)

	h.BroadcastCandle("BTCUSDT", "1", []byte(`{"symbol":"BTCUSDT","timeframe":"1"}`))

	msg = readNextCh(t, firehoseMsgs, time.Second)
	if !strings.Contains(string(msg), `"timeframe":"1"`) {
		t.Errorf("firehose got %s, want the timeframe 1 payload", msg)
	}
	expectSilence(t, btc5Msgs)
}

func TestHub_LowercaseSymbolMatchesBroadcast(t *testing.T) {
	h, srv := newTestHub(Config{})
	defer srv.Close()

	conn := dialWS(t, srv, "?symbol=btcusdt&timeframe=5")
	defer conn.Close()
	waitForClients(t, h, 1)

	h.BroadcastCandle("BTCUSDT", "5", []byte(`{"ok":true}`))
	if msg := readNext(t, conn, time.Second); !strings.Contains(string(msg), "ok") {
		t.Errorf("got %s, want broadcast payload", msg)
	}
}

func testSnapshot(levels int) *model.OrderBookSnapshot {
	snap := &model.OrderBookSnapshot{
		Symbol:       "BTCUSDT",
		Timestamp:    1736899200123,
		LastUpdateID: 55,
	}
	for i := 0; i < levels; i++ {
		price := decimal.New(int64(100000-i), 0)
		qty := decimal.New(1, 0)
		snap.Bids = append(snap.Bids, model.PriceLevel{Price: price, Quantity: qty})
		snap.Asks = append(snap.Asks, model.PriceLevel{Price: price, Quantity: qty})
	}
	return snap
}

func TestHub_OrderBookTruncatesPerClient(t *testing.T) {
	h, srv := newTestHub(Config{})
	defer srv.Close()

	shallow := dialWS(t, srv, "?symbol=BTCUSDT&type=orderbook&levels=5")
	defer shallow.Close()
	deep := dialWS(t, srv, "?type=orderbook") // all, default 20 levels
	defer deep.Close()
	// An explicit timeframe is ignored for depth subscriptions.
	timeframed := dialWS(t, srv, "?symbol=BTCUSDT&type=orderbook&timeframe=4H")
	defer timeframed.Close()
	waitForClients(t, h, 3)

	h.BroadcastOrderBook(testSnapshot(10))

	var got model.OrderBookSnapshot
	if err := json.Unmarshal(readNext(t, shallow, time.Second), &got); err != nil {
		t.Fatalf("decode shallow: %v", err)
	}
	if len(got.Bids) != 5 || len(got.Asks) != 5 {
		t.Errorf("shallow client got %d/%d levels, want 5/5", len(got.Bids), len(got.Asks))
	}

	if err := json.Unmarshal(readNext(t, deep, time.Second), &got); err != nil {
		t.Fatalf("decode deep: %v", err)
	}
	if len(got.Bids) != 10 {
		t.Errorf("deep client got %d bid levels, want all 10", len(got.Bids))
	}

	if err := json.Unmarshal(readNext(t, timeframed, time.Second), &got); err != nil {
		t.Fatalf("decode timeframed: %v", err)
	}
	if got.Symbol != "BTCUSDT" {
		t.Errorf("timeframed client got symbol %q, want BTCUSDT", got.Symbol)
	}
}

func TestHub_HeartbeatAndPongKeepClientAlive(t *testing.T) {
	cfg := Config{
		PingInterval:    10 * time.Millisecond,
		PongTimeout:     80 * time.Millisecond,
		CleanupInterval: 20 * time.Millisecond,
	}
	h, srv := newTestHub(cfg)
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go h.Run(ctx)

	conn := dialWS(t, srv, "")
	defer conn.Close()
	waitForClients(t, h, 1)

	// Answer every heartbeat for well past the pong timeout.
	deadline := time.Now().Add(250 * time.Millisecond)
	sawHeartbeat := false
	for time.Now().Before(deadline) {
		conn.SetReadDeadline(time.Now().Add(time.Second))
		_, msg, err := conn.ReadMessage()
		if err != nil {
			t.Fatalf("connection dropped while ponging: %v", err)
		}
		var m struct {
			Type      string `json:"type"`
			Timestamp int64  `json:"timestamp"`
		}
		if err := json.Unmarshal(msg, &m); err != nil {
			t.Fatalf("heartbeat decode: %v (%s)", err, msg)
		}
		if m.Type != "heartbeat" {
			continue
		}
		if m.Timestamp <= 0 {
			t.Errorf("heartbeat timestamp = %d, want > 0", m.Timestamp)
		}
		sawHeartbeat = true
		if err := conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"pong"}`)); err != nil {
			t.Fatalf("pong write: %v", err)
		}
	}

	if !sawHeartbeat {
		t.Fatal("never saw a heartbeat")
	}
	if got := h.ClientCount(); got != 1 {
		t.Errorf("client count = %d, want 1 (ponging client must survive)", got)
	}
}

func TestHub_SweepRemovesSilentClient(t *testing.T) {
	cfg := Config{
		PingInterval:    10 * time.Millisecond,
		PongTimeout:     50 * time.Millisecond,
		CleanupInterval: 20 * time.Millisecond,
	}
	h, srv := newTestHub(cfg)
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go h.Run(ctx)

	conn := dialWS(t, srv, "")
	defer conn.Close()
	waitForClients(t, h, 1)

	// Never pong. The sweep must close the connection and empty the
	// registry.
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) && h.ClientCount() > 0 {
		time.Sleep(5 * time.Millisecond)
	}
	if got := h.ClientCount(); got != 0 {
		t.Fatalf("client count = %d, want 0 after sweep", got)
	}

	// The server side closed the socket; reads fail once the buffered
	// heartbeats run out.
	conn.SetReadDeadline(time.Now().Add(time.Second))
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}
}

func TestHub_CloseAllSendsNormalClosure(t *testing.T) {
	h, srv := newTestHub(Config{})
	defer srv.Close()

	a := dialWS(t, srv, "")
	defer a.Close()
	b := dialWS(t, srv, "?symbol=BTCUSDT&timeframe=5")
	defer b.Close()
	waitForClients(t, h, 2)

	h.CloseAll()

	for name, conn := range map[string]*websocket.Conn{"a": a, "b": b} {
		conn.SetReadDeadline(time.Now().Add(2 * time.Second))
		var err error
		for err == nil {
			_, _, err = conn.ReadMessage()
		}
		if !websocket.IsCloseError(err, websocket.CloseNormalClosure) {
			t.Errorf("client %s: got %v, want close 1000", name, err)
		}
	}
	if got := h.ClientCount(); got != 0 {
		t.Errorf("client count = %d, want 0 after CloseAll", got)
	}
}

func TestClient_EnqueueDropsOldest(t *testing.T) {
	h := NewHub(Config{}, zerolog.Nop())
	c := newClient(h, nil, subKey{symbol: "all", timeframe: "1", kind: KindCandles}, defaultLevels)

	total := sendQueueSize + 8
	for i := 0; i < total; i++ {
		c.enqueue([]byte(fmt.Sprintf("m%d", i)))
	}

	if got := len(c.send); got != sendQueueSize {
		t.Fatalf("queue holds %d messages, want %d", got, sendQueueSize)
	}
	first := string(<-c.send)
	if want := fmt.Sprintf("m%d", total-sendQueueSize); first != want {
		t.Errorf("oldest queued = %s, want %s (older messages dropped)", first, want)
	}
	var last string
	for len(c.send) > 0 {
		last = string(<-c.send)
	}
	if want := fmt.Sprintf("m%d", total-1); last != want {
		t.Errorf("newest queued = %s, want %s", last, want)
	}
}
