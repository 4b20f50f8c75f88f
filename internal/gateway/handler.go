package gateway

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/Linkora-Dex/linkora-dex-backend/internal/model"
)

const defaultLevels = 20

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(*http.Request) bool { return true },
}

// HandleWS upgrades the connection and registers the client. Parameter
// problems are reported over the socket: the upgrade is accepted, then
// the connection is closed with policy violation 1008 and a reason, so
// browser clients can read the cause.
func (h *Hub) HandleWS(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	symbol := q.Get("symbol")
	if symbol == "" {
		symbol = "all"
	}
	if strings.EqualFold(symbol, "all") {
		symbol = "all"
	} else {
		symbol = strings.ToUpper(symbol)
	}

	timeframe := q.Get("timeframe")
	if timeframe == "" {
		timeframe = "1"
	}
	kind := q.Get("type")
	if kind == "" {
		kind = KindCandles
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}

	if _, ok := model.TimeframeMinutes(timeframe); !ok {
		closePolicy(conn, "unsupported timeframe: "+timeframe)
		return
	}
	if kind != KindCandles && kind != KindOrderBook {
		closePolicy(conn, "unsupported type: "+kind)
		return
	}

	levels := defaultLevels
	if kind == KindOrderBook {
		if raw := q.Get("levels"); raw != "" {
			n, err := strconv.Atoi(raw)
			if err != nil || (n != 5 && n != 10 && n != 20) {
				closePolicy(conn, "unsupported levels: "+raw)
				return
			}
			levels = n
		}
		// Depth snapshots are not timeframed; every depth subscriber
		// lives under timeframe "1".
		timeframe = "1"
	}

	client := newClient(h, conn, subKey{symbol: symbol, timeframe: timeframe, kind: kind}, levels)
	h.register(client)

	go client.writePump()
	go client.readPump()
}

func closePolicy(conn *websocket.Conn, reason string) {
	deadline := time.Now().Add(writeWait)
	conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.ClosePolicyViolation, reason), deadline)
	conn.Close()
}
