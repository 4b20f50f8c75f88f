package gateway

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	// writeWait bounds a single frame write.
	writeWait = 10 * time.Second
	// maxMessageSize bounds inbound frames; clients only send pongs.
	maxMessageSize = 512
	// sendQueueSize is the per-client outgoing buffer.
	sendQueueSize = 64
)

// Client is one WebSocket peer. The write loop drains send; the read
// loop watches for pongs and tears the client down when the connection
// dies. There is no read deadline: liveness is decided by the hub sweep.
type Client struct {
	hub    *Hub
	conn   *websocket.Conn
	key    subKey
	levels int

	send chan []byte

	mu       sync.Mutex
	lastPong time.Time
	dead     bool
	stopped  bool
}

func newClient(hub *Hub, conn *websocket.Conn, key subKey, levels int) *Client {
	return &Client{
		hub:      hub,
		conn:     conn,
		key:      key,
		levels:   levels,
		send:     make(chan []byte, sendQueueSize),
		lastPong: time.Now(),
	}
}

// enqueue queues msg for delivery. When the buffer is full the oldest
// queued message is dropped so a slow reader never blocks a broadcast;
// the client catches up on the next update.
func (c *Client) enqueue(msg []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.stopped || c.dead {
		return
	}
	for {
		select {
		case c.send <- msg:
			return
		default:
		}
		select {
		case <-c.send:
		default:
		}
	}
}

// stop closes the send queue. The write loop drains what is left and
// finishes with a normal closure frame.
func (c *Client) stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.stopped {
		return
	}
	c.stopped = true
	close(c.send)
}

func (c *Client) markDead() {
	c.mu.Lock()
	c.dead = true
	c.mu.Unlock()
}

func (c *Client) isDead() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.dead
}

func (c *Client) pongBefore(cutoff time.Time) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastPong.Before(cutoff)
}

func (c *Client) writePump() {
	defer c.conn.Close()

	for msg := range c.send {
		c.conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
			c.markDead()
			return
		}
	}

	// Queue closed: the hub is shutting this client down cleanly.
	c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	c.conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
}

func (c *Client) readPump() {
	defer func() {
		c.hub.remove(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	for {
		_, msg, err := c.conn.ReadMessage()
		if err != nil {
			return
		}

		var m struct {
			Type string `json:"type"`
		}
		if json.Unmarshal(msg, &m) != nil {
			continue
		}
		if m.Type == "pong" {
			c.mu.Lock()
			c.lastPong = time.Now()
			c.mu.Unlock()
		}
	}
}
