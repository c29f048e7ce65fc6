package ws

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"carelink-backend/pkg/constants"
	"carelink-backend/pkg/logger"
)

const (
	// sendBufferSize bounds the per-connection outbound queue. A
	// connection that cannot drain it has its frames dropped.
	sendBufferSize = 256

	maxFrameSize = 32 * 1024
)

// Client is one WebSocket connection of one identity. An identity may
// hold several clients at once (phone and tablet, for example); the
// relay fans out to all of them.
type Client struct {
	hub         *Hub
	conn        *websocket.Conn
	identity    string
	displayName string

	mu     sync.Mutex
	send   chan []byte
	closed bool
}

// Deliver queues a payload for the connection without blocking. It
// reports false when the buffer is full or the connection is shutting
// down; either way the frame counts as dropped.
func (c *Client) Deliver(payload []byte) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}
	select {
	case c.send <- payload:
		return true
	default:
		return false
	}
}

// shutdown closes the send channel exactly once. The registry no
// longer holds the client at this point, but an in-flight publish may
// still call Deliver; the closed flag turns that into a drop.
func (c *Client) shutdown() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	close(c.send)
}

// readPump reads envelopes from the connection and routes them through
// the hub until the connection drops.
func (c *Client) readPump() {
	defer func() {
		c.hub.unregister <- c
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxFrameSize)
	c.conn.SetReadDeadline(time.Now().Add(constants.WebSocketPingInterval))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(constants.WebSocketPingInterval))
		return nil
	})

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				logger.Debug("websocket closed unexpectedly",
					zap.String("identity", c.identity),
					zap.Error(err))
			}
			break
		}

		var env Envelope
		if err := json.Unmarshal(raw, &env); err != nil {
			c.hub.recordError("malformed_envelope")
			continue
		}
		c.hub.route(c, env)
	}
}

// writePump drains the send buffer to the connection and keeps the
// connection alive with periodic pings.
func (c *Client) writePump() {
	ticker := time.NewTicker(constants.WebSocketPingInterval * 9 / 10)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case payload, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(constants.WebSocketWriteTimeout))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(constants.WebSocketWriteTimeout))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
