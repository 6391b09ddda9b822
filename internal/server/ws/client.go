package ws

import (
	"encoding/json"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

type client struct {
	hub    *Hub
	conn   *websocket.Conn
	remote string
	send   chan []byte

	mu   sync.RWMutex
	subs map[string]bool
}

// control is a client request to change its subscriptions.
type control struct {
	Action   string   `json:"action"`
	Channels []string `json:"channels"`
}

func newClient(h *Hub, conn *websocket.Conn, remote string) *client {
	c := &client{
		hub:    h,
		conn:   conn,
		remote: remote,
		send:   make(chan []byte, sendBufferSize),
		subs:   make(map[string]bool, len(Channels)),
	}
	for _, ch := range Channels {
		c.subs[ch] = true
	}
	return c
}

// offer queues msg without blocking. Callers other than HandleWS must hold
// the hub's read lock.
func (c *client) offer(msg []byte) bool {
	select {
	case c.send <- msg:
		return true
	default:
		return false
	}
}

func (c *client) subscribed(channel string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.subs[channel]
}

// apply changes subscriptions and returns the frame to send back: the
// resulting channel list, or an error naming what was rejected.
func (c *client) apply(req control) []byte {
	if req.Action != "subscribe" && req.Action != "unsubscribe" {
		return frame("error", "unknown action "+req.Action)
	}
	var unknown []string
	c.mu.Lock()
	for _, ch := range req.Channels {
		if !knownChannel(ch) {
			unknown = append(unknown, ch)
			continue
		}
		if req.Action == "subscribe" {
			c.subs[ch] = true
		} else {
			delete(c.subs, ch)
		}
	}
	current := make([]string, 0, len(c.subs))
	for ch := range c.subs {
		current = append(current, ch)
	}
	c.mu.Unlock()

	if len(unknown) > 0 {
		return frame("error", "unknown channel "+strings.Join(unknown, ", "))
	}
	slices.Sort(current)
	return frame("subscriptions", current)
}

// readPump handles control frames until the connection drops.
func (c *client) readPump() {
	defer func() {
		c.hub.remove(c)
		_ = c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.hub.logger.Warn("client read failed", slog.String("remote", c.remote), slog.String("error", err.Error()))
			}
			return
		}
		var req control
		if err := json.Unmarshal(data, &req); err != nil {
			c.hub.reply(c, frame("error", "malformed control message"))
			continue
		}
		c.hub.reply(c, c.apply(req))
	}
}

// writePump drains send and pings until send is closed or a write fails.
func (c *client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
