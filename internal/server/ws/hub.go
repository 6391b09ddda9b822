// Package ws streams engine events to websocket clients.
//
// Clients start subscribed to every channel and may narrow that with
// {"action":"unsubscribe","channels":[...]}. A client reconnecting with
// ?since=<stream id> first receives the liquidations it missed.
package ws

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/alanyoungcy/liquidbot/internal/domain"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = pongWait * 9 / 10
	maxMessageSize = 4096
	sendBufferSize = 256

	// replayLimit caps the history sent to a resuming client.
	replayLimit = 100
)

// Channels streamed to clients.
var Channels = []string{
	domain.ChannelLiquidations,
	domain.ChannelOpportunities,
	domain.ChannelStatus,
}

func knownChannel(ch string) bool {
	return slices.Contains(Channels, ch)
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// The API key middleware guards /ws.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Config is echoed to clients in the hello frame.
type Config struct {
	Mode      string
	Pairing   string
	StartedAt time.Time
}

// Hub fans events out to connected clients. Events arrive from the Redis
// bus when one is configured, or in process through Broadcast.
type Hub struct {
	bus    domain.SignalBus
	cfg    Config
	logger *slog.Logger

	mu      sync.RWMutex
	clients map[*client]struct{}
	closed  bool
}

// NewHub creates a Hub. bus may be nil.
func NewHub(bus domain.SignalBus, logger *slog.Logger, cfg Config) *Hub {
	if cfg.StartedAt.IsZero() {
		cfg.StartedAt = time.Now().UTC()
	}
	cfg.Mode = strings.ToLower(strings.TrimSpace(cfg.Mode))
	return &Hub{
		bus:     bus,
		cfg:     cfg,
		logger:  logger.With(slog.String("component", "ws_hub")),
		clients: make(map[*client]struct{}),
	}
}

// Broadcast hands payload to every client subscribed to channel. A client
// whose buffer is full misses the event.
func (h *Hub) Broadcast(channel string, payload []byte) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.clients {
		if c.subscribed(channel) && !c.offer(payload) {
			h.logger.Warn("dropping event for slow client",
				slog.String("channel", channel),
				slog.String("remote", c.remote),
			)
		}
	}
}

// Run relays bus channels until ctx is cancelled, then disconnects every
// client.
func (h *Hub) Run(ctx context.Context) error {
	if h.bus != nil {
		for _, ch := range Channels {
			msgs, err := h.bus.Subscribe(ctx, ch)
			if err != nil {
				h.logger.ErrorContext(ctx, "bus subscribe failed",
					slog.String("channel", ch),
					slog.String("error", err.Error()),
				)
				continue
			}
			go func() {
				for payload := range msgs {
					h.Broadcast(ch, payload)
				}
			}()
		}
	}

	<-ctx.Done()
	h.mu.Lock()
	h.closed = true
	for c := range h.clients {
		delete(h.clients, c)
		close(c.send)
	}
	h.mu.Unlock()
	return nil
}

// HandleWS upgrades the request and starts the client's pumps.
// GET /ws?since=<stream id>
func (h *Hub) HandleWS(w http.ResponseWriter, r *http.Request) {
	since := r.URL.Query().Get("since")
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", slog.String("error", err.Error()))
		return
	}

	c := newClient(h, conn, r.RemoteAddr)
	c.offer(h.hello())
	if since != "" {
		h.replay(r.Context(), c, since)
	}
	if !h.add(c) {
		_ = conn.Close()
		return
	}

	go c.writePump()
	go c.readPump()
}

func (h *Hub) add(c *client) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return false
	}
	h.clients[c] = struct{}{}
	h.logger.Info("client connected", slog.String("remote", c.remote), slog.Int("clients", len(h.clients)))
	return true
}

func (h *Hub) remove(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[c]; !ok {
		return
	}
	delete(h.clients, c)
	close(c.send)
	h.logger.Info("client disconnected", slog.String("remote", c.remote), slog.Int("clients", len(h.clients)))
}

// reply queues a control frame for c if it is still connected.
func (h *Hub) reply(c *client, frame []byte) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if _, ok := h.clients[c]; ok {
		c.offer(frame)
	}
}

func (h *Hub) clientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (h *Hub) hello() []byte {
	return frame("hello", map[string]any{
		"mode":           h.cfg.Mode,
		"pairing":        h.cfg.Pairing,
		"uptime_seconds": int64(time.Since(h.cfg.StartedAt).Seconds()),
		"channels":       Channels,
	})
}

type replayFrame struct {
	Type     string          `json:"type"`
	StreamID string          `json:"stream_id"`
	Event    json.RawMessage `json:"event"`
}

// replay queues liquidation events appended after since. It runs before the
// client is registered so replayed events precede live ones.
func (h *Hub) replay(ctx context.Context, c *client, since string) {
	if h.bus == nil {
		return
	}
	msgs, err := h.bus.StreamRead(ctx, domain.StreamLiquidations, since, replayLimit)
	if err != nil {
		h.logger.WarnContext(ctx, "replay failed", slog.String("since", since), slog.String("error", err.Error()))
		return
	}
	for _, m := range msgs {
		if !json.Valid(m.Payload) {
			continue
		}
		data, err := json.Marshal(replayFrame{Type: "replay", StreamID: m.ID, Event: m.Payload})
		if err == nil {
			c.offer(data)
		}
	}
}

// frame encodes a hub-originated message.
func frame(typ string, data any) []byte {
	out, _ := json.Marshal(map[string]any{
		"type":      typ,
		"timestamp": time.Now().UTC(),
		"data":      data,
	})
	return out
}
