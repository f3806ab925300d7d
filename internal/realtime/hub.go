// Package realtime pushes storefront events to WebSocket observers and relays them to the broker.
package realtime

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/abgdnv/storefront/internal/service"
)

const EventError = "error"

// Config tunes per-connection buffering and keep-alive.
type Config struct {
	SendBuffer   int
	WriteTimeout time.Duration
	PingInterval time.Duration
	ReadLimit    int64
}

// pongWait is how long a connection may stay silent before it is considered dead.
func (c Config) pongWait() time.Duration {
	return c.PingInterval * 10 / 9
}

type frame struct {
	Event string `json:"event"`
	Data  any    `json:"data"`
}

// Hub tracks connected clients and fans broadcasts out to them.
// A client whose send buffer is full is dropped rather than waited on.
type Hub struct {
	mu      sync.Mutex
	clients map[*client]struct{}
	cfg     Config
	logger  *slog.Logger
}

var _ service.Broadcaster = (*Hub)(nil)

func NewHub(cfg Config, logger *slog.Logger) *Hub {
	return &Hub{
		clients: make(map[*client]struct{}),
		cfg:     cfg,
		logger:  logger.With("component", "realtime-hub"),
	}
}

// Broadcast sends event to every connected client.
func (h *Hub) Broadcast(ctx context.Context, event string, payload any) {
	msg, err := json.Marshal(frame{Event: event, Data: payload})
	if err != nil {
		h.logger.ErrorContext(ctx, "Failed to encode broadcast", "event", event, "error", err)
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		h.enqueueLocked(ctx, c, msg)
	}
	h.logger.DebugContext(ctx, "Broadcast sent", "event", event, "clients", len(h.clients))
}

// sendTo delivers event to a single client.
func (h *Hub) sendTo(ctx context.Context, c *client, event string, payload any) {
	msg, err := json.Marshal(frame{Event: event, Data: payload})
	if err != nil {
		h.logger.ErrorContext(ctx, "Failed to encode message", "event", event, "error", err)
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[c]; ok {
		h.enqueueLocked(ctx, c, msg)
	}
}

func (h *Hub) enqueueLocked(ctx context.Context, c *client, msg []byte) {
	select {
	case c.send <- msg:
	default:
		h.logger.WarnContext(ctx, "Dropping slow client", "remote", c.remote)
		h.removeLocked(c)
	}
}

func (h *Hub) register(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.clients[c] = struct{}{}
}

func (h *Hub) unregister(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.removeLocked(c)
}

// removeLocked closes the client's send channel exactly once; its writer then closes the connection.
func (h *Hub) removeLocked(c *client) {
	if _, ok := h.clients[c]; !ok {
		return
	}
	delete(h.clients, c)
	close(c.send)
}

// Count returns the number of connected clients.
func (h *Hub) Count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// Close disconnects every client.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		h.removeLocked(c)
	}
}
