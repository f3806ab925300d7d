package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	serrors "github.com/abgdnv/storefront/internal/errors"
	"github.com/abgdnv/storefront/internal/service"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"
)

// Inbound events accepted from clients.
const (
	EventAddProduct  = "add_product"
	EventSendMessage = "send_message"
)

type inboundFrame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

type errorPayload struct {
	Name    string `json:"name"`
	Message string `json:"message"`
}

type client struct {
	conn   *websocket.Conn
	send   chan []byte
	remote string
}

// Handler upgrades requests to WebSocket connections served by the hub.
type Handler struct {
	hub      *Hub
	products service.ProductService
	messages service.MessageService
	upgrader websocket.Upgrader
	logger   *slog.Logger
}

func NewHandler(hub *Hub, products service.ProductService, messages service.MessageService, logger *slog.Logger) *Handler {
	return &Handler{
		hub:      hub,
		products: products,
		messages: messages,
		upgrader: websocket.Upgrader{ReadBufferSize: 1024, WriteBufferSize: 1024},
		logger:   logger.With("component", "realtime"),
	}
}

// ServeHTTP handles GET /ws. It returns when the client disconnects.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	mLogger := h.logger.With("request_id", middleware.GetReqID(r.Context()))
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already wrote the HTTP error
		mLogger.WarnContext(r.Context(), "WebSocket upgrade failed", "error", err)
		return
	}

	c := &client{
		conn:   conn,
		send:   make(chan []byte, h.hub.cfg.SendBuffer),
		remote: r.RemoteAddr,
	}
	h.hub.register(c)
	mLogger.InfoContext(r.Context(), "WebSocket client connected", "remote", c.remote)

	go h.writePump(c)
	h.readPump(r.Context(), c, mLogger)

	h.hub.unregister(c)
	mLogger.InfoContext(r.Context(), "WebSocket client disconnected", "remote", c.remote)
}

func (h *Handler) readPump(ctx context.Context, c *client, logger *slog.Logger) {
	cfg := h.hub.cfg
	defer func() { _ = c.conn.Close() }()

	c.conn.SetReadLimit(cfg.ReadLimit)
	_ = c.conn.SetReadDeadline(time.Now().Add(cfg.pongWait()))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(cfg.pongWait()))
	})

	for {
		var in inboundFrame
		if err := c.conn.ReadJSON(&in); err != nil {
			var syntaxErr *json.SyntaxError
			var typeErr *json.UnmarshalTypeError
			if errors.As(err, &syntaxErr) || errors.As(err, &typeErr) {
				h.hub.sendTo(ctx, c, EventError, errorPayload{Name: serrors.ErrValidation.Error(), Message: "malformed frame"})
				continue
			}
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				logger.WarnContext(ctx, "WebSocket read failed", "error", err)
			}
			return
		}
		h.dispatch(ctx, c, in, logger)
	}
}

func (h *Handler) dispatch(ctx context.Context, c *client, in inboundFrame, logger *slog.Logger) {
	var err error
	switch in.Event {
	case EventAddProduct:
		var dto service.ProductCreateDto
		if err = json.Unmarshal(in.Data, &dto); err != nil {
			err = serrors.Validation("invalid product: %v", err)
			break
		}
		// Create broadcasts new_item itself
		_, err = h.products.Create(ctx, dto)
	case EventSendMessage:
		var dto service.MessageCreateDto
		if err = json.Unmarshal(in.Data, &dto); err != nil {
			err = serrors.Validation("invalid message: %v", err)
			break
		}
		_, err = h.messages.Add(ctx, dto)
	default:
		err = serrors.Validation("unknown event %s", in.Event)
	}

	if err != nil {
		logger.WarnContext(ctx, "Realtime event failed", "event", in.Event, "error", err)
		h.hub.sendTo(ctx, c, EventError, errorPayload{Name: serrors.Name(err), Message: serrors.Message(err)})
	}
}

func (h *Handler) writePump(c *client) {
	cfg := h.hub.cfg
	ticker := time.NewTicker(cfg.PingInterval)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(cfg.WriteTimeout))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(cfg.WriteTimeout))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
