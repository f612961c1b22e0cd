package websocket

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"classlock/internal/config"
	"classlock/pkg/types"
)

// Dispatcher receives inbound frames and disconnects in per-connection order
type Dispatcher interface {
	Submit(ctx context.Context, connectionID string, env types.Envelope) error
	Disconnect(ctx context.Context, connectionID string) error
}

// Handler upgrades relay clients and pumps their frames into the dispatcher
// ARCHITECTURAL DISCOVERY: Clean separation of WebSocket handling from relay logic;
// the handler never inspects event payloads
type Handler struct {
	registry   *Registry
	dispatcher Dispatcher
	config     *config.WebSocketConfig
	upgrader   websocket.Upgrader
	logger     *slog.Logger
}

// NewHandler creates a new WebSocket handler with dependency injection
func NewHandler(registry *Registry, dispatcher Dispatcher, cfg *config.WebSocketConfig, logger *slog.Logger) *Handler {
	return &Handler{
		registry:   registry,
		dispatcher: dispatcher,
		config:     cfg,
		upgrader: websocket.Upgrader{
			// FUNCTIONAL DISCOVERY: Classroom clients connect from arbitrary origins (desktop shells)
			CheckOrigin:      func(r *http.Request) bool { return true },
			HandshakeTimeout: 10 * time.Second,
		},
		logger: logger.With("component", "websocket"),
	}
}

// HandleWebSocket upgrades the request and starts the connection's read pump.
// Any client may connect; roles are established by create-class or join-class.
func (h *Handler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", "remote", r.RemoteAddr, "error", err)
		return
	}

	wsConn := NewConnection(conn, ConnectionOptions{
		BufferSize:   h.config.BufferSize,
		WriteTimeout: h.config.WriteTimeout,
	})

	if err := h.registry.Register(wsConn); err != nil {
		h.logger.Error("failed to register connection", "error", err)
		_ = wsConn.Close()
		return
	}

	h.logger.Info("client connected", "connection_id", wsConn.ID(), "remote", r.RemoteAddr)

	// TECHNICAL DISCOVERY: Separate goroutine for connection lifecycle management
	// lets the HTTP handler return once the socket is hijacked
	go h.handleConnection(wsConn)
}

// handleConnection manages the connection lifecycle with heartbeat monitoring
func (h *Handler) handleConnection(conn *Connection) {
	defer func() {
		// FUNCTIONAL DISCOVERY: Unregister before the disconnect is queued so liveness checks
		// inside the relay already see this connection as gone
		h.registry.Unregister(conn)
		_ = conn.Close()
		if err := h.dispatcher.Disconnect(context.Background(), conn.ID()); err != nil {
			h.logger.Warn("disconnect not delivered to relay", "connection_id", conn.ID(), "error", err)
		}
		h.logger.Info("client disconnected", "connection_id", conn.ID())
	}()

	if h.config.MaxMessageBytes > 0 {
		conn.conn.SetReadLimit(h.config.MaxMessageBytes)
	}

	// TECHNICAL DISCOVERY: Read deadline is refreshed by every pong; a silent peer
	// is dropped after ReadTimeout
	if err := conn.conn.SetReadDeadline(time.Now().Add(h.config.ReadTimeout)); err != nil {
		h.logger.Warn("failed to set read deadline", "connection_id", conn.ID(), "error", err)
		return
	}
	conn.conn.SetPongHandler(func(string) error {
		return conn.conn.SetReadDeadline(time.Now().Add(h.config.ReadTimeout))
	})

	go h.pingLoop(conn)

	for {
		env, err := conn.ReadEnvelope()
		if err != nil {
			if errors.Is(err, ErrInvalidJSON) {
				h.logger.Debug("ignoring malformed frame", "connection_id", conn.ID())
				continue
			}
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.logger.Info("websocket closed unexpectedly", "connection_id", conn.ID(), "error", err)
			}
			return
		}

		if err := h.dispatcher.Submit(context.Background(), conn.ID(), env); err != nil {
			h.logger.Error("relay rejected frame", "connection_id", conn.ID(), "event", env.Event, "error", err)
			return
		}
	}
}

// pingLoop keeps idle classroom connections alive through proxies
func (h *Handler) pingLoop(conn *Connection) {
	ticker := time.NewTicker(h.config.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := conn.conn.WriteControl(websocket.PingMessage, []byte{}, time.Now().Add(h.config.WriteTimeout)); err != nil {
				return
			}
		case <-conn.Done():
			return
		}
	}
}
