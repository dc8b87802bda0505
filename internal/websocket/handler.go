package websocket

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"medroom/pkg/interfaces"
	"medroom/pkg/types"
)

// maxFrameBytes bounds one inbound frame; chat text is capped far below this
const maxFrameBytes = 64 * 1024

// WebSocket upgrader with production-ready settings
var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		// FUNCTIONAL DISCOVERY: Allow all origins; the invitation check happens on join
		return true
	},
	HandshakeTimeout: 10 * time.Second,
}

// Dispatcher receives decoded client events.
// ARCHITECTURAL DISCOVERY: The handler only does transport; every event and the
// disconnect notification are handed to the hub, which owns all room state
type Dispatcher interface {
	Dispatch(conn interfaces.Connection, envelope types.Envelope)
	Disconnect(conn interfaces.Connection)
}

// HandlerConfig carries the keepalive timings
type HandlerConfig struct {
	PingInterval time.Duration
	ReadTimeout  time.Duration
	Connection   Options
}

// DefaultHandlerConfig uses a 30s ping and 60s read deadline
func DefaultHandlerConfig() HandlerConfig {
	return HandlerConfig{
		PingInterval: 30 * time.Second,
		ReadTimeout:  60 * time.Second,
		Connection:   DefaultOptions(),
	}
}

// Handler upgrades HTTP requests and pumps frames into the dispatcher
type Handler struct {
	registry   *Registry
	dispatcher Dispatcher
	config     HandlerConfig
	logger     zerolog.Logger
}

// NewHandler creates a new WebSocket handler with dependency injection
func NewHandler(registry *Registry, dispatcher Dispatcher, config HandlerConfig, logger zerolog.Logger) *Handler {
	return &Handler{
		registry:   registry,
		dispatcher: dispatcher,
		config:     config,
		logger:     logger.With().Str("component", "websocket").Logger(),
	}
}

// HandleWebSocket upgrades the request; the client joins a room with join-room
func (h *Handler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}

	wsConn := NewConnection(conn, h.config.Connection)
	if err := h.registry.Register(wsConn); err != nil {
		h.logger.Error().Err(err).Msg("failed to register connection")
		_ = wsConn.Close()
		return
	}
	h.logger.Debug().Str("conn_id", wsConn.ID()).Str("remote", r.RemoteAddr).Msg("connection opened")

	go h.handleConnection(wsConn)
}

// handleConnection manages the connection lifecycle with heartbeat monitoring
func (h *Handler) handleConnection(conn *Connection) {
	defer func() {
		// FUNCTIONAL DISCOVERY: Deferred cleanup ensures the hub sees every
		// disconnect even when the read loop exits on an error
		h.dispatcher.Disconnect(conn)
		_ = conn.Close()
		h.logger.Debug().Str("conn_id", conn.ID()).Msg("connection closed")
	}()

	conn.conn.SetReadLimit(maxFrameBytes)
	if err := conn.conn.SetReadDeadline(time.Now().Add(h.config.ReadTimeout)); err != nil {
		return
	}
	conn.conn.SetPongHandler(func(string) error {
		return conn.conn.SetReadDeadline(time.Now().Add(h.config.ReadTimeout))
	})

	// TECHNICAL DISCOVERY: WriteControl is safe alongside the writer goroutine
	ticker := time.NewTicker(h.config.PingInterval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if err := conn.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(10*time.Second)); err != nil {
					return
				}
			case <-conn.Done():
				return
			}
		}
	}()

	for {
		messageType, data, err := conn.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.logger.Debug().Err(err).Str("conn_id", conn.ID()).Msg("websocket read error")
			}
			return
		}
		if messageType != websocket.TextMessage {
			continue
		}

		var envelope types.Envelope
		if err := json.Unmarshal(data, &envelope); err != nil || envelope.Type == "" {
			_ = conn.WriteJSON(types.Event{
				Type: types.EventError,
				Data: map[string]string{"message": "Malformed event"},
			})
			continue
		}
		h.dispatcher.Dispatch(conn, envelope)
	}
}
