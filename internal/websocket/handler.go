package websocket

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"studyroom/internal/config"
	"studyroom/pkg/interfaces"
	"studyroom/pkg/types"
)

// connectionHub is the subset of the hub the handler needs. It is
// declared locally so that package websocket does not import package
// hub, which imports this package for the Registry.
type connectionHub interface {
	Connect(ctx context.Context, conn interfaces.Connection) error
	ConnectionClosed(ctx context.Context, conn interfaces.Connection)
	Heartbeat(ctx context.Context, userID string)
}

// envelopeRouter is the subset of the message router the handler needs,
// declared locally for the same reason as connectionHub: package router
// imports package hub, which imports this package.
type envelopeRouter interface {
	HandleEnvelope(ctx context.Context, senderID string, data []byte) error
	UserDisconnected(userID string)
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		// Origin checking belongs to the excluded auth layer; the core
		// accepts any origin and trusts the identity in the path.
		return true
	},
	HandshakeTimeout: 10 * time.Second,
}

// Handler upgrades HTTP requests to WebSocket connections and drives the
// per-connection inbound loop.
type Handler struct {
	hub    connectionHub
	router envelopeRouter
	cfg    *config.WebSocketConfig
	logger zerolog.Logger
}

// NewHandler creates the WebSocket endpoint handler.
func NewHandler(h connectionHub, r envelopeRouter, cfg *config.WebSocketConfig, logger zerolog.Logger) *Handler {
	return &Handler{
		hub:    h,
		router: r,
		cfg:    cfg,
		logger: logger.With().Str("component", "websocket").Logger(),
	}
}

// ServeWS handles GET /ws/{user_id}: validate, upgrade, register, then
// run the inbound loop until the transport dies.
func (h *Handler) ServeWS(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "user_id")
	if !types.IsValidUserID(userID) {
		http.Error(w, "invalid user_id", http.StatusBadRequest)
		return
	}

	wsConn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn().Err(err).Str("user_id", userID).Msg("websocket upgrade failed")
		return
	}

	conn := NewConnection(wsConn, userID, h.cfg.BufferSize, h.cfg.WriteTimeout)

	if err := h.hub.Connect(r.Context(), conn); err != nil {
		h.logger.Warn().Err(err).Str("user_id", userID).Msg("connection rejected")
		_ = conn.Close()
		return
	}

	go h.readLoop(conn)
}

// readLoop is the inbound loop for one connection: one goroutine awaiting
// the next frame, routing each envelope, until a transport-level failure.
func (h *Handler) readLoop(conn *Connection) {
	ctx := context.Background()
	defer func() {
		h.hub.ConnectionClosed(ctx, conn)
		h.router.UserDisconnected(conn.UserID())
	}()

	if err := conn.conn.SetReadDeadline(time.Now().Add(h.cfg.ReadTimeout)); err != nil {
		return
	}
	conn.conn.SetPongHandler(func(string) error {
		h.hub.Heartbeat(ctx, conn.UserID())
		return conn.conn.SetReadDeadline(time.Now().Add(h.cfg.ReadTimeout))
	})

	ticker := time.NewTicker(h.cfg.PingInterval)
	defer ticker.Stop()

	go func() {
		for {
			select {
			case <-ticker.C:
				deadline := time.Now().Add(h.cfg.WriteTimeout)
				if err := conn.conn.WriteControl(websocket.PingMessage, nil, deadline); err != nil {
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
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				h.logger.Warn().Err(err).Str("user_id", conn.UserID()).Msg("websocket read error")
			}
			return
		}

		if messageType != websocket.TextMessage {
			continue
		}

		// Router errors are protocol-level: log and keep reading.
		if err := h.router.HandleEnvelope(ctx, conn.UserID(), data); err != nil {
			h.logger.Debug().Err(err).Str("user_id", conn.UserID()).Msg("envelope rejected")
		}
	}
}
