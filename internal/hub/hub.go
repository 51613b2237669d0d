// Package hub owns the connection lifecycle: it ties the registry and
// the room directory together so that a connect, a disconnect, or a
// failed send always leaves both structures consistent.
package hub

import (
	"context"

	"github.com/rs/zerolog"

	"studyroom/internal/metrics"
	"studyroom/internal/presence"
	"studyroom/internal/room"
	"studyroom/internal/websocket"
	"studyroom/pkg/interfaces"
)

// Hub is the server context object shared by every connection handler.
// It is constructed once at startup and torn down at shutdown; nothing
// here lives in package-level state.
type Hub struct {
	registry  *websocket.Registry
	directory *room.Directory
	presence  *presence.Store
	logger    zerolog.Logger
}

// NewHub wires the registry and directory together. presence may be nil.
func NewHub(registry *websocket.Registry, directory *room.Directory, pres *presence.Store, logger zerolog.Logger) *Hub {
	return &Hub{
		registry:  registry,
		directory: directory,
		presence:  pres,
		logger:    logger.With().Str("component", "hub").Logger(),
	}
}

// Connect registers a live transport under its user identity. The
// duplicate-connect outcome follows the registry's configured policy.
func (h *Hub) Connect(ctx context.Context, conn interfaces.Connection) error {
	if err := h.registry.Register(conn); err != nil {
		return err
	}

	metrics.ConnectionsActive.Set(float64(h.registry.Count()))
	h.presence.SetOnline(ctx, conn.UserID())
	h.logger.Info().Str("user_id", conn.UserID()).Msg("user connected")
	return nil
}

// Disconnect removes userID's registry entry, closes its transport, and
// removes the user from every room. Idempotent: disconnecting an unknown
// user is a no-op.
func (h *Hub) Disconnect(ctx context.Context, userID string) {
	conn, existed := h.registry.Remove(userID)
	if existed {
		_ = conn.Close()
	}

	left := h.directory.RemoveFromAll(userID)

	if !existed && len(left) == 0 {
		return
	}

	metrics.ConnectionsActive.Set(float64(h.registry.Count()))
	h.presence.SetOffline(ctx, userID)
	h.logger.Info().Str("user_id", userID).Int("rooms_left", len(left)).Msg("user disconnected")
}

// ConnectionClosed handles a read-loop exit for conn. When conn was
// replaced by a newer transport for the same user, only conn itself is
// closed; the user's registration and memberships belong to the
// replacement and stay intact.
func (h *Hub) ConnectionClosed(ctx context.Context, conn interfaces.Connection) {
	current, registered := h.registry.Get(conn.UserID())
	if registered && current != conn {
		_ = conn.Close()
		return
	}
	h.registry.Unregister(conn)
	_ = conn.Close()

	h.directory.RemoveFromAll(conn.UserID())
	metrics.ConnectionsActive.Set(float64(h.registry.Count()))
	h.presence.SetOffline(ctx, conn.UserID())
	h.logger.Info().Str("user_id", conn.UserID()).Msg("connection closed")
}

// SendPersonal delivers a message to one user. An unconnected user is a
// no-op, not an error. A write failure is a detected disconnect: the full
// cleanup path runs before returning, scoped to the failed transport so a
// replacement registered in the meantime is left alone.
func (h *Hub) SendPersonal(ctx context.Context, userID string, message interface{}) {
	conn, exists := h.registry.Get(userID)
	if !exists {
		return
	}
	if err := conn.WriteJSON(message); err != nil {
		metrics.DeliveryFailures.Inc()
		h.logger.Warn().Err(err).Str("user_id", userID).Msg("send failed, disconnecting user")
		h.ConnectionClosed(ctx, conn)
	}
}

// BroadcastToRoom delivers a message to a snapshot of the room's members,
// skipping excludeUserID. Delivery runs over the snapshot so one broken
// recipient cannot corrupt the iteration or block the others; failed
// recipients are disconnected only after the pass completes.
func (h *Hub) BroadcastToRoom(ctx context.Context, roomID string, message interface{}, excludeUserID string) {
	members := h.directory.Members(roomID)

	var failed []interfaces.Connection
	for _, userID := range members {
		if userID == excludeUserID {
			continue
		}
		conn, exists := h.registry.Get(userID)
		if !exists {
			continue
		}
		metrics.BroadcastDeliveries.Inc()
		if err := conn.WriteJSON(message); err != nil {
			metrics.DeliveryFailures.Inc()
			h.logger.Warn().Err(err).Str("user_id", userID).Str("room_id", roomID).Msg("broadcast delivery failed")
			failed = append(failed, conn)
		}
	}

	// Cleanup is instance scoped: a user who reconnected during the pass
	// keeps the replacement transport and its memberships.
	for _, conn := range failed {
		h.ConnectionClosed(ctx, conn)
	}
}

// BroadcastToAll delivers a message to every registered connection with
// the same snapshot-then-cleanup contract as BroadcastToRoom.
func (h *Hub) BroadcastToAll(ctx context.Context, message interface{}) {
	conns := h.registry.Snapshot()

	var failed []interfaces.Connection
	for _, conn := range conns {
		metrics.BroadcastDeliveries.Inc()
		if err := conn.WriteJSON(message); err != nil {
			metrics.DeliveryFailures.Inc()
			h.logger.Warn().Err(err).Str("user_id", conn.UserID()).Msg("broadcast delivery failed")
			failed = append(failed, conn)
		}
	}

	for _, conn := range failed {
		h.ConnectionClosed(ctx, conn)
	}
}

// Heartbeat refreshes the presence mirror for a live connection.
func (h *Hub) Heartbeat(ctx context.Context, userID string) {
	h.presence.Heartbeat(ctx, userID)
}

// Shutdown closes every registered transport. Used only on explicit
// process shutdown.
func (h *Hub) Shutdown(ctx context.Context) {
	for _, conn := range h.registry.Snapshot() {
		h.Disconnect(ctx, conn.UserID())
	}
}

// ConnectionCount reports the number of live connections.
func (h *Hub) ConnectionCount() int {
	return h.registry.Count()
}
