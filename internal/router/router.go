// Package router classifies inbound envelopes and dispatches them to the
// component that handles each kind. It is the protocol state machine:
// connections themselves carry no state beyond their identity, and every
// handler failure is contained here so malformed input never terminates
// a session.
package router

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"studyroom/internal/hub"
	"studyroom/internal/metrics"
	"studyroom/internal/moderation"
	"studyroom/internal/notify"
	"studyroom/internal/room"
	"studyroom/pkg/types"
)

const moderationWarningText = "Your message was flagged as inappropriate."

// Router dispatches envelopes from connected users.
type Router struct {
	hub        *hub.Hub
	directory  *room.Directory
	gate       *moderation.Gate
	dispatcher *notify.Dispatcher
	limiter    *RateLimiter
	logger     zerolog.Logger
}

// NewRouter creates a router over the given collaborators.
func NewRouter(h *hub.Hub, directory *room.Directory, gate *moderation.Gate, dispatcher *notify.Dispatcher, logger zerolog.Logger) *Router {
	return &Router{
		hub:        h,
		directory:  directory,
		gate:       gate,
		dispatcher: dispatcher,
		limiter:    NewRateLimiter(),
		logger:     logger.With().Str("component", "router").Logger(),
	}
}

// HandleEnvelope parses and dispatches one inbound frame from senderID.
// The returned error is informational: callers log it and keep the
// connection open. Only a transport-level read failure ends a session.
func (r *Router) HandleEnvelope(ctx context.Context, senderID string, data []byte) error {
	var envelope types.Envelope
	if err := json.Unmarshal(data, &envelope); err != nil {
		metrics.EnvelopesDropped.WithLabelValues("malformed").Inc()
		r.logger.Warn().Str("user_id", senderID).Msg("dropping malformed envelope")
		return ErrMalformedEnvelope
	}

	switch envelope.Kind {
	case types.KindChat:
		metrics.EnvelopesRouted.WithLabelValues(types.KindChat).Inc()
		return r.handleChat(ctx, senderID, envelope.Payload)
	case types.KindRoomJoin:
		metrics.EnvelopesRouted.WithLabelValues(types.KindRoomJoin).Inc()
		return r.handleJoin(ctx, senderID, envelope.Payload)
	case types.KindRoomLeave:
		metrics.EnvelopesRouted.WithLabelValues(types.KindRoomLeave).Inc()
		return r.handleLeave(ctx, senderID, envelope.Payload)
	case types.KindNotification:
		metrics.EnvelopesRouted.WithLabelValues(types.KindNotification).Inc()
		return r.handleNotification(ctx, senderID, envelope.Payload)
	default:
		// Unknown kinds are logged and ignored; the session stays open.
		metrics.EnvelopesDropped.WithLabelValues("unknown_kind").Inc()
		r.logger.Warn().Str("user_id", senderID).Str("kind", envelope.Kind).Msg("ignoring unrecognized envelope kind")
		return nil
	}
}

func (r *Router) handleChat(ctx context.Context, senderID string, payload json.RawMessage) error {
	var chat types.ChatPayload
	if err := json.Unmarshal(payload, &chat); err != nil {
		return ErrMalformedEnvelope
	}
	if chat.RoomID == "" {
		return ErrMissingRoomID
	}
	if chat.Content == "" {
		return ErrEmptyContent
	}

	if !r.limiter.Allow(senderID) {
		metrics.EnvelopesDropped.WithLabelValues("rate_limited").Inc()
		r.logger.Warn().Str("user_id", senderID).Msg("chat dropped, rate limit exceeded")
		return ErrRateLimitExceeded
	}

	verdict := r.gate.Check(ctx, chat.Content)
	if !verdict.IsAppropriate {
		warning := types.NewEvent(types.EventModerationWarning, nil)
		warning.Message = moderationWarningText
		r.hub.SendPersonal(ctx, senderID, warning)
		r.logger.Info().Str("user_id", senderID).Str("room_id", chat.RoomID).Strs("flags", verdict.Flags).Msg("chat flagged by moderation")
		return nil
	}

	messageType := chat.MessageType
	if messageType == "" {
		messageType = "text"
	}
	message := &types.ChatMessage{
		ID:          uuid.New().String(),
		SenderID:    senderID,
		Content:     verdict.Content,
		RoomID:      chat.RoomID,
		MessageType: messageType,
		Timestamp:   time.Now().UTC(),
	}

	r.hub.BroadcastToRoom(ctx, chat.RoomID, types.NewEvent(types.EventChatMessage, message), "")
	r.directory.RecordInteraction(senderID, chat.RoomID, "chat_message")
	return nil
}

func (r *Router) handleJoin(ctx context.Context, senderID string, payload json.RawMessage) error {
	var req types.RoomPayload
	if err := json.Unmarshal(payload, &req); err != nil {
		return ErrMalformedEnvelope
	}
	if req.RoomID == "" {
		return ErrMissingRoomID
	}

	info, err := r.directory.Join(senderID, req.RoomID)
	if err != nil {
		r.logger.Warn().Err(err).Str("user_id", senderID).Str("room_id", req.RoomID).Msg("join rejected")
		return err
	}

	// Announce to the room first, then hand the joiner the full snapshot.
	joined := types.NewEvent(types.EventUserJoined, &types.RoomEvent{UserID: senderID, RoomID: req.RoomID})
	r.hub.BroadcastToRoom(ctx, req.RoomID, joined, senderID)
	r.hub.SendPersonal(ctx, senderID, types.NewEvent(types.EventRoomInfo, info))
	return nil
}

func (r *Router) handleLeave(ctx context.Context, senderID string, payload json.RawMessage) error {
	var req types.RoomPayload
	if err := json.Unmarshal(payload, &req); err != nil {
		return ErrMalformedEnvelope
	}
	if req.RoomID == "" {
		return ErrMissingRoomID
	}

	if err := r.directory.Leave(senderID, req.RoomID); err != nil {
		r.logger.Warn().Err(err).Str("user_id", senderID).Str("room_id", req.RoomID).Msg("leave rejected")
		return err
	}

	left := types.NewEvent(types.EventUserLeft, &types.RoomEvent{UserID: senderID, RoomID: req.RoomID})
	r.hub.BroadcastToRoom(ctx, req.RoomID, left, senderID)
	return nil
}

func (r *Router) handleNotification(ctx context.Context, senderID string, payload json.RawMessage) error {
	var req types.NotificationPayload
	if err := json.Unmarshal(payload, &req); err != nil {
		return ErrMalformedEnvelope
	}

	target := req.TargetUser
	if target == "" {
		target = senderID
	}

	if req.Broadcast {
		r.dispatcher.BroadcastAll(ctx, req.NotificationKind, req.Message)
		return nil
	}
	r.dispatcher.SendToUser(ctx, target, req.NotificationKind, req.Message)
	return nil
}

// UserDisconnected releases per-user router state.
func (r *Router) UserDisconnected(userID string) {
	r.limiter.Forget(userID)
}
