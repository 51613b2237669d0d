// Package notify formats and delivers out-of-band notification events.
package notify

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"studyroom/internal/hub"
	"studyroom/internal/metrics"
	"studyroom/pkg/types"
)

// template is the payload shape for a notification kind.
type template struct {
	title   string
	message string
}

var templates = map[string]template{
	types.NotificationAchievement: {"Achievement Unlocked!", "Congratulations on your progress!"},
	types.NotificationReminder:    {"Study Reminder", "Time to continue your learning journey!"},
	types.NotificationProgress:    {"Progress Update", "You've made great progress today!"},
	types.NotificationSystem:      {"System Message", ""},
}

// Dispatcher maps notification kinds to payload templates and delivers
// them through the hub, inheriting its failure semantics.
type Dispatcher struct {
	hub    *hub.Hub
	logger zerolog.Logger
}

// NewDispatcher creates a dispatcher delivering through h.
func NewDispatcher(h *hub.Hub, logger zerolog.Logger) *Dispatcher {
	return &Dispatcher{
		hub:    h,
		logger: logger.With().Str("component", "notify").Logger(),
	}
}

// build resolves kind to a concrete notification. message overrides the
// template body and is required for the system kind.
func build(kind, message string) (*types.Notification, bool) {
	tmpl, ok := templates[kind]
	if !ok {
		return nil, false
	}
	body := tmpl.message
	if message != "" {
		body = message
	}
	return &types.Notification{
		Kind:      kind,
		Title:     tmpl.title,
		Message:   body,
		Timestamp: time.Now().UTC(),
	}, true
}

// SendToUser delivers a notification of the given kind to one user.
// Unknown kinds are logged and dropped; delivery is at most once.
func (d *Dispatcher) SendToUser(ctx context.Context, userID, kind, message string) {
	notification, ok := build(kind, message)
	if !ok {
		d.logger.Warn().Str("kind", kind).Str("user_id", userID).Msg("unknown notification kind")
		return
	}

	metrics.NotificationsSent.WithLabelValues(kind).Inc()
	d.hub.SendPersonal(ctx, userID, types.NewEvent(types.EventNotification, notification))
}

// BroadcastAll delivers a notification of the given kind to every
// connected user, for platform-wide announcements.
func (d *Dispatcher) BroadcastAll(ctx context.Context, kind, message string) {
	notification, ok := build(kind, message)
	if !ok {
		d.logger.Warn().Str("kind", kind).Msg("unknown notification kind")
		return
	}

	metrics.NotificationsSent.WithLabelValues(kind).Inc()
	d.hub.BroadcastToAll(ctx, types.NewEvent(types.EventNotification, notification))
}
