package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Connection metrics
	ConnectionsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "studyroom_connections_active",
			Help: "Currently registered WebSocket connections",
		},
	)

	RoomsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "studyroom_rooms_active",
			Help: "Rooms currently present in the directory",
		},
	)

	// Routing metrics
	EnvelopesRouted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "studyroom_envelopes_routed_total",
			Help: "Inbound envelopes routed, by kind",
		},
		[]string{"kind"},
	)

	EnvelopesDropped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "studyroom_envelopes_dropped_total",
			Help: "Inbound envelopes dropped, by reason",
		},
		[]string{"reason"},
	)

	// Delivery metrics
	BroadcastDeliveries = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "studyroom_broadcast_deliveries_total",
			Help: "Per-recipient broadcast deliveries attempted",
		},
	)

	DeliveryFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "studyroom_delivery_failures_total",
			Help: "Sends that failed and triggered an implicit disconnect",
		},
	)

	// Moderation metrics
	ModerationChecks = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "studyroom_moderation_checks_total",
			Help: "Moderation verdicts, by outcome",
		},
		[]string{"outcome"},
	)

	ModerationFallbacks = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "studyroom_moderation_fallbacks_total",
			Help: "Checks answered by the local fallback policy",
		},
	)

	// Notification metrics
	NotificationsSent = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "studyroom_notifications_sent_total",
			Help: "Notifications dispatched, by kind",
		},
		[]string{"kind"},
	)

	// Graph mirror metrics
	GraphEventsQueued = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "studyroom_graph_events_queued_total",
			Help: "Events accepted by the graph recorder queue",
		},
	)

	GraphEventsDropped = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "studyroom_graph_events_dropped_total",
			Help: "Events dropped because the recorder queue was full",
		},
	)

	GraphWriteFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "studyroom_graph_write_failures_total",
			Help: "Graph sink writes that failed after retry",
		},
	)
)
