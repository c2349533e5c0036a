package metrics

import "github.com/prometheus/client_golang/prometheus"

// Notification channels.
const (
	ChannelStore = "store"
	ChannelLive  = "live"
	ChannelPush  = "push"
)

// Notification outcomes.
const (
	OutcomeOK      = "ok"
	OutcomeFailed  = "failed"
	OutcomeGone    = "gone"
	OutcomeSkipped = "skipped"
)

// Metrics holds the realtime engine collectors.
type Metrics struct {
	Connections       prometheus.Gauge
	Rooms             prometheus.Gauge
	EventsBroadcast   *prometheus.CounterVec
	DroppedDeliveries prometheus.Counter
	Notifications     *prometheus.CounterVec
	PushPruned        prometheus.Counter
	RetentionPurged   prometheus.Counter
}

// New creates the collectors and registers them with reg. A nil reg leaves
// them unregistered.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Connections: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "realtime_connections",
			Help: "Live socket connections.",
		}),
		Rooms: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "realtime_rooms",
			Help: "Chat contexts with at least one subscribed connection.",
		}),
		EventsBroadcast: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "realtime_events_broadcast_total",
			Help: "Outbound socket events by name.",
		}, []string{"event"}),
		DroppedDeliveries: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "realtime_dropped_deliveries_total",
			Help: "Socket deliveries dropped because the connection was closed or its queue full.",
		}),
		Notifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "realtime_notifications_total",
			Help: "Notification fan-out attempts by channel and outcome.",
		}, []string{"channel", "outcome"}),
		PushPruned: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "realtime_push_subscriptions_pruned_total",
			Help: "Push subscriptions removed after the endpoint reported gone.",
		}),
		RetentionPurged: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "realtime_retention_purged_total",
			Help: "Read notifications removed by the retention job.",
		}),
	}
	if reg != nil {
		reg.MustRegister(
			m.Connections,
			m.Rooms,
			m.EventsBroadcast,
			m.DroppedDeliveries,
			m.Notifications,
			m.PushPruned,
			m.RetentionPurged,
		)
	}
	return m
}

// Notification counts one fan-out attempt.
func (m *Metrics) Notification(channel, outcome string) {
	m.Notifications.WithLabelValues(channel, outcome).Inc()
}
