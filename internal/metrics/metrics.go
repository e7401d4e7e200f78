package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	OnlineSessions = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "marketchat_online_sessions",
		Help: "Open realtime sessions.",
	})
	OnlineUsers = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "marketchat_online_users",
		Help: "Users with at least one open session.",
	})
	EventsPushed = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "marketchat_events_pushed_total",
		Help: "Realtime events delivered, by kind.",
	}, []string{"kind"})
	PushBackpressure = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "marketchat_push_backpressure_total",
		Help: "Events dropped because a session queue was full.",
	})
	MessagesStored = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "marketchat_messages_stored_total",
		Help: "Messages committed to the canonical store.",
	})
	RateLimited = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "marketchat_rate_limited_total",
		Help: "Sends refused by the token bucket.",
	})
	SpamBlocked = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "marketchat_spam_blocked_total",
		Help: "Sends refused by the spam filter.",
	})
	SpamFlagged = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "marketchat_spam_flagged_total",
		Help: "Sends allowed but queued for moderation review.",
	})
	LegacyRequests = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "marketchat_legacy_requests_total",
		Help: "Requests served through legacy generations, by generation and outcome.",
	}, []string{"generation", "outcome"})
	MigratedRecords = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "marketchat_migrated_records_total",
		Help: "Legacy records handled by the migration engine, by result.",
	}, []string{"result"})
)

// Register installs all collectors on the default registry. Call once from
// main; tests use the package values directly without registering.
func Register() {
	prometheus.MustRegister(
		OnlineSessions,
		OnlineUsers,
		EventsPushed,
		PushBackpressure,
		MessagesStored,
		RateLimited,
		SpamBlocked,
		SpamFlagged,
		LegacyRequests,
		MigratedRecords,
	)
}
