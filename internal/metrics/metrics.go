package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	ConnectedDisplays = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "tourneycast_connected_displays",
		Help: "Current number of connected display clients.",
	})
	PendingInFlight = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "tourneycast_pending_messages",
		Help: "Broadcast messages awaiting full acknowledgement.",
	})

	MessagesSent = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "tourneycast_messages_sent_total",
		Help: "Total broadcast messages issued.",
	})
	MessagesDelivered = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "tourneycast_messages_delivered_total",
		Help: "Total messages acknowledged by every connected display.",
	})
	RetriesIssued = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "tourneycast_retries_total",
		Help: "Total retransmissions to displays that had not acknowledged.",
	})
	TerminalFailures = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "tourneycast_delivery_failures_total",
		Help: "Total messages that exhausted the retry bound.",
	})
	FallbacksInvoked = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "tourneycast_fallbacks_total",
		Help: "Total invocations of the HTTP fallback path.",
	})
	StaleReaped = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "tourneycast_stale_reaped_total",
		Help: "Total pending entries evicted by the stale-entry reaper.",
	})
)

func Register() {
	prometheus.MustRegister(
		ConnectedDisplays, PendingInFlight,
		MessagesSent, MessagesDelivered,
		RetriesIssued, TerminalFailures, FallbacksInvoked, StaleReaped,
	)
}
