package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() {
	register(
		subscriptionsExpiredTotal,
		remindersDispatchedTotal,
	)
}

var (
	subscriptionsExpiredTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "billing_subscriptions_expired_total",
			Help: "Subscriptions demoted by the expiry pass, by origin.",
		},
		[]string{"origin"},
	)

	remindersDispatchedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "billing_reminders_dispatched_total",
			Help: "Renewal reminders promoted to sent by the dispatch pass.",
		},
	)
)

func IncSubscriptionExpired(origin string) {
	subscriptionsExpiredTotal.WithLabelValues(norm(origin)).Inc()
}

func AddRemindersDispatched(n int) {
	remindersDispatchedTotal.Add(float64(n))
}
