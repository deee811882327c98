package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() {
	register(
		webhookEventsTotal,
		webhookRevenueTotal,
	)
}

var (
	webhookEventsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "billing_webhook_events_total",
			Help: "Inbound provider webhook events, by rail and outcome (applied/dropped/rejected).",
		},
		[]string{"rail", "outcome"},
	)

	webhookRevenueTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "billing_revenue_total",
			Help: "Monetary value of confirmed payments in minor units, by currency.",
		},
		[]string{"currency"},
	)
)

func IncWebhookEvent(rail, outcome string) {
	webhookEventsTotal.WithLabelValues(norm(rail), norm(outcome)).Inc()
}

func AddRevenue(currency string, amount int64) {
	webhookRevenueTotal.WithLabelValues(norm(currency)).Add(float64(amount))
}
