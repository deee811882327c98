package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() {
	register(cacheRequestsTotal)
}

var cacheRequestsTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "billing_cache_requests_total",
		Help: "Repository cache lookups, by entity and outcome (hit/miss).",
	},
	[]string{"entity", "outcome"},
)

func IncCacheRequest(entity, outcome string) {
	cacheRequestsTotal.WithLabelValues(norm(entity), norm(outcome)).Inc()
}
