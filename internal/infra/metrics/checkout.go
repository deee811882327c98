package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() {
	register(
		checkoutsTotal,
		couponRedemptionsTotal,
	)
}

var (
	checkoutsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "billing_checkouts_total",
			Help: "Checkout sessions created, by rail and outcome.",
		},
		[]string{"rail", "outcome"},
	)

	couponRedemptionsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "billing_coupon_redemptions_total",
			Help: "Coupon usage increments applied to the ledger.",
		},
	)
)

func IncCheckout(rail, outcome string) {
	checkoutsTotal.WithLabelValues(norm(rail), norm(outcome)).Inc()
}

func IncCouponRedemption() {
	couponRedemptionsTotal.Inc()
}
