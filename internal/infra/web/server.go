package web

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"cms-billing/internal/config"
	"cms-billing/internal/infra/payment"
	"cms-billing/internal/usecase"
)

type Server struct {
	checkoutUC usecase.CheckoutUseCase
	couponUC   usecase.CouponUseCase
	billingUC  usecase.BillingUseCase
	subUC      usecase.SubscriptionUseCase
	renewalUC  usecase.RenewalUseCase
	reconcile  usecase.ReconcileUseCase
	stripeWH   *payment.StripeWebhookDecoder

	sessionSecret  string
	sessionCookie  string
	requestTimeout time.Duration
	publicDomain   string
	log            *zerolog.Logger
}

func NewServer(
	checkoutUC usecase.CheckoutUseCase,
	couponUC usecase.CouponUseCase,
	billingUC usecase.BillingUseCase,
	subUC usecase.SubscriptionUseCase,
	renewalUC usecase.RenewalUseCase,
	reconcile usecase.ReconcileUseCase,
	stripeWH *payment.StripeWebhookDecoder,
	cfg *config.Config,
	logger *zerolog.Logger,
) *Server {
	srvLog := logger.With().Str("component", "WebServer").Logger()
	return &Server{
		checkoutUC:     checkoutUC,
		couponUC:       couponUC,
		billingUC:      billingUC,
		subUC:          subUC,
		renewalUC:      renewalUC,
		reconcile:      reconcile,
		stripeWH:       stripeWH,
		sessionSecret:  cfg.HTTP.SessionSecret,
		sessionCookie:  cfg.HTTP.SessionCookie,
		requestTimeout: cfg.HTTP.RequestTimeout,
		publicDomain:   cfg.Billing.PublicDomain,
		log:            &srvLog,
	}
}

// Router builds the full route tree. Webhooks are unauthenticated but
// signature-verified; everything else user-facing sits behind the session.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(s.requestTimeout))
	r.Use(s.requestLogger)

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Post("/stripe/webhook", s.handleStripeWebhook)
		r.Post("/cryptomus/webhook", s.handleCryptomusWebhook)
		r.Post("/coupons/validate", s.handleValidateCoupon)
		r.Get("/products", s.handleListProducts)

		r.Group(func(r chi.Router) {
			r.Use(s.sessionAuth)

			r.Post("/checkout/{rail}", s.handleCheckout)
			r.Get("/billing", s.handleBilling)
			r.Post("/cryptomus/renew", s.handleRenew)
			r.Get("/subscriptions/expiring", s.handleExpiring)
			r.Post("/stripe/portal", s.handlePortal)
			r.Post("/stripe/cancel-subscription", s.handleCancelSubscription)
			r.Post("/stripe/reactivate-subscription", s.handleReactivateSubscription)
			r.Post("/stripe/upgrade-subscription", s.handleUpgradeSubscription)
		})
	})

	return r
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.log.Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Dur("duration", time.Since(start)).
			Msg("request")
	})
}
