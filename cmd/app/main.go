package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"

	"cms-billing/internal/config"
	pg "cms-billing/internal/infra/db/postgres"
	"cms-billing/internal/infra/logging"
	"cms-billing/internal/infra/metrics"
	"cms-billing/internal/infra/payment"
	red "cms-billing/internal/infra/redis"
	"cms-billing/internal/infra/sched"
	"cms-billing/internal/infra/web"
	"cms-billing/internal/usecase"

	"cms-billing/internal/domain/ports/adapter"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfgPath := flag.String("config", "config.yaml", "path to YAML config file")
	devMode := flag.Bool("dev", false, "enable developer mode (console logging)")
	flag.Parse()

	cfg, err := config.LoadConfig(*cfgPath, *devMode)
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	logger := logging.New(cfg.Log, cfg.Runtime.Dev)
	metrics.MustRegister()

	// ---- Postgres ----
	pool, err := pg.Connect(ctx, cfg.Database.URL)
	if err != nil {
		logger.Fatal().Err(err).Msg("postgres connect failed")
	}
	defer pool.Close()

	// ---- Redis ----
	redisClient, err := red.NewClient(ctx, &cfg.Redis)
	if err != nil {
		logger.Fatal().Err(err).Msg("redis connect failed")
	}
	defer redisClient.Close()
	locker := red.NewLocker(redisClient)

	// ---- Repositories ----
	userRepo := pg.NewUserRepo(pool)
	productRepo := pg.NewProductRepoCacheDecorator(pg.NewProductRepo(pool), redisClient, cfg.Redis.TTL)
	couponRepo := pg.NewCouponRepo(pool)
	subRepo := pg.NewSubscriptionRepo(pool)
	purchaseRepo := pg.NewPurchaseRepo(pool)
	intentRepo := pg.NewPaymentIntentRepo(pool)
	reminderRepo := pg.NewReminderRepo(pool)
	txManager := pg.NewTxManager(pool)

	// ---- Provider gateways ----
	stripeGW := payment.NewStripeGateway(cfg.Stripe.SecretKey, logger)
	cryptomusGW := payment.NewCryptomusGateway(cfg.Cryptomus.MerchantID, cfg.Cryptomus.APIKey, cfg.Cryptomus.SettlementCurrency, logger)
	stripeWH := payment.NewStripeWebhookDecoder(cfg.Stripe.WebhookSecret)

	// ---- Use cases ----
	couponUC := usecase.NewCouponUseCase(couponRepo, productRepo, logger)
	checkoutUC := usecase.NewCheckoutUseCase(userRepo, productRepo, couponRepo, subRepo, purchaseRepo, intentRepo, couponUC, stripeGW, cryptomusGW, cfg.Billing.PublicDomain, logger)
	renewalUC := usecase.NewRenewalUseCase(subRepo, productRepo, reminderRepo, intentRepo, txManager, cryptomusGW, adapter.NoopNotifier{}, cfg.Billing.PublicDomain, logger)
	reconcileUC := usecase.NewReconcileUseCase(userRepo, productRepo, couponRepo, subRepo, purchaseRepo, intentRepo, reminderRepo, txManager, couponUC, renewalUC, cryptomusGW, logger)
	billingUC := usecase.NewBillingUseCase(userRepo, productRepo, subRepo, purchaseRepo, logger)
	subUC := usecase.NewSubscriptionUseCase(userRepo, productRepo, subRepo, stripeGW, logger)

	// ---- Sweeper workers ----
	expiryWorker := sched.NewExpiryWorker(cfg.Sweeper.ExpiryInterval, cfg.Sweeper.LockTTL, renewalUC, locker, logger)
	reminderWorker := sched.NewReminderWorker(cfg.Sweeper.ReminderInterval, cfg.Sweeper.LockTTL, renewalUC, locker, logger)
	go func() { _ = expiryWorker.Run(ctx) }()
	go func() { _ = reminderWorker.Run(ctx) }()

	// ---- HTTP ----
	server := web.NewServer(checkoutUC, couponUC, billingUC, subUC, renewalUC, reconcileUC, stripeWH, cfg, logger)
	httpSrv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.HTTP.Port),
		Handler: server.Router(),
	}

	go func() {
		logger.Info().Int("port", cfg.HTTP.Port).Msg("http server listening")
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("http server failed")
		}
	}()

	<-ctx.Done()
	logger.Info().Msg("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
	defer cancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("http shutdown failed")
	}
}
