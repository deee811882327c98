package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v4"
	"github.com/rs/zerolog"

	"cms-billing/internal/domain"
	"cms-billing/internal/domain/model"
	"cms-billing/internal/domain/ports/adapter"
	"cms-billing/internal/domain/ports/repository"
	"cms-billing/internal/infra/metrics"
)

// Compile-time check
var _ ReconcileUseCase = (*reconcileUC)(nil)

type ReconcileUseCase interface {
	// HandleCardEvent applies one decoded card-rail event. Unknown entities
	// are logged and dropped so the provider does not retry forever; an
	// error means the delivery should be retried.
	HandleCardEvent(ctx context.Context, ev adapter.CardEvent) error
	// HandleCryptoWebhook verifies and applies one crypto-rail callback.
	// The raw payload is needed for signature verification.
	HandleCryptoWebhook(ctx context.Context, payload map[string]any) error
}

type reconcileUC struct {
	users     repository.UserRepository
	products  repository.ProductRepository
	coupons   repository.CouponRepository
	subs      repository.SubscriptionRepository
	purchases repository.PurchaseRepository
	intents   repository.PaymentIntentRepository
	reminders repository.RenewalReminderRepository
	txm       repository.TransactionManager
	couponUC  CouponUseCase
	renewal   RenewalUseCase
	crypto    adapter.CryptoRail
	log       *zerolog.Logger
	now       func() time.Time
}

func NewReconcileUseCase(
	users repository.UserRepository,
	products repository.ProductRepository,
	coupons repository.CouponRepository,
	subs repository.SubscriptionRepository,
	purchases repository.PurchaseRepository,
	intents repository.PaymentIntentRepository,
	reminders repository.RenewalReminderRepository,
	txm repository.TransactionManager,
	couponUC CouponUseCase,
	renewal RenewalUseCase,
	crypto adapter.CryptoRail,
	logger *zerolog.Logger,
) *reconcileUC {
	ucLog := logger.With().Str("component", "ReconcileUC").Logger()
	return &reconcileUC{
		users:     users,
		products:  products,
		coupons:   coupons,
		subs:      subs,
		purchases: purchases,
		intents:   intents,
		reminders: reminders,
		txm:       txm,
		couponUC:  couponUC,
		renewal:   renewal,
		crypto:    crypto,
		log:       &ucLog,
		now:       time.Now,
	}
}

func (u *reconcileUC) HandleCardEvent(ctx context.Context, ev adapter.CardEvent) error {
	switch e := ev.(type) {
	case adapter.SubscriptionChanged:
		return u.applySubscriptionChanged(ctx, e)
	case adapter.SubscriptionDeleted:
		return u.applySubscriptionDeleted(ctx, e)
	case adapter.InvoicePaymentSucceeded:
		u.log.Debug().Str("invoice", e.InvoiceID).Msg("invoice payment succeeded")
		metrics.IncWebhookEvent("stripe", "applied")
		return nil
	case adapter.InvoicePaymentFailed:
		return u.applyInvoiceFailed(ctx, e)
	case adapter.CheckoutCompleted:
		return u.applyCheckoutCompleted(ctx, e)
	case adapter.IgnoredEvent:
		u.log.Debug().Str("type", e.Type).Msg("ignored event type")
		metrics.IncWebhookEvent("stripe", "ignored")
		return nil
	default:
		metrics.IncWebhookEvent("stripe", "ignored")
		return nil
	}
}

// applySubscriptionChanged upserts keyed by the provider subscription id,
// which makes duplicate deliveries collapse into no-op updates.
func (u *reconcileUC) applySubscriptionChanged(ctx context.Context, ev adapter.SubscriptionChanged) error {
	user, err := u.users.FindByStripeCustomerID(ctx, repository.NoTX, ev.CustomerID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			u.log.Warn().Str("customer", ev.CustomerID).Msg("subscription event for unknown customer, dropping")
			metrics.IncWebhookEvent("stripe", "dropped")
			return nil
		}
		return fmt.Errorf("resolve user: %w", err)
	}

	now := u.now()
	sub, err := u.subs.FindByProviderID(ctx, repository.NoTX, ev.SubscriptionID)
	switch {
	case err == nil:
		sub.Status = ev.Status
		sub.CurrentPeriodStart = ev.PeriodStart
		sub.CurrentPeriodEnd = ev.PeriodEnd
		sub.CancelAtPeriodEnd = ev.CancelAtPeriodEnd
		sub.CanceledAt = ev.CanceledAt
		sub.UpdatedAt = now
	case errors.Is(err, domain.ErrNotFound):
		product, perr := u.products.FindByStripePriceID(ctx, repository.NoTX, ev.PriceID)
		if perr != nil {
			if errors.Is(perr, domain.ErrNotFound) {
				u.log.Warn().Str("price", ev.PriceID).Msg("subscription event for unknown price, dropping")
				metrics.IncWebhookEvent("stripe", "dropped")
				return nil
			}
			return fmt.Errorf("resolve product: %w", perr)
		}
		sub = &model.Subscription{
			ID:                     uuid.NewString(),
			UserID:                 user.ID,
			ProductID:              product.ID,
			Status:                 ev.Status,
			Origin:                 model.OriginStripe,
			ProviderSubscriptionID: ev.SubscriptionID,
			ProviderCustomerID:     ev.CustomerID,
			CurrentPeriodStart:     ev.PeriodStart,
			CurrentPeriodEnd:       ev.PeriodEnd,
			CancelAtPeriodEnd:      ev.CancelAtPeriodEnd,
			CanceledAt:             ev.CanceledAt,
			CreatedAt:              now,
			UpdatedAt:              now,
		}
	default:
		return fmt.Errorf("lookup subscription: %w", err)
	}

	if err := u.subs.Save(ctx, repository.NoTX, sub); err != nil {
		return fmt.Errorf("save subscription: %w", err)
	}

	currentProduct := sub.ProductID
	if ev.Status != model.SubscriptionStatusActive && ev.Status != model.SubscriptionStatusTrialing {
		currentProduct = ""
	}
	if err := u.users.MirrorSubscription(ctx, repository.NoTX, user.ID, ev.Status, currentProduct); err != nil {
		return fmt.Errorf("mirror user: %w", err)
	}
	metrics.IncWebhookEvent("stripe", "applied")
	return nil
}

func (u *reconcileUC) applySubscriptionDeleted(ctx context.Context, ev adapter.SubscriptionDeleted) error {
	sub, err := u.subs.FindByProviderID(ctx, repository.NoTX, ev.SubscriptionID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			u.log.Warn().Str("subscription", ev.SubscriptionID).Msg("delete event for unknown subscription, dropping")
			metrics.IncWebhookEvent("stripe", "dropped")
			return nil
		}
		return fmt.Errorf("lookup subscription: %w", err)
	}

	now := u.now()
	sub.Status = model.SubscriptionStatusCanceled
	sub.CanceledAt = &now
	sub.UpdatedAt = now
	if err := u.subs.Save(ctx, repository.NoTX, sub); err != nil {
		return fmt.Errorf("save subscription: %w", err)
	}
	if err := u.users.MirrorSubscription(ctx, repository.NoTX, sub.UserID, model.SubscriptionStatusCanceled, ""); err != nil {
		return fmt.Errorf("mirror user: %w", err)
	}
	metrics.IncWebhookEvent("stripe", "applied")
	return nil
}

func (u *reconcileUC) applyInvoiceFailed(ctx context.Context, ev adapter.InvoicePaymentFailed) error {
	user, err := u.users.FindByStripeCustomerID(ctx, repository.NoTX, ev.CustomerID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			u.log.Warn().Str("customer", ev.CustomerID).Msg("invoice failure for unknown customer, dropping")
			metrics.IncWebhookEvent("stripe", "dropped")
			return nil
		}
		return fmt.Errorf("resolve user: %w", err)
	}
	if err := u.users.MirrorSubscription(ctx, repository.NoTX, user.ID, model.SubscriptionStatusPastDue, user.CurrentProductID); err != nil {
		return fmt.Errorf("mirror user: %w", err)
	}
	metrics.IncWebhookEvent("stripe", "applied")
	return nil
}

// applyCheckoutCompleted records one-time purchases. Subscription-mode
// sessions are skipped: the subscription events carry the full state and
// handling both would double-book.
func (u *reconcileUC) applyCheckoutCompleted(ctx context.Context, ev adapter.CheckoutCompleted) error {
	if ev.Mode != "payment" {
		metrics.IncWebhookEvent("stripe", "ignored")
		return nil
	}

	user, err := u.users.FindByStripeCustomerID(ctx, repository.NoTX, ev.CustomerID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			u.log.Warn().Str("customer", ev.CustomerID).Msg("checkout completion for unknown customer, dropping")
			metrics.IncWebhookEvent("stripe", "dropped")
			return nil
		}
		return fmt.Errorf("resolve user: %w", err)
	}

	productID := ev.Metadata["productId"]
	if productID == "" {
		u.log.Warn().Str("session", ev.SessionID).Msg("checkout session has no product metadata, dropping")
		metrics.IncWebhookEvent("stripe", "dropped")
		return nil
	}
	product, err := u.products.FindByID(ctx, repository.NoTX, productID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			u.log.Warn().Str("product", productID).Msg("checkout completion for unknown product, dropping")
			metrics.IncWebhookEvent("stripe", "dropped")
			return nil
		}
		return fmt.Errorf("resolve product: %w", err)
	}

	// Redeliveries carry the same payment intent id.
	if _, err := u.purchases.FindByProviderPaymentID(ctx, repository.NoTX, ev.PaymentIntentID); err == nil {
		u.log.Info().Str("session", ev.SessionID).Msg("checkout completion redelivered, purchase already recorded")
		metrics.IncWebhookEvent("stripe", "dropped")
		return nil
	} else if !errors.Is(err, domain.ErrNotFound) {
		return fmt.Errorf("purchase lookup: %w", err)
	}

	now := u.now()
	p := &model.Purchase{
		ID:                uuid.NewString(),
		UserID:            user.ID,
		ProductID:         product.ID,
		ProviderPaymentID: ev.PaymentIntentID,
		Amount:            ev.AmountTotal,
		Currency:          ev.Currency,
		Status:            model.PurchaseStatusCompleted,
		PurchasedAt:       now,
		CreatedAt:         now,
	}
	if err := u.purchases.Save(ctx, repository.NoTX, p); err != nil {
		return fmt.Errorf("save purchase: %w", err)
	}
	metrics.AddRevenue(ev.Currency, ev.AmountTotal)

	if code := ev.Metadata["couponCode"]; code != "" {
		u.bumpCoupon(ctx, code)
	}
	metrics.IncWebhookEvent("stripe", "applied")
	return nil
}

// bumpCoupon increments a coupon's usage by code. Failures are logged, not
// propagated: coupon bookkeeping must never block payment recording.
func (u *reconcileUC) bumpCoupon(ctx context.Context, code string) {
	coupon, err := u.coupons.FindByCode(ctx, repository.NoTX, strings.ToUpper(code))
	if err != nil {
		u.log.Warn().Err(err).Str("code", code).Msg("coupon lookup for usage increment failed")
		return
	}
	u.couponUC.IncrementUsage(ctx, coupon.ID)
}

func (u *reconcileUC) HandleCryptoWebhook(ctx context.Context, payload map[string]any) error {
	sign, _ := payload["sign"].(string)
	if !u.crypto.VerifyWebhook(payload, sign) {
		metrics.IncWebhookEvent("cryptomus", "rejected")
		return domain.ErrInvalidSignature
	}
	wh := decodeCryptoWebhook(payload)

	var (
		intent    *model.PaymentIntent
		duplicate bool
	)
	// The locking lookup serializes concurrent deliveries of the same
	// callback on the intent row; a redelivery for a settled intent is a
	// no-op.
	err := u.txm.WithTx(ctx, pgx.TxOptions{}, func(ctx context.Context, tx repository.Tx) error {
		var err error
		intent, err = u.intents.FindByUUID(ctx, tx, wh.UUID)
		if err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				return fmt.Errorf("%w: uuid %s", domain.ErrPaymentUnknown, wh.UUID)
			}
			return fmt.Errorf("lookup payment intent: %w", err)
		}
		if intent.Status == model.PaymentIntentPaid {
			duplicate = true
			return nil
		}

		now := u.now()
		var paidAt *time.Time
		var payerCurrency, payerAmount, network string
		if wh.PaymentStatus == model.PaymentIntentPaid {
			// Payer details are only meaningful once the payment settled.
			paidAt = &now
			payerCurrency, payerAmount, network = wh.PayerCurrency, wh.PayerAmount, wh.Network
		}
		if err := u.intents.UpdateStatus(ctx, tx, intent.ID, wh.PaymentStatus, payerCurrency, payerAmount, network, paidAt); err != nil {
			return fmt.Errorf("update payment intent: %w", err)
		}
		if wh.PaymentStatus != model.PaymentIntentPaid {
			return nil
		}
		return u.applyPaidIntent(ctx, tx, intent, wh, now)
	})
	if err != nil {
		if errors.Is(err, domain.ErrPaymentUnknown) {
			metrics.IncWebhookEvent("cryptomus", "rejected")
		}
		return err
	}

	switch {
	case duplicate:
		u.log.Info().Str("uuid", wh.UUID).Msg("crypto callback redelivered for a settled intent, dropping")
		metrics.IncWebhookEvent("cryptomus", "dropped")
	case wh.PaymentStatus != model.PaymentIntentPaid:
		u.log.Info().Str("uuid", wh.UUID).Str("status", string(wh.PaymentStatus)).Msg("crypto payment not paid, no ledger change")
		metrics.IncWebhookEvent("cryptomus", "applied")
	default:
		metrics.AddRevenue(intent.Currency, intent.Amount)
		if intent.CouponCode != "" {
			u.bumpCoupon(ctx, intent.CouponCode)
		}
		metrics.IncWebhookEvent("cryptomus", "applied")
	}
	return nil
}

func (u *reconcileUC) applyPaidIntent(ctx context.Context, tx repository.Tx, intent *model.PaymentIntent, wh adapter.CryptoWebhook, now time.Time) error {
	switch intent.Kind {
	case model.PaymentKindSubscriptionRenewal:
		if err := u.renewal.HandleSubscriptionRenewal(ctx, intent.ID, intent.RelatedSubscriptionID); err != nil {
			return fmt.Errorf("handle renewal: %w", err)
		}
	case model.PaymentKindOneTime:
		providerPaymentID := model.PrefixCryptomus + wh.UUID
		if _, err := u.purchases.FindByProviderPaymentID(ctx, tx, providerPaymentID); err == nil {
			u.log.Info().Str("uuid", wh.UUID).Msg("purchase already recorded for this payment")
			return nil
		} else if !errors.Is(err, domain.ErrNotFound) {
			return fmt.Errorf("purchase lookup: %w", err)
		}
		p := &model.Purchase{
			ID:                uuid.NewString(),
			UserID:            intent.UserID,
			ProductID:         intent.ProductID,
			ProviderPaymentID: providerPaymentID,
			Amount:            intent.Amount,
			Currency:          intent.Currency,
			Status:            model.PurchaseStatusCompleted,
			PurchasedAt:       now,
			CreatedAt:         now,
		}
		if err := u.purchases.Save(ctx, tx, p); err != nil {
			return fmt.Errorf("save purchase: %w", err)
		}
	case model.PaymentKindSubscription, model.PaymentKindPrepaidSubscription:
		return u.createCryptoSubscription(ctx, tx, intent, wh, now)
	default:
		u.log.Warn().Str("kind", string(intent.Kind)).Str("uuid", wh.UUID).Msg("paid intent with unexpected kind")
	}
	return nil
}

func (u *reconcileUC) createCryptoSubscription(ctx context.Context, tx repository.Tx, intent *model.PaymentIntent, wh adapter.CryptoWebhook, now time.Time) error {
	product, err := u.products.FindByID(ctx, tx, intent.ProductID)
	if err != nil {
		return fmt.Errorf("resolve product: %w", err)
	}

	periodEnd := now.AddDate(0, 0, product.PeriodDays())
	sub := &model.Subscription{
		ID:                     uuid.NewString(),
		UserID:                 intent.UserID,
		ProductID:              product.ID,
		Status:                 model.SubscriptionStatusActive,
		Origin:                 model.OriginCryptomus,
		ProviderSubscriptionID: model.PrefixCryptomus + wh.UUID,
		CurrentPeriodStart:     now,
		CurrentPeriodEnd:       periodEnd,
		CreatedAt:              now,
		UpdatedAt:              now,
	}
	if err := u.subs.Save(ctx, tx, sub); err != nil {
		return fmt.Errorf("save subscription: %w", err)
	}
	if err := u.users.MirrorSubscription(ctx, tx, intent.UserID, model.SubscriptionStatusActive, product.ID); err != nil {
		u.log.Warn().Err(err).Str("user", intent.UserID).Msg("mirror crypto subscription failed")
	}

	if intent.Kind == model.PaymentKindPrepaidSubscription && product.Interval != model.IntervalYear {
		r := &model.RenewalReminder{
			ID:           uuid.NewString(),
			UserID:       intent.UserID,
			ProductID:    product.ID,
			ReminderDate: periodEnd.Add(-reminderLeadTime),
			RenewalDate:  periodEnd,
			Status:       model.ReminderStatusPending,
			Type:         model.ReminderTypePrepaidSubscription,
			CreatedAt:    now,
			UpdatedAt:    now,
		}
		if err := u.reminders.Save(ctx, tx, r); err != nil {
			u.log.Warn().Err(err).Str("subscription", sub.ID).Msg("renewal reminder creation failed")
		}
	}
	return nil
}

func decodeCryptoWebhook(payload map[string]any) adapter.CryptoWebhook {
	str := func(key string) string {
		v, _ := payload[key].(string)
		return v
	}
	return adapter.CryptoWebhook{
		UUID:           str("uuid"),
		OrderID:        str("order_id"),
		Amount:         str("amount"),
		PaymentStatus:  model.PaymentIntentStatus(str("payment_status")),
		PayerAmount:    str("payer_amount"),
		Network:        str("network"),
		Currency:       str("currency"),
		PayerCurrency:  str("payer_currency"),
		AdditionalData: str("additional_data"),
		Sign:           str("sign"),
	}
}
