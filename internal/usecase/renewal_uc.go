package usecase

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v4"
	"github.com/rs/zerolog"

	"cms-billing/internal/domain/model"
	"cms-billing/internal/domain/ports/adapter"
	"cms-billing/internal/domain/ports/repository"
	"cms-billing/internal/infra/metrics"
)

// Compile-time check
var _ RenewalUseCase = (*renewalUC)(nil)

// reminderLeadTime is how far ahead of a renewal date the reminder fires.
const reminderLeadTime = 7 * 24 * time.Hour

// RenewalOrder is the result of creating a manual renewal payment.
type RenewalOrder struct {
	PaymentID string
	URL       string
	OrderID   string
}

// ExpiringSubscription is the read-model row for the expiring-subscriptions
// query.
type ExpiringSubscription struct {
	ID               string
	Product          *model.Product
	CurrentPeriodEnd time.Time
	Status           model.SubscriptionStatus
}

type RenewalUseCase interface {
	// SweepExpired demotes active subscriptions past their period end.
	// Card-rail subscriptions go past_due and are left for the provider's
	// own retry cycle; crypto-rail subscriptions are canceled outright.
	// Returns how many rows were demoted.
	SweepExpired(ctx context.Context) (int, error)
	// DispatchReminders promotes pending reminders whose fire time has
	// passed to sent and hands them to the notifier. Returns the count.
	DispatchReminders(ctx context.Context) (int, error)
	// HandleSubscriptionRenewal extends a subscription by one interval from
	// its old period end after a renewal payment was confirmed.
	HandleSubscriptionRenewal(ctx context.Context, paymentID, subscriptionID string) error
	// RenewPrepaidSubscription creates a fresh crypto payment for the next
	// period of a prepaid subscription.
	RenewPrepaidSubscription(ctx context.Context, subscriptionID, userID string) (*RenewalOrder, error)
	// ExpiringSubscriptions lists the user's crypto-origin active
	// subscriptions ending within the reminder lead time.
	ExpiringSubscriptions(ctx context.Context, userID string) ([]*ExpiringSubscription, error)
}

type renewalUC struct {
	subs         repository.SubscriptionRepository
	products     repository.ProductRepository
	reminders    repository.RenewalReminderRepository
	intents      repository.PaymentIntentRepository
	txm          repository.TransactionManager
	crypto       adapter.CryptoRail
	notifier     adapter.Notifier
	publicDomain string
	log          *zerolog.Logger
	now          func() time.Time
}

func NewRenewalUseCase(
	subs repository.SubscriptionRepository,
	products repository.ProductRepository,
	reminders repository.RenewalReminderRepository,
	intents repository.PaymentIntentRepository,
	txm repository.TransactionManager,
	crypto adapter.CryptoRail,
	notifier adapter.Notifier,
	publicDomain string,
	logger *zerolog.Logger,
) *renewalUC {
	ucLog := logger.With().Str("component", "RenewalUC").Logger()
	if notifier == nil {
		notifier = adapter.NoopNotifier{}
	}
	return &renewalUC{
		subs:         subs,
		products:     products,
		reminders:    reminders,
		intents:      intents,
		txm:          txm,
		crypto:       crypto,
		notifier:     notifier,
		publicDomain: publicDomain,
		log:          &ucLog,
		now:          time.Now,
	}
}

func (u *renewalUC) SweepExpired(ctx context.Context) (int, error) {
	now := u.now()
	expired, err := u.subs.ListActiveExpiredBefore(ctx, repository.NoTX, now)
	if err != nil {
		return 0, fmt.Errorf("list expired subscriptions: %w", err)
	}

	demoted := 0
	for _, sub := range expired {
		origin := sub.Origin
		if origin == "" {
			origin = model.OriginFromProviderID(sub.ProviderSubscriptionID)
		}

		if origin == model.OriginCryptomus {
			// No auto-retry is possible on this rail.
			sub.Status = model.SubscriptionStatusCanceled
			sub.CancelAtPeriodEnd = true
			canceledAt := now
			sub.CanceledAt = &canceledAt
			sub.UpdatedAt = now
			if err := u.subs.Save(ctx, repository.NoTX, sub); err != nil {
				u.log.Error().Err(err).Str("subscription", sub.ID).Msg("expiry demotion failed")
				continue
			}
			u.createExpiryNotice(ctx, sub, now)
		} else {
			sub.Status = model.SubscriptionStatusPastDue
			sub.UpdatedAt = now
			if err := u.subs.Save(ctx, repository.NoTX, sub); err != nil {
				u.log.Error().Err(err).Str("subscription", sub.ID).Msg("expiry demotion failed")
				continue
			}
		}
		metrics.IncSubscriptionExpired(string(origin))
		demoted++
	}
	if demoted > 0 {
		u.log.Info().Int("count", demoted).Msg("expired subscriptions demoted")
	}
	return demoted, nil
}

// createExpiryNotice schedules an immediate-fire reminder for a lapsed
// monthly crypto subscription. Best-effort.
func (u *renewalUC) createExpiryNotice(ctx context.Context, sub *model.Subscription, now time.Time) {
	product, err := u.products.FindByID(ctx, repository.NoTX, sub.ProductID)
	if err != nil {
		u.log.Warn().Err(err).Str("subscription", sub.ID).Msg("product lookup for expiry notice failed")
		return
	}
	if product.Interval == model.IntervalYear {
		return
	}
	r := &model.RenewalReminder{
		ID:           uuid.NewString(),
		UserID:       sub.UserID,
		ProductID:    sub.ProductID,
		ReminderDate: now,
		RenewalDate:  now,
		Status:       model.ReminderStatusPending,
		Type:         model.ReminderTypeSubscriptionExpired,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := u.reminders.Save(ctx, repository.NoTX, r); err != nil {
		u.log.Warn().Err(err).Str("subscription", sub.ID).Msg("expiry notice creation failed")
	}
}

func (u *renewalUC) DispatchReminders(ctx context.Context) (int, error) {
	now := u.now()
	due, err := u.reminders.ListPendingDueBefore(ctx, repository.NoTX, now)
	if err != nil {
		return 0, fmt.Errorf("list due reminders: %w", err)
	}

	sent := 0
	for _, r := range due {
		if err := u.reminders.MarkSent(ctx, repository.NoTX, r.ID, now); err != nil {
			u.log.Error().Err(err).Str("reminder", r.ID).Msg("mark sent failed")
			continue
		}
		r.Status = model.ReminderStatusSent
		r.SentAt = &now
		if err := u.notifier.NotifyRenewalDue(ctx, r); err != nil {
			// Delivery is best-effort; the dispatch already counts.
			u.log.Warn().Err(err).Str("reminder", r.ID).Msg("notifier delivery failed")
		}
		sent++
	}
	if sent > 0 {
		metrics.AddRemindersDispatched(sent)
		u.log.Info().Int("count", sent).Msg("renewal reminders dispatched")
	}
	return sent, nil
}

func (u *renewalUC) HandleSubscriptionRenewal(ctx context.Context, paymentID, subscriptionID string) error {
	var newEnd time.Time
	// The locking lookup keeps a concurrent sweep or second renewal from
	// extending the same row twice.
	err := u.txm.WithTx(ctx, pgx.TxOptions{}, func(ctx context.Context, tx repository.Tx) error {
		sub, err := u.subs.FindByID(ctx, tx, subscriptionID)
		if err != nil {
			return fmt.Errorf("load subscription: %w", err)
		}
		product, err := u.products.FindByID(ctx, tx, sub.ProductID)
		if err != nil {
			return fmt.Errorf("load product: %w", err)
		}

		now := u.now()
		newStart := sub.CurrentPeriodEnd
		newEnd = newStart.AddDate(0, 0, product.PeriodDays())

		sub.Status = model.SubscriptionStatusActive
		sub.CancelAtPeriodEnd = false
		sub.CanceledAt = nil
		sub.CurrentPeriodStart = newStart
		sub.CurrentPeriodEnd = newEnd
		sub.UpdatedAt = now
		if err := u.subs.Save(ctx, tx, sub); err != nil {
			return fmt.Errorf("save renewed subscription: %w", err)
		}

		// Clean up any still-pending reminders before scheduling the next one.
		// There should be at most one but the data may hold more.
		pending, err := u.reminders.ListPendingByUserProduct(ctx, tx, sub.UserID, sub.ProductID)
		if err != nil {
			u.log.Warn().Err(err).Str("subscription", sub.ID).Msg("pending reminder lookup failed")
		}
		for _, r := range pending {
			if err := u.reminders.MarkRenewed(ctx, tx, r.ID); err != nil {
				u.log.Warn().Err(err).Str("reminder", r.ID).Msg("mark renewed failed")
			}
		}

		if product.Interval != model.IntervalYear {
			next := &model.RenewalReminder{
				ID:           uuid.NewString(),
				UserID:       sub.UserID,
				ProductID:    sub.ProductID,
				ReminderDate: newEnd.Add(-reminderLeadTime),
				RenewalDate:  newEnd,
				Status:       model.ReminderStatusPending,
				Type:         model.ReminderTypePrepaidSubscription,
				CreatedAt:    now,
				UpdatedAt:    now,
			}
			if err := u.reminders.Save(ctx, tx, next); err != nil {
				u.log.Warn().Err(err).Str("subscription", sub.ID).Msg("next reminder creation failed")
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	u.log.Info().Str("subscription", subscriptionID).Str("payment", paymentID).Time("period_end", newEnd).Msg("subscription renewed")
	return nil
}

func (u *renewalUC) RenewPrepaidSubscription(ctx context.Context, subscriptionID, userID string) (*RenewalOrder, error) {
	sub, err := u.subs.FindByIDAndUser(ctx, repository.NoTX, subscriptionID, userID)
	if err != nil {
		return nil, err
	}
	product, err := u.products.FindByID(ctx, repository.NoTX, sub.ProductID)
	if err != nil {
		return nil, err
	}

	now := u.now()
	orderID := fmt.Sprintf("renewal_%s_%d", sub.ID, now.Unix())
	payment, err := u.crypto.CreatePayment(ctx, adapter.CryptoPaymentParams{
		Amount:      product.Price,
		Currency:    product.Currency,
		OrderID:     orderID,
		CallbackURL: u.publicDomain + "/api/cryptomus/webhook",
	})
	if err != nil {
		return nil, err
	}

	pi := &model.PaymentIntent{
		ID:                    uuid.NewString(),
		UserID:                userID,
		ProductID:             product.ID,
		UUID:                  payment.UUID,
		OrderID:               orderID,
		Amount:                product.Price,
		Currency:              product.Currency,
		Kind:                  model.PaymentKindSubscriptionRenewal,
		Status:                model.PaymentIntentPending,
		PaymentURL:            payment.PaymentURL,
		RelatedSubscriptionID: sub.ID,
		CreatedAt:             now,
		UpdatedAt:             now,
	}
	if err := u.intents.Save(ctx, repository.NoTX, pi); err != nil {
		u.log.Error().Err(err).Str("uuid", payment.UUID).Str("order_id", orderID).Msg("renewal intent save failed after provider create")
		return nil, fmt.Errorf("save renewal intent: %w", err)
	}

	return &RenewalOrder{PaymentID: pi.ID, URL: payment.PaymentURL, OrderID: orderID}, nil
}

func (u *renewalUC) ExpiringSubscriptions(ctx context.Context, userID string) ([]*ExpiringSubscription, error) {
	cutoff := u.now().Add(reminderLeadTime)
	subs, err := u.subs.ListExpiringCryptoByUser(ctx, repository.NoTX, userID, cutoff)
	if err != nil {
		return nil, err
	}

	out := make([]*ExpiringSubscription, 0, len(subs))
	for _, sub := range subs {
		product, err := u.products.FindByID(ctx, repository.NoTX, sub.ProductID)
		if err != nil {
			u.log.Warn().Err(err).Str("subscription", sub.ID).Msg("product lookup for expiring list failed")
			continue
		}
		out = append(out, &ExpiringSubscription{
			ID:               sub.ID,
			Product:          product,
			CurrentPeriodEnd: sub.CurrentPeriodEnd,
			Status:           sub.Status,
		})
	}
	return out, nil
}
