//go:build !integration

package usecase_test

import (
	"context"
	"sync"
	"time"

	"github.com/jackc/pgx/v4"
	"github.com/rs/zerolog"

	"cms-billing/internal/domain"
	"cms-billing/internal/domain/model"
	"cms-billing/internal/domain/ports/adapter"
	"cms-billing/internal/domain/ports/repository"
)

func nopLogger() *zerolog.Logger {
	l := zerolog.Nop()
	return &l
}

// =============================
// In-memory repositories
// =============================

type memUserRepo struct {
	mu    sync.Mutex
	users map[string]*model.User
}

var _ repository.UserRepository = (*memUserRepo)(nil)

func newMemUserRepo(users ...*model.User) *memUserRepo {
	r := &memUserRepo{users: map[string]*model.User{}}
	for _, u := range users {
		r.users[u.ID] = u
	}
	return r
}

func (r *memUserRepo) FindByID(_ context.Context, _ repository.Tx, id string) (*model.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *u
	return &cp, nil
}

func (r *memUserRepo) FindByStripeCustomerID(_ context.Context, _ repository.Tx, customerID string) (*model.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, u := range r.users {
		if u.StripeCustomerID == customerID {
			cp := *u
			return &cp, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (r *memUserRepo) SetStripeCustomerID(_ context.Context, _ repository.Tx, id, customerID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[id]
	if !ok {
		return domain.ErrNotFound
	}
	u.StripeCustomerID = customerID
	return nil
}

func (r *memUserRepo) MirrorSubscription(_ context.Context, _ repository.Tx, id string, status model.SubscriptionStatus, currentProductID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[id]
	if !ok {
		return domain.ErrNotFound
	}
	u.SubscriptionStatus = status
	u.CurrentProductID = currentProductID
	return nil
}

type memProductRepo struct {
	mu       sync.Mutex
	products map[string]*model.Product
}

var _ repository.ProductRepository = (*memProductRepo)(nil)

func newMemProductRepo(products ...*model.Product) *memProductRepo {
	r := &memProductRepo{products: map[string]*model.Product{}}
	for _, p := range products {
		r.products[p.ID] = p
	}
	return r
}

func (r *memProductRepo) Save(_ context.Context, _ repository.Tx, p *model.Product) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.products[p.ID] = p
	return nil
}

func (r *memProductRepo) FindByID(_ context.Context, _ repository.Tx, id string) (*model.Product, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.products[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *p
	return &cp, nil
}

func (r *memProductRepo) FindByIDAndKind(_ context.Context, _ repository.Tx, id string, kind model.ProductKind) (*model.Product, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.products[id]
	if !ok || p.Kind != kind {
		return nil, domain.ErrNotFound
	}
	cp := *p
	return &cp, nil
}

func (r *memProductRepo) FindByStripePriceID(_ context.Context, _ repository.Tx, priceID string) (*model.Product, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, p := range r.products {
		if p.StripePriceID == priceID {
			cp := *p
			return &cp, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (r *memProductRepo) ListActive(_ context.Context, _ repository.Tx, kind model.ProductKind) ([]*model.Product, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*model.Product
	for _, p := range r.products {
		if p.Active && p.Kind == kind {
			cp := *p
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (r *memProductRepo) SetStripeIDs(_ context.Context, _ repository.Tx, id, stripeProductID, stripePriceID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.products[id]
	if !ok {
		return domain.ErrNotFound
	}
	p.StripeProductID = stripeProductID
	p.StripePriceID = stripePriceID
	return nil
}

type memCouponRepo struct {
	mu      sync.Mutex
	coupons map[string]*model.Coupon
}

var _ repository.CouponRepository = (*memCouponRepo)(nil)

func newMemCouponRepo(coupons ...*model.Coupon) *memCouponRepo {
	r := &memCouponRepo{coupons: map[string]*model.Coupon{}}
	for _, c := range coupons {
		r.coupons[c.ID] = c
	}
	return r
}

func (r *memCouponRepo) Save(_ context.Context, _ repository.Tx, c *model.Coupon) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.coupons[c.ID] = c
	return nil
}

func (r *memCouponRepo) FindByID(_ context.Context, _ repository.Tx, id string) (*model.Coupon, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.coupons[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *c
	return &cp, nil
}

func (r *memCouponRepo) FindByCode(_ context.Context, _ repository.Tx, code string) (*model.Coupon, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, c := range r.coupons {
		if c.Code == code {
			cp := *c
			return &cp, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (r *memCouponRepo) FindActiveByCode(ctx context.Context, tx repository.Tx, code string) (*model.Coupon, error) {
	c, err := r.FindByCode(ctx, tx, code)
	if err != nil || !c.Active {
		return nil, domain.ErrNotFound
	}
	return c, nil
}

func (r *memCouponRepo) IncrementUsage(_ context.Context, _ repository.Tx, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.coupons[id]
	if !ok {
		return domain.ErrNotFound
	}
	c.CurrentUses++
	return nil
}

func (r *memCouponRepo) SetStripeCouponID(_ context.Context, _ repository.Tx, id, stripeCouponID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.coupons[id]
	if !ok {
		return domain.ErrNotFound
	}
	c.StripeCouponID = stripeCouponID
	return nil
}

type memSubscriptionRepo struct {
	mu   sync.Mutex
	subs map[string]*model.Subscription
}

var _ repository.SubscriptionRepository = (*memSubscriptionRepo)(nil)

func newMemSubscriptionRepo(subs ...*model.Subscription) *memSubscriptionRepo {
	r := &memSubscriptionRepo{subs: map[string]*model.Subscription{}}
	for _, s := range subs {
		r.subs[s.ID] = s
	}
	return r
}

func (r *memSubscriptionRepo) Save(_ context.Context, _ repository.Tx, s *model.Subscription) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *s
	r.subs[s.ID] = &cp
	return nil
}

func (r *memSubscriptionRepo) FindByID(_ context.Context, _ repository.Tx, id string) (*model.Subscription, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.subs[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *s
	return &cp, nil
}

func (r *memSubscriptionRepo) FindByIDAndUser(_ context.Context, _ repository.Tx, id, userID string) (*model.Subscription, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.subs[id]
	if !ok || s.UserID != userID {
		return nil, domain.ErrNotFound
	}
	cp := *s
	return &cp, nil
}

func (r *memSubscriptionRepo) FindByProviderID(_ context.Context, _ repository.Tx, providerID string) (*model.Subscription, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, s := range r.subs {
		if s.ProviderSubscriptionID == providerID {
			cp := *s
			return &cp, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (r *memSubscriptionRepo) FindCurrentByUser(_ context.Context, _ repository.Tx, userID string) (*model.Subscription, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var best *model.Subscription
	for _, s := range r.subs {
		if s.UserID != userID {
			continue
		}
		if s.Status != model.SubscriptionStatusActive && s.Status != model.SubscriptionStatusTrialing {
			continue
		}
		if best == nil || s.CreatedAt.After(best.CreatedAt) {
			best = s
		}
	}
	if best == nil {
		return nil, domain.ErrNotFound
	}
	cp := *best
	return &cp, nil
}

func (r *memSubscriptionRepo) ListActiveExpiredBefore(_ context.Context, _ repository.Tx, cutoff time.Time) ([]*model.Subscription, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*model.Subscription
	for _, s := range r.subs {
		if s.Status == model.SubscriptionStatusActive && s.CurrentPeriodEnd.Before(cutoff) {
			cp := *s
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (r *memSubscriptionRepo) ListExpiringCryptoByUser(_ context.Context, _ repository.Tx, userID string, cutoff time.Time) ([]*model.Subscription, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*model.Subscription
	for _, s := range r.subs {
		if s.UserID != userID || s.Status != model.SubscriptionStatusActive {
			continue
		}
		if s.Origin != model.OriginCryptomus && s.Origin != model.OriginFreeCrypto {
			continue
		}
		if !s.CurrentPeriodEnd.After(cutoff) {
			cp := *s
			out = append(out, &cp)
		}
	}
	return out, nil
}

type memPurchaseRepo struct {
	mu        sync.Mutex
	purchases []*model.Purchase
}

var _ repository.PurchaseRepository = (*memPurchaseRepo)(nil)

func newMemPurchaseRepo() *memPurchaseRepo { return &memPurchaseRepo{} }

func (r *memPurchaseRepo) Save(_ context.Context, _ repository.Tx, p *model.Purchase) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *p
	r.purchases = append(r.purchases, &cp)
	return nil
}

func (r *memPurchaseRepo) FindByProviderPaymentID(_ context.Context, _ repository.Tx, providerPaymentID string) (*model.Purchase, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, p := range r.purchases {
		if p.ProviderPaymentID == providerPaymentID {
			cp := *p
			return &cp, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (r *memPurchaseRepo) ListByUser(_ context.Context, _ repository.Tx, userID string) ([]*model.Purchase, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*model.Purchase
	for _, p := range r.purchases {
		if p.UserID == userID {
			cp := *p
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (r *memPurchaseRepo) all() []*model.Purchase {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*model.Purchase, len(r.purchases))
	copy(out, r.purchases)
	return out
}

type memIntentRepo struct {
	mu      sync.Mutex
	intents map[string]*model.PaymentIntent
}

var _ repository.PaymentIntentRepository = (*memIntentRepo)(nil)

func newMemIntentRepo(intents ...*model.PaymentIntent) *memIntentRepo {
	r := &memIntentRepo{intents: map[string]*model.PaymentIntent{}}
	for _, pi := range intents {
		r.intents[pi.ID] = pi
	}
	return r
}

func (r *memIntentRepo) Save(_ context.Context, _ repository.Tx, pi *model.PaymentIntent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *pi
	r.intents[pi.ID] = &cp
	return nil
}

func (r *memIntentRepo) FindByUUID(_ context.Context, _ repository.Tx, uuid string) (*model.PaymentIntent, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, pi := range r.intents {
		if pi.UUID == uuid {
			cp := *pi
			return &cp, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (r *memIntentRepo) UpdateStatus(_ context.Context, _ repository.Tx, id string, status model.PaymentIntentStatus, cryptoCurrency, cryptoAmount, network string, paidAt *time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	pi, ok := r.intents[id]
	if !ok {
		return domain.ErrNotFound
	}
	pi.Status = status
	if cryptoCurrency != "" {
		pi.CryptoCurrency = cryptoCurrency
	}
	if cryptoAmount != "" {
		pi.CryptoAmount = cryptoAmount
	}
	if network != "" {
		pi.Network = network
	}
	if paidAt != nil {
		pi.PaidAt = paidAt
	}
	return nil
}

type memReminderRepo struct {
	mu        sync.Mutex
	reminders map[string]*model.RenewalReminder
}

var _ repository.RenewalReminderRepository = (*memReminderRepo)(nil)

func newMemReminderRepo(reminders ...*model.RenewalReminder) *memReminderRepo {
	r := &memReminderRepo{reminders: map[string]*model.RenewalReminder{}}
	for _, m := range reminders {
		r.reminders[m.ID] = m
	}
	return r
}

func (r *memReminderRepo) Save(_ context.Context, _ repository.Tx, m *model.RenewalReminder) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *m
	r.reminders[m.ID] = &cp
	return nil
}

func (r *memReminderRepo) ListPendingDueBefore(_ context.Context, _ repository.Tx, cutoff time.Time) ([]*model.RenewalReminder, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*model.RenewalReminder
	for _, m := range r.reminders {
		if m.Status == model.ReminderStatusPending && !m.ReminderDate.After(cutoff) {
			cp := *m
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (r *memReminderRepo) ListPendingByUserProduct(_ context.Context, _ repository.Tx, userID, productID string) ([]*model.RenewalReminder, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*model.RenewalReminder
	for _, m := range r.reminders {
		if m.UserID == userID && m.ProductID == productID && m.Status == model.ReminderStatusPending {
			cp := *m
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (r *memReminderRepo) MarkSent(_ context.Context, _ repository.Tx, id string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.reminders[id]
	if !ok {
		return domain.ErrNotFound
	}
	m.Status = model.ReminderStatusSent
	m.SentAt = &at
	m.ReminderCount++
	return nil
}

func (r *memReminderRepo) MarkRenewed(_ context.Context, _ repository.Tx, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.reminders[id]
	if !ok {
		return domain.ErrNotFound
	}
	m.Status = model.ReminderStatusRenewed
	return nil
}

func (r *memReminderRepo) all() []*model.RenewalReminder {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*model.RenewalReminder
	for _, m := range r.reminders {
		cp := *m
		out = append(out, &cp)
	}
	return out
}

// memTxManager runs the callback directly; the fakes ignore the tx handle.
// The call count lets tests assert that a flow went through a transaction.
type memTxManager struct {
	mu    sync.Mutex
	calls int
}

var _ repository.TransactionManager = (*memTxManager)(nil)

func (m *memTxManager) WithTx(ctx context.Context, _ pgx.TxOptions, fn func(ctx context.Context, tx repository.Tx) error) error {
	m.mu.Lock()
	m.calls++
	m.mu.Unlock()
	return fn(ctx, repository.NoTX)
}

func (m *memTxManager) callCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

// =============================
// Mock rails
// =============================

type MockCardRail struct {
	CreateCustomerFunc         func(ctx context.Context, u *model.User) (string, error)
	EnsureProductFunc          func(ctx context.Context, p *model.Product) (adapter.MirroredIDs, error)
	EnsureCouponFunc           func(ctx context.Context, c *model.Coupon) (string, error)
	CreateCheckoutSessionFunc  func(ctx context.Context, params adapter.CheckoutSessionParams) (adapter.CheckoutSession, error)
	CreatePortalSessionFunc    func(ctx context.Context, customerID, returnURL string) (string, error)
	SetCancelAtPeriodEndFunc   func(ctx context.Context, subscriptionID string, cancel bool) error
	ChangeSubscriptionItemFunc func(ctx context.Context, subscriptionID, newPriceID string) error

	Sessions []adapter.CheckoutSessionParams
}

var _ adapter.CardRail = (*MockCardRail)(nil)

func (m *MockCardRail) CreateCustomer(ctx context.Context, u *model.User) (string, error) {
	if m.CreateCustomerFunc != nil {
		return m.CreateCustomerFunc(ctx, u)
	}
	return "cus_mock", nil
}

func (m *MockCardRail) EnsureProduct(ctx context.Context, p *model.Product) (adapter.MirroredIDs, error) {
	if m.EnsureProductFunc != nil {
		return m.EnsureProductFunc(ctx, p)
	}
	if p.StripeProductID != "" && p.StripePriceID != "" {
		return adapter.MirroredIDs{ProductID: p.StripeProductID, PriceID: p.StripePriceID}, nil
	}
	return adapter.MirroredIDs{ProductID: "prod_mock", PriceID: "price_mock"}, nil
}

func (m *MockCardRail) EnsureCoupon(ctx context.Context, c *model.Coupon) (string, error) {
	if m.EnsureCouponFunc != nil {
		return m.EnsureCouponFunc(ctx, c)
	}
	return "coupon_mock", nil
}

func (m *MockCardRail) CreateCheckoutSession(ctx context.Context, params adapter.CheckoutSessionParams) (adapter.CheckoutSession, error) {
	m.Sessions = append(m.Sessions, params)
	if m.CreateCheckoutSessionFunc != nil {
		return m.CreateCheckoutSessionFunc(ctx, params)
	}
	return adapter.CheckoutSession{ID: "cs_mock", URL: "https://checkout.example/cs_mock"}, nil
}

func (m *MockCardRail) CreatePortalSession(ctx context.Context, customerID, returnURL string) (string, error) {
	if m.CreatePortalSessionFunc != nil {
		return m.CreatePortalSessionFunc(ctx, customerID, returnURL)
	}
	return "https://portal.example/session", nil
}

func (m *MockCardRail) SetCancelAtPeriodEnd(ctx context.Context, subscriptionID string, cancel bool) error {
	if m.SetCancelAtPeriodEndFunc != nil {
		return m.SetCancelAtPeriodEndFunc(ctx, subscriptionID, cancel)
	}
	return nil
}

func (m *MockCardRail) ChangeSubscriptionItem(ctx context.Context, subscriptionID, newPriceID string) error {
	if m.ChangeSubscriptionItemFunc != nil {
		return m.ChangeSubscriptionItemFunc(ctx, subscriptionID, newPriceID)
	}
	return nil
}

type MockCryptoRail struct {
	CreatePaymentFunc func(ctx context.Context, params adapter.CryptoPaymentParams) (adapter.CryptoPayment, error)
	PaymentStatusFunc func(ctx context.Context, uuid string) (adapter.CryptoPayment, error)
	VerifyWebhookFunc func(payload map[string]any, sign string) bool

	Payments []adapter.CryptoPaymentParams
}

var _ adapter.CryptoRail = (*MockCryptoRail)(nil)

func (m *MockCryptoRail) CreatePayment(ctx context.Context, params adapter.CryptoPaymentParams) (adapter.CryptoPayment, error) {
	m.Payments = append(m.Payments, params)
	if m.CreatePaymentFunc != nil {
		return m.CreatePaymentFunc(ctx, params)
	}
	return adapter.CryptoPayment{
		UUID:       "uuid-mock",
		OrderID:    params.OrderID,
		Status:     "check",
		PaymentURL: "https://pay.example/uuid-mock",
	}, nil
}

func (m *MockCryptoRail) PaymentStatus(ctx context.Context, uuid string) (adapter.CryptoPayment, error) {
	if m.PaymentStatusFunc != nil {
		return m.PaymentStatusFunc(ctx, uuid)
	}
	return adapter.CryptoPayment{UUID: uuid, Status: "paid"}, nil
}

func (m *MockCryptoRail) VerifyWebhook(payload map[string]any, sign string) bool {
	if m.VerifyWebhookFunc != nil {
		return m.VerifyWebhookFunc(payload, sign)
	}
	return true
}

type MockNotifier struct {
	mu       sync.Mutex
	Notified []*model.RenewalReminder
	Err      error
}

var _ adapter.Notifier = (*MockNotifier)(nil)

func (m *MockNotifier) NotifyRenewalDue(_ context.Context, r *model.RenewalReminder) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Notified = append(m.Notified, r)
	return m.Err
}
