//go:build !integration

package usecase_test

import (
	"context"
	"errors"
	"testing"

	"cms-billing/internal/domain"
	"cms-billing/internal/domain/model"
	"cms-billing/internal/usecase"
)

type subscriptionFixture struct {
	users    *memUserRepo
	products *memProductRepo
	subs     *memSubscriptionRepo
	card     *MockCardRail
	uc       usecase.SubscriptionUseCase
}

func newSubscriptionFixture() *subscriptionFixture {
	f := &subscriptionFixture{
		users:    newMemUserRepo(),
		products: newMemProductRepo(),
		subs:     newMemSubscriptionRepo(),
		card:     &MockCardRail{},
	}
	f.uc = usecase.NewSubscriptionUseCase(f.users, f.products, f.subs, f.card, nopLogger())
	return f
}

func cardSub() *model.Subscription {
	return &model.Subscription{
		ID: "s1", UserID: "u1", ProductID: "p1",
		Status: model.SubscriptionStatusActive, Origin: model.OriginStripe,
		ProviderSubscriptionID: "sub_1",
	}
}

func TestCancelAndReactivate(t *testing.T) {
	f := newSubscriptionFixture()
	f.subs.subs["s1"] = cardSub()

	var lastCancel *bool
	f.card.SetCancelAtPeriodEndFunc = func(_ context.Context, subID string, cancel bool) error {
		if subID != "sub_1" {
			t.Errorf("provider subscription id = %q, want sub_1", subID)
		}
		lastCancel = &cancel
		return nil
	}

	if err := f.uc.Cancel(context.Background(), "u1", "s1"); err != nil {
		t.Fatal(err)
	}
	if lastCancel == nil || !*lastCancel {
		t.Error("provider should be told to cancel at period end")
	}
	if !f.subs.subs["s1"].CancelAtPeriodEnd {
		t.Error("local flag should be set after the provider call")
	}

	if err := f.uc.Reactivate(context.Background(), "u1", "s1"); err != nil {
		t.Fatal(err)
	}
	if *lastCancel {
		t.Error("provider should be told to clear the flag")
	}
	if f.subs.subs["s1"].CancelAtPeriodEnd {
		t.Error("local flag should be cleared")
	}
}

func TestCancelRejectsNonCardSubscription(t *testing.T) {
	f := newSubscriptionFixture()
	f.subs.subs["s1"] = &model.Subscription{
		ID: "s1", UserID: "u1", ProductID: "p1",
		Status: model.SubscriptionStatusActive, Origin: model.OriginCryptomus,
		ProviderSubscriptionID: model.PrefixCryptomus + "x",
	}

	err := f.uc.Cancel(context.Background(), "u1", "s1")
	if !errors.Is(err, domain.ErrRailNotConfigured) {
		t.Fatalf("error = %v, want ErrRailNotConfigured", err)
	}
}

func TestCancelRejectsLegacyPrefixedSubscription(t *testing.T) {
	f := newSubscriptionFixture()
	f.subs.subs["s1"] = &model.Subscription{
		ID: "s1", UserID: "u1", ProductID: "p1",
		Status:                 model.SubscriptionStatusActive,
		ProviderSubscriptionID: model.PrefixFree + "x",
	}

	if err := f.uc.Cancel(context.Background(), "u1", "s1"); !errors.Is(err, domain.ErrRailNotConfigured) {
		t.Fatalf("error = %v, want ErrRailNotConfigured via the prefix fallback", err)
	}
}

func TestCancelProviderFailureLeavesLocalState(t *testing.T) {
	f := newSubscriptionFixture()
	f.subs.subs["s1"] = cardSub()
	f.card.SetCancelAtPeriodEndFunc = func(context.Context, string, bool) error {
		return &domain.ProviderError{Rail: "stripe", Status: 500, Message: "boom"}
	}

	err := f.uc.Cancel(context.Background(), "u1", "s1")
	if _, ok := domain.AsProviderError(err); !ok {
		t.Fatalf("error = %v, want a ProviderError", err)
	}
	if f.subs.subs["s1"].CancelAtPeriodEnd {
		t.Error("local flag must not be set when the provider call fails")
	}
}

func TestUpgrade(t *testing.T) {
	f := newSubscriptionFixture()
	f.subs.subs["s1"] = cardSub()
	f.products.products["p2"] = &model.Product{ID: "p2", Kind: model.ProductKindSubscription, Price: 5000, Currency: "USD", Active: true}

	var changedPrice string
	f.card.ChangeSubscriptionItemFunc = func(_ context.Context, subID, newPriceID string) error {
		if subID != "sub_1" {
			t.Errorf("provider subscription id = %q", subID)
		}
		changedPrice = newPriceID
		return nil
	}

	if err := f.uc.Upgrade(context.Background(), "u1", "s1", "p2"); err != nil {
		t.Fatal(err)
	}
	if changedPrice != "price_mock" {
		t.Errorf("swapped to price %q, want the mirrored price_mock", changedPrice)
	}
	if f.subs.subs["s1"].ProductID != "p2" {
		t.Errorf("local ProductID = %q, want p2", f.subs.subs["s1"].ProductID)
	}
	p, _ := f.products.FindByID(context.Background(), nil, "p2")
	if p.StripePriceID != "price_mock" {
		t.Error("the new product's ids should be mirrored before the swap")
	}
}

func TestUpgradeRejectsOneTimeProduct(t *testing.T) {
	f := newSubscriptionFixture()
	f.subs.subs["s1"] = cardSub()
	f.products.products["p2"] = &model.Product{ID: "p2", Kind: model.ProductKindOneTime, Active: true}

	if err := f.uc.Upgrade(context.Background(), "u1", "s1", "p2"); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("error = %v, want ErrNotFound for a non-subscription target", err)
	}
}

func TestPortalSession(t *testing.T) {
	f := newSubscriptionFixture()
	f.users.users["u1"] = &model.User{ID: "u1", StripeCustomerID: "cus_1"}
	f.users.users["u2"] = &model.User{ID: "u2"}

	url, err := f.uc.PortalSession(context.Background(), "u1", "https://cms.example/account")
	if err != nil {
		t.Fatal(err)
	}
	if url != "https://portal.example/session" {
		t.Errorf("url = %q", url)
	}

	if _, err := f.uc.PortalSession(context.Background(), "u2", "https://cms.example/account"); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("error = %v, want ErrNotFound for a user with no provider customer", err)
	}
}
