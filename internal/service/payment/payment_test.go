package payment

import (
	"errors"
	"net/http"
	"strconv"
	"testing"
	"time"

	"github.com/soberly/recovery/internal/config"
	"github.com/soberly/recovery/internal/model"
	standardwebhooks "github.com/standard-webhooks/standard-webhooks/libraries/go"
)

var errNotFound = errors.New("not found")

// fakeSubscriptions keeps one subscription per user in memory.
type fakeSubscriptions struct {
	byUser map[string]*model.Subscription
}

func newFakeSubscriptions(subs ...*model.Subscription) *fakeSubscriptions {
	f := &fakeSubscriptions{byUser: map[string]*model.Subscription{}}
	for _, s := range subs {
		f.byUser[s.UserID] = s
	}
	return f
}

func (f *fakeSubscriptions) Subscription(userID string) (*model.Subscription, error) {
	if s, ok := f.byUser[userID]; ok {
		return s, nil
	}
	return nil, errNotFound
}

func (f *fakeSubscriptions) ByProviderSubscriptionID(id string) (*model.Subscription, error) {
	for _, s := range f.byUser {
		if s.ProviderSubscriptionID != nil && *s.ProviderSubscriptionID == id {
			return s, nil
		}
	}
	return nil, errNotFound
}

func (f *fakeSubscriptions) ByProviderCustomerID(id string) (*model.Subscription, error) {
	for _, s := range f.byUser {
		if s.ProviderCustomerID != nil && *s.ProviderCustomerID == id {
			return s, nil
		}
	}
	return nil, errNotFound
}

func (f *fakeSubscriptions) UpdateSubscription(sub *model.Subscription) error {
	f.byUser[sub.UserID] = sub
	return nil
}

func (f *fakeSubscriptions) DowngradeToFree(sub *model.Subscription) error {
	sub.PlanID = model.SubscriptionPlanFree
	sub.Status = model.SubscriptionStatusActive
	sub.ProviderSubscriptionID = nil
	sub.CurrentPeriodEnd = nil
	return f.UpdateSubscription(sub)
}

func ptr(s string) *string { return &s }

func freeSub(userID string) *model.Subscription {
	return &model.Subscription{ID: "sub-" + userID, UserID: userID, PlanID: model.SubscriptionPlanFree, Status: model.SubscriptionStatusActive}
}

func TestProducts(t *testing.T) {
	p := Products{Monthly: "prod_m", Yearly: "prod_y"}

	if got := p.ID(model.SubscriptionIntervalYearly); got != "prod_y" {
		t.Errorf("ID(yearly) = %q, want prod_y", got)
	}
	if got := p.ID("weekly"); got != "" {
		t.Errorf("ID(weekly) = %q, want empty", got)
	}
	if got := p.Plan("prod_m"); got != model.SubscriptionPlanPremium {
		t.Errorf("Plan(prod_m) = %q, want premium", got)
	}
	if got := p.Plan("prod_other"); got != "" {
		t.Errorf("Plan(prod_other) = %q, want empty", got)
	}
	if got := (Products{}).Plan(""); got != "" {
		t.Errorf("empty products matched empty ID: %q", got)
	}
}

func TestMapStatus(t *testing.T) {
	tests := map[string]string{
		"active":             model.SubscriptionStatusActive,
		"trialing":           model.SubscriptionStatusActive,
		"canceled":           model.SubscriptionStatusCancelled,
		"unpaid":             model.SubscriptionStatusCancelled,
		"incomplete_expired": model.SubscriptionStatusCancelled,
		"past_due":           "past_due",
	}
	for in, want := range tests {
		if got := mapStatus(in); got != want {
			t.Errorf("mapStatus(%q) = %q, want %q", in, got, want)
		}
	}
	if got := mapInterval("year"); got != model.SubscriptionIntervalYearly {
		t.Errorf("mapInterval(year) = %q", got)
	}
}

func TestNewProvider(t *testing.T) {
	subs := newFakeSubscriptions()

	p, err := NewProvider(&config.Config{}, subs)
	if err != nil || p != nil {
		t.Fatalf("unconfigured provider = %v, %v; want nil, nil", p, err)
	}

	_, err = NewProvider(&config.Config{PaymentProvider: "polar"}, subs)
	if err == nil {
		t.Error("polar without API key should fail")
	}
	_, err = NewProvider(&config.Config{PaymentProvider: "stripe", StripeSecretKey: "sk_test"}, subs)
	if err == nil {
		t.Error("stripe without webhook secret should fail")
	}
	_, err = NewProvider(&config.Config{PaymentProvider: "paddle"}, subs)
	if err == nil {
		t.Error("unknown provider should fail")
	}

	p, err = NewProvider(&config.Config{PaymentProvider: "polar", PolarAPIKey: "key", PolarSandboxMode: true}, subs)
	if err != nil {
		t.Fatalf("NewProvider(polar): %v", err)
	}
	if p.Name() != model.ProviderPolar {
		t.Errorf("Name() = %q, want polar", p.Name())
	}
}

func TestPortalRequiresCustomer(t *testing.T) {
	subs := newFakeSubscriptions(freeSub("u1"))
	p := NewPolarProvider(PolarConfig{APIKey: "key", Sandbox: true}, subs)

	_, err := p.CustomerPortalURL("u1")
	if !errors.Is(err, ErrNoCustomer) {
		t.Errorf("CustomerPortalURL() error = %v, want ErrNoCustomer", err)
	}
}

func TestCheckoutUnknownInterval(t *testing.T) {
	subs := newFakeSubscriptions(freeSub("u1"))
	p := NewStripeProvider(StripeConfig{SecretKey: "sk_test", Prices: Products{Monthly: "price_m"}}, subs)

	_, err := p.CreateCheckoutURL("u1", model.SubscriptionIntervalYearly, "a@example.com")
	if !errors.Is(err, ErrUnknownInterval) {
		t.Errorf("CreateCheckoutURL() error = %v, want ErrUnknownInterval", err)
	}
}

// polarWebhook signs payload the way Polar does and delivers it.
func polarWebhook(t *testing.T, p *PolarProvider, payload string) error {
	t.Helper()
	wh, err := standardwebhooks.NewWebhookRaw([]byte(p.cfg.WebhookSecret))
	if err != nil {
		t.Fatal(err)
	}
	now := time.Now()
	sig, err := wh.Sign("msg_1", now, []byte(payload))
	if err != nil {
		t.Fatal(err)
	}
	headers := http.Header{}
	headers.Set("webhook-id", "msg_1")
	headers.Set("webhook-timestamp", strconv.FormatInt(now.Unix(), 10))
	headers.Set("webhook-signature", sig)
	return p.HandleWebhook([]byte(payload), headers)
}

func TestPolarWebhookLifecycle(t *testing.T) {
	subs := newFakeSubscriptions(freeSub("u1"))
	p := NewPolarProvider(PolarConfig{
		APIKey:        "key",
		WebhookSecret: "whsec-test-secret",
		Sandbox:       true,
		Products:      Products{Monthly: "prod_m", Yearly: "prod_y"},
	}, subs)

	err := polarWebhook(t, p, `{"type":"subscription.created","data":{
		"id":"psub_1","customer_id":"cus_1","product_id":"prod_y","amount":4999,"currency":"usd",
		"recurring_interval":"year","status":"active","current_period_end":"2027-01-01T00:00:00Z",
		"metadata":{"user_id":"u1"}}}`)
	if err != nil {
		t.Fatalf("created: %v", err)
	}
	sub := subs.byUser["u1"]
	if sub.PlanID != model.SubscriptionPlanPremium || sub.Provider != model.ProviderPolar {
		t.Fatalf("after created: plan=%q provider=%q", sub.PlanID, sub.Provider)
	}
	if sub.Interval == nil || *sub.Interval != model.SubscriptionIntervalYearly {
		t.Errorf("interval = %v, want yearly", sub.Interval)
	}
	if sub.CurrentPeriodEnd == nil || sub.CurrentPeriodEnd.Year() != 2027 {
		t.Errorf("period end = %v", sub.CurrentPeriodEnd)
	}

	err = polarWebhook(t, p, `{"type":"subscription.canceled","data":{"id":"psub_1"}}`)
	if err != nil {
		t.Fatalf("canceled: %v", err)
	}
	if sub.Status != model.SubscriptionStatusCancelled || sub.PlanID != model.SubscriptionPlanPremium {
		t.Errorf("after cancel: status=%q plan=%q, want cancelled premium", sub.Status, sub.PlanID)
	}

	err = polarWebhook(t, p, `{"type":"subscription.uncanceled","data":{"id":"psub_1"}}`)
	if err != nil {
		t.Fatalf("uncanceled: %v", err)
	}
	if sub.Status != model.SubscriptionStatusActive {
		t.Errorf("after uncancel: status=%q, want active", sub.Status)
	}

	err = polarWebhook(t, p, `{"type":"subscription.revoked","data":{"id":"psub_1"}}`)
	if err != nil {
		t.Fatalf("revoked: %v", err)
	}
	if sub.PlanID != model.SubscriptionPlanFree || sub.ProviderSubscriptionID != nil {
		t.Errorf("after revoke: plan=%q, want free", sub.PlanID)
	}
}

func TestPolarWebhookRejectsBadSignature(t *testing.T) {
	subs := newFakeSubscriptions(freeSub("u1"))
	p := NewPolarProvider(PolarConfig{APIKey: "key", WebhookSecret: "whsec-test-secret", Sandbox: true}, subs)

	headers := http.Header{}
	headers.Set("webhook-id", "msg_1")
	headers.Set("webhook-timestamp", strconv.FormatInt(time.Now().Unix(), 10))
	headers.Set("webhook-signature", "v1,bm90LWEtc2lnbmF0dXJl")
	err := p.HandleWebhook([]byte(`{"type":"subscription.revoked","data":{"id":"psub_1"}}`), headers)
	if err == nil {
		t.Fatal("HandleWebhook() accepted a forged signature")
	}
}

func TestPolarWebhookIgnoresOtherEvents(t *testing.T) {
	p := NewPolarProvider(PolarConfig{APIKey: "key", Sandbox: true}, newFakeSubscriptions())

	err := p.HandleWebhook([]byte(`{"type":"order.created","data":[1,2,3]}`), http.Header{})
	if err != nil {
		t.Errorf("HandleWebhook(order.created) = %v, want nil", err)
	}
}

func TestStripeSubscriptionEvents(t *testing.T) {
	sub := freeSub("u1")
	sub.ProviderCustomerID = ptr("cus_1")
	subs := newFakeSubscriptions(sub)
	s := NewStripeProvider(StripeConfig{SecretKey: "sk_test", Prices: Products{Monthly: "price_m", Yearly: "price_y"}}, subs)

	err := s.subscriptionChanged([]byte(`{"id":"ssub_1","customer":"cus_1","status":"trialing",
		"current_period_end":1798761600,
		"items":{"data":[{"price":{"id":"price_m","unit_amount":599,"currency":"usd","recurring":{"interval":"month"}}}]}}`), true)
	if err != nil {
		t.Fatalf("created: %v", err)
	}
	if sub.PlanID != model.SubscriptionPlanPremium || sub.Status != model.SubscriptionStatusActive {
		t.Fatalf("after created: plan=%q status=%q", sub.PlanID, sub.Status)
	}
	if sub.Amount == nil || *sub.Amount != 599 {
		t.Errorf("amount = %v, want 599", sub.Amount)
	}

	err = s.subscriptionChanged([]byte(`{"id":"ssub_1","status":"active","cancel_at_period_end":true,
		"current_period_end":1798761600,"items":{"data":[]}}`), false)
	if err != nil {
		t.Fatalf("updated: %v", err)
	}
	if sub.Status != model.SubscriptionStatusCancelled {
		t.Errorf("after cancel at period end: status=%q", sub.Status)
	}

	err = s.invoicePaid([]byte(`{"subscription":"ssub_1"}`), true)
	if err != nil {
		t.Fatalf("invoice: %v", err)
	}
	if sub.Status != model.SubscriptionStatusActive {
		t.Errorf("after paid invoice: status=%q, want active", sub.Status)
	}

	err = s.subscriptionDeleted([]byte(`{"id":"ssub_1"}`))
	if err != nil {
		t.Fatalf("deleted: %v", err)
	}
	if sub.PlanID != model.SubscriptionPlanFree {
		t.Errorf("after delete: plan=%q, want free", sub.PlanID)
	}
}

func TestStripeWebhookRejectsUnsigned(t *testing.T) {
	s := NewStripeProvider(StripeConfig{SecretKey: "sk_test", WebhookSecret: "whsec_test"}, newFakeSubscriptions())

	err := s.HandleWebhook([]byte(`{"id":"evt_1","type":"customer.subscription.deleted"}`), http.Header{})
	if err == nil {
		t.Fatal("HandleWebhook() accepted a payload without signature")
	}
}
