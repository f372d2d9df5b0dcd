package payment

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	polargo "github.com/polarsource/polar-go"
	"github.com/polarsource/polar-go/models/components"
	"github.com/polarsource/polar-go/models/operations"
	"github.com/soberly/recovery/internal/model"
	standardwebhooks "github.com/standard-webhooks/standard-webhooks/libraries/go"
)

type PolarConfig struct {
	APIKey        string
	WebhookSecret string
	Sandbox       bool
	AppURL        string
	Products      Products
}

type PolarProvider struct {
	cfg    PolarConfig
	subs   Subscriptions
	client *polargo.Polar
}

func NewPolarProvider(cfg PolarConfig, subs Subscriptions) *PolarProvider {
	server := polargo.ServerProduction
	if cfg.Sandbox {
		server = polargo.ServerSandbox
	}
	slog.Info("polar provider initialized", "sandbox", cfg.Sandbox)

	return &PolarProvider{
		cfg:  cfg,
		subs: subs,
		client: polargo.New(
			polargo.WithSecurity(cfg.APIKey),
			polargo.WithServer(server),
		),
	}
}

func (p *PolarProvider) Name() string {
	return model.ProviderPolar
}

func (p *PolarProvider) CreateCheckoutURL(userID, interval, customerEmail string) (string, error) {
	sub, err := p.subs.Subscription(userID)
	if err != nil {
		return "", fmt.Errorf("failed to get subscription: %w", err)
	}

	productID := p.cfg.Products.ID(interval)
	if productID == "" {
		return "", fmt.Errorf("%w: %s", ErrUnknownInterval, interval)
	}

	res, err := p.client.Checkouts.Create(context.Background(), components.CheckoutCreate{
		Products:           []string{productID},
		SuccessURL:         polargo.String(billingURL(p.cfg.AppURL)),
		ReturnURL:          polargo.String(billingURL(p.cfg.AppURL)),
		CustomerEmail:      polargo.String(customerEmail),
		AllowDiscountCodes: polargo.Bool(true),
		Metadata: map[string]components.CheckoutCreateMetadata{
			"user_id":         components.CreateCheckoutCreateMetadataStr(userID),
			"subscription_id": components.CreateCheckoutCreateMetadataStr(sub.ID),
		},
	})
	if err != nil {
		return "", fmt.Errorf("failed to create checkout: %w", err)
	}
	if res == nil || res.Checkout == nil {
		return "", fmt.Errorf("checkout response is nil")
	}

	slog.Info("polar checkout created", "user_id", userID, "interval", interval, "checkout_id", res.Checkout.ID)
	return res.Checkout.URL, nil
}

func (p *PolarProvider) CustomerPortalURL(userID string) (string, error) {
	sub, err := p.subs.Subscription(userID)
	if err != nil {
		return "", fmt.Errorf("failed to get subscription: %w", err)
	}
	if sub.ProviderCustomerID == nil || *sub.ProviderCustomerID == "" {
		return "", ErrNoCustomer
	}

	res, err := p.client.CustomerSessions.Create(context.Background(),
		operations.CreateCustomerSessionsCreateCustomerSessionCreateCustomerSessionCustomerIDCreate(
			components.CustomerSessionCustomerIDCreate{
				CustomerID: *sub.ProviderCustomerID,
				ReturnURL:  polargo.String(billingURL(p.cfg.AppURL)),
			},
		))
	if err != nil {
		return "", fmt.Errorf("failed to create customer portal session: %w", err)
	}
	if res == nil || res.CustomerSession == nil {
		return "", fmt.Errorf("customer portal response is nil")
	}

	slog.Info("polar customer portal session created", "user_id", userID)
	return res.CustomerSession.CustomerPortalURL, nil
}

func (p *PolarProvider) HandleWebhook(payload []byte, headers http.Header) error {
	if p.cfg.WebhookSecret == "" {
		slog.Warn("polar no webhook secret configured, skipping signature verification")
	} else {
		wh, err := standardwebhooks.NewWebhookRaw([]byte(p.cfg.WebhookSecret))
		if err != nil {
			return fmt.Errorf("failed to create webhook verifier: %w", err)
		}
		err = wh.Verify(payload, headers)
		if err != nil {
			return fmt.Errorf("invalid webhook signature: %w", err)
		}
	}

	var event struct {
		Type string          `json:"type"`
		Data json.RawMessage `json:"data"`
	}
	err := json.Unmarshal(payload, &event)
	if err != nil {
		return fmt.Errorf("failed to parse webhook: %w", err)
	}

	slog.Info("polar webhook received", "event_type", event.Type)
	if !strings.HasPrefix(event.Type, "subscription.") {
		return nil
	}

	var subscription polarSubscription
	err = json.Unmarshal(event.Data, &subscription)
	if err != nil {
		return fmt.Errorf("failed to parse subscription data: %w", err)
	}

	switch event.Type {
	case "subscription.created":
		return p.subscriptionCreated(subscription)
	case "subscription.updated":
		return p.subscriptionUpdated(subscription)
	case "subscription.canceled":
		return p.setStatus(subscription, model.SubscriptionStatusCancelled)
	case "subscription.uncanceled":
		return p.setStatus(subscription, model.SubscriptionStatusActive)
	case "subscription.revoked":
		return p.subscriptionRevoked(subscription)
	default:
		slog.Warn("polar webhook unknown event type", "event_type", event.Type)
		return nil
	}
}

type polarSubscription struct {
	ID                string            `json:"id"`
	CustomerID        string            `json:"customer_id"`
	ProductID         string            `json:"product_id"`
	Amount            *int              `json:"amount"`
	Currency          *string           `json:"currency"`
	RecurringInterval *string           `json:"recurring_interval"`
	Status            string            `json:"status"`
	CurrentPeriodEnd  *string           `json:"current_period_end"`
	EndedAt           *string           `json:"ended_at"`
	Metadata          map[string]string `json:"metadata"`
}

// apply copies billing details onto sub.
func (ps polarSubscription) apply(sub *model.Subscription, products Products) {
	if plan := products.Plan(ps.ProductID); plan != "" {
		sub.PlanID = plan
	}
	sub.ProviderSubscriptionID = &ps.ID
	if ps.Amount != nil {
		sub.Amount = ps.Amount
	}
	if ps.Currency != nil {
		sub.Currency = *ps.Currency
	}
	if ps.RecurringInterval != nil {
		interval := mapInterval(*ps.RecurringInterval)
		sub.Interval = &interval
	}
	if ps.CurrentPeriodEnd != nil {
		periodEnd, err := time.Parse(time.RFC3339, *ps.CurrentPeriodEnd)
		if err == nil {
			periodEnd = periodEnd.UTC()
			sub.CurrentPeriodEnd = &periodEnd
		}
	}
}

func (p *PolarProvider) subscriptionCreated(ps polarSubscription) error {
	userID := ps.Metadata["user_id"]
	if userID == "" {
		slog.Warn("polar webhook no user_id in subscription metadata, skipping")
		return nil
	}

	sub, err := p.subs.Subscription(userID)
	if err != nil {
		return fmt.Errorf("failed to get subscription: %w", err)
	}

	ps.apply(sub, p.cfg.Products)
	sub.PlanID = model.SubscriptionPlanPremium
	sub.Provider = model.ProviderPolar
	sub.ProviderCustomerID = &ps.CustomerID
	sub.Status = model.SubscriptionStatusActive

	err = p.subs.UpdateSubscription(sub)
	if err != nil {
		return fmt.Errorf("failed to update subscription: %w", err)
	}

	slog.Info("polar subscription created", "user_id", userID, "polar_sub_id", ps.ID)
	return nil
}

func (p *PolarProvider) subscriptionUpdated(ps polarSubscription) error {
	sub, err := p.subs.ByProviderSubscriptionID(ps.ID)
	if err != nil {
		slog.Warn("polar subscription not found, skipping update", "polar_sub_id", ps.ID)
		return nil
	}

	if ps.EndedAt != nil {
		err = p.subs.DowngradeToFree(sub)
		if err != nil {
			return fmt.Errorf("failed to downgrade subscription: %w", err)
		}
		slog.Info("polar subscription ended, downgraded to free", "user_id", sub.UserID, "polar_sub_id", ps.ID)
		return nil
	}

	ps.apply(sub, p.cfg.Products)
	if ps.Status != "" {
		sub.Status = mapStatus(ps.Status)
	}

	err = p.subs.UpdateSubscription(sub)
	if err != nil {
		return fmt.Errorf("failed to update subscription: %w", err)
	}

	slog.Info("polar subscription updated", "user_id", sub.UserID, "polar_sub_id", ps.ID, "status", sub.Status)
	return nil
}

// setStatus handles cancel and uncancel. A cancelled subscription keeps its
// plan until the period ends.
func (p *PolarProvider) setStatus(ps polarSubscription, status string) error {
	sub, err := p.subs.ByProviderSubscriptionID(ps.ID)
	if err != nil {
		slog.Warn("polar subscription not found, ignoring status change", "polar_sub_id", ps.ID, "status", status)
		return nil
	}
	if sub.PlanID == model.SubscriptionPlanFree {
		return nil
	}

	sub.Status = status
	if ps.CurrentPeriodEnd != nil {
		periodEnd, err := time.Parse(time.RFC3339, *ps.CurrentPeriodEnd)
		if err == nil {
			periodEnd = periodEnd.UTC()
			sub.CurrentPeriodEnd = &periodEnd
		}
	}

	err = p.subs.UpdateSubscription(sub)
	if err != nil {
		return fmt.Errorf("failed to update subscription: %w", err)
	}

	slog.Info("polar subscription status changed", "user_id", sub.UserID, "polar_sub_id", ps.ID, "status", status)
	return nil
}

func (p *PolarProvider) subscriptionRevoked(ps polarSubscription) error {
	sub, err := p.subs.ByProviderSubscriptionID(ps.ID)
	if err != nil {
		slog.Warn("polar subscription not found, ignoring revoked event", "polar_sub_id", ps.ID)
		return nil
	}
	if sub.PlanID == model.SubscriptionPlanFree {
		return nil
	}

	err = p.subs.DowngradeToFree(sub)
	if err != nil {
		return fmt.Errorf("failed to downgrade subscription: %w", err)
	}

	slog.Info("polar subscription revoked, downgraded to free", "user_id", sub.UserID, "polar_sub_id", ps.ID)
	return nil
}
