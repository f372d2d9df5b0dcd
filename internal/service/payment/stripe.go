package payment

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/soberly/recovery/internal/model"
	"github.com/stripe/stripe-go/v81"
	portalsession "github.com/stripe/stripe-go/v81/billingportal/session"
	checkoutsession "github.com/stripe/stripe-go/v81/checkout/session"
	"github.com/stripe/stripe-go/v81/webhook"
)

type StripeConfig struct {
	SecretKey     string
	WebhookSecret string
	AppURL        string
	Prices        Products
}

type StripeProvider struct {
	cfg  StripeConfig
	subs Subscriptions
}

func NewStripeProvider(cfg StripeConfig, subs Subscriptions) *StripeProvider {
	stripe.Key = cfg.SecretKey
	slog.Info("stripe provider initialized")
	return &StripeProvider{cfg: cfg, subs: subs}
}

func (s *StripeProvider) Name() string {
	return model.ProviderStripe
}

func (s *StripeProvider) CreateCheckoutURL(userID, interval, customerEmail string) (string, error) {
	sub, err := s.subs.Subscription(userID)
	if err != nil {
		return "", fmt.Errorf("failed to get subscription: %w", err)
	}

	priceID := s.cfg.Prices.ID(interval)
	if priceID == "" {
		return "", fmt.Errorf("%w: %s", ErrUnknownInterval, interval)
	}

	params := &stripe.CheckoutSessionParams{
		Mode:       stripe.String(string(stripe.CheckoutSessionModeSubscription)),
		SuccessURL: stripe.String(billingURL(s.cfg.AppURL) + "?session_id={CHECKOUT_SESSION_ID}"),
		CancelURL:  stripe.String(billingURL(s.cfg.AppURL)),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{Price: stripe.String(priceID), Quantity: stripe.Int64(1)},
		},
		CustomerEmail: stripe.String(customerEmail),
		Metadata: map[string]string{
			"user_id":         userID,
			"subscription_id": sub.ID,
		},
		AllowPromotionCodes: stripe.Bool(true),
	}

	sess, err := checkoutsession.New(params)
	if err != nil {
		return "", fmt.Errorf("failed to create checkout session: %w", err)
	}

	slog.Info("stripe checkout created", "user_id", userID, "interval", interval, "session_id", sess.ID)
	return sess.URL, nil
}

func (s *StripeProvider) CustomerPortalURL(userID string) (string, error) {
	sub, err := s.subs.Subscription(userID)
	if err != nil {
		return "", fmt.Errorf("failed to get subscription: %w", err)
	}
	if sub.ProviderCustomerID == nil || *sub.ProviderCustomerID == "" {
		return "", ErrNoCustomer
	}

	portalSession, err := portalsession.New(&stripe.BillingPortalSessionParams{
		Customer:  stripe.String(*sub.ProviderCustomerID),
		ReturnURL: stripe.String(billingURL(s.cfg.AppURL)),
	})
	if err != nil {
		return "", fmt.Errorf("failed to create customer portal session: %w", err)
	}

	slog.Info("stripe customer portal session created", "user_id", userID)
	return portalSession.URL, nil
}

func (s *StripeProvider) HandleWebhook(payload []byte, headers http.Header) error {
	// Stripe API versions are backwards compatible for the fields we read.
	event, err := webhook.ConstructEventWithOptions(
		payload,
		headers.Get("Stripe-Signature"),
		s.cfg.WebhookSecret,
		webhook.ConstructEventOptions{IgnoreAPIVersionMismatch: true},
	)
	if err != nil {
		return fmt.Errorf("failed to verify webhook signature: %w", err)
	}

	slog.Info("stripe webhook received", "event_type", event.Type)

	switch event.Type {
	case "checkout.session.completed":
		return s.checkoutCompleted(event.Data.Raw)
	case "customer.subscription.created":
		return s.subscriptionChanged(event.Data.Raw, true)
	case "customer.subscription.updated":
		return s.subscriptionChanged(event.Data.Raw, false)
	case "customer.subscription.deleted":
		return s.subscriptionDeleted(event.Data.Raw)
	case "invoice.payment_succeeded", "invoice.payment_failed":
		return s.invoicePaid(event.Data.Raw, event.Type == "invoice.payment_succeeded")
	default:
		slog.Warn("stripe webhook unknown event type", "event_type", event.Type)
		return nil
	}
}

type stripeSubscription struct {
	ID                string `json:"id"`
	CustomerID        string `json:"customer"`
	Status            string `json:"status"`
	CurrentPeriodEnd  int64  `json:"current_period_end"`
	CancelAtPeriodEnd bool   `json:"cancel_at_period_end"`
	Items             struct {
		Data []struct {
			Price struct {
				ID         string `json:"id"`
				UnitAmount int64  `json:"unit_amount"`
				Currency   string `json:"currency"`
				Recurring  struct {
					Interval string `json:"interval"`
				} `json:"recurring"`
			} `json:"price"`
		} `json:"data"`
	} `json:"items"`
}

func (s *StripeProvider) checkoutCompleted(data json.RawMessage) error {
	var session struct {
		CustomerID string            `json:"customer"`
		Metadata   map[string]string `json:"metadata"`
	}
	err := json.Unmarshal(data, &session)
	if err != nil {
		return fmt.Errorf("failed to parse checkout session: %w", err)
	}

	userID := session.Metadata["user_id"]
	if userID == "" {
		slog.Warn("stripe checkout session has no user_id in metadata, skipping")
		return nil
	}

	sub, err := s.subs.Subscription(userID)
	if err != nil {
		return fmt.Errorf("failed to get subscription: %w", err)
	}

	// The customer ID links the subscription events that follow.
	sub.Provider = model.ProviderStripe
	sub.ProviderCustomerID = &session.CustomerID
	err = s.subs.UpdateSubscription(sub)
	if err != nil {
		return fmt.Errorf("failed to update subscription: %w", err)
	}

	slog.Info("stripe checkout completed", "user_id", userID, "customer_id", session.CustomerID)
	return nil
}

// subscriptionChanged applies a created or updated subscription. Created
// events are matched by customer, updates by subscription ID.
func (s *StripeProvider) subscriptionChanged(data json.RawMessage, created bool) error {
	var subscription stripeSubscription
	err := json.Unmarshal(data, &subscription)
	if err != nil {
		return fmt.Errorf("failed to parse subscription: %w", err)
	}

	var sub *model.Subscription
	if created {
		sub, err = s.subs.ByProviderCustomerID(subscription.CustomerID)
	} else {
		sub, err = s.subs.ByProviderSubscriptionID(subscription.ID)
	}
	if err != nil {
		slog.Warn("stripe subscription not found, skipping", "stripe_sub_id", subscription.ID, "customer_id", subscription.CustomerID)
		return nil
	}

	if len(subscription.Items.Data) > 0 {
		price := subscription.Items.Data[0].Price
		if plan := s.cfg.Prices.Plan(price.ID); plan != "" {
			sub.PlanID = plan
		}
		amount := int(price.UnitAmount)
		sub.Amount = &amount
		sub.Currency = price.Currency
		interval := mapInterval(price.Recurring.Interval)
		sub.Interval = &interval
	} else if created {
		return fmt.Errorf("subscription has no items")
	}

	sub.Provider = model.ProviderStripe
	sub.ProviderSubscriptionID = &subscription.ID
	sub.Status = mapStatus(subscription.Status)
	if subscription.CancelAtPeriodEnd {
		sub.Status = model.SubscriptionStatusCancelled
	}
	periodEnd := time.Unix(subscription.CurrentPeriodEnd, 0).UTC()
	sub.CurrentPeriodEnd = &periodEnd

	err = s.subs.UpdateSubscription(sub)
	if err != nil {
		return fmt.Errorf("failed to update subscription: %w", err)
	}

	slog.Info("stripe subscription saved", "user_id", sub.UserID, "stripe_sub_id", subscription.ID, "status", sub.Status)
	return nil
}

func (s *StripeProvider) subscriptionDeleted(data json.RawMessage) error {
	var subscription struct {
		ID string `json:"id"`
	}
	err := json.Unmarshal(data, &subscription)
	if err != nil {
		return fmt.Errorf("failed to parse subscription: %w", err)
	}

	sub, err := s.subs.ByProviderSubscriptionID(subscription.ID)
	if err != nil {
		slog.Warn("stripe subscription not found, ignoring deletion", "stripe_sub_id", subscription.ID)
		return nil
	}
	if sub.PlanID == model.SubscriptionPlanFree {
		return nil
	}

	err = s.subs.DowngradeToFree(sub)
	if err != nil {
		return fmt.Errorf("failed to downgrade subscription: %w", err)
	}

	slog.Info("stripe subscription deleted, downgraded to free", "user_id", sub.UserID, "stripe_sub_id", subscription.ID)
	return nil
}

// invoicePaid reactivates a subscription after a successful payment. Failed
// payments are only logged; Stripe retries and eventually deletes.
func (s *StripeProvider) invoicePaid(data json.RawMessage, succeeded bool) error {
	var invoice struct {
		SubscriptionID string `json:"subscription"`
	}
	err := json.Unmarshal(data, &invoice)
	if err != nil {
		return fmt.Errorf("failed to parse invoice: %w", err)
	}
	if invoice.SubscriptionID == "" {
		return nil
	}

	sub, err := s.subs.ByProviderSubscriptionID(invoice.SubscriptionID)
	if err != nil {
		slog.Warn("stripe invoice has unknown subscription, skipping", "subscription_id", invoice.SubscriptionID)
		return nil
	}

	if !succeeded {
		slog.Warn("stripe invoice payment failed", "user_id", sub.UserID, "subscription_id", invoice.SubscriptionID)
		return nil
	}

	if sub.Status != model.SubscriptionStatusActive {
		sub.Status = model.SubscriptionStatusActive
		err = s.subs.UpdateSubscription(sub)
		if err != nil {
			return fmt.Errorf("failed to update subscription: %w", err)
		}
	}
	return nil
}
