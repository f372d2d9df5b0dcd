package payment

import (
	"errors"
	"net/http"

	"github.com/soberly/recovery/internal/model"
)

var (
	ErrNoCustomer      = errors.New("no customer portal available for free subscriptions")
	ErrUnknownInterval = errors.New("no product configured for billing interval")
)

// Provider defines the interface that all payment providers must implement
type Provider interface {
	// CreateCheckoutURL starts a premium checkout and returns the hosted page URL
	CreateCheckoutURL(userID, interval, customerEmail string) (string, error)

	// CustomerPortalURL creates a customer portal session and returns the URL
	CustomerPortalURL(userID string) (string, error)

	// HandleWebhook verifies and applies a webhook event from the provider
	HandleWebhook(payload []byte, headers http.Header) error

	// Name returns the provider name (e.g., "polar", "stripe")
	Name() string
}

// Subscriptions is the subscription store webhooks write through.
type Subscriptions interface {
	Subscription(userID string) (*model.Subscription, error)
	ByProviderSubscriptionID(providerSubID string) (*model.Subscription, error)
	ByProviderCustomerID(customerID string) (*model.Subscription, error)
	UpdateSubscription(sub *model.Subscription) error
	DowngradeToFree(sub *model.Subscription) error
}

// Products holds the provider's product or price ID for each premium interval.
type Products struct {
	Monthly string
	Yearly  string
}

func (p Products) ID(interval string) string {
	switch interval {
	case model.SubscriptionIntervalMonthly:
		return p.Monthly
	case model.SubscriptionIntervalYearly:
		return p.Yearly
	default:
		return ""
	}
}

// Plan returns the local plan for a provider product ID, or "" when the
// product is not one of ours.
func (p Products) Plan(id string) string {
	if id != "" && (id == p.Monthly || id == p.Yearly) {
		return model.SubscriptionPlanPremium
	}
	return ""
}

func billingURL(appURL string) string {
	return appURL + "/billing"
}

// mapStatus folds provider subscription states into active or cancelled.
// Unknown states pass through.
func mapStatus(status string) string {
	switch status {
	case "active", "trialing":
		return model.SubscriptionStatusActive
	case "canceled", "incomplete_expired", "unpaid":
		return model.SubscriptionStatusCancelled
	default:
		return status
	}
}

func mapInterval(interval string) string {
	switch interval {
	case "month":
		return model.SubscriptionIntervalMonthly
	case "year":
		return model.SubscriptionIntervalYearly
	default:
		return interval
	}
}
