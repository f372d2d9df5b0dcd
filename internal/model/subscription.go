package model

import (
	"fmt"
	"slices"
	"time"
)

type Subscription struct {
	ID                     string     `db:"id" json:"id"`
	UserID                 string     `db:"user_id" json:"-"`
	PlanID                 string     `db:"plan_id" json:"plan"`
	Status                 string     `db:"status" json:"status"`
	Provider               string     `db:"provider" json:"provider"`
	ProviderCustomerID     *string    `db:"provider_customer_id" json:"-"`
	ProviderSubscriptionID *string    `db:"provider_subscription_id" json:"-"`
	CurrentPeriodEnd       *time.Time `db:"current_period_end" json:"currentPeriodEnd"`
	Amount                 *int       `db:"amount" json:"amount"`
	Currency               string     `db:"currency" json:"currency"`
	Interval               *string    `db:"interval" json:"interval"`
	CreatedAt              time.Time  `db:"created_at" json:"createdAt"`
	UpdatedAt              time.Time  `db:"updated_at" json:"updatedAt"`
}

const (
	SubscriptionStatusActive    = "active"
	SubscriptionStatusCancelled = "cancelled"
)

const (
	ProviderPolar  = "polar"
	ProviderStripe = "stripe"
)

const (
	SubscriptionPlanFree    = "free"
	SubscriptionPlanPremium = "premium"
)

const (
	SubscriptionIntervalMonthly = "monthly"
	SubscriptionIntervalYearly  = "yearly"
)

const (
	FeatureExport            = "export"
	FeatureAdvancedAnalytics = "advanced_analytics"
)

func (s *Subscription) IsActive() bool {
	return s.Status == SubscriptionStatusActive
}

func (s *Subscription) IsPaid() bool {
	return s.PlanID != SubscriptionPlanFree && s.IsActive()
}

func (s *Subscription) FormatPrice() string {
	if s.Amount == nil || *s.Amount == 0 {
		return ""
	}

	currencySymbols := map[string]string{
		"usd": "$",
		"eur": "€",
		"gbp": "£",
	}

	amount := float64(*s.Amount) / 100.0
	symbol := currencySymbols[s.Currency]
	if symbol == "" {
		symbol = "$"
	}

	interval := "month"
	if s.Interval != nil && *s.Interval == SubscriptionIntervalYearly {
		interval = "year"
	}

	return fmt.Sprintf("%s%.0f/%s", symbol, amount, interval)
}

// HasFeature checks if the subscription has access to a specific feature
func (s *Subscription) HasFeature(feature string) bool {
	if !s.IsActive() {
		return false
	}

	features := map[string][]string{
		SubscriptionPlanFree: {},
		SubscriptionPlanPremium: {
			FeatureExport,
			FeatureAdvancedAnalytics,
		},
	}

	planFeatures, exists := features[s.PlanID]
	if !exists {
		return false
	}

	return slices.Contains(planFeatures, feature)
}
