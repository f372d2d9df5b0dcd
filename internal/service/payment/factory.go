package payment

import (
	"fmt"
	"log/slog"

	"github.com/soberly/recovery/internal/config"
	"github.com/soberly/recovery/internal/model"
)

// NewProvider creates a payment provider based on configuration. It returns
// nil when billing is not configured.
func NewProvider(cfg *config.Config, subs Subscriptions) (Provider, error) {
	provider := cfg.PaymentProvider
	if provider == "" {
		slog.Info("no payment provider configured, billing disabled")
		return nil, nil
	}

	slog.Info("initializing payment provider", "provider", provider)

	switch provider {
	case model.ProviderPolar:
		if cfg.PolarAPIKey == "" {
			return nil, fmt.Errorf("POLAR_API_KEY is required when using Polar provider")
		}
		return NewPolarProvider(PolarConfig{
			APIKey:        cfg.PolarAPIKey,
			WebhookSecret: cfg.PolarWebhookSecret,
			Sandbox:       cfg.PolarSandboxMode,
			AppURL:        cfg.AppURL,
			Products: Products{
				Monthly: cfg.PolarProductIDPremiumMonthly,
				Yearly:  cfg.PolarProductIDPremiumYearly,
			},
		}, subs), nil

	case model.ProviderStripe:
		if cfg.StripeSecretKey == "" {
			return nil, fmt.Errorf("STRIPE_SECRET_KEY is required when using Stripe provider")
		}
		if cfg.StripeWebhookSecret == "" {
			return nil, fmt.Errorf("STRIPE_WEBHOOK_SECRET is required when using Stripe provider")
		}
		return NewStripeProvider(StripeConfig{
			SecretKey:     cfg.StripeSecretKey,
			WebhookSecret: cfg.StripeWebhookSecret,
			AppURL:        cfg.AppURL,
			Prices: Products{
				Monthly: cfg.StripePriceIDPremiumMonthly,
				Yearly:  cfg.StripePriceIDPremiumYearly,
			},
		}, subs), nil

	default:
		return nil, fmt.Errorf("unknown payment provider: %s (supported: polar, stripe)", provider)
	}
}
