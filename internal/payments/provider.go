package payments

import (
	"fmt"
	"strings"

	"github.com/wolfman30/mealprep-intake/internal/orders"
	"github.com/wolfman30/mealprep-intake/pkg/logging"
)

// Provider mints authorizations and can confirm captures.
type Provider interface {
	orders.Authorizer
	orders.CaptureVerifier
}

// ProviderConfig selects and configures the payment provider.
type ProviderConfig struct {
	// Name is "stripe" or "fake". Empty means "fake" outside production.
	Name              string
	StripeSecretKey   string
	StripeBaseURL     string
	AllowFakePayments bool
	Production        bool
}

// ProviderMode normalizes a provider name. Modes:
// - "stripe": Stripe PaymentIntents
// - "fake" (or "dev", "demo"): FakeAuthorizer
// - "auto" or empty: stripe when a secret key is set, otherwise fake
func ProviderMode(name, stripeKey string) string {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "stripe":
		return ProviderStripe
	case "fake", "dev", "demo":
		return ProviderFake
	default:
		if strings.TrimSpace(stripeKey) != "" {
			return ProviderStripe
		}
		return ProviderFake
	}
}

// NewProvider builds the provider named by cfg.
func NewProvider(cfg ProviderConfig, logger *logging.Logger) (Provider, error) {
	if logger == nil {
		logger = logging.Default()
	}
	switch ProviderMode(cfg.Name, cfg.StripeSecretKey) {
	case ProviderStripe:
		if cfg.StripeSecretKey == "" {
			return nil, fmt.Errorf("payments: stripe provider requires STRIPE_SECRET_KEY")
		}
		return NewStripeIntentService(cfg.StripeSecretKey, logger).WithBaseURL(cfg.StripeBaseURL), nil
	default:
		if cfg.Production && !cfg.AllowFakePayments {
			return nil, fmt.Errorf("payments: fake provider is disabled in production (set ALLOW_FAKE_PAYMENTS)")
		}
		logger.Warn("using fake payment provider")
		return NewFakeAuthorizer(logger), nil
	}
}

var (
	_ Provider = (*StripeIntentService)(nil)
	_ Provider = (*FakeAuthorizer)(nil)
)
