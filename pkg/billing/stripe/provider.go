// Package stripe implements the Stripe billing provider: catalog, payment
// intents and checkout sessions, and the webhook that feeds the premium ledger.
package stripe

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/stripe/stripe-go/v83"

	"github.com/mihaimyh/goentitle/pkg/billing"
	"github.com/mihaimyh/goentitle/pkg/billing/internal"
	"github.com/mihaimyh/goentitle/pkg/entitle"
)

const (
	providerName             = "stripe"
	defaultRateLimitWindow   = time.Minute
	defaultRateLimitRequests = 100
	defaultProductFilter     = "Premium"
	defaultOrigin            = "https://your-app.com"
	maxWebhookBody           = 256 * 1024
)

// Config extends billing.Config with Stripe-specific options
type Config struct {
	billing.Config // Base config (Ledger, WebhookSecret, APIKey, etc.)

	// ProductFilter keeps catalog products whose name contains it. Default: "Premium"
	ProductFilter string

	// ProductMapping maps Stripe product ids to ledger product ids
	// (e.g., "prod_123" -> "premium_monthly"). Unmapped ids are used as-is.
	ProductMapping map[string]string

	// DefaultOrigin builds checkout return URLs when the request has no Origin.
	// Default: "https://your-app.com"
	DefaultOrigin string
}

// Provider implements billing.Provider, billing.Catalog and billing.IntentCreator for Stripe
type Provider struct {
	api           stripeAPI
	ledger        billing.Ledger
	webhookSecret string
	filter        string
	mapping       map[string]string
	origin        string
	callback      func(context.Context, billing.WebhookEvent) error
	rateLimiter   *internal.RateLimiter
	logger        entitle.Logger
	metrics       billing.Metrics
}

var (
	_ billing.Provider      = (*Provider)(nil)
	_ billing.Catalog       = (*Provider)(nil)
	_ billing.IntentCreator = (*Provider)(nil)
)

// NewProvider creates a new Stripe billing provider
func NewProvider(config Config) (*Provider, error) {
	apiKey := strings.TrimSpace(config.APIKey)
	if apiKey == "" {
		return nil, billing.ErrProviderNotConfigured
	}
	config.Defaults()

	backends := stripe.NewBackendsWithConfig(&stripe.BackendConfig{HTTPClient: config.HTTPClient})
	return newProvider(config, &clientAPI{client: stripe.NewClient(apiKey, stripe.WithBackends(backends))})
}

func newProvider(config Config, api stripeAPI) (*Provider, error) {
	if config.Ledger == nil {
		return nil, billing.ErrProviderNotConfigured
	}
	config.Defaults()
	if config.ProductFilter == "" {
		config.ProductFilter = defaultProductFilter
	}
	if config.DefaultOrigin == "" {
		config.DefaultOrigin = defaultOrigin
	}

	mapping := make(map[string]string, len(config.ProductMapping))
	for k, v := range config.ProductMapping {
		mapping[strings.TrimSpace(k)] = v
	}

	return &Provider{
		api:           api,
		ledger:        config.Ledger,
		webhookSecret: strings.TrimSpace(config.WebhookSecret),
		filter:        config.ProductFilter,
		mapping:       mapping,
		origin:        strings.TrimRight(config.DefaultOrigin, "/"),
		callback:      config.WebhookCallback,
		rateLimiter:   internal.NewRateLimiter(defaultRateLimitRequests, defaultRateLimitWindow),
		logger:        config.Logger,
		metrics:       config.Metrics,
	}, nil
}

// Name returns the provider name
func (p *Provider) Name() string {
	return providerName
}

// WebhookHandler returns the rate-limited HTTP handler for Stripe webhooks
func (p *Provider) WebhookHandler() http.Handler {
	return p.rateLimiter.Middleware(http.HandlerFunc(p.handleWebhook))
}

// ledgerProductID maps a Stripe product id to the ledger's product id
func (p *Provider) ledgerProductID(stripeProductID string) string {
	if id, ok := p.mapping[stripeProductID]; ok {
		return id
	}
	return stripeProductID
}

// call records metrics around one Stripe API call
func (p *Provider) call(endpoint string, fn func() error) error {
	start := time.Now()
	err := fn()
	status := "success"
	if err != nil {
		status = "error"
	}
	p.metrics.RecordAPICall(providerName, endpoint, status)
	p.metrics.RecordAPICallDuration(providerName, endpoint, time.Since(start))
	return err
}
