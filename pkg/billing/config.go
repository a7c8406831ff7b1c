package billing

import (
	"context"
	"net/http"

	"github.com/mihaimyh/goentitle/pkg/entitle"
)

// Config defines the standard configuration all providers accept
type Config struct {
	// Ledger receives grants and revokes derived from provider events
	Ledger Ledger

	// WebhookSecret is used to verify incoming webhook requests
	WebhookSecret string

	// APIKey is used for outbound API calls to the billing provider
	APIKey string

	// HTTPClient is an optional HTTP client for API calls.
	// If nil, a default client with 10s timeout will be used.
	HTTPClient *http.Client

	// WebhookCallback is called after a webhook changed a user's entitlement.
	// Errors are logged and do not fail the webhook.
	WebhookCallback func(ctx context.Context, event WebhookEvent) error

	// Logger is optional. Default: NoopLogger
	Logger entitle.Logger

	// Metrics is an optional metrics collector for tracking billing provider operations.
	// Use billing/metrics/prometheus.DefaultMetrics(namespace) for Prometheus metrics.
	Metrics Metrics
}

// Defaults fills optional fields
func (c *Config) Defaults() {
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: DefaultHTTPTimeout}
	}
	if c.Logger == nil {
		c.Logger = &entitle.NoopLogger{}
	}
	if c.Metrics == nil {
		c.Metrics = &NoopMetrics{}
	}
}
