package api

import (
	"fmt"
	"net/http"

	"github.com/mihaimyh/goentitle/pkg/billing"
	"github.com/mihaimyh/goentitle/pkg/entitle"
	"github.com/mihaimyh/goentitle/pkg/premium"
)

// SessionHeader is the header the client sends its session identifier in
const SessionHeader = "X-Session-ID"

// Config holds configuration for the payments API handler
type Config struct {
	// Manager is the premium ledger (required)
	Manager *premium.Manager

	// GetUserID extracts user ID from HTTP request (required).
	// An empty result means the caller is anonymous.
	GetUserID func(*http.Request) string

	// GetEmail optionally extracts the caller's email for checkout prefill
	GetEmail func(*http.Request) string

	// Catalog lists purchasable products. It is always served through a
	// billing.FallbackCatalog so /products never fails.
	// If nil, the fixed fallback catalog is served.
	Catalog billing.Catalog

	// FallbackProducts replaces entitle.FallbackCatalog() as the fallback
	FallbackProducts []entitle.Product

	// IntentCreator starts card payments. If nil, /create-intent answers 503
	IntentCreator billing.IntentCreator

	// ReceiptVerifier checks store receipts. If nil, /verify-purchase answers 503
	ReceiptVerifier billing.ReceiptVerifier

	// Provider serves /webhook when set
	Provider billing.Provider

	// Origin is used for checkout return URLs when the request has no Origin header
	Origin string

	// MaxBodyBytes limits JSON request bodies. Default: 64KB
	MaxBodyBytes int64

	// OnError handles errors (auth, internal, etc.)
	// If nil, writes {"success":false,"error":...}
	OnError func(http.ResponseWriter, *http.Request, error, int)

	// Logger is optional. Default: NoopLogger
	Logger entitle.Logger
}

// Validate checks that the configuration is valid
func (c *Config) Validate() error {
	if c.Manager == nil {
		return fmt.Errorf("manager is required")
	}
	if c.GetUserID == nil {
		return fmt.Errorf("getUserID is required")
	}
	return nil
}

// NewHandler creates a new payments API handler with the given configuration
func NewHandler(config Config) (*Handler, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	if config.Logger == nil {
		config.Logger = &entitle.NoopLogger{}
	}
	if config.MaxBodyBytes <= 0 {
		config.MaxBodyBytes = 64 * 1024
	}
	if len(config.FallbackProducts) == 0 {
		config.FallbackProducts = entitle.FallbackCatalog()
	}

	h := &Handler{
		config: config,
		catalog: &billing.FallbackCatalog{
			Primary:  config.Catalog,
			Fallback: config.FallbackProducts,
			Logger:   config.Logger,
		},
	}
	h.router = h.routes()
	return h, nil
}

// Helper functions for common UserID extraction patterns

// FromHeader returns a GetUserID function that extracts user ID from a header
func FromHeader(headerName string) func(*http.Request) string {
	return func(r *http.Request) string {
		return r.Header.Get(headerName)
	}
}

// FromContext returns a GetUserID function that extracts user ID from request context
func FromContext(key interface{}) func(*http.Request) string {
	return func(r *http.Request) string {
		if userID, ok := r.Context().Value(key).(string); ok {
			return userID
		}
		return ""
	}
}
