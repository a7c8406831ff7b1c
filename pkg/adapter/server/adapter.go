// Package server implements the card payment adapter backed by the payments API.
package server

import (
	"context"
	"fmt"

	"golang.org/x/sync/singleflight"

	"github.com/mihaimyh/goentitle/pkg/entitle"
)

// Backend is the remote payments API. *remote.Client satisfies it.
type Backend interface {
	Products(ctx context.Context) ([]entitle.Product, error)
	CreatePaymentIntent(ctx context.Context, productID string) (entitle.PaymentIntent, error)
	SubscriptionStatus(ctx context.Context) (entitle.SubscriptionStatus, error)
}

// Config configures the server adapter
type Config struct {
	// Backend is the payments API (required)
	Backend Backend

	// Checkout presents payment intents (required)
	Checkout Checkout

	// Platform reported for this adapter. Default: web
	Platform entitle.Platform

	// Fallback is served when the remote catalog is unavailable.
	// Default: entitle.FallbackCatalog()
	Fallback []entitle.Product

	// Logger is optional. Default: NoopLogger
	Logger entitle.Logger

	// Metrics is optional. Default: NoopMetrics
	Metrics entitle.Metrics
}

// Adapter sells through the server-side payment provider. Entitlement is
// granted by the server (webhook), so results are never verified locally.
type Adapter struct {
	backend  Backend
	checkout Checkout
	platform entitle.Platform
	fallback []entitle.Product
	logger   entitle.Logger
	metrics  entitle.Metrics
	group    singleflight.Group
}

var _ entitle.Adapter = (*Adapter)(nil)

// New creates a server adapter
func New(config Config) (*Adapter, error) {
	if config.Backend == nil {
		return nil, fmt.Errorf("%w: backend is required", entitle.ErrInvalidConfig)
	}
	if config.Checkout == nil {
		return nil, fmt.Errorf("%w: checkout is required", entitle.ErrInvalidConfig)
	}
	if config.Platform == "" {
		config.Platform = entitle.PlatformWeb
	}
	if len(config.Fallback) == 0 {
		config.Fallback = entitle.FallbackCatalog()
	}
	if config.Logger == nil {
		config.Logger = &entitle.NoopLogger{}
	}
	if config.Metrics == nil {
		config.Metrics = &entitle.NoopMetrics{}
	}

	return &Adapter{
		backend:  config.Backend,
		checkout: config.Checkout,
		platform: config.Platform,
		fallback: append([]entitle.Product(nil), config.Fallback...),
		logger:   config.Logger,
		metrics:  config.Metrics,
	}, nil
}

func (a *Adapter) Name() string                         { return "server" }
func (a *Adapter) Platform() entitle.Platform           { return a.platform }
func (a *Adapter) NeedsVerification() bool              { return false }
func (a *Adapter) Connect(ctx context.Context) error    { return nil }
func (a *Adapter) Disconnect(ctx context.Context) error { return nil }

// ListProducts returns the remote catalog, or the fallback catalog when the
// remote one fails or is empty. productIDs is ignored; the server owns the catalog.
func (a *Adapter) ListProducts(ctx context.Context, productIDs []string) []entitle.Product {
	v, err, shared := a.group.Do("catalog", func() (interface{}, error) {
		return a.backend.Products(ctx)
	})

	var products []entitle.Product
	if err == nil {
		products = v.([]entitle.Product)
	}

	reason := ""
	switch {
	case err != nil:
		reason = err.Error()
	case len(products) == 0:
		reason = "remote catalog is empty"
	}
	if reason != "" {
		a.logger.Warn("serving fallback catalog",
			entitle.F("degraded", true), entitle.F("reason", reason))
		a.metrics.RecordCatalogFetch(a.Name(), "fallback", len(a.fallback))
		return append([]entitle.Product(nil), a.fallback...)
	}

	a.logger.Debug("loaded remote catalog", entitle.F("count", len(products)), entitle.F("shared", shared))
	a.metrics.RecordCatalogFetch(a.Name(), "remote", len(products))
	// singleflight callers share the slice
	return append([]entitle.Product(nil), products...)
}

// Purchase creates a payment intent and hands it to the checkout surface
func (a *Adapter) Purchase(ctx context.Context, productID string) entitle.PurchaseResult {
	intent, err := a.backend.CreatePaymentIntent(ctx, productID)
	if err != nil {
		a.logger.Error("failed to create payment intent",
			entitle.F("product_id", productID), entitle.F("error", err.Error()))
		return entitle.Failed(entitle.FailureFromError(err), err.Error())
	}

	outcome, err := a.checkout.Present(ctx, intent)
	if err != nil {
		a.logger.Error("checkout failed",
			entitle.F("product_id", productID), entitle.F("intent_id", intent.IntentID),
			entitle.F("error", err.Error()))
		return entitle.Failed(entitle.FailureFailed, err.Error())
	}

	switch outcome {
	case CheckoutCompleted:
		return entitle.PurchaseResult{
			Success:       true,
			ProductID:     productID,
			TransactionID: intent.IntentID,
		}
	case CheckoutCancelled:
		return entitle.Failed(entitle.FailureCancelled, entitle.MsgPurchaseCancelled)
	default:
		a.logger.Info("redirected to checkout",
			entitle.F("product_id", productID), entitle.F("intent_id", intent.IntentID))
		return entitle.Failed(entitle.FailurePending, entitle.MsgRedirectInitiated)
	}
}

// Status returns the server-side subscription state
func (a *Adapter) Status(ctx context.Context) (entitle.SubscriptionStatus, error) {
	status, err := a.backend.SubscriptionStatus(ctx)
	if err != nil {
		return entitle.SubscriptionStatus{}, fmt.Errorf("failed to get subscription status: %w", err)
	}
	return status, nil
}

// History reports the active subscription as the only restorable purchase.
func (a *Adapter) History(ctx context.Context) ([]entitle.PurchaseResult, error) {
	status, err := a.Status(ctx)
	if err != nil {
		return nil, err
	}
	if !status.Active {
		return []entitle.PurchaseResult{}, nil
	}
	return []entitle.PurchaseResult{{Success: true, ProductID: status.ProductID}}, nil
}

