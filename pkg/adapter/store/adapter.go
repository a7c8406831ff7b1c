// Package store implements the native in-app purchase adapter.
package store

import (
	"context"
	"fmt"
	"sync"

	"github.com/mihaimyh/goentitle/pkg/entitle"
)

// Config configures the store adapter
type Config struct {
	// Billing is the native billing layer (required)
	Billing Billing

	// Platform reported to the verifier. Default: ios
	Platform entitle.Platform

	// Logger is optional. Default: NoopLogger
	Logger entitle.Logger

	// Metrics is optional. Default: NoopMetrics
	Metrics entitle.Metrics
}

// Adapter drives the native store. Successful purchases still need verification.
type Adapter struct {
	billing  Billing
	platform entitle.Platform
	logger   entitle.Logger
	metrics  entitle.Metrics
	pending  *entitle.PendingPurchases

	mu         sync.Mutex
	connected  bool
	removeHook func()
}

var _ entitle.Adapter = (*Adapter)(nil)

// New creates a store adapter
func New(config Config) (*Adapter, error) {
	if config.Billing == nil {
		return nil, fmt.Errorf("%w: billing is required", entitle.ErrInvalidConfig)
	}
	if config.Platform == "" {
		config.Platform = entitle.PlatformIOS
	}
	if config.Logger == nil {
		config.Logger = &entitle.NoopLogger{}
	}
	if config.Metrics == nil {
		config.Metrics = &entitle.NoopMetrics{}
	}

	return &Adapter{
		billing:  config.Billing,
		platform: config.Platform,
		logger:   config.Logger,
		metrics:  config.Metrics,
		pending:  entitle.NewPendingPurchases(),
	}, nil
}

func (a *Adapter) Name() string              { return "store" }
func (a *Adapter) Platform() entitle.Platform { return a.platform }
func (a *Adapter) NeedsVerification() bool    { return true }

// Connect opens the billing connection. Calling it again while connected is a no-op.
func (a *Adapter) Connect(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.connected {
		return nil
	}
	if err := a.billing.Connect(ctx); err != nil {
		return fmt.Errorf("%w: %v", entitle.ErrNotConnected, err)
	}
	a.connected = true
	a.logger.Debug("store billing connected", entitle.F("platform", string(a.platform)))
	return nil
}

func (a *Adapter) isConnected() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.connected
}

// ListProducts returns the store catalog, or an empty slice when it cannot be loaded.
func (a *Adapter) ListProducts(ctx context.Context, productIDs []string) []entitle.Product {
	if !a.isConnected() {
		a.logger.Warn("store catalog requested before connect")
		return []entitle.Product{}
	}

	native, err := a.billing.Products(ctx, productIDs)
	if err != nil {
		a.logger.Error("failed to load store catalog", entitle.F("error", err.Error()))
		a.metrics.RecordCatalogFetch(a.Name(), "store", 0)
		return []entitle.Product{}
	}

	products := make([]entitle.Product, 0, len(native))
	for _, p := range native {
		products = append(products, entitle.Product{
			ProductID:    p.ProductID,
			Title:        p.Title,
			Description:  p.Description,
			Price:        p.Price,
			CurrencyCode: p.CurrencyCode,
			Kind:         entitle.ParseProductKind(p.Type),
		})
	}
	a.metrics.RecordCatalogFetch(a.Name(), "store", len(products))
	return products
}

// Purchase opens the purchase sheet and waits for the matching update.
func (a *Adapter) Purchase(ctx context.Context, productID string) entitle.PurchaseResult {
	handle, failure := a.register(productID)
	if failure != nil {
		return *failure
	}

	if err := a.billing.PurchaseItem(ctx, productID); err != nil {
		a.pending.Release(handle)
		a.detachIfIdle()
		a.logger.Error("failed to launch purchase sheet",
			entitle.F("product_id", productID), entitle.F("error", err.Error()))
		return entitle.Failed(entitle.FailureFailed, err.Error())
	}

	select {
	case result := <-handle.Done():
		return result
	case <-ctx.Done():
		a.pending.Release(handle)
		a.detachIfIdle()
		a.logger.Warn("abandoned pending purchase",
			entitle.F("product_id", productID), entitle.F("error", ctx.Err().Error()))
		return entitle.Failed(entitle.FailureCancelled, entitle.MsgPurchaseCancelled)
	}
}

// register acquires the completion handle for productID and installs the
// update listener. Disconnect cannot interleave with it.
func (a *Adapter) register(productID string) (*entitle.Completion, *entitle.PurchaseResult) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if !a.connected {
		failed := entitle.Failed(entitle.FailureConnection, entitle.MsgNotConnected)
		return nil, &failed
	}
	handle, ok := a.pending.Acquire(productID)
	if !ok {
		failed := entitle.Failed(entitle.FailureInProgress, entitle.MsgInProgress)
		return nil, &failed
	}
	if a.removeHook == nil {
		a.removeHook = a.billing.SetPurchaseListener(a.onUpdate)
	}
	return handle, nil
}

// detachIfIdle removes the listener once no purchase is waiting
func (a *Adapter) detachIfIdle() {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.removeHook != nil && a.pending.Len() == 0 {
		a.removeHook()
		a.removeHook = nil
	}
}

func (a *Adapter) onUpdate(update PurchaseUpdate) {
	handle := a.correlate(update)
	if handle == nil {
		a.logger.Warn("dropping purchase update without pending purchase",
			entitle.F("product_id", update.ProductID), entitle.F("code", update.Code.String()))
		return
	}

	handle.Resolve(toResult(handle.ProductID(), update))
	a.detachIfIdle()
}

func (a *Adapter) correlate(update PurchaseUpdate) *entitle.Completion {
	if update.ProductID != "" {
		return a.pending.Take(update.ProductID)
	}
	if len(update.Purchases) > 0 && update.Purchases[0].ProductID != "" {
		return a.pending.Take(update.Purchases[0].ProductID)
	}
	return a.pending.TakeOnly()
}

func toResult(productID string, update PurchaseUpdate) entitle.PurchaseResult {
	switch update.Code {
	case ResponseOK:
		if len(update.Purchases) == 0 {
			return entitle.Failed(entitle.FailureFailed, entitle.MsgPurchaseFailed)
		}
		p := update.Purchases[0]
		return entitle.PurchaseResult{
			Success:       true,
			ProductID:     productID,
			TransactionID: p.TransactionID,
			Receipt:       p.Receipt,
		}
	case ResponseUserCanceled:
		return entitle.Failed(entitle.FailureCancelled, entitle.MsgPurchaseCancelled)
	case ResponseDeferred:
		return entitle.Failed(entitle.FailurePending, entitle.MsgPurchaseDeferred)
	default:
		msg := entitle.MsgPurchaseFailed
		if update.Err != nil {
			msg = update.Err.Error()
		}
		return entitle.Failed(entitle.FailureFailed, msg)
	}
}

// History returns unverified past purchases
func (a *Adapter) History(ctx context.Context) ([]entitle.PurchaseResult, error) {
	if !a.isConnected() {
		return nil, entitle.ErrNotConnected
	}

	purchases, err := a.billing.History(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load purchase history: %w", err)
	}

	results := make([]entitle.PurchaseResult, 0, len(purchases))
	for _, p := range purchases {
		results = append(results, entitle.PurchaseResult{
			Success:       true,
			ProductID:     p.ProductID,
			TransactionID: p.TransactionID,
			Receipt:       p.Receipt,
		})
	}
	return results, nil
}

// Disconnect closes the billing connection and drops the listener. Purchases
// still waiting for an update fail with a connection error.
func (a *Adapter) Disconnect(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.removeHook != nil {
		a.removeHook()
		a.removeHook = nil
	}
	for _, handle := range a.pending.TakeAll() {
		handle.Resolve(entitle.Failed(entitle.FailureConnection, entitle.MsgNotConnected))
		a.logger.Warn("pending purchase interrupted by disconnect",
			entitle.F("product_id", handle.ProductID()))
	}
	if !a.connected {
		return nil
	}
	a.connected = false
	if err := a.billing.Disconnect(ctx); err != nil {
		return fmt.Errorf("failed to disconnect billing: %w", err)
	}
	return nil
}
