package entitle

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

const defaultRestoreConcurrency = 4

// Config configures an Orchestrator
type Config struct {
	// Adapter is the payment back-end chosen for this platform (required).
	// Use Select to pick it.
	Adapter Adapter

	// Verifier confirms store purchases. Required when Adapter.NeedsVerification().
	Verifier Verifier

	// ProductIDs is the catalog requested from the adapter.
	// Default: DefaultProductIDs()
	ProductIDs []string

	// RestoreConcurrency bounds parallel verification during restore (default: 4)
	RestoreConcurrency int

	// Logger is optional. Default: NoopLogger
	Logger Logger

	// Metrics is optional. Default: NoopMetrics
	Metrics Metrics
}

// Validate checks that the configuration is usable
func (c *Config) Validate() error {
	if c.Adapter == nil {
		return fmt.Errorf("%w: adapter is required", ErrInvalidConfig)
	}
	if c.Adapter.NeedsVerification() && c.Verifier == nil {
		return fmt.Errorf("%w: adapter %q requires a verifier", ErrInvalidConfig, c.Adapter.Name())
	}
	return nil
}

// Orchestrator exposes one purchase surface over the platform's adapter and
// owns the verification trust boundary.
type Orchestrator struct {
	adapter  Adapter
	verifier Verifier
	ids      []string
	workers  int
	logger   Logger
	metrics  Metrics

	connMu    sync.Mutex
	connected bool

	inflightMu sync.Mutex
	inflight   map[string]struct{}
}

// NewOrchestrator creates an orchestrator for the configured adapter
func NewOrchestrator(config Config) (*Orchestrator, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	if len(config.ProductIDs) == 0 {
		config.ProductIDs = DefaultProductIDs()
	}
	if config.RestoreConcurrency <= 0 {
		config.RestoreConcurrency = defaultRestoreConcurrency
	}
	if config.Logger == nil {
		config.Logger = &NoopLogger{}
	}
	if config.Metrics == nil {
		config.Metrics = &NoopMetrics{}
	}

	return &Orchestrator{
		adapter:  config.Adapter,
		verifier: config.Verifier,
		ids:      append([]string(nil), config.ProductIDs...),
		workers:  config.RestoreConcurrency,
		logger:   config.Logger,
		metrics:  config.Metrics,
		inflight: make(map[string]struct{}),
	}, nil
}

// Adapter returns the adapter selected for this session
func (o *Orchestrator) Adapter() Adapter {
	return o.adapter
}

// Initialize connects the adapter and reports whether payments are usable this session.
func (o *Orchestrator) Initialize(ctx context.Context) bool {
	return o.ensureConnected(ctx) == nil
}

func (o *Orchestrator) ensureConnected(ctx context.Context) error {
	o.connMu.Lock()
	defer o.connMu.Unlock()

	if o.connected {
		return nil
	}
	if err := o.adapter.Connect(ctx); err != nil {
		o.logger.Error("payment adapter connect failed",
			F("adapter", o.adapter.Name()), F("error", err.Error()))
		return fmt.Errorf("%w: %v", ErrNotConnected, err)
	}
	o.connected = true
	return nil
}

// Products returns the purchasable catalog. Never fails; entries with an empty
// or repeated product id are dropped.
func (o *Orchestrator) Products(ctx context.Context) []Product {
	if err := o.ensureConnected(ctx); err != nil {
		return []Product{}
	}

	raw := o.adapter.ListProducts(ctx, o.ids)
	products := make([]Product, 0, len(raw))
	seen := make(map[string]struct{}, len(raw))
	for _, p := range raw {
		id := strings.TrimSpace(p.ProductID)
		if id == "" {
			o.logger.Warn("dropping catalog entry without product id",
				F("adapter", o.adapter.Name()), F("title", p.Title))
			continue
		}
		if _, dup := seen[id]; dup {
			o.logger.Warn("dropping duplicate catalog entry",
				F("adapter", o.adapter.Name()), F("product_id", id))
			continue
		}
		seen[id] = struct{}{}
		p.ProductID = id
		products = append(products, p)
	}
	return products
}

// Purchase buys productID through the adapter. On the store path a reported
// success only counts after the Verifier confirms it.
func (o *Orchestrator) Purchase(ctx context.Context, productID string) PurchaseResult {
	start := time.Now()
	result := o.purchase(ctx, strings.TrimSpace(productID))
	o.metrics.RecordPurchase(o.adapter.Name(), result.Failure, time.Since(start))
	return result
}

func (o *Orchestrator) purchase(ctx context.Context, productID string) PurchaseResult {
	if productID == "" {
		return Failed(FailureFailed, MsgProductRequired)
	}

	if !o.acquire(productID) {
		o.logger.Warn("rejecting concurrent purchase", F("product_id", productID))
		return Failed(FailureInProgress, MsgInProgress)
	}
	defer o.release(productID)

	if err := o.ensureConnected(ctx); err != nil {
		return Failed(FailureConnection, MsgNotConnected)
	}

	result := o.adapter.Purchase(ctx, productID)
	if !result.Success {
		o.logger.Info("purchase not completed",
			F("adapter", o.adapter.Name()), F("product_id", productID),
			F("failure", string(result.Failure)), F("error", result.Error))
		return result
	}

	if !o.adapter.NeedsVerification() {
		return result
	}

	if !o.verify(ctx, result) {
		return Failed(FailureVerification, MsgVerificationFailed)
	}
	return result
}

func (o *Orchestrator) verify(ctx context.Context, result PurchaseResult) bool {
	verified, err := o.verifier.Verify(ctx, VerifyRequest{
		ProductID:     result.ProductID,
		TransactionID: result.TransactionID,
		Receipt:       result.Receipt,
		Platform:      o.adapter.Platform(),
	})
	if err != nil {
		o.logger.Error("purchase verification error",
			F("product_id", result.ProductID), F("transaction_id", result.TransactionID),
			F("error", err.Error()))
		verified = false
	}
	o.metrics.RecordVerification(o.adapter.Name(), verified)
	return verified
}

func (o *Orchestrator) acquire(productID string) bool {
	o.inflightMu.Lock()
	defer o.inflightMu.Unlock()
	if _, busy := o.inflight[productID]; busy {
		return false
	}
	o.inflight[productID] = struct{}{}
	return true
}

func (o *Orchestrator) release(productID string) {
	o.inflightMu.Lock()
	defer o.inflightMu.Unlock()
	delete(o.inflight, productID)
}

// Restore reconciles previous purchases. Store history entries are verified
// once each and unverified ones are dropped; order follows the history.
// Duplicates are kept.
func (o *Orchestrator) Restore(ctx context.Context) []PurchaseResult {
	if err := o.ensureConnected(ctx); err != nil {
		return []PurchaseResult{Failed(FailureConnection, MsgNotConnected)}
	}

	history, err := o.adapter.History(ctx)
	if err != nil {
		o.logger.Error("failed to fetch purchase history",
			F("adapter", o.adapter.Name()), F("error", err.Error()))
		return []PurchaseResult{Failed(FailureFromError(err), MsgRestoreFailed)}
	}

	if !o.adapter.NeedsVerification() {
		o.metrics.RecordRestore(o.adapter.Name(), len(history), len(history))
		return nonNil(history)
	}

	verified := make([]bool, len(history))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(o.workers)
	for i, entry := range history {
		if !entry.Success {
			continue
		}
		g.Go(func() error {
			verified[i] = o.verify(gctx, entry)
			return nil
		})
	}
	_ = g.Wait() //nolint:errcheck // workers never return errors

	restored := make([]PurchaseResult, 0, len(history))
	for i, entry := range history {
		if verified[i] {
			restored = append(restored, entry)
		}
	}
	o.metrics.RecordRestore(o.adapter.Name(), len(history), len(restored))
	return restored
}

// Disconnect releases the adapter's connection
func (o *Orchestrator) Disconnect(ctx context.Context) {
	o.connMu.Lock()
	defer o.connMu.Unlock()

	if err := o.adapter.Disconnect(ctx); err != nil {
		o.logger.Error("payment adapter disconnect failed",
			F("adapter", o.adapter.Name()), F("error", err.Error()))
	}
	o.connected = false
}

func nonNil(results []PurchaseResult) []PurchaseResult {
	if results == nil {
		return []PurchaseResult{}
	}
	return results
}
