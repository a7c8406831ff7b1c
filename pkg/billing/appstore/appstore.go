// Package appstore verifies App Store receipts with Apple's verifyReceipt service.
package appstore

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/awa/go-iap/appstore"

	"github.com/mihaimyh/goentitle/pkg/billing"
	"github.com/mihaimyh/goentitle/pkg/entitle"
)

const providerName = "appstore"

// receiptClient is implemented by *appstore.Client. Verify retries against the
// sandbox when production answers 21007.
type receiptClient interface {
	Verify(ctx context.Context, req appstore.IAPRequest, result interface{}) error
}

// Config configures a Verifier
type Config struct {
	// SharedSecret is the App Store Connect shared secret (required)
	SharedSecret string

	// IncludeOldTransactions returns every renewal instead of only the latest
	IncludeOldTransactions bool

	// Logger is optional. Default: NoopLogger
	Logger entitle.Logger

	// Metrics is optional. Default: billing.NoopMetrics
	Metrics billing.Metrics
}

// Verifier implements billing.ReceiptVerifier for App Store receipts
type Verifier struct {
	client     receiptClient
	secret     string
	excludeOld bool
	logger     entitle.Logger
	metrics    billing.Metrics
}

var _ billing.ReceiptVerifier = (*Verifier)(nil)

// New creates a Verifier talking to Apple
func New(config Config) (*Verifier, error) {
	return newVerifier(config, appstore.New())
}

func newVerifier(config Config, client receiptClient) (*Verifier, error) {
	if strings.TrimSpace(config.SharedSecret) == "" {
		return nil, fmt.Errorf("%w: app store shared secret is required", billing.ErrProviderNotConfigured)
	}
	if config.Logger == nil {
		config.Logger = &entitle.NoopLogger{}
	}
	if config.Metrics == nil {
		config.Metrics = &billing.NoopMetrics{}
	}
	return &Verifier{
		client:     client,
		secret:     config.SharedSecret,
		excludeOld: !config.IncludeOldTransactions,
		logger:     config.Logger,
		metrics:    config.Metrics,
	}, nil
}

// Name returns the provider name
func (v *Verifier) Name() string {
	return providerName
}

// VerifyReceipt returns Apple's record of req.TransactionID when the receipt
// is valid and lists that transaction for req.ProductID. The transaction id may
// be the original id of a subscription, which matches its latest renewal.
// Apple rejecting the receipt is (nil, nil); transport failures are errors.
func (v *Verifier) VerifyReceipt(ctx context.Context, req billing.ReceiptRequest) (*billing.ReceiptPurchase, error) {
	if req.Receipt == "" || req.ProductID == "" || req.TransactionID == "" {
		return nil, billing.ErrInvalidReceipt
	}

	start := time.Now()
	var resp appstore.IAPResponse
	err := v.client.Verify(ctx, appstore.IAPRequest{
		ReceiptData:            req.Receipt,
		Password:               v.secret,
		ExcludeOldTransactions: v.excludeOld,
	}, &resp)
	v.metrics.RecordAPICallDuration(providerName, "/verifyReceipt", time.Since(start))
	if err != nil {
		v.metrics.RecordAPICall(providerName, "/verifyReceipt", "error")
		return nil, fmt.Errorf("%w: failed to verify receipt: %w", billing.ErrProviderAPIError, err)
	}
	v.metrics.RecordAPICall(providerName, "/verifyReceipt", "success")

	if resp.Status != 0 {
		v.logger.Warn("app store rejected receipt",
			entitle.F("status", resp.Status), entitle.F("reason", statusReason(resp.Status)),
			entitle.F("product_id", req.ProductID))
		v.metrics.RecordReceiptVerification(providerName, false)
		return nil, nil
	}

	entries := append(append([]appstore.InApp(nil), resp.Receipt.InApp...), resp.LatestReceiptInfo...)
	found := findTransaction(entries, req.ProductID, req.TransactionID)
	if found == nil {
		v.logger.Warn("receipt does not contain transaction",
			entitle.F("product_id", req.ProductID), entitle.F("transaction_id", req.TransactionID),
			entitle.F("bundle_id", resp.Receipt.BundleID))
	}
	v.metrics.RecordReceiptVerification(providerName, found != nil)
	return found, nil
}

// findTransaction returns the latest entry for productID whose transaction or
// original transaction id equals transactionID
func findTransaction(entries []appstore.InApp, productID, transactionID string) *billing.ReceiptPurchase {
	var found *billing.ReceiptPurchase
	for _, e := range entries {
		if e.ProductID != productID {
			continue
		}
		if e.TransactionID != transactionID && string(e.OriginalTransactionID) != transactionID {
			continue
		}
		purchasedAt := msTime(e.PurchaseDateMS)
		if found != nil && !purchasedAt.After(found.PurchasedAt) {
			continue
		}
		found = &billing.ReceiptPurchase{
			ProductID:             e.ProductID,
			TransactionID:         e.TransactionID,
			OriginalTransactionID: string(e.OriginalTransactionID),
			PurchasedAt:           purchasedAt,
		}
	}
	return found
}

func msTime(ms string) time.Time {
	n, err := strconv.ParseInt(ms, 10, 64)
	if err != nil || n <= 0 {
		return time.Time{}
	}
	return time.UnixMilli(n).UTC()
}

func statusReason(status int) string {
	if err := appstore.HandleError(status); err != nil {
		return err.Error()
	}
	return "ok"
}
