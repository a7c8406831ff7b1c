package billing

import (
	"context"
	"net/http"
	"time"

	"github.com/mihaimyh/goentitle/pkg/entitle"
	"github.com/mihaimyh/goentitle/pkg/premium"
)

// DefaultHTTPTimeout bounds outbound provider calls
const DefaultHTTPTimeout = 10 * time.Second

// Ledger is the part of premium.Manager providers write to
type Ledger interface {
	Grant(ctx context.Context, req premium.GrantRequest) (bool, error)
	Revoke(ctx context.Context, req premium.RevokeRequest) (bool, error)
}

// Catalog lists purchasable products
type Catalog interface {
	Products(ctx context.Context) ([]entitle.Product, error)
}

// IntentRequest asks a provider to start a payment
type IntentRequest struct {
	UserID    string
	Email     string
	ProductID string

	// Origin is the web origin used to build checkout return URLs
	Origin string
}

// Intent is a started payment the client completes with the provider
type Intent struct {
	ClientSecret string `json:"clientSecret"`
	IntentID     string `json:"intentId"`
	CheckoutURL  string `json:"checkoutUrl,omitempty"`
}

// IntentCreator starts server-side payments
type IntentCreator interface {
	CreateIntent(ctx context.Context, req IntentRequest) (*Intent, error)
}

// ReceiptRequest identifies the purchase a receipt must prove
type ReceiptRequest struct {
	Receipt       string
	ProductID     string
	TransactionID string
}

// ReceiptPurchase is the store's own record of a purchase found in a receipt
type ReceiptPurchase struct {
	ProductID     string
	TransactionID string

	// OriginalTransactionID stays the same across subscription renewals
	OriginalTransactionID string

	PurchasedAt time.Time
}

// LedgerID is the transaction id purchases are recorded under. Renewals share
// the id of the purchase that started them.
func (p *ReceiptPurchase) LedgerID() string {
	if p.OriginalTransactionID != "" {
		return p.OriginalTransactionID
	}
	return p.TransactionID
}

// ReceiptVerifier checks a store receipt proves the requested transaction.
// A receipt that does not prove it returns (nil, nil).
type ReceiptVerifier interface {
	VerifyReceipt(ctx context.Context, req ReceiptRequest) (*ReceiptPurchase, error)
}

// Provider is a billing back-end that pushes events over a webhook
type Provider interface {
	// Name returns the provider name (e.g., "stripe")
	Name() string

	// WebhookHandler returns the HTTP handler that processes real-time events.
	// The implementation handles validation, parsing and Ledger updates internally.
	WebhookHandler() http.Handler
}
