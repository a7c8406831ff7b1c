package entitle

import (
	"encoding/json"
	"strings"
	"time"
)

// Product identifiers shared by the fallback catalog and the default store catalog
const (
	ProductPremiumMonthly  = "PREMIUM_MONTHLY"
	ProductPremiumYearly   = "PREMIUM_YEARLY"
	ProductPremiumLifetime = "PREMIUM_LIFETIME"
)

// ProductKind describes how a product is consumed
type ProductKind string

const (
	// KindConsumable can be bought repeatedly
	KindConsumable ProductKind = "consumable"
	// KindNonConsumable is bought once and owned forever
	KindNonConsumable ProductKind = "non_consumable"
	// KindSubscription renews until cancelled
	KindSubscription ProductKind = "subscription"
)

// UnmarshalJSON accepts both "non_consumable" and the hyphenated "non-consumable"
// spelling used by some catalog back-ends.
func (k *ProductKind) UnmarshalJSON(data []byte) error {
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*k = ParseProductKind(raw)
	return nil
}

// ParseProductKind normalizes a product kind string.
// Unknown values map to KindNonConsumable.
func ParseProductKind(raw string) ProductKind {
	switch strings.ToLower(strings.ReplaceAll(strings.TrimSpace(raw), "-", "_")) {
	case string(KindConsumable):
		return KindConsumable
	case string(KindSubscription):
		return KindSubscription
	default:
		return KindNonConsumable
	}
}

// Product is an immutable snapshot of one purchasable item.
type Product struct {
	ProductID    string      `json:"productId"`
	Title        string      `json:"title"`
	Description  string      `json:"description"`
	Price        string      `json:"price"`
	CurrencyCode string      `json:"currencyCode,omitempty"`
	Kind         ProductKind `json:"type"`
}

// FailureKind classifies why a purchase operation did not succeed
type FailureKind string

const (
	FailureNone               FailureKind = ""
	FailureConnection         FailureKind = "connection"
	FailureCatalogUnavailable FailureKind = "catalog_unavailable"
	FailureCancelled          FailureKind = "cancelled"
	FailureFailed             FailureKind = "failed"
	FailureVerification       FailureKind = "verification_failed"
	FailureNetwork            FailureKind = "network"
	FailureInProgress         FailureKind = "in_progress"
	FailurePending            FailureKind = "pending"
)

// Messages carried in PurchaseResult.Error
const (
	MsgVerificationFailed = "Purchase verification failed"
	MsgPurchaseCancelled  = "Purchase cancelled"
	MsgPurchaseFailed     = "Purchase failed"
	MsgPurchaseDeferred   = "Purchase pending approval"
	MsgInProgress         = "Purchase already in progress"
	MsgNotConnected       = "Billing connection unavailable"
	MsgRedirectInitiated  = "redirect initiated"
	MsgProductRequired    = "Product ID is required"
	MsgRestoreFailed      = "Restore failed"
)

// PurchaseResult is the outcome of one purchase attempt or one restored purchase.
// It is a value type and is never mutated after creation.
type PurchaseResult struct {
	Success       bool        `json:"success"`
	ProductID     string      `json:"productId,omitempty"`
	TransactionID string      `json:"transactionId,omitempty"`
	Receipt       string      `json:"receipt,omitempty"`
	Error         string      `json:"error,omitempty"`
	Failure       FailureKind `json:"failure,omitempty"`
}

// Failed builds an unsuccessful result
func Failed(kind FailureKind, msg string) PurchaseResult {
	return PurchaseResult{Success: false, Error: msg, Failure: kind}
}

// Tier is the derived subscription tier. The zero value means unknown.
type Tier string

const (
	TierUnknown Tier = ""
	TierFree    Tier = "free"
	TierPremium Tier = "premium"
)

// TierFor derives the tier from the premium flag
func TierFor(isPremium bool) Tier {
	if isPremium {
		return TierPremium
	}
	return TierFree
}

// Snapshot is a copy of the entitlement state at one point in time
type Snapshot struct {
	IsPremium bool
	Tier      Tier
	IsLoading bool
	CheckedAt time.Time
}

// Platform identifies the client platform
type Platform string

const (
	PlatformIOS     Platform = "ios"
	PlatformAndroid Platform = "android"
	PlatformWeb     Platform = "web"
)

// HasNativeBilling reports whether the platform uses on-device store billing.
// Android goes through card payments like the web client.
func (p Platform) HasNativeBilling() bool {
	return p == PlatformIOS
}

// VerifyRequest is sent to the verifier for every store-reported purchase
type VerifyRequest struct {
	ProductID     string   `json:"productId"`
	TransactionID string   `json:"transactionId"`
	Receipt       string   `json:"receipt"`
	Platform      Platform `json:"platform"`
}

// PaymentIntent is the handle returned by the payment back-end for card checkout
type PaymentIntent struct {
	ClientSecret string `json:"clientSecret"`
	IntentID     string `json:"intentId"`
	CheckoutURL  string `json:"checkoutUrl,omitempty"`
}

// SubscriptionStatus is the server-side subscription state for card payments
type SubscriptionStatus struct {
	Active    bool   `json:"active"`
	ProductID string `json:"productId,omitempty"`
}

// FallbackCatalog returns the fixed catalog used when the remote catalog cannot be loaded.
func FallbackCatalog() []Product {
	return []Product{
		{
			ProductID:    ProductPremiumMonthly,
			Title:        "Premium Monthly",
			Description:  "Unlock all premium features for one month",
			Price:        "$4.99",
			CurrencyCode: "USD",
			Kind:         KindSubscription,
		},
		{
			ProductID:    ProductPremiumYearly,
			Title:        "Premium Yearly",
			Description:  "Unlock all premium features for one year (Save 30%)",
			Price:        "$39.99",
			CurrencyCode: "USD",
			Kind:         KindSubscription,
		},
		{
			ProductID:    ProductPremiumLifetime,
			Title:        "Premium Lifetime",
			Description:  "Unlock all premium features forever",
			Price:        "$99.99",
			CurrencyCode: "USD",
			Kind:         KindNonConsumable,
		},
	}
}

// DefaultProductIDs returns the catalog identifiers requested from the native store
func DefaultProductIDs() []string {
	return []string{ProductPremiumMonthly, ProductPremiumYearly, ProductPremiumLifetime}
}
