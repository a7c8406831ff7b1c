package api

import (
	"time"

	"github.com/mihaimyh/goentitle/pkg/entitle"
)

// ErrorResponse is the body of every non-2xx answer
type ErrorResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
}

// ProductsResponse answers GET /products
type ProductsResponse struct {
	Success  bool              `json:"success"`
	Products []entitle.Product `json:"products"`
}

// CreateIntentRequest is the body of POST /create-intent
type CreateIntentRequest struct {
	ProductID string `json:"productId"`
}

// CreateIntentResponse answers POST /create-intent
type CreateIntentResponse struct {
	Success      bool   `json:"success"`
	ClientSecret string `json:"clientSecret"`
	IntentID     string `json:"intentId"`
	CheckoutURL  string `json:"checkoutUrl,omitempty"`
}

// VerifyResponse answers POST /verify-purchase
type VerifyResponse struct {
	Success  bool `json:"success"`
	Verified bool `json:"verified"`
}

// SubscriptionData is the card subscription state
type SubscriptionData struct {
	Active    bool   `json:"active"`
	ProductID string `json:"productId,omitempty"`
}

// SubscriptionResponse answers GET /subscription-status
type SubscriptionResponse struct {
	Success bool             `json:"success"`
	Data    SubscriptionData `json:"data"`
}

// PremiumData is the authoritative entitlement
type PremiumData struct {
	IsPremium bool       `json:"isPremium"`
	ProductID string     `json:"productId,omitempty"`
	ExpiresAt *time.Time `json:"expiresAt,omitempty"`
	Source    string     `json:"source,omitempty"`
}

// PremiumResponse answers GET /premium-status
type PremiumResponse struct {
	Success bool        `json:"success"`
	Data    PremiumData `json:"data"`
}
