package server

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/mihaimyh/goentitle/pkg/entitle"
)

// CheckoutOutcome is what the checkout surface reports back
type CheckoutOutcome int

const (
	// CheckoutRedirected means the user was sent to a hosted payment page
	CheckoutRedirected CheckoutOutcome = iota
	// CheckoutCompleted means an embedded payment sheet confirmed the payment
	CheckoutCompleted
	// CheckoutCancelled means the user dismissed the payment sheet
	CheckoutCancelled
)

// Checkout presents a payment intent to the user
type Checkout interface {
	Present(ctx context.Context, intent entitle.PaymentIntent) (CheckoutOutcome, error)
}

// RedirectCheckout hands the intent to a hosted checkout page
type RedirectCheckout struct {
	// BaseURL of the web app, used when the intent carries no checkout URL
	BaseURL string

	// Open navigates to the checkout page (required)
	Open func(ctx context.Context, checkoutURL string) error
}

// URL returns the page the user is sent to
func (r *RedirectCheckout) URL(intent entitle.PaymentIntent) (string, error) {
	if intent.CheckoutURL != "" {
		return intent.CheckoutURL, nil
	}
	base := strings.TrimRight(r.BaseURL, "/")
	if base == "" {
		return "", errors.New("checkout base URL is not configured")
	}
	return fmt.Sprintf("%s/payments/checkout?intent=%s", base, url.QueryEscape(intent.IntentID)), nil
}

// Present opens the checkout page
func (r *RedirectCheckout) Present(ctx context.Context, intent entitle.PaymentIntent) (CheckoutOutcome, error) {
	if r.Open == nil {
		return CheckoutCancelled, errors.New("checkout opener is not configured")
	}
	target, err := r.URL(intent)
	if err != nil {
		return CheckoutCancelled, err
	}
	if err := r.Open(ctx, target); err != nil {
		return CheckoutCancelled, fmt.Errorf("failed to open checkout: %w", err)
	}
	return CheckoutRedirected, nil
}
