package entitle

import (
	"context"
	"fmt"
)

// Adapter is the capability interface shared by every payment back-end.
// The Orchestrator picks one variant at construction and never branches on
// the platform again.
type Adapter interface {
	// Name returns the adapter name (e.g., "store", "server")
	Name() string

	// Platform returns the platform reported to the verifier
	Platform() Platform

	// Connect acquires the payment connection. Idempotent.
	Connect(ctx context.Context) error

	// ListProducts returns the purchasable catalog. Never fails; an empty slice
	// means nothing is purchasable right now.
	ListProducts(ctx context.Context, productIDs []string) []Product

	// Purchase starts a purchase and returns its outcome. Never panics or errors;
	// failures are reported through the result.
	Purchase(ctx context.Context, productID string) PurchaseResult

	// History returns previously made purchases for restore
	History(ctx context.Context) ([]PurchaseResult, error)

	// NeedsVerification reports whether successful results must pass the Verifier
	// before they count
	NeedsVerification() bool

	// Disconnect releases the payment connection. Safe to call when never connected.
	Disconnect(ctx context.Context) error
}

// Verifier confirms client-reported purchases with the remote collaborator
type Verifier interface {
	Verify(ctx context.Context, req VerifyRequest) (bool, error)
}

// StatusChecker answers the authoritative premium-status question
type StatusChecker interface {
	PremiumStatus(ctx context.Context) (bool, error)
}

// Select returns the adapter for the given platform.
// Platforms with native billing use native; all others use server.
func Select(platform Platform, native, server Adapter) (Adapter, error) {
	if platform.HasNativeBilling() {
		if native == nil {
			return nil, fmt.Errorf("%w: %s", ErrNoAdapter, platform)
		}
		return native, nil
	}
	if server == nil {
		return nil, fmt.Errorf("%w: %s", ErrNoAdapter, platform)
	}
	return server, nil
}
