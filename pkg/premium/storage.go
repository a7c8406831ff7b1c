package premium

import (
	"context"
	"time"
)

// Storage defines the interface for premium ledger persistence
type Storage interface {
	// GetStatus returns the user's status or ErrStatusNotFound
	GetStatus(ctx context.Context, userID string) (*Status, error)

	// SetStatus stores the user's status
	SetStatus(ctx context.Context, status *Status) error

	// RecordPurchase stores a verified purchase.
	// Returns ErrPurchaseExists if the transaction id is already recorded.
	RecordPurchase(ctx context.Context, purchase *Purchase) error

	// GetPurchase returns a purchase by transaction id.
	// Returns nil if no record found (not an error)
	GetPurchase(ctx context.Context, transactionID string) (*Purchase, error)
}

// TimeSource returns the storage engine's clock so expiry decisions agree
// across application servers.
type TimeSource interface {
	Now(ctx context.Context) (time.Time, error)
}

// StatusReader answers premium status. *Manager implements it.
type StatusReader interface {
	Status(ctx context.Context, userID string) (*Status, error)
}
