package entitle

import (
	"context"
	"errors"
	"net"
)

var (
	// ErrNotConnected is returned when the billing connection is not established
	ErrNotConnected = errors.New("billing connection not established")

	// ErrCatalogUnavailable is returned when no catalog could be loaded
	ErrCatalogUnavailable = errors.New("catalog unavailable")

	// ErrPurchaseInProgress is returned when a purchase for the same product is pending
	ErrPurchaseInProgress = errors.New("purchase already in progress")

	// ErrVerificationFailed is returned when the verifier rejects a purchase
	ErrVerificationFailed = errors.New("purchase verification failed")

	// ErrNetwork is returned when the remote collaborator cannot be reached
	ErrNetwork = errors.New("network error")

	// ErrNoAdapter is returned when no adapter is available for a platform
	ErrNoAdapter = errors.New("no payment adapter for platform")

	// ErrInvalidConfig is returned for incomplete configuration
	ErrInvalidConfig = errors.New("invalid config")
)

// FailureFromError maps an error onto the failure taxonomy
func FailureFromError(err error) FailureKind {
	var netErr net.Error
	switch {
	case err == nil:
		return FailureNone
	case errors.Is(err, ErrNotConnected):
		return FailureConnection
	case errors.Is(err, ErrCatalogUnavailable):
		return FailureCatalogUnavailable
	case errors.Is(err, ErrPurchaseInProgress):
		return FailureInProgress
	case errors.Is(err, ErrVerificationFailed):
		return FailureVerification
	case errors.Is(err, ErrNetwork), errors.As(err, &netErr),
		errors.Is(err, context.DeadlineExceeded):
		return FailureNetwork
	default:
		return FailureFailed
	}
}
