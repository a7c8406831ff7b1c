package entitle

import "time"

// Metrics defines the interface for tracking purchase and entitlement operations.
type Metrics interface {
	// RecordCatalogFetch records a catalog request. source is "store", "remote" or "fallback".
	RecordCatalogFetch(adapter, source string, count int)

	// RecordPurchase records the outcome of a purchase attempt.
	RecordPurchase(adapter string, failure FailureKind, duration time.Duration)

	// RecordVerification records a verifier call.
	RecordVerification(adapter string, verified bool)

	// RecordRestore records a restore and how many entries survived verification.
	RecordRestore(adapter string, fetched, verified int)

	// RecordStatusCheck records a premium-status check.
	// stale is true when the response was discarded because a newer one was already applied.
	RecordStatusCheck(isPremium bool, err error, stale bool, duration time.Duration)
}

// NoopMetrics is a no-op implementation of the Metrics interface.
type NoopMetrics struct{}

func (n *NoopMetrics) RecordCatalogFetch(adapter, source string, count int)                {}
func (n *NoopMetrics) RecordPurchase(adapter string, failure FailureKind, d time.Duration) {}
func (n *NoopMetrics) RecordVerification(adapter string, verified bool)                    {}
func (n *NoopMetrics) RecordRestore(adapter string, fetched, verified int)                 {}
func (n *NoopMetrics) RecordStatusCheck(isPremium bool, err error, stale bool, d time.Duration) {
}
