package premium

import "time"

// Metrics defines the interface for tracking ledger operations
type Metrics interface {
	RecordGrant(source Source, productID string, applied bool)
	RecordRevoke(source Source, applied bool)
	RecordStatusLookup(isPremium bool, duration time.Duration, err error)
	RecordCacheHit()
	RecordCacheMiss()
	RecordStorageOperation(operation string, duration time.Duration, err error)
}

// NoopMetrics is a no-op implementation of the Metrics interface
type NoopMetrics struct{}

func (n *NoopMetrics) RecordGrant(source Source, productID string, applied bool)            {}
func (n *NoopMetrics) RecordRevoke(source Source, applied bool)                             {}
func (n *NoopMetrics) RecordStatusLookup(isPremium bool, duration time.Duration, err error) {}
func (n *NoopMetrics) RecordCacheHit()                                                      {}
func (n *NoopMetrics) RecordCacheMiss()                                                     {}
func (n *NoopMetrics) RecordStorageOperation(operation string, d time.Duration, err error)  {}
