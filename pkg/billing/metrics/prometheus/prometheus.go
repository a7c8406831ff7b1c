// Package prommetrics implements billing.Metrics and premium.Metrics with Prometheus.
package prommetrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/mihaimyh/goentitle/pkg/billing"
	"github.com/mihaimyh/goentitle/pkg/premium"
)

// Metrics implements billing.Metrics and premium.Metrics using Prometheus.
type Metrics struct {
	webhookEventsTotal        *prometheus.CounterVec
	webhookProcessingDuration *prometheus.HistogramVec
	webhookErrorsTotal        *prometheus.CounterVec
	entitlementChangesTotal   *prometheus.CounterVec
	receiptVerificationsTotal *prometheus.CounterVec
	apiCallsTotal             *prometheus.CounterVec
	apiCallDuration           *prometheus.HistogramVec

	grantsTotal          *prometheus.CounterVec
	revokesTotal         *prometheus.CounterVec
	statusLookupsTotal   *prometheus.CounterVec
	statusLookupDuration prometheus.Histogram
	cacheHitsTotal       prometheus.Counter
	cacheMissesTotal     prometheus.Counter
	storageOpsTotal      *prometheus.CounterVec
	storageOpDuration    *prometheus.HistogramVec
}

var (
	_ billing.Metrics = (*Metrics)(nil)
	_ premium.Metrics = (*Metrics)(nil)
)

// NewMetrics creates a new Prometheus metrics implementation for the server side.
func NewMetrics(reg prometheus.Registerer, namespace string) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		webhookEventsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "billing",
			Name:      "webhook_events_total",
			Help:      "Total number of webhook events received from billing providers.",
		}, []string{"provider", "event_type", "status"}),

		webhookProcessingDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "billing",
			Name:      "webhook_processing_duration_seconds",
			Help:      "Duration of webhook processing in seconds.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"provider", "event_type"}),

		webhookErrorsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "billing",
			Name:      "webhook_errors_total",
			Help:      "Total number of webhook processing errors.",
		}, []string{"provider", "error_type"}),

		entitlementChangesTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "billing",
			Name:      "entitlement_changes_total",
			Help:      "Total number of grants and revokes applied from provider events.",
		}, []string{"provider", "change"}),

		receiptVerificationsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "billing",
			Name:      "receipt_verifications_total",
			Help:      "Total number of store receipt verifications.",
		}, []string{"provider", "verified"}),

		apiCallsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "billing",
			Name:      "api_calls_total",
			Help:      "Total number of API calls to billing providers.",
		}, []string{"provider", "endpoint", "status"}),

		apiCallDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "billing",
			Name:      "api_call_duration_seconds",
			Help:      "Duration of API calls to billing providers in seconds.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"provider", "endpoint"}),

		grantsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "premium",
			Name:      "grants_total",
			Help:      "Total number of premium grants by outcome.",
		}, []string{"source", "product_id", "applied"}),

		revokesTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "premium",
			Name:      "revokes_total",
			Help:      "Total number of premium revokes by outcome.",
		}, []string{"source", "applied"}),

		statusLookupsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "premium",
			Name:      "status_lookups_total",
			Help:      "Total number of premium status lookups.",
		}, []string{"result"}),

		statusLookupDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "premium",
			Name:      "status_lookup_duration_seconds",
			Help:      "Duration of premium status lookups in seconds.",
			Buckets:   prometheus.DefBuckets,
		}),

		cacheHitsTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "premium",
			Name:      "cache_hits_total",
			Help:      "Total number of status cache hits.",
		}),

		cacheMissesTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "premium",
			Name:      "cache_misses_total",
			Help:      "Total number of status cache misses.",
		}),

		storageOpsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "premium",
			Name:      "storage_operations_total",
			Help:      "Total number of ledger storage operations.",
		}, []string{"operation", "status"}),

		storageOpDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "premium",
			Name:      "storage_operation_duration_seconds",
			Help:      "Duration of ledger storage operations in seconds.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"operation"}),
	}
}

func (m *Metrics) RecordWebhookEvent(provider, eventType, status string) {
	m.webhookEventsTotal.WithLabelValues(provider, eventType, status).Inc()
}

func (m *Metrics) RecordWebhookProcessingDuration(provider, eventType string, duration time.Duration) {
	m.webhookProcessingDuration.WithLabelValues(provider, eventType).Observe(duration.Seconds())
}

func (m *Metrics) RecordWebhookError(provider, errorType string) {
	m.webhookErrorsTotal.WithLabelValues(provider, errorType).Inc()
}

func (m *Metrics) RecordEntitlementChange(provider string, granted bool) {
	change := "revoke"
	if granted {
		change = "grant"
	}
	m.entitlementChangesTotal.WithLabelValues(provider, change).Inc()
}

func (m *Metrics) RecordReceiptVerification(provider string, verified bool) {
	m.receiptVerificationsTotal.WithLabelValues(provider, strconv.FormatBool(verified)).Inc()
}

func (m *Metrics) RecordAPICall(provider, endpoint, status string) {
	m.apiCallsTotal.WithLabelValues(provider, endpoint, status).Inc()
}

func (m *Metrics) RecordAPICallDuration(provider, endpoint string, duration time.Duration) {
	m.apiCallDuration.WithLabelValues(provider, endpoint).Observe(duration.Seconds())
}

func (m *Metrics) RecordGrant(source premium.Source, productID string, applied bool) {
	m.grantsTotal.WithLabelValues(string(source), productID, strconv.FormatBool(applied)).Inc()
}

func (m *Metrics) RecordRevoke(source premium.Source, applied bool) {
	m.revokesTotal.WithLabelValues(string(source), strconv.FormatBool(applied)).Inc()
}

func (m *Metrics) RecordStatusLookup(isPremium bool, duration time.Duration, err error) {
	result := "free"
	switch {
	case err != nil:
		result = "error"
	case isPremium:
		result = "premium"
	}
	m.statusLookupsTotal.WithLabelValues(result).Inc()
	m.statusLookupDuration.Observe(duration.Seconds())
}

func (m *Metrics) RecordCacheHit() {
	m.cacheHitsTotal.Inc()
}

func (m *Metrics) RecordCacheMiss() {
	m.cacheMissesTotal.Inc()
}

func (m *Metrics) RecordStorageOperation(operation string, duration time.Duration, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	m.storageOpsTotal.WithLabelValues(operation, status).Inc()
	m.storageOpDuration.WithLabelValues(operation).Observe(duration.Seconds())
}

// DefaultMetrics returns a Metrics implementation using the default Prometheus registerer.
func DefaultMetrics(namespace string) *Metrics {
	return NewMetrics(prometheus.DefaultRegisterer, namespace)
}
