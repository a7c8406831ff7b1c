package prommetrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/mihaimyh/goentitle/pkg/entitle"
)

// Metrics implements entitle.Metrics using Prometheus.
type Metrics struct {
	catalogFetchTotal     *prometheus.CounterVec
	catalogSize           *prometheus.GaugeVec
	purchaseTotal         *prometheus.CounterVec
	purchaseDuration      *prometheus.HistogramVec
	verificationTotal     *prometheus.CounterVec
	restoreEntriesTotal   *prometheus.CounterVec
	statusCheckTotal      *prometheus.CounterVec
	statusCheckDuration   prometheus.Histogram
	statusCheckStaleTotal prometheus.Counter
}

// NewMetrics creates a new Prometheus metrics implementation.
func NewMetrics(reg prometheus.Registerer, namespace string) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		catalogFetchTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "client",
			Name:      "catalog_fetch_total",
			Help:      "Total number of catalog requests by source.",
		}, []string{"adapter", "source"}),

		catalogSize: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "client",
			Name:      "catalog_size",
			Help:      "Number of products returned by the last catalog request.",
		}, []string{"adapter"}),

		purchaseTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "client",
			Name:      "purchase_total",
			Help:      "Total number of purchase attempts by outcome.",
		}, []string{"adapter", "outcome"}),

		purchaseDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "client",
			Name:      "purchase_duration_seconds",
			Help:      "Latency of purchase attempts, including store UI time.",
			Buckets:   []float64{0.1, 0.5, 1, 5, 15, 30, 60, 120, 300},
		}, []string{"adapter"}),

		verificationTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "client",
			Name:      "verification_total",
			Help:      "Total number of purchase verifications.",
		}, []string{"adapter", "verified"}),

		restoreEntriesTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "client",
			Name:      "restore_entries_total",
			Help:      "Total number of history entries seen during restore.",
		}, []string{"adapter", "stage"}),

		statusCheckTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "client",
			Name:      "status_check_total",
			Help:      "Total number of premium status checks.",
		}, []string{"result"}),

		statusCheckDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "client",
			Name:      "status_check_duration_seconds",
			Help:      "Latency of premium status checks.",
			Buckets:   prometheus.DefBuckets,
		}),

		statusCheckStaleTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "client",
			Name:      "status_check_stale_total",
			Help:      "Total number of status responses discarded as stale.",
		}),
	}
}

func (m *Metrics) RecordCatalogFetch(adapter, source string, count int) {
	m.catalogFetchTotal.WithLabelValues(adapter, source).Inc()
	m.catalogSize.WithLabelValues(adapter).Set(float64(count))
}

func (m *Metrics) RecordPurchase(adapter string, failure entitle.FailureKind, duration time.Duration) {
	outcome := string(failure)
	if failure == entitle.FailureNone {
		outcome = "success"
	}
	m.purchaseTotal.WithLabelValues(adapter, outcome).Inc()
	m.purchaseDuration.WithLabelValues(adapter).Observe(duration.Seconds())
}

func (m *Metrics) RecordVerification(adapter string, verified bool) {
	m.verificationTotal.WithLabelValues(adapter, strconv.FormatBool(verified)).Inc()
}

func (m *Metrics) RecordRestore(adapter string, fetched, verified int) {
	m.restoreEntriesTotal.WithLabelValues(adapter, "fetched").Add(float64(fetched))
	m.restoreEntriesTotal.WithLabelValues(adapter, "restored").Add(float64(verified))
}

func (m *Metrics) RecordStatusCheck(isPremium bool, err error, stale bool, duration time.Duration) {
	m.statusCheckDuration.Observe(duration.Seconds())
	if stale {
		m.statusCheckStaleTotal.Inc()
		return
	}
	switch {
	case err != nil:
		m.statusCheckTotal.WithLabelValues("error").Inc()
	case isPremium:
		m.statusCheckTotal.WithLabelValues("premium").Inc()
	default:
		m.statusCheckTotal.WithLabelValues("free").Inc()
	}
}

// DefaultMetrics returns a Metrics implementation using the default Prometheus registerer.
func DefaultMetrics(namespace string) *Metrics {
	return NewMetrics(prometheus.DefaultRegisterer, namespace)
}
