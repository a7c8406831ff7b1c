package prommetrics

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"

	"github.com/mihaimyh/goentitle/pkg/premium"
)

func TestMetrics_Billing(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg, "test")

	m.RecordWebhookEvent("stripe", "checkout.session.completed", "success")
	m.RecordWebhookError("stripe", "auth_failed")
	m.RecordEntitlementChange("stripe", true)
	m.RecordEntitlementChange("stripe", false)
	m.RecordEntitlementChange("stripe", false)
	m.RecordReceiptVerification("appstore", true)
	m.RecordAPICall("stripe", "/v1/products", "success")
	m.RecordAPICallDuration("stripe", "/v1/products", time.Millisecond)
	m.RecordWebhookProcessingDuration("stripe", "checkout.session.completed", time.Millisecond)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.webhookEventsTotal.WithLabelValues("stripe", "checkout.session.completed", "success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.webhookErrorsTotal.WithLabelValues("stripe", "auth_failed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.entitlementChangesTotal.WithLabelValues("stripe", "grant")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.entitlementChangesTotal.WithLabelValues("stripe", "revoke")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.receiptVerificationsTotal.WithLabelValues("appstore", "true")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.apiCallsTotal.WithLabelValues("stripe", "/v1/products", "success")))
}

func TestMetrics_Premium(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg, "test")

	m.RecordGrant(premium.SourceStripe, "premium_monthly", true)
	m.RecordGrant(premium.SourceStripe, "premium_monthly", false)
	m.RecordRevoke(premium.SourceAdmin, true)
	m.RecordStatusLookup(true, time.Millisecond, nil)
	m.RecordStatusLookup(false, time.Millisecond, nil)
	m.RecordStatusLookup(false, time.Millisecond, errors.New("down"))
	m.RecordCacheHit()
	m.RecordCacheMiss()
	m.RecordCacheMiss()
	m.RecordStorageOperation("get_status", time.Millisecond, nil)
	m.RecordStorageOperation("get_status", time.Millisecond, errors.New("down"))

	assert.Equal(t, 1.0, testutil.ToFloat64(m.grantsTotal.WithLabelValues("stripe", "premium_monthly", "true")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.grantsTotal.WithLabelValues("stripe", "premium_monthly", "false")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.revokesTotal.WithLabelValues("admin", "true")))
	for _, result := range []string{"premium", "free", "error"} {
		assert.Equal(t, 1.0, testutil.ToFloat64(m.statusLookupsTotal.WithLabelValues(result)), result)
	}
	assert.Equal(t, 1.0, testutil.ToFloat64(m.cacheHitsTotal))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.cacheMissesTotal))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.storageOpsTotal.WithLabelValues("get_status", "error")))
}

func TestMetrics_Registration(t *testing.T) {
	reg := prometheus.NewRegistry()
	NewMetrics(reg, "goentitle")

	count, err := testutil.GatherAndCount(reg)
	assert.NoError(t, err)
	// vectors without observations are not exported
	assert.Equal(t, 3, count)
}
