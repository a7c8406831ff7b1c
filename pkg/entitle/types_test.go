package entitle

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseProductKind(t *testing.T) {
	tests := map[string]ProductKind{
		"consumable":     KindConsumable,
		"subscription":   KindSubscription,
		"non_consumable": KindNonConsumable,
		"non-consumable": KindNonConsumable,
		"NON-CONSUMABLE": KindNonConsumable,
		"":               KindNonConsumable,
		"bogus":          KindNonConsumable,
	}
	for raw, want := range tests {
		assert.Equal(t, want, ParseProductKind(raw), raw)
	}
}

func TestProduct_JSON(t *testing.T) {
	var p Product
	require.NoError(t, json.Unmarshal([]byte(
		`{"productId":"PREMIUM_LIFETIME","title":"t","description":"d","price":"$99.99","type":"non-consumable"}`,
	), &p))
	assert.Equal(t, KindNonConsumable, p.Kind)
	assert.Equal(t, "$99.99", p.Price)
}

func TestFallbackCatalog(t *testing.T) {
	products := FallbackCatalog()
	require.Len(t, products, 3)

	ids := make([]string, len(products))
	prices := make([]string, len(products))
	for i, p := range products {
		ids[i] = p.ProductID
		prices[i] = p.Price
	}
	assert.Equal(t, DefaultProductIDs(), ids)
	assert.Equal(t, []string{"$4.99", "$39.99", "$99.99"}, prices)

	// callers may mutate the result
	products[0].Price = "free"
	assert.Equal(t, "$4.99", FallbackCatalog()[0].Price)
}

func TestSelect(t *testing.T) {
	native := &fakeAdapter{name: "store"}
	server := &fakeAdapter{name: "server"}

	tests := []struct {
		platform Platform
		want     string
	}{
		{PlatformIOS, "store"},
		{PlatformAndroid, "server"},
		{PlatformWeb, "server"},
	}
	for _, tt := range tests {
		a, err := Select(tt.platform, native, server)
		require.NoError(t, err)
		assert.Equal(t, tt.want, a.Name(), tt.platform)
	}

	_, err := Select(PlatformIOS, nil, server)
	assert.ErrorIs(t, err, ErrNoAdapter)
}

func TestFailureFromError(t *testing.T) {
	tests := []struct {
		err  error
		want FailureKind
	}{
		{nil, FailureNone},
		{fmt.Errorf("wrap: %w", ErrNotConnected), FailureConnection},
		{ErrCatalogUnavailable, FailureCatalogUnavailable},
		{ErrPurchaseInProgress, FailureInProgress},
		{ErrVerificationFailed, FailureVerification},
		{fmt.Errorf("x: %w", ErrNetwork), FailureNetwork},
		{&net.OpError{Op: "dial", Err: errBoom}, FailureNetwork},
		{context.DeadlineExceeded, FailureNetwork},
		{errBoom, FailureFailed},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, FailureFromError(tt.err), fmt.Sprint(tt.err))
	}
}
