package stripe

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v83"

	"github.com/mihaimyh/goentitle/pkg/billing"
	"github.com/mihaimyh/goentitle/pkg/entitle"
)

func TestNewProvider_Validation(t *testing.T) {
	_, err := NewProvider(Config{Config: billing.Config{Ledger: newTestManager(t)}})
	assert.ErrorIs(t, err, billing.ErrProviderNotConfigured, "api key is required")

	_, err = NewProvider(Config{Config: billing.Config{APIKey: "sk_test_123"}})
	assert.ErrorIs(t, err, billing.ErrProviderNotConfigured, "ledger is required")

	provider, err := NewProvider(Config{Config: billing.Config{APIKey: "sk_test_123", Ledger: newTestManager(t)}})
	require.NoError(t, err)
	assert.Equal(t, "stripe", provider.Name())
	assert.Equal(t, defaultProductFilter, provider.filter)
}

func TestFormatPrice(t *testing.T) {
	tests := map[int64]string{
		0:    "$0.00",
		5:    "$0.05",
		499:  "$4.99",
		1000: "$10.00",
		9999: "$99.99",
	}
	for amount, want := range tests {
		assert.Equal(t, want, FormatPrice(amount))
	}
}

func TestProvider_Products(t *testing.T) {
	api := &fakeAPI{
		products: []*stripe.Product{
			{ID: "prod_monthly", Name: "Premium Monthly", Description: "One month"},
			{ID: "prod_lifetime", Name: "Premium Lifetime"},
			{ID: "prod_mug", Name: "Coffee Mug"},
			{ID: "prod_unpriced", Name: "Premium Beta"},
		},
		prices: []*stripe.Price{
			price("price_m", "prod_monthly", 499, true),
			{ID: "price_l", Product: &stripe.Product{ID: "prod_lifetime"}, UnitAmount: 9999, Currency: "eur", Type: stripe.PriceTypeOneTime},
			price("price_mug", "prod_mug", 1500, false),
		},
	}
	provider, _ := newTestProvider(t, api)

	products, err := provider.Products(context.Background())
	require.NoError(t, err)
	require.Len(t, products, 3)

	assert.Equal(t, entitle.Product{
		ProductID: "prod_monthly", Title: "Premium Monthly", Description: "One month",
		Price: "$4.99", CurrencyCode: "USD", Kind: entitle.KindSubscription,
	}, products[0])
	assert.Equal(t, "$99.99", products[1].Price)
	assert.Equal(t, "EUR", products[1].CurrencyCode)
	assert.Equal(t, entitle.KindNonConsumable, products[1].Kind)
	assert.Equal(t, "Premium features", products[1].Description)
	assert.Equal(t, "$0.00", products[2].Price)
}

func TestProvider_ProductsError(t *testing.T) {
	provider, _ := newTestProvider(t, &fakeAPI{err: errors.New("stripe down")})

	_, err := provider.Products(context.Background())
	assert.ErrorIs(t, err, billing.ErrProviderAPIError)
}

func TestProvider_CreateIntent(t *testing.T) {
	api := &fakeAPI{
		prices: []*stripe.Price{
			price("price_m", "prod_monthly", 499, true),
			price("price_l", "prod_lifetime", 9999, false),
		},
	}
	provider, _ := newTestProvider(t, api)
	ctx := context.Background()

	t.Run("recurring opens a checkout session", func(t *testing.T) {
		intent, err := provider.CreateIntent(ctx, billing.IntentRequest{
			UserID: testUserID, Email: "a@example.com", ProductID: "prod_monthly", Origin: "https://app.example.com/",
		})
		require.NoError(t, err)
		assert.Equal(t, &billing.Intent{
			ClientSecret: "cs_test_1",
			IntentID:     "cs_test_1",
			CheckoutURL:  "https://checkout.stripe.com/c/pay/cs_test_1",
		}, intent)

		require.Len(t, api.sessions, 1)
		params := api.sessions[0]
		assert.Equal(t, "subscription", *params.Mode)
		assert.Equal(t, "price_m", *params.LineItems[0].Price)
		assert.Equal(t, "a@example.com", *params.CustomerEmail)
		assert.Equal(t, "https://app.example.com/payment/success?session_id={CHECKOUT_SESSION_ID}", *params.SuccessURL)
		assert.Equal(t, "https://app.example.com/payment/cancel", *params.CancelURL)
		assert.Equal(t, testUserID, params.Metadata["userId"])
		assert.Equal(t, "prod_monthly", params.SubscriptionData.Metadata["productId"])
	})

	t.Run("one-time creates a payment intent", func(t *testing.T) {
		intent, err := provider.CreateIntent(ctx, billing.IntentRequest{UserID: testUserID, ProductID: "prod_lifetime"})
		require.NoError(t, err)
		assert.Equal(t, "pi_test_1", intent.IntentID)
		assert.Equal(t, "pi_test_1_secret", intent.ClientSecret)
		assert.Empty(t, intent.CheckoutURL)

		require.Len(t, api.intents, 1)
		assert.Equal(t, int64(9999), *api.intents[0].Amount)
		assert.Equal(t, "usd", *api.intents[0].Currency)
		assert.Equal(t, "prod_lifetime", api.intents[0].Metadata["productId"])
	})

	t.Run("unknown product", func(t *testing.T) {
		_, err := provider.CreateIntent(ctx, billing.IntentRequest{UserID: testUserID, ProductID: "prod_nope"})
		assert.ErrorIs(t, err, billing.ErrProductNotFound)
	})

	t.Run("missing user", func(t *testing.T) {
		_, err := provider.CreateIntent(ctx, billing.IntentRequest{ProductID: "prod_monthly"})
		assert.ErrorIs(t, err, billing.ErrUserNotFound)
	})
}

func TestProvider_CreateIntentDefaultOrigin(t *testing.T) {
	api := &fakeAPI{prices: []*stripe.Price{price("price_m", "prod_monthly", 499, true)}}
	provider, _ := newTestProvider(t, api)

	_, err := provider.CreateIntent(context.Background(), billing.IntentRequest{UserID: testUserID, ProductID: "prod_monthly"})
	require.NoError(t, err)
	assert.Equal(t, "https://your-app.com/payment/cancel", *api.sessions[0].CancelURL)
}
