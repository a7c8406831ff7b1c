package stripe

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v83"

	"github.com/mihaimyh/goentitle/pkg/billing"
	"github.com/mihaimyh/goentitle/pkg/premium"
	"github.com/mihaimyh/goentitle/storage/memory"
)

const (
	testUserID        = "user_123"
	testCustomerID    = "cus_123"
	testWebhookSecret = "whsec_test_secret"
)

type fakeAPI struct {
	mu        sync.Mutex
	products  []*stripe.Product
	prices    []*stripe.Price
	customers map[string]*stripe.Customer
	err       error

	sessions []*stripe.CheckoutSessionCreateParams
	intents  []*stripe.PaymentIntentCreateParams
}

func (f *fakeAPI) ListProducts(context.Context) ([]*stripe.Product, error) {
	return f.products, f.err
}

func (f *fakeAPI) ListPrices(_ context.Context, productID string) ([]*stripe.Price, error) {
	if f.err != nil {
		return nil, f.err
	}
	var out []*stripe.Price
	for _, p := range f.prices {
		if productID == "" || (p.Product != nil && p.Product.ID == productID) {
			out = append(out, p)
		}
	}
	return out, nil
}

func (f *fakeAPI) CreateCheckoutSession(
	_ context.Context, params *stripe.CheckoutSessionCreateParams,
) (*stripe.CheckoutSession, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	f.sessions = append(f.sessions, params)
	return &stripe.CheckoutSession{ID: "cs_test_1", URL: "https://checkout.stripe.com/c/pay/cs_test_1"}, nil
}

func (f *fakeAPI) CreatePaymentIntent(
	_ context.Context, params *stripe.PaymentIntentCreateParams,
) (*stripe.PaymentIntent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	f.intents = append(f.intents, params)
	return &stripe.PaymentIntent{ID: "pi_test_1", ClientSecret: "pi_test_1_secret"}, nil
}

func (f *fakeAPI) GetCustomer(_ context.Context, id string) (*stripe.Customer, error) {
	if f.err != nil {
		return nil, f.err
	}
	if c, ok := f.customers[id]; ok {
		return c, nil
	}
	return &stripe.Customer{ID: id}, nil
}

func newTestManager(t *testing.T) *premium.Manager {
	t.Helper()
	manager, err := premium.NewManager(memory.New(), premium.Config{
		CacheTTL: -1,
		Now:      func() time.Time { return eventTime.Add(5 * time.Hour) },
	})
	require.NoError(t, err)
	return manager
}

func newTestProvider(t *testing.T, api *fakeAPI, mutate ...func(*Config)) (*Provider, *premium.Manager) {
	t.Helper()
	manager := newTestManager(t)
	config := Config{
		Config: billing.Config{
			Ledger:        manager,
			WebhookSecret: testWebhookSecret,
		},
		ProductMapping: map[string]string{
			"prod_monthly":  "premium_monthly",
			"prod_lifetime": "premium_lifetime",
		},
	}
	for _, m := range mutate {
		m(&config)
	}
	provider, err := newProvider(config, api)
	require.NoError(t, err)
	return provider, manager
}

func testEvent(t *testing.T, eventType string, created time.Time, object interface{}) *stripe.Event {
	t.Helper()
	raw, err := json.Marshal(object)
	require.NoError(t, err)
	return &stripe.Event{
		ID:      "evt_test_123",
		Type:    stripe.EventType(eventType),
		Created: created.Unix(),
		Data:    &stripe.EventData{Raw: raw},
	}
}

func price(id, productID string, amount int64, recurring bool) *stripe.Price {
	p := &stripe.Price{
		ID:         id,
		Product:    &stripe.Product{ID: productID},
		UnitAmount: amount,
		Currency:   stripe.CurrencyUSD,
		Type:       stripe.PriceTypeOneTime,
	}
	if recurring {
		p.Type = stripe.PriceTypeRecurring
	}
	return p
}
