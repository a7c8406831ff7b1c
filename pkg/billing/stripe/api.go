package stripe

import (
	"context"

	"github.com/stripe/stripe-go/v83"
)

// stripeAPI is the slice of the Stripe API the provider uses
type stripeAPI interface {
	ListProducts(ctx context.Context) ([]*stripe.Product, error)
	// ListPrices lists active prices, for one product when productID is set
	ListPrices(ctx context.Context, productID string) ([]*stripe.Price, error)
	CreateCheckoutSession(ctx context.Context, params *stripe.CheckoutSessionCreateParams) (*stripe.CheckoutSession, error)
	CreatePaymentIntent(ctx context.Context, params *stripe.PaymentIntentCreateParams) (*stripe.PaymentIntent, error)
	GetCustomer(ctx context.Context, id string) (*stripe.Customer, error)
}

type clientAPI struct {
	client *stripe.Client
}

func (c *clientAPI) ListProducts(ctx context.Context) ([]*stripe.Product, error) {
	var products []*stripe.Product
	for product, err := range c.client.V1Products.List(ctx, &stripe.ProductListParams{Active: stripe.Bool(true)}) {
		if err != nil {
			return nil, err
		}
		products = append(products, product)
	}
	return products, nil
}

func (c *clientAPI) ListPrices(ctx context.Context, productID string) ([]*stripe.Price, error) {
	params := &stripe.PriceListParams{Active: stripe.Bool(true)}
	if productID != "" {
		params.Product = stripe.String(productID)
	}
	var prices []*stripe.Price
	for price, err := range c.client.V1Prices.List(ctx, params) {
		if err != nil {
			return nil, err
		}
		prices = append(prices, price)
	}
	return prices, nil
}

func (c *clientAPI) CreateCheckoutSession(
	ctx context.Context, params *stripe.CheckoutSessionCreateParams,
) (*stripe.CheckoutSession, error) {
	return c.client.V1CheckoutSessions.Create(ctx, params)
}

func (c *clientAPI) CreatePaymentIntent(
	ctx context.Context, params *stripe.PaymentIntentCreateParams,
) (*stripe.PaymentIntent, error) {
	return c.client.V1PaymentIntents.Create(ctx, params)
}

func (c *clientAPI) GetCustomer(ctx context.Context, id string) (*stripe.Customer, error) {
	return c.client.V1Customers.Retrieve(ctx, id, nil)
}
