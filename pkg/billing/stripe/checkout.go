package stripe

import (
	"context"
	"fmt"
	"strings"

	"github.com/stripe/stripe-go/v83"

	"github.com/mihaimyh/goentitle/pkg/billing"
	"github.com/mihaimyh/goentitle/pkg/entitle"
)

// Metadata keys attached to sessions, intents and subscriptions so webhooks
// can find the user and product again.
const (
	metadataUserID    = "userId"
	metadataProductID = "productId"
)

// CreateIntent starts a payment for req.ProductID. Recurring prices open a
// subscription Checkout Session; one-time prices create a PaymentIntent.
func (p *Provider) CreateIntent(ctx context.Context, req billing.IntentRequest) (*billing.Intent, error) {
	if strings.TrimSpace(req.UserID) == "" {
		return nil, billing.ErrUserNotFound
	}
	if strings.TrimSpace(req.ProductID) == "" {
		return nil, fmt.Errorf("%w: product id is required", billing.ErrProductNotFound)
	}

	var prices []*stripe.Price
	err := p.call("/v1/prices", func() (err error) {
		prices, err = p.api.ListPrices(ctx, req.ProductID)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("%w: failed to list prices: %w", billing.ErrProviderAPIError, err)
	}
	if len(prices) == 0 {
		return nil, fmt.Errorf("%w: %s", billing.ErrProductNotFound, req.ProductID)
	}

	price := prices[0]
	metadata := map[string]string{
		metadataUserID:    req.UserID,
		metadataProductID: req.ProductID,
	}
	if price.Type == stripe.PriceTypeRecurring {
		return p.createSubscriptionCheckout(ctx, req, price, metadata)
	}
	return p.createPaymentIntent(ctx, req, price, metadata)
}

func (p *Provider) createSubscriptionCheckout(
	ctx context.Context, req billing.IntentRequest, price *stripe.Price, metadata map[string]string,
) (*billing.Intent, error) {
	origin := strings.TrimRight(req.Origin, "/")
	if origin == "" {
		origin = p.origin
	}

	params := &stripe.CheckoutSessionCreateParams{
		Mode: stripe.String(string(stripe.CheckoutSessionModeSubscription)),
		LineItems: []*stripe.CheckoutSessionCreateLineItemParams{
			{
				Price:    stripe.String(price.ID),
				Quantity: stripe.Int64(1),
			},
		},
		SuccessURL:        stripe.String(origin + "/payment/success?session_id={CHECKOUT_SESSION_ID}"),
		CancelURL:         stripe.String(origin + "/payment/cancel"),
		ClientReferenceID: stripe.String(req.UserID),
		Metadata:          metadata,
		// subscription events carry the user id too
		SubscriptionData: &stripe.CheckoutSessionCreateSubscriptionDataParams{Metadata: metadata},
	}
	if req.Email != "" {
		params.CustomerEmail = stripe.String(req.Email)
	}

	var session *stripe.CheckoutSession
	err := p.call("/v1/checkout/sessions", func() (err error) {
		session, err = p.api.CreateCheckoutSession(ctx, params)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("%w: failed to create checkout session: %w", billing.ErrProviderAPIError, err)
	}

	p.logger.Info("checkout session created",
		entitle.F("user_id", req.UserID), entitle.F("product_id", req.ProductID), entitle.F("session_id", session.ID))
	return &billing.Intent{
		ClientSecret: session.ID,
		IntentID:     session.ID,
		CheckoutURL:  session.URL,
	}, nil
}

func (p *Provider) createPaymentIntent(
	ctx context.Context, req billing.IntentRequest, price *stripe.Price, metadata map[string]string,
) (*billing.Intent, error) {
	currency := string(price.Currency)
	if currency == "" {
		currency = string(stripe.CurrencyUSD)
	}
	params := &stripe.PaymentIntentCreateParams{
		Amount:   stripe.Int64(price.UnitAmount),
		Currency: stripe.String(currency),
		Metadata: metadata,
	}

	var intent *stripe.PaymentIntent
	err := p.call("/v1/payment_intents", func() (err error) {
		intent, err = p.api.CreatePaymentIntent(ctx, params)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("%w: failed to create payment intent: %w", billing.ErrProviderAPIError, err)
	}

	p.logger.Info("payment intent created",
		entitle.F("user_id", req.UserID), entitle.F("product_id", req.ProductID), entitle.F("intent_id", intent.ID))
	return &billing.Intent{
		ClientSecret: intent.ClientSecret,
		IntentID:     intent.ID,
	}, nil
}
