package stripe

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/stripe/stripe-go/v83"
	"github.com/stripe/stripe-go/v83/webhook"

	"github.com/mihaimyh/goentitle/pkg/billing"
	"github.com/mihaimyh/goentitle/pkg/billing/internal"
	"github.com/mihaimyh/goentitle/pkg/entitle"
	"github.com/mihaimyh/goentitle/pkg/premium"
)

// errIgnored marks events that were understood but carry nothing to apply
var errIgnored = errors.New("event ignored")

// change is a ledger update derived from one webhook event
type change struct {
	userID    string
	productID string
	grant     bool
	expiresAt *time.Time
	metadata  map[string]string
}

// handleWebhook processes incoming Stripe webhook events
func (p *Provider) handleWebhook(w http.ResponseWriter, r *http.Request) {
	startTime := time.Now()
	internal.SetSecurityHeaders(w)

	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if p.webhookSecret == "" {
		http.Error(w, "webhook not configured", http.StatusServiceUnavailable)
		return
	}

	body, err := internal.ReadBodyStrict(w, r, maxWebhookBody)
	if err != nil {
		if errors.Is(err, internal.ErrPayloadTooLarge) {
			http.Error(w, "payload too large", http.StatusRequestEntityTooLarge)
			p.metrics.RecordWebhookError(providerName, "payload_too_large")
		} else {
			http.Error(w, fmt.Sprintf("invalid payload: %v", err), http.StatusBadRequest)
			p.metrics.RecordWebhookError(providerName, "invalid_payload")
		}
		return
	}

	event, err := webhook.ConstructEventWithOptions(body, r.Header.Get("Stripe-Signature"), p.webhookSecret,
		webhook.ConstructEventOptions{IgnoreAPIVersionMismatch: true})
	if err != nil {
		p.logger.Warn("stripe webhook signature verification failed", entitle.F("error", err.Error()))
		http.Error(w, billing.ErrInvalidWebhookSignature.Error(), http.StatusBadRequest)
		p.metrics.RecordWebhookError(providerName, "auth_failed")
		return
	}

	eventType := string(event.Type)
	if eventType == "" {
		eventType = "UNKNOWN"
	}

	status := "success"
	if err := p.processWebhookEvent(r.Context(), &event); err != nil {
		if !errors.Is(err, errIgnored) {
			p.logger.Error("stripe webhook processing failed",
				entitle.F("event_id", event.ID), entitle.F("event_type", eventType), entitle.F("error", err.Error()))
			http.Error(w, "failed to process webhook", http.StatusInternalServerError)
			p.metrics.RecordWebhookEvent(providerName, eventType, "error")
			p.metrics.RecordWebhookError(providerName, "processing_error")
			p.metrics.RecordWebhookProcessingDuration(providerName, eventType, time.Since(startTime))
			return
		}
		status = "ignored"
	}

	_ = internal.WriteJSON(w, http.StatusOK, map[string]bool{"received": true}) //nolint:errcheck // client gone
	p.metrics.RecordWebhookEvent(providerName, eventType, status)
	p.metrics.RecordWebhookProcessingDuration(providerName, eventType, time.Since(startTime))
}

// processWebhookEvent applies an event to the ledger. Events older than the
// stored status are dropped by the ledger.
func (p *Provider) processWebhookEvent(ctx context.Context, event *stripe.Event) error {
	var (
		c   *change
		err error
	)
	switch event.Type {
	case "checkout.session.completed":
		c, err = p.checkoutSessionCompleted(event)
	case "payment_intent.succeeded":
		c, err = p.paymentIntentSucceeded(event)
	case "customer.subscription.created", "customer.subscription.updated":
		c, err = p.subscriptionChanged(ctx, event)
	case "customer.subscription.deleted":
		c, err = p.subscriptionDeleted(ctx, event)
	default:
		p.logger.Debug("unhandled stripe event", entitle.F("event_type", string(event.Type)))
		return errIgnored
	}
	if err != nil {
		return err
	}
	return p.apply(ctx, event, c)
}

func (p *Provider) apply(ctx context.Context, event *stripe.Event, c *change) error {
	at := time.Unix(event.Created, 0).UTC()

	var (
		applied bool
		err     error
	)
	if c.grant {
		applied, err = p.ledger.Grant(ctx, premium.GrantRequest{
			UserID:    c.userID,
			ProductID: c.productID,
			Source:    premium.SourceStripe,
			EventTime: at,
			ExpiresAt: c.expiresAt,
		})
	} else {
		applied, err = p.ledger.Revoke(ctx, premium.RevokeRequest{
			UserID:    c.userID,
			Source:    premium.SourceStripe,
			EventTime: at,
		})
	}
	if errors.Is(err, premium.ErrUnknownProduct) {
		// retrying will not help; map the product in ProductMapping
		p.logger.Warn("stripe event for unmapped product",
			entitle.F("event_id", event.ID), entitle.F("product_id", c.productID))
		p.metrics.RecordWebhookError(providerName, "unknown_product")
		return errIgnored
	}
	if err != nil {
		return err
	}
	if !applied {
		return errIgnored
	}

	p.metrics.RecordEntitlementChange(providerName, c.grant)
	if p.callback != nil {
		cbErr := p.callback(ctx, billing.WebhookEvent{
			UserID:         c.userID,
			ProductID:      c.productID,
			Granted:        c.grant,
			Provider:       providerName,
			EventType:      string(event.Type),
			EventTimestamp: at,
			ExpiresAt:      c.expiresAt,
			Metadata:       c.metadata,
		})
		if cbErr != nil {
			p.logger.Error("webhook callback failed",
				entitle.F("event_id", event.ID), entitle.F("error", cbErr.Error()))
		}
	}
	return nil
}

func (p *Provider) checkoutSessionCompleted(event *stripe.Event) (*change, error) {
	var session stripe.CheckoutSession
	if err := json.Unmarshal(event.Data.Raw, &session); err != nil {
		return nil, fmt.Errorf("%w: checkout session: %w", billing.ErrInvalidWebhookPayload, err)
	}
	return p.fromMetadata(session.Metadata, event)
}

func (p *Provider) paymentIntentSucceeded(event *stripe.Event) (*change, error) {
	var intent stripe.PaymentIntent
	if err := json.Unmarshal(event.Data.Raw, &intent); err != nil {
		return nil, fmt.Errorf("%w: payment intent: %w", billing.ErrInvalidWebhookPayload, err)
	}
	return p.fromMetadata(intent.Metadata, event)
}

// fromMetadata builds a grant from the metadata set by CreateIntent
func (p *Provider) fromMetadata(metadata map[string]string, event *stripe.Event) (*change, error) {
	userID, productID := metadata[metadataUserID], metadata[metadataProductID]
	if userID == "" || productID == "" {
		p.logger.Warn("stripe event without user or product metadata",
			entitle.F("event_id", event.ID), entitle.F("event_type", string(event.Type)))
		return nil, errIgnored
	}
	return &change{
		userID:    userID,
		productID: p.ledgerProductID(productID),
		grant:     true,
		metadata:  metadata,
	}, nil
}

func (p *Provider) subscriptionChanged(ctx context.Context, event *stripe.Event) (*change, error) {
	sub, userID, err := p.subscription(ctx, event)
	if err != nil {
		return nil, err
	}

	c := &change{userID: userID, metadata: sub.Metadata}
	if sub.Status != stripe.SubscriptionStatusActive && sub.Status != stripe.SubscriptionStatusTrialing {
		return c, nil
	}
	if sub.Items == nil || len(sub.Items.Data) == 0 {
		return nil, fmt.Errorf("%w: subscription %s has no items", billing.ErrInvalidWebhookPayload, sub.ID)
	}

	item := sub.Items.Data[0]
	if item.Price != nil && item.Price.Product != nil {
		c.productID = p.ledgerProductID(item.Price.Product.ID)
	} else {
		c.productID = sub.Metadata[metadataProductID]
	}
	if item.CurrentPeriodEnd > 0 {
		end := time.Unix(item.CurrentPeriodEnd, 0).UTC()
		c.expiresAt = &end
	}
	c.grant = true
	return c, nil
}

func (p *Provider) subscriptionDeleted(ctx context.Context, event *stripe.Event) (*change, error) {
	sub, userID, err := p.subscription(ctx, event)
	if err != nil {
		return nil, err
	}
	return &change{userID: userID, metadata: sub.Metadata}, nil
}

// subscription decodes the event's subscription and finds its user, first in
// the subscription metadata and then in the customer's.
func (p *Provider) subscription(ctx context.Context, event *stripe.Event) (*stripe.Subscription, string, error) {
	var sub stripe.Subscription
	if err := json.Unmarshal(event.Data.Raw, &sub); err != nil {
		return nil, "", fmt.Errorf("%w: subscription: %w", billing.ErrInvalidWebhookPayload, err)
	}

	if userID := sub.Metadata[metadataUserID]; userID != "" {
		return &sub, userID, nil
	}
	if sub.Customer != nil && sub.Customer.ID != "" {
		var cust *stripe.Customer
		err := p.call("/v1/customers", func() (err error) {
			cust, err = p.api.GetCustomer(ctx, sub.Customer.ID)
			return err
		})
		if err != nil {
			return nil, "", fmt.Errorf("%w: failed to get customer: %w", billing.ErrProviderAPIError, err)
		}
		if userID := cust.Metadata[metadataUserID]; userID != "" {
			return &sub, userID, nil
		}
	}

	p.logger.Warn("stripe subscription without user id",
		entitle.F("event_id", event.ID), entitle.F("subscription_id", sub.ID))
	return nil, "", errIgnored
}
