package billing

import "time"

// WebhookEvent describes an entitlement change applied from a webhook.
// It is passed to the WebhookCallback after the Ledger accepted the change.
type WebhookEvent struct {
	// UserID is the internal user identifier
	UserID string

	// ProductID is the granted product (empty for revokes)
	ProductID string

	// Granted is true for grants and false for revokes
	Granted bool

	// Provider is the billing provider name ("stripe")
	Provider string

	// EventType is the provider-specific event type
	// Stripe: "checkout.session.completed", "customer.subscription.deleted", etc.
	EventType string

	// EventTimestamp is when the event occurred (from provider)
	EventTimestamp time.Time

	// ExpiresAt is when the entitlement expires (nil for lifetime/unknown)
	ExpiresAt *time.Time

	// Metadata contains provider-specific additional data
	Metadata map[string]string
}
