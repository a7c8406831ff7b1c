package premium

import (
	"strings"
	"time"
)

// Source identifies who granted or revoked premium
type Source string

const (
	SourceStripe   Source = "stripe"
	SourceAppStore Source = "appstore"
	SourceAdmin    Source = "admin"
)

// Status is a user's premium entitlement as stored by the server
type Status struct {
	UserID    string     `json:"userId"`
	IsPremium bool       `json:"isPremium"`
	ProductID string     `json:"productId,omitempty"`
	ExpiresAt *time.Time `json:"expiresAt,omitempty"`
	Source    Source     `json:"source,omitempty"`
	UpdatedAt time.Time  `json:"updatedAt"`
}

// Active reports whether the status grants premium at the given time
func (s *Status) Active(now time.Time) bool {
	if s == nil || !s.IsPremium {
		return false
	}
	return s.ExpiresAt == nil || now.Before(*s.ExpiresAt)
}

func (s *Status) clone() *Status {
	if s == nil {
		return nil
	}
	c := *s
	if s.ExpiresAt != nil {
		t := *s.ExpiresAt
		c.ExpiresAt = &t
	}
	return &c
}

// Purchase is a verified store transaction
type Purchase struct {
	TransactionID string    `json:"transactionId"`
	UserID        string    `json:"userId"`
	ProductID     string    `json:"productId"`
	Platform      string    `json:"platform"`
	Receipt       string    `json:"receipt,omitempty"`
	CreatedAt     time.Time `json:"createdAt"`
}

// GrantRequest unlocks premium for a user
type GrantRequest struct {
	UserID    string
	ProductID string
	Source    Source

	// EventTime is when the provider produced the event. Events older than the
	// stored status are ignored. Default: now
	EventTime time.Time

	// ExpiresAt overrides the product expiry rule (e.g., the provider's period end)
	ExpiresAt *time.Time
}

// RevokeRequest removes premium from a user
type RevokeRequest struct {
	UserID    string
	Source    Source
	EventTime time.Time
}

// ExpiryRule maps a product id substring to a premium duration. Zero means no expiry.
type ExpiryRule struct {
	Match    string
	Duration time.Duration
}

// DefaultExpiryRules grants 30 days for monthly, 365 days for yearly and
// forever for lifetime products.
func DefaultExpiryRules() []ExpiryRule {
	return []ExpiryRule{
		{Match: "monthly", Duration: 30 * 24 * time.Hour},
		{Match: "yearly", Duration: 365 * 24 * time.Hour},
		{Match: "lifetime", Duration: 0},
	}
}

// expiryFor returns the expiry for productID granted at t, or ok=false when no rule matches
func expiryFor(rules []ExpiryRule, productID string, t time.Time) (expires *time.Time, ok bool) {
	id := strings.ToLower(productID)
	for _, r := range rules {
		if !strings.Contains(id, strings.ToLower(r.Match)) {
			continue
		}
		if r.Duration <= 0 {
			return nil, true
		}
		e := t.Add(r.Duration)
		return &e, true
	}
	return nil, false
}
