package domain

import "time"

// ============================================================
// Subscription billing (proxied to the payment provider)
// ============================================================

// Tier is the subscription level that feature limits are derived from.
type Tier string

const (
	TierFree    Tier = "free"
	TierBasic   Tier = "basic"
	TierPremium Tier = "premium"
)

// TierThresholds classifies a recurring amount (in cents) into a tier.
// Amount >= Premium is premium, amount >= Basic is basic, else free.
type TierThresholds struct {
	Basic   int64
	Premium int64
}

// Classify returns the tier for amountCents.
func (t TierThresholds) Classify(amountCents int64) Tier {
	switch {
	case t.Premium > 0 && amountCents >= t.Premium:
		return TierPremium
	case t.Basic > 0 && amountCents >= t.Basic:
		return TierBasic
	default:
		return TierFree
	}
}

// CheckoutRequest starts a subscription checkout for a plan.
type CheckoutRequest struct {
	PlanID     string `json:"plan_id" validate:"required"`
	SuccessURL string `json:"success_url,omitempty" validate:"omitempty,url"`
}

// CheckoutSession is where the client is sent to pay.
type CheckoutSession struct {
	ID  string `json:"id,omitempty"`
	URL string `json:"url,omitempty"`
}

// PortalSession is the provider-hosted subscription management page.
type PortalSession struct {
	URL string `json:"url,omitempty"`
}

// SubscriptionStatus summarizes the caller's current subscription.
type SubscriptionStatus struct {
	Subscribed     bool       `json:"subscribed"`
	Tier           Tier       `json:"tier"`
	SubscriptionID string     `json:"subscription_id,omitempty"`
	PlanID         string     `json:"plan_id,omitempty"`
	AmountCents    int64      `json:"amount_cents,omitempty"`
	CurrentEnd     *time.Time `json:"current_period_end,omitempty"`
}

// Product is a purchasable subscription plan.
type Product struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Status      string `json:"status,omitempty"`
	AmountCents int64  `json:"amount_cents"`
	Currency    string `json:"currency"`
	Interval    string `json:"interval,omitempty"`
	Tier        Tier   `json:"tier"`
}

// Subscription is the raw gateway record before tier classification.
type Subscription struct {
	ID          string
	PlanID      string
	Status      string
	AmountCents int64
	NextPayment *time.Time
}

// Active reports whether the gateway considers the subscription live.
func (s Subscription) Active() bool {
	return s.Status == "authorized" || s.Status == "active"
}

// BillingEnvelope is the always-200 payload of the billing endpoints.
// Error is set instead of using an HTTP error status.
type BillingEnvelope struct {
	Data  any    `json:"data,omitempty"`
	Error string `json:"error,omitempty"`
}
