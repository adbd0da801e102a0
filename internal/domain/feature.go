package domain

// Feature names used by the gate.
const (
	FeaturePortfolioImages   = "portfolio_images"
	FeatureProviderVisible   = "provider_visibility"
	FeatureMonthlyQuoteSends = "monthly_quote_sends"
)

// FeatureLimit is a per-user ceiling resolved from the subscription tier.
//
// Known=false means the policy function gave nothing usable; callers pick
// their own conservative default. Known with a nil Limit is unlimited.
type FeatureLimit struct {
	Feature string `json:"feature"`
	Limit   *int   `json:"limit"`
	Known   bool   `json:"known"`
}

// Unlimited reports a known, unbounded limit.
func (l FeatureLimit) Unlimited() bool {
	return l.Known && l.Limit == nil
}

// Allows reports whether one more unit fits on top of current.
// An unknown limit never allows.
func (l FeatureLimit) Allows(current int) bool {
	if !l.Known {
		return false
	}
	if l.Limit == nil {
		return true
	}
	return current < *l.Limit
}

// Enabled interprets the limit as a boolean flag (limit > 0 or unlimited).
func (l FeatureLimit) Enabled() bool {
	return l.Known && (l.Limit == nil || *l.Limit > 0)
}
