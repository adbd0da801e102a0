package observability

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	dto "github.com/prometheus/client_model/go"
)

// Metrics holds all Prometheus metrics for the marketplace API.
type Metrics struct {
	// Registry is the Prometheus registry that owns these metrics.
	// Exposed so the /metrics endpoint can use it.
	Registry *prometheus.Registry

	httpDuration     *prometheus.HistogramVec
	externalErrors   *prometheus.CounterVec
	cacheHits        *prometheus.CounterVec
	cacheMisses      *prometheus.CounterVec
	quoteTransitions *prometheus.CounterVec
	matchesReturned  prometheus.Histogram
	featureDenials   *prometheus.CounterVec
	billingErrors    *prometheus.CounterVec
}

// NewMetrics creates a dedicated Prometheus registry and registers all
// application metrics in it. Using a private registry avoids "duplicate
// collector" panics when NewMetrics is called more than once (e.g. in tests).
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		Registry: reg,

		httpDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "marketplace_http_request_duration_seconds",
				Help:    "Duration of HTTP requests by route.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "route", "status"},
		),
		externalErrors: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "marketplace_external_errors_total",
				Help: "Total errors from external services.",
			},
			[]string{"service"},
		),
		cacheHits: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "marketplace_cache_hits_total",
				Help: "Total cache hits.",
			},
			[]string{"cache"},
		),
		cacheMisses: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "marketplace_cache_misses_total",
				Help: "Total cache misses.",
			},
			[]string{"cache"},
		),
		quoteTransitions: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "marketplace_quote_transitions_total",
				Help: "Quote provider status transitions by outcome.",
			},
			[]string{"to", "outcome"},
		),
		matchesReturned: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "marketplace_provider_matches",
				Help:    "Number of providers returned per match request.",
				Buckets: []float64{0, 1, 2, 5, 10, 20, 50, 100},
			},
		),
		featureDenials: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "marketplace_feature_denials_total",
				Help: "Feature gate denials by feature and reason.",
			},
			[]string{"feature", "reason"},
		),
		billingErrors: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "marketplace_billing_errors_total",
				Help: "Billing operations that returned an error envelope.",
			},
			[]string{"operation"},
		),
	}
}

// ObserveHTTP records one served HTTP request.
func (m *Metrics) ObserveHTTP(method, route string, status int, d time.Duration) {
	m.httpDuration.WithLabelValues(method, route, strconv.Itoa(status)).Observe(d.Seconds())
}

// IncrExternalError increments the external error counter.
func (m *Metrics) IncrExternalError(service string) {
	m.externalErrors.WithLabelValues(service).Inc()
}

// IncrCacheHit increments the cache hit counter.
func (m *Metrics) IncrCacheHit(cache string) {
	m.cacheHits.WithLabelValues(cache).Inc()
}

// IncrCacheMiss increments the cache miss counter.
func (m *Metrics) IncrCacheMiss(cache string) {
	m.cacheMisses.WithLabelValues(cache).Inc()
}

// IncrTransition counts a quote provider transition attempt. outcome is
// "ok" or "rejected".
func (m *Metrics) IncrTransition(to, outcome string) {
	m.quoteTransitions.WithLabelValues(to, outcome).Inc()
}

// ObserveMatches records how many providers a match request returned.
func (m *Metrics) ObserveMatches(n int) {
	m.matchesReturned.Observe(float64(n))
}

// IncrFeatureDenial counts a feature gate denial.
func (m *Metrics) IncrFeatureDenial(feature, reason string) {
	m.featureDenials.WithLabelValues(feature, reason).Inc()
}

// IncrBillingError counts a billing call that failed.
func (m *Metrics) IncrBillingError(operation string) {
	m.billingErrors.WithLabelValues(operation).Inc()
}

// CacheStats returns the cumulative hit and miss counts for one cache.
func (m *Metrics) CacheStats(cache string) (hits, misses float64) {
	return getCounterValue(m.cacheHits, cache), getCounterValue(m.cacheMisses, cache)
}

// getCounterValue extracts the current float64 value from a CounterVec for a given label.
func getCounterValue(cv *prometheus.CounterVec, label string) float64 {
	counter := cv.WithLabelValues(label)
	m := &dto.Metric{}
	if err := counter.(prometheus.Metric).Write(m); err != nil {
		return 0
	}
	if m.Counter != nil && m.Counter.Value != nil {
		return *m.Counter.Value
	}
	return 0
}
