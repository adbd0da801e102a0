package service

import (
	"context"
	"fmt"
	"math"
	"sort"

	"github.com/boddenberg/servicos-marketplace-bfa-go/internal/domain"
	"github.com/boddenberg/servicos-marketplace-bfa-go/internal/infra/observability"
	"github.com/boddenberg/servicos-marketplace-bfa-go/internal/port"

	"github.com/samber/lo"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

var matchTracer = otel.Tracer("service/matcher")

// MatchOptions selects ordering and filtering of matches.
type MatchOptions struct {
	Sort             domain.SortOrder
	WithinRadiusOnly bool
}

// maxVisibilityChecks bounds the parallel provider_visibility lookups.
const maxVisibilityChecks = 8

// Matcher ranks the providers that offer a quote's service. Providers
// whose tier turns provider_visibility off are left out.
type Matcher struct {
	providers port.ProviderStore
	gate      *FeatureGate
	metrics   *observability.Metrics
	logger    *zap.Logger
}

func NewMatcher(providers port.ProviderStore, gate *FeatureGate, metrics *observability.Metrics, logger *zap.Logger) *Matcher {
	return &Matcher{providers: providers, gate: gate, metrics: metrics, logger: logger}
}

// Match prices and orders every candidate for q.
func (m *Matcher) Match(ctx context.Context, q *domain.Quote, opts MatchOptions) ([]domain.ProviderMatch, error) {
	ctx, span := matchTracer.Start(ctx, "Matcher.Match")
	defer span.End()
	span.SetAttributes(
		attribute.String("quote.id", q.ID),
		attribute.String("sort", string(opts.Sort)),
	)

	candidates, err := m.providers.ListCandidates(ctx, q.Path)
	if err != nil {
		return nil, fmt.Errorf("list candidates: %w", err)
	}

	visible, err := m.visible(ctx, candidates)
	if err != nil {
		return nil, err
	}

	origin := q.Address.Coordinates()
	matches := make([]domain.ProviderMatch, 0, len(visible))
	for _, p := range visible {
		match := buildMatch(p, q, origin)
		if opts.WithinRadiusOnly && match.DistanceKm != nil && !match.IsWithinRadius {
			continue
		}
		matches = append(matches, match)
	}

	sortMatches(matches, opts.Sort)

	m.metrics.ObserveMatches(len(matches))
	m.logger.Debug("providers matched",
		zap.String("quote_id", q.ID),
		zap.Int("candidates", len(candidates)),
		zap.Int("matches", len(matches)),
	)
	return matches, nil
}

// visible drops candidates whose provider_visibility limit is known and
// off. An unknown limit keeps the provider listed.
func (m *Matcher) visible(ctx context.Context, candidates []domain.ProviderProfile) ([]domain.ProviderProfile, error) {
	keep := make([]bool, len(candidates))

	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(maxVisibilityChecks)
	for i, p := range candidates {
		g.Go(func() error {
			limit, err := m.gate.GetFeatureLimit(gCtx, p.ID, domain.FeatureProviderVisible)
			if err != nil {
				return err
			}
			keep[i] = !limit.Known || limit.Enabled()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	out := lo.Filter(candidates, func(_ domain.ProviderProfile, i int) bool { return keep[i] })
	if hidden := len(candidates) - len(out); hidden > 0 {
		m.metrics.IncrFeatureDenial(domain.FeatureProviderVisible, "hidden")
		m.logger.Debug("providers hidden by tier", zap.Int("hidden", hidden))
	}
	return out, nil
}

func buildMatch(p domain.ProviderProfile, q *domain.Quote, origin *domain.GeoPoint) domain.ProviderMatch {
	breakdown, priced := priceQuote(p.Prices, q)
	total := lo.SumBy(breakdown, func(l domain.PriceLine) float64 { return l.Subtotal })

	match := domain.ProviderMatch{
		Provider:   p,
		TotalPrice: roundCents(total),
		Priced:     priced,
		Breakdown:  breakdown,
	}

	if dest := p.Address.Coordinates(); origin != nil && dest != nil {
		d := math.Round(domain.HaversineKm(*origin, *dest)*100) / 100
		match.DistanceKm = &d
		match.HasLocation = true
		match.IsWithinRadius = domain.CoversDistance(p.ServiceRadiusKm, d)
	} else {
		match.IsWithinRadius = p.ServiceRadiusKm == 0
	}
	return match
}

// priceQuote itemizes q against a provider's price rows. Each item takes
// the item price at the most specific level on the quote's path, otherwise
// the provider's default price. A quote without items is priced at the
// default alone. The flag reports whether every item found a price.
func priceQuote(prices []domain.ProviderPrice, q *domain.Quote) ([]domain.PriceLine, bool) {
	onPath := lo.Filter(prices, func(pr domain.ProviderPrice, _ int) bool {
		return pr.NodeID != "" && q.Path.NodeAt(pr.Level) == pr.NodeID
	})
	def, hasDefault := mostSpecific(lo.Filter(onPath, func(pr domain.ProviderPrice, _ int) bool {
		return pr.IsDefault
	}))

	if len(q.Items) == 0 {
		if !hasDefault {
			return []domain.PriceLine{}, false
		}
		return []domain.PriceLine{line("", def, 1, true)}, true
	}

	complete := true
	lines := make([]domain.PriceLine, 0, len(q.Items))
	for _, item := range q.Items {
		if item.Quantity <= 0 {
			continue
		}
		specific, ok := mostSpecific(lo.Filter(onPath, func(pr domain.ProviderPrice, _ int) bool {
			return pr.ItemID == item.ItemID
		}))
		switch {
		case ok:
			lines = append(lines, line(item.ItemID, specific, item.Quantity, false))
		case hasDefault:
			lines = append(lines, line(item.ItemID, def, item.Quantity, true))
		default:
			complete = false
		}
	}
	return lines, complete && len(lines) > 0
}

func mostSpecific(prices []domain.ProviderPrice) (domain.ProviderPrice, bool) {
	if len(prices) == 0 {
		return domain.ProviderPrice{}, false
	}
	return lo.MaxBy(prices, func(a, b domain.ProviderPrice) bool {
		return a.Level.Specificity() > b.Level.Specificity()
	}), true
}

func line(itemID string, pr domain.ProviderPrice, qty float64, fallback bool) domain.PriceLine {
	return domain.PriceLine{
		ItemID:    itemID,
		Level:     pr.Level,
		Quantity:  qty,
		UnitPrice: pr.UnitPrice,
		Subtotal:  roundCents(qty * pr.UnitPrice),
		Fallback:  fallback,
	}
}

func roundCents(v float64) float64 {
	return math.Round(v*100) / 100
}

// sortMatches orders in place. Every order ends on provider id, so equal
// inputs always give the same output.
func sortMatches(matches []domain.ProviderMatch, order domain.SortOrder) {
	compare := compareRelevance
	switch order {
	case domain.SortDistance:
		compare = compareDistance
	case domain.SortPrice:
		compare = func(a, b domain.ProviderMatch) int {
			if c := comparePriced(a, b); c != 0 {
				return c
			}
			return compareFloat(a.TotalPrice, b.TotalPrice)
		}
	case domain.SortRating:
		compare = func(a, b domain.ProviderMatch) int { return compareFloat(b.Provider.Rating, a.Provider.Rating) }
	}

	sort.SliceStable(matches, func(i, j int) bool {
		if c := compare(matches[i], matches[j]); c != 0 {
			return c < 0
		}
		return matches[i].Provider.ID < matches[j].Provider.ID
	})
}

// compareRelevance: priced first, then within radius, then distance
// (unknown last), then rating desc, then price asc.
func compareRelevance(a, b domain.ProviderMatch) int {
	if c := comparePriced(a, b); c != 0 {
		return c
	}
	if a.IsWithinRadius != b.IsWithinRadius {
		if a.IsWithinRadius {
			return -1
		}
		return 1
	}
	if c := compareDistance(a, b); c != 0 {
		return c
	}
	if c := compareFloat(b.Provider.Rating, a.Provider.Rating); c != 0 {
		return c
	}
	return compareFloat(a.TotalPrice, b.TotalPrice)
}

// comparePriced puts matches that cannot be quoted last.
func comparePriced(a, b domain.ProviderMatch) int {
	switch {
	case a.Priced == b.Priced:
		return 0
	case a.Priced:
		return -1
	}
	return 1
}

func compareDistance(a, b domain.ProviderMatch) int {
	switch {
	case a.DistanceKm == nil && b.DistanceKm == nil:
		return 0
	case a.DistanceKm == nil:
		return 1
	case b.DistanceKm == nil:
		return -1
	}
	return compareFloat(*a.DistanceKm, *b.DistanceKm)
}

func compareFloat(a, b float64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}
