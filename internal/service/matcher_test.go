package service_test

import (
	"context"
	"testing"

	"github.com/boddenberg/servicos-marketplace-bfa-go/internal/domain"
	"github.com/boddenberg/servicos-marketplace-bfa-go/internal/infra/observability"
	"github.com/boddenberg/servicos-marketplace-bfa-go/internal/service"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

var quotePath = domain.CatalogPath{ServiceID: "s1", SubServiceID: "ss1", SpecialtyID: "sp1"}

// São Paulo, Sé.
var origin = domain.GeoPoint{Lat: -23.5505, Lng: -46.6333}

func located(p domain.GeoPoint) domain.Address {
	return domain.Address{Street: "Rua A", City: "São Paulo"}.WithCoordinates(p)
}

func provider(id string, radius float64, addr domain.Address, rating float64, prices ...domain.ProviderPrice) domain.ProviderProfile {
	return domain.ProviderProfile{ID: id, Name: id, ServiceRadiusKm: radius, Address: addr, Rating: rating, Prices: prices}
}

func defaultPrice(level domain.CatalogLevel, node string, v float64) domain.ProviderPrice {
	return domain.ProviderPrice{Level: level, NodeID: node, UnitPrice: v, IsDefault: true}
}

func itemPrice(level domain.CatalogLevel, node, item string, v float64) domain.ProviderPrice {
	return domain.ProviderPrice{Level: level, NodeID: node, ItemID: item, UnitPrice: v}
}

func newMatcher(candidates ...domain.ProviderProfile) *service.Matcher {
	return newMatcherWithPolicy(&mockPolicyStore{}, candidates...)
}

func newMatcherWithPolicy(policy *mockPolicyStore, candidates ...domain.ProviderProfile) *service.Matcher {
	metrics := observability.NewMetrics()
	gate := service.NewFeatureGate(policy, metrics, zap.NewNop())
	return service.NewMatcher(&mockProviderStore{candidates: candidates}, gate, metrics, zap.NewNop())
}

func TestMatch_RadiusScenario(t *testing.T) {
	// ~11 km and ~33 km north of the origin.
	near := domain.GeoPoint{Lat: -23.45, Lng: -46.6333}
	far := domain.GeoPoint{Lat: -23.25, Lng: -46.6333}

	m := newMatcher(
		provider("p-small", 5, located(near), 4.0, defaultPrice(domain.LevelService, "s1", 100)),
		provider("p-wide", 50, located(far), 4.0, defaultPrice(domain.LevelService, "s1", 100)),
		provider("p-nowhere", 10, domain.Address{Street: "Rua B", City: "Campinas"}, 4.0, defaultPrice(domain.LevelService, "s1", 100)),
	)
	q := &domain.Quote{ID: "q1", Path: quotePath, Address: located(origin)}

	matches, err := m.Match(context.Background(), q, service.MatchOptions{})
	require.NoError(t, err)
	require.Len(t, matches, 3)

	byID := map[string]domain.ProviderMatch{}
	for _, mt := range matches {
		byID[mt.Provider.ID] = mt
	}
	require.False(t, byID["p-small"].IsWithinRadius)
	require.True(t, byID["p-wide"].IsWithinRadius)
	require.Nil(t, byID["p-nowhere"].DistanceKm)
	require.False(t, byID["p-nowhere"].HasLocation)
	require.InDelta(t, 11.1, *byID["p-small"].DistanceKm, 0.5)

	require.Equal(t, "p-wide", matches[0].Provider.ID, "within radius first")

	filtered, err := m.Match(context.Background(), q, service.MatchOptions{WithinRadiusOnly: true})
	require.NoError(t, err)
	ids := []string{}
	for _, mt := range filtered {
		ids = append(ids, mt.Provider.ID)
	}
	require.ElementsMatch(t, []string{"p-wide", "p-nowhere"}, ids)
}

func TestMatch_PricesMostSpecificLevel(t *testing.T) {
	m := newMatcher(provider("p1", 0, located(origin), 5,
		itemPrice(domain.LevelService, "s1", "tile", 10),
		itemPrice(domain.LevelSpecialty, "sp1", "tile", 12),
		itemPrice(domain.LevelSubService, "ss1", "grout", 3),
		itemPrice(domain.LevelSpecialty, "other", "grout", 99),
		defaultPrice(domain.LevelService, "s1", 50),
	))
	q := &domain.Quote{ID: "q1", Path: quotePath, Address: located(origin), Items: []domain.QuoteItem{
		{ItemID: "tile", Unit: domain.UnitSquareMeter, Quantity: 10},
		{ItemID: "grout", Unit: domain.UnitLinearMeter, Quantity: 4},
		{ItemID: "labor", Unit: domain.UnitQuantity, Quantity: 2},
	}}

	matches, err := m.Match(context.Background(), q, service.MatchOptions{})
	require.NoError(t, err)
	require.Len(t, matches, 1)

	got := matches[0]
	require.Len(t, got.Breakdown, 3)
	require.Equal(t, 12.0, got.Breakdown[0].UnitPrice)
	require.Equal(t, domain.LevelSpecialty, got.Breakdown[0].Level)
	require.Equal(t, 3.0, got.Breakdown[1].UnitPrice)
	require.True(t, got.Breakdown[2].Fallback)
	require.Equal(t, 120.0+12.0+100.0, got.TotalPrice)
	require.True(t, got.IsWithinRadius, "radius 0 is unlimited")
}

func TestMatch_NoItemsUsesDefaultPrice(t *testing.T) {
	m := newMatcher(provider("p1", 0, domain.Address{}, 0, defaultPrice(domain.LevelSubService, "ss1", 180)))
	q := &domain.Quote{ID: "q1", Path: quotePath}

	matches, err := m.Match(context.Background(), q, service.MatchOptions{})
	require.NoError(t, err)
	require.Equal(t, 180.0, matches[0].TotalPrice)
	require.Nil(t, matches[0].DistanceKm)
}

func TestMatch_SortOrders(t *testing.T) {
	p1 := provider("a", 0, located(domain.GeoPoint{Lat: -23.60, Lng: -46.6333}), 3.0, defaultPrice(domain.LevelService, "s1", 300))
	p2 := provider("b", 0, located(domain.GeoPoint{Lat: -23.56, Lng: -46.6333}), 4.5, defaultPrice(domain.LevelService, "s1", 200))
	p3 := provider("c", 0, domain.Address{}, 4.5, defaultPrice(domain.LevelService, "s1", 100))
	p4 := provider("d", 0, domain.Address{}, 4.5, defaultPrice(domain.LevelService, "s1", 100))
	q := &domain.Quote{ID: "q1", Path: quotePath, Address: located(origin)}

	tests := []struct {
		order domain.SortOrder
		want  []string
	}{
		{domain.SortDistance, []string{"b", "a", "c", "d"}},
		{domain.SortPrice, []string{"c", "d", "b", "a"}},
		{domain.SortRating, []string{"b", "c", "d", "a"}},
		{domain.SortRelevance, []string{"b", "a", "c", "d"}},
	}
	for _, tt := range tests {
		t.Run(string(tt.order), func(t *testing.T) {
			m := newMatcher(p4, p3, p2, p1)
			matches, err := m.Match(context.Background(), q, service.MatchOptions{Sort: tt.order})
			require.NoError(t, err)

			got := make([]string, 0, len(matches))
			for _, mt := range matches {
				got = append(got, mt.Provider.ID)
			}
			require.Equal(t, tt.want, got)
		})
	}
}

func TestMatch_UnpricedProviderSortsLast(t *testing.T) {
	m := newMatcher(
		provider("unpriced", 0, located(origin), 5, itemPrice(domain.LevelService, "s1", "paint", 1)),
		provider("priced", 0, located(origin), 3, itemPrice(domain.LevelService, "s1", "tile", 50)),
	)
	q := &domain.Quote{ID: "q1", Path: quotePath, Address: located(origin), Items: []domain.QuoteItem{
		{ItemID: "tile", Unit: domain.UnitSquareMeter, Quantity: 10},
	}}

	for _, order := range []domain.SortOrder{domain.SortPrice, domain.SortRelevance} {
		t.Run(string(order), func(t *testing.T) {
			matches, err := m.Match(context.Background(), q, service.MatchOptions{Sort: order})
			require.NoError(t, err)
			require.Len(t, matches, 2)

			require.Equal(t, "priced", matches[0].Provider.ID)
			require.True(t, matches[0].Priced)
			require.Equal(t, 500.0, matches[0].TotalPrice)

			require.Equal(t, "unpriced", matches[1].Provider.ID)
			require.False(t, matches[1].Priced)
			require.Empty(t, matches[1].Breakdown)
		})
	}
}

func TestMatch_PartiallyPricedIsUnpriced(t *testing.T) {
	m := newMatcher(provider("p1", 0, located(origin), 5, itemPrice(domain.LevelService, "s1", "tile", 50)))
	q := &domain.Quote{ID: "q1", Path: quotePath, Items: []domain.QuoteItem{
		{ItemID: "tile", Unit: domain.UnitSquareMeter, Quantity: 2},
		{ItemID: "grout", Unit: domain.UnitLinearMeter, Quantity: 3},
	}}

	matches, err := m.Match(context.Background(), q, service.MatchOptions{})
	require.NoError(t, err)
	require.False(t, matches[0].Priced)
	require.Len(t, matches[0].Breakdown, 1)
}

func TestMatch_HidesProvidersWithoutVisibility(t *testing.T) {
	policy := &mockPolicyStore{userLimits: map[string]domain.FeatureLimit{
		"hidden/" + domain.FeatureProviderVisible:  {Known: true, Limit: ptr(0)},
		"premium/" + domain.FeatureProviderVisible: {Known: true, Limit: ptr(1)},
	}}
	m := newMatcherWithPolicy(policy,
		provider("hidden", 0, located(origin), 5, defaultPrice(domain.LevelService, "s1", 100)),
		provider("premium", 0, located(origin), 5, defaultPrice(domain.LevelService, "s1", 100)),
		provider("unknown", 0, located(origin), 5, defaultPrice(domain.LevelService, "s1", 100)),
	)
	q := &domain.Quote{ID: "q1", Path: quotePath, Address: located(origin)}

	matches, err := m.Match(context.Background(), q, service.MatchOptions{})
	require.NoError(t, err)

	ids := make([]string, 0, len(matches))
	for _, mt := range matches {
		ids = append(ids, mt.Provider.ID)
	}
	require.Equal(t, []string{"premium", "unknown"}, ids)
}
