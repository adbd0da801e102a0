package service_test

import (
	"context"
	"errors"
	"testing"

	"github.com/boddenberg/servicos-marketplace-bfa-go/internal/domain"
	"github.com/boddenberg/servicos-marketplace-bfa-go/internal/infra/observability"
	"github.com/boddenberg/servicos-marketplace-bfa-go/internal/service"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestFeatureGate_CheckBeforeAdd(t *testing.T) {
	tests := []struct {
		name    string
		limit   domain.FeatureLimit
		current int
		policy  service.UnknownPolicy
		kind    domain.ErrorKind
	}{
		{"under limit", domain.FeatureLimit{Known: true, Limit: ptr(5)}, 4, service.DenyUnknown, domain.KindNone},
		{"at limit", domain.FeatureLimit{Known: true, Limit: ptr(5)}, 5, service.DenyUnknown, domain.KindLimitExceeded},
		{"zero limit", domain.FeatureLimit{Known: true, Limit: ptr(0)}, 0, service.DenyUnknown, domain.KindLimitExceeded},
		{"unlimited", domain.FeatureLimit{Known: true}, 1000, service.DenyUnknown, domain.KindNone},
		{"unknown denied", domain.FeatureLimit{}, 0, service.DenyUnknown, domain.KindLimitUnknown},
		{"unknown allowed", domain.FeatureLimit{}, 0, service.AllowUnknown, domain.KindNone},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gate := service.NewFeatureGate(&mockPolicyStore{limit: tt.limit}, observability.NewMetrics(), zap.NewNop())
			count := func(context.Context) (int, error) { return tt.current, nil }

			err := gate.CheckBeforeAdd(context.Background(), "u1", domain.FeaturePortfolioImages, count, tt.policy)
			require.Equal(t, tt.kind, domain.KindOf(err))
		})
	}
}

func TestFeatureGate_ReadsFreshEveryTime(t *testing.T) {
	policy := &mockPolicyStore{limit: domain.FeatureLimit{Known: true, Limit: ptr(2)}}
	gate := service.NewFeatureGate(policy, observability.NewMetrics(), zap.NewNop())
	current := 0
	count := func(context.Context) (int, error) { return current, nil }
	ctx := context.Background()

	require.NoError(t, gate.CheckBeforeAdd(ctx, "u1", domain.FeaturePortfolioImages, count, service.DenyUnknown))
	current = 2
	require.Error(t, gate.CheckBeforeAdd(ctx, "u1", domain.FeaturePortfolioImages, count, service.DenyUnknown))
	policy.limit = domain.FeatureLimit{Known: true}
	require.NoError(t, gate.CheckBeforeAdd(ctx, "u1", domain.FeaturePortfolioImages, count, service.DenyUnknown))
	require.EqualValues(t, 3, policy.limitCalls.Load())
}

func TestFeatureGate_LookupErrorIsUnknown(t *testing.T) {
	gate := service.NewFeatureGate(&mockPolicyStore{limitErr: errors.New("rpc down")}, observability.NewMetrics(), zap.NewNop())

	limit, err := gate.GetFeatureLimit(context.Background(), "u1", domain.FeatureMonthlyQuoteSends)
	require.NoError(t, err)
	require.False(t, limit.Known)
	require.Equal(t, domain.FeatureMonthlyQuoteSends, limit.Feature)
}

func TestAddPortfolioItem(t *testing.T) {
	ctx := context.Background()
	item := domain.PortfolioItem{ImageURL: "https://cdn.example.com/a.jpg", Caption: "Banheiro"}

	t.Run("allowed", func(t *testing.T) {
		store := &mockProviderStore{portfolio: 1}
		gate := service.NewFeatureGate(&mockPolicyStore{limit: domain.FeatureLimit{Known: true, Limit: ptr(3)}}, observability.NewMetrics(), zap.NewNop())
		svc := service.NewProviders(store, gate, nil, zap.NewNop())

		got, err := svc.AddPortfolioItem(ctx, provider1, item)
		require.NoError(t, err)
		require.Equal(t, "p1", got.ProviderID)
		require.NotNil(t, store.createdItem)
	})

	t.Run("unknown limit denies", func(t *testing.T) {
		store := &mockProviderStore{}
		gate := service.NewFeatureGate(&mockPolicyStore{}, observability.NewMetrics(), zap.NewNop())
		svc := service.NewProviders(store, gate, nil, zap.NewNop())

		_, err := svc.AddPortfolioItem(ctx, provider1, item)
		require.Equal(t, domain.KindLimitUnknown, domain.KindOf(err))
		require.Nil(t, store.createdItem)
	})

	t.Run("clients cannot add", func(t *testing.T) {
		gate := service.NewFeatureGate(&mockPolicyStore{}, observability.NewMetrics(), zap.NewNop())
		svc := service.NewProviders(&mockProviderStore{}, gate, nil, zap.NewNop())

		_, err := svc.AddPortfolioItem(ctx, client, item)
		require.Equal(t, domain.KindForbidden, domain.KindOf(err))
	})
}
