package service_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/boddenberg/servicos-marketplace-bfa-go/internal/domain"
	"github.com/boddenberg/servicos-marketplace-bfa-go/internal/infra/cache"
	"github.com/boddenberg/servicos-marketplace-bfa-go/internal/infra/observability"
	"github.com/boddenberg/servicos-marketplace-bfa-go/internal/service"

	"go.uber.org/zap"
)

func seededCatalogStore() *mockCatalogStore {
	return &mockCatalogStore{
		services: []domain.Service{
			{ID: "s1", Name: "Elétrica"},
			{ID: "s2", Name: "Pintura"},
		},
		subServices: []domain.SubService{
			{ID: "ss1", ServiceID: "s1", Name: "Instalação"},
			{ID: "ss2", ServiceID: "s1", Name: "Reparo"},
			{ID: "ss3", ServiceID: "s2", Name: "Interna"},
			{ID: "orphan", ServiceID: "gone", Name: "Órfão"},
		},
		specialties: []domain.Specialty{
			{ID: "sp1", SubServiceID: "ss1", Name: "Chuveiro"},
			{ID: "sp2", SubServiceID: "ss1", Name: "Tomada"},
			{ID: "sp3", SubServiceID: "orphan", Name: "Perdida"},
		},
	}
}

func newCatalog(store *mockCatalogStore, clock *fakeClock) (*service.Catalog, *observability.Metrics) {
	metrics := observability.NewMetrics()
	c := cache.New[*domain.CatalogSnapshot](5*time.Minute, cache.WithClock(clock.Now))
	return service.NewCatalog(store, c, clock.Now, metrics, zap.NewNop()), metrics
}

func TestCatalog_AssemblesTreeAndDropsOrphans(t *testing.T) {
	catalog, _ := newCatalog(seededCatalogStore(), newFakeClock())

	services, err := catalog.GetAllServices(context.Background())
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if len(services) != 2 {
		t.Fatalf("expected 2 services, got %d", len(services))
	}

	eletrica := services[0]
	if eletrica.ID != "s1" || len(eletrica.SubServices) != 2 {
		t.Fatalf("unexpected first service %+v", eletrica)
	}
	if eletrica.SubServices[0].ID != "ss1" || len(eletrica.SubServices[0].Specialties) != 2 {
		t.Errorf("expected ss1 with two specialties, got %+v", eletrica.SubServices[0])
	}
	if got := eletrica.SubServices[1].Specialties; got == nil || len(got) != 0 {
		t.Errorf("expected empty, non-nil specialties, got %v", got)
	}

	for _, svc := range services {
		for _, sub := range svc.SubServices {
			if sub.ID == "orphan" {
				t.Error("orphan sub-service must be dropped")
			}
		}
	}
}

func TestCatalog_CachesWithinTTL(t *testing.T) {
	store := seededCatalogStore()
	clock := newFakeClock()
	catalog, metrics := newCatalog(store, clock)
	ctx := context.Background()

	for range 3 {
		if _, err := catalog.GetAllServices(ctx); err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		clock.Advance(time.Minute)
	}
	if store.serviceCalls.Load() != 1 || store.subCalls.Load() != 1 || store.specialtyCalls.Load() != 1 {
		t.Errorf("expected one fetch per level, got %d/%d/%d",
			store.serviceCalls.Load(), store.subCalls.Load(), store.specialtyCalls.Load())
	}

	hits, misses := metrics.CacheStats("catalog")
	if hits != 2 || misses != 1 {
		t.Errorf("expected 2 hits and 1 miss, got %v/%v", hits, misses)
	}

	clock.Advance(3 * time.Minute)
	snap, err := catalog.Snapshot(ctx)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if store.serviceCalls.Load() != 2 {
		t.Errorf("expected a refetch after expiry, got %d fetches", store.serviceCalls.Load())
	}
	if !snap.FetchedAt.Equal(clock.Now()) {
		t.Errorf("expected FetchedAt %v, got %v", clock.Now(), snap.FetchedAt)
	}
}

func TestCatalog_MutationsInvalidate(t *testing.T) {
	store := seededCatalogStore()
	catalog, _ := newCatalog(store, newFakeClock())
	ctx := context.Background()

	if _, err := catalog.GetAllServices(ctx); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	created, err := catalog.CreateNode(ctx, domain.CatalogNode{Level: domain.LevelService, Name: "Jardinagem"})
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if created.ID == "" {
		t.Error("expected a generated id")
	}
	if _, err := catalog.GetAllServices(ctx); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if store.serviceCalls.Load() != 2 {
		t.Errorf("expected refetch after create, got %d", store.serviceCalls.Load())
	}

	if err := catalog.DeleteNode(ctx, domain.LevelSpecialty, "sp2"); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if _, err := catalog.GetAllServices(ctx); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if store.serviceCalls.Load() != 3 {
		t.Errorf("expected refetch after delete, got %d", store.serviceCalls.Load())
	}
}

func TestCatalog_ValidatesNodes(t *testing.T) {
	catalog, _ := newCatalog(seededCatalogStore(), newFakeClock())
	ctx := context.Background()

	tests := []struct {
		name string
		node domain.CatalogNode
	}{
		{"unknown level", domain.CatalogNode{Level: "room", Name: "x"}},
		{"missing name", domain.CatalogNode{Level: domain.LevelService}},
		{"missing parent", domain.CatalogNode{Level: domain.LevelSpecialty, Name: "x"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := catalog.CreateNode(ctx, tt.node)
			if domain.KindOf(err) != domain.KindValidation {
				t.Errorf("expected validation error, got %v", err)
			}
		})
	}
}

func TestCatalog_FetchErrorPropagates(t *testing.T) {
	store := seededCatalogStore()
	store.err = errors.New("backend down")
	catalog, _ := newCatalog(store, newFakeClock())

	if _, err := catalog.GetAllServices(context.Background()); err == nil {
		t.Fatal("expected error")
	}

	store.err = nil
	if _, err := catalog.GetAllServices(context.Background()); err != nil {
		t.Fatalf("failed fetch must not be cached, got %v", err)
	}
}
