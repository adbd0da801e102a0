package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/boddenberg/servicos-marketplace-bfa-go/internal/domain"
	"github.com/boddenberg/servicos-marketplace-bfa-go/internal/infra/observability"
	"github.com/boddenberg/servicos-marketplace-bfa-go/internal/port"

	"github.com/google/uuid"
	"github.com/samber/lo"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

var catalogTracer = otel.Tracer("service/catalog")

const catalogKey = "catalog"

// Catalog serves the Service -> SubService -> Specialty tree from a TTL
// cache. Admin mutations go through it so they can drop the cached tree.
type Catalog struct {
	store   port.CatalogStore
	cache   port.Cache[*domain.CatalogSnapshot]
	now     func() time.Time
	metrics *observability.Metrics
	logger  *zap.Logger
}

// NewCatalog wires the catalog service. The cache carries its own TTL and
// clock; now only stamps FetchedAt.
func NewCatalog(
	store port.CatalogStore,
	cache port.Cache[*domain.CatalogSnapshot],
	now func() time.Time,
	metrics *observability.Metrics,
	logger *zap.Logger,
) *Catalog {
	if now == nil {
		now = time.Now
	}
	return &Catalog{
		store:   store,
		cache:   cache,
		now:     now,
		metrics: metrics,
		logger:  logger,
	}
}

// GetAllServices returns the full tree.
func (c *Catalog) GetAllServices(ctx context.Context) ([]domain.Service, error) {
	snap, err := c.Snapshot(ctx)
	if err != nil {
		return nil, err
	}
	return snap.Services, nil
}

// Snapshot returns the cached tree, fetching the three levels in parallel
// when the cache is empty or expired. Fetch errors are not retried here.
func (c *Catalog) Snapshot(ctx context.Context) (*domain.CatalogSnapshot, error) {
	ctx, span := catalogTracer.Start(ctx, "Catalog.Snapshot")
	defer span.End()

	if snap, ok := c.cache.Get(catalogKey); ok && snap != nil {
		c.metrics.IncrCacheHit(catalogKey)
		span.SetAttributes(attribute.Bool("cache.hit", true))
		return snap, nil
	}
	c.metrics.IncrCacheMiss(catalogKey)
	span.SetAttributes(attribute.Bool("cache.hit", false))

	var (
		services    []domain.Service
		subServices []domain.SubService
		specialties []domain.Specialty
	)

	g, gCtx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		services, err = c.store.ListServices(gCtx)
		if err != nil {
			return fmt.Errorf("list services: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		var err error
		subServices, err = c.store.ListSubServices(gCtx)
		if err != nil {
			return fmt.Errorf("list sub-services: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		var err error
		specialties, err = c.store.ListSpecialties(gCtx)
		if err != nil {
			return fmt.Errorf("list specialties: %w", err)
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		c.logger.Error("catalog fetch failed", zap.Error(err))
		return nil, err
	}

	snap := &domain.CatalogSnapshot{
		Services:  assembleTree(services, subServices, specialties),
		FetchedAt: c.now(),
	}
	c.cache.Set(catalogKey, snap)

	c.logger.Debug("catalog refreshed",
		zap.Int("services", len(services)),
		zap.Int("sub_services", len(subServices)),
		zap.Int("specialties", len(specialties)),
	)
	return snap, nil
}

// assembleTree links children to parents, keeping the input order of every
// level. Children whose parent id is unknown are dropped.
func assembleTree(services []domain.Service, subServices []domain.SubService, specialties []domain.Specialty) []domain.Service {
	specsBySub := lo.GroupBy(specialties, func(s domain.Specialty) string { return s.SubServiceID })
	subsByService := lo.GroupBy(subServices, func(s domain.SubService) string { return s.ServiceID })

	out := make([]domain.Service, 0, len(services))
	for _, svc := range services {
		subs := make([]domain.SubService, 0, len(subsByService[svc.ID]))
		for _, sub := range subsByService[svc.ID] {
			specs := specsBySub[sub.ID]
			if specs == nil {
				specs = []domain.Specialty{}
			}
			sub.Specialties = specs
			subs = append(subs, sub)
		}
		svc.SubServices = subs
		out = append(out, svc)
	}
	return out
}

// Invalidate drops the cached tree.
func (c *Catalog) Invalidate() {
	c.cache.Delete(catalogKey)
}

// Items lists the requestable items of a specialty. Items are not cached.
func (c *Catalog) Items(ctx context.Context, specialtyID string) ([]domain.CatalogItem, error) {
	ctx, span := catalogTracer.Start(ctx, "Catalog.Items")
	defer span.End()

	if strings.TrimSpace(specialtyID) == "" {
		return nil, &domain.ErrValidation{Field: "specialty_id", Message: "required"}
	}
	return c.store.ListCatalogItems(ctx, specialtyID)
}

// ============================================================
// Administration
// ============================================================

func (c *Catalog) CreateNode(ctx context.Context, node domain.CatalogNode) (*domain.CatalogNode, error) {
	ctx, span := catalogTracer.Start(ctx, "Catalog.CreateNode")
	defer span.End()

	if err := validateNode(node); err != nil {
		return nil, err
	}
	if node.ID == "" {
		node.ID = uuid.NewString()
	}

	created, err := c.store.CreateNode(ctx, node)
	if err != nil {
		return nil, fmt.Errorf("create %s: %w", node.Level, err)
	}
	c.Invalidate()

	c.logger.Info("catalog node created",
		zap.String("level", string(node.Level)),
		zap.String("id", created.ID),
	)
	return created, nil
}

func (c *Catalog) UpdateNode(ctx context.Context, node domain.CatalogNode) (*domain.CatalogNode, error) {
	ctx, span := catalogTracer.Start(ctx, "Catalog.UpdateNode")
	defer span.End()

	if node.ID == "" {
		return nil, &domain.ErrValidation{Field: "id", Message: "required"}
	}
	if err := validateNode(node); err != nil {
		return nil, err
	}

	updated, err := c.store.UpdateNode(ctx, node)
	if err != nil {
		return nil, fmt.Errorf("update %s: %w", node.Level, err)
	}
	c.Invalidate()
	return updated, nil
}

func (c *Catalog) DeleteNode(ctx context.Context, level domain.CatalogLevel, id string) error {
	ctx, span := catalogTracer.Start(ctx, "Catalog.DeleteNode")
	defer span.End()

	if !level.Valid() {
		return &domain.ErrValidation{Field: "level", Message: "unknown catalog level"}
	}
	if id == "" {
		return &domain.ErrValidation{Field: "id", Message: "required"}
	}

	if err := c.store.DeleteNode(ctx, level, id); err != nil {
		return fmt.Errorf("delete %s: %w", level, err)
	}
	c.Invalidate()

	c.logger.Info("catalog node deleted",
		zap.String("level", string(level)),
		zap.String("id", id),
	)
	return nil
}

func validateNode(node domain.CatalogNode) error {
	if !node.Level.Valid() {
		return &domain.ErrValidation{Field: "level", Message: "unknown catalog level"}
	}
	if strings.TrimSpace(node.Name) == "" {
		return &domain.ErrValidation{Field: "name", Message: "required"}
	}
	if node.Level != domain.LevelService && node.ParentID == "" {
		return &domain.ErrValidation{Field: "parent_id", Message: "required below the service level"}
	}
	return nil
}
