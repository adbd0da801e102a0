package service

import (
	"context"
	"fmt"
	"time"

	"github.com/boddenberg/servicos-marketplace-bfa-go/internal/domain"
	"github.com/boddenberg/servicos-marketplace-bfa-go/internal/port"

	"go.opentelemetry.io/otel"
	"go.uber.org/zap"
)

var providerTracer = otel.Tracer("service/providers")

// Providers serves public profiles and the gated portfolio.
type Providers struct {
	store  port.ProviderStore
	gate   *FeatureGate
	now    func() time.Time
	logger *zap.Logger
}

func NewProviders(store port.ProviderStore, gate *FeatureGate, now func() time.Time, logger *zap.Logger) *Providers {
	if now == nil {
		now = time.Now
	}
	return &Providers{store: store, gate: gate, now: now, logger: logger}
}

func (p *Providers) GetProvider(ctx context.Context, providerID string) (*domain.ProviderProfile, error) {
	ctx, span := providerTracer.Start(ctx, "Providers.GetProvider")
	defer span.End()

	return p.store.GetProvider(ctx, providerID)
}

// AddPortfolioItem stores a reference to an uploaded image. The
// portfolio_images limit is checked first; an unknown limit denies.
func (p *Providers) AddPortfolioItem(ctx context.Context, caller domain.Principal, item domain.PortfolioItem) (*domain.PortfolioItem, error) {
	ctx, span := providerTracer.Start(ctx, "Providers.AddPortfolioItem")
	defer span.End()

	if !caller.IsProvider() {
		return nil, &domain.ErrForbidden{Action: "add portfolio item"}
	}
	if item.ImageURL == "" {
		return nil, &domain.ErrValidation{Field: "image_url", Message: "required"}
	}

	count := func(ctx context.Context) (int, error) {
		return p.store.CountPortfolio(ctx, caller.UserID)
	}
	if err := p.gate.CheckBeforeAdd(ctx, caller.UserID, domain.FeaturePortfolioImages, count, DenyUnknown); err != nil {
		return nil, err
	}

	item.ProviderID = caller.UserID
	item.CreatedAt = p.now().UTC()

	created, err := p.store.CreatePortfolioItem(ctx, &item)
	if err != nil {
		return nil, fmt.Errorf("create portfolio item: %w", err)
	}
	p.logger.Info("portfolio item added",
		zap.String("provider_id", caller.UserID),
		zap.String("item_id", created.ID),
	)
	return created, nil
}
