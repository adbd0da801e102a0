package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/boddenberg/servicos-marketplace-bfa-go/internal/domain"
	"github.com/boddenberg/servicos-marketplace-bfa-go/internal/infra/observability"
	"github.com/boddenberg/servicos-marketplace-bfa-go/internal/port"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

var featureTracer = otel.Tracer("service/features")

// UnknownPolicy decides what an unknown limit means for one call site.
type UnknownPolicy int

const (
	DenyUnknown UnknownPolicy = iota
	AllowUnknown
)

// CountFunc returns the current usage of a feature.
type CountFunc func(ctx context.Context) (int, error)

// FeatureGate resolves per-user feature limits. Nothing is cached: every
// check reads the limit and the usage fresh.
type FeatureGate struct {
	policy  port.PolicyStore
	metrics *observability.Metrics
	logger  *zap.Logger
}

func NewFeatureGate(policy port.PolicyStore, metrics *observability.Metrics, logger *zap.Logger) *FeatureGate {
	return &FeatureGate{policy: policy, metrics: metrics, logger: logger}
}

func (g *FeatureGate) GetFeatureLimit(ctx context.Context, userID, feature string) (domain.FeatureLimit, error) {
	ctx, span := featureTracer.Start(ctx, "FeatureGate.GetFeatureLimit")
	defer span.End()
	span.SetAttributes(attribute.String("feature", feature))

	if strings.TrimSpace(feature) == "" {
		return domain.FeatureLimit{}, &domain.ErrValidation{Field: "feature", Message: "required"}
	}

	limit, err := g.policy.GetFeatureLimit(ctx, userID, feature)
	if err != nil {
		g.logger.Warn("feature limit lookup failed, treating as unknown",
			zap.String("feature", feature),
			zap.Error(err),
		)
		return domain.FeatureLimit{Feature: feature}, nil
	}
	limit.Feature = feature
	return limit, nil
}

// CheckBeforeAdd reports whether one more unit of feature fits. The count
// is read first, then the limit, right before the caller mutates.
func (g *FeatureGate) CheckBeforeAdd(ctx context.Context, userID, feature string, count CountFunc, unknown UnknownPolicy) error {
	ctx, span := featureTracer.Start(ctx, "FeatureGate.CheckBeforeAdd")
	defer span.End()
	span.SetAttributes(attribute.String("feature", feature))

	current, err := count(ctx)
	if err != nil {
		return fmt.Errorf("count %s: %w", feature, err)
	}

	limit, err := g.GetFeatureLimit(ctx, userID, feature)
	if err != nil {
		return err
	}

	if !limit.Known {
		if unknown == AllowUnknown {
			return nil
		}
		g.metrics.IncrFeatureDenial(feature, "unknown")
		g.logger.Info("feature denied: limit unknown",
			zap.String("user_id", userID),
			zap.String("feature", feature),
		)
		return &domain.ErrLimitUnknown{Feature: feature}
	}
	if !limit.Allows(current) {
		g.metrics.IncrFeatureDenial(feature, "exceeded")
		return &domain.ErrLimitExceeded{Feature: feature, Limit: *limit.Limit, Current: current}
	}
	return nil
}
