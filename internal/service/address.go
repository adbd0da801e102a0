package service

import (
	"context"
	"strings"

	"github.com/boddenberg/servicos-marketplace-bfa-go/internal/domain"
	"github.com/boddenberg/servicos-marketplace-bfa-go/internal/infra/observability"
	"github.com/boddenberg/servicos-marketplace-bfa-go/internal/port"

	"go.opentelemetry.io/otel"
	"go.uber.org/zap"
)

var addressTracer = otel.Tracer("service/address")

// AddressResolver fills addresses from postal codes and locates them.
type AddressResolver struct {
	postal   port.PostalCodeLookup
	geocoder port.Geocoder
	metrics  *observability.Metrics
	logger   *zap.Logger
}

func NewAddressResolver(postal port.PostalCodeLookup, geocoder port.Geocoder, metrics *observability.Metrics, logger *zap.Logger) *AddressResolver {
	return &AddressResolver{
		postal:   postal,
		geocoder: geocoder,
		metrics:  metrics,
		logger:   logger,
	}
}

// ResolvePostalCode returns the normalized address for code. Unknown codes
// come back as *domain.ErrUnknownPostalCode.
func (r *AddressResolver) ResolvePostalCode(ctx context.Context, code string) (*domain.Address, error) {
	ctx, span := addressTracer.Start(ctx, "AddressResolver.ResolvePostalCode")
	defer span.End()

	if strings.TrimSpace(code) == "" {
		return nil, &domain.ErrValidation{Field: "postal_code", Message: "required"}
	}
	addr, err := r.postal.Lookup(ctx, code)
	if err != nil {
		if domain.KindOf(err) == domain.KindBackend || domain.KindOf(err) == domain.KindUnavailable {
			r.metrics.IncrExternalError("postal_lookup")
		}
		return nil, err
	}
	return addr, nil
}

// Geocode locates addr. It never fails: lookup errors and empty results are
// logged and reported as nil.
func (r *AddressResolver) Geocode(ctx context.Context, addr domain.Address) *domain.GeoPoint {
	ctx, span := addressTracer.Start(ctx, "AddressResolver.Geocode")
	defer span.End()

	query := addr.SingleLine()
	if query == "" {
		return nil
	}

	p, err := r.geocoder.Geocode(ctx, query)
	if err != nil {
		r.metrics.IncrExternalError("geocoder")
		r.logger.Warn("geocoding failed, continuing without coordinates",
			zap.String("city", addr.City),
			zap.Error(err),
		)
		return nil
	}
	if p == nil {
		r.logger.Info("geocoder returned no result", zap.String("city", addr.City))
	}
	return p
}

// Resolve returns addr with coordinates when the geocoder can find them.
// Coordinates already present are kept.
func (r *AddressResolver) Resolve(ctx context.Context, addr domain.Address) (domain.Address, error) {
	if !addr.IsMinimallyComplete() {
		return addr, &domain.ErrValidation{Field: "address", Message: "street and city are required"}
	}
	if addr.HasCoordinates() {
		return addr, nil
	}
	if p := r.Geocode(ctx, addr); p != nil {
		return addr.WithCoordinates(*p), nil
	}
	return addr, nil
}
