package handler

import (
	"net/http"

	"github.com/boddenberg/servicos-marketplace-bfa-go/internal/domain"
	"github.com/boddenberg/servicos-marketplace-bfa-go/internal/service"

	"github.com/go-chi/chi/v5"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

type featureLimitResponse struct {
	domain.FeatureLimit
	Unlimited bool `json:"unlimited"`
	Enabled   bool `json:"enabled"`
}

func getProviderHandler(svc *service.Providers, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "GET /v1/providers/{providerId}")
		defer span.End()

		p, err := svc.GetProvider(ctx, chi.URLParam(r, "providerId"))
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, p)
	}
}

func featureLimitHandler(gate *service.FeatureGate, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		feature := chi.URLParam(r, "feature")

		ctx, span := tracer.Start(r.Context(), "GET /v1/provider/features/{feature}")
		defer span.End()
		span.SetAttributes(attribute.String("feature", feature))

		caller, _ := PrincipalFromContext(ctx)
		limit, err := gate.GetFeatureLimit(ctx, caller.UserID, feature)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, featureLimitResponse{
			FeatureLimit: limit,
			Unlimited:    limit.Unlimited(),
			Enabled:      limit.Enabled(),
		})
	}
}

func addPortfolioHandler(svc *service.Providers, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /v1/provider/portfolio")
		defer span.End()

		var item domain.PortfolioItem
		if err := decodeBody(r, &item); err != nil {
			handleServiceError(w, err, logger)
			return
		}

		caller, _ := PrincipalFromContext(ctx)
		created, err := svc.AddPortfolioItem(ctx, caller, item)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusCreated, created)
	}
}
