package handler

import (
	"net/http"

	"github.com/boddenberg/servicos-marketplace-bfa-go/internal/domain"
	"github.com/boddenberg/servicos-marketplace-bfa-go/internal/service"

	"go.uber.org/zap"
)

// ============================================================
// Billing
//
// The subscription screens expect HTTP 200 with an "error" field on
// failure, so every billing response goes out as an envelope.
// ============================================================

func checkoutHandler(svc *service.Billing, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /v1/billing/checkout")
		defer span.End()

		var req domain.CheckoutRequest
		if err := decodeBody(r, &req); err != nil {
			logger.Debug("invalid checkout request", zap.Error(err))
			writeJSON(w, http.StatusOK, domain.BillingEnvelope{Error: err.Error()})
			return
		}

		caller, _ := PrincipalFromContext(ctx)
		writeJSON(w, http.StatusOK, svc.CreateCheckout(ctx, caller, req))
	}
}

func portalHandler(svc *service.Billing) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /v1/billing/portal")
		defer span.End()

		caller, _ := PrincipalFromContext(ctx)
		writeJSON(w, http.StatusOK, svc.OpenPortal(ctx, caller))
	}
}

func subscriptionHandler(svc *service.Billing) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "GET /v1/billing/subscription")
		defer span.End()

		caller, _ := PrincipalFromContext(ctx)
		writeJSON(w, http.StatusOK, svc.SubscriptionStatus(ctx, caller))
	}
}

func productsHandler(svc *service.Billing) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "GET /v1/billing/products")
		defer span.End()

		writeJSON(w, http.StatusOK, svc.ListProducts(ctx))
	}
}
