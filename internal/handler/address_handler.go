package handler

import (
	"net/http"

	"github.com/boddenberg/servicos-marketplace-bfa-go/internal/domain"
	"github.com/boddenberg/servicos-marketplace-bfa-go/internal/service"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

func postalCodeHandler(svc *service.AddressResolver, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "GET /v1/address/postal-code/{code}")
		defer span.End()

		addr, err := svc.ResolvePostalCode(ctx, chi.URLParam(r, "code"))
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, addr)
	}
}

// resolveAddressHandler geocodes a typed address. Missing coordinates in
// the response mean the geocoder could not place it.
func resolveAddressHandler(svc *service.AddressResolver, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /v1/address/resolve")
		defer span.End()

		var addr domain.Address
		if err := decodeBody(r, &addr); err != nil {
			handleServiceError(w, err, logger)
			return
		}

		resolved, err := svc.Resolve(ctx, addr)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, resolved)
	}
}
