package handler

import (
	"context"
	"net/http"
	"strconv"

	"github.com/boddenberg/servicos-marketplace-bfa-go/internal/domain"
	"github.com/boddenberg/servicos-marketplace-bfa-go/internal/service"

	"github.com/go-chi/chi/v5"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// ============================================================
// Quotes
// ============================================================

type sendQuoteRequest struct {
	Session     string   `json:"session" validate:"required"`
	ProviderIDs []string `json:"provider_ids" validate:"required,min=1,dive,required"`
}

type ratingRequest struct {
	Score   int    `json:"score" validate:"min=1,max=5"`
	Comment string `json:"comment" validate:"max=1000"`
}

type transitionFunc func(ctx context.Context, caller domain.Principal, quoteProviderID string) (*domain.QuoteProvider, error)

func quoteMatchesHandler(svc *service.Quotes, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		quoteID := chi.URLParam(r, "quoteId")

		ctx, span := tracer.Start(r.Context(), "GET /v1/quotes/{quoteId}/matches")
		defer span.End()
		span.SetAttributes(attribute.String("quote.id", quoteID))

		opts := service.MatchOptions{Sort: domain.ParseSortOrder(r.URL.Query().Get("sort"))}
		if v := r.URL.Query().Get("within_radius"); v != "" {
			within, err := strconv.ParseBool(v)
			if err != nil {
				writeError(w, http.StatusBadRequest, "within_radius must be a boolean")
				return
			}
			opts.WithinRadiusOnly = within
		}

		matches, err := svc.Matches(ctx, quoteID, opts)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"matches": matches})
	}
}

func sendQuoteHandler(svc *service.Quotes, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		quoteID := chi.URLParam(r, "quoteId")

		ctx, span := tracer.Start(r.Context(), "POST /v1/quotes/{quoteId}/send")
		defer span.End()
		span.SetAttributes(attribute.String("quote.id", quoteID))

		var req sendQuoteRequest
		if err := decodeBody(r, &req); err != nil {
			handleServiceError(w, err, logger)
			return
		}
		if !service.ValidSession(req.Session) {
			writeError(w, http.StatusBadRequest, "invalid session id")
			return
		}

		caller, _ := PrincipalFromContext(ctx)
		created, err := svc.SendToProviders(ctx, caller, quoteID, req.Session, req.ProviderIDs)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusCreated, map[string]any{"sent": created})
	}
}

func quoteProvidersHandler(svc *service.Quotes, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "GET /v1/quotes/{quoteId}/providers")
		defer span.End()

		caller, _ := PrincipalFromContext(ctx)
		views, err := svc.ListForQuote(ctx, caller, chi.URLParam(r, "quoteId"))
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"items": views})
	}
}

func providerInboxHandler(svc *service.Quotes, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "GET /v1/provider/quotes")
		defer span.End()

		caller, _ := PrincipalFromContext(ctx)
		tab := domain.ParseTab(r.URL.Query().Get("tab"))
		span.SetAttributes(attribute.String("tab", string(tab)))

		inbox, err := svc.ListForProvider(ctx, caller.UserID, tab)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, inbox)
	}
}

// transitionHandler serves accept, reject and complete, which differ only
// in the service call.
func transitionHandler(fn transitionFunc, action string, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		qpID := chi.URLParam(r, "qpId")

		ctx, span := tracer.Start(r.Context(), "POST /quotes/{qpId}/"+action)
		defer span.End()
		span.SetAttributes(
			attribute.String("quote_provider.id", qpID),
			attribute.String("action", action),
		)

		caller, _ := PrincipalFromContext(ctx)
		updated, err := fn(ctx, caller, qpID)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, updated)
	}
}

func rateProviderHandler(svc *service.Quotes, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /v1/quote-providers/{qpId}/rating")
		defer span.End()

		var req ratingRequest
		if err := decodeBody(r, &req); err != nil {
			handleServiceError(w, err, logger)
			return
		}

		caller, _ := PrincipalFromContext(ctx)
		rating, err := svc.RateProvider(ctx, caller, chi.URLParam(r, "qpId"), req.Score, req.Comment)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusCreated, rating)
	}
}

func adminCorrectQuoteHandler(svc *service.Quotes, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "PATCH /v1/admin/quotes/{quoteId}")
		defer span.End()

		var fix domain.QuoteCorrection
		if err := decodeBody(r, &fix); err != nil {
			handleServiceError(w, err, logger)
			return
		}

		caller, _ := PrincipalFromContext(ctx)
		q, err := svc.AdminCorrect(ctx, caller, chi.URLParam(r, "quoteId"), fix)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, q)
	}
}
