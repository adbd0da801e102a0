package handler

import (
	"net/http"

	"github.com/boddenberg/servicos-marketplace-bfa-go/internal/domain"
	"github.com/boddenberg/servicos-marketplace-bfa-go/internal/service"

	"github.com/go-chi/chi/v5"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// ============================================================
// Quote drafts
// ============================================================

type sessionResponse struct {
	Session string `json:"session"`
}

type providerIDsBody struct {
	ProviderIDs []string `json:"provider_ids" validate:"required,min=1,dive,required"`
}

type markSentRequest struct {
	QuoteID     string   `json:"quote_id"`
	ProviderIDs []string `json:"provider_ids" validate:"required,min=1,dive,required"`
}

type submitRequest struct {
	SubmitterName string `json:"submitter_name" validate:"max=120"`
}

// validSessionParam rejects session ids NewSession could not have issued.
func validSessionParam(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !service.ValidSession(chi.URLParam(r, "session")) {
			writeError(w, http.StatusBadRequest, "invalid session id")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func newDraftSessionHandler(svc *service.Drafts) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusCreated, sessionResponse{Session: svc.NewSession()})
	}
}

func storeDraftHandler(svc *service.Drafts, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		session := chi.URLParam(r, "session")

		ctx, span := tracer.Start(r.Context(), "PUT /v1/drafts/{session}")
		defer span.End()
		span.SetAttributes(attribute.String("draft.session", session))

		var draft domain.QuoteDraft
		if err := decodeBody(r, &draft); err != nil {
			handleServiceError(w, err, logger)
			return
		}

		if !svc.Store(ctx, session, &draft) {
			writeError(w, http.StatusUnprocessableEntity, "draft needs a selected service and an address with street and city")
			return
		}
		writeJSON(w, http.StatusOK, svc.Retrieve(ctx, session))
	}
}

func getDraftHandler(svc *service.Drafts) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "GET /v1/drafts/{session}")
		defer span.End()

		draft := svc.Retrieve(ctx, chi.URLParam(r, "session"))
		if draft == nil {
			writeError(w, http.StatusNotFound, "draft not found")
			return
		}
		writeJSON(w, http.StatusOK, draft)
	}
}

func clearDraftHandler(svc *service.Drafts) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "DELETE /v1/drafts/{session}")
		defer span.End()

		svc.Clear(ctx, chi.URLParam(r, "session"))
		w.WriteHeader(http.StatusNoContent)
	}
}

func sentProvidersHandler(svc *service.Drafts, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "GET /v1/drafts/{session}/sent-providers")
		defer span.End()

		ids, err := svc.SentProviders(ctx, chi.URLParam(r, "session"), r.URL.Query().Get("quote_id"))
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, providerIDsBody{ProviderIDs: ids})
	}
}

func markSentHandler(svc *service.Drafts, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		session := chi.URLParam(r, "session")

		ctx, span := tracer.Start(r.Context(), "POST /v1/drafts/{session}/sent-providers")
		defer span.End()

		var req markSentRequest
		if err := decodeBody(r, &req); err != nil {
			handleServiceError(w, err, logger)
			return
		}
		if err := svc.MarkSent(ctx, session, req.QuoteID, req.ProviderIDs...); err != nil {
			handleServiceError(w, err, logger)
			return
		}

		ids, err := svc.SentProviders(ctx, session, req.QuoteID)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, providerIDsBody{ProviderIDs: ids})
	}
}

// submitQuoteHandler turns the session's draft into a quote. Signed-in
// clients own the quote; anonymous callers must give a name.
func submitQuoteHandler(svc *service.Quotes, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		session := chi.URLParam(r, "session")

		ctx, span := tracer.Start(r.Context(), "POST /v1/drafts/{session}/submit")
		defer span.End()

		var req submitRequest
		if r.ContentLength != 0 {
			if err := decodeBody(r, &req); err != nil {
				handleServiceError(w, err, logger)
				return
			}
		}

		var clientID string
		if p, ok := PrincipalFromContext(ctx); ok {
			clientID = p.UserID
		}

		res, err := svc.Submit(ctx, session, clientID, req.SubmitterName)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusCreated, res)
	}
}
