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
// Catalog
// ============================================================

func getCatalogHandler(svc *service.Catalog, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "GET /v1/catalog")
		defer span.End()

		snap, err := svc.Snapshot(ctx)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, snap)
	}
}

func getCatalogItemsHandler(svc *service.Catalog, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		specialtyID := chi.URLParam(r, "specialtyId")

		ctx, span := tracer.Start(r.Context(), "GET /v1/catalog/specialties/{specialtyId}/items")
		defer span.End()
		span.SetAttributes(attribute.String("specialty.id", specialtyID))

		items, err := svc.Items(ctx, specialtyID)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"items": items})
	}
}

// --- Admin ---

func createCatalogNodeHandler(svc *service.Catalog, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /v1/admin/catalog/{level}")
		defer span.End()

		var node domain.CatalogNode
		if err := decodeBody(r, &node); err != nil {
			handleServiceError(w, err, logger)
			return
		}
		node.Level = domain.CatalogLevel(chi.URLParam(r, "level"))

		created, err := svc.CreateNode(ctx, node)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusCreated, created)
	}
}

func updateCatalogNodeHandler(svc *service.Catalog, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "PUT /v1/admin/catalog/{level}/{id}")
		defer span.End()

		var node domain.CatalogNode
		if err := decodeBody(r, &node); err != nil {
			handleServiceError(w, err, logger)
			return
		}
		node.Level = domain.CatalogLevel(chi.URLParam(r, "level"))
		node.ID = chi.URLParam(r, "id")

		updated, err := svc.UpdateNode(ctx, node)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, updated)
	}
}

func deleteCatalogNodeHandler(svc *service.Catalog, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "DELETE /v1/admin/catalog/{level}/{id}")
		defer span.End()

		level := domain.CatalogLevel(chi.URLParam(r, "level"))
		id := chi.URLParam(r, "id")
		if err := svc.DeleteNode(ctx, level, id); err != nil {
			handleServiceError(w, err, logger)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}
