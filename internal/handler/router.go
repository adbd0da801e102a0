package handler

import (
	"context"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/boddenberg/servicos-marketplace-bfa-go/internal/domain"
	"github.com/boddenberg/servicos-marketplace-bfa-go/internal/infra/observability"
	"github.com/boddenberg/servicos-marketplace-bfa-go/internal/port"
	"github.com/boddenberg/servicos-marketplace-bfa-go/internal/service"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.uber.org/zap"
)

var tracer = otel.Tracer("handler")

// healthCheckTimeout bounds each backend ping of /healthz.
const healthCheckTimeout = 2 * time.Second

// Services groups the application services the router exposes.
type Services struct {
	Catalog   *service.Catalog
	Address   *service.AddressResolver
	Drafts    *service.Drafts
	Quotes    *service.Quotes
	Providers *service.Providers
	Features  *service.FeatureGate
	Billing   *service.Billing
	Auth      *service.AuthService
}

// RouterConfig carries transport settings.
type RouterConfig struct {
	CORSOrigins  []string
	HealthChecks map[string]port.Pinger
}

// NewRouter creates the HTTP router with all routes and middleware.
func NewRouter(svcs Services, cfg RouterConfig, metrics *observability.Metrics, logger *zap.Logger) http.Handler {
	r := chi.NewRouter()

	// --- Middleware ---
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(observability.ZapLoggerMiddleware(logger, metrics))
	r.Use(observability.TracingMiddleware)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Heartbeat("/ping"))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-Id"},
		ExposedHeaders:   []string{"X-Request-Id"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// --- Operational endpoints ---
	r.Get("/healthz", healthzHandler(cfg.HealthChecks, logger))
	r.Get("/readyz", readyzHandler())
	if metrics != nil {
		r.Handle("/metrics", promhttp.HandlerFor(metrics.Registry, promhttp.HandlerOpts{}))
	}

	requireAuth := JWTAuthMiddleware(svcs.Auth, logger)
	optionalAuth := OptionalAuthMiddleware(svcs.Auth, logger)
	billingAuth := BillingAuthMiddleware(svcs.Auth, logger)
	adminOnly := RequireRole(domain.RoleAdmin)

	// --- API v1 ---
	r.Route("/v1", func(r chi.Router) {

		// =============================================
		// 1. Catálogo
		// =============================================
		r.Get("/catalog", getCatalogHandler(svcs.Catalog, logger))
		r.Get("/catalog/specialties/{specialtyId}/items", getCatalogItemsHandler(svcs.Catalog, logger))

		// =============================================
		// 2. Endereço
		// =============================================
		r.Get("/address/postal-code/{code}", postalCodeHandler(svcs.Address, logger))
		r.Post("/address/resolve", resolveAddressHandler(svcs.Address, logger))

		// =============================================
		// 3. Rascunhos de orçamento
		// =============================================
		r.Post("/drafts", newDraftSessionHandler(svcs.Drafts))
		r.Route("/drafts/{session}", func(r chi.Router) {
			r.Use(validSessionParam)
			r.Put("/", storeDraftHandler(svcs.Drafts, logger))
			r.Get("/", getDraftHandler(svcs.Drafts))
			r.Delete("/", clearDraftHandler(svcs.Drafts))
			r.Get("/sent-providers", sentProvidersHandler(svcs.Drafts, logger))
			r.Post("/sent-providers", markSentHandler(svcs.Drafts, logger))
			r.With(optionalAuth).Post("/submit", submitQuoteHandler(svcs.Quotes, logger))
		})

		// =============================================
		// 4. Orçamentos
		// =============================================
		r.Get("/quotes/{quoteId}/matches", quoteMatchesHandler(svcs.Quotes, logger))
		r.With(optionalAuth).Post("/quotes/{quoteId}/send", sendQuoteHandler(svcs.Quotes, logger))
		r.With(requireAuth).Get("/quotes/{quoteId}/providers", quoteProvidersHandler(svcs.Quotes, logger))

		// =============================================
		// 5. Prestador
		// =============================================
		r.Route("/provider", func(r chi.Router) {
			r.Use(requireAuth, RequireRole(domain.RoleProvider, domain.RoleAdmin))
			r.Get("/quotes", providerInboxHandler(svcs.Quotes, logger))
			r.Post("/quotes/{qpId}/accept", transitionHandler(svcs.Quotes.Accept, "accept", logger))
			r.Post("/quotes/{qpId}/reject", transitionHandler(svcs.Quotes.Reject, "reject", logger))
			r.Post("/quotes/{qpId}/complete", transitionHandler(svcs.Quotes.Complete, "complete", logger))
			r.Get("/features/{feature}", featureLimitHandler(svcs.Features, logger))
			r.Post("/portfolio", addPortfolioHandler(svcs.Providers, logger))
		})
		r.Get("/providers/{providerId}", getProviderHandler(svcs.Providers, logger))

		// =============================================
		// 6. Cliente
		// =============================================
		r.With(requireAuth).Post("/quote-providers/{qpId}/rating", rateProviderHandler(svcs.Quotes, logger))

		// =============================================
		// 7. Perfis
		// =============================================
		r.Group(func(r chi.Router) {
			r.Use(requireAuth)
			r.Post("/profiles", createProfileHandler(svcs.Auth, logger))
			r.Get("/me/role", myRoleHandler())
		})

		// =============================================
		// 8. Assinaturas (sempre 200)
		// =============================================
		r.Route("/billing", func(r chi.Router) {
			r.Use(billingAuth)
			r.Post("/checkout", checkoutHandler(svcs.Billing, logger))
			r.Post("/portal", portalHandler(svcs.Billing))
			r.Get("/subscription", subscriptionHandler(svcs.Billing))
			r.Get("/products", productsHandler(svcs.Billing))
		})

		// =============================================
		// 9. Administração
		// =============================================
		r.Route("/admin", func(r chi.Router) {
			r.Use(requireAuth, adminOnly)
			r.Post("/catalog/{level}", createCatalogNodeHandler(svcs.Catalog, logger))
			r.Put("/catalog/{level}/{id}", updateCatalogNodeHandler(svcs.Catalog, logger))
			r.Delete("/catalog/{level}/{id}", deleteCatalogNodeHandler(svcs.Catalog, logger))
			r.Patch("/quotes/{quoteId}", adminCorrectQuoteHandler(svcs.Quotes, logger))
			r.Post("/quote-providers/{qpId}/complete", transitionHandler(svcs.Quotes.Complete, "complete", logger))
			r.Put("/users/{userId}/role", updateUserRoleHandler(svcs.Auth, logger))
		})
	})

	return r
}

// ============================================================
// Operational handlers
// ============================================================

func healthzHandler(checks map[string]port.Pinger, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		now := time.Now().Format(time.RFC3339)

		services := []domain.ServiceHealth{
			{Name: "marketplace-api", Status: "healthy", LastChecked: now},
		}

		var (
			mu      sync.Mutex
			wg      sync.WaitGroup
			checked = make([]domain.ServiceHealth, 0, len(checks))
		)
		for name, pinger := range checks {
			wg.Add(1)
			go func() {
				defer wg.Done()
				ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
				defer cancel()

				start := time.Now()
				err := pinger.Ping(ctx)
				status := "healthy"
				if err != nil {
					status = "degraded"
					logger.Warn("health check failed", zap.String("service", name), zap.Error(err))
				}

				mu.Lock()
				checked = append(checked, domain.ServiceHealth{
					Name: name, Status: status, LatencyMs: time.Since(start).Milliseconds(), LastChecked: now,
				})
				mu.Unlock()
			}()
		}
		wg.Wait()
		sort.Slice(checked, func(i, j int) bool { return checked[i].Name < checked[j].Name })
		services = append(services, checked...)

		overallStatus := "healthy"
		for _, s := range services {
			if s.Status == "unhealthy" {
				overallStatus = "unhealthy"
				break
			}
			if s.Status == "degraded" {
				overallStatus = "degraded"
			}
		}

		writeJSON(w, http.StatusOK, domain.HealthStatus{
			Status:   overallStatus,
			Services: services,
		})
	}
}

func readyzHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
	}
}
