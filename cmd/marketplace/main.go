package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/boddenberg/servicos-marketplace-bfa-go/internal/config"
	"github.com/boddenberg/servicos-marketplace-bfa-go/internal/domain"
	"github.com/boddenberg/servicos-marketplace-bfa-go/internal/handler"
	"github.com/boddenberg/servicos-marketplace-bfa-go/internal/infra/cache"
	"github.com/boddenberg/servicos-marketplace-bfa-go/internal/infra/geo"
	"github.com/boddenberg/servicos-marketplace-bfa-go/internal/infra/observability"
	"github.com/boddenberg/servicos-marketplace-bfa-go/internal/infra/payments"
	"github.com/boddenberg/servicos-marketplace-bfa-go/internal/infra/postgres"
	"github.com/boddenberg/servicos-marketplace-bfa-go/internal/infra/resilience"
	"github.com/boddenberg/servicos-marketplace-bfa-go/internal/infra/session"
	"github.com/boddenberg/servicos-marketplace-bfa-go/internal/infra/supabase"
	"github.com/boddenberg/servicos-marketplace-bfa-go/internal/port"
	"github.com/boddenberg/servicos-marketplace-bfa-go/internal/service"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// backend is everything the services need from the system of record.
type backend interface {
	port.CatalogStore
	port.QuoteStore
	port.ProviderStore
	port.PolicyStore
	port.Pinger
}

func main() {
	// --- Config ---
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	// --- Logger ---
	logger := observability.NewLogger(cfg.LogLevel)
	defer logger.Sync()

	logger.Info("configuration loaded",
		zap.Int("port", cfg.Port),
		zap.String("log_level", cfg.LogLevel),
		zap.String("backend", cfg.Backend),
		zap.String("draft_backend", cfg.DraftBackend),
		zap.Duration("draft_ttl", cfg.DraftTTL),
		zap.Duration("catalog_ttl", cfg.CatalogTTL),
		zap.Duration("http_timeout", cfg.HTTPTimeout),
		zap.Int("max_retries", cfg.MaxRetries),
		zap.Bool("payment_gateway_mock", cfg.Billing.Mock),
	)

	// --- Tracing ---
	shutdown, err := observability.InitTracer(cfg.OTLPEndpoint, "servicos-marketplace-bfa")
	if err != nil {
		logger.Fatal("failed to init tracer", zap.Error(err))
	}
	defer shutdown(context.Background())

	// --- Metrics ---
	metrics := observability.NewMetrics()

	// --- Resilience ---
	resilienceCfg := resilience.Config{
		MaxRetries:     cfg.MaxRetries,
		InitialBackoff: cfg.InitialBackoff,
		MaxConcurrency: cfg.MaxConcurrency,
	}

	httpClient := &http.Client{Timeout: cfg.HTTPTimeout}
	ctx := context.Background()

	// --- Backend ---
	var store backend
	switch cfg.Backend {
	case "postgres":
		if cfg.Postgres.AutoMigrate {
			if err := postgres.Migrate(cfg.Postgres.DSN, logger); err != nil {
				logger.Fatal("database migration failed", zap.Error(err))
			}
		}
		pool, err := postgres.Connect(ctx, cfg.Postgres.DSN)
		if err != nil {
			logger.Fatal("failed to connect to postgres", zap.Error(err))
		}
		defer pool.Close()
		store = postgres.NewStore(pool, logger)
		logger.Info("using Postgres as data backend")
	default:
		store = supabase.NewClient(
			httpClient,
			cfg.Supabase.URL,
			cfg.Supabase.AnonKey,
			cfg.Supabase.ServiceKey,
			resilience.NewCircuitBreaker("supabase", logger),
			resilienceCfg,
			logger,
		)
		logger.Info("using Supabase as data backend", zap.String("supabase_url", cfg.Supabase.URL))
	}

	healthChecks := map[string]port.Pinger{cfg.Backend: store}

	// --- Draft sessions ---
	var drafts port.DraftRepository
	switch cfg.DraftBackend {
	case "redis":
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Username: cfg.Redis.Username,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
			PoolSize: cfg.Redis.PoolSize,
		})
		defer rdb.Close()
		redisDrafts := session.NewRedis(rdb, cfg.Redis.Prefix, cfg.DraftTTL)
		drafts = redisDrafts
		healthChecks["redis"] = redisDrafts
	default:
		drafts = session.NewMemory(cfg.DraftTTL)
	}

	// --- Address collaborators ---
	postal := geo.NewPostalCodeClient(httpClient, cfg.PostalLookupURL, resilience.NewCircuitBreaker("postal-lookup", logger), resilienceCfg)
	geocoder := geo.NewGeocoderClient(httpClient, cfg.GeocoderURL, cfg.GeocoderUserAgent, resilience.NewCircuitBreaker("geocoder", logger), resilienceCfg)

	// --- Payments ---
	gateway, err := payments.NewMercadoPagoGateway(payments.Options{
		AccessToken: cfg.Billing.AccessToken,
		PortalURL:   cfg.Billing.PortalURL,
		Mock:        cfg.Billing.Mock,
	}, resilience.NewCircuitBreaker("mercadopago", logger), resilienceCfg, logger)
	if err != nil {
		logger.Fatal("failed to init payment gateway", zap.Error(err))
	}

	// --- Services ---
	catalogCache := cache.New[*domain.CatalogSnapshot](cfg.CatalogTTL)
	address := service.NewAddressResolver(postal, geocoder, metrics, logger)
	draftSvc := service.NewDrafts(drafts, nil, logger)
	gate := service.NewFeatureGate(store, metrics, logger)
	matcher := service.NewMatcher(store, gate, metrics, logger)

	svcs := handler.Services{
		Catalog:   service.NewCatalog(store, catalogCache, nil, metrics, logger),
		Address:   address,
		Drafts:    draftSvc,
		Quotes:    service.NewQuotes(store, store, draftSvc, address, matcher, gate, nil, metrics, logger),
		Providers: service.NewProviders(store, gate, nil, logger),
		Features:  gate,
		Billing: service.NewBilling(gateway, service.BillingTiers{
			Status:   domain.TierThresholds{Basic: cfg.Billing.StatusBasicCents, Premium: cfg.Billing.StatusPremiumCents},
			Products: domain.TierThresholds{Basic: cfg.Billing.ProductsBasicCents, Premium: cfg.Billing.ProductsPremiumCents},
		}, metrics, logger),
		Auth: service.NewAuthService(store, cfg.JWTSecret, logger),
	}

	// --- Router ---
	router := handler.NewRouter(svcs, handler.RouterConfig{
		CORSOrigins:  cfg.CORSOrigins,
		HealthChecks: healthChecks,
	}, metrics, logger)

	// --- Server ---
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// --- Graceful shutdown ---
	go func() {
		logger.Info("server starting", zap.Int("port", cfg.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("server failed", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("server shutting down...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Fatal("server forced shutdown", zap.Error(err))
	}

	logger.Info("server stopped")
}
