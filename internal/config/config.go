// Package config loads the application configuration from the environment.
// A .env file in the working directory is read first when present.
package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v10"
	"github.com/joho/godotenv"
)

// Config holds all application configuration.
type Config struct {
	// Server
	Port        int      `env:"PORT" envDefault:"8080"`
	LogLevel    string   `env:"LOG_LEVEL" envDefault:"info"`
	CORSOrigins []string `env:"CORS_ALLOWED_ORIGINS" envSeparator:"," envDefault:"http://localhost:5173"`

	// Backend selects the store implementation: "supabase" or "postgres".
	Backend  string `env:"BACKEND" envDefault:"supabase"`
	Supabase Supabase
	Postgres Postgres

	// Draft sessions
	DraftBackend string        `env:"DRAFT_BACKEND" envDefault:"memory"`
	DraftTTL     time.Duration `env:"DRAFT_TTL" envDefault:"24h"`
	Redis        Redis

	// Catalog
	CatalogTTL time.Duration `env:"CATALOG_TTL" envDefault:"5m"`

	// Address collaborators
	GeocoderURL       string `env:"GEOCODER_URL" envDefault:"https://nominatim.openstreetmap.org"`
	GeocoderUserAgent string `env:"GEOCODER_USER_AGENT" envDefault:"servicos-marketplace/1.0"`
	PostalLookupURL   string `env:"POSTAL_LOOKUP_URL" envDefault:"https://viacep.com.br"`

	Billing Billing

	// HTTP client
	HTTPTimeout time.Duration `env:"HTTP_TIMEOUT" envDefault:"10s"`

	// Resilience
	MaxRetries     int           `env:"MAX_RETRIES" envDefault:"3"`
	InitialBackoff time.Duration `env:"INITIAL_BACKOFF" envDefault:"100ms"`
	MaxConcurrency int           `env:"MAX_CONCURRENCY" envDefault:"50"`

	// Observability
	OTLPEndpoint string `env:"OTEL_EXPORTER_OTLP_ENDPOINT"`

	// JWTSecret verifies the HS256 access tokens issued by the auth platform.
	JWTSecret string `env:"JWT_SECRET" json:"-"`
}

// Supabase is the hosted backend.
type Supabase struct {
	URL        string `env:"SUPABASE_URL"`
	AnonKey    string `env:"SUPABASE_ANON_KEY" json:"-"`
	ServiceKey string `env:"SUPABASE_SERVICE_ROLE_KEY" json:"-"`
}

// Postgres is the self-managed database.
type Postgres struct {
	DSN         string `env:"DATABASE_URL" json:"-"`
	AutoMigrate bool   `env:"DATABASE_AUTO_MIGRATE" envDefault:"true"`
}

// Redis backs shared draft sessions.
type Redis struct {
	Addr     string `env:"REDIS_ADDR" envDefault:"localhost:6379"`
	Username string `env:"REDIS_USERNAME"`
	Password string `env:"REDIS_PASSWORD" json:"-"`
	DB       int    `env:"REDIS_DB" envDefault:"0"`
	PoolSize int    `env:"REDIS_POOL_SIZE" envDefault:"10"`
	Prefix   string `env:"REDIS_KEY_PREFIX" envDefault:"marketplace:"`
}

// Billing configures the payment gateway and the two tier tables. The
// subscription check and the product listing classify amounts with
// different thresholds; they are kept apart on purpose until pricing is
// confirmed.
type Billing struct {
	AccessToken string `env:"MERCADOPAGO_ACCESS_TOKEN" json:"-"`
	Mock        bool   `env:"PAYMENT_GATEWAY_MOCK" envDefault:"false"`
	PortalURL   string `env:"BILLING_PORTAL_URL" envDefault:"https://www.mercadopago.com.br/subscriptions"`

	StatusBasicCents     int64 `env:"BILLING_STATUS_BASIC_CENTS" envDefault:"2000"`
	StatusPremiumCents   int64 `env:"BILLING_STATUS_PREMIUM_CENTS" envDefault:"7000"`
	ProductsBasicCents   int64 `env:"BILLING_PRODUCTS_BASIC_CENTS" envDefault:"1000"`
	ProductsPremiumCents int64 `env:"BILLING_PRODUCTS_PREMIUM_CENTS" envDefault:"2000"`
}

// Load reads .env (if any) and parses the environment.
func Load() (*Config, error) {
	_ = godotenv.Load()

	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("env.Parse: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	switch c.Backend {
	case "supabase":
		if c.Supabase.URL == "" || c.Supabase.ServiceKey == "" {
			return fmt.Errorf("config: BACKEND=supabase needs SUPABASE_URL and SUPABASE_SERVICE_ROLE_KEY")
		}
	case "postgres":
		if c.Postgres.DSN == "" {
			return fmt.Errorf("config: BACKEND=postgres needs DATABASE_URL")
		}
	default:
		return fmt.Errorf("config: unknown BACKEND %q", c.Backend)
	}

	switch c.DraftBackend {
	case "memory", "redis":
	default:
		return fmt.Errorf("config: unknown DRAFT_BACKEND %q", c.DraftBackend)
	}

	if c.JWTSecret == "" {
		return fmt.Errorf("config: JWT_SECRET is required")
	}
	return nil
}
