// Package port defines the interfaces (ports) for external dependencies.
// Following hexagonal architecture, these ports decouple the domain/service
// layer from concrete implementations.
package port

import (
	"context"
	"time"

	"github.com/boddenberg/servicos-marketplace-bfa-go/internal/domain"
)

// CatalogStore reads and mutates the three catalog tables. List methods
// return rows ordered by name.
type CatalogStore interface {
	ListServices(ctx context.Context) ([]domain.Service, error)
	ListSubServices(ctx context.Context) ([]domain.SubService, error)
	ListSpecialties(ctx context.Context) ([]domain.Specialty, error)
	ListCatalogItems(ctx context.Context, specialtyID string) ([]domain.CatalogItem, error)

	CreateNode(ctx context.Context, node domain.CatalogNode) (*domain.CatalogNode, error)
	UpdateNode(ctx context.Context, node domain.CatalogNode) (*domain.CatalogNode, error)
	DeleteNode(ctx context.Context, level domain.CatalogLevel, id string) error
}

// QuoteStore persists quotes and their per-provider records.
type QuoteStore interface {
	CreateQuote(ctx context.Context, q *domain.Quote) (*domain.Quote, error)
	GetQuote(ctx context.Context, quoteID string) (*domain.Quote, error)
	CorrectQuote(ctx context.Context, quoteID string, c domain.QuoteCorrection) (*domain.Quote, error)

	CreateQuoteProviders(ctx context.Context, rows []domain.QuoteProvider) ([]domain.QuoteProvider, error)
	GetQuoteProvider(ctx context.Context, id string) (*domain.QuoteProvider, error)
	ListQuoteProvidersByProvider(ctx context.Context, providerID string) ([]domain.QuoteProvider, error)
	ListQuoteProvidersByQuote(ctx context.Context, quoteID string) ([]domain.QuoteProvider, error)

	// TransitionQuoteProvider moves one record from -> to in a single
	// conditional update. It returns *domain.ErrInvalidTransition when no
	// row was in `from`.
	TransitionQuoteProvider(ctx context.Context, id string, from, to domain.QuoteStatus, at time.Time) (*domain.QuoteProvider, error)
}

// ProviderStore reads provider profiles, prices, ratings and portfolio.
type ProviderStore interface {
	// ListCandidates returns providers with at least one price row on any
	// node of path, each with Prices populated.
	ListCandidates(ctx context.Context, path domain.CatalogPath) ([]domain.ProviderProfile, error)
	GetProvider(ctx context.Context, providerID string) (*domain.ProviderProfile, error)

	ListRatings(ctx context.Context, providerID string) ([]domain.Rating, error)
	GetRatingByQuoteProvider(ctx context.Context, quoteProviderID string) (*domain.Rating, error)
	CreateRating(ctx context.Context, r *domain.Rating) (*domain.Rating, error)
	UpdateRatingAggregate(ctx context.Context, providerID string, avg float64, count int) error

	CountPortfolio(ctx context.Context, providerID string) (int, error)
	CreatePortfolioItem(ctx context.Context, item *domain.PortfolioItem) (*domain.PortfolioItem, error)
}

// PolicyStore wraps the backend's remote procedures for roles, profiles
// and feature limits.
type PolicyStore interface {
	GetUserRole(ctx context.Context, userID string) (domain.Role, error)
	IsAdmin(ctx context.Context, userID string) (bool, error)
	UpdateUserRole(ctx context.Context, userID string, role domain.Role) error
	CreateUserProfile(ctx context.Context, p *domain.UserProfile) (*domain.UserProfile, error)
	GetFeatureLimit(ctx context.Context, userID, feature string) (domain.FeatureLimit, error)
}

// Geocoder turns a free-text address into coordinates. A nil point with a
// nil error means "not found".
type Geocoder interface {
	Geocode(ctx context.Context, query string) (*domain.GeoPoint, error)
}

// PostalCodeLookup normalizes a postal code into an address. Unknown codes
// return *domain.ErrUnknownPostalCode.
type PostalCodeLookup interface {
	Lookup(ctx context.Context, postalCode string) (*domain.Address, error)
}

// DraftRepository is the pluggable session store for quote drafts.
// Load returns (nil, nil) when the session has no draft. Sent sets are
// scoped by session and quote; an empty quoteID is the unsubmitted draft.
type DraftRepository interface {
	Save(ctx context.Context, session string, draft *domain.QuoteDraft) error
	Load(ctx context.Context, session string) (*domain.QuoteDraft, error)
	Clear(ctx context.Context, session string) error

	AddSent(ctx context.Context, session, quoteID string, providerIDs ...string) error
	Sent(ctx context.Context, session, quoteID string) ([]string, error)
}

// PaymentGateway is the external subscription billing provider.
type PaymentGateway interface {
	CreateCheckout(ctx context.Context, payerEmail, externalRef string, req domain.CheckoutRequest) (*domain.CheckoutSession, error)
	ListSubscriptions(ctx context.Context, payerEmail string) ([]domain.Subscription, error)
	ListPlans(ctx context.Context) ([]domain.Product, error)
	PortalURL(ctx context.Context, payerEmail string) (*domain.PortalSession, error)
}

// Cache is a keyed store with expiry, satisfied by cache.InMemory.
type Cache[T any] interface {
	Get(key string) (T, bool)
	Set(key string, value T)
	Delete(key string)
}

// Pinger is any backend that can report its reachability for /healthz.
type Pinger interface {
	Ping(ctx context.Context) error
}
