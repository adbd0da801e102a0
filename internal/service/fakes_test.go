package service_test

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/boddenberg/servicos-marketplace-bfa-go/internal/domain"
)

// --- Clock ---

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// --- Catalog ---

type mockCatalogStore struct {
	services    []domain.Service
	subServices []domain.SubService
	specialties []domain.Specialty
	items       []domain.CatalogItem
	err         error

	serviceCalls   atomic.Int32
	subCalls       atomic.Int32
	specialtyCalls atomic.Int32
	created        []domain.CatalogNode
	deleted        []string
}

func (m *mockCatalogStore) ListServices(context.Context) ([]domain.Service, error) {
	m.serviceCalls.Add(1)
	return m.services, m.err
}

func (m *mockCatalogStore) ListSubServices(context.Context) ([]domain.SubService, error) {
	m.subCalls.Add(1)
	return m.subServices, m.err
}

func (m *mockCatalogStore) ListSpecialties(context.Context) ([]domain.Specialty, error) {
	m.specialtyCalls.Add(1)
	return m.specialties, m.err
}

func (m *mockCatalogStore) ListCatalogItems(_ context.Context, _ string) ([]domain.CatalogItem, error) {
	return m.items, m.err
}

func (m *mockCatalogStore) CreateNode(_ context.Context, node domain.CatalogNode) (*domain.CatalogNode, error) {
	m.created = append(m.created, node)
	return &node, nil
}

func (m *mockCatalogStore) UpdateNode(_ context.Context, node domain.CatalogNode) (*domain.CatalogNode, error) {
	return &node, nil
}

func (m *mockCatalogStore) DeleteNode(_ context.Context, _ domain.CatalogLevel, id string) error {
	m.deleted = append(m.deleted, id)
	return nil
}

// --- Providers ---

type mockProviderStore struct {
	mu          sync.Mutex
	candidates  []domain.ProviderProfile
	ratings     []domain.Rating
	portfolio   int
	countErr    error
	createdItem *domain.PortfolioItem
	aggregate   struct {
		avg   float64
		count int
	}
}

func (m *mockProviderStore) ListCandidates(context.Context, domain.CatalogPath) ([]domain.ProviderProfile, error) {
	return m.candidates, nil
}

func (m *mockProviderStore) GetProvider(_ context.Context, id string) (*domain.ProviderProfile, error) {
	for _, p := range m.candidates {
		if p.ID == id {
			return &p, nil
		}
	}
	return nil, &domain.ErrNotFound{Resource: "provider", ID: id}
}

func (m *mockProviderStore) ListRatings(_ context.Context, providerID string) ([]domain.Rating, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.Rating
	for _, r := range m.ratings {
		if r.ProviderID == providerID {
			out = append(out, r)
		}
	}
	return out, nil
}

func (m *mockProviderStore) GetRatingByQuoteProvider(_ context.Context, qpID string) (*domain.Rating, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range m.ratings {
		if r.QuoteProviderID == qpID {
			return &r, nil
		}
	}
	return nil, nil
}

func (m *mockProviderStore) CreateRating(_ context.Context, r *domain.Rating) (*domain.Rating, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := *r
	out.ID = fmt.Sprintf("r%d", len(m.ratings)+1)
	m.ratings = append(m.ratings, out)
	return &out, nil
}

func (m *mockProviderStore) UpdateRatingAggregate(_ context.Context, _ string, avg float64, count int) error {
	m.aggregate.avg, m.aggregate.count = avg, count
	return nil
}

func (m *mockProviderStore) CountPortfolio(context.Context, string) (int, error) {
	return m.portfolio, m.countErr
}

func (m *mockProviderStore) CreatePortfolioItem(_ context.Context, item *domain.PortfolioItem) (*domain.PortfolioItem, error) {
	out := *item
	out.ID = "pf-1"
	m.createdItem = &out
	return &out, nil
}

// --- Quotes ---

type mockQuoteStore struct {
	mu     sync.Mutex
	quotes map[string]*domain.Quote
	qps    map[string]*domain.QuoteProvider
	seq    int
}

func newMockQuoteStore() *mockQuoteStore {
	return &mockQuoteStore{
		quotes: map[string]*domain.Quote{},
		qps:    map[string]*domain.QuoteProvider{},
	}
}

func (m *mockQuoteStore) CreateQuote(_ context.Context, q *domain.Quote) (*domain.Quote, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := *q
	m.quotes[q.ID] = &out
	return &out, nil
}

func (m *mockQuoteStore) GetQuote(_ context.Context, id string) (*domain.Quote, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	q, ok := m.quotes[id]
	if !ok {
		return nil, &domain.ErrNotFound{Resource: "quote", ID: id}
	}
	out := *q
	return &out, nil
}

func (m *mockQuoteStore) CorrectQuote(_ context.Context, id string, fix domain.QuoteCorrection) (*domain.Quote, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	q, ok := m.quotes[id]
	if !ok {
		return nil, &domain.ErrNotFound{Resource: "quote", ID: id}
	}
	if fix.Description != nil {
		q.Description = *fix.Description
	}
	if fix.SubmitterName != nil {
		q.SubmitterName = *fix.SubmitterName
	}
	if fix.Address != nil {
		q.Address = *fix.Address
	}
	out := *q
	return &out, nil
}

func (m *mockQuoteStore) CreateQuoteProviders(_ context.Context, rows []domain.QuoteProvider) ([]domain.QuoteProvider, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]domain.QuoteProvider, 0, len(rows))
	for _, r := range rows {
		for _, existing := range m.qps {
			if existing.QuoteID == r.QuoteID && existing.ProviderID == r.ProviderID {
				return nil, &domain.ErrConflict{Message: "duplicate"}
			}
		}
		m.seq++
		r.ID = fmt.Sprintf("qp%d", m.seq)
		row := r
		m.qps[r.ID] = &row
		out = append(out, r)
	}
	return out, nil
}

func (m *mockQuoteStore) GetQuoteProvider(_ context.Context, id string) (*domain.QuoteProvider, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	qp, ok := m.qps[id]
	if !ok {
		return nil, &domain.ErrNotFound{Resource: "quote_provider", ID: id}
	}
	out := *qp
	return &out, nil
}

func (m *mockQuoteStore) ListQuoteProvidersByProvider(_ context.Context, providerID string) ([]domain.QuoteProvider, error) {
	return m.filter(func(qp *domain.QuoteProvider) bool { return qp.ProviderID == providerID }), nil
}

func (m *mockQuoteStore) ListQuoteProvidersByQuote(_ context.Context, quoteID string) ([]domain.QuoteProvider, error) {
	return m.filter(func(qp *domain.QuoteProvider) bool { return qp.QuoteID == quoteID }), nil
}

func (m *mockQuoteStore) filter(keep func(*domain.QuoteProvider) bool) []domain.QuoteProvider {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.QuoteProvider
	for _, qp := range m.qps {
		if keep(qp) {
			out = append(out, *qp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// TransitionQuoteProvider mirrors the conditional UPDATE of the real stores.
func (m *mockQuoteStore) TransitionQuoteProvider(_ context.Context, id string, from, to domain.QuoteStatus, at time.Time) (*domain.QuoteProvider, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	qp, ok := m.qps[id]
	if !ok {
		return nil, &domain.ErrNotFound{Resource: "quote_provider", ID: id}
	}
	if qp.Status != from {
		return nil, &domain.ErrInvalidTransition{From: qp.Status, To: to}
	}
	qp.Status = to
	qp.UpdatedAt = at
	out := *qp
	return &out, nil
}

func (m *mockQuoteStore) put(qp domain.QuoteProvider) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.seq++
	if qp.ID == "" {
		qp.ID = fmt.Sprintf("qp%d", m.seq)
	}
	m.qps[qp.ID] = &qp
}

// --- Policy ---

type mockPolicyStore struct {
	role       domain.Role
	roleErr    error
	admin      bool
	limit      domain.FeatureLimit
	userLimits map[string]domain.FeatureLimit
	limitErr   error
	updated    map[string]domain.Role
	profiles   []domain.UserProfile
	limitCalls atomic.Int32
}

func (m *mockPolicyStore) GetUserRole(context.Context, string) (domain.Role, error) {
	return m.role, m.roleErr
}

func (m *mockPolicyStore) IsAdmin(context.Context, string) (bool, error) {
	return m.admin, nil
}

func (m *mockPolicyStore) UpdateUserRole(_ context.Context, userID string, role domain.Role) error {
	if m.updated == nil {
		m.updated = map[string]domain.Role{}
	}
	m.updated[userID] = role
	return nil
}

func (m *mockPolicyStore) CreateUserProfile(_ context.Context, p *domain.UserProfile) (*domain.UserProfile, error) {
	m.profiles = append(m.profiles, *p)
	out := *p
	return &out, nil
}

func (m *mockPolicyStore) GetFeatureLimit(_ context.Context, userID, feature string) (domain.FeatureLimit, error) {
	m.limitCalls.Add(1)
	l := m.limit
	if ul, ok := m.userLimits[userID+"/"+feature]; ok {
		l = ul
	}
	l.Feature = feature
	return l, m.limitErr
}

// --- Address collaborators ---

type mockPostal struct {
	addr *domain.Address
	err  error
}

func (m *mockPostal) Lookup(context.Context, string) (*domain.Address, error) {
	return m.addr, m.err
}

type mockGeocoder struct {
	point *domain.GeoPoint
	err   error
	calls atomic.Int32
}

func (m *mockGeocoder) Geocode(context.Context, string) (*domain.GeoPoint, error) {
	m.calls.Add(1)
	return m.point, m.err
}

// --- Payments ---

type mockGateway struct {
	checkout *domain.CheckoutSession
	subs     []domain.Subscription
	plans    []domain.Product
	portal   *domain.PortalSession
	err      error
}

func (m *mockGateway) CreateCheckout(context.Context, string, string, domain.CheckoutRequest) (*domain.CheckoutSession, error) {
	return m.checkout, m.err
}

func (m *mockGateway) ListSubscriptions(context.Context, string) ([]domain.Subscription, error) {
	return m.subs, m.err
}

func (m *mockGateway) ListPlans(context.Context) ([]domain.Product, error) {
	return m.plans, m.err
}

func (m *mockGateway) PortalURL(context.Context, string) (*domain.PortalSession, error) {
	return m.portal, m.err
}

func ptr[T any](v T) *T { return &v }
