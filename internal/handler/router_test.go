package handler_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/boddenberg/servicos-marketplace-bfa-go/internal/domain"
	"github.com/boddenberg/servicos-marketplace-bfa-go/internal/handler"
	"github.com/boddenberg/servicos-marketplace-bfa-go/internal/infra/observability"
	"github.com/boddenberg/servicos-marketplace-bfa-go/internal/infra/session"
	"github.com/boddenberg/servicos-marketplace-bfa-go/internal/port"
	"github.com/boddenberg/servicos-marketplace-bfa-go/internal/service"

	"github.com/golang-jwt/jwt/v5"
	jsoniter "github.com/json-iterator/go"
	"github.com/rs/xid"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const testSecret = "router-secret"

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// --- fakes ---

type stubPolicy struct {
	role domain.Role
}

func (s *stubPolicy) GetUserRole(context.Context, string) (domain.Role, error) { return s.role, nil }
func (s *stubPolicy) IsAdmin(context.Context, string) (bool, error) {
	return s.role == domain.RoleAdmin, nil
}
func (s *stubPolicy) UpdateUserRole(context.Context, string, domain.Role) error { return nil }
func (s *stubPolicy) CreateUserProfile(_ context.Context, p *domain.UserProfile) (*domain.UserProfile, error) {
	return p, nil
}
func (s *stubPolicy) GetFeatureLimit(context.Context, string, string) (domain.FeatureLimit, error) {
	return domain.FeatureLimit{Known: true}, nil
}

type downGateway struct{}

func (downGateway) CreateCheckout(context.Context, string, string, domain.CheckoutRequest) (*domain.CheckoutSession, error) {
	return nil, errors.New("gateway down")
}
func (downGateway) ListSubscriptions(context.Context, string) ([]domain.Subscription, error) {
	return nil, errors.New("gateway down")
}
func (downGateway) ListPlans(context.Context) ([]domain.Product, error) {
	return nil, errors.New("gateway down")
}
func (downGateway) PortalURL(context.Context, string) (*domain.PortalSession, error) {
	return nil, errors.New("gateway down")
}

type pingerFunc func(ctx context.Context) error

func (f pingerFunc) Ping(ctx context.Context) error { return f(ctx) }

// --- helpers ---

func newTestRouter(t *testing.T, role domain.Role, checks map[string]port.Pinger) http.Handler {
	t.Helper()
	logger := zap.NewNop()
	metrics := observability.NewMetrics()

	svcs := handler.Services{
		Drafts:  service.NewDrafts(session.NewMemory(time.Hour), nil, logger),
		Billing: service.NewBilling(downGateway{}, service.BillingTiers{}, metrics, logger),
		Auth:    service.NewAuthService(&stubPolicy{role: role}, testSecret, logger),
	}
	cfg := handler.RouterConfig{CORSOrigins: []string{"http://localhost:5173"}, HealthChecks: checks}
	return handler.NewRouter(svcs, cfg, metrics, logger)
}

func bearer(t *testing.T, sub string) string {
	t.Helper()
	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub":   sub,
		"email": sub + "@example.com",
		"role":  "authenticated",
		"exp":   time.Now().Add(time.Hour).Unix(),
	}).SignedString([]byte(testSecret))
	require.NoError(t, err)
	return "Bearer " + tok
}

func do(router http.Handler, method, path, body, auth string) *httptest.ResponseRecorder {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	if auth != "" {
		req.Header.Set("Authorization", auth)
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

// --- operational ---

func TestHealthz(t *testing.T) {
	router := newTestRouter(t, domain.RoleClient, nil)

	rec := do(router, http.MethodGet, "/healthz", "", "")
	if rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}
}

func TestHealthz_DegradedBackend(t *testing.T) {
	router := newTestRouter(t, domain.RoleClient, map[string]port.Pinger{
		"postgres": pingerFunc(func(context.Context) error { return nil }),
		"redis":    pingerFunc(func(context.Context) error { return errors.New("connection refused") }),
	})

	rec := do(router, http.MethodGet, "/healthz", "", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var health domain.HealthStatus
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &health))
	require.Equal(t, "degraded", health.Status)
	require.Len(t, health.Services, 3)
	require.Equal(t, "postgres", health.Services[1].Name)
	require.Equal(t, "degraded", health.Services[2].Status)
}

func TestReadyz(t *testing.T) {
	router := newTestRouter(t, domain.RoleClient, nil)

	rec := do(router, http.MethodGet, "/readyz", "", "")
	if rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}
}

func TestMetrics(t *testing.T) {
	router := newTestRouter(t, domain.RoleClient, nil)

	rec := do(router, http.MethodGet, "/metrics", "", "")
	if rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}
}

func TestCORSPreflight(t *testing.T) {
	router := newTestRouter(t, domain.RoleClient, nil)

	req := httptest.NewRequest(http.MethodOptions, "/v1/drafts", nil)
	req.Header.Set("Origin", "http://localhost:5173")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, "http://localhost:5173", rec.Header().Get("Access-Control-Allow-Origin"))
}

// --- auth ---

func TestAuth_MissingToken(t *testing.T) {
	router := newTestRouter(t, domain.RoleClient, nil)

	rec := do(router, http.MethodGet, "/v1/me/role", "", "")
	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestAuth_BadScheme(t *testing.T) {
	router := newTestRouter(t, domain.RoleClient, nil)

	rec := do(router, http.MethodGet, "/v1/me/role", "", "Basic abc")
	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestAuth_MeRole(t *testing.T) {
	router := newTestRouter(t, domain.RoleProvider, nil)

	rec := do(router, http.MethodGet, "/v1/me/role", "", bearer(t, "u1"))
	require.Equal(t, http.StatusOK, rec.Code)
	require.JSONEq(t, `{"user_id":"u1","email":"u1@example.com","role":"provider"}`, rec.Body.String())
}

func TestAdminRoutes_RequireAdmin(t *testing.T) {
	router := newTestRouter(t, domain.RoleClient, nil)

	rec := do(router, http.MethodPost, "/v1/admin/catalog/service", `{"name":"Pintura"}`, bearer(t, "u1"))
	require.Equal(t, http.StatusForbidden, rec.Code)
}

func TestProviderRoutes_RejectClients(t *testing.T) {
	router := newTestRouter(t, domain.RoleClient, nil)

	rec := do(router, http.MethodGet, "/v1/provider/quotes", "", bearer(t, "u1"))
	require.Equal(t, http.StatusForbidden, rec.Code)
}

// --- billing ---

func TestBilling_FailureIsStill200(t *testing.T) {
	router := newTestRouter(t, domain.RoleProvider, nil)
	token := bearer(t, "p1")

	cases := []struct {
		name, method, path, body, auth string
	}{
		{"checkout", http.MethodPost, "/v1/billing/checkout", `{"plan_id":"basic"}`, token},
		{"checkout without plan", http.MethodPost, "/v1/billing/checkout", `{}`, token},
		{"portal", http.MethodPost, "/v1/billing/portal", "", token},
		{"subscription", http.MethodGet, "/v1/billing/subscription", "", token},
		{"products", http.MethodGet, "/v1/billing/products", "", token},
		{"no token", http.MethodGet, "/v1/billing/products", "", ""},
		{"bad token", http.MethodGet, "/v1/billing/products", "", "Bearer not-a-jwt"},
		{"bad scheme", http.MethodPost, "/v1/billing/checkout", `{"plan_id":"basic"}`, "Basic abc"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := do(router, tc.method, tc.path, tc.body, tc.auth)
			require.Equal(t, http.StatusOK, rec.Code)

			var env domain.BillingEnvelope
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
			require.NotEmpty(t, env.Error)
		})
	}
}

// --- drafts ---

func TestDraftFlow(t *testing.T) {
	router := newTestRouter(t, domain.RoleClient, nil)

	rec := do(router, http.MethodPost, "/v1/drafts", "", "")
	require.Equal(t, http.StatusCreated, rec.Code)
	var created struct {
		Session string `json:"session"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	require.NotEmpty(t, created.Session)
	base := "/v1/drafts/" + created.Session

	rec = do(router, http.MethodGet, base, "", "")
	require.Equal(t, http.StatusNotFound, rec.Code)

	// No street: rejected.
	rec = do(router, http.MethodPut, base, `{"path":{"service_id":"svc"},"address":{"city":"São Paulo"}}`, "")
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	body := `{
		"path": {"service_id": "svc", "sub_service_id": "sub"},
		"address": {"street": "Rua A", "city": "São Paulo"},
		"items": {"floor": {"unit": "square_meter"}},
		"measurements": [{"width": 3, "length": 4}]
	}`
	rec = do(router, http.MethodPut, base, body, "")
	require.Equal(t, http.StatusOK, rec.Code)

	var draft domain.QuoteDraft
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &draft))
	require.InDelta(t, 12.0, draft.Items["floor"].Quantity, 1e-9)
	require.True(t, draft.Items["floor"].Selected)

	rec = do(router, http.MethodPost, base+"/sent-providers", `{"provider_ids":["p2","p1"]}`, "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.JSONEq(t, `{"provider_ids":["p1","p2"]}`, rec.Body.String())

	rec = do(router, http.MethodDelete, base, "", "")
	require.Equal(t, http.StatusNoContent, rec.Code)

	rec = do(router, http.MethodGet, base, "", "")
	require.Equal(t, http.StatusNotFound, rec.Code)

	// The sent set outlives the draft.
	rec = do(router, http.MethodGet, base+"/sent-providers", "", "")
	require.JSONEq(t, `{"provider_ids":["p1","p2"]}`, rec.Body.String())
}

func TestDraft_InvalidJSON(t *testing.T) {
	router := newTestRouter(t, domain.RoleClient, nil)

	rec := do(router, http.MethodPut, "/v1/drafts/"+xid.New().String(), `{not json`, "")
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestDraft_RejectsForeignSessionIDs(t *testing.T) {
	router := newTestRouter(t, domain.RoleClient, nil)
	sid := xid.New().String()

	rec := do(router, http.MethodPost, "/v1/drafts/"+sid+"/sent-providers", `{"provider_ids":["p1","p2"]}`, "")
	require.Equal(t, http.StatusOK, rec.Code)

	body := `{"path":{"service_id":"svc"},"address":{"street":"Rua A","city":"Recife"}}`
	for _, id := range []string{"sent:" + sid, "abc"} {
		rec = do(router, http.MethodPut, "/v1/drafts/"+id, body, "")
		require.Equal(t, http.StatusBadRequest, rec.Code, id)
	}

	rec = do(router, http.MethodGet, "/v1/drafts/"+sid+"/sent-providers", "", "")
	require.JSONEq(t, `{"provider_ids":["p1","p2"]}`, rec.Body.String())
}

func TestDraft_SentProvidersScopedByQuote(t *testing.T) {
	router := newTestRouter(t, domain.RoleClient, nil)
	base := "/v1/drafts/" + xid.New().String() + "/sent-providers"

	rec := do(router, http.MethodPost, base, `{"quote_id":"q1","provider_ids":["p1"]}`, "")
	require.Equal(t, http.StatusOK, rec.Code)

	rec = do(router, http.MethodGet, base+"?quote_id=q1", "", "")
	require.JSONEq(t, `{"provider_ids":["p1"]}`, rec.Body.String())

	rec = do(router, http.MethodGet, base+"?quote_id=q2", "", "")
	require.JSONEq(t, `{"provider_ids":[]}`, rec.Body.String())
}
