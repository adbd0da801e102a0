// Package payments implements the subscription billing gateway on top of
// Mercado Pago preapprovals (subscriptions) and preapproval plans.
package payments

import (
	"context"
	"errors"
	"math"
	"net/url"
	"strings"
	"time"

	"github.com/boddenberg/servicos-marketplace-bfa-go/internal/domain"
	"github.com/boddenberg/servicos-marketplace-bfa-go/internal/infra/resilience"

	jsoniter "github.com/json-iterator/go"
	"github.com/mercadopago/sdk-go/pkg/config"
	"github.com/mercadopago/sdk-go/pkg/preapproval"
	"github.com/mercadopago/sdk-go/pkg/preapprovalplan"
	"github.com/sony/gobreaker"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

var (
	tracer = otel.Tracer("payments")
	json   = jsoniter.ConfigCompatibleWithStandardLibrary
)

const serviceName = "mercadopago"

var ErrMissingAccessToken = errors.New("missing MERCADOPAGO_ACCESS_TOKEN")

// Options configures the gateway.
type Options struct {
	AccessToken string
	// PortalURL is the page where payers manage their subscriptions.
	PortalURL string
	// Mock answers from fixed data without calling the provider.
	Mock bool
}

// MercadoPagoGateway implements port.PaymentGateway.
type MercadoPagoGateway struct {
	subscriptions preapproval.Client
	plans         preapprovalplan.Client
	portalURL     string
	mockMode      bool

	cb       *gobreaker.CircuitBreaker
	cfg      resilience.Config
	bulkhead *resilience.Bulkhead
	logger   *zap.Logger
}

// NewMercadoPagoGateway builds the gateway. Mock mode needs no token.
func NewMercadoPagoGateway(opts Options, cb *gobreaker.CircuitBreaker, cfg resilience.Config, logger *zap.Logger) (*MercadoPagoGateway, error) {
	g := &MercadoPagoGateway{
		portalURL: opts.PortalURL,
		cb:        cb,
		cfg:       cfg,
		bulkhead:  resilience.NewBulkhead(cfg.MaxConcurrency),
		logger:    logger,
	}

	if opts.Mock {
		logger.Info("payments: mock mode enabled")
		g.mockMode = true
		return g, nil
	}

	if opts.AccessToken == "" {
		return nil, ErrMissingAccessToken
	}

	sdkCfg, err := config.New(opts.AccessToken)
	if err != nil {
		return nil, err
	}
	g.subscriptions = preapproval.NewClient(sdkCfg)
	g.plans = preapprovalplan.NewClient(sdkCfg)
	logger.Info("payments: Mercado Pago client initialized")
	return g, nil
}

// The SDK responses are re-decoded into these views so only the fields the
// marketplace reads are bound.
type autoRecurring struct {
	Frequency         int     `json:"frequency"`
	FrequencyType     string  `json:"frequency_type"`
	TransactionAmount float64 `json:"transaction_amount"`
	CurrencyID        string  `json:"currency_id"`
}

type planView struct {
	ID            string        `json:"id"`
	Reason        string        `json:"reason"`
	Status        string        `json:"status"`
	InitPoint     string        `json:"init_point"`
	AutoRecurring autoRecurring `json:"auto_recurring"`
}

type preapprovalView struct {
	ID                string        `json:"id"`
	Status            string        `json:"status"`
	PreapprovalPlanID string        `json:"preapproval_plan_id"`
	NextPaymentDate   *time.Time    `json:"next_payment_date"`
	AutoRecurring     autoRecurring `json:"auto_recurring"`
}

func convert[T any](v any) (T, error) {
	var out T
	raw, err := json.Marshal(v)
	if err != nil {
		return out, err
	}
	err = json.Unmarshal(raw, &out)
	return out, err
}

func toCents(amount float64) int64 {
	return int64(math.Round(amount * 100))
}

func interval(a autoRecurring) string {
	if a.FrequencyType == "" {
		return ""
	}
	if a.Frequency <= 1 {
		return strings.TrimSuffix(a.FrequencyType, "s")
	}
	return a.FrequencyType
}

// call runs fn behind the bulkhead and breaker.
func call[T any](ctx context.Context, g *MercadoPagoGateway, cfg resilience.Config, fn func() (T, error)) (T, error) {
	if err := g.bulkhead.Acquire(ctx); err != nil {
		var zero T
		return zero, err
	}
	defer g.bulkhead.Release()

	return resilience.Call(ctx, g.cb, cfg, serviceName, fn)
}

// CreateCheckout returns the hosted subscription checkout for a plan. The
// plan's init point is the checkout page; payer email and back URL travel
// as query parameters recognized by the checkout.
func (g *MercadoPagoGateway) CreateCheckout(ctx context.Context, payerEmail, externalRef string, req domain.CheckoutRequest) (*domain.CheckoutSession, error) {
	ctx, span := tracer.Start(ctx, "MercadoPago.CreateCheckout")
	defer span.End()
	span.SetAttributes(attribute.String("plan.id", req.PlanID))

	if g.mockMode {
		return &domain.CheckoutSession{
			ID:  "mock-" + req.PlanID,
			URL: "https://www.mercadopago.com.br/subscriptions/checkout?preapproval_plan_id=" + req.PlanID,
		}, nil
	}

	plan, err := call(ctx, g, g.cfg, func() (planView, error) {
		resp, err := g.plans.Get(ctx, req.PlanID)
		if err != nil {
			return planView{}, err
		}
		return convert[planView](resp)
	})
	if err != nil {
		return nil, err
	}
	if plan.InitPoint == "" {
		return nil, &domain.ErrValidation{Field: "plan_id", Message: "plan has no checkout link"}
	}

	g.logger.Info("payments: checkout created",
		zap.String("plan_id", plan.ID),
		zap.String("external_reference", externalRef),
	)
	return &domain.CheckoutSession{ID: plan.ID, URL: withPayer(plan.InitPoint, payerEmail, req.SuccessURL)}, nil
}

func withPayer(initPoint, payerEmail, backURL string) string {
	sep := "?"
	if strings.Contains(initPoint, "?") {
		sep = "&"
	}
	out := initPoint
	if payerEmail != "" {
		out += sep + "payer_email=" + url.QueryEscape(payerEmail)
		sep = "&"
	}
	if backURL != "" {
		out += sep + "back_url=" + url.QueryEscape(backURL)
	}
	return out
}

// ListSubscriptions searches the payer's preapprovals.
func (g *MercadoPagoGateway) ListSubscriptions(ctx context.Context, payerEmail string) ([]domain.Subscription, error) {
	ctx, span := tracer.Start(ctx, "MercadoPago.ListSubscriptions")
	defer span.End()

	if g.mockMode {
		return []domain.Subscription{}, nil
	}

	views, err := call(ctx, g, g.cfg, func() ([]preapprovalView, error) {
		resp, err := g.subscriptions.Search(ctx, preapproval.SearchRequest{
			Filters: map[string]string{"payer_email": payerEmail},
		})
		if err != nil {
			return nil, err
		}
		page, err := convert[struct {
			Results []preapprovalView `json:"results"`
		}](resp)
		return page.Results, err
	})
	if err != nil {
		return nil, err
	}

	out := make([]domain.Subscription, 0, len(views))
	for _, v := range views {
		s := domain.Subscription{
			ID:          v.ID,
			PlanID:      v.PreapprovalPlanID,
			Status:      v.Status,
			AmountCents: toCents(v.AutoRecurring.TransactionAmount),
		}
		if v.NextPaymentDate != nil && !v.NextPaymentDate.IsZero() {
			s.NextPayment = v.NextPaymentDate
		}
		out = append(out, s)
	}
	return out, nil
}

// ListPlans returns the active subscription plans.
func (g *MercadoPagoGateway) ListPlans(ctx context.Context) ([]domain.Product, error) {
	ctx, span := tracer.Start(ctx, "MercadoPago.ListPlans")
	defer span.End()

	if g.mockMode {
		return mockPlans(), nil
	}

	views, err := call(ctx, g, g.cfg, func() ([]planView, error) {
		resp, err := g.plans.Search(ctx, preapprovalplan.SearchRequest{
			Filters: map[string]string{"status": "active"},
		})
		if err != nil {
			return nil, err
		}
		page, err := convert[struct {
			Results []planView `json:"results"`
		}](resp)
		return page.Results, err
	})
	if err != nil {
		return nil, err
	}

	out := make([]domain.Product, 0, len(views))
	for _, v := range views {
		out = append(out, domain.Product{
			ID:          v.ID,
			Name:        v.Reason,
			Status:      v.Status,
			AmountCents: toCents(v.AutoRecurring.TransactionAmount),
			Currency:    v.AutoRecurring.CurrencyID,
			Interval:    interval(v.AutoRecurring),
		})
	}
	return out, nil
}

// PortalURL returns the management page. Mercado Pago has no per-customer
// portal session, so the configured page is returned as is.
func (g *MercadoPagoGateway) PortalURL(ctx context.Context, payerEmail string) (*domain.PortalSession, error) {
	_, span := tracer.Start(ctx, "MercadoPago.PortalURL")
	defer span.End()

	if g.portalURL == "" {
		return nil, &domain.ErrExternalService{Service: serviceName, Err: errors.New("billing portal not configured")}
	}
	return &domain.PortalSession{URL: g.portalURL}, nil
}

func mockPlans() []domain.Product {
	return []domain.Product{
		{ID: "mock-basic", Name: "Profissional Básico", Status: "active", AmountCents: 2990, Currency: "BRL", Interval: "month"},
		{ID: "mock-premium", Name: "Profissional Premium", Status: "active", AmountCents: 7990, Currency: "BRL", Interval: "month"},
	}
}
