package service

import (
	"context"
	"sort"

	"github.com/boddenberg/servicos-marketplace-bfa-go/internal/domain"
	"github.com/boddenberg/servicos-marketplace-bfa-go/internal/infra/observability"
	"github.com/boddenberg/servicos-marketplace-bfa-go/internal/port"

	"github.com/samber/lo"
	"go.opentelemetry.io/otel"
	"go.uber.org/zap"
)

var billingTracer = otel.Tracer("service/billing")

// BillingTiers holds the two tier thresholds. The status check and the
// product listing are configured separately and are not unified.
type BillingTiers struct {
	Status   domain.TierThresholds
	Products domain.TierThresholds
}

// Billing proxies subscription operations to the payment gateway. Every
// method answers with an envelope; failures land in its Error field.
type Billing struct {
	gateway port.PaymentGateway
	tiers   BillingTiers
	metrics *observability.Metrics
	logger  *zap.Logger
}

func NewBilling(gateway port.PaymentGateway, tiers BillingTiers, metrics *observability.Metrics, logger *zap.Logger) *Billing {
	return &Billing{gateway: gateway, tiers: tiers, metrics: metrics, logger: logger}
}

func (b *Billing) fail(operation, message string, err error) domain.BillingEnvelope {
	b.metrics.IncrBillingError(operation)
	b.logger.Error("billing operation failed",
		zap.String("operation", operation),
		zap.Error(err),
	)
	return domain.BillingEnvelope{Error: message}
}

func (b *Billing) CreateCheckout(ctx context.Context, caller domain.Principal, req domain.CheckoutRequest) domain.BillingEnvelope {
	ctx, span := billingTracer.Start(ctx, "Billing.CreateCheckout")
	defer span.End()

	if caller.Email == "" {
		return b.fail("checkout", "an e-mail is required to subscribe", &domain.ErrValidation{Field: "email", Message: "missing"})
	}
	if req.PlanID == "" {
		return b.fail("checkout", "plan_id is required", &domain.ErrValidation{Field: "plan_id", Message: "required"})
	}

	session, err := b.gateway.CreateCheckout(ctx, caller.Email, caller.UserID, req)
	if err != nil {
		return b.fail("checkout", "could not start checkout", err)
	}
	return domain.BillingEnvelope{Data: session}
}

func (b *Billing) OpenPortal(ctx context.Context, caller domain.Principal) domain.BillingEnvelope {
	ctx, span := billingTracer.Start(ctx, "Billing.OpenPortal")
	defer span.End()

	portal, err := b.gateway.PortalURL(ctx, caller.Email)
	if err != nil {
		return b.fail("portal", "billing portal unavailable", err)
	}
	return domain.BillingEnvelope{Data: portal}
}

// SubscriptionStatus reports the caller's live subscription, picking the
// highest amount when several are active.
func (b *Billing) SubscriptionStatus(ctx context.Context, caller domain.Principal) domain.BillingEnvelope {
	ctx, span := billingTracer.Start(ctx, "Billing.SubscriptionStatus")
	defer span.End()

	if caller.Email == "" {
		return domain.BillingEnvelope{Data: domain.SubscriptionStatus{Tier: domain.TierFree}}
	}

	subs, err := b.gateway.ListSubscriptions(ctx, caller.Email)
	if err != nil {
		return b.fail("subscription", "could not check subscription", err)
	}

	active := lo.Filter(subs, func(s domain.Subscription, _ int) bool { return s.Active() })
	if len(active) == 0 {
		return domain.BillingEnvelope{Data: domain.SubscriptionStatus{Tier: domain.TierFree}}
	}
	best := lo.MaxBy(active, func(a, b domain.Subscription) bool { return a.AmountCents > b.AmountCents })

	return domain.BillingEnvelope{Data: domain.SubscriptionStatus{
		Subscribed:     true,
		Tier:           b.tiers.Status.Classify(best.AmountCents),
		SubscriptionID: best.ID,
		PlanID:         best.PlanID,
		AmountCents:    best.AmountCents,
		CurrentEnd:     best.NextPayment,
	}}
}

// ListProducts returns the plans, cheapest first, each tagged with a tier.
func (b *Billing) ListProducts(ctx context.Context) domain.BillingEnvelope {
	ctx, span := billingTracer.Start(ctx, "Billing.ListProducts")
	defer span.End()

	plans, err := b.gateway.ListPlans(ctx)
	if err != nil {
		return b.fail("products", "could not list plans", err)
	}

	products := lo.Map(plans, func(p domain.Product, _ int) domain.Product {
		p.Tier = b.tiers.Products.Classify(p.AmountCents)
		return p
	})
	sort.SliceStable(products, func(i, j int) bool { return products[i].AmountCents < products[j].AmountCents })
	return domain.BillingEnvelope{Data: products}
}
