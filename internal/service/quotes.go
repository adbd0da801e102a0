package service

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/boddenberg/servicos-marketplace-bfa-go/internal/domain"
	"github.com/boddenberg/servicos-marketplace-bfa-go/internal/infra/observability"
	"github.com/boddenberg/servicos-marketplace-bfa-go/internal/port"

	"github.com/google/uuid"
	"github.com/samber/lo"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

var quoteTracer = otel.Tracer("service/quotes")

// maxQuoteFetches bounds the parallel quote reads of an inbox listing.
const maxQuoteFetches = 8

// SubmitResult is a freshly created quote with its ranked providers.
type SubmitResult struct {
	Quote   *domain.Quote          `json:"quote"`
	Matches []domain.ProviderMatch `json:"matches"`
}

// ProviderInbox is one tab of a provider's routed quotes plus the badge
// counts of every tab.
type ProviderInbox struct {
	Tab    domain.Tab                 `json:"tab"`
	Items  []domain.QuoteProviderView `json:"items"`
	Counts domain.TabCounts           `json:"counts"`
}

// Quotes owns submission, routing to providers and the per-provider
// status lifecycle.
type Quotes struct {
	quotes    port.QuoteStore
	providers port.ProviderStore
	drafts    *Drafts
	address   *AddressResolver
	matcher   *Matcher
	gate      *FeatureGate
	now       func() time.Time
	metrics   *observability.Metrics
	logger    *zap.Logger
}

func NewQuotes(
	quotes port.QuoteStore,
	providers port.ProviderStore,
	drafts *Drafts,
	address *AddressResolver,
	matcher *Matcher,
	gate *FeatureGate,
	now func() time.Time,
	metrics *observability.Metrics,
	logger *zap.Logger,
) *Quotes {
	if now == nil {
		now = time.Now
	}
	return &Quotes{
		quotes:    quotes,
		providers: providers,
		drafts:    drafts,
		address:   address,
		matcher:   matcher,
		gate:      gate,
		now:       now,
		metrics:   metrics,
		logger:    logger,
	}
}

// ============================================================
// Submission and routing
// ============================================================

// Submit turns the session's draft into a quote and clears the draft.
// A matching failure after the quote is stored is logged, not returned.
func (s *Quotes) Submit(ctx context.Context, session, clientID, submitterName string) (*SubmitResult, error) {
	ctx, span := quoteTracer.Start(ctx, "Quotes.Submit")
	defer span.End()

	draft := s.drafts.Retrieve(ctx, session)
	if draft == nil {
		return nil, &domain.ErrNotFound{Resource: "draft", ID: session}
	}
	if !draft.HasServiceSelection() {
		return nil, &domain.ErrValidation{Field: "service_id", Message: "a service must be selected"}
	}
	if clientID == "" && submitterName == "" {
		return nil, &domain.ErrValidation{Field: "submitter_name", Message: "required for anonymous quotes"}
	}

	addr, err := s.address.Resolve(ctx, draft.Address)
	if err != nil {
		return nil, err
	}

	q := &domain.Quote{
		ID:            uuid.NewString(),
		ClientID:      clientID,
		SubmitterName: submitterName,
		Path:          draft.Path,
		Description:   draft.Description,
		Address:       addr,
		Items:         quoteItems(draft.Items),
		CreatedAt:     s.now().UTC(),
	}

	created, err := s.quotes.CreateQuote(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("create quote: %w", err)
	}
	s.drafts.Clear(ctx, session)

	span.SetAttributes(attribute.String("quote.id", created.ID))
	s.logger.Info("quote submitted",
		zap.String("quote_id", created.ID),
		zap.String("service_id", created.Path.ServiceID),
		zap.Bool("located", created.Address.HasCoordinates()),
	)

	matches, err := s.matcher.Match(ctx, created, MatchOptions{Sort: domain.SortRelevance})
	if err != nil {
		s.logger.Error("matching after submit failed",
			zap.String("quote_id", created.ID),
			zap.Error(err),
		)
		matches = []domain.ProviderMatch{}
	}
	return &SubmitResult{Quote: created, Matches: matches}, nil
}

// quoteItems freezes the selected draft items, sorted by id.
func quoteItems(items map[string]domain.DraftItem) []domain.QuoteItem {
	out := make([]domain.QuoteItem, 0, len(items))
	for id, it := range items {
		if !it.Selected || it.Quantity <= 0 {
			continue
		}
		out = append(out, domain.QuoteItem{ItemID: id, Unit: it.Unit, Quantity: it.Quantity})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ItemID < out[j].ItemID })
	return out
}

// Matches ranks the providers for a stored quote.
func (s *Quotes) Matches(ctx context.Context, quoteID string, opts MatchOptions) ([]domain.ProviderMatch, error) {
	ctx, span := quoteTracer.Start(ctx, "Quotes.Matches")
	defer span.End()

	q, err := s.quotes.GetQuote(ctx, quoteID)
	if err != nil {
		return nil, err
	}
	return s.matcher.Match(ctx, q, opts)
}

// SendToProviders routes a quote to providers. Quotes with an owner can be
// sent by that owner or an admin only. Providers already in the session's
// sent set for this quote, or already holding a record for it, are
// skipped, and so are providers over their monthly_quote_sends limit.
// Each new record is pending and priced by the matcher.
func (s *Quotes) SendToProviders(ctx context.Context, caller domain.Principal, quoteID, session string, providerIDs []string) ([]domain.QuoteProvider, error) {
	ctx, span := quoteTracer.Start(ctx, "Quotes.SendToProviders")
	defer span.End()
	span.SetAttributes(
		attribute.String("quote.id", quoteID),
		attribute.Int("providers.requested", len(providerIDs)),
	)

	requested := lo.Uniq(lo.Compact(providerIDs))
	if len(requested) == 0 {
		return nil, &domain.ErrValidation{Field: "provider_ids", Message: "at least one provider is required"}
	}

	var (
		q        *domain.Quote
		sent     []string
		existing []domain.QuoteProvider
	)
	g, gCtx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		q, err = s.quotes.GetQuote(gCtx, quoteID)
		return err
	})
	g.Go(func() error {
		var err error
		sent, err = s.drafts.SentProviders(gCtx, session, quoteID)
		return err
	})
	g.Go(func() error {
		var err error
		existing, err = s.quotes.ListQuoteProvidersByQuote(gCtx, quoteID)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if q.ClientID != "" && q.ClientID != caller.UserID && !caller.IsAdmin() {
		return nil, &domain.ErrForbidden{Action: "send quote"}
	}

	skip := lo.SliceToMap(sent, func(id string) (string, struct{}) { return id, struct{}{} })
	for _, qp := range existing {
		skip[qp.ProviderID] = struct{}{}
	}
	targets := lo.Filter(requested, func(id string, _ int) bool {
		_, done := skip[id]
		return !done
	})
	if len(targets) == 0 {
		return []domain.QuoteProvider{}, nil
	}

	matches, err := s.matcher.Match(ctx, q, MatchOptions{})
	if err != nil {
		return nil, err
	}
	byProvider := lo.KeyBy(matches, func(m domain.ProviderMatch) string { return m.Provider.ID })
	for _, id := range targets {
		m, ok := byProvider[id]
		if !ok {
			return nil, &domain.ErrValidation{Field: "provider_ids", Message: fmt.Sprintf("provider %s does not offer this service", id)}
		}
		if !m.Priced {
			return nil, &domain.ErrValidation{Field: "provider_ids", Message: fmt.Sprintf("provider %s has no price for this quote", id)}
		}
	}

	now := s.now().UTC()
	allowed, err := s.withinMonthlySends(ctx, targets, now)
	if err != nil {
		return nil, err
	}
	if len(allowed) == 0 {
		return []domain.QuoteProvider{}, nil
	}

	rows := make([]domain.QuoteProvider, 0, len(allowed))
	for _, id := range allowed {
		rows = append(rows, domain.QuoteProvider{
			QuoteID:    q.ID,
			ProviderID: id,
			Status:     domain.StatusPending,
			TotalPrice: byProvider[id].TotalPrice,
			CreatedAt:  now,
			UpdatedAt:  now,
		})
	}

	created, err := s.quotes.CreateQuoteProviders(ctx, rows)
	if err != nil {
		return nil, fmt.Errorf("create quote providers: %w", err)
	}

	if session != "" {
		if err := s.drafts.MarkSent(ctx, session, quoteID, allowed...); err != nil {
			s.logger.Warn("failed to record sent providers",
				zap.String("quote_id", quoteID),
				zap.Error(err),
			)
		}
	}

	s.logger.Info("quote sent to providers",
		zap.String("quote_id", quoteID),
		zap.Int("sent", len(created)),
		zap.Int("skipped", len(requested)-len(allowed)),
	)
	return created, nil
}

// withinMonthlySends keeps the providers that can still receive a quote
// this calendar month. An unknown limit lets the quote through.
func (s *Quotes) withinMonthlySends(ctx context.Context, providerIDs []string, now time.Time) ([]string, error) {
	monthStart := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)

	allowed := make([]string, 0, len(providerIDs))
	for _, id := range providerIDs {
		count := func(ctx context.Context) (int, error) {
			records, err := s.quotes.ListQuoteProvidersByProvider(ctx, id)
			if err != nil {
				return 0, err
			}
			return lo.CountBy(records, func(r domain.QuoteProvider) bool { return !r.CreatedAt.Before(monthStart) }), nil
		}
		err := s.gate.CheckBeforeAdd(ctx, id, domain.FeatureMonthlyQuoteSends, count, AllowUnknown)
		switch {
		case err == nil:
			allowed = append(allowed, id)
		case domain.KindOf(err) == domain.KindLimitExceeded:
			s.logger.Info("provider skipped: monthly quote limit reached", zap.String("provider_id", id))
		default:
			return nil, err
		}
	}
	return allowed, nil
}

// ============================================================
// Listings
// ============================================================

// ListForProvider returns the provider's records under tab, newest first,
// with the counts of every tab.
func (s *Quotes) ListForProvider(ctx context.Context, providerID string, tab domain.Tab) (*ProviderInbox, error) {
	ctx, span := quoteTracer.Start(ctx, "Quotes.ListForProvider")
	defer span.End()
	span.SetAttributes(attribute.String("tab", string(tab)))

	records, err := s.quotes.ListQuoteProvidersByProvider(ctx, providerID)
	if err != nil {
		return nil, fmt.Errorf("list provider quotes: %w", err)
	}

	listed := lo.Filter(records, func(r domain.QuoteProvider, _ int) bool { return tab.Includes(r.Status) })
	items, err := s.attachQuotes(ctx, listed)
	if err != nil {
		return nil, err
	}
	return &ProviderInbox{Tab: tab, Items: items, Counts: domain.CountTabs(records)}, nil
}

// attachQuotes reads each distinct quote once, in parallel.
func (s *Quotes) attachQuotes(ctx context.Context, records []domain.QuoteProvider) ([]domain.QuoteProviderView, error) {
	ids := lo.Uniq(lo.Map(records, func(r domain.QuoteProvider, _ int) string { return r.QuoteID }))
	quotes := make([]*domain.Quote, len(ids))

	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(maxQuoteFetches)
	for i, id := range ids {
		g.Go(func() error {
			q, err := s.quotes.GetQuote(gCtx, id)
			if err != nil {
				return fmt.Errorf("get quote %s: %w", id, err)
			}
			quotes[i] = q
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	byID := lo.KeyBy(quotes, func(q *domain.Quote) string { return q.ID })
	return lo.Map(records, func(r domain.QuoteProvider, _ int) domain.QuoteProviderView {
		return domain.QuoteProviderView{QuoteProvider: r, Quote: byID[r.QuoteID], Tab: r.Tab()}
	}), nil
}

// ListForQuote returns the records of one quote. Quotes with an owner are
// visible to that owner and to admins only.
func (s *Quotes) ListForQuote(ctx context.Context, caller domain.Principal, quoteID string) ([]domain.QuoteProviderView, error) {
	ctx, span := quoteTracer.Start(ctx, "Quotes.ListForQuote")
	defer span.End()

	q, err := s.quotes.GetQuote(ctx, quoteID)
	if err != nil {
		return nil, err
	}
	if q.ClientID != "" && q.ClientID != caller.UserID && !caller.IsAdmin() {
		return nil, &domain.ErrForbidden{Action: "view quote providers"}
	}

	records, err := s.quotes.ListQuoteProvidersByQuote(ctx, quoteID)
	if err != nil {
		return nil, fmt.Errorf("list quote providers: %w", err)
	}
	return lo.Map(records, func(r domain.QuoteProvider, _ int) domain.QuoteProviderView {
		return domain.QuoteProviderView{QuoteProvider: r, Tab: r.Tab()}
	}), nil
}

// ============================================================
// Lifecycle
// ============================================================

func (s *Quotes) Accept(ctx context.Context, caller domain.Principal, quoteProviderID string) (*domain.QuoteProvider, error) {
	return s.transition(ctx, caller, quoteProviderID, domain.StatusAccepted, false)
}

func (s *Quotes) Reject(ctx context.Context, caller domain.Principal, quoteProviderID string) (*domain.QuoteProvider, error) {
	return s.transition(ctx, caller, quoteProviderID, domain.StatusRejected, false)
}

// Complete may also be triggered by an admin on the provider's behalf.
func (s *Quotes) Complete(ctx context.Context, caller domain.Principal, quoteProviderID string) (*domain.QuoteProvider, error) {
	return s.transition(ctx, caller, quoteProviderID, domain.StatusCompleted, true)
}

func (s *Quotes) transition(ctx context.Context, caller domain.Principal, id string, to domain.QuoteStatus, adminAllowed bool) (*domain.QuoteProvider, error) {
	ctx, span := quoteTracer.Start(ctx, "Quotes.Transition")
	defer span.End()
	span.SetAttributes(
		attribute.String("quote_provider.id", id),
		attribute.String("status.to", string(to)),
	)

	from, ok := domain.RequiredSource(to)
	if !ok {
		return nil, &domain.ErrInvalidTransition{To: to}
	}

	qp, err := s.quotes.GetQuoteProvider(ctx, id)
	if err != nil {
		return nil, err
	}
	owner := qp.ProviderID == caller.UserID
	if !owner && !(adminAllowed && caller.IsAdmin()) {
		return nil, &domain.ErrForbidden{Action: "move quote to " + string(to)}
	}

	updated, err := s.quotes.TransitionQuoteProvider(ctx, id, from, to, s.now().UTC())
	if err != nil {
		if domain.KindOf(err) == domain.KindInvalidTransition {
			s.metrics.IncrTransition(string(to), "rejected")
		}
		return nil, err
	}

	s.metrics.IncrTransition(string(to), "ok")
	s.logger.Info("quote status changed",
		zap.String("quote_provider_id", id),
		zap.String("from", string(from)),
		zap.String("to", string(to)),
		zap.String("by", caller.UserID),
	)
	return updated, nil
}

// AdminCorrect fixes the editable fields of a quote. A new address is
// geocoded again when it comes without coordinates.
func (s *Quotes) AdminCorrect(ctx context.Context, caller domain.Principal, quoteID string, fix domain.QuoteCorrection) (*domain.Quote, error) {
	ctx, span := quoteTracer.Start(ctx, "Quotes.AdminCorrect")
	defer span.End()

	if !caller.IsAdmin() {
		return nil, &domain.ErrForbidden{Action: "correct quote"}
	}
	if fix.IsEmpty() {
		return nil, &domain.ErrValidation{Field: "body", Message: "nothing to correct"}
	}
	if fix.Address != nil {
		addr, err := s.address.Resolve(ctx, *fix.Address)
		if err != nil {
			return nil, err
		}
		fix.Address = &addr
	}

	q, err := s.quotes.CorrectQuote(ctx, quoteID, fix)
	if err != nil {
		return nil, fmt.Errorf("correct quote: %w", err)
	}
	s.logger.Info("quote corrected", zap.String("quote_id", quoteID), zap.String("by", caller.UserID))
	return q, nil
}

// ============================================================
// Ratings
// ============================================================

// RateProvider records the quote owner's score for a completed job and
// recomputes the provider's average from every rating row.
func (s *Quotes) RateProvider(ctx context.Context, caller domain.Principal, quoteProviderID string, score int, comment string) (*domain.Rating, error) {
	ctx, span := quoteTracer.Start(ctx, "Quotes.RateProvider")
	defer span.End()

	if score < 1 || score > 5 {
		return nil, &domain.ErrValidation{Field: "score", Message: "must be between 1 and 5"}
	}

	qp, err := s.quotes.GetQuoteProvider(ctx, quoteProviderID)
	if err != nil {
		return nil, err
	}
	if qp.Status != domain.StatusCompleted {
		return nil, &domain.ErrValidation{Field: "status", Message: "only completed jobs can be rated"}
	}

	q, err := s.quotes.GetQuote(ctx, qp.QuoteID)
	if err != nil {
		return nil, err
	}
	if q.ClientID == "" || q.ClientID != caller.UserID {
		return nil, &domain.ErrForbidden{Action: "rate provider"}
	}

	existing, err := s.providers.GetRatingByQuoteProvider(ctx, quoteProviderID)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, &domain.ErrConflict{Message: "job already rated"}
	}

	rating, err := s.providers.CreateRating(ctx, &domain.Rating{
		ProviderID:      qp.ProviderID,
		QuoteProviderID: qp.ID,
		ClientID:        caller.UserID,
		Score:           score,
		Comment:         comment,
		CreatedAt:       s.now().UTC(),
	})
	if err != nil {
		return nil, err
	}

	ratings, err := s.providers.ListRatings(ctx, qp.ProviderID)
	if err != nil {
		return nil, fmt.Errorf("list ratings: %w", err)
	}
	avg, count := domain.AverageRating(ratings)
	if err := s.providers.UpdateRatingAggregate(ctx, qp.ProviderID, avg, count); err != nil {
		return nil, fmt.Errorf("update rating aggregate: %w", err)
	}
	return rating, nil
}
