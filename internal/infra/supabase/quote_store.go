package supabase

import (
	"context"
	"fmt"
	"time"

	"github.com/boddenberg/servicos-marketplace-bfa-go/internal/domain"

	"go.opentelemetry.io/otel/attribute"
)

// ============================================================
// Quotes and quote_providers
// ============================================================

type quoteRow struct {
	ID            string             `json:"id,omitempty"`
	ClientID      *string            `json:"client_id"`
	SubmitterName string             `json:"submitter_name"`
	ServiceID     string             `json:"service_id"`
	SubServiceID  *string            `json:"sub_service_id"`
	SpecialtyID   *string            `json:"specialty_id"`
	Description   string             `json:"description"`
	Address       domain.Address     `json:"address"`
	Items         []domain.QuoteItem `json:"items"`
	CreatedAt     time.Time          `json:"created_at"`
}

func toQuoteRow(q *domain.Quote) quoteRow {
	return quoteRow{
		ID:            q.ID,
		ClientID:      nullable(q.ClientID),
		SubmitterName: q.SubmitterName,
		ServiceID:     q.Path.ServiceID,
		SubServiceID:  nullable(q.Path.SubServiceID),
		SpecialtyID:   nullable(q.Path.SpecialtyID),
		Description:   q.Description,
		Address:       q.Address,
		Items:         q.Items,
		CreatedAt:     q.CreatedAt,
	}
}

func (r quoteRow) toDomain() *domain.Quote {
	items := r.Items
	if items == nil {
		items = []domain.QuoteItem{}
	}
	return &domain.Quote{
		ID:            r.ID,
		ClientID:      deref(r.ClientID),
		SubmitterName: r.SubmitterName,
		Path: domain.CatalogPath{
			ServiceID:    r.ServiceID,
			SubServiceID: deref(r.SubServiceID),
			SpecialtyID:  deref(r.SpecialtyID),
		},
		Description: r.Description,
		Address:     r.Address,
		Items:       items,
		CreatedAt:   r.CreatedAt,
	}
}

func (c *Client) CreateQuote(ctx context.Context, q *domain.Quote) (*domain.Quote, error) {
	ctx, span := tracer.Start(ctx, "Supabase.CreateQuote")
	defer span.End()

	body, err := c.doPost(ctx, "quotes", toQuoteRow(q))
	if err != nil {
		return nil, err
	}
	row, err := decodeOne[quoteRow](body, "quote", q.ID)
	if err != nil {
		return nil, err
	}
	return row.toDomain(), nil
}

func (c *Client) GetQuote(ctx context.Context, quoteID string) (*domain.Quote, error) {
	ctx, span := tracer.Start(ctx, "Supabase.GetQuote")
	defer span.End()
	span.SetAttributes(attribute.String("quote.id", quoteID))

	body, err := c.get(ctx, fmt.Sprintf("quotes?%s&limit=1", eq("id", quoteID)))
	if err != nil {
		return nil, err
	}
	row, err := decodeOne[quoteRow](body, "quote", quoteID)
	if err != nil {
		return nil, err
	}
	return row.toDomain(), nil
}

func (c *Client) CorrectQuote(ctx context.Context, quoteID string, fix domain.QuoteCorrection) (*domain.Quote, error) {
	ctx, span := tracer.Start(ctx, "Supabase.CorrectQuote")
	defer span.End()
	span.SetAttributes(attribute.String("quote.id", quoteID))

	patch := map[string]any{}
	if fix.Description != nil {
		patch["description"] = *fix.Description
	}
	if fix.SubmitterName != nil {
		patch["submitter_name"] = *fix.SubmitterName
	}
	if fix.Address != nil {
		patch["address"] = *fix.Address
	}

	body, err := c.doPatch(ctx, fmt.Sprintf("quotes?%s", eq("id", quoteID)), patch)
	if err != nil {
		return nil, err
	}
	row, err := decodeOne[quoteRow](body, "quote", quoteID)
	if err != nil {
		return nil, err
	}
	return row.toDomain(), nil
}

type quoteProviderRow struct {
	ID         string             `json:"id,omitempty"`
	QuoteID    string             `json:"quote_id"`
	ProviderID string             `json:"provider_id"`
	Status     domain.QuoteStatus `json:"status"`
	TotalPrice float64            `json:"total_price"`
	CreatedAt  time.Time          `json:"created_at"`
	UpdatedAt  time.Time          `json:"updated_at"`
}

func (c *Client) CreateQuoteProviders(ctx context.Context, rows []domain.QuoteProvider) ([]domain.QuoteProvider, error) {
	ctx, span := tracer.Start(ctx, "Supabase.CreateQuoteProviders")
	defer span.End()
	span.SetAttributes(attribute.Int("rows", len(rows)))

	if len(rows) == 0 {
		return []domain.QuoteProvider{}, nil
	}

	payload := make([]quoteProviderRow, 0, len(rows))
	for _, r := range rows {
		payload = append(payload, quoteProviderRow(r))
	}

	body, err := c.doPost(ctx, "quote_providers", payload)
	if err != nil {
		if isConflict(err) {
			return nil, &domain.ErrConflict{Message: "quote already sent to one of the providers"}
		}
		return nil, err
	}
	return decodeQuoteProviders(body)
}

func (c *Client) GetQuoteProvider(ctx context.Context, id string) (*domain.QuoteProvider, error) {
	ctx, span := tracer.Start(ctx, "Supabase.GetQuoteProvider")
	defer span.End()
	span.SetAttributes(attribute.String("quote_provider.id", id))

	body, err := c.get(ctx, fmt.Sprintf("quote_providers?%s&limit=1", eq("id", id)))
	if err != nil {
		return nil, err
	}
	row, err := decodeOne[quoteProviderRow](body, "quote_provider", id)
	if err != nil {
		return nil, err
	}
	qp := domain.QuoteProvider(*row)
	return &qp, nil
}

func (c *Client) ListQuoteProvidersByProvider(ctx context.Context, providerID string) ([]domain.QuoteProvider, error) {
	ctx, span := tracer.Start(ctx, "Supabase.ListQuoteProvidersByProvider")
	defer span.End()
	span.SetAttributes(attribute.String("provider.id", providerID))

	body, err := c.get(ctx, fmt.Sprintf("quote_providers?%s&order=created_at.desc", eq("provider_id", providerID)))
	if err != nil {
		return nil, err
	}
	return decodeQuoteProviders(body)
}

func (c *Client) ListQuoteProvidersByQuote(ctx context.Context, quoteID string) ([]domain.QuoteProvider, error) {
	ctx, span := tracer.Start(ctx, "Supabase.ListQuoteProvidersByQuote")
	defer span.End()
	span.SetAttributes(attribute.String("quote.id", quoteID))

	body, err := c.get(ctx, fmt.Sprintf("quote_providers?%s&order=created_at.asc", eq("quote_id", quoteID)))
	if err != nil {
		return nil, err
	}
	return decodeQuoteProviders(body)
}

// TransitionQuoteProvider issues one PATCH filtered on both id and the
// expected current status. PostgREST returns the updated rows; an empty
// result means another writer got there first or the move is illegal.
func (c *Client) TransitionQuoteProvider(ctx context.Context, id string, from, to domain.QuoteStatus, at time.Time) (*domain.QuoteProvider, error) {
	ctx, span := tracer.Start(ctx, "Supabase.TransitionQuoteProvider")
	defer span.End()
	span.SetAttributes(
		attribute.String("quote_provider.id", id),
		attribute.String("status.from", string(from)),
		attribute.String("status.to", string(to)),
	)

	path := fmt.Sprintf("quote_providers?%s&%s", eq("id", id), eq("status", string(from)))
	body, err := c.doPatch(ctx, path, map[string]any{
		"status":     to,
		"updated_at": at.UTC(),
	})
	if err != nil {
		return nil, err
	}

	rows, err := decodeQuoteProviders(body)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		current, err := c.GetQuoteProvider(ctx, id)
		if err != nil {
			return nil, err
		}
		return nil, &domain.ErrInvalidTransition{From: current.Status, To: to}
	}
	return &rows[0], nil
}

func decodeQuoteProviders(body []byte) ([]domain.QuoteProvider, error) {
	rows, err := decodeRows[quoteProviderRow](body, "quote_providers")
	if err != nil {
		return nil, err
	}
	out := make([]domain.QuoteProvider, 0, len(rows))
	for _, r := range rows {
		out = append(out, domain.QuoteProvider(r))
	}
	return out, nil
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
