package supabase

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/boddenberg/servicos-marketplace-bfa-go/internal/domain"

	"github.com/samber/lo"
	"go.opentelemetry.io/otel/attribute"
)

// ============================================================
// Providers: provider_settings, provider_prices, provider_ratings,
// provider_portfolio
// ============================================================

type providerRow struct {
	ProviderID      string         `json:"provider_id"`
	Bio             string         `json:"bio"`
	ServiceRadiusKm float64        `json:"service_radius_km"`
	Address         domain.Address `json:"address"`
	Rating          float64        `json:"rating"`
	RatingCount     int            `json:"rating_count"`
	Profile         *struct {
		FullName string `json:"full_name"`
	} `json:"profiles"`
}

func (r providerRow) toDomain() domain.ProviderProfile {
	p := domain.ProviderProfile{
		ID:              r.ProviderID,
		Bio:             r.Bio,
		ServiceRadiusKm: r.ServiceRadiusKm,
		Address:         r.Address,
		Rating:          r.Rating,
		RatingCount:     r.RatingCount,
	}
	if r.Profile != nil {
		p.Name = r.Profile.FullName
	}
	return p
}

type priceRow struct {
	ProviderID string              `json:"provider_id"`
	Level      domain.CatalogLevel `json:"level"`
	NodeID     string              `json:"node_id"`
	ItemID     *string             `json:"item_id"`
	UnitPrice  float64             `json:"unit_price"`
	IsDefault  bool                `json:"is_default"`
}

const providerSelect = "provider_id,bio,service_radius_km,address,rating,rating_count,profiles(full_name)"

// ListCandidates reads the price rows on the quote's catalog path, then the
// settings of every provider that owns one.
func (c *Client) ListCandidates(ctx context.Context, path domain.CatalogPath) ([]domain.ProviderProfile, error) {
	ctx, span := tracer.Start(ctx, "Supabase.ListCandidates")
	defer span.End()
	span.SetAttributes(attribute.String("service.id", path.ServiceID))

	nodes := lo.Compact([]string{path.ServiceID, path.SubServiceID, path.SpecialtyID})
	if len(nodes) == 0 {
		return []domain.ProviderProfile{}, nil
	}

	body, err := c.get(ctx, "provider_prices?node_id=in."+inList(nodes))
	if err != nil {
		return nil, err
	}
	prices, err := decodeRows[priceRow](body, "provider_prices")
	if err != nil {
		return nil, err
	}
	if len(prices) == 0 {
		return []domain.ProviderProfile{}, nil
	}

	byProvider := lo.GroupBy(prices, func(p priceRow) string { return p.ProviderID })
	ids := lo.Keys(byProvider)

	body, err = c.get(ctx, fmt.Sprintf("provider_settings?select=%s&provider_id=in.%s", providerSelect, inList(ids)))
	if err != nil {
		return nil, err
	}
	rows, err := decodeRows[providerRow](body, "provider_settings")
	if err != nil {
		return nil, err
	}

	out := make([]domain.ProviderProfile, 0, len(rows))
	for _, r := range rows {
		p := r.toDomain()
		p.Prices = lo.Map(byProvider[r.ProviderID], func(pr priceRow, _ int) domain.ProviderPrice {
			return domain.ProviderPrice{
				ProviderID: pr.ProviderID,
				Level:      pr.Level,
				NodeID:     pr.NodeID,
				ItemID:     deref(pr.ItemID),
				UnitPrice:  pr.UnitPrice,
				IsDefault:  pr.IsDefault,
			}
		})
		out = append(out, p)
	}
	return out, nil
}

func (c *Client) GetProvider(ctx context.Context, providerID string) (*domain.ProviderProfile, error) {
	ctx, span := tracer.Start(ctx, "Supabase.GetProvider")
	defer span.End()
	span.SetAttributes(attribute.String("provider.id", providerID))

	body, err := c.get(ctx, fmt.Sprintf("provider_settings?select=%s&%s&limit=1", providerSelect, eq("provider_id", providerID)))
	if err != nil {
		return nil, err
	}
	row, err := decodeOne[providerRow](body, "provider", providerID)
	if err != nil {
		return nil, err
	}
	p := row.toDomain()

	body, err = c.get(ctx, fmt.Sprintf("provider_portfolio?%s&order=created_at.asc", eq("provider_id", providerID)))
	if err != nil {
		return nil, err
	}
	if p.Portfolio, err = decodeRows[domain.PortfolioItem](body, "provider_portfolio"); err != nil {
		return nil, err
	}
	return &p, nil
}

func (c *Client) ListRatings(ctx context.Context, providerID string) ([]domain.Rating, error) {
	ctx, span := tracer.Start(ctx, "Supabase.ListRatings")
	defer span.End()

	body, err := c.get(ctx, fmt.Sprintf("provider_ratings?%s&order=created_at.desc", eq("provider_id", providerID)))
	if err != nil {
		return nil, err
	}
	return decodeRows[domain.Rating](body, "provider_ratings")
}

// GetRatingByQuoteProvider returns (nil, nil) when the job has no rating.
func (c *Client) GetRatingByQuoteProvider(ctx context.Context, quoteProviderID string) (*domain.Rating, error) {
	ctx, span := tracer.Start(ctx, "Supabase.GetRatingByQuoteProvider")
	defer span.End()

	body, err := c.get(ctx, fmt.Sprintf("provider_ratings?%s&limit=1", eq("quote_provider_id", quoteProviderID)))
	if err != nil {
		return nil, err
	}
	rows, err := decodeRows[domain.Rating](body, "provider_ratings")
	if err != nil || len(rows) == 0 {
		return nil, err
	}
	return &rows[0], nil
}

func (c *Client) CreateRating(ctx context.Context, r *domain.Rating) (*domain.Rating, error) {
	ctx, span := tracer.Start(ctx, "Supabase.CreateRating")
	defer span.End()

	body, err := c.doPost(ctx, "provider_ratings", map[string]any{
		"provider_id":       r.ProviderID,
		"quote_provider_id": r.QuoteProviderID,
		"client_id":         r.ClientID,
		"score":             r.Score,
		"comment":           r.Comment,
		"created_at":        r.CreatedAt.UTC(),
	})
	if err != nil {
		if isConflict(err) {
			return nil, &domain.ErrConflict{Message: "job already rated"}
		}
		return nil, err
	}
	return decodeOne[domain.Rating](body, "rating", r.QuoteProviderID)
}

func (c *Client) UpdateRatingAggregate(ctx context.Context, providerID string, avg float64, count int) error {
	ctx, span := tracer.Start(ctx, "Supabase.UpdateRatingAggregate")
	defer span.End()

	_, err := c.doPatch(ctx, fmt.Sprintf("provider_settings?%s", eq("provider_id", providerID)), map[string]any{
		"rating":       avg,
		"rating_count": count,
		"updated_at":   time.Now().UTC(),
	})
	return err
}

func (c *Client) CountPortfolio(ctx context.Context, providerID string) (int, error) {
	ctx, span := tracer.Start(ctx, "Supabase.CountPortfolio")
	defer span.End()

	body, err := c.get(ctx, fmt.Sprintf("provider_portfolio?select=id&%s", eq("provider_id", providerID)))
	if err != nil {
		return 0, err
	}
	rows, err := decodeRows[struct {
		ID string `json:"id"`
	}](body, "provider_portfolio")
	if err != nil {
		return 0, err
	}
	return len(rows), nil
}

func (c *Client) CreatePortfolioItem(ctx context.Context, item *domain.PortfolioItem) (*domain.PortfolioItem, error) {
	ctx, span := tracer.Start(ctx, "Supabase.CreatePortfolioItem")
	defer span.End()

	body, err := c.doPost(ctx, "provider_portfolio", map[string]any{
		"provider_id": item.ProviderID,
		"image_url":   item.ImageURL,
		"caption":     item.Caption,
		"created_at":  item.CreatedAt.UTC(),
	})
	if err != nil {
		return nil, err
	}
	return decodeOne[domain.PortfolioItem](body, "portfolio_item", item.ProviderID)
}

// inList renders a PostgREST in.(...) list with quoted, escaped values.
func inList(values []string) string {
	quoted := lo.Map(values, func(v string, _ int) string {
		return `"` + strings.ReplaceAll(v, `"`, `\"`) + `"`
	})
	return url.QueryEscape("(" + strings.Join(quoted, ",") + ")")
}
