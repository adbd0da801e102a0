package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/boddenberg/servicos-marketplace-bfa-go/internal/domain"

	"github.com/jackc/pgx/v5"
	"github.com/samber/lo"
)

const providerColumns = `s.provider_id::text, p.full_name, s.bio, s.service_radius_km::float8, s.address,
	s.rating::float8, s.rating_count`

func scanProvider(row pgx.Row) (domain.ProviderProfile, error) {
	var p domain.ProviderProfile
	err := row.Scan(&p.ID, &p.Name, &p.Bio, &p.ServiceRadiusKm, &p.Address, &p.Rating, &p.RatingCount)
	return p, err
}

func (s *Store) ListCandidates(ctx context.Context, path domain.CatalogPath) ([]domain.ProviderProfile, error) {
	ctx, span := tracer.Start(ctx, "Postgres.ListCandidates")
	defer span.End()

	nodes := lo.Compact([]string{path.ServiceID, path.SubServiceID, path.SpecialtyID})
	if len(nodes) == 0 {
		return []domain.ProviderProfile{}, nil
	}

	rows, err := s.db.Query(ctx, `
		SELECT provider_id::text, level, node_id::text, item_id::text, unit_price::float8, is_default
		FROM provider_prices WHERE node_id = ANY($1::uuid[])`, nodes)
	if err != nil {
		return nil, err
	}
	prices, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (domain.ProviderPrice, error) {
		var (
			pr     domain.ProviderPrice
			itemID *string
		)
		err := row.Scan(&pr.ProviderID, &pr.Level, &pr.NodeID, &itemID, &pr.UnitPrice, &pr.IsDefault)
		pr.ItemID = deref(itemID)
		return pr, err
	})
	if err != nil {
		return nil, err
	}
	if len(prices) == 0 {
		return []domain.ProviderProfile{}, nil
	}

	byProvider := lo.GroupBy(prices, func(p domain.ProviderPrice) string { return p.ProviderID })

	rows, err = s.db.Query(ctx, `
		SELECT `+providerColumns+`
		FROM provider_settings s JOIN profiles p ON p.id = s.provider_id
		WHERE s.provider_id = ANY($1::uuid[])
		ORDER BY s.provider_id`, lo.Keys(byProvider))
	if err != nil {
		return nil, err
	}
	providers, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (domain.ProviderProfile, error) {
		return scanProvider(row)
	})
	if err != nil {
		return nil, err
	}

	for i := range providers {
		providers[i].Prices = byProvider[providers[i].ID]
	}
	return providers, nil
}

func (s *Store) GetProvider(ctx context.Context, providerID string) (*domain.ProviderProfile, error) {
	ctx, span := tracer.Start(ctx, "Postgres.GetProvider")
	defer span.End()

	p, err := scanProvider(s.db.QueryRow(ctx, `
		SELECT `+providerColumns+`
		FROM provider_settings s JOIN profiles p ON p.id = s.provider_id
		WHERE s.provider_id = $1`, providerID))
	if err != nil {
		return nil, notFound(err, "provider", providerID)
	}

	rows, err := s.db.Query(ctx, `
		SELECT id::text, provider_id::text, image_url, caption, created_at
		FROM provider_portfolio WHERE provider_id = $1 ORDER BY created_at`, providerID)
	if err != nil {
		return nil, err
	}
	p.Portfolio, err = pgx.CollectRows(rows, func(row pgx.CollectableRow) (domain.PortfolioItem, error) {
		var it domain.PortfolioItem
		err := row.Scan(&it.ID, &it.ProviderID, &it.ImageURL, &it.Caption, &it.CreatedAt)
		return it, err
	})
	if err != nil {
		return nil, err
	}
	return &p, nil
}

const ratingColumns = `id::text, provider_id::text, quote_provider_id::text, client_id::text, score, comment, created_at`

func scanRating(row pgx.Row) (domain.Rating, error) {
	var r domain.Rating
	err := row.Scan(&r.ID, &r.ProviderID, &r.QuoteProviderID, &r.ClientID, &r.Score, &r.Comment, &r.CreatedAt)
	return r, err
}

func (s *Store) ListRatings(ctx context.Context, providerID string) ([]domain.Rating, error) {
	ctx, span := tracer.Start(ctx, "Postgres.ListRatings")
	defer span.End()

	rows, err := s.db.Query(ctx, `SELECT `+ratingColumns+` FROM provider_ratings WHERE provider_id = $1 ORDER BY created_at DESC`, providerID)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (domain.Rating, error) {
		return scanRating(row)
	})
}

func (s *Store) GetRatingByQuoteProvider(ctx context.Context, quoteProviderID string) (*domain.Rating, error) {
	ctx, span := tracer.Start(ctx, "Postgres.GetRatingByQuoteProvider")
	defer span.End()

	r, err := scanRating(s.db.QueryRow(ctx, `SELECT `+ratingColumns+` FROM provider_ratings WHERE quote_provider_id = $1`, quoteProviderID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &r, nil
}

func (s *Store) CreateRating(ctx context.Context, in *domain.Rating) (*domain.Rating, error) {
	ctx, span := tracer.Start(ctx, "Postgres.CreateRating")
	defer span.End()

	r, err := scanRating(s.db.QueryRow(ctx, `
		INSERT INTO provider_ratings (provider_id, quote_provider_id, client_id, score, comment, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING `+ratingColumns,
		in.ProviderID, in.QuoteProviderID, in.ClientID, in.Score, in.Comment, in.CreatedAt))
	if err != nil {
		if isUniqueViolation(err) {
			return nil, &domain.ErrConflict{Message: "job already rated"}
		}
		return nil, err
	}
	return &r, nil
}

func (s *Store) UpdateRatingAggregate(ctx context.Context, providerID string, avg float64, count int) error {
	ctx, span := tracer.Start(ctx, "Postgres.UpdateRatingAggregate")
	defer span.End()

	_, err := s.db.Exec(ctx, `
		UPDATE provider_settings SET rating = $2, rating_count = $3, updated_at = $4
		WHERE provider_id = $1`, providerID, avg, count, time.Now().UTC())
	return err
}

func (s *Store) CountPortfolio(ctx context.Context, providerID string) (int, error) {
	ctx, span := tracer.Start(ctx, "Postgres.CountPortfolio")
	defer span.End()

	var n int
	err := s.db.QueryRow(ctx, `SELECT count(*) FROM provider_portfolio WHERE provider_id = $1`, providerID).Scan(&n)
	return n, err
}

func (s *Store) CreatePortfolioItem(ctx context.Context, item *domain.PortfolioItem) (*domain.PortfolioItem, error) {
	ctx, span := tracer.Start(ctx, "Postgres.CreatePortfolioItem")
	defer span.End()

	out := *item
	err := s.db.QueryRow(ctx, `
		INSERT INTO provider_portfolio (provider_id, image_url, caption, created_at)
		VALUES ($1, $2, $3, $4) RETURNING id::text`,
		item.ProviderID, item.ImageURL, item.Caption, item.CreatedAt).Scan(&out.ID)
	if err != nil {
		return nil, err
	}
	return &out, nil
}
