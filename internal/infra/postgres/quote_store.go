package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/boddenberg/servicos-marketplace-bfa-go/internal/domain"

	"github.com/jackc/pgx/v5"
)

const quoteColumns = `id::text, client_id::text, submitter_name, service_id::text, sub_service_id::text,
	specialty_id::text, description, address, items, created_at`

func scanQuote(row pgx.Row) (*domain.Quote, error) {
	var (
		q                                 domain.Quote
		clientID, subServiceID, specialty *string
	)
	if err := row.Scan(&q.ID, &clientID, &q.SubmitterName, &q.Path.ServiceID, &subServiceID,
		&specialty, &q.Description, &q.Address, &q.Items, &q.CreatedAt); err != nil {
		return nil, err
	}
	q.ClientID = deref(clientID)
	q.Path.SubServiceID = deref(subServiceID)
	q.Path.SpecialtyID = deref(specialty)
	if q.Items == nil {
		q.Items = []domain.QuoteItem{}
	}
	return &q, nil
}

func (s *Store) CreateQuote(ctx context.Context, q *domain.Quote) (*domain.Quote, error) {
	ctx, span := tracer.Start(ctx, "Postgres.CreateQuote")
	defer span.End()

	items := q.Items
	if items == nil {
		items = []domain.QuoteItem{}
	}

	row := s.db.QueryRow(ctx, `
		INSERT INTO quotes (id, client_id, submitter_name, service_id, sub_service_id, specialty_id, description, address, items, created_at)
		VALUES (COALESCE(NULLIF($1, '')::uuid, gen_random_uuid()), $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING `+quoteColumns,
		q.ID, nullable(q.ClientID), q.SubmitterName, q.Path.ServiceID, nullable(q.Path.SubServiceID),
		nullable(q.Path.SpecialtyID), q.Description, q.Address, items, q.CreatedAt)

	out, err := scanQuote(row)
	if err != nil {
		return nil, fmt.Errorf("failed to insert quote: %w", err)
	}
	return out, nil
}

func (s *Store) GetQuote(ctx context.Context, quoteID string) (*domain.Quote, error) {
	ctx, span := tracer.Start(ctx, "Postgres.GetQuote")
	defer span.End()

	q, err := scanQuote(s.db.QueryRow(ctx, `SELECT `+quoteColumns+` FROM quotes WHERE id = $1`, quoteID))
	if err != nil {
		return nil, notFound(err, "quote", quoteID)
	}
	return q, nil
}

func (s *Store) CorrectQuote(ctx context.Context, quoteID string, fix domain.QuoteCorrection) (*domain.Quote, error) {
	ctx, span := tracer.Start(ctx, "Postgres.CorrectQuote")
	defer span.End()

	q, err := scanQuote(s.db.QueryRow(ctx, `
		UPDATE quotes SET
			description    = COALESCE($2, description),
			submitter_name = COALESCE($3, submitter_name),
			address        = COALESCE($4, address)
		WHERE id = $1
		RETURNING `+quoteColumns,
		quoteID, fix.Description, fix.SubmitterName, fix.Address))
	if err != nil {
		return nil, notFound(err, "quote", quoteID)
	}
	return q, nil
}

const quoteProviderColumns = `id::text, quote_id::text, provider_id::text, status, total_price::float8, created_at, updated_at`

func scanQuoteProvider(row pgx.Row) (domain.QuoteProvider, error) {
	var qp domain.QuoteProvider
	err := row.Scan(&qp.ID, &qp.QuoteID, &qp.ProviderID, &qp.Status, &qp.TotalPrice, &qp.CreatedAt, &qp.UpdatedAt)
	return qp, err
}

// CreateQuoteProviders inserts all rows in one transaction.
func (s *Store) CreateQuoteProviders(ctx context.Context, rows []domain.QuoteProvider) ([]domain.QuoteProvider, error) {
	ctx, span := tracer.Start(ctx, "Postgres.CreateQuoteProviders")
	defer span.End()

	out := make([]domain.QuoteProvider, 0, len(rows))
	err := pgx.BeginFunc(ctx, s.db, func(tx pgx.Tx) error {
		for _, r := range rows {
			qp, err := scanQuoteProvider(tx.QueryRow(ctx, `
				INSERT INTO quote_providers (quote_id, provider_id, status, total_price, created_at, updated_at)
				VALUES ($1, $2, $3, $4, $5, $6)
				RETURNING `+quoteProviderColumns,
				r.QuoteID, r.ProviderID, r.Status, r.TotalPrice, r.CreatedAt, r.UpdatedAt))
			if err != nil {
				return err
			}
			out = append(out, qp)
		}
		return nil
	})
	if err != nil {
		if isUniqueViolation(err) {
			return nil, &domain.ErrConflict{Message: "quote already sent to one of the providers"}
		}
		return nil, err
	}
	return out, nil
}

func (s *Store) GetQuoteProvider(ctx context.Context, id string) (*domain.QuoteProvider, error) {
	ctx, span := tracer.Start(ctx, "Postgres.GetQuoteProvider")
	defer span.End()

	qp, err := scanQuoteProvider(s.db.QueryRow(ctx, `SELECT `+quoteProviderColumns+` FROM quote_providers WHERE id = $1`, id))
	if err != nil {
		return nil, notFound(err, "quote_provider", id)
	}
	return &qp, nil
}

func (s *Store) ListQuoteProvidersByProvider(ctx context.Context, providerID string) ([]domain.QuoteProvider, error) {
	ctx, span := tracer.Start(ctx, "Postgres.ListQuoteProvidersByProvider")
	defer span.End()

	return s.listQuoteProviders(ctx, "provider", `SELECT `+quoteProviderColumns+` FROM quote_providers WHERE provider_id = $1 ORDER BY created_at DESC`, providerID)
}

func (s *Store) ListQuoteProvidersByQuote(ctx context.Context, quoteID string) ([]domain.QuoteProvider, error) {
	ctx, span := tracer.Start(ctx, "Postgres.ListQuoteProvidersByQuote")
	defer span.End()

	return s.listQuoteProviders(ctx, "quote", `SELECT `+quoteProviderColumns+` FROM quote_providers WHERE quote_id = $1 ORDER BY created_at`, quoteID)
}

func (s *Store) listQuoteProviders(ctx context.Context, resource, query, arg string) ([]domain.QuoteProvider, error) {
	rows, err := s.db.Query(ctx, query, arg)
	if err != nil {
		return nil, notFound(err, resource, arg)
	}
	out, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (domain.QuoteProvider, error) {
		return scanQuoteProvider(row)
	})
	if err != nil {
		return nil, notFound(err, resource, arg)
	}
	return out, nil
}

// TransitionQuoteProvider is a single conditional UPDATE. When no row
// matches, the current status is read back to tell a lost race or illegal
// move from a missing record.
func (s *Store) TransitionQuoteProvider(ctx context.Context, id string, from, to domain.QuoteStatus, at time.Time) (*domain.QuoteProvider, error) {
	ctx, span := tracer.Start(ctx, "Postgres.TransitionQuoteProvider")
	defer span.End()

	qp, err := scanQuoteProvider(s.db.QueryRow(ctx, `
		UPDATE quote_providers SET status = $3, updated_at = $4
		WHERE id = $1 AND status = $2
		RETURNING `+quoteProviderColumns,
		id, from, to, at))
	if err == nil {
		return &qp, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, notFound(err, "quote_provider", id)
	}

	current, err := s.GetQuoteProvider(ctx, id)
	if err != nil {
		return nil, err
	}
	return nil, &domain.ErrInvalidTransition{From: current.Status, To: to}
}
