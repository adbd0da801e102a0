package postgres

import (
	"context"
	"fmt"

	"github.com/boddenberg/servicos-marketplace-bfa-go/internal/domain"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

func (s *Store) ListServices(ctx context.Context) ([]domain.Service, error) {
	ctx, span := tracer.Start(ctx, "Postgres.ListServices")
	defer span.End()

	rows, err := s.db.Query(ctx, `SELECT id::text, name, description FROM services ORDER BY name`)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (domain.Service, error) {
		var svc domain.Service
		err := row.Scan(&svc.ID, &svc.Name, &svc.Description)
		return svc, err
	})
}

func (s *Store) ListSubServices(ctx context.Context) ([]domain.SubService, error) {
	ctx, span := tracer.Start(ctx, "Postgres.ListSubServices")
	defer span.End()

	rows, err := s.db.Query(ctx, `SELECT id::text, service_id::text, name FROM sub_services ORDER BY name`)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (domain.SubService, error) {
		var ss domain.SubService
		err := row.Scan(&ss.ID, &ss.ServiceID, &ss.Name)
		return ss, err
	})
}

func (s *Store) ListSpecialties(ctx context.Context) ([]domain.Specialty, error) {
	ctx, span := tracer.Start(ctx, "Postgres.ListSpecialties")
	defer span.End()

	rows, err := s.db.Query(ctx, `SELECT id::text, sub_service_id::text, name FROM specialties ORDER BY name`)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (domain.Specialty, error) {
		var sp domain.Specialty
		err := row.Scan(&sp.ID, &sp.SubServiceID, &sp.Name)
		return sp, err
	})
}

func (s *Store) ListCatalogItems(ctx context.Context, specialtyID string) ([]domain.CatalogItem, error) {
	ctx, span := tracer.Start(ctx, "Postgres.ListCatalogItems")
	defer span.End()

	rows, err := s.db.Query(ctx, `
		SELECT id::text, specialty_id::text, name, unit, reference_value::float8
		FROM catalog_items WHERE specialty_id = $1 ORDER BY name`, specialtyID)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (domain.CatalogItem, error) {
		var it domain.CatalogItem
		err := row.Scan(&it.ID, &it.SpecialtyID, &it.Name, &it.Unit, &it.ReferenceValue)
		return it, err
	})
}

func (s *Store) CreateNode(ctx context.Context, node domain.CatalogNode) (*domain.CatalogNode, error) {
	ctx, span := tracer.Start(ctx, "Postgres.CreateNode")
	defer span.End()

	out := node
	var err error
	switch node.Level {
	case domain.LevelService:
		err = s.db.QueryRow(ctx,
			`INSERT INTO services (name, description) VALUES ($1, $2) RETURNING id::text`,
			node.Name, node.Description).Scan(&out.ID)
	case domain.LevelSubService:
		err = s.db.QueryRow(ctx,
			`INSERT INTO sub_services (service_id, name) VALUES ($1, $2) RETURNING id::text`,
			node.ParentID, node.Name).Scan(&out.ID)
	case domain.LevelSpecialty:
		err = s.db.QueryRow(ctx,
			`INSERT INTO specialties (sub_service_id, name) VALUES ($1, $2) RETURNING id::text`,
			node.ParentID, node.Name).Scan(&out.ID)
	default:
		return nil, &domain.ErrValidation{Field: "level", Message: "unknown catalog level"}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to insert %s: %w", node.Level, err)
	}
	return &out, nil
}

func (s *Store) UpdateNode(ctx context.Context, node domain.CatalogNode) (*domain.CatalogNode, error) {
	ctx, span := tracer.Start(ctx, "Postgres.UpdateNode")
	defer span.End()

	var (
		tag pgconn.CommandTag
		err error
	)
	switch node.Level {
	case domain.LevelService:
		tag, err = s.db.Exec(ctx, `UPDATE services SET name = $2, description = $3 WHERE id = $1`,
			node.ID, node.Name, node.Description)
	case domain.LevelSubService:
		tag, err = s.db.Exec(ctx, `UPDATE sub_services SET name = $2, service_id = COALESCE(NULLIF($3, '')::uuid, service_id) WHERE id = $1`,
			node.ID, node.Name, node.ParentID)
	case domain.LevelSpecialty:
		tag, err = s.db.Exec(ctx, `UPDATE specialties SET name = $2, sub_service_id = COALESCE(NULLIF($3, '')::uuid, sub_service_id) WHERE id = $1`,
			node.ID, node.Name, node.ParentID)
	default:
		return nil, &domain.ErrValidation{Field: "level", Message: "unknown catalog level"}
	}
	if err != nil {
		return nil, err
	}
	if tag.RowsAffected() == 0 {
		return nil, &domain.ErrNotFound{Resource: string(node.Level), ID: node.ID}
	}
	out := node
	return &out, nil
}

func (s *Store) DeleteNode(ctx context.Context, level domain.CatalogLevel, id string) error {
	ctx, span := tracer.Start(ctx, "Postgres.DeleteNode")
	defer span.End()

	var table string
	switch level {
	case domain.LevelService:
		table = "services"
	case domain.LevelSubService:
		table = "sub_services"
	case domain.LevelSpecialty:
		table = "specialties"
	default:
		return &domain.ErrValidation{Field: "level", Message: "unknown catalog level"}
	}

	tag, err := s.db.Exec(ctx, `DELETE FROM `+table+` WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return &domain.ErrNotFound{Resource: string(level), ID: id}
	}
	return nil
}
