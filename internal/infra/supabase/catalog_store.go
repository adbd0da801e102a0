package supabase

import (
	"context"
	"fmt"

	"github.com/boddenberg/servicos-marketplace-bfa-go/internal/domain"

	"go.opentelemetry.io/otel/attribute"
)

// ============================================================
// Catalog: services, sub_services, specialties, catalog_items
// ============================================================

type serviceRow struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

type subServiceRow struct {
	ID        string `json:"id"`
	ServiceID string `json:"service_id"`
	Name      string `json:"name"`
}

type specialtyRow struct {
	ID           string `json:"id"`
	SubServiceID string `json:"sub_service_id"`
	Name         string `json:"name"`
}

// catalogTables maps a level to its table and parent column.
var catalogTables = map[domain.CatalogLevel]struct{ table, parent string }{
	domain.LevelService:    {"services", ""},
	domain.LevelSubService: {"sub_services", "service_id"},
	domain.LevelSpecialty:  {"specialties", "sub_service_id"},
}

func (c *Client) ListServices(ctx context.Context) ([]domain.Service, error) {
	ctx, span := tracer.Start(ctx, "Supabase.ListServices")
	defer span.End()

	body, err := c.get(ctx, "services?select=id,name,description&order=name.asc")
	if err != nil {
		return nil, err
	}
	rows, err := decodeRows[serviceRow](body, "services")
	if err != nil {
		return nil, err
	}

	out := make([]domain.Service, 0, len(rows))
	for _, r := range rows {
		out = append(out, domain.Service{ID: r.ID, Name: r.Name, Description: r.Description})
	}
	return out, nil
}

func (c *Client) ListSubServices(ctx context.Context) ([]domain.SubService, error) {
	ctx, span := tracer.Start(ctx, "Supabase.ListSubServices")
	defer span.End()

	body, err := c.get(ctx, "sub_services?select=id,service_id,name&order=name.asc")
	if err != nil {
		return nil, err
	}
	rows, err := decodeRows[subServiceRow](body, "sub_services")
	if err != nil {
		return nil, err
	}

	out := make([]domain.SubService, 0, len(rows))
	for _, r := range rows {
		out = append(out, domain.SubService{ID: r.ID, ServiceID: r.ServiceID, Name: r.Name})
	}
	return out, nil
}

func (c *Client) ListSpecialties(ctx context.Context) ([]domain.Specialty, error) {
	ctx, span := tracer.Start(ctx, "Supabase.ListSpecialties")
	defer span.End()

	body, err := c.get(ctx, "specialties?select=id,sub_service_id,name&order=name.asc")
	if err != nil {
		return nil, err
	}
	rows, err := decodeRows[specialtyRow](body, "specialties")
	if err != nil {
		return nil, err
	}

	out := make([]domain.Specialty, 0, len(rows))
	for _, r := range rows {
		out = append(out, domain.Specialty{ID: r.ID, SubServiceID: r.SubServiceID, Name: r.Name})
	}
	return out, nil
}

func (c *Client) ListCatalogItems(ctx context.Context, specialtyID string) ([]domain.CatalogItem, error) {
	ctx, span := tracer.Start(ctx, "Supabase.ListCatalogItems")
	defer span.End()
	span.SetAttributes(attribute.String("specialty.id", specialtyID))

	path := fmt.Sprintf("catalog_items?%s&select=id,specialty_id,name,unit,reference_value&order=name.asc", eq("specialty_id", specialtyID))
	body, err := c.get(ctx, path)
	if err != nil {
		return nil, err
	}
	return decodeRows[domain.CatalogItem](body, "catalog_items")
}

func (c *Client) CreateNode(ctx context.Context, node domain.CatalogNode) (*domain.CatalogNode, error) {
	ctx, span := tracer.Start(ctx, "Supabase.CreateNode")
	defer span.End()
	span.SetAttributes(attribute.String("catalog.level", string(node.Level)))

	t, ok := catalogTables[node.Level]
	if !ok {
		return nil, &domain.ErrValidation{Field: "level", Message: "unknown catalog level"}
	}

	row := nodeRow(node, t.parent)
	if node.ID != "" {
		row["id"] = node.ID
	}

	body, err := c.doPost(ctx, t.table, row)
	if err != nil {
		return nil, err
	}
	return decodeNode(body, node.Level, t.parent, node.ID)
}

func (c *Client) UpdateNode(ctx context.Context, node domain.CatalogNode) (*domain.CatalogNode, error) {
	ctx, span := tracer.Start(ctx, "Supabase.UpdateNode")
	defer span.End()
	span.SetAttributes(
		attribute.String("catalog.level", string(node.Level)),
		attribute.String("catalog.id", node.ID),
	)

	t, ok := catalogTables[node.Level]
	if !ok {
		return nil, &domain.ErrValidation{Field: "level", Message: "unknown catalog level"}
	}

	body, err := c.doPatch(ctx, fmt.Sprintf("%s?%s", t.table, eq("id", node.ID)), nodeRow(node, t.parent))
	if err != nil {
		return nil, err
	}
	return decodeNode(body, node.Level, t.parent, node.ID)
}

func (c *Client) DeleteNode(ctx context.Context, level domain.CatalogLevel, id string) error {
	ctx, span := tracer.Start(ctx, "Supabase.DeleteNode")
	defer span.End()
	span.SetAttributes(
		attribute.String("catalog.level", string(level)),
		attribute.String("catalog.id", id),
	)

	t, ok := catalogTables[level]
	if !ok {
		return &domain.ErrValidation{Field: "level", Message: "unknown catalog level"}
	}
	return c.doDelete(ctx, fmt.Sprintf("%s?%s", t.table, eq("id", id)))
}

func nodeRow(node domain.CatalogNode, parentColumn string) map[string]any {
	row := map[string]any{"name": node.Name}
	if parentColumn != "" {
		row[parentColumn] = node.ParentID
	} else {
		row["description"] = node.Description
	}
	return row
}

func decodeNode(body []byte, level domain.CatalogLevel, parentColumn, id string) (*domain.CatalogNode, error) {
	rows, err := decodeRows[map[string]any](body, string(level))
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, &domain.ErrNotFound{Resource: string(level), ID: id}
	}

	r := rows[0]
	node := &domain.CatalogNode{Level: level}
	node.ID, _ = r["id"].(string)
	node.Name, _ = r["name"].(string)
	node.Description, _ = r["description"].(string)
	if parentColumn != "" {
		node.ParentID, _ = r[parentColumn].(string)
	}
	return node, nil
}
