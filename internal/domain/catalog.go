package domain

import "time"

// ============================================================
// Service catalog: Service -> SubService -> Specialty
// ============================================================

// CatalogLevel names one level of the catalog tree.
type CatalogLevel string

const (
	LevelService    CatalogLevel = "service"
	LevelSubService CatalogLevel = "sub_service"
	LevelSpecialty  CatalogLevel = "specialty"
)

// Valid reports whether l is one of the three catalog levels.
func (l CatalogLevel) Valid() bool {
	switch l {
	case LevelService, LevelSubService, LevelSpecialty:
		return true
	}
	return false
}

// Specificity orders levels for price lookup: specialty beats sub-service
// beats service.
func (l CatalogLevel) Specificity() int {
	switch l {
	case LevelSpecialty:
		return 3
	case LevelSubService:
		return 2
	case LevelService:
		return 1
	}
	return 0
}

// Service is the root of the catalog tree.
type Service struct {
	ID          string       `json:"id"`
	Name        string       `json:"name"`
	Description string       `json:"description,omitempty"`
	SubServices []SubService `json:"sub_services"`
}

// SubService belongs to exactly one Service.
type SubService struct {
	ID          string      `json:"id"`
	ServiceID   string      `json:"service_id"`
	Name        string      `json:"name"`
	Specialties []Specialty `json:"specialties"`
}

// Specialty is a catalog leaf and belongs to exactly one SubService.
type Specialty struct {
	ID           string        `json:"id"`
	SubServiceID string        `json:"sub_service_id"`
	Name         string        `json:"name"`
	Items        []CatalogItem `json:"items,omitempty"`
}

// CatalogNode is the flat shape used to create or update a node at any level.
type CatalogNode struct {
	ID          string       `json:"id"`
	Level       CatalogLevel `json:"level"`
	ParentID    string       `json:"parent_id,omitempty"`
	Name        string       `json:"name" validate:"required,max=120"`
	Description string       `json:"description,omitempty"`
}

// CatalogPath identifies a quote's position in the tree, from root to leaf.
type CatalogPath struct {
	ServiceID    string `json:"service_id"`
	SubServiceID string `json:"sub_service_id,omitempty"`
	SpecialtyID  string `json:"specialty_id,omitempty"`
}

// NodeAt returns the node id at the given level ("" when unset).
func (p CatalogPath) NodeAt(level CatalogLevel) string {
	switch level {
	case LevelSpecialty:
		return p.SpecialtyID
	case LevelSubService:
		return p.SubServiceID
	case LevelService:
		return p.ServiceID
	}
	return ""
}

// Leaf returns the most specific level set on the path and its id.
func (p CatalogPath) Leaf() (CatalogLevel, string) {
	switch {
	case p.SpecialtyID != "":
		return LevelSpecialty, p.SpecialtyID
	case p.SubServiceID != "":
		return LevelSubService, p.SubServiceID
	default:
		return LevelService, p.ServiceID
	}
}

// ItemUnit is the measurement tag on a catalog item.
type ItemUnit string

const (
	UnitQuantity       ItemUnit = "quantity"
	UnitSquareMeter    ItemUnit = "square_meter"
	UnitLinearMeter    ItemUnit = "linear_meter"
	UnitMaxSquareMeter ItemUnit = "max_square_meter"
	UnitMaxLinearMeter ItemUnit = "max_linear_meter"
)

// Tiered reports whether the unit describes a capacity band ("up to N").
func (u ItemUnit) Tiered() bool {
	return u == UnitMaxSquareMeter || u == UnitMaxLinearMeter
}

// CatalogItem is a priced line the client can request under a specialty.
type CatalogItem struct {
	ID             string   `json:"id"`
	SpecialtyID    string   `json:"specialty_id"`
	Name           string   `json:"name"`
	Unit           ItemUnit `json:"unit"`
	ReferenceValue float64  `json:"reference_value,omitempty"`
}

// CatalogSnapshot is the assembled tree with the time it was fetched.
type CatalogSnapshot struct {
	Services  []Service `json:"services"`
	FetchedAt time.Time `json:"fetched_at"`
}
