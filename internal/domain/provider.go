package domain

import (
	"math"
	"strings"
	"time"
)

// ============================================================
// Providers
// ============================================================

// ProviderProfile is a provider's public-facing profile. Rating is the
// average of Rating rows and is never written directly.
type ProviderProfile struct {
	ID              string          `json:"id"`
	Name            string          `json:"name"`
	Bio             string          `json:"bio,omitempty"`
	ServiceRadiusKm float64         `json:"service_radius_km"`
	Address         Address         `json:"address"`
	Rating          float64         `json:"rating"`
	RatingCount     int             `json:"rating_count"`
	Portfolio       []PortfolioItem `json:"portfolio,omitempty"`
	Prices          []ProviderPrice `json:"-"`
}

// ProviderPrice is a unit price a provider declares at one catalog node.
// ItemID empty means the price applies to the node as a whole; IsDefault
// marks the single base price used when nothing more specific exists.
type ProviderPrice struct {
	ProviderID string       `json:"provider_id"`
	Level      CatalogLevel `json:"level"`
	NodeID     string       `json:"node_id"`
	ItemID     string       `json:"item_id,omitempty"`
	UnitPrice  float64      `json:"unit_price"`
	IsDefault  bool         `json:"is_default"`
}

// PortfolioItem references an already uploaded image.
type PortfolioItem struct {
	ID         string    `json:"id"`
	ProviderID string    `json:"provider_id"`
	ImageURL   string    `json:"image_url" validate:"required,url"`
	Caption    string    `json:"caption,omitempty" validate:"max=280"`
	CreatedAt  time.Time `json:"created_at"`
}

// Rating is one client's score for a completed job.
type Rating struct {
	ID              string    `json:"id"`
	ProviderID      string    `json:"provider_id"`
	QuoteProviderID string    `json:"quote_provider_id"`
	ClientID        string    `json:"client_id"`
	Score           int       `json:"score" validate:"min=1,max=5"`
	Comment         string    `json:"comment,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
}

// AverageRating returns the mean score and the count.
func AverageRating(ratings []Rating) (float64, int) {
	if len(ratings) == 0 {
		return 0, 0
	}
	sum := 0
	for _, r := range ratings {
		sum += r.Score
	}
	return float64(sum) / float64(len(ratings)), len(ratings)
}

// ============================================================
// Matching
// ============================================================

// PriceLine is one row of a match's itemized price.
type PriceLine struct {
	ItemID    string       `json:"item_id,omitempty"`
	Level     CatalogLevel `json:"level"`
	Quantity  float64      `json:"quantity"`
	UnitPrice float64      `json:"unit_price"`
	Subtotal  float64      `json:"subtotal"`
	Fallback  bool         `json:"fallback,omitempty"`
}

// ProviderMatch is a candidate provider for a quote. Priced is false when
// some requested item has neither an item price nor a default on the
// quote's path; TotalPrice then covers only the priced lines.
type ProviderMatch struct {
	Provider       ProviderProfile `json:"provider"`
	DistanceKm     *float64        `json:"distance_km"`
	TotalPrice     float64         `json:"total_price"`
	Priced         bool            `json:"priced"`
	IsWithinRadius bool            `json:"is_within_radius"`
	HasLocation    bool            `json:"has_location"`
	Breakdown      []PriceLine     `json:"breakdown"`
}

// SortOrder selects how matches are ordered.
type SortOrder string

const (
	SortRelevance SortOrder = "relevance"
	SortDistance  SortOrder = "distance"
	SortPrice     SortOrder = "price"
	SortRating    SortOrder = "rating"
)

// ParseSortOrder maps a query value to a SortOrder, defaulting to relevance.
func ParseSortOrder(s string) SortOrder {
	switch o := SortOrder(strings.ToLower(strings.TrimSpace(s))); o {
	case SortDistance, SortPrice, SortRating:
		return o
	}
	return SortRelevance
}

const earthRadiusKm = 6371.0

// HaversineKm is the great-circle distance between two points in km.
func HaversineKm(a, b GeoPoint) float64 {
	lat1 := a.Lat * math.Pi / 180
	lat2 := b.Lat * math.Pi / 180
	dLat := (b.Lat - a.Lat) * math.Pi / 180
	dLng := (b.Lng - a.Lng) * math.Pi / 180

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLng/2)*math.Sin(dLng/2)
	return 2 * earthRadiusKm * math.Asin(math.Min(1, math.Sqrt(h)))
}

// CoversDistance reports whether radiusKm reaches distanceKm; 0 is unlimited.
func CoversDistance(radiusKm, distanceKm float64) bool {
	return radiusKm == 0 || radiusKm >= distanceKm
}
