package domain

import (
	"math"
	"sort"
	"strings"
	"time"
)

// ============================================================
// Address
// ============================================================

// Address is the client's job location. Latitude/Longitude are optional:
// a geocoding failure leaves them nil and the address stays usable.
type Address struct {
	Street       string   `json:"street"`
	Number       string   `json:"number,omitempty"`
	Complement   string   `json:"complement,omitempty"`
	Neighborhood string   `json:"neighborhood,omitempty"`
	City         string   `json:"city"`
	State        string   `json:"state,omitempty"`
	PostalCode   string   `json:"postal_code,omitempty"`
	Latitude     *float64 `json:"lat,omitempty"`
	Longitude    *float64 `json:"lng,omitempty"`
}

// IsMinimallyComplete reports whether street and city are present.
func (a Address) IsMinimallyComplete() bool {
	return strings.TrimSpace(a.Street) != "" && strings.TrimSpace(a.City) != ""
}

// HasCoordinates reports whether both lat and lng are set.
func (a Address) HasCoordinates() bool {
	return a.Latitude != nil && a.Longitude != nil
}

// Coordinates returns a GeoPoint when the address is located.
func (a Address) Coordinates() *GeoPoint {
	if !a.HasCoordinates() {
		return nil
	}
	return &GeoPoint{Lat: *a.Latitude, Lng: *a.Longitude}
}

// WithCoordinates returns a copy of a located at p.
func (a Address) WithCoordinates(p GeoPoint) Address {
	lat, lng := p.Lat, p.Lng
	a.Latitude = &lat
	a.Longitude = &lng
	return a
}

// SingleLine renders the address for the geocoder.
func (a Address) SingleLine() string {
	parts := make([]string, 0, 6)
	street := strings.TrimSpace(a.Street)
	if n := strings.TrimSpace(a.Number); n != "" && street != "" {
		street += ", " + n
	}
	for _, p := range []string{street, a.Neighborhood, a.City, a.State, a.PostalCode} {
		if p = strings.TrimSpace(p); p != "" {
			parts = append(parts, p)
		}
	}
	return strings.Join(parts, ", ")
}

// GeoPoint is a WGS84 coordinate pair.
type GeoPoint struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// ============================================================
// Quote draft (multi-step form state, session scoped)
// ============================================================

// RoomMeasurement is one rectangular room, in meters.
type RoomMeasurement struct {
	Width  float64 `json:"width"`
	Length float64 `json:"length"`
}

// DraftItem is a requested catalog item with its quantity.
type DraftItem struct {
	ItemID         string   `json:"item_id"`
	Unit           ItemUnit `json:"unit"`
	ReferenceValue float64  `json:"reference_value,omitempty"`
	Quantity       float64  `json:"quantity"`
	Selected       bool     `json:"selected"`
}

// QuoteDraft is the in-progress request. It lives only in the session store
// until it is submitted or cleared.
type QuoteDraft struct {
	Path         CatalogPath          `json:"path"`
	Description  string               `json:"description,omitempty"`
	Address      Address              `json:"address"`
	Items        map[string]DraftItem `json:"items,omitempty"`
	Measurements []RoomMeasurement    `json:"measurements,omitempty"`
	CapturedAt   time.Time            `json:"captured_at"`
}

// HasServiceSelection reports whether a service was chosen.
func (d *QuoteDraft) HasServiceSelection() bool {
	return strings.TrimSpace(d.Path.ServiceID) != ""
}

// MeasurementTotals returns Σ(w·l) and Σ(2w+2l) over rooms.
func MeasurementTotals(rooms []RoomMeasurement) (area, perimeter float64) {
	for _, r := range rooms {
		area += r.Width * r.Length
		perimeter += 2*r.Width + 2*r.Length
	}
	return area, perimeter
}

// DeriveItemQuantities recomputes measurement-driven items from rooms and
// returns a new map; items with other units are copied unchanged.
// The result depends only on the inputs, so applying it twice is a no-op.
func DeriveItemQuantities(items map[string]DraftItem, rooms []RoomMeasurement) map[string]DraftItem {
	out := make(map[string]DraftItem, len(items))
	if len(items) == 0 {
		return out
	}

	area, perimeter := MeasurementTotals(rooms)

	for id, it := range items {
		switch it.Unit {
		case UnitSquareMeter:
			it.Quantity = area
			it.Selected = area > 0
		case UnitLinearMeter:
			it.Quantity = perimeter
			it.Selected = perimeter > 0
		case UnitMaxSquareMeter, UnitMaxLinearMeter:
			it.Quantity = 0
			it.Selected = false
		}
		out[id] = it
	}

	if id, ok := pickTier(out, UnitMaxSquareMeter, area); ok {
		selectTier(out, id)
	}
	if id, ok := pickTier(out, UnitMaxLinearMeter, perimeter); ok {
		selectTier(out, id)
	}
	return out
}

// pickTier finds the item of unit with the smallest reference value that
// still covers total. Equal thresholds resolve to the lowest item id.
func pickTier(items map[string]DraftItem, unit ItemUnit, total float64) (string, bool) {
	ids := make([]string, 0, len(items))
	for id, it := range items {
		if it.Unit == unit && it.ReferenceValue >= total {
			ids = append(ids, id)
		}
	}
	if len(ids) == 0 {
		return "", false
	}
	sort.Strings(ids)

	best := ids[0]
	bestRef := math.Inf(1)
	for _, id := range ids {
		if ref := items[id].ReferenceValue; ref < bestRef {
			best, bestRef = id, ref
		}
	}
	return best, true
}

func selectTier(items map[string]DraftItem, id string) {
	it := items[id]
	it.Quantity = 1
	it.Selected = true
	items[id] = it
}
