// Package geo holds the clients for the geocoding and postal-code lookup
// collaborators used by the address resolver.
package geo

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"github.com/boddenberg/servicos-marketplace-bfa-go/internal/domain"
	"github.com/boddenberg/servicos-marketplace-bfa-go/internal/infra/resilience"

	jsoniter "github.com/json-iterator/go"
	"github.com/sony/gobreaker"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
)

var (
	tracer = otel.Tracer("geo")
	json   = jsoniter.ConfigCompatibleWithStandardLibrary
)

// GeocoderClient resolves free-text addresses against a Nominatim-style
// search API.
type GeocoderClient struct {
	httpClient *http.Client
	baseURL    string
	userAgent  string
	cb         *gobreaker.CircuitBreaker
	cfg        resilience.Config
}

// NewGeocoderClient creates a new GeocoderClient.
func NewGeocoderClient(httpClient *http.Client, baseURL, userAgent string, cb *gobreaker.CircuitBreaker, cfg resilience.Config) *GeocoderClient {
	return &GeocoderClient{
		httpClient: httpClient,
		baseURL:    baseURL,
		userAgent:  userAgent,
		cb:         cb,
		cfg:        cfg,
	}
}

type searchResult struct {
	Lat string `json:"lat"`
	Lon string `json:"lon"`
}

// Geocode returns the best match for query, or (nil, nil) when the search
// has no result.
func (c *GeocoderClient) Geocode(ctx context.Context, query string) (*domain.GeoPoint, error) {
	ctx, span := tracer.Start(ctx, "GeocoderClient.Geocode")
	defer span.End()
	span.SetAttributes(attribute.String("geocode.query", query))

	return resilience.Call(ctx, c.cb, c.cfg, "geocoder", func() (*domain.GeoPoint, error) {
		params := url.Values{}
		params.Set("q", query)
		params.Set("format", "json")
		params.Set("limit", "1")

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/search?"+params.Encode(), nil)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Accept", "application/json")
		if c.userAgent != "" {
			req.Header.Set("User-Agent", c.userAgent)
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()

		if resp.StatusCode >= 400 && resp.StatusCode < 500 && resp.StatusCode != http.StatusTooManyRequests {
			return nil, &resilience.Permanent{Err: fmt.Errorf("geocoder returned status %d", resp.StatusCode)}
		}
		if resp.StatusCode != http.StatusOK {
			return nil, fmt.Errorf("geocoder returned status %d", resp.StatusCode)
		}

		var results []searchResult
		if err := json.NewDecoder(resp.Body).Decode(&results); err != nil {
			return nil, fmt.Errorf("decode geocoder response: %w", err)
		}
		if len(results) == 0 {
			return nil, nil
		}

		lat, errLat := strconv.ParseFloat(results[0].Lat, 64)
		lng, errLng := strconv.ParseFloat(results[0].Lon, 64)
		if errLat != nil || errLng != nil {
			return nil, nil
		}
		return &domain.GeoPoint{Lat: lat, Lng: lng}, nil
	})
}
