package geo

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/boddenberg/servicos-marketplace-bfa-go/internal/domain"
	"github.com/boddenberg/servicos-marketplace-bfa-go/internal/infra/resilience"

	"github.com/sony/gobreaker"
	"go.opentelemetry.io/otel/attribute"
)

// PostalCodeClient looks up Brazilian postal codes (CEP) against a
// ViaCEP-compatible API.
type PostalCodeClient struct {
	httpClient *http.Client
	baseURL    string
	cb         *gobreaker.CircuitBreaker
	cfg        resilience.Config
}

// NewPostalCodeClient creates a new PostalCodeClient.
func NewPostalCodeClient(httpClient *http.Client, baseURL string, cb *gobreaker.CircuitBreaker, cfg resilience.Config) *PostalCodeClient {
	return &PostalCodeClient{
		httpClient: httpClient,
		baseURL:    baseURL,
		cb:         cb,
		cfg:        cfg,
	}
}

// viaCEPResponse maps the lookup payload. Unknown codes come back as 200
// with "erro" set, either as a boolean or as the string "true".
type viaCEPResponse struct {
	CEP        string `json:"cep"`
	Logradouro string `json:"logradouro"`
	Bairro     string `json:"bairro"`
	Localidade string `json:"localidade"`
	UF         string `json:"uf"`
	Erro       any    `json:"erro"`
}

func (r viaCEPResponse) unknown() bool {
	switch v := r.Erro.(type) {
	case bool:
		return v
	case string:
		return strings.EqualFold(v, "true")
	}
	return false
}

// NormalizePostalCode strips punctuation and checks for eight digits.
func NormalizePostalCode(code string) (string, error) {
	digits := strings.Map(func(r rune) rune {
		if r >= '0' && r <= '9' {
			return r
		}
		return -1
	}, code)
	if len(digits) != 8 {
		return "", &domain.ErrValidation{Field: "postal_code", Message: "must have 8 digits"}
	}
	return digits, nil
}

// Lookup returns the normalized address for postalCode, or
// *domain.ErrUnknownPostalCode.
func (c *PostalCodeClient) Lookup(ctx context.Context, postalCode string) (*domain.Address, error) {
	ctx, span := tracer.Start(ctx, "PostalCodeClient.Lookup")
	defer span.End()

	code, err := NormalizePostalCode(postalCode)
	if err != nil {
		return nil, err
	}
	span.SetAttributes(attribute.String("postal_code", code))

	return resilience.Call(ctx, c.cb, c.cfg, "postal_lookup", func() (*domain.Address, error) {
		url := fmt.Sprintf("%s/ws/%s/json/", c.baseURL, code)
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return nil, err
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()

		if resp.StatusCode == http.StatusBadRequest || resp.StatusCode == http.StatusNotFound {
			return nil, &domain.ErrUnknownPostalCode{Code: code}
		}
		if resp.StatusCode != http.StatusOK {
			return nil, fmt.Errorf("postal lookup returned status %d", resp.StatusCode)
		}

		var body viaCEPResponse
		if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
			return nil, fmt.Errorf("decode postal lookup response: %w", err)
		}
		if body.unknown() {
			return nil, &domain.ErrUnknownPostalCode{Code: code}
		}

		return &domain.Address{
			Street:       body.Logradouro,
			Neighborhood: body.Bairro,
			City:         body.Localidade,
			State:        body.UF,
			PostalCode:   code,
		}, nil
	})
}
