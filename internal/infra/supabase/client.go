// Package supabase provides a client for the hosted backend's PostgREST and
// RPC interfaces. It implements the catalog, quote, provider and policy
// stores.
package supabase

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"github.com/boddenberg/servicos-marketplace-bfa-go/internal/domain"
	"github.com/boddenberg/servicos-marketplace-bfa-go/internal/infra/resilience"

	jsoniter "github.com/json-iterator/go"
	"github.com/sony/gobreaker"
	"go.opentelemetry.io/otel"
	"go.uber.org/zap"
)

var (
	tracer = otel.Tracer("supabase")
	json   = jsoniter.ConfigCompatibleWithStandardLibrary
)

const serviceName = "supabase"

// Client wraps HTTP calls to Supabase PostgREST API.
type Client struct {
	httpClient     *http.Client
	baseURL        string
	apiKey         string
	serviceRoleKey string
	cb             *gobreaker.CircuitBreaker
	cfg            resilience.Config
	logger         *zap.Logger
}

// NewClient creates a Supabase client.
func NewClient(httpClient *http.Client, baseURL, apiKey, serviceRoleKey string, cb *gobreaker.CircuitBreaker, cfg resilience.Config, logger *zap.Logger) *Client {
	return &Client{
		httpClient:     httpClient,
		baseURL:        baseURL,
		apiKey:         apiKey,
		serviceRoleKey: serviceRoleKey,
		cb:             cb,
		cfg:            cfg,
		logger:         logger,
	}
}

// statusError is a non-2xx PostgREST answer. 4xx answers are the caller's
// fault and are never retried.
type statusError struct {
	Method string
	Path   string
	Status int
	Body   string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("supabase %s %s returned %d: %s", e.Method, e.Path, e.Status, e.Body)
}

// do executes an authenticated request against /rest/v1/<path>.
// A nil payload sends no body. 404 and 204 yield a nil body.
func (c *Client) do(ctx context.Context, method, path string, payload any, prefer string) ([]byte, error) {
	endpoint := fmt.Sprintf("%s/rest/v1/%s", c.baseURL, path)

	var reader io.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return nil, err
		}
		reader = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		c.logger.Error("supabase: failed to create request",
			zap.String("method", method),
			zap.String("path", path),
			zap.Error(err),
		)
		return nil, err
	}

	req.Header.Set("apikey", c.apiKey)
	req.Header.Set("Authorization", fmt.Sprintf("Bearer %s", c.serviceRoleKey))
	req.Header.Set("Content-Type", "application/json")
	if prefer != "" {
		req.Header.Set("Prefer", prefer)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Error("supabase: request failed",
			zap.String("method", method),
			zap.String("path", path),
			zap.Error(err),
		)
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		c.logger.Error("supabase: failed to read response body",
			zap.String("method", method),
			zap.String("path", path),
			zap.Error(err),
		)
		return nil, err
	}

	if resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusNoContent {
		return nil, nil // no data
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		c.logger.Warn("supabase: non-2xx response",
			zap.String("method", method),
			zap.String("path", path),
			zap.Int("status", resp.StatusCode),
			zap.String("body", string(body)),
		)
		serr := &statusError{Method: method, Path: path, Status: resp.StatusCode, Body: string(body)}
		if resp.StatusCode >= 400 && resp.StatusCode < 500 {
			return nil, &resilience.Permanent{Err: serr}
		}
		return nil, serr
	}

	c.logger.Debug("supabase: request OK",
		zap.String("method", method),
		zap.String("path", path),
		zap.Int("status", resp.StatusCode),
	)
	return body, nil
}

// get runs an idempotent read through the breaker with retries.
func (c *Client) get(ctx context.Context, path string) ([]byte, error) {
	return resilience.Call(ctx, c.cb, c.cfg, serviceName, func() ([]byte, error) {
		return c.do(ctx, http.MethodGet, path, nil, "")
	})
}

// write runs a mutation through the breaker once. Mutations are never
// retried.
func (c *Client) write(ctx context.Context, method, path string, payload any) ([]byte, error) {
	once := resilience.Config{MaxRetries: 0}
	return resilience.Call(ctx, c.cb, once, serviceName, func() ([]byte, error) {
		return c.do(ctx, method, path, payload, "return=representation")
	})
}

func (c *Client) doPost(ctx context.Context, table string, payload any) ([]byte, error) {
	return c.write(ctx, http.MethodPost, table, payload)
}

func (c *Client) doPatch(ctx context.Context, path string, payload any) ([]byte, error) {
	return c.write(ctx, http.MethodPatch, path, payload)
}

func (c *Client) doDelete(ctx context.Context, path string) error {
	_, err := c.write(ctx, http.MethodDelete, path, nil)
	return err
}

// rpc calls a remote procedure. Reads are retried; see retry.
func (c *Client) rpc(ctx context.Context, fn string, args map[string]any, retry bool) ([]byte, error) {
	cfg := c.cfg
	if !retry {
		cfg = resilience.Config{MaxRetries: 0}
	}
	return resilience.Call(ctx, c.cb, cfg, serviceName, func() ([]byte, error) {
		return c.do(ctx, http.MethodPost, "rpc/"+fn, args, "")
	})
}

// Ping checks that PostgREST answers, for the readiness probe.
func (c *Client) Ping(ctx context.Context) error {
	_, err := c.do(ctx, http.MethodGet, "services?select=id&limit=1", nil, "")
	return err
}

// ============================================================
// Helpers
// ============================================================

// eq renders a PostgREST equality filter with an escaped value.
func eq(column, value string) string {
	return column + "=eq." + url.QueryEscape(value)
}

// decodeRows decodes a PostgREST array. A nil body is an empty result.
func decodeRows[T any](body []byte, what string) ([]T, error) {
	if len(body) == 0 {
		return []T{}, nil
	}
	var rows []T
	if err := json.Unmarshal(body, &rows); err != nil {
		return nil, fmt.Errorf("decode %s: %w", what, err)
	}
	if rows == nil {
		rows = []T{}
	}
	return rows, nil
}

// decodeOne decodes the first row of a PostgREST array or returns
// ErrNotFound.
func decodeOne[T any](body []byte, resource, id string) (*T, error) {
	rows, err := decodeRows[T](body, resource)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, &domain.ErrNotFound{Resource: resource, ID: id}
	}
	return &rows[0], nil
}

// isConflict reports a unique violation surfaced by PostgREST as 409.
func isConflict(err error) bool {
	var serr *statusError
	return errors.As(err, &serr) && serr.Status == http.StatusConflict
}
