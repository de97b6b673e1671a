// Package backend implements the client for the hosted marketplace backend:
// table reads and writes, server-side procedures and object storage.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/xid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/comunihub/marketplace-client/pkg/logger"
	"github.com/comunihub/marketplace-client/pkg/metrics"
)

// TokenSource supplies the current access token; an empty string means the
// request goes out with the anonymous key only.
type TokenSource func() string

// Client talks to the backend's REST surface. It is constructor-injected
// into every service that needs it; there is no package-level instance.
type Client struct {
	baseURL    string
	anonKey    string
	httpClient *http.Client
	tokens     TokenSource
	logger     *logger.Logger
	tracer     trace.Tracer
}

// Option configures a Client.
type Option func(*Client)

// WithTokenSource attaches the authenticated session's token source.
func WithTokenSource(ts TokenSource) Option {
	return func(c *Client) { c.tokens = ts }
}

// WithHTTPClient overrides the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// New creates a backend client.
func New(baseURL, anonKey string, log *logger.Logger, opts ...Option) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		anonKey:    anonKey,
		httpClient: &http.Client{Timeout: 15 * time.Second},
		tokens:     func() string { return "" },
		logger:     log,
		tracer:     otel.Tracer("backend"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Select fetches rows from table into dest, which must be a pointer to a
// slice of the row type.
func (c *Client) Select(ctx context.Context, table string, q Query, dest any) error {
	endpoint := fmt.Sprintf("%s/rest/v1/%s?%s", c.baseURL, table, q.encode().Encode())
	return c.do(ctx, "select", table, http.MethodGet, endpoint, nil, dest)
}

// Insert adds one row to table. The backend assigns id and created_at; the
// created row is not returned.
func (c *Client) Insert(ctx context.Context, table string, row any) error {
	endpoint := fmt.Sprintf("%s/rest/v1/%s", c.baseURL, table)
	return c.do(ctx, "insert", table, http.MethodPost, endpoint, row, nil)
}

// Update patches the rows of table matched by filters.
func (c *Client) Update(ctx context.Context, table string, patch any, filters ...Filter) error {
	q := Query{Filters: filters}
	params := q.encode()
	params.Del("select")
	endpoint := fmt.Sprintf("%s/rest/v1/%s?%s", c.baseURL, table, params.Encode())
	return c.do(ctx, "update", table, http.MethodPatch, endpoint, patch, nil)
}

// RPC invokes a server-side procedure with args, decoding the result into
// dest when dest is non-nil.
func (c *Client) RPC(ctx context.Context, fn string, args any, dest any) error {
	endpoint := fmt.Sprintf("%s/rest/v1/rpc/%s", c.baseURL, fn)
	if args == nil {
		args = struct{}{}
	}
	return c.do(ctx, "rpc", fn, http.MethodPost, endpoint, args, dest)
}

// Upload stores an object in bucket under path.
func (c *Client) Upload(ctx context.Context, bucket, path string, data []byte, contentType string) error {
	endpoint := fmt.Sprintf("%s/storage/v1/object/%s/%s", c.baseURL, bucket, path)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("failed to build upload request: %w", err)
	}
	c.setHeaders(req)
	req.Header.Set("Content-Type", contentType)

	return c.roundTrip(req, "upload", bucket, nil)
}

// PublicURL returns the public URL for an object in bucket under path.
func (c *Client) PublicURL(bucket, path string) string {
	return fmt.Sprintf("%s/storage/v1/object/public/%s/%s", c.baseURL, bucket, path)
}

func (c *Client) do(ctx context.Context, operation, target, method, endpoint string, body, dest any) error {
	ctx, span := c.tracer.Start(ctx, "backend."+operation,
		trace.WithAttributes(attribute.String("backend.target", target)))
	defer span.End()

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal %s body: %w", operation, err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return fmt.Errorf("failed to build %s request: %w", operation, err)
	}
	c.setHeaders(req)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Prefer", "return=minimal")
	}

	return c.roundTrip(req, operation, target, dest)
}

func (c *Client) roundTrip(req *http.Request, operation, target string, dest any) error {
	correlationID := xid.New().String()
	req.Header.Set("X-Request-ID", correlationID)

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		metrics.RecordBackendRequest(operation, target, "error", time.Since(start).Seconds())
		c.logger.Warn("backend request failed",
			zap.String("operation", operation),
			zap.String("target", target),
			zap.String("correlation_id", correlationID),
			zap.Error(err),
		)
		return fmt.Errorf("backend %s %s: %w", operation, target, err)
	}
	defer resp.Body.Close()

	metrics.RecordBackendRequest(operation, target, fmt.Sprintf("%d", resp.StatusCode), time.Since(start).Seconds())

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		apiErr := decodeAPIError(resp)
		c.logger.Warn("backend request rejected",
			zap.String("operation", operation),
			zap.String("target", target),
			zap.String("correlation_id", correlationID),
			zap.Int("status", resp.StatusCode),
			zap.String("message", apiErr.Message),
		)
		return apiErr
	}

	if dest != nil {
		if err := json.NewDecoder(resp.Body).Decode(dest); err != nil {
			return fmt.Errorf("failed to decode %s response: %w", operation, err)
		}
	}
	return nil
}

func (c *Client) setHeaders(req *http.Request) {
	req.Header.Set("apikey", c.anonKey)
	token := c.tokens()
	if token == "" {
		token = c.anonKey
	}
	req.Header.Set("Authorization", "Bearer "+token)
}

// APIError is a non-2xx backend response.
type APIError struct {
	Status  int
	Message string `json:"message"`
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("backend returned status %d", e.Status)
	}
	return fmt.Sprintf("backend returned status %d: %s", e.Status, e.Message)
}

func decodeAPIError(resp *http.Response) *APIError {
	apiErr := &APIError{Status: resp.StatusCode}
	body, err := io.ReadAll(io.LimitReader(resp.Body, 4096))
	if err != nil {
		return apiErr
	}
	_ = json.Unmarshal(body, apiErr)
	return apiErr
}
