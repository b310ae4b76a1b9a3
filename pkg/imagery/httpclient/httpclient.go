// Package httpclient is the outbound HTTP layer used by every provider client.
//
// A Client prefixes a base URL, attaches a bearer token when a TokenSource is
// configured, runs the call through a circuit breaker and maps every failure
// (network error, non-2xx status, malformed body) to one *UpstreamError.
// Calls are never retried.
package httpclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sony/gobreaker/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"

	"github.com/Berektassuly/terra-vision-ai/pkg/agentctx"
)

// maxBody caps how much of a response is read. Rendered PNGs are the largest
// payloads and stay well below it.
const maxBody = 32 << 20

var tracer = otel.Tracer("terravision/httpclient")

// TokenSource yields a bearer token for outgoing requests.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
}

// Invalidator is implemented by token sources that cache. The client calls
// Invalidate when the upstream rejects a token with 401 so the next request
// exchanges a fresh one.
type Invalidator interface {
	Invalidate()
}

// Client sends requests to one upstream service.
type Client struct {
	service   string
	baseURL   string
	http      *http.Client
	tokens    TokenSource
	userAgent string
	headers   map[string]string
	logger    *slog.Logger
	breaker   *gobreaker.CircuitBreaker[*response]
}

type response struct {
	status      int
	contentType string
	body        []byte
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient sets the underlying *http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithTokenSource attaches a bearer token to every request.
func WithTokenSource(ts TokenSource) Option {
	return func(c *Client) { c.tokens = ts }
}

// WithUserAgent sets the User-Agent header.
func WithUserAgent(ua string) Option {
	return func(c *Client) { c.userAgent = ua }
}

// WithHeader adds a static header to every request.
func WithHeader(key, value string) Option {
	return func(c *Client) { c.headers[key] = value }
}

// WithLogger sets the logger used for request-level debug logs.
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) { c.logger = l }
}

// WithBreaker replaces the default circuit breaker settings. Failures counted
// by the breaker are network errors, 429 and 5xx responses.
func WithBreaker(consecutiveFailures uint32, openFor time.Duration) Option {
	return func(c *Client) { c.breaker = newBreaker(c.service, consecutiveFailures, openFor) }
}

// New creates a Client for the named service rooted at baseURL.
func New(service, baseURL string, opts ...Option) *Client {
	c := &Client{
		service: service,
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: 30 * time.Second},
		headers: map[string]string{},
		logger:  slog.Default(),
	}
	c.breaker = newBreaker(service, 5, 30*time.Second)

	for _, opt := range opts {
		opt(c)
	}

	return c
}

func newBreaker(name string, consecutiveFailures uint32, openFor time.Duration) *gobreaker.CircuitBreaker[*response] {
	return gobreaker.NewCircuitBreaker[*response](gobreaker.Settings{
		Name:        name,
		MaxRequests: 1,
		Interval:    60 * time.Second,
		Timeout:     openFor,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= consecutiveFailures
		},
		IsSuccessful: func(err error) bool {
			var ue *UpstreamError
			if errors.As(err, &ue) {
				return ue.Status >= 400 && ue.Status < 500 && ue.Status != http.StatusTooManyRequests
			}
			return err == nil
		},
	})
}

// Service returns the service name used in errors.
func (c *Client) Service() string { return c.service }

// GetJSON sends a GET with the given query and decodes a JSON body into dest.
func (c *Client) GetJSON(ctx context.Context, path string, query url.Values, dest any) error {
	resp, err := c.do(ctx, http.MethodGet, path, query, nil, "application/json")
	if err != nil {
		return err
	}
	return c.decode(resp, dest)
}

// PostJSON marshals payload, sends a POST and decodes a JSON body into dest.
func (c *Client) PostJSON(ctx context.Context, path string, payload, dest any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("httpclient: marshal %s payload: %w", c.service, err)
	}

	resp, err := c.do(ctx, http.MethodPost, path, nil, body, "application/json")
	if err != nil {
		return err
	}
	return c.decode(resp, dest)
}

// PostForBytes marshals payload, sends a POST accepting the given media type
// and returns the raw body. A response whose Content-Type does not match
// accept is reported as malformed.
func (c *Client) PostForBytes(ctx context.Context, path string, payload any, accept string) ([]byte, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("httpclient: marshal %s payload: %w", c.service, err)
	}

	resp, err := c.do(ctx, http.MethodPost, path, nil, body, accept)
	if err != nil {
		return nil, err
	}

	if ct := resp.contentType; ct != "" && !strings.HasPrefix(ct, accept) {
		return nil, &UpstreamError{
			Service: c.service,
			Status:  resp.status,
			Message: fmt.Sprintf("unexpected content type %q, want %s", ct, accept),
		}
	}
	if len(resp.body) == 0 {
		return nil, &UpstreamError{Service: c.service, Status: resp.status, Message: "empty response body"}
	}

	return resp.body, nil
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, body []byte, accept string) (*response, error) {
	ctx, span := tracer.Start(ctx, c.service+" "+method+" "+path,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("upstream.service", c.service),
			attribute.String("http.method", method),
		),
	)
	defer span.End()

	req, err := c.newRequest(ctx, method, path, query, body, accept)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	start := time.Now()
	resp, err := c.breaker.Execute(func() (*response, error) {
		return c.send(req)
	})

	status := 0
	if resp != nil {
		status = resp.status
	}
	var ue *UpstreamError
	if errors.As(err, &ue) {
		status = ue.Status
		if status == http.StatusUnauthorized {
			if inv, ok := c.tokens.(Invalidator); ok {
				inv.Invalidate()
			}
		}
	}

	c.logger.DebugContext(ctx, "upstream request", append(agentctx.LogAttrs(ctx),
		"service", c.service,
		"method", method,
		"path", path,
		"status", status,
		"duration", time.Since(start),
		"error", err,
	)...)
	span.SetAttributes(attribute.Int("http.status_code", status))

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return nil, &UpstreamError{
				Service: c.service,
				Message: "circuit breaker open; service unavailable",
				Err:     err,
			}
		}
		return nil, err
	}

	return resp, nil
}

func (c *Client) newRequest(ctx context.Context, method, path string, query url.Values, body []byte, accept string) (*http.Request, error) {
	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	var rdr io.Reader
	if body != nil {
		rdr = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, u, rdr)
	if err != nil {
		return nil, fmt.Errorf("httpclient: build %s request: %w", c.service, err)
	}

	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if accept != "" {
		req.Header.Set("Accept", accept)
	}
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}
	for k, v := range c.headers {
		req.Header.Set(k, v)
	}

	if c.tokens != nil {
		tok, err := c.tokens.Token(ctx)
		if err != nil {
			var ue *UpstreamError
			if errors.As(err, &ue) {
				return nil, err
			}
			return nil, &UpstreamError{Service: c.service, Message: "authentication failed", Err: err}
		}
		req.Header.Set("Authorization", "Bearer "+tok)
	}

	otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(req.Header))

	return req, nil
}

func (c *Client) send(req *http.Request) (*response, error) {
	resp, err := c.http.Do(req) //nolint:gosec // URL is built from configured base URL.
	if err != nil {
		return nil, &UpstreamError{Service: c.service, Message: "request failed", Err: err}
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBody))
	if err != nil {
		return nil, &UpstreamError{Service: c.service, Status: resp.StatusCode, Message: "read response body", Err: err}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &UpstreamError{
			Service: c.service,
			Status:  resp.StatusCode,
			Message: errorMessage(resp.StatusCode, body),
		}
	}

	return &response{
		status:      resp.StatusCode,
		contentType: resp.Header.Get("Content-Type"),
		body:        body,
	}, nil
}

func (c *Client) decode(resp *response, dest any) error {
	if dest == nil {
		return nil
	}
	if err := json.Unmarshal(resp.body, dest); err != nil {
		return &UpstreamError{
			Service: c.service,
			Status:  resp.status,
			Message: "malformed response",
			Err:     err,
		}
	}
	return nil
}
