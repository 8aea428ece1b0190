// AquaSync - Water Infrastructure Telemetry Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/aquasync

// Package gateway is the single point of outbound communication with the
// telemetry backend.
//
// The client attaches the bearer token when one resolves, applies a fixed
// per-request timeout, unwraps the backend's {status, data, meta} envelope,
// and classifies every failure into the Kind taxonomy. It never touches
// cache state; that is the query cache's job.
package gateway

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/goccy/go-json"

	"github.com/tomtom215/aquasync/internal/metrics"
	"github.com/tomtom215/aquasync/internal/models"
	"github.com/tomtom215/aquasync/internal/token"
)

// maxErrorBodySize limits how much of an error response body is read for
// diagnostics, preventing unbounded allocation on large error pages.
const maxErrorBodySize = 64 * 1024

// DefaultTimeout is applied when the config leaves the timeout zero.
const DefaultTimeout = 12 * time.Second

// Requester is the request surface the cache and resource layers consume.
// Implemented by *Client and by *BreakerClient.
type Requester interface {
	Request(ctx context.Context, method, path string, params url.Values, body interface{}) ([]byte, error)
}

// Client talks to the telemetry backend over HTTP.
//
// Thread Safety: safe for concurrent use; each call builds its own request.
type Client struct {
	baseURL string // includes the version segment, e.g. http://host/api/v1
	http    *http.Client
	tokens  token.Source
}

// New creates a backend client. baseURL must include the API version
// segment; tokens may be token.None for unauthenticated operation.
func New(baseURL string, timeout time.Duration, tokens token.Source) *Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if tokens == nil {
		tokens = token.None
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: timeout},
		tokens:  tokens,
	}
}

// Request performs an HTTP call against the backend and returns the payload
// bytes with the response envelope already unwrapped.
//
// Error classification:
//   - transport failure or timeout -> KindUnreachable
//   - HTTP 401/403 -> KindUnauthorized
//   - other 4xx -> KindClientError (with body excerpt as Detail)
//   - 5xx -> KindServerError
//
// Context cancellation is passed through unwrapped so callers can swallow
// it on teardown with errors.Is(err, context.Canceled).
func (c *Client) Request(ctx context.Context, method, path string, params url.Values, body interface{}) ([]byte, error) {
	reqURL := c.baseURL + "/" + strings.TrimLeft(path, "/")
	if len(params) > 0 {
		reqURL += "?" + params.Encode()
	}

	var reqBody io.Reader = http.NoBody
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("encode request body: %w", err)
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, reqURL, reqBody)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if tok, ok := c.tokens.Resolve(); ok {
		req.Header.Set("Authorization", "Bearer "+tok)
	}

	entity := entityLabel(path)
	start := time.Now()
	resp, err := c.http.Do(req)
	metrics.GatewayRequestDuration.WithLabelValues(method, entity).Observe(time.Since(start).Seconds())

	if err != nil {
		if errors.Is(err, context.Canceled) {
			return nil, context.Canceled
		}
		metrics.GatewayRequestErrors.WithLabelValues(entity, KindUnreachable.String()).Inc()
		return nil, &Error{Kind: KindUnreachable, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return nil, c.classify(resp, entity)
	}

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		metrics.GatewayRequestErrors.WithLabelValues(entity, KindUnreachable.String()).Inc()
		return nil, &Error{Kind: KindUnreachable, Err: fmt.Errorf("read response: %w", err)}
	}

	return models.UnwrapEnvelope(payload), nil
}

// classify maps a non-2xx response to a typed gateway error.
func (c *Client) classify(resp *http.Response, entity string) error {
	detail := string(readBodyForError(resp.Body))

	var kind Kind
	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		kind = KindUnauthorized
	case resp.StatusCode >= 500:
		kind = KindServerError
		detail = "" // 5xx bodies are rarely useful and often huge
	default:
		kind = KindClientError
	}

	metrics.GatewayRequestErrors.WithLabelValues(entity, kind.String()).Inc()
	return &Error{Kind: kind, Status: resp.StatusCode, Detail: detail}
}

// HealthURL derives the backend health endpoint from the base URL by
// stripping the API version segment and appending /health:
//
//	http://host/api/v1 -> http://host/health
func (c *Client) HealthURL() string {
	u, err := url.Parse(c.baseURL)
	if err != nil {
		return c.baseURL + "/health"
	}
	if idx := strings.Index(u.Path, "/api/"); idx >= 0 {
		u.Path = u.Path[:idx]
	}
	u.Path = strings.TrimRight(u.Path, "/") + "/health"
	return u.String()
}

// Health probes the backend health endpoint. Any non-2xx status or
// transport failure is reported as KindUnreachable.
func (c *Client) Health(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.HealthURL(), http.NoBody)
	if err != nil {
		return fmt.Errorf("build health request: %w", err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return &Error{Kind: KindUnreachable, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return &Error{Kind: KindUnreachable, Status: resp.StatusCode}
	}
	return nil
}

// GetJSON performs a GET through r and decodes the unwrapped payload into T.
func GetJSON[T any](ctx context.Context, r Requester, path string, params url.Values) (T, error) {
	var out T
	payload, err := r.Request(ctx, http.MethodGet, path, params, nil)
	if err != nil {
		return out, err
	}
	if err := json.Unmarshal(payload, &out); err != nil {
		return out, fmt.Errorf("decode %s response: %w", path, err)
	}
	return out, nil
}

// entityLabel derives the metric label from the first path segment, keeping
// metric cardinality bounded regardless of IDs in the path.
func entityLabel(path string) string {
	path = strings.TrimLeft(path, "/")
	if idx := strings.IndexByte(path, '/'); idx >= 0 {
		return path[:idx]
	}
	if path == "" {
		return "root"
	}
	return path
}

// readBodyForError reads at most maxErrorBodySize bytes for diagnostics.
func readBodyForError(r io.Reader) []byte {
	body, err := io.ReadAll(io.LimitReader(r, maxErrorBodySize))
	if err != nil {
		return []byte("(failed to read response body)")
	}
	if len(body) == maxErrorBodySize {
		return append(body, []byte("\n... (truncated)")...)
	}
	return body
}
