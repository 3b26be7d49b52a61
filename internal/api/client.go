// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package api is the HTTP client for the chatbot admin backend.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"go.uber.org/zap"
)

// Configuration constants for the backend API.
const (
	// DefaultBaseURL is used when KBCHAT_API_URL is unset.
	DefaultBaseURL = "http://localhost:8000"

	// BaseURLEnv selects the backend origin.
	BaseURLEnv = "KBCHAT_API_URL"

	// DefaultTimeout bounds every non-streaming request.
	DefaultTimeout = 10 * time.Second

	// MaxResponseSize is the maximum allowed response body size.
	// SECURITY: Response size limit prevents memory exhaustion attacks.
	MaxResponseSize = 10 * 1024 * 1024 // 10MB limit

	userAgent = "kbchat/0.1.0"
)

var (
	// PERFORMANCE: Connection pooling reduces TCP handshake overhead.
	sharedTransport = &http.Transport{
		Proxy:               http.ProxyFromEnvironment,
		MaxIdleConns:        100,
		MaxIdleConnsPerHost: 10,
		IdleConnTimeout:     90 * time.Second,
		TLSHandshakeTimeout: 10 * time.Second,
	}

	// sharedStreamingClient is used for streaming requests (no timeout, context-controlled).
	sharedStreamingClient = &http.Client{
		Transport: sharedTransport,
	}
)

// BaseURLFromEnv returns KBCHAT_API_URL or DefaultBaseURL.
func BaseURLFromEnv() string {
	if v := strings.TrimSpace(os.Getenv(BaseURLEnv)); v != "" {
		return v
	}
	return DefaultBaseURL
}

// =============================================================================
// TOKEN STORE
// =============================================================================

// TokenStore holds the bearer token between runs.
type TokenStore interface {
	Token() string
	SetToken(token string) error
	ClearToken() error
}

// =============================================================================
// CLIENT
// =============================================================================

// Client talks to the backend REST and streaming endpoints.
//
// A 401 from any endpoint clears the stored token and invokes the
// unauthorized handler before the error is returned to the caller.
type Client struct {
	baseURL      string
	httpClient   *http.Client
	streamClient *http.Client
	tokens       TokenStore
	onUnauth     func()
	logger       *zap.Logger
}

// NewClient creates a client for the given base URL. An empty URL selects
// BaseURLFromEnv.
func NewClient(baseURL string) *Client {
	if baseURL == "" {
		baseURL = BaseURLFromEnv()
	}
	return &Client{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		httpClient: &http.Client{
			Transport: sharedTransport,
			Timeout:   DefaultTimeout,
		},
		streamClient: sharedStreamingClient,
		logger:       zap.NewNop(),
	}
}

// WithBaseURL sets a custom base URL for the API.
func (c *Client) WithBaseURL(u string) *Client {
	c.baseURL = strings.TrimSuffix(u, "/")
	return c
}

// WithTimeout sets the timeout applied to non-streaming requests.
func (c *Client) WithTimeout(timeout time.Duration) *Client {
	c.httpClient = &http.Client{Transport: c.httpClient.Transport, Timeout: timeout}
	return c
}

// WithHTTPClient replaces both underlying HTTP clients. The streaming
// client keeps the transport but never gets a timeout.
func (c *Client) WithHTTPClient(hc *http.Client) *Client {
	c.httpClient = hc
	c.streamClient = &http.Client{Transport: hc.Transport}
	return c
}

// WithTokenStore sets where the bearer token is read from and cleared.
func (c *Client) WithTokenStore(ts TokenStore) *Client {
	c.tokens = ts
	return c
}

// WithUnauthorizedHandler sets the hook run after a 401 clears the token.
func (c *Client) WithUnauthorizedHandler(fn func()) *Client {
	c.onUnauth = fn
	return c
}

// WithLogger sets the logger used for request tracing.
func (c *Client) WithLogger(l *zap.Logger) *Client {
	if l != nil {
		c.logger = l.Named("api")
	}
	return c
}

// BaseURL returns the configured backend origin.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// Timeout returns the non-streaming request timeout.
func (c *Client) Timeout() time.Duration {
	return c.httpClient.Timeout
}

// =============================================================================
// REQUEST PLUMBING
// =============================================================================

// newRequest builds a request with auth and content headers.
func (c *Client) newRequest(ctx context.Context, method, path string, query url.Values, body any) (*http.Request, error) {
	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	var rdr io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request: %w", err)
		}
		rdr = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, u, rdr)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", userAgent)
	c.authorize(req)
	return req, nil
}

// authorize attaches the bearer token when one is stored.
func (c *Client) authorize(req *http.Request) {
	if c.tokens == nil {
		return
	}
	if tok := strings.TrimSpace(c.tokens.Token()); tok != "" {
		req.Header.Set("Authorization", "Bearer "+tok)
	}
}

// send executes req on hc and maps transport and status failures to the
// error taxonomy. On success the caller owns resp.Body.
func (c *Client) send(hc *http.Client, req *http.Request) (*http.Response, error) {
	op := req.Method + " " + req.URL.Path
	start := time.Now()

	resp, err := hc.Do(req)
	if err != nil {
		if ctxErr := req.Context().Err(); errors.Is(ctxErr, context.Canceled) {
			return nil, &CancellationError{Err: ctxErr}
		}
		c.logger.Debug("request failed", zap.String("op", op), zap.Error(err))
		return nil, &NetworkError{Op: op, Err: err}
	}

	// CLOUD: Secure logging - only logs status code and duration, no body or headers.
	c.logger.Debug("response",
		zap.String("op", op),
		zap.Int("status", resp.StatusCode),
		zap.Duration("elapsed", time.Since(start)),
	)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		defer resp.Body.Close()
		body, _ := readResponse(resp)
		return nil, c.handleErrorResponse(resp.StatusCode, body)
	}
	return resp, nil
}

// handleErrorResponse converts an HTTP error response and runs the global
// 401 policy.
func (c *Client) handleErrorResponse(status int, body []byte) error {
	err := parseErrorResponse(status, body)
	if status == http.StatusUnauthorized {
		if c.tokens != nil {
			if cerr := c.tokens.ClearToken(); cerr != nil {
				c.logger.Warn("failed to clear token", zap.Error(cerr))
			}
		}
		if c.onUnauth != nil {
			c.onUnauth()
		}
	}
	return err
}

// readResponse reads the response body with size limits to prevent memory exhaustion.
//
// SECURITY: Response size limit prevents memory exhaustion attacks.
func readResponse(resp *http.Response) ([]byte, error) {
	limitedReader := io.LimitReader(resp.Body, MaxResponseSize+1)
	body, err := io.ReadAll(limitedReader)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	if int64(len(body)) > MaxResponseSize {
		return nil, fmt.Errorf("response exceeded maximum size of %d bytes", MaxResponseSize)
	}
	return body, nil
}

// do performs a non-streaming JSON request and decodes the body into out
// (which may be nil).
func (c *Client) do(ctx context.Context, method, path string, query url.Values, body, out any) error {
	req, err := c.newRequest(ctx, method, path, query, body)
	if err != nil {
		return err
	}
	resp, err := c.send(c.httpClient, req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	data, err := readResponse(resp)
	if err != nil {
		return &NetworkError{Op: method + " " + path, Err: err}
	}
	if out == nil || len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("failed to parse response from %s %s: %w", method, path, err)
	}
	return nil
}

// OpenStream issues a streaming POST and returns the 2xx response whose body
// the caller must close. Streaming requests are bounded only by ctx.
func (c *Client) OpenStream(ctx context.Context, path string, body any) (*http.Response, error) {
	req, err := c.newRequest(ctx, http.MethodPost, path, nil, body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("Cache-Control", "no-cache")
	return c.send(c.streamClient, req)
}

// =============================================================================
// RESPONSE ENVELOPE
// =============================================================================

// Envelope is the backend's standard {success, message, timestamp, data}
// wrapper.
type Envelope struct {
	Success   *bool           `json:"success"`
	Message   string          `json:"message"`
	Timestamp string          `json:"timestamp,omitempty"`
	Data      json.RawMessage `json:"data,omitempty"`
}

// doEnvelope performs a request whose response is wrapped in an Envelope and
// decodes Data into data (which may be nil).
func (c *Client) doEnvelope(ctx context.Context, method, path string, query url.Values, body, data any) (*Envelope, error) {
	var env Envelope
	if err := c.do(ctx, method, path, query, body, &env); err != nil {
		return nil, err
	}
	if env.Success != nil && !*env.Success {
		return &env, &HTTPStatusError{Status: http.StatusOK, Detail: env.Message}
	}
	if data != nil && len(env.Data) > 0 && string(env.Data) != "null" {
		if err := json.Unmarshal(env.Data, data); err != nil {
			return &env, fmt.Errorf("failed to parse %s %s data: %w", method, path, err)
		}
	}
	return &env, nil
}

// pathEscape escapes a single path segment.
func pathEscape(s string) string {
	return url.PathEscape(s)
}
