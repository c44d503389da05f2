// Package backend is the HTTP client for the ARGUS chat backend.
//
// Endpoints: POST /upload, POST /chat (streamed text), POST /reset,
// GET /metrics and GET /run-simulation (streamed text). Session affinity is
// carried by a cookie jar, the same way a browser would.
package backend

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"time"

	"argus/internal/logging"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"
)

// Version is sent in the User-Agent header.
var Version = "dev"

const (
	// chunkSize bounds a single body read. A read returns whatever has
	// arrived, so chunks follow network arrival, not this size.
	chunkSize = 4096
	// errorBodyLimit bounds how much of a non-2xx body is kept.
	errorBodyLimit = 4096
)

// Client talks to one backend.
type Client struct {
	baseURL    *url.URL
	httpClient *http.Client
	timeout    time.Duration
	userAgent  string
	metrics    singleflight.Group
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client. Its Timeout must be
// zero or streamed replies get cut off.
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) {
		hc := *h
		c.httpClient = &hc
	}
}

// WithTimeout bounds non-streaming calls.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.timeout = d }
}

// WithUserAgent overrides the User-Agent header.
func WithUserAgent(ua string) Option {
	return func(c *Client) { c.userAgent = ua }
}

// New creates a client for baseURL.
func New(baseURL string, opts ...Option) (*Client, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("invalid base url: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("invalid base url %q: scheme and host required", baseURL)
	}

	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create cookie jar: %w", err)
	}

	c := &Client{
		baseURL:    u,
		httpClient: &http.Client{Jar: jar},
		timeout:    30 * time.Second,
		userAgent:  "argus/" + Version,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.httpClient.Jar == nil {
		c.httpClient.Jar = jar
	}
	return c, nil
}

// BaseURL returns the backend root.
func (c *Client) BaseURL() string {
	return c.baseURL.String()
}

func (c *Client) endpoint(path string) string {
	return c.baseURL.String() + path
}

// newRequest builds a request with the common headers and returns its ID.
func (c *Client) newRequest(ctx context.Context, method, path string, body io.Reader, requestID string) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.endpoint(path), body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	if requestID == "" {
		requestID = uuid.NewString()
	}
	req.Header.Set("X-Request-ID", requestID)
	req.Header.Set("User-Agent", c.userAgent)
	return req, nil
}

// withTimeout applies the client timeout when ctx has no deadline.
func (c *Client) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if _, ok := ctx.Deadline(); ok || c.timeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, c.timeout)
}

// Reset discards the server-side session. Called once per client start.
func (c *Client) Reset(ctx context.Context) error {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	req, err := c.newRequest(ctx, http.MethodPost, "/reset", nil, "")
	if err != nil {
		return err
	}
	log := logging.WithRequestID(logging.CategoryAPI, req.Header.Get("X-Request-ID"))

	resp, err := c.httpClient.Do(req)
	if err != nil {
		log.Warn("reset failed: %v", err)
		return fmt.Errorf("reset: %w", err)
	}
	defer resp.Body.Close()

	if err := checkStatus(resp); err != nil {
		log.Warn("reset rejected: %v", err)
		return fmt.Errorf("reset: %w", err)
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	log.Info("session reset")
	return nil
}

// checkStatus turns a non-2xx response into a *StatusError.
func checkStatus(resp *http.Response) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	body, _ := io.ReadAll(io.LimitReader(resp.Body, errorBodyLimit))
	return &StatusError{Code: resp.StatusCode, Body: strings.TrimSpace(string(body))}
}
