package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"callshield/pkg/logger"
)

const defaultTimeout = 5 * time.Second

// ErrMalformedResponse wraps JSON decode failures of a 2xx body.
var ErrMalformedResponse = errors.New("backend: malformed response")

// HTTPError is returned by Send for non-2xx statuses.
type HTTPError struct {
	Method string
	Path   string
	Status int
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("backend: %s %s returned %d", e.Method, e.Path, e.Status)
}

type Options struct {
	BaseURL string
	APIKey  string

	// Timeout applies to every request. Defaults to 5s. A supplied HTTPClient
	// keeps its own non-zero Timeout.
	Timeout time.Duration

	// Platform is reported on device registration. Defaults to "mobile".
	Platform string

	Logger     *slog.Logger
	HTTPClient *http.Client
	Now        func() time.Time
}

// Client talks JSON to the routing backend. Base URL and credential can be
// swapped at runtime with UpdateConfig; each request uses the values current
// when it was sent.
type Client struct {
	mu      sync.RWMutex
	baseURL string
	apiKey  string

	http     *http.Client
	platform string
	log      *slog.Logger
	now      func() time.Time
}

func New(opts Options) *Client {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	hc := opts.HTTPClient
	switch {
	case hc == nil:
		hc = &http.Client{Timeout: timeout}
	case hc.Timeout == 0:
		withTimeout := *hc
		withTimeout.Timeout = timeout
		hc = &withTimeout
	}
	platform := opts.Platform
	if platform == "" {
		platform = "mobile"
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &Client{
		baseURL:  normalizeBaseURL(opts.BaseURL),
		apiKey:   strings.TrimSpace(opts.APIKey),
		http:     hc,
		platform: platform,
		log:      logger.OrDefault(opts.Logger),
		now:      now,
	}
}

// UpdateConfig replaces base URL and credential. An empty apiKey removes the
// Authorization header from subsequent requests.
func (c *Client) UpdateConfig(baseURL, apiKey string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.baseURL = normalizeBaseURL(baseURL)
	c.apiKey = strings.TrimSpace(apiKey)
}

// BaseURL returns the current base URL.
func (c *Client) BaseURL() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.baseURL
}

func (c *Client) snapshot() (string, string) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.baseURL, c.apiKey
}

// Send issues one JSON request. body and out may be nil. It returns the HTTP
// status (0 on transport failure), an *HTTPError for non-2xx statuses, and an
// error wrapping ErrMalformedResponse when out cannot be decoded.
func (c *Client) Send(ctx context.Context, method, path string, body, out any) (int, error) {
	base, key := c.snapshot()

	var rdr io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return 0, fmt.Errorf("backend: encode %s %s: %w", method, path, err)
		}
		rdr = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, base+path, rdr)
	if err != nil {
		return 0, fmt.Errorf("backend: build %s %s: %w", method, path, err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if key != "" {
		req.Header.Set("Authorization", "Bearer "+key)
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		c.log.Warn("backend request failed",
			"method", method,
			"path", path,
			"duration_ms", time.Since(start).Milliseconds(),
			"err", err,
		)
		return 0, fmt.Errorf("backend: %s %s: %w", method, path, err)
	}
	defer func() {
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
	}()

	c.log.Info("backend request",
		"method", method,
		"path", path,
		"status", resp.StatusCode,
		"duration_ms", time.Since(start).Milliseconds(),
	)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return resp.StatusCode, &HTTPError{Method: method, Path: path, Status: resp.StatusCode}
	}
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return resp.StatusCode, fmt.Errorf("%w: %s %s: %v", ErrMalformedResponse, method, path, err)
		}
	}
	return resp.StatusCode, nil
}

func (c *Client) timestamp() string {
	return c.now().UTC().Format(TimestampLayout)
}

func normalizeBaseURL(s string) string {
	return strings.TrimRight(strings.TrimSpace(s), "/")
}
