package blenderkit

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/BlenderKit/blenderkit-asset-tasks/internal/logging"
)

const (
	defaultTimeout  = 60 * time.Second
	defaultAttempts = 5
	userAgent       = "blenderkit-asset-tasks"
)

// StatusError reports a non-2xx response from the asset database.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	body := e.Body
	if len(body) > 300 {
		body = body[:300] + "..."
	}
	return fmt.Sprintf("server returned %d: %s", e.Code, body)
}

// Option configures the client.
type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client (primarily for tests).
func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) {
		if httpClient != nil {
			c.http = httpClient
		}
	}
}

// WithLogger attaches a logger for request diagnostics.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		if logger != nil {
			c.logger = logging.WithComponent(logger, "blenderkit")
		}
	}
}

// WithAttempts overrides the retry budget.
func WithAttempts(attempts int) Option {
	return func(c *Client) {
		if attempts > 0 {
			c.attempts = attempts
		}
	}
}

// Client talks to the BlenderKit asset database REST API.
type Client struct {
	server    string
	apiKey    string
	http      *http.Client
	logger    *slog.Logger
	attempts  int
	retryBase time.Duration
}

// New constructs a client for the given server root, e.g.
// "https://www.blenderkit.com". The API key may be empty for read-only use.
func New(serverURL, apiKey string, opts ...Option) (*Client, error) {
	serverURL = strings.TrimRight(strings.TrimSpace(serverURL), "/")
	if serverURL == "" {
		return nil, errors.New("server url required")
	}
	client := &Client{
		server:    serverURL,
		apiKey:    apiKey,
		http:      &http.Client{Timeout: defaultTimeout},
		attempts:  defaultAttempts,
		retryBase: time.Second,
	}
	for _, opt := range opts {
		opt(client)
	}
	return client, nil
}

// Server returns the configured server root.
func (c *Client) Server() string { return c.server }

func (c *Client) apiURL(path string) string {
	return c.server + "/api/v1" + path
}

func (c *Client) headers(req *http.Request) {
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
}

// doJSON issues a request with a retry budget, decoding the JSON response
// into out when non-nil. Transient failures (network errors, 5xx, 429) back
// off quadratically: attempt² seconds between tries.
func (c *Client) doJSON(ctx context.Context, method, url string, payload, out any) error {
	var body []byte
	if payload != nil {
		encoded, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		body = encoded
	}

	var lastErr error
	for attempt := 1; attempt <= c.attempts; attempt++ {
		if attempt > 1 {
			delay := time.Duration(attempt*attempt) * c.retryBase
			if c.logger != nil {
				c.logger.Warn("retrying request", "url", url, "attempt", attempt, "delay", delay)
			}
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return ctx.Err()
			}
		}

		var reader io.Reader
		if body != nil {
			reader = bytes.NewReader(body)
		}
		req, err := http.NewRequestWithContext(ctx, method, url, reader)
		if err != nil {
			return fmt.Errorf("build request: %w", err)
		}
		c.headers(req)
		if body != nil {
			req.Header.Set("Content-Type", "application/json")
		}

		resp, err := c.http.Do(req)
		if err != nil {
			lastErr = fmt.Errorf("%s %s: %w", method, url, err)
			continue
		}

		respBody, readErr := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
		resp.Body.Close()
		if readErr != nil {
			lastErr = fmt.Errorf("read response: %w", readErr)
			continue
		}

		if resp.StatusCode >= 200 && resp.StatusCode < 300 {
			if out == nil || len(respBody) == 0 {
				return nil
			}
			if err := json.Unmarshal(respBody, out); err != nil {
				return fmt.Errorf("decode response from %s: %w", url, err)
			}
			return nil
		}

		statusErr := &StatusError{Code: resp.StatusCode, Body: string(respBody)}
		if !retryable(resp.StatusCode) {
			return statusErr
		}
		lastErr = statusErr
		if resp.StatusCode == http.StatusTooManyRequests {
			if wait := retryAfter(resp); wait > 0 {
				select {
				case <-time.After(wait):
				case <-ctx.Done():
					return ctx.Err()
				}
			}
		}
	}
	return fmt.Errorf("request failed after %d attempts: %w", c.attempts, lastErr)
}

func retryable(status int) bool {
	return status >= 500 || status == http.StatusTooManyRequests
}

func retryAfter(resp *http.Response) time.Duration {
	value := resp.Header.Get("Retry-After")
	if value == "" {
		return 0
	}
	if seconds, err := strconv.Atoi(value); err == nil && seconds > 0 {
		return time.Duration(seconds) * time.Second
	}
	return 0
}
