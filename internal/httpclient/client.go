package httpclient

import (
	"bytes"
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Client wraps http.Client with security features and retry logic
type Client struct {
	httpClient  *http.Client
	logger      *slog.Logger
	maxAttempts int
	baseBackoff time.Duration
}

// Option customises a Client
type Option func(*Client)

// WithRetry sets the number of attempts and the first backoff delay
func WithRetry(maxAttempts int, baseBackoff time.Duration) Option {
	return func(c *Client) {
		if maxAttempts > 0 {
			c.maxAttempts = maxAttempts
		}
		c.baseBackoff = baseBackoff
	}
}

// WithHTTPClient replaces the underlying http.Client
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// NewClient creates a new HTTP client with security configuration
func NewClient(logger *slog.Logger, opts ...Option) *Client {
	if logger == nil {
		logger = slog.Default()
	}

	// SECURITY: Configure TLS 1.2+ only
	tlsConfig := &tls.Config{
		MinVersion: tls.VersionTLS12,
	}

	transport := &http.Transport{
		TLSClientConfig: tlsConfig,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxIdleConns:          10,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		ForceAttemptHTTP2:     true,
	}

	c := &Client{
		httpClient: &http.Client{
			Transport: transport,
			Timeout:   30 * time.Second,
			// SECURITY: Do NOT follow redirects automatically (prevent open redirect)
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
		logger:      logger,
		maxAttempts: 3,
		baseBackoff: time.Second,
	}
	for _, opt := range opts {
		opt(c)
	}

	return c
}

// RequestConfig contains configuration for an HTTP request
type RequestConfig struct {
	Method  string
	URL     string
	Headers map[string]string
	Body    []byte
	Timeout time.Duration
}

// Response represents an HTTP response
type Response struct {
	StatusCode int
	Body       string
	Headers    http.Header
}

// StatusError is returned for non-2xx responses
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("HTTP error %d: %s", e.StatusCode, truncateBody(e.Body, 200))
}

// Put uploads body to a pre-signed URL. No Content-Type is sent because the
// signature covers an empty one.
func (c *Client) Put(ctx context.Context, targetURL string, body []byte) (*Response, error) {
	return c.Do(ctx, RequestConfig{
		Method: http.MethodPut,
		URL:    targetURL,
		Body:   body,
	})
}

// Do executes an HTTP request with retry logic
func (c *Client) Do(ctx context.Context, config RequestConfig) (*Response, error) {
	if config.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, config.Timeout)
		defer cancel()
	}

	var lastErr error

	for attempt := 0; attempt < c.maxAttempts; attempt++ {
		if attempt > 0 {
			// Exponential backoff: base, 2*base, 4*base, ...
			backoff := c.baseBackoff * time.Duration(1<<uint(attempt-1))
			c.logger.InfoContext(ctx, "retrying HTTP request",
				slog.Int("attempt", attempt+1),
				slog.Int("max_attempts", c.maxAttempts),
				slog.Duration("backoff", backoff),
			)

			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return nil, fmt.Errorf("context cancelled during retry: %w", ctx.Err())
			}
		}

		resp, err := c.doRequest(ctx, config)
		if err == nil {
			return resp, nil
		}

		lastErr = err

		if !isRetryableError(err) {
			c.logger.WarnContext(ctx, "non-retryable error, aborting",
				slog.String("error", err.Error()),
			)
			break
		}

		c.logger.WarnContext(ctx, "retryable error occurred",
			slog.String("error", err.Error()),
			slog.Int("attempt", attempt+1),
		)
	}

	return nil, fmt.Errorf("request failed after %d attempts: %w", c.maxAttempts, lastErr)
}

// doRequest performs a single HTTP request
func (c *Client) doRequest(ctx context.Context, config RequestConfig) (*Response, error) {
	var bodyReader io.Reader
	if config.Body != nil {
		bodyReader = bytes.NewReader(config.Body)
	}

	req, err := http.NewRequestWithContext(ctx, config.Method, config.URL, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.ContentLength = int64(len(config.Body))

	for key, value := range config.Headers {
		req.Header.Set(key, value)
	}

	startTime := time.Now()
	resp, err := c.httpClient.Do(req)
	duration := time.Since(startTime)

	if err != nil {
		c.logger.ErrorContext(ctx, "HTTP request failed",
			slog.String("method", config.Method),
			slog.String("url", redactURL(config.URL)),
			slog.Duration("duration", duration),
			slog.String("error", err.Error()),
		)
		return nil, fmt.Errorf("HTTP request failed: %w", err)
	}
	defer resp.Body.Close()

	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	response := &Response{
		StatusCode: resp.StatusCode,
		Body:       string(bodyBytes),
		Headers:    resp.Header,
	}

	c.logger.InfoContext(ctx, "HTTP request completed",
		slog.String("method", config.Method),
		slog.String("url", redactURL(config.URL)),
		slog.Int("status_code", resp.StatusCode),
		slog.Duration("duration", duration),
	)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return response, &StatusError{StatusCode: resp.StatusCode, Body: response.Body}
	}

	return response, nil
}

// redactURL drops the query string, which carries the pre-signed credentials
func redactURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return "[unparseable url]"
	}
	if u.RawQuery != "" {
		u.RawQuery = "[REDACTED]"
	}
	return u.String()
}

// isRetryableError determines if an error should trigger a retry
func isRetryableError(err error) bool {
	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		return statusErr.StatusCode >= 500 || statusErr.StatusCode == http.StatusTooManyRequests
	}

	if errors.Is(err, context.Canceled) {
		return false
	}

	// Network errors, timeouts and dropped connections
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "timeout") ||
		strings.Contains(msg, "deadline exceeded") ||
		strings.Contains(msg, "connection") ||
		strings.Contains(msg, "EOF")
}

// truncateBody truncates a response body for logging
func truncateBody(body string, maxLen int) string {
	if len(body) <= maxLen {
		return body
	}
	return body[:maxLen] + "..."
}
