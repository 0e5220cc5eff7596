// Package swapapi talks to the external swap and order execution service.
package swapapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/m3rciful/swapbot/core/logger"
	"github.com/m3rciful/swapbot/core/telegram/netutil"
)

const (
	defaultTimeout      = 15 * time.Second
	defaultRetryBackoff = 500 * time.Millisecond
	maxErrorBody        = 4 << 10
	apiKeyHeader        = "X-API-Key"
	idempotencyHeader   = "Idempotency-Key"
)

// ErrNotConfigured is returned by New when the base URL is missing.
var ErrNotConfigured = errors.New("swapapi: base url is required")

// APIError is a non-2xx response from the service.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("swapapi: http %d", e.StatusCode)
	}
	return fmt.Sprintf("swapapi: http %d: %s", e.StatusCode, e.Message)
}

// Config configures a Client.
type Config struct {
	BaseURL     string
	APIKey      string
	Timeout     time.Duration
	ReadRetries int
	// RetryBackoff is the linear backoff step between read retries.
	RetryBackoff time.Duration
	// Transport overrides the base round tripper; used by tests.
	Transport http.RoundTripper
}

// Client is the HTTP client of the swap service. Reads are retried on
// transient network errors; trade and cancel submissions get one attempt.
type Client struct {
	base   *url.URL
	apiKey string
	http   *http.Client
}

// New validates cfg and builds a client.
func New(cfg Config) (*Client, error) {
	raw := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if raw == "" {
		return nil, ErrNotConfigured
	}
	base, err := url.Parse(raw)
	if err != nil || base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("swapapi: invalid base url %q", cfg.BaseURL)
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	backoff := cfg.RetryBackoff
	if backoff <= 0 {
		backoff = defaultRetryBackoff
	}
	baseTransport := cfg.Transport
	if baseTransport == nil {
		baseTransport = &http.Transport{
			Proxy:                 http.ProxyFromEnvironment,
			DialContext:           (&net.Dialer{Timeout: 5 * time.Second, KeepAlive: 30 * time.Second}).DialContext,
			MaxIdleConns:          20,
			IdleConnTimeout:       30 * time.Second,
			TLSHandshakeTimeout:   5 * time.Second,
			ExpectContinueTimeout: time.Second,
		}
	}
	retry := &netutil.RetryTransport{
		Base:           baseTransport,
		MaxRetries:     cfg.ReadRetries,
		Backoff:        backoff,
		IdempotentOnly: true,
		OnRetry: func(req *http.Request, attempt int, err error) {
			logger.Warn(req.Context(), "swapapi", "swapapi.request",
				slog.String("status", "retry"),
				slog.String("method", req.Method),
				slog.String("path", req.URL.Path),
				slog.Int("attempt", attempt),
				slog.String("err", err.Error()),
			)
		},
	}
	return &Client{
		base:   base,
		apiKey: cfg.APIKey,
		http:   &http.Client{Timeout: timeout, Transport: retry},
	}, nil
}

// do sends a JSON request and decodes a JSON response into out.
func (c *Client) do(ctx context.Context, method, path string, query url.Values, headers map[string]string, in, out any) error {
	u := c.base.JoinPath(path)
	if len(query) > 0 {
		u.RawQuery = query.Encode()
	}

	var body io.Reader
	if in != nil {
		payload, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("swapapi: encode request: %w", err)
		}
		body = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, u.String(), body)
	if err != nil {
		return fmt.Errorf("swapapi: build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.apiKey != "" {
		req.Header.Set(apiKeyHeader, c.apiKey)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		c.log(ctx, method, path, 0, start, err)
		return fmt.Errorf("swapapi: %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := &APIError{StatusCode: resp.StatusCode, Message: errorMessage(resp.Body)}
		c.log(ctx, method, path, resp.StatusCode, start, apiErr)
		return apiErr
	}
	c.log(ctx, method, path, resp.StatusCode, start, nil)
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("swapapi: decode %s response: %w", path, err)
	}
	return nil
}

// errorMessage extracts {"error": "..."} from a failed response, or the raw text.
func errorMessage(r io.Reader) string {
	data, _ := io.ReadAll(io.LimitReader(r, maxErrorBody))
	var body struct {
		Error   string `json:"error"`
		Message string `json:"message"`
	}
	if json.Unmarshal(data, &body) == nil {
		if body.Error != "" {
			return body.Error
		}
		if body.Message != "" {
			return body.Message
		}
	}
	return strings.TrimSpace(string(data))
}

func (c *Client) log(ctx context.Context, method, path string, code int, start time.Time, err error) {
	attrs := []slog.Attr{
		slog.String("status", logger.Status(err)),
		slog.String("method", method),
		slog.String("path", path),
		slog.Duration("duration", logger.Took(start)),
	}
	if code != 0 {
		attrs = append(attrs, slog.Int("http_status", code))
	}
	if err != nil {
		attrs = append(attrs, slog.String("err", logger.SanitizeLimit(err.Error(), 256)))
		logger.Warn(ctx, "swapapi", "swapapi.request", attrs...)
		return
	}
	logger.Debug(ctx, "swapapi", "swapapi.request", attrs...)
}
