package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/sho7650/social-bridge/internal/core"
)

const (
	// DefaultTimeout bounds every outbound request
	DefaultTimeout = 15 * time.Second
	DefaultRPS     = 5
	DefaultBurst   = 10

	maxBodyBytes = 4 << 20
	userAgent    = "social-bridge/1.0"
)

// Options tunes a Client
type Options struct {
	Timeout    time.Duration
	RPS        float64
	Burst      int
	HTTPClient *http.Client
}

// Client performs rate-limited JSON requests and maps failures onto the sync error taxonomy
type Client struct {
	platform string
	http     *http.Client
	limiter  *rate.Limiter
}

// New creates a transport for one platform
func New(platform string, opts Options) *Client {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	rps := opts.RPS
	if rps <= 0 {
		rps = DefaultRPS
	}
	burst := opts.Burst
	if burst <= 0 {
		burst = DefaultBurst
	}

	hc := opts.HTTPClient
	if hc == nil {
		hc = &http.Client{Timeout: timeout}
	}

	return &Client{
		platform: platform,
		http:     hc,
		limiter:  rate.NewLimiter(rate.Limit(rps), burst),
	}
}

// GetJSON issues a GET and decodes the JSON body into out
func (c *Client) GetJSON(ctx context.Context, op, endpoint string, query url.Values, bearer string, out interface{}) error {
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}
	return c.do(ctx, op, http.MethodGet, endpoint, nil, bearer, out)
}

// PostJSON issues a POST with a JSON body and decodes the JSON response into out
func (c *Client) PostJSON(ctx context.Context, op, endpoint string, body interface{}, bearer string, out interface{}) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return core.NewSyncError(core.KindMalformedResponse, c.platform, op, fmt.Errorf("failed to encode request: %w", err))
	}
	return c.do(ctx, op, http.MethodPost, endpoint, payload, bearer, out)
}

func (c *Client) do(ctx context.Context, op, method, endpoint string, payload []byte, bearer string, out interface{}) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return core.NewSyncError(core.KindTransient, c.platform, op, fmt.Errorf("rate limiter: %w", err))
	}

	var body io.Reader
	if payload != nil {
		body = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, body)
	if err != nil {
		return core.NewSyncError(core.KindInvalidURL, c.platform, op, fmt.Errorf("failed to create request: %w", err))
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", userAgent)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return core.NewSyncError(core.KindTransient, c.platform, op, fmt.Errorf("failed to make request: %w", err))
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return core.NewSyncError(core.KindTransient, c.platform, op, fmt.Errorf("failed to read response body: %w", err))
	}

	if kind, failed := Classify(resp.StatusCode, data); failed {
		return core.NewSyncError(kind, c.platform, op, fmt.Errorf("%s %s returned status %d: %s", method, redact(endpoint), resp.StatusCode, snippet(data)))
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return core.NewSyncError(core.KindMalformedResponse, c.platform, op, fmt.Errorf("failed to unmarshal response: %w", err))
	}
	return nil
}

// Classify maps an HTTP status onto an error kind. The bool is false for 2xx.
func Classify(status int, body []byte) (core.ErrorKind, bool) {
	switch {
	case status >= 200 && status < 300:
		return "", false
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return core.KindAuthFailed, true
	case status == http.StatusTooManyRequests:
		return core.KindRateLimited, true
	case status == http.StatusNotFound || status == http.StatusGone:
		return core.KindNotFound, true
	case status == http.StatusBadRequest && mentionsNotFound(body):
		return core.KindNotFound, true
	case status == http.StatusRequestTimeout || status >= 500:
		return core.KindTransient, true
	default:
		return core.KindMalformedResponse, true
	}
}

// XRPC servers answer a missing record with 400 and an error name
func mentionsNotFound(body []byte) bool {
	var xrpc struct {
		Error   string `json:"error"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(body, &xrpc); err != nil {
		return false
	}
	return strings.Contains(xrpc.Error, "NotFound") || strings.Contains(strings.ToLower(xrpc.Message), "not found")
}

func redact(endpoint string) string {
	u, err := url.Parse(endpoint)
	if err != nil {
		return endpoint
	}
	u.RawQuery = ""
	return u.String()
}

func snippet(body []byte) string {
	s := strings.TrimSpace(string(body))
	if len(s) > 200 {
		s = s[:200] + "..."
	}
	return s
}
