// Package flare is a client for the Flare account and event feed API.
package flare

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
	"sync"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"golang.org/x/time/rate"

	"github.com/flare-systems/flare-splunk/internal/metrics"
)

const (
	DefaultBaseURL = "https://api.flare.io"

	defaultTimeout   = 60 * time.Second
	defaultRetryMax  = 3
	maxBodySize      = 8 << 20 // 8 MiB
	tokenLifetime    = 45 * time.Minute
	userAgent        = "flare-go flare-splunk"
	activityInterval = time.Second
)

// Options configures a Client.
type Options struct {
	BaseURL string
	APIKey  string
	// TenantID scopes generated tokens. Zero leaves the token on the
	// account's default tenant.
	TenantID int

	Timeout      time.Duration
	RetryMax     int
	RetryWaitMin time.Duration
	RetryWaitMax time.Duration
	// ActivityInterval paces full event fetches. Defaults to one second.
	ActivityInterval time.Duration
}

// Client calls the Flare API on behalf of one API key. Tokens are generated
// lazily and cached until they are close to expiring.
type Client struct {
	base     string
	apiKey   string
	tenantID int
	http     *retryablehttp.Client
	limiter  *rate.Limiter

	mu          sync.Mutex
	token       string
	tokenExpiry time.Time
	now         func() time.Time
}

// APIError is a non-2xx Flare API response.
type APIError struct {
	StatusCode int
	Method     string
	Path       string
	Body       string
}

func (e *APIError) Error() string {
	body := strings.TrimSpace(e.Body)
	if body == "" {
		return fmt.Sprintf("flare api %s %s: status %d", e.Method, e.Path, e.StatusCode)
	}
	return fmt.Sprintf("flare api %s %s: status %d: %s", e.Method, e.Path, e.StatusCode, body)
}

// Text returns the raw response body.
func (e *APIError) Text() string { return e.Body }

// Unauthorized reports whether the API rejected the credentials.
func (e *APIError) Unauthorized() bool {
	return e.StatusCode == http.StatusUnauthorized || e.StatusCode == http.StatusForbidden
}

// New validates opts and returns a Client.
func New(opts Options) (*Client, error) {
	base := strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/")
	if base == "" {
		base = DefaultBaseURL
	}
	if _, err := url.ParseRequestURI(base); err != nil {
		return nil, fmt.Errorf("parse flare api url: %w", err)
	}
	apiKey := strings.TrimSpace(opts.APIKey)
	if apiKey == "" {
		return nil, errors.New("flare api key is required")
	}

	rc := retryablehttp.NewClient()
	rc.Logger = slog.Default()
	rc.HTTPClient = &http.Client{Timeout: defaultTimeout}
	if opts.Timeout > 0 {
		rc.HTTPClient.Timeout = opts.Timeout
	}
	rc.RetryMax = defaultRetryMax
	if opts.RetryMax > 0 {
		rc.RetryMax = opts.RetryMax
	}
	if opts.RetryWaitMin > 0 {
		rc.RetryWaitMin = opts.RetryWaitMin
	}
	if opts.RetryWaitMax > 0 {
		rc.RetryWaitMax = opts.RetryWaitMax
	}
	// Hand back the last response instead of a generic "giving up" error so
	// the API error body reaches the caller.
	rc.ErrorHandler = retryablehttp.PassthroughErrorHandler
	rc.CheckRetry = checkRetry

	interval := opts.ActivityInterval
	if interval <= 0 {
		interval = activityInterval
	}

	return &Client{
		base:     base,
		apiKey:   apiKey,
		tenantID: opts.TenantID,
		http:     rc,
		limiter:  rate.NewLimiter(rate.Every(interval), 1),
		now:      time.Now,
	}, nil
}

type noRetryKey struct{}

// withoutRetry marks ctx so requests made with it are sent exactly once.
func withoutRetry(ctx context.Context) context.Context {
	return context.WithValue(ctx, noRetryKey{}, true)
}

func checkRetry(ctx context.Context, resp *http.Response, err error) (bool, error) {
	if ctx.Value(noRetryKey{}) != nil {
		return false, ctx.Err()
	}
	return retryablehttp.DefaultRetryPolicy(ctx, resp, err)
}

// GenerateToken exchanges the API key for a short-lived access token.
func (c *Client) GenerateToken(ctx context.Context) (string, error) {
	payload := map[string]any{}
	if c.tenantID != 0 {
		payload["tenant_id"] = c.tenantID
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return "", err
	}
	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodPost, c.base+"/tokens/generate", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Authorization", c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	raw, err := c.send(req)
	if err != nil {
		return "", err
	}
	var out struct {
		Token string `json:"token"`
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return "", fmt.Errorf("decode token response: %w", err)
	}
	if out.Token == "" {
		return "", errors.New("flare api returned an empty token")
	}
	return out.Token, nil
}

func (c *Client) accessToken(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.token != "" && c.now().Before(c.tokenExpiry) {
		return c.token, nil
	}
	token, err := c.GenerateToken(ctx)
	if err != nil {
		return "", err
	}
	c.token = token
	c.tokenExpiry = c.now().Add(tokenLifetime)
	return token, nil
}

func (c *Client) get(ctx context.Context, path string, query url.Values) ([]byte, error) {
	req, err := c.newGet(ctx, path, query)
	if err != nil {
		return nil, err
	}
	return c.send(req)
}

func (c *Client) newGet(ctx context.Context, path string, query url.Values) (*retryablehttp.Request, error) {
	token, err := c.accessToken(ctx)
	if err != nil {
		return nil, err
	}
	endpoint := c.base + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}
	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	return req, nil
}

func (c *Client) send(req *retryablehttp.Request) ([]byte, error) {
	raw, err := c.roundTrip(req)
	metrics.ObserveRemoteRequest("flare", err)
	return raw, err
}

func (c *Client) roundTrip(req *retryablehttp.Request) ([]byte, error) {
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", userAgent)

	res, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer res.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(res.Body, maxBodySize))
	if err != nil {
		return nil, err
	}
	if res.StatusCode < 200 || res.StatusCode >= 300 {
		return nil, &APIError{
			StatusCode: res.StatusCode,
			Method:     req.Method,
			Path:       req.URL.Path,
			Body:       string(raw),
		}
	}
	return raw, nil
}
