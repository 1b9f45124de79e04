// Package splunk is a client for the splunkd management REST API. It covers
// the endpoints the Flare application needs to persist its settings:
// storage/passwords, configuration files, indexes, saved searches and app
// reloads.
package splunk

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/flare-systems/flare-splunk/internal/metrics"
	"github.com/flare-systems/flare-splunk/internal/settings"
)

const (
	DefaultBaseURL = "https://localhost:8089"
	defaultOwner   = "nobody"
	defaultTimeout = 30 * time.Second
	maxBodySize    = 4 << 20 // 4 MiB

	AuthSchemeSplunk = "Splunk"
	AuthSchemeBearer = "Bearer"
)

// Options configures a Client.
type Options struct {
	BaseURL            string
	Token              string
	AuthScheme         string
	App                string
	InsecureSkipVerify bool
	Timeout            time.Duration
}

// A Client talks to one splunkd instance on behalf of one app. Use New to
// build one.
type Client struct {
	base  *url.URL
	auth  string
	app   string
	owner string
	http  *http.Client
}

// Message is one entry of the "messages" list splunkd returns with errors.
type Message struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// APIError is a non-2xx splunkd response.
type APIError struct {
	StatusCode int
	Method     string
	Path       string
	Messages   []Message
}

func (e *APIError) Error() string {
	texts := make([]string, 0, len(e.Messages))
	for _, m := range e.Messages {
		if t := strings.TrimSpace(m.Text); t != "" {
			texts = append(texts, t)
		}
	}
	if len(texts) == 0 {
		return fmt.Sprintf("splunk api %s %s: status %d", e.Method, e.Path, e.StatusCode)
	}
	return fmt.Sprintf("splunk api %s %s: status %d: %s", e.Method, e.Path, e.StatusCode, strings.Join(texts, "; "))
}

// Text returns the raw message text, suitable for showing to an operator.
func (e *APIError) Text() string {
	texts := make([]string, 0, len(e.Messages))
	for _, m := range e.Messages {
		texts = append(texts, m.Text)
	}
	return strings.Join(texts, "\n")
}

type entry struct {
	Name    string          `json:"name"`
	ID      string          `json:"id"`
	Content json.RawMessage `json:"content"`
}

type feed struct {
	Entry    []entry   `json:"entry"`
	Messages []Message `json:"messages"`
}

// New validates opts and returns a Client.
func New(opts Options) (*Client, error) {
	base := strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/")
	if base == "" {
		base = DefaultBaseURL
	}
	u, err := url.Parse(base)
	if err != nil {
		return nil, fmt.Errorf("parse splunk url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("splunk url must be http or https, got %q", base)
	}

	token := strings.TrimSpace(opts.Token)
	if token == "" {
		return nil, errors.New("splunk token is required")
	}
	scheme := strings.TrimSpace(opts.AuthScheme)
	switch {
	case scheme == "", strings.EqualFold(scheme, AuthSchemeSplunk):
		scheme = AuthSchemeSplunk
	case strings.EqualFold(scheme, AuthSchemeBearer):
		scheme = AuthSchemeBearer
	default:
		return nil, fmt.Errorf("unsupported splunk auth scheme %q", opts.AuthScheme)
	}

	app := strings.TrimSpace(opts.App)
	if app == "" {
		app = settings.DefaultAppName
	}

	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	httpClient := &http.Client{Timeout: timeout}
	if opts.InsecureSkipVerify {
		transport := http.DefaultTransport.(*http.Transport).Clone()
		transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true} // #nosec G402 -- splunkd ships a self-signed certificate
		httpClient.Transport = transport
	}

	return &Client{
		base:  u,
		auth:  scheme + " " + token,
		app:   app,
		owner: defaultOwner,
		http:  httpClient,
	}, nil
}

// App returns the app namespace the client writes to.
func (c *Client) App() string { return c.app }

// nsPath returns the escaped path of an endpoint in the app namespace.
func (c *Client) nsPath(segments ...string) string {
	parts := []string{"servicesNS", url.PathEscape(c.owner), url.PathEscape(c.app)}
	for _, s := range segments {
		parts = append(parts, url.PathEscape(s))
	}
	return "/" + strings.Join(parts, "/")
}

func (c *Client) endpoint(escapedPath string, query url.Values) (string, error) {
	u, err := url.Parse(strings.TrimRight(c.base.String(), "/") + escapedPath)
	if err != nil {
		return "", err
	}
	q := url.Values{}
	for k, v := range query {
		q[k] = v
	}
	q.Set("output_mode", "json")
	u.RawQuery = q.Encode()
	return u.String(), nil
}

func (c *Client) get(ctx context.Context, escapedPath string, query url.Values) (*feed, error) {
	return c.do(ctx, http.MethodGet, escapedPath, query, nil)
}

func (c *Client) post(ctx context.Context, escapedPath string, form url.Values) (*feed, error) {
	return c.do(ctx, http.MethodPost, escapedPath, nil, form)
}

func (c *Client) delete(ctx context.Context, escapedPath string) error {
	_, err := c.do(ctx, http.MethodDelete, escapedPath, nil, nil)
	return err
}

func (c *Client) do(ctx context.Context, method, escapedPath string, query, form url.Values) (*feed, error) {
	out, err := c.roundTrip(ctx, method, escapedPath, query, form)
	metrics.ObserveRemoteRequest("splunk", err)
	return out, err
}

func (c *Client) roundTrip(ctx context.Context, method, escapedPath string, query, form url.Values) (*feed, error) {
	endpoint, err := c.endpoint(escapedPath, query)
	if err != nil {
		return nil, err
	}

	var body io.Reader
	if form != nil {
		body = strings.NewReader(form.Encode())
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", c.auth)
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", "flare-splunk")
	if form != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}

	res, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer res.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(res.Body, maxBodySize))
	if err != nil {
		return nil, err
	}

	out := &feed{}
	if len(strings.TrimSpace(string(raw))) > 0 {
		if err := json.Unmarshal(raw, out); err != nil && res.StatusCode < 400 {
			return nil, fmt.Errorf("decode splunk response: %w", err)
		}
	}

	if res.StatusCode >= 400 {
		apiErr := &APIError{
			StatusCode: res.StatusCode,
			Method:     method,
			Path:       req.URL.Path,
			Messages:   out.Messages,
		}
		if res.StatusCode == http.StatusNotFound {
			return nil, fmt.Errorf("%w: %w", settings.ErrNotFound, apiErr)
		}
		return nil, apiErr
	}
	return out, nil
}

func entryNames(f *feed) []string {
	names := make([]string, 0, len(f.Entry))
	for _, e := range f.Entry {
		names = append(names, e.Name)
	}
	return names
}

// listAll asks splunkd for every entry instead of the default page of 30.
var listAll = url.Values{"count": {"0"}}
