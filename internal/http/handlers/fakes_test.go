package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"

	"github.com/alexedwards/scs/v2"
	"github.com/labstack/echo/v5"

	"github.com/flare-systems/flare-splunk/internal/filters"
	"github.com/flare-systems/flare-splunk/internal/flare"
	"github.com/flare-systems/flare-splunk/internal/ingest"
	"github.com/flare-systems/flare-splunk/internal/settings"
	"github.com/flare-systems/flare-splunk/internal/settings/settingstest"
)

const validAPIKey = "valid-key"

var (
	testSeverities = []filters.Severity{
		{Value: "info", Label: "Info", Color: "#0000ff"},
		{Value: "high", Label: "High", Color: "#ff8800"},
		{Value: "critical", Label: "Critical", Color: "#ff0000"},
	}
	testCategories = []filters.SourceTypeCategory{
		{Value: "Category1", Types: []filters.SourceType{{Value: "t1"}, {Value: "t2"}}},
		{Value: "Category2", Types: []filters.SourceType{{Value: "t3"}, {Value: "t4"}}},
	}
	testTenants = []flare.Tenant{{ID: 11, Name: "Acme"}, {ID: 22, Name: "Globex"}}
)

type fakeAccount struct {
	apiKey string
	err    error
}

func (a fakeAccount) ValidateAPIKey(context.Context) (bool, error) {
	return a.apiKey == validAPIKey, a.err
}

func (a fakeAccount) Tenants(context.Context) ([]flare.Tenant, error) {
	return testTenants, a.err
}

func (a fakeAccount) Severities(context.Context) ([]filters.Severity, error) {
	return testSeverities, a.err
}

func (a fakeAccount) SourceTypeCategories(context.Context) ([]filters.SourceTypeCategory, error) {
	return testCategories, a.err
}

type fakeIngest struct {
	mu         sync.Mutex
	res        ingest.Result
	err        error
	calls      int
	cancelable bool
}

func (f *fakeIngest) Run(ctx context.Context) (ingest.Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.cancelable = ctx.Done() != nil
	return f.res, f.err
}

type testEnv struct {
	h        *Handlers
	platform *settingstest.Platform
	config   *settingstest.Config
	server   *httptest.Server
	client   *http.Client
}

func newTestEnv(t *testing.T, accountErr error) *testEnv {
	t.Helper()

	return newTestEnvWithPlatform(t, &settingstest.Platform{
		Indexes: []string{"_internal", "main", "flare"},
		Saved:   &settings.SavedSearch{Name: settings.SavedSearchName, Path: "/servicesNS/nobody/flare/saved/searches/Flare%20Search"},
	}, accountErr)
}

func newTestEnvWithPlatform(t *testing.T, platform *settingstest.Platform, accountErr error) *testEnv {
	t.Helper()

	app, config := settingstest.NewApp(platform)
	h := &Handlers{
		App:   app,
		State: ingest.NewStateStore(app.Store()),
		Accounts: func(apiKey string) (Account, error) {
			return fakeAccount{apiKey: apiKey, err: accountErr}, nil
		},
		Sessions: scs.New(),
		Version:  "test",
	}

	e := echo.New()
	e.GET("/api/setup", h.HandleSetupState)
	e.POST("/api/setup/api-key", h.HandleSetupAPIKey)
	e.POST("/api/setup/preferences", h.HandleSetupPreferences)
	e.POST("/api/setup/index", h.HandleSetupIndex)
	e.POST("/api/setup/restart", h.HandleSetupRestart)
	e.GET("/api/indexes", h.HandleIndexes)
	e.GET("/api/status", h.HandleStatus)
	e.POST("/api/ingest", h.HandleIngest)
	e.POST("/services/fetch_user_tenants", h.HandleFetchUserTenants())
	e.POST("/services/fetch_api_key_validation", h.HandleFetchAPIKeyValidation)
	e.POST("/services/fetch_severity_filters", h.HandleFetchSeverityFilters())
	e.POST("/services/fetch_source_type_filters", h.HandleFetchSourceTypeFilters())

	server := httptest.NewServer(h.Sessions.LoadAndSave(e))
	t.Cleanup(server.Close)

	jar, err := cookiejar.New(nil)
	if err != nil {
		t.Fatalf("cookiejar.New() error = %v", err)
	}
	return &testEnv{h: h, platform: platform, config: config, server: server, client: &http.Client{Jar: jar}}
}

func (env *testEnv) do(t *testing.T, method, path string, body any) (int, []byte) {
	t.Helper()

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("json.Marshal() error = %v", err)
		}
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequest(method, env.server.URL+path, reader)
	if err != nil {
		t.Fatalf("http.NewRequest() error = %v", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return env.send(t, req)
}

func (env *testEnv) postForm(t *testing.T, path string, form url.Values) (int, []byte) {
	t.Helper()

	req, err := http.NewRequest(http.MethodPost, env.server.URL+path, strings.NewReader(form.Encode()))
	if err != nil {
		t.Fatalf("http.NewRequest() error = %v", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return env.send(t, req)
}

func (env *testEnv) send(t *testing.T, req *http.Request) (int, []byte) {
	t.Helper()

	resp, err := env.client.Do(req)
	if err != nil {
		t.Fatalf("%s %s error = %v", req.Method, req.URL.Path, err)
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read body error = %v", err)
	}
	return resp.StatusCode, data
}

func decode[T any](t *testing.T, data []byte) T {
	t.Helper()

	var v T
	if err := json.Unmarshal(data, &v); err != nil {
		t.Fatalf("json.Unmarshal(%s) error = %v", data, err)
	}
	return v
}
