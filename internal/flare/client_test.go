package flare

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"slices"
	"strings"
	"sync/atomic"
	"testing"
	"time"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()

	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	c, err := New(Options{
		BaseURL:          srv.URL,
		APIKey:           "fw_key",
		TenantID:         111,
		RetryWaitMin:     time.Millisecond,
		RetryWaitMax:     2 * time.Millisecond,
		ActivityInterval: time.Millisecond,
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return c
}

// tokenHandler answers /tokens/generate and delegates everything else.
func tokenHandler(t *testing.T, generated *atomic.Int32, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/tokens/generate" {
			generated.Add(1)
			if r.Method != http.MethodPost {
				t.Errorf("token method = %s", r.Method)
			}
			if got := r.Header.Get("Authorization"); got != "fw_key" {
				t.Errorf("token Authorization = %q", got)
			}
			var body map[string]any
			if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
				t.Errorf("decode token body: %v", err)
			}
			if body["tenant_id"] != float64(111) {
				t.Errorf("token body = %v", body)
			}
			io.WriteString(w, `{"token":"access_token"}`)
			return
		}
		if got := r.Header.Get("Authorization"); got != "Bearer access_token" {
			t.Errorf("Authorization = %q", got)
		}
		if ua := r.Header.Get("User-Agent"); !strings.HasSuffix(ua, "flare-splunk") {
			t.Errorf("User-Agent = %q", ua)
		}
		next(w, r)
	}
}

func TestNewValidation(t *testing.T) {
	t.Parallel()

	if _, err := New(Options{}); err == nil {
		t.Fatal("expected error for missing api key")
	}
	c, err := New(Options{APIKey: "k"})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if c.base != DefaultBaseURL {
		t.Fatalf("base = %q", c.base)
	}
}

func TestTenantsCachesToken(t *testing.T) {
	t.Parallel()

	var generated atomic.Int32
	c := newTestClient(t, tokenHandler(t, &generated, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != tenantsPath {
			t.Errorf("path = %s", r.URL.Path)
		}
		io.WriteString(w, `{"tenants":[{"id":1,"name":"Acme"},{"id":2,"name":"Globex"}]}`)
	}))

	for range 2 {
		tenants, err := c.Tenants(t.Context())
		if err != nil {
			t.Fatalf("Tenants() error = %v", err)
		}
		want := []Tenant{{ID: 1, Name: "Acme"}, {ID: 2, Name: "Globex"}}
		if !slices.Equal(tenants, want) {
			t.Fatalf("Tenants() = %v, want %v", tenants, want)
		}
	}
	if generated.Load() != 1 {
		t.Fatalf("tokens generated = %d, want 1", generated.Load())
	}
}

func TestValidateAPIKey(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		status  int
		want    bool
		wantErr bool
	}{
		{name: "valid", status: http.StatusOK, want: true},
		{name: "unauthorized", status: http.StatusUnauthorized, want: false},
		{name: "forbidden", status: http.StatusForbidden, want: false},
		{name: "bad request", status: http.StatusBadRequest, wantErr: true},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tc.status)
				io.WriteString(w, `{"token":"access_token"}`)
			})
			got, err := c.ValidateAPIKey(t.Context())
			if (err != nil) != tc.wantErr {
				t.Fatalf("ValidateAPIKey() error = %v, wantErr %v", err, tc.wantErr)
			}
			if got != tc.want {
				t.Fatalf("ValidateAPIKey() = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestFeedQueryValues(t *testing.T) {
	t.Parallel()

	q := FeedQuery{
		From:        "cursor",
		StartDate:   time.Date(2026, 3, 4, 15, 0, 0, 0, time.UTC),
		Severities:  []string{"high", "critical"},
		SourceTypes: []string{"leak"},
	}
	v := q.values()
	if v.Get("lite") != "true" || v.Get("size") != "50" || v.Get("from") != "cursor" {
		t.Fatalf("values = %v", v)
	}
	if v.Get("time") != "2026-03-04@" {
		t.Fatalf("time = %q", v.Get("time"))
	}
	if !slices.Equal(v["severity"], []string{"high", "critical"}) || !slices.Equal(v["type"], []string{"leak"}) {
		t.Fatalf("filters = %v", v)
	}

	if v := (FeedQuery{}).values(); v.Has("from") || v.Has("severity") || v.Has("type") {
		t.Fatalf("empty query values = %v", v)
	}
}

func TestEventsPaginates(t *testing.T) {
	t.Parallel()

	var generated atomic.Int32
	c := newTestClient(t, tokenHandler(t, &generated, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Query().Get("from") {
		case "":
			io.WriteString(w, `{"items":[{"id":"a"},{"id":"b"}],"next":"n1"}`)
		case "n1":
			io.WriteString(w, `{"items":[{"id":"c"}],"next":"n2"}`)
		case "n2":
			io.WriteString(w, `{"items":[],"next":null}`)
		default:
			t.Errorf("unexpected cursor %q", r.URL.Query().Get("from"))
		}
	}))

	var ids, cursors []string
	for ev, err := range c.Events(t.Context(), FeedQuery{}) {
		if err != nil {
			t.Fatalf("Events() error = %v", err)
		}
		ids = append(ids, ev.Event["id"].(string))
		cursors = append(cursors, ev.Next)
	}
	if !slices.Equal(ids, []string{"a", "b", "c"}) {
		t.Fatalf("ids = %v", ids)
	}
	if !slices.Equal(cursors, []string{"n1", "n1", "n2"}) {
		t.Fatalf("cursors = %v", cursors)
	}
}

func TestEventsFullEventData(t *testing.T) {
	t.Parallel()

	var generated atomic.Int32
	c := newTestClient(t, tokenHandler(t, &generated, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case feedPath:
			io.WriteString(w, `{"items":[{"metadata":{"uid":"some_uid"},"data":"foo"}],"next":"n1"}`)
		case activityPath + "some_uid":
			io.WriteString(w, `{"metadata":{"uid":"some_uid","severity":"low"},"tenant_metadata":{"severity":null,"notes":null,"tags":[]},"identifiers":[{"id":31337,"name":"credit card"}]}`)
		default:
			t.Errorf("unexpected path %s", r.URL.Path)
		}
	}))

	var got []Event
	for ev, err := range c.Events(t.Context(), FeedQuery{FullEventData: true, From: "n1"}) {
		if err != nil {
			t.Fatalf("Events() error = %v", err)
		}
		got = append(got, ev.Event)
	}
	if len(got) != 1 {
		t.Fatalf("events = %v", got)
	}
	if _, ok := got[0]["tenant_metadata"]; ok {
		t.Fatalf("empty tenant_metadata was not pruned: %v", got[0])
	}
	if _, ok := got[0]["identifiers"]; !ok {
		t.Fatalf("identifiers missing: %v", got[0])
	}
}

func TestEventsFullEventDataRequiresMetadata(t *testing.T) {
	t.Parallel()

	var generated atomic.Int32
	c := newTestClient(t, tokenHandler(t, &generated, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != feedPath {
			t.Errorf("activity fetched for item without metadata: %s", r.URL.Path)
		}
		io.WriteString(w, `{"items":[{"not_metadata":{"uid":"some_uid"}}],"next":"n1"}`)
	}))

	for _, err := range c.Events(t.Context(), FeedQuery{FullEventData: true}) {
		if err == nil {
			t.Fatal("expected an error for an item without metadata")
		}
	}
}

func TestActivityGivesUpAfterThreeTries(t *testing.T) {
	t.Parallel()

	var generated, activityCalls atomic.Int32
	c := newTestClient(t, tokenHandler(t, &generated, func(w http.ResponseWriter, r *http.Request) {
		activityCalls.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))

	_, err := c.Activity(t.Context(), "some_uid")
	if err == nil || err.Error() != "failed to fetch full event data for some_uid after 3 tries" {
		t.Fatalf("Activity() error = %v", err)
	}
	if activityCalls.Load() != 3 {
		t.Fatalf("activity calls = %d, want 3", activityCalls.Load())
	}
}

func TestRetriesServerErrors(t *testing.T) {
	t.Parallel()

	var generated, calls atomic.Int32
	c := newTestClient(t, tokenHandler(t, &generated, func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		io.WriteString(w, `{"tenants":[]}`)
	}))

	if _, err := c.Tenants(t.Context()); err != nil {
		t.Fatalf("Tenants() error = %v", err)
	}
	if calls.Load() != 3 {
		t.Fatalf("calls = %d, want 3", calls.Load())
	}
}

func TestAPIErrorCarriesBody(t *testing.T) {
	t.Parallel()

	var generated atomic.Int32
	c := newTestClient(t, tokenHandler(t, &generated, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		io.WriteString(w, `{"error":"no such tenant"}`)
	}))

	_, err := c.Tenants(t.Context())
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("Tenants() error = %v, want *APIError", err)
	}
	if apiErr.StatusCode != http.StatusNotFound || !strings.Contains(apiErr.Text(), "no such tenant") {
		t.Fatalf("APIError = %+v", apiErr)
	}
}

func TestPruneEmpty(t *testing.T) {
	t.Parallel()

	in := map[string]any{
		"a": "",
		"b": nil,
		"c": []any{},
		"d": map[string]any{"x": nil},
		"e": []any{"", "keep", map[string]any{}},
		"f": 0.0,
		"g": false,
	}
	got := pruneEmpty(in).(map[string]any)
	if len(got) != 3 {
		t.Fatalf("pruneEmpty() = %v", got)
	}
	if e := got["e"].([]any); len(e) != 1 || e[0] != "keep" {
		t.Fatalf("pruneEmpty() list = %v", e)
	}
}
