package handlers

import (
	"errors"
	"net/http"
	"net/url"
	"testing"

	"github.com/flare-systems/flare-splunk/internal/filters"
	"github.com/flare-systems/flare-splunk/internal/flare"
)

func TestServiceEndpoints(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, nil)
	form := url.Values{"apiKey": {validAPIKey}}

	code, body := env.postForm(t, "/services/fetch_user_tenants", form)
	if code != http.StatusOK {
		t.Fatalf("fetch_user_tenants status = %d, body %s", code, body)
	}
	if got := decode[map[string][]flare.Tenant](t, body)["tenants"]; len(got) != len(testTenants) {
		t.Fatalf("tenants = %+v", got)
	}

	code, body = env.postForm(t, "/services/fetch_severity_filters", form)
	if code != http.StatusOK {
		t.Fatalf("fetch_severity_filters status = %d", code)
	}
	if got := decode[map[string][]filters.Severity](t, body)["severities"]; len(got) != len(testSeverities) {
		t.Fatalf("severities = %+v", got)
	}

	code, body = env.do(t, http.MethodPost, "/services/fetch_source_type_filters", map[string]string{"apiKey": validAPIKey})
	if code != http.StatusOK {
		t.Fatalf("fetch_source_type_filters status = %d", code)
	}
	if got := decode[map[string][]filters.SourceTypeCategory](t, body)["categories"]; len(got) != len(testCategories) {
		t.Fatalf("categories = %+v", got)
	}
}

func TestFetchAPIKeyValidation(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		apiKey     string
		accountErr error
		want       int
	}{
		{name: "valid", apiKey: validAPIKey, want: http.StatusOK},
		{name: "invalid", apiKey: "nope", want: http.StatusBadRequest},
		{name: "missing", want: http.StatusBadRequest},
		{name: "remote failure", apiKey: validAPIKey, accountErr: errors.New("dial tcp: refused"), want: http.StatusBadGateway},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			env := newTestEnv(t, tc.accountErr)
			code, body := env.postForm(t, "/services/fetch_api_key_validation", url.Values{"apiKey": {tc.apiKey}})
			if code != tc.want {
				t.Fatalf("status = %d, want %d; body %s", code, tc.want, body)
			}
		})
	}
}
