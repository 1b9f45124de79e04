package flare

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/flare-systems/flare-splunk/internal/filters"
)

const (
	tenantsPath     = "/firework/v2/me/tenants"
	severitiesPath  = "/firework/v2/me/feed/filters/severities"
	sourceTypesPath = "/firework/v2/me/feed/filters/source_types"
)

// Tenant is a Flare tenant the API key has access to.
type Tenant struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
}

// ValidateAPIKey reports whether the API key can generate a token. A
// rejected key returns false with a nil error.
func (c *Client) ValidateAPIKey(ctx context.Context) (bool, error) {
	if _, err := c.GenerateToken(ctx); err != nil {
		var apiErr *APIError
		if errors.As(err, &apiErr) && apiErr.Unauthorized() {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// Tenants lists the tenants of the API key's user.
func (c *Client) Tenants(ctx context.Context) ([]Tenant, error) {
	raw, err := c.get(ctx, tenantsPath, nil)
	if err != nil {
		return nil, err
	}
	var out struct {
		Tenants []Tenant `json:"tenants"`
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("decode tenants: %w", err)
	}
	return out.Tenants, nil
}

// Severities lists the severities events can be filtered on.
func (c *Client) Severities(ctx context.Context) ([]filters.Severity, error) {
	raw, err := c.get(ctx, severitiesPath, nil)
	if err != nil {
		return nil, err
	}
	var out struct {
		Severities []filters.Severity `json:"severities"`
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("decode severities: %w", err)
	}
	return out.Severities, nil
}

// SourceTypeCategories lists the event source types grouped by category.
func (c *Client) SourceTypeCategories(ctx context.Context) ([]filters.SourceTypeCategory, error) {
	raw, err := c.get(ctx, sourceTypesPath, nil)
	if err != nil {
		return nil, err
	}
	var out struct {
		Categories []filters.SourceTypeCategory `json:"categories"`
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("decode source types: %w", err)
	}
	return out.Categories, nil
}
