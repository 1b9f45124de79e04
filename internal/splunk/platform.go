package splunk

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"

	"github.com/flare-systems/flare-splunk/internal/settings"
)

// ListIndexes lists the index names visible to the app.
func (c *Client) ListIndexes(ctx context.Context) ([]string, error) {
	f, err := c.get(ctx, c.nsPath("data", "indexes"), listAll)
	if err != nil {
		return nil, err
	}
	return entryNames(f), nil
}

// CreateIndex creates an event index called name.
func (c *Client) CreateIndex(ctx context.Context, name string) error {
	_, err := c.post(ctx, c.nsPath("data", "indexes"), url.Values{"name": {name}})
	return err
}

// SavedSearch returns the saved search called name.
func (c *Client) SavedSearch(ctx context.Context, name string) (settings.SavedSearch, error) {
	f, err := c.get(ctx, c.nsPath("saved", "searches", name), nil)
	if err != nil {
		return settings.SavedSearch{}, err
	}
	if len(f.Entry) == 0 {
		return settings.SavedSearch{}, fmt.Errorf("saved search %q: %w", name, settings.ErrNotFound)
	}
	e := f.Entry[0]
	var content struct {
		Search string `json:"search"`
	}
	if err := json.Unmarshal(e.Content, &content); err != nil {
		return settings.SavedSearch{}, fmt.Errorf("decode saved search %q: %w", name, err)
	}
	path := e.ID
	if u, err := url.Parse(e.ID); err == nil && u.Path != "" {
		path = u.EscapedPath()
	}
	return settings.SavedSearch{Name: e.Name, Search: content.Search, Path: path}, nil
}

// UpdateSavedSearch replaces the query of the saved search called name.
func (c *Client) UpdateSavedSearch(ctx context.Context, name, query string) error {
	_, err := c.post(ctx, c.nsPath("saved", "searches", name), url.Values{"search": {query}})
	return err
}

// ReloadApp asks splunkd to reload the app so input changes take effect.
func (c *Client) ReloadApp(ctx context.Context) error {
	_, err := c.post(ctx, "/services/apps/local/"+url.PathEscape(c.app)+"/_reload", url.Values{})
	return err
}

var (
	_ settings.Vault       = (*Client)(nil)
	_ settings.ConfigStore = (*Client)(nil)
	_ settings.Platform    = (*Client)(nil)
)
