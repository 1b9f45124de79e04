package splunk

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/flare-systems/flare-splunk/internal/settings"
)

// ListFiles lists the configuration files of the app.
func (c *Client) ListFiles(ctx context.Context) ([]string, error) {
	f, err := c.get(ctx, c.nsPath("properties"), listAll)
	if err != nil {
		return nil, err
	}
	return entryNames(f), nil
}

// CreateFile creates an empty configuration file.
func (c *Client) CreateFile(ctx context.Context, file string) error {
	_, err := c.post(ctx, c.nsPath("properties"), url.Values{"__conf": {file}})
	return err
}

// ListStanzas lists the stanzas of file.
func (c *Client) ListStanzas(ctx context.Context, file string) ([]string, error) {
	f, err := c.get(ctx, c.nsPath("configs", "conf-"+file), listAll)
	if err != nil {
		return nil, err
	}
	return entryNames(f), nil
}

// CreateStanza creates an empty stanza in file.
func (c *Client) CreateStanza(ctx context.Context, file, stanza string) error {
	_, err := c.post(ctx, c.nsPath("configs", "conf-"+file), url.Values{"name": {stanza}})
	return err
}

// StanzaProperties returns the properties of stanza. splunkd metadata keys
// (eai:*) are left out and non-string values are formatted.
func (c *Client) StanzaProperties(ctx context.Context, file, stanza string) (map[string]string, error) {
	f, err := c.get(ctx, c.nsPath("configs", "conf-"+file, stanza), nil)
	if err != nil {
		return nil, err
	}
	if len(f.Entry) == 0 {
		return nil, fmt.Errorf("stanza %s/%s: %w", file, stanza, settings.ErrNotFound)
	}
	var content map[string]any
	if err := json.Unmarshal(f.Entry[0].Content, &content); err != nil {
		return nil, fmt.Errorf("decode stanza %s/%s: %w", file, stanza, err)
	}
	props := make(map[string]string, len(content))
	for k, v := range content {
		if strings.HasPrefix(k, "eai:") {
			continue
		}
		props[k] = formatValue(v)
	}
	return props, nil
}

// UpdateStanza writes props into stanza, leaving other properties alone.
func (c *Client) UpdateStanza(ctx context.Context, file, stanza string, props map[string]string) error {
	form := url.Values{}
	for k, v := range props {
		form.Set(k, v)
	}
	_, err := c.post(ctx, c.nsPath("configs", "conf-"+file, stanza), form)
	return err
}

func formatValue(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case bool:
		return strconv.FormatBool(t)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	default:
		raw, err := json.Marshal(t)
		if err != nil {
			return fmt.Sprint(t)
		}
		return string(raw)
	}
}
