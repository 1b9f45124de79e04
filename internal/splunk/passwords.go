package splunk

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"

	"github.com/flare-systems/flare-splunk/internal/settings"
)

type passwordContent struct {
	Realm         string `json:"realm"`
	Username      string `json:"username"`
	ClearPassword string `json:"clear_password"`
}

// ListCredentials lists the passwords visible in the app namespace.
func (c *Client) ListCredentials(ctx context.Context) ([]settings.Credential, error) {
	f, err := c.get(ctx, c.nsPath("storage", "passwords"), listAll)
	if err != nil {
		return nil, err
	}
	out := make([]settings.Credential, 0, len(f.Entry))
	for _, e := range f.Entry {
		var content passwordContent
		if err := json.Unmarshal(e.Content, &content); err != nil {
			return nil, fmt.Errorf("decode password %s: %w", e.Name, err)
		}
		out = append(out, settings.Credential{
			ID:    e.Name,
			Realm: content.Realm,
			Key:   content.Username,
			Value: content.ClearPassword,
		})
	}
	return out, nil
}

// CreateCredential stores value under key in realm. splunkd rejects creating
// a password that already exists.
func (c *Client) CreateCredential(ctx context.Context, realm, key, value string) error {
	_, err := c.post(ctx, c.nsPath("storage", "passwords"), url.Values{
		"name":     {key},
		"password": {value},
		"realm":    {realm},
	})
	return err
}

// DeleteCredential removes the password with the composite id.
func (c *Client) DeleteCredential(ctx context.Context, id string) error {
	return c.delete(ctx, c.nsPath("storage", "passwords", id))
}
