// Package settingstest provides in-memory settings backends for tests.
package settingstest

import (
	"context"
	"maps"
	"slices"
	"sync"

	"github.com/flare-systems/flare-splunk/internal/settings"
)

// Vault is an in-memory settings.Vault.
type Vault struct {
	mu          sync.Mutex
	credentials []settings.Credential
}

func (v *Vault) ListCredentials(context.Context) ([]settings.Credential, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	return slices.Clone(v.credentials), nil
}

func (v *Vault) CreateCredential(_ context.Context, realm, key, value string) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.credentials = append(v.credentials, settings.Credential{ID: settings.CredentialID(realm, key), Realm: realm, Key: key, Value: value})
	return nil
}

func (v *Vault) DeleteCredential(_ context.Context, id string) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.credentials = slices.DeleteFunc(v.credentials, func(c settings.Credential) bool { return c.ID == id })
	return nil
}

// Config is an in-memory settings.ConfigStore.
type Config struct {
	mu    sync.Mutex
	files map[string]map[string]map[string]string
}

func NewConfig() *Config {
	return &Config{files: map[string]map[string]map[string]string{}}
}

func (c *Config) ListFiles(context.Context) ([]string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return slices.Sorted(maps.Keys(c.files)), nil
}

func (c *Config) CreateFile(_ context.Context, file string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.files[file]; !ok {
		c.files[file] = map[string]map[string]string{}
	}
	return nil
}

func (c *Config) ListStanzas(_ context.Context, file string) ([]string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	stanzas, ok := c.files[file]
	if !ok {
		return nil, settings.ErrNotFound
	}
	return slices.Sorted(maps.Keys(stanzas)), nil
}

func (c *Config) CreateStanza(_ context.Context, file, stanza string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	stanzas, ok := c.files[file]
	if !ok {
		return settings.ErrNotFound
	}
	if _, ok := stanzas[stanza]; !ok {
		stanzas[stanza] = map[string]string{}
	}
	return nil
}

func (c *Config) StanzaProperties(_ context.Context, file, stanza string) (map[string]string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	props, ok := c.files[file][stanza]
	if !ok {
		return nil, settings.ErrNotFound
	}
	return maps.Clone(props), nil
}

func (c *Config) UpdateStanza(_ context.Context, file, stanza string, props map[string]string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	stanzaProps, ok := c.files[file][stanza]
	if !ok {
		return settings.ErrNotFound
	}
	maps.Copy(stanzaProps, props)
	return nil
}

// Set writes one property, creating its file and stanza.
func (c *Config) Set(file, stanza, prop, value string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.files[file] == nil {
		c.files[file] = map[string]map[string]string{}
	}
	if c.files[file][stanza] == nil {
		c.files[file][stanza] = map[string]string{}
	}
	c.files[file][stanza][prop] = value
}

// Get returns one property, or "".
func (c *Config) Get(file, stanza, prop string) string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.files[file][stanza][prop]
}

// Platform is an in-memory settings.Platform.
type Platform struct {
	mu      sync.Mutex
	Indexes []string
	Saved   *settings.SavedSearch
	Reloads int
}

func (p *Platform) ListIndexes(context.Context) ([]string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return slices.Clone(p.Indexes), nil
}

func (p *Platform) CreateIndex(_ context.Context, name string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Indexes = append(p.Indexes, name)
	return nil
}

func (p *Platform) SavedSearch(_ context.Context, name string) (settings.SavedSearch, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.Saved == nil || p.Saved.Name != name {
		return settings.SavedSearch{}, settings.ErrNotFound
	}
	return *p.Saved, nil
}

func (p *Platform) UpdateSavedSearch(_ context.Context, name, query string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.Saved == nil || p.Saved.Name != name {
		return settings.ErrNotFound
	}
	p.Saved.Search = query
	return nil
}

func (p *Platform) ReloadApp(context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Reloads++
	return nil
}

// NewStore returns a settings.Store over a fresh Vault and Config.
func NewStore() (*settings.Store, *Vault, *Config) {
	vault := &Vault{}
	config := NewConfig()
	store, err := settings.NewStore(vault, config, "")
	if err != nil {
		panic(err)
	}
	return store, vault, config
}

// NewApp returns a settings.App over in-memory backends.
func NewApp(platform *Platform) (*settings.App, *Config) {
	store, _, config := NewStore()
	if platform == nil {
		platform = &Platform{}
	}
	app, err := settings.NewApp(store, platform, "")
	if err != nil {
		panic(err)
	}
	return app, config
}
