package settings

import (
	"context"
	"maps"
	"slices"
	"strings"
)

type fakeVault struct {
	credentials []Credential
	calls       []string
	listErr     error
}

func (v *fakeVault) ListCredentials(context.Context) ([]Credential, error) {
	v.calls = append(v.calls, "list")
	if v.listErr != nil {
		return nil, v.listErr
	}
	return slices.Clone(v.credentials), nil
}

func (v *fakeVault) CreateCredential(_ context.Context, realm, key, value string) error {
	v.calls = append(v.calls, "create:"+key)
	v.credentials = append(v.credentials, Credential{ID: CredentialID(realm, key), Realm: realm, Key: key, Value: value})
	return nil
}

func (v *fakeVault) DeleteCredential(_ context.Context, id string) error {
	v.calls = append(v.calls, "del:"+id)
	v.credentials = slices.DeleteFunc(v.credentials, func(c Credential) bool { return c.ID == id })
	return nil
}

func (v *fakeVault) mutations() []string {
	out := make([]string, 0, len(v.calls))
	for _, call := range v.calls {
		if call != "list" {
			out = append(out, call)
		}
	}
	return out
}

type fakeConfig struct {
	files map[string]map[string]map[string]string
	calls []string
	// hideCreated keeps newly created files and stanzas out of listings.
	hideCreated bool
}

func newFakeConfig() *fakeConfig {
	return &fakeConfig{files: map[string]map[string]map[string]string{}}
}

func (c *fakeConfig) ListFiles(context.Context) ([]string, error) {
	c.calls = append(c.calls, "list-files")
	return slices.Sorted(maps.Keys(c.files)), nil
}

func (c *fakeConfig) CreateFile(_ context.Context, file string) error {
	c.calls = append(c.calls, "create-file:"+file)
	if !c.hideCreated {
		c.files[file] = map[string]map[string]string{}
	}
	return nil
}

func (c *fakeConfig) ListStanzas(_ context.Context, file string) ([]string, error) {
	c.calls = append(c.calls, "list-stanzas:"+file)
	stanzas, ok := c.files[file]
	if !ok {
		return nil, ErrNotFound
	}
	return slices.Sorted(maps.Keys(stanzas)), nil
}

func (c *fakeConfig) CreateStanza(_ context.Context, file, stanza string) error {
	c.calls = append(c.calls, "create-stanza:"+file+"/"+stanza)
	if !c.hideCreated {
		c.files[file][stanza] = map[string]string{}
	}
	return nil
}

func (c *fakeConfig) StanzaProperties(_ context.Context, file, stanza string) (map[string]string, error) {
	props, ok := c.files[file][stanza]
	if !ok {
		return nil, ErrNotFound
	}
	return maps.Clone(props), nil
}

func (c *fakeConfig) UpdateStanza(_ context.Context, file, stanza string, props map[string]string) error {
	c.calls = append(c.calls, "update:"+file+"/"+stanza)
	maps.Copy(c.files[file][stanza], props)
	return nil
}

func (c *fakeConfig) set(file, stanza, prop, value string) {
	if c.files[file] == nil {
		c.files[file] = map[string]map[string]string{}
	}
	if c.files[file][stanza] == nil {
		c.files[file][stanza] = map[string]string{}
	}
	c.files[file][stanza][prop] = value
}

type fakePlatform struct {
	indexes      []string
	savedSearch  *SavedSearch
	reloads      int
	createdIndex []string
	queries      []string
	// intervalsAtReload records inputs interval values seen at each reload.
	intervalsAtReload []string
	config            *fakeConfig
	ingestStanza      string
}

func (p *fakePlatform) ListIndexes(context.Context) ([]string, error) {
	return slices.Clone(p.indexes), nil
}

func (p *fakePlatform) CreateIndex(_ context.Context, name string) error {
	p.createdIndex = append(p.createdIndex, name)
	p.indexes = append(p.indexes, name)
	return nil
}

func (p *fakePlatform) SavedSearch(_ context.Context, name string) (SavedSearch, error) {
	if p.savedSearch == nil || p.savedSearch.Name != name {
		return SavedSearch{}, ErrNotFound
	}
	return *p.savedSearch, nil
}

func (p *fakePlatform) UpdateSavedSearch(_ context.Context, name, query string) error {
	p.queries = append(p.queries, query)
	p.savedSearch.Search = query
	return nil
}

func (p *fakePlatform) ReloadApp(context.Context) error {
	p.reloads++
	if p.config != nil {
		p.intervalsAtReload = append(p.intervalsAtReload, p.config.files[FileInputs][p.ingestStanza][PropInterval])
	}
	return nil
}

func containsCall(calls []string, prefix string) bool {
	return slices.ContainsFunc(calls, func(c string) bool { return strings.HasPrefix(c, prefix) })
}
