// Package settings persists the Flare application settings in the host
// platform's credential vault and configuration-file store.
package settings

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/flare-systems/flare-splunk/internal/metrics"
)

// DefaultRealm namespaces every credential written by the application.
// DefaultRealm groups the app's credentials in the vault.
const DefaultRealm = "flare_integration_realm"

var (
	// ErrNotFound is returned by collaborators when a configuration file,
	// stanza or saved search does not exist.
	ErrNotFound = errors.New("not found")

	// ErrNotVisible is returned when a freshly created file or stanza does not
	// show up when the parent is listed again.
	ErrNotVisible = errors.New("created entry is not visible")
)

// Credential is a secret as listed by a Vault.
type Credential struct {
	ID    string
	Realm string
	Key   string
	Value string
}

// Vault stores secrets. It has no in-place update.
type Vault interface {
	ListCredentials(ctx context.Context) ([]Credential, error)
	CreateCredential(ctx context.Context, realm, key, value string) error
	DeleteCredential(ctx context.Context, id string) error
}

// ConfigStore is a hierarchical file -> stanza -> property store.
type ConfigStore interface {
	ListFiles(ctx context.Context) ([]string, error)
	CreateFile(ctx context.Context, file string) error
	ListStanzas(ctx context.Context, file string) ([]string, error)
	CreateStanza(ctx context.Context, file, stanza string) error
	StanzaProperties(ctx context.Context, file, stanza string) (map[string]string, error)
	UpdateStanza(ctx context.Context, file, stanza string, props map[string]string) error
}

// CredentialID returns the composite identifier of key within realm.
func CredentialID(realm, key string) string {
	return realm + ":" + key + ":"
}

// Store adds upsert and default-on-absence semantics over a Vault and a
// ConfigStore.
type Store struct {
	vault  Vault
	config ConfigStore
	realm  string
}

// NewStore returns a Store writing credentials under realm. An empty realm
// selects DefaultRealm.
func NewStore(vault Vault, config ConfigStore, realm string) (*Store, error) {
	if vault == nil {
		return nil, errors.New("settings vault is required")
	}
	if config == nil {
		return nil, errors.New("settings config store is required")
	}
	realm = strings.TrimSpace(realm)
	if realm == "" {
		realm = DefaultRealm
	}
	return &Store{vault: vault, config: config, realm: realm}, nil
}

// Realm returns the credential realm.
func (s *Store) Realm() string { return s.realm }

// Config returns the underlying configuration store.
func (s *Store) Config() ConfigStore { return s.config }

// UpsertCredential replaces the credential stored under key. An empty value
// clears the credential.
func (s *Store) UpsertCredential(ctx context.Context, key, value string) error {
	err := s.upsertCredential(ctx, key, value)
	metrics.ObserveSettingsWrite("credential", err)
	return err
}

func (s *Store) upsertCredential(ctx context.Context, key, value string) error {
	id := CredentialID(s.realm, key)
	credentials, err := s.vault.ListCredentials(ctx)
	if err != nil {
		return fmt.Errorf("list credentials: %w", err)
	}
	if slices.ContainsFunc(credentials, func(c Credential) bool { return c.ID == id }) {
		if err := s.vault.DeleteCredential(ctx, id); err != nil {
			return fmt.Errorf("delete credential %s: %w", key, err)
		}
	}
	if value == "" {
		return nil
	}
	if err := s.vault.CreateCredential(ctx, s.realm, key, value); err != nil {
		return fmt.Errorf("create credential %s: %w", key, err)
	}
	return nil
}

// FetchCredential returns the value stored under key, or def when there is
// none.
func (s *Store) FetchCredential(ctx context.Context, key, def string) (string, error) {
	id := CredentialID(s.realm, key)
	credentials, err := s.vault.ListCredentials(ctx)
	if err != nil {
		return def, fmt.Errorf("list credentials: %w", err)
	}
	for _, credential := range credentials {
		if credential.ID == id {
			return credential.Value, nil
		}
	}
	return def, nil
}

// UpsertConfigProperty writes props into stanza of file, creating the file and
// the stanza when they are missing.
func (s *Store) UpsertConfigProperty(ctx context.Context, file, stanza string, props map[string]string) error {
	err := s.upsertConfigProperty(ctx, file, stanza, props)
	metrics.ObserveSettingsWrite("property", err)
	return err
}

func (s *Store) upsertConfigProperty(ctx context.Context, file, stanza string, props map[string]string) error {
	files, err := s.config.ListFiles(ctx)
	if err != nil {
		return fmt.Errorf("list configuration files: %w", err)
	}
	if !slices.Contains(files, file) {
		if err := s.config.CreateFile(ctx, file); err != nil {
			return fmt.Errorf("create configuration file %s: %w", file, err)
		}
		files, err = s.config.ListFiles(ctx)
		if err != nil {
			return fmt.Errorf("list configuration files: %w", err)
		}
		if !slices.Contains(files, file) {
			return fmt.Errorf("configuration file %s: %w", file, ErrNotVisible)
		}
	}

	stanzas, err := s.config.ListStanzas(ctx, file)
	if err != nil {
		return fmt.Errorf("list stanzas of %s: %w", file, err)
	}
	if !slices.Contains(stanzas, stanza) {
		if err := s.config.CreateStanza(ctx, file, stanza); err != nil {
			return fmt.Errorf("create stanza %s/%s: %w", file, stanza, err)
		}
		stanzas, err = s.config.ListStanzas(ctx, file)
		if err != nil {
			return fmt.Errorf("list stanzas of %s: %w", file, err)
		}
		if !slices.Contains(stanzas, stanza) {
			return fmt.Errorf("stanza %s/%s: %w", file, stanza, ErrNotVisible)
		}
	}

	if err := s.config.UpdateStanza(ctx, file, stanza, props); err != nil {
		return fmt.Errorf("update stanza %s/%s: %w", file, stanza, err)
	}
	return nil
}

// FetchConfigProperty returns property of stanza in file, or def when the
// stanza has no such property. The stanza itself must exist.
func (s *Store) FetchConfigProperty(ctx context.Context, file, stanza, property, def string) (string, error) {
	props, err := s.config.StanzaProperties(ctx, file, stanza)
	if err != nil {
		return def, fmt.Errorf("read stanza %s/%s: %w", file, stanza, err)
	}
	if value, ok := props[property]; ok {
		return value, nil
	}
	return def, nil
}
