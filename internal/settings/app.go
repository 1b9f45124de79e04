package settings

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strconv"
	"strings"
)

// Splunk configuration files, stanzas and properties the app reads and writes.
const (
	DefaultAppName = "flare"

	FileApp          = "app"
	StanzaInstall    = "install"
	StanzaLauncher   = "launcher"
	PropIsConfigured = "is_configured"
	PropVersion      = "version"

	FileInputs   = "inputs"
	PropIndex    = "index"
	PropInterval = "interval"
	PropPassAuth = "passAuth"

	// DefaultIndexName is reported when the input stanza names no index.
	DefaultIndexName = "main"
	SavedSearchName  = "Flare Search"

	firstRunInterval = "1"
	cronInterval     = "* * * * *"
)

var ignoredIndexNames = []string{"history", "summary", "splunklogger"}

// SavedSearch is the subset of a saved search the application touches.
type SavedSearch struct {
	Name   string
	Search string
	Path   string
}

// Platform exposes the host platform operations that are not settings
// storage.
type Platform interface {
	ListIndexes(ctx context.Context) ([]string, error)
	CreateIndex(ctx context.Context, name string) error
	SavedSearch(ctx context.Context, name string) (SavedSearch, error)
	UpdateSavedSearch(ctx context.Context, name, query string) error
	ReloadApp(ctx context.Context) error
}

// Preferences is everything one wizard submission persists.
type Preferences struct {
	APIKey              string
	TenantIDs           []int
	IndexName           string
	IngestFullEventData bool
	SeveritiesFilter    string
	SourceTypesFilter   string
	PassAuthUser        string
}

// Normalized trims text fields and sorts tenant ids without duplicates.
func (p Preferences) Normalized() Preferences {
	out := p
	out.APIKey = strings.TrimSpace(out.APIKey)
	out.IndexName = strings.TrimSpace(out.IndexName)
	out.PassAuthUser = strings.TrimSpace(out.PassAuthUser)
	out.TenantIDs = slices.Compact(slices.Sorted(slices.Values(out.TenantIDs)))
	return out
}

// Validate reports the first missing required field.
func (p Preferences) Validate() error {
	p = p.Normalized()
	if p.APIKey == "" {
		return errors.New("Flare API key is required")
	}
	if len(p.TenantIDs) == 0 {
		return errors.New("at least one tenant must be selected")
	}
	if p.IndexName == "" {
		return errors.New("Splunk index is required")
	}
	return nil
}

// App persists and reads the Flare application configuration.
type App struct {
	store    *Store
	platform Platform
	name     string
}

// NewApp returns an App for the application called name.
func NewApp(store *Store, platform Platform, name string) (*App, error) {
	if store == nil {
		return nil, errors.New("settings store is required")
	}
	if platform == nil {
		return nil, errors.New("platform is required")
	}
	name = strings.TrimSpace(name)
	if name == "" {
		name = DefaultAppName
	}
	return &App{store: store, platform: platform, name: name}, nil
}

// Store returns the settings store.
func (a *App) Store() *Store { return a.store }

// Name returns the application name.
func (a *App) Name() string { return a.name }

// IngestStanza returns the inputs.conf stanza of the ingestion script.
func (a *App) IngestStanza() string {
	return "script://$SPLUNK_HOME/etc/apps/" + a.name + "/bin/cron_job_ingest_events.py"
}

// SaveConfiguration persists p and schedules ingestion. On the first
// configuration the ingestion script is run once right away before the
// regular cron interval is installed.
func (a *App) SaveConfiguration(ctx context.Context, p Preferences) error {
	if err := p.Validate(); err != nil {
		return err
	}
	p = p.Normalized()

	tenantIDs, err := encodeTenantIDs(p.TenantIDs)
	if err != nil {
		return err
	}
	credentials := []struct{ key, value string }{
		{KeyAPIKey, p.APIKey},
		{KeyTenantIDs, tenantIDs},
		{KeyIngestFullEventData, strconv.FormatBool(p.IngestFullEventData)},
		{KeySeveritiesFilter, p.SeveritiesFilter},
		{KeySourceTypesFilter, p.SourceTypesFilter},
	}
	for _, c := range credentials {
		if err := a.store.UpsertCredential(ctx, c.key, c.value); err != nil {
			return err
		}
	}

	inputProps := map[string]string{PropIndex: p.IndexName}
	if p.PassAuthUser != "" {
		inputProps[PropPassAuth] = p.PassAuthUser
	}
	if err := a.store.UpsertConfigProperty(ctx, FileInputs, a.IngestStanza(), inputProps); err != nil {
		return err
	}

	first, err := a.IsFirstConfiguration(ctx)
	if err != nil {
		return err
	}
	if first {
		if err := a.setIngestInterval(ctx, firstRunInterval); err != nil {
			return err
		}
	}

	if err := a.updateSavedSearchQuery(ctx, fmt.Sprintf("source=%s index=%s", a.name, p.IndexName)); err != nil {
		return err
	}
	if err := a.store.UpsertConfigProperty(ctx, FileApp, StanzaInstall, map[string]string{PropIsConfigured: "true"}); err != nil {
		return err
	}
	if err := a.platform.ReloadApp(ctx); err != nil {
		return fmt.Errorf("reload app: %w", err)
	}

	if first {
		if err := a.setIngestInterval(ctx, cronInterval); err != nil {
			return err
		}
		if err := a.platform.ReloadApp(ctx); err != nil {
			return fmt.Errorf("reload app: %w", err)
		}
	}

	slog.Info("configuration saved", "tenants", len(p.TenantIDs), "index", p.IndexName, "first_configuration", first)
	return nil
}

func (a *App) setIngestInterval(ctx context.Context, interval string) error {
	return a.store.UpsertConfigProperty(ctx, FileInputs, a.IngestStanza(), map[string]string{PropInterval: interval})
}

func (a *App) updateSavedSearchQuery(ctx context.Context, query string) error {
	if _, err := a.platform.SavedSearch(ctx, SavedSearchName); err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil
		}
		return fmt.Errorf("saved search %q: %w", SavedSearchName, err)
	}
	if err := a.platform.UpdateSavedSearch(ctx, SavedSearchName, query); err != nil {
		return fmt.Errorf("update saved search %q: %w", SavedSearchName, err)
	}
	return nil
}

// IsFirstConfiguration reports whether the wizard has never completed. A
// missing install stanza counts as never completed.
func (a *App) IsFirstConfiguration(ctx context.Context) (bool, error) {
	value, err := a.store.FetchConfigProperty(ctx, FileApp, StanzaInstall, PropIsConfigured, "unknown")
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return true, nil
		}
		return false, err
	}
	return value != "true" && value != "1", nil
}

// CurrentIndexName returns the index the ingestion script writes to.
func (a *App) CurrentIndexName(ctx context.Context) (string, error) {
	value, err := a.store.FetchConfigProperty(ctx, FileInputs, a.IngestStanza(), PropIndex, DefaultIndexName)
	if errors.Is(err, ErrNotFound) {
		return DefaultIndexName, nil
	}
	return value, err
}

// VersionName returns the application version, or def.
func (a *App) VersionName(ctx context.Context, def string) (string, error) {
	value, err := a.store.FetchConfigProperty(ctx, FileApp, StanzaLauncher, PropVersion, def)
	if errors.Is(err, ErrNotFound) {
		return def, nil
	}
	return value, err
}

// AvailableIndexNames lists indexes events can be ingested into, leaving out
// internal ones.
func (a *App) AvailableIndexNames(ctx context.Context) ([]string, error) {
	names, err := a.platform.ListIndexes(ctx)
	if err != nil {
		return nil, fmt.Errorf("list indexes: %w", err)
	}
	out := make([]string, 0, len(names))
	for _, name := range names {
		if strings.HasPrefix(name, "_") || slices.Contains(ignoredIndexNames, name) {
			continue
		}
		out = append(out, name)
	}
	return out, nil
}

// CreateFlareIndex creates the application index on the first configuration
// when it does not already exist.
func (a *App) CreateFlareIndex(ctx context.Context) error {
	first, err := a.IsFirstConfiguration(ctx)
	if err != nil || !first {
		return err
	}
	names, err := a.AvailableIndexNames(ctx)
	if err != nil {
		return err
	}
	if slices.Contains(names, a.name) {
		return nil
	}
	if err := a.platform.CreateIndex(ctx, a.name); err != nil {
		return fmt.Errorf("create index %s: %w", a.name, err)
	}
	return nil
}

// SearchURL returns the Splunk web path that opens the Flare saved search.
func (a *App) SearchURL(ctx context.Context) (string, error) {
	search, err := a.platform.SavedSearch(ctx, SavedSearchName)
	if err != nil {
		return "", err
	}
	return "/app/" + a.name + "/@go?s=" + search.Path, nil
}

// RedirectURL returns the Splunk web path of the application home page.
func (a *App) RedirectURL() string {
	return "/app/" + a.name
}
