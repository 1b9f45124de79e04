package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"slices"
	"strings"

	"github.com/labstack/echo/v5"
	"golang.org/x/sync/errgroup"

	"github.com/flare-systems/flare-splunk/internal/filters"
	"github.com/flare-systems/flare-splunk/internal/flare"
	"github.com/flare-systems/flare-splunk/internal/http/viewmodels"
	"github.com/flare-systems/flare-splunk/internal/settings"
)

const (
	sessionKeyStep   = "setup_step"
	sessionKeyAPIKey = "setup_api_key"
)

// HandleSetupState returns the wizard state of the session.
func (h *Handlers) HandleSetupState(c *echo.Context) error {
	ctx := c.Request().Context()
	state, err := h.setupState(ctx)
	if err != nil {
		return h.respondError(c, err)
	}
	state.Toast = h.popFlashToast(ctx)
	return c.JSON(http.StatusOK, state)
}

// HandleSetupAPIKey validates the submitted API key and moves the wizard to
// the preferences step. An empty key reuses the stored one.
func (h *Handlers) HandleSetupAPIKey(c *echo.Context) error {
	ctx := c.Request().Context()

	var req viewmodels.APIKeyRequest
	if err := decodeJSON(c, &req); err != nil {
		return h.respondError(c, err)
	}
	apiKey := strings.TrimSpace(req.APIKey)
	if apiKey == "" {
		stored, err := h.App.Store().APIKey(ctx)
		if err != nil {
			return h.respondError(c, err)
		}
		apiKey = stored
	}
	if apiKey == "" {
		return h.respondError(c, inputError("Flare API key is required."))
	}

	account, err := h.account(apiKey)
	if err != nil {
		return h.respondError(c, err)
	}
	valid, err := account.ValidateAPIKey(ctx)
	if err != nil {
		return h.respondError(c, err)
	}
	if !valid {
		return h.respondError(c, inputError("Invalid API key."))
	}

	h.Sessions.Put(ctx, sessionKeyAPIKey, apiKey)
	h.setStep(ctx, viewmodels.StepUserPreferences)
	return h.HandleSetupState(c)
}

// HandleSetupPreferences encodes the selected filters and saves the whole
// configuration. Only one save runs at a time; concurrent submissions get a
// 409.
func (h *Handlers) HandleSetupPreferences(c *echo.Context) error {
	ctx := c.Request().Context()

	var req viewmodels.PreferencesRequest
	if err := decodeJSON(c, &req); err != nil {
		return h.respondError(c, err)
	}
	apiKey := h.Sessions.GetString(ctx, sessionKeyAPIKey)
	if apiKey == "" {
		return h.respondError(c, inputError("Enter your API key again before saving."))
	}

	if !h.saving.CompareAndSwap(false, true) {
		return c.JSON(http.StatusConflict, errorResponse(c, toast("warning", "Save in progress.", "The configuration is already being saved.")))
	}
	defer h.saving.Store(false)

	account, err := h.account(apiKey)
	if err != nil {
		return h.respondError(c, err)
	}
	var (
		severities []filters.Severity
		categories []filters.SourceTypeCategory
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		severities, err = account.Severities(gctx)
		return err
	})
	g.Go(func() error {
		var err error
		categories, err = account.SourceTypeCategories(gctx)
		return err
	})
	if err := g.Wait(); err != nil {
		return h.respondError(c, err)
	}

	severitiesFilter, err := filters.EncodeSeverities(filters.SeveritiesByValue(req.Severities, severities), severities)
	if err != nil {
		return h.respondError(c, err)
	}
	sourceTypesFilter, err := filters.EncodeSourceTypes(filters.SourceTypesByValue(req.SourceTypes, categories), categories)
	if err != nil {
		return h.respondError(c, err)
	}

	prefs := settings.Preferences{
		APIKey:              apiKey,
		TenantIDs:           req.TenantIDs,
		IndexName:           req.IndexName,
		IngestFullEventData: req.IngestFullEventData,
		SeveritiesFilter:    severitiesFilter,
		SourceTypesFilter:   sourceTypesFilter,
	}
	if err := prefs.Validate(); err != nil {
		return h.respondError(c, inputError(err.Error()))
	}
	if err := h.App.SaveConfiguration(ctx, prefs); err != nil {
		return h.respondError(c, err)
	}

	h.Sessions.Remove(ctx, sessionKeyAPIKey)
	h.setStep(ctx, viewmodels.StepCompleted)
	h.setFlashToast(ctx, toast("success", "Configuration saved.", "Flare events will be ingested shortly."))
	return h.HandleSetupState(c)
}

// HandleSetupRestart moves the wizard back to the API key step.
func (h *Handlers) HandleSetupRestart(c *echo.Context) error {
	ctx := c.Request().Context()
	h.Sessions.Remove(ctx, sessionKeyAPIKey)
	h.setStep(ctx, viewmodels.StepInitial)
	return h.HandleSetupState(c)
}

// HandleSetupIndex creates the Flare index when the app is not configured yet.
func (h *Handlers) HandleSetupIndex(c *echo.Context) error {
	if err := h.App.CreateFlareIndex(c.Request().Context()); err != nil {
		return h.respondError(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *Handlers) step(ctx context.Context) viewmodels.WizardStep {
	step := viewmodels.WizardStep(h.Sessions.GetInt(ctx, sessionKeyStep))
	if !step.Valid() {
		return viewmodels.StepInitial
	}
	return step
}

func (h *Handlers) setStep(ctx context.Context, step viewmodels.WizardStep) {
	h.Sessions.Put(ctx, sessionKeyStep, int(step))
}

func (h *Handlers) setupState(ctx context.Context) (viewmodels.SetupState, error) {
	store := h.App.Store()
	first, err := h.App.IsFirstConfiguration(ctx)
	if err != nil {
		return viewmodels.SetupState{}, err
	}
	storedKey, err := store.APIKey(ctx)
	if err != nil {
		return viewmodels.SetupState{}, err
	}
	tenantIDs, err := store.TenantIDs(ctx)
	if err != nil {
		return viewmodels.SetupState{}, err
	}
	fullEventData, err := store.IngestFullEventData(ctx)
	if err != nil {
		return viewmodels.SetupState{}, err
	}
	indexName := h.App.Name()
	if !first {
		if indexName, err = h.App.CurrentIndexName(ctx); err != nil {
			return viewmodels.SetupState{}, err
		}
	}

	pendingKey := h.Sessions.GetString(ctx, sessionKeyAPIKey)
	state := viewmodels.SetupState{
		Step:         h.step(ctx),
		IsConfigured: !first,
		HasAPIKey:    storedKey != "" || pendingKey != "",
		Preferences: viewmodels.SetupPreferences{
			TenantIDs:           tenantIDs,
			IndexName:           indexName,
			IngestFullEventData: fullEventData,
		},
		RedirectURL: h.App.RedirectURL(),
	}

	switch state.Step {
	case viewmodels.StepUserPreferences:
		if pendingKey == "" {
			state.Step = viewmodels.StepInitial
			break
		}
		options, err := h.loadOptions(ctx, pendingKey, state.Preferences)
		if err != nil {
			return viewmodels.SetupState{}, err
		}
		state.Options = &options
	case viewmodels.StepCompleted:
		searchURL, err := h.App.SearchURL(ctx)
		if err != nil && !errors.Is(err, settings.ErrNotFound) {
			return viewmodels.SetupState{}, err
		}
		state.SearchURL = searchURL
	}
	return state, nil
}

// loadOptions fetches the preferences step choices concurrently and marks
// the persisted selection.
func (h *Handlers) loadOptions(ctx context.Context, apiKey string, prefs viewmodels.SetupPreferences) (viewmodels.SetupOptions, error) {
	store := h.App.Store()
	severitiesFilter, err := store.SeveritiesFilter(ctx)
	if err != nil {
		return viewmodels.SetupOptions{}, err
	}
	sourceTypesFilter, err := store.SourceTypesFilter(ctx)
	if err != nil {
		return viewmodels.SetupOptions{}, err
	}
	account, err := h.account(apiKey)
	if err != nil {
		return viewmodels.SetupOptions{}, err
	}

	var (
		tenants    []flare.Tenant
		severities []filters.Severity
		categories []filters.SourceTypeCategory
		indexes    []string
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		tenants, err = account.Tenants(gctx)
		return err
	})
	g.Go(func() error {
		var err error
		severities, err = account.Severities(gctx)
		return err
	})
	g.Go(func() error {
		var err error
		categories, err = account.SourceTypeCategories(gctx)
		return err
	})
	g.Go(func() error {
		var err error
		indexes, err = h.App.AvailableIndexNames(gctx)
		return err
	})
	if err := g.Wait(); err != nil {
		return viewmodels.SetupOptions{}, err
	}

	return viewmodels.SetupOptions{
		Tenants:              tenantOptions(tenants, prefs.TenantIDs),
		Indexes:              indexOptions(indexes, prefs.IndexName),
		Severities:           severityOptions(severities, filters.DecodeSeverities(severitiesFilter, severities)),
		SourceTypeCategories: sourceTypeCategoryOptions(categories, filters.DecodeSourceTypes(sourceTypesFilter, categories)),
	}, nil
}

func tenantOptions(tenants []flare.Tenant, selected []int) []viewmodels.TenantOption {
	out := make([]viewmodels.TenantOption, 0, len(tenants))
	for _, t := range tenants {
		out = append(out, viewmodels.TenantOption{ID: t.ID, Name: t.Name, Selected: slices.Contains(selected, t.ID)})
	}
	return out
}

func indexOptions(names []string, selected string) []viewmodels.IndexOption {
	out := make([]viewmodels.IndexOption, 0, len(names))
	for _, name := range names {
		out = append(out, viewmodels.IndexOption{Name: name, Selected: name == selected})
	}
	return out
}

func severityOptions(all, selected []filters.Severity) []viewmodels.SeverityOption {
	out := make([]viewmodels.SeverityOption, 0, len(all))
	for _, s := range all {
		out = append(out, viewmodels.SeverityOption{
			Value:    s.Value,
			Label:    s.Label,
			Color:    s.Color,
			Selected: slices.ContainsFunc(selected, func(o filters.Severity) bool { return o.Value == s.Value }),
		})
	}
	return out
}

func sourceTypeCategoryOptions(categories []filters.SourceTypeCategory, selected []filters.SourceType) []viewmodels.SourceTypeCategoryOption {
	out := make([]viewmodels.SourceTypeCategoryOption, 0, len(categories))
	for _, category := range categories {
		option := viewmodels.SourceTypeCategoryOption{
			Value:    category.Value,
			Types:    make([]viewmodels.SourceTypeOption, 0, len(category.Types)),
			Selected: len(category.Types) > 0,
		}
		for _, t := range category.Types {
			isSelected := slices.ContainsFunc(selected, func(o filters.SourceType) bool { return o.Value == t.Value })
			option.Types = append(option.Types, viewmodels.SourceTypeOption{Value: t.Value, Selected: isSelected})
			option.Selected = option.Selected && isSelected
		}
		out = append(out, option)
	}
	return out
}

func decodeJSON(c *echo.Context, v any) error {
	dec := json.NewDecoder(c.Request().Body)
	if err := dec.Decode(v); err != nil {
		return inputError("Request body must be valid JSON.")
	}
	return nil
}
