package handlers

import (
	"context"
	"errors"
	"net/http"
	"slices"

	"github.com/labstack/echo/v5"

	"github.com/flare-systems/flare-splunk/internal/http/viewmodels"
	"github.com/flare-systems/flare-splunk/internal/ingest"
)

// HandleStatus returns the dashboard status.
func (h *Handlers) HandleStatus(c *echo.Context) error {
	ctx := c.Request().Context()

	version, err := h.version(ctx)
	if err != nil {
		return h.respondError(c, err)
	}
	first, err := h.App.IsFirstConfiguration(ctx)
	if err != nil {
		return h.respondError(c, err)
	}
	indexName, err := h.App.CurrentIndexName(ctx)
	if err != nil {
		return h.respondError(c, err)
	}
	tenantIDs, err := h.App.Store().TenantIDs(ctx)
	if err != nil {
		return h.respondError(c, err)
	}

	status := viewmodels.Status{
		Version:      version,
		IndexName:    indexName,
		IsConfigured: !first,
		TenantIDs:    tenantIDs,
		Tenants:      []viewmodels.TenantStatus{},
	}
	if h.State != nil {
		snapshot, err := h.State.Snapshot(ctx, tenantIDs)
		if err != nil {
			return h.respondError(c, err)
		}
		status.LastFetchedAt = snapshot.LastFetch
		for _, tenant := range snapshot.Tenants {
			status.Tenants = append(status.Tenants, viewmodels.TenantStatus{
				TenantID:  tenant.TenantID,
				StartDate: tenant.StartDate,
				NextToken: tenant.Next,
			})
		}
	}
	return c.JSON(http.StatusOK, status)
}

// HandleIndexes lists the indexes events can be ingested into.
func (h *Handlers) HandleIndexes(c *echo.Context) error {
	names, err := h.App.AvailableIndexNames(c.Request().Context())
	if err != nil {
		return h.respondError(c, err)
	}
	return c.JSON(http.StatusOK, map[string][]string{"indexes": names})
}

// HandleIngest runs one ingest right away, ignoring the fetch throttle, and
// reports the events written. The pass outlives a client disconnect.
func (h *Handlers) HandleIngest(c *echo.Context) error {
	if h.Ingest == nil {
		return RenderNotFound(c)
	}
	ctx := ingest.WithForcedIngest(context.WithoutCancel(c.Request().Context()))
	res, err := h.Ingest.Run(ctx)
	switch {
	case errors.Is(err, ingest.ErrIngestAlreadyRunning):
		return c.JSON(http.StatusConflict, errorResponse(c, toast("warning", "Ingest in progress.", "Events are already being ingested.")))
	case errors.Is(err, ingest.ErrAPIKeyNotFound), errors.Is(err, ingest.ErrTenantIDsNotFound):
		return h.respondError(c, inputError("Complete the configuration before ingesting events."))
	case err != nil && res.ByTenant == nil:
		return h.respondError(c, err)
	}

	out := viewmodels.IngestResult{Events: res.Events, Tenants: make([]viewmodels.TenantIngestCount, 0, len(res.ByTenant))}
	for tenantID, events := range res.ByTenant {
		out.Tenants = append(out.Tenants, viewmodels.TenantIngestCount{TenantID: tenantID, Events: events})
	}
	slices.SortFunc(out.Tenants, func(a, b viewmodels.TenantIngestCount) int { return a.TenantID - b.TenantID })
	if err != nil {
		c.Logger().Warn("manual ingest finished with tenant failures", "events", res.Events, "err", err)
		t := toast("warning", "Ingest finished with errors.", "Some tenants could not be ingested. Check the logs for details.")
		out.Toast = &t
	}
	return c.JSON(http.StatusOK, out)
}
