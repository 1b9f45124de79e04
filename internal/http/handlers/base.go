// Package handlers contains HTTP handler logic split by domain.
package handlers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync/atomic"

	"github.com/alexedwards/scs/v2"
	"github.com/labstack/echo/v5"

	"github.com/flare-systems/flare-splunk/internal/filters"
	"github.com/flare-systems/flare-splunk/internal/flare"
	"github.com/flare-systems/flare-splunk/internal/ingest"
	"github.com/flare-systems/flare-splunk/internal/settings"
)

const (
	// ContextKeyRequestID stores the request id (X-Request-ID) for logging and client error references.
	ContextKeyRequestID = "request_id"

	// InternalErrorCode is a stable error code safe to return to clients.
	InternalErrorCode = "INTERNAL_ERROR"

	defaultVersion = "unknown"
)

// Account is the Flare account API used by the wizard.
type Account interface {
	ValidateAPIKey(ctx context.Context) (bool, error)
	Tenants(ctx context.Context) ([]flare.Tenant, error)
	Severities(ctx context.Context) ([]filters.Severity, error)
	SourceTypeCategories(ctx context.Context) ([]filters.SourceTypeCategory, error)
}

// AccountFactory returns the Flare account of apiKey.
type AccountFactory func(apiKey string) (Account, error)

// NewFlareAccountFactory returns an AccountFactory backed by the Flare API.
func NewFlareAccountFactory(opts flare.Options) AccountFactory {
	return func(apiKey string) (Account, error) {
		o := opts
		o.APIKey = apiKey
		return flare.New(o)
	}
}

// IngestRunner is the interface for triggering manual ingests.
type IngestRunner interface {
	Run(context.Context) (ingest.Result, error)
}

// Handlers groups all HTTP handlers and shared dependencies.
type Handlers struct {
	App      *settings.App
	State    *ingest.StateStore
	Accounts AccountFactory
	Sessions *scs.SessionManager
	Ingest   IngestRunner
	// Version is reported when the app stanza carries no version.
	Version string

	saving atomic.Bool
}

// RenderError logs err and returns a generic JSON error response.
func (h *Handlers) RenderError(c *echo.Context, err error) error {
	requestID := RequestID(c)
	logHTTPError(c, requestID, err)

	msg := "Internal server error."
	if requestID != "" {
		msg = fmt.Sprintf("%s Reference: %s.", msg, requestID)
	}
	msg = fmt.Sprintf("%s Code: %s.", msg, InternalErrorCode)
	return c.JSON(http.StatusInternalServerError, errorResponse(c, toast("error", "Something went wrong.", msg)))
}

// RenderNotFound returns a 404 response.
func RenderNotFound(c *echo.Context) error {
	return c.String(http.StatusNotFound, "404 page not found")
}

// RequestID returns the id assigned to the request, or "".
func RequestID(c *echo.Context) string {
	requestID, _ := c.Get(ContextKeyRequestID).(string)
	return requestID
}

func logHTTPError(c *echo.Context, requestID string, err error) {
	path := ""
	if req := c.Request(); req != nil && req.URL != nil {
		path = req.URL.Path
	}
	method := ""
	if req := c.Request(); req != nil {
		method = req.Method
	}
	c.Logger().Error("http error",
		"request_id", requestID,
		"method", method,
		"path", path,
		"ip", c.RealIP(),
		"error", err,
	)
}

func (h *Handlers) HandleHealthz(c *echo.Context) error {
	return c.String(http.StatusOK, "ok")
}

func (h *Handlers) account(apiKey string) (Account, error) {
	if h.Accounts == nil {
		return nil, errors.New("flare account client is not configured")
	}
	return h.Accounts(apiKey)
}

func (h *Handlers) version(ctx context.Context) (string, error) {
	def := h.Version
	if def == "" {
		def = defaultVersion
	}
	return h.App.VersionName(ctx, def)
}
