package httpapp

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v5"
	"github.com/labstack/echo/v5/middleware"

	"github.com/flare-systems/flare-splunk/internal/http/handlers"
)

const headerRequestID = "X-Request-ID"

// EchoServer is the HTTP server wrapper.
type EchoServer struct {
	h *handlers.Handlers
	e *echo.Echo
}

// NewEchoServer creates a new HTTP server.
func NewEchoServer(h *handlers.Handlers) (*EchoServer, error) {
	if h == nil || h.App == nil {
		return nil, errors.New("handlers with a settings app are required")
	}
	if h.Sessions == nil {
		return nil, errors.New("session manager is required")
	}
	es := &EchoServer{h: h, e: echo.New()}
	es.e.HTTPErrorHandler = es.httpErrorHandler
	es.e.Use(requestID, middleware.Recover())
	es.registerRoutes()
	return es, nil
}

func (es *EchoServer) registerRoutes() {
	es.e.GET("/healthz", es.h.HandleHealthz)

	api := es.e.Group("")
	api.Use(middleware.CSRFWithConfig(middleware.CSRFConfig{
		TokenLookup:    "header:" + echo.HeaderXCSRFToken + ",form:csrf",
		CookiePath:     "/",
		CookieHTTPOnly: true,
		CookieSameSite: http.SameSiteLaxMode,
	}))
	api.GET("/api/setup", es.h.HandleSetupState)
	api.POST("/api/setup/api-key", es.h.HandleSetupAPIKey)
	api.POST("/api/setup/preferences", es.h.HandleSetupPreferences)
	api.POST("/api/setup/index", es.h.HandleSetupIndex)
	api.POST("/api/setup/restart", es.h.HandleSetupRestart)
	api.GET("/api/indexes", es.h.HandleIndexes)
	api.GET("/api/status", es.h.HandleStatus)
	api.POST("/api/ingest", es.h.HandleIngest)

	api.POST("/services/fetch_user_tenants", es.h.HandleFetchUserTenants())
	api.POST("/services/fetch_api_key_validation", es.h.HandleFetchAPIKeyValidation)
	api.POST("/services/fetch_severity_filters", es.h.HandleFetchSeverityFilters())
	api.POST("/services/fetch_source_type_filters", es.h.HandleFetchSourceTypeFilters())
}

// Handler returns the root handler with session loading applied.
func (es *EchoServer) Handler() http.Handler {
	return es.h.Sessions.LoadAndSave(es.e)
}

// NewServer returns an http.Server serving es on addr.
func (es *EchoServer) NewServer(addr string) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           es.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
}

// requestID propagates or assigns X-Request-ID.
func requestID(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c *echo.Context) error {
		id := strings.TrimSpace(c.Request().Header.Get(headerRequestID))
		if id == "" || len(id) > 128 {
			id = uuid.NewString()
		}
		c.Set(handlers.ContextKeyRequestID, id)
		c.Response().Header().Set(headerRequestID, id)
		return next(c)
	}
}

func (es *EchoServer) httpErrorHandler(c *echo.Context, err error) {
	if err == nil {
		return
	}
	if errors.Is(err, context.Canceled) {
		return
	}

	status := httpStatusFromError(err)
	switch {
	case status == http.StatusNotFound:
		_ = handlers.RenderNotFound(c)
	case status >= http.StatusInternalServerError:
		_ = es.h.RenderError(c, err)
	default:
		_ = c.String(status, http.StatusText(status))
	}
}

func httpStatusFromError(err error) int {
	var coder interface{ StatusCode() int }
	if errors.As(err, &coder) {
		if code := coder.StatusCode(); code >= 400 && code <= 599 {
			return code
		}
	}
	return http.StatusInternalServerError
}
