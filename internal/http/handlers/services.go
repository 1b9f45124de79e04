package handlers

import (
	"context"
	"net/http"
	"strings"

	"github.com/labstack/echo/v5"
)

// apiKeyParam reads apiKey from a form or JSON body.
func apiKeyParam(c *echo.Context) (string, error) {
	req := c.Request()
	if strings.HasPrefix(req.Header.Get(echo.HeaderContentType), echo.MIMEApplicationJSON) {
		var body struct {
			APIKey string `json:"apiKey"`
		}
		if err := decodeJSON(c, &body); err != nil {
			return "", err
		}
		return strings.TrimSpace(body.APIKey), nil
	}
	return strings.TrimSpace(c.FormValue("apiKey")), nil
}

func (h *Handlers) serviceAccount(c *echo.Context) (Account, error) {
	apiKey, err := apiKeyParam(c)
	if err != nil {
		return nil, err
	}
	if apiKey == "" {
		return nil, inputError("apiKey is required.")
	}
	return h.account(apiKey)
}

// serviceHandler wraps one account call into a handler answering
// {key: result}.
func serviceHandler[T any](h *Handlers, key string, call func(Account, context.Context) (T, error)) echo.HandlerFunc {
	return func(c *echo.Context) error {
		account, err := h.serviceAccount(c)
		if err != nil {
			return h.respondError(c, err)
		}
		result, err := call(account, c.Request().Context())
		if err != nil {
			return h.respondError(c, err)
		}
		return c.JSON(http.StatusOK, map[string]any{key: result})
	}
}

// HandleFetchUserTenants lists the tenants of the submitted API key.
func (h *Handlers) HandleFetchUserTenants() echo.HandlerFunc {
	return serviceHandler(h, "tenants", Account.Tenants)
}

// HandleFetchSeverityFilters lists the severities events can be filtered by.
func (h *Handlers) HandleFetchSeverityFilters() echo.HandlerFunc {
	return serviceHandler(h, "severities", Account.Severities)
}

// HandleFetchSourceTypeFilters lists the source type taxonomy.
func (h *Handlers) HandleFetchSourceTypeFilters() echo.HandlerFunc {
	return serviceHandler(h, "categories", Account.SourceTypeCategories)
}

// HandleFetchAPIKeyValidation answers 200 for a valid key and 400 otherwise.
func (h *Handlers) HandleFetchAPIKeyValidation(c *echo.Context) error {
	account, err := h.serviceAccount(c)
	if err != nil {
		return h.respondError(c, err)
	}
	valid, err := account.ValidateAPIKey(c.Request().Context())
	if err != nil {
		return h.respondError(c, err)
	}
	if !valid {
		return h.respondError(c, inputError("Invalid API key."))
	}
	return c.JSON(http.StatusOK, map[string]bool{"valid": true})
}
