package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/labstack/echo/v5"

	"github.com/flare-systems/flare-splunk/internal/filters"
	"github.com/flare-systems/flare-splunk/internal/http/viewmodels"
)

const sessionKeyToast = "flash_toast"

// errInput is a client mistake reported with a 400 and its own message.
type errInput struct{ msg string }

func (e *errInput) Error() string { return e.msg }

func inputError(msg string) error { return &errInput{msg: msg} }

// rawTexter is implemented by remote API errors that carry the response text.
type rawTexter interface {
	Text() string
}

func toast(category, title, description string) viewmodels.ToastViewData {
	return viewmodels.ToastViewData{
		Category:    normalizeToastCategory(category),
		Title:       strings.TrimSpace(title),
		Description: strings.TrimSpace(description),
	}
}

func errorResponse(c *echo.Context, t viewmodels.ToastViewData) viewmodels.ErrorResponse {
	return viewmodels.ErrorResponse{Toast: t, RequestID: RequestID(c)}
}

// respondError maps err to a status and a toast. Input errors are shown as
// is; remote failures get a generic message with the remote text appended
// when there is one.
func (h *Handlers) respondError(c *echo.Context, err error) error {
	var input *errInput
	switch {
	case errors.As(err, &input):
		return c.JSON(http.StatusBadRequest, errorResponse(c, toast("error", "Please review your form.", input.msg)))
	case errors.Is(err, filters.ErrInvalidSelection):
		return c.JSON(http.StatusBadRequest, errorResponse(c, toast("error", "Please review your form.", "At least one item must be selected.")))
	case errors.Is(err, context.Canceled):
		return err
	}

	logHTTPError(c, RequestID(c), err)
	description := "The request to Splunk or Flare failed."
	var remote rawTexter
	if errors.As(err, &remote) {
		if text := strings.TrimSpace(remote.Text()); text != "" {
			description += " " + text
		}
	}
	return c.JSON(http.StatusBadGateway, errorResponse(c, toast("error", "Something went wrong.", description)))
}

func (h *Handlers) setFlashToast(ctx context.Context, t viewmodels.ToastViewData) {
	if h.Sessions == nil || (t.Title == "" && t.Description == "") {
		return
	}
	payload, err := json.Marshal(t)
	if err != nil {
		return
	}
	h.Sessions.Put(ctx, sessionKeyToast, string(payload))
}

func (h *Handlers) popFlashToast(ctx context.Context) *viewmodels.ToastViewData {
	if h.Sessions == nil {
		return nil
	}
	raw := h.Sessions.PopString(ctx, sessionKeyToast)
	if raw == "" {
		return nil
	}
	var t viewmodels.ToastViewData
	if err := json.Unmarshal([]byte(raw), &t); err != nil {
		return nil
	}
	t = toast(t.Category, t.Title, t.Description)
	if t.Title == "" && t.Description == "" {
		return nil
	}
	return &t
}

func normalizeToastCategory(category string) string {
	switch strings.ToLower(strings.TrimSpace(category)) {
	case "success", "error", "warning", "info":
		return strings.ToLower(strings.TrimSpace(category))
	default:
		return "info"
	}
}
