package viewmodels

type ToastViewData struct {
	Category    string `json:"category"`
	Title       string `json:"title"`
	Description string `json:"description"`
}

// ErrorResponse is the body of every failed API call.
type ErrorResponse struct {
	Toast     ToastViewData `json:"toast"`
	RequestID string        `json:"request_id,omitempty"`
}
