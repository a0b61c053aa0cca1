package openrouter

import (
	"fmt"
	"net/http"
)

// APIError is returned when OpenRouter answers with a non-200 status or an error payload
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	body := e.Body
	if len(body) > 300 {
		body = body[:300] + "..."
	}
	return fmt.Sprintf("openrouter API error (status %d): %s", e.StatusCode, body)
}

// Transient reports whether the request may succeed if retried
func (e *APIError) Transient() bool {
	return e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= 500
}
