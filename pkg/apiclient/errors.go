package apiclient

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
)

// APIError represents an error response from the control API. The server
// answers errors as RFC 7807 problem documents; the fields here mirror
// that shape.
type APIError struct {
	StatusCode int    `json:"status"`
	Title      string `json:"title"`
	Detail     string `json:"detail,omitempty"`
}

// Error implements the error interface.
func (e *APIError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("%s: %s", e.Title, e.Detail)
	}
	if e.Title != "" {
		return e.Title
	}
	return fmt.Sprintf("server returned status %d", e.StatusCode)
}

// IsAuthError returns true if the request was rejected for missing or
// insufficient credentials.
func (e *APIError) IsAuthError() bool {
	return e.StatusCode == http.StatusUnauthorized || e.StatusCode == http.StatusForbidden
}

// IsNotFound returns true if the requested resource does not exist.
func (e *APIError) IsNotFound() bool {
	return e.StatusCode == http.StatusNotFound
}

// decodeAPIError turns an error response body into an *APIError. Bodies
// that are not problem documents are carried verbatim in the detail.
func decodeAPIError(statusCode int, body []byte) error {
	var apiErr APIError
	if json.Unmarshal(body, &apiErr) == nil && apiErr.Title != "" {
		apiErr.StatusCode = statusCode
		return &apiErr
	}
	return &APIError{
		StatusCode: statusCode,
		Title:      http.StatusText(statusCode),
		Detail:     strings.TrimSpace(string(body)),
	}
}
