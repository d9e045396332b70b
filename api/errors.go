// ABOUTME: API error types and the shared error-translation helper for REST calls.
// ABOUTME: Converts HTTP failures into human-readable strings surfaced directly by UI actions.
package api

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrNotFound is returned for 404 responses, notably during alert-to-session
// id resolution before the backend has created the session row.
var ErrNotFound = errors.New("not found")

// APIError is a non-2xx response from the backend.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("backend returned %d: %s", e.StatusCode, e.Message)
}

// Is lets errors.Is match 404s against ErrNotFound.
func (e *APIError) Is(target error) bool {
	return target == ErrNotFound && e.StatusCode == http.StatusNotFound
}

// errorBody is the JSON error shape the backend uses; some endpoints use
// "detail" (FastAPI style), others "message".
type errorBody struct {
	Detail  string `json:"detail"`
	Message string `json:"message"`
}

// Translate converts an API call failure into a short human-readable string
// for display next to the initiating UI action.
func Translate(err error) string {
	if err == nil {
		return ""
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		switch apiErr.StatusCode {
		case http.StatusNotFound:
			return "Not found. The session may not exist yet or was removed."
		case http.StatusConflict:
			return "The session is not in a state that allows this action."
		case http.StatusUnauthorized, http.StatusForbidden:
			return "You are not authorized to perform this action."
		case http.StatusServiceUnavailable, http.StatusBadGateway:
			return "The backend is unavailable. Try again shortly."
		}
		if apiErr.Message != "" {
			return apiErr.Message
		}
		return fmt.Sprintf("Request failed with status %d.", apiErr.StatusCode)
	}
	return "Could not reach the backend: " + err.Error()
}

// asAPIError builds an *APIError from a status code and decoded error body.
func asAPIError(status int, body errorBody) *APIError {
	msg := body.Detail
	if msg == "" {
		msg = body.Message
	}
	if msg == "" {
		msg = http.StatusText(status)
	}
	return &APIError{StatusCode: status, Message: msg}
}
