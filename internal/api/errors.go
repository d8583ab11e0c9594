package api

import (
	"errors"
	"fmt"
	"net/http"
)

// APIError is a non-2xx backend response. Body holds the decoded JSON body
// or the raw text when the response was not JSON.
type APIError struct {
	Method string
	Path   string
	Status int
	Body   interface{}
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s %s: status %d: %s", e.Method, e.Path, e.Status, e.Message())
}

// Message picks the backend's message, falling back to the raw body.
func (e *APIError) Message() string {
	switch b := e.Body.(type) {
	case map[string]interface{}:
		if msg, ok := b["message"].(string); ok && msg != "" {
			return msg
		}
	case string:
		if b != "" {
			return b
		}
	}
	if e.Status == http.StatusUnauthorized {
		return "Session expired"
	}
	return "API Error"
}

// FieldErrors extracts Laravel-style validation errors. Each field maps to
// its first message.
func (e *APIError) FieldErrors() map[string]string {
	return ExtractFieldErrors(e.Body)
}

// ExtractFieldErrors reads errors from body.errors, body.data.errors or
// body.error.errors.
func ExtractFieldErrors(body interface{}) map[string]string {
	out := map[string]string{}
	data, ok := body.(map[string]interface{})
	if !ok {
		return out
	}

	raw, ok := data["errors"].(map[string]interface{})
	if !ok {
		if inner, isMap := data["data"].(map[string]interface{}); isMap {
			raw, ok = inner["errors"].(map[string]interface{})
		}
	}
	if !ok {
		if inner, isMap := data["error"].(map[string]interface{}); isMap {
			raw, ok = inner["errors"].(map[string]interface{})
		}
	}
	if !ok {
		return out
	}

	for field, messages := range raw {
		switch m := messages.(type) {
		case []interface{}:
			if len(m) > 0 {
				s, _ := m[0].(string)
				out[field] = s
			} else {
				out[field] = ""
			}
		case string:
			out[field] = m
		default:
			out[field] = "Invalid value"
		}
	}
	return out
}

// AsAPIError finds an *APIError in err's chain.
func AsAPIError(err error) (*APIError, bool) {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr, true
	}
	return nil, false
}
