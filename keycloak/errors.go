package keycloak

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
)

// Client-side validation errors. These are returned before any network
// call is made.
var (
	ErrBaseURLRequired     = errors.New("base URL is required")
	ErrTokenSourceRequired = errors.New("token source is required")
	ErrRealmRequired       = errors.New("realm is required")
	ErrGroupIDRequired     = errors.New("group id is required")
	ErrGroupNameRequired   = errors.New("group name is required")
	ErrUserIDRequired      = errors.New("user id is required")
	ErrMissingLocation     = errors.New("missing Location header in response")
)

// APIError is returned whenever the server answers with an unexpected
// status code. The server's error payload is carried verbatim in Body;
// not-found, conflict and unauthorized responses all surface this way
// and callers inspect StatusCode or Body themselves.
type APIError struct {
	StatusCode int
	Body       []byte
}

// newAPIError drains the response body into an APIError.
func newAPIError(resp *http.Response) *APIError {
	body, _ := io.ReadAll(resp.Body)
	return &APIError{
		StatusCode: resp.StatusCode,
		Body:       body,
	}
}

func (e *APIError) Error() string {
	body := bytes.TrimSpace(e.Body)
	if len(body) == 0 {
		return fmt.Sprintf("keycloak: unexpected status %d", e.StatusCode)
	}
	return fmt.Sprintf("keycloak: unexpected status %d: %s", e.StatusCode, body)
}

// Message extracts the human-readable message from Keycloak's usual
// error payload shape. It returns an empty string when the body does
// not decode.
func (e *APIError) Message() string {
	var payload struct {
		Error        string `json:"error"`
		ErrorMessage string `json:"errorMessage"`
	}
	if err := json.Unmarshal(e.Body, &payload); err != nil {
		return ""
	}
	if payload.ErrorMessage != "" {
		return payload.ErrorMessage
	}
	return payload.Error
}

// AsAPIError unwraps err into an *APIError if the failure came from a
// server response rather than the transport.
func AsAPIError(err error) (*APIError, bool) {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr, true
	}
	return nil, false
}
