package core

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

var (
	ErrSessionEnded           = errors.New("session ended")
	ErrNoSession              = errors.New("no active session")
	ErrNoCredential           = errors.New("no credential stored")
	ErrPartialCredential      = errors.New("credential must carry both access and refresh tokens")
	ErrIllegalTransition      = errors.New("illegal session transition")
	ErrRefreshRejected        = errors.New("refresh token rejected")
	ErrInvalidRefreshResponse = errors.New("malformed refresh response")
	ErrTransport              = errors.New("transport failure")
	ErrInvalidCredentials     = errors.New("invalid email or password")
)

// APIError is a non-2xx business response returned verbatim to the caller
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("booking api: status %d", e.Status)
	}
	return fmt.Sprintf("booking api: status %d: %s", e.Status, e.Message)
}

// ParseAPIError builds an APIError from a non-2xx response body. Both
// {"message": ...} and {"error": ...} bodies are understood; anything else is
// kept as plain text.
func ParseAPIError(status int, body []byte) *APIError {
	apiErr := &APIError{Status: status}

	var parsed struct {
		Error   string `json:"error"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(body, &parsed); err == nil {
		apiErr.Message = parsed.Message
		if apiErr.Message == "" {
			apiErr.Message = parsed.Error
		}
		return apiErr
	}

	apiErr.Message = strings.TrimSpace(string(body))
	return apiErr
}
