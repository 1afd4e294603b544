package client

import (
	"fmt"
	"net/http"
)

// APIError is the failure envelope for a non-2xx response from the API
// server. ResponseBody holds the fully read body when the server sent
// one.
type APIError struct {
	Status       int
	Headers      http.Header
	Message      string
	ResponseBody string
	Cause        error
}

func (e *APIError) Error() string {
	if e.ResponseBody != "" {
		return fmt.Sprintf("%s: %s", e.Message, e.ResponseBody)
	}
	return e.Message
}

func (e *APIError) Unwrap() error {
	return e.Cause
}
