package client

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/dmitrijs2005/relaypacs/internal/protocol"
)

var (
	ErrUnavailable     = errors.New("server unavailable")
	ErrUnauthorized    = errors.New("unauthorized")
	ErrPayloadTooLarge = errors.New("payload too large")
	ErrRejected        = errors.New("request rejected")
)

// APIError is a non-2xx reply. Message holds the server's detail text when
// the body carried one, otherwise the raw body.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("http %d", e.StatusCode)
	}
	return fmt.Sprintf("http %d: %s", e.StatusCode, e.Message)
}

func (e *APIError) Unwrap() error {
	switch {
	case e.StatusCode == http.StatusUnauthorized || e.StatusCode == http.StatusForbidden:
		return ErrUnauthorized
	case e.StatusCode == http.StatusRequestEntityTooLarge:
		return ErrPayloadTooLarge
	case e.StatusCode >= 500:
		return ErrUnavailable
	default:
		return ErrRejected
	}
}

func newAPIError(status int, body []byte) *APIError {
	var er protocol.ErrorResponse
	if err := json.Unmarshal(body, &er); err == nil && er.Detail != "" {
		return &APIError{StatusCode: status, Message: er.Detail}
	}
	return &APIError{StatusCode: status, Message: strings.TrimSpace(string(body))}
}

// StatusCode extracts the HTTP status from err, or 0.
func StatusCode(err error) int {
	var ae *APIError
	if errors.As(err, &ae) {
		return ae.StatusCode
	}
	return 0
}
