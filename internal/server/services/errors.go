// Package services holds the reference server's upload and login logic.
// Handlers map the errors declared here onto HTTP status codes.
package services

import "errors"

var (
	ErrUnauthorized     = errors.New("invalid credentials")
	ErrForbidden        = errors.New("upload belongs to another user")
	ErrInvalidRequest   = errors.New("invalid request")
	ErrPayloadTooLarge  = errors.New("payload too large")
	ErrEmptyChunk       = errors.New("empty body")
	ErrUploadIncomplete = errors.New("upload incomplete")
)
