// Package common defines shared constants and sentinel errors used across
// client and server layers of RelayPACS. Callers should use errors.Is to
// match these values.
package common

import "errors"

var (
	// Repository-level errors.
	ErrNotFound = errors.New("not found")

	// Storage errors. ErrStorageQuotaExceeded is returned when the staging
	// store cannot accept more bytes, either by configured quota or because
	// the underlying database reports a full disk.
	ErrStorageQuotaExceeded = errors.New("storage quota exceeded")

	// ErrInvalidTransition is returned for a Study status change that would
	// move the lifecycle backwards or out of a terminal state.
	ErrInvalidTransition = errors.New("invalid status transition")

	// Auth errors (invalid or malformed token).
	ErrInvalidToken = errors.New("invalid token")
	ErrTokenExpired = errors.New("token expired")
)
