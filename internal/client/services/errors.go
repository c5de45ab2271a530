package services

import "errors"

var (
	ErrSessionNotInitialized = errors.New("upload session not initialized")
	ErrUploadIncomplete      = errors.New("upload incomplete")
	ErrSessionFailed         = errors.New("upload session failed")
	ErrAlreadyComplete       = errors.New("study already complete")
	ErrMissingMetadata       = errors.New("patient name, study date and modality are required")

	// ErrInitFailed wraps every session init failure. The cause is wrapped
	// alongside it so callers can still match transport errors.
	ErrInitFailed = errors.New("failed to start upload")
)

// InitFailedMessage is what a user sees when a session cannot be started.
const InitFailedMessage = "Failed to start upload. Please try again."

// UserMessage returns a short message for err suitable for end users.
func UserMessage(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrInitFailed):
		return InitFailedMessage
	case errors.Is(err, ErrSessionFailed):
		return "Upload failed. It will be retried."
	default:
		return err.Error()
	}
}
