// Package chunkstore keeps the bytes of received chunks, either on the
// local filesystem or in an S3-compatible bucket.
package chunkstore

import (
	"context"
	"errors"
	"fmt"
	"regexp"
)

var (
	ErrNotFound      = errors.New("chunk not found")
	ErrInvalidFileID = errors.New("invalid file id")
)

type Store interface {
	Put(ctx context.Context, uploadID, fileID string, index int, data []byte) error
	Get(ctx context.Context, uploadID, fileID string, index int) ([]byte, error)
	// DeleteUpload removes every chunk of uploadID.
	DeleteUpload(ctx context.Context, uploadID string) error
}

var fileIDPattern = regexp.MustCompile(`^[A-Za-z0-9_-][A-Za-z0-9._-]{0,127}$`)

// ValidFileID reports whether id can be used as a path segment. File ids
// come from clients, so anything that could escape the upload's directory
// is refused.
func ValidFileID(id string) bool {
	return fileIDPattern.MatchString(id) && id != "." && id != ".."
}

func objectKey(uploadID, fileID string, index int) (string, error) {
	if !ValidFileID(fileID) {
		return "", fmt.Errorf("%w: %q", ErrInvalidFileID, fileID)
	}
	return fmt.Sprintf("%s/%s/%08d", uploadID, fileID, index), nil
}
