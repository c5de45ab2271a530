// Package chunks persists per-chunk upload markers. A marker is only ever
// inserted; there is no API to remove one, so the set of acknowledged
// indices of a file can only grow.
package chunks

import "context"

type Repository interface {
	// MarkUploaded records (fileID, index). Recording an index twice is a
	// no-op; inserted reports whether this call added the marker.
	MarkUploaded(ctx context.Context, fileID int64, index int) (inserted bool, err error)

	// ListByFile returns the acknowledged indices in ascending order.
	ListByFile(ctx context.Context, fileID int64) ([]int, error)

	// CountByFile returns how many indices are acknowledged.
	CountByFile(ctx context.Context, fileID int64) (int, error)

	// UploadedBytes sums the exact byte length of every acknowledged chunk
	// of the study, given its chunk size.
	UploadedBytes(ctx context.Context, studyID int64, chunkSize int64) (int64, error)
}
