// Package models defines the server-side records of upload sessions.
package models

import (
	"time"

	"github.com/dmitrijs2005/relaypacs/internal/protocol"
)

// Upload is one upload session opened by POST /upload/init.
type Upload struct {
	ID              string
	Owner           string
	Metadata        protocol.StudyMetadata
	ClinicalHistory string
	TotalFiles      int
	TotalBytes      int64
	ChunkSize       int64
	State           string
	CreatedAt       time.Time
	CompletedAt     time.Time
}

// ChunkRef is one stored chunk of one file of an upload.
type ChunkRef struct {
	FileID string
	Index  int
	Size   int64
}

// FileTotal is the chunk count a client declared for a file.
type FileTotal struct {
	FileID      string
	TotalChunks int
}

type User struct {
	UserName     string
	PasswordHash string
	CreatedAt    time.Time
}
