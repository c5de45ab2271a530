// Package models defines the client-side records kept in the staging store
// and the upload session negotiated with the server.
package models

import "time"

// StudyStatus is the lifecycle state of a staged Study.
type StudyStatus string

const (
	StatusQueued    StudyStatus = "queued"
	StatusUploading StudyStatus = "uploading"
	StatusComplete  StudyStatus = "complete"
	StatusFailed    StudyStatus = "failed"
)

func (s StudyStatus) Valid() bool {
	switch s {
	case StatusQueued, StatusUploading, StatusComplete, StatusFailed:
		return true
	}
	return false
}

// CanTransition reports whether a Study may move from one status to another.
// Re-applying the current status is allowed and is a no-op; complete is
// terminal.
func CanTransition(from, to StudyStatus) bool {
	if from == to {
		return true
	}
	switch from {
	case StatusQueued:
		return to == StatusUploading || to == StatusFailed
	case StatusUploading:
		return to == StatusComplete || to == StatusFailed
	case StatusFailed:
		return to == StatusUploading
	}
	return false
}

// StudyMetadata is what the capture form supplies for one exam. The JSON
// names match the server's study_metadata object.
type StudyMetadata struct {
	PatientName      string `json:"patient_name"`
	StudyDate        string `json:"study_date"`
	Modality         string `json:"modality"`
	Age              string `json:"age,omitempty"`
	Gender           string `json:"gender,omitempty"`
	ServiceLevel     string `json:"service_level,omitempty"`
	StudyDescription string `json:"study_description,omitempty"`
	ClinicalHistory  string `json:"clinical_history,omitempty"`
}

// Study is one imaging exam staged for upload.
type Study struct {
	ID       int64
	UploadID string
	Status   StudyStatus
	Metadata StudyMetadata

	TotalFiles int
	TotalSize  int64
	Progress   float64
	CreatedAt  time.Time

	UploadToken     string
	ChunkSize       int64
	ExpiresAt       time.Time
	LastSyncAttempt time.Time
}

// HasSession reports whether session init has completed for the Study.
func (s *Study) HasSession() bool {
	return s.UploadID != "" && s.UploadToken != "" && s.ChunkSize > 0
}

// Session is what the server hands back from upload init.
type Session struct {
	UploadID  string
	Token     string
	ChunkSize int64
	ExpiresAt time.Time
}
