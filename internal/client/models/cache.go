package models

import "time"

// CacheMetadata describes one cached server response.
type CacheMetadata struct {
	ID           int64
	ResourceURL  string
	CacheKey     string
	Size         int64
	Payload      []byte
	LastAccessed time.Time
	// Priority orders eviction among equally old entries; higher is kept longer.
	Priority int
}

// SyncAction is the kind of deferred work a SyncQueueItem carries.
type SyncAction string

const (
	ActionUploadComplete SyncAction = "upload_complete"
)

// SyncStatus is the state of a SyncQueueItem.
type SyncStatus string

const (
	SyncPending   SyncStatus = "pending"
	SyncCompleted SyncStatus = "completed"
	SyncFailed    SyncStatus = "failed"
)

// SyncQueueItem is a retryable action persisted for later replay.
type SyncQueueItem struct {
	ID          int64
	Action      SyncAction
	Payload     []byte
	CreatedAt   time.Time
	Attempts    int
	LastAttempt time.Time
	LastError   string
	Status      SyncStatus
}

// CompletePayload is the payload of an ActionUploadComplete item.
type CompletePayload struct {
	StudyID  int64  `json:"study_id"`
	UploadID string `json:"upload_id"`
}
