// Package protocol holds the JSON bodies and paths of the upload HTTP API,
// shared by the uploader client and the reference server.
package protocol

import (
	"fmt"
	"net/url"
	"strconv"
	"time"
)

// Upload states reported by the status endpoint.
const (
	StateUploading = "uploading"
	StateComplete  = "complete"
)

// Token types carried in the "typ" claim.
const (
	TokenTypeAccess = "access"
	TokenTypeUpload = "upload"
)

// StudyMetadata is the study_metadata object of an init request. Clinical
// history travels next to it, not inside it.
type StudyMetadata struct {
	PatientName      string `json:"patient_name"`
	StudyDate        string `json:"study_date"`
	Modality         string `json:"modality"`
	Age              string `json:"age,omitempty"`
	Gender           string `json:"gender,omitempty"`
	ServiceLevel     string `json:"service_level,omitempty"`
	StudyDescription string `json:"study_description,omitempty"`
}

type InitRequest struct {
	StudyMetadata   StudyMetadata `json:"study_metadata"`
	TotalFiles      int           `json:"total_files"`
	TotalSizeBytes  int64         `json:"total_size_bytes"`
	ClinicalHistory string        `json:"clinical_history,omitempty"`
}

type InitResponse struct {
	UploadID    string    `json:"upload_id"`
	UploadToken string    `json:"upload_token"`
	ChunkSize   int64     `json:"chunk_size"`
	ExpiresAt   time.Time `json:"expires_at"`
}

type ChunkResponse struct {
	UploadID      string `json:"upload_id"`
	FileID        string `json:"file_id"`
	ChunkIndex    int    `json:"chunk_index"`
	ReceivedBytes int64  `json:"received_bytes"`
}

type CompleteResponse struct {
	Status   string `json:"status"`
	UploadID string `json:"upload_id"`
}

type FileStatus struct {
	Complete       bool  `json:"complete"`
	ReceivedChunks []int `json:"received_chunks"`
}

type StatusResponse struct {
	UploadID        string                `json:"upload_id"`
	State           string                `json:"state"`
	ProgressPercent float64               `json:"progress_percent"`
	UploadedBytes   int64                 `json:"uploaded_bytes"`
	TotalBytes      int64                 `json:"total_bytes"`
	PacsStatus      string                `json:"pacs_status"`
	Files           map[string]FileStatus `json:"files"`
}

// RefreshResponse carries a new upload token. ExpiresAt is optional; when
// absent the client reads the token's exp claim.
type RefreshResponse struct {
	UploadToken string     `json:"upload_token"`
	ExpiresAt   *time.Time `json:"expires_at,omitempty"`
}

type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type LoginResponse struct {
	AccessToken string `json:"access_token"`
}

// ErrorResponse is the body of every non-2xx reply.
type ErrorResponse struct {
	Detail string `json:"detail"`
}

type HealthResponse struct {
	Status string `json:"status"`
}

// Paths.
const (
	PathInit         = "/upload/init"
	PathRefreshToken = "/auth/refresh-upload-token"
	PathLogin        = "/auth/login"
	PathHealth       = "/health"
)

func ChunkPath(uploadID, fileID string, index, totalChunks int) string {
	q := url.Values{}
	q.Set("chunk_index", strconv.Itoa(index))
	q.Set("file_id", fileID)
	if totalChunks > 0 {
		q.Set("total_chunks", strconv.Itoa(totalChunks))
	}
	return fmt.Sprintf("/upload/%s/chunk?%s", url.PathEscape(uploadID), q.Encode())
}

func CompletePath(uploadID string) string {
	return fmt.Sprintf("/upload/%s/complete", url.PathEscape(uploadID))
}

func StatusPath(uploadID string) string {
	return fmt.Sprintf("/upload/%s/status", url.PathEscape(uploadID))
}

func RefreshPath(uploadID string) string {
	return PathRefreshToken + "?upload_id=" + url.QueryEscape(uploadID)
}
