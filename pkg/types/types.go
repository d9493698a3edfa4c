package types

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// JSONMap is a custom type that can handle JSON serialization for both PostgreSQL and SQLite
type JSONMap map[string]interface{}

// Value implements the driver.Valuer interface for GORM
func (j JSONMap) Value() (driver.Value, error) {
	if j == nil {
		return nil, nil
	}
	return json.Marshal(j)
}

// Scan implements the sql.Scanner interface for GORM
func (j *JSONMap) Scan(value interface{}) error {
	if value == nil {
		*j = nil
		return nil
	}

	var bytes []byte
	switch v := value.(type) {
	case []byte:
		bytes = v
	case string:
		bytes = []byte(v)
	default:
		return fmt.Errorf("cannot scan %T into JSONMap", value)
	}

	return json.Unmarshal(bytes, j)
}

// UploadStatus is the lifecycle state of an UploadSession
type UploadStatus string

const (
	StatusPending    UploadStatus = "pending"
	StatusInProgress UploadStatus = "in_progress"
	StatusProcessing UploadStatus = "processing"
	StatusCompleted  UploadStatus = "completed"
	StatusFailed     UploadStatus = "failed"
	StatusAborted    UploadStatus = "aborted"
)

// IsTerminal reports whether the status admits no further transitions
func (s UploadStatus) IsTerminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusAborted:
		return true
	default:
		return false
	}
}

// StorageStrategy names the path a completed upload takes into the remote repository
type StorageStrategy string

const (
	StrategyRepoChunks   StorageStrategy = "repo_chunks"
	StrategyReleaseAsset StorageStrategy = "release_asset"
	StrategyInlineBlob   StorageStrategy = "inline_blob"
	StrategyGitLFS       StorageStrategy = "git_lfs"
)

// UploadSession is the durable record of a resumable upload
type UploadSession struct {
	ID             uuid.UUID       `json:"id" gorm:"type:uuid;primaryKey"`
	OwnerID        uuid.UUID       `json:"owner_id" gorm:"type:uuid;not null;index"`
	Filename       string          `json:"filename" gorm:"not null"`
	ContentType    string          `json:"content_type"`
	TargetPath     string          `json:"target_path"`
	RepoName       string          `json:"repo_name" gorm:"not null"`
	TotalSize      int64           `json:"total_size" gorm:"not null"`
	ChunkSize      int64           `json:"chunk_size" gorm:"not null"`
	TotalChunks    int             `json:"total_chunks" gorm:"not null"`
	ReceivedChunks int             `json:"received_chunks" gorm:"not null;default:0"`
	ReceivedBytes  int64           `json:"received_bytes" gorm:"not null;default:0"`
	Strategy       StorageStrategy `json:"strategy" gorm:"not null"`
	Status         UploadStatus    `json:"status" gorm:"not null;default:'pending';index"`
	ManifestPath   string          `json:"manifest_path,omitempty"`
	FinalFileID    *uuid.UUID      `json:"final_file_id,omitempty" gorm:"type:uuid"`
	FinalBlobPath  string          `json:"final_blob_path,omitempty"`
	FailureReason  string          `json:"failure_reason,omitempty"`
	ExpiresAt      time.Time       `json:"expires_at" gorm:"not null"`
	CompletedAt    *time.Time      `json:"completed_at,omitempty"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
}

// BeforeCreate generates a UUID for the session ID
func (u *UploadSession) BeforeCreate(tx *gorm.DB) error {
	if u.ID == uuid.Nil {
		u.ID = uuid.New()
	}
	return nil
}

// TableName pins the GORM table name to the one the external schema uses,
// overriding the pluralization GORM would otherwise derive.
func (UploadSession) TableName() string {
	return "uploads"
}

// ChunkRecord tracks a single accepted chunk of an UploadSession
type ChunkRecord struct {
	ID         uuid.UUID `json:"id" gorm:"type:uuid;primaryKey"`
	SessionID  uuid.UUID `json:"session_id" gorm:"type:uuid;not null;index"`
	ChunkIndex int       `json:"chunk_index" gorm:"not null"`
	Size       int64     `json:"size" gorm:"not null"`
	Checksum   string    `json:"checksum" gorm:"not null"`
	ReceivedAt time.Time `json:"received_at"`
}

// BeforeCreate generates a UUID for the chunk record ID
func (c *ChunkRecord) BeforeCreate(tx *gorm.DB) error {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	return nil
}

// TableName pins the GORM table name to the one the external schema uses.
func (ChunkRecord) TableName() string {
	return "upload_chunks"
}

// FileRecord is the durable pointer to a materialized object in the remote
// repository. It carries no back-pointer to the UploadSession that
// produced it — the session points to the file via FinalFileID, not the
// other way around.
type FileRecord struct {
	ID          uuid.UUID       `json:"id" gorm:"type:uuid;primaryKey"`
	OwnerID     uuid.UUID       `json:"owner_id" gorm:"type:uuid;not null;index"`
	Filename    string          `json:"filename" gorm:"not null"`
	ContentType string          `json:"content_type"`
	Path        string          `json:"path"`
	RepoName    string          `json:"repo_name" gorm:"not null"`
	Size        int64           `json:"size" gorm:"not null"`
	Strategy    StorageStrategy `json:"strategy" gorm:"not null"`
	BlobPath    string          `json:"blob_path" gorm:"not null"`
	Metadata    JSONMap         `json:"metadata,omitempty" gorm:"serializer:json"`
	CreatedAt   time.Time       `json:"created_at"`
}

// BeforeCreate generates a UUID for the file record ID
func (f *FileRecord) BeforeCreate(tx *gorm.DB) error {
	if f.ID == uuid.Nil {
		f.ID = uuid.New()
	}
	return nil
}

// TableName pins the GORM table name to the one the external schema uses.
func (FileRecord) TableName() string {
	return "files"
}

// ServiceCredential is a shared secret presented by the trusted upstream proxy,
// not an end-user identity. Owner attribution for sessions comes from the
// X-User-Id header the proxy forwards alongside it.
type ServiceCredential struct {
	ID         uuid.UUID  `json:"id" gorm:"type:uuid;primaryKey"`
	Label      string     `json:"label" gorm:"not null"`
	KeyHash    string     `json:"-" gorm:"not null;uniqueIndex"`
	IsActive   bool       `json:"is_active" gorm:"default:true"`
	LastUsedAt *time.Time `json:"last_used_at,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
}

// BeforeCreate generates a UUID for the credential ID
func (s *ServiceCredential) BeforeCreate(tx *gorm.DB) error {
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	return nil
}

// ManifestSchemaVersion is the schema version stamped into every
// repo-chunks manifest document.
const ManifestSchemaVersion = "2024-11-01"

// InitRequest is the body of POST /uploads/init
type InitRequest struct {
	Filename string `json:"filename" binding:"required"`
	Size     int64  `json:"size" binding:"required"`
	MimeType string `json:"mimeType"`
	Folder   string `json:"folder"`
}

// InitResponse is the body returned by POST /uploads/init
type InitResponse struct {
	UploadID      uuid.UUID       `json:"uploadId"`
	ChunkSize     int64           `json:"chunkSize"`
	TotalChunks   int             `json:"totalChunks"`
	Strategy      StorageStrategy `json:"strategy"`
	RepoName      string          `json:"repoName"`
	MaxUploadSize int64           `json:"maxUploadSize"`
	ExpiresAt     time.Time       `json:"expiresAt"`
}

// ChunkResult is the body returned by POST /uploads/{id}/chunks
type ChunkResult struct {
	ReceivedChunk  int  `json:"receivedChunk"`
	NextChunkIndex int  `json:"nextChunkIndex"`
	IsComplete     bool `json:"isComplete"`
}

// StatusResponse is the body returned by GET /uploads/{id}
type StatusResponse struct {
	UploadID       uuid.UUID       `json:"uploadId"`
	Status         UploadStatus    `json:"status"`
	Strategy       StorageStrategy `json:"strategy"`
	ReceivedBytes  int64           `json:"receivedBytes"`
	ReceivedChunks int             `json:"receivedChunks"`
	TotalChunks    int             `json:"totalChunks"`
	ChunkSize      int64           `json:"chunkSize"`
	NextChunk      int             `json:"nextChunk"`
}

// FinalizeResult is the body returned by POST /uploads/{id}/finalize
type FinalizeResult struct {
	FileID      uuid.UUID `json:"fileId"`
	Path        string    `json:"path"`
	Name        string    `json:"name"`
	Size        int64     `json:"size"`
	CompletedAt time.Time `json:"completedAt"`
}

// ManifestEntry describes one chunk's placement in a repo-chunks manifest
type ManifestEntry struct {
	Index    int    `json:"index"`
	Size     int64  `json:"size"`
	Checksum string `json:"checksum"`
	Path     string `json:"path"`
}

// Manifest is the JSON document written alongside repo-chunks materializations
type Manifest struct {
	SchemaVersion string          `json:"schemaVersion"`
	Strategy      StorageStrategy `json:"strategy"`
	UploadID      string          `json:"uploadId"`
	UserID        string          `json:"userId"`
	FileName      string          `json:"fileName"`
	SizeBytes     int64           `json:"sizeBytes"`
	ChunkSize     int64           `json:"chunkSize"`
	TotalChunks   int             `json:"totalChunks"`
	ChunksPath    string          `json:"chunksPath"`
	Chunks        []ManifestEntry `json:"chunks"`
	CreatedAt     time.Time       `json:"createdAt"`
}
