// Package metadata implements the Metadata Store: the system-of-record for
// upload sessions, their received chunks, and the file records produced
// once an upload is finalized. Every mutation that advances a session's
// chunk progress goes through a single conditional UPDATE so concurrent
// requests can never double-count a chunk or skip the ordering contract.
package metadata

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/dariusreyes/gitvault/internal/common"
	"github.com/dariusreyes/gitvault/pkg/types"
)

// Service wraps the database handle with the upload-session operations the
// rest of the system needs.
type Service struct {
	db *common.Database
}

// NewService creates a new metadata service
func NewService(db *common.Database) *Service {
	return &Service{db: db}
}

// CreateSession inserts a new upload session in pending status.
func (s *Service) CreateSession(ctx context.Context, session *types.UploadSession) error {
	if err := s.db.WithContext(ctx).Create(session).Error; err != nil {
		return fmt.Errorf("failed to create upload session: %w", err)
	}
	return nil
}

// GetSession fetches a session by id scoped to its owner, transitioning it
// to failed first if it has passed its expiration and is still in a
// non-terminal status. A session id that exists but belongs to a
// different owner is indistinguishable from one that does not exist.
func (s *Service) GetSession(ctx context.Context, id, ownerID uuid.UUID) (*types.UploadSession, error) {
	if err := s.expireIfDue(ctx, id); err != nil {
		return nil, err
	}

	var session types.UploadSession
	if err := s.db.WithContext(ctx).First(&session, "id = ? AND owner_id = ?", id, ownerID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrSessionNotFound
		}
		return nil, fmt.Errorf("failed to get upload session: %w", err)
	}
	return &session, nil
}

// expireIfDue transitions a non-terminal session past its expiration into
// failed status. Supplements the distilled interface with the expiration
// rule the state machine otherwise only states, never enforces.
func (s *Service) expireIfDue(ctx context.Context, id uuid.UUID) error {
	result := s.db.WithContext(ctx).Model(&types.UploadSession{}).
		Where("id = ? AND expires_at < ? AND status NOT IN (?)", id, time.Now(), []types.UploadStatus{
			types.StatusCompleted, types.StatusFailed, types.StatusAborted,
		}).
		Updates(map[string]interface{}{
			"status":         types.StatusFailed,
			"failure_reason": "session expired",
		})
	if result.Error != nil {
		return fmt.Errorf("failed to expire upload session: %w", result.Error)
	}
	return nil
}

// UpdateSessionStatus transitions a session to a new status unconditionally.
// Used for transitions the caller has already validated (e.g. abort,
// processing, completed/failed at the end of finalize).
func (s *Service) UpdateSessionStatus(ctx context.Context, id uuid.UUID, status types.UploadStatus, failureReason string) error {
	updates := map[string]interface{}{"status": status}
	if failureReason != "" {
		updates["failure_reason"] = failureReason
	}

	result := s.db.WithContext(ctx).Model(&types.UploadSession{}).Where("id = ?", id).Updates(updates)
	if result.Error != nil {
		return fmt.Errorf("failed to update session status: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrSessionNotFound
	}
	return nil
}

// RecordChunk upserts the chunk record for (session, index). Idempotent:
// replaying an already-received index overwrites its checksum/size rather
// than erroring, matching the resumption contract.
func (s *Service) RecordChunk(ctx context.Context, chunk *types.ChunkRecord) error {
	err := s.db.WithContext(ctx).
		Where("session_id = ? AND chunk_index = ?", chunk.SessionID, chunk.ChunkIndex).
		Assign(map[string]interface{}{
			"size":        chunk.Size,
			"checksum":    chunk.Checksum,
			"received_at": time.Now(),
		}).
		FirstOrCreate(chunk).Error
	if err != nil {
		return fmt.Errorf("failed to record chunk: %w", err)
	}
	return nil
}

// AdvanceProgress is the sole cross-process serialization primitive for
// chunk ordering: it only succeeds if the session's received_chunks
// pointer still equals the expected index and the session is still
// mutable, so two requests racing on the same next-chunk index can never
// both succeed.
func (s *Service) AdvanceProgress(ctx context.Context, sessionID uuid.UUID, chunkIndex int, chunkSize int64) error {
	result := s.db.WithContext(ctx).Exec(`
		UPDATE uploads
		SET received_chunks = received_chunks + 1,
		    received_bytes = received_bytes + ?,
		    status = CASE WHEN status = ? THEN ? ELSE status END,
		    updated_at = ?
		WHERE id = ? AND received_chunks = ? AND status IN (?, ?)
	`,
		chunkSize,
		types.StatusPending, types.StatusInProgress,
		time.Now(),
		sessionID, chunkIndex,
		types.StatusPending, types.StatusInProgress,
	)
	if result.Error != nil {
		return fmt.Errorf("failed to advance upload progress: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrChunkOutOfOrder
	}
	return nil
}

// ListChunks returns every received chunk for a session, ordered by index.
func (s *Service) ListChunks(ctx context.Context, sessionID uuid.UUID) ([]types.ChunkRecord, error) {
	var chunks []types.ChunkRecord
	if err := s.db.WithContext(ctx).
		Where("session_id = ?", sessionID).
		Order("chunk_index ASC").
		Find(&chunks).Error; err != nil {
		return nil, fmt.Errorf("failed to list chunks: %w", err)
	}
	return chunks, nil
}

// ResetChunks deletes every chunk record for a session and rewinds its
// received_chunks/received_bytes pointers to zero. Used when an abort or
// retry needs to discard partial progress.
func (s *Service) ResetChunks(ctx context.Context, sessionID uuid.UUID) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("session_id = ?", sessionID).Delete(&types.ChunkRecord{}).Error; err != nil {
			return fmt.Errorf("failed to delete chunk records: %w", err)
		}
		if err := tx.Model(&types.UploadSession{}).Where("id = ?", sessionID).
			Updates(map[string]interface{}{"received_chunks": 0, "received_bytes": 0}).Error; err != nil {
			return fmt.Errorf("failed to reset session progress: %w", err)
		}
		return nil
	})
}

// SetManifestPath records where the repo-chunks manifest was written.
func (s *Service) SetManifestPath(ctx context.Context, sessionID uuid.UUID, manifestPath string) error {
	result := s.db.WithContext(ctx).Model(&types.UploadSession{}).
		Where("id = ?", sessionID).
		Update("manifest_path", manifestPath)
	if result.Error != nil {
		return fmt.Errorf("failed to set manifest path: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrSessionNotFound
	}
	return nil
}

// LinkFile sets the session's final file id and blob path, flips it to
// completed, and stamps its completion time. Idempotent: called only from
// the Materializer's success path, and re-running it for an
// already-linked session just overwrites the same values.
func (s *Service) LinkFile(ctx context.Context, sessionID, fileID uuid.UUID, blobPath string) error {
	now := time.Now()
	result := s.db.WithContext(ctx).Model(&types.UploadSession{}).
		Where("id = ?", sessionID).
		Updates(map[string]interface{}{
			"final_file_id":   fileID,
			"final_blob_path": blobPath,
			"status":          types.StatusCompleted,
			"completed_at":    now,
		})
	if result.Error != nil {
		return fmt.Errorf("failed to link file to session: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrSessionNotFound
	}
	return nil
}

// InsertFileRecord creates the final materialized-file row.
func (s *Service) InsertFileRecord(ctx context.Context, file *types.FileRecord) error {
	if err := s.db.WithContext(ctx).Create(file).Error; err != nil {
		return fmt.Errorf("failed to insert file record: %w", err)
	}
	return nil
}

// GetFileByID fetches a materialized file record by id. FileRecord carries
// no back-pointer to the session that produced it, so callers resolve it
// through the session's FinalFileID rather than a session-keyed lookup.
func (s *Service) GetFileByID(ctx context.Context, fileID uuid.UUID) (*types.FileRecord, error) {
	var file types.FileRecord
	if err := s.db.WithContext(ctx).First(&file, "id = ?", fileID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrFileNotFound
		}
		return nil, fmt.Errorf("failed to get file record: %w", err)
	}
	return &file, nil
}
