package session

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/dariusreyes/gitvault/internal/common"
	"github.com/dariusreyes/gitvault/internal/materializer"
	"github.com/dariusreyes/gitvault/internal/metadata"
	"github.com/dariusreyes/gitvault/internal/scratch"
	"github.com/dariusreyes/gitvault/pkg/config"
	"github.com/dariusreyes/gitvault/pkg/types"
)

const sessionExpiry = 24 * time.Hour

// lockTTL bounds how long a per-session advisory lock is held before it
// expires on its own, in case a holder crashes mid-chunk.
const lockTTL = 30 * time.Second

// Service is the Session Service: the only component allowed to
// transition an upload session's status. It orchestrates the Scratch
// Store, Metadata Store, Strategy Selector, and Materializer behind the
// init/chunk/status/finalize/abort operations.
type Service struct {
	cfg          *config.UploadConfig
	repoName     string
	metadata     *metadata.Service
	scratch      *scratch.Store
	cache        *common.Cache
	selector     *Selector
	materializer *materializer.Materializer
}

// NewService wires the Session Service from its collaborators. repoName is
// the remote repository every session is materialized into, stamped onto
// the session at init and echoed back in InitResponse.
func NewService(cfg *config.UploadConfig, repoName string, metadataSvc *metadata.Service, scratchStore *scratch.Store, cache *common.Cache, m *materializer.Materializer) *Service {
	return &Service{
		cfg:          cfg,
		repoName:     repoName,
		metadata:     metadataSvc,
		scratch:      scratchStore,
		cache:        cache,
		selector:     NewSelector(cfg),
		materializer: m,
	}
}

// InitUpload validates a new upload request, picks a strategy and chunk
// size, and creates a pending session.
func (s *Service) InitUpload(ctx context.Context, ownerID uuid.UUID, req types.InitRequest) (*types.InitResponse, error) {
	if strings.TrimSpace(req.Filename) == "" {
		return nil, fmt.Errorf("%w: filename is required", ErrInvalidRequest)
	}
	if req.Size <= 0 {
		return nil, fmt.Errorf("%w: size must be greater than zero", ErrInvalidRequest)
	}
	if req.Size > s.cfg.MaxUploadSize {
		return nil, fmt.Errorf("%w: size %d exceeds max upload size %d", ErrInvalidRequest, req.Size, s.cfg.MaxUploadSize)
	}

	strategy := s.selector.Pick(req.Size)
	chunkSize := s.selector.ChunkSize(req.Size)
	totalChunks := TotalChunks(req.Size, chunkSize)

	session := &types.UploadSession{
		OwnerID:     ownerID,
		Filename:    req.Filename,
		ContentType: req.MimeType,
		TargetPath:  req.Folder,
		RepoName:    s.repoName,
		TotalSize:   req.Size,
		ChunkSize:   chunkSize,
		TotalChunks: totalChunks,
		Strategy:    strategy,
		Status:      types.StatusPending,
		ExpiresAt:   time.Now().Add(sessionExpiry),
	}
	if err := s.metadata.CreateSession(ctx, session); err != nil {
		return nil, err
	}

	return &types.InitResponse{
		UploadID:      session.ID,
		ChunkSize:     session.ChunkSize,
		TotalChunks:   session.TotalChunks,
		Strategy:      session.Strategy,
		RepoName:      session.RepoName,
		MaxUploadSize: s.cfg.MaxUploadSize,
		ExpiresAt:     session.ExpiresAt,
	}, nil
}

// HandleChunk writes a chunk to scratch and advances the session's
// progress pointer. Replaying an already-received index is idempotent;
// an index ahead of the expected one is rejected outright. The Redis
// advisory lock here is an optimization to avoid wasted disk writes under
// racing requests for the same session — AdvanceProgress's conditional
// update is the actual correctness boundary, not this lock.
func (s *Service) HandleChunk(ctx context.Context, ownerID, sessionID uuid.UUID, chunkIndex int, checksumHint string, content io.Reader) (*types.ChunkResult, error) {
	session, err := s.metadata.GetSession(ctx, sessionID, ownerID)
	if err != nil {
		return nil, err
	}

	if session.Status == types.StatusCompleted {
		return &types.ChunkResult{
			ReceivedChunk:  chunkIndex,
			NextChunkIndex: session.TotalChunks,
			IsComplete:     true,
		}, nil
	}
	if session.Status.IsTerminal() {
		return nil, terminalErr(session)
	}

	if chunkIndex < session.ReceivedChunks {
		return &types.ChunkResult{
			ReceivedChunk:  chunkIndex,
			NextChunkIndex: session.ReceivedChunks,
			IsComplete:     session.ReceivedChunks == session.TotalChunks,
		}, nil
	}
	if chunkIndex > session.ReceivedChunks {
		return nil, fmt.Errorf("%w: got index %d, expected %d", metadata.ErrChunkOutOfOrder, chunkIndex, session.ReceivedChunks)
	}

	if s.cache != nil {
		lockKey := sessionLockKey(sessionID)
		locked, err := s.cache.TryLock(ctx, lockKey, lockTTL)
		if err != nil {
			log.Warn().Err(err).Str("session_id", sessionID.String()).Msg("failed to acquire session lock, proceeding without it")
		} else if !locked {
			return nil, fmt.Errorf("%w: a chunk is already being written for this session", metadata.ErrChunkOutOfOrder)
		} else {
			defer func() {
				if err := s.cache.Unlock(ctx, lockKey); err != nil {
					log.Warn().Err(err).Str("session_id", sessionID.String()).Msg("failed to release session lock")
				}
			}()
		}
	}

	digest, size, err := s.scratch.WriteChunk(ctx, sessionID.String(), chunkIndex, content)
	if err != nil {
		return nil, fmt.Errorf("failed to write chunk to scratch: %w", err)
	}

	if checksumHint != "" && !strings.EqualFold(checksumHint, digest) {
		if removeErr := s.scratch.RemoveChunk(ctx, sessionID.String(), chunkIndex); removeErr != nil {
			log.Warn().Err(removeErr).Str("session_id", sessionID.String()).Int("chunk_index", chunkIndex).Msg("failed to remove staged chunk after checksum mismatch")
		}
		return nil, fmt.Errorf("%w: chunk %d", ErrChecksumMismatch, chunkIndex)
	}

	if err := s.metadata.RecordChunk(ctx, &types.ChunkRecord{
		SessionID:  sessionID,
		ChunkIndex: chunkIndex,
		Size:       size,
		Checksum:   digest,
	}); err != nil {
		return nil, err
	}

	if err := s.metadata.AdvanceProgress(ctx, sessionID, chunkIndex, size); err != nil {
		return nil, err
	}

	updated, err := s.metadata.GetSession(ctx, sessionID, ownerID)
	if err != nil {
		return nil, err
	}

	nextIndex := chunkIndex + 1
	return &types.ChunkResult{
		ReceivedChunk:  chunkIndex,
		NextChunkIndex: nextIndex,
		IsComplete:     updated.ReceivedChunks == updated.TotalChunks,
	}, nil
}

// GetStatus returns the latest session state for polling and resume. The
// next expected chunk index equals received_chunks; a client that lost
// local state re-derives its byte offset as next_expected_chunk × chunk_size.
func (s *Service) GetStatus(ctx context.Context, ownerID, sessionID uuid.UUID) (*types.StatusResponse, error) {
	session, err := s.metadata.GetSession(ctx, sessionID, ownerID)
	if err != nil {
		return nil, err
	}
	return &types.StatusResponse{
		UploadID:       session.ID,
		Status:         session.Status,
		Strategy:       session.Strategy,
		ReceivedBytes:  session.ReceivedBytes,
		ReceivedChunks: session.ReceivedChunks,
		TotalChunks:    session.TotalChunks,
		ChunkSize:      session.ChunkSize,
		NextChunk:      session.ReceivedChunks,
	}, nil
}

// Finalize transitions a session to processing, hands it to the
// Materializer, and records the outcome. If the session is already
// completed, finalize is idempotent and returns the existing result.
func (s *Service) Finalize(ctx context.Context, ownerID, sessionID uuid.UUID) (*types.FinalizeResult, error) {
	session, err := s.metadata.GetSession(ctx, sessionID, ownerID)
	if err != nil {
		return nil, err
	}

	if session.Status == types.StatusCompleted {
		if session.FinalFileID == nil {
			return nil, fmt.Errorf("%w: completed session has no linked file", metadata.ErrSessionNotFound)
		}
		file, err := s.metadata.GetFileByID(ctx, *session.FinalFileID)
		if err != nil {
			return nil, err
		}
		return finalizeResultFromFile(file, session), nil
	}
	if session.Status.IsTerminal() {
		return nil, terminalErr(session)
	}
	if session.ReceivedChunks != session.TotalChunks {
		return nil, fmt.Errorf("%w: received %d of %d chunks", ErrIncompleteUpload, session.ReceivedChunks, session.TotalChunks)
	}

	if err := s.metadata.UpdateSessionStatus(ctx, sessionID, types.StatusProcessing, ""); err != nil {
		return nil, err
	}

	file, err := s.materializer.Finalize(ctx, session)
	if err != nil {
		if failErr := s.metadata.UpdateSessionStatus(ctx, sessionID, types.StatusFailed, err.Error()); failErr != nil {
			log.Error().Err(failErr).Str("session_id", sessionID.String()).Msg("failed to mark session failed after finalize error")
		}
		return nil, fmt.Errorf("failed to finalize upload: %w", err)
	}

	completed, err := s.metadata.GetSession(ctx, sessionID, ownerID)
	if err != nil {
		return nil, err
	}
	return finalizeResultFromFile(file, completed), nil
}

// Abort cancels a non-terminal session, discarding received chunks and
// scratch data. Completed sessions cannot be aborted.
func (s *Service) Abort(ctx context.Context, ownerID, sessionID uuid.UUID) error {
	session, err := s.metadata.GetSession(ctx, sessionID, ownerID)
	if err != nil {
		return err
	}
	if session.Status == types.StatusCompleted {
		return fmt.Errorf("%w: cannot abort a completed upload", ErrSessionTerminal)
	}
	if session.Status == types.StatusAborted {
		return nil
	}
	if session.Status.IsTerminal() {
		return terminalErr(session)
	}

	if err := s.metadata.UpdateSessionStatus(ctx, sessionID, types.StatusAborted, ""); err != nil {
		return err
	}
	if err := s.metadata.ResetChunks(ctx, sessionID); err != nil {
		return err
	}
	return s.scratch.RemoveSession(ctx, sessionID.String())
}

func finalizeResultFromFile(file *types.FileRecord, session *types.UploadSession) *types.FinalizeResult {
	completedAt := file.CreatedAt
	if session.CompletedAt != nil {
		completedAt = *session.CompletedAt
	}
	return &types.FinalizeResult{
		FileID:      file.ID,
		Path:        file.Path,
		Name:        file.Filename,
		Size:        file.Size,
		CompletedAt: completedAt,
	}
}

func sessionLockKey(sessionID uuid.UUID) string {
	return "upload:lock:" + sessionID.String()
}

// expiredFailureReason is the FailureReason the metadata store's expiry
// sweep stamps on a session it silently fails for running past ExpiresAt.
const expiredFailureReason = "session expired"

// terminalErr distinguishes a session that timed out from any other
// terminal state (completed, aborted, or failed for another reason), so
// callers can surface 410 Gone only for the former.
func terminalErr(session *types.UploadSession) error {
	if session.Status == types.StatusFailed && session.FailureReason == expiredFailureReason {
		return ErrSessionExpired
	}
	return ErrSessionTerminal
}
