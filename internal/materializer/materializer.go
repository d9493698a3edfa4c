// Package materializer turns a session whose chunk set is complete into a
// durable object in the remote repository. Each storage strategy is a
// distinct procedure; the common preconditions and the FileRecord insert
// are shared.
package materializer

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/dariusreyes/gitvault/internal/metadata"
	"github.com/dariusreyes/gitvault/internal/remote"
	"github.com/dariusreyes/gitvault/internal/scratch"
	"github.com/dariusreyes/gitvault/pkg/types"
)

// Materializer wires the Metadata Store, Scratch Store, and Remote Client
// together to finalize completed upload sessions.
type Materializer struct {
	metadata *metadata.Service
	scratch  *scratch.Store
	remote   *remote.Client
}

// New builds a Materializer over the given collaborators.
func New(metadataSvc *metadata.Service, scratchStore *scratch.Store, remoteClient *remote.Client) *Materializer {
	return &Materializer{metadata: metadataSvc, scratch: scratchStore, remote: remoteClient}
}

// Finalize checks the common preconditions, dispatches to the strategy the
// session was created with, inserts the resulting FileRecord, and links it
// to the session, which marks the session completed. The caller is
// responsible for having already transitioned the session to processing
// and for marking it failed when Finalize returns an error.
func (m *Materializer) Finalize(ctx context.Context, session *types.UploadSession) (*types.FileRecord, error) {
	chunks, err := m.checkPreconditions(ctx, session)
	if err != nil {
		return nil, err
	}

	var file *types.FileRecord
	switch session.Strategy {
	case types.StrategyRepoChunks, types.StrategyGitLFS:
		file, err = m.finalizeRepoChunks(ctx, session, chunks)
	case types.StrategyReleaseAsset:
		file, err = m.finalizeReleaseAsset(ctx, session, chunks)
	case types.StrategyInlineBlob:
		file, err = m.finalizeInlineBlob(ctx, session, chunks)
	default:
		err = fmt.Errorf("unsupported storage strategy %q", session.Strategy)
	}
	if err != nil {
		return nil, err
	}

	if err := m.metadata.InsertFileRecord(ctx, file); err != nil {
		return nil, err
	}
	if err := m.metadata.LinkFile(ctx, session.ID, file.ID, file.BlobPath); err != nil {
		return nil, err
	}
	return file, nil
}

// checkPreconditions verifies the chunk set is complete, every chunk is
// still readable from scratch, and the received byte total matches the
// session's declared size.
func (m *Materializer) checkPreconditions(ctx context.Context, session *types.UploadSession) ([]types.ChunkRecord, error) {
	chunks, err := m.metadata.ListChunks(ctx, session.ID)
	if err != nil {
		return nil, err
	}
	if len(chunks) != session.TotalChunks {
		return nil, fmt.Errorf("chunk manifest incomplete: have %d of %d chunks", len(chunks), session.TotalChunks)
	}

	var total int64
	for _, chunk := range chunks {
		exists, err := m.scratch.ChunkExists(ctx, session.ID.String(), chunk.ChunkIndex)
		if err != nil {
			return nil, fmt.Errorf("failed to stat chunk %d: %w", chunk.ChunkIndex, err)
		}
		if !exists {
			return nil, fmt.Errorf("chunk %d missing from scratch store", chunk.ChunkIndex)
		}
		total += chunk.Size
	}
	if total != session.TotalSize {
		return nil, fmt.Errorf("received bytes %d do not match declared size %d", total, session.TotalSize)
	}
	return chunks, nil
}

func remotePrefix(session *types.UploadSession) string {
	return fmt.Sprintf("uploads/%s/%s", session.OwnerID.String(), session.ID.String())
}

// finalizeRepoChunks writes each chunk to the remote repository in
// ascending index order, then a manifest enumerating them.
func (m *Materializer) finalizeRepoChunks(ctx context.Context, session *types.UploadSession, chunks []types.ChunkRecord) (*types.FileRecord, error) {
	prefix := remotePrefix(session)
	chunksDir := prefix + "/chunks"

	entries := make([]types.ManifestEntry, 0, len(chunks))
	for _, chunk := range chunks {
		data, err := m.readChunk(ctx, session.ID.String(), chunk.ChunkIndex)
		if err != nil {
			return nil, err
		}
		path := fmt.Sprintf("%s/chunk-%05d", chunksDir, chunk.ChunkIndex)
		message := fmt.Sprintf("Upload chunk %d for %s", chunk.ChunkIndex, session.Filename)
		if _, err := m.remote.PutFile(ctx, path, message, data); err != nil {
			return nil, fmt.Errorf("failed to write chunk %d: %w", chunk.ChunkIndex, err)
		}
		entries = append(entries, types.ManifestEntry{
			Index:    chunk.ChunkIndex,
			Path:     path,
			Size:     chunk.Size,
			Checksum: chunk.Checksum,
		})
	}

	manifest := types.Manifest{
		SchemaVersion: types.ManifestSchemaVersion,
		Strategy:      session.Strategy,
		UploadID:      session.ID.String(),
		UserID:        session.OwnerID.String(),
		FileName:      session.Filename,
		SizeBytes:     session.TotalSize,
		ChunkSize:     session.ChunkSize,
		TotalChunks:   session.TotalChunks,
		ChunksPath:    chunksDir,
		Chunks:        entries,
		CreatedAt:     time.Now().UTC(),
	}
	manifestBytes, err := encodeManifest(manifest)
	if err != nil {
		return nil, fmt.Errorf("failed to encode manifest: %w", err)
	}

	manifestPath := prefix + "/manifest.json"
	if _, err := m.remote.PutFile(ctx, manifestPath, fmt.Sprintf("Add manifest for %s", session.Filename), manifestBytes); err != nil {
		return nil, fmt.Errorf("failed to write manifest: %w", err)
	}
	if err := m.metadata.SetManifestPath(ctx, session.ID, manifestPath); err != nil {
		return nil, err
	}

	return &types.FileRecord{
		OwnerID:     session.OwnerID,
		Filename:    session.Filename,
		ContentType: session.ContentType,
		Path:        session.TargetPath,
		RepoName:    session.RepoName,
		Size:        session.TotalSize,
		Strategy:    session.Strategy,
		BlobPath:    manifestPath,
		Metadata: types.JSONMap{
			"manifestPath": manifestPath,
			"chunksPath":   chunksDir,
		},
	}, nil
}

// finalizeReleaseAsset assembles the chunks into one file on scratch disk
// and uploads it as a GitHub release asset.
func (m *Materializer) finalizeReleaseAsset(ctx context.Context, session *types.UploadSession, chunks []types.ChunkRecord) (*types.FileRecord, error) {
	assembledPath := m.scratch.AssembledPath(session.ID.String())
	defer os.Remove(assembledPath)
	if err := m.assemble(ctx, session.ID.String(), chunks, assembledPath); err != nil {
		return nil, err
	}

	file, err := os.Open(assembledPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open assembled file: %w", err)
	}
	defer file.Close()

	tag := releaseTag(session.ID)
	release, err := m.remote.EnsureRelease(ctx, tag, session.Filename, fmt.Sprintf("Release for upload %s", session.Filename))
	if err != nil {
		return nil, fmt.Errorf("failed to ensure release: %w", err)
	}

	contentType := session.ContentType
	if contentType == "" {
		contentType = remote.ContentTypeFromName(session.Filename)
	}
	asset, err := m.remote.UploadReleaseAsset(ctx, release.GetID(), session.Filename, contentType, file)
	if err != nil {
		return nil, fmt.Errorf("failed to upload release asset: %w", err)
	}

	return &types.FileRecord{
		OwnerID:     session.OwnerID,
		Filename:    session.Filename,
		ContentType: session.ContentType,
		Path:        session.TargetPath,
		RepoName:    session.RepoName,
		Size:        session.TotalSize,
		Strategy:    session.Strategy,
		BlobPath:    fmt.Sprintf("release:%d:%d", release.GetID(), asset.GetID()),
		Metadata: types.JSONMap{
			"releaseId": release.GetID(),
			"assetId":   asset.GetID(),
			"assetName": asset.GetName(),
			"tag":       tag,
		},
	}, nil
}

// finalizeInlineBlob assembles the chunks exactly as the release-asset
// strategy does, then writes the whole thing as a single remote file with
// no manifest and no release.
func (m *Materializer) finalizeInlineBlob(ctx context.Context, session *types.UploadSession, chunks []types.ChunkRecord) (*types.FileRecord, error) {
	assembledPath := m.scratch.AssembledPath(session.ID.String())
	if err := m.assemble(ctx, session.ID.String(), chunks, assembledPath); err != nil {
		return nil, err
	}
	defer os.Remove(assembledPath)

	data, err := os.ReadFile(assembledPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read assembled file: %w", err)
	}

	blobPath := fmt.Sprintf("%s/%s", remotePrefix(session), session.Filename)
	message := fmt.Sprintf("Upload %s", session.Filename)
	if _, err := m.remote.PutFile(ctx, blobPath, message, data); err != nil {
		return nil, fmt.Errorf("failed to write blob: %w", err)
	}

	return &types.FileRecord{
		OwnerID:     session.OwnerID,
		Filename:    session.Filename,
		ContentType: session.ContentType,
		Path:        session.TargetPath,
		RepoName:    session.RepoName,
		Size:        session.TotalSize,
		Strategy:    session.Strategy,
		BlobPath:    blobPath,
	}, nil
}

func (m *Materializer) readChunk(ctx context.Context, sessionID string, chunkIndex int) ([]byte, error) {
	reader, err := m.scratch.OpenChunk(ctx, sessionID, chunkIndex)
	if err != nil {
		return nil, fmt.Errorf("failed to open chunk %d: %w", chunkIndex, err)
	}
	defer reader.Close()

	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("failed to read chunk %d: %w", chunkIndex, err)
	}
	return data, nil
}

// assemble concatenates a session's scratch chunks in ascending index
// order into a single file at dest.
func (m *Materializer) assemble(ctx context.Context, sessionID string, chunks []types.ChunkRecord, dest string) error {
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return fmt.Errorf("failed to create assembly directory: %w", err)
	}
	out, err := os.Create(dest)
	if err != nil {
		return fmt.Errorf("failed to create assembled file: %w", err)
	}
	defer out.Close()

	for _, chunk := range chunks {
		reader, err := m.scratch.OpenChunk(ctx, sessionID, chunk.ChunkIndex)
		if err != nil {
			return fmt.Errorf("failed to open chunk %d: %w", chunk.ChunkIndex, err)
		}
		_, copyErr := io.Copy(out, reader)
		reader.Close()
		if copyErr != nil {
			return fmt.Errorf("failed to assemble chunk %d: %w", chunk.ChunkIndex, copyErr)
		}
	}
	return nil
}

func releaseTag(sessionID uuid.UUID) string {
	return fmt.Sprintf("upload-%s", sessionID.String())
}

func encodeManifest(manifest types.Manifest) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetIndent("", "  ")
	if err := enc.Encode(manifest); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
