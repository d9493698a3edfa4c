// Package scratch persists chunk bytes to local disk while an upload
// session is in progress. It wraps internal/storage's atomic-write blob
// engine and re-keys it by (session id, chunk index) instead of an
// arbitrary path, returning the SHA-256 digest of what was written so
// the caller can persist it alongside the chunk record.
package scratch

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/rs/zerolog/log"

	"github.com/dariusreyes/gitvault/internal/storage"
)

// Store manages the on-disk scratch area for in-progress upload sessions.
type Store struct {
	blobs *storage.LocalStorage
	root  string
}

// New creates a scratch store rooted at the given directory.
func New(root string) (*Store, error) {
	blobs, err := storage.NewLocalStorage(root)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize scratch store: %w", err)
	}
	return &Store{blobs: blobs, root: root}, nil
}

func chunkPath(sessionID string, chunkIndex int) string {
	return filepath.Join(sessionID, "chunks", fmt.Sprintf("chunk-%05d", chunkIndex))
}

// WriteChunk writes a chunk's bytes atomically and returns their SHA-256
// hex digest. The digest is computed in-stream by teeing the reader into
// a SHA-256 hasher while internal/storage writes it, so no second pass
// over the data is needed.
func (s *Store) WriteChunk(ctx context.Context, sessionID string, chunkIndex int, content io.Reader) (digest string, size int64, err error) {
	hasher := sha256.New()
	counting := &countingReader{r: io.TeeReader(content, hasher)}

	if err := s.blobs.Store(ctx, chunkPath(sessionID, chunkIndex), counting, "application/octet-stream"); err != nil {
		return "", 0, fmt.Errorf("failed to write chunk: %w", err)
	}

	return hex.EncodeToString(hasher.Sum(nil)), counting.n, nil
}

// RemoveChunk deletes a single chunk's staged bytes, used to clean up
// after a checksum mismatch so a failed write never lingers at its final
// scratch path.
func (s *Store) RemoveChunk(ctx context.Context, sessionID string, chunkIndex int) error {
	if err := s.blobs.Delete(ctx, chunkPath(sessionID, chunkIndex)); err != nil {
		return fmt.Errorf("failed to remove chunk: %w", err)
	}
	return nil
}

// OpenChunk opens a previously written chunk for reading during finalize.
func (s *Store) OpenChunk(ctx context.Context, sessionID string, chunkIndex int) (io.ReadCloser, error) {
	return s.blobs.Retrieve(ctx, chunkPath(sessionID, chunkIndex))
}

// ChunkExists reports whether a chunk has already been written to scratch.
func (s *Store) ChunkExists(ctx context.Context, sessionID string, chunkIndex int) (bool, error) {
	return s.blobs.Exists(ctx, chunkPath(sessionID, chunkIndex))
}

// AssembledPath returns the filesystem path the materializer should use to
// assemble a session's chunks into a single contiguous file, for the
// strategies that need one on local disk before uploading.
func (s *Store) AssembledPath(sessionID string) string {
	return filepath.Join(s.root, sessionID, "assembled.bin")
}

// RemoveSession deletes every scratch file belonging to a session.
// Idempotent: removing an already-removed or never-created session
// directory is not an error.
func (s *Store) RemoveSession(ctx context.Context, sessionID string) error {
	sessionDir := filepath.Join(s.root, sessionID)

	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	if err := os.RemoveAll(sessionDir); err != nil {
		log.Error().Err(err).Str("session_id", sessionID).Msg("failed to remove scratch session directory")
		return fmt.Errorf("failed to remove session scratch directory: %w", err)
	}

	log.Debug().Str("session_id", sessionID).Msg("scratch session directory removed")
	return nil
}

// countingReader counts bytes read through it so WriteChunk can return the
// number of bytes actually stored without a separate Stat call.
type countingReader struct {
	r io.Reader
	n int64
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n += int64(n)
	return n, err
}
