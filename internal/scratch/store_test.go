package scratch

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestStore(t *testing.T) *Store {
	store, err := New(t.TempDir())
	require.NoError(t, err)
	return store
}

func TestStore_WriteAndOpenChunk(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()
	sessionID := uuid.New().String()

	content := "chunk payload bytes"
	digest, size, err := store.WriteChunk(ctx, sessionID, 0, strings.NewReader(content))
	require.NoError(t, err)
	assert.Equal(t, int64(len(content)), size)

	expected := sha256.Sum256([]byte(content))
	assert.Equal(t, hex.EncodeToString(expected[:]), digest)

	reader, err := store.OpenChunk(ctx, sessionID, 0)
	require.NoError(t, err)
	defer reader.Close()

	got, err := io.ReadAll(reader)
	require.NoError(t, err)
	assert.Equal(t, content, string(got))
}

func TestStore_ChunkExists(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()
	sessionID := uuid.New().String()

	exists, err := store.ChunkExists(ctx, sessionID, 3)
	require.NoError(t, err)
	assert.False(t, exists)

	_, _, err = store.WriteChunk(ctx, sessionID, 3, strings.NewReader("data"))
	require.NoError(t, err)

	exists, err = store.ChunkExists(ctx, sessionID, 3)
	require.NoError(t, err)
	assert.True(t, exists)
}

func TestStore_RemoveSession(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()
	sessionID := uuid.New().String()

	_, _, err := store.WriteChunk(ctx, sessionID, 0, strings.NewReader("a"))
	require.NoError(t, err)
	_, _, err = store.WriteChunk(ctx, sessionID, 1, strings.NewReader("b"))
	require.NoError(t, err)

	require.NoError(t, store.RemoveSession(ctx, sessionID))

	exists, err := store.ChunkExists(ctx, sessionID, 0)
	require.NoError(t, err)
	assert.False(t, exists)

	// idempotent: removing again is not an error
	assert.NoError(t, store.RemoveSession(ctx, sessionID))
}

func TestStore_IndependentSessions(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	sessionA := uuid.New().String()
	sessionB := uuid.New().String()

	_, _, err := store.WriteChunk(ctx, sessionA, 0, strings.NewReader("from a"))
	require.NoError(t, err)
	_, _, err = store.WriteChunk(ctx, sessionB, 0, strings.NewReader("from b"))
	require.NoError(t, err)

	require.NoError(t, store.RemoveSession(ctx, sessionA))

	existsA, err := store.ChunkExists(ctx, sessionA, 0)
	require.NoError(t, err)
	assert.False(t, existsA)

	existsB, err := store.ChunkExists(ctx, sessionB, 0)
	require.NoError(t, err)
	assert.True(t, existsB)
}
