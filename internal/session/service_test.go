package session

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/dariusreyes/gitvault/internal/common"
	"github.com/dariusreyes/gitvault/internal/materializer"
	"github.com/dariusreyes/gitvault/internal/metadata"
	"github.com/dariusreyes/gitvault/internal/remote"
	"github.com/dariusreyes/gitvault/internal/scratch"
	"github.com/dariusreyes/gitvault/pkg/config"
	"github.com/dariusreyes/gitvault/pkg/types"
)

const oneMiB = 1 << 20

func newFakeGitHubServer(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/repos/", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPut {
			w.WriteHeader(http.StatusCreated)
			w.Write([]byte(`{"content":{"sha":"abc123"}}`))
			return
		}
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte(`{"message":"Not Found"}`))
	})
	return httptest.NewServer(mux)
}

func newTestSessionService(t *testing.T) *Service {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&types.UploadSession{}, &types.ChunkRecord{}, &types.FileRecord{}))
	metadataSvc := metadata.NewService(&common.Database{DB: db})

	scratchStore, err := scratch.New(t.TempDir())
	require.NoError(t, err)

	server := newFakeGitHubServer(t)
	t.Cleanup(server.Close)
	remoteClient := remote.New(config.GitHubConfig{AccessToken: "x", Owner: "o", Repo: "r", Branch: "main"})
	remoteClient.SetBaseURLForTesting(server.URL)

	m := materializer.New(metadataSvc, scratchStore, remoteClient)

	cfg := &config.UploadConfig{
		ChunkSize:           oneMiB,
		MaxChunkSize:        50 << 20,
		MaxUploadSize:       10 << 30,
		ReleaseAssetMaxSize: 2 << 30,
		LFSThreshold:        1 << 30,
		InlineBlobMaxSize:   256 << 10,
		EnableReleaseAssets: false,
	}

	return NewService(cfg, "o/r", metadataSvc, scratchStore, nil, m)
}

func TestInitUpload_Success(t *testing.T) {
	svc := newTestSessionService(t)
	ctx := context.Background()
	ownerID := uuid.New()

	resp, err := svc.InitUpload(ctx, ownerID, types.InitRequest{Filename: "data.bin", Size: 40})
	require.NoError(t, err)
	assert.Equal(t, int64(40), resp.ChunkSize)
	assert.Equal(t, 1, resp.TotalChunks)
	assert.Equal(t, types.StrategyInlineBlob, resp.Strategy)
	assert.Equal(t, "o/r", resp.RepoName)
}

func TestInitUpload_RejectsEmptyFilename(t *testing.T) {
	svc := newTestSessionService(t)
	_, err := svc.InitUpload(context.Background(), uuid.New(), types.InitRequest{Size: 10})
	assert.ErrorIs(t, err, ErrInvalidRequest)
}

func TestInitUpload_RejectsOversizedUpload(t *testing.T) {
	svc := newTestSessionService(t)
	_, err := svc.InitUpload(context.Background(), uuid.New(), types.InitRequest{Filename: "big.bin", Size: 1 << 40})
	assert.ErrorIs(t, err, ErrInvalidRequest)
}

// twoChunkSize is larger than InlineBlobMaxSize, so it resolves to the
// repo-chunks strategy and splits into a full 1 MiB chunk plus a short tail.
const twoChunkSize = oneMiB + 5

func TestHandleChunk_SequentialThenComplete(t *testing.T) {
	svc := newTestSessionService(t)
	ctx := context.Background()
	ownerID := uuid.New()

	init, err := svc.InitUpload(ctx, ownerID, types.InitRequest{Filename: "data.bin", Size: twoChunkSize})
	require.NoError(t, err)
	require.Equal(t, 2, init.TotalChunks)
	require.Equal(t, types.StrategyRepoChunks, init.Strategy)

	r1, err := svc.HandleChunk(ctx, ownerID, init.UploadID, 0, "", bytes.NewReader(make([]byte, oneMiB)))
	require.NoError(t, err)
	assert.Equal(t, 0, r1.ReceivedChunk)
	assert.False(t, r1.IsComplete)

	r2, err := svc.HandleChunk(ctx, ownerID, init.UploadID, 1, "", bytes.NewReader(make([]byte, 5)))
	require.NoError(t, err)
	assert.True(t, r2.IsComplete)

	status, err := svc.GetStatus(ctx, ownerID, init.UploadID)
	require.NoError(t, err)
	assert.Equal(t, 2, status.ReceivedChunks)
}

func TestHandleChunk_ReplayIsIdempotent(t *testing.T) {
	svc := newTestSessionService(t)
	ctx := context.Background()
	ownerID := uuid.New()

	init, err := svc.InitUpload(ctx, ownerID, types.InitRequest{Filename: "data.bin", Size: 16})
	require.NoError(t, err)

	_, err = svc.HandleChunk(ctx, ownerID, init.UploadID, 0, "", bytes.NewReader(make([]byte, 16)))
	require.NoError(t, err)

	replay, err := svc.HandleChunk(ctx, ownerID, init.UploadID, 0, "", bytes.NewReader(make([]byte, 16)))
	require.NoError(t, err)
	assert.True(t, replay.IsComplete)
	assert.Equal(t, 0, replay.ReceivedChunk)
}

func TestHandleChunk_RejectsAheadOfExpected(t *testing.T) {
	svc := newTestSessionService(t)
	ctx := context.Background()
	ownerID := uuid.New()

	init, err := svc.InitUpload(ctx, ownerID, types.InitRequest{Filename: "data.bin", Size: twoChunkSize})
	require.NoError(t, err)

	_, err = svc.HandleChunk(ctx, ownerID, init.UploadID, 1, "", bytes.NewReader(make([]byte, 5)))
	assert.ErrorIs(t, err, metadata.ErrChunkOutOfOrder)
}

func TestHandleChunk_ChecksumMismatchLeavesNoScratchFile(t *testing.T) {
	svc := newTestSessionService(t)
	ctx := context.Background()
	ownerID := uuid.New()

	init, err := svc.InitUpload(ctx, ownerID, types.InitRequest{Filename: "data.bin", Size: 16})
	require.NoError(t, err)

	_, err = svc.HandleChunk(ctx, ownerID, init.UploadID, 0, "deadbeef", bytes.NewReader(make([]byte, 16)))
	assert.ErrorIs(t, err, ErrChecksumMismatch)

	exists, err := svc.scratch.ChunkExists(ctx, init.UploadID.String(), 0)
	require.NoError(t, err)
	assert.False(t, exists, "scratch chunk must be removed after a checksum mismatch")

	status, err := svc.GetStatus(ctx, ownerID, init.UploadID)
	require.NoError(t, err)
	assert.Equal(t, 0, status.ReceivedChunks)
}

func TestFinalize_RejectsIncompleteUpload(t *testing.T) {
	svc := newTestSessionService(t)
	ctx := context.Background()
	ownerID := uuid.New()

	init, err := svc.InitUpload(ctx, ownerID, types.InitRequest{Filename: "data.bin", Size: twoChunkSize})
	require.NoError(t, err)

	_, err = svc.Finalize(ctx, ownerID, init.UploadID)
	assert.ErrorIs(t, err, ErrIncompleteUpload)
}

func TestFinalize_CompletesAfterAllChunks(t *testing.T) {
	svc := newTestSessionService(t)
	ctx := context.Background()
	ownerID := uuid.New()

	init, err := svc.InitUpload(ctx, ownerID, types.InitRequest{Filename: "data.bin", Size: 16})
	require.NoError(t, err)

	_, err = svc.HandleChunk(ctx, ownerID, init.UploadID, 0, "", bytes.NewReader(make([]byte, 16)))
	require.NoError(t, err)

	result, err := svc.Finalize(ctx, ownerID, init.UploadID)
	require.NoError(t, err)
	assert.Equal(t, "data.bin", result.Name)
	assert.Equal(t, int64(16), result.Size)

	status, err := svc.GetStatus(ctx, ownerID, init.UploadID)
	require.NoError(t, err)
	assert.Equal(t, types.StatusCompleted, status.Status)
}

func TestFinalize_IsIdempotentOnCompletedSession(t *testing.T) {
	svc := newTestSessionService(t)
	ctx := context.Background()
	ownerID := uuid.New()

	init, err := svc.InitUpload(ctx, ownerID, types.InitRequest{Filename: "data.bin", Size: 16})
	require.NoError(t, err)
	_, err = svc.HandleChunk(ctx, ownerID, init.UploadID, 0, "", bytes.NewReader(make([]byte, 16)))
	require.NoError(t, err)

	first, err := svc.Finalize(ctx, ownerID, init.UploadID)
	require.NoError(t, err)

	second, err := svc.Finalize(ctx, ownerID, init.UploadID)
	require.NoError(t, err)
	assert.Equal(t, first.FileID, second.FileID)
}

func TestAbort_ResetsProgress(t *testing.T) {
	svc := newTestSessionService(t)
	ctx := context.Background()
	ownerID := uuid.New()

	init, err := svc.InitUpload(ctx, ownerID, types.InitRequest{Filename: "data.bin", Size: twoChunkSize})
	require.NoError(t, err)

	_, err = svc.HandleChunk(ctx, ownerID, init.UploadID, 0, "", bytes.NewReader(make([]byte, oneMiB)))
	require.NoError(t, err)

	require.NoError(t, svc.Abort(ctx, ownerID, init.UploadID))

	status, err := svc.GetStatus(ctx, ownerID, init.UploadID)
	require.NoError(t, err)
	assert.Equal(t, types.StatusAborted, status.Status)
	assert.Equal(t, 0, status.ReceivedChunks)
}

func TestHandleChunk_RejectsExpiredSessionWithExpiredError(t *testing.T) {
	svc := newTestSessionService(t)
	ctx := context.Background()
	ownerID := uuid.New()

	init, err := svc.InitUpload(ctx, ownerID, types.InitRequest{Filename: "data.bin", Size: 16})
	require.NoError(t, err)

	require.NoError(t, svc.metadata.UpdateSessionStatus(ctx, init.UploadID, types.StatusFailed, expiredFailureReason))

	_, err = svc.HandleChunk(ctx, ownerID, init.UploadID, 0, "", bytes.NewReader(make([]byte, 16)))
	assert.ErrorIs(t, err, ErrSessionExpired)
	assert.NotErrorIs(t, err, ErrSessionTerminal)
}

func TestAbort_RejectsCompletedUpload(t *testing.T) {
	svc := newTestSessionService(t)
	ctx := context.Background()
	ownerID := uuid.New()

	init, err := svc.InitUpload(ctx, ownerID, types.InitRequest{Filename: "data.bin", Size: 16})
	require.NoError(t, err)
	_, err = svc.HandleChunk(ctx, ownerID, init.UploadID, 0, "", bytes.NewReader(make([]byte, 16)))
	require.NoError(t, err)
	_, err = svc.Finalize(ctx, ownerID, init.UploadID)
	require.NoError(t, err)

	err = svc.Abort(ctx, ownerID, init.UploadID)
	assert.ErrorIs(t, err, ErrSessionTerminal)
}
