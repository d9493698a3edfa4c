package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/dariusreyes/gitvault/internal/metadata"
	"github.com/dariusreyes/gitvault/internal/session"
	"github.com/dariusreyes/gitvault/pkg/types"
)

const (
	headerChunkIndex    = "X-Chunk-Index"
	headerChunkChecksum = "X-Chunk-Checksum"
)

func handleHealthz(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func handleInit(sessionService *session.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req types.InitRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		resp, err := sessionService.InitUpload(c.Request.Context(), ownerIDFromContext(c), req)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusCreated, resp)
	}
}

func handlePutChunk(sessionService *session.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		sessionID, err := uuid.Parse(c.Param("id"))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid session id"})
			return
		}

		chunkIndex, err := strconv.Atoi(c.GetHeader(headerChunkIndex))
		if err != nil || chunkIndex < 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "missing or invalid " + headerChunkIndex})
			return
		}
		checksumHint := c.GetHeader(headerChunkChecksum)

		result, err := sessionService.HandleChunk(c.Request.Context(), ownerIDFromContext(c), sessionID, chunkIndex, checksumHint, c.Request.Body)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, result)
	}
}

func handleFinalize(sessionService *session.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		sessionID, err := uuid.Parse(c.Param("id"))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid session id"})
			return
		}

		result, err := sessionService.Finalize(c.Request.Context(), ownerIDFromContext(c), sessionID)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, result)
	}
}

func handleAbort(sessionService *session.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		sessionID, err := uuid.Parse(c.Param("id"))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid session id"})
			return
		}

		if err := sessionService.Abort(c.Request.Context(), ownerIDFromContext(c), sessionID); err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "aborted"})
	}
}

func handleStatus(sessionService *session.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		sessionID, err := uuid.Parse(c.Param("id"))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid session id"})
			return
		}

		status, err := sessionService.GetStatus(c.Request.Context(), ownerIDFromContext(c), sessionID)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, status)
	}
}

// writeError maps domain errors to the status codes §6 of the external
// interfaces lists: 404 for unknown/foreign session, 409 for out-of-order
// chunk or any other non-mutable session state, 410 specifically for a
// session that has expired, 400 for malformed requests, 5xx otherwise.
func writeError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, metadata.ErrSessionNotFound), errors.Is(err, metadata.ErrFileNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, session.ErrSessionExpired):
		c.JSON(http.StatusGone, gin.H{"error": err.Error()})
	case errors.Is(err, metadata.ErrChunkOutOfOrder), errors.Is(err, session.ErrSessionTerminal):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.Is(err, session.ErrIncompleteUpload), errors.Is(err, session.ErrInvalidRequest), errors.Is(err, session.ErrChecksumMismatch):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}
