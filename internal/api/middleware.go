package api

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/dariusreyes/gitvault/internal/auth"
)

const (
	headerServiceKey = "X-API-Key"
	headerAuthz      = "Authorization"
	headerUserID     = "X-User-Id"

	contextKeyOwnerID = "owner_id"
)

// withServiceAuth authenticates the trusted upstream proxy presenting
// either the static service key or an issued ServiceCredential, then trusts
// the owner id the proxy asserts in X-User-Id. This service has no notion
// of end-user identity of its own.
func withServiceAuth(authService *auth.Service, staticKey string) gin.HandlerFunc {
	return func(c *gin.Context) {
		presented := credentialFromRequest(c.Request)
		if presented == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing credentials"})
			return
		}

		ok, err := authService.ValidateCredential(c.Request.Context(), presented, staticKey)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "failed to validate credentials"})
			return
		}
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid credentials"})
			return
		}

		ownerHeader := c.GetHeader(headerUserID)
		ownerID, err := uuid.Parse(ownerHeader)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "missing or invalid " + headerUserID})
			return
		}

		c.Set(contextKeyOwnerID, ownerID)
		c.Next()
	}
}

func credentialFromRequest(r *http.Request) string {
	if key := r.Header.Get(headerServiceKey); key != "" {
		return key
	}
	if authz := r.Header.Get(headerAuthz); strings.HasPrefix(authz, "Bearer ") {
		return strings.TrimPrefix(authz, "Bearer ")
	}
	return ""
}

func ownerIDFromContext(c *gin.Context) uuid.UUID {
	return c.MustGet(contextKeyOwnerID).(uuid.UUID)
}

func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Headers", "Content-Type, Content-Length, X-API-Key, Authorization, X-User-Id, X-Chunk-Index, X-Chunk-Checksum")
		c.Header("Access-Control-Allow-Methods", "POST, OPTIONS, GET, PUT, DELETE")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}
