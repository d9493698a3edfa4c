package api

import (
	"github.com/gin-gonic/gin"

	"github.com/dariusreyes/gitvault/internal/auth"
	"github.com/dariusreyes/gitvault/internal/session"
)

// NewRouter builds the HTTP surface for the upload service: an
// unauthenticated health check and the /uploads endpoints behind
// withServiceAuth.
func NewRouter(authService *auth.Service, sessionService *session.Service, serviceKey string) *gin.Engine {
	router := gin.New()
	router.Use(gin.Logger())
	router.Use(gin.Recovery())
	router.Use(corsMiddleware())

	router.GET("/healthz", handleHealthz)

	uploads := router.Group("/uploads")
	uploads.Use(withServiceAuth(authService, serviceKey))
	{
		uploads.POST("/init", handleInit(sessionService))
		uploads.POST("/:id/chunks", handlePutChunk(sessionService))
		uploads.POST("/:id/finalize", handleFinalize(sessionService))
		uploads.POST("/:id/abort", handleAbort(sessionService))
		uploads.GET("/:id", handleStatus(sessionService))
	}

	return router
}
